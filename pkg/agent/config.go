package agent

import (
	"fmt"
	"regexp"

	"github.com/neuroplastio/neio-midi/internal/binding"
	"github.com/neuroplastio/neio-midi/internal/mqttmirror"
)

// Config points to the locations the agent works with. The runtime configuration file is
// created with defaults when missing and is watched for binding changes.
type Config struct {
	DataDir    string `json:"dataDir"`
	ConfigFile string `json:"configFile"`
}

type RuntimeConfig struct {
	Bus      BusConfig         `json:"bus"`
	Exclude  []string          `json:"exclude,omitempty"`
	Bindings binding.Config    `json:"bindings,omitempty"`
	MQTT     mqttmirror.Config `json:"mqtt,omitempty"`
}

type BusConfig struct {
	Concurrency int `json:"concurrency"`
	QueueSize   int `json:"queueSize"`
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Bus: BusConfig{
			Concurrency: 4,
			QueueSize:   1024,
		},
		Exclude: []string{"Midi Through"},
	}
}

func (c RuntimeConfig) excludePatterns() ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(c.Exclude))
	for _, expr := range c.Exclude {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", expr, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}
