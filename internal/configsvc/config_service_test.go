package configsvc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testConfig struct {
	Name        string   `json:"name"`
	Concurrency int      `json:"concurrency"`
	Exclude     []string `json:"exclude,omitempty"`
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: pads\n"), 0o644))

	cfg, err := Load(path, testConfig{Concurrency: 4})
	require.NoError(t, err)
	assert.Equal(t, testConfig{Name: "pads", Concurrency: 4}, cfg)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: [unterminated\n"), 0o644))

	_, err := Load(path, testConfig{})
	assert.Error(t, err)
}

func TestInitWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yml")
	def := testConfig{Name: "default", Concurrency: 2, Exclude: []string{"Midi Through"}}

	cfg, err := Init(path, def)
	require.NoError(t, err)
	assert.Equal(t, def, cfg)

	loaded, err := Load(path, testConfig{})
	require.NoError(t, err)
	assert.Equal(t, def, loaded)

	require.NoError(t, Write(path, testConfig{Name: "edited"}))
	cfg, err = Init(path, def)
	require.NoError(t, err)
	assert.Equal(t, "edited", cfg.Name)
}

func TestRegisterReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yml")
	require.NoError(t, Write(path, testConfig{Name: "first"}))

	svc, err := New(zaptest.NewLogger(t), WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = svc.Start(ctx)
	}()
	<-svc.Ready()

	updates := make(chan testConfig, 8)
	cfg, err := Register(svc, path, testConfig{}, func(cfg testConfig, err error) {
		if err == nil {
			updates <- cfg
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Name)

	require.NoError(t, Write(path, testConfig{Name: "second"}))
	select {
	case cfg := <-updates:
		assert.Equal(t, "second", cfg.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
