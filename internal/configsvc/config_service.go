// Package configsvc watches YAML configuration files and notifies clients of changes.
package configsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ghodss/yaml"
	"go.uber.org/zap"
)

const defaultDebounce = 100 * time.Millisecond

type subscriber struct {
	path   string
	reload func()
	timer  *time.Timer
}

type Service struct {
	log      *zap.Logger
	debounce time.Duration

	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	watched     map[string]struct{}
	subscribers []*subscriber
	ready       chan struct{}
}

type Option func(*Service)

// WithDebounce sets how long a file has to stay quiet before it is reloaded.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		s.debounce = d
	}
}

func New(log *zap.Logger, opts ...Option) (*Service, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	svc := &Service{
		log:      log,
		debounce: defaultDebounce,
		watcher:  watcher,
		watched:  make(map[string]struct{}),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Start dispatches file events until ctx is cancelled and then closes the watcher.
func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()
	close(s.ready)
	s.log.Info("Config service started")
	for {
		select {
		case <-ctx.Done():
			s.stopTimers()
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.dispatch(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error("Watcher error", zap.Error(err))
		}
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) dispatch(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		if sub.path != path {
			continue
		}
		if sub.timer != nil {
			sub.timer.Stop()
		}
		sub.timer = time.AfterFunc(s.debounce, sub.reload)
	}
}

func (s *Service) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		if sub.timer != nil {
			sub.timer.Stop()
		}
	}
}

func (s *Service) subscribe(absPath string, reload func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(absPath)
	if _, ok := s.watched[dir]; !ok {
		if err := s.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to add path to watcher %s: %w", dir, err)
		}
		s.watched[dir] = struct{}{}
	}
	s.subscribers = append(s.subscribers, &subscriber{path: absPath, reload: reload})
	return nil
}

// Register watches the configuration file at path and calls fn with every new version.
// It returns the initial configuration and an error if the file cannot be read.
// Service instance is used as a parameter instead of the method receiver to enable generic types.
func Register[T any](s *Service, path string, def T, fn func(config T, err error)) (T, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return def, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}
	config, err := Load(absPath, def)
	if err != nil {
		return def, err
	}
	err = s.subscribe(absPath, func() {
		fn(Load(absPath, def))
	})
	if err != nil {
		return def, err
	}
	return config, nil
}

// Init loads the configuration at path, writing def there first if the file does not exist.
func Init[T any](path string, def T) (T, error) {
	config, err := Load(path, def)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return def, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := Write(path, def); err != nil {
			return def, fmt.Errorf("failed to initialize config: %w", err)
		}
		return def, nil
	case err != nil:
		return def, err
	}
	return config, nil
}

// Load reads a YAML file into a copy of def. Fields missing from the file keep their defaults.
func Load[T any](path string, def T) (T, error) {
	yamlB, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("failed to read config file: %w", err)
	}

	jsonB, err := yaml.YAMLToJSON(yamlB)
	if err != nil {
		return def, fmt.Errorf("failed to convert yaml to json: %w", err)
	}
	err = json.Unmarshal(jsonB, &def)
	if err != nil {
		return def, fmt.Errorf("failed to unmarshal json: %w", err)
	}
	return def, nil
}

func Write[T any](path string, config T) error {
	jsonB, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	yamlB, err := yaml.JSONToYAML(jsonB)
	if err != nil {
		return fmt.Errorf("failed to convert json to yaml: %w", err)
	}

	err = os.WriteFile(path, yamlB, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
