package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCFLOW_"

// Loader owns the live configuration: the YAML file at path with
// DOCFLOW_* environment overrides on top.
type Loader struct {
	path    string
	environ map[string]string
	logger  *slog.Logger
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvironment replaces the process environment used for overrides.
func WithEnvironment(environ map[string]string) LoaderOption {
	return func(l *Loader) { l.environ = environ }
}

// WithLogger sets the logger used for reload failures.
func WithLogger(lg *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = lg }
}

// reloadDelay collapses the burst of events an editor save produces.
const reloadDelay = 100 * time.Millisecond

// NewLoader reads path once. A missing or invalid file is an error here;
// after startup a bad file only logs and keeps the last good config.
func NewLoader(path string, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{path: filepath.Clean(path), logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current.Store(cfg)
	return l, nil
}

// Config returns the last successfully loaded configuration.
func (l *Loader) Config() *Config { return l.current.Load() }

// OnChange adds fn to the callbacks run after each successful reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Watch reloads the file whenever it changes until stop is called. The
// parent directory is watched so saves that replace the file by rename are
// seen too.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch config dir of %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go l.watchLoop(w, done)

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

func (l *Loader) watchLoop(w *fsnotify.Watcher, done <-chan struct{}) {
	defer w.Close()
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-done:
			return
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.logger.Warn("config watcher error", "path", l.path, "err", err)
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != l.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDelay, func() {
				if _, err := l.Reload(); err != nil {
					l.logger.Warn("config reload failed, keeping previous config", "path", l.path, "err", err)
				}
			})
		}
	}
}

// Reload re-reads the file now and notifies listeners. An invalid file
// leaves the current config in place.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current.Store(cfg)

	l.mu.Lock()
	listeners := make([]func(*Config), len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	cfg, err := Parse(data, l.environ)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", l.path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default(), applies environment overrides and
// validates the result. A nil environ reads the process environment.
func Parse(data []byte, environ map[string]string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
