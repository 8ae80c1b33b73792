package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SourceDefinition declares one blob export feed.
type SourceDefinition struct {
	Name       string `mapstructure:"name"`
	BaseFolder string `mapstructure:"base_folder"`
	Active     *bool  `mapstructure:"active"`
}

func (d SourceDefinition) IsActive() bool {
	return d.Active == nil || *d.Active
}

// SourcesHolder keeps the last valid source list and notifies listeners on reload.
type SourcesHolder struct {
	v       *viper.Viper
	log     *zap.Logger
	current atomic.Value // holds []SourceDefinition

	mu        sync.Mutex
	listeners []func([]SourceDefinition)
	watching  bool
}

func NewSourcesHolder(cfg Config, log *zap.Logger) (*SourcesHolder, error) {
	return LoadSources(cfg.SourcesFile, log)
}

// LoadSources reads the YAML file at path. A missing file yields an empty list.
func LoadSources(path string, log *zap.Logger) (*SourcesHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	holder := &SourcesHolder{log: log.Named("config.sources")}
	holder.current.Store([]SourceDefinition{})

	path = strings.TrimSpace(path)
	if path == "" {
		return holder, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			holder.log.Info("sources file not found, no sources configured", zap.String("path", path))
			return holder, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	defs, err := decodeSources(v)
	if err != nil {
		return nil, err
	}
	holder.v = v
	holder.current.Store(defs)
	return holder, nil
}

// Loaded reports whether definitions came from a file.
func (h *SourcesHolder) Loaded() bool {
	return h.v != nil
}

func (h *SourcesHolder) Get() []SourceDefinition {
	defs := h.current.Load().([]SourceDefinition)
	out := make([]SourceDefinition, len(defs))
	copy(out, defs)
	return out
}

// OnChange registers fn to run with the new definitions after every valid reload.
func (h *SourcesHolder) OnChange(fn func([]SourceDefinition)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Watch starts watching the sources file. It is a no-op without a file.
func (h *SourcesHolder) Watch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.v == nil || h.watching {
		return
	}
	h.watching = true

	h.v.OnConfigChange(func(e fsnotify.Event) {
		h.reload(e.Name)
	})
	h.v.WatchConfig()
}

func (h *SourcesHolder) reload(name string) {
	defs, err := decodeSources(h.v)
	if err != nil {
		h.log.Warn("invalid sources file ignored", zap.String("file", name), zap.Error(err))
		return
	}
	h.current.Store(defs)
	h.log.Info("sources reloaded", zap.String("file", name), zap.Int("count", len(defs)))

	h.mu.Lock()
	listeners := append([]func([]SourceDefinition){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(defs)
	}
}

func decodeSources(v *viper.Viper) ([]SourceDefinition, error) {
	var defs []SourceDefinition
	if err := v.UnmarshalKey("sources", &defs); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if err := validateSources(defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func validateSources(defs []SourceDefinition) error {
	seen := make(map[string]struct{}, len(defs))
	for i := range defs {
		defs[i].Name = strings.TrimSpace(defs[i].Name)
		defs[i].BaseFolder = strings.TrimSpace(defs[i].BaseFolder)
		if defs[i].Name == "" {
			return fmt.Errorf("sources[%d].name cannot be empty", i)
		}
		if defs[i].BaseFolder == "" {
			return fmt.Errorf("sources[%d].base_folder cannot be empty", i)
		}
		if _, ok := seen[defs[i].Name]; ok {
			return fmt.Errorf("duplicate source name %q", defs[i].Name)
		}
		seen[defs[i].Name] = struct{}{}
	}
	return nil
}
