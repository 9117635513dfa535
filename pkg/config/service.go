package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/eternnoir/whispscribe/pkg/logger"
	"github.com/eternnoir/whispscribe/pkg/params"
)

// Service owns the configuration sources for an interactive session.
// Mutations stay in memory until Persist is called.
type Service struct {
	mu           sync.RWMutex
	store        Store
	externalPath string
	defaults     Config
	external     map[string]string
	record       map[string]any
}

// NewService creates a configuration service. Call Load before use.
func NewService(store Store, externalPath string) *Service {
	return &Service{
		store:        store,
		externalPath: externalPath,
		defaults:     DefaultConfig(),
		external:     map[string]string{},
		record:       map[string]any{},
	}
}

// withDefaults replaces the built-in default table.
func (s *Service) withDefaults(c Config) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = c.Clone()
	return s
}

// Load reads the external file and the settings record and returns the
// merged configuration. Unreadable sources contribute nothing.
func (s *Service) Load() Config {
	log := logger.WithComponent("config")

	external, err := ReadExternalFile(s.externalPath)
	if err != nil {
		log.Warn().Err(err).Str("path", s.externalPath).Msg("Ignoring external config")
		external = map[string]string{}
	}

	record, err := s.store.Load()
	if err != nil {
		log.Warn().Err(err).Str("path", s.store.Path()).Msg("Ignoring unreadable settings")
		record = map[string]any{}
	}

	s.mu.Lock()
	s.external = external
	s.record = record
	s.mu.Unlock()

	log.Debug().
		Str("external", s.externalPath).
		Int("external_keys", len(external)).
		Str("settings", s.store.Path()).
		Int("settings_keys", len(record)).
		Msg("Configuration loaded")

	return s.Effective()
}

// Effective merges defaults < external file < settings record.
func (s *Service) Effective() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return merge(s.defaults, s.external, s.record)
}

func merge(defaults Config, external map[string]string, record map[string]any) Config {
	log := logger.WithComponent("config")
	cfg := defaults.Clone()

	for _, f := range fields {
		if f.external != "" {
			if v, ok := external[f.external]; ok {
				if err := f.apply(&cfg, v); err != nil {
					log.Warn().Err(err).Str("key", f.external).Msg("Invalid external config value")
				}
			}
		}

		// Legacy aliases first so the canonical key wins.
		for _, alias := range f.aliases {
			if v, ok := record[alias]; ok {
				if err := f.apply(&cfg, v); err != nil {
					log.Warn().Err(err).Str("key", alias).Msg("Invalid settings value")
				}
			}
		}
		if v, ok := record[f.key]; ok {
			if err := f.apply(&cfg, v); err != nil {
				log.Warn().Err(err).Str("key", f.key).Msg("Invalid settings value")
			}
		}
	}
	return cfg
}

// recordValue returns the raw settings record value for key.
func (s *Service) recordValue(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.record[key]
	return v, ok
}

// Value returns the effective value of key as rendered in JSON.
func (s *Service) Value(key string) (any, error) {
	f, ok := lookupField(key)
	if !ok {
		return nil, fmt.Errorf("unknown setting %q", key)
	}
	data, err := json.Marshal(s.Effective())
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m[f.key], nil
}

// Set stores value under a known key after checking it converts cleanly.
// Legacy aliases are normalised to the canonical key.
func (s *Service) Set(key string, value any) error {
	f, ok := lookupField(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	scratch := DefaultConfig()
	if err := f.apply(&scratch, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", f.key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, alias := range f.aliases {
		delete(s.record, alias)
	}
	s.record[f.key] = normalize(f.key, value)
	return nil
}

// normalize stores CLI-style strings as typed JSON values.
func normalize(key string, value any) any {
	if l, ok := value.(params.List); ok {
		return l.Clone()
	}
	str, ok := value.(string)
	if !ok {
		return value
	}
	str = strings.TrimSpace(str)
	switch key {
	case KeyOutputTxt, KeyOutputSrt, KeyOutputVtt, KeyKeepAudio, KeyOverwrite, KeyPerFileSubdir:
		return cast.ToBool(str)
	case KeyContextSize, KeyThreads:
		if str == "" {
			return 0
		}
		n, _ := strconv.Atoi(str)
		return n
	}
	return str
}

// Unset removes key so lower-precedence sources apply again.
func (s *Service) Unset(key string) error {
	f, ok := lookupField(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.record, f.key)
	for _, alias := range f.aliases {
		delete(s.record, alias)
	}
	return nil
}

// Params returns the persisted parameter list.
func (s *Service) Params() params.List {
	return s.Effective().Params
}

// SetParams replaces the parameter list in the record.
func (s *Service) SetParams(list params.List) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if list == nil {
		list = params.List{}
	}
	s.record[KeyParams] = list.Clone()
}

// Persist writes the full settings record, replacing prior content.
func (s *Service) Persist() error {
	s.mu.RLock()
	snapshot := make(map[string]any, len(s.record))
	for k, v := range s.record {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	if err := s.store.Save(snapshot); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// SetAndPersist is write-through: Set, then Persist. Validation errors are
// returned; write failures are logged and swallowed.
func (s *Service) SetAndPersist(key string, value any) error {
	if err := s.Set(key, value); err != nil {
		return err
	}
	if err := s.Persist(); err != nil {
		logger.WithComponent("config").Warn().Err(err).Str("key", key).Msg("Failed to save settings")
	}
	return nil
}

// External returns a copy of the parsed external file, unknown keys included.
func (s *Service) External() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.external))
	for k, v := range s.external {
		out[k] = v
	}
	return out
}

// RecordKeys returns the keys present in the settings record, sorted.
func (s *Service) RecordKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.record))
	for k := range s.record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StorePath returns where the settings record lives.
func (s *Service) StorePath() string { return s.store.Path() }

// ExternalPath returns where the external file is read from.
func (s *Service) ExternalPath() string { return s.externalPath }

// MarshalEffective renders the effective configuration as indented JSON.
func (s *Service) MarshalEffective() ([]byte, error) {
	return json.MarshalIndent(s.Effective(), "", "  ")
}
