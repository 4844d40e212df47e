package config

import "sync/atomic"

// Snapshot holds the active configuration. Readers take the pointer once per request
// and treat the Config as immutable; reloads replace it wholesale.
type Snapshot struct {
	cur atomic.Pointer[Config]
}

// NewSnapshot returns a snapshot holding cfg.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.cur.Store(cfg)
	return s
}

// Load returns the current configuration.
func (s *Snapshot) Load() *Config {
	return s.cur.Load()
}

// Store validates cfg and makes it current. An invalid cfg leaves the snapshot unchanged.
func (s *Snapshot) Store(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cur.Store(cfg)
	return nil
}
