// control/config.go
// Author: momentics <momentics@gmail.com>
//
// TOML configuration for the descriptor pools plus a thread-safe store that
// propagates hot-reloadable settings to listeners.

package control

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/momentics/pseudopoll/internal/fdspace"
	"github.com/momentics/pseudopoll/internal/spin"
)

// PoolConfig places one pool in the descriptor namespace.
type PoolConfig struct {
	Base int `toml:"base"`
	Max  int `toml:"max"`
}

// Duration is a time.Duration written as "10ms" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds every tunable of a pseudopoll System. Pool placement and
// chunk size are fixed once a System is built; PollInterval and LogLevel
// may be changed through ConfigStore.Update.
type Config struct {
	Epoll   PoolConfig `toml:"epoll"`
	Eventfd PoolConfig `toml:"eventfd"`
	Pipe    PoolConfig `toml:"pipe"`

	PollInterval   Duration `toml:"poll_interval"`    // sleep between readiness sweeps
	IdleBackoff    string   `toml:"idle_backoff"`     // "constant" or "exponential"
	PipeChunkSize  int      `toml:"pipe_chunk_size"`  // per-call transfer cap and pipe capacity
	PipeEdgeStatus bool     `toml:"pipe_edge_status"` // pipe status clears flags once reported
	LogLevel       string   `toml:"log_level"`        // logrus level; empty keeps the logger as is
}

// DefaultConfig returns the historical layout and timings.
func DefaultConfig() *Config {
	l := fdspace.DefaultLayout()
	return &Config{
		Epoll:         PoolConfig{Base: l.Epoll.Base, Max: l.Epoll.Max},
		Eventfd:       PoolConfig{Base: l.Eventfd.Base, Max: l.Eventfd.Max},
		Pipe:          PoolConfig{Base: l.Pipe.Base, Max: l.Pipe.Max},
		PollInterval:  Duration{spin.DefaultInterval},
		IdleBackoff:   string(spin.Constant),
		PipeChunkSize: 16 * 1024,
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig and validates it.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("control: load %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseConfig decodes TOML text on top of DefaultConfig and validates it.
func ParseConfig(data string) (*Config, error) {
	c := DefaultConfig()
	if _, err := toml.Decode(data, c); err != nil {
		return nil, fmt.Errorf("control: parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Layout converts the pool tables into a descriptor layout.
func (c *Config) Layout() fdspace.Layout {
	return fdspace.Layout{
		Epoll:   fdspace.Range{Base: c.Epoll.Base, Max: c.Epoll.Max},
		Eventfd: fdspace.Range{Base: c.Eventfd.Base, Max: c.Eventfd.Max},
		Pipe:    fdspace.Range{Base: c.Pipe.Base, Max: c.Pipe.Max},
	}
}

// Validate rejects layouts with overlapping or empty ranges and unknown
// strategy or level names.
func (c *Config) Validate() error {
	if err := c.Layout().Validate(); err != nil {
		return err
	}
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("control: poll_interval must be positive, got %v", c.PollInterval.Duration)
	}
	if _, err := spin.ParseStrategy(c.IdleBackoff); err != nil {
		return err
	}
	if c.PipeChunkSize <= 0 {
		return fmt.Errorf("control: pipe_chunk_size must be positive, got %d", c.PipeChunkSize)
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("control: %w", err)
		}
	}
	return nil
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// WriteTOML encodes c as TOML.
func (c *Config) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// ConfigStore holds the live configuration snapshot with listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)
}

// NewConfigStore initializes a store with a copy of cfg.
func NewConfigStore(cfg *Config) *ConfigStore {
	return &ConfigStore{config: cfg.Clone()}
}

// Snapshot returns a copy of the current configuration.
func (cs *ConfigStore) Snapshot() *Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config.Clone()
}

// Update applies fn to a copy of the configuration, validates it and, on
// success, publishes it and invokes every listener synchronously.
func (cs *ConfigStore) Update(fn func(*Config)) error {
	cs.mu.Lock()
	next := cs.config.Clone()
	fn(next)
	if err := next.Validate(); err != nil {
		cs.mu.Unlock()
		return err
	}
	if next.Layout() != cs.config.Layout() || next.PipeChunkSize != cs.config.PipeChunkSize ||
		next.IdleBackoff != cs.config.IdleBackoff || next.PipeEdgeStatus != cs.config.PipeEdgeStatus {
		cs.mu.Unlock()
		return fmt.Errorf("control: only poll_interval and log_level can change at runtime")
	}
	cs.config = next
	listeners := append([]func(*Config){}, cs.listeners...)
	cs.mu.Unlock()

	cs.dispatchReload(next, listeners)
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(*Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners.
func (cs *ConfigStore) dispatchReload(cfg *Config, listeners []func(*Config)) {
	for _, fn := range listeners {
		fn(cfg.Clone())
	}
}
