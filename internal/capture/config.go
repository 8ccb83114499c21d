package capture

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration for TOML string parsing ("10s", "500ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	return nil
}

// Config is the static, file-backed half of configuration — things that
// only make sense at process startup (where the database lives, where
// the socket listens). Feature toggles and cadence knobs live in the
// dynamic overlay (see Overlay) since those are meant to change at
// runtime without a restart.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Socket  SocketConfig  `toml:"socket"`
	Metrics MetricsConfig `toml:"metrics"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

type SocketConfig struct {
	Path string `toml:"path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// LoadConfig reads and validates the static config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "/var/lib/provenanced/provenance.db"
	}
	if cfg.Socket.Path == "" {
		cfg.Socket.Path = "/run/provenanced/provenanced.sock"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "127.0.0.1:9477"
	}
}

func validate(cfg *Config) error {
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if cfg.Socket.Path == "" {
		return fmt.Errorf("socket.path must not be empty")
	}
	return nil
}

// Default values for the dynamic configuration surface.
const (
	defaultClipboardEnabled     = true
	defaultBrowseEnabled        = true
	defaultSearchEnabled        = true
	defaultAIExchangeEnabled    = true
	defaultSourceLinkingEnabled = true
	defaultFlushIntervalSecs    = 30
	defaultClipboardPollMs      = 500
)

// Recognised dynamic configuration keys, persisted in capture_config.
const (
	KeyClipboardEnabled     = "clipboard_enabled"
	KeyBrowseEnabled        = "browse_enabled"
	KeySearchEnabled        = "search_enabled"
	KeyAIExchangeEnabled    = "ai_exchange_enabled"
	KeySourceLinkingEnabled = "source_linking_enabled"
	KeyFlushIntervalSecs    = "flush_interval_secs"
	KeyClipboardPollMs      = "clipboard_poll_ms"
)

// Overlay is the dynamic, DB-backed half of configuration: feature
// toggles and cadence hints that take effect on the sampler's and
// flusher's very next tick, with no restart required. It is safe for
// concurrent use; an in-memory cache is kept so every read doesn't hit
// the database.
type Overlay struct {
	mu     sync.RWMutex
	values map[string]string
	store  *Store
}

// NewOverlay loads the current persisted overlay (if any) into memory.
func NewOverlay(ctx context.Context, store *Store) (*Overlay, error) {
	values, err := store.LoadConfigOverlay(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config overlay: %w", err)
	}
	return &Overlay{values: values, store: store}, nil
}

// Set persists a key/value pair and updates the in-memory cache.
func (o *Overlay) Set(ctx context.Context, key, value string) error {
	if err := o.store.SetConfigValue(ctx, key, value); err != nil {
		return err
	}
	o.mu.Lock()
	o.values[key] = value
	o.mu.Unlock()
	return nil
}

func (o *Overlay) boolOr(key string, def bool) bool {
	o.mu.RLock()
	v, ok := o.values[key]
	o.mu.RUnlock()
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (o *Overlay) uintOr(key string, def uint32) uint32 {
	o.mu.RLock()
	v, ok := o.values[key]
	o.mu.RUnlock()
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}

func (o *Overlay) ClipboardEnabled() bool { return o.boolOr(KeyClipboardEnabled, defaultClipboardEnabled) }
func (o *Overlay) BrowseEnabled() bool    { return o.boolOr(KeyBrowseEnabled, defaultBrowseEnabled) }
func (o *Overlay) SearchEnabled() bool    { return o.boolOr(KeySearchEnabled, defaultSearchEnabled) }
func (o *Overlay) AIExchangeEnabled() bool {
	return o.boolOr(KeyAIExchangeEnabled, defaultAIExchangeEnabled)
}
func (o *Overlay) SourceLinkingEnabled() bool {
	return o.boolOr(KeySourceLinkingEnabled, defaultSourceLinkingEnabled)
}

func (o *Overlay) FlushInterval() time.Duration {
	return time.Duration(o.uintOr(KeyFlushIntervalSecs, defaultFlushIntervalSecs)) * time.Second
}

// ClipboardPollInterval satisfies ClipboardConfig.
func (o *Overlay) ClipboardPollInterval() time.Duration {
	return time.Duration(o.uintOr(KeyClipboardPollMs, defaultClipboardPollMs)) * time.Millisecond
}
