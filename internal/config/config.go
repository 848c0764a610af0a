package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string such as "2s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Realtime       Realtime `toml:"realtime"`
	API            API      `toml:"api"`
	Chat           Chat     `toml:"chat"`
	Notify         Notify   `toml:"notify"`
	Metrics        Metrics  `toml:"metrics"`
}

type Realtime struct {
	URL                  string   `toml:"url"`
	ReconnectMaxAttempts int      `toml:"reconnect_max_attempts"`
	ReconnectMaxInterval Duration `toml:"reconnect_max_interval"`
	PingInterval         Duration `toml:"ping_interval"`
}

type API struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

type Chat struct {
	PageSize           int      `toml:"page_size"`
	TypingTTL          Duration `toml:"typing_ttl"`
	TypingIdle         Duration `toml:"typing_idle"`
	TypingEmitInterval Duration `toml:"typing_emit_interval"`
}

type Notify struct {
	Bell    bool     `toml:"bell"`
	Command []string `toml:"command"`
}

type Metrics struct {
	// Listen is the address of the /metrics endpoint; empty disables it.
	Listen string `toml:"listen"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.WithDefaults()
	return cfg
}

// WithDefaults fills zero values with the stock settings.
func (c *Config) WithDefaults() *Config {
	setDuration := func(d *Duration, v time.Duration) {
		if d.Duration <= 0 {
			d.Duration = v
		}
	}
	if c.Realtime.URL == "" {
		c.Realtime.URL = "ws://localhost:5000/ws"
	}
	if c.Realtime.ReconnectMaxAttempts <= 0 {
		c.Realtime.ReconnectMaxAttempts = 10
	}
	setDuration(&c.Realtime.ReconnectMaxInterval, 30*time.Second)
	setDuration(&c.Realtime.PingInterval, 25*time.Second)
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:5000"
	}
	setDuration(&c.API.Timeout, 15*time.Second)
	if c.Chat.PageSize <= 0 {
		c.Chat.PageSize = 30
	}
	setDuration(&c.Chat.TypingTTL, 2*time.Second)
	setDuration(&c.Chat.TypingIdle, 3*time.Second)
	setDuration(&c.Chat.TypingEmitInterval, time.Second)
	return c
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads path with defaults applied; a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg.WithDefaults(), nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
