// Package config provides functionality for loading, saving, and managing
// application configuration settings.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// DefaultPath is where the client looks for its configuration file.
const DefaultPath = "./data/config.json"

// SplitBehavior selects where SplitNode places the new node.
type SplitBehavior string

const (
	SplitSibling SplitBehavior = "sibling"
	SplitChild   SplitBehavior = "child"
	SplitAuto    SplitBehavior = "auto"
)

// Behavior holds the per-user editing toggles consumed by the tree engine.
type Behavior struct {
	SplitBehavior  SplitBehavior `json:"split_behavior"`
	LogicalOutdent *bool         `json:"logical_outdent,omitempty"`
}

// Normalize maps unknown or missing values onto the documented defaults:
// split behaviour "auto" and logical outdent enabled.
func (b Behavior) Normalize() Behavior {
	switch b.SplitBehavior {
	case SplitSibling, SplitChild, SplitAuto:
	default:
		b.SplitBehavior = SplitAuto
	}
	if b.LogicalOutdent == nil {
		t := true
		b.LogicalOutdent = &t
	}
	return b
}

// Logical reports the effective logical-outdent mode.
func (b Behavior) Logical() bool {
	return b.LogicalOutdent == nil || *b.LogicalOutdent
}

// Duration is a time.Duration that reads and writes as a string such as "30s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return errors.Wrap(err, "duration must be a string or nanoseconds")
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// Config represents the configuration settings for the application.
type Config struct {
	DatabaseDir      string   `json:"database_dir"`
	DatabaseFile     string   `json:"database_file"`
	LogFolder        string   `json:"log_folder"`
	CommandLog       string   `json:"command_log"`
	ErrorLog         string   `json:"error_log"`
	HistoryFile      string   `json:"history_file"`
	DefaultUser      string   `json:"default_user"`
	RelayURL         string   `json:"relay_url"`
	ChannelPrefix    string   `json:"channel_prefix"`
	PresenceTimeout  Duration `json:"presence_timeout"`
	ResyncInterval   Duration `json:"resync_interval"`
	ReconnectTimeout Duration `json:"reconnect_timeout"`
	Behavior         Behavior `json:"behavior"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		DatabaseDir:      "./data",
		DatabaseFile:     "nestnote.db",
		LogFolder:        "./log",
		CommandLog:       "commands.log",
		ErrorLog:         "errors.log",
		HistoryFile:      "./data/history.txt",
		DefaultUser:      "guest",
		RelayURL:         "ws://127.0.0.1:8765",
		ChannelPrefix:    "nestnote",
		PresenceTimeout:  Duration(30 * time.Second),
		ReconnectTimeout: Duration(5 * time.Second),
		Behavior:         Behavior{SplitBehavior: SplitAuto}.Normalize(),
	}
}

// ConfigLoad loads the configuration from the JSON file at path.
// If the file doesn't exist, it creates a default configuration.
func ConfigLoad(path string) (*Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create config directory")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := ConfigSave(path, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
		return cfg, nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	// Missing keys keep their defaults.
	cfg := Default()
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}
	cfg.Behavior = cfg.Behavior.Normalize()
	return cfg, nil
}

// ConfigSave saves the provided configuration to the JSON file at path.
func ConfigSave(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}
	return nil
}

// DatabasePath joins the database directory and file name.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DatabaseDir, c.DatabaseFile)
}

// Channel returns the relay channel name for a document.
func (c *Config) Channel(docID string) string {
	if c.ChannelPrefix == "" {
		return docID
	}
	return c.ChannelPrefix + "-" + docID
}
