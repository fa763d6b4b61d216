package app

import (
	"errors"
	"net/http"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home         string `toml:"-"`             // config directory, e.g. $HOME/.chatsecure
	DirectoryURL string `toml:"directory_url"` // e.g. http://127.0.0.1:5000
	RealtimeURL  string `toml:"realtime_url"`  // e.g. ws://127.0.0.1:5000/ws
	LogFile      string `toml:"log_file"`      // empty means stderr
	LogLevel     string `toml:"log_level"`     // ERROR..DEBUG

	// Passphrase optionally wraps the persisted private key; never read
	// from the config file.
	Passphrase string `toml:"-"`

	// HTTP is optional; defaults to http.DefaultClient.
	HTTP *http.Client `toml:"-"`
}

// DefaultConfig returns the built-in defaults for a local dev server.
func DefaultConfig() Config {
	return Config{
		DirectoryURL: "http://127.0.0.1:5000",
		RealtimeURL:  "ws://127.0.0.1:5000/ws",
		LogLevel:     "INFO",
	}
}

// LoadConfig overlays the TOML file at path, when it exists, onto cfg.
func LoadConfig(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return toml.Unmarshal(b, cfg)
}
