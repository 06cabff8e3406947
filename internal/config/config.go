// Package config resolves livetodo settings from defaults, a TOML file and
// LIVETODO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultBackendURL = "http://localhost:8000"
	DefaultWSURL      = "ws://localhost:8000/ws"
	DefaultAddr       = "0.0.0.0:8000"
	DefaultDatastarJS = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

	configFileName = "config.toml"
)

type Config struct {
	BackendURL string       `toml:"backend_url" json:"backend_url"`
	WSURL      string       `toml:"ws_url" json:"ws_url"`
	Log        LogConfig    `toml:"log" json:"log"`
	Server     ServerConfig `toml:"server" json:"server"`
}

type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	// File receives logs of interactive commands, which otherwise log nowhere.
	File string `toml:"file" json:"file"`
}

type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
	// DB is the SQLite path. Empty keeps todos in memory only.
	DB string `toml:"db" json:"db"`
	// User restricts the live query to one user's todos when >= 0.
	User int `toml:"user" json:"user"`
	// Pending drops completed todos from the live query.
	Pending    bool   `toml:"pending" json:"pending"`
	DatastarJS string `toml:"datastar_js" json:"datastar_js"`
}

func Defaults() Config {
	return Config{
		BackendURL: DefaultBackendURL,
		WSURL:      DefaultWSURL,
		Log:        LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Addr:       DefaultAddr,
			User:       -1,
			DatastarJS: DefaultDatastarJS,
		},
	}
}

// Dir is ~/.livetodo, or $LIVETODO_CONFIG_DIR when set.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv("LIVETODO_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".livetodo"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads path over the defaults, then applies the environment. An empty
// path means the default location; a missing default file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		p, err := Path()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			ApplyEnv(&cfg, os.LookupEnv)
			return cfg, nil
		}
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	ApplyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides cfg from LIVETODO_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("LIVETODO_BACKEND_URL", &cfg.BackendURL)
	set("LIVETODO_WS_URL", &cfg.WSURL)
	set("LIVETODO_LOG_LEVEL", &cfg.Log.Level)
	set("LIVETODO_LOG_FORMAT", &cfg.Log.Format)
	set("LIVETODO_LOG_FILE", &cfg.Log.File)
	set("LIVETODO_ADDR", &cfg.Server.Addr)
	set("LIVETODO_DB", &cfg.Server.DB)
}

// Validate checks the endpoint URLs.
func (c Config) Validate() error {
	if err := checkURL("backend_url", c.BackendURL, "http", "https"); err != nil {
		return err
	}
	return checkURL("ws_url", c.WSURL, "ws", "wss")
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: %q must be a %s URL", name, raw, strings.Join(schemes, "/"))
}
