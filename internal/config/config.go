// Package config loads roseline.toml from the directory of the running
// executable. Every section is optional; missing values fall back to
// defaults that run the bot against the public VNDB service with a
// local database file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the config file looked up next to the executable.
const FileName = "roseline.toml"

type Store struct {
	// Path is the sqlite database file. Relative paths resolve against
	// the executable directory.
	Path string `toml:"path"`
	// Workers is the size of the store worker pool.
	Workers int `toml:"workers"`
}

type VNDB struct {
	// Addr is the host:port of the VNDB TCP API.
	Addr string `toml:"addr"`
}

type Web struct {
	// Addr is the listen address of the admin web UI. Empty disables it.
	Addr string `toml:"addr"`
	// Secret signs admin tokens. Empty leaves mutating routes open.
	Secret string `toml:"secret"`
}

type Console struct {
	// Addr is the listen address of the line-based console transport.
	// Empty disables it.
	Addr string `toml:"addr"`
}

type IRC struct {
	Server   string   `toml:"server"`
	Nick     string   `toml:"nick"`
	Channels []string `toml:"channels"`
}

type Discord struct {
	// TokenFile holds the bot token, one line. Relative paths resolve
	// against the executable directory.
	TokenFile string `toml:"token_file"`
}

type Config struct {
	Store   Store   `toml:"store"`
	VNDB    VNDB    `toml:"vndb"`
	Web     Web     `toml:"web"`
	Console Console `toml:"console"`
	IRC     IRC     `toml:"irc"`
	Discord Discord `toml:"discord"`

	// dir is where relative paths resolve, normally the executable
	// directory.
	dir string
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Store: Store{Path: "roseline.db", Workers: 4},
		VNDB:  VNDB{Addr: "api.vndb.org:19535"},
	}
}

// Load reads roseline.toml from the executable's directory. A missing
// file is not an error; a malformed one is.
func Load() (Config, error) {
	exe, err := os.Executable()
	if err != nil {
		return Config{}, fmt.Errorf("locate executable: %w", err)
	}
	return LoadFile(filepath.Join(filepath.Dir(exe), FileName))
}

// LoadFile reads the named config file, applying defaults for anything
// it does not set.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	cfg.dir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Store.Workers < 1 {
		return fmt.Errorf("store.workers must be at least 1, got %d", c.Store.Workers)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.VNDB.Addr == "" {
		return fmt.Errorf("vndb.addr must not be empty")
	}
	return nil
}

// StorePath is the resolved sqlite file path.
func (c Config) StorePath() string {
	return c.resolve(c.Store.Path)
}

// DiscordToken loads the token from the configured file. Returns empty
// when no token file is configured.
func (c Config) DiscordToken() (string, error) {
	if c.Discord.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.resolve(c.Discord.TokenFile))
	if err != nil {
		return "", fmt.Errorf("read discord token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (c Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}
