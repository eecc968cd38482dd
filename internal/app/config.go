package app

import (
	"os"
	"path/filepath"
)

// ServerConfig holds the API listener settings.
type ServerConfig struct {
	// ListenAddr is the HTTP listen address for the API server (the CLI runs
	// audits in-process and does not require the network).
	ListenAddr string
}

// Config contains the runtime options shared by the CLI and the server.
type Config struct {
	ServerCfg ServerConfig

	// StorageRoot is the directory holding the run database. A leading "~"
	// expands to the user's home directory.
	StorageRoot string

	// MaxConcurrency bounds how many audits evaluate at once.
	MaxConcurrency int

	// DefaultLogFormat is used when a request does not name one: auto|devtools|har.
	DefaultLogFormat string
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerCfg: ServerConfig{
			ListenAddr: ":8080",
		},
		StorageRoot:      "~/.config/netaudit",
		MaxConcurrency:   4,
		DefaultLogFormat: "auto",
	}
}

// StorePath returns the run database location under StorageRoot.
func (c *Config) StorePath() (string, error) {
	root, err := ExpandPath(c.StorageRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "runs.db"), nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
