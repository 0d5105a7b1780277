// Package config loads wineserver's on-disk configuration, the ambient
// concern the teacher leaves to its callers but that a standalone server
// binary needs of its own: listener socket path, logging, and per-pipe
// defaults. Loaded with BurntSushi/toml, the TOML decoder already present
// in the retrieval pack's broader dependency set.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is wineserver's top-level configuration document.
type Config struct {
	Listen  ListenConfig  `toml:"listen"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	Pipes   PipeDefaults  `toml:"pipes"`
}

// ListenConfig describes the Unix domain socket the transport layer
// accepts RPC connections on.
type ListenConfig struct {
	SocketPath string `toml:"socket_path"`
}

// LogConfig controls logrus's output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// PipeDefaults holds the per-pipe defaults read from the [pipes] table.
// Nothing in this module applies them to CreateNamedPipe requests: a
// request's zero timeout and buffer sizes stay zero.
type PipeDefaults struct {
	DefaultTimeout time.Duration `toml:"-"`
	TimeoutMillis  int64         `toml:"default_timeout_ms"`
	InBufferSize   int           `toml:"default_in_buffer_size"`
	OutBufferSize  int           `toml:"default_out_buffer_size"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Listen: ListenConfig{SocketPath: "/run/wineserver/npserver.sock"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9121",
		},
		Pipes: PipeDefaults{
			TimeoutMillis: 50,
			InBufferSize:  4096,
			OutBufferSize: 4096,
		},
	}
}

// Load reads and decodes path, falling back to Default for any table the
// file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decoding config file %q", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("unrecognized config keys: %v", undecoded)
	}
	cfg.Pipes.DefaultTimeout = time.Duration(cfg.Pipes.TimeoutMillis) * time.Millisecond
	return cfg, nil
}
