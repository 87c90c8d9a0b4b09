// Package config loads YAML configuration for the defaults scattered across
// pkg/transport, pkg/gossip, pkg/congestion, and pkg/multipath, so a single
// file can tune a node without recompiling it.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Connection holds pkg/transport.Connection defaults.
type Connection struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	MaxStreams       uint16        `yaml:"max_streams"`
	MaxData          uint32        `yaml:"max_data"`
	InitialWindow    uint32        `yaml:"initial_window"`
}

// Gossip holds pkg/gossip.Node defaults.
type Gossip struct {
	ActiveViewSize  int           `yaml:"active_view_size"`
	PassiveViewSize int           `yaml:"passive_view_size"`
	ARWL            int           `yaml:"arwl"`
	PRWL            int           `yaml:"prwl"`
	ShuffleLen      int           `yaml:"shuffle_len"`
	ShuffleInterval time.Duration `yaml:"shuffle_interval"`
	RequireSigned   bool          `yaml:"require_signed"`
}

// Congestion selects and tunes the congestion controller.
type Congestion struct {
	// Algorithm is one of "cubic", "bbr", "none".
	Algorithm string  `yaml:"algorithm"`
	CubicC    float64 `yaml:"cubic_c"`
	CubicBeta float64 `yaml:"cubic_beta"`
}

// Multipath holds pkg/multipath.Table defaults.
type Multipath struct {
	MaglevTableSize int `yaml:"maglev_table_size"`
}

// Config is the root configuration document. A zero-value Config is
// meaningless on its own; call Defaults() or Load to get one populated with
// the package defaults each subsystem already hardcodes.
type Config struct {
	Connection Connection `yaml:"connection"`
	Gossip     Gossip     `yaml:"gossip"`
	Congestion Congestion `yaml:"congestion"`
	Multipath  Multipath  `yaml:"multipath"`
}

// Defaults returns the Config matching every subsystem's own
// zero-value/default behavior, so that loading an empty or partial YAML
// document still yields a fully specified Config.
func Defaults() Config {
	return Config{
		Connection: Connection{
			HandshakeTimeout: 5 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxStreams:       1024,
			MaxData:          1 << 24,
			InitialWindow:    1 << 20,
		},
		Gossip: Gossip{
			ActiveViewSize:  5,
			PassiveViewSize: 30,
			ARWL:            6,
			PRWL:            3,
			ShuffleLen:      4,
			ShuffleInterval: 10 * time.Second,
		},
		Congestion: Congestion{
			Algorithm: "cubic",
			CubicC:    0.4,
			CubicBeta: 0.7,
		},
		Multipath: Multipath{
			MaglevTableSize: 5003,
		},
	}
}

// Load reads and parses a YAML config file at path, overlaying its values
// onto Defaults(). Fields absent from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse is like Load but reads from an already-in-memory YAML document,
// useful for tests and for embedding a default config as a []byte literal.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
