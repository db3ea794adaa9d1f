package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// config carries everything the host reads from file, environment and defaults
type config struct {
	Topology string // topology document to load, the sample network when empty
	Sender   string
	Receiver string
	Payload  string
	Count    int
	Rate     float64 // sends per second of wall time, unlimited when not positive

	JitterMin     float64
	JitterMax     float64
	PacingSeconds float64
	Seed          uint64 // seeds a reproducible source when non-zero

	TopologyOut string
	LogOut      string

	MetricsAddr string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	LogLevel  string
	LogFormat string
}

// setDefaults installs the value of every key, so that AutomaticEnv sees them all
func setDefaults(v *viper.Viper) {
	v.SetDefault("topology", "")
	v.SetDefault("sender", "PC_Helsinki")
	v.SetDefault("receiver", "Palvelin_Berlin")
	v.SetDefault("payload", "hello")
	v.SetDefault("count", 10)
	v.SetDefault("rate", 0.0)
	v.SetDefault("jitter_min", 0.8)
	v.SetDefault("jitter_max", 1.2)
	v.SetDefault("pacing_seconds", 0.0)
	v.SetDefault("seed", 0)
	v.SetDefault("topology_out", "")
	v.SetDefault("log_out", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("neo4j_uri", "")
	v.SetDefault("neo4j_user", "")
	v.SetDefault("neo4j_password", "")
	v.SetDefault("neo4j_database", "neo4j")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// loadConfig reads the optional config file named by path, then lets
// NETSIM_-prefixed environment variables override it
func loadConfig(v *viper.Viper, path string) (config, error) {
	setDefaults(v)
	v.SetEnvPrefix("NETSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := config{
		Topology:      v.GetString("topology"),
		Sender:        v.GetString("sender"),
		Receiver:      v.GetString("receiver"),
		Payload:       v.GetString("payload"),
		Count:         v.GetInt("count"),
		Rate:          v.GetFloat64("rate"),
		JitterMin:     v.GetFloat64("jitter_min"),
		JitterMax:     v.GetFloat64("jitter_max"),
		PacingSeconds: v.GetFloat64("pacing_seconds"),
		Seed:          v.GetUint64("seed"),
		TopologyOut:   v.GetString("topology_out"),
		LogOut:        v.GetString("log_out"),
		MetricsAddr:   v.GetString("metrics_addr"),
		Neo4jURI:      v.GetString("neo4j_uri"),
		Neo4jUser:     v.GetString("neo4j_user"),
		Neo4jPassword: v.GetString("neo4j_password"),
		Neo4jDatabase: v.GetString("neo4j_database"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
	}
	if cfg.Count < 0 {
		return config{}, errors.New("count must not be negative")
	}
	return cfg, nil
}
