package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ServerConfig defines the TCP endpoint the bridge binds. The bridge refuses
// non-loopback addresses; the config layer only checks shape.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// BridgeConfig tunes the wire and dispatch limits.
type BridgeConfig struct {
	// MaxFrameBytes caps a single wire payload.
	MaxFrameBytes int `toml:"maxFrameBytes"`
	// TickBudget limits commands dispatched per host tick; 0 drains fully.
	// Both queues are unbounded, so leaving this at 0 trades bounded latency
	// for unbounded memory under a slow peer.
	TickBudget int `toml:"tickBudget"`
	// TickRate is the simulated host frame rate in Hz for cmd/s1mcpd.
	TickRate int `toml:"tickRate"`
}

// JournalConfig defines the SQLite command journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"dbPath"`
}

// GameConfig points at host-side collaborators.
type GameConfig struct {
	ServerName string `toml:"serverName"`
	LogPath    string `toml:"logPath"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	FilePath    string `toml:"filePath"`
	FileMaxSize int    `toml:"fileMaxSizeMB"`
}

// Config aggregates the daemon configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Bridge  BridgeConfig  `toml:"bridge"`
	Journal JournalConfig `toml:"journal"`
	Game    GameConfig    `toml:"game"`
	Logging LoggingConfig `toml:"logging"`
}

// Default returns the configuration used when no file is present, matching
// the endpoint the original mod listened on.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a TOML config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Bridge.TickRate == 0 {
		cfg.Bridge.TickRate = 50
	}
	if cfg.Game.ServerName == "" {
		cfg.Game.ServerName = "S1MCPServer"
	}
}

func (cfg *Config) validate() error {
	cfg.applyDefaults()
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Bridge.MaxFrameBytes < 0 {
		return fmt.Errorf("bridge.maxFrameBytes must be >= 0")
	}
	if cfg.Bridge.TickBudget < 0 {
		return fmt.Errorf("bridge.tickBudget must be >= 0")
	}
	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		return fmt.Errorf("journal.dbPath required when journal.enabled")
	}
	return nil
}
