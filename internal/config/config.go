// Package config loads the relay server configuration from a TOML file with
// a defaults overlay.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Server is the runtime configuration of the relay server.
type Server struct {
	ListenAddr     string
	DBPath         string
	LogLevel       string
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MinBatchWindow time.Duration
	MaxBatchWindow time.Duration
	AuthTimeout    time.Duration
	HistorySize    int
}

// Default returns the configuration used when no file or key is provided.
func Default() Server {
	return Server{
		ListenAddr:     ":8080",
		DBPath:         "data/tokens.db",
		LogLevel:       "info",
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		MinBatchWindow: 20 * time.Millisecond,
		AuthTimeout:    10 * time.Second,
		HistorySize:    64,
	}
}

// fileConfig is the TOML key mapping; durations are in milliseconds.
type fileConfig struct {
	ListenAddr       string `toml:"listen_addr"`
	DBPath           string `toml:"db_path"`
	LogLevel         string `toml:"log_level"`
	PingIntervalMS   int64  `toml:"ping_interval_ms"`
	PongTimeoutMS    int64  `toml:"pong_timeout_ms"`
	MinBatchWindowMS int64  `toml:"min_batch_window_ms"`
	MaxBatchWindowMS int64  `toml:"max_batch_window_ms"`
	AuthTimeoutMS    int64  `toml:"auth_timeout_ms"`
	HistorySize      int    `toml:"history_size"`
}

// Load reads a TOML config file, overlaying defined keys on the defaults.
func Load(path string) (Server, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Server{}, errors.Wrap(err, "load server config failed")
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("db_path") {
		cfg.DBPath = strings.TrimSpace(raw.DBPath)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("ping_interval_ms") {
		cfg.PingInterval = time.Duration(raw.PingIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("pong_timeout_ms") {
		cfg.PongTimeout = time.Duration(raw.PongTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("min_batch_window_ms") {
		cfg.MinBatchWindow = time.Duration(raw.MinBatchWindowMS) * time.Millisecond
	}
	if meta.IsDefined("max_batch_window_ms") {
		cfg.MaxBatchWindow = time.Duration(raw.MaxBatchWindowMS) * time.Millisecond
	}
	if meta.IsDefined("auth_timeout_ms") {
		cfg.AuthTimeout = time.Duration(raw.AuthTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("history_size") {
		cfg.HistorySize = raw.HistorySize
	}

	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.PingInterval <= 0 || c.PongTimeout <= 0 {
		return errors.New("heartbeat intervals must be positive")
	}
	if c.AuthTimeout <= 0 {
		return errors.New("auth_timeout_ms must be positive")
	}
	return nil
}
