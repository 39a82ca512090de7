/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads and validates FlyDB's runtime configuration
// from a TOML file, environment variables, and built-in defaults,
// with environment variables taking precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Environment variable names recognized by LoadFromEnv.
const (
	EnvPort              = "FLYDB_PORT"
	EnvRole              = "FLYDB_ROLE"
	EnvLogLevel          = "FLYDB_LOG_LEVEL"
	EnvLogJSON           = "FLYDB_LOG_JSON"
	EnvAdminPassword     = "FLYDB_ADMIN_PASSWORD"
	EnvNodeID            = "FLYDB_NODE_ID"
	EnvRaftBindAddr      = "FLYDB_RAFT_BIND_ADDR"
	EnvRaftAdvertiseAddr = "FLYDB_RAFT_ADVERTISE_ADDR"
	EnvRaftInit          = "FLYDB_RAFT_INIT"
	EnvRaftJoin          = "FLYDB_RAFT_JOIN"
	EnvRaftJoinAddr      = "FLYDB_RAFT_JOIN_ADDR"
	EnvRaftLogPath       = "FLYDB_RAFT_LOG_PATH"
	EnvRaftDataDir       = "FLYDB_RAFT_DATA_DIR"
)

// Config holds FlyDB's complete runtime configuration.
type Config struct {
	Port          int    `toml:"port"`
	BinaryPort    int    `toml:"binary_port"`
	ReplPort      int    `toml:"replication_port"`
	Role          string `toml:"role"`
	DBPath        string `toml:"db_path"`
	LogLevel      string `toml:"log_level"`
	LogJSON       bool   `toml:"log_json"`
	MasterAddr    string `toml:"master_addr,omitempty"`
	AdminPassword string `toml:"admin_password,omitempty"`
	ConfigFile    string `toml:"-"`

	// Raft coordination engine startup config (§6 of the spec).
	NodeID             uint64 `toml:"node_id,omitempty"`
	RaftBindAddr       string `toml:"raft_bind_addr,omitempty"`
	RaftAdvertiseAddr  string `toml:"raft_advertise_addr,omitempty"`
	RaftInit           bool   `toml:"raft_init,omitempty"`
	RaftJoin           bool   `toml:"raft_join,omitempty"`
	RaftJoinAddr       string `toml:"raft_join_addr,omitempty"`
	RaftLogPath        string `toml:"raft_log_path,omitempty"`
	RaftDataDir        string `toml:"raft_data_dir,omitempty"`
	RaftLogCompression string `toml:"raft_log_compression,omitempty"`
}

// DefaultConfig returns FlyDB's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:               8888,
		BinaryPort:         8889,
		ReplPort:           9999,
		Role:               "standalone",
		DBPath:             "flydb.wal",
		LogLevel:           "info",
		LogJSON:            false,
		RaftLogPath:        "",
		RaftDataDir:        "flydb-raft",
		RaftLogCompression: "none",
	}
}

var validRoles = map[string]bool{"standalone": true, "master": true, "slave": true}
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.BinaryPort != 0 {
		if c.BinaryPort <= 0 || c.BinaryPort > 65535 {
			return fmt.Errorf("invalid binary_port: %d", c.BinaryPort)
		}
		if c.BinaryPort == c.Port {
			return fmt.Errorf("binary_port conflicts with port: %d", c.Port)
		}
	}
	if c.ReplPort != 0 && (c.ReplPort <= 0 || c.ReplPort > 65535) {
		return fmt.Errorf("invalid replication_port: %d", c.ReplPort)
	}
	if !validRoles[c.Role] {
		return fmt.Errorf("invalid role: %s", c.Role)
	}
	if c.Role == "slave" && c.MasterAddr == "" {
		return fmt.Errorf("role 'slave' requires master_addr")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if c.RaftInit && c.RaftJoin {
		return fmt.Errorf("raft_init and raft_join are mutually exclusive")
	}
	if (c.RaftInit || c.RaftJoin) && c.NodeID == 0 {
		return fmt.Errorf("node_id is required when raft_init or raft_join is set")
	}
	return nil
}

// ToTOML renders the configuration as a TOML document.
func (c *Config) ToTOML() string {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return fmt.Sprintf("# error encoding config: %v\n", err)
	}
	return sb.String()
}

// SaveToFile writes the configuration to path as TOML, creating
// parent directories as needed.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(c.ToTOML()), 0644)
}

// String returns a human-readable summary of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Role: %s, Port: %d, BinaryPort: %d, ReplPort: %d, DBPath: %s, LogLevel: %s, LogJSON: %v}",
		c.Role, c.Port, c.BinaryPort, c.ReplPort, c.DBPath, c.LogLevel, c.LogJSON,
	)
}

// Manager owns the active configuration and notifies subscribers
// when it is reloaded.
type Manager struct {
	mu        sync.RWMutex
	cfg       *Config
	listeners []func(*Config)
}

// NewManager returns a Manager seeded with DefaultConfig.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig()}
}

// LoadFromFile parses a TOML configuration file and merges it onto
// the current configuration.
func (m *Manager) LoadFromFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.ConfigFile = path
	m.cfg = cfg
	return nil
}

// LoadFromEnv overrides the current configuration with any
// recognized environment variables that are set.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v := os.Getenv(EnvPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			m.cfg.Port = p
		}
	}
	if v := os.Getenv(EnvRole); v != "" {
		m.cfg.Role = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		m.cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			m.cfg.LogJSON = b
		}
	}
	if v := os.Getenv(EnvAdminPassword); v != "" {
		m.cfg.AdminPassword = v
	}
	if v := os.Getenv(EnvNodeID); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			m.cfg.NodeID = id
		}
	}
	if v := os.Getenv(EnvRaftBindAddr); v != "" {
		m.cfg.RaftBindAddr = v
	}
	if v := os.Getenv(EnvRaftAdvertiseAddr); v != "" {
		m.cfg.RaftAdvertiseAddr = v
	}
	if v := os.Getenv(EnvRaftInit); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			m.cfg.RaftInit = b
		}
	}
	if v := os.Getenv(EnvRaftJoin); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			m.cfg.RaftJoin = b
		}
	}
	if v := os.Getenv(EnvRaftJoinAddr); v != "" {
		m.cfg.RaftJoinAddr = v
	}
	if v := os.Getenv(EnvRaftLogPath); v != "" {
		m.cfg.RaftLogPath = v
	}
	if v := os.Getenv(EnvRaftDataDir); v != "" {
		m.cfg.RaftDataDir = v
	}
}

// Get returns the currently active configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// OnReload registers a callback invoked after every successful Reload.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Reload re-reads the configuration file previously passed to
// LoadFromFile and notifies registered listeners.
func (m *Manager) Reload() error {
	m.mu.RLock()
	path := m.cfg.ConfigFile
	m.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no config file to reload")
	}
	if err := m.LoadFromFile(path); err != nil {
		return err
	}

	m.mu.RLock()
	cfg := m.cfg
	listeners := append([]func(*Config){}, m.listeners...)
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

var (
	globalOnce sync.Once
	globalMgr  *Manager
)

// Global returns the process-wide configuration manager singleton.
func Global() *Manager {
	globalOnce.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}
