package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical panel defaults file.
// This is the single source of truth for all default panel values.
const DefaultConfigPath = "config/panel.defaults.json"

// PanelConfig represents the root configuration for the control panel.
// The schema matches the /api/status response so the same JSON can be used
// for both startup configuration and operator inspection.
type PanelConfig struct {
	// HTTP params
	ListenAddr *string `json:"listen_addr,omitempty"`

	// Polling params
	PollInterval *string `json:"poll_interval,omitempty"` // duration string like "1s"
	PowerOn      *bool   `json:"power_on,omitempty"`

	// Serial transport params
	SerialPath *string `json:"serial_path,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty"`

	// Audit store params
	AuditDBPath   *string `json:"audit_db_path,omitempty"`
	MigrationsDir *string `json:"migrations_dir,omitempty"`

	// Simulator params
	SimIntegrationMicros *int64 `json:"sim_integration_micros,omitempty"`
	SimSeed              *int64 `json:"sim_seed,omitempty"`
}

// EmptyPanelConfig returns a PanelConfig with all fields set to nil.
// Use LoadPanelConfig to load actual values from the defaults file.
func EmptyPanelConfig() *PanelConfig {
	return &PanelConfig{}
}

// LoadPanelConfig loads a PanelConfig from a JSON file. The file is validated
// to ensure it has a .json extension and is under the max file size. Fields
// omitted from the JSON file retain their default values, so partial configs
// are safe.
func LoadPanelConfig(path string) (*PanelConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyPanelConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *PanelConfig) Validate() error {
	if c.PollInterval != nil && *c.PollInterval != "" {
		if _, err := time.ParseDuration(*c.PollInterval); err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *c.PollInterval, err)
		}
	}

	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	if c.SimIntegrationMicros != nil && *c.SimIntegrationMicros < 0 {
		return fmt.Errorf("sim_integration_micros must be non-negative, got %d", *c.SimIntegrationMicros)
	}

	return nil
}

// GetListenAddr returns the listen_addr value or the default.
func (c *PanelConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8080"
	}
	return *c.ListenAddr
}

// GetPollInterval parses and returns the PollInterval as a time.Duration.
func (c *PanelConfig) GetPollInterval() time.Duration {
	if c.PollInterval == nil || *c.PollInterval == "" {
		return time.Second // default: one read per second
	}
	d, err := time.ParseDuration(*c.PollInterval)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetPowerOn returns the power_on value or the default.
func (c *PanelConfig) GetPowerOn() bool {
	if c.PowerOn == nil {
		return false // default: operator turns the panel on
	}
	return *c.PowerOn
}

// GetSerialPath returns the serial_path value or the default.
func (c *PanelConfig) GetSerialPath() string {
	if c.SerialPath == nil || *c.SerialPath == "" {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPath
}

// GetBaudRate returns the baud_rate value or the default.
func (c *PanelConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

// GetDataBits returns the data_bits value or the default.
func (c *PanelConfig) GetDataBits() int {
	if c.DataBits == nil {
		return 8
	}
	return *c.DataBits
}

// GetStopBits returns the stop_bits value or the default.
func (c *PanelConfig) GetStopBits() int {
	if c.StopBits == nil {
		return 1
	}
	return *c.StopBits
}

// GetParity returns the parity value or the default.
func (c *PanelConfig) GetParity() string {
	if c.Parity == nil || *c.Parity == "" {
		return "N"
	}
	return *c.Parity
}

// GetAuditDBPath returns the audit_db_path value or the default.
func (c *PanelConfig) GetAuditDBPath() string {
	if c.AuditDBPath == nil || *c.AuditDBPath == "" {
		return "panel_audit.db"
	}
	return *c.AuditDBPath
}

// GetMigrationsDir returns the migrations_dir value or the default.
func (c *PanelConfig) GetMigrationsDir() string {
	if c.MigrationsDir == nil || *c.MigrationsDir == "" {
		return "migrations"
	}
	return *c.MigrationsDir
}

// GetSimIntegrationMicros returns the sim_integration_micros value or the default.
func (c *PanelConfig) GetSimIntegrationMicros() int64 {
	if c.SimIntegrationMicros == nil {
		return 1000
	}
	return *c.SimIntegrationMicros
}

// GetSimSeed returns the sim_seed value or the default.
func (c *PanelConfig) GetSimSeed() int64 {
	if c.SimSeed == nil {
		return 0 // 0 selects a time-based seed
	}
	return *c.SimSeed
}
