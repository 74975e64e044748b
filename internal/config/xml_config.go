// Package config provides XML-based configuration management for air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ict-report/backend/internal/parser"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"ICTReportConverter"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Converter configuration
	Converter ConverterConfig `xml:"Converter"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing"`

	// Drop-folder watcher
	Watch WatchConfig `xml:"Watch"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	ReportDatabase   string `xml:"ReportDatabase"`
}

// ConverterConfig holds the converter arguments and the tester's time zone
type ConverterConfig struct {
	PartNumber string `xml:"PartNumber"`
	// ArgumentsFile is an optional YAML file with further converter arguments.
	ArgumentsFile string `xml:"ArgumentsFile"`
	// TimeZone is an IANA zone name; empty means the host's local zone.
	TimeZone string `xml:"TimeZone"`
}

// ProcessingConfig contains import session settings
type ProcessingConfig struct {
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
}

// WatchConfig configures the drop-folder importer
type WatchConfig struct {
	Enabled   bool   `xml:"Enabled"`
	Directory string `xml:"Directory"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	DuckDBThreads           int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit       string `xml:"DuckDBMemoryLimit"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "512M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			ReportDatabase:   "./data/reports.duckdb",
		},
		Converter: ConverterConfig{
			PartNumber: parser.DefaultArguments().PartNumber(),
		},
		Processing: ProcessingConfig{
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
		},
		Watch: WatchConfig{
			Enabled:   false,
			Directory: "./data/inbox",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			DuckDBThreads:           4,
			DuckDBMemoryLimit:       "1GB",
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- ICT Report Converter Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves every storage path that still lives under the default data directory
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.ReportDatabase = filepath.Join(dataDir, "reports.duckdb")
	}

	if pn := os.Getenv("ICT_PART_NUMBER"); pn != "" {
		c.Converter.PartNumber = pn
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.ReportDatabase,
		&c.Watch.Directory,
		&c.Converter.ArgumentsFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// ConverterArguments builds the converter arguments: defaults, then the YAML
// arguments file, then the configured part number.
func (c *AppConfig) ConverterArguments() (parser.Arguments, error) {
	args := parser.DefaultArguments()
	if c.Converter.ArgumentsFile != "" {
		fileArgs, err := parser.LoadArguments(c.Converter.ArgumentsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load converter arguments: %w", err)
		}
		args = args.Merge(fileArgs)
	}
	return args.Merge(parser.Arguments{parser.ArgPartNumber: c.Converter.PartNumber}), nil
}

// Location returns the tester's time zone.
func (c *AppConfig) Location() (*time.Location, error) {
	if c.Converter.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Converter.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", c.Converter.TimeZone, err)
	}
	return loc, nil
}

// CleanupInterval returns how often finished import sessions are pruned.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Processing.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// SessionTimeout returns how long finished import sessions are kept.
func (c *AppConfig) SessionTimeout() time.Duration {
	if c.Processing.SessionTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		filepath.Dir(c.Storage.ReportDatabase),
	}
	if c.Watch.Enabled {
		dirs = append(dirs, c.Watch.Directory)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
