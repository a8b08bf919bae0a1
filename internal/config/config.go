package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the static engine configuration for molt. Mutable
// update preferences (repository, token, check interval) live in the
// settings record, not here, so that this file never needs rewriting at
// runtime.
type Config struct {
	InstallDir string `toml:"install_dir"`
	BaseDir    string `toml:"base_dir"`
	LogDir     string `toml:"log_dir"`

	// InitialVersion seeds the manifest when the installation has never
	// been inventoried. Installers normally stamp this.
	InitialVersion string `toml:"initial_version,omitempty"`

	Registry   RegistryConfig   `toml:"registry"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Host       HostConfig       `toml:"host"`
	Relaunch   RelaunchConfig   `toml:"relaunch"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// RegistryConfig selects and parameterizes the release registry backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RegistryConfig struct {
	Type string `toml:"type"` // "http" or "s3"

	// HTTP-specific fields (only used when Type == "http")
	BaseURL string `toml:"base_url,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // custom endpoint for S3-compatible stores
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig selects how release archives are decrypted.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type EncryptionConfig struct {
	Type         string `toml:"type"`                    // "none" (default), "age", or "test"
	IdentityPath string `toml:"identity_path,omitempty"` // only used for type=age
}

// DatabaseConfig represents configuration for the attempt-history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// HostConfig describes how to find the running host application.
type HostConfig struct {
	// PIDFile is read when no PID is passed on the command line.
	PIDFile string `toml:"pid_file,omitempty"`
	// ExitTimeoutSeconds bounds the cooperative-shutdown wait.
	ExitTimeoutSeconds int `toml:"exit_timeout_seconds,omitempty"`
}

// RelaunchConfig names the executable started after a successful swap.
type RelaunchConfig struct {
	// Command is resolved relative to install_dir unless absolute.
	// Empty disables relaunching.
	Command string   `toml:"command,omitempty"`
	Args    []string `toml:"args,omitempty"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	// Ignore patterns are excluded from manifest computation, in
	// addition to any .moltignore file in the installation root.
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a new Config with the provided directories and
// default sub-configurations.
func NewConfig(installDir, baseDir string) *Config {
	return &Config{
		InstallDir: installDir,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Registry: RegistryConfig{
			Type: "http",
		},
		Encryption: EncryptionConfig{
			Type:         "none",
			IdentityPath: filepath.Join(baseDir, "keys", "molt.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: baseDir,
		},
	}
}

// ManifestPath returns where the local manifest lives.
func (c *Config) ManifestPath() string { return filepath.Join(c.BaseDir, "manifest.json") }

// SettingsPath returns where the update settings record lives.
func (c *Config) SettingsPath() string { return filepath.Join(c.BaseDir, "settings.toml") }

// StagingDir returns the root under which attempts stage downloads.
func (c *Config) StagingDir() string { return filepath.Join(c.BaseDir, "staging") }

// BackupRoot returns the root under which attempts create backup
// directories.
func (c *Config) BackupRoot() string { return filepath.Join(c.BaseDir, "backups") }

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
