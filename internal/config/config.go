package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the optional config file inside a storage root.
const FileName = "bumd.toml"

// Config represents the configuration for one storage root.
type Config struct {
	Host       string           `toml:"host"`
	SourceBase string           `toml:"source_base,omitempty"`
	Database   DatabaseConfig   `toml:"database"`
	Repository RepositoryConfig `toml:"repository"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Backup     BackupConfig     `toml:"backup"`
	Restore    RestoreConfig    `toml:"restore"`
	Log        LogConfig        `toml:"log"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// RepositoryConfig represents configuration for the content repository.
type RepositoryConfig struct {
	Type string `toml:"type"`           // "filesystem" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=filesystem
	Hash string `toml:"hash,omitempty"` // "sha256" (default) or "blake3"
}

// FilesystemConfig holds source walk settings.
type FilesystemConfig struct {
	Exclude []string `toml:"exclude"`
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	BatchSize int `toml:"batch_size"` // records committed per metadata batch
}

// RestoreConfig holds restore settings.
type RestoreConfig struct {
	Workers int `toml:"workers"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Dir        string `toml:"dir,omitempty"`
	Level      string `toml:"level,omitempty"` // "debug", "info", "warn" or "error"
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// NewConfig creates a Config for host with every default filled in for
// storageRoot.
func NewConfig(host, storageRoot string) *Config {
	cfg := &Config{Host: host}
	cfg.Resolve(storageRoot)
	return cfg
}

// Resolve fills unset fields with defaults and anchors relative paths at
// storageRoot. The database defaults to <storageRoot>/<host>.db and gets a
// ".db" suffix when it has none. The repository defaults to
// <storageRoot>/repository.
func (c *Config) Resolve(storageRoot string) {
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" {
		c.Database.Path = DatabasePath(storageRoot, c.Database.Path, c.Host)
	}

	if c.Repository.Type == "" {
		c.Repository.Type = "filesystem"
	}
	if c.Repository.Type == "filesystem" {
		c.Repository.Path = RepositoryPath(storageRoot, c.Repository.Path)
	}
	if c.Repository.Hash == "" {
		c.Repository.Hash = "sha256"
	}

	if c.Backup.BatchSize <= 0 {
		c.Backup.BatchSize = 1000
	}

	if c.Restore.Workers <= 0 {
		c.Restore.Workers = 4
	}

	if c.Log.Dir == "" {
		c.Log.Dir = filepath.Join(storageRoot, "log")
	} else if !filepath.IsAbs(c.Log.Dir) {
		c.Log.Dir = filepath.Join(storageRoot, c.Log.Dir)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 90
	}
}

// DatabasePath applies the metadata database naming rules. An empty name
// uses the host, an absolute name is kept and a relative one is placed in
// storageRoot. ".db" is appended when missing.
func DatabasePath(storageRoot, name, host string) string {
	if name == "" {
		name = host
	}
	if !strings.HasSuffix(name, ".db") {
		name += ".db"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(storageRoot, name)
}

// RepositoryPath returns the repository location. Relative overrides are
// placed in storageRoot.
func RepositoryPath(storageRoot, override string) string {
	if override == "" {
		return filepath.Join(storageRoot, "repository")
	}
	if filepath.IsAbs(override) {
		return override
	}
	return filepath.Join(storageRoot, override)
}

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

// Load reads the config at path when it exists and returns an empty Config
// otherwise. Any other error is returned.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}
	return ReadFromFile(path)
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
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
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
