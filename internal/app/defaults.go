package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bumd-go/internal/config"
)

// GetDefaults returns application defaults for a storage root, checking
// environment variables first.
// Environment variables:
//   - BUMD_CONFIG_PATH: config file location (default: <storageRoot>/bumd.toml)
//   - BUMD_HOST: host name recorded for runs (default: short hostname)
func GetDefaults(storageRoot string) (map[string]string, error) {
	host, err := getHost()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": getConfigPath(storageRoot),
		"host":        host,
		"log_dir":     filepath.Join(storageRoot, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking BUMD_CONFIG_PATH env
// var first, then falling back to the storage root.
func getConfigPath(storageRoot string) string {
	if path := os.Getenv("BUMD_CONFIG_PATH"); path != "" {
		return path
	}
	return filepath.Join(storageRoot, config.FileName)
}

// getHost returns the host name, checking BUMD_HOST env var first, then
// the first label of the system hostname.
func getHost() (string, error) {
	if host := os.Getenv("BUMD_HOST"); host != "" {
		return host, nil
	}

	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("cannot determine hostname: %w", err)
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name, nil
}
