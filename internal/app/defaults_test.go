package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("BUMD_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("BUMD_HOST", "custom-host")

		defaults, err := GetDefaults("/store")
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["host"] != "custom-host" {
			t.Errorf("host = %q, want %q", defaults["host"], "custom-host")
		}
		if defaults["log_dir"] != "/store/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/store/log")
		}
	})

	t.Run("falls back to storage root and hostname", func(t *testing.T) {
		t.Setenv("BUMD_CONFIG_PATH", "")
		t.Setenv("BUMD_HOST", "")

		defaults, err := GetDefaults("/store")
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if want := filepath.Join("/store", "bumd.toml"); defaults["config_path"] != want {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], want)
		}

		hostname, _ := os.Hostname()
		if !strings.HasPrefix(hostname, defaults["host"]) || strings.Contains(defaults["host"], ".") {
			t.Errorf("host = %q, want short form of %q", defaults["host"], hostname)
		}
	})
}
