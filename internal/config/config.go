// Package config loads the agent's merged configuration: an on-disk file
// (INI/TOML-flavored in the field, modeled here as nested YAML sections;
// flat dotted keys are not read) with environment-variable expansion and a repo-local
// .env override, the way the teacher's internal/config package loads
// DocBuilder's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the agent's merged runtime configuration (§6).
type Config struct {
	Pacman    PacmanConfig    `yaml:"pacman"`
	Provision ProvisionConfig `yaml:"provision"`
	Bootloader BootloaderConfig `yaml:"bootloader"`
	TLS       TLSConfig       `yaml:"tls"`
	Daemon    DaemonConfig    `yaml:"daemon"`
}

// PacmanConfig mirrors the `pacman.*` key namespace.
type PacmanConfig struct {
	Sysroot               string   `yaml:"sysroot"`
	OstreeServer          string   `yaml:"ostree_server"`
	Tags                  []string `yaml:"tags"`
	SysrootStorageWatermark string `yaml:"sysroot_storage_watermark"`
}

// ProvisionConfig mirrors the `provision.*` key namespace.
type ProvisionConfig struct {
	PrimaryECUHardwareID string   `yaml:"primary_ecu_hardware_id"`
	SecondaryECUs        []string `yaml:"secondary_ecu_hardware_ids"`
}

// BootloaderConfig mirrors bootloader-gating configuration.
type BootloaderConfig struct {
	UpdateBlocker string `yaml:"bootupgrade_available_blocker"`
}

// TLSConfig mirrors the `tls.*` key namespace: the signed-metadata server.
type TLSConfig struct {
	Server string `yaml:"server"`
}

// DaemonConfig configures the [SUPPLEMENTED] daemon wrapper (SPEC_FULL.md §6).
type DaemonConfig struct {
	PollingSec  int    `yaml:"polling_sec"`
	AutoInstall bool   `yaml:"auto_install"`
	MetricsAddr string `yaml:"metrics_addr"`
}

const (
	defaultWatermark       = 90
	minWatermark           = 50
	maxWatermark           = 95
	defaultPollingSec      = 300
)

// Load reads and decodes the configuration file at path, applying a repo
// .env override and environment-variable expansion the way
// cmd/docbuilder's config.Load does, then normalizes defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "note: .env not loaded: %v\n", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// loadDotEnv loads a repo-local .env file if present; its absence is not an
// error, matching the teacher's loadEnvFile behavior.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

func applyDefaults(cfg *Config) {
	if cfg.Daemon.PollingSec <= 0 {
		cfg.Daemon.PollingSec = defaultPollingSec
	}
}

// Truthy implements the §6 rule: after trimming whitespace, any string other
// than "", "0" and "false" is truthy.
func Truthy(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != "0" && s != "false"
}

// UpdateBlockEnabled reports whether bootupgrade_available_blocker is set to
// a truthy value.
func (c *Config) UpdateBlockEnabled() bool {
	return Truthy(c.Bootloader.UpdateBlocker)
}

// Watermark parses `pacman.sysroot_storage_watermark`, clamping out-of-range
// values into [50, 95] and falling back to the default (90) on parse error,
// per §4.E. logWarn is called with a human-readable message whenever the
// configured value had to be adjusted; pass a no-op to ignore.
func (c *Config) Watermark(logWarn func(string)) int {
	raw := strings.TrimSpace(c.Pacman.SysrootStorageWatermark)
	if raw == "" {
		return defaultWatermark
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		if logWarn != nil {
			logWarn(fmt.Sprintf("sysroot_storage_watermark %q is not an integer, using default %d", raw, defaultWatermark))
		}
		return defaultWatermark
	}
	if v < minWatermark {
		if logWarn != nil {
			logWarn(fmt.Sprintf("sysroot_storage_watermark %d below minimum, clamped to %d", v, minWatermark))
		}
		return minWatermark
	}
	if v > maxWatermark {
		if logWarn != nil {
			logWarn(fmt.Sprintf("sysroot_storage_watermark %d above maximum, clamped to %d", v, maxWatermark))
		}
		return maxWatermark
	}
	return v
}
