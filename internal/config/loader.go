package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// configBasename is the file the search looks for, always with an
// explicit .yaml or .yml extension. Viper's own SetConfigName search
// accepts an extensionless match, which in the working directory would
// be the storecore binary itself.
const configBasename = "storecore"

// InitViper wires the global viper instance: env overrides under the
// STORECORE_ prefix plus an optional YAML file. An explicit configFile
// wins; otherwise the standard directories are probed, and when none
// holds a file, ReadInConfig reports ConfigFileNotFoundError, which
// the load functions treat as "env only".
func InitViper(configFile string) {
	viper.SetEnvPrefix("STORECORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	bindNestedEnvKeys()

	if configFile == "" {
		configFile = findConfigFileInPaths(searchDirs())
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		return
	}
	viper.SetConfigName(configBasename)
	viper.SetConfigType("yaml")
}

// searchDirs lists the probe order: working directory, per-user dir,
// then the system-wide dir for the platform.
func searchDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "."+configBasename))
	}
	switch runtime.GOOS {
	case "windows":
		if pd := os.Getenv("ProgramData"); pd != "" {
			dirs = append(dirs, filepath.Join(pd, configBasename))
		}
	default:
		dirs = append(dirs, "/etc/"+configBasename)
	}
	return dirs
}

// findConfigFileInPaths returns the first storecore.yaml or
// storecore.yml found in dirs, or "".
func findConfigFileInPaths(dirs []string) string {
	candidates := []string{configBasename + ".yaml", configBasename + ".yml"}
	for _, dir := range dirs {
		for _, name := range candidates {
			full := filepath.Join(dir, name)
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				return full
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: STORECORE_SERVER_HTTP_ADDR overrides server.http_addr
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")

	_ = viper.BindEnv("store.backend")
	_ = viper.BindEnv("store.sqlite_path")
	_ = viper.BindEnv("store.rest_url")
	_ = viper.BindEnv("store.rest_api_key")
	_ = viper.BindEnv("store.timeout")

	_ = viper.BindEnv("auth.seed_file")
	_ = viper.BindEnv("auth.max_session_age")
	_ = viper.BindEnv("auth.recheck_interval")

	_ = viper.BindEnv("rate_limit.window")
	_ = viper.BindEnv("rate_limit.max_attempts")
	_ = viper.BindEnv("rate_limit.block_duration")
	_ = viper.BindEnv("rate_limit.cleanup_interval")
	// Note: rate_limit.exempt_operations is an array, complex to
	// override via env. Use the config file for it.

	_ = viper.BindEnv("csrf.ttl")
	_ = viper.BindEnv("csrf.refresh_window")

	_ = viper.BindEnv("monitor.sweep_interval")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the Config.
// Note: Caller should apply any CLI flag overrides (e.g. --dev), then call
// cfg.SetDevDefaults() and cfg.Validate() to complete initialization.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
