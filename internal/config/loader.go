package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. CRASHDUMP_RETRY_COUNT.
const EnvPrefix = "CRASHDUMP"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: EnvPrefix,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (CRASHDUMP_*)
// 3. Project config (.crashdump.yaml in current directory)
// 4. User config (~/.config/juju-k8s-crashdump/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".crashdump")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "juju-k8s-crashdump"))
		}
	}

	// Read config file (ignore not found)
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("retry.count", 2)
	l.v.SetDefault("retry.delay", "1s")

	l.v.SetDefault("collect.max_parallel", 4)
	l.v.SetDefault("collect.max_processes", 4)
	l.v.SetDefault("collect.spawn_rate", 0.0)
	l.v.SetDefault("collect.fail_fast", false)
	l.v.SetDefault("collect.timeout", "0s")
	l.v.SetDefault("collect.controller_marker", "controller")
	l.v.SetDefault("collect.host_facts", true)

	l.v.SetDefault("tools.juju", "juju")
	l.v.SetDefault("tools.kubectl", "kubectl")

	l.v.SetDefault("output.path", "")
	l.v.SetDefault("output.level", -1)

	// Upload is off unless an endpoint is configured
	l.v.SetDefault("upload.endpoint", "")
	l.v.SetDefault("upload.bucket", "")
	l.v.SetDefault("upload.prefix", "")
	l.v.SetDefault("upload.region", "")
	l.v.SetDefault("upload.access_key", "")
	l.v.SetDefault("upload.secret_key", "")
	l.v.SetDefault("upload.use_ssl", true)
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
