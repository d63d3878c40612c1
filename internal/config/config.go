package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Collect CollectConfig `mapstructure:"collect"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Output  OutputConfig  `mapstructure:"output"`
	Upload  UploadConfig  `mapstructure:"upload"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RetryConfig configures how failed tool invocations are retried.
type RetryConfig struct {
	// Count is the number of retries after the first attempt.
	Count int           `mapstructure:"count"`
	Delay time.Duration `mapstructure:"delay"`
}

// CollectConfig configures the collection pipeline.
type CollectConfig struct {
	MaxParallel      int           `mapstructure:"max_parallel"`
	MaxProcesses     int           `mapstructure:"max_processes"`
	SpawnRate        float64       `mapstructure:"spawn_rate"`
	FailFast         bool          `mapstructure:"fail_fast"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ControllerMarker string        `mapstructure:"controller_marker"`
	HostFacts        bool          `mapstructure:"host_facts"`
}

// ToolsConfig names the external binaries.
type ToolsConfig struct {
	Juju    string `mapstructure:"juju"`
	Kubectl string `mapstructure:"kubectl"`
}

// OutputConfig configures where the archive is written.
type OutputConfig struct {
	Path string `mapstructure:"path"`
	// Level is the gzip compression level, -1 for the library default.
	Level int `mapstructure:"level"`
}

// UploadConfig configures the optional push of the archive to
// S3-compatible object storage. Upload is disabled when Endpoint is empty.
type UploadConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether an upload target is configured.
func (u UploadConfig) Enabled() bool {
	return u.Endpoint != ""
}
