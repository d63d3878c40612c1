package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration. The returned error is a
// core validation error wrapping the collected ValidationErrors.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateRetry(&cfg.Retry)
	v.validateCollect(&cfg.Collect)
	v.validateTools(&cfg.Tools)
	v.validateOutput(&cfg.Output)
	v.validateUpload(&cfg.Upload)

	if len(v.errors) > 0 {
		return core.ErrValidation(core.CodeInvalidConfig, "invalid configuration").WithCause(v.errors)
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	if !logging.ValidLevel(cfg.Level) {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateRetry(cfg *RetryConfig) {
	if cfg.Count < 0 || cfg.Count > 10 {
		v.addError("retry.count", cfg.Count, "must be between 0 and 10")
	}
	if cfg.Delay < 0 {
		v.addError("retry.delay", cfg.Delay, "must not be negative")
	}
}

func (v *Validator) validateCollect(cfg *CollectConfig) {
	if cfg.MaxParallel < 1 {
		v.addError("collect.max_parallel", cfg.MaxParallel, "must be at least 1")
	}
	if cfg.MaxProcesses < 1 {
		v.addError("collect.max_processes", cfg.MaxProcesses, "must be at least 1")
	}
	if cfg.SpawnRate < 0 {
		v.addError("collect.spawn_rate", cfg.SpawnRate, "must not be negative")
	}
	if cfg.Timeout < 0 {
		v.addError("collect.timeout", cfg.Timeout, "must not be negative")
	}
	if strings.TrimSpace(cfg.ControllerMarker) == "" {
		v.addError("collect.controller_marker", cfg.ControllerMarker, "must not be empty")
	}
}

func (v *Validator) validateTools(cfg *ToolsConfig) {
	if strings.TrimSpace(cfg.Juju) == "" {
		v.addError("tools.juju", cfg.Juju, "path required")
	}
	if strings.TrimSpace(cfg.Kubectl) == "" {
		v.addError("tools.kubectl", cfg.Kubectl, "path required")
	}
}

func (v *Validator) validateOutput(cfg *OutputConfig) {
	if cfg.Path != "" && strings.ContainsRune(cfg.Path, 0) {
		v.addError("output.path", cfg.Path, "invalid file path")
	}
	if cfg.Level < -1 || cfg.Level > 9 {
		v.addError("output.level", cfg.Level, "must be between -1 and 9")
	}
}

func (v *Validator) validateUpload(cfg *UploadConfig) {
	if !cfg.Enabled() {
		return
	}

	// minio expects host[:port] without a scheme
	if strings.Contains(cfg.Endpoint, "://") {
		v.addError("upload.endpoint", cfg.Endpoint, "must be host[:port] without a scheme")
	} else if _, err := url.Parse("//" + cfg.Endpoint); err != nil {
		v.addError("upload.endpoint", cfg.Endpoint, "invalid endpoint")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		v.addError("upload.bucket", cfg.Bucket, "bucket required when upload is enabled")
	}
	if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
		v.addError("upload.access_key", "[REDACTED]", "access_key and secret_key must be set together")
	}
	if strings.HasPrefix(cfg.Prefix, "/") {
		v.addError("upload.prefix", cfg.Prefix, "must be relative")
	}
}
