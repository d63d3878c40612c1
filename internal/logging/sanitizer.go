package logging

import (
	"regexp"
)

// Sanitizer redacts credentials that kubeconfigs, juju output and
// object storage settings can leak into log lines.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns(),
		redacted: "[REDACTED]",
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// Service account and OIDC tokens (JWT)
		`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`,
		// Bearer tokens
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// Kubeconfig inline key material
		`(?i)client-key-data["'\s:=]+[A-Za-z0-9+/=]{20,}`,
		`(?i)client-certificate-data["'\s:=]+[A-Za-z0-9+/=]{20,}`,
		// PEM private keys
		`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
		// AWS / S3 access keys
		`AKIA[0-9A-Z]{16}`,
		`(?i)secret[_-]?(access[_-]?)?key["'\s:=]+[A-Za-z0-9/+=]{20,}`,
		// Generic tokens
		`(?i)token["'\s:=]+[a-zA-Z0-9._-]{20,}`,
		// Juju and generic passwords
		`(?i)password["'\s:=]+[^\s"']{8,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}

// SetRedactedPlaceholder sets the placeholder text for redacted content.
func (s *Sanitizer) SetRedactedPlaceholder(placeholder string) {
	s.redacted = placeholder
}
