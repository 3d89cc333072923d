// Package redaction masks bot credentials before they reach log output.
// Telegram bot tokens are detected by shape; any other secret (proxy
// passwords, database DSNs) can be registered literally at startup.
package redaction

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Config holds redaction configuration.
type Config struct {
	// Enabled controls whether redaction is active.
	Enabled bool `json:"enabled"`

	// Replacement is the string used to replace sensitive data.
	Replacement string `json:"replacement"`
}

// DefaultConfig returns the default redaction configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Replacement: "[REDACTED]",
	}
}

var (
	// <bot id>:<35 char secret>, also embedded in api.telegram.org/bot<token>/ URLs
	botTokenPattern = regexp.MustCompile(`\b\d{6,12}:[A-Za-z0-9_-]{30,}`)

	sensitiveKeys = []string{"token", "secret", "password", "passwd", "api_key", "credential"}
)

// Redactor replaces secrets in strings and log fields.
type Redactor struct {
	config  Config
	secrets []string
	mu      sync.RWMutex
}

// NewRedactor creates a new Redactor with the given configuration.
func NewRedactor(config Config) *Redactor {
	if config.Replacement == "" {
		config.Replacement = DefaultConfig().Replacement
	}
	return &Redactor{config: config}
}

// AddSecret registers a literal value that must never be printed.
// Values shorter than four characters are ignored to avoid masking noise.
func (r *Redactor) AddSecret(secret string) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 4 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.secrets {
		if s == secret {
			return
		}
	}
	r.secrets = append(r.secrets, secret)
	// longest first so a secret containing another is replaced whole
	sort.Slice(r.secrets, func(i, j int) bool { return len(r.secrets[i]) > len(r.secrets[j]) })
}

// Redact applies all redaction rules to the input string.
func (r *Redactor) Redact(input string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.config.Enabled || input == "" {
		return input
	}

	result := input
	for _, s := range r.secrets {
		result = strings.ReplaceAll(result, s, r.config.Replacement)
	}
	return botTokenPattern.ReplaceAllString(result, r.config.Replacement)
}

// RedactFields redacts sensitive values in a map. Keys that look like
// credentials are masked regardless of their value.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	r.mu.RLock()
	enabled := r.config.Enabled
	replacement := r.config.Replacement
	r.mu.RUnlock()

	if !enabled || len(fields) == 0 {
		return fields
	}

	result := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(strings.ToLower(k)) {
			result[k] = replacement
			continue
		}
		switch val := v.(type) {
		case string:
			result[k] = r.Redact(val)
		case error:
			result[k] = r.Redact(val.Error())
		case map[string]any:
			result[k] = r.RedactFields(val)
		default:
			result[k] = v
		}
	}
	return result
}

// SetEnabled enables or disables redaction at runtime.
func (r *Redactor) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Enabled = enabled
}

func isSensitiveKey(key string) bool {
	for _, sk := range sensitiveKeys {
		if strings.Contains(key, sk) {
			return true
		}
	}
	return false
}

// Global redactor instance with default config
var globalRedactor = NewRedactor(DefaultConfig())

// Redact applies redaction using the global redactor.
func Redact(input string) string {
	return globalRedactor.Redact(input)
}

// RedactFields redacts fields using the global redactor.
func RedactFields(fields map[string]any) map[string]any {
	return globalRedactor.RedactFields(fields)
}

// AddSecret registers a secret with the global redactor.
func AddSecret(secret string) {
	globalRedactor.AddSecret(secret)
}

// SetGlobalConfig replaces the global redactor. Registered secrets are kept.
func SetGlobalConfig(config Config) {
	next := NewRedactor(config)
	globalRedactor.mu.RLock()
	next.secrets = append(next.secrets, globalRedactor.secrets...)
	globalRedactor.mu.RUnlock()
	globalRedactor = next
}
