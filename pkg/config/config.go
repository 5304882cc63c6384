// Package config builds the immutable process configuration from environment
// variables and command-line flags. Flags win over environment, environment
// wins over defaults. Credentials are only ever read from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Version is the proxy release string reported by --version, the startup
// banner and /healthz.
const Version = "1.0.11"

const (
	AdapterXAI  = "xai"
	AdapterGroq = "groq"

	xaiBaseURL  = "https://api.x.ai/v1/chat/completions"
	groqBaseURL = "https://api.groq.com/openai/v1/chat/completions"

	defaultXAIPort  = 5000
	defaultGroqPort = 5003
)

// Error is a configuration problem the operator has to fix: bad adapter
// name, unparsable port, invalid OS override.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func configError(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// CredentialError means the backend API key variable is unset. Kept distinct
// from Error so the entry point can exit with its own code.
type CredentialError struct {
	Variable string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("environment variable %s is not set", e.Variable)
}

// Config is assembled once at startup and read-only afterwards.
type Config struct {
	Adapter       string
	Port          int
	APIKey        string
	BaseURL       string
	OSOverride    string
	HaikuFastPath bool
	LogLevel      string
}

// ListenAddr is always loopback; the proxy is a local sidecar, never a
// network-exposed service.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.Port)
}

// Load resolves the configuration. Flag values of "" / 0 mean "not given on
// the command line" and fall back to the environment.
func Load(flagAdapter string, flagPort int, flagLogLevel string) (*Config, error) {
	adapter := firstNonEmpty(flagAdapter, os.Getenv("CLAUDEPROXY_ADAPTER"), AdapterXAI)
	if adapter != AdapterXAI && adapter != AdapterGroq {
		return nil, configError("unknown adapter %q (expected %s or %s)", adapter, AdapterXAI, AdapterGroq)
	}

	cfg := &Config{
		Adapter:       adapter,
		LogLevel:      firstNonEmpty(flagLogLevel, os.Getenv("CLAUDEPROXY_LOG_LEVEL"), "info"),
		HaikuFastPath: true,
	}

	switch adapter {
	case AdapterXAI:
		cfg.Port = defaultXAIPort
		cfg.BaseURL = xaiBaseURL
	case AdapterGroq:
		cfg.Port = defaultGroqPort
		cfg.BaseURL = groqBaseURL
	}

	if raw := os.Getenv("CLAUDEPROXY_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, configError("CLAUDEPROXY_PORT %q is not an integer", raw)
		}
		cfg.Port = port
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, configError("port %d is out of range", cfg.Port)
	}

	if raw := os.Getenv("CLAUDEPROXY_OS_OVERRIDE"); raw != "" {
		switch raw {
		case "windows", "unix", "darwin":
			cfg.OSOverride = raw
		default:
			return nil, configError("CLAUDEPROXY_OS_OVERRIDE %q is not one of windows, unix, darwin", raw)
		}
	}

	if raw := os.Getenv("CLAUDEPROXY_HAIKU_FAST_PATH"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, configError("CLAUDEPROXY_HAIKU_FAST_PATH %q is not a boolean", raw)
		}
		cfg.HaikuFastPath = enabled
	}

	credVar := credentialVariable(adapter)
	cfg.APIKey = os.Getenv(credVar)
	if cfg.APIKey == "" {
		return nil, &CredentialError{Variable: credVar}
	}

	return cfg, nil
}

func credentialVariable(adapter string) string {
	if adapter == AdapterGroq {
		return "GROQ_API_KEY"
	}
	return "XAI_API_KEY"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
