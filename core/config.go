package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultServiceName          = "submissions"
	defaultSubmissionType       = "challenge"
	defaultTimeoutSeconds       = 30
	defaultMaxResponseBodyBytes = 10 << 20
	defaultCacheTTLSeconds      = 300
	defaultListCacheTTLSeconds  = 30
	defaultReconcileInterval    = 30
)

type TransportConfig struct {
	TimeoutSeconds       int   `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxResponseBodyBytes int64 `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

type CacheConfig struct {
	DefaultTTLSeconds int `koanf:"default_ttl_seconds" mapstructure:"default_ttl_seconds"`
	ListTTLSeconds    int `koanf:"list_ttl_seconds" mapstructure:"list_ttl_seconds"`
}

type ReconcileConfig struct {
	Enabled         bool `koanf:"enabled" mapstructure:"enabled"`
	IntervalSeconds int  `koanf:"interval_seconds" mapstructure:"interval_seconds"`
}

type Config struct {
	ServiceName    string          `koanf:"service_name" mapstructure:"service_name"`
	BaseURL        string          `koanf:"base_url" mapstructure:"base_url"`
	SubmissionType string          `koanf:"submission_type" mapstructure:"submission_type"`
	Transport      TransportConfig `koanf:"transport" mapstructure:"transport"`
	Cache          CacheConfig     `koanf:"cache" mapstructure:"cache"`
	Reconcile      ReconcileConfig `koanf:"reconcile" mapstructure:"reconcile"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    defaultServiceName,
		SubmissionType: defaultSubmissionType,
		Transport: TransportConfig{
			TimeoutSeconds:       defaultTimeoutSeconds,
			MaxResponseBodyBytes: defaultMaxResponseBodyBytes,
		},
		Cache: CacheConfig{
			DefaultTTLSeconds: defaultCacheTTLSeconds,
			ListTTLSeconds:    defaultListCacheTTLSeconds,
		},
		Reconcile: ReconcileConfig{
			Enabled:         true,
			IntervalSeconds: defaultReconcileInterval,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: base_url %q is invalid", base)
		}
	}
	if c.Transport.TimeoutSeconds < 0 {
		return fmt.Errorf("core: transport.timeout_seconds must be >= 0")
	}
	if c.Transport.MaxResponseBodyBytes < 0 {
		return fmt.Errorf("core: transport.max_response_body_bytes must be >= 0")
	}
	if c.Cache.DefaultTTLSeconds < 0 || c.Cache.ListTTLSeconds < 0 {
		return fmt.Errorf("core: cache ttl values must be >= 0")
	}
	if c.Reconcile.Enabled && c.Reconcile.IntervalSeconds <= 0 {
		return fmt.Errorf("core: reconcile.interval_seconds must be > 0 when reconcile is enabled")
	}
	return nil
}

func (c TransportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c CacheConfig) ListTTL() time.Duration {
	return time.Duration(c.ListTTLSeconds) * time.Second
}

func (c ReconcileConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
