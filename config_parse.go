package speedtracer

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/stripe/speedtracer/trace"
	"github.com/stripe/speedtracer/util/config"
)

const (
	defaultCachePrefix     = "speedtracer-%s"
	defaultHTTPAddress     = "127.0.0.1:8127"
	defaultShutdownTimeout = 10 * time.Second
	defaultTraceTTL        = 3600
	defaultTraceURL        = "/__speedtracer__/"
)

// ReadConfig unmarshals the config file at path, applies SPEEDTRACER_
// environment overrides, fills in defaults and validates the result.
func ReadConfig(path string) (Config, error) {
	conf, err := config.ReadConfig[Config](path, nil, "speedtracer")
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	conf.applyDefaults()
	if err := conf.validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %s", path)
	}
	return *conf, nil
}

func (c *Config) validate() error {
	// Backends disagree on what a negative TTL means.
	if c.TraceTTL < 0 {
		return errors.Errorf("trace_ttl must not be negative, got %d", c.TraceTTL)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.CachePrefix == "" {
		c.CachePrefix = defaultCachePrefix
	}
	if c.HTTPAddress == "" {
		c.HTTPAddress = defaultHTTPAddress
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.TraceTTL == 0 {
		c.TraceTTL = defaultTraceTTL
	}
	if c.TraceURL == "" {
		c.TraceURL = defaultTraceURL
	}
	// The trace key is the last path segment, so the prefix must end in one.
	if !strings.HasSuffix(c.TraceURL, "/") {
		c.TraceURL += "/"
	}
	if c.Store.Kind == "" {
		c.Store.Kind = "memory"
	}
	if c.Store.Name == "" {
		c.Store.Name = c.Store.Kind
	}
}

// TraceTTLDuration returns TraceTTL as a time.Duration.
func (c Config) TraceTTLDuration() time.Duration {
	return time.Duration(c.TraceTTL) * time.Second
}

// FilterConfig returns the settings the frame filter is built from.
func (c Config) FilterConfig() trace.FilterConfig {
	filterConfig := trace.FilterConfig{
		Applications:   c.Applications,
		TraceFramework: c.TraceFramework,
	}
	if c.FileFilter.Value != nil {
		filterConfig.Pattern = c.FileFilter.Value.String()
	}
	return filterConfig
}
