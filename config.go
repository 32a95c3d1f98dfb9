package speedtracer

import (
	"time"

	"github.com/stripe/speedtracer/trace"
	"github.com/stripe/speedtracer/util"
	"github.com/stripe/speedtracer/util/tls"
)

type Config struct {
	Applications    []trace.Application `yaml:"applications"`
	CachePrefix     string              `yaml:"cache_prefix"`
	Debug           bool                `yaml:"debug"`
	EnableProfiling bool                `yaml:"enable_profiling"`
	// FileFilter replaces the pattern derived from Applications. It is
	// matched from the start of each source file path.
	FileFilter      util.Regexp       `yaml:"file_filter"`
	HTTPAddress     string            `yaml:"http_address"`
	SentryDsn       util.StringSecret `yaml:"sentry_dsn"`
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"`
	StatsAddress    string            `yaml:"stats_address"`
	Store           StoreConfigEntry  `yaml:"store"`
	Tags            []string          `yaml:"tags"`
	TLS             *tls.Tls          `yaml:"tls"`
	TraceFramework  bool              `yaml:"trace_framework"`
	// TraceTTL is the number of seconds a stored trace stays retrievable.
	TraceTTL int    `yaml:"trace_ttl"`
	TraceURL string `yaml:"trace_url"`
}

type StoreConfigEntry struct {
	Kind   string      `yaml:"kind"`
	Name   string      `yaml:"name"`
	Config interface{} `yaml:"config"`
}
