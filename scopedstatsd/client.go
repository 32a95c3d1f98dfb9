package scopedstatsd

import (
	"time"

	"github.com/DataDog/datadog-go/statsd"
)

//go:generate mockgen -source=client.go -destination=mock_client.go -package=scopedstatsd

// Client represents the statsd client functions that speedtracer reports
// its own metrics through.
type Client interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
}

// Ensure takes a statsd client and wraps it in such a way that it is
// safe to store in a struct if it should be nil. Otherwise returns
// the Client unchanged. A ScopedClient without an inner client drops
// everything it is given.
func Ensure(cl Client) Client {
	if cl == nil {
		return &ScopedClient{}
	}
	return cl
}

// ScopedClient adds a fixed set of tags to every metric it reports.
type ScopedClient struct {
	client *statsd.Client

	addTags []string
}

var _ Client = &ScopedClient{}

// withTags returns the caller's tags followed by the client's own, without
// writing into the caller's backing array.
func (s *ScopedClient) withTags(tags []string) []string {
	if len(s.addTags) == 0 {
		return tags
	}
	all := make([]string, 0, len(tags)+len(s.addTags))
	all = append(all, tags...)
	return append(all, s.addTags...)
}

func (s *ScopedClient) Gauge(name string, value float64, tags []string, rate float64) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Gauge(name, value, s.withTags(tags), rate)
}

func (s *ScopedClient) Count(name string, value int64, tags []string, rate float64) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Count(name, value, s.withTags(tags), rate)
}

func (s *ScopedClient) Incr(name string, tags []string, rate float64) error {
	if s == nil || s.client == nil {
		return nil
	}

	return s.Count(name, 1, tags, rate)
}

func (s *ScopedClient) TimeInMilliseconds(name string, value float64, tags []string, rate float64) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.TimeInMilliseconds(name, value, s.withTags(tags), rate)
}

func (s *ScopedClient) Timing(name string, value time.Duration, tags []string, rate float64) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Timing(name, value, s.withTags(tags), rate)
}

func (s *ScopedClient) Histogram(name string, value float64, tags []string, rate float64) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Histogram(name, value, s.withTags(tags), rate)
}

func NewClient(inner *statsd.Client, addTags []string) *ScopedClient {
	return &ScopedClient{
		client:  inner,
		addTags: addTags,
	}
}
