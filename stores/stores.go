// Package stores defines where finished trace documents are kept until a
// client retrieves them. Backends live in the subpackages and are selected
// by the "store" section of the configuration.
package stores

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when a key was never written or has
// expired.
var ErrNotFound = errors.New("trace not found")

// EmptyDocument is served in place of a trace that is not in the store.
var EmptyDocument = []byte("{}")

//go:generate mockgen -destination=mock/mock_store.go -package=mock github.com/stripe/speedtracer/stores Store

// Store persists serialized trace documents with an expiry.
type Store interface {
	// Name is the name the store was configured with.
	Name() string
	// Put stores value under key until ttl has passed. A ttl of zero means
	// the entry does not expire.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// Fetch reads key from store, returning EmptyDocument if it is not there.
// Other errors are passed through.
func Fetch(ctx context.Context, store Store, key string) ([]byte, error) {
	value, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return EmptyDocument, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Key combines a key template such as "speedtracer-%s" with a trace id. A
// template without a "%s" verb is used as a plain prefix.
func Key(template, id string) string {
	if strings.Contains(template, "%s") {
		return strings.Replace(template, "%s", id, 1)
	}
	return template + id
}
