package memory

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stripe/speedtracer"
	"github.com/stripe/speedtracer/stores"
	"github.com/stripe/speedtracer/util"
)

// ErrSetRejected is returned when the cache drops a write, which happens when
// it is under contention or the document is larger than the cache.
var ErrSetRejected = errors.New("cache rejected the trace")

type MemoryStoreConfig struct {
	// NumCounters is the number of keys whose access frequency is tracked.
	NumCounters int64 `yaml:"num_counters"`
	// MaxCost is the total size in bytes of the documents the cache holds.
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
}

// ParseConfig decodes the map config for a memory store into a
// MemoryStoreConfig struct, filling in defaults.
func ParseConfig(name string, config interface{}) (speedtracer.StoreConfig, error) {
	memoryConfig := MemoryStoreConfig{}
	err := util.DecodeConfig(name, config, &memoryConfig)
	if err != nil {
		return nil, err
	}
	if memoryConfig.NumCounters <= 0 {
		memoryConfig.NumCounters = 100000
	}
	if memoryConfig.MaxCost <= 0 {
		memoryConfig.MaxCost = 64 << 20
	}
	if memoryConfig.BufferItems <= 0 {
		memoryConfig.BufferItems = 64
	}
	return memoryConfig, nil
}

// Create creates a new memory store. This function should match the
// signature of a value in speedtracer.StoreTypes.
func Create(
	name string, logger *logrus.Entry, config speedtracer.Config,
	storeConfig speedtracer.StoreConfig,
) (stores.Store, error) {
	memoryConfig, ok := storeConfig.(MemoryStoreConfig)
	if !ok {
		return nil, errors.New("invalid store config type")
	}
	return New(name, memoryConfig, logger)
}

// MemoryStore keeps traces in a ristretto cache inside the process. Traces
// are lost on restart and not shared between processes, so it suits a
// single instance or development.
type MemoryStore struct {
	name   string
	cache  *ristretto.Cache
	logger *logrus.Entry
}

var _ stores.Store = &MemoryStore{}

func New(name string, config MemoryStoreConfig, logger *logrus.Entry) (*MemoryStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.NumCounters,
		MaxCost:     config.MaxCost,
		BufferItems: config.BufferItems,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating trace cache")
	}
	logger.WithFields(logrus.Fields{
		"num_counters": config.NumCounters,
		"max_cost":     config.MaxCost,
	}).Info("Created in-memory trace store")
	return &MemoryStore{
		name:   name,
		cache:  cache,
		logger: logger,
	}, nil
}

func (m *MemoryStore) Name() string {
	return m.name
}

func (m *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	if !m.cache.SetWithTTL(key, stored, int64(len(stored)), ttl) {
		return ErrSetRejected
	}
	// Sets are applied asynchronously; make the trace visible before the
	// response that links to it is sent.
	m.cache.Wait()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, found := m.cache.Get(key)
	if !found {
		return nil, stores.ErrNotFound
	}
	document, ok := value.([]byte)
	if !ok {
		return nil, errors.Errorf("value of unexpected type %T in trace cache", value)
	}
	return document, nil
}

func (m *MemoryStore) Close() error {
	m.cache.Close()
	return nil
}
