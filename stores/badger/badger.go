package badger

import (
	"context"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stripe/speedtracer"
	"github.com/stripe/speedtracer/stores"
	"github.com/stripe/speedtracer/util"
)

type BadgerStoreConfig struct {
	// Path is the directory the database lives in. It is required unless
	// InMemory is set.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
	// GCInterval is how often the value log is garbage collected. Zero
	// disables collection.
	GCInterval time.Duration `yaml:"gc_interval"`
}

// ParseConfig decodes the map config for a badger store into a
// BadgerStoreConfig struct.
func ParseConfig(name string, config interface{}) (speedtracer.StoreConfig, error) {
	badgerConfig := BadgerStoreConfig{}
	err := util.DecodeConfig(name, config, &badgerConfig)
	if err != nil {
		return nil, err
	}
	if badgerConfig.Path == "" && !badgerConfig.InMemory {
		return nil, errors.Errorf("badger store %s: path is required unless in_memory is set", name)
	}
	if badgerConfig.Path != "" && badgerConfig.InMemory {
		return nil, errors.Errorf("badger store %s: path cannot be used with in_memory", name)
	}
	return badgerConfig, nil
}

// Create creates a new badger store. This function should match the
// signature of a value in speedtracer.StoreTypes.
func Create(
	name string, logger *logrus.Entry, config speedtracer.Config,
	storeConfig speedtracer.StoreConfig,
) (stores.Store, error) {
	badgerConfig, ok := storeConfig.(BadgerStoreConfig)
	if !ok {
		return nil, errors.New("invalid store config type")
	}
	return Open(name, badgerConfig, logger)
}

// BadgerStore keeps traces in an embedded badger database, so they survive
// restarts of the process. Expiry is enforced by badger with a resolution of
// one second.
type BadgerStore struct {
	name   string
	db     *badger.DB
	logger *logrus.Entry

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

var _ stores.Store = &BadgerStore{}

func Open(name string, config BadgerStoreConfig, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(config.Path).
		WithInMemory(config.InMemory).
		WithLogger(badgerLogger{logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger database at %q", config.Path)
	}
	logger.WithFields(logrus.Fields{
		"path":      config.Path,
		"in_memory": config.InMemory,
	}).Info("Opened badger trace store")

	store := &BadgerStore{
		name:   name,
		db:     db,
		logger: logger,
		stop:   make(chan struct{}),
	}
	if config.GCInterval > 0 && !config.InMemory {
		store.wg.Add(1)
		go store.collectGarbage(config.GCInterval)
	}
	return store, nil
}

func (b *BadgerStore) Name() string {
	return b.name
}

func (b *BadgerStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	return errors.Wrap(err, "writing trace to badger")
}

func (b *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, stores.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading trace from badger")
	}
	return value, nil
}

// Close stops garbage collection and closes the database. Later calls
// return the result of the first.
func (b *BadgerStore) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
		b.wg.Wait()
		b.closeErr = b.db.Close()
	})
	return b.closeErr
}

func (b *BadgerStore) collectGarbage(interval time.Duration) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			// Each run rewrites at most one file; keep going until there
			// is nothing left worth rewriting.
			for b.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

// badgerLogger sends badger's own logging through logrus. Its chatty info
// output is demoted to debug.
type badgerLogger struct {
	*logrus.Entry
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.Entry.Debugf(format, args...)
}
