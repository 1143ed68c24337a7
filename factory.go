package tiercachefx

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/go-core-fx/tiercachefx/cache"
)

const (
	schemeMemory = "memory"
	schemeRedis  = "redis"
	schemeBbolt  = "bbolt"
)

// Factory creates named store partitions.
type Factory interface {
	New(name string) (cache.Cache, error)
	WithName(name string) Factory
	// Close releases resources shared by the partitions, such as an open database file.
	Close() error
}

type factory struct {
	new   func(name string) (cache.Cache, error)
	close func() error
}

// NewFactory returns a factory for config.URL. An empty URL means memory://.
//
// Every memory:// partition is a separate map, every redis:// partition its own
// client with a key prefix, and all bbolt:// partitions are buckets of one
// database file opened on first use.
func NewFactory(config Config) (Factory, error) {
	if config.URL == "" {
		config.URL = schemeMemory + "://"
	}

	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse url: %w", ErrInvalidFactoryConfig, err)
	}

	switch u.Scheme {
	case schemeMemory:
		return &factory{
			new: func(_ string) (cache.Cache, error) {
				return cache.NewMemory(0), nil
			},
			close: noClose,
		}, nil
	case schemeRedis:
		return &factory{
			new: func(name string) (cache.Cache, error) {
				return cache.NewRedis(cache.RedisConfig{
					Client: nil,
					URL:    config.URL,
					Prefix: name,
					TTL:    0,
				})
			},
			close: noClose,
		}, nil
	case schemeBbolt:
		path := u.Host + u.Path
		if path == "" {
			return nil, fmt.Errorf("%w: bbolt url has no path", ErrInvalidFactoryConfig)
		}
		return newBboltFactory(path), nil
	default:
		return nil, fmt.Errorf("%w: invalid scheme: %s", ErrInvalidFactoryConfig, u.Scheme)
	}
}

// New implements Factory.
func (f *factory) New(name string) (cache.Cache, error) {
	return f.new(name)
}

// WithName implements Factory.
func (f *factory) WithName(prefix string) Factory {
	return &factory{
		new: func(name string) (cache.Cache, error) {
			return f.new(prefix + ":" + name)
		},
		close: f.close,
	}
}

// Close implements Factory.
func (f *factory) Close() error {
	return f.close()
}

func noClose() error {
	return nil
}

func newBboltFactory(path string) *factory {
	var (
		mu sync.Mutex
		db *bbolt.DB
	)

	open := func() (*bbolt.DB, error) {
		mu.Lock()
		defer mu.Unlock()

		if db != nil {
			return db, nil
		}

		opened, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt database %s: %w", path, err)
		}
		db = opened

		return db, nil
	}

	return &factory{
		new: func(name string) (cache.Cache, error) {
			opened, err := open()
			if err != nil {
				return nil, err
			}

			return cache.NewBbolt(cache.BboltConfig{
				DB:     opened,
				Bucket: name,
			})
		},
		close: func() error {
			mu.Lock()
			defer mu.Unlock()

			if db == nil {
				return nil
			}

			err := db.Close()
			db = nil
			if err != nil {
				return fmt.Errorf("failed to close bbolt database %s: %w", path, err)
			}

			return nil
		},
	}
}
