package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// BboltConfig configures the bbolt store backend.
type BboltConfig struct {
	// DB is an already opened database. If nil, Path is opened and owned by the store.
	DB *bbolt.DB

	// Path is the database file to open when DB is nil.
	Path string

	// Bucket is the partition name. Defaults to "cache".
	Bucket string

	// TTL is the default time-to-live used when no explicit TTL is provided.
	TTL time.Duration
}

// BboltCache is a store backed by bbolt, an embedded key-value database.
//
// Each partition is a bucket; items are stored as JSON with their expiration and
// access metadata, so values survive process restarts.
type BboltCache struct {
	db      *bbolt.DB
	ownedDB bool
	bucket  []byte
	ttl     time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewBbolt creates the partition bucket if needed and returns the store.
func NewBbolt(config BboltConfig) (*BboltCache, error) {
	if config.DB == nil && config.Path == "" {
		return nil, fmt.Errorf("%w: no bbolt database or path provided", ErrInvalidConfig)
	}

	if config.Bucket == "" {
		config.Bucket = redisCacheKey
	}

	db := config.DB
	if db == nil {
		opened, err := bbolt.Open(config.Path, 0o600, &bbolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt database: %w", err)
		}
		db = opened
	}

	bucket := []byte(config.Bucket)
	err := db.Update(func(tx *bbolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucket)
		return createErr
	})
	if err != nil {
		if config.DB == nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("failed to create bucket %q: %w", config.Bucket, err)
	}

	return &BboltCache{
		db:      db,
		ownedDB: config.DB == nil,
		bucket:  bucket,
		ttl:     config.TTL,
	}, nil
}

// Cleanup removes expired items from the bucket.
func (c *BboltCache) Cleanup(_ context.Context) error {
	return c.update(func(b *bbolt.Bucket) error {
		now := time.Now()

		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			it, err := unmarshalItem(v)
			if err != nil || it.isExpired(now) {
				expired = append(expired, slices.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

// Delete removes the item for key unless it is immutable and owned by someone else.
func (c *BboltCache) Delete(_ context.Context, key string, opts ...Option) error {
	o := newOptions(0, opts...)

	return c.update(func(b *bbolt.Bucket) error {
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}

		it, err := unmarshalItem(data)
		if err == nil {
			if it.isExpired(time.Now()) || !it.visibleTo(o.owner) {
				return nil
			}
			if !it.writableBy(o.owner) {
				return ErrImmutable
			}
		}

		return b.Delete([]byte(key))
	})
}

// Get retrieves the value for key.
func (c *BboltCache) Get(_ context.Context, key string, opts ...Option) ([]byte, error) {
	o := newOptions(0, opts...)

	var value []byte
	err := c.view(func(b *bbolt.Bucket) error {
		data := b.Get([]byte(key))
		if data == nil {
			return ErrKeyNotFound
		}

		stored, err := unmarshalItem(data)
		if err != nil {
			return err
		}

		it, err := lookup(stored, true, o.owner, time.Now())
		if err != nil {
			return err
		}

		value = it.Value
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Has reports whether a visible, non-expired item exists for the key.
func (c *BboltCache) Has(ctx context.Context, key string, opts ...Option) (bool, error) {
	return has(c.Get(ctx, key, opts...))
}

// Keys returns the sorted visible keys of the bucket.
func (c *BboltCache) Keys(_ context.Context, opts ...Option) ([]string, error) {
	o := newOptions(0, opts...)
	now := time.Now()

	keys := []string{}
	err := c.view(func(b *bbolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			stored, err := unmarshalItem(v)
			if err != nil {
				return nil //nolint:nilerr // unreadable entries are skipped
			}
			if _, lookupErr := lookup(stored, true, o.owner, now); lookupErr == nil {
				keys = append(keys, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// bbolt iterates in byte order already; sort keeps the contract explicit.
	slices.Sort(keys)
	return keys, nil
}

// Set stores value under key.
func (c *BboltCache) Set(_ context.Context, key string, value []byte, opts ...Option) error {
	o := newOptions(c.ttl, opts...)

	data, err := newItem(value, o).marshal()
	if err != nil {
		return err
	}

	return c.update(func(b *bbolt.Bucket) error {
		if current := b.Get([]byte(key)); current != nil {
			existing, unmarshalErr := unmarshalItem(current)
			if unmarshalErr == nil && !existing.isExpired(time.Now()) && !existing.writableBy(o.owner) {
				return ErrImmutable
			}
		}

		return b.Put([]byte(key), data)
	})
}

// Ping returns ErrCacheClosed after Close.
func (c *BboltCache) Ping(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrCacheClosed
	}

	return nil
}

// Close closes the store and, when the store opened it, the database.
// Calling Close multiple times is safe.
func (c *BboltCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	if c.ownedDB {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("failed to close bbolt database: %w", err)
		}
	}

	return nil
}

func (c *BboltCache) view(fn func(b *bbolt.Bucket) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrCacheClosed
	}

	return c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", c.bucket)
		}
		return fn(b)
	})
}

func (c *BboltCache) update(fn func(b *bbolt.Bucket) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrCacheClosed
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", c.bucket)
		}
		return fn(b)
	})
}

// Compile-time check to ensure BboltCache implements the Cache interface.
var _ Cache = (*BboltCache)(nil)
