package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// item is a stored value together with its access metadata.
//
// MemoryCache keeps items as-is; RedisCache and BboltCache persist them as JSON.
type item struct {
	Value      []byte     `json:"v"`
	Owner      string     `json:"o,omitempty"`
	Visibility Visibility `json:"vis,omitempty"`
	Immutable  bool       `json:"imm,omitempty"`
	ValidUntil time.Time  `json:"exp,omitzero"`
}

func newItem(value []byte, opts options) *item {
	return &item{
		Value:      value,
		Owner:      opts.owner,
		Visibility: opts.visibility,
		Immutable:  opts.immutable,
		ValidUntil: opts.validUntil,
	}
}

// isExpired checks if the item has expired at the given time.
func (i *item) isExpired(now time.Time) bool {
	if i == nil {
		return true
	}

	return !i.ValidUntil.IsZero() && now.After(i.ValidUntil)
}

func (i *item) visibleTo(owner string) bool {
	return i.Visibility != VisibilityIsolated || i.Owner == owner
}

func (i *item) writableBy(owner string) bool {
	return !i.Immutable || i.Owner == owner
}

func (i *item) marshal() ([]byte, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache item: %w", err)
	}

	return data, nil
}

func unmarshalItem(data []byte) (*item, error) {
	it := new(item)
	if err := json.Unmarshal(data, it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache item: %w", err)
	}

	return it, nil
}

// lookup applies the expiration and visibility rules shared by every store.
func lookup(it *item, found bool, owner string, now time.Time) (*item, error) {
	if !found || it == nil {
		return nil, ErrKeyNotFound
	}

	if it.isExpired(now) {
		return nil, ErrKeyExpired
	}

	if !it.visibleTo(owner) {
		return nil, ErrKeyNotFound
	}

	return it, nil
}
