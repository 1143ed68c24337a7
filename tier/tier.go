// Package tier implements the three logical cache scopes and the manager that hands them out.
//
// A tier Cache answers reads from, in fixed order:
//  1. its in-memory overlay,
//  2. its backing store partition, when one exists and is available,
//  3. the preset index, for configured default values.
//
// Writes always land in the overlay and are written through to the backing
// store when it is available. An unavailable store is not an error: the tier
// silently behaves like the transaction tier until the store comes back.
package tier

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-core-fx/tiercachefx/cache"
)

var (
	// ErrKeyNotFound is returned by Get when no tier source resolves the key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnknownTier is returned when a tier outside the three known ones is requested.
	ErrUnknownTier = errors.New("unknown tier")
	// ErrNoBackingStore is returned when a backing store is assigned to the transaction tier.
	ErrNoBackingStore = errors.New("tier has no backing store")
)

// Tier identifies a logical cache scope.
type Tier int

const (
	// Transaction is process-local and lives for one unit of work.
	Transaction Tier = iota
	// Organization is shared and durable across units of work.
	Organization
	// Session is shared and scoped to a user session.
	Session
)

// Tiers lists every known tier.
var Tiers = []Tier{Transaction, Organization, Session}

func (t Tier) String() string {
	switch t {
	case Transaction:
		return "transaction"
	case Organization:
		return "organization"
	case Session:
		return "session"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t >= Transaction && t <= Session
}

// ParseTier converts a tier name to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transaction", "tx":
		return Transaction, nil
	case "organization", "org":
		return Organization, nil
	case "session":
		return Session, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// Visibility is the store scope of values written by a tier.
type Visibility = cache.Visibility

// Config holds the per-tier write and removal policy.
type Config struct {
	// Identity correlates preset entries with this tier.
	Identity string
	// Immutable turns every removal into a no-op.
	Immutable bool
	// TTL is passed to the backing store on writes. Zero keeps the store default.
	TTL time.Duration
	// Visibility is passed to the backing store on writes.
	Visibility Visibility
}

// DefaultConfig returns the configuration a tier starts with.
func DefaultConfig(t Tier) Config {
	cfg := Config{
		Identity:   t.String(),
		Visibility: cache.VisibilityShared,
	}

	switch t {
	case Organization:
		cfg.TTL = 24 * time.Hour
	case Session:
		cfg.TTL = 8 * time.Hour
	case Transaction:
	}

	return cfg
}
