package statevault

import (
	"fmt"
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"pkt.systems/statevault/internal/clock"
	"pkt.systems/statevault/internal/storage"
)

const (
	// DefaultStore points the vault at the in-memory backend when no store
	// URL is provided.
	DefaultStore = "mem://"
	// DefaultLockTimeout is how long a lease token stays valid without being
	// refreshed.
	DefaultLockTimeout = 120 * time.Second
	// DefaultAutosaveInterval is the period of the per-key background save
	// pulse.
	DefaultAutosaveInterval = 60 * time.Second
	// DefaultRetryDelayMin and DefaultRetryDelayMax bound the uniformly
	// random jittered backoff applied between retry attempts.
	DefaultRetryDelayMin = 6 * time.Second
	DefaultRetryDelayMax = 12 * time.Second
	// DefaultRankField names the payload member whose numeric value, when
	// present, is written to the secondary sorted index on save.
	DefaultRankField = "score"
	// DefaultIDsField names the payload member whose string values are
	// associated with writes and forwarded to index writes.
	DefaultIDsField = "ids"
	// DefaultTransientRetries is how many times the default Error policy
	// retries throttling and server-side failures before giving up.
	DefaultTransientRetries = 4
)

// NewPayloadFunc produces the default payload for a key that has never been
// stored. It is invoked at the latest registered schema version.
type NewPayloadFunc func(key string) Payload

// ProducerFunc returns a fresh payload for a key's autosave tick. Returning
// nil skips the tick.
type ProducerFunc func(key string) Payload

// Config configures a Vault. The zero value is usable: it opens an in-memory
// store with default policies and timings.
type Config struct {
	// Store selects the backend by URL: "mem://" or
	// "s3://host[:port]/bucket[/prefix]?region=...&insecure=true&pathstyle=true".
	Store string

	// Backend plugs in an already constructed backend. When set, Store is
	// ignored.
	Backend Backend

	// Holder identifies this session in lease tokens. Defaults to a
	// process-unique xid so independent processes never collide.
	Holder string

	// Logger receives structured events. Defaults to a noop logger.
	Logger pslog.Logger

	// Clock supplies time to leases, backoff, and the autosave pulse.
	// Defaults to the real clock.
	Clock Clock

	// Locked is consulted on every attempt that loses to a live lease held
	// elsewhere. Defaults to DefaultLockedPolicy, which respects the lease
	// and fails.
	Locked LockedPolicy

	// Error is consulted on every backend failure with the structured
	// (code, message) pair. Defaults to DefaultErrorPolicy.
	Error ErrorPolicy

	// New produces the payload for keys loaded before any save. Defaults to
	// an empty payload.
	New NewPayloadFunc

	// Autosave produces the payload saved by the background pulse. When nil
	// no pulse is started and the lease is only refreshed by explicit saves.
	Autosave ProducerFunc

	// AutosaveInterval is the pulse period. Defaults to
	// DefaultAutosaveInterval.
	AutosaveInterval time.Duration

	// LockTimeout is the lease validity window. Defaults to
	// DefaultLockTimeout.
	LockTimeout time.Duration

	// RetryDelayMin and RetryDelayMax bound the jittered backoff between
	// attempts. Default to DefaultRetryDelayMin/Max.
	RetryDelayMin time.Duration
	RetryDelayMax time.Duration

	// RankField and IDsField name the payload members feeding the secondary
	// index write. Default to DefaultRankField and DefaultIDsField.
	RankField string
	IDsField  string
}

func (cfg *Config) normalize() error {
	if cfg.Store == "" {
		cfg.Store = DefaultStore
	}
	if cfg.Holder == "" {
		cfg.Holder = xid.New().String()
	}
	if cfg.Logger == nil {
		cfg.Logger = pslog.NoopLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Locked == nil {
		cfg.Locked = DefaultLockedPolicy
	}
	if cfg.Error == nil {
		cfg.Error = DefaultErrorPolicy
	}
	if cfg.New == nil {
		cfg.New = func(string) Payload { return Payload{} }
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = DefaultAutosaveInterval
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.RetryDelayMin <= 0 {
		cfg.RetryDelayMin = DefaultRetryDelayMin
	}
	if cfg.RetryDelayMax <= 0 {
		cfg.RetryDelayMax = DefaultRetryDelayMax
	}
	if cfg.RetryDelayMax < cfg.RetryDelayMin {
		return fmt.Errorf("config: retry delay max %s below min %s", cfg.RetryDelayMax, cfg.RetryDelayMin)
	}
	if cfg.RankField == "" {
		cfg.RankField = DefaultRankField
	}
	if cfg.IDsField == "" {
		cfg.IDsField = DefaultIDsField
	}
	return nil
}

// DefaultLockedPolicy respects advisory leases: any contention fails the
// call.
func DefaultLockedPolicy(Action) Decision {
	return Fail
}

// DefaultErrorPolicy retries throttling and server-side failures a bounded
// number of times and fails immediately on everything else.
func DefaultErrorPolicy(action Action, code int, _ string) Decision {
	transient := code == storage.CodeThrottled || code >= 500
	if transient && action.Attempt <= DefaultTransientRetries {
		return Retry
	}
	return Fail
}
