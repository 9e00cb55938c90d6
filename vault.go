package statevault

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/statevault/internal/clock"
	"pkt.systems/statevault/internal/storage"
)

// Payload is the opaque document stored per key. It crosses the backend
// boundary as JSON, so values follow encoding/json conventions (numbers
// decode as float64).
type Payload = map[string]any

// Vault coordinates Load/Save calls against one backend. All methods are
// safe for concurrent use; note that concurrent calls for the same key from
// the same process are not mutually excluded here — cross-process exclusivity
// is only as strong as the advisory lease.
type Vault struct {
	backend    storage.Backend
	logger     pslog.Logger
	clk        clock.Clock
	cfg        Config
	migrations *registry
	metrics    *vaultMetrics

	mu     sync.Mutex
	pulses map[string]*autosavePulse
	closed bool
}

// New returns a ready Vault on cfg.Backend, or on the backend named by
// cfg.Store when none is injected.
func New(cfg Config) (*Vault, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	backend := cfg.Backend
	if backend == nil {
		var err error
		backend, err = openBackend(cfg.Store)
		if err != nil {
			return nil, err
		}
	}
	v := &Vault{
		backend:    backend,
		logger:     cfg.Logger,
		clk:        cfg.Clock,
		cfg:        cfg,
		migrations: &registry{},
		metrics:    newVaultMetrics(cfg.Logger),
		pulses:     make(map[string]*autosavePulse),
	}
	return v, nil
}

// RegisterMigration appends a migrator to the schema chain, bumping the
// latest known version by one. Call it before the first Load or Save;
// registering once operations have started is undefined behaviour.
func (v *Vault) RegisterMigration(fn Migrator) {
	v.migrations.register(fn)
}

// LoadOption customises a single Load call.
type LoadOption func(*loadOptions)

type loadOptions struct {
	force bool
}

// WithForce takes the key's lease on the first attempt even when a valid
// lease is held elsewhere. Use it when the caller knows the previous holder
// is gone for good.
func WithForce() LoadOption {
	return func(o *loadOptions) { o.force = true }
}

// Load acquires the lease for key and returns its payload migrated to the
// latest registered version. Absent keys yield the configured default
// payload. A successful Load starts the key's autosave pulse; the caller must
// eventually issue a releasing Save or the pulse runs forever.
func (v *Vault) Load(ctx context.Context, key string, opts ...LoadOption) (Payload, error) {
	if err := v.guard(); err != nil {
		return nil, err
	}
	var options loadOptions
	for _, opt := range opts {
		opt(&options)
	}

	v.logger.Debug("vault.load.begin", "key", key, "force", options.force)
	var payload Payload
	err := v.run(ctx, Action{Kind: ActionLoad, Key: key}, options.force, func(ctx context.Context, force bool) error {
		var err error
		payload, err = v.attemptLoad(ctx, key, force)
		return err
	})
	if err != nil {
		v.logger.Warn("vault.load.failed", "key", key, "error", err)
		return nil, err
	}
	v.logger.Info("vault.load.ok", "key", key, "holder", v.cfg.Holder)
	return payload, nil
}

// Save writes payload under lease discipline. With release=true the lease is
// cleared and the key's autosave pulse is stopped; otherwise the lease is
// refreshed. When the payload carries a numeric value under the configured
// rank field, a best-effort secondary index write follows the save.
func (v *Vault) Save(ctx context.Context, key string, payload Payload, release bool) error {
	if err := v.guard(); err != nil {
		return err
	}

	v.logger.Debug("vault.save.begin", "key", key, "release", release)
	err := v.run(ctx, Action{Kind: ActionSave, Key: key, ReleaseRequested: release}, false, func(ctx context.Context, force bool) error {
		return v.attemptSave(ctx, key, payload, release, force, nil)
	})
	if err != nil {
		v.logger.Warn("vault.save.failed", "key", key, "release", release, "error", err)
		return err
	}
	v.logger.Info("vault.save.ok", "key", key, "release", release)
	return nil
}

// Close stops every autosave pulse and closes the backend. Leases held by
// this vault are left to expire on their own.
func (v *Vault) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	pulses := v.pulses
	v.pulses = make(map[string]*autosavePulse)
	v.mu.Unlock()

	for _, p := range pulses {
		p.stop()
	}
	return v.backend.Close()
}

func (v *Vault) guard() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	return nil
}
