package statevault

import "sync"

// Migrator upgrades a payload from one schema version to the next. Migrators
// must be total and pure: they may rebuild the payload but must not perform
// I/O or depend on external state.
type Migrator func(payload Payload) (Payload, error)

// registry holds the ordered, append-only migration chain. The chain is
// meant to be fixed before the first Load or Save; the lock only protects
// against racing Resolve calls, it does not make late registration
// well-defined.
type registry struct {
	mu    sync.RWMutex
	chain []Migrator
}

func (r *registry) register(fn Migrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chain = append(r.chain, fn)
}

// latest is the highest schema version this process knows how to produce:
// one per registered migrator.
func (r *registry) latest() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.chain))
}

// resolve applies migrators in order until the payload reaches the latest
// version. A payload already at (or, written by a newer process, beyond) the
// latest version is returned untouched.
func (r *registry) resolve(key string, payload Payload, from int64) (Payload, int64, error) {
	r.mu.RLock()
	chain := r.chain
	r.mu.RUnlock()

	latest := int64(len(chain))
	if from >= latest {
		return payload, from, nil
	}
	for v := from; v < latest; v++ {
		next, err := chain[v](payload)
		if err != nil {
			return nil, 0, &MigrationError{Key: key, FromVersion: v, Err: err}
		}
		payload = next
	}
	return payload, latest, nil
}
