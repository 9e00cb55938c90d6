// Package storage defines the backend contract the vault coordinates over:
// a keyed atomic read-modify-write plus a best-effort secondary index write.
// Backends offer no transactions, no multi-key atomicity, and no push
// notifications; the single-key atomic update is the only mutation primitive.
package storage

import (
	"context"

	"pkt.systems/statevault/internal/lease"
)

// Record is the envelope persisted per key. Version never exceeds the
// migration registry's latest known version at the time this process wrote
// it.
type Record struct {
	Lease   *lease.Token   `json:"lease,omitempty"`
	Version int64          `json:"version"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Clone returns a copy that shares no mutable state with the receiver. The
// payload is copied one level deep; nested values are treated as immutable by
// convention (they only ever cross the boundary as decoded JSON).
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := &Record{Version: r.Version}
	if r.Lease != nil {
		tok := *r.Lease
		clone.Lease = &tok
	}
	if r.Payload != nil {
		clone.Payload = make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			clone.Payload[k] = v
		}
	}
	return clone
}

// UpdateFunc mutates one record inside the backend's atomic boundary. cur is
// nil when the key is absent. The returned record is committed; returning cur
// unchanged commits the envelope byte-for-byte as it was (backends require a
// value on every invocation). The returned ids are associated with the write
// and forwarded to subsequent index writes. An error aborts without commit.
type UpdateFunc func(cur *Record) (next *Record, ids []string, err error)

// Backend is the remote key-value service the vault coordinates over.
// Implementations must make AtomicUpdate an exactly-once-per-call atomic
// read-modify-write on one key, and must surface every failure as *Error.
type Backend interface {
	// AtomicUpdate applies fn to the current record for key and commits the
	// result as one indivisible step. It returns the committed record.
	AtomicUpdate(ctx context.Context, key string, fn UpdateFunc) (*Record, error)

	// WriteIndex records a ranking score for key in a secondary sorted
	// structure. Best effort: no atomicity relative to AtomicUpdate, may be
	// lost, may race with concurrent writers.
	WriteIndex(ctx context.Context, key string, score float64, ids []string) error

	Close() error
}
