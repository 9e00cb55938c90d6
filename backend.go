package statevault

import (
	"pkt.systems/statevault/internal/clock"
	"pkt.systems/statevault/internal/storage"
)

// Backend is the storage contract a Vault operates on: a keyed atomic
// read-modify-write plus a best-effort secondary index write. The built-in
// memory and s3 backends are selected through Config.Store; custom
// implementations plug in through Config.Backend.
type Backend = storage.Backend

// Record is the envelope a Backend stores per key.
type Record = storage.Record

// UpdateFunc is the mutation a Backend applies atomically. A nil current
// record means the key is absent; returning nil commits the input unchanged.
type UpdateFunc = storage.UpdateFunc

// BackendError is the structured error Backend implementations surface. Its
// code reaches the configured Error policy unmodified.
type BackendError = storage.Error

// NewBackendError builds a BackendError for custom Backend implementations.
// Codes follow HTTP status conventions; 429 and anything >= 500 is treated
// as transient by the default Error policy.
func NewBackendError(code int, format string, args ...any) *BackendError {
	return storage.NewError(code, format, args...)
}

// Clock supplies time to leases, retry backoff, and the autosave pulse.
// Inject a fake through Config.Clock to make lease expiry deterministic in
// tests.
type Clock = clock.Clock
