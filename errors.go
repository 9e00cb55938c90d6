package statevault

import (
	"errors"
	"fmt"
)

// errContended signals internally that an attempt committed the envelope
// unchanged because a valid lease is held elsewhere. Callers never see it;
// the retry loop converts a Fail decision into *ContentionError.
var errContended = errors.New("statevault: lease held elsewhere")

// errStalePulse signals internally that an autosave tick found its pulse
// unregistered inside the update closure and committed nothing.
var errStalePulse = errors.New("statevault: autosave pulse stopped")

// ErrClosed is returned by operations on a vault after Close.
var ErrClosed = errors.New("statevault: vault closed")

// ContentionError is returned when a Load or Save gives up because the key's
// lease is held by a currently valid holder elsewhere and the Locked policy
// decided to fail.
type ContentionError struct {
	Key      string
	Kind     ActionKind
	Attempts int
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("statevault: %s %q: lease held elsewhere (gave up after %d attempt(s))",
		e.Kind, e.Key, e.Attempts)
}

// MigrationError is returned when a registered migrator fails. Migrators are
// expected to be total; a failure indicates a programming defect, so it is
// never routed through policy callbacks and never retried. There is no
// rollback.
type MigrationError struct {
	Key         string
	FromVersion int64
	Err         error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("statevault: migrating %q from version %d: %v", e.Key, e.FromVersion, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
