// Package lease implements the pure time-arithmetic behind the vault's
// advisory lock tokens. Nothing here performs I/O; validity is always a
// function of the supplied wall-clock time so callers can never observe a
// stale cached answer.
package lease

import "time"

// Token marks cooperative ownership of a key. It is advisory: it expires on
// its own after the configured timeout and can be overwritten by a forced
// write, so it must not be mistaken for a hard mutex.
type Token struct {
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// New returns a token owned by holder as of now.
func New(holder string, now time.Time) Token {
	return Token{Holder: holder, AcquiredAt: now.UTC()}
}

// Valid reports whether the token is still live at now. A zero token is
// never valid.
func Valid(tok Token, timeout time.Duration, now time.Time) bool {
	if tok.Holder == "" || tok.AcquiredAt.IsZero() {
		return false
	}
	return now.Sub(tok.AcquiredAt) < timeout
}

// CanWrite reports whether holder may overwrite state guarded by tok: either
// the token has expired, or holder owns it.
func CanWrite(tok Token, timeout time.Duration, holder string, now time.Time) bool {
	if !Valid(tok, timeout, now) {
		return true
	}
	return tok.Holder == holder
}
