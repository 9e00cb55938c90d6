package statevault

import "fmt"

// ActionKind distinguishes the two vault operations a policy can be asked
// about.
type ActionKind int

const (
	// ActionLoad identifies a lease-acquiring load attempt.
	ActionLoad ActionKind = iota + 1
	// ActionSave identifies a save attempt.
	ActionSave
)

func (k ActionKind) String() string {
	switch k {
	case ActionLoad:
		return "load"
	case ActionSave:
		return "save"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Action describes one attempt of a Load or Save call. It is handed to
// policy callbacks and is immutable per attempt; the retry loop increments
// Attempt on every iteration, starting at 1.
type Action struct {
	Kind    ActionKind
	Key     string
	Attempt int
	// ReleaseRequested is only meaningful for ActionSave.
	ReleaseRequested bool
}

// Decision is a policy callback's verdict on a failed attempt.
type Decision int

const (
	// Fail aborts the call, surfacing a contention error or the raw backend
	// error to the caller.
	Fail Decision = iota + 1
	// Retry runs another attempt after a jittered backoff.
	Retry
	// Force retries with force enabled for every remaining attempt of this
	// call, bypassing live leases held elsewhere. Only meaningful from a
	// Locked policy.
	Force
)

func (d Decision) String() string {
	switch d {
	case Fail:
		return "fail"
	case Retry:
		return "retry"
	case Force:
		return "force"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// LockedPolicy decides what to do when an attempt finds the key leased by a
// currently valid holder elsewhere.
type LockedPolicy func(action Action) Decision

// ErrorPolicy decides what to do when the backend rejects an attempt. It
// receives the backend's structured code and message unmodified.
type ErrorPolicy func(action Action, code int, message string) Decision
