package statevault

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"pkt.systems/statevault/internal/storage"
)

// retryState drives the per-call control loop. Modelling the loop as an
// explicit machine keeps cancellation and future timeout policies local to
// one switch instead of threaded through nested conditionals.
type retryState int

const (
	stateAttempting retryState = iota
	stateAwaitingPolicy
	stateBackoff
	stateDone
)

// attemptFunc runs one coordinator attempt. It returns nil on success,
// errContended on lease contention, a *storage.Error on backend failure, or
// any other error (migration failure) to abort the call outright.
type attemptFunc func(ctx context.Context, force bool) error

// run drives attempt until success or an explicit Fail decision. The attempt
// counter starts at 1 and increments at the top of every iteration. A Force
// decision makes every remaining attempt of this call forced; it never
// reverts. Each continuation sleeps a uniformly random duration inside the
// configured jitter window. Attempts within one call are strictly
// sequential; an in-flight backend call always runs to completion, so
// cancellation is only honoured between attempts and during backoff.
func (v *Vault) run(ctx context.Context, action Action, force bool, attempt attemptFunc) error {
	state := stateAttempting
	var lastErr error
	for {
		switch state {
		case stateAttempting:
			if err := ctx.Err(); err != nil {
				return err
			}
			action.Attempt++
			v.metrics.attempt(ctx, action.Kind)
			lastErr = attempt(ctx, force)
			switch {
			case lastErr == nil:
				state = stateDone
			case errors.Is(lastErr, errContended):
				state = stateAwaitingPolicy
			default:
				if _, ok := storage.AsError(lastErr); ok {
					state = stateAwaitingPolicy
					break
				}
				// Migration failures and other fatal errors skip the policy
				// layer entirely.
				return lastErr
			}

		case stateAwaitingPolicy:
			if errors.Is(lastErr, errContended) {
				decision := v.cfg.Locked(action)
				v.logger.Debug("vault.retry.locked_decision",
					"kind", action.Kind.String(),
					"key", action.Key,
					"attempt", action.Attempt,
					"decision", decision.String(),
				)
				switch decision {
				case Force:
					force = true
					state = stateBackoff
				case Retry:
					state = stateBackoff
				default:
					return &ContentionError{Key: action.Key, Kind: action.Kind, Attempts: action.Attempt}
				}
				break
			}
			be, _ := storage.AsError(lastErr)
			decision := v.cfg.Error(action, be.Code, be.Message)
			v.logger.Debug("vault.retry.error_decision",
				"kind", action.Kind.String(),
				"key", action.Key,
				"attempt", action.Attempt,
				"code", be.Code,
				"decision", decision.String(),
			)
			if decision != Retry && decision != Force {
				return lastErr
			}
			// Force from an Error policy has no meaning; treat it as Retry.
			state = stateBackoff

		case stateBackoff:
			delay := v.backoffDelay()
			v.metrics.backoff(ctx, delay)
			select {
			case <-v.clk.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			state = stateAttempting

		case stateDone:
			return nil
		}
	}
}

// backoffDelay picks a uniformly random delay inside
// [RetryDelayMin, RetryDelayMax].
func (v *Vault) backoffDelay() time.Duration {
	min, max := v.cfg.RetryDelayMin, v.cfg.RetryDelayMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}
