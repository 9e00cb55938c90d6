package statevault

import (
	"context"

	"pkt.systems/statevault/internal/lease"
	"pkt.systems/statevault/internal/storage"
)

// attemptLoad is one lease-acquiring attempt: exactly one atomic update.
// Inside the update an absent record acts as an empty envelope. With force,
// or when the stored lease has expired, a fresh token is installed and the
// existing payload captured; otherwise the envelope is committed unchanged
// and the attempt reports contention. Backend failures pass through
// unmodified; nothing is retried at this layer.
func (v *Vault) attemptLoad(ctx context.Context, key string, force bool) (Payload, error) {
	var (
		contended bool
		captured  Payload
		version   int64
		absent    bool
	)
	_, err := v.backend.AtomicUpdate(ctx, key, func(cur *storage.Record) (*storage.Record, []string, error) {
		// Backends may re-run the closure on internal CAS conflicts, so the
		// captured state is reset on every invocation.
		contended, captured, version, absent = false, nil, 0, false

		now := v.clk.Now()
		rec := cur
		if rec == nil {
			rec = &storage.Record{}
		}
		var stored lease.Token
		if rec.Lease != nil {
			stored = *rec.Lease
		}
		if !force && lease.Valid(stored, v.cfg.LockTimeout, now) {
			contended = true
			return cur, nil, nil
		}
		tok := lease.New(v.cfg.Holder, now)
		next := rec.Clone()
		next.Lease = &tok
		captured = clonePayload(rec.Payload)
		version = rec.Version
		absent = rec.Payload == nil
		return next, nil, nil
	})
	if err != nil {
		return nil, err
	}
	if contended {
		v.metrics.contended(ctx, ActionLoad)
		return nil, errContended
	}

	payload := captured
	if absent {
		payload = v.cfg.New(key)
		if payload == nil {
			payload = Payload{}
		}
	} else {
		var resolved Payload
		resolved, _, err = v.migrations.resolve(key, payload, version)
		if err != nil {
			// Fatal: migrators are total by contract, so this aborts the
			// whole call without consulting any policy.
			return nil, err
		}
		payload = resolved
	}
	v.startPulse(key)
	return payload, nil
}

// clonePayload copies the top level of a payload so closure captures and
// stored records never alias caller-owned maps.
func clonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	clone := make(Payload, len(p))
	for k, val := range p {
		clone[k] = val
	}
	return clone
}
