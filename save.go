package statevault

import (
	"context"

	"pkt.systems/statevault/internal/lease"
	"pkt.systems/statevault/internal/storage"
)

// attemptSave is one write attempt: exactly one atomic update. The write
// goes through when forced or when lease discipline allows it (expired token
// or our own); the payload is stored at the latest schema version and the
// lease is cleared when releasing, refreshed otherwise. On success a
// releasing save stops the key's autosave pulse exactly once, and a payload
// carrying a rank value triggers the best-effort secondary index write
// outside the atomic boundary.
//
// alive, when non-nil, is re-checked inside the update closure: a save whose
// autosave pulse was stopped in the meantime commits nothing and reports
// errStalePulse.
func (v *Vault) attemptSave(ctx context.Context, key string, payload Payload, release, force bool, alive func() bool) error {
	ids := v.associatedIDs(payload)
	var contended, stale bool
	_, err := v.backend.AtomicUpdate(ctx, key, func(cur *storage.Record) (*storage.Record, []string, error) {
		contended, stale = false, false

		if alive != nil && !alive() {
			stale = true
			return cur, nil, nil
		}
		now := v.clk.Now()
		var stored lease.Token
		if cur != nil && cur.Lease != nil {
			stored = *cur.Lease
		}
		if !force && !lease.CanWrite(stored, v.cfg.LockTimeout, v.cfg.Holder, now) {
			contended = true
			return cur, nil, nil
		}
		next := &storage.Record{
			Version: v.migrations.latest(),
			Payload: clonePayload(payload),
		}
		if !release {
			tok := lease.New(v.cfg.Holder, now)
			next.Lease = &tok
		}
		return next, ids, nil
	})
	if err != nil {
		return err
	}
	if stale {
		return errStalePulse
	}
	if contended {
		v.metrics.contended(ctx, ActionSave)
		return errContended
	}

	if release {
		v.stopPulse(key)
	}
	if score, ok := v.rankScore(payload); ok {
		if ierr := v.backend.WriteIndex(ctx, key, score, ids); ierr != nil {
			// Best effort: an index write failure never fails the save.
			v.logger.Warn("vault.index.write_failed", "key", key, "score", score, "error", ierr)
		} else {
			v.metrics.indexWrite(ctx)
		}
	}
	return nil
}

// rankScore extracts the payload's ordering value under the configured rank
// field, accepting the numeric types a payload can plausibly carry (float64
// from decoded JSON, plus in-process integer literals).
func (v *Vault) rankScore(payload Payload) (float64, bool) {
	raw, ok := payload[v.cfg.RankField]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// associatedIDs extracts the payload's associated id list under the
// configured ids field, tolerating both []string and the []any form JSON
// decoding produces.
func (v *Vault) associatedIDs(payload Payload) []string {
	raw, ok := payload[v.cfg.IDsField]
	if !ok {
		return nil
	}
	switch list := raw.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		ids := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		return ids
	default:
		return nil
	}
}
