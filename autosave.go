package statevault

import (
	"context"
	"errors"
	"sync"
)

// autosavePulse is the cancellable handle for one key's background save
// loop. stop is idempotent: the pulse is removed exactly once no matter how
// many releasing saves race.
type autosavePulse struct {
	cancel chan struct{}
	once   sync.Once
}

func (p *autosavePulse) stop() {
	p.once.Do(func() { close(p.cancel) })
}

// startPulse begins the background save loop for key after a successful
// load. At most one pulse runs per key per vault; without a configured
// producer there is nothing to save, so no pulse is started.
func (v *Vault) startPulse(key string) {
	if v.cfg.Autosave == nil {
		return
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if _, exists := v.pulses[key]; exists {
		v.mu.Unlock()
		return
	}
	pulse := &autosavePulse{cancel: make(chan struct{})}
	v.pulses[key] = pulse
	v.mu.Unlock()

	v.logger.Debug("vault.autosave.start", "key", key, "interval", v.cfg.AutosaveInterval)
	go v.pulseLoop(key, pulse)
}

// stopPulse cancels and removes the pulse for key. Triggered only by a
// successful releasing save (or Close); if release never happens the pulse
// runs indefinitely, which is the documented caller responsibility.
func (v *Vault) stopPulse(key string) {
	v.mu.Lock()
	pulse, ok := v.pulses[key]
	if ok {
		delete(v.pulses, key)
	}
	v.mu.Unlock()
	if !ok {
		return
	}
	pulse.stop()
	v.logger.Debug("vault.autosave.stop", "key", key)
}

// pulseLoop issues one non-releasing, non-forced save attempt per tick,
// fire-and-forget: failures are logged and dropped, never surfaced or
// retried. Each successful tick also refreshes the lease as a side effect of
// the save. The save re-checks inside the update closure that this pulse is
// still the one registered for the key, so a tick that lost a race with a
// releasing save commits nothing and cannot re-install a cleared lease.
func (v *Vault) pulseLoop(key string, pulse *autosavePulse) {
	for {
		select {
		case <-pulse.cancel:
			return
		case <-v.clk.After(v.cfg.AutosaveInterval):
		}
		// A releasing save may have stopped the pulse while the tick fired.
		select {
		case <-pulse.cancel:
			return
		default:
		}

		payload := v.cfg.Autosave(key)
		if payload == nil {
			continue
		}
		ctx := context.Background()
		v.metrics.autosaveTick(ctx)
		err := v.attemptSave(ctx, key, payload, false, false, func() bool {
			return v.pulseCurrent(key, pulse)
		})
		if errors.Is(err, errStalePulse) {
			return
		}
		if err != nil {
			v.logger.Warn("vault.autosave.save_failed", "key", key, "error", err)
			continue
		}
		v.logger.Debug("vault.autosave.saved", "key", key)
	}
}

// pulseCurrent reports whether p is still the registered pulse for key.
func (v *Vault) pulseCurrent(key string, p *autosavePulse) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pulses[key] == p
}
