package lease_test

import (
	"testing"
	"time"

	"pkt.systems/statevault/internal/lease"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestValidityIsMonotonicInTime(t *testing.T) {
	t.Parallel()

	const timeout = 120 * time.Second
	tok := lease.New("holder-a", epoch)

	if !lease.Valid(tok, timeout, epoch) {
		t.Fatal("fresh token should be valid at acquisition time")
	}
	if !lease.Valid(tok, timeout, epoch.Add(119*time.Second)) {
		t.Fatal("token should be valid just before timeout")
	}
	if lease.Valid(tok, timeout, epoch.Add(120*time.Second)) {
		t.Fatal("token should be invalid exactly at timeout")
	}
	for _, after := range []time.Duration{121 * time.Second, time.Hour, 24 * time.Hour} {
		if lease.Valid(tok, timeout, epoch.Add(after)) {
			t.Fatalf("token should stay invalid at +%v", after)
		}
	}
}

func TestZeroTokenNeverValid(t *testing.T) {
	t.Parallel()

	if lease.Valid(lease.Token{}, time.Hour, epoch) {
		t.Fatal("zero token must not be valid")
	}
	if !lease.CanWrite(lease.Token{}, time.Hour, "anyone", epoch) {
		t.Fatal("anyone may write over a zero token")
	}
}

func TestCanWrite(t *testing.T) {
	t.Parallel()

	const timeout = 60 * time.Second
	tok := lease.New("holder-a", epoch)

	if !lease.CanWrite(tok, timeout, "holder-a", epoch.Add(30*time.Second)) {
		t.Fatal("owner should be able to write under a live token")
	}
	if lease.CanWrite(tok, timeout, "holder-b", epoch.Add(30*time.Second)) {
		t.Fatal("non-owner must not write under a live token")
	}
	if !lease.CanWrite(tok, timeout, "holder-b", epoch.Add(61*time.Second)) {
		t.Fatal("anyone may write once the token expired")
	}
}
