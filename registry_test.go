package statevault

import (
	"errors"
	"testing"
)

func TestRegistryLatestGrowsWithChain(t *testing.T) {
	t.Parallel()

	r := &registry{}
	if r.latest() != 0 {
		t.Fatalf("empty registry latest = %d, want 0", r.latest())
	}
	r.register(func(p Payload) (Payload, error) { return p, nil })
	r.register(func(p Payload) (Payload, error) { return p, nil })
	if r.latest() != 2 {
		t.Fatalf("latest = %d, want 2", r.latest())
	}
}

func TestResolveAppliesChainInOrder(t *testing.T) {
	t.Parallel()

	r := &registry{}
	r.register(func(p Payload) (Payload, error) {
		p["trail"] = p["trail"].(string) + "a"
		return p, nil
	})
	r.register(func(p Payload) (Payload, error) {
		p["trail"] = p["trail"].(string) + "b"
		return p, nil
	})

	got, version, err := r.resolve("k", Payload{"trail": ""}, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got["trail"] != "ab" {
		t.Fatalf("expected migrators applied in order, got %q", got["trail"])
	}
	if version != 2 {
		t.Fatalf("resolved version = %d, want 2", version)
	}
}

func TestResolveFromIntermediateVersion(t *testing.T) {
	t.Parallel()

	r := &registry{}
	r.register(func(p Payload) (Payload, error) {
		t.Fatal("v0 migrator must not run for a v1 payload")
		return p, nil
	})
	r.register(func(p Payload) (Payload, error) {
		p["v2"] = true
		return p, nil
	})

	got, version, err := r.resolve("k", Payload{}, 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got["v2"] != true || version != 2 {
		t.Fatalf("unexpected resolve result %+v at version %d", got, version)
	}
}

func TestResolveAheadOfRegistryReturnsUntouched(t *testing.T) {
	t.Parallel()

	r := &registry{}
	r.register(func(p Payload) (Payload, error) {
		t.Fatal("no migrator must run for a payload already ahead")
		return p, nil
	})

	payload := Payload{"x": 1}
	got, version, err := r.resolve("k", payload, 5)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if version != 5 {
		t.Fatalf("version = %d, want 5", version)
	}
	if got["x"] != 1 {
		t.Fatalf("payload altered: %+v", got)
	}
}

func TestResolveWrapsMigratorFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := &registry{}
	r.register(func(p Payload) (Payload, error) { return p, nil })
	r.register(func(Payload) (Payload, error) { return nil, boom })

	_, _, err := r.resolve("k", Payload{}, 0)
	var mErr *MigrationError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MigrationError, got %v", err)
	}
	if mErr.Key != "k" || mErr.FromVersion != 1 {
		t.Fatalf("unexpected failure detail: %+v", mErr)
	}
	if !errors.Is(err, boom) {
		t.Fatal("cause must be preserved for errors.Is")
	}
}
