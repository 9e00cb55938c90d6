// Package statevault is a concurrency-safe access layer over a remote,
// eventually-consistent key-value backend that exposes only a keyed atomic
// read-modify-write plus a best-effort secondary sorted index write. Multiple
// independent processes may target the same key; the vault provides
// cooperative mutual exclusion via time-bound leases, transparent lazy schema
// migration of stored payloads, and a caller-driven retry loop for contention
// and backend failures.
//
// # Opening a vault
//
// The backend is selected by the Store URL. The in-memory backend suits tests
// and local development; any S3-compatible object store works for real
// deployments.
//
//	vault, err := statevault.New(statevault.Config{
//	    Store:       "s3://s3.eu-north-1.amazonaws.com/savegames/prod",
//	    LockTimeout: 2 * time.Minute,
//	    New: func(key string) statevault.Payload {
//	        return statevault.Payload{"coins": 0}
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer vault.Close()
//
// # Loading and saving
//
// Load acquires the key's lease and returns the payload migrated to the
// latest registered schema version. Save writes under lease discipline;
// release=true hands the lease back and stops the key's autosave pulse.
//
//	data, err := vault.Load(ctx, "p1")
//	if err != nil {
//	    return err
//	}
//	data["coins"] = data["coins"].(float64) + 10
//	if err := vault.Save(ctx, "p1", data, true); err != nil {
//	    return err
//	}
//
// # Leases are advisory
//
// A lease expires on its own after LockTimeout and can be overridden by a
// forced attempt, so it must never be mistaken for a hard mutex. When a Load
// or Save loses to a live lease held elsewhere, the configured Locked policy
// decides per attempt whether to fail, retry, or force; backend failures are
// routed through the Error policy the same way. Between attempts the vault
// sleeps a uniformly random duration inside the configured jitter window to
// avoid hammering a rate-limited backend.
//
// # Schema migration
//
// Register migrations before the first Load or Save:
//
//	vault.RegisterMigration(func(p statevault.Payload) (statevault.Payload, error) {
//	    p["gems"] = 0 // v0 -> v1
//	    return p, nil
//	})
//
// Payloads stored at older versions are upgraded in order at load time. A
// failing migrator aborts the operation with *MigrationError and is never
// retried: migrators are expected to be total, so a failure is a programming
// defect.
package statevault
