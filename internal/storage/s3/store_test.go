package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	minio "github.com/minio/minio-go/v7"

	"pkt.systems/statevault/internal/storage"
)

func setupFakeS3(t *testing.T) (*httptest.Server, Config) {
	t.Helper()
	backend := s3mem.New()
	fs := gofakes3.New(backend)
	server := httptest.NewServer(fs.Server())
	bucket := "statevault-test"
	if err := backend.CreateBucket(bucket); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	endpoint := strings.TrimPrefix(server.URL, "http://")
	os.Setenv("AWS_ACCESS_KEY_ID", "test")
	os.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	cfg := Config{
		Endpoint:       endpoint,
		Region:         "us-east-1",
		Bucket:         bucket,
		Insecure:       true,
		ForcePathStyle: true,
	}
	return server, cfg
}

func TestAtomicUpdateCreateThenUpdate(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	created, err := store.AtomicUpdate(ctx, "alpha", func(cur *storage.Record) (*storage.Record, []string, error) {
		if cur != nil {
			t.Fatalf("expected absent record, got %+v", cur)
		}
		return &storage.Record{Version: 1, Payload: map[string]any{"coins": float64(3)}}, nil, nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 || created.Payload["coins"] != float64(3) {
		t.Fatalf("unexpected created record %+v", created)
	}

	updated, err := store.AtomicUpdate(ctx, "alpha", func(cur *storage.Record) (*storage.Record, []string, error) {
		if cur == nil || cur.Payload["coins"] != float64(3) {
			t.Fatalf("expected the stored record, got %+v", cur)
		}
		next := cur.Clone()
		next.Payload["coins"] = float64(4)
		return next, nil, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Payload["coins"] != float64(4) {
		t.Fatalf("expected the updated payload, got %+v", updated.Payload)
	}
}

func TestAtomicUpdateRetriesWhenConditionalPutLoses(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.AtomicUpdate(ctx, "alpha", func(*storage.Record) (*storage.Record, []string, error) {
		return &storage.Record{Payload: map[string]any{"coins": float64(1)}}, nil, nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	invocations := 0
	if _, err := store.AtomicUpdate(ctx, "alpha", func(cur *storage.Record) (*storage.Record, []string, error) {
		invocations++
		if invocations == 1 {
			// Another writer bumps the object between our read and our
			// conditional put, invalidating the captured ETag.
			sneak, mErr := json.Marshal(&storage.Record{Payload: map[string]any{"coins": float64(50)}})
			if mErr != nil {
				t.Fatalf("marshal interloper record: %v", mErr)
			}
			if _, pErr := store.client.PutObject(ctx, cfg.Bucket, store.recordObject("alpha"),
				bytes.NewReader(sneak), int64(len(sneak)),
				minio.PutObjectOptions{ContentType: "application/json"}); pErr != nil {
				t.Fatalf("interloper put: %v", pErr)
			}
		}
		next := cur.Clone()
		next.Payload["coins"] = float64(2)
		return next, nil, nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if invocations != 2 {
		t.Fatalf("expected the first conditional put to lose and the closure to re-run, ran %d times", invocations)
	}

	rec, _, err := store.getRecord(ctx, store.recordObject("alpha"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if rec.Payload["coins"] != float64(2) {
		t.Fatalf("expected the retried update to win, got %+v", rec.Payload)
	}
}

func TestAtomicUpdateAbsentUnchangedStaysAbsent(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	rec, err := store.AtomicUpdate(ctx, "ghost", func(cur *storage.Record) (*storage.Record, []string, error) {
		if cur != nil {
			t.Fatalf("expected absent record, got %+v", cur)
		}
		return nil, nil, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec != nil {
		t.Fatalf("committing an absent key unchanged must yield nil, got %+v", rec)
	}
	got, etag, err := store.getRecord(ctx, store.recordObject("ghost"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got != nil || etag != "" {
		t.Fatalf("expected no object for the key, got %+v (etag %q)", got, etag)
	}
}

func TestAtomicUpdateFnErrorAbortsWithoutWrite(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	boom := storage.NewError(storage.CodeInvalid, "refused")
	_, err = store.AtomicUpdate(ctx, "alpha", func(*storage.Record) (*storage.Record, []string, error) {
		return nil, nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the mutation error unchanged, got %v", err)
	}
	got, _, err := store.getRecord(ctx, store.recordObject("alpha"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got != nil {
		t.Fatalf("a failed mutation must not write, got %+v", got)
	}
}

func TestWriteIndexPutsScoreDocumentUnderPrefix(t *testing.T) {
	server, cfg := setupFakeS3(t)
	defer server.Close()

	cfg.Prefix = "prod/eu"
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.WriteIndex(ctx, "alpha", 42.5, []string{"u-1", "u-2"}); err != nil {
		t.Fatalf("write index: %v", err)
	}
	obj, err := store.client.GetObject(ctx, cfg.Bucket, "prod/eu/index/alpha.json", minio.GetObjectOptions{})
	if err != nil {
		t.Fatalf("get index object: %v", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		t.Fatalf("read index object: %v", err)
	}
	var entry indexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decode index object: %v", err)
	}
	if entry.Score != 42.5 {
		t.Fatalf("expected score 42.5, got %v", entry.Score)
	}
	if len(entry.IDs) != 2 || entry.IDs[0] != "u-1" || entry.IDs[1] != "u-2" {
		t.Fatalf("expected associated ids forwarded, got %v", entry.IDs)
	}
}

func TestMapErrorCodes(t *testing.T) {
	t.Parallel()

	notFound := mapError("get record", minio.ErrorResponse{StatusCode: http.StatusNotFound, Message: "no such key"})
	if notFound.Code != storage.CodeNotFound {
		t.Fatalf("expected code 404, got %d", notFound.Code)
	}
	if !strings.Contains(notFound.Message, "no such key") {
		t.Fatalf("expected the server message preserved, got %q", notFound.Message)
	}

	throttled := mapError("put record", minio.ErrorResponse{StatusCode: http.StatusTooManyRequests, Message: "slow down"})
	if throttled.Code != storage.CodeThrottled || !storage.IsTransient(throttled) {
		t.Fatalf("expected a transient throttled error, got %+v", throttled)
	}

	network := mapError("put record", errors.New("dial tcp: connection refused"))
	if network.Code != storage.CodeUnavailable || !storage.IsTransient(network) {
		t.Fatalf("expected network failures mapped to a transient unavailable code, got %+v", network)
	}

	forbidden := mapError("stat record", minio.ErrorResponse{StatusCode: http.StatusForbidden})
	if forbidden.Code != storage.CodeForbidden || storage.IsTransient(forbidden) {
		t.Fatalf("expected a permanent forbidden code, got %+v", forbidden)
	}
}

func TestObjectPathsRespectPrefix(t *testing.T) {
	t.Parallel()

	bare := &Store{cfg: Config{Bucket: "b"}}
	if got := bare.recordObject("alpha"); got != "state/alpha.json" {
		t.Fatalf("record object = %q", got)
	}
	prefixed := &Store{cfg: Config{Bucket: "b", Prefix: "prod/eu"}}
	if got := prefixed.recordObject("alpha"); got != "prod/eu/state/alpha.json" {
		t.Fatalf("record object = %q", got)
	}
	if got := prefixed.indexObject("alpha"); got != "prod/eu/index/alpha.json" {
		t.Fatalf("index object = %q", got)
	}
}
