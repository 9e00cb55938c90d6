// Package s3 implements storage.Backend on any S3-compatible object store.
// The keyed atomic update is emulated with ETag-conditional puts: read the
// record object, apply the mutation, and write back with If-Match, retrying
// internally when another writer slipped in between.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pkt.systems/statevault/internal/storage"
)

// casAttempts bounds the internal read/mutate/put loop. Conditional-put
// conflicts beyond this are surfaced as a conflict error and left to the
// caller's retry policy.
const casAttempts = 5

// Config describes the bucket the vault stores records in.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	Insecure       bool
	ForcePathStyle bool
	// CustomCreds overrides the default env/file/IAM credential chain.
	CustomCreds *credentials.Credentials
}

// Store implements storage.Backend over an S3 bucket.
type Store struct {
	client *minio.Client
	cfg    Config
}

// New constructs a Store using the provided configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}
	creds := cfg.CustomCreds
	if creds == nil {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}
	options := &minio.Options{
		Creds:  creds,
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Store{client: client, cfg: cfg}, nil
}

// Close satisfies storage.Backend and is a no-op for the S3 client.
func (s *Store) Close() error { return nil }

// AtomicUpdate emulates the keyed read-modify-write with conditional puts.
func (s *Store) AtomicUpdate(ctx context.Context, key string, fn storage.UpdateFunc) (*storage.Record, error) {
	object := s.recordObject(key)
	for attempt := 1; attempt <= casAttempts; attempt++ {
		cur, etag, err := s.getRecord(ctx, object)
		if err != nil {
			return nil, err
		}
		next, _, err := fn(cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = cur
		}
		if next == nil {
			// Absent key committed unchanged stays absent; nothing to put.
			return nil, nil
		}
		body, err := json.Marshal(next)
		if err != nil {
			return nil, storage.NewError(storage.CodeInvalid, "s3: encode record %q: %v", key, err)
		}
		opts := minio.PutObjectOptions{ContentType: "application/json"}
		if etag != "" {
			opts.SetMatchETag(etag)
		} else {
			opts.SetMatchETagExcept("*")
		}
		_, err = s.client.PutObject(ctx, s.cfg.Bucket, object, bytes.NewReader(body), int64(len(body)), opts)
		if err == nil {
			return next.Clone(), nil
		}
		if isPreconditionFailed(err) {
			continue
		}
		return nil, mapError("put record", err)
	}
	return nil, storage.NewError(storage.CodeConflict, "s3: atomic update on %q kept losing conditional puts", key)
}

// WriteIndex puts the score object for key without any precondition. Best
// effort: concurrent writers may overwrite each other.
func (s *Store) WriteIndex(ctx context.Context, key string, score float64, ids []string) error {
	body, err := json.Marshal(indexEntry{Score: score, IDs: ids})
	if err != nil {
		return storage.NewError(storage.CodeInvalid, "s3: encode index %q: %v", key, err)
	}
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, s.indexObject(key), bytes.NewReader(body), int64(len(body)), opts)
	if err != nil {
		return mapError("put index", err)
	}
	return nil
}

type indexEntry struct {
	Score float64  `json:"score"`
	IDs   []string `json:"ids,omitempty"`
}

func (s *Store) getRecord(ctx context.Context, object string) (*storage.Record, string, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", mapError("get record", err)
	}
	defer obj.Close()
	stat, err := obj.Stat()
	if err != nil {
		if isNotFound(err) {
			return nil, "", nil
		}
		return nil, "", mapError("stat record", err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", mapError("read record", err)
	}
	var rec storage.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, "", storage.NewError(storage.CodeInternal, "s3: decode record %q: %v", object, err)
	}
	return &rec, stat.ETag, nil
}

func (s *Store) recordObject(key string) string {
	return s.objectPath("state", key+".json")
}

func (s *Store) indexObject(key string) string {
	return s.objectPath("index", key+".json")
}

func (s *Store) objectPath(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	if s.cfg.Prefix != "" {
		segments = append(segments, s.cfg.Prefix)
	}
	segments = append(segments, parts...)
	return strings.Join(segments, "/")
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func isPreconditionFailed(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusPreconditionFailed || resp.Code == "PreconditionFailed"
}

// mapError converts a minio failure into the structured backend error once,
// at this boundary. Network-level failures without an HTTP status map to an
// unavailable code so the caller's policy can treat them as transient.
func mapError(op string, err error) *storage.Error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 {
		return storage.NewError(storage.CodeUnavailable, "s3: %s: %v", op, err)
	}
	msg := resp.Message
	if msg == "" {
		msg = err.Error()
	}
	return storage.NewError(resp.StatusCode, "s3: %s: %s", op, msg)
}
