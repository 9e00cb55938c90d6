package statevault

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	minioCredentials "github.com/minio/minio-go/v7/pkg/credentials"

	"pkt.systems/statevault/internal/storage"
	"pkt.systems/statevault/internal/storage/memory"
	"pkt.systems/statevault/internal/storage/s3"
)

func openBackend(store string) (storage.Backend, error) {
	u, err := url.Parse(store)
	if err != nil {
		return nil, fmt.Errorf("parse store URL: %w", err)
	}
	switch u.Scheme {
	case "memory", "mem", "":
		return memory.New(), nil
	case "s3":
		cfg, err := buildS3Config(u)
		if err != nil {
			return nil, err
		}
		return s3.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q (expected mem:// or s3://)", u.Scheme)
	}
}

// buildS3Config parses s3://host[:port]/bucket[/prefix] URLs targeting AWS or
// any S3-compatible service (MinIO, etc.).
func buildS3Config(u *url.URL) (s3.Config, error) {
	if u.Host == "" {
		return s3.Config{}, fmt.Errorf("s3 store missing host (expected s3://host[:port]/bucket[/prefix])")
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return s3.Config{}, fmt.Errorf("s3 store missing bucket (expected s3://host[:port]/bucket[/prefix])")
	}
	cfg := s3.Config{
		Endpoint: u.Host,
		Bucket:   parts[0],
		Region:   u.Query().Get("region"),
	}
	if len(parts) == 2 {
		cfg.Prefix = parts[1]
	}
	if raw := u.Query().Get("insecure"); raw != "" {
		insecure, err := strconv.ParseBool(raw)
		if err != nil {
			return s3.Config{}, fmt.Errorf("s3 store: invalid insecure value %q", raw)
		}
		cfg.Insecure = insecure
	}
	if raw := u.Query().Get("pathstyle"); raw != "" {
		pathStyle, err := strconv.ParseBool(raw)
		if err != nil {
			return s3.Config{}, fmt.Errorf("s3 store: invalid pathstyle value %q", raw)
		}
		cfg.ForcePathStyle = pathStyle
	}
	accessKey := u.Query().Get("access-key")
	secretKey := u.Query().Get("secret-key")
	if accessKey != "" && secretKey != "" {
		cfg.CustomCreds = minioCredentials.NewStaticV4(accessKey, secretKey, "")
	}
	return cfg, nil
}
