// Package s3 implements nodestore.Store on S3-compatible object
// storage. Every run writes under its own key prefix:
//
//	<prefix>/<run id>/outputs/<step>.json
//	<prefix>/<run id>/views/<view key>.json
//
// Objects hold cty JSON as produced by internal/codec.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/specialistvlad/burstbeam/internal/codec"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/internal/nodestore"
	"github.com/zclconf/go-cty/cty"
)

const contentType = "application/json"

// Store is a nodestore.Store backed by a minio client.
type Store struct {
	client *minio.Client
	bucket string
	root   string
}

var _ nodestore.Store = (*Store)(nil)

// New connects to the configured endpoint, creates the bucket when it does
// not exist, and returns a store scoped to runID.
func New(ctx context.Context, cfg Config, runID string) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 store: create client: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("s3 store: ensure bucket %q: %w", cfg.Bucket, err)
	}
	ctxlog.FromContext(ctx).Info("S3 store ready.", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket, "run", runID)
	return NewWithClient(client, cfg.Bucket, cfg.Prefix, runID)
}

// NewWithClient returns a store using an existing client.
func NewWithClient(client *minio.Client, bucket, prefix, runID string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 store: minio client is required")
	}
	return &Store{client: client, bucket: bucket, root: path.Join(prefix, runID)}, nil
}

func (s *Store) outputKey(step string) string { return path.Join(s.root, "outputs", step+".json") }
func (s *Store) viewKey(key string) string { return path.Join(s.root, "views", key+".json") }

// SetOutput writes the output bag of a step.
func (s *Store) SetOutput(ctx context.Context, step string, bag []cty.Value) error {
	b, err := codec.EncodeBag(bag)
	if err != nil {
		return err
	}
	return s.put(ctx, s.outputKey(step), b)
}

// GetOutput reads the output bag of a step.
func (s *Store) GetOutput(ctx context.Context, step string) ([]cty.Value, bool, error) {
	b, ok, err := s.get(ctx, s.outputKey(step))
	if err != nil || !ok {
		return nil, ok, err
	}
	bag, err := codec.DecodeBag(b)
	if err != nil {
		return nil, false, err
	}
	return bag, true, nil
}

// SetView writes a materialized view value.
func (s *Store) SetView(ctx context.Context, key string, v cty.Value) error {
	b, err := codec.EncodeValue(v)
	if err != nil {
		return err
	}
	return s.put(ctx, s.viewKey(key), b)
}

// GetView reads a materialized view value.
func (s *Store) GetView(ctx context.Context, key string) (cty.Value, bool, error) {
	b, ok, err := s.get(ctx, s.viewKey(key))
	if err != nil || !ok {
		return cty.NilVal, ok, err
	}
	v, err := codec.DecodeValue(b)
	if err != nil {
		return cty.NilVal, false, err
	}
	return v, true, nil
}

func (s *Store) put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("s3 store: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("s3 store: stat %s: %w", key, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("s3 store: get %s: %w", key, err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, false, fmt.Errorf("s3 store: read %s: %w", key, err)
	}
	return b, true, nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
