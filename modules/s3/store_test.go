package s3

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// fakeS3 serves the handful of object requests the store issues.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.Count(strings.Trim(r.URL.Path, "/"), "/") == 0 {
		// Bucket level request.
		w.WriteHeader(http.StatusOK)
		return
	}
	switch r.Method {
	case http.MethodPut:
		body, err := readBody(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// readBody returns the object payload, removing aws-chunked framing when the
// client streams the upload.
func readBody(r *http.Request) ([]byte, error) {
	if !strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
		return io.ReadAll(r.Body)
	}
	var out bytes.Buffer
	br := bufio.NewReader(r.Body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, size); err != nil {
			return nil, err
		}
		if _, err := br.ReadString('\n'); err != nil {
			return nil, err
		}
	}
}

func newTestStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4("key", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)

	s, err := NewWithClient(client, "runs", "burstbeam", "run-1")
	require.NoError(t, err)
	return s, fake
}

func TestStore_OutputRoundTrip(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetOutput(ctx, "s0")
	require.NoError(t, err)
	assert.False(t, ok)

	bag := []cty.Value{cty.StringVal("a"), cty.NumberIntVal(3)}
	require.NoError(t, s.SetOutput(ctx, "s0", bag))

	_, stored := fake.objects["/runs/burstbeam/run-1/outputs/s0.json"]
	assert.True(t, stored, "object key layout")

	got, ok, err := s.GetOutput(ctx, "s0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].AsString())
	assert.True(t, got[1].Equals(cty.NumberIntVal(3)).True())
}

func TestStore_ViewRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	v := cty.ObjectVal(map[string]cty.Value{"k": cty.StringVal("v")})
	require.NoError(t, s.SetView(ctx, "v0-lookup", v))

	got, ok, err := s.GetView(ctx, "v0-lookup")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equals(v).True())
}

func TestConfigFromOptions(t *testing.T) {
	cfg, err := ConfigFromOptions(map[string]string{
		"endpoint":   "localhost:9000",
		"bucket":     "runs",
		"access_key": "a",
		"secret_key": "b",
		"use_ssl":    "true",
	})
	require.NoError(t, err)
	assert.True(t, cfg.UseSSL)
	assert.Equal(t, "runs", cfg.Bucket)

	_, err = ConfigFromOptions(map[string]string{"endpoint": "localhost:9000"})
	assert.ErrorContains(t, err, "bucket is required")

	_, err = ConfigFromOptions(map[string]string{"use_ssl": "maybe"})
	assert.ErrorContains(t, err, "invalid use_ssl")
}

func TestNewWithClientRequiresClient(t *testing.T) {
	_, err := NewWithClient(nil, "b", "", "run")
	assert.Error(t, err)
}
