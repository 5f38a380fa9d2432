// Package socketio executes steps on remote workers over socket.io.
//
// The coordinator side (Backend) emits one "submit" event per task and
// receives "result" events; the worker side (Worker) evaluates submitted
// tasks with an in-process local backend. Payloads are JSON strings whose
// values are cty JSON, so element types survive the round trip.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// ClientConfig locates a worker.
type ClientConfig struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// ClientConfigFromOptions reads the address, namespace,
// insecure_skip_verify and connect_timeout options.
func ClientConfigFromOptions(opts backend.Options) (ClientConfig, error) {
	cfg := ClientConfig{
		URL:            opts["address"],
		Namespace:      opts["namespace"],
		ConnectTimeout: 15 * time.Second,
	}
	if cfg.URL == "" {
		return ClientConfig{}, fmt.Errorf("socketio backend: address is required")
	}
	if raw, ok := opts["insecure_skip_verify"]; ok {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return ClientConfig{}, fmt.Errorf("socketio backend: invalid insecure_skip_verify %q", raw)
		}
		cfg.InsecureSkipVerify = b
	}
	if raw, ok := opts["connect_timeout"]; ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return ClientConfig{}, fmt.Errorf("socketio backend: invalid connect_timeout %q: %w", raw, err)
		}
		cfg.ConnectTimeout = d
	}
	return cfg, nil
}

// Backend submits tasks to one remote worker.
type Backend struct {
	io *socket.Socket

	results chan backend.Result
	done    chan struct{}

	mu      sync.Mutex
	pending map[string]backend.Handle

	// sendMu guards closing results against in-flight deliveries.
	sendMu sync.RWMutex
	closed bool

	shutdownOnce sync.Once
}

var _ backend.Backend = (*Backend)(nil)

// Dial connects to the worker and waits until the connection is up.
func Dial(ctx context.Context, cfg ClientConfig) (*Backend, error) {
	logger := ctxlog.FromContext(ctx).With("backend", "socketio", "url", cfg.URL)
	logger.Info("Connecting to worker...")

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	b := &Backend{
		io:      io,
		results: make(chan backend.Result),
		done:    make(chan struct{}),
		pending: make(map[string]backend.Handle),
	}

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		logger.Debug("EVENT HANDLER: 'connect_error' event fired", "error", err)
		connectChan <- err
	})
	io.On(types.EventName(EventResult), func(args ...any) {
		b.onResult(ctx, args)
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		logger.Warn("Disconnected from worker.", "reason", fmt.Sprint(reason...))
		b.failPending(fmt.Errorf("connection to worker lost"))
	})

	io.Connect()

	timer := time.NewTimer(cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return b, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", cfg.ConnectTimeout)
	}
}

// Submit emits the task to the worker.
func (b *Backend) Submit(ctx context.Context, task backend.Task) (backend.Handle, error) {
	h := backend.Handle{ID: uuid.NewString(), Step: task.Step}
	payload, err := encodeTask(h.ID, task)
	if err != nil {
		return backend.Handle{}, fmt.Errorf("encode task %s: %w", task.Step, err)
	}

	select {
	case <-b.done:
		return backend.Handle{}, backend.ErrClosed
	default:
	}
	if !b.io.Connected() {
		return backend.Handle{}, fmt.Errorf("not connected to worker")
	}

	b.mu.Lock()
	b.pending[h.ID] = h
	b.mu.Unlock()

	b.io.Emit(EventSubmit, payload)
	ctxlog.FromContext(ctx).Debug("Submitted task to worker.", "step", task.Step, "handle", h.ID)
	return h, nil
}

func (b *Backend) onResult(ctx context.Context, args []any) {
	logger := ctxlog.FromContext(ctx)
	raw, err := payloadString(args)
	if err != nil {
		logger.Warn("Ignoring malformed result event.", "error", err)
		return
	}
	id, out, resErr := decodeResult(raw)

	b.mu.Lock()
	h, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if !ok {
		logger.Debug("Ignoring result for unknown submission.", "handle", id)
		return
	}
	b.deliver(backend.Result{Handle: h, Output: out, Err: resErr})
}

// failPending reports err for every submission still awaiting a result.
func (b *Backend) failPending(err error) {
	b.mu.Lock()
	handles := make([]backend.Handle, 0, len(b.pending))
	for id, h := range b.pending {
		handles = append(handles, h)
		delete(b.pending, id)
	}
	b.mu.Unlock()
	for _, h := range handles {
		b.deliver(backend.Result{Handle: h, Err: err})
	}
}

func (b *Backend) deliver(r backend.Result) {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.results <- r:
	case <-b.done:
	}
}

// Results returns the result channel.
func (b *Backend) Results() <-chan backend.Result { return b.results }

// Cancel asks the worker to cancel a submission.
func (b *Backend) Cancel(ctx context.Context, h backend.Handle) error {
	payload, err := encodeCancel(h.ID)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Cancelling remote task.", "step", h.Step, "handle", h.ID)
	b.io.Emit(EventCancel, payload)
	return nil
}

// Shutdown disconnects from the worker and closes the result channel.
func (b *Backend) Shutdown(ctx context.Context) error {
	b.shutdownOnce.Do(func() {
		close(b.done)
		b.sendMu.Lock()
		b.closed = true
		close(b.results)
		b.sendMu.Unlock()

		b.mu.Lock()
		b.pending = make(map[string]backend.Handle)
		b.mu.Unlock()
		b.io.Disconnect()
		ctxlog.FromContext(ctx).Debug("Disconnected from worker.")
	})
	return nil
}
