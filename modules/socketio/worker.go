package socketio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/specialistvlad/burstbeam/internal/backend"
	"github.com/specialistvlad/burstbeam/internal/ctxlog"
	"github.com/specialistvlad/burstbeam/modules/local"
	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/socket.io/v2/socket"
)

// route ties a local submission to the client that sent it.
type route struct {
	client   *socket.Socket
	remoteID string
}

// Worker accepts tasks from coordinators and evaluates them locally.
type Worker struct {
	io   *socket.Server
	exec *local.Backend

	mu       sync.Mutex
	routes   map[string]route          // local handle ID -> origin
	byRemote map[string]backend.Handle // client sid + remote ID -> local handle
}

// NewWorker creates a worker evaluating tasks with a local backend
// configured by cfg. Call Run to start forwarding results.
func NewWorker(ctx context.Context, cfg local.Config) *Worker {
	w := &Worker{
		io:       socket.NewServer(nil, nil),
		exec:     local.New(ctx, cfg),
		routes:   make(map[string]route),
		byRemote: make(map[string]backend.Handle),
	}
	logger := ctxlog.FromContext(ctx)

	w.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		sid := string(client.Id())
		logger.Info("Coordinator connected.", "sid", sid)

		client.On(EventSubmit, func(args ...any) {
			w.onSubmit(ctx, client, args)
		})
		client.On(EventCancel, func(args ...any) {
			w.onCancel(ctx, client, args)
		})
		client.On("disconnect", func(reason ...any) {
			logger.Info("Coordinator disconnected.", "sid", sid, "reason", fmt.Sprint(reason...))
			w.dropClient(ctx, client)
		})
	})
	return w
}

// Handler serves the socket.io endpoint.
func (w *Worker) Handler() http.Handler {
	return w.io.ServeHandler(nil)
}

func remoteKey(client *socket.Socket, id string) string {
	return string(client.Id()) + "/" + id
}

func (w *Worker) onSubmit(ctx context.Context, client *socket.Socket, args []any) {
	logger := ctxlog.FromContext(ctx)
	raw, err := payloadString(args)
	if err != nil {
		logger.Warn("Ignoring malformed submit event.", "error", err)
		return
	}
	id, task, err := decodeTask(raw)
	if err != nil {
		logger.Warn("Rejecting undecodable task.", "handle", id, "error", err)
		w.reply(ctx, client, id, nil, err)
		return
	}

	// The route is registered before the local submission so a fast result
	// always finds it.
	w.mu.Lock()
	defer w.mu.Unlock()
	h, err := w.exec.Submit(ctx, task)
	if err != nil {
		w.reply(ctx, client, id, nil, err)
		return
	}
	w.routes[h.ID] = route{client: client, remoteID: id}
	w.byRemote[remoteKey(client, id)] = h
	logger.Debug("Accepted task.", "step", task.Step, "label", task.Label, "handle", id)
}

func (w *Worker) onCancel(ctx context.Context, client *socket.Socket, args []any) {
	raw, err := payloadString(args)
	if err != nil {
		return
	}
	id, err := decodeCancel(raw)
	if err != nil {
		return
	}
	w.mu.Lock()
	h, ok := w.byRemote[remoteKey(client, id)]
	w.mu.Unlock()
	if ok {
		_ = w.exec.Cancel(ctx, h)
	}
}

// dropClient cancels every task of a disconnected coordinator.
func (w *Worker) dropClient(ctx context.Context, client *socket.Socket) {
	w.mu.Lock()
	var handles []backend.Handle
	for hid, r := range w.routes {
		if r.client == client {
			handles = append(handles, w.byRemote[remoteKey(client, r.remoteID)])
			delete(w.byRemote, remoteKey(client, r.remoteID))
			delete(w.routes, hid)
		}
	}
	w.mu.Unlock()
	for _, h := range handles {
		_ = w.exec.Cancel(ctx, h)
	}
}

func (w *Worker) reply(ctx context.Context, client *socket.Socket, id string, output []cty.Value, taskErr error) {
	payload, err := encodeResult(id, output, taskErr)
	if err != nil {
		ctxlog.FromContext(ctx).Error("Failed to encode result.", "handle", id, "error", err)
		return
	}
	client.Emit(EventResult, payload)
}

// Run forwards local results to their coordinators until ctx is done or the
// worker is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-w.exec.Results():
			if !ok {
				return
			}
			w.mu.Lock()
			rt, found := w.routes[r.Handle.ID]
			delete(w.routes, r.Handle.ID)
			if found {
				delete(w.byRemote, remoteKey(rt.client, rt.remoteID))
			}
			w.mu.Unlock()
			if !found {
				continue
			}
			w.reply(ctx, rt.client, rt.remoteID, r.Output, r.Err)
		}
	}
}

// Close stops the local backend and the socket.io server.
func (w *Worker) Close(ctx context.Context) error {
	err := w.exec.Shutdown(ctx)
	w.io.Close(nil)
	return err
}

// Serve runs a worker on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, cfg local.Config) error {
	logger := ctxlog.FromContext(ctx)
	w := NewWorker(ctx, cfg)

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", w.Handler())
	mux.HandleFunc("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("OK"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}

	go w.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Worker listening.", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("Worker shutting down.")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Worker HTTP shutdown failed.", "error", err)
	}
	return w.Close(shutdownCtx)
}
