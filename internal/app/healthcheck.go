package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/burstbeam/internal/ctxlog"
)

// statusReport is the body of /status.
type statusReport struct {
	RunID   string         `json:"run_id,omitempty"`
	Outcome string         `json:"outcome"`
	Error   string         `json:"error,omitempty"`
	States  map[string]int `json:"states"`
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Status endpoint hit.", "remote_addr", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a.status())
}

func (a *App) status() statusReport {
	runID, sched := a.currentRun()
	rep := statusReport{RunID: runID, Outcome: "pending", States: map[string]int{}}
	if sched == nil {
		return rep
	}
	for _, st := range sched.States() {
		rep.States[st.String()]++
	}
	rep.Outcome = "running"
	if o, ok := sched.Outcome(); ok {
		rep.Outcome = o.Kind.String()
		if o.Err != nil {
			rep.Error = o.Err.Error()
		}
	}
	return rep
}

func (a *App) healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/status", a.statusHandler)
	return mux
}

// startHealthcheckServer runs the health check server until ctx ends. The
// returned function stops it.
func (a *App) startHealthcheckServer(ctx context.Context, port int) (func(), error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.")

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("health check server: %w", err)
	}
	srv := &http.Server{Handler: a.healthMux(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://%s/health", ln.Addr()))
		// Serve returns http.ErrServerClosed on graceful shutdown.
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		logger.Debug("Shutting down health check server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Health check server shutdown failed", "error", err)
		}
	}, nil
}
