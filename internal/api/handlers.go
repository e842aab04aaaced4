package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
)

var ErrRunInProgress = errors.New("a crawl run is already in progress")

// RunFunc performs one complete crawl run.
type RunFunc func(ctx context.Context) error

// Launcher starts crawl runs in the background, one at a time.
type Launcher struct {
	mu      sync.Mutex
	running bool
	ctx     context.Context
	run     RunFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewLauncher binds runs to ctx; cancelling it stops a run in progress.
func NewLauncher(ctx context.Context, run RunFunc, logger *slog.Logger) *Launcher {
	return &Launcher{
		ctx:    ctx,
		run:    run,
		logger: logger.With("component", "run_launcher"),
	}
}

func (l *Launcher) Launch() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrRunInProgress
	}
	l.running = true
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		err := l.run(l.ctx)
		if err != nil {
			l.logger.Error("crawl run failed", "error", err)
		}

		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()
	return nil
}

// Wait blocks until the run in progress, if any, returns.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

type Handlers struct {
	tracker  *Tracker
	launcher *Launcher
	ping     func(ctx context.Context) error
	logger   *slog.Logger
}

// GetHealth reports ok unless the optional dependency ping fails.
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"run":    h.tracker.Status().State,
	}

	status := http.StatusOK
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			health["status"] = "error"
			health["message"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.tracker.Status())
}

func (h *Handlers) GetMissing(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.tracker.Status().Missing)
}

// StartRun handles crawl run requests
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	if h.launcher == nil {
		h.respondError(w, http.StatusNotImplemented, "runs cannot be started from this server")
		return
	}

	if err := h.launcher.Launch(); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			h.respondError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to start run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]string{"message": "Run started"})
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
