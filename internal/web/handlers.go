package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/nounimaging/internal/config"
	"github.com/hpungsan/nounimaging/internal/errors"
	"github.com/hpungsan/nounimaging/internal/ops"
	"github.com/hpungsan/nounimaging/internal/stream"
)

// Handlers contains HTTP route handlers.
type Handlers struct {
	reconciler *ops.Reconciler
	locks      *ops.RunLocks
	cfg        *config.Config
	version    string
	logger     *slog.Logger
}

// HandleImaging handles GET /api/utils/nounimaging: one reconciliation run
// streamed as server-sent events. The run stops when the client disconnects.
func (h *Handlers) HandleImaging(w http.ResponseWriter, r *http.Request) {
	namespace := strings.Trim(strings.TrimSpace(r.URL.Query().Get("namespace")), "/")
	if namespace == "" {
		namespace = h.cfg.Namespace
	}
	if strings.Contains(namespace, "..") {
		writeError(w, errors.NewInvalidRequest("namespace must not contain '..'"))
		return
	}

	release, err := h.locks.Acquire(namespace)
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	sse, err := stream.NewSSEWriter(w)
	if err != nil {
		writeError(w, errors.NewInternal(err))
		return
	}

	emitter := stream.NewEmitter(sse, stream.Options{
		Step:      h.cfg.ProgressStep,
		Heartbeat: time.Duration(h.cfg.HeartbeatSeconds) * time.Second,
		Logger:    h.logger,
	})
	defer emitter.Close()

	h.logger.Info("imaging stream opened", "namespace", namespace, "remote", r.RemoteAddr)

	report, err := h.reconciler.Reconcile(r.Context(), ops.ReconcileInput{
		Namespace: namespace,
		Progress:  func(u stream.Update) { emitter.Update(u) },
	})
	if err != nil {
		_ = emitter.Fail(errorPayload(err))
		return
	}
	_ = emitter.Complete(report)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

func errorPayload(err error) stream.ErrorPayload {
	if e, ok := errors.As(err); ok {
		return stream.ErrorPayload{Message: e.Message, Code: string(e.Code)}
	}
	return stream.ErrorPayload{Message: err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	e, ok := errors.As(err)
	if !ok {
		e = errors.NewInternal(err)
	}
	writeJSON(w, e.Status, map[string]any{
		"error": map[string]any{
			"code":    string(e.Code),
			"message": e.Message,
			"status":  e.Status,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
