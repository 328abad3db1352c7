package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/calderhq/traderpulse/internal/domain"
	"github.com/calderhq/traderpulse/internal/monitor"
)

// maxQueryHours bounds the hours query parameter on history and heatmap
// endpoints.
const maxQueryHours = 24 * 7

// MonitorHandler serves the monitoring control and query endpoints.
//
// In monitor and full modes the handler is backed by the in-process scheduler
// and history window. In server-only mode sched and history are nil and the
// handler answers score and history queries from the cross-process cache and
// the durable sink instead.
type MonitorHandler struct {
	sched    *monitor.Scheduler
	history  *monitor.HistoryStore
	cache    domain.ScoreCache
	sink     domain.ScoreSink
	entities []domain.EntityID
	logger   *slog.Logger
}

// NewMonitorHandler creates a MonitorHandler. sched, history, cache, and sink
// may each be nil depending on the process mode.
func NewMonitorHandler(
	sched *monitor.Scheduler,
	history *monitor.HistoryStore,
	cache domain.ScoreCache,
	sink domain.ScoreSink,
	entities []domain.EntityID,
	logger *slog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		sched:    sched,
		history:  history,
		cache:    cache,
		sink:     sink,
		entities: entities,
		logger:   logHandler(logger, "monitor"),
	}
}

// StartMonitor starts the polling scheduler if it is not already running.
// POST /api/monitor/start
func (h *MonitorHandler) StartMonitor(w http.ResponseWriter, r *http.Request) {
	if h.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no scheduler in this process")
		return
	}
	h.sched.Start(r.Context())
	writeJSON(w, http.StatusOK, h.sched.Status())
}

// StopMonitor stops the polling scheduler. Stopping an already stopped
// scheduler is a no-op.
// POST /api/monitor/stop
func (h *MonitorHandler) StopMonitor(w http.ResponseWriter, r *http.Request) {
	if h.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no scheduler in this process")
		return
	}
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.sched.Status())
}

// TriggerCycle runs one polling cycle immediately, outside the regular
// schedule.
// POST /api/monitor/trigger
func (h *MonitorHandler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	if h.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no scheduler in this process")
		return
	}
	h.logger.InfoContext(r.Context(), "manual cycle triggered")
	h.sched.TriggerNow(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStatus reports the scheduler's current state.
// GET /api/monitor/status
func (h *MonitorHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no scheduler in this process")
		return
	}
	writeJSON(w, http.StatusOK, h.sched.Status())
}

// ListScores returns the latest activity score per monitored entity.
// GET /api/scores
func (h *MonitorHandler) ListScores(w http.ResponseWriter, r *http.Request) {
	if h.sched != nil {
		writeJSON(w, http.StatusOK, h.sched.LatestScores())
		return
	}

	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "no score source in this process")
		return
	}
	scores, err := h.cache.GetLatestAll(r.Context(), h.entities)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list scores from cache failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load scores")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// GetHeatmap returns the heatmap aggregate for one entity over the requested
// window (default 24 hours).
// GET /api/heatmap/{id}?hours=
func (h *MonitorHandler) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	if h.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no history window in this process")
		return
	}

	id := domain.EntityID(pathParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing entity id")
		return
	}
	hours := parseHours(r, 24, maxQueryHours)

	writeJSON(w, http.StatusOK, h.sched.Heatmap(id, hours))
}

// GetHistory returns the raw score series for one entity over the requested
// window (default 24 hours), oldest first.
// GET /api/history/{id}?hours=
func (h *MonitorHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := domain.EntityID(pathParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing entity id")
		return
	}
	hours := parseHours(r, 24, maxQueryHours)
	window := time.Duration(hours) * time.Hour

	if h.history != nil {
		writeJSON(w, http.StatusOK, h.history.Window(id, window))
		return
	}

	if h.sink == nil {
		writeError(w, http.StatusServiceUnavailable, "no history source in this process")
		return
	}
	now := time.Now().UTC()
	scores, err := h.sink.ListRange(r.Context(), id, now.Add(-window), now)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history query failed",
			slog.String("entity", string(id)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// ResetHistory clears all in-memory history windows and baselines, forcing
// every entity back onto the cold-start scoring path.
// POST /api/history/reset
func (h *MonitorHandler) ResetHistory(w http.ResponseWriter, r *http.Request) {
	if h.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "no history window in this process")
		return
	}
	h.sched.ResetHistory()
	h.logger.InfoContext(r.Context(), "history reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
