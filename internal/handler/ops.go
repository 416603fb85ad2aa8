package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"tush00nka/unzipbot/internal/model"
	"tush00nka/unzipbot/internal/pkg/httputils"
	"tush00nka/unzipbot/internal/service"
)

const (
	healthCheckTimeout = 3 * time.Second
	defaultHistorySize = 20
	maxHistorySize     = 100
)

// HealthCheck is one named dependency check reported by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type StatsSource interface {
	Snapshot() service.MetricsSnapshot
}

type HistorySource interface {
	ListByChat(ctx context.Context, chatID int64, limit int) ([]model.RelayRecord, error)
}

type OpsHandler struct {
	stats   StatsSource
	history HistorySource
	checks  []HealthCheck
}

// NewOpsHandler: history может быть nil, если база не настроена.
func NewOpsHandler(stats StatsSource, history HistorySource, checks ...HealthCheck) *OpsHandler {
	return &OpsHandler{stats: stats, history: history, checks: checks}
}

func (h *OpsHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ping", Ping).Methods("GET")
	router.HandleFunc("/health", h.health).Methods("GET")
	router.HandleFunc("/stats", h.statsHandler).Methods("GET")
	router.HandleFunc("/history/{chatID:-?[0-9]+}", h.historyHandler).Methods("GET")
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *OpsHandler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	httputils.ResponseJSON(w, code, resp)
}

func (h *OpsHandler) statsHandler(w http.ResponseWriter, r *http.Request) {
	httputils.ResponseJSON(w, http.StatusOK, h.stats.Snapshot())
}

func (h *OpsHandler) historyHandler(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httputils.ResponseError(w, http.StatusNotFound, "relay history is disabled")
		return
	}

	chatID, err := strconv.ParseInt(mux.Vars(r)["chatID"], 10, 64)
	if err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	limit := defaultHistorySize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httputils.ResponseError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(limit, maxHistorySize)
	}

	records, err := h.history.ListByChat(r.Context(), chatID, limit)
	if err != nil {
		httputils.ResponseError(w, http.StatusInternalServerError, "failed to load relay history")
		return
	}
	httputils.ResponseJSON(w, http.StatusOK, records)
}
