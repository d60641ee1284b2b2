package api

import (
	"context"
	"net/http"
	"time"

	"github.com/punchamoorthee/minledger/internal/service"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	accounts  *service.AccountService
	transfers *service.TransferService
	queries   *service.QueryService
	health    Pinger
	logger    *zap.Logger
}

func NewHandler(accounts *service.AccountService, transfers *service.TransferService, queries *service.QueryService, health Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		accounts:  accounts,
		transfers: transfers,
		queries:   queries,
		health:    health,
		logger:    logger,
	}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
