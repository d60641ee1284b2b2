package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/punchamoorthee/minledger/internal/service"
)

// IdempotencyKeyHeader carries the optional client key of a transfer.
const IdempotencyKeyHeader = "Idempotency-Key"

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.transfers.Transfer(r.Context(), service.TransferRequest{
		SenderID:       req.SenderAccountID,
		ReceiverID:     req.ReceiverAccountID,
		Amount:         req.Amount,
		Message:        req.Message,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if res.Replayed {
		respondWithJSON(w, http.StatusOK, res.Transaction)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", res.Transaction.ID))
	respondWithJSON(w, http.StatusCreated, res.Transaction)
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.transfers.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

func (h *Handler) UpdateTransactionStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	t, err := h.transfers.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.transfers.DeleteByID(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListByAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	txs, err := h.queries.ListByAccount(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, nonNil(txs))
}

func (h *Handler) ListByUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	txs, err := h.queries.ListByUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, nonNil(txs))
}

func (h *Handler) TotalByAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	total, err := h.queries.TotalAmountByAccount(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, totalResponse{AccountID: id, TotalAmount: total})
}

func (h *Handler) CountByAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.queries.CountByAccount(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, countResponse{AccountID: id, Count: n})
}

func (h *Handler) DateRangeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := dateParam(q.Get("start_date"), "start_date")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	end, err := dateParam(q.Get("end_date"), "end_date")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := pageParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	query := service.DateRangeQuery{Start: start, End: end, Status: q.Get("status"), Page: page}
	if raw := q.Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, r, badRequest("invalid account_id %q", raw))
			return
		}
		query.AccountID = &id
	}

	result, err := h.queries.ListByDateRange(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) DailySummaryHandler(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r.URL.Query().Get("date"), "date")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows, err := h.queries.DailySummary(r.Context(), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rows)
}

func dateParam(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, badRequest("%s is required", name)
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, badRequest("%s must be formatted as %s", name, domain.DateLayout)
	}
	return d, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
