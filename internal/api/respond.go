package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/punchamoorthee/minledger/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// errBadRequest marks input that could not be parsed at all.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"
	case errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusUnprocessableEntity, "INVALID_OPERATION"
	case errors.Is(err, domain.ErrAccountNumberExhausted):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	case errors.Is(err, domain.ErrStoreFailure):
		return http.StatusInternalServerError, "STORE_FAILURE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeError maps err onto a status code. Server side failures are logged and
// their details withheld from the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := statusOf(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = http.StatusText(code)
	}
	respondWithJSON(w, code, errorResponse{Error: msg, Code: kind})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("invalid id %q", raw)
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("malformed JSON body: %v", err)
	}
	return nil
}

const defaultPageSize = 20

func pageParams(r *http.Request) (domain.PageRequest, error) {
	q := r.URL.Query()
	p := domain.PageRequest{Page: 0, Size: defaultPageSize}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, badRequest("invalid page %q", v)
		}
		p.Page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, badRequest("invalid size %q", v)
		}
		p.Size = n
	}
	return p, nil
}

type balanceResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

type totalResponse struct {
	AccountID   uuid.UUID       `json:"account_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type countResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Count     int64     `json:"count"`
}
