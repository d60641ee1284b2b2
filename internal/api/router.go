package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route of the ledger API.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument(h.logger))

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts", h.ListAccountsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/search", h.SearchAccountsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}", h.DeleteAccountHandler).Methods(http.MethodDelete)
	v1.HandleFunc("/accounts/{id}/balance", h.GetBalanceHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/balance", h.UpdateBalanceHandler).Methods(http.MethodPut)
	v1.HandleFunc("/accounts/{id}/status", h.UpdateAccountStatusHandler).Methods(http.MethodPut)

	// Static segments are registered before /transactions/{id}.
	v1.HandleFunc("/transactions", h.CreateTransferHandler).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/date-range", h.DateRangeHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/daily-summary", h.DailySummaryHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/account/{id}", h.ListByAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/account/{id}/total", h.TotalByAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/account/{id}/count", h.CountByAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/user/{id}", h.ListByUserHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{id}", h.GetTransactionHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{id}", h.DeleteTransactionHandler).Methods(http.MethodDelete)
	v1.HandleFunc("/transactions/{id}/status", h.UpdateTransactionStatusHandler).Methods(http.MethodPut)

	return r
}
