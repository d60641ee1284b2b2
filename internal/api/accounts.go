package api

import (
	"fmt"
	"net/http"
)

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.accounts.Create(r.Context(), req.Name, req.InitialBalance)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s", account.ID))
	respondWithJSON(w, http.StatusCreated, account)
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" {
		accounts, err := h.accounts.ListByStatus(r.Context(), status)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, nonNil(accounts))
		return
	}

	accounts, err := h.accounts.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, nonNil(accounts))
}

func (h *Handler) SearchAccountsHandler(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	result, err := h.accounts.Search(r.Context(), q.Get("keyword"), q.Get("status"), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	balance, err := h.accounts.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, balanceResponse{AccountID: id, Balance: balance})
}

func (h *Handler) UpdateAccountStatusHandler(w http.ResponseWriter, r *http.Request) {
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

	account, err := h.accounts.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) UpdateBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req balanceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validateRequest(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.accounts.UpdateBalance(r.Context(), id, req.Balance)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.accounts.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
