package handler

import (
	"errors"
	"net/http"

	"github.com/chatledger/chatledger-go/internal/middleware"
	"github.com/chatledger/chatledger-go/internal/model"
	"github.com/chatledger/chatledger-go/internal/service"
)

// LedgerHandler handles HTTP requests for balance and transactions.
type LedgerHandler struct {
	service *service.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(svc *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: svc}
}

// HandlePay handles POST /api/v1/users/pay requests.
func (h *LedgerHandler) HandlePay(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	var req model.PayRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Pay(r.Context(), userID, req.Amount); err != nil {
		switch {
		case errors.Is(err, service.ErrAmountNotPositive):
			writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		case errors.Is(err, service.ErrUserNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleBalance handles GET /api/v1/users/balance requests.
func (h *LedgerHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	balance, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	writeJSON(w, http.StatusOK, model.BalanceResponse{Balance: balance})
}

// HandleTransactions handles GET /api/v1/users/transactions requests.
func (h *LedgerHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	transactions, err := h.service.Transactions(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}
	if transactions == nil {
		transactions = []model.Transaction{}
	}

	writeJSON(w, http.StatusOK, transactions)
}
