package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/storefront-auth-api/internal/domain"
	"github.com/storefront-auth-api/internal/transport/http/middleware"
)

// CustomerGetter is the minimal customer lookup the account handler needs.
type CustomerGetter interface {
	Get(ctx context.Context, customerID string) (*domain.Customer, error)
}

// AccountHandler serves the authenticated customer's own profile.
type AccountHandler struct {
	customers CustomerGetter
}

func NewAccountHandler(customers CustomerGetter) *AccountHandler {
	return &AccountHandler{customers: customers}
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	cust, err := h.customers.Get(r.Context(), claims.ActorID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success  bool             `json:"success"`
		Customer *CustomerSummary `json:"customer"`
	}{Success: true, Customer: toCustomerSummary(cust)})
}
