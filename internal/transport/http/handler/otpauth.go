package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/storefront-auth-api/internal/application/otpauth"
	"github.com/storefront-auth-api/internal/pkg/validate"
)

// OTPAuthHandler handles the unified OTP login/registration flow endpoints.
type OTPAuthHandler struct {
	svc otpauth.Service
}

func NewOTPAuthHandler(svc otpauth.Service) *OTPAuthHandler {
	return &OTPAuthHandler{svc: svc}
}

func (h *OTPAuthHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "initiate":
		h.initiate(w, r)
	case "resend":
		h.resend(w, r)
	case "verify":
		h.verify(w, r)
	case "complete":
		h.complete(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *OTPAuthHandler) initiate(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	isNew, err := h.svc.Initiate(r.Context(), body.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InitiateAuthEnvelope{
		Success:   true,
		Message:   "verification code sent",
		Email:     body.Email,
		IsNewUser: isNew,
	})
}

func (h *OTPAuthHandler) resend(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Resend(r.Context(), body.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{
		Success: true,
		Message: "verification code sent",
	})
}

func (h *OTPAuthHandler) verify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.Verify(r.Context(), body.Email, body.OTP)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.RequiresProfile {
		writeJSON(w, http.StatusOK, VerifyEnvelope{
			Success:         true,
			Verified:        true,
			RequiresProfile: boolPtr(true),
		})
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Success:         true,
		Token:           res.Token,
		Customer:        toCustomerSummary(res.Customer),
		RequiresProfile: boolPtr(false),
	})
}

func (h *OTPAuthHandler) complete(w http.ResponseWriter, r *http.Request) {
	var body otpauth.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Complete(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Success:  true,
		Token:    res.Token,
		Customer: toCustomerSummary(res.Customer),
	})
}
