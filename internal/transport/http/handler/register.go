package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/storefront-auth-api/internal/application/register"
	"github.com/storefront-auth-api/internal/pkg/validate"
)

// RegisterHandler handles the email-verification registration flow endpoints.
type RegisterHandler struct {
	svc register.Service
}

func NewRegisterHandler(svc register.Service) *RegisterHandler {
	return &RegisterHandler{svc: svc}
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (h *RegisterHandler) Action(w http.ResponseWriter, r *http.Request) {
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

func (h *RegisterHandler) initiate(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Initiate(r.Context(), body.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{
		Success: true,
		Message: "verification code sent",
		Email:   body.Email,
	})
}

func (h *RegisterHandler) resend(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Resend(r.Context(), body.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Success: true})
}

func (h *RegisterHandler) verify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Verify(r.Context(), body.Email, body.OTP); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyEnvelope{
		Success:  true,
		Verified: true,
		Message:  "email verified",
	})
}

func (h *RegisterHandler) complete(w http.ResponseWriter, r *http.Request) {
	var body register.CompleteRequest
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
