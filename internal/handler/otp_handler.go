package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"rostergate/internal/service"
)

// OTPHandler exposes the verification boundary: request a code, verify a code.
type OTPHandler struct {
	otpService *service.OTPService
	validate   *validator.Validate
}

func NewOTPHandler(otpService *service.OTPService) *OTPHandler {
	return &OTPHandler{
		otpService: otpService,
		validate:   validator.New(),
	}
}

func (h *OTPHandler) RegisterRoutes(router chi.Router) {
	router.Route("/otp", func(r chi.Router) {
		r.Post("/request", h.RequestCode)
		r.Post("/verify", h.VerifyCode)
	})
}

type requestCodeRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
}

type verifyCodeRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
}

// RequestCode handles POST /otp/request
func (h *OTPHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "phone_number is required"))
		return
	}

	result, err := h.otpService.RequestCode(r.Context(), req.PhoneNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse(result, "Verification code sent"))
}

// VerifyCode handles POST /otp/verify
func (h *OTPHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "phone_number and a 6-digit code are required"))
		return
	}

	result, err := h.otpService.VerifyCode(r.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse(result, "Phone number verified"))
}
