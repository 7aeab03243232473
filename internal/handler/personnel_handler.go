package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"rostergate/internal/service"
)

// PersonnelHandler exposes roster lookup, registration consumption and the
// administrative roster operations.
type PersonnelHandler struct {
	personnelService *service.PersonnelService
	adminToken       string
	validate         *validator.Validate
}

func NewPersonnelHandler(personnelService *service.PersonnelService, adminToken string) *PersonnelHandler {
	return &PersonnelHandler{
		personnelService: personnelService,
		adminToken:       adminToken,
		validate:         validator.New(),
	}
}

func (h *PersonnelHandler) RegisterRoutes(router chi.Router) {
	router.Route("/personnel", func(r chi.Router) {
		r.Post("/lookup", h.Lookup)
		r.Post("/register", h.CompleteRegistration)

		// Administrative routes require the operator token.
		r.Group(func(r chi.Router) {
			r.Use(requireAdminToken(h.adminToken))
			r.Post("/import", h.ImportRoster)
			r.Get("/roster", h.Roster)
		})
	})
}

// requireAdminToken rejects requests without the operator bearer token.
func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if token == "" || auth != "Bearer "+token {
				writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized", "admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type identifierRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

// Lookup handles POST /personnel/lookup
func (h *PersonnelHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req identifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "identifier is required"))
		return
	}

	entry, err := h.personnelService.Lookup(r.Context(), req.Identifier)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse(entry, "Roster entry found"))
}

// CompleteRegistration handles POST /personnel/register
func (h *PersonnelHandler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var req identifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "identifier is required"))
		return
	}

	if err := h.personnelService.CompleteRegistration(r.Context(), req.Identifier); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse(nil, "Registration completed"))
}

type importRequest struct {
	Entries []service.RosterImportEntry `json:"entries" validate:"required,min=1,dive"`
}

// ImportRoster handles POST /personnel/import
func (h *PersonnelHandler) ImportRoster(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("validation_error", "entries are required and every entry must be complete"))
		return
	}

	result, err := h.personnelService.ImportRoster(r.Context(), req.Entries)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse(result, "Roster import completed"))
}

type rosterResponse struct {
	Entries      interface{} `json:"entries"`
	CacheAgeSecs int64       `json:"cache_age_seconds,omitempty"`
}

// Roster handles GET /personnel/roster. ?refresh=manual bypasses the cache
// and stamps an operator refresh.
func (h *PersonnelHandler) Roster(w http.ResponseWriter, r *http.Request) {
	manual := r.URL.Query().Get("refresh") == "manual"

	entries, err := h.personnelService.Roster(r.Context(), manual)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := rosterResponse{Entries: entries}
	if age, ok := h.personnelService.RosterCacheAge(); ok {
		resp.CacheAgeSecs = int64(age.Seconds())
	}

	writeJSON(w, http.StatusOK, successResponse(resp, "Roster snapshot"))
}
