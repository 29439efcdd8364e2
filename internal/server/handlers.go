// internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/models"
)

// actorFrom reads the caller's identity from the gateway-provided headers.
// The gateway in front of this service authenticates the user and forwards
// the resolved identity; the service itself never sees credentials.
func actorFrom(r *http.Request) models.Actor {
	return models.Actor{
		UserID: r.Header.Get("X-User-Id"),
		Email:  r.Header.Get("X-User-Email"),
		Name:   r.Header.Get("X-User-Name"),
		Admin:  strings.EqualFold(r.Header.Get("X-User-Role"), "admin"),
	}
}

// ==========================
// LIFECYCLE HANDLERS
// ==========================

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload models.RequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apperrors.NewValidationError("malformed JSON body"))
		return
	}

	req, err := s.lifecycle.Submit(r.Context(), actorFrom(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	req, err := s.lifecycle.ApproveAndSign(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	req, err := s.lifecycle.Reject(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.DeleteOwn(r.Context(), actorFrom(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FileName string `json:"fileName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.NewValidationError("malformed JSON body"))
		return
	}

	if err := s.lifecycle.SelectTemplate(r.Context(), actorFrom(r), body.FileName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected": body.FileName})
}

func (s *Server) handleClearTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.ClearTemplate(r.Context(), actorFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ==========================
// QUERY HANDLERS
// ==========================

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	requests, err := s.queries.ListPending(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) handleListReviewed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, apperrors.NewValidationError("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	requests, err := s.queries.ListRecentReviewed(r.Context(), actorFrom(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.queries.GetRequest(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleListUserRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.queries.ListForUser(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	// Optional client-side style filter, e.g. ?status=signed
	if status := r.URL.Query().Get("status"); status != "" {
		requests = filterByStatus(requests, status)
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	agg, err := s.queries.GetAggregate(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleListAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.queries.ListAggregates(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, aggs)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.queries.ListTemplates(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleGetSelectedTemplate(w http.ResponseWriter, r *http.Request) {
	selected, err := s.queries.GetSelectedTemplate(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected": selected})
}

func filterByStatus(requests []models.Request, status string) []models.Request {
	if status == "all" {
		return requests
	}
	filtered := []models.Request{}
	for _, req := range requests {
		if string(req.Status) == status {
			filtered = append(filtered, req)
		}
	}
	return filtered
}

// ==========================
// RESPONSES
// ==========================

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Details   string `json:"details,omitempty"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	var resp errorResponse
	resp.Error.Code = string(appErr.Code)
	resp.Error.Message = appErr.Message
	resp.Error.Details = appErr.Details
	resp.Error.Retryable = appErr.Retryable

	writeJSON(w, statusFor(appErr.Code), resp)
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodePermission:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInvalidState:
		return http.StatusConflict
	case apperrors.ErrCodeSigningService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
