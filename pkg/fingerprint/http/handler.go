// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-biosecure.
//
// go-biosecure is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-biosecure/pkg/credstore"
	"github.com/jeremyhahn/go-biosecure/pkg/fingerprint"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4096

// Handler provides HTTP handlers for fingerprint operations.
type Handler struct {
	service *fingerprint.Service
	tokens  *fingerprint.TokenIssuer
	strict  bool
	logger  *slog.Logger
}

// NewHandler creates a new fingerprint HTTP handler.
func NewHandler(service *fingerprint.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// WithTokenIssuer issues a session token on every successful
// authentication.
func (h *Handler) WithTokenIssuer(tokens *fingerprint.TokenIssuer) *Handler {
	h.tokens = tokens
	return h
}

// WithStrict reports strict mode in status responses.
func (h *Handler) WithStrict(strict bool) *Handler {
	h.strict = strict
	return h
}

// Register handles POST /register
//
// Request body:
//
//	{"user": "alice"}
//
// Response: RegisterResponse
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}
	req, ok := h.decodeUser(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Register(r.Context(), req.User); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, RegisterResponse{
		Registered: true,
		Method:     h.method(r, req.User),
	})
}

// Authenticate handles POST /authenticate
//
// Request body:
//
//	{"user": "alice"}
//
// Response: AuthenticateResponse, with a token when an issuer is set
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}
	req, ok := h.decodeUser(w, r)
	if !ok {
		return
	}

	method, err := h.service.AuthenticateMethod(r.Context(), req.User)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := AuthenticateResponse{
		Authenticated: true,
		Method:        string(method),
	}
	if h.tokens != nil {
		token, err := h.tokens.Issue(req.User, resp.Method)
		if err != nil {
			h.logger.Error("failed to issue token", "user", req.User, "error", err)
			h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
			return
		}
		resp.Token = token
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Status handles GET /status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{
		Status: h.service.Status(r.Context()),
		Strict: h.strict,
	})
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}
	h.writeJSON(w, http.StatusOK, ListUsersResponse{Users: h.service.List(r.Context())})
}

// GetUser handles GET /users/{user}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}
	user := userParam(r)
	record, err := h.service.Lookup(r.Context(), user)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, userResponse(user, record))
}

// DeleteUser handles DELETE /users/{user}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}
	if err := h.service.Unregister(r.Context(), userParam(r)); err != nil {
		h.handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeUser(w http.ResponseWriter, r *http.Request) (UserRequest, bool) {
	var req UserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return req, false
	}
	return req, true
}

// method reports how user's credential was registered.
func (h *Handler) method(r *http.Request, user string) string {
	record, err := h.service.Lookup(r.Context(), user)
	if err != nil {
		return ""
	}
	return string(record.Method())
}

// handleServiceError maps service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fingerprint.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
	case errors.Is(err, fingerprint.ErrAlreadyRegistered):
		h.writeError(w, http.StatusConflict, ErrorCodeAlreadyRegistered, "user already registered")
	case errors.Is(err, fingerprint.ErrNotRegistered):
		h.writeError(w, http.StatusNotFound, ErrorCodeNotRegistered, "user not registered")
	case errors.Is(err, fingerprint.ErrVerificationFailed):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, fingerprint.ErrSimulatedRecord):
		h.writeError(w, http.StatusForbidden, ErrorCodeSimulated, "credential is simulated")
	case fingerprint.IsNativeFailure(err):
		h.writeError(w, http.StatusServiceUnavailable, ErrorCodeNativeUnavailable, err.Error())
	default:
		h.logger.Error("fingerprint request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// userParam reads the {user} path segment set by chi or http.ServeMux.
func userParam(r *http.Request) string {
	if user := chi.URLParam(r, "user"); user != "" {
		return user
	}
	return r.PathValue("user")
}

func userResponse(user string, record credstore.Record) UserResponse {
	common := record.Common()
	resp := UserResponse{
		User:         user,
		Method:       string(record.Method()),
		CredentialID: common.ID,
	}
	if native, ok := record.(*credstore.NativeRecord); ok {
		resp.Transports = native.Transports
	}
	if !common.CreatedAt.IsZero() {
		resp.CreatedAt = common.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
