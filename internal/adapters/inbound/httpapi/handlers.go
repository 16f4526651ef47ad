package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sufield/fedtrust/internal/domain"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// requestID tags every request with a correlation id, echoed back in the
// X-Request-Id header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type handlers struct {
	svc EntityService
	log *zap.Logger
}

// federationError is the JSON error body the federation endpoints answer
// with on failure.
type federationError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (h *handlers) entityConfiguration(w http.ResponseWriter, r *http.Request) {
	raw, err := h.svc.EntityConfiguration(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "server_error", "could not produce entity configuration", err)
		return
	}
	h.writeJWT(w, ContentTypeEntityStatement, raw)
}

func (h *handlers) fetch(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.entityParam(w, r, "sub")
	if !ok {
		return
	}
	raw, err := h.svc.SubordinateStatement(r.Context(), subject)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, "not_found", "unknown subordinate", err)
		return
	}
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "server_error", "could not produce subordinate statement", err)
		return
	}
	h.writeJWT(w, ContentTypeEntityStatement, raw)
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.ListSubordinates(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "server_error", "could not list subordinates", err)
		return
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.entityParam(w, r, "sub")
	if !ok {
		return
	}
	anchor, ok := h.entityParam(w, r, "trust_anchor")
	if !ok {
		return
	}
	entityType := r.URL.Query().Get("entity_type")

	raw, err := h.svc.Resolve(r.Context(), subject, anchor, entityType)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrResolutionTimeout):
			h.writeError(w, r, http.StatusGatewayTimeout, "temporarily_unavailable", "resolution timed out", err)
		case errors.Is(err, domain.ErrUnreachableEntity):
			h.writeError(w, r, http.StatusBadGateway, "temporarily_unavailable", "entity unreachable", err)
		default:
			h.writeError(w, r, http.StatusNotFound, "not_found", "no valid trust chain", err)
		}
		return
	}
	h.writeJWT(w, ContentTypeResolveResponse, raw)
}

func (h *handlers) trustMarkStatus(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.entityParam(w, r, "sub")
	if !ok {
		return
	}
	markType := r.URL.Query().Get("trust_mark_type")
	if markType == "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "trust_mark_type is required", nil)
		return
	}
	active, err := h.svc.TrustMarkStatus(r.Context(), subject, markType)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "server_error", "could not determine trust mark status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (h *handlers) entityParam(w http.ResponseWriter, r *http.Request, name string) (domain.EntityID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", name+" is required", nil)
		return "", false
	}
	id, err := domain.ParseEntityID(raw)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", name+" is not a valid entity identifier", err)
		return "", false
	}
	return id, true
}

func (h *handlers) writeJWT(w http.ResponseWriter, contentType string, raw []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		h.log.Warn("writing response", zap.Error(err))
	}
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("writing response", zap.Error(err))
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, description string, err error) {
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("code", code),
	}
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	h.log.Warn("federation endpoint error", fields...)
	h.writeJSON(w, status, federationError{Error: code, Description: description})
}
