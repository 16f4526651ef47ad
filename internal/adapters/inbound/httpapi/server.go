// Package httpapi exposes a hosting entity's federation endpoints: its
// entity configuration at the well-known path, subordinate statement
// fetching, listing, resolution and trust mark status.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sufield/fedtrust/internal/domain"
)

// Content types served by the federation endpoints.
const (
	ContentTypeEntityStatement = "application/entity-statement+jwt"
	ContentTypeResolveResponse = "application/resolve-response+jwt"
)

// EntityService is the hosting entity behavior behind the endpoints. The
// server only translates HTTP; all statement production and resolution
// lives behind this boundary.
type EntityService interface {
	// EntityConfiguration returns this entity's signed self-statement.
	EntityConfiguration(ctx context.Context) ([]byte, error)

	// SubordinateStatement returns this entity's signed statement about a
	// registered subordinate. Returns domain.ErrNotFound for an unknown
	// subject.
	SubordinateStatement(ctx context.Context, subject domain.EntityID) ([]byte, error)

	// Resolve runs trust chain resolution for subject against the anchor
	// and returns a signed resolve response, optionally narrowed to one
	// entity type's metadata.
	Resolve(ctx context.Context, subject, anchor domain.EntityID, entityType string) ([]byte, error)

	// ListSubordinates returns the registered subordinate identifiers.
	ListSubordinates(ctx context.Context) ([]domain.EntityID, error)

	// TrustMarkStatus reports whether this entity has issued an active
	// trust mark of the given type for the subject.
	TrustMarkStatus(ctx context.Context, subject domain.EntityID, markType string) (bool, error)
}

// Server serves the federation endpoints.
type Server struct {
	server *http.Server
	log    *zap.Logger
}

// NewServer creates a federation endpoint server.
func NewServer(addr string, svc EntityService, log *zap.Logger) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("address is required")
	}
	if svc == nil {
		return nil, fmt.Errorf("entity service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	h := &handlers{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/.well-known/openid-federation", h.entityConfiguration)
	r.Get("/fetch", h.fetch)
	r.Get("/list", h.list)
	r.Get("/resolve", h.resolve)
	r.Get("/trust_mark_status", h.trustMarkStatus)

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts serving. It returns once the listener is up or an immediate
// startup error is caught.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("federation endpoint server error", zap.Error(err))
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		s.log.Info("federation endpoints listening", zap.String("addr", s.server.Addr))
		return nil
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown federation endpoint server: %w", err)
	}
	return nil
}
