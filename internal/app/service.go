// Package app wires the hosting entity together: the service producing this
// entity's signed statements and running resolution requests, and the
// bootstrap that builds it from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/sufield/fedtrust/internal/codec"
	"github.com/sufield/fedtrust/internal/domain"
	"github.com/sufield/fedtrust/internal/ports"
	"github.com/sufield/fedtrust/internal/resolver"
)

// Service implements the hosting entity's federation behavior behind the
// httpapi endpoints: it signs this entity's own statements and answers
// resolve requests using the injected resolver.
type Service struct {
	entityID   domain.EntityID
	signingKey jwk.Key
	publicKeys domain.KeySet
	hints      []domain.EntityID
	anchors    []domain.EntityID
	metadata   domain.Metadata
	lifetime   time.Duration
	codec      *codec.Codec
	source     ports.StatementSource
	resolver   *resolver.Resolver
	now        func() time.Time
}

// ServiceParams collects the dependencies of a Service.
type ServiceParams struct {
	EntityID   domain.EntityID
	SigningKey jwk.Key
	// AuthorityHints are advertised on the entity configuration.
	AuthorityHints []domain.EntityID
	// TrustAnchors restricts which anchors the resolve endpoint accepts;
	// empty means any anchor the caller names.
	TrustAnchors      []domain.EntityID
	Metadata          domain.Metadata
	StatementLifetime time.Duration
	Codec             *codec.Codec
	Source            ports.StatementSource
	Resolver          *resolver.Resolver
	// Clock overrides the time source; tests pin it.
	Clock func() time.Time
}

// NewService creates the entity service.
func NewService(p ServiceParams) (*Service, error) {
	if p.EntityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	if p.SigningKey == nil || p.SigningKey.KeyID() == "" {
		return nil, fmt.Errorf("signing key with kid is required")
	}
	if p.Codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if p.Source == nil {
		return nil, fmt.Errorf("statement source is required")
	}
	if p.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if p.StatementLifetime <= 0 {
		p.StatementLifetime = 24 * time.Hour
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}

	publicKey, err := jwk.PublicKeyOf(p.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("deriving public signing key: %w", err)
	}
	publicKeys, err := domain.NewKeySet(publicKey)
	if err != nil {
		return nil, err
	}

	return &Service{
		entityID:   p.EntityID,
		signingKey: p.SigningKey,
		publicKeys: publicKeys,
		hints:      p.AuthorityHints,
		anchors:    p.TrustAnchors,
		metadata:   p.Metadata,
		lifetime:   p.StatementLifetime,
		codec:      p.Codec,
		source:     p.Source,
		resolver:   p.Resolver,
		now:        p.Clock,
	}, nil
}

// EntityID returns this entity's identifier.
func (s *Service) EntityID() domain.EntityID {
	return s.entityID
}

// EntityConfiguration produces this entity's signed self-statement with the
// federation endpoint locations advertised in its metadata.
func (s *Service) EntityConfiguration(ctx context.Context) ([]byte, error) {
	now := s.now()
	st := domain.EntityStatement{
		Issuer:         s.entityID,
		Subject:        s.entityID,
		IssuedAt:       now.Unix(),
		ExpiresAt:      now.Add(s.lifetime).Unix(),
		Keys:           s.publicKeys,
		AuthorityHints: s.hints,
		Metadata:       s.federationMetadata(),
	}
	return s.codec.SignEntityStatement(&st, s.signingKey)
}

// federationMetadata merges the advertised endpoint locations into the
// configured self-asserted metadata.
func (s *Service) federationMetadata() domain.Metadata {
	metadata := s.metadata.Clone()
	if metadata == nil {
		metadata = domain.Metadata{}
	}
	fed := metadata["federation_entity"]
	if fed == nil {
		fed = map[string]any{}
		metadata["federation_entity"] = fed
	}
	base := s.entityID.String()
	fed["federation_fetch_endpoint"] = base + "/fetch"
	fed["federation_list_endpoint"] = base + "/list"
	fed["federation_resolve_endpoint"] = base + "/resolve"
	fed["federation_trust_mark_status_endpoint"] = base + "/trust_mark_status"
	return metadata
}

// SubordinateStatement produces this entity's signed statement about a
// registered subordinate.
func (s *Service) SubordinateStatement(ctx context.Context, subject domain.EntityID) ([]byte, error) {
	rec, err := s.source.Subordinate(ctx, subject)
	if err != nil {
		return nil, err
	}
	now := s.now()
	st := domain.SubordinateStatement{
		Issuer:         s.entityID,
		Subject:        subject,
		IssuedAt:       now.Unix(),
		ExpiresAt:      now.Add(s.lifetime).Unix(),
		SubjectKeys:    rec.Keys,
		MetadataPolicy: rec.Policy,
		SourceEndpoint: s.entityID.String() + "/fetch",
		Constraints:    rec.Constraints,
	}
	return s.codec.SignEntityStatement(&st, s.signingKey)
}

// resolveResponse is the claims set of a signed resolve response.
type resolveResponse struct {
	Issuer     domain.EntityID       `json:"iss"`
	Subject    domain.EntityID       `json:"sub"`
	IssuedAt   int64                 `json:"iat"`
	ExpiresAt  int64                 `json:"exp"`
	Metadata   domain.Metadata       `json:"metadata,omitempty"`
	TrustMarks []domain.TrustMarkRef `json:"trust_marks,omitempty"`
	TrustChain []string              `json:"trust_chain,omitempty"`
}

// Resolve runs trust chain resolution for subject against the anchor and
// signs the outcome. The response never outlives the resolved chain.
func (s *Service) Resolve(ctx context.Context, subject, anchor domain.EntityID, entityType string) ([]byte, error) {
	if !s.anchorAllowed(anchor) {
		return nil, fmt.Errorf("%w: trust anchor %q is not accepted here", domain.ErrNoValidPath, anchor)
	}
	res, err := s.resolver.Resolve(ctx, subject, []domain.EntityID{anchor})
	if err != nil {
		return nil, err
	}

	metadata := res.Metadata
	if entityType != "" {
		if block, ok := metadata[entityType]; ok {
			metadata = domain.Metadata{entityType: block}
		} else {
			metadata = domain.Metadata{}
		}
	}

	var marks []domain.TrustMarkRef
	for _, mark := range res.TrustMarks {
		marks = append(marks, domain.TrustMarkRef{
			TrustMarkType: mark.Type,
			TrustMark:     string(mark.Mark.Raw),
		})
	}

	now := s.now()
	claims := resolveResponse{
		Issuer:     s.entityID,
		Subject:    subject,
		IssuedAt:   now.Unix(),
		ExpiresAt:  res.Chain.ExpiresAt().Unix(),
		Metadata:   metadata,
		TrustMarks: marks,
		TrustChain: res.Chain.RawStatements(),
	}
	return s.codec.Sign(claims, s.signingKey, codec.TypeResolveResponse)
}

func (s *Service) anchorAllowed(anchor domain.EntityID) bool {
	if len(s.anchors) == 0 {
		return true
	}
	for _, a := range s.anchors {
		if a == anchor {
			return true
		}
	}
	return false
}

// ListSubordinates returns the registered subordinate identifiers.
func (s *Service) ListSubordinates(ctx context.Context) ([]domain.EntityID, error) {
	return s.source.ListSubordinates(ctx)
}

// TrustMarkStatus reports whether an active mark of markType exists for the
// subject among the marks this entity issued.
func (s *Service) TrustMarkStatus(ctx context.Context, subject domain.EntityID, markType string) (bool, error) {
	return s.source.TrustMarkStatus(ctx, subject, markType)
}
