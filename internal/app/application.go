package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"github.com/sufield/fedtrust/internal/adapters/inbound/httpapi"
	"github.com/sufield/fedtrust/internal/adapters/outbound/httpfetch"
	"github.com/sufield/fedtrust/internal/adapters/outbound/inmemory"
	"github.com/sufield/fedtrust/internal/codec"
	"github.com/sufield/fedtrust/internal/config"
	"github.com/sufield/fedtrust/internal/domain"
	"github.com/sufield/fedtrust/internal/ports"
	"github.com/sufield/fedtrust/internal/resolver"
)

// Application is the composition root: the wired service, the HTTP surface
// serving it, and the logger the whole process shares.
type Application struct {
	Config   config.FileConfig
	Service  *Service
	Resolver *resolver.Resolver
	Server   *httpapi.Server
	Log      *zap.Logger
}

// Bootstrap wires all components from a validated configuration. Seeding the
// subordinate store happens here, once, before the server starts.
func Bootstrap(ctx context.Context, cfg config.FileConfig, log *zap.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	entityID, err := domain.ParseEntityID(cfg.EntityID)
	if err != nil {
		return nil, err
	}

	// Signing key. The kid must be set; statements without one cannot be
	// matched against a published key set.
	signingKey, err := loadPrivateKey(cfg.PrivateKeyFile)
	if err != nil {
		return nil, err
	}

	cdc := newCodec(cfg)
	cache := resolver.NewCache(cfg.CacheSkew())

	fetchOpts := []httpfetch.Option{}
	if d := cfg.FetchTimeout(); d > 0 {
		fetchOpts = append(fetchOpts, httpfetch.WithFetchTimeout(d))
	}
	fetcher := httpfetch.NewClient(log, fetchOpts...)

	res, err := resolver.New(fetcher, cdc, cache, log, resolver.Options{
		MaxDepth:           cfg.Resolver.MaxDepth,
		ResolveTimeout:     cfg.ResolveTimeout(),
		RequiredTrustMarks: cfg.RequiredTrustMarks,
		TrustMarkAnchors:   parseEntityIDs(cfg.TrustMarkAnchors),
	})
	if err != nil {
		return nil, fmt.Errorf("building resolver: %w", err)
	}

	source, err := seedSource(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := NewService(ServiceParams{
		EntityID:          entityID,
		SigningKey:        signingKey,
		AuthorityHints:    parseEntityIDs(cfg.AuthorityHints),
		TrustAnchors:      parseEntityIDs(cfg.TrustAnchors),
		Metadata:          domain.Metadata(cfg.Metadata),
		StatementLifetime: cfg.Lifetime(),
		Codec:             cdc,
		Source:            source,
		Resolver:          res,
	})
	if err != nil {
		return nil, fmt.Errorf("building entity service: %w", err)
	}

	server, err := httpapi.NewServer(cfg.ListenAddr, svc, log)
	if err != nil {
		return nil, fmt.Errorf("building server: %w", err)
	}

	return &Application{
		Config:   cfg,
		Service:  svc,
		Resolver: res,
		Server:   server,
		Log:      log,
	}, nil
}

// Run starts the HTTP surface and blocks until the context is canceled or
// the server fails, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Server.Start(ctx); err != nil {
		return err
	}
	a.Log.Info("federation entity running",
		zap.String("entity_id", a.Service.EntityID().String()),
		zap.String("listen_addr", a.Config.ListenAddr))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Server.Stop(shutdownCtx)
}

func newCodec(cfg config.FileConfig) *codec.Codec {
	if d := cfg.ClockSkew(); d > 0 {
		return codec.New(codec.WithClockSkew(d))
	}
	return codec.New()
}

// loadPrivateKey reads a single private JWK from disk.
func loadPrivateKey(path string) (jwk.Key, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - key file path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	if key.KeyID() == "" {
		return nil, fmt.Errorf("private key has no kid")
	}
	return key, nil
}

// seedSource builds the in-memory statement store from the configured
// subordinates and issued trust marks.
func seedSource(cfg config.FileConfig) (*inmemory.Source, error) {
	source := inmemory.NewSource()
	for _, sub := range cfg.Subordinates {
		id, err := domain.ParseEntityID(sub.EntityID)
		if err != nil {
			return nil, err
		}
		keys, err := loadKeySet(sub.JWKSFile)
		if err != nil {
			return nil, fmt.Errorf("subordinate %s: %w", sub.EntityID, err)
		}
		policy, err := toMetadataPolicy(sub.MetadataPolicy)
		if err != nil {
			return nil, fmt.Errorf("subordinate %s: %w", sub.EntityID, err)
		}
		var constraints *domain.Constraints
		if sub.MaxPathLength != nil {
			constraints = &domain.Constraints{MaxPathLength: sub.MaxPathLength}
		}
		rec := ports.SubordinateRecord{ID: id, Keys: keys, Policy: policy, Constraints: constraints}
		if err := source.RegisterSubordinate(rec); err != nil {
			return nil, err
		}
	}
	for _, mark := range cfg.TrustMarks {
		subject, err := domain.ParseEntityID(mark.Subject)
		if err != nil {
			return nil, err
		}
		source.SetTrustMarkStatus(subject, mark.TrustMarkType, mark.Active)
	}
	return source, nil
}

// loadKeySet reads a public JWK Set document from disk.
func loadKeySet(path string) (domain.KeySet, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - jwks file path comes from the operator
	if err != nil {
		return domain.KeySet{}, fmt.Errorf("failed to read jwks file: %w", err)
	}
	var keys domain.KeySet
	if err := json.Unmarshal(data, &keys); err != nil {
		return domain.KeySet{}, fmt.Errorf("failed to parse jwks file: %w", err)
	}
	return keys, nil
}

// toMetadataPolicy converts the YAML policy shape into the domain policy.
// Both sides are JSON-compatible maps, so a marshal round trip is exact.
func toMetadataPolicy(raw map[string]map[string]map[string]any) (domain.MetadataPolicy, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata policy: %w", err)
	}
	var policy domain.MetadataPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("decoding metadata policy: %w", err)
	}
	return policy, nil
}

func parseEntityIDs(raw []string) []domain.EntityID {
	if len(raw) == 0 {
		return nil
	}
	ids := make([]domain.EntityID, 0, len(raw))
	for _, r := range raw {
		// Validate ran before Bootstrap; a bad identifier cannot reach here.
		ids = append(ids, domain.EntityID(r))
	}
	return ids
}
