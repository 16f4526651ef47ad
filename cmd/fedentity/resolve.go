package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sufield/fedtrust/internal/adapters/outbound/httpfetch"
	"github.com/sufield/fedtrust/internal/codec"
	"github.com/sufield/fedtrust/internal/domain"
	"github.com/sufield/fedtrust/internal/resolver"
)

// resolveOutput is what the resolve command prints on success.
type resolveOutput struct {
	Subject     string            `json:"subject"`
	TrustAnchor string            `json:"trust_anchor"`
	Path        []string          `json:"path"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Metadata    domain.Metadata   `json:"metadata,omitempty"`
	TrustMarks  []string          `json:"trust_marks,omitempty"`
	Dropped     map[string]string `json:"dropped_trust_marks,omitempty"`
}

func resolveCommand(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	sub := fs.String("sub", "", "Entity identifier to resolve (required)")
	anchor := fs.String("trust-anchor", "", "Trust anchor entity identifier (required)")
	maxDepth := fs.Int("max-depth", resolver.DefaultMaxDepth, "Maximum chain length in hops")
	timeout := fs.Duration("timeout", resolver.DefaultResolveTimeout, "Overall resolution timeout")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *sub == "" || *anchor == "" {
		return fmt.Errorf("--sub and --trust-anchor are required")
	}
	subject, err := domain.ParseEntityID(*sub)
	if err != nil {
		return err
	}
	anchorID, err := domain.ParseEntityID(*anchor)
	if err != nil {
		return err
	}

	log := zap.NewNop()
	if *debug {
		log, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer func() { _ = log.Sync() }()
	}

	fetcher := httpfetch.NewClient(log)
	res, err := resolver.New(fetcher, codec.New(), resolver.NewCache(0), log, resolver.Options{
		MaxDepth:       *maxDepth,
		ResolveTimeout: *timeout,
	})
	if err != nil {
		return err
	}

	result, err := res.Resolve(context.Background(), subject, []domain.EntityID{anchorID})
	if err != nil {
		return err
	}

	out := resolveOutput{
		Subject:     subject.String(),
		TrustAnchor: result.Chain.AnchorID.String(),
		ExpiresAt:   result.ExpiresAt,
		Metadata:    result.Metadata,
	}
	for _, id := range result.Chain.Path() {
		out.Path = append(out.Path, id.String())
	}
	for _, mark := range result.TrustMarks {
		out.TrustMarks = append(out.TrustMarks, mark.Type)
	}
	if len(result.Dropped) > 0 {
		out.Dropped = make(map[string]string, len(result.Dropped))
		for _, d := range result.Dropped {
			out.Dropped[d.Type] = d.Reason
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
