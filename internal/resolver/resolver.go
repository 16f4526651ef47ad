// Package resolver implements trust chain construction and verification:
// given a leaf entity identifier and a set of trusted anchors, it discovers
// a path of signed statements from the leaf through its authority hints to
// an anchor, verifies every signature and claim along the way, folds
// metadata policy, validates attached trust marks and memoizes the result.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sufield/fedtrust/internal/codec"
	"github.com/sufield/fedtrust/internal/domain"
	"github.com/sufield/fedtrust/internal/ports"
)

// Defaults bounding a resolution.
const (
	DefaultMaxDepth       = 10
	DefaultResolveTimeout = 30 * time.Second
)

// Options tune a Resolver.
type Options struct {
	// MaxDepth bounds the number of hops from leaf to anchor; exceeding it
	// fails with domain.ErrChainTooLong.
	MaxDepth int
	// ResolveTimeout bounds total wall-clock time of one resolution;
	// exceeding it fails with domain.ErrResolutionTimeout.
	ResolveTimeout time.Duration
	// RequiredTrustMarks lists trust mark types whose absence after
	// validation fails resolution with domain.ErrRequiredTrustMarkMissing.
	RequiredTrustMarks []string
	// TrustMarkAnchors is the anchor set used when resolving trust mark
	// issuers; empty means the request's own anchor set.
	TrustMarkAnchors []domain.EntityID
}

// ValidatedTrustMark is a trust mark that survived validation.
type ValidatedTrustMark struct {
	Type string
	Mark *domain.TrustMark
}

// DroppedTrustMark reports a trust mark that did not survive validation.
// Dropped marks never fail resolution unless their type is required.
type DroppedTrustMark struct {
	Type   string
	Reason string
}

// Result is a completed resolution: the validated chain, the policy-folded
// metadata, the surviving trust marks, and the instant the cache entry
// becomes unusable.
type Result struct {
	Chain      *domain.TrustChain
	Metadata   domain.Metadata
	TrustMarks []ValidatedTrustMark
	Dropped    []DroppedTrustMark
	ExpiresAt  time.Time
}

// Resolver walks authority hints depth-first in declared order, abandoning
// sibling hints once a path reaches an anchor. Concurrent resolutions for
// the same (subject, anchor set) collapse to a single in-flight walk.
type Resolver struct {
	fetcher ports.Fetcher
	codec   *codec.Codec
	cache   *Cache
	log     *zap.Logger
	opts    Options
	group   singleflight.Group
}

// New creates a Resolver.
func New(fetcher ports.Fetcher, cdc *codec.Codec, cache *Cache, log *zap.Logger, opts Options) (*Resolver, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cdc == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = DefaultResolveTimeout
	}
	return &Resolver{
		fetcher: fetcher,
		codec:   cdc,
		cache:   cache,
		log:     log,
		opts:    opts,
	}, nil
}

// Resolve constructs and verifies a trust chain from subject to one of the
// anchors. It either returns a fully validated result or a single terminal
// error; no partial chain is ever returned as valid.
func (r *Resolver) Resolve(ctx context.Context, subject domain.EntityID, anchors []domain.EntityID) (*Result, error) {
	if len(anchors) == 0 {
		return nil, fmt.Errorf("anchor set must not be empty")
	}

	now := time.Now()
	for _, anchor := range anchors {
		if res, ok := r.cache.Get(subject, anchor, now); ok {
			r.log.Debug("trust chain cache hit",
				zap.String("subject", subject.String()),
				zap.String("anchor", anchor.String()))
			return res, nil
		}
	}

	// Collapse concurrent resolutions for the same subject and anchor set.
	key := flightKey(subject, anchors)
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.resolve(ctx, subject, anchors, true)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.log.Debug("joined in-flight resolution", zap.String("subject", subject.String()))
	}
	return v.(*Result), nil
}

// flightKey joins the subject and sorted anchor set with NUL, which no
// entity identifier can contain, so distinct inputs never share a key.
func flightKey(subject domain.EntityID, anchors []domain.EntityID) string {
	sorted := make([]string, len(anchors))
	for i, a := range anchors {
		sorted[i] = a.String()
	}
	sort.Strings(sorted)
	return subject.String() + "\x00" + strings.Join(sorted, "\x00")
}

// resolve runs one full resolution. validateMarks is false when this
// resolution only establishes a trust mark issuer's keys; those runs skip
// mark validation (preventing recursion) and are not cached as full results.
func (r *Resolver) resolve(ctx context.Context, subject domain.EntityID, anchors []domain.EntityID, validateMarks bool) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ResolveTimeout)
	defer cancel()

	anchorSet := make(map[domain.EntityID]struct{}, len(anchors))
	for _, a := range anchors {
		anchorSet[a] = struct{}{}
	}

	leaf, err := r.fetchEntityConfiguration(ctx, subject, 0)
	if err != nil {
		return nil, err
	}
	visited := map[domain.EntityID]struct{}{subject: {}}

	links, anchorConfig, err := r.walk(ctx, leaf, visited, 0, anchorSet)
	if err != nil {
		return nil, err
	}

	chain := &domain.TrustChain{
		Leaf:         leaf,
		Links:        links,
		AnchorID:     anchorConfig.Subject,
		AnchorConfig: anchorConfig,
	}
	if err := domain.CheckChainConstraints(chain); err != nil {
		return nil, &domain.ResolutionError{Entity: subject, Depth: len(links), Err: err}
	}

	metadata, err := foldMetadata(chain)
	if err != nil {
		return nil, &domain.ResolutionError{Entity: subject, Depth: len(links), Err: err}
	}

	res := &Result{
		Chain:     chain,
		Metadata:  metadata,
		ExpiresAt: chain.ExpiresAt().Add(-r.cache.Skew()),
	}

	if validateMarks {
		res.TrustMarks, res.Dropped = r.validateTrustMarks(ctx, chain, anchors)
		if err := r.checkRequiredMarks(res.TrustMarks); err != nil {
			return nil, &domain.ResolutionError{Entity: subject, Depth: len(links), Err: err}
		}
		r.cache.Put(res)
		r.log.Info("trust chain resolved",
			zap.String("subject", subject.String()),
			zap.String("anchor", chain.AnchorID.String()),
			zap.Int("length", chain.Len()),
			zap.Time("expires_at", res.ExpiresAt))
	}
	return res, nil
}

// walk explores the frontier entity's authority hints depth-first in their
// declared order. It returns the subordinate statements linking the frontier
// to an anchor, together with the anchor's verified configuration. When
// every hint fails, the error from the path that progressed furthest is
// returned as the most informative.
func (r *Resolver) walk(
	ctx context.Context,
	frontier *domain.EntityStatement,
	visited map[domain.EntityID]struct{},
	depth int,
	anchorSet map[domain.EntityID]struct{},
) ([]*domain.SubordinateStatement, *domain.EntityStatement, error) {
	if _, isAnchor := anchorSet[frontier.Subject]; isAnchor {
		return nil, frontier, nil
	}
	if depth >= r.opts.MaxDepth {
		return nil, nil, &domain.ResolutionError{Entity: frontier.Subject, Depth: depth, Err: domain.ErrChainTooLong}
	}
	if len(frontier.AuthorityHints) == 0 {
		return nil, nil, &domain.ResolutionError{Entity: frontier.Subject, Depth: depth, Err: domain.ErrNoValidPath}
	}

	var furthest *domain.ResolutionError
	for _, hint := range frontier.AuthorityHints {
		if err := ctx.Err(); err != nil {
			return nil, nil, r.classify(frontier.Subject, depth, err)
		}
		if _, seen := visited[hint]; seen {
			r.log.Debug("authority hint already visited, skipping",
				zap.String("frontier", frontier.Subject.String()),
				zap.String("hint", hint.String()))
			continue
		}

		link, superior, err := r.fetchLink(ctx, frontier, hint, depth)
		if err != nil {
			furthest = deepest(furthest, r.classify(hint, depth, err))
			continue
		}
		visited[hint] = struct{}{}

		if _, isAnchor := anchorSet[hint]; isAnchor {
			return []*domain.SubordinateStatement{link}, superior, nil
		}

		links, anchorConfig, err := r.walk(ctx, superior, visited, depth+1, anchorSet)
		if err == nil {
			return append([]*domain.SubordinateStatement{link}, links...), anchorConfig, nil
		}
		furthest = deepest(furthest, r.classify(hint, depth+1, err))
	}

	if furthest != nil {
		return nil, nil, furthest
	}
	// Every hint was a cycle back into the visited set.
	return nil, nil, &domain.ResolutionError{Entity: frontier.Subject, Depth: depth, Err: domain.ErrNoValidPath}
}

// fetchLink fetches and verifies one hop: the superior's own configuration,
// its subordinate statement about the frontier, and the cross-checks binding
// the two statements together.
func (r *Resolver) fetchLink(
	ctx context.Context,
	frontier *domain.EntityStatement,
	hint domain.EntityID,
	depth int,
) (*domain.SubordinateStatement, *domain.EntityStatement, error) {
	superior, err := r.fetchEntityConfiguration(ctx, hint, depth)
	if err != nil {
		return nil, nil, err
	}

	raw, err := r.fetcher.FetchSubordinateStatement(ctx, hint, frontier.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching subordinate statement from %q about %q: %w", hint, frontier.Subject, err)
	}
	link, err := r.codec.VerifySubordinateStatement(raw, superior.Keys)
	if err != nil {
		return nil, nil, err
	}

	if link.Issuer != hint {
		return nil, nil, fmt.Errorf("%w: statement from %q names issuer %q", domain.ErrBrokenChainLink, hint, link.Issuer)
	}
	if link.Subject != frontier.Subject {
		return nil, nil, fmt.Errorf("%w: statement from %q names subject %q, want %q",
			domain.ErrBrokenChainLink, hint, link.Subject, frontier.Subject)
	}
	// The frontier's statement must be signed by a key the superior vouches.
	if err := r.codec.VerifySignature(frontier.Raw, link.SubjectKeys); err != nil {
		return nil, nil, fmt.Errorf("%w: statement of %q is signed with a key %q does not vouch for",
			domain.ErrBrokenChainLink, frontier.Subject, hint)
	}

	r.log.Debug("chain link verified",
		zap.String("issuer", hint.String()),
		zap.String("subject", frontier.Subject.String()),
		zap.Int("depth", depth))
	return link, superior, nil
}

func (r *Resolver) fetchEntityConfiguration(ctx context.Context, entity domain.EntityID, depth int) (*domain.EntityStatement, error) {
	raw, err := r.fetcher.FetchEntityConfiguration(ctx, entity)
	if err != nil {
		return nil, r.classify(entity, depth, fmt.Errorf("fetching entity configuration of %q: %w", entity, err))
	}
	statement, err := r.codec.VerifyEntityConfiguration(raw)
	if err != nil {
		return nil, r.classify(entity, depth, err)
	}
	if statement.Subject != entity {
		return nil, &domain.ResolutionError{
			Entity: entity,
			Depth:  depth,
			Err:    fmt.Errorf("%w: configuration served by %q names subject %q", domain.ErrBrokenChainLink, entity, statement.Subject),
		}
	}
	return statement, nil
}

// classify wraps err into a ResolutionError at (entity, depth), preserving
// an existing ResolutionError and mapping context expiry to the timeout
// sentinel.
func (r *Resolver) classify(entity domain.EntityID, depth int, err error) *domain.ResolutionError {
	var re *domain.ResolutionError
	if errors.As(err, &re) {
		return re
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", domain.ErrResolutionTimeout, err)
	}
	return &domain.ResolutionError{Entity: entity, Depth: depth, Err: err}
}

// deepest keeps the error from the hint path that progressed furthest.
func deepest(a, b *domain.ResolutionError) *domain.ResolutionError {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Depth > a.Depth {
		return b
	}
	return a
}

// foldMetadata starts from the leaf's self-asserted metadata and applies
// each link's metadata policy walking leaf-ward to anchor-ward, so the
// anchor's policy folds last and has final say.
func foldMetadata(chain *domain.TrustChain) (domain.Metadata, error) {
	metadata := chain.Leaf.Metadata.Clone()
	for _, link := range chain.Links {
		if link.MetadataPolicy == nil {
			continue
		}
		folded, err := link.MetadataPolicy.Apply(metadata)
		if err != nil {
			return nil, fmt.Errorf("policy of %q: %w", link.Issuer, err)
		}
		metadata = folded
	}
	return metadata, nil
}

func (r *Resolver) checkRequiredMarks(validated []ValidatedTrustMark) error {
	for _, required := range r.opts.RequiredTrustMarks {
		found := false
		for _, mark := range validated {
			if mark.Type == required {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q", domain.ErrRequiredTrustMarkMissing, required)
		}
	}
	return nil
}
