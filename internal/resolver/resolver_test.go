package resolver_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sufield/fedtrust/internal/adapters/outbound/inmemory"
	"github.com/sufield/fedtrust/internal/codec"
	"github.com/sufield/fedtrust/internal/domain"
	"github.com/sufield/fedtrust/internal/fedtest"
	"github.com/sufield/fedtrust/internal/resolver"
)

func newResolver(t *testing.T, fed *fedtest.Federation, cdc *codec.Codec, opts resolver.Options) (*resolver.Resolver, *resolver.Cache) {
	t.Helper()
	cache := resolver.NewCache(0)
	r, err := resolver.New(fed.Fetcher, cdc, cache, zap.NewNop(), opts)
	require.NoError(t, err)
	return r, cache
}

func anchors(ids ...domain.EntityID) []domain.EntityID { return ids }

func TestResolveDirectChain(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	ta := fedtest.NewEntity(t, "https://ta.example.org")

	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{ta.ID}
		st.Metadata = domain.Metadata{
			"openid_provider": {"response_types_supported": []any{"code", "token"}},
		}
	})
	fed.PublishConfig(ta, nil)
	fed.PublishSubordinate(ta, op, func(st *domain.SubordinateStatement) {
		st.MetadataPolicy = domain.MetadataPolicy{
			"openid_provider": {"response_types_supported": {SubsetOf: []any{"code"}}},
		}
	})

	r, cache := newResolver(t, fed, cdc, resolver.Options{})
	res, err := r.Resolve(context.Background(), op.ID, anchors(ta.ID))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Chain.Len())
	assert.Equal(t, []domain.EntityID{op.ID, ta.ID}, res.Chain.Path())
	assert.Equal(t, ta.ID, res.Chain.AnchorID)
	require.NotNil(t, res.Chain.AnchorConfig)
	assert.NoError(t, res.Chain.VerifyAdjacency())

	// Anchor policy folded onto the leaf's self-asserted metadata.
	assert.Equal(t, []any{"code"}, res.Metadata["openid_provider"]["response_types_supported"])

	// Entry usable until the chain's earliest expiry minus the cache skew.
	assert.Equal(t, res.Chain.ExpiresAt().Add(-cache.Skew()), res.ExpiresAt)
	assert.Equal(t, 1, cache.Len())
}

func TestResolveSubjectIsAnchor(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	ta := fedtest.NewEntity(t, "https://ta.example.org")
	fed.PublishConfig(ta, nil)

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	res, err := r.Resolve(context.Background(), ta.ID, anchors(ta.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chain.Len())
	assert.Empty(t, res.Chain.Links)
	assert.Equal(t, ta.ID, res.Chain.AnchorID)
}

func TestResolveDeepChainWithSiblingFallback(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	dead := fedtest.NewEntity(t, "https://dead-end.example.org")
	mid := fedtest.NewEntity(t, "https://mid.example.org")
	ta := fedtest.NewEntity(t, "https://ta.example.org")

	// The first hint leads to a superior with no route to the anchor; the
	// walk must fall back to the next declared hint.
	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{dead.ID, mid.ID}
	})
	fed.PublishConfig(dead, nil)
	fed.PublishSubordinate(dead, op, nil)
	fed.PublishConfig(mid, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{ta.ID}
	})
	fed.PublishSubordinate(mid, op, nil)
	fed.PublishConfig(ta, nil)
	fed.PublishSubordinate(ta, mid, nil)

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	res, err := r.Resolve(context.Background(), op.ID, anchors(ta.ID))
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityID{op.ID, mid.ID, ta.ID}, res.Chain.Path())
	assert.NoError(t, res.Chain.VerifyAdjacency())
}

func TestResolveCycleFails(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	loop := fedtest.NewEntity(t, "https://loop.example.org")

	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{loop.ID}
	})
	fed.PublishConfig(loop, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{op.ID}
	})
	fed.PublishSubordinate(loop, op, nil)

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	_, err := r.Resolve(context.Background(), op.ID, anchors("https://ta.example.org"))
	assert.ErrorIs(t, err, domain.ErrNoValidPath)
}

func TestResolveChainTooLong(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	mid := fedtest.NewEntity(t, "https://mid.example.org")
	ta := fedtest.NewEntity(t, "https://ta.example.org")

	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{mid.ID}
	})
	fed.PublishConfig(mid, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{ta.ID}
	})
	fed.PublishSubordinate(mid, op, nil)
	fed.PublishConfig(ta, nil)
	fed.PublishSubordinate(ta, mid, nil)

	r, _ := newResolver(t, fed, cdc, resolver.Options{MaxDepth: 1})
	_, err := r.Resolve(context.Background(), op.ID, anchors(ta.ID))
	assert.ErrorIs(t, err, domain.ErrChainTooLong)
}

func TestResolveCacheHit(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	ta := fedtest.NewEntity(t, "https://ta.example.org")

	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{ta.ID}
	})
	fed.PublishConfig(ta, nil)
	fed.PublishSubordinate(ta, op, nil)

	r, _ := newResolver(t, fed, cdc, resolver.Options{})

	first, err := r.Resolve(context.Background(), op.ID, anchors(ta.ID))
	require.NoError(t, err)
	configCalls, subCalls := fed.Fetcher.Calls()

	second, err := r.Resolve(context.Background(), op.ID, anchors(ta.ID))
	require.NoError(t, err)
	assert.Same(t, first, second)

	// A cache hit never reaches the fetch boundary.
	configsAfter, subsAfter := fed.Fetcher.Calls()
	assert.Equal(t, configCalls, configsAfter)
	assert.Equal(t, subCalls, subsAfter)
}

// gatedFetcher holds every configuration fetch until released, keeping a
// resolution in flight while concurrent callers pile up behind it.
type gatedFetcher struct {
	*inmemory.Fetcher
	gate chan struct{}
}

func (g *gatedFetcher) FetchEntityConfiguration(ctx context.Context, entity domain.EntityID) ([]byte, error) {
	<-g.gate
	return g.Fetcher.FetchEntityConfiguration(ctx, entity)
}

func TestResolveConcurrentCallersCollapse(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	ta := fedtest.NewEntity(t, "https://ta.example.org")

	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{ta.ID}
	})
	fed.PublishConfig(ta, nil)
	fed.PublishSubordinate(ta, op, nil)

	gated := &gatedFetcher{Fetcher: fed.Fetcher, gate: make(chan struct{})}
	r, err := resolver.New(gated, cdc, resolver.NewCache(0), zap.NewNop(), resolver.Options{})
	require.NoError(t, err)

	const callers = 8
	results := make([]*resolver.Result, callers)
	errs := make([]error, callers)
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = r.Resolve(context.Background(), op.ID, anchors(ta.ID))
		}(i)
	}

	// Release the fetch only after every caller has had time to reach the
	// single in-flight walk.
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(gated.gate)
	done.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}

	// One walk's worth of fetches: two configurations and one statement.
	configs, subs := fed.Fetcher.Calls()
	assert.Equal(t, 2, configs)
	assert.Equal(t, 1, subs)
}

func TestResolveFailureFromDeepestPath(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	mid := fedtest.NewEntity(t, "https://mid.example.org")
	far := fedtest.NewEntity(t, "https://far.example.org")

	// The first hint dies immediately; the second verifies one hop before
	// its superior turns out unreachable. The deeper failure is reported.
	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{"https://absent.example.org", mid.ID}
	})
	fed.PublishConfig(mid, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{far.ID}
	})
	fed.PublishSubordinate(mid, op, nil)
	fed.Fetcher.SetUnreachable(far.ID, true)

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	_, err := r.Resolve(context.Background(), op.ID, anchors("https://ta.example.org"))
	require.Error(t, err)

	var re *domain.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, far.ID, re.Entity)
	assert.Equal(t, 1, re.Depth)
	assert.ErrorIs(t, err, domain.ErrUnreachableEntity)
}

func TestResolveBrokenVouching(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	ta := fedtest.NewEntity(t, "https://ta.example.org")
	impostor := fedtest.NewEntity(t, "https://op.example.org")

	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{ta.ID}
	})
	fed.PublishConfig(ta, nil)
	// The superior vouches keys that did not sign the leaf's configuration.
	fed.PublishSubordinate(ta, op, func(st *domain.SubordinateStatement) {
		st.SubjectKeys = impostor.Keys
	})

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	_, err := r.Resolve(context.Background(), op.ID, anchors(ta.ID))
	assert.ErrorIs(t, err, domain.ErrBrokenChainLink)
}

func TestResolveUnknownSubject(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	_, err := r.Resolve(context.Background(), "https://nobody.example.org", anchors("https://ta.example.org"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveServedSubjectMismatch(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	other := fedtest.NewEntity(t, "https://other.example.org")

	// An endpoint serving someone else's configuration must be rejected.
	raw, err := cdc.SignEntityStatement(other.Statement(), other.PrivateKey)
	require.NoError(t, err)
	fed.Fetcher.SetEntityConfiguration("https://op.example.org", raw)

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	_, err = r.Resolve(context.Background(), "https://op.example.org", anchors("https://ta.example.org"))
	assert.ErrorIs(t, err, domain.ErrBrokenChainLink)
}

func TestResolveUnreachableEntity(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	ta := fedtest.NewEntity(t, "https://ta.example.org")

	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{ta.ID}
	})
	fed.Fetcher.SetUnreachable(ta.ID, true)

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	_, err := r.Resolve(context.Background(), op.ID, anchors(ta.ID))
	assert.ErrorIs(t, err, domain.ErrUnreachableEntity)
}

func TestResolvePolicyViolation(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	ta := fedtest.NewEntity(t, "https://ta.example.org")

	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{ta.ID}
		st.Metadata = domain.Metadata{
			"openid_provider": {"token_endpoint_auth_method": "client_secret_basic"},
		}
	})
	fed.PublishConfig(ta, nil)
	fed.PublishSubordinate(ta, op, func(st *domain.SubordinateStatement) {
		st.MetadataPolicy = domain.MetadataPolicy{
			"openid_provider": {"token_endpoint_auth_method": {OneOf: []any{"private_key_jwt"}}},
		}
	})

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	_, err := r.Resolve(context.Background(), op.ID, anchors(ta.ID))
	assert.ErrorIs(t, err, domain.ErrPolicyViolation)
}

func TestResolveConstraintViolation(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	op := fedtest.NewEntity(t, "https://op.example.org")
	mid := fedtest.NewEntity(t, "https://mid.example.org")
	ta := fedtest.NewEntity(t, "https://ta.example.org")

	fed.PublishConfig(op, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{mid.ID}
	})
	fed.PublishConfig(mid, func(st *domain.EntityStatement) {
		st.AuthorityHints = []domain.EntityID{ta.ID}
	})
	fed.PublishSubordinate(mid, op, nil)
	fed.PublishConfig(ta, nil)
	fed.PublishSubordinate(ta, mid, func(st *domain.SubordinateStatement) {
		zero := 0
		st.Constraints = &domain.Constraints{MaxPathLength: &zero}
	})

	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	_, err := r.Resolve(context.Background(), op.ID, anchors(ta.ID))
	assert.ErrorIs(t, err, domain.ErrPolicyViolation)
}

func TestResolveEmptyAnchorSet(t *testing.T) {
	t.Parallel()

	cdc := codec.New()
	fed := fedtest.NewFederation(t, cdc)
	r, _ := newResolver(t, fed, cdc, resolver.Options{})
	_, err := r.Resolve(context.Background(), "https://op.example.org", nil)
	assert.Error(t, err)
}

// stalledFetcher never answers; every fetch blocks until the context dies.
type stalledFetcher struct{}

func (stalledFetcher) FetchEntityConfiguration(ctx context.Context, entity domain.EntityID) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledFetcher) FetchSubordinateStatement(ctx context.Context, superior, subject domain.EntityID) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveTimeout(t *testing.T) {
	t.Parallel()

	r, err := resolver.New(stalledFetcher{}, codec.New(), resolver.NewCache(0), zap.NewNop(),
		resolver.Options{ResolveTimeout: 10 * time.Millisecond})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "https://op.example.org", anchors("https://ta.example.org"))
	assert.ErrorIs(t, err, domain.ErrResolutionTimeout)
}
