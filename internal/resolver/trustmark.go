package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/sufield/fedtrust/internal/domain"
)

// validateTrustMarks evaluates every trust mark claimed on the chain's leaf.
// A mark survives when its issuer is acceptable to the anchor, the issuer's
// own keys resolve to the same trust root, the signature verifies under
// those keys, and the mark actually names the leaf within its validity
// window. Marks that fail any step are dropped and reported, never silently
// accepted; dropping never fails the resolution by itself.
func (r *Resolver) validateTrustMarks(ctx context.Context, chain *domain.TrustChain, anchors []domain.EntityID) ([]ValidatedTrustMark, []DroppedTrustMark) {
	refs := chain.Leaf.TrustMarks
	if len(refs) == 0 {
		return nil, nil
	}

	markAnchors := r.opts.TrustMarkAnchors
	if len(markAnchors) == 0 {
		markAnchors = anchors
	}

	var validated []ValidatedTrustMark
	var dropped []DroppedTrustMark
	drop := func(ref domain.TrustMarkRef, reason string) {
		dropped = append(dropped, DroppedTrustMark{Type: ref.TrustMarkType, Reason: reason})
		r.log.Warn("trust mark dropped",
			zap.String("subject", chain.Leaf.Subject.String()),
			zap.String("trust_mark_type", ref.TrustMarkType),
			zap.String("reason", reason))
	}

	for _, ref := range refs {
		raw := []byte(ref.TrustMark)

		issuer, err := r.codec.PeekIssuer(raw)
		if err != nil {
			drop(ref, "unreadable issuer claim")
			continue
		}
		if !issuerAllowed(chain.AnchorConfig, ref.TrustMarkType, issuer) {
			drop(ref, "issuer not recognized by anchor for this type")
			continue
		}

		// The issuer's keys must themselves be resolvable to a trusted
		// anchor; mark validation is skipped on that inner resolution to
		// keep issuer-of-issuer recursion bounded.
		issuerRes, err := r.resolve(ctx, issuer, markAnchors, false)
		if err != nil {
			drop(ref, "issuer keys not resolvable: "+err.Error())
			continue
		}

		mark, err := r.codec.VerifyTrustMark(raw, issuerRes.Chain.Leaf.Keys)
		if err != nil {
			drop(ref, "mark verification failed: "+err.Error())
			continue
		}
		if mark.Issuer != issuer {
			drop(ref, "issuer claim changed between peek and verification")
			continue
		}
		if mark.Subject != chain.Leaf.Subject {
			drop(ref, "mark names a different subject")
			continue
		}
		if mark.TrustMarkType != ref.TrustMarkType {
			drop(ref, "mark type does not match its reference")
			continue
		}

		validated = append(validated, ValidatedTrustMark{Type: mark.TrustMarkType, Mark: mark})
	}
	return validated, dropped
}

// issuerAllowed applies the anchor's trust_mark_issuers allow-list. An
// anchor that publishes no allow-list accepts any resolvable issuer; one
// that publishes a list restricts marks to the types it names, with an
// empty issuer list meaning any issuer for that type.
func issuerAllowed(anchorConfig *domain.EntityStatement, markType string, issuer domain.EntityID) bool {
	if anchorConfig == nil || anchorConfig.TrustMarkIssuers == nil {
		return true
	}
	allowed, known := anchorConfig.TrustMarkIssuers[markType]
	if !known {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, id := range allowed {
		if id == issuer {
			return true
		}
	}
	return false
}
