package domain

import (
	"fmt"
	"reflect"
	"strings"
)

// Metadata maps an entity type (e.g. "openid_provider", "federation_entity")
// to that type's open key/value configuration block, as self-asserted by the
// leaf and constrained by superiors.
type Metadata map[string]map[string]any

// Clone returns a deep copy. Folding never mutates the input metadata so
// cached chains stay immutable.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for entityType, claims := range m {
		cp := make(map[string]any, len(claims))
		for k, v := range claims {
			cp[k] = deepCopyValue(v)
		}
		out[entityType] = cp
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = deepCopyValue(e)
		}
		return cp
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, e := range t {
			cp[k] = deepCopyValue(e)
		}
		return cp
	default:
		return v
	}
}

// PolicyDirective is the set of policy verbs a superior may attach to one
// metadata claim.
type PolicyDirective struct {
	// Value forces the claim to this value.
	Value any `json:"value,omitempty"`
	// Add guarantees these entries are present in a list claim.
	Add []any `json:"add,omitempty"`
	// Default fills the claim if the subject left it absent.
	Default any `json:"default,omitempty"`
	// OneOf restricts a scalar claim to one of these values.
	OneOf []any `json:"one_of,omitempty"`
	// SubsetOf intersects a list claim with these values.
	SubsetOf []any `json:"subset_of,omitempty"`
	// SupersetOf requires a list claim to contain all of these values.
	SupersetOf []any `json:"superset_of,omitempty"`
	// Essential requires the claim to be present after all folding.
	Essential bool `json:"essential,omitempty"`
}

// MetadataPolicy maps entity type to per-claim directives. It is carried on
// subordinate statements and folded onto the leaf's self-asserted metadata
// walking leaf-ward to anchor-ward, so the anchor's policy is applied last
// and has final say.
type MetadataPolicy map[string]map[string]PolicyDirective

// Apply folds the policy onto metadata and returns the constrained copy.
// The input is never mutated. Fails with ErrPolicyViolation when a verb
// cannot be satisfied.
func (p MetadataPolicy) Apply(m Metadata) (Metadata, error) {
	out := m.Clone()
	if out == nil {
		out = Metadata{}
	}
	for entityType, directives := range p {
		claims := out[entityType]
		if claims == nil {
			claims = map[string]any{}
			out[entityType] = claims
		}
		for claim, d := range directives {
			if err := d.apply(claims, claim); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrPolicyViolation, entityType, claim, err)
			}
		}
	}
	return out, nil
}

func (d PolicyDirective) apply(claims map[string]any, claim string) error {
	if d.Value != nil {
		claims[claim] = deepCopyValue(d.Value)
	}
	if len(d.Add) > 0 {
		list, _, err := asList(claims[claim])
		if err != nil {
			return err
		}
		for _, v := range d.Add {
			if !containsValue(list, v) {
				list = append(list, deepCopyValue(v))
			}
		}
		claims[claim] = list
	}
	if d.Default != nil {
		if _, present := claims[claim]; !present {
			claims[claim] = deepCopyValue(d.Default)
		}
	}
	if len(d.OneOf) > 0 {
		if v, present := claims[claim]; present {
			if !containsValue(d.OneOf, v) {
				return fmt.Errorf("value %v not in one_of %v", v, d.OneOf)
			}
		}
	}
	if len(d.SubsetOf) > 0 {
		if v, present := claims[claim]; present {
			list, wasString, err := asList(v)
			if err != nil {
				return err
			}
			kept := make([]any, 0, len(list))
			for _, e := range list {
				if containsValue(d.SubsetOf, e) {
					kept = append(kept, e)
				}
			}
			if len(kept) == 0 {
				return fmt.Errorf("empty intersection with subset_of %v", d.SubsetOf)
			}
			claims[claim] = fromList(kept, wasString)
		}
	}
	if len(d.SupersetOf) > 0 {
		if v, present := claims[claim]; present {
			list, _, err := asList(v)
			if err != nil {
				return err
			}
			for _, want := range d.SupersetOf {
				if !containsValue(list, want) {
					return fmt.Errorf("missing %v required by superset_of", want)
				}
			}
		}
	}
	if d.Essential {
		if _, present := claims[claim]; !present {
			return fmt.Errorf("essential claim absent")
		}
	}
	return nil
}

// asList views a claim value as a list. Space-separated strings (the scope
// convention) are split so list verbs apply to them; fromList restores the
// original shape.
func asList(v any) (list []any, wasString bool, err error) {
	switch t := v.(type) {
	case nil:
		return nil, false, nil
	case []any:
		return append([]any(nil), t...), false, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, false, nil
	case string:
		parts := strings.Fields(t)
		out := make([]any, len(parts))
		for i, s := range parts {
			out[i] = s
		}
		return out, true, nil
	default:
		return nil, false, fmt.Errorf("value %v is not a list", v)
	}
}

func fromList(list []any, wasString bool) any {
	if !wasString {
		return list
	}
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, " ")
}

func containsValue(list []any, v any) bool {
	for _, e := range list {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}
