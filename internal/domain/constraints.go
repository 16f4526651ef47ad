package domain

import (
	"fmt"
	"strings"
)

// NamingConstraints restrict which subjects may appear below the issuer in a
// trust chain. Entries are entity identifiers matched by domain suffix, so
// "https://example.org" covers "https://op.example.org".
type NamingConstraints struct {
	Permitted []string `json:"permitted,omitempty"`
	Excluded  []string `json:"excluded,omitempty"`
}

// Constraints are the chain restrictions a superior may impose on everything
// below it.
type Constraints struct {
	// MaxPathLength bounds how many further subordinate statements may
	// follow below this statement's subject.
	MaxPathLength     *int               `json:"max_path_length,omitempty"`
	NamingConstraints *NamingConstraints `json:"naming_constraints,omitempty"`
}

// CheckChainConstraints verifies a completed chain against the constraints
// its superior statements carry, walking anchor-ward to leaf-ward so an
// anchor's restrictions bind everything beneath it.
func CheckChainConstraints(chain *TrustChain) error {
	remaining := 0
	assigned := false
	var permitted, excluded []string

	for i := len(chain.Links) - 1; i >= 0; i-- {
		link := chain.Links[i]
		if assigned {
			remaining--
			if remaining < 0 {
				return fmt.Errorf("%w: max_path_length exceeded below %q", ErrPolicyViolation, link.Issuer)
			}
		}
		if c := link.Constraints; c != nil {
			if c.MaxPathLength != nil {
				// A subordinate may tighten the limit but never relax it.
				if !assigned || *c.MaxPathLength < remaining {
					remaining = *c.MaxPathLength
				}
				assigned = true
			}
			if nc := c.NamingConstraints; nc != nil {
				permitted = append(permitted, nc.Permitted...)
				excluded = append(excluded, nc.Excluded...)
			}
		}
		if err := checkNaming(link.Subject, permitted, excluded); err != nil {
			return err
		}
	}
	return checkNaming(chain.Leaf.Subject, permitted, excluded)
}

func checkNaming(subject EntityID, permitted, excluded []string) error {
	for _, excl := range excluded {
		if coveredBy(subject.String(), excl) {
			return fmt.Errorf("%w: subject %q excluded by naming constraint %q", ErrPolicyViolation, subject, excl)
		}
	}
	if len(permitted) == 0 {
		return nil
	}
	for _, perm := range permitted {
		if coveredBy(subject.String(), perm) {
			return nil
		}
	}
	return fmt.Errorf("%w: subject %q not covered by any permitted naming constraint", ErrPolicyViolation, subject)
}

// coveredBy reports whether subject falls under constraint by domain suffix:
// the constraint's host labels must be a suffix of the subject's.
func coveredBy(subject, constraint string) bool {
	subj := labels(subject)
	cons := labels(constraint)
	if len(subj) < len(cons) {
		return false
	}
	for i := 1; i <= len(cons); i++ {
		if subj[len(subj)-i] != cons[len(cons)-i] {
			return false
		}
	}
	return true
}

func labels(id string) []string {
	id = strings.TrimPrefix(id, "https://")
	id = strings.TrimPrefix(id, "http://")
	if i := strings.IndexAny(id, "/:"); i >= 0 {
		id = id[:i]
	}
	return strings.Split(id, ".")
}
