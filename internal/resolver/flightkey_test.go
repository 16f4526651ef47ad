package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sufield/fedtrust/internal/domain"
)

func TestFlightKey(t *testing.T) {
	t.Parallel()

	t.Run("anchor order is irrelevant", func(t *testing.T) {
		t.Parallel()
		a := flightKey("https://op.example.org",
			[]domain.EntityID{"https://ta1.example.org", "https://ta2.example.org"})
		b := flightKey("https://op.example.org",
			[]domain.EntityID{"https://ta2.example.org", "https://ta1.example.org"})
		assert.Equal(t, a, b)
	})

	t.Run("distinct subjects never share a key", func(t *testing.T) {
		t.Parallel()
		a := flightKey("https://op.example.org",
			[]domain.EntityID{"https://ta.example.org"})
		b := flightKey("https://other.example.org",
			[]domain.EntityID{"https://ta.example.org"})
		assert.NotEqual(t, a, b)
	})

	t.Run("separator characters in identifier paths cannot collide", func(t *testing.T) {
		t.Parallel()
		// Commas and pipes are legal in URL paths; one anchor whose path
		// embeds another identifier must not key like two anchors.
		a := flightKey("https://op.example.org",
			[]domain.EntityID{"https://ta.example.org/x,https://tb.example.org"})
		b := flightKey("https://op.example.org",
			[]domain.EntityID{"https://ta.example.org/x", "https://tb.example.org"})
		assert.NotEqual(t, a, b)

		c := flightKey("https://op.example.org/a|https://ta.example.org",
			[]domain.EntityID{"https://tb.example.org"})
		d := flightKey("https://op.example.org/a",
			[]domain.EntityID{"https://ta.example.org", "https://tb.example.org"})
		assert.NotEqual(t, c, d)
	})
}
