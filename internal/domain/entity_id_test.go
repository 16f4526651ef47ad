package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    EntityID
		wantErr bool
	}{
		{
			name: "https identifier",
			raw:  "https://op.example.org",
			want: "https://op.example.org",
		},
		{
			name: "http tolerated for local federations",
			raw:  "http://localhost:8080",
			want: "http://localhost:8080",
		},
		{
			name: "trailing slash trimmed",
			raw:  "https://op.example.org/",
			want: "https://op.example.org",
		},
		{
			name: "path preserved",
			raw:  "https://example.org/tenants/a",
			want: "https://example.org/tenants/a",
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "wrong scheme",
			raw:     "ftp://example.org",
			wantErr: true,
		},
		{
			name:    "missing host",
			raw:     "https://",
			wantErr: true,
		},
		{
			name:    "query not allowed",
			raw:     "https://example.org?x=1",
			wantErr: true,
		},
		{
			name:    "fragment not allowed",
			raw:     "https://example.org#frag",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseEntityID(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedStatement)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntityIDHost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "op.example.org", EntityID("https://op.example.org").Host())
	assert.Equal(t, "localhost:8080", EntityID("http://localhost:8080").Host())
	assert.Equal(t, "example.org", EntityID("https://example.org/tenants/a").Host())
}
