package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/fedtrust/internal/domain"
)

func TestFetchEntityConfiguration(t *testing.T) {
	t.Parallel()

	var gotPath, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/entity-statement+jwt")
		_, _ = w.Write([]byte("signed-statement"))
	}))
	defer srv.Close()

	c := NewClient(nil)
	raw, err := c.FetchEntityConfiguration(context.Background(), domain.EntityID(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []byte("signed-statement"), raw)
	assert.Equal(t, WellKnownPath, gotPath)
	assert.Equal(t, "application/entity-statement+jwt", gotAccept)
}

func TestFetchSubordinateStatement(t *testing.T) {
	t.Parallel()

	var gotPath, gotSub string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSub = r.URL.Query().Get("sub")
		_, _ = w.Write([]byte("sub-statement"))
	}))
	defer srv.Close()

	c := NewClient(nil)
	raw, err := c.FetchSubordinateStatement(context.Background(), domain.EntityID(srv.URL), "https://op.example.org")
	require.NoError(t, err)
	assert.Equal(t, []byte("sub-statement"), raw)
	assert.Equal(t, "/fetch", gotPath)
	assert.Equal(t, "https://op.example.org", gotSub)
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(nil, WithMaxRetries(3))
	_, err := c.FetchEntityConfiguration(context.Background(), domain.EntityID(srv.URL))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	c := NewClient(nil, WithMaxRetries(2))
	raw, err := c.FetchEntityConfiguration(context.Background(), domain.EntityID(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), raw)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchExhaustedRetriesUnreachable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(nil, WithMaxRetries(2))
	_, err := c.FetchEntityConfiguration(context.Background(), domain.EntityID(srv.URL))
	assert.ErrorIs(t, err, domain.ErrUnreachableEntity)
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchUnexpectedStatusIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(nil, WithMaxRetries(3))
	_, err := c.FetchEntityConfiguration(context.Background(), domain.EntityID(srv.URL))
	assert.ErrorIs(t, err, domain.ErrUnreachableEntity)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, WithMaxRetries(0))
	_, err := c.FetchEntityConfiguration(context.Background(), "http://127.0.0.1:1")
	assert.ErrorIs(t, err, domain.ErrUnreachableEntity)
}
