package lucky

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{WithRetryDelay(time.Millisecond), WithTimeout(2 * time.Second)}, opts...)
	c, err := NewClient("home", url, zerolog.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "lucky.local", "://nope"} {
		_, err := NewClient("home", u, zerolog.Nop())
		require.Error(t, err, u)
		assert.ErrorIs(t, err, ErrInvalidURL)
	}
}

func TestFetchSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-token", r.Header.Get(TokenHeader))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "pw", pass)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ProxyList": [{"Key": "Proxmox", "Connections": 2}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithToken("secret-token"), WithBasicAuth("admin", "pw"))
	records, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].Connections)
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Connections": 1}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "home", records[0].Key)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchExhaustion(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithMaxRetries(3))
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	assert.ErrorIs(t, err, ErrCollectionFailed)
	assert.True(t, IsCollectionError(err))

	var ce *CollectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "home", ce.Source)
	assert.Equal(t, 3, ce.Attempts)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsUnauthorized())
}

func TestFetchResetsPoolOnConnectionReset(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{"Connections": 0}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.pool.Resets())
}

func TestFetchUnrecognizedPayloadIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>please log in</html>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	records, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithRetryDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Fetch(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTestReportsShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"statistics": {"Proxmox": {"Connections": 5}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	shape, records, err := c.Test(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ShapeStatistics, shape)
	assert.Equal(t, int64(5), TotalConnections(records))
}
