package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQB is a minimal qBittorrent WebUI.
type fakeQB struct {
	t *testing.T

	mu         sync.Mutex
	password   string
	logins     int
	sid        int
	valid      map[string]bool
	download   string
	upload     string
	rejectNext int
	failNext   int
	resetNext  int
	banned     bool
}

func newFakeQB(t *testing.T) (*fakeQB, *httptest.Server) {
	f := &fakeQB{t: t, password: "secret", valid: map[string]bool{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case loginPath:
		assert.NotEmpty(f.t, r.Header.Get("Referer"))
		if f.banned {
			http.Error(w, "Your IP address has been banned", http.StatusForbidden)
			return
		}
		require.NoError(f.t, r.ParseForm())
		f.logins++
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != f.password {
			_, _ = w.Write([]byte("Fails."))
			return
		}
		f.sid++
		sid := fmt.Sprintf("sid-%d", f.sid)
		f.valid[sid] = true
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: sid})
		_, _ = w.Write([]byte("Ok."))

	case downloadPath, uploadPath:
		if f.resetNext > 0 {
			f.resetNext--
			hj, ok := w.(http.Hijacker)
			require.True(f.t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(f.t, err)
			_ = conn.Close()
			return
		}
		cookie, err := r.Cookie("SID")
		if err != nil || !f.valid[cookie.Value] {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if f.rejectNext > 0 {
			f.rejectNext--
			delete(f.valid, cookie.Value)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if f.failNext > 0 {
			f.failNext--
			http.Error(w, "oops", http.StatusInternalServerError)
			return
		}
		require.NoError(f.t, r.ParseForm())
		if r.URL.Path == downloadPath {
			f.download = r.PostForm.Get("limit")
		} else {
			f.upload = r.PostForm.Get("limit")
		}

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeQB) snapshot() (logins int, download, upload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.download, f.upload
}

func newTestActuator(opts ...Option) *Actuator {
	opts = append([]Option{WithRetryDelay(time.Millisecond), WithTimeout(2 * time.Second)}, opts...)
	return NewActuator(zerolog.Nop(), opts...)
}

func target(host string) Target {
	return Target{Name: "qb", Host: host, Username: "admin", Password: "secret"}
}

func TestApplyLimits(t *testing.T) {
	fake, srv := newFakeQB(t)
	act := newTestActuator()
	defer act.Close()

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{Download: 1024, Upload: 512}))

	logins, dl, ul := fake.snapshot()
	assert.Equal(t, 1, logins)
	assert.Equal(t, "1048576", dl, "KB/s are sent as bytes/s")
	assert.Equal(t, "524288", ul)

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{}))
	logins, dl, ul = fake.snapshot()
	assert.Equal(t, 1, logins, "session is reused")
	assert.Equal(t, "0", dl, "0 means unlimited")
	assert.Equal(t, "0", ul)
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	fake, srv := newFakeQB(t)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	act := newTestActuator(WithSessionTTL(time.Hour), withClock(clock))

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{Download: 1}))

	mu.Lock()
	now = now.Add(59 * time.Minute)
	mu.Unlock()
	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{Download: 1}))
	logins, _, _ := fake.snapshot()
	assert.Equal(t, 1, logins)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{Download: 1}))
	logins, _, _ = fake.snapshot()
	assert.Equal(t, 2, logins, "expired session triggers a new login")
}

func TestRejectedSessionIsReplaced(t *testing.T) {
	fake, srv := newFakeQB(t)
	act := newTestActuator()

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{Download: 10}))

	fake.mu.Lock()
	fake.rejectNext = 1
	fake.mu.Unlock()

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{Download: 20}))

	logins, dl, _ := fake.snapshot()
	assert.Equal(t, 2, logins, "a 403 drops the session and the retry logs in again")
	assert.Equal(t, "20480", dl)
}

func TestPasswordChangeForcesLogin(t *testing.T) {
	fake, srv := newFakeQB(t)
	act := newTestActuator()

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{}))

	fake.mu.Lock()
	fake.password = "rotated"
	fake.mu.Unlock()

	changed := target(srv.URL)
	changed.Password = "rotated"
	require.NoError(t, act.ApplyLimits(context.Background(), changed, Limits{}))

	logins, _, _ := fake.snapshot()
	assert.Equal(t, 2, logins)
}

func TestBadCredentialsExhaustRetries(t *testing.T) {
	fake, srv := newFakeQB(t)
	act := newTestActuator(WithMaxRetries(3))

	bad := target(srv.URL)
	bad.Password = "wrong"
	err := act.ApplyLimits(context.Background(), bad, Limits{Download: 1})
	require.Error(t, err)

	var ae *ActuationError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "qb", ae.Target)
	assert.Equal(t, StepLogin, ae.Step)
	assert.Equal(t, 3, ae.Attempts)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.True(t, IsAuthError(err))

	logins, _, _ := fake.snapshot()
	assert.Equal(t, 3, logins)
}

func TestBannedClient(t *testing.T) {
	fake, srv := newFakeQB(t)
	fake.mu.Lock()
	fake.banned = true
	fake.mu.Unlock()
	act := newTestActuator(WithMaxRetries(1))

	err := act.ApplyLimits(context.Background(), target(srv.URL), Limits{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)

	var ae *ActuationError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusForbidden, ae.StatusCode)
}

func TestServerErrorIsRetried(t *testing.T) {
	fake, srv := newFakeQB(t)
	fake.mu.Lock()
	fake.failNext = 2
	fake.mu.Unlock()
	act := newTestActuator(WithMaxRetries(3))

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{Upload: 5}))
	_, _, ul := fake.snapshot()
	assert.Equal(t, "5120", ul)
}

func TestServerErrorExhaustion(t *testing.T) {
	fake, srv := newFakeQB(t)
	fake.mu.Lock()
	fake.failNext = 10
	fake.mu.Unlock()
	act := newTestActuator(WithMaxRetries(2))

	err := act.ApplyLimits(context.Background(), target(srv.URL), Limits{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActuationFailed)

	var ae *ActuationError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, StepDownload, ae.Step)
	assert.Equal(t, http.StatusInternalServerError, ae.StatusCode)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.IsUnauthorized())
}

func TestConnectionResetReplacesTransport(t *testing.T) {
	fake, srv := newFakeQB(t)
	act := newTestActuator()

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{}))

	fake.mu.Lock()
	fake.resetNext = 1
	fake.mu.Unlock()

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{Download: 3}))
	assert.Equal(t, 1, act.pool("qb").Resets())

	logins, dl, _ := fake.snapshot()
	assert.Equal(t, 2, logins, "a reset connection also drops the session")
	assert.Equal(t, "3072", dl)
}

func TestResetSession(t *testing.T) {
	fake, srv := newFakeQB(t)
	act := newTestActuator()

	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{}))
	act.ResetSession(target(srv.URL))
	require.NoError(t, act.ApplyLimits(context.Background(), target(srv.URL), Limits{}))

	logins, _, _ := fake.snapshot()
	assert.Equal(t, 2, logins)
}

func TestInvalidHost(t *testing.T) {
	act := newTestActuator()
	err := act.ApplyLimits(context.Background(), Target{Name: "qb", Host: "localhost"}, Limits{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidHost)
}
