package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up4200/seedbrake/httpclient"
)

const (
	loginPath       = "/api/v2/auth/login"
	downloadPath    = "/api/v2/transfer/setDownloadLimit"
	uploadPath      = "/api/v2/transfer/setUploadLimit"
	sessionCookie   = "SID"
	maxResponseBody = 1 << 16

	StepLogin    = "login"
	StepDownload = "download"
	StepUpload   = "upload"
)

// Actuator applies global speed limits to qBittorrent targets. Logins are
// cached per target and reused until they expire or are rejected.
type Actuator struct {
	opts     actuatorOptions
	sessions *sessionCache
	logger   zerolog.Logger

	mu    sync.Mutex
	pools map[string]*httpclient.Pool
}

// NewActuator creates an actuator.
func NewActuator(logger zerolog.Logger, opts ...Option) *Actuator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Actuator{
		opts:     o,
		sessions: newSessionCache(o.sessionTTL, o.now),
		logger:   logger.With().Str("component", "qbittorrent").Logger(),
		pools:    make(map[string]*httpclient.Pool),
	}
}

// ApplyLimits sets the global download and upload limits of t, retrying with
// linear backoff. A rejected session is dropped and the next attempt logs in
// again; a reset connection also replaces the target's transport.
func (a *Actuator) ApplyLimits(ctx context.Context, t Target, limits Limits) error {
	base, err := baseURL(t.Host)
	if err != nil {
		return &ActuationError{Target: t.Name, Step: StepLogin, Attempts: 0, Err: err}
	}

	var (
		lastErr    error
		lastStep   string
		lastStatus int
		attempts   int
	)

	for attempt := 1; attempt <= a.opts.maxRetries; attempt++ {
		attempts = attempt

		step, status, err := a.applyOnce(ctx, base, t, limits)
		if err == nil {
			a.logger.Info().
				Str("target", t.Name).
				Int64("download_kb", limits.Download).
				Int64("upload_kb", limits.Upload).
				Int("attempt", attempt).
				Msg("Speed limits applied")
			return nil
		}
		lastErr, lastStep, lastStatus = err, step, status

		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			a.sessions.invalidate(t.Name)
		}
		if httpclient.IsConnectionReset(err) {
			a.logger.Debug().Err(err).Str("target", t.Name).Msg("Connection reset, dropping session and connection pool")
			a.sessions.invalidate(t.Name)
			a.pool(t.Name).Reset()
		}

		if attempt == a.opts.maxRetries || ctx.Err() != nil {
			break
		}

		delay := a.opts.retryDelay * time.Duration(attempt)
		a.logger.Warn().
			Err(err).
			Str("target", t.Name).
			Str("step", step).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Failed to apply speed limits, retrying")

		if err := sleep(ctx, delay); err != nil {
			break
		}
	}

	return &ActuationError{
		Target:     t.Name,
		Step:       lastStep,
		StatusCode: lastStatus,
		Attempts:   attempts,
		Err:        lastErr,
	}
}

// ResetSession drops the cached login for t.
func (a *Actuator) ResetSession(t Target) {
	a.sessions.invalidate(t.Name)
}

// Close releases all pooled connections.
func (a *Actuator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range a.pools {
		p.Close()
	}
}

func (a *Actuator) applyOnce(ctx context.Context, base string, t Target, limits Limits) (string, int, error) {
	sid, status, err := a.ensureSession(ctx, base, t)
	if err != nil {
		return StepLogin, status, err
	}

	if status, err := a.setLimit(ctx, base, t, sid, downloadPath, limits.Download); err != nil {
		return StepDownload, status, err
	}
	if status, err := a.setLimit(ctx, base, t, sid, uploadPath, limits.Upload); err != nil {
		return StepUpload, status, err
	}
	return "", http.StatusOK, nil
}

func (a *Actuator) ensureSession(ctx context.Context, base string, t Target) (string, int, error) {
	if sid, ok := a.sessions.get(t); ok {
		return sid, 0, nil
	}

	sid, status, err := a.login(ctx, base, t)
	if err != nil {
		return "", status, err
	}
	a.sessions.put(t, sid)
	a.logger.Debug().Str("target", t.Name).Msg("Logged in to qBittorrent")
	return sid, status, nil
}

// login authenticates against the WebUI. qBittorrent answers 200 "Ok." with
// an SID cookie on success, 200 "Fails." on bad credentials and 403 when the
// client IP is banned. With authentication bypassed the cookie may be absent.
func (a *Actuator) login(ctx context.Context, base string, t Target) (string, int, error) {
	form := url.Values{
		"username": {t.Username},
		"password": {t.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", base)
	req.Header.Set("Origin", base)
	a.setUserAgent(req)

	resp, err := a.pool(t.Name).Client().Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	text := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return "", resp.StatusCode, fmt.Errorf("%w: client banned: %w", ErrAuthentication, &APIError{StatusCode: resp.StatusCode, Body: text})
	case resp.StatusCode != http.StatusOK:
		return "", resp.StatusCode, fmt.Errorf("%w: %w", ErrConnectionFailed, &APIError{StatusCode: resp.StatusCode, Body: text})
	case text == "Fails.":
		return "", resp.StatusCode, fmt.Errorf("%w: invalid username or password", ErrAuthentication)
	}

	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			return c.Value, resp.StatusCode, nil
		}
	}
	if text == "Ok." {
		return "", resp.StatusCode, nil
	}
	return "", resp.StatusCode, fmt.Errorf("%w: unexpected login response %q", ErrAuthentication, text)
}

func (a *Actuator) setLimit(ctx context.Context, base string, t Target, sid, path string, kb int64) (int, error) {
	form := url.Values{"limit": {strconv.FormatInt(bytesPerSecond(kb), 10)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", base)
	a.setUserAgent(req)
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: sid})
	}

	resp, err := a.pool(t.Name).Client().Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if apiErr.IsUnauthorized() {
		return resp.StatusCode, fmt.Errorf("%w: %w", ErrSessionRejected, apiErr)
	}
	return resp.StatusCode, fmt.Errorf("%w: %w", ErrActuationFailed, apiErr)
}

func (a *Actuator) setUserAgent(req *http.Request) {
	if a.opts.userAgent != "" {
		req.Header.Set("User-Agent", a.opts.userAgent)
	}
}

// pool returns the target's connection pool, creating it on first use.
func (a *Actuator) pool(name string) *httpclient.Pool {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pools[name]
	if !ok {
		p = httpclient.NewPool(httpclient.Config{
			Timeout:            a.opts.timeout,
			InsecureSkipVerify: a.opts.insecure,
		})
		a.pools[name] = p
	}
	return p
}

func baseURL(host string) (string, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	u, err := url.Parse(host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return host, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsAuthError reports whether err is a credential or session failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrSessionRejected)
}
