package qbittorrent

import "time"

// Option configures an Actuator.
type Option func(*actuatorOptions)

// actuatorOptions holds configuration options for the Actuator.
type actuatorOptions struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	sessionTTL time.Duration
	userAgent  string
	insecure   bool
	now        func() time.Time
}

func defaultOptions() actuatorOptions {
	return actuatorOptions{
		timeout:    10 * time.Second,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
		sessionTTL: time.Hour,
		userAgent:  "seedbrake",
		now:        time.Now,
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *actuatorOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithMaxRetries sets the number of attempts per limit change.
func WithMaxRetries(retries int) Option {
	return func(o *actuatorOptions) {
		if retries > 0 {
			o.maxRetries = retries
		}
	}
}

// WithRetryDelay sets the backoff base; attempt n waits n times this delay.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *actuatorOptions) {
		if delay >= 0 {
			o.retryDelay = delay
		}
	}
}

// WithSessionTTL sets how long a login is reused.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *actuatorOptions) {
		if ttl > 0 {
			o.sessionTTL = ttl
		}
	}
}

// WithUserAgent sets a custom user agent string.
func WithUserAgent(userAgent string) Option {
	return func(o *actuatorOptions) {
		o.userAgent = userAgent
	}
}

// WithInsecureSkipVerify disables certificate verification.
// Use with caution and only for development/testing.
func WithInsecureSkipVerify() Option {
	return func(o *actuatorOptions) {
		o.insecure = true
	}
}

// withClock overrides the time source for session expiry.
func withClock(now func() time.Time) Option {
	return func(o *actuatorOptions) {
		o.now = now
	}
}
