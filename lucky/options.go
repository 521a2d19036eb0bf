package lucky

import "time"

// Option configures a Client.
type Option func(*clientOptions)

// clientOptions holds configuration options for the Client.
type clientOptions struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	userAgent  string
	insecure   bool
	token      string
	username   string
	password   string
}

func defaultOptions() clientOptions {
	return clientOptions{
		timeout:    10 * time.Second,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
		userAgent:  "seedbrake",
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithMaxRetries sets the number of attempts per fetch.
func WithMaxRetries(retries int) Option {
	return func(o *clientOptions) {
		if retries > 0 {
			o.maxRetries = retries
		}
	}
}

// WithRetryDelay sets the backoff base; attempt n waits n times this delay.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *clientOptions) {
		if delay >= 0 {
			o.retryDelay = delay
		}
	}
}

// WithUserAgent sets a custom user agent string.
func WithUserAgent(userAgent string) Option {
	return func(o *clientOptions) {
		o.userAgent = userAgent
	}
}

// WithInsecureSkipVerify disables certificate verification.
// Use with caution and only for development/testing.
func WithInsecureSkipVerify() Option {
	return func(o *clientOptions) {
		o.insecure = true
	}
}

// WithToken sends an admin token with every request.
func WithToken(token string) Option {
	return func(o *clientOptions) {
		o.token = token
	}
}

// WithBasicAuth sets HTTP basic auth credentials.
func WithBasicAuth(username, password string) Option {
	return func(o *clientOptions) {
		o.username = username
		o.password = password
	}
}
