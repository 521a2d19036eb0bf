// Package httpclient holds the per-target connection pools shared by the
// Lucky collector and the qBittorrent actuator.
package httpclient

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	defaultTimeout      = 10 * time.Second
	maxIdleConns        = 4
	maxIdleConnsPerHost = 2
	idleConnTimeout     = 90 * time.Second
)

// Config describes a pool's timeouts and TLS behaviour.
type Config struct {
	// Timeout bounds connect, response headers and the whole request.
	Timeout            time.Duration
	InsecureSkipVerify bool
	Jar                http.CookieJar
}

// Pool owns one http.Client and its transport. The transport can be
// replaced when pooled connections go stale.
type Pool struct {
	cfg    Config
	mu     sync.Mutex
	client *http.Client
	resets int
}

// NewPool creates a pool with a capped idle connection count.
func NewPool(cfg Config) *Pool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	p := &Pool{cfg: cfg}
	p.client = p.newClient()
	return p
}

// Client returns the current client.
func (p *Pool) Client() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

// Reset drops every pooled connection and installs a fresh transport.
func (p *Pool) Reset() {
	p.mu.Lock()
	old := p.client
	p.client = p.newClient()
	p.resets++
	p.mu.Unlock()

	old.CloseIdleConnections()
}

// Resets returns how many times the transport was replaced.
func (p *Pool) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// Close releases idle connections.
func (p *Pool) Close() {
	p.Client().CloseIdleConnections()
}

func (p *Pool) newClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   p.cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   p.cfg.Timeout,
		ResponseHeaderTimeout: p.cfg.Timeout,
		ExpectContinueTimeout: time.Second,
	}
	if p.cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Transport: transport,
		Timeout:   p.cfg.Timeout,
		Jar:       p.cfg.Jar,
	}
}

// IsConnectionReset reports whether err looks like a stale or reset
// connection rather than a refused or timed out one.
func IsConnectionReset(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection reset",
		"broken pipe",
		"server closed idle connection",
		"connection was forcibly closed",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
