package qbittorrent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"
)

// Client wraps the qBittorrent API client for read-only queries
type Client struct {
	target Target
	client *qbittorrent.Client
	logger zerolog.Logger
}

// NewClient creates a new qBittorrent client. It does not log in.
func NewClient(t Target, logger zerolog.Logger) *Client {
	client := qbittorrent.NewClient(qbittorrent.Config{
		Host:     t.Host,
		Username: t.Username,
		Password: t.Password,
	})

	return &Client{
		target: t,
		client: client,
		logger: logger.With().Str("target", t.Name).Logger(),
	}
}

// Login authenticates the underlying client
func (c *Client) Login(ctx context.Context) error {
	if err := c.client.LoginCtx(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return nil
}

// Version returns the application version
func (c *Client) Version(ctx context.Context) (string, error) {
	version, err := c.client.GetAppVersionCtx(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get app version: %w", err)
	}
	return version, nil
}

// GetAllTorrents retrieves all torrents from qBittorrent
func (c *Client) GetAllTorrents(ctx context.Context) ([]*TorrentInfo, error) {
	torrents, err := c.client.GetTorrentsCtx(ctx, qbittorrent.TorrentFilterOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get torrents: %w", err)
	}

	c.logger.Debug().Msgf("Retrieved %d torrents from qBittorrent", len(torrents))

	results := make([]*TorrentInfo, 0, len(torrents))
	for _, t := range torrents {
		results = append(results, &TorrentInfo{
			Hash:     t.Hash,
			Name:     t.Name,
			State:    string(t.State),
			Size:     t.Size,
			Progress: t.Progress,
			Ratio:    t.Ratio,
			AddedOn:  time.Unix(t.AddedOn, 0),
			Category: t.Category,
		})
	}

	return results, nil
}

// Status logs in and gathers speeds, limits and torrent counts
func (c *Client) Status(ctx context.Context) (*TransferStatus, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	version, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}

	info, err := c.client.GetTransferInfoCtx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer info: %w", err)
	}

	torrents, err := c.GetAllTorrents(ctx)
	if err != nil {
		return nil, err
	}

	status := &TransferStatus{
		Target:        c.target.Name,
		Version:       version,
		DownloadSpeed: info.DlInfoSpeed,
		UploadSpeed:   info.UpInfoSpeed,
		DownloadLimit: info.DlRateLimit,
		UploadLimit:   info.UpRateLimit,
		Torrents:      len(torrents),
		States:        make(map[string]int),
	}
	for _, t := range torrents {
		status.States[t.State]++
		switch {
		case t.IsDownloading():
			status.Downloading++
		case t.IsActivelySeeding():
			status.Seeding++
		}
	}
	return status, nil
}

// Probe classifies t as unreachable (no HTTP answer), rejected (login refused)
// or reachable.
func (a *Actuator) Probe(ctx context.Context, t Target) (result ProbeResult) {
	start := time.Now()
	result = ProbeResult{Target: t.Name, Verdict: ProbeUnreachable}
	defer func() { result.Elapsed = time.Since(start) }()

	base, err := baseURL(t.Host)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	// Any HTTP answer, even 403, proves the WebUI is reachable.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v2/app/version", nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	resp, err := a.pool(t.Name).Client().Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	resp.Body.Close()

	client := NewClient(t, a.logger)
	if err := client.Login(ctx); err != nil {
		result.Verdict = ProbeRejected
		result.Error = err.Error()
		return result
	}

	version, err := client.Version(ctx)
	if err != nil {
		result.Verdict = ProbeRejected
		result.Error = err.Error()
		return result
	}

	result.Verdict = ProbeReachable
	result.Version = version
	return result
}

// Status returns the transfer status of t.
func (a *Actuator) Status(ctx context.Context, t Target) (*TransferStatus, error) {
	if _, err := baseURL(t.Host); err != nil {
		return nil, err
	}
	return NewClient(t, a.logger).Status(ctx)
}
