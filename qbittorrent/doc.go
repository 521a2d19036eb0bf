// Package qbittorrent drives the global speed limits of qBittorrent instances
// through the WebUI API.
//
// Limit changes go through the Actuator, which keeps one login per target,
// reuses it until it expires or is rejected, and retries failed attempts with
// linear backoff. Read-only queries (version, transfer info, torrents) use the
// autobrr/go-qbittorrent client.
//
// # Usage
//
//	act := qbittorrent.NewActuator(logger, qbittorrent.WithSessionTTL(time.Hour))
//	target := qbittorrent.Target{Name: "seedbox", Host: "http://localhost:8080", Username: "admin", Password: "secret"}
//
//	// Throttle to 1 MB/s down, 512 KB/s up
//	err := act.ApplyLimits(ctx, target, qbittorrent.Limits{Download: 1024, Upload: 512})
//
//	// Check whether the WebUI answers and accepts the credentials
//	probe := act.Probe(ctx, target)
package qbittorrent
