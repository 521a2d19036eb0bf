package qbittorrent

import (
	"slices"
	"time"

	"github.com/s0up4200/seedbrake/config"
)

// Target identifies one qBittorrent WebUI.
type Target struct {
	Name     string
	Host     string
	Username string
	Password string
}

// TargetFromConfig converts a configured target.
func TargetFromConfig(tc config.TargetConfig) Target {
	return Target{
		Name:     tc.Name,
		Host:     tc.Host,
		Username: tc.Username,
		Password: tc.Password,
	}
}

// Limits is a global speed limit pair in KB/s. 0 means unlimited.
type Limits struct {
	Download int64 `json:"download"`
	Upload   int64 `json:"upload"`
}

// LimitsFromConfig converts a configured limit pair.
func LimitsFromConfig(lc config.LimitsConfig) Limits {
	return Limits{Download: lc.Download, Upload: lc.Upload}
}

// bytesPerSecond converts a KB/s value to the WebAPI's bytes/s.
func bytesPerSecond(kb int64) int64 {
	if kb <= 0 {
		return 0
	}
	return kb * 1024
}

// ProbeVerdict classifies a target's reachability.
type ProbeVerdict string

const (
	ProbeUnreachable ProbeVerdict = "unreachable"
	ProbeRejected    ProbeVerdict = "rejected"
	ProbeReachable   ProbeVerdict = "reachable"
)

// ProbeResult is the outcome of a connectivity probe.
type ProbeResult struct {
	Target  string        `json:"target"`
	Verdict ProbeVerdict  `json:"verdict"`
	Version string        `json:"version,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// TransferStatus is a point-in-time view of a target.
type TransferStatus struct {
	Target        string         `json:"target"`
	Version       string         `json:"version"`
	DownloadSpeed int64          `json:"download_speed"`
	UploadSpeed   int64          `json:"upload_speed"`
	DownloadLimit int64          `json:"download_limit"`
	UploadLimit   int64          `json:"upload_limit"`
	Torrents      int            `json:"torrents"`
	Downloading   int            `json:"downloading"`
	Seeding       int            `json:"seeding"`
	States        map[string]int `json:"states"`
}

// TorrentInfo contains the fields of a torrent the status view needs
type TorrentInfo struct {
	Hash     string
	Name     string
	State    string
	Size     int64
	Progress float64
	Ratio    float64
	AddedOn  time.Time
	Category string
}

var (
	seedingStates     = []string{"uploading", "stalledUP", "queuedUP", "forcedUP"}
	downloadingStates = []string{"downloading", "stalledDL", "queuedDL", "forcedDL", "metaDL", "forcedMetaDL"}
)

// IsActivelySeeding checks if the torrent is in a seeding state
func (t *TorrentInfo) IsActivelySeeding() bool {
	return slices.Contains(seedingStates, t.State)
}

// IsDownloading checks if the torrent is in a downloading state
func (t *TorrentInfo) IsDownloading() bool {
	return slices.Contains(downloadingStates, t.State)
}
