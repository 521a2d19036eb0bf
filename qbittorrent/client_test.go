package qbittorrent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatusServer(t *testing.T, password string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") != password {
			_, _ = w.Write([]byte("Fails."))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "abc"})
		_, _ = w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/app/version", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("SID"); err != nil || c.Value != "abc" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("v4.6.2"))
	})
	mux.HandleFunc("/api/v2/app/webapiVersion", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("2.9.3"))
	})
	mux.HandleFunc("/api/v2/transfer/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"dl_info_speed": 2048, "up_info_speed": 1024, "dl_rate_limit": 1048576, "up_rate_limit": 524288, "connection_status": "connected"}`))
	})
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"hash": "a", "name": "one", "state": "downloading"},
			{"hash": "b", "name": "two", "state": "stalledUP"},
			{"hash": "c", "name": "three", "state": "uploading"},
			{"hash": "d", "name": "four", "state": "pausedUP"}
		]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbe(t *testing.T) {
	srv := newStatusServer(t, "secret")
	act := newTestActuator()

	res := act.Probe(context.Background(), target(srv.URL))
	assert.Equal(t, ProbeReachable, res.Verdict)
	assert.Equal(t, "v4.6.2", res.Version)
	assert.Equal(t, "qb", res.Target)

	bad := target(srv.URL)
	bad.Password = "nope"
	res = act.Probe(context.Background(), bad)
	assert.Equal(t, ProbeRejected, res.Verdict)
	assert.NotEmpty(t, res.Error)
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := newTestActuator().Probe(context.Background(), target(url))
	assert.Equal(t, ProbeUnreachable, res.Verdict)
	assert.NotEmpty(t, res.Error)

	res = newTestActuator().Probe(context.Background(), Target{Name: "x", Host: "::bad"})
	assert.Equal(t, ProbeUnreachable, res.Verdict)
}

func TestStatus(t *testing.T) {
	srv := newStatusServer(t, "secret")

	status, err := newTestActuator().Status(context.Background(), target(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "qb", status.Target)
	assert.Equal(t, "v4.6.2", status.Version)
	assert.Equal(t, int64(2048), status.DownloadSpeed)
	assert.Equal(t, int64(524288), status.UploadLimit)
	assert.Equal(t, 4, status.Torrents)
	assert.Equal(t, 1, status.Downloading)
	assert.Equal(t, 2, status.Seeding)
	assert.Equal(t, 1, status.States["pausedUP"])
}

func TestTorrentStates(t *testing.T) {
	seeding := &TorrentInfo{State: "forcedUP"}
	assert.True(t, seeding.IsActivelySeeding())
	assert.False(t, seeding.IsDownloading())

	meta := &TorrentInfo{State: "metaDL"}
	assert.True(t, meta.IsDownloading())

	paused := &TorrentInfo{State: "pausedDL"}
	assert.False(t, paused.IsDownloading())
	assert.False(t, paused.IsActivelySeeding())
}
