package store

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewServiceStore(dir)

	state, err := s.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, state)

	require.NoError(t, s.SetEnabled("svc-a", true))

	enabled, known, err := s.Enabled("svc-a")
	require.NoError(t, err)
	assert.True(t, known)
	assert.True(t, enabled)

	// A fresh store over the same directory sees the persisted flag.
	reopened := NewServiceStore(dir)
	state, err = reopened.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"svc-a": true}, state)
}

func TestServiceStoreUnknownIsDisabled(t *testing.T) {
	s := NewServiceStore(t.TempDir())

	enabled, known, err := s.Enabled("never-seen")
	require.NoError(t, err)
	assert.False(t, known)
	assert.False(t, enabled)
}

func TestRegisterDisabledKeepsExisting(t *testing.T) {
	s := NewServiceStore(t.TempDir())
	require.NoError(t, s.SetEnabled("Proxmox", true))

	added, err := s.RegisterDisabled("Proxmox", "hzun", "", "hzun")
	require.NoError(t, err)
	assert.Equal(t, []string{"hzun"}, added)

	state, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Proxmox": true, "hzun": false}, state)
}

func TestRegisterDisabledNoChangeSkipsWrite(t *testing.T) {
	s := NewServiceStore(t.TempDir())

	added, err := s.RegisterDisabled()
	require.NoError(t, err)
	assert.Empty(t, added)

	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err), "no file should be written when nothing changed")
}

func TestSetEnabledRejectsEmptyIdentifier(t *testing.T) {
	s := NewServiceStore(t.TempDir())
	assert.ErrorIs(t, s.SetEnabled("", true), ErrEmptyIdentifier)
	assert.ErrorIs(t, s.SetMany(map[string]bool{"": true}), ErrEmptyIdentifier)
}

func TestServiceStoreConcurrentWritesAreNotLost(t *testing.T) {
	s := NewServiceStore(t.TempDir())

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("svc-%d", i)
			if i%2 == 0 {
				_, _ = s.RegisterDisabled(id)
			} else {
				_ = s.SetEnabled(id, true)
			}
		}()
	}
	wg.Wait()

	state, err := s.Snapshot()
	require.NoError(t, err)
	assert.Len(t, state, 20)
}

func TestServiceStoreWritersSharingAFileDoNotLoseUpdates(t *testing.T) {
	dir := t.TempDir()
	// Separate stores have separate mutexes, like a CLI toggle next to a running controller.
	a := NewServiceStore(dir)
	b := NewServiceStore(dir)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = a.RegisterDisabled(fmt.Sprintf("seen-%d", i))
		}()
		go func() {
			defer wg.Done()
			_ = b.SetEnabled(fmt.Sprintf("toggled-%d", i), true)
		}()
	}
	wg.Wait()

	state, err := NewServiceStore(dir).Snapshot()
	require.NoError(t, err)
	assert.Len(t, state, 40)
	assert.True(t, state["toggled-7"])
	assert.False(t, state["seen-7"])
}

func TestServiceStoreCorruptFile(t *testing.T) {
	s := NewServiceStore(t.TempDir())
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	_, err := s.Snapshot()
	require.Error(t, err)
}

func TestFailureLedgerAppendAndList(t *testing.T) {
	l := NewFailureLedger(t.TempDir())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	rec, err := l.Append(FailureRecord{Target: "qb", Action: "restore", Download: 0, Upload: 0})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, base, rec.Timestamp)

	_, err = l.Append(FailureRecord{Target: "qb2", Action: "limit"})
	require.NoError(t, err)

	records, err := l.List(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "qb2", records[0].Target, "newest first")
	assert.Equal(t, "qb", records[1].Target)

	records, err = l.List(1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFailureLedgerIsBounded(t *testing.T) {
	l := NewFailureLedger(t.TempDir())

	for i := range MaxFailureRecords + 7 {
		_, err := l.Append(FailureRecord{Target: fmt.Sprintf("t-%d", i), Action: "restore"})
		require.NoError(t, err)
	}

	records, err := l.List(0)
	require.NoError(t, err)
	require.Len(t, records, MaxFailureRecords)
	assert.Equal(t, fmt.Sprintf("t-%d", MaxFailureRecords+6), records[0].Target)
	assert.Equal(t, "t-7", records[len(records)-1].Target, "oldest entries evicted first")
}
