package telemetry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.db")
	s, err := NewStore(path)
	require.NoError(t, err, "NewStore should open and migrate cleanly")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStoreMigratesToLatest(t *testing.T) {
	s := newTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
}

func TestRecordAndListSnapshots(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		err := s.RecordSnapshot(TrackerSnapshot{
			Slot:        2,
			TakenUnixMs: int64(1000 + i),
			Active:      true,
			RSSI:        -40 - int8(i),
			Battery:     90,
			Sequence:    byte(i),
			PacketLoss:  0,
			LastSeenMs:  int64(1000 + i),
		})
		require.NoError(t, err)
	}
	// A snapshot for a different slot should not leak into slot 2's history.
	require.NoError(t, s.RecordSnapshot(TrackerSnapshot{Slot: 5, TakenUnixMs: 999}))

	got, err := s.ListRecentSnapshots(2, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, int64(1002), got[0].TakenUnixMs, "results are newest first")
	require.Equal(t, int8(-42), got[0].RSSI)
}

func TestListRecentSnapshotsRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordSnapshot(TrackerSnapshot{Slot: 1, TakenUnixMs: int64(i)}))
	}

	got, err := s.ListRecentSnapshots(1, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestRecordAndListPairingEvents(t *testing.T) {
	s := newTestStore(t)

	slot := 3
	require.NoError(t, s.RecordPairingEvent(PairingEvent{
		TakenUnixMs: 1000,
		SessionUUID: "11111111-1111-1111-1111-111111111111",
		Role:        "receiver",
		Outcome:     "complete",
		TrackerMac:  "aa:bb:cc:dd:ee:ff",
		Slot:        &slot,
	}))
	require.NoError(t, s.RecordPairingEvent(PairingEvent{
		TakenUnixMs: 2000,
		SessionUUID: "22222222-2222-2222-2222-222222222222",
		Role:        "tracker",
		Outcome:     "timeout",
	}))

	got, err := s.ListRecentPairingEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "timeout", got[0].Outcome, "results are newest first")
	require.Nil(t, got[0].Slot)
	require.Equal(t, 3, *got[1].Slot)
}

func TestTableStats(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordSnapshot(TrackerSnapshot{Slot: 0}))
	require.NoError(t, s.RecordPairingEvent(PairingEvent{Role: "tracker", Outcome: "complete"}))

	stats, err := s.tableStats()
	require.NoError(t, err)
	require.Equal(t, int64(1), stats["tracker_snapshot"])
	require.Equal(t, int64(1), stats["pairing_event"])
}
