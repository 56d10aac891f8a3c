package persist

import (
	"testing"
	"time"

	"github.com/openvrtrack/trackerlink/internal/hal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFlash() *sim.Flash {
	return sim.NewFlash(4096)
}

func TestReceiverStoreNetworkKeyRoundTrip(t *testing.T) {
	store := NewReceiverStore(newTestFlash(), 8)

	_, ok, err := store.LoadNetworkKey()
	require.NoError(t, err)
	assert.False(t, ok, "fresh flash should report absent key")

	want := NetworkKeyRecord{NetworkKey: 0xCAFEBABE}
	require.NoError(t, store.SaveNetworkKey(want))

	got, ok, err := store.LoadNetworkKey()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestReceiverStoreBindingRoundTrip(t *testing.T) {
	store := NewReceiverStore(newTestFlash(), 8)

	rec := TrackerBindingRecord{Mac: [6]byte{1, 2, 3, 4, 5, 6}, Active: true, Slot: 3, PairedTimeMs: 123456}
	require.NoError(t, store.SaveBinding(3, rec))

	got, ok, err := store.LoadBinding(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	// Unaffected slots remain absent.
	_, ok, err = store.LoadBinding(4)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReceiverStoreOutOfRangeSlot(t *testing.T) {
	store := NewReceiverStore(newTestFlash(), 8)
	_, _, err := store.LoadBinding(8)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrOutOfRange, perr.Kind)
}

func TestUnpairIdempotent(t *testing.T) {
	store := NewReceiverStore(newTestFlash(), 8)
	rec := TrackerBindingRecord{Mac: [6]byte{9, 9, 9, 9, 9, 9}, Active: true, Slot: 0, PairedTimeMs: 1}
	require.NoError(t, store.SaveBinding(0, rec))

	require.NoError(t, store.EraseBinding(0))
	first, ok, err := store.LoadBinding(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, first.Active)

	require.NoError(t, store.EraseBinding(0))
	second, ok, err := store.LoadBinding(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestTornWriteTreatedAsAbsent(t *testing.T) {
	flash := newTestFlash()
	store := NewReceiverStore(flash, 8)

	flash.InjectFault(sim.FaultTornWrite)
	err := store.SaveNetworkKey(NetworkKeyRecord{NetworkKey: 0x11223344})
	require.NoError(t, err) // the write call itself doesn't fail...

	_, ok, err := store.LoadNetworkKey()
	require.NoError(t, err)
	assert.False(t, ok, "a torn write must be reported as absent, not as a valid-but-wrong record")
}

func TestHardwareFaultSurfaced(t *testing.T) {
	flash := newTestFlash()
	store := NewReceiverStore(flash, 8)

	flash.InjectFault(sim.FaultHardware)
	err := store.SaveNetworkKey(NetworkKeyRecord{NetworkKey: 1})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrHardwareFault, perr.Kind)
}

func TestTrackerStorePairingRoundTrip(t *testing.T) {
	store := NewTrackerStore(newTestFlash(), 5*time.Second)

	rec := PairingRecord{
		TrackerID:   3,
		OwnMac:      [6]byte{1, 1, 1, 1, 1, 1},
		ReceiverMac: [6]byte{2, 2, 2, 2, 2, 2},
		NetworkKey:  0xDEADBEEF,
		Paired:      true,
	}
	require.NoError(t, store.SavePairing(rec))

	got, ok, err := store.LoadPairing()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestFusionSnapshotRateLimited(t *testing.T) {
	store := NewTrackerStore(newTestFlash(), 5*time.Second)

	now := time.Now()
	snap := FusionSnapshot{Version: 1, Quat: [4]float32{1, 0, 0, 0}}
	written, err := store.SaveFusionSnapshot(now, snap)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = store.SaveFusionSnapshot(now.Add(time.Second), snap)
	require.NoError(t, err)
	assert.False(t, written, "writes inside the rate-limit window must be skipped")

	written, err = store.SaveFusionSnapshot(now.Add(6*time.Second), snap)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestFusionSnapshotForceSaveBypassesRateLimit(t *testing.T) {
	store := NewTrackerStore(newTestFlash(), 5*time.Second)
	now := time.Now()
	require.NoError(t, store.ForceSaveFusionSnapshot(now, FusionSnapshot{Version: 1}))
	require.NoError(t, store.ForceSaveFusionSnapshot(now.Add(time.Millisecond), FusionSnapshot{Version: 2}))

	got, ok, err := store.LoadFusionSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2, got.Version)
}
