package pairing

import (
	"testing"
	"time"

	"github.com/openvrtrack/trackerlink/internal/hal/sim"
	"github.com/openvrtrack/trackerlink/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSlotTable is a minimal SlotTable backed by a persist.ReceiverStore,
// standing in for mac.Receiver's live binding cache in these
// pairing-only tests.
type fakeSlotTable struct {
	store  *persist.ReceiverStore
	active [256]bool
	macs   [256][6]byte
}

func newFakeSlotTable(nMax int) *fakeSlotTable {
	return &fakeSlotTable{store: persist.NewReceiverStore(sim.NewFlash(4096), nMax)}
}

func (t *fakeSlotTable) FindSlot(mac [6]byte) (int, bool) {
	for i := 0; i < t.store.NMax(); i++ {
		if t.active[i] && t.macs[i] == mac {
			return i, true
		}
	}
	return 0, false
}

func (t *fakeSlotTable) AllocateFreeSlot() (int, bool) {
	for i := 0; i < t.store.NMax(); i++ {
		if !t.active[i] {
			return i, true
		}
	}
	return 0, false
}

func (t *fakeSlotTable) Activate(slot int, mac [6]byte, pairedTimeMs int64) error {
	rec := persist.TrackerBindingRecord{Mac: mac, Active: true, Slot: byte(slot), PairedTimeMs: uint32(pairedTimeMs)}
	if err := t.store.SaveBinding(slot, rec); err != nil {
		return err
	}
	t.active[slot] = true
	t.macs[slot] = mac
	return nil
}

func runPairing(t *testing.T, table *fakeSlotTable, trackerMac [6]byte, nMax int) (*TrackerFSM, *ReceiverFSM) {
	t.Helper()
	medium := sim.NewMedium()
	clock := sim.NewClock()
	rxRadio := sim.NewRadioPHY(medium, clock, -40)
	txRadio := sim.NewRadioPHY(medium, clock, -40)
	rxRadio.SetChannel(37)
	txRadio.SetChannel(37)

	rxFSM := NewReceiverFSM(rxRadio, clock, table, 0xCAFEBABE, [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA})
	txStore := persist.NewTrackerStore(sim.NewFlash(4096), 5*time.Second)
	txFSM := NewTrackerFSM(txRadio, clock, txStore, trackerMac, 1, 1, 0)

	now := time.Now()
	txFSM.Start(now, 5*time.Second)

	// 600 steps of 10 ms run past the tracker's 5 s deadline.
	for i := 0; i < 600 && txFSM.State() != TxComplete && txFSM.State() != TxTimeout; i++ {
		now = now.Add(10 * time.Millisecond)
		rxFSM.Step(now)
		txFSM.Step(now)
	}
	// The tracker completes on the pass that sends PAIR_CONFIRM; one more
	// receiver pass consumes it.
	rxFSM.Step(now.Add(10 * time.Millisecond))
	return txFSM, rxFSM
}

func TestPairingHappyPath(t *testing.T) {
	table := newFakeSlotTable(8)
	trackerMac := [6]byte{1, 2, 3, 4, 5, 6}

	txFSM, _ := runPairing(t, table, trackerMac, 8)

	require.Equal(t, TxComplete, txFSM.State())
	result := txFSM.Result()
	require.NotNil(t, result)
	assert.EqualValues(t, 0xCAFEBABE, result.NetworkKey)

	slot, found := table.FindSlot(trackerMac)
	require.True(t, found)
	assert.EqualValues(t, result.TrackerID, slot)
}

func TestPairingSlotExhaustion(t *testing.T) {
	table := newFakeSlotTable(1)
	// Fill the only slot with a different tracker first.
	require.NoError(t, table.Activate(0, [6]byte{9, 9, 9, 9, 9, 9}, 0))

	trackerMac := [6]byte{1, 2, 3, 4, 5, 6}
	txFSM, _ := runPairing(t, table, trackerMac, 1)

	assert.Equal(t, TxTimeout, txFSM.State(), "9th/overflow tracker must time out, not pair")

	// The existing binding is unaffected.
	_, found := table.FindSlot([6]byte{9, 9, 9, 9, 9, 9})
	assert.True(t, found)
}

func TestPairingPowerCycleSurvives(t *testing.T) {
	// Persist, then reload from the same flash image as a fresh store
	// (simulating a power cycle), and verify the binding is intact
	// without a new pairing session (spec §8 boundary scenario 2).
	flash := sim.NewFlash(4096)
	store := persist.NewReceiverStore(flash, 8)

	rec := persist.TrackerBindingRecord{Mac: [6]byte{1, 2, 3, 4, 5, 6}, Active: true, Slot: 2, PairedTimeMs: 1000}
	require.NoError(t, store.SaveBinding(2, rec))

	reloaded := persist.NewReceiverStore(flash, 8)
	got, ok, err := reloaded.LoadBinding(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}
