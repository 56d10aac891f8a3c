package mac

import (
	"testing"
	"time"

	"github.com/openvrtrack/trackerlink/internal/hal/sim"
	"github.com/openvrtrack/trackerlink/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constSample struct{ s Sample }

func (c constSample) Sample() Sample { return c.s }

func newHarness(t *testing.T) (*Receiver, *Tracker, *sim.Medium, *sim.Clock) {
	t.Helper()
	medium := sim.NewMedium()
	clock := sim.NewClock()

	rxRadio := sim.NewRadioPHY(medium, clock, -35)
	txRadio := sim.NewRadioPHY(medium, clock, -35)

	rxStore := persist.NewReceiverStore(sim.NewFlash(4096), 8)
	rx := NewReceiver(rxRadio, clock, rxStore, DefaultTiming(), [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, DefaultPairingChannel, DefaultNMissMax)
	require.NoError(t, rx.SetNetworkKey(0xCAFEBABE))

	txStore := persist.NewTrackerStore(sim.NewFlash(4096), 5*time.Second)
	tx := NewTracker(txRadio, clock, txStore, DefaultTiming(), [6]byte{1, 2, 3, 4, 5, 6}, 1, 1, 0, DefaultNMissMax)

	return rx, tx, medium, clock
}

// pairAndLock runs both state machines until the tracker reaches Running,
// or fails the test if it times out.
func pairAndLock(t *testing.T, rx *Receiver, tx *Tracker, clock *sim.Clock) {
	t.Helper()
	now := time.Now()
	rx.EnterPairing(now)
	tx.StartPairing(now, DefaultPairingChannel)

	for i := 0; i < 10000 && tx.State() != TrkRunning; i++ {
		now = now.Add(time.Millisecond)
		rx.Step(now)
		tx.Step(now, nil)
	}
	require.Equal(t, TrkRunning, tx.State(), "tracker failed to reach Running")
	require.Equal(t, RxNormal, rx.State())
}

func TestPairingThenDataExchange(t *testing.T) {
	rx, tx, _, _ := newHarness(t)
	now := time.Now()
	pairAndLock(t, rx, tx, nil)

	sample := Sample{Quat: [4]int16{100, 200, 300, 400}, Accel: [3]int16{1, 2, 3}, Battery: 90, Flags: 0}
	src := constSample{s: sample}

	for i := 0; i < 2000; i++ {
		now = now.Add(time.Millisecond)
		rx.Step(now)
		tx.Step(now, src)
	}

	rt := rx.Runtime(int(tx.TrackerID()))
	assert.True(t, rt.Active)
	assert.Equal(t, sample.Quat, rt.LastQuat)
	assert.Equal(t, sample.Accel, rt.LastAccel)
	assert.EqualValues(t, 90, rt.Battery)
}

func TestAckPiggybackedCommand(t *testing.T) {
	rx, tx, _, _ := newHarness(t)
	now := time.Now()
	pairAndLock(t, rx, tx, nil)

	rx.RequestCmd(int(tx.TrackerID()), CmdCalibrateGyro)

	sample := Sample{Quat: [4]int16{1, 0, 0, 0}}
	src := constSample{s: sample}

	var seenCmd Cmd
	for i := 0; i < 500 && seenCmd == CmdNone; i++ {
		now = now.Add(time.Millisecond)
		rx.Step(now)
		tx.Step(now, src)
		if c := tx.LastCmd(); c != CmdNone {
			seenCmd = c
		}
	}
	assert.Equal(t, CmdCalibrateGyro, seenCmd)
}

func TestUnpairCommandReturnsTrackerToUnpaired(t *testing.T) {
	rx, tx, _, _ := newHarness(t)
	now := time.Now()
	pairAndLock(t, rx, tx, nil)

	rx.RequestCmd(int(tx.TrackerID()), CmdUnpair)
	src := constSample{s: Sample{}}

	for i := 0; i < 500 && tx.State() != TrkUnpaired; i++ {
		now = now.Add(time.Millisecond)
		rx.Step(now)
		tx.Step(now, src)
	}
	assert.Equal(t, TrkUnpaired, tx.State())
}

func TestReceiverSlotExhaustionLeavesTrackerUnpaired(t *testing.T) {
	medium := sim.NewMedium()
	clock := sim.NewClock()
	rxRadio := sim.NewRadioPHY(medium, clock, -35)
	rxStore := persist.NewReceiverStore(sim.NewFlash(4096), 1)
	rx := NewReceiver(rxRadio, clock, rxStore, DefaultTiming(), [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, DefaultPairingChannel, DefaultNMissMax)
	require.NoError(t, rx.SetNetworkKey(0xCAFEBABE))
	require.NoError(t, rx.Activate(0, [6]byte{9, 9, 9, 9, 9, 9}, 0))

	txRadio := sim.NewRadioPHY(medium, clock, -35)
	txStore := persist.NewTrackerStore(sim.NewFlash(4096), 5*time.Second)
	tx := NewTracker(txRadio, clock, txStore, DefaultTiming(), [6]byte{1, 2, 3, 4, 5, 6}, 1, 1, 0, DefaultNMissMax)

	now := time.Now()
	rx.EnterPairing(now)
	tx.StartPairing(now, DefaultPairingChannel)

	for i := 0; i < 6000 && tx.State() != TrkUnpaired; i++ {
		now = now.Add(time.Millisecond)
		rx.Step(now)
		tx.Step(now, nil)
	}
	assert.Equal(t, TrkUnpaired, tx.State(), "tracker should time out pairing when no slot is free")
}
