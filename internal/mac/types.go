// Package mac implements the Link MAC TDMA scheduler on both roles (spec
// §4.3, §4.4): the receiver's superframe clock and slot-listening state
// machine, and the tracker's sync-search/running state machine. Both
// share internal/rf's codec and internal/persist's bindings.
package mac

import "time"

// Cmd is the command byte piggybacked on an ACK (spec §4.3 item 5: "ACK
// may piggyback a command byte, e.g. calibration request"). The spec
// names the mechanism but not its value set; this is the SPEC_FULL
// recovered enum (see DESIGN.md / SPEC_FULL.md).
type Cmd byte

const (
	CmdNone Cmd = iota
	CmdCalibrateGyro
	CmdUnpair
	CmdFactoryReset
)

// Tunables from spec §6, with the defaults named there.
const (
	DefaultNMax             = 8
	DefaultPairingChannel   = 37
	DefaultSyncIntervalMs   = 5
	DefaultSampleRateHz     = 200
	DefaultNMissMax         = 50
	// DefaultMissFadeTolerance is the "missing three consecutive beacons
	// tolerates short fades" threshold from spec §4.4.
	DefaultMissFadeTolerance = 3
)

// SuperframeTiming derives the slot geometry from SYNC_INTERVAL_MS and the
// number of active trackers. Spec §3: "T_SF ≈ 5 ms/tracker × N + beacon +
// guard"; §9 resolves the archived RF_SUPERFRAME_US vs. current
// RF_SYNC_INTERVAL_MS ambiguity in favor of the millisecond value
// (multiplied by 1000 for microsecond comparisons).
type SuperframeTiming struct {
	SlotDuration  time.Duration
	BeaconDuration time.Duration
	GuardDuration time.Duration
	AckWindow     time.Duration
}

// DefaultTiming returns the nominal timing used throughout the spec's
// boundary scenarios: 5 ms slots, a short beacon/guard, and an ACK window
// well inside the slot tail.
func DefaultTiming() SuperframeTiming {
	return SuperframeTiming{
		SlotDuration:   5 * time.Millisecond,
		BeaconDuration: 1 * time.Millisecond,
		GuardDuration:  200 * time.Microsecond,
		AckWindow:      1500 * time.Microsecond,
	}
}

// SuperframeDuration returns T_SF for n active trackers.
func (t SuperframeTiming) SuperframeDuration(n int) time.Duration {
	return t.BeaconDuration + t.GuardDuration + time.Duration(n)*t.SlotDuration
}

// SlotStart returns the offset from the start of the superframe (i.e.
// from beacon transmission) at which tracker_id's slot begins.
func (t SuperframeTiming) SlotStart(trackerID int) time.Duration {
	return t.BeaconDuration + time.Duration(trackerID)*t.SlotDuration
}

// TrackerRuntimeState is the receiver's view of a paired tracker (spec
// §3). It is updated on each successful DATA packet and cleared on
// unpair.
type TrackerRuntimeState struct {
	Active      bool
	RSSI        int8
	LastSeenMs  int64
	Sequence    byte
	PacketLoss  uint32
	CRCErrors   uint32
	Battery     byte
	Flags       byte
	LastQuat    [4]int16
	LastAccel   [3]int16
}

// Clear resets runtime state to its post-unpair zero value, keeping
// Active false.
func (s *TrackerRuntimeState) Clear() {
	*s = TrackerRuntimeState{}
}
