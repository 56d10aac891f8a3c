package mac

import (
	"time"

	"github.com/openvrtrack/trackerlink/internal/hal"
	"github.com/openvrtrack/trackerlink/internal/pairing"
	"github.com/openvrtrack/trackerlink/internal/persist"
	"github.com/openvrtrack/trackerlink/internal/rf"
)

// TrackerState is one of Unpaired, SyncSearch, Running, Pairing or Sleep
// (spec §4.4).
type TrackerState int

const (
	TrkUnpaired TrackerState = iota
	TrkSyncSearch
	TrkRunning
	TrkPairing
	TrkSleep
)

func (s TrackerState) String() string {
	switch s {
	case TrkUnpaired:
		return "Unpaired"
	case TrkSyncSearch:
		return "SyncSearch"
	case TrkRunning:
		return "Running"
	case TrkPairing:
		return "Pairing"
	case TrkSleep:
		return "Sleep"
	default:
		return "Unknown"
	}
}

// channelDwell is how long the tracker listens on one whitelist channel
// before hopping to the next while searching for a beacon (spec §4.4 step
// 1: "scans the channel whitelist").
const channelDwell = 20 * time.Millisecond

// pairingTimeout is the tracker's own-side PAIRING_TIMEOUT_MS default
// (spec §6: "5000 ms tracker").
const pairingTimeout = 5 * time.Second

// Sample is one fusion output ready to transmit in the tracker's slot.
// internal/fusion's pipeline produces a structurally identical
// fusion.Sample that callers convert; mac only consumes the interface below so it never needs to import internal/fusion directly
// (same SlotTable-style inversion used between internal/pairing and
// internal/mac).
type Sample struct {
	Quat    [4]int16
	Accel   [3]int16
	Battery byte
	Flags   byte
}

// SampleSource supplies the latest fusion output for transmission.
// cmd/tracker-sim's fusionSource adapter wraps fusion.Pipeline to satisfy
// it, so internal/mac never imports internal/fusion.
type SampleSource interface {
	Sample() Sample
}

// Tracker is the sensor-side Link MAC: it searches for and locks onto a
// receiver's SYNC_BEACON, transmits one DATA frame per assigned slot each
// superframe, waits for its ACK, and falls back to SyncSearch after too
// many consecutive misses (spec §4.4).
type Tracker struct {
	radio  hal.RadioPHY
	clock  hal.Clock
	store  *persist.TrackerStore
	timing SuperframeTiming

	ownMac  [6]byte
	imuKind byte
	fwMajor byte
	fwMinor byte

	state TrackerState

	trackerID   byte
	receiverMac [6]byte
	networkKey  uint32

	frameNumber  uint16
	seq          byte
	missCount    int
	nMissMax     int
	searchIdx    int
	nextHopAt    time.Time
	slotDeadline time.Time
	awaitingAck  bool

	pairingFSM *pairing.TrackerFSM

	lastCmd Cmd
}

// NewTracker constructs a Tracker. It attempts to load a persisted
// pairing record immediately; if none is found (or it is not marked
// Paired), the tracker starts Unpaired and must be driven into Pairing by
// the caller (spec §3: a factory-fresh or unpaired device waits for an
// explicit pair request, it does not self-initiate).
func NewTracker(radio hal.RadioPHY, clock hal.Clock, store *persist.TrackerStore, timing SuperframeTiming, ownMac [6]byte, imuKind, fwMajor, fwMinor byte, nMissMax int) *Tracker {
	t := &Tracker{
		radio:    radio,
		clock:    clock,
		store:    store,
		timing:   timing,
		ownMac:   ownMac,
		imuKind:  imuKind,
		fwMajor:  fwMajor,
		fwMinor:  fwMinor,
		nMissMax: nMissMax,
		state:    TrkUnpaired,
	}
	if rec, ok, err := store.LoadPairing(); err == nil && ok && rec.Paired {
		t.trackerID = rec.TrackerID
		t.receiverMac = rec.ReceiverMac
		t.networkKey = rec.NetworkKey
		t.state = TrkSyncSearch
	}
	return t
}

func (t *Tracker) State() TrackerState { return t.state }

// TrackerID returns the slot assigned during pairing.
func (t *Tracker) TrackerID() byte { return t.trackerID }

// StartPairing switches into Pairing state and begins a tracker-side
// pairing session on the pairing channel.
func (t *Tracker) StartPairing(now time.Time, pairingChannel byte) {
	if t.state == TrkPairing {
		return
	}
	t.state = TrkPairing
	if err := t.radio.SetChannel(pairingChannel); err != nil {
		Logf("mac/tracker: set pairing channel failed: %v", err)
	}
	t.pairingFSM = pairing.NewTrackerFSM(t.radio, t.clock, t.store, t.ownMac, t.imuKind, t.fwMajor, t.fwMinor)
	t.pairingFSM.Start(now, pairingTimeout)
}

// Unpair erases the persisted pairing record and returns to Unpaired
// (spec §3 lifecycle; also reachable via a receiver-issued CmdUnpair).
func (t *Tracker) Unpair() error {
	if err := t.store.SavePairing(persist.PairingRecord{}); err != nil {
		return err
	}
	t.state = TrkUnpaired
	t.pairingFSM = nil
	return nil
}

// LastCmd returns the most recent command piggybacked on an ACK, cleared
// after being read.
func (t *Tracker) LastCmd() Cmd {
	c := t.lastCmd
	t.lastCmd = CmdNone
	return c
}

// Sleep enters the low-power state; Step becomes a no-op until WakeUp.
func (t *Tracker) Sleep() {
	t.state = TrkSleep
}

// WakeUp leaves Sleep, re-entering SyncSearch (the paired device must
// re-acquire the superframe after any period it wasn't listening).
func (t *Tracker) WakeUp() {
	if t.state == TrkSleep {
		t.state = TrkSyncSearch
	}
}

// Step advances the tracker by one main-loop pass. source supplies the
// fusion output to transmit if this pass falls in the tracker's slot;
// callers on a non-fusion pass (sync search, pairing) may pass nil.
func (t *Tracker) Step(now time.Time, source SampleSource) {
	switch t.state {
	case TrkUnpaired, TrkSleep:
		return

	case TrkPairing:
		t.stepPairing(now)

	case TrkSyncSearch:
		t.stepSyncSearch(now)

	case TrkRunning:
		t.stepRunning(now, source)
	}
}

func (t *Tracker) stepPairing(now time.Time) {
	if t.pairingFSM == nil {
		t.state = TrkUnpaired
		return
	}
	t.pairingFSM.Step(now)
	switch t.pairingFSM.State() {
	case pairing.TxComplete:
		result := t.pairingFSM.Result()
		t.trackerID = result.TrackerID
		t.receiverMac = result.ReceiverMac
		t.networkKey = result.NetworkKey
		t.pairingFSM = nil
		t.state = TrkSyncSearch
	case pairing.TxTimeout:
		t.pairingFSM = nil
		t.state = TrkUnpaired
	}
}

func (t *Tracker) stepSyncSearch(now time.Time) {
	if t.nextHopAt.IsZero() || !now.Before(t.nextHopAt) {
		ch := rf.ChannelWhitelist[t.searchIdx%rf.NumChannels]
		if err := t.radio.SetChannel(ch); err != nil {
			Logf("mac/tracker: set search channel %d failed: %v", ch, err)
		}
		t.searchIdx++
		t.nextHopAt = now.Add(channelDwell)
	}

	frame, ok, err := t.radio.Receive()
	if !ok || err != nil {
		return
	}
	typ, v, err := rf.Decode(frame.Payload)
	if err != nil || typ != rf.FrameSyncBeacon {
		return
	}
	beacon := v.(rf.SyncBeacon)
	if beacon.Key != t.networkKey {
		// Beacon from a foreign network sharing this channel: ignore.
		return
	}

	t.frameNumber = beacon.FrameNumber
	t.superframeSync(now)
	t.missCount = 0
	t.seq = 0
	t.state = TrkRunning
	Logf("mac/tracker: locked onto superframe %d on channel %d", t.frameNumber, beacon.Channel)
}

// superframeSync records the wall-clock moment this pass observed a
// superframe boundary (the beacon it locked onto), used to time the
// next hop and slot deadline.
func (t *Tracker) superframeSync(now time.Time) {
	t.nextHopAt = now
	t.slotDeadline = now.Add(t.timing.SlotStart(int(t.trackerID))).Add(t.timing.SlotDuration)
}

func (t *Tracker) stepRunning(now time.Time, source SampleSource) {
	if t.awaitingAck {
		frame, ok, err := t.radio.Receive()
		if ok && err == nil {
			if typ, v, err := rf.Decode(frame.Payload); err == nil && typ == rf.FrameAck {
				ack := v.(rf.Ack)
				if ack.TrackerID == t.trackerID && ack.Seq == t.seq {
					t.awaitingAck = false
					t.missCount = 0
					if Cmd(ack.Cmd) != CmdNone {
						t.handleCmd(Cmd(ack.Cmd))
					}
					return
				}
			}
		}
		if now.Before(t.slotDeadline) {
			return
		}
		// ACK window elapsed with nothing matching: a miss.
		t.awaitingAck = false
		t.missCount++
		if t.missCount > t.nMissMax {
			Logf("mac/tracker: %d consecutive misses, dropping back to SyncSearch", t.missCount)
			t.state = TrkSyncSearch
		}
		return
	}

	channel := rf.HopChannel(t.frameNumber, t.networkKey)
	if err := t.radio.SetChannel(channel); err != nil {
		Logf("mac/tracker: hop to channel %d failed: %v", channel, err)
	}

	var sample Sample
	if source != nil {
		sample = source.Sample()
	}
	t.seq++
	d := rf.DataFrame{
		TrackerID: t.trackerID,
		Seq:       t.seq,
		Quat:      sample.Quat,
		Accel:     sample.Accel,
		Battery:   sample.Battery,
		Flags:     sample.Flags,
	}
	buf := make([]byte, rf.LenData)
	n := rf.EncodeData(d, buf)
	if err := t.radio.Transmit(buf[:n]); err != nil {
		Logf("mac/tracker: transmit DATA failed: %v", err)
	}

	t.frameNumber++
	t.awaitingAck = true
	t.slotDeadline = now.Add(t.timing.AckWindow)
}

func (t *Tracker) handleCmd(cmd Cmd) {
	t.lastCmd = cmd
	switch cmd {
	case CmdUnpair, CmdFactoryReset:
		if err := t.Unpair(); err != nil {
			Logf("mac/tracker: unpair on command failed: %v", err)
		}
	}
}
