package pairing

import (
	"time"

	"github.com/google/uuid"
	"github.com/openvrtrack/trackerlink/internal/hal"
	"github.com/openvrtrack/trackerlink/internal/persist"
	"github.com/openvrtrack/trackerlink/internal/rf"
)

// TrackerState is one of WaitBeacon, SendRequest, WaitResponse,
// SendConfirm, Complete or Timeout (spec §4.5).
type TrackerState int

const (
	TxWaitBeacon TrackerState = iota
	TxSendRequest
	TxWaitResponse
	TxSendConfirm
	TxComplete
	TxTimeout
)

func (s TrackerState) String() string {
	switch s {
	case TxWaitBeacon:
		return "WaitBeacon"
	case TxSendRequest:
		return "SendRequest"
	case TxWaitResponse:
		return "WaitResponse"
	case TxSendConfirm:
		return "SendConfirm"
	case TxComplete:
		return "Complete"
	case TxTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// requestInterval is the tracker's PAIR_REQ retransmit period (spec §4.5
// step 1: "every 500 ms").
const requestInterval = 500 * time.Millisecond

// Result is the outcome of a completed tracker pairing session.
type Result struct {
	TrackerID   byte
	ReceiverMac [6]byte
	NetworkKey  uint32
}

// TrackerFSM is the tracker-side pairing engine.
type TrackerFSM struct {
	radio hal.RadioPHY
	clock hal.Clock
	store *persist.TrackerStore

	ownMac  [6]byte
	imuKind byte
	fwMajor byte
	fwMinor byte

	state     TrackerState
	deadline  time.Time
	nextReqAt time.Time
	session   uuid.UUID

	// pending fields recorded from PAIR_RESP, used to build PAIR_CONFIRM.
	pendingSlot   byte
	pendingKey    uint32
	pendingRecvMac [6]byte

	result *Result
}

// NewTrackerFSM builds a tracker-side pairing engine. The wall-clock
// deadline for the whole session (spec §6 PAIRING_TIMEOUT_MS, default
// 5000ms for the tracker) is passed to Start.
func NewTrackerFSM(radio hal.RadioPHY, clock hal.Clock, store *persist.TrackerStore, ownMac [6]byte, imuKind, fwMajor, fwMinor byte) *TrackerFSM {
	return &TrackerFSM{
		radio:   radio,
		clock:   clock,
		store:   store,
		ownMac:  ownMac,
		imuKind: imuKind,
		fwMajor: fwMajor,
		fwMinor: fwMinor,
		state:   TxWaitBeacon,
	}
}

func (f *TrackerFSM) State() TrackerState { return f.state }

// Result returns the completed session's outcome, or nil if the session
// has not completed.
func (f *TrackerFSM) Result() *Result { return f.result }

// Start begins (or restarts) a pairing session with a wall-clock deadline
// of now+timeout.
func (f *TrackerFSM) Start(now time.Time, timeout time.Duration) {
	f.state = TxWaitBeacon
	f.deadline = now.Add(timeout)
	f.session = sessionID()
	f.result = nil
	Logf("pairing/tracker: session %s started, deadline %s", f.session, f.deadline)
}

// Stop is the idempotent cancellation channel named in spec §5.
func (f *TrackerFSM) Stop() {
	f.state = TxTimeout
}

// Step advances the state machine by one main-loop pass.
func (f *TrackerFSM) Step(now time.Time) {
	if f.state != TxComplete && f.state != TxTimeout && now.After(f.deadline) {
		Logf("pairing/tracker: session %s timed out in state %s", f.session, f.state)
		f.state = TxTimeout
		return
	}

	switch f.state {
	case TxWaitBeacon:
		// The deprecated tracker broadcasts requests before seeing any
		// beacon on the pairing channel; this transition stays
		// effectively immediate, matching current (non-archived)
		// behavior. Whether a future revision should gate SendRequest on
		// an actual sighting of a pairing-channel beacon is an open
		// question (spec §9) — not resolved here.
		f.state = TxSendRequest

	case TxSendRequest:
		f.transmitRequest()
		f.nextReqAt = now.Add(requestInterval)
		f.state = TxWaitResponse

	case TxWaitResponse:
		if frame, ok, err := f.radio.Receive(); ok && err == nil {
			if typ, v, err := rf.Decode(frame.Payload); err == nil && typ == rf.FramePairResp {
				resp := v.(rf.PairResp)
				f.pendingSlot = resp.Slot
				f.pendingKey = resp.NetworkKey
				f.pendingRecvMac = resp.ReceiverMac
				f.state = TxSendConfirm
				return
			}
		}
		if !now.Before(f.nextReqAt) {
			f.state = TxSendRequest
		}

	case TxSendConfirm:
		rec := persist.PairingRecord{
			TrackerID:   f.pendingSlot,
			OwnMac:      f.ownMac,
			ReceiverMac: f.pendingRecvMac,
			NetworkKey:  f.pendingKey,
			Paired:      true,
		}
		if err := f.store.SavePairing(rec); err != nil {
			// Persistent storage error: do not commit, retry the whole
			// handshake (spec §4.7).
			Logf("pairing/tracker: persist pairing record failed: %v, retrying handshake", err)
			f.state = TxSendRequest
			return
		}

		confirm := rf.PairConfirm{Slot: f.pendingSlot, Mac: f.ownMac, Status: StatusOK}
		buf := make([]byte, rf.LenPairConfirm)
		n := rf.EncodePairConfirm(confirm, buf)
		if err := f.radio.Transmit(buf[:n]); err != nil {
			Logf("pairing/tracker: transmit PAIR_CONFIRM failed: %v", err)
		}

		f.result = &Result{TrackerID: f.pendingSlot, ReceiverMac: f.pendingRecvMac, NetworkKey: f.pendingKey}
		Logf("pairing/tracker: session %s complete, slot %d", f.session, f.pendingSlot)
		f.state = TxComplete
	}
}

func (f *TrackerFSM) transmitRequest() {
	req := rf.PairReq{Version: 1, Mac: f.ownMac, ImuKind: f.imuKind, FwMajor: f.fwMajor, FwMinor: f.fwMinor}
	buf := make([]byte, rf.LenPairReq)
	n := rf.EncodePairReq(req, buf)
	if err := f.radio.Transmit(buf[:n]); err != nil {
		Logf("pairing/tracker: transmit PAIR_REQ failed: %v", err)
	}
}
