package pairing

import (
	"time"

	"github.com/google/uuid"
	"github.com/openvrtrack/trackerlink/internal/hal"
	"github.com/openvrtrack/trackerlink/internal/rf"
)

// ReceiverState is one of Listening, Responding, Complete or Timeout
// (spec §4.5).
type ReceiverState int

const (
	RxListening ReceiverState = iota
	RxResponding
	RxComplete
	RxTimeout
)

func (s ReceiverState) String() string {
	switch s {
	case RxListening:
		return "Listening"
	case RxResponding:
		return "Responding"
	case RxComplete:
		return "Complete"
	case RxTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

type pendingCandidate struct {
	slot      int
	mac       [6]byte
	session   uuid.UUID
	expiresAt time.Time
}

// ReceiverFSM is the receiver-side pairing engine. One session at a time
// (spec §4.5: "Single pairing session at a time on each side").
type ReceiverFSM struct {
	radio       hal.RadioPHY
	clock       hal.Clock
	table       SlotTable
	networkKey  uint32
	receiverMac [6]byte

	state   ReceiverState
	pending *pendingCandidate
}

// NewReceiverFSM builds a receiver-side pairing engine. table is the live
// binding table (usually the owning mac.Receiver).
func NewReceiverFSM(radio hal.RadioPHY, clock hal.Clock, table SlotTable, networkKey uint32, receiverMac [6]byte) *ReceiverFSM {
	return &ReceiverFSM{
		radio:       radio,
		clock:       clock,
		table:       table,
		networkKey:  networkKey,
		receiverMac: receiverMac,
		state:       RxListening,
	}
}

func (f *ReceiverFSM) State() ReceiverState { return f.state }

// Reset returns the engine to Listening, dropping any pending candidate
// (spec §5: "a state change... is the only cancellation channel and is
// idempotent").
func (f *ReceiverFSM) Reset() {
	f.state = RxListening
	f.pending = nil
}

// Step polls the radio once and advances the state machine. now is the
// caller's wall clock, used for the per-candidate timeout.
func (f *ReceiverFSM) Step(now time.Time) {
	if f.pending != nil && now.After(f.pending.expiresAt) {
		Logf("pairing/receiver: candidate slot %d (session %s) timed out, returning to Listening",
			f.pending.slot, f.pending.session)
		f.pending = nil
		f.state = RxListening
	}

	frame, ok, err := f.radio.Receive()
	if !ok || err != nil {
		return
	}
	typ, v, err := rf.Decode(frame.Payload)
	if err != nil {
		// Malformed pairing-channel traffic is a protocol violation:
		// silently dropped (spec §4.7).
		return
	}
	switch typ {
	case rf.FramePairReq:
		f.handlePairReq(now, v.(rf.PairReq))
	case rf.FramePairConfirm:
		f.handlePairConfirm(v.(rf.PairConfirm))
	}
}

func (f *ReceiverFSM) handlePairReq(now time.Time, req rf.PairReq) {
	slot, found := f.table.FindSlot(req.Mac)
	if !found {
		var ok bool
		slot, ok = f.table.AllocateFreeSlot()
		if !ok {
			// Slot exhaustion: silently ignore (spec §4.5 step 2, §4.7,
			// §8 boundary scenario 3).
			Logf("pairing/receiver: no free slot for %x, ignoring PAIR_REQ", req.Mac)
			return
		}
	}

	session := sessionID()
	f.pending = &pendingCandidate{slot: slot, mac: req.Mac, session: session, expiresAt: now.Add(candidateTimeout)}
	f.state = RxResponding

	resp := rf.PairResp{Slot: byte(slot), ReceiverMac: f.receiverMac, NetworkKey: f.networkKey}
	buf := make([]byte, rf.LenPairResp)
	n := rf.EncodePairResp(resp, buf)
	if err := f.radio.Transmit(buf[:n]); err != nil {
		Logf("pairing/receiver: transmit PAIR_RESP failed: %v", err)
	}
}

func (f *ReceiverFSM) handlePairConfirm(confirm rf.PairConfirm) {
	if f.pending == nil {
		return // protocol violation: confirm with no pending candidate
	}
	if int(confirm.Slot) != f.pending.slot || confirm.Mac != f.pending.mac {
		// Mismatch: stays in Responding until timeout (spec §4.5 step 5).
		return
	}

	pairedAt := f.clock.NowMillis()
	if err := f.table.Activate(f.pending.slot, f.pending.mac, pairedAt); err != nil {
		// Persistence failure: do not activate, do not complete (spec
		// §4.7 "Flash error during write... pairing does not activate
		// the slot on failure").
		Logf("pairing/receiver: activate slot %d failed: %v", f.pending.slot, err)
		return
	}

	Logf("pairing/receiver: session %s complete, slot %d bound to %x", f.pending.session, f.pending.slot, f.pending.mac)
	f.pending = nil
	f.state = RxComplete
}
