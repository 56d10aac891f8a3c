package mac

import (
	"time"

	"github.com/openvrtrack/trackerlink/internal/hal"
	"github.com/openvrtrack/trackerlink/internal/pairing"
	"github.com/openvrtrack/trackerlink/internal/persist"
	"github.com/openvrtrack/trackerlink/internal/rf"
)

// ReceiverState is one of Idle, Normal, Pairing or Error (spec §4.3).
type ReceiverState int

const (
	RxIdle ReceiverState = iota
	RxNormal
	RxPairing
	RxError
)

func (s ReceiverState) String() string {
	switch s {
	case RxIdle:
		return "Idle"
	case RxNormal:
		return "Normal"
	case RxPairing:
		return "Pairing"
	case RxError:
		return "Error"
	default:
		return "Unknown"
	}
}

type binding struct {
	mac    [6]byte
	active bool
}

// Receiver is the dongle-side Link MAC: it drives the superframe clock,
// broadcasts SYNC_BEACON, listens in each bound tracker's slot, validates
// and ACKs DATA frames, and owns the binding table that the pairing
// engine allocates into (spec §4.3).
//
// Receiver implements pairing.SlotTable directly so internal/pairing
// never needs to import internal/mac.
type Receiver struct {
	radio  hal.RadioPHY
	clock  hal.Clock
	store  *persist.ReceiverStore
	timing SuperframeTiming

	networkKey     uint32
	receiverMac    [6]byte
	pairingChannel byte
	nMissMax       int

	state           ReceiverState
	frameNumber     uint16
	superframeStart time.Time

	bindings [DefaultNMax]binding
	runtime  [DefaultNMax]TrackerRuntimeState
	missCtr  [DefaultNMax]int
	pendCmd  [DefaultNMax]Cmd

	// crcErrorsUnattributed counts bad-CRC/truncated/unknown-type frames
	// whose slot couldn't be recovered from the header (spec §4.3 step 1).
	crcErrorsUnattributed uint32

	pairingFSM *pairing.ReceiverFSM
}

// NewReceiver constructs a Receiver and loads its binding table from
// store. If no network key is persisted yet, callers are expected to
// generate and save one (via an hal.EntropySource) before leaving Idle.
func NewReceiver(radio hal.RadioPHY, clock hal.Clock, store *persist.ReceiverStore, timing SuperframeTiming, receiverMac [6]byte, pairingChannel byte, nMissMax int) *Receiver {
	r := &Receiver{
		radio:          radio,
		clock:          clock,
		store:          store,
		timing:         timing,
		receiverMac:    receiverMac,
		pairingChannel: pairingChannel,
		nMissMax:       nMissMax,
		state:          RxIdle,
	}
	if key, ok, err := store.LoadNetworkKey(); err == nil && ok {
		r.networkKey = key.NetworkKey
	}
	for i := 0; i < store.NMax() && i < len(r.bindings); i++ {
		if rec, ok, err := store.LoadBinding(i); err == nil && ok && rec.Active {
			r.bindings[i] = binding{mac: rec.Mac, active: true}
		}
	}
	return r
}

func (r *Receiver) State() ReceiverState { return r.state }

// NetworkKey returns the current network key (spec §3: generated once per
// receiver lifetime, persisted, and broadcast in every SYNC_BEACON).
func (r *Receiver) NetworkKey() uint32 { return r.networkKey }

// SetNetworkKey installs and persists a new network key, then leaves Idle
// for Normal. Callers generate key bytes from an hal.EntropySource.
func (r *Receiver) SetNetworkKey(key uint32) error {
	if err := r.store.SaveNetworkKey(persist.NetworkKeyRecord{NetworkKey: key}); err != nil {
		return err
	}
	r.networkKey = key
	if r.state == RxIdle {
		r.state = RxNormal
	}
	return nil
}

// EnterPairing switches the radio to the pairing channel and starts a
// receiver-side pairing session. Idempotent: calling it again while
// already Pairing has no effect (spec §4.7 "single pairing session at a
// time on each side").
func (r *Receiver) EnterPairing(now time.Time) {
	if r.state == RxPairing {
		return
	}
	r.state = RxPairing
	if err := r.radio.SetChannel(r.pairingChannel); err != nil {
		Logf("mac/receiver: set pairing channel failed: %v", err)
	}
	r.pairingFSM = pairing.NewReceiverFSM(r.radio, r.clock, r, r.networkKey, r.receiverMac)
}

// ExitPairing returns to Normal operation on the hopped data channel.
func (r *Receiver) ExitPairing() {
	r.state = RxNormal
	r.pairingFSM = nil
}

// Unpair clears slot i's binding, implementing unpair(i) (spec §3, §8).
func (r *Receiver) Unpair(i int) error {
	if i < 0 || i >= len(r.bindings) {
		return &persist.Error{Kind: persist.ErrOutOfRange, Op: "Unpair"}
	}
	if err := r.store.EraseBinding(i); err != nil {
		return err
	}
	r.bindings[i] = binding{}
	r.runtime[i].Clear()
	r.missCtr[i] = 0
	return nil
}

// UnpairAll clears every slot (SPEC_FULL recovered factory-reset-adjacent
// operation).
func (r *Receiver) UnpairAll() error {
	for i := range r.bindings {
		if err := r.Unpair(i); err != nil {
			return err
		}
	}
	return nil
}

// FactoryReset erases every binding in flash and zeroes the in-memory
// network key, returning the receiver to Idle (SPEC_FULL recovered scope;
// see SPEC_FULL.md). It does not generate a new key, and the persisted
// network key record is left in flash; SetNetworkKey installs a new one.
func (r *Receiver) FactoryReset() error {
	if err := r.UnpairAll(); err != nil {
		return err
	}
	r.networkKey = 0
	r.state = RxIdle
	return nil
}

// RequestCmd queues cmd to piggyback on slot i's next ACK (spec §4.3 item
// 5).
func (r *Receiver) RequestCmd(i int, cmd Cmd) {
	if i >= 0 && i < len(r.pendCmd) {
		r.pendCmd[i] = cmd
	}
}

// Runtime returns slot i's live runtime snapshot for diagnostics.
func (r *Receiver) Runtime(i int) TrackerRuntimeState {
	if i < 0 || i >= len(r.runtime) {
		return TrackerRuntimeState{}
	}
	return r.runtime[i]
}

// --- pairing.SlotTable ---

func (r *Receiver) FindSlot(mac [6]byte) (int, bool) {
	for i, b := range r.bindings {
		if b.active && b.mac == mac {
			return i, true
		}
	}
	return 0, false
}

func (r *Receiver) AllocateFreeSlot() (int, bool) {
	for i, b := range r.bindings {
		if i >= r.store.NMax() {
			break
		}
		if !b.active {
			return i, true
		}
	}
	return 0, false
}

func (r *Receiver) Activate(slot int, mac [6]byte, pairedTimeMs int64) error {
	rec := persist.TrackerBindingRecord{Mac: mac, Active: true, Slot: byte(slot), PairedTimeMs: uint32(pairedTimeMs)}
	if err := r.store.SaveBinding(slot, rec); err != nil {
		return err
	}
	r.bindings[slot] = binding{mac: mac, active: true}
	r.runtime[slot].Clear()
	r.missCtr[slot] = 0
	return nil
}

// --- main-loop step ---

// Step advances the receiver by one main-loop pass (spec §5).
func (r *Receiver) Step(now time.Time) {
	switch r.state {
	case RxIdle:
		return
	case RxPairing:
		if r.pairingFSM == nil {
			r.ExitPairing()
			return
		}
		r.pairingFSM.Step(now)
		switch r.pairingFSM.State() {
		case pairing.RxComplete, pairing.RxTimeout:
			r.ExitPairing()
		}
	case RxNormal:
		r.stepSuperframe(now)
		r.stepDataRx(now)
	}
}

func (r *Receiver) activeCount() int {
	n := 0
	for _, b := range r.bindings {
		if b.active {
			n++
		}
	}
	return n
}

func (r *Receiver) stepSuperframe(now time.Time) {
	duration := r.timing.SuperframeDuration(r.activeCount())
	if !r.superframeStart.IsZero() && now.Sub(r.superframeStart) < duration {
		return
	}
	r.superframeStart = now
	r.frameNumber++
	channel := rf.HopChannel(r.frameNumber, r.networkKey)
	if err := r.radio.SetChannel(channel); err != nil {
		Logf("mac/receiver: hop to channel %d failed: %v", channel, err)
	}

	beacon := rf.SyncBeacon{
		Key:          r.networkKey,
		FrameNumber:  r.frameNumber,
		Channel:      channel,
		TrackerCount: byte(r.activeCount()),
	}
	buf := make([]byte, rf.LenSyncBeacon)
	n := rf.EncodeSyncBeacon(beacon, buf)
	if err := r.radio.Transmit(buf[:n]); err != nil {
		Logf("mac/receiver: transmit SYNC_BEACON failed: %v", err)
	}

	for i, b := range r.bindings {
		if !b.active {
			continue
		}
		r.missCtr[i]++
		if r.missCtr[i] > r.nMissMax {
			Logf("mac/receiver: slot %d (%x) exceeded N_MISS_MAX, link considered down", i, b.mac)
		}
	}
}

// recordCRCError increments CRCErrors for the slot a rejected frame's
// header claims, when that slot is bound; otherwise it falls back to the
// receiver-wide crcErrorsUnattributed counter, since a frame too short or
// too garbled to carry a trustworthy header can't be pinned on any slot.
func (r *Receiver) recordCRCError(payload []byte) {
	if slot, ok := rf.DataFrameSlotHint(payload); ok && int(slot) < len(r.bindings) && r.bindings[slot].active {
		r.runtime[slot].CRCErrors++
		return
	}
	r.crcErrorsUnattributed++
}

// UnattributedCRCErrors returns the count of rejected frames whose target
// slot couldn't be recovered from the header.
func (r *Receiver) UnattributedCRCErrors() uint32 { return r.crcErrorsUnattributed }

func (r *Receiver) stepDataRx(now time.Time) {
	frame, ok, err := r.radio.Receive()
	if !ok || err != nil {
		return
	}
	typ, v, err := rf.Decode(frame.Payload)
	if err != nil {
		// Bad CRC, truncated, or unknown type: silently dropped, same
		// disposition as a corrupted over-the-air frame (spec §4.7).
		r.recordCRCError(frame.Payload)
		return
	}
	if typ != rf.FrameData {
		return
	}
	d := v.(rf.DataFrame)
	if int(d.TrackerID) >= len(r.bindings) || !r.bindings[d.TrackerID].active {
		// Frame claims an unbound slot: ignore (could be a stray tracker
		// from a neighboring network sharing the channel).
		return
	}

	slot := int(d.TrackerID)
	rt := &r.runtime[slot]
	if rt.Active && d.Seq != rt.Sequence+1 {
		gap := int(d.Seq) - int(rt.Sequence) - 1
		if gap < 0 {
			gap += 256
		}
		rt.PacketLoss += uint32(gap)
	}
	rt.Active = true
	rt.RSSI = frame.RSSI
	rt.LastSeenMs = r.clock.NowMillis()
	rt.Sequence = d.Seq
	rt.Battery = d.Battery
	rt.Flags = d.Flags
	rt.LastQuat = d.Quat
	rt.LastAccel = d.Accel
	r.missCtr[slot] = 0

	cmd := r.pendCmd[slot]
	r.pendCmd[slot] = CmdNone
	ack := rf.Ack{TrackerID: d.TrackerID, Seq: d.Seq, Cmd: byte(cmd)}
	buf := make([]byte, rf.LenAck)
	n := rf.EncodeAck(ack, buf)
	if err := r.radio.Transmit(buf[:n]); err != nil {
		Logf("mac/receiver: transmit ACK for slot %d failed: %v", slot, err)
	}
}
