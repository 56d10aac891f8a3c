package persist

import (
	"time"

	"github.com/openvrtrack/trackerlink/internal/hal"
)

// ReceiverStore wraps a hal.Flash with the receiver-side record layout:
// a single NetworkKeyRecord at offset 0, and N_MAX TrackerBindingRecords
// starting at TrackerBindingBase.
type ReceiverStore struct {
	flash hal.Flash
	nMax  int
}

// NewReceiverStore builds a ReceiverStore able to address nMax tracker
// binding slots.
func NewReceiverStore(flash hal.Flash, nMax int) *ReceiverStore {
	return &ReceiverStore{flash: flash, nMax: nMax}
}

func (s *ReceiverStore) bindingOffset(i int) uint32 {
	return TrackerBindingBase + uint32(i)*TrackerBindingStride
}

// LoadNetworkKey reads the persisted network key. ok is false if the
// record is absent (never written, or torn — bad magic/CRC).
func (s *ReceiverStore) LoadNetworkKey() (rec NetworkKeyRecord, ok bool, err error) {
	buf := make([]byte, RecordSlotSize)
	if err := s.flash.Read(NetworkKeyOffset, buf); err != nil {
		return NetworkKeyRecord{}, false, wrapFlashErr("LoadNetworkKey", err)
	}
	rec, ok = decodeNetworkKeyRecord(buf)
	return rec, ok, nil
}

// SaveNetworkKey erases and rewrites the network key record.
func (s *ReceiverStore) SaveNetworkKey(rec NetworkKeyRecord) error {
	if err := s.flash.Erase(NetworkKeyOffset, s.flash.PageSize()); err != nil {
		return wrapFlashErr("SaveNetworkKey", err)
	}
	if err := s.flash.Write(NetworkKeyOffset, encodeNetworkKeyRecord(rec)); err != nil {
		return wrapFlashErr("SaveNetworkKey", err)
	}
	return nil
}

// LoadBinding reads slot i's binding record.
func (s *ReceiverStore) LoadBinding(i int) (rec TrackerBindingRecord, ok bool, err error) {
	if i < 0 || i >= s.nMax {
		return TrackerBindingRecord{}, false, &Error{Kind: ErrOutOfRange, Op: "LoadBinding"}
	}
	buf := make([]byte, RecordSlotSize)
	if err := s.flash.Read(s.bindingOffset(i), buf); err != nil {
		return TrackerBindingRecord{}, false, wrapFlashErr("LoadBinding", err)
	}
	rec, ok = decodeTrackerBindingRecord(buf)
	return rec, ok, nil
}

// SaveBinding persists slot i's binding record.
func (s *ReceiverStore) SaveBinding(i int, rec TrackerBindingRecord) error {
	if i < 0 || i >= s.nMax {
		return &Error{Kind: ErrOutOfRange, Op: "SaveBinding"}
	}
	off := s.bindingOffset(i)
	if err := s.flash.Erase(off, s.flash.PageSize()); err != nil {
		return wrapFlashErr("SaveBinding", err)
	}
	if err := s.flash.Write(off, encodeTrackerBindingRecord(rec)); err != nil {
		return wrapFlashErr("SaveBinding", err)
	}
	return nil
}

// EraseBinding zeroes slot i, implementing unpair-one (spec §3
// Lifecycles; §8 "unpair(i); unpair(i) has the same effect as unpair(i)").
func (s *ReceiverStore) EraseBinding(i int) error {
	return s.SaveBinding(i, TrackerBindingRecord{})
}

// EraseAllBindings implements unpair-all.
func (s *ReceiverStore) EraseAllBindings() error {
	for i := 0; i < s.nMax; i++ {
		if err := s.EraseBinding(i); err != nil {
			return err
		}
	}
	return nil
}

// NMax returns the number of addressable tracker slots.
func (s *ReceiverStore) NMax() int { return s.nMax }

// TrackerStore wraps a hal.Flash with the tracker-side record layout: a
// singleton PairingRecord and, in a dedicated region, a FusionSnapshot.
type TrackerStore struct {
	flash             hal.Flash
	pairingOffset     uint32
	fusionOffset      uint32
	lastSnapshotWrite time.Time
	snapshotInterval  time.Duration
}

// NewTrackerStore lays out the PairingRecord at offset 0 and the
// FusionSnapshot in the dedicated region immediately after, rate-limiting
// snapshot writes to snapshotInterval (spec §4.2: "once per 5 s").
func NewTrackerStore(flash hal.Flash, snapshotInterval time.Duration) *TrackerStore {
	return &TrackerStore{
		flash:            flash,
		pairingOffset:    0,
		fusionOffset:     roundUp(pairingRecordSize, RecordSlotSize),
		snapshotInterval: snapshotInterval,
	}
}

func roundUp(n, align int) uint32 {
	if n%align == 0 {
		return uint32(n)
	}
	return uint32((n/align + 1) * align)
}

func (s *TrackerStore) LoadPairing() (rec PairingRecord, ok bool, err error) {
	buf := make([]byte, pairingRecordSize)
	if err := s.flash.Read(s.pairingOffset, buf); err != nil {
		return PairingRecord{}, false, wrapFlashErr("LoadPairing", err)
	}
	rec, ok = decodePairingRecord(buf)
	return rec, ok, nil
}

func (s *TrackerStore) SavePairing(rec PairingRecord) error {
	if err := s.flash.Erase(s.pairingOffset, s.flash.PageSize()*2); err != nil {
		return wrapFlashErr("SavePairing", err)
	}
	if err := s.flash.Write(s.pairingOffset, encodePairingRecord(rec)); err != nil {
		return wrapFlashErr("SavePairing", err)
	}
	return nil
}

func (s *TrackerStore) LoadFusionSnapshot() (snap FusionSnapshot, ok bool, err error) {
	buf := make([]byte, fusionSnapshotSize)
	if err := s.flash.Read(s.fusionOffset, buf); err != nil {
		return FusionSnapshot{}, false, wrapFlashErr("LoadFusionSnapshot", err)
	}
	snap, ok = decodeFusionSnapshot(buf)
	return snap, ok, nil
}

// SaveFusionSnapshot persists snap unless the last successful write was
// less than snapshotInterval ago, in which case it is silently skipped to
// bound flash wear (spec §4.2). now is the caller's current time so tests
// can drive the rate limiter deterministically.
func (s *TrackerStore) SaveFusionSnapshot(now time.Time, snap FusionSnapshot) (written bool, err error) {
	if !s.lastSnapshotWrite.IsZero() && now.Sub(s.lastSnapshotWrite) < s.snapshotInterval {
		return false, nil
	}
	pageSize := s.flash.PageSize()
	eraseLen := roundUp(fusionSnapshotSize, int(pageSize))
	if err := s.flash.Erase(s.fusionOffset, eraseLen); err != nil {
		return false, wrapFlashErr("SaveFusionSnapshot", err)
	}
	if err := s.flash.Write(s.fusionOffset, encodeFusionSnapshot(snap)); err != nil {
		return false, wrapFlashErr("SaveFusionSnapshot", err)
	}
	s.lastSnapshotWrite = now
	return true, nil
}

// ForceSaveFusionSnapshot bypasses the rate limiter — used before deep
// sleep, where the spec requires a guaranteed snapshot (spec §3
// Lifecycles: "snapshot-persisted before deep sleep").
func (s *TrackerStore) ForceSaveFusionSnapshot(now time.Time, snap FusionSnapshot) error {
	s.lastSnapshotWrite = time.Time{}
	_, err := s.SaveFusionSnapshot(now, snap)
	return err
}

func wrapFlashErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: ErrHardwareFault, Op: op, Err: err}
}
