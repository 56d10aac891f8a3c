// Package persist implements the CRC-validated, magic-tagged flash
// records described in spec §4.2 and §6: NetworkKeyRecord and
// TrackerBindingRecord on the receiver, PairingRecord and FusionSnapshot
// on the tracker. Every record lives at a fixed offset so a sequential
// scan enumerates all trackers without allocation, and a bad magic or bad
// CRC — the torn-write signature of a flash page interrupted by power
// loss — is always treated as "absent", never surfaced as an error.
package persist

import "encoding/binary"

// Fixed offsets and slot geometry, per spec §6.
const (
	NetworkKeyOffset       = 0x0000
	TrackerBindingBase     = 0x0100
	TrackerBindingStride   = 16
	RecordSlotSize         = 16

	NetworkKeyMagic = 0x534C5652
	FusionMagic     = 0x52455441
	PairingMagic    = 0x50415252 // arbitrary, not given a literal value in spec §6
)

// NetworkKeyRecord is the receiver's persisted 32-bit network secret.
type NetworkKeyRecord struct {
	NetworkKey uint32
}

func encodeNetworkKeyRecord(r NetworkKeyRecord) []byte {
	buf := make([]byte, 0, RecordSlotSize)
	buf = binary.LittleEndian.AppendUint32(buf, NetworkKeyMagic)
	buf = binary.LittleEndian.AppendUint32(buf, r.NetworkKey)
	crc := recordCRC(buf)
	buf = binary.LittleEndian.AppendUint16(buf, crc)
	for len(buf) < RecordSlotSize {
		buf = append(buf, 0xFF)
	}
	return buf
}

func decodeNetworkKeyRecord(buf []byte) (NetworkKeyRecord, bool) {
	if len(buf) < 10 {
		return NetworkKeyRecord{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != NetworkKeyMagic {
		return NetworkKeyRecord{}, false
	}
	if !crcOK(buf[:8], buf[8:10]) {
		return NetworkKeyRecord{}, false
	}
	return NetworkKeyRecord{NetworkKey: binary.LittleEndian.Uint32(buf[4:8])}, true
}

// TrackerBindingRecord is the receiver's per-slot MAC<->slot association.
// Unlike every other record type here, the wire layout in spec §6 carries
// no magic field for this record; presence is determined by CRC alone
// (see DESIGN.md for this resolved ambiguity).
type TrackerBindingRecord struct {
	Mac          [6]byte
	Active       bool
	Slot         byte
	PairedTimeMs uint32
}

func encodeTrackerBindingRecord(r TrackerBindingRecord) []byte {
	buf := make([]byte, 0, RecordSlotSize)
	buf = append(buf, r.Mac[:]...)
	buf = append(buf, boolByte(r.Active), r.Slot)
	buf = binary.LittleEndian.AppendUint32(buf, r.PairedTimeMs)
	crc := recordCRC(buf)
	buf = binary.LittleEndian.AppendUint16(buf, crc)
	for len(buf) < RecordSlotSize {
		buf = append(buf, 0)
	}
	return buf
}

func decodeTrackerBindingRecord(buf []byte) (TrackerBindingRecord, bool) {
	if len(buf) < 14 {
		return TrackerBindingRecord{}, false
	}
	if !crcOK(buf[:12], buf[12:14]) {
		return TrackerBindingRecord{}, false
	}
	var r TrackerBindingRecord
	copy(r.Mac[:], buf[0:6])
	r.Active = buf[6] != 0
	r.Slot = buf[7]
	r.PairedTimeMs = binary.LittleEndian.Uint32(buf[8:12])
	return r, true
}

// PairingRecord is the tracker's singleton binding.
type PairingRecord struct {
	TrackerID   byte
	OwnMac      [6]byte
	ReceiverMac [6]byte
	NetworkKey  uint32
	Paired      bool
}

const pairingRecordSize = 4 + 1 + 6 + 6 + 4 + 1 + 8 + 2 // magic,id,mac,rmac,key,paired,reserved,crc

func encodePairingRecord(r PairingRecord) []byte {
	buf := make([]byte, 0, pairingRecordSize)
	buf = binary.LittleEndian.AppendUint32(buf, PairingMagic)
	buf = append(buf, r.TrackerID)
	buf = append(buf, r.OwnMac[:]...)
	buf = append(buf, r.ReceiverMac[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, r.NetworkKey)
	buf = append(buf, boolByte(r.Paired))
	buf = append(buf, make([]byte, 8)...) // reserved
	crc := recordCRC(buf)
	buf = binary.LittleEndian.AppendUint16(buf, crc)
	return buf
}

func decodePairingRecord(buf []byte) (PairingRecord, bool) {
	if len(buf) < pairingRecordSize {
		return PairingRecord{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != PairingMagic {
		return PairingRecord{}, false
	}
	payloadLen := pairingRecordSize - 2
	if !crcOK(buf[:payloadLen], buf[payloadLen:payloadLen+2]) {
		return PairingRecord{}, false
	}
	var r PairingRecord
	r.TrackerID = buf[4]
	copy(r.OwnMac[:], buf[5:11])
	copy(r.ReceiverMac[:], buf[11:17])
	r.NetworkKey = binary.LittleEndian.Uint32(buf[17:21])
	r.Paired = buf[21] != 0
	return r, true
}

// FusionSnapshot is the tracker's persisted AHRS state, saved before deep
// sleep so attitude survives a power cycle without re-converging from
// identity.
type FusionSnapshot struct {
	Version        byte
	SaveTimeMs     uint32
	Quat           [4]float32
	GyroBias       [3]float32
	SleepCount     uint32
	WakeCount      uint32
	TotalRuntimeMs uint32
}

const fusionSnapshotSize = 4 + 1 + 4 + 16 + 12 + 4 + 4 + 4 + 2

func encodeFusionSnapshot(s FusionSnapshot) []byte {
	buf := make([]byte, 0, fusionSnapshotSize)
	buf = binary.LittleEndian.AppendUint32(buf, FusionMagic)
	buf = append(buf, s.Version)
	buf = binary.LittleEndian.AppendUint32(buf, s.SaveTimeMs)
	for _, c := range s.Quat {
		buf = binary.LittleEndian.AppendUint32(buf, float32bits(c))
	}
	for _, c := range s.GyroBias {
		buf = binary.LittleEndian.AppendUint32(buf, float32bits(c))
	}
	buf = binary.LittleEndian.AppendUint32(buf, s.SleepCount)
	buf = binary.LittleEndian.AppendUint32(buf, s.WakeCount)
	buf = binary.LittleEndian.AppendUint32(buf, s.TotalRuntimeMs)
	crc := recordCRC(buf)
	buf = binary.LittleEndian.AppendUint16(buf, crc)
	return buf
}

func decodeFusionSnapshot(buf []byte) (FusionSnapshot, bool) {
	if len(buf) < fusionSnapshotSize {
		return FusionSnapshot{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != FusionMagic {
		return FusionSnapshot{}, false
	}
	payloadLen := fusionSnapshotSize - 2
	if !crcOK(buf[:payloadLen], buf[payloadLen:payloadLen+2]) {
		return FusionSnapshot{}, false
	}
	var s FusionSnapshot
	s.Version = buf[4]
	s.SaveTimeMs = binary.LittleEndian.Uint32(buf[5:9])
	off := 9
	for i := range s.Quat {
		s.Quat[i] = float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	for i := range s.GyroBias {
		s.GyroBias[i] = float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	s.SleepCount = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	s.WakeCount = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	s.TotalRuntimeMs = binary.LittleEndian.Uint32(buf[off : off+4])
	return s, true
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
