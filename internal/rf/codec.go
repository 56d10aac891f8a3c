package rf

import "encoding/binary"

// Frame length constants, each including the trailing little-endian
// CRC-16. ACK is the one frame type that carries no software CRC: at 4
// bytes it has no room for one (the wire-format table in the external
// interface spec lists exactly four fields and no crc16 for ACK, unlike
// every other type), and the hardware nRF24-style radio already performs
// its own link-layer CRC for that frame.
const (
	LenSyncBeacon  = 11
	LenPairReq     = 13
	LenPairResp    = 14
	LenPairConfirm = 11
	LenData        = 20
	LenAck         = 4
)

// EncodeSyncBeacon writes a SYNC_BEACON frame into out, returning the
// number of bytes written.
func EncodeSyncBeacon(b SyncBeacon, out []byte) int {
	buf := out[:0]
	buf = append(buf, byte(FrameSyncBeacon))
	buf = binary.LittleEndian.AppendUint32(buf, b.Key)
	buf = binary.LittleEndian.AppendUint16(buf, b.FrameNumber)
	buf = append(buf, b.Channel, b.TrackerCount)
	buf = putCRC16LE(buf, buf)
	return len(buf)
}

// EncodePairReq writes a PAIR_REQ frame into out.
func EncodePairReq(r PairReq, out []byte) int {
	buf := out[:0]
	buf = append(buf, byte(FramePairReq), r.Version)
	buf = append(buf, r.Mac[:]...)
	buf = append(buf, r.ImuKind, r.FwMajor, r.FwMinor)
	buf = putCRC16LE(buf, buf)
	return len(buf)
}

// EncodePairResp writes a PAIR_RESP frame into out.
func EncodePairResp(r PairResp, out []byte) int {
	buf := out[:0]
	buf = append(buf, byte(FramePairResp), r.Slot)
	buf = append(buf, r.ReceiverMac[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, r.NetworkKey)
	buf = putCRC16LE(buf, buf)
	return len(buf)
}

// EncodePairConfirm writes a PAIR_CONFIRM frame into out.
func EncodePairConfirm(c PairConfirm, out []byte) int {
	buf := out[:0]
	buf = append(buf, byte(FramePairConfirm), c.Slot)
	buf = append(buf, c.Mac[:]...)
	buf = append(buf, c.Status)
	buf = putCRC16LE(buf, buf)
	return len(buf)
}

// EncodeData writes a DATA frame into out. TrackerID must fit in 6 bits
// ([0, 63]); callers validate against the configured N_MAX separately.
func EncodeData(d DataFrame, out []byte) int {
	buf := out[:0]
	header := (byte(FrameData) & dataHeaderMask) | (d.TrackerID & dataIDMask)
	buf = append(buf, header, d.Seq)
	for _, c := range d.Quat {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(c))
	}
	for _, c := range d.Accel {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(c))
	}
	buf = append(buf, d.Battery, d.Flags)
	buf = putCRC16LE(buf, buf)
	return len(buf)
}

// EncodeAck writes an ACK frame into out. ACK carries no CRC (see LenAck).
func EncodeAck(a Ack, out []byte) int {
	buf := out[:0]
	buf = append(buf, byte(FrameAck), a.TrackerID, a.Seq, a.Cmd)
	return len(buf)
}

// Decode inspects buf's leading type byte and dispatches to the matching
// frame decoder, returning the decoded value as one of SyncBeacon,
// PairReq, PairResp, PairConfirm, DataFrame or Ack.
func Decode(buf []byte) (FrameType, any, error) {
	if len(buf) == 0 {
		return 0, nil, newFrameError(ErrTruncatedFrame, "empty buffer")
	}

	header := buf[0]
	isData := header&dataHeaderMask == byte(FrameData)&dataHeaderMask
	// SYNC_BEACON (0x53) and ACK (0x41) share the DATA header's top bits,
	// so a header in that range is DATA only when the length says so.
	if isData && len(buf) == LenData {
		v, err := DecodeData(buf)
		return FrameData, v, err
	}

	switch FrameType(header) {
	case FrameSyncBeacon:
		v, err := DecodeSyncBeacon(buf)
		return FrameSyncBeacon, v, err
	case FramePairReq:
		v, err := DecodePairReq(buf)
		return FramePairReq, v, err
	case FramePairResp:
		v, err := DecodePairResp(buf)
		return FramePairResp, v, err
	case FramePairConfirm:
		v, err := DecodePairConfirm(buf)
		return FramePairConfirm, v, err
	case FrameAck:
		v, err := DecodeAck(buf)
		return FrameAck, v, err
	default:
		if isData {
			v, err := DecodeData(buf)
			return FrameData, v, err
		}
		return 0, nil, newFrameError(ErrUnknownType, "")
	}
}

// DataFrameSlotHint returns the tracker slot a DATA frame's header claims,
// without verifying the frame's CRC. It lets a receiver attribute a
// crc_errors counter (spec §4.3 step 1) to the right slot even when
// Decode itself rejects the frame for a bad checksum. ok is false if
// payload is too short to carry a header or the header's type tag isn't
// DATA's.
func DataFrameSlotHint(payload []byte) (slot byte, ok bool) {
	if len(payload) == 0 {
		return 0, false
	}
	header := payload[0]
	if header&dataHeaderMask != byte(FrameData)&dataHeaderMask {
		return 0, false
	}
	return header & dataIDMask, true
}

func verifyCRC(buf []byte) error {
	if len(buf) < 2 {
		return newFrameError(ErrTruncatedFrame, "no room for crc")
	}
	payload := buf[:len(buf)-2]
	want := readCRC16LE(buf[len(buf)-2:])
	got := CRC16(payload)
	if want != got {
		return newFrameError(ErrBadCRC, "")
	}
	return nil
}

// DecodeSyncBeacon decodes a SYNC_BEACON frame.
func DecodeSyncBeacon(buf []byte) (SyncBeacon, error) {
	if len(buf) != LenSyncBeacon {
		return SyncBeacon{}, newFrameError(ErrTruncatedFrame, "")
	}
	if err := verifyCRC(buf); err != nil {
		return SyncBeacon{}, err
	}
	return SyncBeacon{
		Key:          binary.LittleEndian.Uint32(buf[1:5]),
		FrameNumber:  binary.LittleEndian.Uint16(buf[5:7]),
		Channel:      buf[7],
		TrackerCount: buf[8],
	}, nil
}

// DecodePairReq decodes a PAIR_REQ frame.
func DecodePairReq(buf []byte) (PairReq, error) {
	if len(buf) != LenPairReq {
		return PairReq{}, newFrameError(ErrTruncatedFrame, "")
	}
	if err := verifyCRC(buf); err != nil {
		return PairReq{}, err
	}
	var r PairReq
	r.Version = buf[1]
	copy(r.Mac[:], buf[2:8])
	r.ImuKind = buf[8]
	r.FwMajor = buf[9]
	r.FwMinor = buf[10]
	return r, nil
}

// DecodePairResp decodes a PAIR_RESP frame.
func DecodePairResp(buf []byte) (PairResp, error) {
	if len(buf) != LenPairResp {
		return PairResp{}, newFrameError(ErrTruncatedFrame, "")
	}
	if err := verifyCRC(buf); err != nil {
		return PairResp{}, err
	}
	var r PairResp
	r.Slot = buf[1]
	copy(r.ReceiverMac[:], buf[2:8])
	r.NetworkKey = binary.LittleEndian.Uint32(buf[8:12])
	return r, nil
}

// DecodePairConfirm decodes a PAIR_CONFIRM frame.
func DecodePairConfirm(buf []byte) (PairConfirm, error) {
	if len(buf) != LenPairConfirm {
		return PairConfirm{}, newFrameError(ErrTruncatedFrame, "")
	}
	if err := verifyCRC(buf); err != nil {
		return PairConfirm{}, err
	}
	var c PairConfirm
	c.Slot = buf[1]
	copy(c.Mac[:], buf[2:8])
	c.Status = buf[8]
	return c, nil
}

// DecodeData decodes a DATA frame. The caller is responsible for checking
// TrackerID against the active slot table (spec §4.3 step 2); Decode
// itself only validates CRC and length.
func DecodeData(buf []byte) (DataFrame, error) {
	if len(buf) != LenData {
		return DataFrame{}, newFrameError(ErrTruncatedFrame, "")
	}
	if err := verifyCRC(buf); err != nil {
		return DataFrame{}, err
	}
	var d DataFrame
	d.TrackerID = buf[0] & dataIDMask
	d.Seq = buf[1]
	off := 2
	for i := range d.Quat {
		d.Quat[i] = int16(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
	}
	for i := range d.Accel {
		d.Accel[i] = int16(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
	}
	d.Battery = buf[off]
	d.Flags = buf[off+1]
	return d, nil
}

// DecodeAck decodes an ACK frame. There is no CRC to validate.
func DecodeAck(buf []byte) (Ack, error) {
	if len(buf) != LenAck {
		return Ack{}, newFrameError(ErrTruncatedFrame, "")
	}
	if FrameType(buf[0]) != FrameAck {
		return Ack{}, newFrameError(ErrUnknownType, "")
	}
	return Ack{TrackerID: buf[1], Seq: buf[2], Cmd: buf[3]}, nil
}
