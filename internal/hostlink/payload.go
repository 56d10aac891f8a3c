package hostlink

import (
	"encoding/binary"

	"github.com/openvrtrack/trackerlink/internal/rf"
)

// TrackerSamplePayload is the host-upstream encoding of one tracker's
// aggregated pose+status, carried in a FrameTrackerSample frame. Unlike
// the per-frame RF DATA wire format (plain Q15, internal/rf.DataFrame),
// this uses the packed smallest-three quaternion encoding — the upstream
// link has no per-slot airtime budget to protect, so the extra bits
// saved here trade CPU for USB bandwidth instead (spec §6, §9: the two
// encodings are allowed to diverge in precision; this is the one place
// smallest-three is actually used).
type TrackerSamplePayload struct {
	Slot    byte
	Quat    uint32 // smallest-three packed quaternion
	Accel   [3]int16
	Battery byte
	Flags   byte
}

// payloadLen is the fixed wire size of TrackerSamplePayload: slot(1) +
// quat(4) + accel(6) + battery(1) + flags(1).
const payloadLen = 1 + 4 + 6 + 1 + 1

// Marshal encodes the payload onto the wire.
func (s TrackerSamplePayload) Marshal() []byte {
	out := make([]byte, payloadLen)
	out[0] = s.Slot
	binary.BigEndian.PutUint32(out[1:5], s.Quat)
	binary.BigEndian.PutUint16(out[5:7], uint16(s.Accel[0]))
	binary.BigEndian.PutUint16(out[7:9], uint16(s.Accel[1]))
	binary.BigEndian.PutUint16(out[9:11], uint16(s.Accel[2]))
	out[11] = s.Battery
	out[12] = s.Flags
	return out
}

// UnmarshalTrackerSamplePayload decodes a TrackerSamplePayload from buf.
func UnmarshalTrackerSamplePayload(buf []byte) (TrackerSamplePayload, error) {
	if len(buf) != payloadLen {
		return TrackerSamplePayload{}, ErrTruncated
	}
	return TrackerSamplePayload{
		Slot: buf[0],
		Quat: binary.BigEndian.Uint32(buf[1:5]),
		Accel: [3]int16{
			int16(binary.BigEndian.Uint16(buf[5:7])),
			int16(binary.BigEndian.Uint16(buf[7:9])),
			int16(binary.BigEndian.Uint16(buf[9:11])),
		},
		Battery: buf[11],
		Flags:   buf[12],
	}, nil
}

// FromQuaternion packs a (near-)unit quaternion via
// rf.EncodeSmallestThree for the Quat field.
func FromQuaternion(slot byte, q [4]float32, accel [3]int16, battery, flags byte) TrackerSamplePayload {
	return TrackerSamplePayload{
		Slot:    slot,
		Quat:    rf.EncodeSmallestThree(q),
		Accel:   accel,
		Battery: battery,
		Flags:   flags,
	}
}

// Quaternion unpacks the Quat field back to a unit quaternion.
func (s TrackerSamplePayload) Quaternion() [4]float32 {
	return rf.DecodeSmallestThree(s.Quat)
}
