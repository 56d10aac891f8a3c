package rf

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Run("SyncBeacon", func(t *testing.T) {
		in := SyncBeacon{Key: 0xCAFEBABE, FrameNumber: 42, Channel: 7, TrackerCount: 3}
		buf := make([]byte, LenSyncBeacon)
		n := EncodeSyncBeacon(in, buf)
		if n != LenSyncBeacon {
			t.Fatalf("len = %d, want %d", n, LenSyncBeacon)
		}
		out, err := DecodeSyncBeacon(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(in, out); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("PairReq", func(t *testing.T) {
		in := PairReq{Version: 2, Mac: [6]byte{1, 2, 3, 4, 5, 6}, ImuKind: 9, FwMajor: 1, FwMinor: 4}
		buf := make([]byte, LenPairReq)
		n := EncodePairReq(in, buf)
		out, err := DecodePairReq(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(in, out); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("PairResp", func(t *testing.T) {
		in := PairResp{Slot: 3, ReceiverMac: [6]byte{9, 8, 7, 6, 5, 4}, NetworkKey: 0x11223344}
		buf := make([]byte, LenPairResp)
		n := EncodePairResp(in, buf)
		out, err := DecodePairResp(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(in, out); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("PairConfirm", func(t *testing.T) {
		in := PairConfirm{Slot: 3, Mac: [6]byte{1, 1, 1, 1, 1, 1}, Status: 1}
		buf := make([]byte, LenPairConfirm)
		n := EncodePairConfirm(in, buf)
		out, err := DecodePairConfirm(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(in, out); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Data", func(t *testing.T) {
		in := DataFrame{
			TrackerID: 5,
			Seq:       200,
			Quat:      [4]int16{32767, -100, 0, 12345},
			Accel:     [3]int16{-5000, 0, 9800},
			Battery:   80,
			Flags:     0x01,
		}
		buf := make([]byte, LenData)
		n := EncodeData(in, buf)
		if n != LenData {
			t.Fatalf("len = %d, want %d", n, LenData)
		}
		out, err := DecodeData(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(in, out); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Ack", func(t *testing.T) {
		in := Ack{TrackerID: 5, Seq: 3, Cmd: 0}
		buf := make([]byte, LenAck)
		n := EncodeAck(in, buf)
		out, err := DecodeAck(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(in, out); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDecodeDispatch(t *testing.T) {
	buf := make([]byte, LenData)
	EncodeData(DataFrame{TrackerID: 9, Seq: 1}, buf)
	typ, v, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if typ != FrameData {
		t.Fatalf("type = %v, want DATA", typ)
	}
	df, ok := v.(DataFrame)
	if !ok || df.TrackerID != 9 {
		t.Fatalf("decoded value = %#v", v)
	}
}

func TestDecodeBadCRC(t *testing.T) {
	buf := make([]byte, LenData)
	EncodeData(DataFrame{TrackerID: 1, Seq: 5}, buf)
	buf[3] ^= 0xFF // flip a payload bit, leave CRC untouched

	_, _, err := Decode(buf)
	ferr, ok := err.(*FrameError)
	if !ok {
		t.Fatalf("err = %v, want *FrameError", err)
	}
	if ferr.Kind != ErrBadCRC {
		t.Fatalf("kind = %v, want ErrBadCRC", ferr.Kind)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := Decode([]byte{0x54, 0x01})
	ferr, ok := err.(*FrameError)
	if !ok || ferr.Kind != ErrTruncatedFrame {
		t.Fatalf("err = %v, want ErrTruncatedFrame", err)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	buf := []byte{0x99, 0, 0, 0}
	_, _, err := Decode(buf)
	ferr, ok := err.(*FrameError)
	if !ok || ferr.Kind != ErrUnknownType {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestDataTrackerIDOutOfSlotRange(t *testing.T) {
	// Header low 6 bits allow IDs 0..63; callers reject >= N_MAX
	// themselves (spec §4.3 step 2) since the codec has no notion of
	// N_MAX. Verify the codec preserves whatever ID was carried.
	buf := make([]byte, LenData)
	EncodeData(DataFrame{TrackerID: 63, Seq: 1}, buf)
	out, err := DecodeData(buf)
	if err != nil {
		t.Fatal(err)
	}
	if out.TrackerID != 63 {
		t.Fatalf("TrackerID = %d, want 63", out.TrackerID)
	}
}
