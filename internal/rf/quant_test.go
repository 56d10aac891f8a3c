package rf

import (
	"math"
	"testing"
)

func TestEncodeQ15ClampsRange(t *testing.T) {
	q := EncodeQ15([4]float32{2, -2, 0.5, -0.5})
	if q[0] != 32767 || q[1] != -32767 {
		t.Fatalf("clamp failed: %v", q)
	}
}

func TestQ15RoundTripApprox(t *testing.T) {
	in := [4]float32{0.1, -0.2, 0.3, -0.927361}
	enc := EncodeQ15(in)
	dec := DecodeQ15(enc)
	for i := range in {
		if math.Abs(float64(in[i]-dec[i])) > 1.0/32767 {
			t.Fatalf("component %d: in=%v dec=%v", i, in[i], dec[i])
		}
	}
}

func unitQuat(w, x, y, z float32) [4]float32 {
	n := float32(math.Sqrt(float64(w*w + x*x + y*y + z*z)))
	return [4]float32{w / n, x / n, y / n, z / n}
}

func dot(a, b [4]float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestSmallestThreeRoundTripDotProduct(t *testing.T) {
	cases := [][4]float32{
		unitQuat(1, 0, 0, 0),
		unitQuat(0, 1, 0, 0),
		unitQuat(0, 0, 1, 0),
		unitQuat(0, 0, 0, 1),
		unitQuat(0.7, 0.5, 0.3, 0.1),
		unitQuat(-0.7, 0.5, -0.3, 0.1),
		unitQuat(0.1, 0.1, 0.1, 0.98),
	}
	for _, in := range cases {
		packed := EncodeSmallestThree(in)
		out := DecodeSmallestThree(packed)
		d := dot(in, out)
		if d < 0 {
			d = -d // q and -q are the same rotation; the encoder may negate
		}
		if d < 0.99998 {
			t.Fatalf("dot(%v, %v) = %v, want >= 0.99998", in, out, d)
		}
	}
}

func TestSmallestThreeRoundTripAxisAngle(t *testing.T) {
	// Every axis within ~0.002 rad of the input, per spec §4.1.
	in := unitQuat(0.6, 0.4, -0.5, 0.2)
	packed := EncodeSmallestThree(in)
	out := DecodeSmallestThree(packed)
	d := dot(in, out)
	if d > 1 {
		d = 1
	}
	angle := 2 * math.Acos(math.Abs(float64(d)))
	if angle > 0.002 {
		t.Fatalf("angular error %v rad, want <= 0.002", angle)
	}
}

func TestAccelFixed7RoundTrip(t *testing.T) {
	for _, mg := range []int32{0, 1000, -1000, 9800, -9800} {
		enc := EncodeAccelFixed7(mg)
		dec := DecodeAccelFixed7(enc)
		if diff := mg - dec; diff > 2 || diff < -2 {
			t.Fatalf("mg=%d round trip = %d", mg, dec)
		}
	}
}

func TestAccelFixed7Clamps(t *testing.T) {
	enc := EncodeAccelFixed7(1 << 30)
	if enc != math.MaxInt16 {
		t.Fatalf("enc = %d, want clamp to MaxInt16", enc)
	}
}
