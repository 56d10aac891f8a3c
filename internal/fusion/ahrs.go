package fusion

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// biasAdaptSampleGate is the sample count after which the slow gyro-bias
// adaptation term engages (spec §4.6: "After ≥ 200 samples a slow
// gyro-bias adaptation term is applied").
const biasAdaptSampleGate = 200

// gyroBiasAdaptGain is the gain on that adaptation term (spec §4.6: "gain
// ≈ 1e-4").
const gyroBiasAdaptGain = 1e-4

// quatNormFloor is the renormalization floor below which the quaternion
// is considered degenerate and reset to identity (spec §4.6).
const quatNormFloor = 1e-10

// AHRS is a Mahony-style complementary orientation filter: quaternion
// derivative from corrected gyro, a proportional correction pulling the
// estimated "down" direction toward the (low-pass filtered) measured
// accelerometer, and an optional magnetometer-derived heading correction
// (spec §4.6 "AHRS (Madgwick-style)" paragraph — the verbal description
// there, a proportional correction plus a slowly-adapted bias term from
// the accelerometer error, is the Mahony filter's structure; Madgwick's
// own β naming is kept for the accel/mag gain per the spec's formula).
type AHRS struct {
	q quat.Number

	betaAcc float64
	betaMag float64

	lpfAccel    [3]float32
	accelCoeff0 bool // whether lpfAccel has been seeded yet

	bias        [3]float64
	sampleCount uint64
}

// NewAHRS builds an AHRS with gain β = sqrt(3/4)/τ for the accelerometer
// time constant tauAccSec, and the same formula for the optional
// magnetometer time constant tauMagSec (spec §4.6).
func NewAHRS(tauAccSec, tauMagSec float64) *AHRS {
	return &AHRS{
		q:       quat.Number{Real: 1},
		betaAcc: math.Sqrt(3.0/4.0) / tauAccSec,
		betaMag: math.Sqrt(3.0/4.0) / tauMagSec,
	}
}

// Quaternion returns the current orientation estimate.
func (a *AHRS) Quaternion() quat.Number { return a.q }

// Reset returns the filter to identity orientation and clears the sample
// counter (used both by the 1e-10 norm-floor reset and by explicit
// recalibration).
func (a *AHRS) Reset() {
	a.q = quat.Number{Real: 1}
	a.sampleCount = 0
	a.bias = [3]float64{}
	a.lpfAccel = [3]float32{}
	a.accelCoeff0 = false
}

// Update advances the filter by one sample. gyroRad is the
// already-filtered angular rate (post axisChain). accelG is the raw
// accelerometer reading in g; magUT is the raw magnetometer reading in
// microtesla, or nil if this tracker has no magnetometer (spec §4.6:
// "optional magnetometer"). It returns the updated quaternion and the
// linear acceleration (measured accel minus the rotated gravity
// estimate).
func (a *AHRS) Update(dtSec float64, gyroRad [3]float32, accelG [3]float32, magUT *[3]float32) (quat.Number, [3]float32) {
	// Low-pass the accelerometer before gravity correction (spec §4.6:
	// "coefficient dt/(τ+dt)").
	coeff := float32(dtSec / (math.Sqrt(3.0/4.0)/a.betaAcc + dtSec))
	if !a.accelCoeff0 {
		a.lpfAccel = accelG
		a.accelCoeff0 = true
	} else {
		for i := range a.lpfAccel {
			a.lpfAccel[i] += coeff * (accelG[i] - a.lpfAccel[i])
		}
	}

	correctedGyro := [3]float64{
		float64(gyroRad[0]) - a.bias[0],
		float64(gyroRad[1]) - a.bias[1],
		float64(gyroRad[2]) - a.bias[2],
	}

	q0, q1, q2, q3 := a.q.Real, a.q.Imag, a.q.Jmag, a.q.Kmag

	// Estimated direction of gravity in the body frame from the current
	// orientation.
	vx := 2 * (q1*q3 - q0*q2)
	vy := 2 * (q0*q1 + q2*q3)
	vz := q0*q0 - q1*q1 - q2*q2 + q3*q3

	if accelNorm := vecNorm(a.lpfAccel); accelNorm > 1e-6 {
		ax := float64(a.lpfAccel[0]) / float64(accelNorm)
		ay := float64(a.lpfAccel[1]) / float64(accelNorm)
		az := float64(a.lpfAccel[2]) / float64(accelNorm)

		ex, ey, ez := cross3(ax, ay, az, vx, vy, vz)

		correctedGyro[0] += a.betaAcc * ex
		correctedGyro[1] += a.betaAcc * ey
		correctedGyro[2] += a.betaAcc * ez

		if a.sampleCount >= biasAdaptSampleGate {
			a.bias[0] += gyroBiasAdaptGain * ex
			a.bias[1] += gyroBiasAdaptGain * ey
			a.bias[2] += gyroBiasAdaptGain * ez
		}

		if magUT != nil {
			if yawErr, ok := a.headingError(*magUT, ax, ay, az); ok {
				correctedGyro[2] += a.betaMag * yawErr
			}
		}
	}

	omega := quat.Number{Imag: correctedGyro[0], Jmag: correctedGyro[1], Kmag: correctedGyro[2]}
	qDot := quat.Scale(0.5, quat.Mul(a.q, omega))
	a.q = quat.Add(a.q, quat.Scale(dtSec, qDot))
	a.renormalize()
	a.sampleCount++

	linAccel := [3]float32{
		accelG[0] - float32(vx),
		accelG[1] - float32(vy),
		accelG[2] - float32(vz),
	}
	return a.q, linAccel
}

// headingError computes a tilt-compensated compass heading from the
// magnetometer and current roll/pitch, and returns its signed angular
// difference (rad) from the quaternion's own yaw estimate.
func (a *AHRS) headingError(magUT [3]float32, ax, ay, az float64) (float64, bool) {
	norm := vecNorm(magUT)
	if norm < 1e-6 {
		return 0, false
	}
	mx := float64(magUT[0]) / float64(norm)
	my := float64(magUT[1]) / float64(norm)
	mz := float64(magUT[2]) / float64(norm)

	roll := math.Atan2(ay, az)
	pitch := math.Asin(clamp(-ax, -1, 1))

	mxp := mx*math.Cos(pitch) + mz*math.Sin(pitch)
	myp := mx*math.Sin(roll)*math.Sin(pitch) + my*math.Cos(roll) - mz*math.Sin(roll)*math.Cos(pitch)
	measuredHeading := math.Atan2(-myp, mxp)

	q0, q1, q2, q3 := a.q.Real, a.q.Imag, a.q.Jmag, a.q.Kmag
	estimatedHeading := math.Atan2(2*(q0*q3+q1*q2), 1-2*(q2*q2+q3*q3))

	diff := measuredHeading - estimatedHeading
	for diff > math.Pi {
		diff -= 2 * math.Pi
	}
	for diff < -math.Pi {
		diff += 2 * math.Pi
	}
	return diff, true
}

// renormalize restores unit length via a Quake-style fast inverse square
// root (spec §4.6: "renormalized via a fast reciprocal square root"); a
// norm below quatNormFloor is treated as numerically degenerate and the
// filter is reset to identity.
func (a *AHRS) renormalize() {
	normSq := a.q.Real*a.q.Real + a.q.Imag*a.q.Imag + a.q.Jmag*a.q.Jmag + a.q.Kmag*a.q.Kmag
	if math.Sqrt(normSq) < quatNormFloor {
		a.Reset()
		return
	}
	invNorm := fastInverseSqrt(normSq)
	a.q = quat.Scale(invNorm, a.q)
}

// fastInverseSqrt is the classic Quake III bit-hack approximation of
// 1/sqrt(x), refined by one Newton-Raphson iteration.
func fastInverseSqrt(x float64) float64 {
	xf := float32(x)
	half := xf * 0.5
	bits := math.Float32bits(xf)
	bits = 0x5f3759df - (bits >> 1)
	y := math.Float32frombits(bits)
	y = y * (1.5 - half*y*y)
	return float64(y)
}

func cross3(ax, ay, az, bx, by, bz float64) (float64, float64, float64) {
	return ay*bz - az*by, az*bx - ax*bz, ax*by - ay*bx
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
