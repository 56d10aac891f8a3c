package fusion

import (
	"math"
	"time"
)

// Rest-detection thresholds and timing from spec §4.6 "Rest detection":
// gyro magnitude under 0.02 rad/s and |accel magnitude - 1g| under 0.05 g,
// continuously for REST_TIME_MS (~1.5 s).
const (
	restGyroThresholdRadPerSec = 0.02
	restAccelThresholdG        = 0.05
	restTimeMs                 = 1500 * time.Millisecond
	biasGain                   = 1e-3
)

// RestDetector implements the zero-velocity-update (ZUPT) rest test: both
// the gyro and accelerometer must stay under threshold continuously for
// restTimeMs before the device is declared stationary. A single
// over-threshold sample immediately clears the flag (spec §4.6: "Any
// sample exceeding threshold immediately clears the resting flag").
type RestDetector struct {
	belowSince time.Time
	resting    bool
}

// Update evaluates one sample's magnitude against the thresholds and
// returns whether the device is currently considered at rest.
func (d *RestDetector) Update(now time.Time, gyroRad, accelG [3]float32) bool {
	gyroNorm := vecNorm(gyroRad)
	accelDev := float32(math.Abs(float64(vecNorm(accelG) - 1)))

	if gyroNorm < restGyroThresholdRadPerSec && accelDev < restAccelThresholdG {
		if d.belowSince.IsZero() {
			d.belowSince = now
		}
		if now.Sub(d.belowSince) >= restTimeMs {
			d.resting = true
		}
	} else {
		d.belowSince = time.Time{}
		d.resting = false
	}
	return d.resting
}

// Resting reports the last computed rest state without evaluating a new
// sample.
func (d *RestDetector) Resting() bool { return d.resting }

func vecNorm(v [3]float32) float32 {
	sum := float64(v[0])*float64(v[0]) + float64(v[1])*float64(v[1]) + float64(v[2])*float64(v[2])
	return float32(math.Sqrt(sum))
}

// biasTracker holds the per-axis gyro bias estimate, pulled slowly toward
// the raw (pre-filter) reading while the device is at rest (spec §4.6:
// "bias estimate is slowly pulled toward the raw reading with gain α ≈
// 1e-3 per sample").
type biasTracker struct {
	bias [3]float32
}

func (b *biasTracker) pullToward(rawGyroRad [3]float32) {
	for i := range b.bias {
		b.bias[i] += biasGain * (rawGyroRad[i] - b.bias[i])
	}
}

func (b *biasTracker) subtract(gyroRad [3]float32) [3]float32 {
	return [3]float32{gyroRad[0] - b.bias[0], gyroRad[1] - b.bias[1], gyroRad[2] - b.bias[2]}
}
