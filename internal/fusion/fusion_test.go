package fusion

import (
	"math"
	"testing"
	"time"

	"github.com/openvrtrack/trackerlink/internal/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() Config {
	return Config{
		SampleRateHz:        200,
		ProcessVariance:     1e-6,
		MeasurementVariance: 1e-4,
		TauAccSec:           2.0,
		TauMagSec:           5.0,
	}
}

func yawOf(p *Pipeline) float64 {
	q := p.ahrs.Quaternion()
	return math.Atan2(2*(q.Real*q.Kmag+q.Imag*q.Jmag), 1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
}

// TestStationaryBiasConverges feeds 2s of zero-motion samples (gyro noise
// around a fixed bias, accel at 1g on Z) and checks the bias estimate
// converges to within 5% of the injected bias, then checks yaw drift over
// the next 10s stays under 0.01 rad (spec §8 boundary scenario 6).
func TestStationaryBiasConverges(t *testing.T) {
	p := NewPipeline(defaultConfig())
	const dt = 5 * time.Millisecond
	const injectedBias = float32(0.01) // rad/s

	now := time.Now()
	var timeUs int64
	feed := func(n int) {
		for i := 0; i < n; i++ {
			timeUs += dt.Microseconds()
			now = now.Add(dt)
			sample := hal.IMUSample{
				GyroRad: [3]float32{injectedBias, 0, 0},
				AccelG:  [3]float32{0, 0, 1},
				TimeUs:  timeUs,
			}
			p.Update(now, sample, nil)
		}
	}

	feed(int(2 * time.Second / dt))

	require.True(t, p.Resting(), "device should be declared at rest after 2s of zero motion")
	assert.InDelta(t, injectedBias, p.bias.bias[0], float64(injectedBias)*0.05+1e-4)

	yawBefore := yawOf(p)
	feed(int(10 * time.Second / dt))
	yawAfter := yawOf(p)

	drift := math.Abs(yawAfter - yawBefore)
	assert.Less(t, drift, 0.01, "yaw should not drift more than 0.01 rad over 10s once resting")
}

func TestRestDetectorConvergesThenClearsOnMotion(t *testing.T) {
	var d RestDetector
	now := time.Now()

	for i := 0; i < 250; i++ { // 250 * 5ms = 1.25s, under the 1.5s rest threshold
		now = now.Add(5 * time.Millisecond)
		assert.False(t, d.Update(now, [3]float32{0, 0, 0}, [3]float32{0, 0, 1}))
	}
	for i := 0; i < 100; i++ { // push past 1.5s total
		now = now.Add(5 * time.Millisecond)
		d.Update(now, [3]float32{0, 0, 0}, [3]float32{0, 0, 1})
	}
	assert.True(t, d.Resting())

	resting := d.Update(now.Add(time.Millisecond), [3]float32{1.0, 0, 0}, [3]float32{0, 0, 1})
	assert.False(t, resting, "a single over-threshold sample must clear resting immediately")
}

func TestAxisChainDeadzone(t *testing.T) {
	c := newAxisChain(1e-6, 1e-4)
	var out float32
	for i := 0; i < 50; i++ {
		out = c.push(0.00001)
	}
	assert.Equal(t, float32(0), out, "values under the deadzone threshold settle to exactly zero")
}

func TestMedianFilterRejectsSpike(t *testing.T) {
	var m medianFilter
	m.push(0.1)
	m.push(0.1)
	m.push(5.0) // spike
	m.push(0.1)
	got := m.push(0.1)
	assert.InDelta(t, 0.1, got, 1e-6)
}

func TestScalarKalmanSmooths(t *testing.T) {
	k := newScalarKalman(1e-6, 1e-2)
	k.push(0.5)
	var last float32
	for i := 0; i < 100; i++ {
		last = k.push(0.5)
	}
	assert.InDelta(t, 0.5, last, 0.05)
}
