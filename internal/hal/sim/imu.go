package sim

import (
	"math/rand"

	"github.com/openvrtrack/trackerlink/internal/hal"
)

// IMU is a software-generated IMU for tests and the demo binaries: each
// call to Sample advances a simple internal script (by default, a
// near-stationary device with injectable gyro bias and Gaussian noise) so
// internal/fusion can be exercised without real hardware.
type IMU struct {
	rng          *rand.Rand
	sampleRateHz int
	suspended    bool
	ready        bool
	timeUs       int64

	// GyroBiasRad is a constant per-axis offset added to every sample,
	// used by tests to verify rest-detection bias learning converges to
	// the injected value (spec §8 boundary scenario 6).
	GyroBiasRad [3]float32
	// GyroNoiseStdRad is the standard deviation of injected gyro noise.
	GyroNoiseStdRad float32
	// AccelG is the steady-state accelerometer reading (gravity vector),
	// typically {0, 0, 1} for a stationary, level device.
	AccelG [3]float32
	// AccelNoiseStdG is the standard deviation of injected accel noise.
	AccelNoiseStdG float32

	dataReadyFault bool
}

// NewIMU returns an IMU reporting a stationary, level device by default.
func NewIMU(seed int64) *IMU {
	return &IMU{
		rng:             rand.New(rand.NewSource(seed)),
		AccelG:          [3]float32{0, 0, 1},
		GyroNoiseStdRad: 0.0005,
		AccelNoiseStdG:  0.002,
	}
}

func (m *IMU) Configure(sampleRateHz int) error {
	m.sampleRateHz = sampleRateHz
	m.ready = true
	return nil
}

// InjectReadFault forces the next Sample call to fail, modeling a bus
// error (spec §4.7: "IMU read failure -> the sample is skipped").
func (m *IMU) InjectReadFault() {
	m.dataReadyFault = true
}

func (m *IMU) DataReady() bool {
	return m.ready && !m.suspended
}

func (m *IMU) Sample() (hal.IMUSample, error) {
	if m.dataReadyFault {
		m.dataReadyFault = false
		return hal.IMUSample{}, errSimulatedIMUFault
	}
	if m.sampleRateHz <= 0 {
		m.sampleRateHz = 200
	}
	m.timeUs += int64(1_000_000 / m.sampleRateHz)

	var s hal.IMUSample
	s.TimeUs = m.timeUs
	s.TempC = 25
	for i := 0; i < 3; i++ {
		s.GyroRad[i] = m.GyroBiasRad[i] + float32(m.rng.NormFloat64())*m.GyroNoiseStdRad
		s.AccelG[i] = m.AccelG[i] + float32(m.rng.NormFloat64())*m.AccelNoiseStdG
	}
	return s, nil
}

func (m *IMU) Suspend() error {
	m.suspended = true
	return nil
}

func (m *IMU) Resume() error {
	m.suspended = false
	return nil
}

func (m *IMU) SupportsWakeOnMotion() bool { return false }

func (m *IMU) EnableWakeOnMotion(thresholdG float32) error {
	return errWakeOnMotionUnsupported
}

type imuError string

func (e imuError) Error() string { return string(e) }

const (
	errSimulatedIMUFault        = imuError("hal/sim: simulated IMU read fault")
	errWakeOnMotionUnsupported  = imuError("hal/sim: wake-on-motion not supported by simulated IMU")
)
