package fusion

import (
	"time"

	"github.com/openvrtrack/trackerlink/internal/hal"
	"github.com/openvrtrack/trackerlink/internal/rf"
)

// Config holds the tuning parameters for one Pipeline instance (spec
// §4.6 and §6 tunables).
type Config struct {
	SampleRateHz int

	// ProcessVariance and MeasurementVariance parameterize the per-axis
	// scalar Kalman filter (step 5). MeasurementVariance is normally
	// overwritten by SetNoiseFloor once stationary calibration completes.
	ProcessVariance     float64
	MeasurementVariance float64

	// TempCoeffRadPerSecPerC and CalibrationTempC implement the optional
	// temperature compensation term (spec §4.6 step 2); a zero coefficient
	// disables it.
	TempCoeffRadPerSecPerC [3]float32
	CalibrationTempC       float32

	// TauAccSec and TauMagSec are the AHRS accelerometer/magnetometer
	// time constants (spec §4.6: "gain β = sqrt(3/4)/τ").
	TauAccSec float64
	TauMagSec float64
}

// Pipeline is the full per-tracker fusion chain: bias/temp correction →
// per-axis filter chain → rest detection/ZUPT → AHRS → wire
// quantization. One Pipeline instance runs per tracker (spec §4.6).
type Pipeline struct {
	cfg Config

	axes [3]*axisChain
	rest RestDetector
	bias biasTracker
	ahrs *AHRS

	lastTimeUs   int64
	lastLinAccel [3]float32
	battery      byte
	flags        byte

	resting bool
}

// Sample is one quantized fusion output ready for the wire. It has the
// same shape as mac.Sample; internal/mac defines its own identical type
// and a small adapter converts between them at the call site in
// cmd/tracker-sim, the same interface-inversion pattern used between
// internal/pairing and internal/mac so neither internal/fusion nor
// internal/mac needs to import the other.
type Sample struct {
	Quat    [4]int16
	Accel   [3]int16
	Battery byte
	Flags   byte
}

// NewPipeline builds a Pipeline from cfg.
func NewPipeline(cfg Config) *Pipeline {
	p := &Pipeline{cfg: cfg, ahrs: NewAHRS(cfg.TauAccSec, cfg.TauMagSec)}
	for i := range p.axes {
		p.axes[i] = newAxisChain(cfg.ProcessVariance, cfg.MeasurementVariance)
	}
	return p
}

// SetNoiseFloor installs a freshly measured per-axis noise floor as the
// Kalman measurement variance (spec §4.6 step 5: "measurement variance
// equals the per-axis noise floor measured during the stationary
// calibration").
func (p *Pipeline) SetNoiseFloor(varianceRadPerSec2 [3]float64) {
	for i, v := range varianceRadPerSec2 {
		p.axes[i].kalman.setMeasurementVariance(v)
	}
}

// Resting reports whether the device is currently considered stationary
// (ZUPT engaged).
func (p *Pipeline) Resting() bool { return p.resting }

// SetBatteryAndFlags stashes the byte fields carried verbatim in the next
// DATA frame (battery percentage, status flags); these don't flow
// through the filter chain.
func (p *Pipeline) SetBatteryAndFlags(battery, flags byte) {
	p.battery = battery
	p.flags = flags
}

// Update consumes one IMU sample (and an optional magnetometer reading)
// and advances the whole chain. now is the caller's wall clock, used for
// the rest-detector's continuous-duration test; dt is derived from
// sample.TimeUs deltas so the filter runs at the IMU's true sample rate
// even if the main loop's poll cadence jitters.
func (p *Pipeline) Update(now time.Time, sample hal.IMUSample, magUT *[3]float32) {
	dtSec := 1.0 / float64(p.cfg.SampleRateHz)
	if p.lastTimeUs != 0 && sample.TimeUs > p.lastTimeUs {
		dtSec = float64(sample.TimeUs-p.lastTimeUs) / 1e6
	}
	p.lastTimeUs = sample.TimeUs

	raw := sample.GyroRad
	corrected := p.bias.subtract(raw)
	for i := range corrected {
		corrected[i] -= p.cfg.TempCoeffRadPerSecPerC[i] * (sample.TempC - p.cfg.CalibrationTempC)
	}

	var filtered [3]float32
	for i := range filtered {
		filtered[i] = p.axes[i].push(corrected[i])
	}

	p.resting = p.rest.Update(now, filtered, sample.AccelG)
	if p.resting {
		filtered = [3]float32{}
		p.bias.pullToward(raw)
	}

	_, lin := p.ahrs.Update(dtSec, filtered, sample.AccelG, magUT)
	p.lastLinAccel = lin
}

// Sample quantizes the current AHRS output onto the wire format used by
// internal/rf's DATA frame (Q15 quaternion, fixed-7 accel).
func (p *Pipeline) Sample() Sample {
	q := p.ahrs.Quaternion()
	quantQuat := rf.EncodeQ15([4]float32{float32(q.Real), float32(q.Imag), float32(q.Jmag), float32(q.Kmag)})

	var accel [3]int16
	for i := range accel {
		accel[i] = rf.EncodeAccelFixed7(int32(p.lastLinAccel[i] * 1000))
	}

	return Sample{Quat: quantQuat, Accel: accel, Battery: p.battery, Flags: p.flags}
}
