package fusion

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// medianWindow and avgWindow are the fixed window sizes from spec §4.6
// steps 3-4 ("median filter, window 5"; "moving average, window 4").
const medianWindow = 5
const avgWindow = 4

// deadzoneRadPerSec is the ~0.07 mrad/s deadzone threshold from spec §4.6
// step 6, chosen to sit below IMU quantization noise.
const deadzoneRadPerSec = 0.07e-3

// medianFilter is a fixed-window running median over the last 5 samples.
type medianFilter struct {
	buf   [medianWindow]float32
	n     int
	write int
}

func (f *medianFilter) push(x float32) float32 {
	f.buf[f.write] = x
	f.write = (f.write + 1) % medianWindow
	if f.n < medianWindow {
		f.n++
	}
	var sorted [medianWindow]float32
	copy(sorted[:f.n], f.buf[:f.n])
	sort.Slice(sorted[:f.n], func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[f.n/2]
}

// movingAverage is a fixed-window running mean over the last 4 samples.
type movingAverage struct {
	buf   [avgWindow]float32
	n     int
	write int
	sum   float32
}

func (f *movingAverage) push(x float32) float32 {
	if f.n == avgWindow {
		f.sum -= f.buf[f.write]
	} else {
		f.n++
	}
	f.buf[f.write] = x
	f.sum += x
	f.write = (f.write + 1) % avgWindow
	return f.sum / float32(f.n)
}

// scalarKalman is a 1-D Kalman filter expressed with 1x1 gonum matrices,
// for idiomatic parity with how a vector Kalman filter is normally
// written (spec §4.6 step 5: "acts as adaptive low-pass whose measurement
// variance equals the per-axis noise floor measured during stationary
// calibration").
type scalarKalman struct {
	x *mat.Dense // [1x1] state estimate
	p *mat.Dense // [1x1] estimate covariance
	q float64    // process variance
	r float64    // measurement variance (noise floor)

	initialized bool
}

func newScalarKalman(processVar, measurementVar float64) *scalarKalman {
	return &scalarKalman{
		x: mat.NewDense(1, 1, []float64{0}),
		p: mat.NewDense(1, 1, []float64{1}),
		q: processVar,
		r: measurementVar,
	}
}

// setMeasurementVariance updates R from a freshly measured per-axis noise
// floor (spec §4.6: "measurement variance equals the per-axis noise floor
// measured during the stationary calibration").
func (k *scalarKalman) setMeasurementVariance(r float64) {
	k.r = r
}

func (k *scalarKalman) push(z float32) float32 {
	if !k.initialized {
		k.x.Set(0, 0, float64(z))
		k.initialized = true
		return z
	}

	// Predict: x' = x, P' = P + Q (no-motion process model for a gyro
	// rate, which has no deterministic drift term beyond process noise).
	pPred := k.p.At(0, 0) + k.q

	// Update: gain, state, covariance.
	gain := pPred / (pPred + k.r)
	innovation := float64(z) - k.x.At(0, 0)
	xNew := k.x.At(0, 0) + gain*innovation
	pNew := (1 - gain) * pPred

	k.x.Set(0, 0, xNew)
	k.p.Set(0, 0, pNew)
	return float32(xNew)
}

// deadzone clamps |x| below deadzoneRadPerSec to exactly zero (spec §4.6
// step 6).
func deadzone(x float32) float32 {
	if x > -deadzoneRadPerSec && x < deadzoneRadPerSec {
		return 0
	}
	return x
}

// axisChain is the per-axis filter chain: median → moving average →
// Kalman → deadzone (spec §4.6 steps 3-6). Bias subtraction and
// temperature compensation (steps 1-2) happen upstream in Pipeline.Update
// since they need calibration state shared across axes.
type axisChain struct {
	median  medianFilter
	average movingAverage
	kalman  *scalarKalman
}

func newAxisChain(processVar, measurementVar float64) *axisChain {
	return &axisChain{kalman: newScalarKalman(processVar, measurementVar)}
}

func (c *axisChain) push(x float32) float32 {
	x = c.median.push(x)
	x = c.average.push(x)
	x = c.kalman.push(x)
	return deadzone(x)
}
