// Package hal defines the hardware abstraction boundary named in spec §1:
// GPIO, SPI/I2C register I/O, flash, clocks, IMU and radio PHY are all
// external collaborators whose interface (not implementation) is part of
// the core's contract. Concrete implementations live under hal/sim for
// this hosted Go build; a real firmware build would satisfy the same
// interfaces against silicon.
package hal

import "time"

// Clock gives the core access to a monotonic, microsecond-accurate local
// clock (spec §4.3's "microsecond clock" reference point for jitter, and
// §5's wait-for-interrupt timeout guards).
type Clock interface {
	NowMicros() int64
	NowMillis() int64
	// Sleep blocks (or, on real hardware, enters wait-for-interrupt) for
	// at most d, returning early if woken by an interrupt-side event; the
	// core never treats early wake as an error.
	Sleep(d time.Duration)
}

// MacAddressReader reads this device's unique 6-byte hardware address.
type MacAddressReader interface {
	ReadMacAddress() ([6]byte, error)
}

// EntropySource supplies random bytes for NetworkKey generation (spec §3:
// "hardware entropy source... falling back to an LFSR seeded by MAC +
// boot time"). A hardware TRNG and the LFSR fallback are both
// EntropySources; callers don't care which.
type EntropySource interface {
	ReadEntropy(buf []byte) error
}

// GPIO is a single digital pin.
type GPIO interface {
	SetHigh()
	SetLow()
	Read() bool
}

// Bus is the shared SPI/I2C register-level transport to the radio and IMU
// (spec §5: "mutually exclusive to the main loop"). Reg is a device
// register address; Write and Read operate on that register's bytes.
type Bus interface {
	WriteReg(reg byte, data []byte) error
	ReadReg(reg byte, out []byte) error
}

// Flash is a page-erase NVM abstraction (spec §4.2). Offsets and lengths
// are in bytes; Erase requires page alignment, and implementations return
// an error for an unaligned Erase.
type Flash interface {
	Read(offset uint32, out []byte) error
	Erase(offset uint32, length uint32) error
	Write(offset uint32, buf []byte) error
	PageSize() uint32
	Size() uint32
}

// IMUSample is one gyro+accel(+temp) reading.
type IMUSample struct {
	GyroRad  [3]float32 // rad/s, per axis
	AccelG   [3]float32 // g, per axis
	TempC    float32
	TimeUs   int64
}

// IMU abstracts "configure, sample gyro/accel/temperature, interrupt on
// data-ready, suspend/resume, optional wake-on-motion" (spec §1).
type IMU interface {
	Configure(sampleRateHz int) error
	Sample() (IMUSample, error)
	// DataReady reports whether a new sample is available; the main loop
	// polls this (or is woken by the data-ready interrupt top-half
	// setting a flag the main loop observes — spec §5) rather than
	// blocking here.
	DataReady() bool
	Suspend() error
	Resume() error
	// SupportsWakeOnMotion reports whether EnableWakeOnMotion is usable.
	SupportsWakeOnMotion() bool
	EnableWakeOnMotion(thresholdG float32) error
}

// RFFrame is a single over-the-air transmission: payload bytes plus the
// receive-side metadata (RSSI, reception timestamp) a receive call fills
// in.
type RFFrame struct {
	Payload []byte
	RSSI    int8
	RxTimeUs int64
}

// RadioPHY abstracts the 2.4 GHz radio: set channel, transmit a byte
// buffer, enter RX, poll-or-interrupt receive returning buffer + RSSI,
// microsecond-accurate local clock (spec §1).
type RadioPHY interface {
	SetChannel(ch byte) error
	Transmit(payload []byte) error
	EnterRX() error
	// Receive returns the next frame received while in RX mode, or
	// ok == false if none arrived within the implementation's internal
	// poll budget. It never blocks past that budget.
	Receive() (frame RFFrame, ok bool, err error)
	NowMicros() int64
}
