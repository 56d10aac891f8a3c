package hostlink

import (
	"time"

	"go.bug.st/serial"
)

// Port wraps a USB-CDC serial connection to the host, framing every
// write per spec §6. Grounded on serial.go's RadarPort (open with a
// serial.Mode, wrap a serial.Port), but synchronous rather than
// channel+goroutine driven: the receiver-sim main loop polls this Port
// on the same cooperative cycle as the MAC/pairing core (spec §5), so
// reads use a short SetReadTimeout instead of a background reader
// goroutine.
type Port struct {
	port serial.Port
}

// Open opens portName at baud 115200 (matching RadarPort's mode) and
// configures a short read timeout so Poll never blocks the caller's main
// loop for long.
func Open(portName string) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(5 * time.Millisecond); err != nil {
		port.Close()
		return nil, err
	}
	return &Port{port: port}, nil
}

// Close closes the underlying serial port.
func (p *Port) Close() error { return p.port.Close() }

// SendTrackerSample writes one FrameTrackerSample upstream frame.
func (p *Port) SendTrackerSample(s TrackerSamplePayload) error {
	return p.writeFrame(FrameTrackerSample, s.Marshal())
}

// SendPairingEvent writes one FramePairingEvent upstream frame.
func (p *Port) SendPairingEvent(payload []byte) error {
	return p.writeFrame(FramePairingEvent, payload)
}

// SendHeartbeat writes an empty-payload heartbeat frame.
func (p *Port) SendHeartbeat() error {
	return p.writeFrame(FrameHeartbeat, nil)
}

func (p *Port) writeFrame(frameType FrameType, payload []byte) error {
	buf := make([]byte, 5+len(payload))
	n, err := Encode(frameType, payload, buf)
	if err != nil {
		return err
	}
	_, err = p.port.Write(buf[:n])
	return err
}

// Poll performs one non-blocking-ish read attempt (bounded by the read
// timeout set in Open) and decodes as many complete frames as are
// buffered, invoking handle for each. Bytes that do not decode as a
// complete frame (a partial frame or garbage) end the pass and are
// dropped; they are not carried over to the next Poll. Used for the rare host->receiver
// direction (e.g. an explicit factory-reset command sent down from a
// host tool); most traffic flows receiver->host.
func (p *Port) Poll(handle func(FrameType, []byte)) error {
	buf := make([]byte, 512)
	n, err := p.port.Read(buf)
	if err != nil {
		return err
	}
	remaining := buf[:n]
	for len(remaining) > 0 {
		frameType, payload, consumed, err := Decode(remaining)
		if err != nil {
			return nil // partial/garbage tail; dropped with this read's buffer
		}
		handle(frameType, payload)
		remaining = remaining[consumed:]
	}
	return nil
}
