package sim

import (
	"sync"

	"github.com/openvrtrack/trackerlink/internal/hal"
)

// Medium is a shared software "RF channel": every RadioPHY tuned to the
// same channel at transmit time receives a copy of the frame, with the
// same per-peer RSSI each receiver would see. It exists purely so
// internal/mac and internal/pairing can be exercised end to end (tracker
// against receiver) inside a single process and its tests.
type Medium struct {
	mu    sync.Mutex
	peers map[*RadioPHY]struct{}
}

// NewMedium creates an empty shared medium.
func NewMedium() *Medium {
	return &Medium{peers: make(map[*RadioPHY]struct{})}
}

func (m *Medium) attach(p *RadioPHY) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[p] = struct{}{}
}

func (m *Medium) broadcast(from *RadioPHY, frame hal.RFFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := range m.peers {
		if p == from || p.channel != from.channel {
			continue
		}
		cp := hal.RFFrame{
			Payload:  append([]byte(nil), frame.Payload...),
			RSSI:     p.rssiFor(from),
			RxTimeUs: p.clock.NowMicros(),
		}
		select {
		case p.rx <- cp:
		default:
			// Receiver's queue is full; the frame is simply lost, the
			// same as a real over-the-air collision or a receiver that
			// isn't polling in time.
		}
	}
}

// RadioPHY is a hal.RadioPHY backed by a shared Medium.
type RadioPHY struct {
	medium  *Medium
	clock   *Clock
	channel byte
	rssi    int8
	rx      chan hal.RFFrame
}

// NewRadioPHY attaches a new simulated radio to medium with a fixed RSSI
// reported to every peer (good enough for MAC/pairing logic, which only
// needs *a* number to carry, not an accurate propagation model).
func NewRadioPHY(medium *Medium, clock *Clock, rssi int8) *RadioPHY {
	p := &RadioPHY{
		medium: medium,
		clock:  clock,
		rssi:   rssi,
		rx:     make(chan hal.RFFrame, 16),
	}
	medium.attach(p)
	return p
}

func (p *RadioPHY) rssiFor(from *RadioPHY) int8 {
	return from.rssi
}

func (p *RadioPHY) SetChannel(ch byte) error {
	p.channel = ch
	return nil
}

func (p *RadioPHY) Transmit(payload []byte) error {
	p.medium.broadcast(p, hal.RFFrame{Payload: payload})
	return nil
}

func (p *RadioPHY) EnterRX() error {
	return nil
}

func (p *RadioPHY) Receive() (hal.RFFrame, bool, error) {
	select {
	case f := <-p.rx:
		return f, true, nil
	default:
		return hal.RFFrame{}, false, nil
	}
}

func (p *RadioPHY) NowMicros() int64 {
	return p.clock.NowMicros()
}
