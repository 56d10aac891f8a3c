// Package pairing implements the mirrored pairing protocol state machines
// described in spec §4.5: an asynchronous state machine on a dedicated
// pairing channel that allocates a tracker slot, exchanges the network
// key, and persists the binding on both peers.
//
// Per spec §9 Design Notes, the tracker and receiver sides are two
// separate, small finite-state machines sharing only internal/rf's
// codec — not a single generalized engine.
package pairing

import (
	"time"

	"github.com/google/uuid"
)

// SlotTable is the receiver-side binding table the pairing engine
// allocates from and activates into. mac.Receiver implements this so
// pairing never imports mac (mac imports pairing — spec §2's dependency
// order: "pairing depends on both [codec, persistence]; the two MACs
// depend on codec, persistence, and pairing").
type SlotTable interface {
	// FindSlot returns the slot already bound to mac, if any.
	FindSlot(mac [6]byte) (slot int, found bool)
	// AllocateFreeSlot returns the lowest-indexed inactive slot, if any.
	AllocateFreeSlot() (slot int, ok bool)
	// Activate commits mac into slot as of pairedTimeMs, persisting the
	// binding. A non-nil error means persistence failed and the slot must
	// NOT be considered active (spec §4.7).
	Activate(slot int, mac [6]byte, pairedTimeMs int64) error
}

// Status codes carried in PAIR_CONFIRM.
const (
	StatusOK    byte = 0
	StatusRetry byte = 1
)

// candidateTimeout bounds how long the receiver holds a pending
// (unconfirmed) candidate before releasing the slot back to Listening.
// It is the only deadline on the receiver side: ReceiverFSM never enters
// RxTimeout, and mac.Receiver stays in pairing mode until a session
// completes or ExitPairing is called.
const candidateTimeout = 2 * time.Second

// sessionID returns a fresh correlation id for a pairing attempt, used
// only for log correlation (grounded on l5tracks' use of uuid.UUID as a
// track identifier).
func sessionID() uuid.UUID {
	return uuid.New()
}
