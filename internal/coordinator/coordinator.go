// Package coordinator implements the room session coordinator: the
// attach sequence, steady-state per-frame dispatch table, dead-hand
// cleanup, and the error-propagation wrapper described in spec.md §4 and
// §7. It is the glue between an external HTTP front end, the transport
// session, and the per-room actor.
package coordinator

import (
	"time"

	"github.com/pion/logging"

	"roomcoordinator/internal/roomreg"
)

// Coordinator attaches sessions into rooms and routes their traffic.
type Coordinator struct {
	rooms       *roomreg.Manager
	logger      logging.LeveledLogger
	lockTimeout time.Duration
}

// New constructs a Coordinator backed by rooms. lockTimeout, if positive,
// is how long a queued LockRequest waits before its originator receives a
// LockTimeout notice (config.Config.LockTimeout); zero disables the notice.
func New(rooms *roomreg.Manager, logger logging.LeveledLogger, lockTimeout time.Duration) *Coordinator {
	return &Coordinator{rooms: rooms, logger: logger, lockTimeout: lockTimeout}
}
