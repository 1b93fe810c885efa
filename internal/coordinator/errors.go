package coordinator

import "fmt"

// ProtocolViolation is a client-caused malformed-frame error: reported on
// the originating transport only, the session is not dropped (spec.md
// §7's "protocol violation" taxonomy entry).
type ProtocolViolation struct {
	Reason string
}

func (e ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

// StorageFailure wraps an error encountered while loading room state from
// durable storage during attach. Attach reports it to the client as an
// error frame, closes the transport, and returns it to its caller
// (spec.md §7's "storage failure during init").
type StorageFailure struct {
	Room string
	Err  error
}

func (e StorageFailure) Error() string {
	return fmt.Sprintf("storage failure initializing room %q: %v", e.Room, e.Err)
}

func (e StorageFailure) Unwrap() error { return e.Err }

// errorFrame is the JSON shape sent to a client on a protocol violation
// or an unexpected dispatch exception (spec.md §7).
type errorFrame struct {
	Error string `json:"error"`
}
