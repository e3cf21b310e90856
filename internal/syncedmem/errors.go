package syncedmem

import "errors"

// Contract violations. A SyncedMemory never returns these; it panics with a
// *FatalError wrapping one of them.
var (
	ErrInvalidSize       = errors.New("invalid buffer size")
	ErrDeviceUnavailable = errors.New("device support unavailable")
	ErrDeviceMismatch    = errors.New("device affinity mismatch")
	ErrNilBlock          = errors.New("nil block")
	ErrNilStream         = errors.New("nil stream")
	ErrSizeMismatch      = errors.New("block smaller than buffer size")
	ErrNotHostFresh      = errors.New("async push requires host-fresh data")
	ErrAllocation        = errors.New("allocator failure")
	ErrTransfer          = errors.New("transfer failure")
	ErrReleased          = errors.New("buffer already released")
)

// FatalError is the panic value raised when a SyncedMemory detects misuse
// or a failing collaborator.
type FatalError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *FatalError) Error() string {
	return "syncedmem: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}
