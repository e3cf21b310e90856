package syncedmem

// Residency records which memory space holds the authoritative copy of the
// buffer's bytes.
type Residency int

// Residency states.
const (
	// Uninitialized: no block allocated, no data yet.
	Uninitialized Residency = iota
	// HostFresh: the host block is authoritative; any device block is stale.
	HostFresh
	// DeviceFresh: the device block is authoritative; any host block is stale.
	DeviceFresh
	// Synced: both blocks exist and hold identical bytes.
	Synced
)

// String returns a human-readable state name.
func (r Residency) String() string {
	switch r {
	case Uninitialized:
		return "uninitialized"
	case HostFresh:
		return "host-fresh"
	case DeviceFresh:
		return "device-fresh"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}
