package xrt

import (
	"github.com/google/uuid"
)

// UUIDSize is the size in bytes of the identifiers used by XRT (xuid_t).
const UUIDSize = 16

// UUID is the 16 bytes opaque identifier of an xclbin, or of the interface (shell) of a device.
//
// It holds the raw bytes as given by the runtime, no byte reordering is done. Use String for the
// canonical textual form.
type UUID [UUIDSize]byte

// UUIDFromBytes copies b into a UUID. It fails with MalformedInput if b is not exactly UUIDSize bytes.
func UUIDFromBytes(b []byte) (UUID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return UUID{}, Errorf(MalformedInput, "identifier must have exactly %d bytes, got %d", UUIDSize, len(b))
	}
	return UUID(u), nil
}

// ParseUUID parses the textual form of a UUID (e.g. "f4aa2c4e-0a0b-4c2c-a1b3-4f3e4f2e8d1a").
func ParseUUID(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, Errorf(MalformedInput, "invalid UUID %q: %v", s, err)
	}
	return UUID(u), nil
}

// Bytes returns a copy of the raw bytes of the UUID.
func (u UUID) Bytes() []byte {
	b := make([]byte, UUIDSize)
	copy(b, u[:])
	return b
}

// IsZero returns whether all bytes are zero, which is what XRT reports for a device with no xclbin loaded.
func (u UUID) IsZero() bool {
	return u == UUID{}
}

// String implements fmt.Stringer, in the canonical xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx form.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}
