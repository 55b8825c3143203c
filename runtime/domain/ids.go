package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewCompletionID returns a fresh UUIDv7 completion id. UUIDv7 embeds a
// millisecond timestamp in its top 48 bits, so CreatedAt can recover the
// completion's creation time without a separate column.
func NewCompletionID() (uuid.UUID, error) {
	return uuid.NewV7()
}

// CreatedAt extracts the creation timestamp embedded in a UUIDv7 value. It
// returns the zero Time if id is not a version-7 UUID.
func CreatedAt(id uuid.UUID) time.Time {
	if id.Version() != 7 {
		return time.Time{}
	}
	ms := int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 | int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
	return time.UnixMilli(ms).UTC()
}

// IsZero reports whether id is the all-zero UUID (uuid.Nil).
func IsZero(id uuid.UUID) bool {
	return id == uuid.Nil
}
