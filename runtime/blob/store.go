// Package blob implements the content-addressed blob store (C4): user file
// payloads uploaded through the gateway are keyed by the SHA-256 of their
// content, so re-uploading identical bytes (a resubmitted image, a repeated
// audio attachment) never duplicates storage.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Ref identifies one stored blob: its content-addressed key, byte size, and
// the content type supplied at upload time (content type is not part of the
// address, so two uploads of the same bytes with different declared types
// collapse to the same key; each Put returns a Ref carrying the type its
// own caller supplied, and S3Store keeps the object's first-recorded type).
type Ref struct {
	Key         string
	Size        int64
	ContentType string
}

// Store is the content-addressed blob abstraction. Implementations (local
// filesystem, S3-compatible object storage) differ only in where bytes
// physically land; the addressing scheme is identical across both.
type Store interface {
	// Put uploads data, returning its Ref. If a blob with the same content
	// hash already exists, Put returns its existing Ref without writing
	// again (spec §4: "dedup by SHA-256").
	Put(ctx context.Context, data []byte, contentType string) (Ref, error)

	// Get retrieves the full content of the blob addressed by key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether a blob is already stored under key, without
	// retrieving its content.
	Exists(ctx context.Context, key string) (bool, error)
}

// keyFor computes the content-addressed key for data: the hex-encoded
// SHA-256 digest. Unlike runtime/domain's BLAKE2s content hash (used for
// Input/Version ids, where speed matters more than collision resistance
// against adversarial bytes), blob keys are derived from arbitrary
// user-supplied upload bytes, so SHA-256 is the appropriate primitive here.
func keyFor(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
