package storage

import (
	"context"
	"errors"
)

// ErrChunkNotFound is returned when no chunk exists at the given index.
var ErrChunkNotFound = errors.New("chunk not found")

// ChunkStore holds encrypted audio chunks. Chunks are opaque ciphertext at
// this layer; encryption happens before Put and decryption after Get.
type ChunkStore interface {
	// Get fetches the encrypted bytes of one chunk.
	Get(ctx context.Context, trackID string, index int) ([]byte, error)
	// Put stores the encrypted bytes of one chunk.
	Put(ctx context.Context, trackID string, index int, data []byte) error
}
