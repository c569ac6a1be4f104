package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrTrackNotFound covers both missing and non-streamable tracks: from the
// protection subsystem's point of view they are the same condition,
// independent of token validity.
var ErrTrackNotFound = errors.New("track not found")

// Track is the catalog record this subsystem reads. The catalog itself is
// owned by the wider platform; only lookup is exercised here.
type Track struct {
	ID         string `gorm:"primaryKey"`
	Title      string
	ChunkCount int
	Streamable bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Catalog answers whether a track exists and may be streamed.
type Catalog interface {
	Lookup(ctx context.Context, trackID string) (*Track, error)
}

// GormCatalog reads tracks from the platform database.
type GormCatalog struct {
	db *gorm.DB
}

// NewGormCatalog creates a database-backed catalog.
func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

// Migrate creates the tracks table. Used by dev tooling; production owns
// this schema elsewhere.
func (c *GormCatalog) Migrate() error {
	return c.db.AutoMigrate(&Track{})
}

// Lookup returns the track if it exists and is streamable.
func (c *GormCatalog) Lookup(ctx context.Context, trackID string) (*Track, error) {
	var track Track
	err := c.db.WithContext(ctx).Where("id = ?", trackID).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !track.Streamable {
		return nil, ErrTrackNotFound
	}
	return &track, nil
}

// MemoryCatalog is an in-memory catalog for tests and development.
type MemoryCatalog struct {
	mu     sync.RWMutex
	tracks map[string]Track
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{tracks: make(map[string]Track)}
}

// Put inserts or replaces a track.
func (c *MemoryCatalog) Put(track Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks[track.ID] = track
}

// Lookup returns the track if it exists and is streamable.
func (c *MemoryCatalog) Lookup(_ context.Context, trackID string) (*Track, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	track, ok := c.tracks[trackID]
	if !ok || !track.Streamable {
		return nil, ErrTrackNotFound
	}
	return &track, nil
}
