package capability

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrKeyNotFound = errors.New("api key not found")
	ErrKeyDisabled = errors.New("api key disabled")
	ErrBadSecret   = errors.New("api key secret mismatch")
)

// APIKey is a caller credential with an attached scope set. The secret is
// stored only as a bcrypt hash; the plaintext is shown once at creation.
type APIKey struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	SecretHash string
	Scopes     string // comma-separated permission names
	Disabled   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Registry manages API keys and resolves them to scope sets.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a registry backed by the given database.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Migrate creates the api_keys table.
func (r *Registry) Migrate() error {
	return r.db.AutoMigrate(&APIKey{})
}

// CreateKey mints a new API key with the given scopes and returns the key
// record plus the plaintext secret. The secret cannot be recovered later.
func (r *Registry) CreateKey(name string, scopes []Permission) (*APIKey, string, error) {
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash secret: %w", err)
	}

	key := &APIKey{
		ID:         uuid.New().String(),
		Name:       name,
		SecretHash: string(hash),
		Scopes:     Join(scopes),
	}
	if err := r.db.Create(key).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create api key: %w", err)
	}
	return key, secret, nil
}

// Authenticate resolves a key id + secret pair to its scope set.
func (r *Registry) Authenticate(keyID, secret string) ([]Permission, error) {
	var key APIKey
	err := r.db.Where("id = ?", keyID).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if key.Disabled {
		return nil, ErrKeyDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return nil, ErrBadSecret
	}

	scopes, err := ParsePermissions(key.Scopes)
	if err != nil {
		return nil, fmt.Errorf("stored scopes invalid: %w", err)
	}
	return scopes, nil
}

// Disable marks a key as unusable without deleting its audit trail.
func (r *Registry) Disable(keyID string) error {
	res := r.db.Model(&APIKey{}).Where("id = ?", keyID).Update("disabled", true)
	if res.Error != nil {
		return fmt.Errorf("database error: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}
