package watermark

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// Length is the watermark size in hex characters.
const Length = 16

// Marker derives short leak-attribution markers. A marker binds a user, a
// track, and an instant through a one-way digest: it attributes a leaked
// chunk to the serving session without being reversible to the user id.
// Markers are ephemeral; attribution storage is an external concern.
type Marker struct {
	now func() time.Time
}

// NewMarker creates a watermarker.
func NewMarker() *Marker {
	return &Marker{now: time.Now}
}

// Mark returns a 16-hex-character watermark for this user, track, and
// instant. Repeated calls with the same inputs produce different values;
// the nanosecond timestamp and a random component prevent replay correlation.
func (m *Marker) Mark(userID, trackID string) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(m.now().UnixNano()))
	// Random tail guards against clock-resolution collisions under burst load.
	if _, err := rand.Read(buf[8:]); err != nil {
		// crypto/rand failure leaves the timestamp as the only entropy source;
		// the digest still varies per nanosecond.
		copy(buf[8:], buf[:8])
	}

	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(trackID))
	h.Write([]byte{0})
	h.Write(buf[:])

	return hex.EncodeToString(h.Sum(nil))[:Length]
}
