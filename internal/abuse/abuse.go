package abuse

import (
	"net"
	"sync"
	"time"
)

// Verdict reasons reported for observability.
const (
	ReasonVelocity    = "velocity"
	ReasonConcurrency = "concurrency"
	ReasonRepetition  = "repetition"
)

// Thresholds is the abuse-detection configuration surface. Every value is
// overridable from the environment; see DefaultThresholds for the defaults.
type Thresholds struct {
	// Velocity: more than TrackRequestLimit requests for one track inside
	// TrackRequestWindow flags abuse.
	TrackRequestLimit  int
	TrackRequestWindow time.Duration

	// Impossible concurrency: DistinctOriginLimit or more materially
	// different network origins for one identity inside ConcurrencyWindow.
	DistinctOriginLimit int
	ConcurrencyWindow   time.Duration

	// Pattern repetition: the same chunk index requested ChunkRepeatLimit
	// or more times inside ChunkRepeatWindow, faster than playback allows.
	ChunkRepeatLimit  int
	ChunkRepeatWindow time.Duration

	// History retention: per-identity ring buffer capacity and time horizon;
	// whichever is reached first evicts the oldest entries.
	HistoryCapacity int
	HistoryHorizon  time.Duration
}

// DefaultThresholds returns the documented default configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TrackRequestLimit:   25,
		TrackRequestWindow:  10 * time.Second,
		DistinctOriginLimit: 2,
		ConcurrencyWindow:   30 * time.Second,
		ChunkRepeatLimit:    5,
		ChunkRepeatWindow:   10 * time.Second,
		HistoryCapacity:     256,
		HistoryHorizon:      5 * time.Minute,
	}
}

// Verdict is the classification of one streaming attempt. The detector only
// classifies; deciding the consequence is the caller's job.
type Verdict struct {
	Abusive bool
	Reason  string
}

// NotChunkRequest marks attempts that carry no chunk index (token issuance).
const NotChunkRequest = -1

type attempt struct {
	at         time.Time
	trackID    string
	chunkIndex int
	origin     string
}

// history is one identity's bounded attempt record. Each history has its own
// mutex so unrelated identities never contend.
type history struct {
	mu       sync.Mutex
	attempts []attempt
}

// Detector inspects recent streaming activity per identity and flags
// abusive patterns. All state is in-memory and partitioned by identity key.
type Detector struct {
	cfg Thresholds

	mu        sync.Mutex
	histories map[string]*history

	now func() time.Time
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Thresholds) *Detector {
	return &Detector{
		cfg:       cfg,
		histories: make(map[string]*history),
		now:       time.Now,
	}
}

// Evaluate records a streaming attempt and classifies the identity's recent
// activity. Each heuristic is checked independently; the first match wins.
// Pass chunkIndex = NotChunkRequest for attempts without a chunk.
func (d *Detector) Evaluate(identityKey, trackID string, chunkIndex int, ip string) Verdict {
	d.mu.Lock()
	h, ok := d.histories[identityKey]
	if !ok {
		h = &history{}
		d.histories[identityKey] = h
	}
	d.mu.Unlock()

	now := d.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.record(attempt{at: now, trackID: trackID, chunkIndex: chunkIndex, origin: origin(ip)}, d.cfg, now)

	if reason := h.classify(d.cfg, now, trackID, chunkIndex); reason != "" {
		return Verdict{Abusive: true, Reason: reason}
	}
	return Verdict{}
}

// record appends the attempt and evicts entries past capacity or horizon.
func (h *history) record(a attempt, cfg Thresholds, now time.Time) {
	h.attempts = append(h.attempts, a)

	cutoff := now.Add(-cfg.HistoryHorizon)
	drop := 0
	for drop < len(h.attempts) && h.attempts[drop].at.Before(cutoff) {
		drop++
	}
	if excess := len(h.attempts) - drop - cfg.HistoryCapacity; excess > 0 {
		drop += excess
	}
	if drop > 0 {
		h.attempts = append(h.attempts[:0], h.attempts[drop:]...)
	}
}

func (h *history) classify(cfg Thresholds, now time.Time, trackID string, chunkIndex int) string {
	var (
		trackCount  int
		repeatCount int
		origins     = make(map[string]bool)
	)

	for i := len(h.attempts) - 1; i >= 0; i-- {
		a := h.attempts[i]
		age := now.Sub(a.at)

		if a.trackID == trackID && age <= cfg.TrackRequestWindow {
			trackCount++
		}
		if age <= cfg.ConcurrencyWindow && a.origin != "" {
			origins[a.origin] = true
		}
		if chunkIndex != NotChunkRequest && a.trackID == trackID &&
			a.chunkIndex == chunkIndex && age <= cfg.ChunkRepeatWindow {
			repeatCount++
		}
	}

	switch {
	case trackCount > cfg.TrackRequestLimit:
		return ReasonVelocity
	case len(origins) >= cfg.DistinctOriginLimit:
		return ReasonConcurrency
	case chunkIndex != NotChunkRequest && repeatCount >= cfg.ChunkRepeatLimit:
		return ReasonRepetition
	}
	return ""
}

// origin reduces an IP to its network prefix so hosts on one network do not
// count as materially different: /24 for IPv4, /48 for IPv6.
func origin(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}
