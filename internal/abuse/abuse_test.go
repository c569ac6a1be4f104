package abuse

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testDetector() (*Detector, *time.Time) {
	d := NewDetector(DefaultThresholds())
	now := time.Now()
	d.now = func() time.Time { return now }
	return d, &now
}

func TestRapidRequestsForSameTrackFlagVelocity(t *testing.T) {
	d, now := testDetector()

	var last Verdict
	for i := 0; i < 50; i++ {
		*now = now.Add(10 * time.Millisecond)
		last = d.Evaluate("user-1", "track-1", i, "203.0.113.10")
	}

	assert.True(t, last.Abusive)
	assert.Equal(t, ReasonVelocity, last.Reason)
}

func TestNormalCadenceIsNotAbusive(t *testing.T) {
	d, now := testDetector()

	for i := 0; i < 3; i++ {
		verdict := d.Evaluate("user-1", "track-1", i, "203.0.113.10")
		assert.False(t, verdict.Abusive, "request %d", i)
		*now = now.Add(5 * time.Minute)
	}
}

func TestDistinctOriginsFlagConcurrency(t *testing.T) {
	d, now := testDetector()

	verdict := d.Evaluate("user-1", "track-1", 0, "203.0.113.10")
	assert.False(t, verdict.Abusive)

	*now = now.Add(time.Second)
	verdict = d.Evaluate("user-1", "track-1", 1, "198.51.100.20")
	assert.True(t, verdict.Abusive)
	assert.Equal(t, ReasonConcurrency, verdict.Reason)
}

func TestSameSubnetIsNotConcurrency(t *testing.T) {
	d, now := testDetector()

	// Two hosts on one /24 are not materially different origins
	verdict := d.Evaluate("user-1", "track-1", 0, "203.0.113.10")
	assert.False(t, verdict.Abusive)

	*now = now.Add(time.Second)
	verdict = d.Evaluate("user-1", "track-1", 1, "203.0.113.77")
	assert.False(t, verdict.Abusive)
}

func TestChunkRepetitionFlagged(t *testing.T) {
	d, now := testDetector()

	var last Verdict
	for i := 0; i < 5; i++ {
		*now = now.Add(500 * time.Millisecond)
		last = d.Evaluate("user-1", "track-1", 3, "203.0.113.10")
	}

	assert.True(t, last.Abusive)
	assert.Equal(t, ReasonRepetition, last.Reason)
}

func TestChunkRepetitionIgnoresTokenRequests(t *testing.T) {
	d, now := testDetector()

	for i := 0; i < 10; i++ {
		*now = now.Add(2 * time.Second)
		verdict := d.Evaluate("user-1", "track-1", NotChunkRequest, "203.0.113.10")
		assert.False(t, verdict.Abusive, "token issuance calls carry no chunk index")
	}
}

func TestIdentitiesDoNotShareHistory(t *testing.T) {
	d, now := testDetector()

	for i := 0; i < 50; i++ {
		*now = now.Add(10 * time.Millisecond)
		d.Evaluate("user-1", "track-1", i, "203.0.113.10")
	}

	verdict := d.Evaluate("user-2", "track-1", 0, "203.0.113.10")
	assert.False(t, verdict.Abusive)
}

func TestHistoryCapacityIsBounded(t *testing.T) {
	cfg := DefaultThresholds()
	cfg.HistoryCapacity = 10
	d := NewDetector(cfg)
	now := time.Now()
	d.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		now = now.Add(time.Millisecond)
		d.Evaluate("user-1", fmt.Sprintf("track-%d", i), 0, "203.0.113.10")
	}

	h := d.histories["user-1"]
	assert.LessOrEqual(t, len(h.attempts), 10)
}

func TestHistoryHorizonEvictsOldEntries(t *testing.T) {
	d, now := testDetector()

	d.Evaluate("user-1", "track-1", 0, "203.0.113.10")

	// Past the horizon the old attempt is gone from history
	*now = now.Add(10 * time.Minute)
	d.Evaluate("user-1", "track-1", 1, "203.0.113.10")

	h := d.histories["user-1"]
	assert.Len(t, h.attempts, 1)
}
