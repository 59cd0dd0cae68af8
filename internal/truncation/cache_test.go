package truncation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToolTruncationReadThenDelete(t *testing.T) {
	c := New(time.Minute, 10)
	c.StoreToolTruncation("t1", "write_file", 42, "unclosed string")

	entry, ok := c.ConsumeToolTruncation("t1")
	assert.True(t, ok)
	assert.Equal(t, "write_file", entry.ToolName)

	_, ok = c.ConsumeToolTruncation("t1")
	assert.False(t, ok, "entry must be consumed exactly once")
}

func TestToolTruncationExpiresAfterTTL(t *testing.T) {
	c := New(1*time.Millisecond, 10)
	c.StoreToolTruncation("t1", "x", 1, "r")
	time.Sleep(5 * time.Millisecond)

	_, ok := c.ConsumeToolTruncation("t1")
	assert.False(t, ok)
}

func TestLRUEvictsOldestBeyondMaxEntries(t *testing.T) {
	c := New(time.Minute, 2)
	c.StoreToolTruncation("a", "x", 1, "r")
	c.StoreToolTruncation("b", "x", 1, "r")
	c.StoreToolTruncation("c", "x", 1, "r")

	_, ok := c.ConsumeToolTruncation("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.ConsumeToolTruncation("c")
	assert.True(t, ok)
}

func TestContentTruncationRequiresApproximateLengthMatch(t *testing.T) {
	c := New(time.Minute, 10)
	c.StoreContentTruncation("digest1", 1000, "malformed JSON")

	_, ok := c.ConsumeContentTruncation("digest1", 500)
	assert.False(t, ok, "a grossly mismatched length should not honour the hit")
}

func TestContentTruncationMismatchLeavesEntryForLaterMatch(t *testing.T) {
	c := New(time.Minute, 10)
	c.StoreContentTruncation("digest1", 1000, "malformed JSON")

	_, ok := c.ConsumeContentTruncation("digest1", 500)
	assert.False(t, ok, "mismatched length must not consume the entry")

	entry, ok := c.ConsumeContentTruncation("digest1", 1000)
	assert.True(t, ok, "a later length-matched lookup must still find the entry")
	assert.Equal(t, "malformed JSON", entry.Reason)

	_, ok = c.ConsumeContentTruncation("digest1", 1000)
	assert.False(t, ok, "entry must be consumed exactly once after a real hit")
}

func TestContentTruncationHitsWithinTenPercent(t *testing.T) {
	c := New(time.Minute, 10)
	c.StoreContentTruncation("digest1", 1000, "malformed JSON")

	_, ok := c.ConsumeContentTruncation("digest1", 1050)
	assert.True(t, ok)
}
