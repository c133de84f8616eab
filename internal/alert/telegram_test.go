package alert

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldSend_DedupesWithinTTL(t *testing.T) {
	t.Parallel()

	n := NewNotifier("token", "chat", 50*time.Millisecond)

	assert.True(t, n.shouldSend("warn", "risk veto", "stale market data"))
	assert.False(t, n.shouldSend("warn", "risk veto", "stale market data"))

	// Different body is a different alert.
	assert.True(t, n.shouldSend("warn", "risk veto", "too many open orders"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, n.shouldSend("warn", "risk veto", "stale market data"))
}

func TestShouldSend_CapsEntries(t *testing.T) {
	t.Parallel()

	n := NewNotifier("token", "chat", time.Hour)
	for i := 0; i < maxDedupeEntries; i++ {
		assert.True(t, n.shouldSend("warn", fmt.Sprintf("alert-%d", i), ""))
	}

	// Cache full of live entries: new alerts are dropped, not the cache.
	assert.False(t, n.shouldSend("warn", "one-too-many", ""))
}

func TestNotify_NoCredentialsIsNoop(t *testing.T) {
	t.Parallel()

	n := NewNotifier("", "", 0)
	n.Notify("error", "bot run failed", "venue unreachable")
	assert.Empty(t, n.recent)
}

func TestShouldSend_TruncatesLongKeys(t *testing.T) {
	t.Parallel()

	n := NewNotifier("token", "chat", time.Hour)
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}

	assert.True(t, n.shouldSend("warn", "big", string(long)))
	// Same truncated key dedupes even though the tails differ.
	long[1999] = 'y'
	assert.False(t, n.shouldSend("warn", "big", string(long)))
}
