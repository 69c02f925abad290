package hlc

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNode = "0123456789abcdef"

var epoch = time.Date(2020, 8, 10, 20, 2, 0, 0, time.UTC)

func frozenClock(t *testing.T, at time.Time) *Clock {
	t.Helper()
	c, err := NewClock(testNode, WithWallClock(func() time.Time { return at }))
	require.NoError(t, err)
	return c
}

func TestTimestamp_String(t *testing.T) {
	ts := Timestamp{Millis: epoch.UnixMilli() + 7, Counter: 0x1a, Node: testNode}
	assert.Equal(t, "2020-08-10T20:02:00.007Z-001a-0123456789abcdef", ts.String())
}

func TestParse_RoundTrip(t *testing.T) {
	ts := Timestamp{Millis: epoch.UnixMilli(), Counter: 0xffff, Node: testNode}

	parsed, err := Parse(ts.String())
	require.NoError(t, err)
	assert.Equal(t, ts, parsed)
}

func TestParse_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"garbage",
		"2020-08-10T20:02:00.000Z-0000",
		"2020-08-10T20:02:00.000Z-00000-0123456789abcdef",
		"2020-08-10T20:02:00.000Z-zzzz-0123456789abcdef",
		"2020-08-10T20:02:00.000Z-0000-0123",
		"2020-08-10T20:02:00.000Z-0000-0123456789ABCDEF",
		"2020-13-10T20:02:00.000Z-0000-0123456789abcdef",
	}
	for _, in := range inputs {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestNewClock_RejectsBadNode(t *testing.T) {
	_, err := NewClock("short")
	assert.Error(t, err)
}

func TestNodeIDFromUUID(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assert.Equal(t, "a716446655440000", NodeIDFromUUID(id))
	assert.NoError(t, ValidateNodeID(NewNodeID()))
}

func TestClock_Issue_FrozenWallUsesCounter(t *testing.T) {
	c := frozenClock(t, epoch)

	first := c.Issue()
	second := c.Issue()
	third := c.Issue()

	assert.Equal(t, uint16(0), first.Counter)
	assert.Equal(t, uint16(1), second.Counter)
	assert.Equal(t, uint16(2), third.Counter)
	assert.Less(t, first.String(), second.String())
	assert.Less(t, second.String(), third.String())
}

func TestClock_Issue_WallAdvanceResetsCounter(t *testing.T) {
	now := epoch
	c, err := NewClock(testNode, WithWallClock(func() time.Time { return now }))
	require.NoError(t, err)

	c.Issue()
	c.Issue()
	now = now.Add(5 * time.Millisecond)
	ts := c.Issue()

	assert.Equal(t, epoch.UnixMilli()+5, ts.Millis)
	assert.Equal(t, uint16(0), ts.Counter)
}

func TestClock_Issue_WallGoesBackwards(t *testing.T) {
	now := epoch
	c, err := NewClock(testNode, WithWallClock(func() time.Time { return now }))
	require.NoError(t, err)

	before := c.Issue()
	now = now.Add(-time.Hour)
	after := c.Issue()

	assert.Equal(t, 1, after.Compare(before))
	assert.Greater(t, after.String(), before.String())
}

func TestClock_Issue_CounterOverflow(t *testing.T) {
	c := frozenClock(t, epoch)
	c.Observe(Timestamp{Millis: epoch.UnixMilli(), Counter: MaxCounter, Node: testNode})

	ts := c.Issue()

	assert.Equal(t, epoch.UnixMilli()+1, ts.Millis)
	assert.Equal(t, uint16(0), ts.Counter)
}

func TestClock_Observe(t *testing.T) {
	c := frozenClock(t, epoch)
	future := Timestamp{Millis: epoch.UnixMilli() + 1000, Counter: 3, Node: "ffffffffffffffff"}

	c.Observe(future)
	ts := c.Issue()
	assert.Equal(t, future.Millis, ts.Millis)
	assert.Equal(t, uint16(4), ts.Counter)

	// Observing the past is a no-op.
	c.Observe(Timestamp{Millis: epoch.UnixMilli(), Node: testNode})
	assert.Equal(t, ts, c.Current())
}

func TestClock_Current_DoesNotIncrement(t *testing.T) {
	c := frozenClock(t, epoch)
	issued := c.Issue()

	assert.Equal(t, issued, c.Current())
	assert.Equal(t, issued, c.Current())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := frozenClock(t, epoch)
	const goroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	stamps := make(chan string, goroutines*callsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				stamps <- c.Issue().String()
			}
		}()
	}

	wg.Wait()
	close(stamps)

	seen := make(map[string]bool)
	for s := range stamps {
		assert.False(t, seen[s], "timestamp %s issued twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}

func TestClock_LexicalOrderMatchesCompare(t *testing.T) {
	now := epoch
	c, err := NewClock(testNode, WithWallClock(func() time.Time { return now }))
	require.NoError(t, err)

	var prev Timestamp
	for i := 0; i < 300; i++ {
		if i%7 == 0 {
			now = now.Add(time.Millisecond)
		}
		ts := c.Issue()
		if i > 0 {
			assert.Equal(t, 1, ts.Compare(prev))
			assert.Greater(t, ts.String(), prev.String())
		}
		prev = ts
	}
}
