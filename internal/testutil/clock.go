package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/roach88/sidesync/internal/hlc"
)

// Epoch is the frozen wall time deterministic tests start from.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// NodeID is the node id deterministic tests run as.
const NodeID = "0000000000000001"

// Wall is a settable wall clock for tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Wall struct {
	mu  sync.Mutex
	now time.Time
}

// NewWall creates a wall clock frozen at Epoch.
func NewWall() *Wall {
	return &Wall{now: Epoch}
}

// Now returns the current frozen time. Pass it to hlc.WithWallClock or
// engine.WithWallClock.
func (w *Wall) Now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

// Advance moves the wall clock forward (or backward, for negative d).
func (w *Wall) Advance(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = w.now.Add(d)
}

// Reset returns the wall clock to Epoch.
func (w *Wall) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = Epoch
}

// NewClock returns an HLC for NodeID whose wall time is frozen at Epoch.
//
// With the wall frozen every timestamp differs only in its counter, so the
// n-th Issue() (counting from 0) returns Timestamp(n).
func NewClock(t testing.TB) *hlc.Clock {
	t.Helper()
	c, err := hlc.NewClock(NodeID, hlc.WithWallClock(NewWall().Now))
	if err != nil {
		t.Fatalf("hlc.NewClock: %v", err)
	}
	return c
}

// Timestamp returns the string form of the n-th timestamp issued by a
// clock from NewClock.
func Timestamp(n int) string {
	return fmt.Sprintf("2020-01-01T00:00:00.000Z-%04x-%s", n, NodeID)
}
