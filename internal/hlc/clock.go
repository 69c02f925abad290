// Package hlc implements the hybrid logical clock that stamps oplog entries.
//
// A Timestamp renders as
//
//	2020-08-10T20:02:00.000Z-0000-0123456789abcdef
//
// i.e. UTC wall time to the millisecond, a 4-hex-digit counter, and a
// 16-hex-digit node id. Every component is fixed width, so comparing the
// strings lexically is the same as comparing the timestamps causally.
package hlc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	timeLayout = "2006-01-02T15:04:05.000Z"

	// MaxCounter is the largest counter value a timestamp can carry.
	MaxCounter = 0xFFFF

	nodeIDLen = 16
)

// Timestamp is one issued clock reading.
type Timestamp struct {
	Millis  int64 // Unix milliseconds
	Counter uint16
	Node    string // 16 lowercase hex characters
}

// String renders the timestamp in its lexically ordered form.
func (ts Timestamp) String() string {
	return fmt.Sprintf("%s-%04x-%s",
		time.UnixMilli(ts.Millis).UTC().Format(timeLayout),
		ts.Counter,
		ts.Node,
	)
}

// Compare orders timestamps by time, then counter, then node.
func (ts Timestamp) Compare(other Timestamp) int {
	switch {
	case ts.Millis != other.Millis:
		if ts.Millis < other.Millis {
			return -1
		}
		return 1
	case ts.Counter != other.Counter:
		if ts.Counter < other.Counter {
			return -1
		}
		return 1
	default:
		return strings.Compare(ts.Node, other.Node)
	}
}

// Parse reads a timestamp produced by Timestamp.String.
func Parse(s string) (Timestamp, error) {
	// The time part itself contains dashes; split from the right.
	nodeSep := strings.LastIndexByte(s, '-')
	if nodeSep < 0 {
		return Timestamp{}, fmt.Errorf("parse timestamp %q: missing node id", s)
	}
	counterSep := strings.LastIndexByte(s[:nodeSep], '-')
	if counterSep < 0 {
		return Timestamp{}, fmt.Errorf("parse timestamp %q: missing counter", s)
	}

	wall, err := time.Parse(timeLayout, s[:counterSep])
	if err != nil {
		return Timestamp{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	counterHex := s[counterSep+1 : nodeSep]
	if len(counterHex) != 4 {
		return Timestamp{}, fmt.Errorf("parse timestamp %q: counter must be 4 hex digits", s)
	}
	counter, err := strconv.ParseUint(counterHex, 16, 16)
	if err != nil {
		return Timestamp{}, fmt.Errorf("parse timestamp %q: counter: %w", s, err)
	}
	node := s[nodeSep+1:]
	if err := ValidateNodeID(node); err != nil {
		return Timestamp{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}

	return Timestamp{Millis: wall.UnixMilli(), Counter: uint16(counter), Node: node}, nil
}

// ValidateNodeID checks that id is 16 lowercase hex characters.
func ValidateNodeID(id string) error {
	if len(id) != nodeIDLen {
		return fmt.Errorf("node id %q must be %d hex characters", id, nodeIDLen)
	}
	for _, c := range id {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return fmt.Errorf("node id %q must be lowercase hex", id)
		}
	}
	return nil
}

// NodeIDFromUUID derives a node id from the last 16 hex digits of a UUID.
func NodeIDFromUUID(id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return hex[len(hex)-nodeIDLen:]
}

// NewNodeID returns a random node id.
func NewNodeID() string {
	return NodeIDFromUUID(uuid.New())
}

// Clock issues strictly increasing timestamps for one node.
//
// Thread-safety: Clock is safe for concurrent use. Issue holds the mutex
// for the whole read-modify-write, so no two callers ever observe the same
// or a decreasing timestamp.
type Clock struct {
	mu      sync.Mutex
	node    string
	wall    func() time.Time
	millis  int64
	counter uint16
}

// Option configures a Clock.
type Option func(*Clock)

// WithWallClock replaces time.Now as the physical time source.
func WithWallClock(now func() time.Time) Option {
	return func(c *Clock) {
		c.wall = now
	}
}

// NewClock creates a clock for the given node id.
func NewClock(node string, opts ...Option) (*Clock, error) {
	if err := ValidateNodeID(node); err != nil {
		return nil, err
	}
	c := &Clock{node: node, wall: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Node returns the clock's node id.
func (c *Clock) Node() string {
	return c.node
}

// Issue returns a timestamp strictly greater than every timestamp
// previously issued or observed by this clock.
//
// When the wall clock has not advanced past the last reading, the counter
// increments instead. Should the counter run out within one millisecond,
// the logical time moves one millisecond ahead of the wall clock.
func (c *Clock) Issue() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.wall().UnixMilli()
	switch {
	case now > c.millis:
		c.millis = now
		c.counter = 0
	case c.counter == MaxCounter:
		c.millis++
		c.counter = 0
	default:
		c.counter++
	}

	return Timestamp{Millis: c.millis, Counter: c.counter, Node: c.node}
}

// Observe moves the clock forward so that the next Issue is greater than
// ts. Used to resume from the last persisted timestamp after a restart.
// Observing an older timestamp is a no-op.
func (c *Clock) Observe(ts Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts.Millis > c.millis || ts.Millis == c.millis && ts.Counter > c.counter {
		c.millis = ts.Millis
		c.counter = ts.Counter
	}
}

// Current returns the last issued or observed reading without advancing.
func (c *Clock) Current() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Timestamp{Millis: c.millis, Counter: c.counter, Node: c.node}
}
