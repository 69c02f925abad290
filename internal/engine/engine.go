package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/sidesync/internal/hlc"
	"github.com/roach88/sidesync/internal/ir"
	"github.com/roach88/sidesync/internal/oplog"
	"github.com/roach88/sidesync/internal/store"
)

// Mode selects what a transaction may do.
type Mode int

const (
	// ReadOnly transactions may only read. Writes fail with a READ_ONLY
	// RuntimeError and abort the transaction.
	ReadOnly Mode = iota

	// ReadWrite transactions may read and write.
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Engine runs transactions over a store, recording every proxied write in
// the oplog.
//
// Thread-safety model:
//   - Run(): safe from any goroutine; transactions are serialized by the
//     store's single connection
//   - the clock is shared by all transactions, so timestamps are strictly
//     increasing across the whole oplog
//   - a Txn belongs to the goroutine running its body
type Engine struct {
	store     *store.Store
	clock     *hlc.Clock
	writer    *oplog.Writer
	logger    *slog.Logger
	ownsStore bool
}

// New creates an Engine over an open store. The caller keeps ownership of
// s; Close does not close it.
//
// A nil logger discards all log output.
func New(s *store.Store, clock *hlc.Clock, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:  s,
		clock:  clock,
		writer: oplog.NewWriter(clock),
		logger: logger,
	}
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	logger *slog.Logger
	nodeID string
	wall   func() time.Time
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *openConfig) {
		c.logger = l
	}
}

// WithNodeID pins the clock's node id, persisting it in the database.
// Default: the id already stored, or a new random one.
func WithNodeID(id string) Option {
	return func(c *openConfig) {
		c.nodeID = id
	}
}

// WithWallClock replaces time.Now as the clock's physical time source.
// Use with a frozen time in tests for deterministic timestamps.
func WithWallClock(now func() time.Time) Option {
	return func(c *openConfig) {
		c.wall = now
	}
}

// Open opens (or creates) the database at path and returns an Engine whose
// clock resumes after the newest persisted oplog entry. Close releases the
// database.
func Open(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}

	e, err := openOn(ctx, s, cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open engine: %w", err)
	}
	e.ownsStore = true
	return e, nil
}

func openOn(ctx context.Context, s *store.Store, cfg openConfig) (*Engine, error) {
	if cfg.nodeID != "" {
		if err := s.SetNodeID(ctx, cfg.nodeID); err != nil {
			return nil, err
		}
	}
	node, err := s.NodeID(ctx)
	if err != nil {
		return nil, err
	}

	var clockOpts []hlc.Option
	if cfg.wall != nil {
		clockOpts = append(clockOpts, hlc.WithWallClock(cfg.wall))
	}
	clock, err := resumeClock(ctx, s, node, clockOpts...)
	if err != nil {
		return nil, err
	}

	e := New(s, clock, cfg.logger)
	e.logger.Debug("engine opened", "node", node, "clock", clock.Current().String())
	return e, nil
}

// Close closes the database if the Engine opened it.
func (e *Engine) Close() error {
	if !e.ownsStore {
		return nil
	}
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Clock returns the engine's clock.
func (e *Engine) Clock() *hlc.Clock {
	return e.clock
}

// RegisterCollections declares collections. Re-registering an identical
// descriptor is a no-op; changing a registered key path is an error.
//
// Must not be called from inside a transaction body.
func (e *Engine) RegisterCollections(ctx context.Context, cols ...ir.Collection) error {
	for _, col := range cols {
		if err := e.store.CreateCollection(ctx, col); err != nil {
			return fmt.Errorf("register collections: %w", err)
		}
		e.logger.Debug("collection registered", "store", col.Name, "key_path", col.KeyPath.String())
	}
	return nil
}

// Collections returns the registered collections ordered by name.
func (e *Engine) Collections(ctx context.Context) ([]ir.Collection, error) {
	return e.store.Collections(ctx)
}

// Run executes body in one transaction scoped to the named stores.
//
// The transaction commits only if body returns nil and no proxied write
// failed, even when body ignored that failure. Otherwise every write it
// made, data and oplog alike, is rolled back and Run returns an
// *AbortError wrapping the first failure. A panic in body rolls back the
// transaction and is re-raised.
//
// Store names are checked before body runs; an unknown name returns an
// UNKNOWN_STORE RuntimeError and body is never called.
func (e *Engine) Run(ctx context.Context, stores []string, mode Mode, body func(*Txn) error) (err error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	txn := newTxn(e, tx, mode)
	for _, name := range stores {
		obj, err := tx.ObjectStore(ctx, name)
		if errors.Is(err, store.ErrUnknownCollection) {
			tx.Rollback()
			return NewUnknownStoreError(name, "no such collection")
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("run: %w", err)
		}
		txn.scope[name] = obj
	}

	defer func() {
		if r := recover(); r != nil {
			txn.fail(fmt.Errorf("panic: %v", r))
			txn.settle()
			panic(r)
		}
	}()

	if bodyErr := body(txn); bodyErr != nil {
		txn.fail(bodyErr)
	}
	return txn.settle()
}
