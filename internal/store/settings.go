package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sidesync/internal/hlc"
)

const settingNodeID = "node_id"

// NodeID returns this database's clock node id, creating and persisting a
// random one on first use. The id must stay stable for the life of the
// database so that its timestamps are attributable to one node.
func (s *Store) NodeID(ctx context.Context) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("node id: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var id string
	err = tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, settingNodeID).Scan(&id)
	switch {
	case err == nil:
		if err := hlc.ValidateNodeID(id); err != nil {
			return "", fmt.Errorf("node id: stored value: %w", err)
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("node id: %w", err)
	}

	id = hlc.NewNodeID()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
	`, settingNodeID, id); err != nil {
		return "", fmt.Errorf("node id: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("node id: commit: %w", err)
	}
	return id, nil
}

// SetNodeID overrides the persisted node id. Intended for tests and for
// restoring a database onto the node that created it.
func (s *Store) SetNodeID(ctx context.Context, id string) error {
	if err := hlc.ValidateNodeID(id); err != nil {
		return fmt.Errorf("set node id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, settingNodeID, id); err != nil {
		return fmt.Errorf("set node id: %w", err)
	}
	return nil
}

// LastHLCTime returns the greatest hlc_time in the oplog, or "" when the
// log is empty.
func (s *Store) LastHLCTime(ctx context.Context) (string, error) {
	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(hlc_time) FROM oplog`).Scan(&last); err != nil {
		return "", fmt.Errorf("last hlc time: %w", err)
	}
	return last.String, nil
}
