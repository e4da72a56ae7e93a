package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lu-zhengda/mailsweep/internal/lists"
)

// AddListEntry appends pattern to the given list. It reports false when the
// exact pattern is already present.
func (s *DB) AddListEntry(ctx context.Context, kind lists.Kind, pattern string) (bool, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false, errors.New("pattern must not be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO list_entries (kind, pattern) VALUES (?, ?) ON CONFLICT(kind, pattern) DO NOTHING`,
		string(kind), pattern,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add %s list entry: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add %s list entry: %w", kind, err)
	}
	return n > 0, nil
}

// RemoveListEntry deletes pattern from the given list. It reports false when
// the pattern was not present.
func (s *DB) RemoveListEntry(ctx context.Context, kind lists.Kind, pattern string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM list_entries WHERE kind = ? AND pattern = ?`,
		string(kind), strings.TrimSpace(pattern),
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove %s list entry: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove %s list entry: %w", kind, err)
	}
	return n > 0, nil
}

// ListEntries returns the patterns of a list in insertion order.
func (s *DB) ListEntries(ctx context.Context, kind lists.Kind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern FROM list_entries WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entries: %w", kind, err)
	}
	defer rows.Close()

	var patterns []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan list entry: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate list entries: %w", err)
	}
	return patterns, nil
}
