package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lu-zhengda/mailsweep/internal/rules"
	"github.com/lu-zhengda/mailsweep/internal/store"
)

// SaveRule inserts or replaces a filter rule. New rules are appended after
// existing ones so ties in priority keep creation order.
func (s *DB) SaveRule(ctx context.Context, rule *rules.FilterRule) error {
	conds, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal rule conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal rule actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO filter_rules (id, name, enabled, priority, stop_on_match, conditions, actions, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM filter_rules))
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			enabled       = excluded.enabled,
			priority      = excluded.priority,
			stop_on_match = excluded.stop_on_match,
			conditions    = excluded.conditions,
			actions       = excluded.actions,
			updated_at    = CURRENT_TIMESTAMP`,
		rule.ID, rule.Name, rule.Enabled, rule.Priority, rule.StopOnMatch,
		string(conds), string(actions),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	return nil
}

const ruleColumns = `id, name, enabled, priority, stop_on_match, conditions, actions`

func scanRule(row rowScanner) (rules.FilterRule, error) {
	var r rules.FilterRule
	var conds, actions string
	if err := row.Scan(&r.ID, &r.Name, &r.Enabled, &r.Priority, &r.StopOnMatch, &conds, &actions); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(conds), &r.Conditions); err != nil {
		return r, fmt.Errorf("failed to unmarshal conditions of rule %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(actions), &r.Actions); err != nil {
		return r, fmt.Errorf("failed to unmarshal actions of rule %s: %w", r.ID, err)
	}
	return r, nil
}

// GetRule retrieves a single rule by ID.
func (s *DB) GetRule(ctx context.Context, id string) (*rules.FilterRule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM filter_rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get rule %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", id, err)
	}
	return &r, nil
}

// ListRules returns all rules in creation order.
func (s *DB) ListRules(ctx context.Context) ([]rules.FilterRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM filter_rules ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []rules.FilterRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return out, nil
}

// DeleteRule removes a rule by ID.
func (s *DB) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM filter_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to delete rule %s: %w", id, store.ErrNotFound)
	}
	return nil
}
