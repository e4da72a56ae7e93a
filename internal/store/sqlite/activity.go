package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/store"
)

// LogActivity appends an entry and trims its kind to the newest
// store.MaxActivityPerKind entries.
func (s *DB) LogActivity(ctx context.Context, entry *store.Activity) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO activity_log (kind, timestamp, account_id, email_id, sender_email, sender_name, subject, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(entry.Kind), entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.AccountID, entry.EmailID, entry.SenderEmail, entry.SenderName, entry.Subject, entry.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM activity_log
		WHERE kind = ? AND id NOT IN (
			SELECT id FROM activity_log WHERE kind = ? ORDER BY id DESC LIMIT ?
		)`, string(entry.Kind), string(entry.Kind), store.MaxActivityPerKind); err != nil {
		return fmt.Errorf("failed to trim activity log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activity: %w", err)
	}
	return nil
}

// ListActivity returns entries of one kind, oldest first. A positive limit
// keeps only the newest limit entries.
func (s *DB) ListActivity(ctx context.Context, kind store.ActivityKind, limit int) ([]store.Activity, error) {
	if limit <= 0 {
		limit = store.MaxActivityPerKind
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, timestamp, account_id, email_id, sender_email, sender_name, subject, reason
		FROM (
			SELECT * FROM activity_log WHERE kind = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var out []store.Activity
	for rows.Next() {
		var a store.Activity
		var ts string
		var accountID, emailID, senderEmail, senderName, subject, reason sql.NullString
		if err := rows.Scan(&a.ID, &a.Kind, &ts, &accountID, &emailID, &senderEmail, &senderName, &subject, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse activity timestamp: %w", err)
		}
		a.AccountID = accountID.String
		a.EmailID = emailID.String
		a.SenderEmail = senderEmail.String
		a.SenderName = senderName.String
		a.Subject = subject.String
		a.Reason = reason.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity: %w", err)
	}
	return out, nil
}

// ClearActivity removes all entries of one kind.
func (s *DB) ClearActivity(ctx context.Context, kind store.ActivityKind) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM activity_log WHERE kind = ?`, string(kind)); err != nil {
		return fmt.Errorf("failed to clear %s activity: %w", kind, err)
	}
	return nil
}

// GetStats returns the counters for an account. Missing counters are zero.
func (s *DB) GetStats(ctx context.Context, accountID string) (*store.Stats, error) {
	var st store.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT processed, unsubscribed, deleted FROM stats WHERE account_id = ?`, accountID,
	).Scan(&st.Processed, &st.Unsubscribed, &st.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return &st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for %s: %w", accountID, err)
	}
	return &st, nil
}

// AddStats increments the counters for an account by delta.
func (s *DB) AddStats(ctx context.Context, accountID string, delta store.Stats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats (account_id, processed, unsubscribed, deleted)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			processed    = processed + excluded.processed,
			unsubscribed = unsubscribed + excluded.unsubscribed,
			deleted      = deleted + excluded.deleted`,
		accountID, delta.Processed, delta.Unsubscribed, delta.Deleted,
	)
	if err != nil {
		return fmt.Errorf("failed to update stats for %s: %w", accountID, err)
	}
	return nil
}

// ResetStats zeroes the counters for an account.
func (s *DB) ResetStats(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM stats WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to reset stats for %s: %w", accountID, err)
	}
	return nil
}

// TopSenders ranks senders of synced mail by message count.
func (s *DB) TopSenders(ctx context.Context, accountID string, limit int) ([]store.SenderStat, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT LOWER(from_addr), MAX(COALESCE(from_name, '')), COUNT(*), MIN(date)
		FROM emails
		WHERE account_id = ? AND from_addr != ''
		GROUP BY LOWER(from_addr)
		ORDER BY COUNT(*) DESC, MIN(date)
		LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank senders: %w", err)
	}
	defer rows.Close()

	var out []store.SenderStat
	for rows.Next() {
		var st store.SenderStat
		var first string
		if err := rows.Scan(&st.Email, &st.Name, &st.Count, &first); err != nil {
			return nil, fmt.Errorf("failed to scan sender stat: %w", err)
		}
		st.FirstSeen, err = time.Parse(time.RFC3339, first)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sender first-seen date: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sender stats: %w", err)
	}
	return out, nil
}

var _ store.Store = (*DB)(nil)
