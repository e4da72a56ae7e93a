package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/store"
)

const emailColumns = `e.id, e.thread_id, e.from_addr, e.from_name, e.to_addrs, e.cc_addrs,
	e.subject, e.snippet, e.body_text, e.body_html, e.date, e.is_read, e.is_starred, e.is_important,
	e.list_unsubscribe, e.list_unsubscribe_post`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (domain.Email, error) {
	var e domain.Email
	var fromName, toJSON, ccJSON, snippet, bodyText, bodyHTML sql.NullString
	var listUnsub, listUnsubPost sql.NullString
	var dateStr string

	if err := row.Scan(
		&e.ID, &e.ThreadID, &e.From.Email, &fromName, &toJSON, &ccJSON,
		&e.Subject, &snippet, &bodyText, &bodyHTML, &dateStr,
		&e.IsRead, &e.IsStarred, &e.IsImportant,
		&listUnsub, &listUnsubPost,
	); err != nil {
		return e, err
	}

	e.From.Name = fromName.String
	e.Snippet = snippet.String
	e.Body = bodyText.String
	e.BodyHTML = bodyHTML.String
	e.ListUnsubscribe = listUnsub.String
	e.ListUnsubscribePost = listUnsubPost.String

	if toJSON.String != "" {
		if err := json.Unmarshal([]byte(toJSON.String), &e.To); err != nil {
			return e, fmt.Errorf("failed to unmarshal To addresses: %w", err)
		}
	}
	if ccJSON.String != "" {
		if err := json.Unmarshal([]byte(ccJSON.String), &e.CC); err != nil {
			return e, fmt.Errorf("failed to unmarshal CC addresses: %w", err)
		}
	}

	parsedDate, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return e, fmt.Errorf("failed to parse email date: %w", err)
	}
	e.Date = parsedDate
	return e, nil
}

// UpsertEmail inserts or updates an email with its label and attachment rows.
func (s *DB) UpsertEmail(ctx context.Context, email *domain.Email, accountID string) error {
	toJSON, err := json.Marshal(email.To)
	if err != nil {
		return fmt.Errorf("failed to marshal To addresses: %w", err)
	}
	ccJSON, err := json.Marshal(email.CC)
	if err != nil {
		return fmt.Errorf("failed to marshal CC addresses: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO emails (id, account_id, thread_id, from_addr, from_name, to_addrs, cc_addrs,
			subject, snippet, body_text, body_html, date, is_read, is_starred, is_important,
			list_unsubscribe, list_unsubscribe_post)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id   = excluded.account_id,
			thread_id    = excluded.thread_id,
			from_addr    = excluded.from_addr,
			from_name    = excluded.from_name,
			to_addrs     = excluded.to_addrs,
			cc_addrs     = excluded.cc_addrs,
			subject      = excluded.subject,
			snippet      = excluded.snippet,
			body_text    = excluded.body_text,
			body_html    = excluded.body_html,
			date         = excluded.date,
			is_read      = excluded.is_read,
			is_starred   = excluded.is_starred,
			is_important = excluded.is_important,
			list_unsubscribe      = excluded.list_unsubscribe,
			list_unsubscribe_post = excluded.list_unsubscribe_post`,
		email.ID, accountID, email.ThreadID,
		email.From.Email, email.From.Name,
		string(toJSON), string(ccJSON),
		email.Subject, email.Snippet, email.Body, email.BodyHTML,
		email.Date.UTC().Format(time.RFC3339),
		email.IsRead, email.IsStarred, email.IsImportant,
		email.ListUnsubscribe, email.ListUnsubscribePost,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert email: %w", err)
	}

	// Delete existing labels and attachments, then reinsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM email_labels WHERE email_id = ?`, email.ID); err != nil {
		return fmt.Errorf("failed to delete email labels: %w", err)
	}
	for _, labelID := range email.Labels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO email_labels (email_id, label_id) VALUES (?, ?)`,
			email.ID, labelID); err != nil {
			return fmt.Errorf("failed to insert email label: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE email_id = ?`, email.ID); err != nil {
		return fmt.Errorf("failed to delete attachments: %w", err)
	}
	for i, a := range email.Attachments {
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("%s/%d", email.ID, i)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, email_id, filename, mime_type, size) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				email_id  = excluded.email_id,
				filename  = excluded.filename,
				mime_type = excluded.mime_type,
				size      = excluded.size`,
			id, email.ID, a.Filename, a.MIMEType, a.Size); err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit email upsert: %w", err)
	}
	return nil
}

// GetEmail retrieves a single email by ID, including its labels and attachments.
func (s *DB) GetEmail(ctx context.Context, id string) (*domain.Email, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails e WHERE e.id = ?`, id)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get email %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email %s: %w", id, err)
	}
	if err := s.loadDetails(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmails returns emails newest first, optionally filtered by label, with
// bodies, labels and attachments populated.
func (s *DB) ListEmails(ctx context.Context, opts store.ListEmailOptions) ([]domain.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails e`
	var args []any

	if opts.LabelID != "" {
		query += ` JOIN email_labels el ON el.email_id = e.id WHERE e.account_id = ? AND el.label_id = ?`
		args = append(args, opts.AccountID, opts.LabelID)
	} else {
		query += ` WHERE e.account_id = ?`
		args = append(args, opts.AccountID)
	}
	query += ` ORDER BY e.date DESC`

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	emails, err := s.queryEmails(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// queryEmails runs query, scans every row, then loads per-email details once
// the result set is closed.
func (s *DB) queryEmails(ctx context.Context, query string, args ...any) ([]domain.Email, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var emails []domain.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan email row: %w", err)
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate emails: %w", err)
	}
	rows.Close()

	for i := range emails {
		if err := s.loadDetails(ctx, &emails[i]); err != nil {
			return nil, err
		}
	}
	return emails, nil
}

func (s *DB) loadDetails(ctx context.Context, e *domain.Email) error {
	rows, err := s.db.QueryContext(ctx, `SELECT label_id FROM email_labels WHERE email_id = ? ORDER BY label_id`, e.ID)
	if err != nil {
		return fmt.Errorf("failed to query email labels: %w", err)
	}
	for rows.Next() {
		var labelID string
		if err := rows.Scan(&labelID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan email label: %w", err)
		}
		e.Labels = append(e.Labels, labelID)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("failed to iterate email labels: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, filename, mime_type, size FROM attachments WHERE email_id = ? ORDER BY id`, e.ID)
	if err != nil {
		return fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a domain.Attachment
		var filename, mimeType sql.NullString
		var size sql.NullInt64
		if err := rows.Scan(&a.ID, &filename, &mimeType, &size); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		a.Filename = filename.String
		a.MIMEType = mimeType.String
		a.Size = size.Int64
		e.Attachments = append(e.Attachments, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return nil
}

// SetEmailRead updates the is_read flag for a single email.
func (s *DB) SetEmailRead(ctx context.Context, emailID string, read bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET is_read = ? WHERE id = ?`, read, emailID)
	if err != nil {
		return fmt.Errorf("failed to set email %s read=%v: %w", emailID, read, err)
	}
	return nil
}

// SetEmailStarred updates the is_starred flag for a single email.
func (s *DB) SetEmailStarred(ctx context.Context, emailID string, starred bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE emails SET is_starred = ? WHERE id = ?`, starred, emailID)
	if err != nil {
		return fmt.Errorf("failed to set email %s starred=%v: %w", emailID, starred, err)
	}
	return nil
}

// DeleteEmail removes an email by ID.
func (s *DB) DeleteEmail(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM emails WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete email %s: %w", id, err)
	}
	return nil
}

// SetEmailLabels replaces the label set for an email.
func (s *DB) SetEmailLabels(ctx context.Context, emailID string, labelIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM email_labels WHERE email_id = ?`, emailID); err != nil {
		return fmt.Errorf("failed to delete email labels: %w", err)
	}

	for _, labelID := range labelIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO email_labels (email_id, label_id) VALUES (?, ?)`,
			emailID, labelID); err != nil {
			return fmt.Errorf("failed to insert email label: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit label update: %w", err)
	}
	return nil
}
