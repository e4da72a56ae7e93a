package sqlite

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/mailsweep/internal/domain"
)

// SearchEmails performs a full-text search across emails using FTS5.
func (s *DB) SearchEmails(ctx context.Context, query string, accountID string) ([]domain.Email, error) {
	emails, err := s.queryEmails(ctx, `
		SELECT `+emailColumns+`
		FROM emails e
		JOIN emails_fts fts ON fts.rowid = e.rowid
		WHERE emails_fts MATCH ? AND e.account_id = ?
		ORDER BY rank`, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	return emails, nil
}
