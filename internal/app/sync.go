package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/provider"
	"github.com/lu-zhengda/mailsweep/internal/store"
)

// SyncService orchestrates synchronization between an email provider and the
// local store for a single account.
type SyncService struct {
	store     store.Store
	provider  provider.EmailProvider
	accountID string
	log       *slog.Logger
}

// NewSyncService creates a SyncService that syncs the given account between
// the provider and the local store. A nil logger discards.
func NewSyncService(s store.Store, p provider.EmailProvider, accountID string, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SyncService{store: s, provider: p, accountID: accountID, log: logger.With("account", accountID)}
}

// InitialSync performs a full initial sync, fetching up to count messages from
// the provider and persisting them locally along with all labels.
func (s *SyncService) InitialSync(ctx context.Context, count int) error {
	if err := s.SyncLabels(ctx); err != nil {
		return err
	}

	// Capture the history point before listing so changes made while the
	// listing runs are replayed by the next incremental sync.
	historyID, err := s.provider.CurrentHistoryID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get history id: %w", err)
	}

	const batchSize = 100
	var (
		pageToken string
		fetched   int
	)
	for fetched < count {
		remaining := count - fetched
		limit := min(batchSize, remaining)

		msgs, nextToken, err := s.provider.ListMessages(ctx, provider.ListOptions{
			PageToken:  pageToken,
			MaxResults: limit,
		})
		if err != nil {
			return fmt.Errorf("failed to list messages (fetched %d so far): %w", fetched, err)
		}

		for i := range msgs {
			if err := s.store.UpsertEmail(ctx, &msgs[i], s.accountID); err != nil {
				return fmt.Errorf("failed to upsert email %s: %w", msgs[i].ID, err)
			}
		}

		fetched += len(msgs)
		s.log.Info("fetched messages", "fetched", fetched, "target", count)

		if nextToken == "" || len(msgs) == 0 {
			break
		}
		pageToken = nextToken
	}

	if err := s.store.SetSyncState(ctx, &store.SyncState{
		AccountID: s.accountID,
		HistoryID: historyID,
		LastSync:  time.Now().Unix(),
	}); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}

	s.log.Info("initial sync complete", "messages", fetched)
	return nil
}

// SyncLabels refreshes the account's labels in the store.
func (s *SyncService) SyncLabels(ctx context.Context) error {
	labels, err := s.provider.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list labels: %w", err)
	}
	for i := range labels {
		labels[i].AccountID = s.accountID
		if err := s.store.UpsertLabel(ctx, &labels[i]); err != nil {
			return fmt.Errorf("failed to upsert label %s: %w", labels[i].ID, err)
		}
	}
	s.log.Debug("synced labels", "count", len(labels))
	return nil
}

// IncrementalSync performs a delta sync using the provider's history API.
// If no prior sync state exists (historyID == 0), it falls back to an
// InitialSync of 500 messages.
func (s *SyncService) IncrementalSync(ctx context.Context) error {
	state, err := s.store.GetSyncState(ctx, s.accountID)
	if err != nil {
		return fmt.Errorf("failed to get sync state: %w", err)
	}

	if state == nil || state.HistoryID == 0 {
		s.log.Info("no history id found, falling back to initial sync")
		return s.InitialSync(ctx, 500)
	}

	events, newHistoryID, err := s.provider.History(ctx, state.HistoryID)
	if err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}
	if newHistoryID == 0 {
		newHistoryID = state.HistoryID
	}

	var added, deleted, modified int

	for _, event := range events {
		switch event.Type {
		case provider.HistoryMessageAdded:
			msg, err := s.provider.GetMessage(ctx, event.MessageID)
			if err != nil {
				return fmt.Errorf("failed to get added message %s: %w", event.MessageID, err)
			}
			if err := s.store.UpsertEmail(ctx, msg, s.accountID); err != nil {
				return fmt.Errorf("failed to upsert added message %s: %w", event.MessageID, err)
			}
			added++

		case provider.HistoryMessageDeleted:
			if err := s.store.DeleteEmail(ctx, event.MessageID); err != nil {
				return fmt.Errorf("failed to delete message %s: %w", event.MessageID, err)
			}
			deleted++

		case provider.HistoryLabelsAdded, provider.HistoryLabelsRemoved:
			// Refetch so the read/starred/important flags follow the labels.
			msg, err := s.provider.GetMessage(ctx, event.MessageID)
			if err != nil {
				return fmt.Errorf("failed to get message %s for label update: %w", event.MessageID, err)
			}
			if err := s.store.UpsertEmail(ctx, msg, s.accountID); err != nil {
				return fmt.Errorf("failed to update message %s: %w", event.MessageID, err)
			}
			modified++
		}
	}

	if err := s.store.SetSyncState(ctx, &store.SyncState{
		AccountID: s.accountID,
		HistoryID: newHistoryID,
		LastSync:  time.Now().Unix(),
	}); err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}

	s.log.Info("incremental sync complete", "added", added, "deleted", deleted, "modified", modified)
	return nil
}
