package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/lists"
	"github.com/lu-zhengda/mailsweep/internal/store"
)

// PurgeOptions configures a purge of unread mail.
type PurgeOptions struct {
	AccountID string
	Limit     int
	Apply     bool
	// RespectAllowList marks allow-listed messages read instead of deleting them.
	RespectAllowList bool
}

// PurgeReport summarizes a purge.
type PurgeReport struct {
	Preview    bool
	Candidates []domain.Email
	Deleted    int
	MarkedRead int
	Failed     int
}

// PurgeUnread trashes every cached unread message. The allow list is only
// consulted when RespectAllowList is set.
func (c *Cleaner) PurgeUnread(ctx context.Context, opts PurgeOptions) (*PurgeReport, error) {
	if opts.Apply && c.Executor == nil {
		return nil, errors.New("cleaner has no executor; run in preview mode")
	}
	emails, err := c.Store.ListEmails(ctx, store.ListEmailOptions{
		AccountID: opts.AccountID,
		LabelID:   domain.LabelUnread,
		Limit:     opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load unread emails: %w", err)
	}
	svc := lists.New(nil, nil)
	if opts.RespectAllowList {
		if svc, err = lists.Load(ctx, c.Store); err != nil {
			return nil, err
		}
	}

	report := &PurgeReport{Preview: !opts.Apply, Candidates: emails}
	if !opts.Apply {
		return report, nil
	}

	suffix := " (all unread)"
	if opts.RespectAllowList {
		suffix = " (allow list checked)"
	}
	var runErr error
	for i := range emails {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		e := &emails[i]
		item := &Item{Email: *e, Record: domain.NewEmailRecord(e, nil)}

		if svc.IsAllowed(e.From.Email, e.From.Name) {
			if _, err := c.Executor.Apply(ctx, e, Plan{MarkAsRead: true}); err != nil {
				report.Failed++
				c.logActivity(ctx, store.ActivityFailed, opts.AccountID, item, err.Error())
				continue
			}
			report.MarkedRead++
			continue
		}

		out, err := c.Executor.Apply(ctx, e, Plan{Delete: true})
		if err != nil {
			report.Failed++
			c.logActivity(ctx, store.ActivityFailed, opts.AccountID, item, err.Error())
			continue
		}
		if out.Deleted {
			report.Deleted++
			c.logActivity(ctx, store.ActivityDeleted, opts.AccountID, item, "Deleted unread email"+suffix)
		}
	}

	if err := c.Store.AddStats(ctx, opts.AccountID, store.Stats{
		Processed: report.Deleted + report.MarkedRead,
		Deleted:   report.Deleted,
	}); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("failed to record stats: %w", err))
	}
	c.Log.Info("purge finished", "deleted", report.Deleted, "marked_read", report.MarkedRead, "failed", report.Failed)
	return report, runErr
}
