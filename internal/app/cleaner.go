package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/decide"
	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/lists"
	"github.com/lu-zhengda/mailsweep/internal/store"
	"github.com/lu-zhengda/mailsweep/internal/unsubscribe"
)

// CleanOptions configures one cleanup batch.
type CleanOptions struct {
	AccountID string
	LabelID   string
	Limit     int

	// Apply executes the plan; otherwise the batch is a preview.
	Apply           bool
	AutoUnsubscribe bool
	AutoDelete      bool

	MinConfidence          float64
	RulesOverrideAllowList bool
	Workers                int
}

// Item is the classification and plan for one message.
type Item struct {
	Email    domain.Email
	Record   domain.EmailRecord
	Decision decide.Decision
	// Unsubscribable is true when the message offers an unsubscribe mechanism.
	Unsubscribable bool
	Plan           Plan
	Outcome        Outcome
	Err            error
}

// Report summarizes a cleanup batch.
type Report struct {
	Preview      bool
	Items        []Item
	Processed    int
	Unsubscribed int
	Deleted      int
	Failed       int
}

// Cleaner classifies cached mail and executes the resulting decisions.
type Cleaner struct {
	Store    store.Store
	Engine   *decide.Engine
	Executor *Executor
	Log      *slog.Logger
	Clock    func() time.Time
}

// NewCleaner returns a Cleaner. executor may be nil for preview-only use.
func NewCleaner(s store.Store, engine *decide.Engine, executor *Executor, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cleaner{Store: s, Engine: engine, Executor: executor, Log: logger, Clock: time.Now}
}

// Snapshot loads the lists and rules once so every decision in a batch sees
// the same configuration.
func (c *Cleaner) Snapshot(ctx context.Context, minConfidence float64, overrideAllowList bool) (decide.Input, error) {
	svc, err := lists.Load(ctx, c.Store)
	if err != nil {
		return decide.Input{}, err
	}
	rs, err := c.Store.ListRules(ctx)
	if err != nil {
		return decide.Input{}, fmt.Errorf("failed to load rules: %w", err)
	}
	return decide.Input{
		Lists:                  svc,
		Rules:                  rs,
		MinConfidence:          minConfidence,
		RulesOverrideAllowList: overrideAllowList,
	}, nil
}

// Classify decides every email and attaches the plan opts would execute.
// userLabels maps label IDs to names for the user labels on emails.
func (c *Cleaner) Classify(ctx context.Context, emails []domain.Email, userLabels map[string]string, opts CleanOptions) ([]Item, error) {
	in, err := c.Snapshot(ctx, opts.MinConfidence, opts.RulesOverrideAllowList)
	if err != nil {
		return nil, err
	}

	recs := make([]domain.EmailRecord, len(emails))
	for i := range emails {
		recs[i] = domain.NewEmailRecord(&emails[i], userLabels)
	}
	decisions, err := c.Engine.DecideAll(ctx, recs, in, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to classify emails: %w", err)
	}

	items := make([]Item, len(emails))
	for i := range emails {
		items[i] = Item{
			Email:          emails[i],
			Record:         recs[i],
			Decision:       decisions[i],
			Unsubscribable: unsubscribe.Available(&emails[i]),
		}
		items[i].Plan = PlanFor(items[i].Decision, items[i].Unsubscribable, opts)
	}
	return items, nil
}

// PlanFor turns a decision into mailbox changes. Rule-driven deletes always
// run; list and score deletes need AutoDelete. Unsubscribing needs an
// available mechanism and either a rule or AutoUnsubscribe, and never
// touches allow-listed senders.
func PlanFor(d decide.Decision, unsubscribable bool, opts CleanOptions) Plan {
	return Plan{
		Unsubscribe:  unsubscribable && d.CanUnsubscribe && (d.ShouldUnsubscribe || opts.AutoUnsubscribe),
		Delete:       d.ShouldDelete && (d.DeleteByRule || opts.AutoDelete),
		Archive:      d.ShouldArchive,
		MarkAsRead:   d.ShouldMarkAsRead,
		MarkAsUnread: d.ShouldMarkAsUnread,
		Star:         d.ShouldStar,
		AddLabel:     d.AddLabel,
	}
}

// Run classifies up to opts.Limit cached emails and, unless previewing,
// executes each plan in order. Per-message failures are recorded and the
// batch continues; a canceled context stops it between messages.
func (c *Cleaner) Run(ctx context.Context, opts CleanOptions) (*Report, error) {
	if opts.Apply && c.Executor == nil {
		return nil, errors.New("cleaner has no executor; run in preview mode")
	}
	emails, err := c.Store.ListEmails(ctx, store.ListEmailOptions{
		AccountID: opts.AccountID,
		LabelID:   opts.LabelID,
		Limit:     opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load emails: %w", err)
	}
	labels, err := c.Store.ListLabels(ctx, opts.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}

	items, err := c.Classify(ctx, emails, domain.UserLabelNames(labels), opts)
	if err != nil {
		return nil, err
	}
	report := &Report{Preview: !opts.Apply, Items: items}

	var runErr error
	for i := range report.Items {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		item := &report.Items[i]
		report.Processed++
		if !opts.Apply || item.Plan.IsZero() {
			continue
		}
		c.execute(ctx, opts.AccountID, item, report)
	}

	if err := c.Store.AddStats(ctx, opts.AccountID, store.Stats{
		Processed:    report.Processed,
		Unsubscribed: report.Unsubscribed,
		Deleted:      report.Deleted,
	}); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("failed to record stats: %w", err))
	}
	c.Log.Info("cleanup finished",
		"preview", report.Preview, "processed", report.Processed,
		"unsubscribed", report.Unsubscribed, "deleted", report.Deleted, "failed", report.Failed)
	return report, runErr
}

func (c *Cleaner) execute(ctx context.Context, accountID string, item *Item, report *Report) {
	out, err := c.Executor.Apply(ctx, &item.Email, item.Plan)
	item.Outcome = out

	if out.Unsubscribed {
		report.Unsubscribed++
		c.logActivity(ctx, store.ActivityUnsubscribed, accountID, item,
			fmt.Sprintf("Unsubscribed via %s", out.UnsubscribeMethod))
	}
	if out.Deleted {
		report.Deleted++
		c.logActivity(ctx, store.ActivityDeleted, accountID, item,
			fmt.Sprintf("Deleted: %s (confidence: %s%%)", item.Decision.Reason, percent(item.Decision.Confidence)))
	}
	if err != nil {
		item.Err = err
		report.Failed++
		c.Log.Warn("failed to apply decision", "email", item.Email.ID, "sender", item.Record.SenderEmail, "error", err)
		c.logActivity(ctx, store.ActivityFailed, accountID, item, err.Error())
	}
}

func (c *Cleaner) logActivity(ctx context.Context, kind store.ActivityKind, accountID string, item *Item, reason string) {
	entry := &store.Activity{
		Kind:        kind,
		Timestamp:   c.now(),
		AccountID:   accountID,
		EmailID:     item.Email.ID,
		SenderEmail: item.Record.SenderEmail,
		SenderName:  item.Record.SenderName,
		Subject:     item.Record.Subject,
		Reason:      reason,
	}
	if err := c.Store.LogActivity(ctx, entry); err != nil {
		c.Log.Warn("failed to record activity", "kind", kind, "email", item.Email.ID, "error", err)
	}
}

func (c *Cleaner) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock()
}

func percent(v float64) string {
	return strconv.Itoa(int(math.Round(v * 100)))
}
