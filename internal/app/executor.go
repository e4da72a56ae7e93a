package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/provider"
	"github.com/lu-zhengda/mailsweep/internal/rate"
	"github.com/lu-zhengda/mailsweep/internal/store"
	"github.com/lu-zhengda/mailsweep/internal/unsubscribe"
)

// Unsubscriber executes an unsubscribe for a message.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, e *domain.Email) (unsubscribe.Target, error)
}

// Plan is the set of mailbox changes to make for one message.
type Plan struct {
	Unsubscribe  bool
	Delete       bool
	Archive      bool
	MarkAsRead   bool
	MarkAsUnread bool
	Star         bool
	AddLabel     string
}

// IsZero reports whether the plan changes nothing.
func (p Plan) IsZero() bool {
	return p == Plan{}
}

// Actions names the planned changes in execution order.
func (p Plan) Actions() []string {
	var out []string
	if p.Unsubscribe {
		out = append(out, "unsubscribe")
	}
	if p.Delete {
		return append(out, "delete")
	}
	if p.Archive {
		out = append(out, "archive")
	}
	if p.MarkAsRead {
		out = append(out, "markAsRead")
	} else if p.MarkAsUnread {
		out = append(out, "markAsUnread")
	}
	if p.Star {
		out = append(out, "star")
	}
	if p.AddLabel != "" {
		out = append(out, "addLabel:"+p.AddLabel)
	}
	return out
}

// Outcome records what Apply actually did.
type Outcome struct {
	Unsubscribed      bool
	UnsubscribeMethod unsubscribe.Method
	Deleted           bool
	Modified          bool
}

// Executor applies plans to the mailbox through the provider and mirrors
// the result in the store. Every mutating provider call waits on Rate.
type Executor struct {
	Provider  provider.EmailProvider
	Store     store.Store
	Unsub     Unsubscriber
	Rate      rate.Limiter
	AccountID string
	Log       *slog.Logger

	mu       sync.Mutex
	labelIDs map[string]string // lowercased name -> ID
}

// NewExecutor returns an Executor. A nil limiter does not throttle and a nil
// logger discards.
func NewExecutor(p provider.EmailProvider, s store.Store, u Unsubscriber, limiter rate.Limiter, accountID string, logger *slog.Logger) *Executor {
	if limiter == nil {
		limiter = rate.Unlimited{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		Provider:  p,
		Store:     s,
		Unsub:     u,
		Rate:      limiter,
		AccountID: accountID,
		Log:       logger,
	}
}

// Apply executes plan against e. A failed unsubscribe does not prevent the
// remaining changes; all failures are joined in the returned error.
func (x *Executor) Apply(ctx context.Context, e *domain.Email, plan Plan) (Outcome, error) {
	var (
		out  Outcome
		errs []error
	)

	if plan.Unsubscribe {
		if x.Unsub == nil {
			errs = append(errs, errors.New("unsubscribe is not configured"))
		} else if err := x.Rate.Wait(ctx); err != nil {
			return out, err
		} else if target, err := x.Unsub.Unsubscribe(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		} else {
			out.Unsubscribed = true
			out.UnsubscribeMethod = target.Method
		}
	}

	if plan.Delete {
		if err := x.trash(ctx, e); err != nil {
			errs = append(errs, err)
		} else {
			out.Deleted = true
		}
		return out, errors.Join(errs...)
	}

	modified, err := x.modify(ctx, e, plan)
	if err != nil {
		errs = append(errs, err)
	}
	out.Modified = modified
	return out, errors.Join(errs...)
}

func (x *Executor) trash(ctx context.Context, e *domain.Email) error {
	if err := x.Rate.Wait(ctx); err != nil {
		return err
	}
	if err := x.Provider.TrashMessage(ctx, e.ID); err != nil {
		return fmt.Errorf("failed to trash message %s: %w", e.ID, err)
	}
	if err := x.Store.DeleteEmail(ctx, e.ID); err != nil {
		return fmt.Errorf("failed to remove trashed message %s from cache: %w", e.ID, err)
	}
	x.Log.Debug("trashed message", "id", e.ID)
	return nil
}

// modify applies all label changes of plan in one provider call.
func (x *Executor) modify(ctx context.Context, e *domain.Email, plan Plan) (bool, error) {
	var add, remove []string
	if plan.Archive && e.HasLabel(domain.LabelInbox) {
		remove = append(remove, domain.LabelInbox)
	}
	switch {
	case plan.MarkAsRead && !e.IsRead:
		remove = append(remove, domain.LabelUnread)
	case !plan.MarkAsRead && plan.MarkAsUnread && e.IsRead:
		add = append(add, domain.LabelUnread)
	}
	if plan.Star && !e.IsStarred {
		add = append(add, domain.LabelStarred)
	}
	if plan.AddLabel != "" {
		id, err := x.ensureLabel(ctx, plan.AddLabel)
		if err != nil {
			return false, err
		}
		if !e.HasLabel(id) {
			add = append(add, id)
		}
	}
	if len(add) == 0 && len(remove) == 0 {
		return false, nil
	}

	if err := x.Rate.Wait(ctx); err != nil {
		return false, err
	}
	if err := x.Provider.ModifyLabels(ctx, e.ID, add, remove); err != nil {
		return false, fmt.Errorf("failed to modify labels on message %s: %w", e.ID, err)
	}

	labels := slices.DeleteFunc(slices.Clone(e.Labels), func(l string) bool {
		return slices.Contains(remove, l)
	})
	for _, l := range add {
		if !slices.Contains(labels, l) {
			labels = append(labels, l)
		}
	}
	if err := x.Store.SetEmailLabels(ctx, e.ID, labels); err != nil {
		return true, fmt.Errorf("failed to update cached labels for %s: %w", e.ID, err)
	}
	if err := x.Store.SetEmailRead(ctx, e.ID, !slices.Contains(labels, domain.LabelUnread)); err != nil {
		return true, fmt.Errorf("failed to update cached read state for %s: %w", e.ID, err)
	}
	if err := x.Store.SetEmailStarred(ctx, e.ID, slices.Contains(labels, domain.LabelStarred)); err != nil {
		return true, fmt.Errorf("failed to update cached star state for %s: %w", e.ID, err)
	}
	e.Labels = labels
	e.IsRead = !slices.Contains(labels, domain.LabelUnread)
	e.IsStarred = slices.Contains(labels, domain.LabelStarred)
	return true, nil
}

// ensureLabel resolves a label name to its ID, creating the label when the
// mailbox does not have it yet.
func (x *Executor) ensureLabel(ctx context.Context, name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.labelIDs == nil {
		labels, err := x.Store.ListLabels(ctx, x.AccountID)
		if err != nil {
			return "", fmt.Errorf("failed to list labels: %w", err)
		}
		ids := make(map[string]string, len(labels))
		for _, l := range labels {
			ids[strings.ToLower(l.Name)] = l.ID
		}
		x.labelIDs = ids
	}
	if id, ok := x.labelIDs[key]; ok {
		return id, nil
	}

	if err := x.Rate.Wait(ctx); err != nil {
		return "", err
	}
	label, err := x.Provider.CreateLabel(ctx, strings.TrimSpace(name))
	if err != nil {
		return "", fmt.Errorf("failed to create label %q: %w", name, err)
	}
	label.AccountID = x.AccountID
	if err := x.Store.UpsertLabel(ctx, label); err != nil {
		return "", fmt.Errorf("failed to cache label %q: %w", name, err)
	}
	x.labelIDs[key] = label.ID
	x.Log.Info("created label", "name", label.Name, "id", label.ID)
	return label.ID, nil
}
