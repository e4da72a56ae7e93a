package store

import (
	"context"
	"errors"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/lists"
	"github.com/lu-zhengda/mailsweep/internal/rules"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for the application.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error

	// Emails
	UpsertEmail(ctx context.Context, email *domain.Email, accountID string) error
	GetEmail(ctx context.Context, id string) (*domain.Email, error)
	ListEmails(ctx context.Context, opts ListEmailOptions) ([]domain.Email, error)
	DeleteEmail(ctx context.Context, id string) error
	SetEmailRead(ctx context.Context, emailID string, read bool) error
	SetEmailStarred(ctx context.Context, emailID string, starred bool) error

	// Labels
	UpsertLabel(ctx context.Context, label *domain.Label) error
	ListLabels(ctx context.Context, accountID string) ([]domain.Label, error)
	SetEmailLabels(ctx context.Context, emailID string, labelIDs []string) error

	// Search
	SearchEmails(ctx context.Context, query string, accountID string) ([]domain.Email, error)

	// Sync state
	GetSyncState(ctx context.Context, accountID string) (*SyncState, error)
	SetSyncState(ctx context.Context, state *SyncState) error

	// Sender lists
	AddListEntry(ctx context.Context, kind lists.Kind, pattern string) (bool, error)
	RemoveListEntry(ctx context.Context, kind lists.Kind, pattern string) (bool, error)
	ListEntries(ctx context.Context, kind lists.Kind) ([]string, error)

	// Filter rules
	SaveRule(ctx context.Context, rule *rules.FilterRule) error
	GetRule(ctx context.Context, id string) (*rules.FilterRule, error)
	ListRules(ctx context.Context) ([]rules.FilterRule, error)
	DeleteRule(ctx context.Context, id string) error

	// Activity log and statistics
	LogActivity(ctx context.Context, entry *Activity) error
	ListActivity(ctx context.Context, kind ActivityKind, limit int) ([]Activity, error)
	ClearActivity(ctx context.Context, kind ActivityKind) error
	GetStats(ctx context.Context, accountID string) (*Stats, error)
	AddStats(ctx context.Context, accountID string, delta Stats) error
	ResetStats(ctx context.Context, accountID string) error
	TopSenders(ctx context.Context, accountID string, limit int) ([]SenderStat, error)

	// Lifecycle
	Close() error
}

// ListEmailOptions configures email listing queries.
type ListEmailOptions struct {
	AccountID string
	LabelID   string
	Limit     int
	Offset    int
}

// SyncState tracks the synchronization progress for an account.
type SyncState struct {
	AccountID string
	HistoryID uint64
	LastSync  int64 // Unix timestamp
}

// ActivityKind classifies an activity log entry.
type ActivityKind string

const (
	ActivityUnsubscribed ActivityKind = "unsubscribed"
	ActivityDeleted      ActivityKind = "deleted"
	ActivityFailed       ActivityKind = "failed"
)

// MaxActivityPerKind bounds the number of retained log entries per kind.
const MaxActivityPerKind = 1000

// ParseActivityKind validates a kind name from user input.
func ParseActivityKind(s string) (ActivityKind, error) {
	switch k := ActivityKind(s); k {
	case ActivityUnsubscribed, ActivityDeleted, ActivityFailed:
		return k, nil
	default:
		return "", errors.New("unknown activity kind " + s + " (use unsubscribed, deleted, or failed)")
	}
}

// Activity records one action taken (or attempted) on a message.
type Activity struct {
	ID          int64
	Kind        ActivityKind
	Timestamp   time.Time
	AccountID   string
	EmailID     string
	SenderEmail string
	SenderName  string
	Subject     string
	Reason      string
}

// Stats holds cumulative cleanup counters.
type Stats struct {
	Processed    int
	Unsubscribed int
	Deleted      int
}

// SenderStat aggregates synced mail by sender.
type SenderStat struct {
	Email     string
	Name      string
	Count     int
	FirstSeen time.Time
}
