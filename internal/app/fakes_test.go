package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/provider"
	"github.com/lu-zhengda/mailsweep/internal/store/sqlite"
	"github.com/lu-zhengda/mailsweep/internal/unsubscribe"
)

const testAccount = "acct1"

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.CreateAccount(context.Background(), &domain.Account{
		ID: testAccount, Email: "me@example.com", Provider: "gmail", CreatedAt: testNow,
	}); err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	return db
}

type modifyCall struct {
	ID          string
	Add, Remove []string
}

// fakeProvider records mutating calls and serves canned messages.
type fakeProvider struct {
	mu sync.Mutex

	messages  []domain.Email
	labels    []domain.Label
	history   []provider.HistoryEvent
	historyID uint64

	trashed  []string
	modified []modifyCall
	created  []string
	sent     []*domain.Email

	trashErr error
}

func (f *fakeProvider) Authenticate(context.Context) error { return nil }
func (f *fakeProvider) IsAuthenticated() bool              { return true }

func (f *fakeProvider) ListMessages(_ context.Context, opts provider.ListOptions) ([]domain.Email, string, error) {
	n := len(f.messages)
	if opts.MaxResults > 0 && opts.MaxResults < n {
		n = opts.MaxResults
	}
	return f.messages[:n], "", nil
}

func (f *fakeProvider) GetMessage(_ context.Context, id string) (*domain.Email, error) {
	for i := range f.messages {
		if f.messages[i].ID == id {
			e := f.messages[i]
			return &e, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeProvider) SendMessage(_ context.Context, email *domain.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, email)
	return nil
}

func (f *fakeProvider) ModifyLabels(_ context.Context, msgID string, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modified = append(f.modified, modifyCall{ID: msgID, Add: add, Remove: remove})
	return nil
}

func (f *fakeProvider) TrashMessage(_ context.Context, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trashErr != nil {
		return f.trashErr
	}
	f.trashed = append(f.trashed, msgID)
	return nil
}

func (f *fakeProvider) MarkRead(ctx context.Context, msgID string, read bool) error {
	if read {
		return f.ModifyLabels(ctx, msgID, nil, []string{domain.LabelUnread})
	}
	return f.ModifyLabels(ctx, msgID, []string{domain.LabelUnread}, nil)
}

func (f *fakeProvider) ListLabels(context.Context) ([]domain.Label, error) {
	return f.labels, nil
}

func (f *fakeProvider) CreateLabel(_ context.Context, name string) (*domain.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return &domain.Label{ID: "Label_" + name, Name: name, Type: domain.LabelTypeUser}, nil
}

func (f *fakeProvider) Search(ctx context.Context, _ string, opts provider.ListOptions) ([]domain.Email, string, error) {
	return f.ListMessages(ctx, opts)
}

func (f *fakeProvider) History(context.Context, uint64) ([]provider.HistoryEvent, uint64, error) {
	return f.history, f.historyID, nil
}

func (f *fakeProvider) CurrentHistoryID(context.Context) (uint64, error) {
	return f.historyID, nil
}

func (f *fakeProvider) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trashed) + len(f.modified) + len(f.created) + len(f.sent)
}

var _ provider.EmailProvider = (*fakeProvider)(nil)

type fakeUnsubscriber struct {
	calls []string
	err   error
}

func (f *fakeUnsubscriber) Unsubscribe(_ context.Context, e *domain.Email) (unsubscribe.Target, error) {
	f.calls = append(f.calls, e.ID)
	if f.err != nil {
		return unsubscribe.Target{}, f.err
	}
	return unsubscribe.Target{Method: unsubscribe.MethodOneClick, URL: "https://example.com/u"}, nil
}
