package app

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/decide"
	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/lists"
	"github.com/lu-zhengda/mailsweep/internal/rules"
	"github.com/lu-zhengda/mailsweep/internal/store"
	"github.com/lu-zhengda/mailsweep/internal/store/sqlite"
)

func seedMailbox(t *testing.T, db *sqlite.DB) {
	t.Helper()
	ctx := context.Background()
	day := 24 * time.Hour
	emails := []domain.Email{
		{
			ID: "deny", From: domain.Address{Email: "spam@bad.example"}, Subject: "hello",
			Date: testNow.Add(-day), Labels: []string{domain.LabelInbox, domain.LabelUnread},
		},
		{
			ID: "junk", From: domain.Address{Email: "noreply@news.mailchimp.example"},
			Subject: "Limited time offer: click here now", Body: "Our newsletter",
			Date: testNow.Add(-40 * day), IsRead: true, Labels: []string{domain.LabelInbox},
			ListUnsubscribe: "<https://news.mailchimp.example/u>",
		},
		{
			ID: "allow", From: domain.Address{Name: "Pal", Email: "friend@pal.example"},
			Subject: "Limited time offer", Date: testNow.Add(-2 * day),
			Labels: []string{domain.LabelInbox, domain.LabelUnread}, ListUnsubscribe: "<https://pal.example/u>",
		},
		{
			ID: "legit", From: domain.Address{Email: "boss@work.example"}, Subject: "Quarterly report",
			Date: testNow.Add(-3 * day), IsRead: true, IsStarred: true,
			Labels: []string{domain.LabelInbox, domain.LabelStarred},
		},
		{
			ID: "rule", From: domain.Address{Email: "billing@utility.example"}, Subject: "Your invoice is ready",
			Date: testNow.Add(-4 * day), Labels: []string{domain.LabelInbox, domain.LabelUnread},
		},
	}
	for i := range emails {
		if err := db.UpsertEmail(ctx, &emails[i], testAccount); err != nil {
			t.Fatalf("UpsertEmail(%s) error: %v", emails[i].ID, err)
		}
	}
	if _, err := db.AddListEntry(ctx, lists.Deny, "bad.example"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddListEntry(ctx, lists.Allow, "friend@pal.example"); err != nil {
		t.Fatal(err)
	}
	rule := rules.NewRule("r1")
	rule.Name = "bills"
	rule.Conditions = []rules.Condition{{Field: rules.FieldSubject, Operator: rules.OpContains, Value: "invoice"}}
	rule.Actions = rules.ActionSet{Archive: true, MarkAsRead: true, AddLabel: "Bills"}
	if err := db.SaveRule(ctx, &rule); err != nil {
		t.Fatal(err)
	}
}

func newTestCleaner(t *testing.T, db *sqlite.DB, p *fakeProvider, u Unsubscriber) *Cleaner {
	t.Helper()
	clock := func() time.Time { return testNow }
	exec := NewExecutor(p, db, u, nil, testAccount, nil)
	c := NewCleaner(db, decide.New(clock, nil), exec, nil)
	c.Clock = clock
	return c
}

func itemsByID(items []Item) map[string]Item {
	m := make(map[string]Item, len(items))
	for _, it := range items {
		m[it.Email.ID] = it
	}
	return m
}

func TestCleanerRun_PreviewNeverMutates(t *testing.T) {
	db := newTestDB(t)
	seedMailbox(t, db)
	p := &fakeProvider{}
	u := &fakeUnsubscriber{}
	c := newTestCleaner(t, db, p, u)

	report, err := c.Run(context.Background(), CleanOptions{
		AccountID: testAccount, AutoDelete: true, AutoUnsubscribe: true, Workers: 2,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !report.Preview {
		t.Error("expected preview report")
	}
	if report.Processed != 5 {
		t.Errorf("Processed = %d, want 5", report.Processed)
	}
	if n := p.mutations(); n != 0 {
		t.Errorf("provider saw %d mutating calls in preview, want 0", n)
	}
	if len(u.calls) != 0 {
		t.Errorf("unsubscriber called %d times in preview", len(u.calls))
	}

	want := map[string]decide.Status{
		"deny":  decide.StatusWillDelete,
		"junk":  decide.StatusWillDelete,
		"allow": decide.StatusProtected,
		"legit": decide.StatusLikelyLegitimate,
		"rule":  decide.StatusWillArchive,
	}
	items := itemsByID(report.Items)
	for id, status := range want {
		if got := items[id].Decision.Status(); got != status {
			t.Errorf("%s status = %q, want %q", id, got, status)
		}
	}
	if !items["junk"].Plan.Unsubscribe {
		t.Error("junk plan should unsubscribe with AutoUnsubscribe")
	}
	if items["allow"].Plan.Unsubscribe {
		t.Error("allow-listed sender must not be unsubscribed")
	}

	st, err := db.GetStats(context.Background(), testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if st.Processed != 5 || st.Deleted != 0 {
		t.Errorf("stats = %+v, want processed 5, deleted 0", st)
	}
}

func TestCleanerRun_ApplyWithoutAutoDelete(t *testing.T) {
	db := newTestDB(t)
	seedMailbox(t, db)
	p := &fakeProvider{}
	c := newTestCleaner(t, db, p, &fakeUnsubscriber{})

	report, err := c.Run(context.Background(), CleanOptions{AccountID: testAccount, Apply: true})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(p.trashed) != 0 {
		t.Errorf("trashed %v without auto-delete, want none", p.trashed)
	}
	if report.Deleted != 0 {
		t.Errorf("Deleted = %d, want 0", report.Deleted)
	}

	if !reflect.DeepEqual(p.created, []string{"Bills"}) {
		t.Errorf("created labels = %v, want [Bills]", p.created)
	}
	if len(p.modified) != 1 {
		t.Fatalf("modify calls = %+v, want 1", p.modified)
	}
	call := p.modified[0]
	if call.ID != "rule" {
		t.Errorf("modified %q, want rule", call.ID)
	}
	if !reflect.DeepEqual(call.Add, []string{"Label_Bills"}) {
		t.Errorf("Add = %v, want [Label_Bills]", call.Add)
	}
	if !reflect.DeepEqual(call.Remove, []string{domain.LabelInbox, domain.LabelUnread}) {
		t.Errorf("Remove = %v, want [INBOX UNREAD]", call.Remove)
	}

	cached, err := db.GetEmail(context.Background(), "rule")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cached.Labels, []string{"Label_Bills"}) {
		t.Errorf("cached labels = %v, want [Label_Bills]", cached.Labels)
	}
	if !cached.IsRead {
		t.Error("cached email should be read")
	}
}

func TestCleanerRun_ApplyAutoDelete(t *testing.T) {
	db := newTestDB(t)
	seedMailbox(t, db)
	p := &fakeProvider{}
	c := newTestCleaner(t, db, p, &fakeUnsubscriber{})
	ctx := context.Background()

	report, err := c.Run(ctx, CleanOptions{AccountID: testAccount, Apply: true, AutoDelete: true})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", report.Deleted)
	}
	trashed := strings.Join(p.trashed, ",")
	if !strings.Contains(trashed, "deny") || !strings.Contains(trashed, "junk") || len(p.trashed) != 2 {
		t.Errorf("trashed = %v, want deny and junk", p.trashed)
	}
	if _, err := db.GetEmail(ctx, "deny"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetEmail(deny) error = %v, want ErrNotFound", err)
	}

	logged, err := db.ListActivity(ctx, store.ActivityDeleted, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logged) != 2 {
		t.Fatalf("deleted activity = %d entries, want 2", len(logged))
	}
	reasons := logged[0].Reason + "|" + logged[1].Reason
	if !strings.Contains(reasons, "Deleted: blacklisted (confidence: 100%)") {
		t.Errorf("activity reasons = %q", reasons)
	}

	st, err := db.GetStats(ctx, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if st.Processed != 5 || st.Deleted != 2 {
		t.Errorf("stats = %+v, want processed 5, deleted 2", st)
	}
}

func TestCleanerRun_AutoUnsubscribe(t *testing.T) {
	db := newTestDB(t)
	seedMailbox(t, db)
	u := &fakeUnsubscriber{}
	c := newTestCleaner(t, db, &fakeProvider{}, u)
	ctx := context.Background()

	report, err := c.Run(ctx, CleanOptions{AccountID: testAccount, Apply: true, AutoUnsubscribe: true})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !reflect.DeepEqual(u.calls, []string{"junk"}) {
		t.Errorf("unsubscribe calls = %v, want [junk]", u.calls)
	}
	if report.Unsubscribed != 1 {
		t.Errorf("Unsubscribed = %d, want 1", report.Unsubscribed)
	}
	logged, err := db.ListActivity(ctx, store.ActivityUnsubscribed, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logged) != 1 || logged[0].Reason != "Unsubscribed via POST" {
		t.Errorf("unsubscribed activity = %+v", logged)
	}
}

func TestCleanerRun_FailuresContinueBatch(t *testing.T) {
	db := newTestDB(t)
	seedMailbox(t, db)
	p := &fakeProvider{trashErr: errors.New("quota exceeded")}
	c := newTestCleaner(t, db, p, &fakeUnsubscriber{})
	ctx := context.Background()

	report, err := c.Run(ctx, CleanOptions{AccountID: testAccount, Apply: true, AutoDelete: true})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Failed != 2 {
		t.Errorf("Failed = %d, want 2", report.Failed)
	}
	if len(p.modified) != 1 {
		t.Errorf("rule email should still be modified after earlier failures, got %d calls", len(p.modified))
	}
	failed, err := db.ListActivity(ctx, store.ActivityFailed, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 || !strings.Contains(failed[0].Reason, "quota exceeded") {
		t.Errorf("failed activity = %+v", failed)
	}
	for _, it := range report.Items {
		if it.Plan.Delete && it.Err == nil {
			t.Errorf("item %s: expected error recorded", it.Email.ID)
		}
	}
}

func TestCleanerRun_ApplyNeedsExecutor(t *testing.T) {
	db := newTestDB(t)
	c := NewCleaner(db, decide.New(nil, nil), nil, nil)
	if _, err := c.Run(context.Background(), CleanOptions{AccountID: testAccount, Apply: true}); err == nil {
		t.Error("expected error when applying without an executor")
	}
}

func TestCleanerRun_Canceled(t *testing.T) {
	db := newTestDB(t)
	seedMailbox(t, db)
	p := &fakeProvider{}
	c := newTestCleaner(t, db, p, &fakeUnsubscriber{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Run(ctx, CleanOptions{AccountID: testAccount, Apply: true, AutoDelete: true}); err == nil {
		t.Error("expected error for canceled context")
	}
	if n := p.mutations(); n != 0 {
		t.Errorf("provider saw %d mutating calls after cancel", n)
	}
}

func TestPlanFor(t *testing.T) {
	tests := []struct {
		name           string
		d              decide.Decision
		unsubscribable bool
		opts           CleanOptions
		want           Plan
	}{
		{
			name: "score delete needs auto-delete",
			d:    decide.Decision{ShouldDelete: true, Reason: decide.ReasonLikelyJunk, CanUnsubscribe: true},
			want: Plan{},
		},
		{
			name: "score delete with auto-delete",
			d:    decide.Decision{ShouldDelete: true, Reason: decide.ReasonLikelyJunk, CanUnsubscribe: true},
			opts: CleanOptions{AutoDelete: true},
			want: Plan{Delete: true},
		},
		{
			name: "rule delete always runs",
			d:    decide.Decision{ShouldDelete: true, DeleteByRule: true, Reason: decide.ReasonMatchedRule, CanUnsubscribe: true},
			want: Plan{Delete: true},
		},
		{
			name: "deny-listed sender under archive rule needs auto-delete",
			d:    decide.Decision{ShouldDelete: true, ShouldArchive: true, Reason: decide.ReasonMatchedRule, CanUnsubscribe: true},
			want: Plan{Archive: true},
		},
		{
			name:           "rule unsubscribe needs mechanism",
			d:              decide.Decision{ShouldUnsubscribe: true, CanUnsubscribe: true},
			unsubscribable: false,
			want:           Plan{},
		},
		{
			name:           "rule unsubscribe",
			d:              decide.Decision{ShouldUnsubscribe: true, CanUnsubscribe: true},
			unsubscribable: true,
			want:           Plan{Unsubscribe: true},
		},
		{
			name:           "auto-unsubscribe skips allow-listed",
			d:              decide.Decision{Reason: decide.ReasonWhitelisted, CanUnsubscribe: false},
			unsubscribable: true,
			opts:           CleanOptions{AutoUnsubscribe: true},
			want:           Plan{},
		},
		{
			name: "non-destructive actions pass through",
			d:    decide.Decision{ShouldArchive: true, ShouldMarkAsRead: true, ShouldStar: true, AddLabel: "Bills"},
			want: Plan{Archive: true, MarkAsRead: true, Star: true, AddLabel: "Bills"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlanFor(tt.d, tt.unsubscribable, tt.opts); got != tt.want {
				t.Errorf("PlanFor() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPlanFor_ArchiveRuleOnDenyListedSender(t *testing.T) {
	e := decide.New(func() time.Time { return testNow }, nil)
	rec := domain.EmailRecord{SenderEmail: "offers@mailchimp.com", Subject: "Weekly deals"}
	archive := rules.FilterRule{
		ID: "arch", Enabled: true,
		Conditions: []rules.Condition{{Field: rules.FieldSubject, Operator: rules.OpContains, Value: "deals"}},
		Actions:    rules.ActionSet{Archive: true},
	}
	deny := lists.New(nil, []string{"mailchimp.com"})

	tests := []struct {
		name  string
		rules []rules.FilterRule
		opts  CleanOptions
		want  bool
	}{
		{"archive rule without auto-delete", []rules.FilterRule{archive}, CleanOptions{}, false},
		{"archive rule with auto-delete", []rules.FilterRule{archive}, CleanOptions{AutoDelete: true}, true},
		{"no rule without auto-delete", nil, CleanOptions{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(rec, decide.Input{Lists: deny, Rules: tt.rules})
			if !d.ShouldDelete {
				t.Fatalf("Decision = %+v, want ShouldDelete", d)
			}
			if got := PlanFor(d, false, tt.opts).Delete; got != tt.want {
				t.Errorf("PlanFor().Delete = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlanActions(t *testing.T) {
	p := Plan{Unsubscribe: true, Archive: true, MarkAsRead: true, MarkAsUnread: true, AddLabel: "x"}
	want := []string{"unsubscribe", "archive", "markAsRead", "addLabel:x"}
	if got := p.Actions(); !reflect.DeepEqual(got, want) {
		t.Errorf("Actions() = %v, want %v", got, want)
	}
	del := Plan{Delete: true, Archive: true}
	if got := del.Actions(); !reflect.DeepEqual(got, []string{"delete"}) {
		t.Errorf("Actions() = %v, want [delete]", got)
	}
}

func TestPurgeUnread(t *testing.T) {
	db := newTestDB(t)
	seedMailbox(t, db)
	ctx := context.Background()

	preview := newTestCleaner(t, db, &fakeProvider{}, nil)
	rep, err := preview.PurgeUnread(ctx, PurgeOptions{AccountID: testAccount, RespectAllowList: true})
	if err != nil {
		t.Fatalf("PurgeUnread() preview error: %v", err)
	}
	if len(rep.Candidates) != 3 {
		t.Errorf("candidates = %d, want 3 unread", len(rep.Candidates))
	}

	p := &fakeProvider{}
	c := newTestCleaner(t, db, p, nil)
	rep, err = c.PurgeUnread(ctx, PurgeOptions{AccountID: testAccount, Apply: true, RespectAllowList: true})
	if err != nil {
		t.Fatalf("PurgeUnread() error: %v", err)
	}
	if rep.Deleted != 2 || rep.MarkedRead != 1 {
		t.Errorf("report = %+v, want 2 deleted, 1 marked read", rep)
	}
	if len(p.modified) != 1 || p.modified[0].ID != "allow" {
		t.Errorf("modified = %+v, want allow marked read", p.modified)
	}
	logged, err := db.ListActivity(ctx, store.ActivityDeleted, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logged) != 2 || logged[0].Reason != "Deleted unread email (allow list checked)" {
		t.Errorf("activity = %+v", logged)
	}
	st, err := db.GetStats(ctx, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if st.Processed != 3 || st.Deleted != 2 {
		t.Errorf("stats = %+v, want processed 3, deleted 2", st)
	}
}
