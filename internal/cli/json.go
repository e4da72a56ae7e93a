package cli

import (
	"time"

	"github.com/lu-zhengda/mailsweep/internal/app"
	"github.com/lu-zhengda/mailsweep/internal/decide"
	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/junk"
	"github.com/lu-zhengda/mailsweep/internal/rules"
	"github.com/lu-zhengda/mailsweep/internal/store"
)

// ---------------------------------------------------------------------------
// Account JSON types (account list)
// ---------------------------------------------------------------------------

type jsonAccount struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Provider  string `json:"provider"`
	CreatedAt string `json:"created_at"`
}

func toJSONAccounts(accounts []domain.Account) []jsonAccount {
	out := make([]jsonAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, jsonAccount{
			ID:        a.ID,
			Email:     a.Email,
			Provider:  a.Provider,
			CreatedAt: a.CreatedAt.Format(time.DateOnly),
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Decision JSON types (classify, clean, score --decide)
// ---------------------------------------------------------------------------

type jsonDecision struct {
	Status       string       `json:"status"`
	Reason       string       `json:"reason"`
	Confidence   float64      `json:"confidence"`
	Unsubscribe  bool         `json:"unsubscribe"`
	Delete       bool         `json:"delete"`
	Archive      bool         `json:"archive"`
	MarkAsRead   bool         `json:"mark_as_read"`
	MarkAsUnread bool         `json:"mark_as_unread"`
	Star         bool         `json:"star"`
	AddLabel     string       `json:"add_label,omitempty"`
	MatchedRules []string     `json:"matched_rules,omitempty"`
	Junk         *junk.Result `json:"junk,omitempty"`
}

func toJSONDecision(d decide.Decision) jsonDecision {
	return jsonDecision{
		Status:       string(d.Status()),
		Reason:       string(d.Reason),
		Confidence:   d.Confidence,
		Unsubscribe:  d.ShouldUnsubscribe,
		Delete:       d.ShouldDelete,
		Archive:      d.ShouldArchive,
		MarkAsRead:   d.ShouldMarkAsRead,
		MarkAsUnread: d.ShouldMarkAsUnread,
		Star:         d.ShouldStar,
		AddLabel:     d.AddLabel,
		MatchedRules: d.MatchedRules,
		Junk:         d.Junk,
	}
}

type jsonItem struct {
	ID             string       `json:"id"`
	From           jsonAddress  `json:"from"`
	Subject        string       `json:"subject"`
	Date           string       `json:"date,omitempty"`
	Decision       jsonDecision `json:"decision"`
	Unsubscribable bool         `json:"unsubscribable"`
	Actions        []string     `json:"actions"`
	Result         *jsonOutcome `json:"result,omitempty"`
}

type jsonOutcome struct {
	Unsubscribed      bool   `json:"unsubscribed"`
	UnsubscribeMethod string `json:"unsubscribe_method,omitempty"`
	Deleted           bool   `json:"deleted"`
	Modified          bool   `json:"modified"`
	Error             string `json:"error,omitempty"`
}

func toJSONItems(items []app.Item) []jsonItem {
	out := make([]jsonItem, 0, len(items))
	for _, it := range items {
		ji := jsonItem{
			ID:             it.Email.ID,
			From:           toJSONAddress(it.Email.From),
			Subject:        it.Email.Subject,
			Decision:       toJSONDecision(it.Decision),
			Unsubscribable: it.Unsubscribable,
			Actions:        it.Plan.Actions(),
		}
		if !it.Email.Date.IsZero() {
			ji.Date = it.Email.Date.Format(time.RFC3339)
		}
		if ji.Actions == nil {
			ji.Actions = []string{}
		}
		out = append(out, ji)
	}
	return out
}

type jsonReport struct {
	Preview      bool       `json:"preview"`
	Processed    int        `json:"processed"`
	Unsubscribed int        `json:"unsubscribed"`
	Deleted      int        `json:"deleted"`
	Failed       int        `json:"failed"`
	Items        []jsonItem `json:"items"`
}

func toJSONReport(r *app.Report) jsonReport {
	items := toJSONItems(r.Items)
	if !r.Preview {
		for i, it := range r.Items {
			if it.Plan.IsZero() {
				continue
			}
			o := &jsonOutcome{
				Unsubscribed:      it.Outcome.Unsubscribed,
				UnsubscribeMethod: string(it.Outcome.UnsubscribeMethod),
				Deleted:           it.Outcome.Deleted,
				Modified:          it.Outcome.Modified,
			}
			if it.Err != nil {
				o.Error = it.Err.Error()
			}
			items[i].Result = o
		}
	}
	return jsonReport{
		Preview:      r.Preview,
		Processed:    r.Processed,
		Unsubscribed: r.Unsubscribed,
		Deleted:      r.Deleted,
		Failed:       r.Failed,
		Items:        items,
	}
}

type jsonPurge struct {
	Preview    bool `json:"preview"`
	Candidates int  `json:"candidates"`
	Deleted    int  `json:"deleted"`
	MarkedRead int  `json:"marked_read"`
	Failed     int  `json:"failed"`
}

// ---------------------------------------------------------------------------
// Rule JSON types (rules list, add, import)
// ---------------------------------------------------------------------------

type jsonRule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Enabled     bool     `json:"enabled"`
	Priority    int      `json:"priority"`
	StopOnMatch bool     `json:"stop_on_match"`
	Conditions  []string `json:"conditions"`
	Actions     []string `json:"actions"`
}

func toJSONRule(r rules.FilterRule) jsonRule {
	conds := make([]string, len(r.Conditions))
	for i, c := range r.Conditions {
		conds[i] = c.String()
	}
	actions := r.Actions.Names()
	if actions == nil {
		actions = []string{}
	}
	return jsonRule{
		ID:          r.ID,
		Name:        r.Name,
		Enabled:     r.Enabled,
		Priority:    r.Priority,
		StopOnMatch: r.StopOnMatch,
		Conditions:  conds,
		Actions:     actions,
	}
}

func toJSONRules(rs []rules.FilterRule) []jsonRule {
	out := make([]jsonRule, 0, len(rs))
	for _, r := range rs {
		out = append(out, toJSONRule(r))
	}
	return out
}

type jsonImport struct {
	OK       bool          `json:"ok"`
	Imported int           `json:"imported"`
	DryRun   bool          `json:"dry_run,omitempty"`
	Rules    []jsonRule    `json:"rules,omitempty"`
	Skipped  []jsonSkipped `json:"skipped,omitempty"`
}

type jsonSkipped struct {
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// ---------------------------------------------------------------------------
// List, stats and activity JSON types
// ---------------------------------------------------------------------------

type jsonListChange struct {
	OK       bool     `json:"ok"`
	List     string   `json:"list"`
	Action   string   `json:"action"`
	Patterns []string `json:"patterns"`
}

type jsonStats struct {
	AccountID    string `json:"account_id"`
	Processed    int    `json:"processed"`
	Unsubscribed int    `json:"unsubscribed"`
	Deleted      int    `json:"deleted"`
}

type jsonSender struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Count     int    `json:"count"`
	FirstSeen string `json:"first_seen"`
}

func toJSONSenders(senders []store.SenderStat) []jsonSender {
	out := make([]jsonSender, 0, len(senders))
	for _, s := range senders {
		out = append(out, jsonSender{
			Email:     s.Email,
			Name:      s.Name,
			Count:     s.Count,
			FirstSeen: s.FirstSeen.Format(time.RFC3339),
		})
	}
	return out
}

type jsonActivity struct {
	Timestamp   string `json:"timestamp"`
	Kind        string `json:"kind"`
	EmailID     string `json:"email_id,omitempty"`
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name,omitempty"`
	Subject     string `json:"subject"`
	Reason      string `json:"reason"`
}

func toJSONActivity(entries []store.Activity) []jsonActivity {
	out := make([]jsonActivity, 0, len(entries))
	for _, a := range entries {
		out = append(out, jsonActivity{
			Timestamp:   a.Timestamp.UTC().Format(time.RFC3339),
			Kind:        string(a.Kind),
			EmailID:     a.EmailID,
			SenderEmail: a.SenderEmail,
			SenderName:  a.SenderName,
			Subject:     a.Subject,
			Reason:      a.Reason,
		})
	}
	return out
}

type jsonSettingsImport struct {
	OK            bool `json:"ok"`
	Whitelist     int  `json:"whitelist"`
	Blacklist     int  `json:"blacklist"`
	Rules         int  `json:"rules"`
	RulesReplaced bool `json:"rules_replaced"`
}

// ---------------------------------------------------------------------------
// Address JSON type (shared)
// ---------------------------------------------------------------------------

type jsonAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

func toJSONAddress(a domain.Address) jsonAddress {
	return jsonAddress{Name: a.Name, Email: a.Email}
}

// ---------------------------------------------------------------------------
// Action JSON type (account add/remove, sync, rule changes, etc.)
// ---------------------------------------------------------------------------

type jsonAction struct {
	OK        bool   `json:"ok"`
	Action    string `json:"action"`
	Email     string `json:"email,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	RuleID    string `json:"rule_id,omitempty"`
}
