package decide

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/junk"
	"github.com/lu-zhengda/mailsweep/internal/lists"
	"github.com/lu-zhengda/mailsweep/internal/rules"
)

// DefaultMinConfidence is the junk score at or above which a message is deleted.
const DefaultMinConfidence = 0.7

// Reason explains the delete verdict of a Decision.
type Reason string

const (
	ReasonWhitelisted      Reason = "whitelisted"
	ReasonBlacklisted      Reason = "blacklisted"
	ReasonMatchedRule      Reason = "matched_rule"
	ReasonLikelyJunk       Reason = Reason(junk.LikelyJunk)
	ReasonLikelyLegitimate Reason = Reason(junk.LikelyLegitimate)
	ReasonUncertain        Reason = Reason(junk.Uncertain)
)

// Status is the preview label shown for a decision.
type Status string

const (
	StatusWillDelete       Status = "will_delete"
	StatusWillArchive      Status = "will_archive"
	StatusProtected        Status = "protected"
	StatusLikelyLegitimate Status = "likely_legitimate"
	StatusUncertain        Status = "uncertain"
)

// Input is the configuration snapshot a decision is made against.
type Input struct {
	Lists         *lists.Service
	Rules         []rules.FilterRule
	MinConfidence float64

	// RulesOverrideAllowList lets a rule delete or unsubscribe an allow-listed sender.
	RulesOverrideAllowList bool
}

// Decision is the verdict for one message.
type Decision struct {
	ShouldUnsubscribe  bool    `json:"shouldUnsubscribe"`
	ShouldDelete       bool    `json:"shouldDelete"`
	ShouldArchive      bool    `json:"shouldArchive"`
	ShouldMarkAsRead   bool    `json:"shouldMarkAsRead"`
	ShouldMarkAsUnread bool    `json:"shouldMarkAsUnread"`
	ShouldStar         bool    `json:"shouldStar"`
	AddLabel           string  `json:"addLabel,omitempty"`
	Reason             Reason  `json:"reason"`
	// DeleteByRule is set when a matched rule itself asked for deletion, as
	// opposed to the deny list forcing it.
	DeleteByRule bool `json:"deleteByRule,omitempty"`
	Confidence         float64 `json:"confidence"`

	// CanUnsubscribe is false when the sender is protected by the allow list.
	CanUnsubscribe bool `json:"canUnsubscribe"`
	// Junk is set only when the delete verdict came from the scorer.
	Junk         *junk.Result `json:"junk,omitempty"`
	MatchedRules []string     `json:"matchedRules,omitempty"`
}

// Status maps the decision to its preview label.
func (d Decision) Status() Status {
	switch {
	case d.ShouldDelete:
		return StatusWillDelete
	case d.ShouldArchive:
		return StatusWillArchive
	case d.Reason == ReasonWhitelisted:
		return StatusProtected
	case d.Confidence < 0.3:
		return StatusLikelyLegitimate
	default:
		return StatusUncertain
	}
}

// Engine combines the sender lists, rule engine and junk scorer.
type Engine struct {
	rules  *rules.Engine
	scorer *junk.Scorer
}

// New returns an Engine whose time-dependent signals read clock. A nil clock
// uses time.Now.
func New(clock func() time.Time, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		rules:  rules.NewEngine(clock, logger),
		scorer: junk.NewScorer(clock),
	}
}

// Decide returns the verdict for rec. It has no side effects.
func (e *Engine) Decide(rec domain.EmailRecord, in Input) Decision {
	matched := e.rules.Match(in.Rules, rec)
	ra := matched.Actions

	svc := in.Lists
	if svc == nil {
		svc = lists.New(nil, nil)
	}
	allowed := svc.IsAllowed(rec.SenderEmail, rec.SenderName)
	denied := svc.IsDenied(rec.SenderEmail, rec.SenderName)
	ruleWins := !allowed || in.RulesOverrideAllowList

	d := Decision{
		ShouldUnsubscribe: ra.Unsubscribe && ruleWins,
		CanUnsubscribe:    !allowed,
		MatchedRules:      matched.Matched,
	}

	switch {
	case (ra.Delete || ra.Archive) && ruleWins:
		d.ShouldDelete = ra.Delete || denied
		d.DeleteByRule = ra.Delete
		d.ShouldArchive = ra.Archive
		d.Reason = ReasonMatchedRule
		d.Confidence = 1
	case allowed:
		d.ShouldArchive = ra.Archive
		d.Reason = ReasonWhitelisted
		d.Confidence = 1
	case denied:
		d.ShouldDelete = true
		d.Reason = ReasonBlacklisted
		d.Confidence = 1
	default:
		res := e.scorer.Score(rec)
		d.ShouldDelete = res.Score >= minConfidence(in.MinConfidence)
		d.Reason = Reason(res.Recommendation)
		d.Confidence = res.Score
		d.Junk = &res
	}

	d.ShouldMarkAsRead = ra.MarkAsRead
	d.ShouldMarkAsUnread = ra.MarkAsUnread
	d.ShouldStar = ra.Star
	d.AddLabel = ra.AddLabel
	d.Confidence = junk.Clamp(d.Confidence)
	return d
}

// DecideAll decides every record concurrently with at most workers goroutines
// and returns decisions in input order.
func (e *Engine) DecideAll(ctx context.Context, recs []domain.EmailRecord, in Input, workers int) ([]Decision, error) {
	if workers <= 0 {
		workers = 1
	}
	out := make([]Decision, len(recs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range recs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = e.Decide(recs[i], in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func minConfidence(v float64) float64 {
	if v <= 0 {
		return DefaultMinConfidence
	}
	if v > 1 {
		return 1
	}
	return v
}
