package rules

import (
	"cmp"
	"io"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/domain"
)

const day = 24 * time.Hour

// Engine evaluates filter rules against messages. It is safe for concurrent use.
type Engine struct {
	Clock  func() time.Time
	Logger *slog.Logger

	regexps sync.Map // pattern -> *regexp.Regexp, or nil for invalid patterns
}

// NewEngine returns an Engine. A nil clock uses time.Now and a nil logger discards.
func NewEngine(clock func() time.Time, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{Clock: clock, Logger: logger}
}

// Result is the outcome of evaluating a rule set against one message.
type Result struct {
	Actions ActionSet
	Matched []string // IDs of matching rules, in evaluation order
}

// Evaluate returns the combined actions of every enabled rule that matches rec.
func (e *Engine) Evaluate(rules []FilterRule, rec domain.EmailRecord) ActionSet {
	return e.Match(rules, rec).Actions
}

// Match evaluates enabled rules by descending priority, ties kept in input
// order. Matching rules OR their action flags together; the last matching rule
// with a label wins. A matching rule with StopOnMatch ends evaluation.
func (e *Engine) Match(rules []FilterRule, rec domain.EmailRecord) Result {
	ordered := Ordered(rules)

	var res Result
	for _, r := range ordered {
		if !e.ruleMatches(r, rec) {
			continue
		}
		res.Actions.Merge(r.Actions)
		res.Matched = append(res.Matched, r.ID)
		if r.StopOnMatch {
			break
		}
	}
	return res
}

// Ordered returns the enabled rules sorted by descending priority. The input is not modified.
func Ordered(rules []FilterRule) []FilterRule {
	enabled := make([]FilterRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	slices.SortStableFunc(enabled, func(a, b FilterRule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return enabled
}

func (e *Engine) ruleMatches(r FilterRule, rec domain.EmailRecord) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	for _, c := range r.Conditions {
		if !e.conditionMatches(c, rec) {
			return false
		}
	}
	return true
}

func (e *Engine) conditionMatches(c Condition, rec domain.EmailRecord) bool {
	field, ok := e.fieldValue(c.Field, rec)
	if !ok {
		return false
	}
	value := strings.ToLower(c.Value)

	switch c.Operator {
	case OpContains:
		return strings.Contains(field, value)
	case OpNotContains:
		return !strings.Contains(field, value)
	case OpEquals:
		return field == value
	case OpNotEquals:
		return field != value
	case OpStartsWith:
		return strings.HasPrefix(field, value)
	case OpEndsWith:
		return strings.HasSuffix(field, value)
	case OpMatchesRegex:
		re := e.compile(c.Value)
		return re != nil && re.MatchString(field)
	case OpGreaterThan:
		return parseNumber(field) > parseNumber(value)
	case OpLessThan:
		return parseNumber(field) < parseNumber(value)
	case OpGreaterThanOrEqual:
		return parseNumber(field) >= parseNumber(value)
	case OpLessThanOrEqual:
		return parseNumber(field) <= parseNumber(value)
	default:
		return false
	}
}

func (e *Engine) fieldValue(f Field, rec domain.EmailRecord) (string, bool) {
	switch f {
	case FieldSenderEmail:
		return strings.ToLower(rec.SenderEmail), true
	case FieldSenderName:
		return strings.ToLower(rec.SenderName), true
	case FieldSubject:
		return strings.ToLower(rec.Subject), true
	case FieldBody:
		return strings.ToLower(rec.Body), true
	case FieldHasAttachments:
		return strconv.FormatBool(rec.HasAttachments), true
	case FieldIsStarred:
		return strconv.FormatBool(rec.IsStarred), true
	case FieldIsImportant:
		return strconv.FormatBool(rec.IsImportant), true
	case FieldDaysOld:
		if !rec.HasDate() {
			return "", true
		}
		days := math.Floor(float64(e.now().Sub(rec.Date)) / float64(day))
		return strconv.FormatFloat(days, 'f', -1, 64), true
	default:
		return "", false
	}
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

// compile returns the case-insensitive regexp for pattern, or nil when the
// pattern is invalid. Results are cached per pattern.
func (e *Engine) compile(pattern string) *regexp.Regexp {
	if v, ok := e.regexps.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Debug("invalid rule regex", "pattern", pattern, "error", err)
		}
		e.regexps.Store(pattern, (*regexp.Regexp)(nil))
		return nil
	}
	e.regexps.Store(pattern, re)
	return re
}

// parseNumber returns NaN for anything that is not a plain decimal number,
// so every comparison against it is false. Unit suffixes ("30d") and hex
// floats are rejected.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "xX") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
