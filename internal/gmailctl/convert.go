package gmailctl

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/rules"
)

// ruleNamespace seeds deterministic rule IDs so re-importing the same
// filter updates the existing rule instead of duplicating it.
var ruleNamespace = uuid.MustParse("5c1c7a8e-3f0b-4c55-9a55-6d2b8f0e9d11")

// Skipped is a filter that has no rule equivalent.
type Skipped struct {
	Filter Filter
	Reason string
}

// ToFilterRules converts compiled Gmail filters into rules. Filters whose
// criteria or actions cannot be expressed are returned in skipped.
func ToFilterRules(export Export) (converted []rules.FilterRule, skipped []Skipped) {
	labelNames := make(map[string]string, len(export.Labels))
	for _, l := range export.Labels {
		labelNames[l.ID] = l.Name
	}

	for _, f := range export.Filters {
		if f.Criteria.To != "" || f.Criteria.Query != "" {
			skipped = append(skipped, Skipped{Filter: f, Reason: "to/query criteria have no rule field"})
			continue
		}
		conds := conditions(f.Criteria)
		if len(conds) == 0 {
			skipped = append(skipped, Skipped{Filter: f, Reason: "no convertible criteria"})
			continue
		}
		actions := convertActions(f.Action, labelNames)
		if actions.IsZero() {
			skipped = append(skipped, Skipped{Filter: f, Reason: "no convertible actions"})
			continue
		}

		r := rules.NewRule(ruleID(f))
		r.Name = ruleName(f)
		r.Conditions = conds
		r.Actions = actions
		converted = append(converted, r)
	}
	return converted, skipped
}

func conditions(c FilterCriteria) []rules.Condition {
	var conds []rules.Condition
	if cond, ok := termCondition(rules.FieldSenderEmail, c.From); ok {
		conds = append(conds, cond)
	}
	if cond, ok := termCondition(rules.FieldSenderEmail, c.List); ok {
		conds = append(conds, cond)
	}
	if cond, ok := termCondition(rules.FieldSubject, c.Subject); ok {
		conds = append(conds, cond)
	}
	return conds
}

// termCondition turns a Gmail criterion ("a", "{a b}", "a OR b") into a
// contains test, or a regex alternation when there are several terms.
func termCondition(field rules.Field, value string) (rules.Condition, bool) {
	terms := splitTerms(value)
	switch len(terms) {
	case 0:
		return rules.Condition{}, false
	case 1:
		return rules.Condition{Field: field, Operator: rules.OpContains, Value: terms[0]}, true
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return rules.Condition{
		Field:    field,
		Operator: rules.OpMatchesRegex,
		Value:    "(?:" + strings.Join(quoted, "|") + ")",
	}, true
}

func splitTerms(value string) []string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "{")
	value = strings.TrimSuffix(value, "}")
	value = strings.ReplaceAll(value, " OR ", " ")
	var terms []string
	for _, f := range strings.Fields(value) {
		f = strings.ToLower(strings.Trim(f, `"()`))
		if f != "" && f != "or" {
			terms = append(terms, f)
		}
	}
	return terms
}

func convertActions(a FilterAction, labelNames map[string]string) rules.ActionSet {
	var set rules.ActionSet
	for _, id := range a.RemoveLabelIDs {
		switch id {
		case domain.LabelInbox:
			set.Archive = true
		case domain.LabelUnread:
			set.MarkAsRead = true
		}
	}
	for _, id := range a.AddLabelIDs {
		switch {
		case id == domain.LabelTrash || id == domain.LabelSpam:
			set.Delete = true
		case id == domain.LabelStarred:
			set.Star = true
		case id == domain.LabelUnread:
			set.MarkAsUnread = true
		case id == domain.LabelImportant || strings.HasPrefix(id, "CATEGORY_"):
			// no rule equivalent
		default:
			name := labelNames[id]
			if name == "" {
				name = id
			}
			if set.AddLabel == "" {
				set.AddLabel = name
			}
		}
	}
	return set
}

func ruleID(f Filter) string {
	key := f.ID
	if key == "" {
		key = strings.Join([]string{f.Criteria.From, f.Criteria.List, f.Criteria.Subject}, "\x00")
	}
	return uuid.NewSHA1(ruleNamespace, []byte(key)).String()
}

func ruleName(f Filter) string {
	if f.Name != "" {
		return f.Name
	}
	var parts []string
	if f.Criteria.From != "" {
		parts = append(parts, "from:"+f.Criteria.From)
	}
	if f.Criteria.List != "" {
		parts = append(parts, "list:"+f.Criteria.List)
	}
	if f.Criteria.Subject != "" {
		parts = append(parts, "subject:"+f.Criteria.Subject)
	}
	return "gmailctl " + strings.Join(parts, " ")
}
