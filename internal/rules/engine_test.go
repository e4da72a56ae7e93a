package rules

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/domain"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(func() time.Time { return testNow }, nil)
}

func rule(id string, priority int, conds []Condition, actions ActionSet) FilterRule {
	return FilterRule{ID: id, Name: id, Enabled: true, Priority: priority, Conditions: conds, Actions: actions}
}

func TestEvaluate_Operators(t *testing.T) {
	rec := domain.EmailRecord{
		SenderEmail:    "Billing@Vendor.com",
		SenderName:     "Vendor Billing",
		Subject:        "Your Invoice #123",
		Body:           "Amount due: $40",
		Date:           testNow.Add(-45 * day),
		HasAttachments: true,
	}
	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"contains case insensitive", Condition{FieldSubject, OpContains, "INVOICE"}, true},
		{"contains miss", Condition{FieldSubject, OpContains, "receipt"}, false},
		{"notContains", Condition{FieldSubject, OpNotContains, "receipt"}, true},
		{"equals", Condition{FieldSenderEmail, OpEquals, "billing@vendor.com"}, true},
		{"notEquals", Condition{FieldSenderEmail, OpNotEquals, "billing@vendor.com"}, false},
		{"startsWith", Condition{FieldSenderName, OpStartsWith, "vendor"}, true},
		{"endsWith", Condition{FieldSenderEmail, OpEndsWith, "@vendor.com"}, true},
		{"regex", Condition{FieldSubject, OpMatchesRegex, `invoice #\d+`}, true},
		{"regex keeps escapes", Condition{FieldBody, OpMatchesRegex, `\$\d+`}, true},
		{"invalid regex fails closed", Condition{FieldSubject, OpMatchesRegex, `(`}, false},
		{"boolean true", Condition{FieldHasAttachments, OpEquals, "TRUE"}, true},
		{"boolean false", Condition{FieldIsStarred, OpEquals, "false"}, true},
		{"daysOld greaterThan", Condition{FieldDaysOld, OpGreaterThan, "30"}, true},
		{"daysOld lessThan", Condition{FieldDaysOld, OpLessThan, "30"}, false},
		{"daysOld greaterThanOrEqual boundary", Condition{FieldDaysOld, OpGreaterThanOrEqual, "45"}, true},
		{"daysOld lessThanOrEqual boundary", Condition{FieldDaysOld, OpLessThanOrEqual, "45"}, true},
		{"numeric on text is NaN", Condition{FieldSubject, OpGreaterThan, "1"}, false},
		{"non-numeric value is NaN", Condition{FieldDaysOld, OpLessThan, "many"}, false},
		{"unit suffix is NaN", Condition{FieldDaysOld, OpGreaterThan, "30d"}, false},
		{"hex float is NaN", Condition{FieldDaysOld, OpGreaterThan, "0x1p4"}, false},
		{"padded number", Condition{FieldDaysOld, OpGreaterThan, " 30 "}, true},
		{"unknown field", Condition{Field("cc"), OpContains, ""}, false},
		{"unknown operator", Condition{FieldSubject, Operator("like"), "invoice"}, false},
	}
	e := newTestEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rule("r", 0, []Condition{tt.cond}, ActionSet{Star: true})
			got := e.Evaluate([]FilterRule{r}, rec).Star
			if got != tt.want {
				t.Errorf("condition %s matched = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestEvaluate_DaysOld(t *testing.T) {
	e := newTestEngine()
	r := rule("old", 0, []Condition{{FieldDaysOld, OpGreaterThan, "30"}}, ActionSet{Archive: true})

	if !e.Evaluate([]FilterRule{r}, domain.EmailRecord{Date: testNow.Add(-45 * day)}).Archive {
		t.Error("45-day-old email did not match daysOld > 30")
	}
	if e.Evaluate([]FilterRule{r}, domain.EmailRecord{Date: testNow.Add(-10 * day)}).Archive {
		t.Error("10-day-old email matched daysOld > 30")
	}
	if e.Evaluate([]FilterRule{r}, domain.EmailRecord{}).Archive {
		t.Error("email without date matched daysOld > 30")
	}
}

func TestEvaluate_RuleSemantics(t *testing.T) {
	e := newTestEngine()
	rec := domain.EmailRecord{SenderEmail: "news@shop.com", Subject: "Weekly deals"}
	fromShop := Condition{FieldSenderEmail, OpEndsWith, "@shop.com"}
	deals := Condition{FieldSubject, OpContains, "deals"}
	missing := Condition{FieldSubject, OpContains, "invoice"}

	tests := []struct {
		name        string
		rules       []FilterRule
		want        ActionSet
		wantMatched []string
	}{
		{
			name:  "no rules",
			rules: nil,
			want:  ActionSet{},
		},
		{
			name:  "zero conditions never match",
			rules: []FilterRule{rule("empty", 0, nil, ActionSet{Delete: true})},
			want:  ActionSet{},
		},
		{
			name:  "disabled rule ignored",
			rules: []FilterRule{{ID: "off", Enabled: false, Conditions: []Condition{fromShop}, Actions: ActionSet{Delete: true}}},
			want:  ActionSet{},
		},
		{
			name:  "conditions are ANDed",
			rules: []FilterRule{rule("and", 0, []Condition{fromShop, missing}, ActionSet{Delete: true})},
			want:  ActionSet{},
		},
		{
			name: "flags are ORed",
			rules: []FilterRule{
				rule("a", 0, []Condition{fromShop}, ActionSet{MarkAsRead: true}),
				rule("b", 0, []Condition{deals}, ActionSet{Archive: true}),
			},
			want:        ActionSet{MarkAsRead: true, Archive: true},
			wantMatched: []string{"a", "b"},
		},
		{
			name: "last matching label wins",
			rules: []FilterRule{
				rule("first", 10, []Condition{fromShop}, ActionSet{AddLabel: "Shopping"}),
				rule("second", 5, []Condition{deals}, ActionSet{AddLabel: "Deals"}),
				rule("third", 1, []Condition{deals}, ActionSet{Star: true}),
			},
			want:        ActionSet{AddLabel: "Deals", Star: true},
			wantMatched: []string{"first", "second", "third"},
		},
		{
			name: "higher priority with stopOnMatch halts",
			rules: []FilterRule{
				rule("low", 5, []Condition{fromShop}, ActionSet{Delete: true}),
				{ID: "high", Enabled: true, Priority: 10, StopOnMatch: true, Conditions: []Condition{deals}, Actions: ActionSet{Star: true}},
			},
			want:        ActionSet{Star: true},
			wantMatched: []string{"high"},
		},
		{
			name: "stopOnMatch on lower priority does not block higher",
			rules: []FilterRule{
				{ID: "low", Enabled: true, Priority: 5, StopOnMatch: true, Conditions: []Condition{fromShop}, Actions: ActionSet{Delete: true}},
				rule("high", 10, []Condition{deals}, ActionSet{Star: true}),
			},
			want:        ActionSet{Star: true, Delete: true},
			wantMatched: []string{"high", "low"},
		},
		{
			name: "stopOnMatch on non-matching rule does nothing",
			rules: []FilterRule{
				{ID: "high", Enabled: true, Priority: 10, StopOnMatch: true, Conditions: []Condition{missing}, Actions: ActionSet{Star: true}},
				rule("low", 5, []Condition{deals}, ActionSet{Unsubscribe: true}),
			},
			want:        ActionSet{Unsubscribe: true},
			wantMatched: []string{"low"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Match(tt.rules, rec)
			if got.Actions != tt.want {
				t.Errorf("Actions = %+v, want %+v", got.Actions, tt.want)
			}
			if strings.Join(got.Matched, ",") != strings.Join(tt.wantMatched, ",") {
				t.Errorf("Matched = %v, want %v", got.Matched, tt.wantMatched)
			}
		})
	}
}

func TestOrdered_StableByPriority(t *testing.T) {
	in := []FilterRule{
		{ID: "a", Enabled: true, Priority: 1},
		{ID: "b", Enabled: true, Priority: 5},
		{ID: "c", Enabled: false, Priority: 9},
		{ID: "d", Enabled: true, Priority: 5},
		{ID: "e", Enabled: true, Priority: 1},
	}
	got := Ordered(in)
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if want := "b,d,a,e"; strings.Join(ids, ",") != want {
		t.Errorf("Ordered() = %v, want %s", ids, want)
	}
	if in[0].ID != "a" || in[1].ID != "b" {
		t.Error("Ordered() modified its input")
	}
}

func TestOrdered_ExtremePriorities(t *testing.T) {
	in := []FilterRule{
		{ID: "min", Enabled: true, Priority: math.MinInt},
		{ID: "zero", Enabled: true, Priority: 0},
		{ID: "max", Enabled: true, Priority: math.MaxInt},
	}
	var ids []string
	for _, r := range Ordered(in) {
		ids = append(ids, r.ID)
	}
	if want := "max,zero,min"; strings.Join(ids, ",") != want {
		t.Errorf("Ordered() = %v, want %s", ids, want)
	}
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := newTestEngine()
	rs := []FilterRule{rule("re", 0, []Condition{{FieldSubject, OpMatchesRegex, `^sale`}}, ActionSet{Archive: true})}
	rec := domain.EmailRecord{Subject: "Sale ends today"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !e.Evaluate(rs, rec).Archive {
				t.Error("concurrent Evaluate() did not match")
			}
		}()
	}
	wg.Wait()
}

func TestZeroEngine(t *testing.T) {
	var e Engine
	r := rule("r", 0, []Condition{{FieldSubject, OpMatchesRegex, `[`}}, ActionSet{Star: true})
	if e.Evaluate([]FilterRule{r}, domain.EmailRecord{Subject: "x"}).Star {
		t.Error("invalid regex matched on zero Engine")
	}
}
