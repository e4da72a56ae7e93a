package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Field names a message attribute a condition can test.
type Field string

const (
	FieldSenderEmail    Field = "senderEmail"
	FieldSenderName     Field = "senderName"
	FieldSubject        Field = "subject"
	FieldBody           Field = "body"
	FieldHasAttachments Field = "hasAttachments"
	FieldIsStarred      Field = "isStarred"
	FieldIsImportant    Field = "isImportant"
	FieldDaysOld        Field = "daysOld"
)

// Operator names a comparison between a field value and a condition value.
type Operator string

const (
	OpContains           Operator = "contains"
	OpNotContains        Operator = "notContains"
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "notEquals"
	OpStartsWith         Operator = "startsWith"
	OpEndsWith           Operator = "endsWith"
	OpMatchesRegex       Operator = "matchesRegex"
	OpGreaterThan        Operator = "greaterThan"
	OpLessThan           Operator = "lessThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
)

var knownFields = map[Field]bool{
	FieldSenderEmail: true, FieldSenderName: true, FieldSubject: true, FieldBody: true,
	FieldHasAttachments: true, FieldIsStarred: true, FieldIsImportant: true, FieldDaysOld: true,
}

var knownOperators = map[Operator]bool{
	OpContains: true, OpNotContains: true, OpEquals: true, OpNotEquals: true,
	OpStartsWith: true, OpEndsWith: true, OpMatchesRegex: true,
	OpGreaterThan: true, OpLessThan: true, OpGreaterThanOrEqual: true, OpLessThanOrEqual: true,
}

// Condition tests one field of a message.
type Condition struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %q", c.Field, c.Operator, c.Value)
}

// ActionSet is the set of actions a rule requests. AddLabel is empty when no
// label is requested.
type ActionSet struct {
	Unsubscribe  bool   `json:"unsubscribe"`
	Delete       bool   `json:"delete"`
	Archive      bool   `json:"archive"`
	MarkAsRead   bool   `json:"markAsRead"`
	MarkAsUnread bool   `json:"markAsUnread"`
	Star         bool   `json:"star"`
	AddLabel     string `json:"addLabel,omitempty"`
}

// IsZero reports whether no action is requested.
func (a ActionSet) IsZero() bool {
	return a == ActionSet{}
}

// Merge ORs the flags of other into a. A non-empty label in other replaces a's label.
func (a *ActionSet) Merge(other ActionSet) {
	a.Unsubscribe = a.Unsubscribe || other.Unsubscribe
	a.Delete = a.Delete || other.Delete
	a.Archive = a.Archive || other.Archive
	a.MarkAsRead = a.MarkAsRead || other.MarkAsRead
	a.MarkAsUnread = a.MarkAsUnread || other.MarkAsUnread
	a.Star = a.Star || other.Star
	if other.AddLabel != "" {
		a.AddLabel = other.AddLabel
	}
}

// Names lists the requested actions in a stable order.
func (a ActionSet) Names() []string {
	var names []string
	if a.Unsubscribe {
		names = append(names, "unsubscribe")
	}
	if a.Delete {
		names = append(names, "delete")
	}
	if a.Archive {
		names = append(names, "archive")
	}
	if a.MarkAsRead {
		names = append(names, "markAsRead")
	}
	if a.MarkAsUnread {
		names = append(names, "markAsUnread")
	}
	if a.Star {
		names = append(names, "star")
	}
	if a.AddLabel != "" {
		names = append(names, "addLabel:"+a.AddLabel)
	}
	return names
}

// FilterRule maps a conjunction of conditions to a set of actions.
type FilterRule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Enabled     bool        `json:"enabled"`
	Priority    int         `json:"priority"`
	StopOnMatch bool        `json:"stopOnMatch"`
	Conditions  []Condition `json:"conditions"`
	Actions     ActionSet   `json:"actions"`
}

// NewRule returns the template used when creating a rule from scratch.
func NewRule(id string) FilterRule {
	return FilterRule{
		ID:      id,
		Name:    "New Rule",
		Enabled: true,
	}
}

// Validate reports problems that would make the rule never match or do
// nothing. Evaluation does not depend on it.
func Validate(r FilterRule) error {
	var errs []error
	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, errors.New("rule id is required"))
	}
	if len(r.Conditions) == 0 {
		errs = append(errs, errors.New("rule has no conditions"))
	}
	if r.Actions.IsZero() {
		errs = append(errs, errors.New("rule has no actions"))
	}
	for i, c := range r.Conditions {
		if !knownFields[c.Field] {
			errs = append(errs, fmt.Errorf("condition %d: unknown field %q", i+1, c.Field))
		}
		if !knownOperators[c.Operator] {
			errs = append(errs, fmt.Errorf("condition %d: unknown operator %q", i+1, c.Operator))
		}
		if c.Operator == OpMatchesRegex {
			if _, err := regexp.Compile("(?i)" + c.Value); err != nil {
				errs = append(errs, fmt.Errorf("condition %d: invalid regex: %w", i+1, err))
			}
		}
	}
	return errors.Join(errs...)
}

// ParseCondition parses the CLI form "field operator value", for example
// "subject contains invoice". The value may contain spaces.
func ParseCondition(s string) (Condition, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(parts) < 3 {
		return Condition{}, fmt.Errorf("invalid condition %q (want \"field operator value\")", s)
	}
	c := Condition{
		Field:    Field(parts[0]),
		Operator: Operator(parts[1]),
		Value:    strings.TrimSpace(parts[2]),
	}
	if !knownFields[c.Field] {
		return Condition{}, fmt.Errorf("unknown field %q", parts[0])
	}
	if !knownOperators[c.Operator] {
		return Condition{}, fmt.Errorf("unknown operator %q", parts[1])
	}
	return c, nil
}
