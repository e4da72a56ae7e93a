package domain

import (
	"strings"
	"time"
)

// EmailRecord is the classification view of a message. A zero Date means the
// message date is unknown.
type EmailRecord struct {
	SenderEmail    string    `json:"senderEmail"`
	SenderName     string    `json:"senderName"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	Date           time.Time `json:"date"`
	HasAttachments bool      `json:"hasAttachments"`
	IsStarred      bool      `json:"isStarred"`
	IsImportant    bool      `json:"isImportant"`
	Labels         []string  `json:"labels,omitempty"`
}

// HasDate reports whether the record carries a message date.
func (r EmailRecord) HasDate() bool {
	return !r.Date.IsZero()
}

// NewEmailRecord builds the classification view of e. Only labels present in
// userLabels (ID to name) are carried over, so system labels and categories
// never reach the scorer.
func NewEmailRecord(e *Email, userLabels map[string]string) EmailRecord {
	rec := EmailRecord{
		SenderEmail:    strings.TrimSpace(e.From.Email),
		SenderName:     strings.TrimSpace(e.From.Name),
		Subject:        e.Subject,
		Body:           e.Body,
		Date:           e.Date,
		HasAttachments: e.HasAttachments(),
		IsStarred:      e.IsStarred || e.HasLabel(LabelStarred),
		IsImportant:    e.IsImportant || e.HasLabel(LabelImportant),
	}
	if rec.Body == "" {
		rec.Body = e.Snippet
	}
	for _, id := range e.Labels {
		if name, ok := userLabels[id]; ok && name != "" {
			rec.Labels = append(rec.Labels, name)
		}
	}
	return rec
}
