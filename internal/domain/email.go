package domain

import (
	"strings"
	"time"
)

type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

type Attachment struct {
	ID       string
	Filename string
	MIMEType string
	Size     int64
}

type Email struct {
	ID          string
	ThreadID    string
	From        Address
	To          []Address
	CC          []Address
	Subject     string
	Snippet     string
	Body        string
	BodyHTML    string
	Date        time.Time
	Labels      []string
	IsRead      bool
	IsStarred   bool
	IsImportant bool
	Attachments []Attachment

	// Raw List-Unsubscribe and List-Unsubscribe-Post header values (RFC 2369, RFC 8058).
	ListUnsubscribe     string
	ListUnsubscribePost string
}

func (e *Email) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func (e *Email) HasAttachments() bool {
	return len(e.Attachments) > 0
}

// OneClickUnsubscribe reports whether the sender advertises RFC 8058 one-click unsubscribe.
func (e *Email) OneClickUnsubscribe() bool {
	return strings.EqualFold(strings.TrimSpace(e.ListUnsubscribePost), "List-Unsubscribe=One-Click")
}
