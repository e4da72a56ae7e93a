package domain

type LabelType string

const (
	LabelTypeSystem LabelType = "system"
	LabelTypeUser   LabelType = "user"
)

type Label struct {
	ID        string
	AccountID string
	Name      string
	Type      LabelType
	Color     string
}

const (
	LabelInbox     = "INBOX"
	LabelStarred   = "STARRED"
	LabelImportant = "IMPORTANT"
	LabelUnread    = "UNREAD"
	LabelSent      = "SENT"
	LabelDraft     = "DRAFT"
	LabelTrash     = "TRASH"
	LabelSpam      = "SPAM"
)

// UserLabelNames maps the IDs of user-created labels to their display names.
func UserLabelNames(labels []Label) map[string]string {
	names := make(map[string]string, len(labels))
	for _, l := range labels {
		if l.Type == LabelTypeUser {
			names[l.ID] = l.Name
		}
	}
	return names
}
