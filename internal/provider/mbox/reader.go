package mbox

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	gombox "github.com/emersion/go-mbox"
	"github.com/jhillyerd/enmime"

	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/provider"
)

// Gmail Takeout writes label display names into X-Gmail-Labels; these are
// the ones that correspond to system labels.
var systemLabels = map[string]string{
	"inbox":               domain.LabelInbox,
	"starred":             domain.LabelStarred,
	"important":           domain.LabelImportant,
	"unread":              domain.LabelUnread,
	"sent":                domain.LabelSent,
	"drafts":              domain.LabelDraft,
	"draft":               domain.LabelDraft,
	"trash":               domain.LabelTrash,
	"spam":                domain.LabelSpam,
	"category promotions": "CATEGORY_PROMOTIONS",
	"category updates":    "CATEGORY_UPDATES",
	"category social":     "CATEGORY_SOCIAL",
	"category forums":     "CATEGORY_FORUMS",
	"category personal":   "CATEGORY_PERSONAL",
}

// Labels Takeout emits that carry no information for classification.
var ignoredLabels = map[string]bool{
	"opened":   true,
	"archived": true,
	"chat":     true,
}

// Reader decodes messages from an mbox file.
type Reader struct {
	Logger *slog.Logger
}

// NewReader returns a Reader. A nil logger discards.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{Logger: logger}
}

// ReadFile opens path and decodes up to limit messages (0 means all).
func (r *Reader) ReadFile(path string, limit int) ([]domain.Email, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mbox %s: %w", path, err)
	}
	defer f.Close()
	return r.Read(f, limit)
}

// Read decodes up to limit messages (0 means all) from an mbox stream.
// Messages that fail to parse are logged and skipped.
func (r *Reader) Read(src io.Reader, limit int) ([]domain.Email, error) {
	mr := gombox.NewReader(src)
	var emails []domain.Email
	for i := 0; limit <= 0 || len(emails) < limit; i++ {
		msg, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return emails, fmt.Errorf("failed to read mbox message %d: %w", i, err)
		}
		email, err := parseMessage(msg, i)
		if err != nil {
			r.Logger.Warn("skipping unparseable message", "index", i, "error", err)
			continue
		}
		emails = append(emails, *email)
	}
	return emails, nil
}

// parseMessage converts one RFC 5322 message into a domain Email.
func parseMessage(msg io.Reader, index int) (*domain.Email, error) {
	env, err := enmime.ReadEnvelope(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	id := strings.Trim(env.GetHeader("Message-ID"), "<> ")
	if id == "" {
		id = "mbox-" + strconv.Itoa(index)
	}

	text := env.Text
	if strings.TrimSpace(text) == "" && env.HTML != "" {
		text = provider.PlainText(env.HTML)
	}

	email := &domain.Email{
		ID:                  id,
		ThreadID:            env.GetHeader("X-GM-THRID"),
		From:                firstAddress(env, "From"),
		To:                  addressList(env, "To"),
		CC:                  addressList(env, "Cc"),
		Subject:             env.GetHeader("Subject"),
		Body:                text,
		BodyHTML:            env.HTML,
		Date:                parseDate(env.GetHeader("Date")),
		Labels:              mapLabels(env.GetHeader("X-Gmail-Labels")),
		ListUnsubscribe:     env.GetHeader("List-Unsubscribe"),
		ListUnsubscribePost: env.GetHeader("List-Unsubscribe-Post"),
	}
	email.IsRead = !email.HasLabel(domain.LabelUnread)
	email.IsStarred = email.HasLabel(domain.LabelStarred)
	email.IsImportant = email.HasLabel(domain.LabelImportant)

	for i, att := range env.Attachments {
		email.Attachments = append(email.Attachments, domain.Attachment{
			ID:       id + "/" + strconv.Itoa(i),
			Filename: att.FileName,
			MIMEType: att.ContentType,
			Size:     int64(len(att.Content)),
		})
	}
	return email, nil
}

func firstAddress(env *enmime.Envelope, key string) domain.Address {
	addrs := addressList(env, key)
	if len(addrs) == 0 {
		// Unparseable From headers still carry something worth matching on.
		return domain.Address{Email: strings.TrimSpace(env.GetHeader(key))}
	}
	return addrs[0]
}

func addressList(env *enmime.Envelope, key string) []domain.Address {
	list, err := env.AddressList(key)
	if err != nil {
		return nil
	}
	addrs := make([]domain.Address, 0, len(list))
	for _, a := range list {
		addrs = append(addrs, domain.Address{Name: a.Name, Email: a.Address})
	}
	return addrs
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := mail.ParseDate(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// mapLabels turns an X-Gmail-Labels value into label identifiers: system
// labels become their Gmail IDs, user labels keep their names.
func mapLabels(header string) []string {
	if header == "" {
		return nil
	}
	var labels []string
	for _, raw := range strings.Split(header, ",") {
		name := strings.Trim(strings.TrimSpace(raw), `"`)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if ignoredLabels[key] {
			continue
		}
		if id, ok := systemLabels[key]; ok {
			labels = append(labels, id)
			continue
		}
		labels = append(labels, name)
	}
	return labels
}

// UserLabels collects the user label names present on emails, keyed by
// themselves, for use with domain.NewEmailRecord.
func UserLabels(emails []domain.Email) map[string]string {
	system := make(map[string]bool, len(systemLabels))
	for _, id := range systemLabels {
		system[id] = true
	}
	names := make(map[string]string)
	for _, e := range emails {
		for _, l := range e.Labels {
			if !system[l] {
				names[l] = l
			}
		}
	}
	return names
}
