package unsubscribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/domain"
)

// ErrNoMechanism is returned when a message offers no way to unsubscribe.
var ErrNoMechanism = errors.New("no unsubscribe mechanism found")

const oneClickBody = "List-Unsubscribe=One-Click"

// Mailer sends the request message for mailto targets.
type Mailer interface {
	SendMessage(ctx context.Context, email *domain.Email) error
}

// Client executes unsubscribe targets.
type Client struct {
	HTTP   *http.Client
	Mailer Mailer
	From   domain.Address
	Logger *slog.Logger
}

// NewClient returns a Client using a 30 second HTTP timeout. mailer may be
// nil, in which case mailto targets are skipped.
func NewClient(mailer Mailer, from domain.Address, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		HTTP:   &http.Client{Timeout: 30 * time.Second},
		Mailer: mailer,
		From:   from,
		Logger: logger,
	}
}

// Unsubscribe tries each discovered target of e in order and returns the
// first one that succeeds.
func (c *Client) Unsubscribe(ctx context.Context, e *domain.Email) (Target, error) {
	targets := Discover(e)
	if len(targets) == 0 {
		return Target{}, ErrNoMechanism
	}
	var errs []error
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return Target{}, err
		}
		err := c.Execute(ctx, t)
		if err == nil {
			c.Logger.Info("unsubscribed", "email", e.ID, "method", t.Method, "url", t.URL)
			return t, nil
		}
		c.Logger.Debug("unsubscribe target failed", "email", e.ID, "method", t.Method, "url", t.URL, "error", err)
		errs = append(errs, err)
	}
	return Target{}, fmt.Errorf("failed to unsubscribe from %s: %w", e.From.Email, errors.Join(errs...))
}

// Execute performs a single target.
func (c *Client) Execute(ctx context.Context, t Target) error {
	switch t.Method {
	case MethodOneClick:
		return c.post(ctx, t.URL)
	case MethodGet:
		return c.get(ctx, t.URL)
	case MethodMailto:
		return c.mail(ctx, t.URL)
	default:
		return fmt.Errorf("unknown unsubscribe method %q", t.Method)
	}
}

func (c *Client) post(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(oneClickBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Redacted())
	}
	return nil
}

// mail sends the message described by a mailto URL (RFC 6068).
func (c *Client) mail(ctx context.Context, target string) error {
	if c.Mailer == nil {
		return errors.New("mailto unsubscribe requires a mail provider")
	}
	msg, err := mailtoMessage(target, c.From)
	if err != nil {
		return err
	}
	if err := c.Mailer.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to send unsubscribe request: %w", err)
	}
	return nil
}

func mailtoMessage(target string, from domain.Address) (*domain.Email, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mailto url: %w", err)
	}
	to := u.Opaque
	if to == "" {
		to = u.Path
	}
	to, err = url.PathUnescape(to)
	if err != nil || strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("mailto url %q has no address", target)
	}
	q := u.Query()
	subject := q.Get("subject")
	if subject == "" {
		subject = "unsubscribe"
	}
	body := q.Get("body")
	if body == "" {
		body = "unsubscribe"
	}
	var recipients []domain.Address
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, domain.Address{Email: addr})
		}
	}
	return &domain.Email{
		From:    from,
		To:      recipients,
		Subject: subject,
		Body:    body,
	}, nil
}
