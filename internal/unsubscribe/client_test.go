package unsubscribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lu-zhengda/mailsweep/internal/domain"
)

type fakeMailer struct {
	sent []*domain.Email
	err  error
}

func (f *fakeMailer) SendMessage(_ context.Context, email *domain.Email) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

func TestUnsubscribe_OneClick(t *testing.T) {
	var gotMethod, gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(nil, domain.Address{}, nil)
	e := &domain.Email{
		ListUnsubscribe:     "<" + srv.URL + "/u?id=42>",
		ListUnsubscribePost: "List-Unsubscribe=One-Click",
	}
	target, err := c.Unsubscribe(context.Background(), e)
	if err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	if target.Method != MethodOneClick {
		t.Errorf("Method = %q, want %q", target.Method, MethodOneClick)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("server saw method %q, want POST", gotMethod)
	}
	if gotBody != "List-Unsubscribe=One-Click" {
		t.Errorf("server saw body %q", gotBody)
	}
	if gotType != "application/x-www-form-urlencoded" {
		t.Errorf("server saw Content-Type %q", gotType)
	}
}

func TestUnsubscribe_FallsBackAfterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(nil, domain.Address{}, nil)
	e := &domain.Email{
		ListUnsubscribe: "<" + srv.URL + "/broken>",
		BodyHTML:        `<a href="` + srv.URL + `/unsubscribe">Unsubscribe</a>`,
	}
	target, err := c.Unsubscribe(context.Background(), e)
	if err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	if target.URL != srv.URL+"/unsubscribe" {
		t.Errorf("URL = %q, want body link", target.URL)
	}
}

func TestUnsubscribe_AllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(nil, domain.Address{}, nil)
	_, err := c.Unsubscribe(context.Background(), &domain.Email{ListUnsubscribe: "<" + srv.URL + "/gone>"})
	if err == nil {
		t.Fatal("expected error when every target fails")
	}
}

func TestUnsubscribe_NoMechanism(t *testing.T) {
	c := NewClient(nil, domain.Address{}, nil)
	_, err := c.Unsubscribe(context.Background(), &domain.Email{Body: "hello"})
	if !errors.Is(err, ErrNoMechanism) {
		t.Errorf("err = %v, want ErrNoMechanism", err)
	}
}

func TestUnsubscribe_Mailto(t *testing.T) {
	mailer := &fakeMailer{}
	from := domain.Address{Email: "me@example.com"}
	c := NewClient(mailer, from, nil)
	e := &domain.Email{ListUnsubscribe: "<mailto:leave@list.example?subject=remove%20me>"}

	if _, err := c.Unsubscribe(context.Background(), e); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.From != from {
		t.Errorf("From = %v, want %v", msg.From, from)
	}
	if len(msg.To) != 1 || msg.To[0].Email != "leave@list.example" {
		t.Errorf("To = %v, want [leave@list.example]", msg.To)
	}
	if msg.Subject != "remove me" {
		t.Errorf("Subject = %q, want %q", msg.Subject, "remove me")
	}
	if msg.Body != "unsubscribe" {
		t.Errorf("Body = %q, want %q", msg.Body, "unsubscribe")
	}
}

func TestUnsubscribe_MailtoWithoutMailer(t *testing.T) {
	c := NewClient(nil, domain.Address{}, nil)
	_, err := c.Unsubscribe(context.Background(), &domain.Email{ListUnsubscribe: "<mailto:leave@list.example>"})
	if err == nil {
		t.Error("expected error without a mailer")
	}
}

func TestUnsubscribe_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(nil, domain.Address{}, nil)
	_, err := c.Unsubscribe(ctx, &domain.Email{ListUnsubscribe: "<https://ex.invalid/u>"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMailtoMessage(t *testing.T) {
	msg, err := mailtoMessage("mailto:a@x.com,b@x.com?body=please%20remove", domain.Address{Email: "me@x.com"})
	if err != nil {
		t.Fatalf("mailtoMessage() error: %v", err)
	}
	if len(msg.To) != 2 {
		t.Errorf("To = %v, want 2 recipients", msg.To)
	}
	if msg.Subject != "unsubscribe" {
		t.Errorf("Subject = %q, want default", msg.Subject)
	}
	if msg.Body != "please remove" {
		t.Errorf("Body = %q", msg.Body)
	}

	if _, err := mailtoMessage("mailto:?subject=x", domain.Address{}); err == nil {
		t.Error("expected error for mailto without address")
	}
}
