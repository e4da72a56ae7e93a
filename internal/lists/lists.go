package lists

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/mailsweep/internal/match"
)

// Kind identifies one of the two sender lists.
type Kind string

const (
	Allow Kind = "allow"
	Deny  Kind = "deny"
)

// ParseKind accepts the list names used by the CLI and HTTP API, including
// the whitelist/blacklist spellings found in exported settings.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "allow", "allowlist", "whitelist":
		return Allow, nil
	case "deny", "denylist", "blacklist":
		return Deny, nil
	default:
		return "", fmt.Errorf("unknown list %q (use allow or deny)", s)
	}
}

// Source supplies list contents, typically from the store.
type Source interface {
	ListEntries(ctx context.Context, kind Kind) ([]string, error)
}

// Service answers allow-list and deny-list membership for a fixed snapshot.
type Service struct {
	allow []string
	deny  []string
}

// New returns a Service over the given lists. Nil lists are treated as empty.
func New(allow, deny []string) *Service {
	return &Service{allow: allow, deny: deny}
}

// Load reads both lists from src once and returns a snapshot Service.
func Load(ctx context.Context, src Source) (*Service, error) {
	allow, err := src.ListEntries(ctx, Allow)
	if err != nil {
		return nil, fmt.Errorf("failed to load allow list: %w", err)
	}
	deny, err := src.ListEntries(ctx, Deny)
	if err != nil {
		return nil, fmt.Errorf("failed to load deny list: %w", err)
	}
	return New(allow, deny), nil
}

func (s *Service) IsAllowed(email, name string) bool {
	return match.Any(s.allow, email, name)
}

func (s *Service) IsDenied(email, name string) bool {
	return match.Any(s.deny, email, name)
}

func (s *Service) AllowList() []string { return s.allow }

func (s *Service) DenyList() []string { return s.deny }
