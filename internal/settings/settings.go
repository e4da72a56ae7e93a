// Package settings exports and imports the sender lists, filter rules and
// cleanup settings as one JSON document.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/config"
	"github.com/lu-zhengda/mailsweep/internal/lists"
	"github.com/lu-zhengda/mailsweep/internal/rules"
)

// Version is written to exported documents.
const Version = "1.0.0"

// Store is the persistence the document is read from and written to.
type Store interface {
	lists.Source
	AddListEntry(ctx context.Context, kind lists.Kind, pattern string) (bool, error)
	RemoveListEntry(ctx context.Context, kind lists.Kind, pattern string) (bool, error)
	SaveRule(ctx context.Context, rule *rules.FilterRule) error
	ListRules(ctx context.Context) ([]rules.FilterRule, error)
	DeleteRule(ctx context.Context, id string) error
}

// Document is the exported settings file.
type Document struct {
	Version     string             `json:"version"`
	ExportDate  time.Time          `json:"exportDate"`
	Settings    *Settings          `json:"settings"`
	Whitelist   []string           `json:"whitelist"`
	Blacklist   []string           `json:"blacklist"`
	FilterRules []rules.FilterRule `json:"filterRules,omitempty"`
}

// Settings holds the cleanup options. RateLimitDelay is in milliseconds.
type Settings struct {
	PreviewMode            bool    `json:"previewMode"`
	AutoUnsubscribe        bool    `json:"autoUnsubscribe"`
	AutoDelete             bool    `json:"autoDelete"`
	RateLimitDelay         int64   `json:"rateLimitDelay"`
	MinConfidenceForDelete float64 `json:"minConfidenceForDelete"`
	MaxEmails              int     `json:"maxEmails,omitempty"`
	RulesOverrideAllowList bool    `json:"rulesOverrideAllowList,omitempty"`
}

// FromConfig converts the [cleanup] section.
func FromConfig(c config.CleanupConfig) Settings {
	return Settings{
		PreviewMode:            c.PreviewMode,
		AutoUnsubscribe:        c.AutoUnsubscribe,
		AutoDelete:             c.AutoDelete,
		RateLimitDelay:         c.Delay().Milliseconds(),
		MinConfidenceForDelete: c.MinConfidence,
		MaxEmails:              c.MaxEmails,
		RulesOverrideAllowList: c.RulesOverrideAllowList,
	}
}

// ApplyTo writes s into c. Zero thresholds and limits leave c unchanged.
func (s Settings) ApplyTo(c *config.CleanupConfig) {
	c.PreviewMode = s.PreviewMode
	c.AutoUnsubscribe = s.AutoUnsubscribe
	c.AutoDelete = s.AutoDelete
	c.RulesOverrideAllowList = s.RulesOverrideAllowList
	if s.RateLimitDelay > 0 {
		c.RateLimitDelay = (time.Duration(s.RateLimitDelay) * time.Millisecond).String()
	}
	if s.MinConfidenceForDelete > 0 && s.MinConfidenceForDelete <= 1 {
		c.MinConfidence = s.MinConfidenceForDelete
	}
	if s.MaxEmails > 0 {
		c.MaxEmails = s.MaxEmails
	}
}

// Export reads the lists and rules from src.
func Export(ctx context.Context, src Store, cfg config.CleanupConfig, now time.Time) (*Document, error) {
	svc, err := lists.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	rs, err := src.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	s := FromConfig(cfg)
	return &Document{
		Version:     Version,
		ExportDate:  now.UTC(),
		Settings:    &s,
		Whitelist:   nonNil(svc.AllowList()),
		Blacklist:   nonNil(svc.DenyList()),
		FilterRules: rs,
	}, nil
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return nil
}

// Decode parses a settings document. The settings object and both lists
// must be present; filterRules is optional.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if doc.Settings == nil || doc.Whitelist == nil || doc.Blacklist == nil {
		return nil, errors.New("invalid settings file format: settings, whitelist and blacklist are required")
	}
	return &doc, nil
}

// Result counts what Import changed.
type Result struct {
	Whitelist     int
	Blacklist     int
	Rules         int
	RulesReplaced bool
}

// Import replaces both lists with the document's. Rules are replaced only
// when the document carries filterRules; every rule is validated before
// anything is written.
func Import(ctx context.Context, dst Store, doc *Document) (Result, error) {
	var res Result
	if doc.FilterRules != nil {
		var errs []error
		for _, r := range doc.FilterRules {
			if err := rules.Validate(r); err != nil {
				errs = append(errs, fmt.Errorf("rule %q: %w", r.Name, err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			return res, fmt.Errorf("invalid filter rules: %w", err)
		}
	}

	var err error
	if res.Whitelist, err = replaceList(ctx, dst, lists.Allow, doc.Whitelist); err != nil {
		return res, err
	}
	if res.Blacklist, err = replaceList(ctx, dst, lists.Deny, doc.Blacklist); err != nil {
		return res, err
	}

	if doc.FilterRules == nil {
		return res, nil
	}
	existing, err := dst.ListRules(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load rules: %w", err)
	}
	for _, r := range existing {
		if err := dst.DeleteRule(ctx, r.ID); err != nil {
			return res, err
		}
	}
	for i := range doc.FilterRules {
		if err := dst.SaveRule(ctx, &doc.FilterRules[i]); err != nil {
			return res, err
		}
	}
	res.Rules = len(doc.FilterRules)
	res.RulesReplaced = true
	return res, nil
}

func replaceList(ctx context.Context, dst Store, kind lists.Kind, patterns []string) (int, error) {
	current, err := dst.ListEntries(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s list: %w", kind, err)
	}
	for _, p := range current {
		if _, err := dst.RemoveListEntry(ctx, kind, p); err != nil {
			return 0, err
		}
	}
	n := 0
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		added, err := dst.AddListEntry(ctx, kind, p)
		if err != nil {
			return n, err
		}
		if added {
			n++
		}
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
