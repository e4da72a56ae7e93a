package junk

import (
	"regexp"
	"strings"
	"time"

	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/match"
)

// Recommendation is the coarse verdict derived from a score.
type Recommendation string

const (
	LikelyJunk       Recommendation = "likely_junk"
	LikelyLegitimate Recommendation = "likely_legitimate"
	Uncertain        Recommendation = "uncertain"
)

const (
	junkThreshold       = 0.6
	legitimateThreshold = 0.3
	oldAfter            = 30 * 24 * time.Hour
	bodyScanLimit       = 500
)

// Factor records one signal that contributed to a score.
type Factor struct {
	Name   string  `json:"factor"`
	Impact float64 `json:"impact"`
}

// Result is the outcome of scoring one email.
type Result struct {
	Score          float64        `json:"score"`
	Factors        []Factor       `json:"factors"`
	Recommendation Recommendation `json:"recommendation"`
}

var (
	junkSubjectPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(re|fwd?|fw):\s*(re|fwd?|fw):`),
		regexp.MustCompile(`(?i)^\[.*spam.*\]`),
		regexp.MustCompile(`(?i)viagra|cialis|pills|pharmacy`),
		regexp.MustCompile(`(?i)winner|prize|congratulations.*won`),
		regexp.MustCompile(`(?i)urgent.*action.*required`),
		regexp.MustCompile(`(?i)limited.*time.*offer`),
		regexp.MustCompile(`(?i)click.*here.*now`),
	}

	marketingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)newsletter`),
		regexp.MustCompile(`(?i)promotional`),
		regexp.MustCompile(`(?i)marketing`),
		regexp.MustCompile(`(?i)special.*offer`),
		regexp.MustCompile(`(?i)sale.*now`),
		regexp.MustCompile(`(?i)discount.*code`),
	}

	noReplyPattern = regexp.MustCompile(`(?i)noreply|no-reply|donotreply`)

	marketingDomains = []string{
		"mailchimp", "constantcontact", "campaign", "newsletter",
		"noreply", "no-reply", "donotreply", "mailer",
	}

	importantLabelWords = []string{"important", "work", "personal", "family", "friends"}
)

// Scorer computes junk scores. The zero value uses time.Now.
type Scorer struct {
	Clock func() time.Time
}

// NewScorer returns a Scorer using the given clock, or time.Now when nil.
func NewScorer(clock func() time.Time) *Scorer {
	return &Scorer{Clock: clock}
}

func (s *Scorer) now() time.Time {
	if s == nil || s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// Score evaluates rec against the fixed signal table. Signals are applied in
// a fixed order and the sum is clamped to [0, 1].
func (s *Scorer) Score(rec domain.EmailRecord) Result {
	var score float64
	var factors []Factor
	add := func(name string, impact float64) {
		score += impact
		factors = append(factors, Factor{Name: name, Impact: impact})
	}

	if rec.IsStarred {
		add("starred", -0.3)
	}
	if rec.IsImportant {
		add("important", -0.2)
	}
	if rec.HasAttachments {
		add("has_attachments", -0.15)
	}
	if hasImportantLabel(rec.Labels) {
		add("important_labels", -0.2)
	}

	for _, re := range junkSubjectPatterns {
		if re.MatchString(rec.Subject) {
			add("junk_subject_pattern", 0.2)
		}
	}

	body := truncateRunes(rec.Body, bodyScanLimit)
	for _, re := range marketingPatterns {
		if re.MatchString(rec.Subject) || re.MatchString(body) {
			add("marketing_pattern", 0.15)
		}
	}

	senderDomain := match.Domain(strings.ToLower(rec.SenderEmail))
	if senderDomain != "" && containsAny(senderDomain, marketingDomains) {
		add("marketing_domain", 0.2)
	}

	sender := rec.SenderName
	if sender == "" {
		sender = rec.SenderEmail
	}
	if noReplyPattern.MatchString(sender) {
		add("noreply_sender", 0.15)
	}

	if rec.HasDate() && s.now().Sub(rec.Date) > oldAfter {
		add("old_email", 0.1)
	}

	score = Clamp(score)
	return Result{
		Score:          score,
		Factors:        factors,
		Recommendation: Recommend(score),
	}
}

// Recommend maps a score to its recommendation label.
func Recommend(score float64) Recommendation {
	switch {
	case score > junkThreshold:
		return LikelyJunk
	case score < legitimateThreshold:
		return LikelyLegitimate
	default:
		return Uncertain
	}
}

// Clamp bounds v to [0, 1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func hasImportantLabel(labels []string) bool {
	for _, l := range labels {
		if containsAny(strings.ToLower(l), importantLabelWords) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
