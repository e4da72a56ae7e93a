package unsubscribe

import (
	"net/url"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lu-zhengda/mailsweep/internal/domain"
)

// Method is how an unsubscribe target is exercised.
type Method string

const (
	MethodOneClick Method = "POST"   // RFC 8058 one-click POST
	MethodMailto   Method = "MAILTO" // send a message to the list address
	MethodGet      Method = "GET"    // visit the link
)

// Confidence ranks body links; header targets are always High.
type Confidence int

const (
	Low Confidence = iota + 1
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	}
	return "unknown"
}

// Target is one discovered unsubscribe mechanism.
type Target struct {
	Method     Method
	URL        string
	Text       string
	FromHeader bool
	Confidence Confidence
}

var (
	linkTextPatterns = compileAll(
		`unsubscribe`,
		`opt.?out`,
		`remove.*subscription`,
		`manage.*preferences`,
		`email.*preferences`,
		`preference.*center`,
		`update.*subscription`,
		`change.*subscription`,
		`modify.*subscription`,
		`cancel.*subscription`,
		`stop.*emails`,
		`stop.*mailing`,
		`remove.*from.*list`,
		`remove.*me`,
	)
	linkURLPatterns = compileAll(
		`unsubscribe`,
		`optout`,
		`opt-out`,
		`preferences`,
		`manage`,
		`remove`,
		`list-unsubscribe`,
		`mailing-list`,
	)
	subscribeText  = regexp.MustCompile(`(?i)subscribe|sign.?up|join|register`)
	unsubscribeRe  = regexp.MustCompile(`(?i)unsubscribe`)
	socialHost     = regexp.MustCompile(`(?i)facebook|twitter|linkedin|instagram|youtube`)
	listUnsubInURL = regexp.MustCompile(`(?i)list-unsubscribe`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

func anyMatch(res []*regexp.Regexp, values ...string) bool {
	for _, re := range res {
		for _, v := range values {
			if v != "" && re.MatchString(v) {
				return true
			}
		}
	}
	return false
}

// ParseHeader extracts targets from List-Unsubscribe (RFC 2369). HTTP
// targets become one-click POSTs when List-Unsubscribe-Post advertises
// RFC 8058 support. Order: one-click, mailto, then GET.
func ParseHeader(listUnsubscribe, listUnsubscribePost string) []Target {
	oneClick := strings.EqualFold(strings.TrimSpace(listUnsubscribePost), "List-Unsubscribe=One-Click")
	var targets []Target
	for _, part := range strings.Split(listUnsubscribe, ",") {
		part = strings.TrimSpace(part)
		start, end := strings.Index(part, "<"), strings.LastIndex(part, ">")
		if start < 0 || end <= start {
			continue
		}
		raw := strings.TrimSpace(part[start+1 : end])
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		t := Target{URL: raw, Text: "List-Unsubscribe", FromHeader: true, Confidence: High}
		switch strings.ToLower(u.Scheme) {
		case "https", "http":
			t.Method = MethodGet
			if oneClick {
				t.Method = MethodOneClick
			}
		case "mailto":
			t.Method = MethodMailto
		default:
			continue
		}
		targets = append(targets, t)
	}
	slices.SortStableFunc(targets, func(a, b Target) int {
		return methodRank(a.Method) - methodRank(b.Method)
	})
	return targets
}

func methodRank(m Method) int {
	switch m {
	case MethodOneClick:
		return 0
	case MethodMailto:
		return 1
	default:
		return 2
	}
}

type anchor struct {
	href, title, aria, method string
	text                      strings.Builder
}

// FindLinks scans an HTML body for unsubscribe links, highest confidence
// first. Subscribe/sign-up links and social network links are excluded.
func FindLinks(body string) []Target {
	if body == "" {
		return nil
	}
	var (
		targets []Target
		seen    = make(map[string]bool)
		cur     *anchor
	)
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			slices.SortStableFunc(targets, func(a, b Target) int {
				return int(b.Confidence) - int(a.Confidence)
			})
			return targets
		case html.StartTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.A {
				continue
			}
			cur = &anchor{}
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case "href":
					cur.href = strings.TrimSpace(a.Val)
				case "title":
					cur.title = a.Val
				case "aria-label":
					cur.aria = a.Val
				case "data-method":
					cur.method = a.Val
				}
			}
		case html.TextToken:
			if cur != nil {
				cur.text.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if cur == nil || atom.Lookup(name) != atom.A {
				continue
			}
			if t, ok := classifyLink(cur); ok && !seen[t.URL] {
				seen[t.URL] = true
				targets = append(targets, t)
			}
			cur = nil
		}
	}
}

func classifyLink(a *anchor) (Target, bool) {
	if a.href == "" {
		return Target{}, false
	}
	u, err := url.Parse(a.href)
	if err != nil {
		return Target{}, false
	}
	text := strings.ToLower(strings.Join(strings.Fields(a.text.String()), " "))
	label := text
	if label == "" {
		label = strings.ToLower(a.title)
	}
	if label == "" {
		label = "unsubscribe"
	}

	switch strings.ToLower(u.Scheme) {
	case "mailto":
		if !unsubscribeRe.MatchString(text) && !unsubscribeRe.MatchString(a.href) {
			return Target{}, false
		}
		return Target{Method: MethodMailto, URL: a.href, Text: label, Confidence: Medium}, true
	case "http", "https":
	default:
		return Target{}, false
	}

	textMatches := anyMatch(linkTextPatterns, text, strings.ToLower(a.title), strings.ToLower(a.aria))
	urlMatches := anyMatch(linkURLPatterns, a.href)
	if !textMatches && !urlMatches {
		return Target{}, false
	}
	if subscribeText.MatchString(text) && !unsubscribeRe.MatchString(text) {
		return Target{}, false
	}
	if socialHost.MatchString(a.href) {
		return Target{}, false
	}

	t := Target{Method: MethodGet, URL: a.href, Text: label, Confidence: Medium}
	if textMatches && urlMatches {
		t.Confidence = High
	}
	if listUnsubInURL.MatchString(a.href) || strings.EqualFold(a.method, "post") {
		t.Method = MethodOneClick
	}
	return t, true
}

// Discover lists every unsubscribe target for e: header targets first,
// then body links.
func Discover(e *domain.Email) []Target {
	targets := ParseHeader(e.ListUnsubscribe, e.ListUnsubscribePost)
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		seen[t.URL] = true
	}
	for _, t := range FindLinks(e.BodyHTML) {
		if !seen[t.URL] {
			targets = append(targets, t)
		}
	}
	return targets
}

// Available reports whether e offers any unsubscribe mechanism.
func Available(e *domain.Email) bool {
	return len(Discover(e)) > 0
}
