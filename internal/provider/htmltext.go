package provider

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// PlainText reduces an HTML body to whitespace-collapsed text.
func PlainText(body string) string {
	if body == "" {
		return ""
	}
	// Block-level closers become spaces so adjacent words don't run together.
	r := strings.NewReplacer("</p>", " </p>", "<br>", " <br>", "<br/>", " <br/>", "</div>", " </div>", "</td>", " </td>", "</li>", " </li>")
	stripped := stripPolicy.Sanitize(r.Replace(body))
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}
