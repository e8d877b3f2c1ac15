package sanitizer

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy removes all markup
var strictPolicy = bluemonday.StrictPolicy()

var (
	blockBreaks = strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"</p>", "\n", "</div>", "\n", "</li>", "\n", "</tr>", "\n",
		"&nbsp;", " ",
	)
	styleOrScript = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
	spaceRuns     = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
)

// StripHTML converts an HTML email body into plain text
func StripHTML(body string) string {
	if !strings.Contains(body, "<") && !strings.Contains(body, "&") {
		return strings.TrimSpace(body)
	}

	text := styleOrScript.ReplaceAllString(body, "")
	text = blockBreaks.Replace(text)
	text = strictPolicy.Sanitize(text)
	// bluemonday escapes entities on output; decode them back to plain text
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
