// Package sanitizer classifies service/technical email and redacts model and
// vendor-internal language from content before it reaches a client-facing report.
// Everything here is pure: no I/O, no errors, unmatched input passes through.
package sanitizer

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ModelPlaceholder replaces every model name or model-version mention
const ModelPlaceholder = "[AI Model]"

var serviceSenderKeywords = []string{
	"noreply", "no-reply", "donotreply", "do-not-reply", "automated", "notification",
	"notifications", "support", "alerts", "mailer-daemon", "postmaster", "system",
	"updates", "newsletter", "billing",
}

var productUpdateSubjects = compileAll(
	`(?i)\bproduct\s+updates?\b`,
	`(?i)\b(model|api)\s+(update|upgrade|release|launch)s?\b`,
	`(?i)\bmigrat(e|ion|ing)\b`,
	`(?i)\bdeprecat(e|ed|ion|ing)\b`,
	`(?i)\bsunset(ting)?\b`,
	`(?i)\bend[\s-]of[\s-]life\b`,
	`(?i)\bchangelog\b`,
	`(?i)\brelease\s+notes?\b`,
	`(?i)\bnew\s+version\s+(available|released)\b`,
	`(?i)\bservice\s+(notice|announcement|update)\b`,
)

var technicalBody = compileAll(
	`(?i)\bapi[\s_-]?keys?\b`,
	`(?i)\bendpoints?\b`,
	`(?i)\brate[\s-]limits?\b`,
	`(?i)\btokens?\s+per\s+(minute|second|request)\b`,
	`(?i)\bcontext\s+window\b`,
	`(?i)\bfine[\s-]tun(e|ed|ing)\b`,
	`(?i)\b(sdk|cli)\s+v?\d+(\.\d+)*\b`,
	`(?i)\bstack\s*trace\b`,
	`(?i)\bHTTP\s+[45]\d\d\b`,
)

// Known model families. Each entry matches the family name with an optional version suffix.
var modelNamePatterns = compileAll(
	`(?i)\bgpt[\s-]?\d+(\.\d+)?(o|[\s-](turbo|mini|nano|preview))*\b`,
	`(?i)\bgpt[\s-]?4o(\s*-?\s*mini)?\b`,
	`(?i)\bchat\s?gpt\b`,
	`(?i)\bclaude(\s*-?\s*\d+(\.\d+)?)?(\s*-?\s*(opus|sonnet|haiku|instant))*(\s*-?\s*\d+(\.\d+)?)?\b`,
	`(?i)\bgemini(\s*-?\s*\d+(\.\d+)?)?(\s*-?\s*(pro|flash|ultra|nano))*\b`,
	`(?i)\bllama\s*-?\s*\d+(\.\d+)?(\s*-?\s*\d+b)?\b`,
	`(?i)\bmistral(\s*-?\s*(large|medium|small|\d+b))?\b`,
	`(?i)\bmixtral(\s*-?\s*\d+x\d+b)?\b`,
	`(?i)\bdall[\s-]?e(\s*-?\s*\d)?\b`,
	`(?i)\bwhisper(\s*-?\s*(v\d|large|medium|small))?\b`,
	`(?i)\btext-embedding-(ada-\d+|3-(small|large))\b`,
	`(?i)\bo[13](\s*-?\s*(mini|preview|pro))?\b`,
)

// Version strings attached to model-ish context, e.g. "v2.1-turbo", "model 3.5"
var modelVersionPattern = regexp.MustCompile(`(?i)\bmodel\s+v?\d+(\.\d+)+\b`)

var (
	contextDatePattern = regexp.MustCompile(
		`(?i)\b(update|model|release|version|launch)(d|s)?\b([^.\n]{0,40}?)\b(` +
			`\d{4}-\d{2}-\d{2}|` +
			`\d{1,2}/\d{1,2}/\d{2,4}|` +
			`(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(st|nd|rd|th)?,?\s+\d{4}|` +
			`(q[1-4]|h[12])\s+\d{4})`)
	transitionPattern = regexp.MustCompile(
		`(?i)\b(migrat(ed|ing|ion)|transition(ed|ing)?|upgrad(ed|ing)|switch(ed|ing))\s+(to|from)\s+(the\s+)?(new|latest|updated|previous|legacy|older)\s+(model|version|system|platform)s?\b`)
	jargonPattern = regexp.MustCompile(
		`(?i)\b(embeddings?|vector\s+(search|database|store)|fine[\s-]tun(ed|ing)|inference|tokens?|prompt(s|ing)?|context\s+window|hallucinat(e|ed|ion|ions)|RAG|retrieval[\s-]augmented\s+generation|LLMs?|large\s+language\s+models?)\b`)
	emailPattern      = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@([a-z0-9\-]+(\.[a-z0-9\-]+)+)\b`)
	extraSpacePattern = regexp.MustCompile(`[ \t]{2,}`)
)

// RedactedEmail replaces addresses outside the allowed client domains
const RedactedEmail = "[email redacted]"

// IsServiceOrTechnicalEmail reports whether a message looks automated, vendor-update
// or technical rather than a human conversation with a client.
func IsServiceOrTechnicalEmail(subject, fromAddress, body string) bool {
	from := strings.ToLower(fromAddress)
	for _, kw := range serviceSenderKeywords {
		if strings.Contains(from, kw) {
			return true
		}
	}

	if matchesAny(productUpdateSubjects, subject) {
		return true
	}
	if matchesAny(modelNamePatterns, subject) {
		return true
	}

	if body == "" {
		return false
	}
	if matchesAny(technicalBody, body) {
		return true
	}
	return countModelMentions(body) >= 3
}

// SanitizeContent replaces every model name or model-version pattern with ModelPlaceholder.
// Applying it twice yields the same text.
func SanitizeContent(text string) string {
	if text == "" {
		return text
	}
	out := modelVersionPattern.ReplaceAllString(text, ModelPlaceholder)
	for _, re := range modelNamePatterns {
		out = re.ReplaceAllString(out, ModelPlaceholder)
	}
	return out
}

// SanitizeReport prepares generated report text for a client. clientName, when set,
// is never altered; addresses on clientDomains (or their subdomains) are kept.
func SanitizeReport(report string, clientName *string, clientDomains []string) string {
	if report == "" {
		return report
	}

	// Addresses come out first so nothing below can rewrite an allowed one
	out, kept := shieldEmails(report, clientDomains)

	// Shield the client name so model/jargon patterns cannot touch it
	const nameToken = "\x00CLIENT\x00"
	name := ""
	if clientName != nil {
		name = strings.TrimSpace(*clientName)
	}
	if name != "" {
		out = strings.ReplaceAll(out, name, nameToken)
	}

	out = SanitizeContent(out)
	out = contextDatePattern.ReplaceAllString(out, "${1}${2}${3}[date]")
	out = transitionPattern.ReplaceAllString(out, "updated our process")
	out = jargonPattern.ReplaceAllString(out, "")
	out = extraSpacePattern.ReplaceAllString(out, " ")

	if name != "" {
		out = strings.ReplaceAll(out, nameToken, name)
	}
	for i, addr := range kept {
		out = strings.Replace(out, emailToken(i), addr, 1)
	}
	return out
}

// shieldEmails redacts addresses outside clientDomains and swaps the allowed
// ones for placeholder tokens, returned in order.
func shieldEmails(text string, clientDomains []string) (string, []string) {
	allowed := make([]string, 0, len(clientDomains))
	for _, d := range clientDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed = append(allowed, strings.TrimPrefix(d, "@"))
		}
	}

	var kept []string
	out := emailPattern.ReplaceAllStringFunc(text, func(addr string) string {
		at := strings.LastIndex(addr, "@")
		domain := strings.ToLower(addr[at+1:])
		for _, d := range allowed {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				kept = append(kept, addr)
				return emailToken(len(kept) - 1)
			}
		}
		return RedactedEmail
	})
	return out, kept
}

func emailToken(i int) string {
	return "\x00EMAIL" + strconv.Itoa(i) + "\x00"
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func countModelMentions(text string) int {
	seen := make(map[string]struct{})
	for _, re := range modelNamePatterns {
		for _, m := range re.FindAllString(text, -1) {
			seen[strings.ToLower(strings.Join(strings.Fields(m), " "))] = struct{}{}
		}
	}
	return len(seen)
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	if text == "" {
		return false
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}
