package intelligence

import (
	"context"
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"
)

// TruncationMarker separates the head and tail of over-long text.
const TruncationMarker = "\n\n[... content truncated due to length ...]\n\n"

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Unsubscribe.*?\n`),
	regexp.MustCompile(`(?i)View in browser.*?\n`),
	regexp.MustCompile(`(?i)Privacy Policy.*?\n`),
	regexp.MustCompile(`(?i)Terms of Service.*?\n`),
	regexp.MustCompile(`(?i)© \d{4}.*?\n`),
	regexp.MustCompile(`(?i)Click here to.*?\n`),
	regexp.MustCompile(`(?i)\[.*?\]\(http.*?\)`),
}

var (
	blankRuns  = regexp.MustCompile(`\n\s*\n`)
	spaceRuns  = regexp.MustCompile(` +`)
	markupHint = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)
)

// Cleaner compresses message text before it is sent to the model.
type Cleaner struct {
	// MaxChars is the rune budget; longer text keeps its first 70% and last 30%.
	MaxChars int
	// Links unwraps tracking URLs when set.
	Links *LinkResolver
}

// Clean converts markup to text, unwraps links, strips boilerplate, collapses
// whitespace and truncates. truncated reports whether the budget was hit.
func (c *Cleaner) Clean(ctx context.Context, text string) (cleaned string, truncated bool) {
	if markupHint.MatchString(text) {
		if plain, err := html2text.FromString(text, html2text.Options{OmitLinks: true, TextOnly: true}); err == nil {
			text = plain
		}
	}

	if c.Links != nil {
		text = c.Links.Unwrap(ctx, text)
	}

	// Patterns anchor on a newline, so make sure the last line has one.
	text = strings.ReplaceAll(text, "\r\n", "\n") + "\n"
	for _, p := range noisePatterns {
		text = p.ReplaceAllString(text, "")
	}

	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	maxChars := c.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	text, truncated = truncateMiddle(strings.TrimSpace(text), maxChars)

	return text, truncated
}

// truncateMiddle keeps the first 70% and last 30% of a rune budget.
func truncateMiddle(text string, maxChars int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, false
	}
	lead := maxChars * 7 / 10
	tail := maxChars - lead
	return string(runes[:lead]) + TruncationMarker + string(runes[len(runes)-tail:]), true
}
