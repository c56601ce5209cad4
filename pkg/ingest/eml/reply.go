package eml

import (
	"regexp"
	"strings"
)

var (
	onWroteLine      = regexp.MustCompile(`(?i)^\s*on\s.+\swrote:\s*$`)
	onLineStart      = regexp.MustCompile(`(?i)^\s*on\s.+`)
	wroteLineEnd     = regexp.MustCompile(`(?i)^.*\swrote:\s*$`)
	originalMessage  = regexp.MustCompile(`(?i)^\s*-{2,}\s*original message\s*-{2,}\s*$`)
	outlookSeparator = regexp.MustCompile(`^\s*_{20,}\s*$`)
	forwardedBegin   = regexp.MustCompile(`(?i)^\s*begin forwarded message:\s*$`)
	fromHeaderLine   = regexp.MustCompile(`(?i)^\s*\*?from:\*?\s+\S`)
)

// StripQuotedReply returns text up to the first reply boundary, with CRLF
// normalized and trailing whitespace trimmed. When the boundary is the very
// first line the whole text is kept, since there is nothing above it.
func StripQuotedReply(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	cut := replyBoundary(lines)
	if cut < 0 {
		return strings.TrimRight(text, " \t\n")
	}

	visible := strings.TrimRight(strings.Join(lines[:cut], "\n"), " \t\n")
	if strings.TrimSpace(visible) == "" {
		return strings.TrimRight(text, " \t\n")
	}
	return visible
}

// replyBoundary returns the index of the first boundary line, or -1.
func replyBoundary(lines []string) int {
	for i, line := range lines {
		switch {
		case onWroteLine.MatchString(line),
			originalMessage.MatchString(line),
			outlookSeparator.MatchString(line),
			forwardedBegin.MatchString(line):
			return i
		case onLineStart.MatchString(line) && i+1 < len(lines) && wroteLineEnd.MatchString(lines[i+1]):
			return i
		case i > 0 && strings.TrimSpace(lines[i-1]) == "" && fromHeaderLine.MatchString(line):
			return i
		}
	}
	return -1
}
