package eml

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NormalizeContent picks the text handed to the oracle. HTML wins when present
// and is returned as markup with <script> and <style> removed; otherwise the
// plain body is returned with quoted replies cut off. It never fails.
func NormalizeContent(email *ParsedEmail) string {
	if email == nil {
		return ""
	}

	if strings.TrimSpace(email.BodyHTML) != "" {
		if cleaned, ok := stripScriptsAndStyles(email.BodyHTML); ok {
			return cleaned
		}
	}

	return StripQuotedReply(email.BodyText)
}

// stripScriptsAndStyles reports ok=false when the markup cannot be parsed or
// holds no visible text once scripts and styles are gone.
func stripScriptsAndStyles(markup string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", false
	}

	var doomed []*html.Node
	var hasText bool
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			doomed = append(doomed, n)
			return
		}
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			hasText = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, n := range doomed {
		n.Parent.RemoveChild(n)
	}
	if !hasText {
		return "", false
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", false
	}
	return buf.String(), true
}
