package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
)

// DefaultDuckDuckGoURL is the no-JavaScript search endpoint.
const DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

// maxSearchResults is how many result snippets are handed to the oracle.
const maxSearchResults = 3

// SearchResult is one organic search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// DuckDuckGo searches the web and parses the top result snippets.
type DuckDuckGo struct {
	httpProvider
}

// NewDuckDuckGo creates the web search provider.
func NewDuckDuckGo(parser CompanyParser, client *http.Client, opts ...ProviderOption) *DuckDuckGo {
	return &DuckDuckGo{httpProvider: newHTTPProvider(parser, client, DefaultDuckDuckGoURL, opts)}
}

// Name implements Provider.
func (d *DuckDuckGo) Name() string {
	return ProviderDuckDuckGo
}

// Lookup searches for query, or for the domain when query is empty.
func (d *DuckDuckGo) Lookup(ctx context.Context, query, domain string) (*intelligence.CompanyDetails, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		q = strings.TrimSpace(domain)
	}
	if q == "" {
		return nil, ErrNoResult
	}

	results, err := d.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResult
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%s\n%s\n%s\n\n", r.Title, r.URL, r.Snippet)
	}
	return d.parse(ctx, b.String())
}

// Search returns up to three organic results for q.
func (d *DuckDuckGo) Search(ctx context.Context, q string) ([]SearchResult, error) {
	form := url.Values{"q": {q}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}
	defer resp.Body.Close()

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}
	return extractResults(doc, maxSearchResults), nil
}

// extractResults walks the result page. Each organic hit is a div with class
// "result" holding a "result__a" title link and a "result__snippet".
// Sponsored hits carry "result--ad" and are skipped.
func extractResults(doc *html.Node, limit int) []SearchResult {
	var results []SearchResult

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result") && !hasClass(n, "result--ad") {
			r := SearchResult{}
			findResultParts(n, &r)
			if r.Snippet != "" || r.Title != "" {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results
}

func findResultParts(n *html.Node, r *SearchResult) {
	if n.Type == html.ElementNode {
		switch {
		case hasClass(n, "result__a") && r.Title == "":
			r.Title = nodeText(n)
			r.URL = resultURL(attr(n, "href"))
			return
		case hasClass(n, "result__snippet") && r.Snippet == "":
			r.Snippet = nodeText(n)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		findResultParts(c, r)
	}
}

// resultURL unwraps DuckDuckGo's /l/?uddg= redirect links.
func resultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
