package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jaytaylor/html2text"

	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
)

// Website fetches the company home page and parses its text.
type Website struct {
	httpProvider
}

// NewWebsite creates the website provider. WithBaseURL replaces the
// https://<domain> address, which is only useful in tests.
func NewWebsite(parser CompanyParser, client *http.Client, opts ...ProviderOption) *Website {
	return &Website{httpProvider: newHTTPProvider(parser, client, "", opts)}
}

// Name implements Provider.
func (w *Website) Name() string {
	return ProviderWebsite
}

// Lookup fetches https://<domain>. The query is not used.
func (w *Website) Lookup(ctx context.Context, _ string, domain string) (*intelligence.CompanyDetails, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, ErrNoResult
	}

	target := w.baseURL
	if target == "" {
		target = "https://" + domain
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build website request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := w.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", domain, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", domain, err)
	}

	text, err := html2text.FromString(string(body), html2text.Options{OmitLinks: true, TextOnly: true})
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", domain, err)
	}

	details, err := w.parse(ctx, text)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, ErrNoResult
	}
	if details.Website == "" {
		details.Website = domain
	}
	return details, nil
}
