// Package enrichment looks up company facts outside the message: a web search
// and the company's own website. Each provider hands the text it finds to the
// oracle, which turns it into structured company details.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

// ErrNoResult is returned when a provider found nothing usable.
var ErrNoResult = errors.New("enrichment: no result")

// Provider names accepted in configuration.
const (
	ProviderDuckDuckGo = "duckduckgo"
	ProviderWebsite    = "website"
)

// DefaultUserAgent is sent with every provider request.
const DefaultUserAgent = "Mozilla/5.0 (compatible; emlsync/1.0)"

// CompanyParser turns free text into company details.
type CompanyParser interface {
	ParseCompany(ctx context.Context, text string) (*intelligence.CompanyDetails, error)
}

// Provider looks up one company. query is a free-text search seed and domain
// the company's mail domain; either may be empty.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, query, domain string) (*intelligence.CompanyDetails, error)
}

// Config configures the provider chain.
type Config struct {
	// Providers are tried in order until one returns details.
	Providers []string      `yaml:"providers"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// DefaultConfig returns the default enrichment configuration.
func DefaultConfig() Config {
	return Config{
		Providers: []string{ProviderDuckDuckGo},
		Timeout:   10 * time.Second,
		UserAgent: DefaultUserAgent,
	}
}

// Chain tries providers in order and returns the first result.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    logging.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the chain logger.
func WithLogger(logger logging.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger.With(logging.F("component", "enrichment"))
	}
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		c.timeout = d
	}
}

// NewChain creates a chain over the given providers.
func NewChain(providers []Provider, opts ...ChainOption) *Chain {
	c := &Chain{
		providers: providers,
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New builds the chain named by cfg. Unknown provider names are an error.
func New(cfg Config, parser CompanyParser, client *http.Client, opts ...ChainOption) (*Chain, error) {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	providers := make([]Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ProviderDuckDuckGo:
			providers = append(providers, NewDuckDuckGo(parser, client, WithUserAgent(cfg.UserAgent)))
		case ProviderWebsite:
			providers = append(providers, NewWebsite(parser, client, WithUserAgent(cfg.UserAgent)))
		case "":
		default:
			return nil, fmt.Errorf("unknown enrichment provider %q", name)
		}
	}

	opts = append([]ChainOption{WithTimeout(cfg.Timeout)}, opts...)
	return NewChain(providers, opts...), nil
}

// Providers returns the provider names in lookup order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Lookup asks each provider in turn. It returns the first non-empty result,
// or the last provider error when none succeeded.
func (c *Chain) Lookup(ctx context.Context, query, domain string) (*intelligence.CompanyDetails, error) {
	if query == "" && domain == "" {
		return nil, ErrNoResult
	}
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no enrichment providers configured: %w", ErrNoResult)
	}

	lastErr := ErrNoResult
	for _, p := range c.providers {
		details, err := c.lookupOne(ctx, p, query, domain)
		if err == nil && !details.IsEmpty() {
			c.logger.Debug("enrichment hit",
				logging.F("provider", p.Name()),
				logging.F("query", query),
				logging.F("domain", domain),
			)
			return details, nil
		}
		if err == nil {
			err = ErrNoResult
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("enrichment provider returned nothing",
			logging.F("provider", p.Name()),
			logging.Err(err),
		)
		lastErr = fmt.Errorf("%s: %w", p.Name(), err)
	}
	return nil, lastErr
}

func (c *Chain) lookupOne(ctx context.Context, p Provider, query, domain string) (*intelligence.CompanyDetails, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return p.Lookup(ctx, query, domain)
}

// ProviderOption configures the HTTP providers.
type ProviderOption func(*httpProvider)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ProviderOption {
	return func(p *httpProvider) {
		p.userAgent = ua
	}
}

// WithBaseURL overrides the endpoint a provider talks to.
func WithBaseURL(u string) ProviderOption {
	return func(p *httpProvider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// httpProvider holds what the HTTP-backed providers share.
type httpProvider struct {
	parser    CompanyParser
	client    *http.Client
	userAgent string
	baseURL   string
}

func newHTTPProvider(parser CompanyParser, client *http.Client, baseURL string, opts []ProviderOption) httpProvider {
	if client == nil {
		client = &http.Client{}
	}
	p := httpProvider{
		parser:    parser,
		client:    client,
		userAgent: DefaultUserAgent,
		baseURL:   baseURL,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 1 << 20

func (p *httpProvider) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", p.userAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return resp, nil
}

func (p *httpProvider) parse(ctx context.Context, text string) (*intelligence.CompanyDetails, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoResult
	}
	if p.parser == nil {
		return nil, errors.New("no company parser configured")
	}
	return p.parser.ParseCompany(ctx, text)
}
