package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/otherjamesbrown/emlsync/pkg/buildinfo"
	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

// API paths.
const (
	pathCompanies  = "/api-v1-companies"
	pathContacts   = "/api-v1-contacts"
	pathActivities = "/api-v1-activities"
	pathDeals      = "/api-v1-deals"
)

// DefaultPublicDomains are consumer mail providers that never become companies.
var DefaultPublicDomains = []string{
	"gmail.com", "outlook.com", "yahoo.com", "hotmail.com", "icloud.com", "me.com", "msn.com",
}

// ErrPublicDomain is returned by UpsertCompany for consumer mail domains.
var ErrPublicDomain = fmt.Errorf("public mail domain: %w", pferrors.ErrRejected)

// ErrMissingID is returned when a create call succeeds without returning the
// new record's id. The record may still exist on the server.
var ErrMissingID = errors.New("response carried no id")

// Config configures the CRM client.
type Config struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"-"`
	Timeout       time.Duration `yaml:"timeout"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
	PublicDomains []string      `yaml:"public_domains"`
}

// DefaultConfig returns the default CRM configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Second,
		UploadTimeout: 30 * time.Second,
		PublicDomains: DefaultPublicDomains,
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap maps auth failures onto pferrors.ErrUnauthorized and 404 onto
// pferrors.ErrNotFound.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pferrors.ErrUnauthorized
	case http.StatusNotFound:
		return pferrors.ErrNotFound
	case http.StatusConflict:
		return pferrors.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pferrors.ErrValidation
	}
	return nil
}

// Client talks to the CRM. Every call is a single attempt.
type Client struct {
	cfg           Config
	baseURL       string
	httpClient    *http.Client
	publicDomains map[string]bool
	logger        logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With(logging.F("component", "crm"))
	}
}

// WithHTTPClient replaces the HTTP client. Per-call timeouts still apply.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a CRM client. An API key and base URL are required.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: CRM API key must be provided", pferrors.ErrValidation)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: CRM base URL must be provided", pferrors.ErrValidation)
	}

	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = d.UploadTimeout
	}
	if cfg.PublicDomains == nil {
		cfg.PublicDomains = d.PublicDomains
	}

	c := &Client{
		cfg:           cfg,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:    &http.Client{},
		publicDomains: make(map[string]bool, len(cfg.PublicDomains)),
		logger:        logging.NewNopLogger(),
	}
	for _, domain := range cfg.PublicDomains {
		c.publicDomains[strings.ToLower(strings.TrimSpace(domain))] = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IsPublicDomain reports whether domain is a consumer mail provider.
func (c *Client) IsPublicDomain(domain string) bool {
	return c.publicDomains[strings.ToLower(strings.TrimSpace(domain))]
}

// UpsertCompany finds a company by website, then by name, and updates it
// with facts. A miss creates it. Public mail domains are refused with
// ErrPublicDomain.
func (c *Client) UpsertCompany(ctx context.Context, name, website string, facts CompanyFacts) (ID, error) {
	if website != "" && c.IsPublicDomain(website) {
		return 0, ErrPublicDomain
	}
	if name == "" {
		name = website
	}
	if name == "" {
		return 0, fmt.Errorf("%w: company needs a name or website", pferrors.ErrValidation)
	}

	if website != "" {
		id, found, err := c.findOne(ctx, pathCompanies, "website", website)
		if err != nil {
			c.logger.Warn("company search by website failed", logging.F("website", website), logging.Err(err))
		} else if found {
			c.patchCompany(ctx, id, facts)
			return id, nil
		}
	}

	id, found, err := c.findOne(ctx, pathCompanies, "name", name)
	if err != nil {
		c.logger.Warn("company search by name failed", logging.F("name", name), logging.Err(err))
	} else if found {
		c.patchCompany(ctx, id, facts)
		return id, nil
	}

	var created itemEnvelope
	payload := companyPayload{Name: name, Website: website, CompanyFacts: facts}
	if err := c.doJSON(ctx, "create company", http.MethodPost, pathCompanies, nil, payload, &created); err != nil {
		return 0, err
	}
	if created.Data.ID == 0 {
		return 0, fmt.Errorf("crm create company: %w", ErrMissingID)
	}
	c.logger.Debug("company created", logging.F("company_id", int64(created.Data.ID)), logging.F("name", name))
	return created.Data.ID, nil
}

// patchCompany updates facts on an existing company. Failures are logged;
// the id is still usable.
func (c *Client) patchCompany(ctx context.Context, id ID, facts CompanyFacts) {
	if facts.IsZero() {
		return
	}
	if err := c.doJSON(ctx, "update company", http.MethodPatch, pathCompanies+"/"+id.String(), nil, facts, nil); err != nil {
		c.logger.Error("failed to update existing company", logging.F("company_id", int64(id)), logging.Err(err))
	}
}

// UpsertContact finds a contact by email and updates it, or creates it with
// the email as its work address.
func (c *Client) UpsertContact(ctx context.Context, email, firstName, lastName string, companyID *ID, facts ContactFacts) (ID, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, fmt.Errorf("%w: contact needs an email", pferrors.ErrValidation)
	}

	payload := contactPayload{
		FirstName:    firstName,
		LastName:     lastName,
		CompanyID:    companyID,
		ContactFacts: facts,
	}

	id, found, err := c.findOne(ctx, pathContacts, "email", email)
	if err != nil {
		c.logger.Warn("contact search by email failed", logging.F("email", email), logging.Err(err))
	} else if found {
		if err := c.doJSON(ctx, "update contact", http.MethodPatch, pathContacts+"/"+id.String(), nil, payload, nil); err != nil {
			c.logger.Error("failed to update existing contact", logging.F("contact_id", int64(id)), logging.Err(err))
		}
		return id, nil
	}

	if len(payload.EmailJSONB) == 0 {
		payload.EmailJSONB = []EmailEntry{{Email: email, Type: "Work"}}
	}

	var created itemEnvelope
	if err := c.doJSON(ctx, "create contact", http.MethodPost, pathContacts, nil, payload, &created); err != nil {
		return 0, err
	}
	if created.Data.ID == 0 {
		return 0, fmt.Errorf("crm create contact: %w", ErrMissingID)
	}
	c.logger.Debug("contact created", logging.F("contact_id", int64(created.Data.ID)), logging.F("email", email))
	return created.Data.ID, nil
}

// CreateActivity records a note. With files it is sent as multipart form
// data under the upload timeout and the stored location of the first file is
// returned; otherwise it is plain JSON.
func (c *Client) CreateActivity(ctx context.Context, a Activity, files []File) (*ActivityResult, error) {
	if a.Type == "" {
		a.Type = ActivityContactNote
	}

	var created itemEnvelope
	if len(files) == 0 {
		if err := c.doJSON(ctx, "create activity", http.MethodPost, pathActivities, nil, a, &created); err != nil {
			return nil, err
		}
	} else if err := c.doMultipart(ctx, a, files, &created); err != nil {
		return nil, err
	}
	if created.Data.ID == 0 {
		return nil, fmt.Errorf("crm create activity: %w", ErrMissingID)
	}

	result := &ActivityResult{ID: created.Data.ID}
	for _, att := range created.Data.Attachments {
		if att.Src != "" {
			result.AttachmentURL = att.Src
			break
		}
		if att.URL != "" {
			result.AttachmentURL = att.URL
			break
		}
	}
	return result, nil
}

// CreateTask records a follow-up task on a contact.
func (c *Client) CreateTask(ctx context.Context, t Task) error {
	return c.doJSON(ctx, "create task", http.MethodPost, pathActivities, nil, taskPayload{Type: ActivityTask, Task: t}, nil)
}

// CreateDeal records a sales opportunity.
func (c *Client) CreateDeal(ctx context.Context, d Deal) (ID, error) {
	if d.ContactIDs == nil {
		d.ContactIDs = []ID{}
	}
	var created itemEnvelope
	if err := c.doJSON(ctx, "create deal", http.MethodPost, pathDeals, nil, d, &created); err != nil {
		return 0, err
	}
	if created.Data.ID == 0 {
		return 0, fmt.Errorf("crm create deal: %w", ErrMissingID)
	}
	return created.Data.ID, nil
}

// findOne runs a list query filtered on one field and returns the first hit.
func (c *Client) findOne(ctx context.Context, path, field, value string) (ID, bool, error) {
	var list listEnvelope
	query := url.Values{field: {value}}
	if err := c.doJSON(ctx, "search "+strings.TrimPrefix(path, "/api-v1-"), http.MethodGet, path, query, nil, &list); err != nil {
		return 0, false, err
	}
	if len(list.Data) == 0 || list.Data[0].ID == 0 {
		return 0, false, nil
	}
	return list.Data[0].ID, true, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("crm %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("crm %s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op, out)
}

func (c *Client) doMultipart(ctx context.Context, a Activity, files []File, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"type", a.Type},
		{"text", a.Text},
		{"status", a.Status},
		{"date", a.Date},
	}
	for _, ref := range []struct {
		key string
		id  *ID
	}{{"contact_id", a.ContactID}, {"company_id", a.CompanyID}, {"deal_id", a.DealID}, {"sales_id", a.SalesID}} {
		if ref.id != nil {
			fields = append(fields, [2]string{ref.key, ref.id.String()})
		}
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("crm upload: write field %s: %w", f[0], err)
		}
	}

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("crm upload: create part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return fmt.Errorf("crm upload: write %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("crm upload: close form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathActivities, &buf)
	if err != nil {
		return fmt.Errorf("crm upload: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.send(req, "upload activity", out)
}

func (c *Client) send(req *http.Request, op string, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent("emlsync"))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(req.Context().Err(), context.DeadlineExceeded) {
			return fmt.Errorf("crm %s: request timeout after %s: %w", op, time.Since(start).Truncate(time.Millisecond), context.DeadlineExceeded)
		}
		return fmt.Errorf("crm %s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("crm %s: read response: %w", op, err)
	}

	c.logger.Debug("crm call",
		logging.F("op", op),
		logging.F("status", resp.StatusCode),
		logging.F("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(respBody)), 512)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("crm %s: parse response: %w", op, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
