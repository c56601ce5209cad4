// Package intelligence turns message text into structured CRM facts using an
// OpenAI-compatible chat completion endpoint.
package intelligence

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Sentiment is the emotional tone of a message.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

// Intent is the primary goal of a message.
type Intent string

const (
	IntentDemo    Intent = "Demo"
	IntentSupport Intent = "Support"
	IntentSales   Intent = "Sales"
	IntentOther   Intent = "Other"
)

// IsSalesOriented reports whether the intent can open a deal.
func (i Intent) IsSalesOriented() bool {
	return i == IntentSales || i == IntentDemo
}

// SenderInfo holds facts about one person.
type SenderInfo struct {
	Phone       string `json:"phone,omitempty"`
	Title       string `json:"title,omitempty" jsonschema_description:"Job title or role"`
	Company     string `json:"company,omitempty" jsonschema_description:"Name of the company this person works for"`
	Background  string `json:"background,omitempty" jsonschema_description:"A brief biography or historical context about the contact"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	Gender      string `json:"gender,omitempty"`
}

// ContactInfo holds facts about a participant other than the sender.
type ContactInfo struct {
	Email string `json:"email" jsonschema_description:"Email address of the person, exactly as it appears in the message headers"`
	SenderInfo
}

// CompanySize is a headcount. Models sometimes answer with a string such as
// "50" or "50-200"; the first integer wins and anything else decodes to 0.
type CompanySize int

var firstInt = regexp.MustCompile(`\d+`)

func (s *CompanySize) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*s = CompanySize(n)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		*s = 0
		return nil
	}
	digits := firstInt.FindString(strings.ReplaceAll(str, ",", ""))
	v, _ := strconv.Atoi(digits)
	*s = CompanySize(v)
	return nil
}

// CompanyDetails holds facts about an organization.
type CompanyDetails struct {
	Name            string            `json:"name"`
	Sector          string            `json:"sector,omitempty"`
	Size            CompanySize       `json:"size,omitempty" jsonschema:"type=integer" jsonschema_description:"Approximate number of employees"`
	Revenue         string            `json:"revenue,omitempty"`
	Description     string            `json:"description,omitempty"`
	Website         string            `json:"website,omitempty"`
	LinkedInURL     string            `json:"linkedin_url,omitempty"`
	Address         string            `json:"address,omitempty"`
	City            string            `json:"city,omitempty"`
	StateAbbr       string            `json:"stateAbbr,omitempty"`
	Zipcode         string            `json:"zipcode,omitempty"`
	Country         string            `json:"country,omitempty"`
	PhoneNumber     string            `json:"phone_number,omitempty"`
	TaxIdentifier   string            `json:"tax_identifier,omitempty"`
	LifecycleStage  string            `json:"lifecycle_stage,omitempty" jsonschema_description:"Relationship stage: lead, prospect, customer, partner or churned"`
	CompanyType     string            `json:"company_type,omitempty" jsonschema_description:"Kind of organization, e.g. startup, enterprise, agency, non-profit"`
	Industry        string            `json:"industry,omitempty"`
	SocialProfiles  map[string]string `json:"social_profiles,omitempty" jsonschema_description:"Social network name to profile URL"`
	HeartbeatStatus string            `json:"heartbeat_status,omitempty" jsonschema_description:"Engagement health: active, warm, cold"`
}

// IsSparse reports whether the facts lack a sector, the signal used to
// decide that an enrichment lookup is worthwhile.
func (c *CompanyDetails) IsSparse() bool {
	return c == nil || strings.TrimSpace(c.Sector) == ""
}

// IsEmpty reports whether no field carries a value.
func (c *CompanyDetails) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.Name == "" && c.Sector == "" && c.Size == 0 && c.Revenue == "" &&
		c.Description == "" && c.Website == "" && c.LinkedInURL == "" &&
		c.Address == "" && c.City == "" && c.StateAbbr == "" && c.Zipcode == "" &&
		c.Country == "" && c.PhoneNumber == "" && c.TaxIdentifier == "" &&
		c.LifecycleStage == "" && c.CompanyType == "" && c.Industry == "" &&
		len(c.SocialProfiles) == 0 && c.HeartbeatStatus == ""
}

// FillEmpty copies every field of src into c where c has no value. Fields
// already set on c are never overwritten. It returns the JSON names of the
// fields that were filled.
func (c *CompanyDetails) FillEmpty(src *CompanyDetails) []string {
	if c == nil || src == nil {
		return nil
	}

	var filled []string
	fill := func(name string, dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
			filled = append(filled, name)
		}
	}

	fill("name", &c.Name, src.Name)
	fill("sector", &c.Sector, src.Sector)
	if c.Size == 0 && src.Size != 0 {
		c.Size = src.Size
		filled = append(filled, "size")
	}
	fill("revenue", &c.Revenue, src.Revenue)
	fill("description", &c.Description, src.Description)
	fill("website", &c.Website, src.Website)
	fill("linkedin_url", &c.LinkedInURL, src.LinkedInURL)
	fill("address", &c.Address, src.Address)
	fill("city", &c.City, src.City)
	fill("stateAbbr", &c.StateAbbr, src.StateAbbr)
	fill("zipcode", &c.Zipcode, src.Zipcode)
	fill("country", &c.Country, src.Country)
	fill("phone_number", &c.PhoneNumber, src.PhoneNumber)
	fill("tax_identifier", &c.TaxIdentifier, src.TaxIdentifier)
	fill("lifecycle_stage", &c.LifecycleStage, src.LifecycleStage)
	fill("company_type", &c.CompanyType, src.CompanyType)
	fill("industry", &c.Industry, src.Industry)
	if len(c.SocialProfiles) == 0 && len(src.SocialProfiles) > 0 {
		c.SocialProfiles = make(map[string]string, len(src.SocialProfiles))
		for k, v := range src.SocialProfiles {
			c.SocialProfiles[k] = v
		}
		filled = append(filled, "social_profiles")
	}
	fill("heartbeat_status", &c.HeartbeatStatus, src.HeartbeatStatus)

	return filled
}

// ExtractedTask is a follow-up action found in the message.
type ExtractedTask struct {
	Description string `json:"description"`
	DueDate     string `json:"due_date,omitempty" jsonschema_description:"ISO format date (YYYY-MM-DD) grounded by the context date"`
	Priority    string `json:"priority,omitempty" jsonschema_description:"High, Medium, or Low"`
	Status      string `json:"status,omitempty" jsonschema_description:"todo, in_progress or done"`
}

// DealInfo describes a sales opportunity.
type DealInfo struct {
	Name        string   `json:"name" jsonschema_description:"Descriptive name for the deal"`
	Amount      *float64 `json:"amount,omitempty" jsonschema_description:"Estimated deal value if mentioned"`
	Stage       string   `json:"stage,omitempty" jsonschema_description:"CRM stage: discovery, proposal, negotiation, etc."`
	Description string   `json:"description,omitempty" jsonschema_description:"Detailed description of the deal opportunity"`
	Category    string   `json:"category,omitempty"`
}

// DefaultDealStage is used when the model names no stage.
const DefaultDealStage = "discovery"

// AnalysisResult is the structured output of one Analyze call.
type AnalysisResult struct {
	Summary             string          `json:"summary" jsonschema_description:"A brief summary of the email"`
	Sentiment           Sentiment       `json:"sentiment" jsonschema:"enum=Positive,enum=Neutral,enum=Negative"`
	Intent              Intent          `json:"intent" jsonschema:"enum=Demo,enum=Support,enum=Sales,enum=Other"`
	SenderInfo          SenderInfo      `json:"sender_info" jsonschema_description:"Facts about the person who sent the email"`
	CompanyDetails      *CompanyDetails `json:"company_details,omitempty" jsonschema_description:"Structured details about the sender's company"`
	CompanySearchQuery  string          `json:"company_search_query,omitempty" jsonschema_description:"A focused web search query to find more about the company if details are sparse"`
	SuggestedTasks      []ExtractedTask `json:"suggested_tasks" jsonschema_description:"Actionable follow-ups grounded to the context date"`
	DealInfo            *DealInfo       `json:"deal_info,omitempty" jsonschema_description:"Sales opportunity, only when the intent is Sales or Demo"`
	OtherContacts       []ContactInfo   `json:"other_contacts,omitempty" jsonschema_description:"Facts about recipients or people mentioned, keyed by their email"`
	PrimaryContactEmail string          `json:"primary_contact_email,omitempty" jsonschema_description:"Email of the external person this message is mainly about"`
}

// HasTasks reports whether any task was suggested.
func (a *AnalysisResult) HasTasks() bool {
	return a != nil && len(a.SuggestedTasks) > 0
}

// normalize coerces enums, drops unusable entries and fills defaults.
func (a *AnalysisResult) normalize() {
	a.Summary = strings.TrimSpace(a.Summary)
	a.Sentiment = normalizeSentiment(string(a.Sentiment))
	a.Intent = normalizeIntent(string(a.Intent))
	a.CompanySearchQuery = strings.TrimSpace(a.CompanySearchQuery)
	a.PrimaryContactEmail = strings.ToLower(strings.TrimSpace(a.PrimaryContactEmail))

	if a.CompanyDetails.IsEmpty() {
		a.CompanyDetails = nil
	}

	tasks := a.SuggestedTasks[:0]
	for _, t := range a.SuggestedTasks {
		t.Description = strings.TrimSpace(t.Description)
		if t.Description == "" {
			continue
		}
		tasks = append(tasks, t)
	}
	a.SuggestedTasks = tasks

	if a.DealInfo != nil {
		a.DealInfo.Name = strings.TrimSpace(a.DealInfo.Name)
		if a.DealInfo.Name == "" {
			a.DealInfo = nil
		} else if strings.TrimSpace(a.DealInfo.Stage) == "" {
			a.DealInfo.Stage = DefaultDealStage
		}
	}

	contacts := a.OtherContacts[:0]
	for _, c := range a.OtherContacts {
		c.Email = strings.ToLower(strings.TrimSpace(c.Email))
		if c.Email == "" {
			continue
		}
		contacts = append(contacts, c)
	}
	a.OtherContacts = contacts
}

func normalizeSentiment(s string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return SentimentPositive
	case "negative":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func normalizeIntent(s string) Intent {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "demo":
		return IntentDemo
	case "support":
		return IntentSupport
	case "sales":
		return IntentSales
	default:
		return IntentOther
	}
}

// Metadata is header context given to the model alongside the body.
type Metadata struct {
	From        string
	To          string
	Cc          string
	Subject     string
	Attachments []string
}

// IsZero reports whether no metadata field is set.
func (m Metadata) IsZero() bool {
	return m.From == "" && m.To == "" && m.Cc == "" && m.Subject == "" && len(m.Attachments) == 0
}

// LLMError is a failed model call.
type LLMError struct {
	Code    LLMErrorCode `json:"code"`
	Message string       `json:"message"`
	Details interface{}  `json:"details,omitempty"`
}

func (e *LLMError) Error() string {
	return e.Message
}

// LLMErrorCode identifies the type of LLM error.
type LLMErrorCode string

const (
	ErrTimeout       LLMErrorCode = "timeout"
	ErrUnavailable   LLMErrorCode = "unavailable"
	ErrNotConfigured LLMErrorCode = "not_configured"
	ErrParseFailure  LLMErrorCode = "parse_failure"
	ErrTokenLimit    LLMErrorCode = "token_limit"
)
