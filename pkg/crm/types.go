// Package crm is a client for the RealTimeX CRM REST API: companies,
// contacts, activities (notes and tasks) and deals.
//
// The request structs below double as field allow-lists. Only fields that
// have a JSON tag here are ever sent.
package crm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID identifies a CRM record. The API returns ids as numbers, and some
// deployments return them as numeric strings.
type ID int64

// UnmarshalJSON accepts 42 and "42".
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid crm id %q: %w", data, err)
	}
	*id = ID(n)
	return nil
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IDPtr returns a pointer to id.
func IDPtr(id ID) *ID {
	return &id
}

// Activity types.
const (
	ActivityContactNote = "contact_note"
	ActivityCompanyNote = "company_note"
	ActivityTask        = "task"
)

// DefaultNoteStatus is the status of newly created notes.
const DefaultNoteStatus = "New"

// CompanyFacts are the writable company fields other than name and website.
type CompanyFacts struct {
	Sector        string   `json:"sector,omitempty"`
	Size          int      `json:"size,omitempty"`
	LinkedInURL   string   `json:"linkedin_url,omitempty"`
	PhoneNumber   string   `json:"phone_number,omitempty"`
	Address       string   `json:"address,omitempty"`
	Zipcode       string   `json:"zipcode,omitempty"`
	City          string   `json:"city,omitempty"`
	StateAbbr     string   `json:"stateAbbr,omitempty"`
	SalesID       *ID      `json:"sales_id,omitempty"`
	ContextLinks  []string `json:"context_links,omitempty"`
	Country       string   `json:"country,omitempty"`
	Description   string   `json:"description,omitempty"`
	Revenue       string   `json:"revenue,omitempty"`
	TaxIdentifier string   `json:"tax_identifier,omitempty"`
}

// IsZero reports whether no field is set.
func (f CompanyFacts) IsZero() bool {
	return f.Sector == "" && f.Size == 0 && f.LinkedInURL == "" && f.PhoneNumber == "" &&
		f.Address == "" && f.Zipcode == "" && f.City == "" && f.StateAbbr == "" &&
		f.SalesID == nil && len(f.ContextLinks) == 0 && f.Country == "" &&
		f.Description == "" && f.Revenue == "" && f.TaxIdentifier == ""
}

type companyPayload struct {
	Name    string `json:"name,omitempty"`
	Website string `json:"website,omitempty"`
	CompanyFacts
}

// EmailEntry is one element of a contact's email_jsonb list.
type EmailEntry struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

// PhoneEntry is one element of a contact's phone_jsonb list.
type PhoneEntry struct {
	Number string `json:"number"`
	Type   string `json:"type"`
}

// WorkPhone wraps a single number as the phone_jsonb shape.
func WorkPhone(number string) []PhoneEntry {
	if number == "" {
		return nil
	}
	return []PhoneEntry{{Number: number, Type: "Work"}}
}

// ContactFacts are the writable contact fields other than names, email and company.
type ContactFacts struct {
	Gender        string       `json:"gender,omitempty"`
	Title         string       `json:"title,omitempty"`
	Background    string       `json:"background,omitempty"`
	Status        string       `json:"status,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	SalesID       *ID          `json:"sales_id,omitempty"`
	LinkedInURL   string       `json:"linkedin_url,omitempty"`
	EmailJSONB    []EmailEntry `json:"email_jsonb,omitempty"`
	PhoneJSONB    []PhoneEntry `json:"phone_jsonb,omitempty"`
	HasNewsletter *bool        `json:"has_newsletter,omitempty"`
}

type contactPayload struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	CompanyID *ID    `json:"company_id,omitempty"`
	ContactFacts
}

// AttachmentRef points at a file already stored by the CRM.
type AttachmentRef struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// Activity is a note on a contact, company or deal.
type Activity struct {
	Type        string          `json:"type"`
	ContactID   *ID             `json:"contact_id,omitempty"`
	CompanyID   *ID             `json:"company_id,omitempty"`
	DealID      *ID             `json:"deal_id,omitempty"`
	Text        string          `json:"text"`
	SalesID     *ID             `json:"sales_id,omitempty"`
	Status      string          `json:"status,omitempty"`
	Date        string          `json:"date,omitempty"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

// File is uploaded alongside an activity.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// ActivityResult is what the CRM returned for a created activity.
type ActivityResult struct {
	ID ID
	// AttachmentURL is the stored location of the first uploaded file, if any.
	AttachmentURL string
}

// Task is a follow-up on a contact.
type Task struct {
	ContactID ID     `json:"contact_id"`
	Text      string `json:"text"`
	DueDate   string `json:"due_date,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Status    string `json:"status,omitempty"`
	SalesID   *ID    `json:"sales_id,omitempty"`
	DoneDate  string `json:"done_date,omitempty"`
}

type taskPayload struct {
	Type string `json:"type"`
	Task
}

// Deal is a sales opportunity on a company.
type Deal struct {
	Name                string  `json:"name"`
	CompanyID           ID      `json:"company_id"`
	ContactIDs          []ID    `json:"contact_ids"`
	Category            string  `json:"category,omitempty"`
	Stage               string  `json:"stage"`
	Description         string  `json:"description,omitempty"`
	Amount              float64 `json:"amount"`
	ExpectedClosingDate string  `json:"expected_closing_date,omitempty"`
	SalesID             *ID     `json:"sales_id,omitempty"`
	Index               *int    `json:"index,omitempty"`
}

// record is the subset of a CRM record the client reads back.
type record struct {
	ID          ID                 `json:"id"`
	Attachments []storedAttachment `json:"attachments,omitempty"`
}

type storedAttachment struct {
	Src string `json:"src"`
	URL string `json:"url"`
}

type listEnvelope struct {
	Data []record `json:"data"`
}

type itemEnvelope struct {
	Data record `json:"data"`
}
