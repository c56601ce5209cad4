// Package eml provides parsing for RFC 5322 email (.eml) files.
package eml

import (
	"time"
)

// Header names preserved verbatim in ParsedEmail.Headers.
const (
	HeaderSubject   = "Subject"
	HeaderFrom      = "From"
	HeaderTo        = "To"
	HeaderCc        = "Cc"
	HeaderBcc       = "Bcc"
	HeaderDate      = "Date"
	HeaderMessageID = "Message-ID"
)

// Address represents an email address with optional display name.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Attachment represents an email attachment metadata.
type Attachment struct {
	Filename    string `json:"filename"`
	MimeType    string `json:"mime_type"`
	Size        int    `json:"size"`
	ContentID   string `json:"content_id,omitempty"`
	IsInline    bool   `json:"is_inline"`
	ContentData []byte `json:"-"` // Raw attachment data, excluded from JSON
}

// ParsedEmail represents a fully parsed email message.
type ParsedEmail struct {
	// MessageID is the Message-ID header as read, trimmed. Empty when absent.
	MessageID string `json:"message_id"`

	// Addressing
	From Address   `json:"from"`
	To   []Address `json:"to"`
	Cc   []Address `json:"cc"`
	Bcc  []Address `json:"bcc,omitempty"`

	// Subject and date
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`    // zero when the header is missing or unparseable
	DateRaw string    `json:"date_raw"` // Date header as read

	// Body content
	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html,omitempty"`

	// Attachments in MIME order
	Attachments []Attachment `json:"attachments,omitempty"`

	// Raw data
	RawContent []byte `json:"-"` // Full raw email content
	FilePath   string `json:"file_path,omitempty"`

	// Headers holds Subject, From, To, Cc, Bcc, Date and Message-ID as read
	// (RFC 2047 decoded). Absent headers have no key.
	Headers     map[string]string `json:"headers,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
}

// HasAttachments returns true if the email has any attachments.
func (p *ParsedEmail) HasAttachments() bool {
	return len(p.Attachments) > 0
}

// AttachmentNames returns attachment filenames in MIME order.
func (p *ParsedEmail) AttachmentNames() []string {
	names := make([]string, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		names = append(names, a.Filename)
	}
	return names
}

// HasDate reports whether a usable Date header was found.
func (p *ParsedEmail) HasDate() bool {
	return !p.Date.IsZero()
}

// Header returns a preserved header value, or "".
func (p *ParsedEmail) Header(name string) string {
	if p.Headers == nil {
		return ""
	}
	return p.Headers[name]
}

// Recipients returns To, Cc and Bcc addresses in that order.
// Duplicates are not removed.
func (p *ParsedEmail) Recipients() []Address {
	result := make([]Address, 0, len(p.To)+len(p.Cc)+len(p.Bcc))
	result = append(result, p.To...)
	result = append(result, p.Cc...)
	result = append(result, p.Bcc...)
	return result
}

// AllParticipantPairs returns all participant email+displayName pairs (From, To, Cc, Bcc).
// Entries without an address are skipped. Duplicates are not removed.
func (p *ParsedEmail) AllParticipantPairs() []Address {
	result := make([]Address, 0, 1+len(p.To)+len(p.Cc)+len(p.Bcc))

	if p.From.Email != "" {
		result = append(result, p.From)
	}
	for _, addr := range p.Recipients() {
		if addr.Email != "" {
			result = append(result, addr)
		}
	}

	return result
}

// ParseOptions configures email parsing behavior.
type ParseOptions struct {
	// IncludeAttachmentContent controls whether attachment data is loaded.
	// If false, only metadata is extracted (faster, less memory).
	IncludeAttachmentContent bool
}

// DefaultParseOptions returns the default parsing configuration.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{
		IncludeAttachmentContent: false,
	}
}

// ParseResult contains the parsing result and any warnings.
type ParseResult struct {
	Email    *ParsedEmail
	Warnings []string
}
