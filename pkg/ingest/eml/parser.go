package eml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// ErrEmptyMessage is wrapped by MalformedMessageError for zero-length input.
var ErrEmptyMessage = errors.New("empty message")

// MalformedMessageError reports a mail file that cannot be read or whose
// header block cannot be parsed. It is always fatal for the run.
type MalformedMessageError struct {
	Path string
	Err  error
}

func (e *MalformedMessageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("malformed message %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// Parser parses RFC 5322 email messages from .eml files.
type Parser struct {
	opts ParseOptions
}

// NewParser creates a new email parser with the given options.
func NewParser(opts ParseOptions) *Parser {
	return &Parser{opts: opts}
}

// ParseFile parses an email from a file path.
func (p *Parser) ParseFile(path string) (*ParseResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, &MalformedMessageError{Path: path, Err: err}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, &MalformedMessageError{Path: absPath, Err: err}
	}

	result, err := p.ParseBytes(data)
	if err != nil {
		var me *MalformedMessageError
		if errors.As(err, &me) {
			me.Path = absPath
		}
		return nil, err
	}

	result.Email.FilePath = absPath
	return result, nil
}

// ParseBytes parses an email from raw bytes.
func (p *Parser) ParseBytes(data []byte) (*ParseResult, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &MalformedMessageError{Err: ErrEmptyMessage}
	}

	entity, err := message.Read(bytes.NewReader(data))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, &MalformedMessageError{Err: err}
	}

	result := &ParseResult{
		Email:    &ParsedEmail{RawContent: data},
		Warnings: []string{},
	}
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}

	p.parseHeaders(mail.Header{Header: entity.Header}, result)

	if err := p.parseBody(entity, result); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("body parsing warning: %v", err))
	}

	return result, nil
}

// parseHeaders extracts addressing, subject, date and the preserved header map.
func (p *Parser) parseHeaders(h mail.Header, result *ParseResult) {
	email := result.Email

	email.Headers = make(map[string]string)
	for _, name := range []string{HeaderSubject, HeaderFrom, HeaderTo, HeaderCc, HeaderBcc, HeaderDate, HeaderMessageID} {
		if v := h.Get(name); v != "" {
			email.Headers[name] = decodeHeaderWords(v)
		}
	}

	email.MessageID = strings.TrimSpace(h.Get(HeaderMessageID))

	if subject, err := h.Subject(); err == nil {
		email.Subject = toValidUTF8(subject)
	} else {
		email.Subject = email.Headers[HeaderSubject]
	}

	if from := p.addressList(h, HeaderFrom, result); len(from) > 0 {
		email.From = from[0]
	}
	email.To = p.addressList(h, HeaderTo, result)
	email.Cc = p.addressList(h, HeaderCc, result)
	email.Bcc = p.addressList(h, HeaderBcc, result)

	email.DateRaw = email.Headers[HeaderDate]
	if email.DateRaw != "" {
		if date, err := h.Date(); err == nil {
			email.Date = date
		} else {
			result.Warnings = append(result.Warnings, fmt.Sprintf("could not parse date: %s", email.DateRaw))
		}
	}

	email.ContentType = h.Get("Content-Type")
}

// addressList parses an address header strictly, falling back to a lenient
// comma split for headers real clients get slightly wrong.
func (p *Parser) addressList(h mail.Header, key string, result *ParseResult) []Address {
	raw := h.Get(key)
	if raw == "" {
		return nil
	}

	addrs, err := h.AddressList(key)
	if err == nil {
		out := make([]Address, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, Address{Name: toValidUTF8(a.Name), Email: strings.TrimSpace(a.Address)})
		}
		return out
	}

	result.Warnings = append(result.Warnings, fmt.Sprintf("lenient parse of %s header: %v", key, err))
	return parseRawAddressList(decodeHeaderWords(raw))
}

// parseBody walks the MIME tree, filling bodies and attachments.
func (p *Parser) parseBody(entity *message.Entity, result *ParseResult) error {
	email := result.Email

	mediaType, _, _ := entity.Header.ContentType()
	if !strings.HasPrefix(mediaType, "multipart/") {
		content := p.readPart(entity, result)
		if mediaType == "text/html" {
			email.BodyHTML = content
		} else {
			email.BodyText = content
		}
		return nil
	}

	return entity.Walk(func(path []int, part *message.Entity, err error) error {
		if err != nil {
			if part == nil {
				return err
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("part %v: %v", path, err))
		}

		partType, ctParams, _ := part.Header.ContentType()
		if partType == "" {
			partType = "text/plain"
		}
		if strings.HasPrefix(partType, "multipart/") {
			return nil
		}

		disposition, dispParams, _ := part.Header.ContentDisposition()
		filename := dispParams["filename"]
		if filename == "" {
			filename = ctParams["name"]
		}

		if filename != "" {
			email.Attachments = append(email.Attachments, p.parseAttachment(part, partType, disposition, decodeHeaderWords(filename), result))
			return nil
		}
		if disposition == "attachment" {
			return nil
		}

		switch partType {
		case "text/plain":
			if email.BodyText == "" {
				email.BodyText = p.readPart(part, result)
			}
		case "text/html":
			if email.BodyHTML == "" {
				email.BodyHTML = p.readPart(part, result)
			}
		}
		return nil
	})
}

// readPart reads a decoded part body. Read errors keep whatever was decoded.
func (p *Parser) readPart(part *message.Entity, result *ParseResult) string {
	body, err := io.ReadAll(part.Body)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to read part: %v", err))
	}
	return toValidUTF8(string(body))
}

// parseAttachment extracts attachment metadata and optionally content.
func (p *Parser) parseAttachment(part *message.Entity, mediaType, disposition, filename string, result *ParseResult) Attachment {
	attachment := Attachment{
		Filename:  filename,
		MimeType:  mediaType,
		ContentID: strings.Trim(part.Header.Get("Content-Id"), "<> "),
		IsInline:  disposition == "inline",
	}

	content, err := io.ReadAll(part.Body)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("failed to read attachment %s: %v", filename, err))
	}
	attachment.Size = len(content)
	if p.opts.IncludeAttachmentContent {
		attachment.ContentData = content
	}

	return attachment
}

func parseRawAddress(raw string) Address {
	raw = strings.TrimSpace(raw)
	if start := strings.Index(raw, "<"); start != -1 {
		if end := strings.Index(raw, ">"); end > start {
			email := strings.TrimSpace(raw[start+1 : end])
			name := strings.TrimSpace(raw[:start])
			name = strings.Trim(name, "\"")
			return Address{Name: name, Email: email}
		}
	}
	if !strings.Contains(raw, "@") {
		return Address{}
	}
	return Address{Email: raw}
}

func parseRawAddressList(raw string) []Address {
	var result []Address
	for _, part := range splitAddresses(raw) {
		addr := parseRawAddress(part)
		if addr.Email != "" {
			result = append(result, addr)
		}
	}
	return result
}

// splitAddresses splits on commas outside quotes and angle brackets.
func splitAddresses(raw string) []string {
	var result []string
	var current strings.Builder
	inQuotes := false
	depth := 0

	for _, r := range raw {
		switch r {
		case '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case '<':
			depth++
			current.WriteRune(r)
		case '>':
			depth--
			current.WriteRune(r)
		case ',', ';':
			if !inQuotes && depth == 0 {
				if s := strings.TrimSpace(current.String()); s != "" {
					result = append(result, s)
				}
				current.Reset()
			} else {
				current.WriteRune(r)
			}
		default:
			current.WriteRune(r)
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		result = append(result, s)
	}

	return result
}

// ParseFile is a convenience function for parsing a single file with default options.
func ParseFile(path string) (*ParseResult, error) {
	return NewParser(DefaultParseOptions()).ParseFile(path)
}

// ParseBytes is a convenience function for parsing raw bytes with default options.
func ParseBytes(data []byte) (*ParseResult, error) {
	return NewParser(DefaultParseOptions()).ParseBytes(data)
}
