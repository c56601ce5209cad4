package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/ingest/eml"
	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

const (
	// MessageContentType is the MIME type of an uploaded original message.
	MessageContentType = "message/rfc822"

	defaultMessageFilename = "message.eml"
	attachedFooter         = "[Original EML file attached below]"
)

// composeResult records what the composer created.
type composeResult struct {
	ActivityIDs   []crm.ID
	CompanyNote   bool
	AttachmentURL string
}

// composer writes one note per resolved participant and an optional company
// note. The original message is uploaded at most once; every later note refers
// to the stored copy by URL.
type composer struct {
	crm     CRM
	logger  logging.Logger
	metrics *Metrics

	msg      *eml.ParsedEmail
	analysis *intelligence.AnalysisResult
	file     crm.File

	uploadAttempted bool
	attachment      *crm.AttachmentRef
}

func newComposer(c CRM, msg *eml.ParsedEmail, analysis *intelligence.AnalysisResult, logger logging.Logger, metrics *Metrics) *composer {
	name := defaultMessageFilename
	if msg.FilePath != "" {
		name = filepath.Base(msg.FilePath)
	}
	return &composer{
		crm:      c,
		logger:   logger,
		metrics:  metrics,
		msg:      msg,
		analysis: analysis,
		file:     crm.File{Name: name, ContentType: MessageContentType, Data: msg.RawContent},
	}
}

func (c *composer) compose(ctx context.Context, resolved []ResolvedParticipant, primary Primary) composeResult {
	var res composeResult

	for _, rp := range resolved {
		a := crm.Activity{
			Type:      crm.ActivityContactNote,
			ContactID: crm.IDPtr(rp.ContactID),
			Text:      c.contactNote(rp),
			Status:    crm.DefaultNoteStatus,
			Date:      c.activityDate(),
		}
		id, ok := c.create(ctx, a)
		if ok {
			res.ActivityIDs = append(res.ActivityIDs, id)
		}
	}

	if primary.CompanyID != nil && c.analysis != nil && c.attachment != nil {
		a := crm.Activity{
			Type:      crm.ActivityCompanyNote,
			CompanyID: primary.CompanyID,
			Text:      c.companyNote(len(resolved)),
			Status:    crm.DefaultNoteStatus,
			Date:      c.activityDate(),
		}
		if _, ok := c.create(ctx, a); ok {
			res.CompanyNote = true
		}
	}

	if c.attachment != nil {
		res.AttachmentURL = c.attachment.URL
	}
	return res
}

// create writes one activity. The first call carries the message file; if
// that fails the note is re-created without it and no upload is tried again.
// A timed-out upload is not re-created.
func (c *composer) create(ctx context.Context, a crm.Activity) (crm.ID, bool) {
	if !c.uploadAttempted && len(c.file.Data) > 0 {
		c.uploadAttempted = true

		result, err := c.crm.CreateActivity(ctx, a, []crm.File{c.file})
		if err == nil {
			c.metrics.UploadsTotal.WithLabelValues("ok").Inc()
			if result.AttachmentURL != "" {
				c.attachment = &crm.AttachmentRef{
					URL:  result.AttachmentURL,
					Name: c.file.Name,
					Type: c.file.ContentType,
				}
			} else {
				c.logger.Warn("upload response carried no attachment reference",
					logging.F("activity_id", int64(result.ID)),
				)
			}
			return result.ID, true
		}

		c.metrics.UploadsTotal.WithLabelValues("failed").Inc()
		pe := pferrors.Degraded(err, StageCompose, pferrors.ErrUploadFailed)
		if uploadMayHaveLanded(err) {
			c.logger.Warn("message upload outcome unknown, not re-creating note",
				logging.F("error_code", string(pe.Code)),
				logging.Err(err),
			)
			return 0, false
		}
		c.logger.Warn("message upload failed, creating note without attachment",
			logging.F("error_code", string(pe.Code)),
			logging.Err(err),
		)
	}

	if c.attachment != nil {
		a.Attachments = []crm.AttachmentRef{*c.attachment}
	}
	result, err := c.crm.CreateActivity(ctx, a, nil)
	if err != nil {
		pe := pferrors.Degraded(err, StageCompose, pferrors.ErrProcessingError)
		c.logger.Warn("failed to create note",
			logging.F("type", a.Type),
			logging.F("error_code", string(pe.Code)),
			logging.Err(err),
		)
		return 0, false
	}
	return result.ID, true
}

// uploadMayHaveLanded reports whether the CRM may have stored the note even
// though the upload call failed. Re-sending it would duplicate the note.
func uploadMayHaveLanded(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, crm.ErrMissingID)
}

// contactNote frames the message from the participant's side: the sender
// sent it, everyone else received it.
func (c *composer) contactNote(rp ResolvedParticipant) string {
	var b strings.Builder
	if rp.IsSender {
		b.WriteString("📧 **Email Sent**\n\n")
	} else {
		b.WriteString("📨 **Email Received**\n\n")
	}
	fmt.Fprintf(&b, "Subject: %s\n\n", c.msg.Subject)
	if c.analysis != nil {
		fmt.Fprintf(&b, "**Sentiment**: %s %s  |  **Intent**: %s 🎯\n\n",
			c.analysis.Sentiment, sentimentMarker(c.analysis.Sentiment), c.analysis.Intent)
		if c.analysis.Summary != "" {
			b.WriteString(c.analysis.Summary)
			b.WriteString("\n\n")
		}
	}
	b.WriteString(attachedFooter)
	return b.String()
}

func (c *composer) companyNote(participants int) string {
	var b strings.Builder
	b.WriteString("📧 **Email Activity**\n\n")
	fmt.Fprintf(&b, "Subject: %s\n\n", c.msg.Subject)
	fmt.Fprintf(&b, "Participants: %d contacts\n\n", participants)
	if c.analysis.Summary != "" {
		b.WriteString(c.analysis.Summary)
		b.WriteString("\n\n")
	}
	b.WriteString(attachedFooter)
	return b.String()
}

// activityDate is the message date in RFC 3339, or "" to let the CRM stamp it.
func (c *composer) activityDate() string {
	if !c.msg.HasDate() {
		return ""
	}
	return c.msg.Date.Format(time.RFC3339)
}

func sentimentMarker(s intelligence.Sentiment) string {
	switch s {
	case intelligence.SentimentPositive:
		return "🟢"
	case intelligence.SentimentNegative:
		return "🔴"
	default:
		return "⚪"
	}
}
