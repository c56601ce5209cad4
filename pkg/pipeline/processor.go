package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/ingest/eml"
	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

// UnknownDate is the context date given to the oracle when the message has
// no Date header.
const UnknownDate = "Unknown"

// Config holds the processor's static settings.
type Config struct {
	// InternalDomains and InternalAddresses identify the operator's own
	// organization. Matching participants never reach the CRM.
	InternalDomains   []string `yaml:"internal_domains"`
	InternalAddresses []string `yaml:"internal_addresses"`
}

// Deps are the processor's collaborators. Enricher is optional.
type Deps struct {
	CRM      CRM
	Oracle   Oracle
	Enricher Enricher
	Ledger   Ledger
}

// Options control a single run.
type Options struct {
	// Force reprocesses a message the ledger already holds.
	Force bool
}

// Outcome reports what one run did.
type Outcome struct {
	RunID     string
	MessageID string

	// Skipped is set when the ledger already held the message.
	Skipped bool
	// Halted is set when no participant resolved; nothing was written.
	Halted bool

	Participants int
	Internal     int
	Resolved     int
	Dropped      int

	Analyzed bool
	Enriched bool

	PrimaryContactID *crm.ID
	PrimaryCompanyID *crm.ID
	ActivityIDs      []crm.ID
	CompanyNote      bool
	AttachmentURL    string
	TasksCreated     int
	DealID           *crm.ID

	Marked   bool
	Duration time.Duration
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics the processor records to.
func WithMetrics(m *Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithParser sets the parser used by ProcessFile.
func WithParser(parser *eml.Parser) Option {
	return func(p *Processor) {
		p.parser = parser
	}
}

// Processor runs messages through the pipeline. It holds no per-message
// state, so one Processor may process many messages in sequence.
type Processor struct {
	crm        CRM
	oracle     Oracle
	enricher   Enricher
	ledger     Ledger
	classifier *Classifier
	parser     *eml.Parser
	logger     logging.Logger
	metrics    *Metrics
}

// New creates a Processor. CRM, Oracle and Ledger are required.
func New(cfg Config, deps Deps, opts ...Option) (*Processor, error) {
	switch {
	case deps.CRM == nil:
		return nil, fmt.Errorf("pipeline: crm is required: %w", pferrors.ErrValidation)
	case deps.Oracle == nil:
		return nil, fmt.Errorf("pipeline: oracle is required: %w", pferrors.ErrValidation)
	case deps.Ledger == nil:
		return nil, fmt.Errorf("pipeline: ledger is required: %w", pferrors.ErrValidation)
	}

	p := &Processor{
		oracle:     deps.Oracle,
		enricher:   deps.Enricher,
		ledger:     deps.Ledger,
		classifier: NewClassifier(cfg.InternalDomains, cfg.InternalAddresses),
		parser:     eml.NewParser(eml.DefaultParseOptions()),
		logger:     logging.MustGlobal(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}

	p.crm = &instrumentedCRM{next: deps.CRM, metrics: p.metrics}
	p.logger = p.logger.With(logging.F("component", "pipeline"))
	return p, nil
}

// ProcessFile parses the mail file at path and processes it. An unreadable or
// malformed file is a fatal error.
func (p *Processor) ProcessFile(ctx context.Context, path string, opts Options) (*Outcome, error) {
	start := time.Now()
	_, span := startSpan(ctx, StageParse, attribute.String("file", path))
	result, err := p.parser.ParseFile(path)
	p.metrics.observeStage(StageParse, start)
	endSpan(span, err)
	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, pferrors.New(pferrors.ErrParseError, StageParse, err)
	}

	for _, w := range result.Warnings {
		p.logger.Debug("parse warning", logging.F("file", path), logging.F("warning", w))
	}
	return p.Process(ctx, result.Email, opts)
}

// Process runs one parsed message through the pipeline. Only a ledger mark
// failure is returned as an error; every other failure degrades the run and
// is logged.
func (p *Processor) Process(ctx context.Context, msg *eml.ParsedEmail, opts Options) (*Outcome, error) {
	if msg == nil {
		return nil, pferrors.New(pferrors.ErrParseError, StageParse, errors.New("nil message"))
	}

	start := time.Now()
	out := &Outcome{
		RunID:     uuid.NewString(),
		MessageID: msg.MessageID,
	}

	ctx = context.WithValue(ctx, logging.RunIDKey, out.RunID)
	ctx = context.WithValue(ctx, logging.MessageIDKey, msg.MessageID)
	log := p.logger.WithContext(ctx)

	ctx, span := startSpan(ctx, "process",
		attribute.String("run_id", out.RunID),
		attribute.String("message_id", msg.MessageID),
		attribute.Bool("force", opts.Force),
	)
	defer span.End()

	log.Info("processing message",
		logging.F("subject", msg.Subject),
		logging.F("file", msg.FilePath),
		logging.F("force", opts.Force),
	)

	if p.alreadyProcessed(ctx, msg.MessageID, opts, log) {
		out.Skipped = true
		out.Duration = time.Since(start)
		p.metrics.RunsTotal.WithLabelValues("skipped").Inc()
		log.Info("message already processed, skipping")
		return out, nil
	}

	analysis := p.analyze(ctx, msg, log)
	out.Analyzed = analysis != nil

	participants := ExtractParticipants(msg, p.classifier)
	out.Participants = len(participants)

	resolveStart := time.Now()
	resolveCtx, resolveSpan := startSpan(ctx, StageResolve, attribute.Int("participants", len(participants)))
	r := newResolver(p.crm, p.enricher, analysis, msg.From.Email, log.With(logging.F("stage", StageResolve)), p.metrics)
	res := r.resolve(resolveCtx, participants)
	p.metrics.observeStage(StageResolve, resolveStart)
	endSpan(resolveSpan, nil)

	out.Internal = res.Internal
	out.Resolved = len(res.Resolved)
	out.Dropped = res.Dropped
	out.Enriched = res.Enriched

	var suggested string
	if analysis != nil {
		suggested = analysis.PrimaryContactEmail
	}
	primary, err := SelectPrimary(res.Resolved, suggested, res.PrimaryCompanyID)
	if errors.Is(err, ErrNoParticipants) {
		out.Halted = true
		out.Duration = time.Since(start)
		p.metrics.RunsTotal.WithLabelValues("halted").Inc()
		log.Warn("no external participants resolved, nothing written",
			logging.F("error_code", string(pferrors.ErrNoParticipants)),
			logging.F("participants", out.Participants),
			logging.F("internal", out.Internal),
			logging.F("dropped", out.Dropped),
		)
		return out, nil
	}
	out.PrimaryContactID = crm.IDPtr(primary.Contact.ContactID)
	out.PrimaryCompanyID = primary.CompanyID

	log.Info("participants resolved",
		logging.F("resolved", out.Resolved),
		logging.F("internal", out.Internal),
		logging.F("dropped", out.Dropped),
		logging.F("primary_email", primary.Contact.Email),
	)

	composeStart := time.Now()
	composeCtx, composeSpan := startSpan(ctx, StageCompose)
	notes := newComposer(p.crm, msg, analysis, log.With(logging.F("stage", StageCompose)), p.metrics).
		compose(composeCtx, res.Resolved, primary)
	p.metrics.observeStage(StageCompose, composeStart)
	endSpan(composeSpan, nil)

	out.ActivityIDs = notes.ActivityIDs
	out.CompanyNote = notes.CompanyNote
	out.AttachmentURL = notes.AttachmentURL

	followStart := time.Now()
	followCtx, followSpan := startSpan(ctx, StageFollowUp)
	fu := followUps(followCtx, p.crm, analysis, res.Resolved, primary, log.With(logging.F("stage", StageFollowUp)))
	p.metrics.observeStage(StageFollowUp, followStart)
	endSpan(followSpan, nil)

	out.TasksCreated = fu.TasksCreated
	out.DealID = fu.DealID

	if err := p.mark(ctx, msg.MessageID); err != nil {
		out.Duration = time.Since(start)
		p.metrics.RunsTotal.WithLabelValues("failed").Inc()
		log.Error("failed to mark message processed", logging.Err(err))
		return out, err
	}
	out.Marked = msg.MessageID != ""

	out.Duration = time.Since(start)
	p.metrics.RunsTotal.WithLabelValues("processed").Inc()
	log.Info("message processed",
		logging.F("notes", len(out.ActivityIDs)),
		logging.F("company_note", out.CompanyNote),
		logging.F("tasks", out.TasksCreated),
		logging.F("deal", out.DealID != nil),
		logging.F("marked", out.Marked),
		logging.F("duration", out.Duration),
	)
	return out, nil
}

// alreadyProcessed consults the ledger. A message without an id is never
// processed; a read error is logged and treated as not processed.
func (p *Processor) alreadyProcessed(ctx context.Context, messageID string, opts Options, log logging.Logger) bool {
	if messageID == "" {
		log.Warn("message has no Message-ID, it will not be recorded in the ledger")
		return false
	}
	if opts.Force {
		return false
	}

	start := time.Now()
	ctx, span := startSpan(ctx, StageGuard)
	exists, err := p.ledger.Exists(ctx, messageID)
	p.metrics.observeStage(StageGuard, start)
	endSpan(span, err)
	if err != nil {
		log.Warn("ledger lookup failed, processing anyway",
			logging.F("error_code", string(pferrors.ErrLedgerFailed)),
			logging.Err(err),
		)
		return false
	}
	return exists
}

func (p *Processor) analyze(ctx context.Context, msg *eml.ParsedEmail, log logging.Logger) *intelligence.AnalysisResult {
	content := eml.NormalizeContent(msg)
	if strings.TrimSpace(content) == "" {
		p.metrics.OracleTotal.WithLabelValues("skipped").Inc()
		log.Warn("message has no body text, skipping analysis",
			logging.F("error_code", string(pferrors.ErrEmptyContent)),
		)
		return nil
	}

	contextDate := strings.TrimSpace(msg.DateRaw)
	if contextDate == "" {
		contextDate = UnknownDate
	}
	meta := intelligence.Metadata{
		From:        msg.Header(eml.HeaderFrom),
		To:          msg.Header(eml.HeaderTo),
		Cc:          msg.Header(eml.HeaderCc),
		Subject:     msg.Subject,
		Attachments: msg.AttachmentNames(),
	}

	start := time.Now()
	ctx, span := startSpan(ctx, StageAnalyze, attribute.Int("content_chars", len(content)))
	analysis := p.oracle.Analyze(ctx, content, contextDate, meta)
	p.metrics.observeStage(StageAnalyze, start)
	span.SetAttributes(attribute.Bool("analyzed", analysis != nil))
	span.End()

	if analysis == nil {
		p.metrics.OracleTotal.WithLabelValues("failed").Inc()
		log.Warn("analysis unavailable, continuing without it",
			logging.F("error_code", string(pferrors.ErrOracleFailed)),
		)
		return nil
	}
	p.metrics.OracleTotal.WithLabelValues("ok").Inc()
	return analysis
}

func (p *Processor) mark(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}
	start := time.Now()
	ctx, span := startSpan(ctx, StageMark)
	err := p.ledger.Mark(ctx, messageID)
	p.metrics.observeStage(StageMark, start)
	endSpan(span, err)
	if err != nil {
		return pferrors.New(pferrors.ErrLedgerFailed, StageMark, err)
	}
	return nil
}
