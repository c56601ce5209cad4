package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
)

// TracerName names the pipeline tracer.
const TracerName = "github.com/otherjamesbrown/emlsync/pkg/pipeline"

// Stage names used for spans, metrics and PipelineError stages.
const (
	StageParse    = "parse"
	StageGuard    = "guard"
	StageAnalyze  = "analyze"
	StageResolve  = "resolve"
	StageEnrich   = "enrich"
	StageCompose  = "compose"
	StageFollowUp = "follow_up"
	StageMark     = "mark"
	StagePrimary  = "select_primary"
)

// Metrics holds the Prometheus collectors for pipeline runs.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	StageSeconds      *prometheus.HistogramVec
	CRMCallsTotal     *prometheus.CounterVec
	CRMCallSeconds    *prometheus.HistogramVec
	OracleTotal       *prometheus.CounterVec
	EnrichmentTotal   *prometheus.CounterVec
	UploadsTotal      *prometheus.CounterVec
	ParticipantsTotal *prometheus.CounterVec
}

// NewMetrics creates pipeline metrics registered on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emlsync_runs_total",
				Help: "Message runs by result",
			},
			[]string{"result"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emlsync_stage_seconds",
				Help:    "Latency per pipeline stage",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		CRMCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emlsync_crm_calls_total",
				Help: "CRM calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		CRMCallSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emlsync_crm_call_seconds",
				Help:    "CRM call latency by operation",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		OracleTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emlsync_oracle_results_total",
				Help: "Message analyses by result",
			},
			[]string{"result"},
		),
		EnrichmentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emlsync_enrichment_lookups_total",
				Help: "Company enrichment lookups by result",
			},
			[]string{"result"},
		),
		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emlsync_attachment_uploads_total",
				Help: "Original message uploads by result",
			},
			[]string{"result"},
		),
		ParticipantsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emlsync_participants_total",
				Help: "Participants seen by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	m.StageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// startSpan starts a stage span on the global tracer provider.
func startSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "emlsync."+stage, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// instrumentedCRM counts and traces every CRM call.
type instrumentedCRM struct {
	next    CRM
	metrics *Metrics
}

func (c *instrumentedCRM) record(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := startSpan(ctx, "crm."+op, attribute.String("operation", op))
	start := time.Now()
	err := fn(ctx)
	c.metrics.CRMCallSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.CRMCallsTotal.WithLabelValues(op, status).Inc()
	endSpan(span, err)
	return err
}

func (c *instrumentedCRM) UpsertCompany(ctx context.Context, name, website string, facts crm.CompanyFacts) (crm.ID, error) {
	var id crm.ID
	err := c.record(ctx, "upsert_company", func(ctx context.Context) (err error) {
		id, err = c.next.UpsertCompany(ctx, name, website, facts)
		return err
	})
	return id, err
}

func (c *instrumentedCRM) UpsertContact(ctx context.Context, email, firstName, lastName string, companyID *crm.ID, facts crm.ContactFacts) (crm.ID, error) {
	var id crm.ID
	err := c.record(ctx, "upsert_contact", func(ctx context.Context) (err error) {
		id, err = c.next.UpsertContact(ctx, email, firstName, lastName, companyID, facts)
		return err
	})
	return id, err
}

func (c *instrumentedCRM) CreateActivity(ctx context.Context, a crm.Activity, files []crm.File) (*crm.ActivityResult, error) {
	op := "create_activity"
	if len(files) > 0 {
		op = "upload_activity"
	}
	var res *crm.ActivityResult
	err := c.record(ctx, op, func(ctx context.Context) (err error) {
		res, err = c.next.CreateActivity(ctx, a, files)
		return err
	})
	return res, err
}

func (c *instrumentedCRM) CreateTask(ctx context.Context, t crm.Task) error {
	return c.record(ctx, "create_task", func(ctx context.Context) error {
		return c.next.CreateTask(ctx, t)
	})
}

func (c *instrumentedCRM) CreateDeal(ctx context.Context, d crm.Deal) (crm.ID, error) {
	var id crm.ID
	err := c.record(ctx, "create_deal", func(ctx context.Context) (err error) {
		id, err = c.next.CreateDeal(ctx, d)
		return err
	})
	return id, err
}
