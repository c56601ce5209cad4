// Package pipeline turns one parsed message into CRM records: participant
// contacts and companies, one note per participant, follow-up tasks and a
// deal. A ledger keyed by Message-ID makes each message run once.
package pipeline

import (
	"context"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
)

// CRM is the record store the pipeline writes to.
type CRM interface {
	UpsertCompany(ctx context.Context, name, website string, facts crm.CompanyFacts) (crm.ID, error)
	UpsertContact(ctx context.Context, email, firstName, lastName string, companyID *crm.ID, facts crm.ContactFacts) (crm.ID, error)
	CreateActivity(ctx context.Context, a crm.Activity, files []crm.File) (*crm.ActivityResult, error)
	CreateTask(ctx context.Context, t crm.Task) error
	CreateDeal(ctx context.Context, d crm.Deal) (crm.ID, error)
}

// Oracle extracts structured facts from message text. A nil result means the
// analysis failed and the run continues without it.
type Oracle interface {
	Analyze(ctx context.Context, text, contextDate string, meta intelligence.Metadata) *intelligence.AnalysisResult
}

// Enricher looks up company facts outside the message.
type Enricher interface {
	Lookup(ctx context.Context, query, domain string) (*intelligence.CompanyDetails, error)
}

// Ledger records processed Message-IDs.
type Ledger interface {
	Exists(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}
