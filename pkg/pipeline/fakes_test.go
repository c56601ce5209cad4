package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
	"github.com/otherjamesbrown/emlsync/pkg/ingest/eml"
	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
)

type companyCall struct {
	Name    string
	Website string
	Facts   crm.CompanyFacts
}

type contactCall struct {
	Email     string
	FirstName string
	LastName  string
	CompanyID *crm.ID
	Facts     crm.ContactFacts
}

type activityCall struct {
	Activity crm.Activity
	Files    []crm.File
}

// fakeCRM records every call and hands out sequential ids.
type fakeCRM struct {
	nextID crm.ID

	companies  []companyCall
	contacts   []contactCall
	activities []activityCall
	tasks      []crm.Task
	deals      []crm.Deal

	companyIDs map[string]crm.ID
	contactIDs map[string]crm.ID

	publicDomains map[string]bool
	failCompany   map[string]error
	failContact   map[string]error
	failUpload    error
	failTask      error
	failDeal      error
	attachmentURL string
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		nextID:        100,
		companyIDs:    make(map[string]crm.ID),
		contactIDs:    make(map[string]crm.ID),
		publicDomains: map[string]bool{"gmail.com": true, "outlook.com": true},
		failCompany:   make(map[string]error),
		failContact:   make(map[string]error),
		attachmentURL: "https://crm.test/storage/attachments/abc123.eml",
	}
}

func (f *fakeCRM) id() crm.ID {
	f.nextID++
	return f.nextID
}

func (f *fakeCRM) calls() int {
	return len(f.companies) + len(f.contacts) + len(f.activities) + len(f.tasks) + len(f.deals)
}

func (f *fakeCRM) UpsertCompany(_ context.Context, name, website string, facts crm.CompanyFacts) (crm.ID, error) {
	f.companies = append(f.companies, companyCall{Name: name, Website: website, Facts: facts})
	if f.publicDomains[website] {
		return 0, crm.ErrPublicDomain
	}
	if err := f.failCompany[website]; err != nil {
		return 0, err
	}
	if id, ok := f.companyIDs[website]; ok {
		return id, nil
	}
	id := f.id()
	f.companyIDs[website] = id
	return id, nil
}

func (f *fakeCRM) UpsertContact(_ context.Context, email, first, last string, companyID *crm.ID, facts crm.ContactFacts) (crm.ID, error) {
	f.contacts = append(f.contacts, contactCall{Email: email, FirstName: first, LastName: last, CompanyID: companyID, Facts: facts})
	if err := f.failContact[email]; err != nil {
		return 0, err
	}
	if id, ok := f.contactIDs[email]; ok {
		return id, nil
	}
	id := f.id()
	f.contactIDs[email] = id
	return id, nil
}

func (f *fakeCRM) CreateActivity(_ context.Context, a crm.Activity, files []crm.File) (*crm.ActivityResult, error) {
	f.activities = append(f.activities, activityCall{Activity: a, Files: files})
	if len(files) > 0 {
		if f.failUpload != nil {
			return nil, f.failUpload
		}
		return &crm.ActivityResult{ID: f.id(), AttachmentURL: f.attachmentURL}, nil
	}
	return &crm.ActivityResult{ID: f.id()}, nil
}

func (f *fakeCRM) CreateTask(_ context.Context, t crm.Task) error {
	f.tasks = append(f.tasks, t)
	return f.failTask
}

func (f *fakeCRM) CreateDeal(_ context.Context, d crm.Deal) (crm.ID, error) {
	f.deals = append(f.deals, d)
	if f.failDeal != nil {
		return 0, f.failDeal
	}
	return f.id(), nil
}

func (f *fakeCRM) contactEmails() []string {
	emails := make([]string, 0, len(f.contacts))
	for _, c := range f.contacts {
		emails = append(emails, c.Email)
	}
	return emails
}

func (f *fakeCRM) companyWebsites() []string {
	sites := make([]string, 0, len(f.companies))
	for _, c := range f.companies {
		sites = append(sites, c.Website)
	}
	return sites
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Analyze(ctx context.Context, text, contextDate string, meta intelligence.Metadata) *intelligence.AnalysisResult {
	args := m.Called(ctx, text, contextDate, meta)
	result, _ := args.Get(0).(*intelligence.AnalysisResult)
	return result
}

func oracleReturning(result *intelligence.AnalysisResult) *mockOracle {
	m := &mockOracle{}
	m.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(result)
	return m
}

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) Lookup(ctx context.Context, query, domain string) (*intelligence.CompanyDetails, error) {
	args := m.Called(ctx, query, domain)
	result, _ := args.Get(0).(*intelligence.CompanyDetails)
	return result, args.Error(1)
}

// failingLedger returns its configured errors.
type failingLedger struct {
	readErr  error
	writeErr error
}

func (l *failingLedger) Exists(context.Context, string) (bool, error) {
	return false, l.readErr
}

func (l *failingLedger) Mark(context.Context, string) error {
	return l.writeErr
}

var errBoom = errors.New("boom")

// buildMessage assembles a plain-text message. Empty header values are
// omitted.
func buildMessage(t *testing.T, headers map[string]string, body string) *eml.ParsedEmail {
	t.Helper()

	var b strings.Builder
	for _, key := range []string{"Message-ID", "Date", "From", "To", "Cc", "Bcc", "Subject"} {
		if v := headers[key]; v != "" {
			b.WriteString(key + ": " + v + "\r\n")
		}
	}
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)

	result, err := eml.NewParser(eml.DefaultParseOptions()).ParseBytes([]byte(b.String()))
	require.NoError(t, err)
	return result.Email
}
