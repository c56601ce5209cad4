package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

// ResolvedParticipant is an external participant with CRM ids.
type ResolvedParticipant struct {
	Participant
	ContactID crm.ID
	CompanyID *crm.ID
}

// resolutionCache maps domains and emails to ids for one run only.
type resolutionCache struct {
	companies map[string]crm.ID
	contacts  map[string]crm.ID
}

func newResolutionCache() *resolutionCache {
	return &resolutionCache{
		companies: make(map[string]crm.ID),
		contacts:  make(map[string]crm.ID),
	}
}

// resolution is the result of resolving one message's participants.
type resolution struct {
	Resolved []ResolvedParticipant
	// PrimaryCompanyID is the first company id resolved in encounter order.
	PrimaryCompanyID *crm.ID
	Internal         int
	Dropped          int
	Enriched         bool
}

// resolver maps participants to CRM contacts and companies. It is created per
// run and owns its cache.
type resolver struct {
	crm      CRM
	enricher Enricher
	logger   logging.Logger
	metrics  *Metrics

	analysis *intelligence.AnalysisResult
	facts    map[string]intelligence.SenderInfo
	cache    *resolutionCache

	enrichAttempted bool
	enriched        bool
	primaryCompany  *crm.ID
}

func newResolver(c CRM, enricher Enricher, analysis *intelligence.AnalysisResult, senderEmail string, logger logging.Logger, metrics *Metrics) *resolver {
	return &resolver{
		crm:      c,
		enricher: enricher,
		logger:   logger,
		metrics:  metrics,
		analysis: analysis,
		facts:    extractionMap(analysis, senderEmail),
		cache:    newResolutionCache(),
	}
}

// extractionMap keys the oracle's per-person facts by lower-cased email: the
// sender's own facts plus every other contact it described.
func extractionMap(analysis *intelligence.AnalysisResult, senderEmail string) map[string]intelligence.SenderInfo {
	facts := make(map[string]intelligence.SenderInfo)
	if analysis == nil {
		return facts
	}
	for _, c := range analysis.OtherContacts {
		facts[normalizeEmail(c.Email)] = c.SenderInfo
	}
	if sender := normalizeEmail(senderEmail); sender != "" {
		facts[sender] = analysis.SenderInfo
	}
	return facts
}

func (r *resolver) resolve(ctx context.Context, participants []Participant) resolution {
	var res resolution

	for _, p := range participants {
		log := r.logger.With(logging.F("email", p.Email))
		if p.IsInternal {
			log.Info("skipping internal participant")
			res.Internal++
			r.metrics.ParticipantsTotal.WithLabelValues("internal").Inc()
			continue
		}

		rp, err := r.resolveOne(ctx, p)
		if err != nil {
			pe := pferrors.Degraded(err, StageResolve, pferrors.ErrResolutionFailed)
			log.Warn("participant dropped",
				logging.F("error_code", string(pe.Code)),
				logging.Err(err),
			)
			res.Dropped++
			r.metrics.ParticipantsTotal.WithLabelValues("dropped").Inc()
			continue
		}
		res.Resolved = append(res.Resolved, rp)
		r.metrics.ParticipantsTotal.WithLabelValues("resolved").Inc()
	}

	res.PrimaryCompanyID = r.primaryCompany
	res.Enriched = r.enriched
	return res
}

func (r *resolver) resolveOne(ctx context.Context, p Participant) (ResolvedParticipant, error) {
	own, hasOwn := r.facts[p.Email]

	if r.shouldEnrich(p, own, hasOwn) {
		r.enrich(ctx, p)
	}

	companyID, err := r.company(ctx, p, own)
	if err != nil {
		return ResolvedParticipant{}, err
	}
	if companyID != nil && r.primaryCompany == nil {
		r.primaryCompany = companyID
	}

	linkCompany := companyID
	if linkCompany == nil {
		linkCompany = r.primaryCompany
	}

	contactID, err := r.contact(ctx, p, linkCompany, own, hasOwn)
	if err != nil {
		return ResolvedParticipant{}, err
	}

	return ResolvedParticipant{Participant: p, ContactID: contactID, CompanyID: companyID}, nil
}

// shouldEnrich gates the single enrichment lookup of a run. The company facts
// must exist (or the sender must have a search query), the participant must
// be the sender or have facts naming a company, and the facts must still be
// sparse.
func (r *resolver) shouldEnrich(p Participant, own intelligence.SenderInfo, hasOwn bool) bool {
	if r.enricher == nil || r.enrichAttempted || r.analysis == nil {
		return false
	}
	a := r.analysis
	if a.CompanyDetails == nil && !(p.IsSender && a.CompanySearchQuery != "") {
		return false
	}
	if !p.IsSender && !(hasOwn && strings.TrimSpace(own.Company) != "") {
		return false
	}
	return a.CompanyDetails.IsSparse()
}

// enrich performs the run's one lookup and fills empty company facts.
func (r *resolver) enrich(ctx context.Context, p Participant) {
	r.enrichAttempted = true

	query := r.analysis.CompanySearchQuery
	if query == "" && r.analysis.CompanyDetails != nil {
		query = r.analysis.CompanyDetails.Name
	}

	ctx, span := startSpan(ctx, StageEnrich)
	start := time.Now()
	found, err := r.enricher.Lookup(ctx, query, p.Domain)
	r.metrics.observeStage(StageEnrich, start)
	endSpan(span, err)

	if err != nil || found.IsEmpty() {
		if err == nil {
			err = errors.New("no company facts found")
		}
		r.metrics.EnrichmentTotal.WithLabelValues("miss").Inc()
		r.logger.Warn("company enrichment failed, continuing with extracted facts",
			logging.F("error_code", string(pferrors.ErrEnrichmentFailed)),
			logging.F("query", query),
			logging.F("domain", p.Domain),
			logging.Err(err),
		)
		return
	}

	r.metrics.EnrichmentTotal.WithLabelValues("hit").Inc()
	r.enriched = true
	if r.analysis.CompanyDetails == nil {
		r.analysis.CompanyDetails = &intelligence.CompanyDetails{}
	}
	filled := r.analysis.CompanyDetails.FillEmpty(found)
	r.logger.Info("company facts enriched",
		logging.F("query", query),
		logging.F("filled", filled),
	)
}

// factsApply reports whether the analysis company facts describe p's company.
func (r *resolver) factsApply(p Participant, own intelligence.SenderInfo) bool {
	if r.analysis == nil || r.analysis.CompanyDetails == nil {
		return false
	}
	if p.IsSender {
		return true
	}
	name := strings.TrimSpace(r.analysis.CompanyDetails.Name)
	return name != "" && strings.EqualFold(strings.TrimSpace(own.Company), name)
}

// company resolves p's company by domain. It returns nil without error when
// the domain is empty or a public mail provider.
func (r *resolver) company(ctx context.Context, p Participant, own intelligence.SenderInfo) (*crm.ID, error) {
	if p.Domain == "" {
		return nil, nil
	}
	if id, ok := r.cache.companies[p.Domain]; ok {
		return crm.IDPtr(id), nil
	}

	name := p.Domain
	var facts crm.CompanyFacts
	if r.factsApply(p, own) {
		details := r.analysis.CompanyDetails
		if details.Name != "" {
			name = details.Name
		}
		facts = companyFacts(details)
	}

	id, err := r.crm.UpsertCompany(ctx, name, p.Domain, facts)
	if errors.Is(err, crm.ErrPublicDomain) {
		r.logger.Debug("public mail domain, no company",
			logging.F("domain", p.Domain),
			logging.F("error_code", string(pferrors.ErrPublicDomain)),
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.cache.companies[p.Domain] = id
	return crm.IDPtr(id), nil
}

func (r *resolver) contact(ctx context.Context, p Participant, companyID *crm.ID, own intelligence.SenderInfo, hasOwn bool) (crm.ID, error) {
	if id, ok := r.cache.contacts[p.Email]; ok {
		return id, nil
	}

	first, last := SplitName(p.Name)
	var facts crm.ContactFacts
	if hasOwn {
		facts = contactFacts(own)
	}

	id, err := r.crm.UpsertContact(ctx, p.Email, first, last, companyID, facts)
	if err != nil {
		return 0, err
	}
	r.cache.contacts[p.Email] = id
	return id, nil
}

// companyFacts keeps the company fields the CRM accepts. Social profile URLs
// become context links.
func companyFacts(d *intelligence.CompanyDetails) crm.CompanyFacts {
	if d == nil {
		return crm.CompanyFacts{}
	}
	facts := crm.CompanyFacts{
		Sector:        d.Sector,
		Size:          int(d.Size),
		LinkedInURL:   d.LinkedInURL,
		PhoneNumber:   d.PhoneNumber,
		Address:       d.Address,
		Zipcode:       d.Zipcode,
		City:          d.City,
		StateAbbr:     d.StateAbbr,
		Country:       d.Country,
		Description:   d.Description,
		Revenue:       d.Revenue,
		TaxIdentifier: d.TaxIdentifier,
	}
	if len(d.SocialProfiles) > 0 {
		links := lo.Filter(lo.Values(d.SocialProfiles), func(u string, _ int) bool { return u != "" })
		sort.Strings(links)
		facts.ContextLinks = links
	}
	return facts
}

// contactFacts keeps the person fields the CRM accepts.
func contactFacts(s intelligence.SenderInfo) crm.ContactFacts {
	return crm.ContactFacts{
		Title:       s.Title,
		Background:  s.Background,
		LinkedInURL: s.LinkedInURL,
		Gender:      s.Gender,
		PhoneJSONB:  crm.WorkPhone(s.Phone),
	}
}
