package pipeline

import (
	"context"

	"github.com/samber/lo"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/intelligence"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

type followUpResult struct {
	TasksCreated int
	DealID       *crm.ID
}

// followUps creates the suggested tasks on the primary contact and, for
// sales-oriented messages with a primary company, one deal linked to every
// resolved contact. Failures are logged and never stop the run.
func followUps(ctx context.Context, c CRM, analysis *intelligence.AnalysisResult, resolved []ResolvedParticipant, primary Primary, logger logging.Logger) followUpResult {
	var res followUpResult
	if analysis == nil {
		return res
	}

	for _, t := range analysis.SuggestedTasks {
		err := c.CreateTask(ctx, crm.Task{
			ContactID: primary.Contact.ContactID,
			Text:      t.Description,
			DueDate:   t.DueDate,
			Priority:  t.Priority,
			Status:    t.Status,
		})
		if err != nil {
			logFollowUpFailure(logger, "task", err)
			continue
		}
		res.TasksCreated++
	}

	deal := analysis.DealInfo
	if deal == nil || !analysis.Intent.IsSalesOriented() || primary.CompanyID == nil {
		return res
	}

	var amount float64
	if deal.Amount != nil {
		amount = *deal.Amount
	}
	stage := deal.Stage
	if stage == "" {
		stage = intelligence.DefaultDealStage
	}

	id, err := c.CreateDeal(ctx, crm.Deal{
		Name:        deal.Name,
		CompanyID:   *primary.CompanyID,
		ContactIDs:  lo.Map(resolved, func(rp ResolvedParticipant, _ int) crm.ID { return rp.ContactID }),
		Category:    deal.Category,
		Stage:       stage,
		Description: deal.Description,
		Amount:      amount,
	})
	if err != nil {
		logFollowUpFailure(logger, "deal", err)
		return res
	}
	res.DealID = crm.IDPtr(id)
	return res
}

func logFollowUpFailure(logger logging.Logger, kind string, err error) {
	pe := pferrors.Degraded(err, StageFollowUp, pferrors.ErrFollowUpFailed)
	logger.Warn("failed to create "+kind,
		logging.F("error_code", string(pe.Code)),
		logging.Err(err),
	)
}
