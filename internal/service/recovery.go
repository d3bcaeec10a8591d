package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/civicsense/backend/internal/models"
)

// RecoveryStore is the slice of persistence the recovery processor needs.
type RecoveryStore interface {
	ListUnprocessedFailures(ctx context.Context, limit int) ([]models.WorkflowEvent, error)
	GetTicket(ctx context.Context, id string) (models.Ticket, error)
	GetEarliestReport(ctx context.Context, ticketID string) (models.Report, error)
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
}

// RecoveryProcessor rescans failed workflow events and replays each one
// through the orchestrator from the original raw text. Events are never
// deleted; a successful replay only flips the processed flag.
type RecoveryProcessor struct {
	Store        RecoveryStore
	Orchestrator *Orchestrator
	Logger       zerolog.Logger
}

type RecoveryResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

func (p *RecoveryProcessor) Reprocess(ctx context.Context, batchSize int) (RecoveryResult, error) {
	events, err := p.Store.ListUnprocessedFailures(ctx, batchSize)
	if err != nil {
		return RecoveryResult{}, err
	}

	var res RecoveryResult
	for _, event := range events {
		if err := p.reprocessEvent(ctx, event); err != nil {
			res.Failed++
			p.Logger.Warn().Err(err).Str("event_id", event.ID).Str("ticket_id", event.TicketID).Msg("recovery attempt failed")
			continue
		}
		res.Processed++
	}
	p.Logger.Info().Int("processed", res.Processed).Int("failed", res.Failed).Msg("recovery batch finished")
	return res, nil
}

func (p *RecoveryProcessor) reprocessEvent(ctx context.Context, event models.WorkflowEvent) error {
	ticket, err := p.Store.GetTicket(ctx, event.TicketID)
	if err != nil {
		return RecoveryExhausted{EventID: event.ID, Err: err}
	}
	report, err := p.Store.GetEarliestReport(ctx, event.TicketID)
	if err != nil {
		return RecoveryExhausted{EventID: event.ID, Err: err}
	}

	run := p.Orchestrator.ProcessReport(ctx, report.UserID, ticket.OrgID, report.Transcript, report.Channel)
	if run.Err != nil {
		return RecoveryExhausted{EventID: event.ID, Err: run.Err}
	}

	// Compare-and-set so a concurrent batch cannot claim the same event.
	claimed, err := p.Store.MarkEventProcessed(ctx, event.ID)
	if err != nil {
		return RecoveryExhausted{EventID: event.ID, Err: err}
	}
	if !claimed {
		p.Logger.Debug().Str("event_id", event.ID).Msg("event already claimed by another batch")
	}
	return nil
}
