package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/civicsense/backend/internal/ai"
	"github.com/civicsense/backend/internal/geocode"
	"github.com/civicsense/backend/internal/models"
	"github.com/civicsense/backend/internal/notify"
)

// WorkflowStore is the slice of persistence the orchestrator needs.
type WorkflowStore interface {
	GetOrganization(ctx context.Context, id string) (models.Organization, error)
	CreateTicket(ctx context.Context, t models.Ticket) error
	CreateReport(ctx context.Context, r models.Report) error
	UpdateTicketLocation(ctx context.Context, id string, lat, lon float64, crossStreet string) error
	UpdateTicketSentiment(ctx context.Context, id string, score float64, priority string) error
	AppendWorkflowEvent(ctx context.Context, e models.WorkflowEvent) error
}

// Validations records which per-report checks passed during one run.
type Validations struct {
	GeoOK  bool `json:"geo_ok"`
	OTPOK  bool `json:"otp_ok"`
	SpamOK bool `json:"spam_ok"`
}

// FlowState is the transient per-invocation state threaded through the
// pipeline. It is never persisted as a row; the trace is written verbatim
// into the terminal workflow event.
type FlowState struct {
	UserID      string
	OrgID       string
	TicketID    string
	ReportID    string
	Trace       []string
	Validations Validations
}

func (f *FlowState) trace(format string, args ...any) {
	f.Trace = append(f.Trace, fmt.Sprintf(format, args...))
}

type ProcessResult struct {
	Success    bool
	TicketID   string
	MergedInto string
	Decision   string
	Trace      []string
	Err        error
}

// Orchestrator runs the per-report pipeline:
// intake -> geo-validate -> sentiment -> dedup -> merge -> notify.
// Stages run strictly in order; sentiment and notify are best-effort, the
// rest short-circuit the run.
type Orchestrator struct {
	Store     WorkflowStore
	Extractor ai.Extractor
	Sentiment ai.SentimentClassifier
	Geocoder  geocode.Geocoder
	Notifier  notify.Notifier
	Dedup     *DedupEngine
	Merge     *MergeManager
	Logger    zerolog.Logger

	// StageTimeout bounds each external call. Zero means no extra bound.
	StageTimeout time.Duration
}

func (o *Orchestrator) ProcessReport(ctx context.Context, userID, orgID, rawText, channel string) ProcessResult {
	st := &FlowState{UserID: userID, OrgID: orgID}
	log := o.Logger.With().Str("org_id", orgID).Str("channel", channel).Logger()

	org, err := o.Store.GetOrganization(ctx, orgID)
	if err != nil {
		st.trace("intake failed: unknown organization")
		return o.fail(ctx, st, ValidationError{Reason: "unknown organization"})
	}

	ticket, err := o.intake(ctx, st, org, rawText, channel)
	if err != nil {
		return o.fail(ctx, st, err)
	}
	log = log.With().Str("ticket_id", ticket.ID).Logger()

	ticket, err = o.geoValidate(ctx, st, org, ticket)
	if err != nil {
		return o.fail(ctx, st, err)
	}

	ticket = o.sentiment(ctx, st, ticket, rawText)

	dedupRes, err := o.Dedup.Dedup(ctx, ticket)
	if err != nil {
		st.trace("dedup failed: %v", err)
		return o.fail(ctx, st, err)
	}
	st.trace("dedup decision: %s (score %.2f)", dedupRes.Decision, dedupRes.Score)

	mergedInto := ""
	if dedupRes.ShouldMerge {
		if err := o.Merge.Merge(ctx, ticket.ID, dedupRes.ParentTicketID, dedupRes.Decision); err != nil {
			// The dedup decision stands; the merge will be retried via
			// recovery if the caller resubmits.
			st.trace("merge failed: %v", err)
			log.Error().Err(err).Str("parent_id", dedupRes.ParentTicketID).Msg("merge failed")
		} else {
			mergedInto = dedupRes.ParentTicketID
			st.trace("merged into ticket %s", dedupRes.ParentTicketID)
		}
	}

	o.notify(ctx, st, org, ticket, mergedInto)

	o.writeTerminalEvent(ctx, st, models.EventWorkflowCompleted, nil)
	log.Info().Str("decision", dedupRes.Decision).Msg("workflow completed")

	return ProcessResult{
		Success:    true,
		TicketID:   ticket.ID,
		MergedInto: mergedInto,
		Decision:   dedupRes.Decision,
		Trace:      st.Trace,
	}
}

func (o *Orchestrator) intake(ctx context.Context, st *FlowState, org models.Organization, rawText, channel string) (models.Ticket, error) {
	// Sender identity arrives pre-verified by the SMS/voice channel.
	st.Validations.OTPOK = true

	callCtx, cancel := o.stageContext(ctx)
	ext, latencyMs, err := o.Extractor.Extract(callCtx, rawText)
	cancel()
	if err != nil {
		st.trace("extraction failed: %v", err)
		return models.Ticket{}, ExtractionError{Err: err}
	}
	// The extractor refuses garbage input, which doubles as the spam gate.
	st.Validations.SpamOK = true
	st.trace("extracted report in %dms: category=%s street=%q", latencyMs, ext.Category, ext.CrossStreet)

	now := time.Now().UTC()
	ticket := models.Ticket{
		ID:          uuid.NewString(),
		OrgID:       org.ID,
		Description: ext.Description,
		Category:    ext.Category,
		CrossStreet: ext.CrossStreet,
		Lat:         ext.Lat,
		Lon:         ext.Lon,
		Status:      models.StatusPendingDedup,
		Priority:    priorityFromUrgency(ext.Urgency),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.Store.CreateTicket(ctx, ticket); err != nil {
		// No ticket row exists, so there is nothing to recover; surface
		// the failure without a terminal event.
		st.trace("ticket creation failed")
		return models.Ticket{}, DependencyError{Op: "ticket create", Err: err}
	}
	st.TicketID = ticket.ID

	report := models.Report{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		UserID:     st.UserID,
		Channel:    channel,
		Transcript: rawText,
		Urgency:    ext.Urgency,
		CreatedAt:  now,
	}
	if err := o.Store.CreateReport(ctx, report); err != nil {
		st.trace("report creation failed")
		return models.Ticket{}, DependencyError{Op: "report create", Err: err}
	}
	st.ReportID = report.ID
	st.trace("ticket %s created (priority %s)", ticket.ID, ticket.Priority)
	return ticket, nil
}

func (o *Orchestrator) geoValidate(ctx context.Context, st *FlowState, org models.Organization, ticket models.Ticket) (models.Ticket, error) {
	lat, lon := 0.0, 0.0
	switch {
	case ticket.HasCoords():
		lat, lon = *ticket.Lat, *ticket.Lon
		st.trace("using extracted coordinates (%.4f, %.4f)", lat, lon)
	case ticket.CrossStreet != "":
		callCtx, cancel := o.stageContext(ctx)
		gLat, gLon, display, _, err := o.Geocoder.Geocode(callCtx, geocode.BuildGeocodeQuery(org.City, ticket.CrossStreet))
		cancel()
		if errors.Is(err, geocode.ErrNotFound) {
			st.trace("geo validation failed: location not found")
			return ticket, ValidationError{Reason: "provide a more specific location"}
		}
		if err != nil {
			st.trace("geo validation failed: geocoder error")
			return ticket, DependencyError{Op: "geocoding", Err: err}
		}
		lat, lon = gLat, gLon
		st.trace("geocoded %q to (%.4f, %.4f)", display, lat, lon)
	default:
		st.trace("geo validation failed: no location in report")
		return ticket, ValidationError{Reason: "provide a more specific location"}
	}

	if !geocode.PointInBounds(lat, lon, org.Bounds) {
		st.trace("geo validation failed: outside service area")
		return ticket, ValidationError{Reason: "location is outside the service area"}
	}

	if err := o.Store.UpdateTicketLocation(ctx, ticket.ID, lat, lon, ticket.CrossStreet); err != nil {
		return ticket, DependencyError{Op: "location update", Err: err}
	}
	ticket.Lat = &lat
	ticket.Lon = &lon
	st.Validations.GeoOK = true
	st.trace("geo validation passed")
	return ticket, nil
}

func (o *Orchestrator) sentiment(ctx context.Context, st *FlowState, ticket models.Ticket, rawText string) models.Ticket {
	callCtx, cancel := o.stageContext(ctx)
	score, err := o.Sentiment.Classify(callCtx, rawText)
	cancel()
	if err != nil {
		st.trace("sentiment skipped: %v", err)
		return ticket
	}

	priority := ticket.Priority
	if score <= -0.5 && priority == models.PriorityNormal {
		priority = models.PriorityHigh
	}
	if err := o.Store.UpdateTicketSentiment(ctx, ticket.ID, score, priority); err != nil {
		st.trace("sentiment skipped: could not persist score")
		return ticket
	}
	ticket.SentimentScore = score
	ticket.Priority = priority
	st.trace("sentiment %.2f (priority %s)", score, priority)
	return ticket
}

func (o *Orchestrator) notify(ctx context.Context, st *FlowState, org models.Organization, ticket models.Ticket, mergedInto string) {
	recipient := st.UserID
	if org.NotifyRecipient != "" {
		recipient = org.NotifyRecipient
	}
	message := fmt.Sprintf("Your report has been received. Reference %s.", shortID(ticket.ID))
	if mergedInto != "" {
		message = fmt.Sprintf("Your report has been received and is tracked with an existing issue. Reference %s.", shortID(mergedInto))
	}

	callCtx, cancel := o.stageContext(ctx)
	err := o.Notifier.Send(callCtx, recipient, message)
	cancel()
	if err != nil {
		st.trace("notify skipped: %v", err)
		return
	}
	st.trace("confirmation sent")
}

// fail persists the failure for recovery when a ticket row exists, and maps
// the internal error to a caller-safe result.
func (o *Orchestrator) fail(ctx context.Context, st *FlowState, cause error) ProcessResult {
	if st.TicketID != "" {
		o.writeTerminalEvent(ctx, st, models.EventWorkflowFailed, cause)
	}
	o.Logger.Warn().Err(cause).Str("ticket_id", st.TicketID).Msg("workflow failed")
	return ProcessResult{TicketID: st.TicketID, Trace: st.Trace, Err: userFacing(cause)}
}

func (o *Orchestrator) writeTerminalEvent(ctx context.Context, st *FlowState, eventType string, cause error) {
	body := map[string]any{
		"trace":       st.Trace,
		"validations": st.Validations,
	}
	if cause != nil {
		body["error"] = cause.Error()
	}
	payload, _ := json.Marshal(body)
	event := models.WorkflowEvent{
		ID:        uuid.NewString(),
		TicketID:  st.TicketID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.Store.AppendWorkflowEvent(ctx, event); err != nil {
		o.Logger.Error().Err(err).Str("ticket_id", st.TicketID).Str("event_type", eventType).Msg("terminal event write failed")
	}
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.StageTimeout > 0 {
		return context.WithTimeout(ctx, o.StageTimeout)
	}
	return ctx, func() {}
}

// userFacing keeps validation reasons intact and hides transport detail.
func userFacing(err error) error {
	var vErr ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	var xErr ExtractionError
	if errors.As(err, &xErr) {
		return ValidationError{Reason: "we could not understand the report, please rephrase it"}
	}
	return errors.New("the report could not be processed right now, please try again later")
}

func priorityFromUrgency(urgency int) string {
	switch {
	case urgency >= 9:
		return models.PriorityCritical
	case urgency >= 7:
		return models.PriorityHigh
	default:
		return models.PriorityNormal
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
