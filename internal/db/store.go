package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicsense/backend/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const ticketColumns = `id, org_id, parent_id, description, category, cross_street, lat, lon, status, priority, sentiment_score, created_at, updated_at`

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.OrgID, &t.ParentID, &t.Description, &t.Category, &t.CrossStreet,
		&t.Lat, &t.Lon, &t.Status, &t.Priority, &t.SentimentScore, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, ErrNotFound
	}
	return t, err
}

func (s *Store) CreateTicket(ctx context.Context, t models.Ticket) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO tickets (id, org_id, parent_id, description, category, cross_street, lat, lon, status, priority, sentiment_score, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, t.ID, t.OrgID, t.ParentID, t.Description, t.Category, t.CrossStreet, t.Lat, t.Lon, t.Status, t.Priority, t.SentimentScore, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *Store) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	return scanTicket(row)
}

func (s *Store) UpdateTicketStatus(ctx context.Context, id string, status string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE tickets SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

func (s *Store) UpdateTicketLocation(ctx context.Context, id string, lat, lon float64, crossStreet string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE tickets SET lat = $1, lon = $2, cross_street = $3, updated_at = NOW() WHERE id = $4
	`, lat, lon, crossStreet, id)
	return err
}

func (s *Store) UpdateTicketSentiment(ctx context.Context, id string, score float64, priority string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE tickets SET sentiment_score = $1, priority = $2, updated_at = NOW() WHERE id = $3
	`, score, priority, id)
	return err
}

// SetTicketParent links child to parent and opens the child. The guard makes
// the call a no-op when the same link already exists, so retries do not
// rewrite the row. Returns whether the row changed and the child's parent_id
// as it stood before the call.
func (s *Store) SetTicketParent(ctx context.Context, tx pgx.Tx, childID, parentID string) (changed bool, prevParent *string, err error) {
	row := tx.QueryRow(ctx, `SELECT parent_id FROM tickets WHERE id = $1 FOR UPDATE`, childID)
	if err := row.Scan(&prevParent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, ErrNotFound
		}
		return false, nil, err
	}
	if prevParent != nil {
		return false, prevParent, nil
	}
	tag, err := tx.Exec(ctx, `
		UPDATE tickets SET parent_id = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND parent_id IS NULL
	`, parentID, models.StatusOpen, childID)
	if err != nil {
		return false, prevParent, err
	}
	return tag.RowsAffected() > 0, prevParent, nil
}

func (s *Store) CountChildren(ctx context.Context, tx pgx.Tx, parentID string) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE parent_id = $1`, parentID).Scan(&n)
	return n, err
}

// MergeOutcome reports what a MergeTickets call observed and did.
type MergeOutcome struct {
	Applied       bool
	AlreadyMerged bool
	PrevParent    *string
	ParentParent  *string
	ChildCount    int
}

// MergeTickets links child to parent, opens the child and appends the
// ticket.merged audit event, all in one transaction. The call is a no-op
// when the link already exists (idempotent under retry) and refuses to act
// when the parent is itself a child; both cases are reported through the
// outcome, not applied silently. Child count is derived by counting, never
// stored.
func (s *Store) MergeTickets(ctx context.Context, childID, parentID, reason string) (MergeOutcome, error) {
	var out MergeOutcome
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var parentParent *string
		err := tx.QueryRow(ctx, `SELECT parent_id FROM tickets WHERE id = $1 FOR UPDATE`, parentID).Scan(&parentParent)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if parentParent != nil {
			out.ParentParent = parentParent
			return nil
		}

		changed, prevParent, err := s.SetTicketParent(ctx, tx, childID, parentID)
		if err != nil {
			return err
		}
		out.PrevParent = prevParent
		if !changed {
			out.AlreadyMerged = prevParent != nil && *prevParent == parentID
			return nil
		}

		n, err := s.CountChildren(ctx, tx, parentID)
		if err != nil {
			return err
		}
		out.ChildCount = n
		out.Applied = true

		payload, _ := json.Marshal(map[string]any{
			"parent_ticket_id": parentID,
			"reason":           reason,
			"child_count":      n,
		})
		return s.AppendWorkflowEventTx(ctx, tx, models.WorkflowEvent{
			ID:        uuid.NewString(),
			TicketID:  childID,
			EventType: models.EventTicketMerged,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		})
	})
	return out, err
}

// ListOpenRootTickets returns the org's parent-eligible tickets: not closed,
// never merged into another ticket.
func (s *Store) ListOpenRootTickets(ctx context.Context, orgID string, excludeID string) ([]models.Ticket, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE org_id = $1 AND status != $2 AND parent_id IS NULL AND id != $3
		ORDER BY created_at DESC
	`, orgID, models.StatusClosed, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListTickets(ctx context.Context, orgID, status, priority, q string, limit, offset int) ([]models.Ticket, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets`
	var args []any
	var wheres []string
	if orgID != "" {
		args = append(args, orgID)
		wheres = append(wheres, fmt.Sprintf("org_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if priority != "" {
		args = append(args, priority)
		wheres = append(wheres, fmt.Sprintf("priority = $%d", len(args)))
	}
	if q != "" {
		args = append(args, "%"+q+"%")
		wheres = append(wheres, fmt.Sprintf("(description ILIKE $%d OR cross_street ILIKE $%d)", len(args), len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListChildTickets(ctx context.Context, parentID string) ([]models.Ticket, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE parent_id = $1 ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateReport(ctx context.Context, r models.Report) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO reports (id, ticket_id, user_id, channel, transcript, urgency, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, r.ID, r.TicketID, r.UserID, r.Channel, r.Transcript, r.Urgency, r.CreatedAt)
	return err
}

func (s *Store) ListReports(ctx context.Context, ticketID string) ([]models.Report, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, ticket_id, user_id, channel, transcript, urgency, created_at
		FROM reports WHERE ticket_id = $1 ORDER BY created_at ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Report
	for rows.Next() {
		var r models.Report
		if err := rows.Scan(&r.ID, &r.TicketID, &r.UserID, &r.Channel, &r.Transcript, &r.Urgency, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetEarliestReport(ctx context.Context, ticketID string) (models.Report, error) {
	var r models.Report
	err := s.Pool.QueryRow(ctx, `
		SELECT id, ticket_id, user_id, channel, transcript, urgency, created_at
		FROM reports WHERE ticket_id = $1 ORDER BY created_at ASC LIMIT 1
	`, ticketID).Scan(&r.ID, &r.TicketID, &r.UserID, &r.Channel, &r.Transcript, &r.Urgency, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Report{}, ErrNotFound
	}
	return r, err
}

// encodeVectorLiteral renders a vector as the pgvector text literal
// [v1,v2,...] suitable for a $n::vector cast.
func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", errors.New("vector must not be empty")
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

func (s *Store) UpsertTicketEmbedding(ctx context.Context, ticketID string, vec []float32) error {
	literal, err := encodeVectorLiteral(vec)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO ticket_embeddings (ticket_id, embedding, updated_at)
		VALUES ($1, $2::vector, NOW())
		ON CONFLICT (ticket_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
	`, ticketID, literal)
	return err
}

// NearestTickets runs a cosine nearest-neighbor search over the org's open
// root tickets, excluding the querying ticket itself. Similarity is
// 1 - cosine distance; rows below the floor are dropped.
func (s *Store) NearestTickets(ctx context.Context, orgID string, vec []float32, floor float64, limit int, excludeID string) ([]models.Neighbor, error) {
	literal, err := encodeVectorLiteral(vec)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT t.id, t.org_id, t.parent_id, t.description, t.category, t.cross_street, t.lat, t.lon,
			t.status, t.priority, t.sentiment_score, t.created_at, t.updated_at,
			1 - (e.embedding <=> $1::vector) AS similarity
		FROM ticket_embeddings e
		JOIN tickets t ON t.id = e.ticket_id
		WHERE t.org_id = $2 AND t.status != $3 AND t.parent_id IS NULL AND t.id != $4
			AND 1 - (e.embedding <=> $1::vector) >= $5
		ORDER BY e.embedding <=> $1::vector
		LIMIT $6
	`, literal, orgID, models.StatusClosed, excludeID, floor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Neighbor
	for rows.Next() {
		var n models.Neighbor
		t := &n.Ticket
		if err := rows.Scan(&t.ID, &t.OrgID, &t.ParentID, &t.Description, &t.Category, &t.CrossStreet,
			&t.Lat, &t.Lon, &t.Status, &t.Priority, &t.SentimentScore, &t.CreatedAt, &t.UpdatedAt, &n.Similarity); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) AppendWorkflowEvent(ctx context.Context, e models.WorkflowEvent) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO workflow_events (id, ticket_id, event_type, payload, processed, created_at)
		VALUES ($1,$2,$3,$4,false,$5)
	`, e.ID, e.TicketID, e.EventType, e.Payload, e.CreatedAt)
	return err
}

func (s *Store) AppendWorkflowEventTx(ctx context.Context, tx pgx.Tx, e models.WorkflowEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO workflow_events (id, ticket_id, event_type, payload, processed, created_at)
		VALUES ($1,$2,$3,$4,false,$5)
	`, e.ID, e.TicketID, e.EventType, e.Payload, e.CreatedAt)
	return err
}

func (s *Store) ListUnprocessedFailures(ctx context.Context, limit int) ([]models.WorkflowEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, ticket_id, event_type, payload, processed, created_at
		FROM workflow_events
		WHERE event_type = $1 AND processed = false
		ORDER BY created_at ASC
		LIMIT $2
	`, models.EventWorkflowFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WorkflowEvent
	for rows.Next() {
		var e models.WorkflowEvent
		if err := rows.Scan(&e.ID, &e.TicketID, &e.EventType, &e.Payload, &e.Processed, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkEventProcessed flips the processed flag, guarding on processed = false
// so two concurrent recovery batches cannot both claim the same event.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE workflow_events SET processed = true WHERE id = $1 AND processed = false
	`, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string, limit int) ([]models.WorkflowEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, ticket_id, event_type, payload, processed, created_at
		FROM workflow_events WHERE ticket_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, ticketID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WorkflowEvent
	for rows.Next() {
		var e models.WorkflowEvent
		if err := rows.Scan(&e.ID, &e.TicketID, &e.EventType, &e.Payload, &e.Processed, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, city, bounds, notify_recipient, created_at FROM organizations ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) GetOrganization(ctx context.Context, id string) (models.Organization, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, name, city, bounds, notify_recipient, created_at FROM organizations WHERE id = $1`, id)
	return scanOrganization(row)
}

func scanOrganization(row pgx.Row) (models.Organization, error) {
	var o models.Organization
	var bounds []byte
	err := row.Scan(&o.ID, &o.Name, &o.City, &bounds, &o.NotifyRecipient, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Organization{}, ErrNotFound
	}
	if err != nil {
		return models.Organization{}, err
	}
	if len(bounds) > 0 {
		if err := json.Unmarshal(bounds, &o.Bounds); err != nil {
			return models.Organization{}, err
		}
	}
	return o, nil
}

type DashboardMetrics struct {
	TotalOpenTickets int     `json:"total_open_tickets"`
	CriticalOpen     int     `json:"critical_open"`
	TotalReports     int     `json:"total_reports"`
	AvgSentiment     float64 `json:"avg_sentiment"`
	MergedTickets    int     `json:"merged_tickets"`
}

func (s *Store) GetDashboardMetrics(ctx context.Context, orgID string) (DashboardMetrics, error) {
	var m DashboardMetrics
	err := s.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $2 AND parent_id IS NULL),
			COUNT(*) FILTER (WHERE status = $2 AND parent_id IS NULL AND priority = $3),
			(SELECT COUNT(*) FROM reports r JOIN tickets tt ON tt.id = r.ticket_id WHERE tt.org_id = $1),
			COALESCE(AVG(sentiment_score) FILTER (WHERE status != $4), 0),
			COUNT(*) FILTER (WHERE parent_id IS NOT NULL)
		FROM tickets WHERE org_id = $1
	`, orgID, models.StatusOpen, models.PriorityCritical, models.StatusClosed).
		Scan(&m.TotalOpenTickets, &m.CriticalOpen, &m.TotalReports, &m.AvgSentiment, &m.MergedTickets)
	return m, err
}

// ParentTicketSummary is a root ticket annotated with its child count for
// the dashboard view.
type ParentTicketSummary struct {
	models.Ticket
	ChildCount int `json:"child_count"`
}

func (s *Store) ListParentTickets(ctx context.Context, orgID string, limit int) ([]ParentTicketSummary, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT t.id, t.org_id, t.parent_id, t.description, t.category, t.cross_street, t.lat, t.lon,
			t.status, t.priority, t.sentiment_score, t.created_at, t.updated_at,
			(SELECT COUNT(*) FROM tickets c WHERE c.parent_id = t.id) AS child_count
		FROM tickets t
		WHERE t.org_id = $1 AND t.parent_id IS NULL AND t.status != $2
		ORDER BY t.created_at DESC
		LIMIT $3
	`, orgID, models.StatusClosed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ParentTicketSummary
	for rows.Next() {
		var p ParentTicketSummary
		t := &p.Ticket
		if err := rows.Scan(&t.ID, &t.OrgID, &t.ParentID, &t.Description, &t.Category, &t.CrossStreet,
			&t.Lat, &t.Lon, &t.Status, &t.Priority, &t.SentimentScore, &t.CreatedAt, &t.UpdatedAt, &p.ChildCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListRecentActivity(ctx context.Context, orgID string, limit int) ([]models.WorkflowEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT e.id, e.ticket_id, e.event_type, e.payload, e.processed, e.created_at
		FROM workflow_events e
		JOIN tickets t ON t.id = e.ticket_id
		WHERE t.org_id = $1
		ORDER BY e.created_at DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WorkflowEvent
	for rows.Next() {
		var e models.WorkflowEvent
		if err := rows.Scan(&e.ID, &e.TicketID, &e.EventType, &e.Payload, &e.Processed, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
