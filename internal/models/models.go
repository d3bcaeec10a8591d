package models

import "time"

const (
	StatusPendingDedup = "pending_dedup"
	StatusOpen         = "open"
	StatusClosed       = "closed"
)

const (
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

const (
	ChannelSMS   = "sms"
	ChannelVoice = "voice"
)

const (
	EventTicketMerged      = "ticket.merged"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowFailed    = "workflow.failed"
)

type Organization struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	City            string       `json:"city"`
	Bounds          [][2]float64 `json:"bounds,omitempty"`
	NotifyRecipient string       `json:"notify_recipient,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

type Ticket struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"org_id"`
	ParentID       *string   `json:"parent_id,omitempty"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	CrossStreet    string    `json:"cross_street"`
	Lat            *float64  `json:"lat,omitempty"`
	Lon            *float64  `json:"lon,omitempty"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
	SentimentScore float64   `json:"sentiment_score"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsRoot reports whether the ticket is parent-eligible (never merged into
// another ticket).
func (t Ticket) IsRoot() bool {
	return t.ParentID == nil
}

func (t Ticket) HasCoords() bool {
	return t.Lat != nil && t.Lon != nil
}

type Report struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	UserID     string    `json:"user_id"`
	Channel    string    `json:"channel"`
	Transcript string    `json:"transcript"`
	Urgency    int       `json:"urgency"`
	CreatedAt  time.Time `json:"created_at"`
}

type WorkflowEvent struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	EventType string    `json:"event_type"`
	Payload   []byte    `json:"payload"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// Extraction is the structured result of running a raw report through the
// language-model extractor. Coordinates are only set when the extractor is
// certain about them; they are never fabricated from the street text.
type Extraction struct {
	Description string   `json:"description"`
	Category    string   `json:"category"`
	CrossStreet string   `json:"cross_street"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Urgency     int      `json:"urgency"`
}

// Neighbor is one nearest-neighbor hit from the embedding index.
type Neighbor struct {
	Ticket     Ticket  `json:"ticket"`
	Similarity float64 `json:"similarity"`
}
