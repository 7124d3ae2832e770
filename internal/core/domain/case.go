package domain

import "time"

// TimelineEntry is a dated event derived from a document.
type TimelineEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	DocumentID  string    `json:"document_id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Violation severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Violation is a legal-rule finding against a document.
type Violation struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	DocumentID string    `json:"document_id"`
	Rule       string    `json:"rule"`
	Severity   string    `json:"severity"`
	Detail     string    `json:"detail"`
	FoundAt    time.Time `json:"found_at"`
}

// DeliveryFailure records an event a subscriber failed to handle.
// Envelope holds the serialised event so an operator can replay it.
type DeliveryFailure struct {
	ID         string    `json:"id"`
	EventType  EventType `json:"event_type"`
	Subscriber string    `json:"subscriber"`
	PackID     string    `json:"pack_id"`
	Envelope   []byte    `json:"envelope"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}
