package domain

// EventType names a bus topic. The set is closed: new names may be added,
// existing names are never repurposed.
type EventType string

// Recognised event types.
const (
	EventDocumentAdded       EventType = "document_added"
	EventDocumentDeleted     EventType = "document_deleted"
	EventEventsExtracted     EventType = "events_extracted"
	EventViolationFound      EventType = "violation_found"
	EventFormFilled          EventType = "form_filled"
	EventDeadlineApproaching EventType = "deadline_approaching"
	EventTimelineUpdated     EventType = "timeline_updated"
)

// EventTypes returns every recognised event type.
func EventTypes() []EventType {
	return []EventType{
		EventDocumentAdded,
		EventDocumentDeleted,
		EventEventsExtracted,
		EventViolationFound,
		EventFormFilled,
		EventDeadlineApproaching,
		EventTimelineUpdated,
	}
}

// Valid reports whether t is a recognised event type.
func (t EventType) Valid() bool {
	for _, known := range EventTypes() {
		if t == known {
			return true
		}
	}
	return false
}
