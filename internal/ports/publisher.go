package ports

import "flashhunt/internal/domain"

// EventPublisher delivers progress/status events to the external
// broadcast sink. Implementations must be safe for concurrent use;
// delivery failures never fail a session.
type EventPublisher interface {
	Publish(event domain.Event)
}
