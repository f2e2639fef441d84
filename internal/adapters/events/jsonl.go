// Package events serializes domain events at the process boundary.
package events

import (
	"encoding/json"
	"io"
	"sync"

	"flashhunt/internal/domain"
	"flashhunt/internal/logging"
	"flashhunt/internal/ports"
)

// JSONLinePublisher writes one JSON object per line to an io.Writer.
// Safe for concurrent use. Write failures are logged and swallowed:
// losing a progress event must never fail a session.
type JSONLinePublisher struct {
	mu sync.Mutex
	w  io.Writer
}

// Compile-time interface verification
var _ ports.EventPublisher = (*JSONLinePublisher)(nil)

// NewJSONLinePublisher creates a publisher writing to w
func NewJSONLinePublisher(w io.Writer) *JSONLinePublisher {
	return &JSONLinePublisher{w: w}
}

// Publish serializes the event and writes it as a single line
func (p *JSONLinePublisher) Publish(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Logger.Error("Failed to marshal event", "error", err, "event_type", event.EventType())
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(append(data, '\n')); err != nil {
		logging.Logger.Warn("Failed to publish event", "error", err, "event_type", event.EventType())
	}
}
