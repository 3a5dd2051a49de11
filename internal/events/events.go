// Package events publishes alert lifecycle changes to downstream consumers.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"wisefido-ews/internal/models"

	"github.com/google/uuid"
)

// Event is the wire form of a models.AlertChange.
type Event struct {
	EventID     string                 `json:"event_id"`
	Type        models.AlertChangeType `json:"type"`
	TenantID    string                 `json:"tenant_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Alert       models.Alert           `json:"alert"`
	Observation *models.Observation    `json:"observation,omitempty"`
}

// NewEvent wraps a change for publication.
func NewEvent(tenantID string, change models.AlertChange, occurredAt time.Time) Event {
	return Event{
		EventID:     uuid.New().String(),
		Type:        change.Type,
		TenantID:    tenantID,
		OccurredAt:  occurredAt,
		Alert:       change.Alert,
		Observation: change.Observation,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
