// Package outbox implements the producer side of the event pipeline: durable
// event rows appended alongside the business mutation that produced them.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/bizops/services/crm/internal/models"
	"example.com/bizops/services/crm/internal/repositories"
)

// PersistenceError indicates the event row could not be written. Callers that
// emit inside the same transaction as their mutation get atomicity for free;
// callers outside a transaction must decide whether to roll back themselves.
type PersistenceError struct {
	EventType string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist outbox event %q: %v", e.EventType, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Writer appends domain events to the outbox table
type Writer struct {
	repo repositories.OutboxRepository
}

// NewWriter creates a new outbox writer
func NewWriter(repo repositories.OutboxRepository) *Writer {
	return &Writer{repo: repo}
}

// WithTx returns a writer whose inserts run inside the given transaction, so
// an event is never recorded without its paired mutation (or vice versa)
func (w *Writer) WithTx(tx *gorm.DB) *Writer {
	return &Writer{repo: w.repo.WithTx(tx)}
}

// Emit appends one event row with a nil processed_at and returns its id. The
// payload should be a full snapshot of the mutated record at commit time.
func (w *Writer) Emit(ctx context.Context, eventType string, payload interface{}) (uuid.UUID, error) {
	if eventType == "" {
		return uuid.Nil, errors.New("event type must not be empty")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "failed to marshal payload for %q", eventType)
	}

	event := &models.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   data,
	}

	if err := w.repo.Create(ctx, event); err != nil {
		return uuid.Nil, &PersistenceError{EventType: eventType, Err: err}
	}

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", eventType).
		Msg("Outbox event emitted")

	return event.ID, nil
}
