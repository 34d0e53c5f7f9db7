package outbox

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/bizops/services/crm/internal/models"
	"example.com/bizops/services/crm/internal/repositories"
)

// Mock outbox repository for testing
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, event *models.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetUnprocessed(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) WithTx(tx *gorm.DB) repositories.OutboxRepository {
	return m
}

func TestEmitPersistsPendingEvent(t *testing.T) {
	mockRepo := new(MockOutboxRepository)

	var captured *models.OutboxEvent
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.OutboxEvent")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*models.OutboxEvent)
		}).
		Return(nil)

	writer := NewWriter(mockRepo)

	payload := map[string]string{"id": "d1", "name": "Acme Deal"}
	id, err := writer.Emit(context.Background(), "deal.created", payload)

	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	require.NotNil(t, captured)
	require.Equal(t, id, captured.ID)
	require.Equal(t, "deal.created", captured.EventType)
	require.JSONEq(t, `{"id":"d1","name":"Acme Deal"}`, string(captured.Payload))
	require.Nil(t, captured.ProcessedAt)

	mockRepo.AssertExpectations(t)
}

func TestEmitRejectsEmptyEventType(t *testing.T) {
	writer := NewWriter(new(MockOutboxRepository))

	_, err := writer.Emit(context.Background(), "", map[string]string{})
	require.Error(t, err)
}

func TestEmitRejectsUnmarshalablePayload(t *testing.T) {
	writer := NewWriter(new(MockOutboxRepository))

	_, err := writer.Emit(context.Background(), "deal.created", make(chan int))
	require.Error(t, err)
}

func TestEmitSurfacesPersistenceError(t *testing.T) {
	mockRepo := new(MockOutboxRepository)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	writer := NewWriter(mockRepo)

	_, err := writer.Emit(context.Background(), "deal.created", map[string]string{"id": "d1"})
	require.Error(t, err)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "deal.created", perr.EventType)
}
