package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/bizops/services/crm/config"
	"example.com/bizops/services/crm/internal/metrics"
	"example.com/bizops/services/crm/internal/models"
	"example.com/bizops/services/crm/internal/tracing"
	"example.com/bizops/services/crm/internal/workflow"
)

// fakeSource is an in-memory stand-in for the outbox table
type fakeSource struct {
	mu      sync.Mutex
	events  []models.OutboxEvent
	polls   int
	pollErr error
}

func (f *fakeSource) add(eventType string, payload string, createdAt time.Time) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.New()
	f.events = append(f.events, models.OutboxEvent{
		ID:        id,
		EventType: eventType,
		Payload:   []byte(payload),
		CreatedAt: createdAt,
	})
	return id
}

func (f *fakeSource) GetUnprocessed(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}

	var pending []models.OutboxEvent
	for _, e := range f.events {
		if e.ProcessedAt == nil {
			pending = append(pending, e)
		}
	}

	// Oldest first, mirroring the poll query's ORDER BY created_at ASC
	for i := 0; i < len(pending); i++ {
		for j := i + 1; j < len(pending); j++ {
			if pending[j].CreatedAt.Before(pending[i].CreatedAt) {
				pending[i], pending[j] = pending[j], pending[i]
			}
		}
	}

	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (f *fakeSource) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.events {
		if f.events[i].ID == id && f.events[i].ProcessedAt == nil {
			now := time.Now()
			f.events[i].ProcessedAt = &now
			return nil
		}
	}
	return errors.New("no outbox event updated")
}

func (f *fakeSource) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, e := range f.events {
		if e.ProcessedAt != nil {
			count++
		}
	}
	return count
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func newTestDispatcher(source *fakeSource, registry *workflow.Registry, cfg config.DispatchConfig) *Dispatcher {
	return NewDispatcher(source, registry, metrics.NewMetrics(), &tracing.NewRelicTracer{}, cfg)
}

func TestRunCycleMarksEventWithoutHandlersProcessed(t *testing.T) {
	source := &fakeSource{}
	source.add("deal.created", `{"id":"d1","name":"Acme Deal"}`, time.Now())

	dispatcher := newTestDispatcher(source, workflow.NewRegistry(), config.DispatchConfig{})

	err := dispatcher.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, source.processedCount())
}

func TestRunCycleInvokesHandlerWithPayload(t *testing.T) {
	source := &fakeSource{}
	source.add("deal.created", `{"id":"d1","name":"Acme Deal"}`, time.Now())

	var calls int
	var received json.RawMessage
	registry := workflow.NewRegistry()
	registry.Register("deal.created", func(ctx context.Context, payload json.RawMessage) error {
		calls++
		received = payload
		return nil
	})

	dispatcher := newTestDispatcher(source, registry, config.DispatchConfig{})

	err := dispatcher.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.JSONEq(t, `{"id":"d1","name":"Acme Deal"}`, string(received))
	require.Equal(t, 1, source.processedCount())

	// A processed event is excluded from subsequent cycles and its handlers
	// are never re-invoked
	err = dispatcher.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRunCycleHandlerFailureDoesNotBlockBatch(t *testing.T) {
	source := &fakeSource{}
	source.add("deal.updated", `{"id":"d1"}`, time.Now().Add(-2*time.Second))
	source.add("deal.updated", `{"id":"d2"}`, time.Now().Add(-1*time.Second))

	var failingCalls, okCalls int
	registry := workflow.NewRegistry()
	registry.Register("deal.updated", func(ctx context.Context, payload json.RawMessage) error {
		failingCalls++
		return errors.New("boom")
	})
	registry.Register("deal.updated", func(ctx context.Context, payload json.RawMessage) error {
		okCalls++
		return nil
	})

	dispatcher := newTestDispatcher(source, registry, config.DispatchConfig{})

	err := dispatcher.RunCycle(context.Background())
	require.NoError(t, err)

	// Both handlers were attempted for both events, and both events were
	// stamped processed despite the first handler failing every time
	require.Equal(t, 2, failingCalls)
	require.Equal(t, 2, okCalls)
	require.Equal(t, 2, source.processedCount())
}

func TestRunCycleContainsHandlerPanic(t *testing.T) {
	source := &fakeSource{}
	source.add("deal.created", `{"id":"d1"}`, time.Now())

	var afterPanicCalls int
	registry := workflow.NewRegistry()
	registry.Register("deal.created", func(ctx context.Context, payload json.RawMessage) error {
		panic("handler bug")
	})
	registry.Register("deal.created", func(ctx context.Context, payload json.RawMessage) error {
		afterPanicCalls++
		return nil
	})

	dispatcher := newTestDispatcher(source, registry, config.DispatchConfig{})

	err := dispatcher.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, afterPanicCalls)
	require.Equal(t, 1, source.processedCount())
}

func TestRunCycleRespectsBatchSize(t *testing.T) {
	source := &fakeSource{}
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 15; i++ {
		source.add("deal.created", `{}`, base.Add(time.Duration(i)*time.Second))
	}

	dispatcher := newTestDispatcher(source, workflow.NewRegistry(), config.DispatchConfig{BatchSize: 10})

	err := dispatcher.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, source.processedCount())

	err = dispatcher.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 15, source.processedCount())
}

func TestRunCycleProcessesOldestFirst(t *testing.T) {
	source := &fakeSource{}
	base := time.Now().Add(-time.Minute)
	first := source.add("deal.created", `{"seq":1}`, base)
	second := source.add("deal.created", `{"seq":2}`, base.Add(time.Second))
	third := source.add("deal.created", `{"seq":3}`, base.Add(2*time.Second))

	var order []uuid.UUID
	registry := workflow.NewRegistry()
	registry.Register("deal.created", func(ctx context.Context, payload json.RawMessage) error {
		var doc struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(payload, &doc))
		switch doc.Seq {
		case 1:
			order = append(order, first)
		case 2:
			order = append(order, second)
		case 3:
			order = append(order, third)
		}
		return nil
	})

	dispatcher := newTestDispatcher(source, registry, config.DispatchConfig{})

	err := dispatcher.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{first, second, third}, order)
}

func TestRunCyclePollFailureLeavesEventsUntouched(t *testing.T) {
	source := &fakeSource{pollErr: errors.New("connection refused")}
	source.add("deal.created", `{}`, time.Now())

	dispatcher := newTestDispatcher(source, workflow.NewRegistry(), config.DispatchConfig{})

	err := dispatcher.RunCycle(context.Background())
	require.Error(t, err)
	require.Equal(t, 0, source.processedCount())

	// The cycle is safely retryable once the store recovers
	source.mu.Lock()
	source.pollErr = nil
	source.mu.Unlock()

	err = dispatcher.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, source.processedCount())
}

func TestStopBeforeFirstTickRunsNoCycle(t *testing.T) {
	source := &fakeSource{}
	source.add("deal.created", `{}`, time.Now())

	dispatcher := newTestDispatcher(source, workflow.NewRegistry(), config.DispatchConfig{Interval: time.Hour})

	require.NoError(t, dispatcher.Start())
	require.NoError(t, dispatcher.Stop())

	require.Equal(t, 0, source.pollCount())
	require.Equal(t, 0, source.processedCount())
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	source := &fakeSource{}
	dispatcher := newTestDispatcher(source, workflow.NewRegistry(), config.DispatchConfig{Interval: time.Hour})

	// Stop on a never-started dispatcher is a no-op
	require.NoError(t, dispatcher.Stop())

	require.NoError(t, dispatcher.Start())
	require.NoError(t, dispatcher.Start())

	require.NoError(t, dispatcher.Stop())
	require.NoError(t, dispatcher.Stop())
}

func TestDispatcherPollsOnInterval(t *testing.T) {
	source := &fakeSource{}
	source.add("deal.created", `{}`, time.Now())

	dispatcher := newTestDispatcher(source, workflow.NewRegistry(), config.DispatchConfig{Interval: 20 * time.Millisecond})

	require.NoError(t, dispatcher.Start())
	defer dispatcher.Stop()

	require.Eventually(t, func() bool {
		return source.processedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
