// Package dispatch drives delivery of pending outbox events to workflow
// handlers on a fixed polling interval.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/bizops/services/crm/config"
	"example.com/bizops/services/crm/internal/metrics"
	"example.com/bizops/services/crm/internal/models"
	"example.com/bizops/services/crm/internal/tracing"
	"example.com/bizops/services/crm/internal/workflow"
)

const (
	defaultInterval  = 5 * time.Second
	defaultBatchSize = 10
)

// EventSource is the dispatcher's view of the outbox table: read pending
// rows, stamp them processed. Implemented by repositories.OutboxRepository.
type EventSource interface {
	GetUnprocessed(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// Dispatcher polls the outbox on a fixed interval and hands each pending
// event to its registered handlers. Delivery is at-least-once: an event is
// stamped processed after its handlers have been attempted, regardless of
// individual handler failures, and is not redelivered.
type Dispatcher struct {
	source    EventSource
	registry  *workflow.Registry
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewDispatcher creates a dispatcher in the stopped state
func NewDispatcher(
	source EventSource,
	registry *workflow.Registry,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
	cfg config.DispatchConfig,
) *Dispatcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Dispatcher{
		source:    source,
		registry:  registry,
		metrics:   metricsCollector,
		tracer:    tracer,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start arms the interval timer. Singleton mode skips a tick while a previous
// cycle is still running, so cycles never overlap. Calling Start on a running
// dispatcher is a no-op.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler != nil {
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "failed to create dispatch scheduler")
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(d.interval),
		gocron.NewTask(func() {
			if err := d.RunCycle(context.Background()); err != nil {
				log.Error().Err(err).Msg("Dispatch cycle failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrap(err, "failed to schedule dispatch job")
	}

	scheduler.Start()
	d.scheduler = scheduler

	log.Info().
		Dur("interval", d.interval).
		Int("batch_size", d.batchSize).
		Msg("Outbox dispatcher started")

	return nil
}

// Stop disarms the timer so no new cycle starts. An in-flight cycle is
// allowed to finish. Safe to call repeatedly, including before any tick.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler == nil {
		return nil
	}

	err := d.scheduler.Shutdown()
	d.scheduler = nil

	if err != nil {
		return errors.Wrap(err, "failed to shut down dispatch scheduler")
	}

	log.Info().Msg("Outbox dispatcher stopped")
	return nil
}

// RunCycle executes one poll cycle: fetch up to batchSize pending events
// oldest first, deliver each to its handlers, stamp each processed. A fetch
// failure abandons the cycle; the rows are untouched and retried next tick.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	txn := d.tracer.StartTransaction("dispatch-cycle")
	defer d.tracer.EndTransaction(txn)

	d.metrics.IncrementCounter(metrics.CounterDispatchCycles)

	span := d.tracer.StartSpan("poll-pending-events", txn)
	events, err := d.source.GetUnprocessed(ctx, d.batchSize)
	span.End()

	if err != nil {
		d.tracer.RecordError(txn, err)
		d.metrics.RecordError("dispatch.poll")
		return errors.Wrap(err, "failed to fetch pending outbox events")
	}

	d.metrics.RecordSuccess("dispatch.poll")
	d.metrics.SetGauge(metrics.GaugePendingBatchSize, int64(len(events)))

	if len(events) == 0 {
		return nil
	}

	log.Debug().Int("count", len(events)).Msg("Dispatching pending outbox events")

	for i := range events {
		event := &events[i]

		d.deliver(ctx, txn, event)

		// Stamped regardless of handler outcome: failed handler executions
		// are counted, not retried.
		if err := d.source.MarkProcessed(ctx, event.ID); err != nil {
			d.tracer.RecordError(txn, err)
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("Failed to mark outbox event as processed")
			continue
		}

		d.metrics.IncrementCounter(metrics.CounterEventsProcessed)
	}

	return nil
}

// deliver invokes each registered handler for the event in registration
// order. Handler errors are contained here: logged and counted, never
// propagated, so one failing handler cannot stall the batch.
func (d *Dispatcher) deliver(ctx context.Context, txn *newrelic.Transaction, event *models.OutboxEvent) {
	handlers := d.registry.Handlers(event.EventType)
	if len(handlers) == 0 {
		// Unregistered event types are expected as the platform evolves
		d.metrics.IncrementCounter(metrics.CounterUnregistered)
		log.Debug().
			Str("event_type", event.EventType).
			Msg("No workflow handlers registered for event type")
		return
	}

	for i, handler := range handlers {
		if err := d.invoke(ctx, handler, event.Payload); err != nil {
			d.metrics.IncrementCounter(metrics.CounterHandlerErrors)
			d.tracer.RecordError(txn, err)
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Int("handler_index", i).
				Msg("Workflow handler failed")
		}
	}
}

// invoke runs a single handler, converting a panic into an error so a
// misbehaving handler cannot crash the dispatcher
func (d *Dispatcher) invoke(ctx context.Context, handler workflow.Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panicked: %v", r)
		}
	}()

	return handler(ctx, payload)
}
