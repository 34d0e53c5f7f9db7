package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/bizops/services/crm/config"
	"example.com/bizops/services/crm/internal/cache"
	"example.com/bizops/services/crm/internal/database"
	"example.com/bizops/services/crm/internal/dispatch"
	"example.com/bizops/services/crm/internal/messaging"
	"example.com/bizops/services/crm/internal/metrics"
	"example.com/bizops/services/crm/internal/repositories"
	"example.com/bizops/services/crm/internal/search"
	"example.com/bizops/services/crm/internal/tracing"
	"example.com/bizops/services/crm/internal/workflow"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that dispatches outbox events to workflow handlers`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connection
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
	}

	// Initialize Azure Service Bus client
	azureBus, err := messaging.NewServiceBusClient(cfg.Azure)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus client, continuing without integration events")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Build the workflow registry. Registration happens here, before the
	// dispatcher starts; the registry is immutable afterwards.
	registry := workflow.NewRegistry()
	if elasticClient != nil {
		registry.Register(workflow.EventDealCreated, workflow.NewDealIndexHandler(elasticClient))
		registry.Register(workflow.EventDealUpdated, workflow.NewDealIndexHandler(elasticClient))
	}
	if redisCache != nil {
		registry.Register(workflow.EventDealUpdated, workflow.NewDealCacheInvalidationHandler(redisCache))
	}
	if azureBus != nil {
		registry.Register(workflow.EventDealCreated, workflow.NewIntegrationPublishHandler(azureBus, workflow.EventDealCreated))
		registry.Register(workflow.EventProjectCreated, workflow.NewIntegrationPublishHandler(azureBus, workflow.EventProjectCreated))
	}

	// Initialize the dispatcher
	outboxRepo := repositories.NewOutboxRepository(db)
	dispatcher := dispatch.NewDispatcher(outboxRepo, registry, metricsCollector, tracer, cfg.Dispatch)

	g.Go(func() error {
		log.Info().Msg("Starting outbox dispatcher")

		// Drain any backlog left over from before the last shutdown, then
		// fall into the interval loop
		if err := dispatcher.RunCycle(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to process outbox backlog at startup")
		}

		if err := dispatcher.Start(); err != nil {
			return err
		}

		// Wait for context cancellation
		<-ctx.Done()

		return dispatcher.Stop()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
