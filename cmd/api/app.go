package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/audioscribe/speakerhub/internal/api/handlers"
	"github.com/audioscribe/speakerhub/internal/api/middleware"
	"github.com/audioscribe/speakerhub/internal/config"
	"github.com/audioscribe/speakerhub/internal/datatypes"
	"github.com/audioscribe/speakerhub/internal/models"
	"github.com/audioscribe/speakerhub/internal/observability"
	"github.com/audioscribe/speakerhub/internal/repository"
	"github.com/audioscribe/speakerhub/internal/service"
	"github.com/audioscribe/speakerhub/internal/workers"
	"github.com/audioscribe/speakerhub/pkg/cache"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	publisher      *service.MessagePublisherManager
	sweeper        *workers.PendingSweeper
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

const riverQueueDepthInterval = 15 * time.Second

// Relabel passes walk the whole outstanding set, so running them one at a
// time keeps scan load bounded.
const relabelMaxWorkers = 1

// Retries for enqueueing webhook dispatch jobs; delivery retries are River's.
const webhookEnqueueMaxRetries = 2

const (
	profileNameCacheSize = 4096
	webhookListCacheSize = 64
	webhookByIDCacheSize = 512
)

// setupMetrics creates the meter provider and instruments when metrics are enabled.
// The returned handler serves Prometheus scrapes; it is nil for non-Prometheus exporters.
// When NewMeterProvider returns nil (unsupported or disabled exporter), returns all nils (metrics disabled).
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	mp, promHandler, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("speakerhub"))
	if err != nil {
		err2 := observability.ShutdownMeterProvider(context.Background(), mp)
		if err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, promHandler, metrics, nil
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err           error
		meterProvider *sdkmetric.MeterProvider
		promHandler   http.Handler
		metrics       *observability.Metrics
	)

	if cfg.OtelMetricsExporter == "" || cfg.OtelMetricsExporter == "none" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or none)")
	} else {
		meterProvider, promHandler, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var (
		eventMetrics      observability.EventMetrics
		webhookMetrics    observability.WebhookMetrics
		cacheMetrics      observability.CacheMetrics
		apiMetrics        observability.APIMetrics
		resolutionMetrics observability.ResolutionMetrics
		mergeMetrics      observability.MergeMetrics
	)
	if metrics != nil {
		eventMetrics = metrics.Events
		webhookMetrics = metrics.Webhooks
		cacheMetrics = metrics.Cache
		apiMetrics = metrics.API
		resolutionMetrics = metrics.Resolution
		mergeMetrics = metrics.Merge
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" || cfg.OtelTracesExporter == "none" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or none)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			if meterProvider != nil {
				if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
					slog.Error("shutdown meter provider after tracer provider error", "error", err2)
				}
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Install TraceContextHandler unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(defaultHandler)))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	publisher := service.NewMessagePublisherManager(service.MessagePublisherConfig{
		BufferSize:      cfg.MessagePublisherBufferSize,
		PerEventTimeout: cfg.MessagePublisherPerEventTimeout,
		Metrics:         eventMetrics,
	})

	mediaRepo := repository.NewMediaItemsRepository(db)
	profilesRepo := repository.NewProfilesRepository(db)
	speakersRepo := repository.NewFileSpeakersRepository(db)
	voiceprintsRepo := repository.NewVoiceprintsRepository(db)
	segmentsRepo := repository.NewTranscriptSegmentsRepository(db)

	listCache, err := cache.NewLoaderCache[datatypes.EventType, []models.Webhook](
		webhookListCacheSize, datatypes.EventType.String)
	if err != nil {
		return nil, fmt.Errorf("create webhook list cache: %w", err)
	}

	byIDCache, err := cache.NewLoaderCache[uuid.UUID, *models.Webhook](
		webhookByIDCacheSize, uuid.UUID.String)
	if err != nil {
		return nil, fmt.Errorf("create webhook by-id cache: %w", err)
	}

	webhooksRepo := service.NewCachingWebhooksRepository(
		repository.NewWebhooksRepository(db), listCache, byIDCache, cacheMetrics)

	namesCache, err := cache.NewLoaderCache[uuid.UUID, *string](profileNameCacheSize, uuid.UUID.String)
	if err != nil {
		return nil, fmt.Errorf("create profile name cache: %w", err)
	}

	names := service.NewProfileNames(profilesRepo, namesCache, cacheMetrics)
	redirects := service.NewMergeRedirects(cfg.MergeRedirectTTL)

	matcher := service.NewMatcher(voiceprintsRepo, service.MatcherConfig{
		EmbeddingDim:      cfg.EmbeddingDim,
		BaseTimeout:       cfg.MatcherBaseTimeout,
		PerProfileTimeout: cfg.MatcherPerProfileTimeout,
		BatchSize:         cfg.MatcherBatchSize,
	}, resolutionMetrics)

	thresholds := service.Thresholds{
		Accept:  cfg.MatchAcceptThreshold,
		Suggest: cfg.MatchSuggestThreshold,
	}

	resolver := service.NewResolver(matcher, speakersRepo, profilesRepo,
		redirects, names, publisher, thresholds, resolutionMetrics, mergeMetrics)
	relabeler := service.NewRelabeler(matcher, speakersRepo, profilesRepo,
		redirects, names, publisher, thresholds, cfg.RelabelBatchSize, resolutionMetrics, mergeMetrics)

	// One limiter across all resolution workers so concurrency stays a knob
	// separate from corpus scan rate.
	var limiter *rate.Limiter
	if cfg.ResolutionRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ResolutionRatePerSecond), cfg.ResolutionRatePerSecond)
	}

	webhookSender := service.NewWebhookSenderImpl(webhooksRepo, nil)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewSpeakerResolutionWorker(speakersRepo, resolver, limiter, resolutionMetrics))
	river.AddWorker(riverWorkers, workers.NewProfileRelabelWorker(profilesRepo, relabeler, resolutionMetrics))
	river.AddWorker(riverWorkers, workers.NewWebhookDispatchWorker(webhooksRepo, webhookSender, webhookMetrics))

	queues := map[string]river.QueueConfig{
		river.QueueDefault:          {MaxWorkers: cfg.WebhookDeliveryMaxConcurrent},
		service.ResolutionQueueName: {MaxWorkers: cfg.ResolutionMaxConcurrent},
		service.RelabelQueueName:    {MaxWorkers: relabelMaxWorkers},
	}

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues:       queues,
		Workers:      riverWorkers,
		ErrorHandler: &workers.JobErrorHandler{},
	})
	if err != nil {
		publisher.Shutdown()

		if tracerProvider != nil {
			if err2 := observability.ShutdownTracerProvider(context.Background(), tracerProvider); err2 != nil {
				slog.Error("shutdown tracer provider after River client error", "error", err2)
			}
		}

		if meterProvider != nil {
			if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after River client error", "error", err2)
			}
		}

		return nil, fmt.Errorf("create River client: %w", err)
	}

	dispatchInserter := service.NewRetryingWebhookDispatchInserter(riverClient,
		service.RetryingWebhookDispatchInserterConfig{
			MaxRetries: webhookEnqueueMaxRetries,
			Metrics:    webhookMetrics,
		})
	publisher.RegisterProvider(service.NewWebhookProvider(
		dispatchInserter, webhooksRepo,
		cfg.WebhookDeliveryMaxAttempts, cfg.WebhookMaxFanOutPerEvent,
		webhookMetrics,
	))

	mediaService := service.NewMediaService(mediaRepo, speakersRepo, riverClient,
		cfg.EmbeddingDim, cfg.ResolutionMaxAttempts, resolutionMetrics)
	speakersService := service.NewSpeakersService(speakersRepo, profilesRepo,
		voiceprintsRepo, segmentsRepo, mediaRepo,
		matcher, redirects, names, publisher, riverClient, thresholds, mergeMetrics)
	profilesService := service.NewProfilesService(profilesRepo, speakersRepo, relabeler, names, publisher)
	mergeService := service.NewMergeService(profilesRepo, redirects, names, publisher, riverClient,
		service.MergeConfig{ConflictRetries: cfg.MergeConflictRetries}, mergeMetrics)
	webhooksService := service.NewWebhooksService(webhooksRepo, publisher, cfg.WebhookMaxCount)

	sweeper := workers.NewPendingSweeper(speakersRepo, riverClient,
		cfg.SweepInterval, cfg.SweepPendingAfter, cfg.SweepBatchSize,
		cfg.ResolutionMaxAttempts, resolutionMetrics)

	var verifier *standardwebhooks.Webhook

	if cfg.DiarizerWebhookSecret == "" {
		slog.Warn("diarizer signature verification not enabled (DIARIZER_WEBHOOK_SECRET unset)")
	} else {
		verifier, err = standardwebhooks.NewWebhook(cfg.DiarizerWebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("create diarizer webhook verifier: %w", err)
		}
	}

	server := newHTTPServer(cfg, apiHandlers{
		health:      handlers.NewHealthHandler(db),
		diarization: handlers.NewDiarizationHandler(mediaService, verifier),
		mediaItems:  handlers.NewMediaItemsHandler(mediaService, speakersService),
		speakers:    handlers.NewSpeakersHandler(speakersService),
		profiles:    handlers.NewProfilesHandler(profilesService, mergeService),
		webhooks:    handlers.NewWebhooksHandler(webhooksService),
	}, promHandler, apiMetrics, meterProvider, tracerProvider)

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		publisher:      publisher,
		sweeper:        sweeper,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// apiHandlers bundles the route handlers for newHTTPServer.
type apiHandlers struct {
	health      *handlers.HealthHandler
	diarization *handlers.DiarizationHandler
	mediaItems  *handlers.MediaItemsHandler
	speakers    *handlers.SpeakersHandler
	profiles    *handlers.ProfilesHandler
	webhooks    *handlers.WebhooksHandler
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and /metrics, API key on /v1/).
// Handler chain: RequestID -> otelhttp(MaxBody(Logging(mux))) so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	h apiHandlers,
	promHandler http.Handler,
	apiMetrics observability.APIMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", h.health.Check)

	// Nil when the metrics exporter is OTLP or disabled.
	if promHandler != nil {
		public.Handle("GET /metrics", promHandler)
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/diarization/results", h.diarization.Ingest)

	protected.HandleFunc("GET /v1/media-items", h.mediaItems.List)
	protected.HandleFunc("GET /v1/media-items/{id}", h.mediaItems.Get)
	protected.HandleFunc("GET /v1/media-items/{id}/suggestions", h.mediaItems.ListSuggestions)

	protected.HandleFunc("POST /v1/speakers/{id}/verify", h.speakers.Verify)
	protected.HandleFunc("GET /v1/speakers/{id}/segments", h.speakers.ListSegments)

	protected.HandleFunc("GET /v1/profiles", h.profiles.List)
	protected.HandleFunc("POST /v1/profiles/merge", h.profiles.Merge)
	protected.HandleFunc("GET /v1/profiles/{id}", h.profiles.Get)
	protected.HandleFunc("PATCH /v1/profiles/{id}", h.profiles.Update)
	protected.HandleFunc("DELETE /v1/profiles/{id}", h.profiles.Delete)
	protected.HandleFunc("GET /v1/profiles/{id}/occurrences", h.profiles.ListOccurrences)

	protected.HandleFunc("POST /v1/webhooks", h.webhooks.Create)
	protected.HandleFunc("GET /v1/webhooks", h.webhooks.List)
	protected.HandleFunc("GET /v1/webhooks/{id}", h.webhooks.Get)
	protected.HandleFunc("PATCH /v1/webhooks/{id}", h.webhooks.Update)
	protected.HandleFunc("DELETE /v1/webhooks/{id}", h.webhooks.Delete)

	protectedWithAuth := middleware.Auth(cfg.APIKey, apiMetrics)(protected)
	mux := http.NewServeMux()
	mux.Handle("/v1/", protectedWithAuth)
	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log (trace_id/span_id in access logs).
	inner := middleware.Logging(mux)
	inner = middleware.MaxBody(int64(cfg.MaxRequestBodyBytes), apiMetrics)(inner)
	handler := otelhttp.NewHandler(inner, "speakerhub-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout = 15 * time.Second
		// Rename runs its relabel pass inline, so writes get a longer budget.
		writeTimeout = 60 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server, River, the pending sweeper, and the queue depth
// poller, then blocks until ctx is cancelled (e.g. signal) or a component fails.
// When ctx is cancelled or a component fails, it cancels the internal River
// context so River, the sweeper, and the poller stop before Run returns.
// Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if a.metrics != nil && a.metrics.Events != nil {
		go runRiverQueueDepthPoller(riverCtx, a.db, a.metrics.Events)
	}

	go a.sweeper.Start(riverCtx)

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// riverDepthQueues are the queues the depth poller reports on.
var riverDepthQueues = []string{river.QueueDefault, service.ResolutionQueueName, service.RelabelQueueName}

// runRiverQueueDepthPoller periodically updates the per-queue River depth gauges.
func runRiverQueueDepthPoller(ctx context.Context, db *pgxpool.Pool, eventMetrics observability.EventMetrics) {
	ticker := time.NewTicker(riverQueueDepthInterval)
	defer ticker.Stop()

	update := func() {
		for _, queue := range riverDepthQueues {
			var count int

			err := db.QueryRow(ctx,
				`SELECT COUNT(*) FROM river_job WHERE queue = $1 AND state IN ($2, $3, $4)`,
				queue,
				rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
			).Scan(&count)
			if err != nil {
				slog.WarnContext(ctx, "river queue depth poll failed", "queue", queue, "error", err)

				continue
			}

			eventMetrics.SetRiverQueueDepth(queue, count)
		}
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server, event publisher, and River in order. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer a.publisher.Shutdown()

	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
