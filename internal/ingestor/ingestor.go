package ingestor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"drainwatch/internal/api"
	"drainwatch/internal/broker"
	"drainwatch/internal/config"
	"drainwatch/internal/logger"
	"drainwatch/internal/metrics"
	"drainwatch/internal/models"
	"drainwatch/internal/pipeline"
	"drainwatch/internal/realtime"
	"drainwatch/internal/resilience"
	"drainwatch/internal/store"
)

// Ingestor is the high-level coordinator: broker subscription in, atomic
// writes through the pipeline, realtime fan-out back.
type Ingestor struct {
	cfg *config.Config

	repo        *store.Repository
	coordinator *pipeline.Coordinator
	cache       *pipeline.Cache
	hub         *realtime.Hub
	consumer    *broker.Consumer
	httpServer  *http.Server

	msgChan   chan *broker.Message
	dbManager *resilience.Manager

	wg        sync.WaitGroup
	workersWG sync.WaitGroup

	processed   atomic.Uint64
	failed      atomic.Uint64
	faultStreak atomic.Int32
}

func New(cfg *config.Config) *Ingestor {
	return &Ingestor{
		cfg:     cfg,
		msgChan: make(chan *broker.Message, cfg.Pipeline.QueueSize),
	}
}

// Run starts everything and blocks until ctx is cancelled, then drains
// in-flight writes before closing the store.
func (i *Ingestor) Run(ctx context.Context) error {
	log := logger.WithComponent("ingestor")
	log.Info().Msg("ingestor starting")

	db, err := store.Open(i.cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	i.repo = store.NewRepository(db)
	if err := i.seedDevices(ctx); err != nil {
		return fmt.Errorf("seed devices: %w", err)
	}

	i.coordinator = pipeline.NewCoordinator(i.repo)
	i.cache = pipeline.NewCache(i.cfg.Pipeline.CacheCapacity)
	i.hub = realtime.NewHub(func() []*pipeline.Result {
		return i.cache.Snapshot(i.cfg.Pipeline.SnapshotSize)
	})

	i.dbManager = resilience.New("database",
		i.cfg.Resilience.MaxAttempts, i.cfg.Resilience.RetryDelay, nil)
	bkManager := resilience.New("broker",
		i.cfg.Resilience.MaxAttempts, i.cfg.Resilience.RetryDelay, nil)
	i.consumer = broker.NewConsumer(i.cfg.Broker, i.msgChan, bkManager)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.hub.Run(hubCtx)
	}()

	workers := i.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 4
	}
	for w := 0; w < workers; w++ {
		i.workersWG.Add(1)
		go i.worker(ctx, w)
	}
	metrics.QueueCapacity.Set(float64(cap(i.msgChan)))
	log.Info().Int("workers", workers).Msg("pipeline workers started")

	i.initHTTPServer()
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		log.Info().Str("addr", i.cfg.Server.Addr).Msg("starting HTTP server")
		if err := i.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	consumerDone := make(chan error, 1)
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		consumerDone <- i.consumer.Run(consumerCtx)
	}()

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.reportStats(ctx)
	}()

	var runErr error
	consumerExited := false
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-consumerDone:
		// consumer only returns early when its reconnect budget is spent
		consumerExited = true
		if err != nil {
			log.Error().Err(err).Msg("broker consumer terminated")
			runErr = err
		}
	}

	// stop fetching before the queue is closed; the consumer must not be
	// mid-send when workers drain out
	stopConsumer()
	if !consumerExited {
		<-consumerDone
	}

	i.shutdown(stopHub)
	return runErr
}

// worker runs one ingestion loop: messages keep draining (and in-flight
// writes keep finishing) even during shutdown, until the channel closes.
func (i *Ingestor) worker(ctx context.Context, id int) {
	defer i.workersWG.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	for msg := range i.msgChan {
		i.handle(ctx, msg)
	}
}

// handle drives one reading to a terminal outcome and acks it. Committed
// readings and permanent failures are acked; a reading abandoned mid-retry
// at shutdown stays unacked, holding its partition's commit position so the
// broker redelivers it.
func (i *Ingestor) handle(ctx context.Context, msg *broker.Message) {
	log := logger.WithDevice("ingestor", msg.Input.DeviceID)

	result, err := i.processWithRetry(ctx, msg.Input)

	ackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case err == nil:
		i.processed.Add(1)
		i.faultStreak.Store(0)
		i.cache.Append(result)
		i.hub.Publish(result)
		if err := msg.Ack(ackCtx); err != nil {
			log.Warn().Err(err).Msg("offset commit failed after successful write")
		}

	case models.IsValidationError(err), errors.Is(err, models.ErrDeviceNotFound):
		i.failed.Add(1)
		log.Warn().Err(err).Msg("reading rejected")
		// permanent failure: redelivery cannot fix it, so consume it
		if err := msg.Ack(ackCtx); err != nil {
			log.Warn().Err(err).Msg("offset commit failed for rejected reading")
		}

	default:
		i.failed.Add(1)
		log.Error().Err(err).Msg("storage fault unresolved, leaving message for redelivery")
	}
}

// processWithRetry commits one reading, retrying storage faults in place.
// The faulted reading keeps its slot in the partition's commit order while
// it retries, so a later success can never consume its offset; the loop
// gives up only when ctx is cancelled, leaving the message unacked. Each
// fault also feeds the database escalation path.
func (i *Ingestor) processWithRetry(ctx context.Context, in *models.ReadingInput) (*pipeline.Result, error) {
	log := logger.WithDevice("ingestor", in.DeviceID)

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		result, err := i.coordinator.Process(attemptCtx, in)
		cancel()

		if err == nil || models.IsValidationError(err) || errors.Is(err, models.ErrDeviceNotFound) {
			return result, err
		}

		i.escalateStorageFault()
		log.Warn().Err(err).Int("attempt", attempt).Msg("storage fault, retrying reading")

		select {
		case <-time.After(i.retryDelay()):
		case <-ctx.Done():
			return nil, err
		}
	}
}

func (i *Ingestor) retryDelay() time.Duration {
	if d := i.cfg.Resilience.RetryDelay; d > 0 {
		return d
	}
	return 5 * time.Second
}

// escalateStorageFault treats a streak of storage faults as a lost database
// connection and runs the shared reconnect policy against it. Exhaustion is
// fatal through the manager's default hook.
func (i *Ingestor) escalateStorageFault() {
	threshold := int32(i.cfg.Pipeline.FaultEscalation)
	if threshold <= 0 {
		threshold = 3
	}
	if i.faultStreak.Add(1) < threshold {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		err := i.dbManager.Reconnect(ctx, func(ctx context.Context) error {
			return i.repo.VerifyConn(ctx)
		})
		if err == nil {
			i.faultStreak.Store(0)
		}
	}()
}

func (i *Ingestor) initHTTPServer() {
	router := api.NewRouter(api.Deps{
		BrokerConnected: i.consumer.Connected,
		Subscribers:     i.hub.Count,
		Stats: func() api.Stats {
			return api.Stats{
				Processed: i.processed.Load(),
				Failed:    i.failed.Load(),
				Queued:    len(i.msgChan),
			}
		},
		Hub: i.hub,
	})

	i.httpServer = &http.Server{
		Addr:         i.cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // /ws holds the connection open
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown drains the queue so in-flight writes finish, then takes down the
// outward-facing pieces. The consumer is already stopped by this point.
func (i *Ingestor) shutdown(stopHub context.CancelFunc) {
	log := logger.WithComponent("ingestor")
	log.Info().Msg("initiating graceful shutdown")

	// let workers finish everything already decoded
	close(i.msgChan)
	done := make(chan struct{})
	go func() {
		i.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("pipeline drained")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("pipeline drain timeout")
	}

	// stop the HTTP server and the hub
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := i.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	stopHub()

	i.wg.Wait()
	log.Info().
		Uint64("processed", i.processed.Load()).
		Uint64("failed", i.failed.Load()).
		Msg("ingestor stopped")
}

// seedDevices registers the configured manholes on first start.
func (i *Ingestor) seedDevices(ctx context.Context) error {
	if len(i.cfg.Devices) == 0 {
		return nil
	}
	n, err := i.repo.CountDevices(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log := logger.WithComponent("ingestor")
	now := time.Now().UTC()
	for _, seed := range i.cfg.Devices {
		d := &models.Device{
			ID:   seed.ID,
			Name: seed.Name,
			Location: models.Location{
				Latitude:  seed.Latitude,
				Longitude: seed.Longitude,
				Address:   seed.Address,
			},
			Status:         models.StatusNormal,
			LastInspection: now,
		}
		if err := i.repo.UpsertDevice(ctx, d); err != nil {
			return err
		}
	}
	log.Info().Int("devices", len(i.cfg.Devices)).Msg("seeded device registry")
	return nil
}

// reportStats periodically logs throughput counters.
func (i *Ingestor) reportStats(ctx context.Context) {
	log := logger.WithComponent("ingestor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.QueueSize.Set(float64(len(i.msgChan)))
			log.Info().
				Uint64("processed", i.processed.Load()).
				Uint64("failed", i.failed.Load()).
				Int("queue_size", len(i.msgChan)).
				Int("subscribers", i.hub.Count()).
				Bool("broker_connected", i.consumer.Connected()).
				Int("cache_size", i.cache.Len()).
				Msg("stats")
		}
	}
}
