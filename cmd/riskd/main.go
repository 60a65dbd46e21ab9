package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"academic-risk/internal/api"
	"academic-risk/internal/cfg"
	"academic-risk/internal/dashboard"
	"academic-risk/internal/dataset"
	"academic-risk/internal/engine"
	"academic-risk/internal/metrics"
	"academic-risk/internal/ml"
	"academic-risk/internal/storage"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store := initializeStorage(c)
	var recorder *storage.Recorder
	if store != nil {
		defer store.Close()
		recorder = storage.NewRecorder(store, c.HistoryQueue)
	}

	var rd *dashboard.RiskDashboard
	if c.DashboardEnabled {
		rd = dashboard.NewRiskDashboard(nil, mw, c.DashboardInterval)
	}

	e := initializeEngine(c, store, recorder, rd, mw)
	if rd != nil {
		rd.SetModelSource(e)
	}
	if err := e.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("engine start failed")
	}

	pool := engine.NewPool(c.Workers, c.QueueSize)
	d := engine.NewDispatcher(e, pool)

	apiCfg := api.Config{
		Port:           c.Port,
		MetricsPath:    c.MetricsPath,
		RequestTimeout: c.RequestTimeout,
		RateLimit:      c.RateLimit,
		RateBurst:      c.RateBurst,
		Metrics:        mw,
	}
	if store != nil {
		apiCfg.History = store
	}
	server := api.NewServer(apiCfg, d)

	if rd != nil {
		rd.Register(server.Router())
		if err := rd.Start(); err != nil {
			log.Fatal().Err(err).Msg("dashboard start failed")
		}
	}

	var wg sync.WaitGroup
	scheduler := startRetrainScheduler(ctx, c, d)
	startModelAgeReporter(ctx, &wg, e, mw)
	startServer(server, cancel)

	waitForShutdown(ctx, cancel, &wg)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown API server")
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if rd != nil {
		rd.Stop()
	}
	pool.Stop()
	if recorder != nil {
		recorder.Close()
		if dropped := recorder.Dropped(); dropped > 0 {
			log.Warn().Int64("dropped", dropped).Msg("Prediction history records dropped")
		}
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// initializeStorage initializes storage if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		log.Info().Msg("DATA_PATH not set, models and prediction history are not persisted")
		return nil
	}
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Warn().Err(err).Msg("failed to create data directory, continuing without persistence")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

func initializeEngine(c cfg.Settings, store *storage.Store, recorder *storage.Recorder, rd *dashboard.RiskDashboard, mw *metrics.MetricsWrapper) *engine.Engine {
	strategy, err := engine.ParseStrategy(c.Strategy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid prediction strategy")
	}

	ecfg := engine.Config{
		Strategy:   strategy,
		AutoTrain:  c.AutoTrain,
		RangeCheck: c.RangeCheck,
		CacheTTL:   c.CacheTTL,
		Trainer: ml.TrainerConfig{
			ForestTrees:      c.ForestTrees,
			ForestMaxDepth:   c.ForestMaxDepth,
			BoostingStages:   c.BoostingStages,
			BoostingMaxDepth: c.BoostingMaxDepth,
			LearningRate:     c.LearningRate,
			Seed:             c.Seed,
		},
	}

	opts := []engine.Option{
		engine.WithMetrics(mw),
		engine.WithDatasetSource(rollingSource(c.TrainingSamples, c.Seed)),
	}
	if store != nil {
		opts = append(opts, engine.WithStore(store))
	}
	if recorder != nil {
		opts = append(opts, engine.WithObserver(recorder))
	}
	if rd != nil {
		opts = append(opts, engine.WithObserver(rd))
	}
	return engine.New(ecfg, opts...)
}

// rollingSource generates a fresh synthetic dataset on every call so that
// scheduled retrains do not refit identical data.
func rollingSource(n int, seed int64) engine.DatasetSource {
	var calls atomic.Int64
	return func(kind ml.Kind) (*ml.Dataset, error) {
		s := seed + calls.Add(1) - 1
		return dataset.Synthetic(n, s)(kind)
	}
}

// startRetrainScheduler retrains every kind on the configured cron schedule.
func startRetrainScheduler(ctx context.Context, c cfg.Settings, d *engine.Dispatcher) *cron.Cron {
	if c.RetrainSchedule == "" {
		return nil
	}
	if d.Engine().Strategy() == engine.StrategyRules {
		log.Info().Msg("Rule-based strategy configured, retrain schedule ignored")
		return nil
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(c.RetrainSchedule, func() {
		for _, k := range ml.Kinds {
			res, err := d.Retrain(ctx, k, nil)
			if err != nil {
				log.Error().Err(err).Str("kind", string(k)).Msg("Scheduled retrain failed")
				continue
			}
			log.Info().
				Str("kind", string(k)).
				Str("model_version", res.Version).
				Float64("test_rmse", res.Metrics.TestRMSE).
				Msg("Scheduled retrain completed")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("schedule", c.RetrainSchedule).Msg("Invalid retrain schedule")
		return nil
	}
	scheduler.Start()
	log.Info().Str("schedule", c.RetrainSchedule).Msg("Retrain scheduler started")
	return scheduler
}

// startModelAgeReporter keeps the model age gauge current.
func startModelAgeReporter(ctx context.Context, wg *sync.WaitGroup, e *engine.Engine, mw *metrics.MetricsWrapper) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, info := range e.ModelInfo() {
					if info.TrainedAt != nil {
						mw.ModelAgeSet(string(info.Kind), time.Since(*info.TrainedAt).Seconds())
					}
				}
			}
		}
	}()
}

func startServer(server *api.Server, cancel context.CancelFunc) {
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
