package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/repository/sqlite"
	"github.com/Bwilkie91/camera/internal/routes"
	"github.com/Bwilkie91/camera/internal/services"
	"github.com/Bwilkie91/camera/internal/services/alerts"
	"github.com/Bwilkie91/camera/internal/services/motion"
	"github.com/Bwilkie91/camera/internal/services/pipeline"
	"github.com/Bwilkie91/camera/internal/services/reid"
	"github.com/Bwilkie91/camera/internal/services/storage"
	"github.com/Bwilkie91/camera/internal/services/threat"
	"github.com/Bwilkie91/camera/internal/services/websocket"
)

const (
	shutdownTimeout = 15 * time.Second
	retrainWindow   = 5000 // Most recent finalized tracks used to refit the model
)

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	analytics     *config.AnalyticsStore
	hubService    *websocket.HubService
	bufferService *storage.BufferService
	predictor     *threat.Predictor
	tracks        *sqlite.TrackRepository
	mqtt          *alerts.MQTTSink
	manager       *services.Manager
	server        *http.Server
}

func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	initial, err := config.LoadAnalytics(cfg.AnalyticsConfigPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	analytics, err := config.NewAnalyticsStore(initial)
	if err != nil {
		db.Close()
		return nil, err
	}

	canonicalRepo := sqlite.NewCanonicalRepository(db)
	eventRepo := sqlite.NewEventRepository(db)
	personRepo := sqlite.NewPersonRepository(db)
	trackRepo := sqlite.NewTrackRepository(db)

	embeddings, err := reid.NewPersistentStore(context.Background(), sqlite.NewEmbeddingRepository(db), initial.ReID.SimilarityThreshold)
	if err != nil {
		db.Close()
		return nil, err
	}
	identifier := reid.NewIdentifier(embeddings, personRepo, initial.ReID.Dimension, log)

	hub := websocket.NewHubService(log)
	buffer := storage.NewBufferService(canonicalRepo, cfg.CanonicalBufferLimit, cfg.StoreTimeout, log)

	predictor := threat.NewPredictor(initial.Predictor)
	forest := threat.DefaultForestOptions()
	forest.MinSamples = max(forest.MinSamples, cfg.ModelMinSamples)
	predictor.SetForestOptions(forest)

	sinks := alerts.MultiSink{alerts.NewHubSink(hub)}
	var mqttSink *alerts.MQTTSink
	if cfg.MQTTBroker != "" {
		mqttSink, err = alerts.NewMQTTSink(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, log)
		if err != nil {
			log.Warning("⚠️ MQTT alerts disabled: %v", err)
		} else {
			sinks = append(sinks, mqttSink)
		}
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, alerts.NewWebhookSink(cfg.WebhookURL, &http.Client{Timeout: cfg.StoreTimeout}))
	}
	dispatcher := alerts.NewDispatcher(initial.Alerts, sinks, cfg.StoreTimeout, log)

	analytics.OnApply(func(a *config.Analytics) {
		predictor.SetRules(a.Predictor)
		dispatcher.SetPolicy(a.Alerts)
		embeddings.SetThreshold(a.ReID.SimilarityThreshold)
	})

	deps := pipeline.Deps{
		Config:       analytics,
		SiteID:       cfg.SiteID,
		Motion:       motion.NewDetectorService(cfg.MotionThreshold, log),
		Identity:     identifier,
		Predictor:    predictor,
		Alerts:       dispatcher,
		Events:       eventRepo,
		Canonical:    buffer,
		Tracks:       trackRepo,
		Visits:       personRepo,
		Viewers:      hub,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       log,
	}
	manager := services.NewManager(analytics, func(cameraID string) services.FrameProcessor {
		return pipeline.NewAnalyzer(cameraID, deps)
	}, log)

	a := &App{
		config:        cfg,
		logger:        log,
		db:            db,
		analytics:     analytics,
		hubService:    hub,
		bufferService: buffer,
		predictor:     predictor,
		tracks:        trackRepo,
		mqtt:          mqttSink,
		manager:       manager,
	}
	a.server = &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: routes.SetupRoutes(routes.Deps{
			Config:    cfg,
			Analytics: analytics,
			Manager:   manager,
			Hub:       hub,
			Buffer:    buffer,
			Events:    eventRepo,
			Canonical: canonicalRepo,
			Tracks:    trackRepo,
			Logger:    log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Run serves until ctx is done, then stops intake, drains the camera
// workers and flushes buffered events.
func (a *App) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bufferDone := make(chan struct{})
	go func() {
		a.bufferService.Run(bgCtx, a.config.CanonicalFlushInterval)
		close(bufferDone)
	}()
	go a.hubService.Run(bgCtx)
	go a.retrainLoop(bgCtx)

	a.logger.Info("🚀 Security event core")
	a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
	a.logger.Info("🗄️ Database: %s", a.config.DatabasePath)
	a.logger.Info("🏷️ Site: %s", a.config.SiteID)

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	a.logger.Info("🛑 Shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
	}

	a.manager.Stop()
	cancel()
	<-bufferDone

	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	return runErr
}

func (a *App) retrainLoop(ctx context.Context) {
	if a.config.ModelRetrainInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.config.ModelRetrainInterval)
	defer ticker.Stop()

	a.retrain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.retrain(ctx)
		}
	}
}

// retrain refits the anomaly model from recent finalized tracks.
func (a *App) retrain(ctx context.Context) {
	tracks, err := a.tracks.GetFinalized(ctx, retrainWindow)
	if err != nil {
		a.logger.Error("Failed to load tracks for retraining: %v", err)
		return
	}
	if len(tracks) < a.config.ModelMinSamples {
		a.logger.Info("🌲 Anomaly model needs %d tracks, have %d", a.config.ModelMinSamples, len(tracks))
		return
	}
	if err := a.predictor.Retrain(tracks); err != nil {
		a.logger.Warning("⚠️ Anomaly model retrain failed: %v", err)
		return
	}
	a.logger.Info("🌲 Anomaly model refit on %d tracks", len(tracks))
}
