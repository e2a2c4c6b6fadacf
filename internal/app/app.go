package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"emotionserver/internal/config"
	"emotionserver/internal/logger"
	"emotionserver/internal/metrics"
	"emotionserver/internal/repository"
	"emotionserver/internal/repository/postgres"
	"emotionserver/internal/repository/sqlite"
	"emotionserver/internal/route"
	"emotionserver/internal/service"
	"emotionserver/internal/service/ai"
	"emotionserver/internal/service/emotion"
	"emotionserver/internal/service/live"
	"emotionserver/internal/service/storage"
	"emotionserver/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	locator    ai.FaceLocator
	model      *ai.EmotionModel
	pipeline   *emotion.Pipeline
	repo       repository.PredictionRepository
	hubService *websocket.HubService
	metrics    *metrics.Manager
	manager    *service.Manager
}

// NewApp loads the model and the face locator, opens the history store and
// wires the manager. A model that fails to load is fatal.
func NewApp(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*App, error) {
	a := &App{config: cfg, logger: logger, metrics: metrics.NewManager()}

	var err error
	a.locator, a.model, a.pipeline, err = NewPipeline(cfg, logger, a.metrics)
	if err != nil {
		return nil, err
	}

	repo, err := OpenRepository(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.repo = repo

	a.hubService = websocket.NewHubService(logger)
	a.manager = service.NewManager(a.pipeline, a.repo, a.hubService, a.metrics, logger)
	a.manager.SetMaxFramePixels(cfg.MaxFramePixels)
	return a, nil
}

// NewPipeline loads the locator and the classifier. observer may be nil.
func NewPipeline(cfg *config.Config, logger *logger.Logger, observer emotion.Observer) (ai.FaceLocator, *ai.EmotionModel, *emotion.Pipeline, error) {
	locator, err := ai.NewLocator(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	model, err := ai.NewModel(cfg, logger)
	if err != nil {
		locator.Close()
		return nil, nil, nil, err
	}

	opts := []emotion.Option{emotion.WithNormalizer(emotion.NewNormalizer(cfg.InputWidth, cfg.InputHeight))}
	if observer != nil {
		opts = append(opts, emotion.WithObserver(observer))
	}
	return locator, model, emotion.NewPipeline(locator, model, opts...), nil
}

// OpenRepository opens the store selected by cfg.DBDriver.
func OpenRepository(ctx context.Context, cfg *config.Config) (repository.PredictionRepository, error) {
	if strings.EqualFold(cfg.DBDriver, "postgres") {
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	repo, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// OpenSource opens a UDP listener for "udp://" devices and a capture device otherwise.
func OpenSource(cfg *config.Config, logger *logger.Logger) (live.FrameSource, io.Closer, error) {
	if live.IsUDPDevice(cfg.CameraDevice) {
		src, err := live.ListenUDP(cfg.CameraDevice, logger)
		if err != nil {
			return nil, nil, err
		}
		src.SetMaxFramePixels(cfg.MaxFramePixels)
		return src, src, nil
	}
	src, err := ai.OpenCapture(cfg.CameraDevice, logger)
	if err != nil {
		return nil, nil, err
	}
	return src, src, nil
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hubService.Run(ctx)
	}()

	if a.config.CameraEnabled {
		source, closer, err := OpenSource(a.config, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open camera: %w", err)
		}
		defer closer.Close()

		renderers := []live.Renderer{live.NewBroadcastRenderer(a.hubService, ai.AnnotateJPEG, a.config.CameraName)}
		if a.config.CameraRecordInterval > 0 {
			buffer := storage.NewBufferService(a.config.CameraName, a.manager, a.logger)
			renderers = append(renderers, buffer)
			wg.Add(1)
			go func() {
				defer wg.Done()
				buffer.Run(ctx, a.config.CameraRecordInterval)
			}()
		}
		loop := live.NewLoop(source, a.manager, a.config.Mirror, a.logger, renderers...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop.Run(ctx); err != nil {
				a.logger.Error("Live loop stopped: %v", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              a.config.Addr,
		Handler:           route.SetupRoutes(a.manager, a.config, a.logger, a.metrics),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.config.RequestTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Emotion server listening on %s", a.config.Addr)
		a.logger.Info("Model: %s (%dx%d %s), labels %v", a.config.ModelPath, a.config.InputWidth, a.config.InputHeight, a.config.InputLayout, a.config.Labels)
		a.logger.Info("Detector: %s, history: %s", a.config.Detector, a.config.DBDriver)
		errCh <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.logger.Info("Shutting down")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during shutdown: %v", err)
	}
	wg.Wait()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

func (a *App) Manager() *service.Manager {
	return a.manager
}

// Close releases the model, the locator and the store.
func (a *App) Close() error {
	var errs []error
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	if a.model != nil {
		errs = append(errs, a.model.Close())
	}
	if a.locator != nil {
		errs = append(errs, a.locator.Close())
	}
	return errors.Join(errs...)
}
