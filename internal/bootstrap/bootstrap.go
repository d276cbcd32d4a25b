package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	captureinadapter "recvault/internal/modules/capture/adapter/in"
	captureoutadapter "recvault/internal/modules/capture/adapter/out"
	captureservice "recvault/internal/modules/capture/service"
	captureusecase "recvault/internal/modules/capture/usecase"
	cataloginadapter "recvault/internal/modules/catalog/adapter/in"
	catalogoutadapter "recvault/internal/modules/catalog/adapter/out"
	catalogout "recvault/internal/modules/catalog/port/out"
	catalogservice "recvault/internal/modules/catalog/service"
	deliveryoutadapter "recvault/internal/modules/delivery/adapter/out"
	deliverydomain "recvault/internal/modules/delivery/domain"
	deliverydto "recvault/internal/modules/delivery/dto"
	deliveryout "recvault/internal/modules/delivery/port/out"
	deliveryservice "recvault/internal/modules/delivery/service"
	lifecycleinadapter "recvault/internal/modules/lifecycle/adapter/in"
	lifecycleoutadapter "recvault/internal/modules/lifecycle/adapter/out"
	lifecycleservice "recvault/internal/modules/lifecycle/service"
	recoveryinadapter "recvault/internal/modules/recovery/adapter/in"
	recoveryoutadapter "recvault/internal/modules/recovery/adapter/out"
	recoveryservice "recvault/internal/modules/recovery/service"
	recoveryusecase "recvault/internal/modules/recovery/usecase"
	"recvault/internal/platform/clock"
	"recvault/internal/platform/config"
	"recvault/internal/platform/id"
	"recvault/internal/platform/logging"
	"recvault/internal/platform/tx"
	uiapp "recvault/internal/ui/app"
)

// maxChunkBytes bounds one HTTP or WebSocket chunk.
const maxChunkBytes = 4 << 20

type App struct {
	Config config.Config

	CatalogCLI  cataloginadapter.CLIHandler
	CaptureCLI  captureinadapter.CLIHandler
	RecoveryCLI recoveryinadapter.CLIHandler
	Signals     *lifecycleinadapter.SignalHandler
	// Health is nil when the gate is configured as always open.
	Health *deliveryoutadapter.HealthGate

	captureHTTP   *captureinadapter.HTTPHandler
	recoveryHTTP  *recoveryinadapter.HTTPHandler
	lifecycleHTTP *lifecycleinadapter.HTTPHandler

	queue   *deliveryservice.Queue
	buffer  *captureservice.Buffer
	backend catalogout.Backend
	log     logging.Logger
}

// New wires every module and runs the startup recovery scan, so capture is
// open for business once it returns.
func New(ctx context.Context, cfg config.Config, logger logging.Logger) (*App, error) {
	clk := clock.SystemClock{}

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	store := catalogservice.NewCatalogService(backend, tx.NewMutexManager(), clk, logger, catalogservice.Options{
		MaxBackups:        cfg.Catalog.MaxBackups,
		MaxBytes:          cfg.Catalog.MaxBytes,
		EmergencyMaxBytes: cfg.Catalog.EmergencyMaxBytes,
	})

	policy, ok := deliverydomain.PolicyByName(cfg.Delivery.Policy)
	if !ok {
		_ = backend.Close()
		return nil, fmt.Errorf("unknown delivery policy %q", cfg.Delivery.Policy)
	}
	policy = tunePolicy(policy, cfg.Delivery)
	policy.MaxAttempts = cfg.Delivery.MaxAttempts()
	resumePolicy := tunePolicy(deliverydomain.BackgroundPolicy(), cfg.Delivery)
	if cfg.Delivery.MaxRetries > 0 {
		resumePolicy.MaxAttempts = cfg.Delivery.MaxRetries
	}

	var (
		gate   deliveryout.Gate
		health *deliveryoutadapter.HealthGate
	)
	switch cfg.Delivery.Gate {
	case "always":
		gate = deliveryoutadapter.StaticGate(true)
	default:
		health = deliveryoutadapter.NewHealthGate(cfg.Delivery.Endpoint, cfg.Delivery.HealthPath,
			cfg.Delivery.HealthInterval, cfg.Delivery.HealthTimeout, logger)
		gate = health
	}

	queue := deliveryservice.NewQueue(
		store,
		deliveryoutadapter.NewHTTPTransport(cfg.Delivery.Endpoint, cfg.Delivery.SubmitPath, cfg.Delivery.ChunkPath),
		gate,
		deliveryoutadapter.NewFileExporter(cfg.ExportDir, clk),
		clk,
		clk,
		logger,
		deliveryservice.Options{
			Mode:              deliverydomain.Mode(cfg.Delivery.Mode),
			Policy:            policy,
			ResumePolicy:      resumePolicy,
			EmergencyMaxBytes: cfg.Catalog.EmergencyMaxBytes,
		},
	)

	recoveryUC := recoveryusecase.NewInteractor(
		recoveryservice.NewRecoveryService(recoveryoutadapter.NewFileArtifactStore(), logger),
		store,
		queue,
		logger,
	)
	if _, err := recoveryUC.Scan(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("recovery scan: %w", err)
	}

	buffer := captureservice.NewBuffer(store, captureoutadapter.NewQueueSink(queue), clk, id.UUID{}, logger, captureservice.Options{
		AutosaveInterval: cfg.Capture.AutosaveInterval,
	})
	captureUC := captureusecase.NewInteractor(buffer, recoveryUC)

	guard := lifecycleservice.NewGuard(lifecycleoutadapter.NewCaptureFlusher(captureUC), logger)

	return &App{
		Config:        cfg,
		CatalogCLI:    cataloginadapter.NewCLIHandler(store),
		CaptureCLI:    captureinadapter.NewCLIHandler(captureUC),
		RecoveryCLI:   recoveryinadapter.NewCLIHandler(recoveryUC),
		Signals:       lifecycleinadapter.NewSignalHandler(guard, lifecycleinadapter.DefaultConfirmWindow, logger),
		Health:        health,
		captureHTTP:   captureinadapter.NewHTTPHandler(captureUC, maxChunkBytes, logger),
		recoveryHTTP:  recoveryinadapter.NewHTTPHandler(recoveryUC),
		lifecycleHTTP: lifecycleinadapter.NewHTTPHandler(guard),
		queue:         queue,
		buffer:        buffer,
		backend:       backend,
		log:           logger,
	}, nil
}

// Run starts the delivery worker and capture forwarder, then keeps the
// health gate polling until ctx ends. It returns only after both workers
// have stopped, so Shelve may follow it.
func (a *App) Run(ctx context.Context) error {
	a.queue.Start(ctx)
	a.buffer.Start(ctx)
	defer a.queue.Wait()
	defer a.buffer.Wait()
	if a.Health == nil {
		<-ctx.Done()
		return nil
	}
	return a.Health.Run(ctx)
}

// Router mounts every HTTP surface on one chi router.
func (a *App) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a.log))
	a.captureHTTP.RegisterRoutes(r)
	a.recoveryHTTP.RegisterRoutes(r)
	a.lifecycleHTTP.RegisterRoutes(r)
	return r
}

// Serve runs the app and its HTTP surface until ctx ends, then drains the
// server within the grace period.
func (a *App) Serve(ctx context.Context, listen string, grace time.Duration) error {
	server := newServer(listen, a.Router())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	g.Go(func() error {
		a.log.Infow("http listening", "addr", listen)
		return listenAndServe(server)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), grace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// CheckEndpoint probes the processing endpoint once, whatever gate is
// configured.
func (a *App) CheckEndpoint(ctx context.Context) bool {
	probe := a.Health
	if probe == nil {
		d := a.Config.Delivery
		probe = deliveryoutadapter.NewHealthGate(d.Endpoint, d.HealthPath, d.HealthInterval, d.HealthTimeout, a.log)
	}
	return probe.Check(ctx)
}

// Shelve records every undelivered payload as abandoned so it survives exit.
// Call it after Run has returned.
func (a *App) Shelve(ctx context.Context) []string {
	return a.queue.Shelve(ctx, "host exited before delivery")
}

// Drain waits for queued deliveries to settle, bounded by ctx.
func (a *App) Drain(ctx context.Context) error {
	return a.queue.WaitIdle(ctx)
}

func (a *App) Stats() deliverydto.QueueStats {
	return a.queue.Stats()
}

func (a *App) Close() error {
	return a.backend.Close()
}

func RunTUI(app *App) error {
	model := uiapp.NewModel(app.RecoveryCLI, app.Config.ExportDir)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func newBackend(cfg config.Config) (catalogout.Backend, error) {
	switch cfg.Catalog.Backend {
	case "file":
		backend, err := catalogoutadapter.NewFileBackend(filepath.Join(cfg.DataDir, "catalog"), cfg.Catalog.QuotaBytes)
		if err != nil {
			return nil, fmt.Errorf("new file backend: %w", err)
		}
		return backend, nil
	default:
		backend, err := catalogoutadapter.NewSQLiteBackend(cfg.DBPath, cfg.Catalog.QuotaBytes)
		if err != nil {
			return nil, fmt.Errorf("new sqlite backend: %w", err)
		}
		return backend, nil
	}
}

func tunePolicy(p deliverydomain.Policy, cfg config.DeliveryConfig) deliverydomain.Policy {
	p.BaseDelay = cfg.BaseDelay
	p.CapDelay = cfg.CapDelay
	p.TransferTimeout = cfg.TransferTimeout
	p.GateRetry = cfg.GateRetry
	return p
}
