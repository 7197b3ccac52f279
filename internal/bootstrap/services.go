package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/conveyorhq/conveyor/config"
	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/data"
	"github.com/conveyorhq/conveyor/internal/realtime"
	"github.com/conveyorhq/conveyor/internal/service"
)

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// ServiceDeps groups the shared infrastructure the service container needs.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// ServiceContainer holds all constructed services and their shared broker
// handles.
type ServiceContainer struct {
	Auth      *service.AuthService
	Keys      *service.APIKeyService
	Jobs      *service.JobService
	Schedules *service.SchedulerService
	Flows     *service.FlowService
	Webhooks  *service.WebhookService
	Dashboard *service.DashboardService

	Demux         *service.EventDemux
	WebhookWorker *service.WebhookWorker

	Broker   *broker.Client
	Registry *broker.Registry
	Hub      *realtime.Hub
}

// NewServices constructs the full service container over the shared database
// and broker connections.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	users := data.NewUserRepo(deps.DB)
	keys := data.NewAPIKeyRepo(deps.DB)
	webhooks := data.NewWebhookRepo(deps.DB)
	flows := data.NewFlowRepo(deps.DB)

	brokerClient := broker.NewClient(deps.RedisClient)
	registry := broker.NewRegistry(brokerClient, cfg.Queues.Names)
	hub := realtime.NewHub(realtime.HubOptions{Logger: logger})

	authSvc, err := service.NewAuthService(service.AuthServiceOptions{
		Users:  users,
		Config: cfg.Auth,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("auth service: %w", err)
	}

	keySvc, err := service.NewAPIKeyService(service.APIKeyServiceOptions{
		Keys:   keys,
		Config: cfg.Auth,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("api key service: %w", err)
	}

	jobSvc, err := service.NewJobService(service.JobServiceOptions{
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("job service: %w", err)
	}

	scheduleSvc, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("scheduler service: %w", err)
	}

	flowSvc, err := service.NewFlowService(service.FlowServiceOptions{
		Repo:     flows,
		Broker:   brokerClient,
		Registry: registry,
		Emitter:  hub,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("flow service: %w", err)
	}

	webhookSvc, err := service.NewWebhookService(service.WebhookServiceOptions{
		Webhooks: webhooks,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("webhook service: %w", err)
	}

	dashboardSvc, err := service.NewDashboardService(service.DashboardOptions{
		Registry: registry,
		Webhooks: webhooks,
		Logger:   logger,
	}, service.DashboardConfig{
		PrimaryQueue:   config.QueueJobs,
		SchedulerQueue: config.QueueScheduled,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("dashboard service: %w", err)
	}

	demux, err := service.NewEventDemux(service.EventDemuxOptions{
		Registry: registry,
		Emitter:  hub,
		Logger:   logger,
	}, service.EventDemuxConfig{
		SourceQueue:  config.QueueJobs,
		WebhookQueue: config.QueueWebhooks,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("event demux: %w", err)
	}

	webhookWorker, err := service.NewWebhookWorker(service.WebhookWorkerOptions{
		Webhooks: webhooks,
		Users:    users,
		Logger:   logger,
	}, cfg.Webhooks)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("webhook worker: %w", err)
	}

	return ServiceContainer{
		Auth:          authSvc,
		Keys:          keySvc,
		Jobs:          jobSvc,
		Schedules:     scheduleSvc,
		Flows:         flowSvc,
		Webhooks:      webhookSvc,
		Dashboard:     dashboardSvc,
		Demux:         demux,
		WebhookWorker: webhookWorker,
		Broker:        brokerClient,
		Registry:      registry,
		Hub:           hub,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. This function blocks until a shutdown signal is received or a
// service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}

	var httpServer *http.Server
	if enabledServices[config.ServiceModeHTTP] {
		httpServer = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
	}

	backgrounds := startBackgroundServices(deps, []backgroundService{
		newEventDemuxBackgroundService(deps),
		newWebhookWorkerBackgroundService(deps),
		newSchedulerBackgroundService(deps),
	})

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		hub:         cfg.Services.Hub,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

func newEventDemuxBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeEventDemux,
		name: "event demux",
		start: func(ctx context.Context) error {
			return deps.cfg.Services.Demux.Run(ctx)
		},
	}
}

func newWebhookWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWebhookWorker,
		name: "webhook worker",
		start: func(ctx context.Context) error {
			queue, err := deps.cfg.Services.Registry.Queue(config.QueueWebhooks)
			if err != nil {
				return err
			}
			worker, err := broker.NewWorker(broker.WorkerOptions{
				Queue:   queue,
				Handler: deps.cfg.Services.WebhookWorker.Handler(),
				Logger:  deps.logger,
			})
			if err != nil {
				return err
			}
			return worker.Run(ctx)
		},
	}
}

// newSchedulerBackgroundService runs one scheduler loop per allowed queue, so
// recurring schedules fire regardless of which queue hosts them.
func newSchedulerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "scheduler",
		start: func(ctx context.Context) error {
			tick := deps.cfg.Config.Queues.SchedulerTick
			group, groupCtx := errgroup.WithContext(ctx)
			for _, name := range deps.cfg.Config.Queues.Names {
				scheduler, err := deps.cfg.Services.Registry.Scheduler(name)
				if err != nil {
					return err
				}
				group.Go(func() error {
					return scheduler.Run(groupCtx, tick, deps.logger)
				})
			}
			if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	handles := make([]backgroundServiceHandle, 0, len(services))
	for _, svc := range services {
		done := launchBackground(deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{name: svc.name, done: done})
	}
	return handles
}

func launchBackground(deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(deps.ctx); err != nil && !errors.Is(err, context.Canceled) {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-deps.ctx.Done():
			default:
				deps.logger.WarnContext(deps.ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(deps.ctx, "background service started",
		"service", descriptor.name, "mode", descriptor.mode)
	return done
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	hub         *realtime.Hub
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
	defer cancel()

	if cfg.hub != nil {
		if err := cfg.hub.Shutdown(shutdownCtx); err != nil {
			cfg.logger.Warn("websocket hub shutdown", "error", err)
		}
	}

	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
