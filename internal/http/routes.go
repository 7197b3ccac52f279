package httpx

import (
	"log/slog"
	"net/http"

	"github.com/conveyorhq/conveyor/internal/broker"
	"github.com/conveyorhq/conveyor/internal/realtime"
	"github.com/conveyorhq/conveyor/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth      *service.AuthService
	Keys      *service.APIKeyService
	Jobs      *service.JobService
	Schedules *service.SchedulerService
	Flows     *service.FlowService
	Webhooks  *service.WebhookService
	Dashboard *service.DashboardService
	Registry  *broker.Registry
	Hub       *realtime.Hub // Optional: websocket push is skipped when nil.
	Logger    *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	authed := RequireAuth(services.Auth, services.Keys)

	authHandlers := &AuthHandlers{Svc: services.Auth}
	jobHandlers := &JobHandlers{Svc: services.Jobs}
	scheduleHandlers := &ScheduleHandlers{Svc: services.Schedules}
	flowHandlers := &FlowHandlers{Svc: services.Flows}

	registerAuthRoutes(mux, authHandlers, authed)
	registerJobRoutes(mux, jobHandlers, authed)
	registerScheduleRoutes(mux, scheduleHandlers, authed)
	registerFlowRoutes(mux, flowHandlers, authed)
	webhookHandlers := &WebhookHandlers{Svc: services.Webhooks}
	registerCRUD(mux, crudRoutes{
		Base:       "/webhooks",
		Create:     webhookHandlers.Create,
		List:       webhookHandlers.List,
		GetByID:    webhookHandlers.Get,
		Update:     webhookHandlers.Update,
		Delete:     webhookHandlers.Delete,
		Middleware: authed,
	})
	keyHandlers := &APIKeyHandlers{Svc: services.Keys}
	registerCRUD(mux, crudRoutes{
		Base:       "/api-keys",
		Create:     keyHandlers.Create,
		List:       keyHandlers.List,
		GetByID:    keyHandlers.Get,
		Update:     keyHandlers.Update,
		Delete:     keyHandlers.Delete,
		Middleware: authed,
	})

	queueHandlers := &QueueHandlers{Registry: services.Registry}
	mux.Handle("GET /queues", authed(http.HandlerFunc(queueHandlers.List)))

	dashboardHandlers := &DashboardHandlers{Svc: services.Dashboard}
	mux.Handle("GET /dashboard/stats", authed(http.HandlerFunc(dashboardHandlers.Stats)))

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	if services.Hub != nil {
		wsHandlers := &WebsocketHandlers{Hub: services.Hub}
		mux.Handle("GET /ws", authed(http.HandlerFunc(wsHandlers.Connect)))
	}

	return mux
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, authed func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/refresh-token", h.Refresh)
	mux.HandleFunc("POST /auth/request-password-reset", h.RequestPasswordReset)
	mux.HandleFunc("POST /auth/reset-password", h.ResetPassword)
	mux.Handle("POST /auth/logout", authed(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/me", authed(http.HandlerFunc(h.Me)))
	mux.Handle("PUT /auth/webhook-url", authed(http.HandlerFunc(h.UpdateWebhookURL)))
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers, authed func(http.Handler) http.Handler) {
	mux.Handle("POST /jobs/{queue}/submit", authed(http.HandlerFunc(h.Submit)))
	mux.Handle("GET /jobs/{queue}", authed(http.HandlerFunc(h.List)))
	mux.Handle("GET /jobs/{queue}/job/{id}", authed(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /jobs/{queue}/job/{id}", authed(http.HandlerFunc(h.Delete)))
}

func registerScheduleRoutes(mux *http.ServeMux, h *ScheduleHandlers, authed func(http.Handler) http.Handler) {
	mux.Handle("POST /jobs/{queue}/schedule", authed(http.HandlerFunc(h.Create)))
	mux.Handle("GET /jobs/{queue}/schedule", authed(http.HandlerFunc(h.List)))
	mux.Handle("GET /jobs/{queue}/schedule/{id}", authed(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /jobs/{queue}/schedule/{id}", authed(http.HandlerFunc(h.Remove)))
}

func registerFlowRoutes(mux *http.ServeMux, h *FlowHandlers, authed func(http.Handler) http.Handler) {
	mux.Handle("POST /flows", authed(http.HandlerFunc(h.Create)))
	mux.Handle("GET /flows", authed(http.HandlerFunc(h.List)))
	mux.Handle("PUT /flows/{id}/jobs/{jobId}", authed(http.HandlerFunc(h.UpdateJob)))
	mux.Handle("DELETE /flows/{id}", authed(http.HandlerFunc(h.Delete)))
	// Flow reads stay open: workers deep in a flow hold only the flow id, and
	// the ids are unguessable.
	mux.HandleFunc("GET /flows/{id}", h.Get)
	mux.HandleFunc("GET /flows/{id}/create-request", h.GetAsCreateRequest)
}

type crudRoutes struct {
	Base       string
	Create     http.HandlerFunc
	List       http.HandlerFunc
	GetByID    http.HandlerFunc
	Update     http.HandlerFunc
	Delete     http.HandlerFunc
	Middleware func(http.Handler) http.Handler
}

func registerCRUD(mux *http.ServeMux, cfg crudRoutes) {
	if cfg.Base == "" {
		panic("registerCRUD: Base must not be empty") //nolint:forbidigo // Fail fast during server setup.
	}
	if cfg.Create == nil ||
		cfg.List == nil ||
		cfg.GetByID == nil ||
		cfg.Update == nil ||
		cfg.Delete == nil {
		panic("registerCRUD: nil handler for base " + cfg.Base) //nolint:forbidigo // Fail fast during server setup.
	}

	wrap := func(h http.HandlerFunc) http.Handler {
		if cfg.Middleware != nil {
			return cfg.Middleware(h)
		}
		return h
	}
	mux.Handle("POST "+cfg.Base, wrap(cfg.Create))
	mux.Handle("GET "+cfg.Base, wrap(cfg.List))
	mux.Handle("GET "+cfg.Base+"/{id}", wrap(cfg.GetByID))
	mux.Handle("PUT "+cfg.Base+"/{id}", wrap(cfg.Update))
	mux.Handle("DELETE "+cfg.Base+"/{id}", wrap(cfg.Delete))
}
