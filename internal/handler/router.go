package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/z-tone/backend/internal/handler/chat"
	"github.com/zhouzirui/z-tone/backend/internal/handler/socket"
	"github.com/zhouzirui/z-tone/backend/internal/handler/stream"
	"github.com/zhouzirui/z-tone/backend/internal/handler/tone"
	middlewarePkg "github.com/zhouzirui/z-tone/backend/internal/middleware"
	chatService "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/internal/service/health"
	"github.com/zhouzirui/z-tone/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. checker may be nil.
func NewRouter(chatSvc *chatService.Service, checker *health.Checker) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	var counter middlewarePkg.RequestCounter
	if checker != nil {
		counter = checker
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": string(health.Healthy)})
			return
		}
		report := checker.Check(r.Context())
		status := http.StatusOK
		if report.Status == health.Unhealthy {
			status = http.StatusServiceUnavailable
		}
		utils.RespondJSON(w, status, report)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.CountRequests(counter))

		chat.New(chatSvc).RegisterRoutes(api)
		tone.New(chatSvc.Analyzer()).RegisterRoutes(api)
		stream.New(chatSvc).RegisterRoutes(api)
		socket.New(chatSvc).RegisterRoutes(api)
	})

	return r
}
