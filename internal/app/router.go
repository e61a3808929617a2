package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"certprep/internal/app/observability"
	"certprep/internal/assistant"
	"certprep/internal/content"
	"certprep/internal/exam"
	"certprep/internal/identity"
	"certprep/internal/report"
)

// Handlers groups the HTTP surfaces mounted by NewRouter.
type Handlers struct {
	Identity  *identity.Handler
	Exam      *exam.Handler
	Reports   *report.Handler
	Assistant *assistant.Handler
	Content   *content.AdminHandler
}

func NewRouter(cfg Config, collector *observability.Collector, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", csrfHeaderName},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if collector != nil {
		r.Use(collector.Middleware)
	}
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	if collector != nil {
		r.Get("/metrics", collector.MetricsHandler)
	}

	tokenLimiter := NewIPRateLimiter(10, time.Minute)
	aiLimiter := NewIPRateLimiter(cfg.AIRateLimitPerMin, time.Minute)

	r.Route("/api/v1", func(api chi.Router) {
		api.With(RateLimitMiddleware(tokenLimiter)).Post("/auth/token", h.Identity.IssueToken)

		api.Group(func(secure chi.Router) {
			secure.Use(h.Identity.Middleware)
			secure.Get("/auth/me", h.Identity.Me)

			secure.With(RateLimitMiddleware(aiLimiter)).Post("/assistant/reply", h.Assistant.Reply)
			secure.Post("/shuffle", h.Exam.Shuffle)

			secure.Post("/sessions", h.Exam.Start)
			secure.Route("/sessions/{id}", func(s chi.Router) {
				s.Get("/", h.Exam.Get)
				s.Delete("/", h.Exam.Close)
				s.Post("/answer", h.Exam.Answer)
				s.Post("/review", h.Exam.Review)
				s.Post("/next", h.Exam.Next)
				s.Post("/goto/{index}", h.Exam.Goto)
				s.Post("/restart", h.Exam.Restart)
				s.Post("/finish", h.Exam.Finish)
				s.Get("/result", h.Exam.Result)
				s.Get("/export.xlsx", h.Exam.Export)
				s.Get("/questions/{questionID}/explanation", h.Exam.Explanation)
				s.With(RateLimitMiddleware(aiLimiter)).Post("/questions/{questionID}/assist", h.Exam.Assist)
				s.Get("/questions/{questionID}/assist", h.Exam.AssistState)
				s.Delete("/assist", h.Exam.CancelAssist)
			})

			secure.Get("/results", h.Reports.History)
			secure.Get("/results/export.xlsx", h.Reports.HistoryExport)
			secure.Get("/results/{sessionID}", h.Reports.Detail)

			secure.Group(func(admin chi.Router) {
				admin.Use(identity.RequireRoles(identity.RoleAdmin))
				admin.Post("/admin/certifications/{slug}/import", h.Content.ImportWorkbook)
				admin.Delete("/admin/certifications/{slug}/cache", h.Content.InvalidateCache)
			})
		})
	})

	return r
}
