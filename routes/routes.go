package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/Dosada05/bracket-automation/docs"
	"github.com/Dosada05/bracket-automation/handlers"
	"github.com/Dosada05/bracket-automation/middleware"
	"github.com/Dosada05/bracket-automation/models"
)

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	Logger         zerolog.Logger
}

type Handlers struct {
	Tournament *handlers.TournamentHandler
	Match      *handlers.MatchHandler
	Automation *handlers.AutomationHandler
	WebSocket  *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(hlog.NewHandler(opts.Logger))
	router.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	authenticate := middleware.Authenticate(opts.JWTSecret, opts.Logger)
	operators := middleware.RequireRole(models.RoleAdmin, models.RoleOrganizer)

	router.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(60 * time.Second))

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", h.Tournament.ListHandler)
			r.Get("/{tournamentID}", h.Tournament.GetByIDHandler)
			r.Get("/{tournamentID}/bracket", h.Tournament.BracketHandler)
			r.Get("/{tournamentID}/matches", h.Tournament.ListMatchesHandler)
			r.Get("/{tournamentID}/automation/status", h.Automation.StatusHandler)
			r.Get("/{tournamentID}/automation/logs", h.Automation.LogsHandler)

			r.Group(func(r chi.Router) {
				r.Use(authenticate, operators)
				r.Post("/", h.Tournament.CreateHandler)
				r.Post("/{tournamentID}/close-registration", h.Tournament.CloseRegistrationHandler)
				r.Post("/{tournamentID}/start", h.Tournament.StartHandler)
				r.Post("/{tournamentID}/repair", h.Automation.RepairTournamentHandler)
			})
		})

		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Get("/", h.Match.GetHandler)
			r.Group(func(r chi.Router) {
				r.Use(authenticate, operators)
				r.Post("/start", h.Match.StartHandler)
				r.Post("/result", h.Match.ResultHandler)
			})
		})

		r.Route("/automation", func(r chi.Router) {
			r.Use(authenticate, operators)
			r.Get("/health-check", h.Automation.HealthCheckHandler)
			r.Post("/repair", h.Automation.RepairHandler)
		})
	})
}
