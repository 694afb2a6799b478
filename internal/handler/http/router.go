package http

import (
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
	"github.com/telecare/consult-gate/internal/handler/http/middleware"
	"github.com/telecare/consult-gate/internal/pkg/jwt"
)

// RouterConfig carries what the router needs beyond handlers
type RouterConfig struct {
	Env            string
	AllowedOrigins []string
	EdgeGate       *middleware.EdgeGate
	LogLevel       slog.Level
}

func NewRouter(cfg RouterConfig, jwtService jwt.Service, authHandler AuthHandler, invitationHandler InvitationHandler, roomHandler RoomHandler) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(cfg.Env != "production")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "consult-gate"),
		slog.String("env", cfg.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  cfg.LogLevel,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	// Edge Gate sees every request; it only acts on invite and patient-room paths
	if cfg.EdgeGate != nil {
		r.Use(cfg.EdgeGate.Handler)
	}

	r.Get(middleware.DeniedPath, invitationHandler.AccessDenied)

	r.Get("/invite/{token}", invitationHandler.Landing)
	r.Get("/room/{id}/patient", invitationHandler.PatientRoom)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json"))

		r.Route("/auth", func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(30 * time.Second))
			r.Get("/google", authHandler.LoginWithGoogle)
			r.Get("/oauth/callback/google", authHandler.OAuthCallbackGoogle)

			r.Group(func(r chi.Router) {
				r.Use(jwtauth.Verifier(jwtService.JWTAuth()))
				r.Use(middleware.AuthRequired(jwtService))
				r.Post("/logout", authHandler.Logout)
			})
		})

		// Public patient endpoints
		r.With(chiMiddleware.Timeout(30*time.Second)).Post("/invitations/validate", invitationHandler.Validate)
		r.With(chiMiddleware.Timeout(30*time.Second)).Get("/invitations/peek", invitationHandler.Peek)

		// EventSource cannot set headers, so the stream also accepts ?jwt=
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verify(jwtService.JWTAuth(), jwtauth.TokenFromHeader, jwtauth.TokenFromQuery))
			r.Use(middleware.AuthRequired(jwtService))
			r.Use(chiMiddleware.NoCache)

			r.Get("/invitations/events", invitationHandler.Events)
		})

		// Requires doctor session
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(30 * time.Second))
			r.Use(jwtauth.Verifier(jwtService.JWTAuth()))
			r.Use(middleware.AuthRequired(jwtService))

			r.Post("/invitations", invitationHandler.Create)
			r.Get("/invitations", invitationHandler.List)
			r.Get("/invitations/{id}", invitationHandler.Get)
			r.Delete("/invitations/{id}", invitationHandler.Delete)
			r.Post("/invitations/{id}/revoke", invitationHandler.Revoke)

			r.Post("/rooms/{room}/token", roomHandler.DoctorToken)
		})
	})
	return r
}
