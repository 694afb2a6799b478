package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telecare/consult-gate/internal/config"
	"github.com/telecare/consult-gate/internal/domain/invitation"
	appHTTP "github.com/telecare/consult-gate/internal/handler/http"
	"github.com/telecare/consult-gate/internal/handler/http/middleware"
	"github.com/telecare/consult-gate/internal/pkg/cron"
	"github.com/telecare/consult-gate/internal/pkg/database"
	"github.com/telecare/consult-gate/internal/pkg/email"
	"github.com/telecare/consult-gate/internal/pkg/jwt"
	"github.com/telecare/consult-gate/internal/pkg/livekit"
	"github.com/telecare/consult-gate/internal/pkg/oauth"
	"github.com/telecare/consult-gate/internal/pkg/sse"
	"github.com/telecare/consult-gate/internal/repository/postgresql"
	"github.com/telecare/consult-gate/internal/repository/sqlite"
	serviceAuth "github.com/telecare/consult-gate/internal/service/auth"
	invitationService "github.com/telecare/consult-gate/internal/service/invitation"
	roomService "github.com/telecare/consult-gate/internal/service/room"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	invitationRepo, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("Failed to open invitation store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	inviteTokens := jwt.NewInviteTokens(cfg.Invitation.TokenSecret)
	minter := livekit.NewMinter(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
	GoogleService := oauth.NewGoogleService(cfg.OAuth2.ClientID, cfg.OAuth2.ClientSecret, cfg.OAuth2.RedirectURL, cfg.OAuth2.Scopes)

	mailer, err := email.NewMailer(cfg.Mail)
	if err != nil {
		slog.Error("Failed to initialize mailer", "error", err)
		os.Exit(1)
	}
	emailService, err := email.NewEmailService(mailer)
	if err != nil {
		slog.Error("Failed to initialize email service", "error", err)
		os.Exit(1)
	}

	hub := sse.NewHub()
	invitationSvc := invitationService.NewInvitationService(invitationRepo, inviteTokens, minter, emailService, hub, invitationService.Config{
		MaxHours:        cfg.Invitation.MaxHours,
		DefaultMaxUses:  cfg.Invitation.DefaultMaxUses,
		FrontendURL:     cfg.Invitation.FrontendURL,
		PatientTokenTTL: cfg.LiveKit.PatientTokenTTL,
		DevicePolicy:    cfg.Policy.Device,
		GeoPolicy:       cfg.Policy.Geo,
		StoreTimeout:    cfg.Store.Timeout,
		Retention:       cfg.Janitor.Retention,
	})
	roomSvc := roomService.NewRoomService(minter, cfg.LiveKit.DoctorTokenTTL, cfg.LiveKit.URL)
	authService := serviceAuth.NewAuthService(JWTService, cfg.OAuth2.DoctorEmails)

	scheduler := cron.NewScheduler()
	cron.NewInvitationJobs(invitationSvc, cfg.Janitor.Interval, cfg.Store.Timeout).RegisterJobs(scheduler)
	cron.NewSessionJobs(JWTService, cfg.Janitor.Interval).RegisterJobs(scheduler)
	scheduler.Start()
	defer scheduler.Stop()

	isProduction := cfg.App.Env == "production"
	authHandler := appHTTP.NewAuthHandler(authService, GoogleService, cfg.App.FrontendURL, isProduction)
	invitationHandler := appHTTP.NewInvitationHandler(invitationSvc, hub, cfg.LiveKit.URL)
	roomHandler := appHTTP.NewRoomHandler(roomSvc)

	logLevel := slog.LevelInfo
	if !isProduction {
		logLevel = slog.LevelDebug
	}
	router := appHTTP.NewRouter(
		appHTTP.RouterConfig{
			Env:            cfg.App.Env,
			AllowedOrigins: []string{cfg.App.FrontendURL},
			EdgeGate:       middleware.NewEdgeGate(cfg.LiveKit.URL, cfg.App.CSPConnectSrc),
			LogLevel:       logLevel,
		},
		JWTService,
		authHandler,
		invitationHandler,
		roomHandler,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server running", "addr", server.Addr, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
}

// openStore selects the invitation store from STORE_DRIVER
func openStore(ctx context.Context, cfg config.StoreConfig) (invitation.InvitationRepository, func(), error) {
	switch cfg.Driver {
	case "postgres":
		db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := postgresql.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgresql.NewInvitationRepository(db), db.Close, nil
	case "sqlite":
		db, err := database.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		repo, err := sqlite.NewInvitationRepository(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
