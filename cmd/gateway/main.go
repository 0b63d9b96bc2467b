package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/logging"
	storage "github.com/mind-engage/mindengage-exams/internal/storage"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
	"github.com/mind-engage/mindengage-exams/internal/user"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		boot := logging.New(os.Stderr, "info", "console")
		boot.Fatal().Err(err).Msg("config")
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	zerolog.DefaultContextLogger = &log
	if cfg.UsesDevSecret() {
		log.Warn().Msg("AUTH_HMAC_SECRET not set; using the built-in development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB (opened lazily on first use) ---
	dbh := db.NewHandle(db.Driver(cfg.DBDriver), cfg.DBDSN)
	defer func() {
		if err := dbh.Close(); err != nil {
			log.Error().Err(err).Msg("db close")
		}
	}()
	if err := dbh.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("db not reachable yet; will retry on first request")
	}

	h, err := newHandler(cfg, log, dbh)
	if err != nil {
		log.Error().Err(err).Msg("setup")
		return
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("mode", string(cfg.Mode)).Str("db", cfg.DBDriver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}

// newHandler builds stores, services and the router on top of dbh.
func newHandler(cfg config.Config, log zerolog.Logger, dbh *db.Handle) (http.Handler, error) {
	bs, err := storage.NewFSStore(cfg.BlobBasePath, "/assets")
	if err != nil {
		return nil, err
	}
	events := syncx.NewEventRepo(dbh, "")
	tokens := auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL)
	users := user.NewService(user.NewSQLStore(dbh), cfg.BcryptCost)
	exams := exam.NewService(exam.NewSQLStore(dbh),
		exam.WithEvents(events),
		exam.WithWeightedScoring(cfg.ScoringWeighted),
	)

	if cfg.AllowDevToken {
		log.Warn().Msg("dev token route enabled")
	}
	return api.NewRouter(api.Deps{
		Log:           log,
		Tokens:        tokens,
		Users:         users,
		Exams:         exams,
		Events:        events,
		Blobs:         bs,
		Store:         dbh,
		CORSOrigins:   cfg.CORSOrigins,
		AllowDevToken: cfg.AllowDevToken,
		DevTokenTTL:   cfg.DevTokenTTL,
	}), nil
}
