package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"geofleet/ingestion/internal/alert"
	"geofleet/ingestion/internal/auth"
	"geofleet/ingestion/internal/config"
	"geofleet/ingestion/internal/integrations"
	"geofleet/ingestion/internal/pipeline"
	"geofleet/ingestion/internal/resolver"
	"geofleet/ingestion/internal/store"
	transport "geofleet/ingestion/internal/transport/http"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file, using system environment variables")
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewPostgresStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres init failed")
	}
	defer db.Close()

	redis, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	defer redis.Close()

	beacons := store.NewBeaconDirectory(db, redis)
	wifi := resolver.NewHTTPWifiLocator(cfg.WifiLookupURL, cfg.LookupTimeout)
	res := resolver.New(beacons, wifi)

	emitter := alert.NewEmitter(db, redis)
	live := pipeline.NewLiveMirror(redis, cfg.LiveStateChannelSize)
	proc := pipeline.NewProcessor(res, db, db, emitter, live, cfg.LookupTimeout)

	authenticator := auth.NewAuthenticator(cfg, redis)
	webhooks := transport.NewWebhookHandler(proc, db)
	integrationsH := transport.NewIntegrationHandler(
		integrations.NewSolisClient(cfg.Solis),
		integrations.NewSwitchClient(cfg.Switch),
	)
	router := transport.NewRouter(webhooks, integrationsH, transport.NewAuthMiddleware(authenticator))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		live.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("ingestion server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("shutdown complete")
}
