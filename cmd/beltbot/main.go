// cmd/beltbot/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/giziti/beltbot/internal/auth"
	"github.com/giziti/beltbot/internal/belt"
	"github.com/giziti/beltbot/internal/cache"
	"github.com/giziti/beltbot/internal/commands"
	"github.com/giziti/beltbot/internal/config"
	"github.com/giziti/beltbot/internal/gateway"
	"github.com/giziti/beltbot/internal/handlers"
	"github.com/giziti/beltbot/internal/middleware"
	"github.com/giziti/beltbot/internal/provider"
	"github.com/giziti/beltbot/internal/store"
	"github.com/giziti/beltbot/internal/sync"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer pool.Close()
	if err := store.Migrate(ctx, pool); err != nil {
		log.Fatalf("migration error: %v", err)
	}
	st := store.New(pool)

	tables := belt.DefaultTables()
	if cfg.BeltTableFile != "" {
		if tables, err = belt.LoadTables(cfg.BeltTableFile); err != nil {
			log.Fatalf("belt table error: %v", err)
		}
		logger.Infof("Loaded belt tables from %s", cfg.BeltTableFile)
	}
	classifier := belt.NewClassifier(tables)

	chesscom := provider.NewChessCom(nil)
	lichess := provider.NewLichess(nil)
	providers := map[string]provider.Provider{
		chesscom.Name(): chesscom,
		lichess.Name():  lichess,
	}

	// The profile cache is advisory; running without Redis just means
	// every command pays the upstream round trips.
	if c, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB); err != nil {
		logger.Warnf("running without profile cache: %v", err)
	} else {
		defer c.Close()
		for name, p := range providers {
			providers[name] = provider.NewCached(p, c, cfg.ProfileCacheTTL, logger)
		}
	}

	gw, err := gateway.Dial(ctx, cfg.GatewayURL, cfg.GatewayToken, logger)
	if err != nil {
		log.Fatalf("gateway error: %v", err)
	}
	defer gw.Close()

	synchronizer := sync.New(st, providers, classifier, gateway.NewActuator(gw, cfg.RankRoles), logger)
	dispatcher := commands.NewDispatcher(synchronizer, logger, cfg.CommandPrefix)

	sessions, err := auth.NewSessions(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("session key error: %v", err)
	}

	mux := http.NewServeMux()
	handlers.NewAPI(synchronizer, sessions, cfg.ModPasswordHash, logger).Register(mux)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: middleware.LogMiddleware(logger)(mux),
	}
	go func() {
		logger.Infof("Moderator API on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server exited: %v", err)
		}
	}()

	logger.Info("Listening for chat events")
	if err := gw.Listen(ctx, dispatcher); err != nil && ctx.Err() == nil {
		log.Fatalf("gateway session ended: %v", err)
	}

	_ = srv.Shutdown(context.Background())
}
