package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnjsyoo/sheet-snitch-bot/internal/authcache"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/config"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/gateway"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/httpapi"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/lookup"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/obs"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/stream"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/tablestore"
	"github.com/johnjsyoo/sheet-snitch-bot/internal/tablestore/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		store tablestore.Store
		db    *sql.DB
	)
	switch cfg.Store {
	case config.StorePostgres:
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		db = pgStore.DB()
	default:
		store = tablestore.NewMemory()
	}

	// Quota and metrics wrap every store call, regardless of backend.
	store = tablestore.WithLimit(store, cfg.StoreRatePerSec, cfg.StoreRateBurst)
	store = tablestore.WithMetrics(store)

	cache, err := authcache.NewService(store, cfg.AuthTable, cfg.AccessCodes)
	if err != nil {
		log.Fatalf("authcache: %v", err)
	}
	engine, err := lookup.NewEngine(store, cfg.RecordTable, lookup.WithColumns(cfg.Columns))
	if err != nil {
		log.Fatalf("lookup: %v", err)
	}
	feed := stream.New()
	gw, err := gateway.NewService(cache, engine, feed)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	// Warm the authorization cache so known identities skip the first
	// read-through after a restart.
	preloadCtx, cancelPreload := context.WithTimeout(context.Background(), 30*time.Second)
	if err := gw.Preload(preloadCtx); err != nil {
		log.Printf("preload auth cache: %v (continuing cold)", err)
	}
	cancelPreload()

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, gw, feed, cfg.SessionTTL)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting sheet-snitch %s on %s (store=%s)", version, srv.Addr, cfg.Store)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
