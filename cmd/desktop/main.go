// Package main provides the local Soma server for desktop platforms.
// UI clients talk to it over REST/WebSocket on localhost.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mwangivic/soma/cmd/desktop/handlers"
	"github.com/mwangivic/soma/internal/config"
	"github.com/mwangivic/soma/internal/connectivity"
	"github.com/mwangivic/soma/internal/db"
	"github.com/mwangivic/soma/internal/logging"
	"github.com/mwangivic/soma/internal/notify"
	"github.com/mwangivic/soma/internal/remote"
	"github.com/mwangivic/soma/internal/store"
	"github.com/mwangivic/soma/internal/syncer"
)

func main() {
	// A missing .env is fine; the environment may be set by the shell.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Init(os.Stdout, logging.LevelInfo)

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer database.Close()

	st := store.New(database)
	client := remote.NewClient(&remote.Config{
		BaseURL: cfg.RemoteURL,
		APIKey:  cfg.RemoteKey,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed the observer with the backend's current reachability.
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	initialOnline := client.Ping(probeCtx) == nil
	cancel()

	hub := NewWSHub()
	notifier := notify.Multi{notify.Log{}, hub}

	observer := connectivity.NewObserver(initialOnline, notifier)
	observer.AddListener(hub.BroadcastConnectivityChanged)
	go observer.Watch(ctx, client.Ping, cfg.ProbeInterval)

	manager := syncer.New(st, client, observer, notifier, &syncer.Config{
		Interval:  cfg.SyncInterval,
		Retention: cfg.Retention,
	})
	manager.AddResultListener(hub.RelaySyncResult)
	manager.Start(ctx)
	defer manager.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"soma-desktop"}`))
	})
	mux.Handle("/ws", HandleWebSocket(hub))
	handlers.NewOfflineHandler(st, manager, observer).Register(mux)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logging.Info("soma desktop server starting", map[string]interface{}{
		"addr":   cfg.ListenAddr,
		"online": initialOnline,
	})

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}
