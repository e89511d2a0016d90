package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"murmur/internal/aiclient"
	"murmur/internal/config"
	"murmur/internal/db"
	"murmur/internal/entry"
	httpx "murmur/internal/http"
	"murmur/internal/jobs"
	"murmur/internal/workspace"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, _ := config.Load()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Error("connect database", "err", err)
		os.Exit(1)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Error("migrate database", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsSvc := &workspace.Service{DB: gdb}
	defaultWS, err := wsSvc.EnsureDefault(ctx)
	if err != nil {
		log.Error("ensure default workspace", "err", err)
		os.Exit(1)
	}

	queue := &jobs.Queue{DB: gdb}

	// Jobs left running by a crash are safe to re-claim; nothing else can
	// hold them in a single-process deployment.
	if n, err := queue.ResetAbandoned(ctx); err != nil {
		log.Error("reset abandoned jobs", "err", err)
		os.Exit(1)
	} else if n > 0 {
		log.Info("requeued abandoned jobs", "count", n)
	}

	ai := aiclient.New(cfg.AIBaseURL, cfg.AIAuthToken, cfg.AITimeout)
	store := &entry.Store{DB: gdb}
	worker := jobs.NewWorker(queue, store, ai, log, cfg.MaxAttempts)

	go sweep(ctx, queue, worker, log)

	jwtSvc := workspace.NewJWT(cfg.JWTSecret)
	r := httpx.NewRouter(cfg, httpx.Deps{
		DB:        gdb,
		JWT:       jwtSvc,
		Queue:     queue,
		Worker:    worker,
		AI:        ai,
		DefaultWS: defaultWS.ID,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// sweep periodically kicks every workspace that has queued work, so retries
// and jobs recovered after a restart get picked up without an HTTP trigger.
func sweep(ctx context.Context, queue *jobs.Queue, worker *jobs.Worker, log *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := queue.WorkspacesWithQueued(ctx)
			if err != nil {
				log.Error("sweep query failed", "err", err)
				continue
			}
			for _, id := range ids {
				worker.Kick(ctx, id)
			}
		}
	}
}
