package main

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"toolcatalog/db"
	"toolcatalog/internal/app"
	"toolcatalog/internal/config"
	"toolcatalog/internal/metrics"
	"toolcatalog/internal/search"
	"toolcatalog/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	conn, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer conn.Close()

	if err := store.ApplyMigrations(ctx, conn, migrations(cfg.MigrationsDir)); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(conn)
	pgSearch := search.NewPostgres(conn)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgSearch)

	if cfg.AuthDisabled {
		log.Printf("WARNING: authentication disabled, every request acts as admin")
	} else if cfg.AdminKeyHash == "" {
		log.Printf("TOOLCATALOG_ADMIN_KEY_HASH is not set; POST /api/tokens will reject every request")
	}

	service := app.New(cfg, dataStore, app.PostgresRepositories(dataStore), searchService, pgSearch, metrics.New())
	go service.Bootstrap(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Tool catalog API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// migrations prefers dir on disk and falls back to the copy built into the
// binary.
func migrations(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			log.Printf("Applying migrations from %s", dir)
			return os.DirFS(dir)
		}
	}
	log.Printf("Applying embedded migrations")
	return db.Migrations
}
