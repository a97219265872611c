//	@title			PDF Library API
//	@version		1.0
//	@description	Ordered collection of PDF files kept in a blob store.
//
//	@host		localhost:8080
//	@BasePath	/api/pdflibrary

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/pdflibrary/service/docs/swagger"
	"github.com/pdflibrary/service/internal/config"
	"github.com/pdflibrary/service/internal/library"
	appMiddleware "github.com/pdflibrary/service/internal/middleware"
	"github.com/pdflibrary/service/internal/response"
	"github.com/pdflibrary/service/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.New(initCtx, cfg.Storage)
	cancelInit()
	if err != nil {
		log.Fatalf("object storage init failed: %v", err)
	}
	defer store.Close()

	// Wire dependencies: storage → repository → service → handler
	libraryRepo := library.NewRepository(store)
	librarySvc := library.NewService(libraryRepo)
	libraryHandler := library.NewHandler(librarySvc)

	swagger.SwaggerInfo.BasePath = cfg.BasePath

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})

	// Readiness probes the store with a cheap existence check.
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if _, err := store.Exists(ctx, "healthcheck"); err != nil {
			log.Printf("health: storage: %v", err)
			response.Error(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		response.OK(w, map[string]string{"status": "ready"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route(cfg.BasePath, libraryHandler.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("server listening on :%s (env=%s, storage=%s)", cfg.Port, cfg.AppEnv, cfg.Storage.Backend)
		log.Printf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("server stopped")
}
