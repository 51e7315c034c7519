package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/btsutskiridze/OnlineStore/internal/catalog/httpapi"
	"github.com/btsutskiridze/OnlineStore/internal/catalog/repository"
	"github.com/btsutskiridze/OnlineStore/internal/catalog/service"
	"github.com/btsutskiridze/OnlineStore/internal/platform/config"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "catalog-service").Logger()

	config.Load()

	httpPort := config.GetEnv("HTTP_PORT", "8081")

	creds := &repository.Credentials{
		Host:              config.GetEnv("DB_HOST", "localhost"),
		Port:              config.GetEnvInt("DB_PORT", 5432),
		User:              config.GetEnv("DB_USER", "postgres"),
		Password:          config.GetEnv("DB_PASSWORD", "postgres"),
		DBName:            config.GetEnv("DB_NAME", "online_store"),
		MigrationsDirPath: config.GetEnv("MIGRATIONS_PATH", "./migrations/catalog"),
	}

	repo, err := repository.NewRepository(creds)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("database migrations completed")

	validationService := service.NewValidationService(repo)
	stockService := service.NewStockService(repo)

	handler := httpapi.NewProductsHandler(validationService, stockService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/internal/v1/products", func(r chi.Router) {
		r.Use(httpapi.ServiceAuthMiddleware)
		r.Post("/validate", handler.Validate)
		r.Post("/stock/decrement-batch", handler.DecrementBatch)
		r.Post("/stock/replenish-batch", handler.ReplenishBatch)
	})

	srv := &http.Server{
		Addr:    ":" + httpPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", httpPort).Msg("catalog service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down catalog service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}
