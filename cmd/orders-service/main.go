package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/btsutskiridze/OnlineStore/internal/orders/catalog"
	"github.com/btsutskiridze/OnlineStore/internal/orders/httpapi"
	"github.com/btsutskiridze/OnlineStore/internal/orders/publisher"
	"github.com/btsutskiridze/OnlineStore/internal/orders/repository"
	"github.com/btsutskiridze/OnlineStore/internal/orders/service"
	"github.com/btsutskiridze/OnlineStore/internal/platform/auth"
	"github.com/btsutskiridze/OnlineStore/internal/platform/config"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "orders-service").Logger()

	config.Load()

	httpPort := config.GetEnv("HTTP_PORT", "8080")
	kafkaBrokers := config.GetEnv("KAFKA_BROKERS", "localhost:9092")

	creds := &repository.Credentials{
		Host:              config.GetEnv("DB_HOST", "localhost"),
		Port:              config.GetEnvInt("DB_PORT", 5432),
		User:              config.GetEnv("DB_USER", "postgres"),
		Password:          config.GetEnv("DB_PASSWORD", "postgres"),
		DBName:            config.GetEnv("DB_NAME", "online_store"),
		MigrationsDirPath: config.GetEnv("MIGRATIONS_PATH", "./migrations/orders"),
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

	tokenClient := auth.NewTokenClient(auth.Credentials{
		AuthServiceURL: config.GetEnv("AUTH_SERVICE_URL", "http://localhost:8090"),
		ClientID:       config.GetEnv("AUTH_CLIENT_ID", "orders-service"),
		ClientSecret:   config.GetEnv("AUTH_CLIENT_SECRET", ""),
	}, config.GetEnvDuration("AUTH_TIMEOUT", 5*time.Second))

	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:        config.GetEnv("CATALOG_SERVICE_URL", "http://localhost:8081"),
		Audience:       config.GetEnv("CATALOG_AUDIENCE", "catalog-service"),
		AttemptTimeout: config.GetEnvDuration("CATALOG_ATTEMPT_TIMEOUT", 5*time.Second),
		MaxAttempts:    config.GetEnvInt("CATALOG_MAX_ATTEMPTS", 3),
		RetryWait:      config.GetEnvDuration("CATALOG_RETRY_WAIT", 200*time.Millisecond),
	}, tokenClient)

	creationService := service.NewCreationService(repo, catalogClient)
	cancellationService := service.NewCancellationService(repo, catalogClient)
	readService := service.NewReadService(repo)

	handler := httpapi.NewOrdersHandler(creationService, cancellationService, readService)

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

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(httpapi.UserAuthMiddleware)
		r.Post("/", handler.CreateOrder)
		r.Get("/", handler.ListOrders)
		r.Get("/{order_id}", handler.GetOrder)
		r.Post("/{order_id}/cancel", handler.CancelOrder)
	})

	// Outbox poller publishes confirmed/cancelled order events to Kafka.
	var wg sync.WaitGroup
	poller := publisher.NewOutboxPoller(repo, strings.Split(kafkaBrokers, ",")...)
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(pollerCtx)
	}()

	srv := &http.Server{
		Addr:    ":" + httpPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", httpPort).Msg("orders service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down orders service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	pollerCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("outbox poller stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn().Msg("shutdown timeout exceeded, forcing exit")
	}

	if err := poller.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close kafka writer")
	}
}
