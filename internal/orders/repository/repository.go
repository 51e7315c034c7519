package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/btsutskiridze/OnlineStore/internal/orders/domain"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrIdempotencyKeyNotFound  = errors.New("idempotency key not found")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already exists")
	ErrStaleGeneration         = errors.New("idempotency record owned by a newer execution")
	ErrConcurrencyConflict     = errors.New("order was modified by another request")
	ErrOrderNotPending         = errors.New("order is no longer pending")
)

// OutboxEvent is one row of the transactional outbox. Payload is the
// ready-to-publish JSON document.
type OutboxEvent struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// StoreInterface is everything the order sagas need from persistence.
type StoreInterface interface {
	Close() error
	RunMigrations(*Credentials) error

	GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	InsertIdempotencyRecord(ctx context.Context, key, requestHash string) (*domain.IdempotencyRecord, error)
	TakeOverIdempotencyRecord(ctx context.Context, key string, expectedGeneration int64) (int64, error)
	FailIdempotencyRecord(ctx context.Context, key string, generation int64) error

	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByExternalID(ctx context.Context, externalID uuid.UUID, userID string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	RejectOrder(ctx context.Context, orderID int64) error
	FinalizeOrder(ctx context.Context, p FinalizeOrderParams) error
	CancelOrder(ctx context.Context, orderID, expectedVersion int64, event *OutboxEvent) error

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id uuid.UUID) error
}

// FinalizeOrderParams commits the saga's success in one transaction: the
// idempotency record becomes Completed with the cached response, the order
// becomes Confirmed, and the confirmation event lands in the outbox.
type FinalizeOrderParams struct {
	IdempotencyKey string
	Generation     int64
	OrderID        int64
	ResponseCode   int
	ResponseBody   []byte
	Event          *OutboxEvent
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	log.Info().Msg("orders connected to postgres")
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
