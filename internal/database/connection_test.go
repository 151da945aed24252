package database

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/genomax/protocol-engine/internal/domain"
)

func TestConnectAgainstLivePostgres(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("genomax_test"),
		postgres.WithUsername("genomax"),
		postgres.WithPassword("genomax"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := domain.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Database:        "genomax_test",
		Username:        "genomax",
		Password:        "genomax",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("failed to connect to audit database: %v", err)
	}
	defer pool.Close()

	if err := pool.Health(ctx); err != nil {
		t.Fatalf("audit database health check failed: %v", err)
	}

	stats := pool.Stats()
	if stats.TotalConns() == 0 {
		t.Error("expected at least one connection in pool")
	}

	t.Logf("audit pool stats: total=%d idle=%d acquired=%d",
		stats.TotalConns(), stats.IdleConns(), stats.AcquiredConns())
}

func TestValidateSchemaDetectsMissingMigration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("genomax_schema_test"),
		postgres.WithUsername("genomax"),
		postgres.WithPassword("genomax"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := domain.DatabaseConfig{
		Host: host, Port: port.Int(), Database: "genomax_schema_test",
		Username: "genomax", Password: "genomax", SSLMode: "disable",
		MaxOpenConns: 5, MaxIdleConns: 1, ConnMaxLifetime: time.Hour,
	}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("failed to connect to audit database: %v", err)
	}
	defer pool.Close()

	if err := pool.ValidateSchema(ctx); err == nil {
		t.Fatal("expected ValidateSchema to fail before migrations run")
	}

	migrator, err := NewSchemaMigrator(
		"postgres://genomax:genomax@"+host+":"+port.Port()+"/genomax_schema_test?sslmode=disable",
		"../../migrations", logger)
	if err != nil {
		t.Fatalf("failed to build schema migrator: %v", err)
	}
	defer migrator.Close()
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("failed to apply audit schema migrations: %v", err)
	}

	if err := pool.ValidateSchema(ctx); err != nil {
		t.Fatalf("expected ValidateSchema to pass after migrations, got %v", err)
	}
}
