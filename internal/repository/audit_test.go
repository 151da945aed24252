package repository

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/genomax/protocol-engine/internal/database"
	"github.com/genomax/protocol-engine/internal/domain"
)

func setupTestAuditDB(t *testing.T) (*database.Pool, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("genomax_audit_test"),
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

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cfg := domain.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Database:        "genomax_audit_test",
		Username:        "genomax",
		Password:        "genomax",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("failed to connect to audit database: %v", err)
	}

	databaseURL := "postgres://genomax:genomax@" + host + ":" + port.Port() + "/genomax_audit_test?sslmode=disable"
	migrator, err := database.NewSchemaMigrator(databaseURL, "../../migrations", logger)
	if err != nil {
		t.Fatalf("failed to build schema migrator: %v", err)
	}
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("failed to apply audit schema migrations: %v", err)
	}

	cleanup := func() {
		migrator.Close()
		pool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}
	return pool, cleanup
}

func TestAuditRepositoryCreateAndGetByRunID(t *testing.T) {
	pool, cleanup := setupTestAuditDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewAuditRepository(pool.Raw(), logger)

	ctx := context.Background()
	record := domain.AuditRecord{
		RunID:      "run-1",
		Stage:      "normalize",
		InputHash:  "",
		OutputHash: "sha256:abc123",
		Counts:     map[string]int{"normalized": 3},
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("failed to create audit record: %v", err)
	}

	records, err := repo.GetByRunID(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get audit records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].OutputHash != "sha256:abc123" {
		t.Errorf("expected output hash sha256:abc123, got %s", records[0].OutputHash)
	}
	if records[0].Counts["normalized"] != 3 {
		t.Errorf("expected normalized count 3, got %d", records[0].Counts["normalized"])
	}
}

func TestAuditRepositoryGetByRunIDNotFound(t *testing.T) {
	pool, cleanup := setupTestAuditDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewAuditRepository(pool.Raw(), logger)

	_, err := repo.GetByRunID(context.Background(), "does-not-exist")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditRepositoryGetLatestByRunID(t *testing.T) {
	pool, cleanup := setupTestAuditDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewAuditRepository(pool.Raw(), logger)

	ctx := context.Background()
	base := time.Now().UTC()
	stages := []string{"normalize", "gates", "translate"}
	for i, stage := range stages {
		record := domain.AuditRecord{
			RunID:      "run-2",
			Stage:      stage,
			OutputHash: "sha256:" + stage,
			Counts:     map[string]int{"i": i},
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, record); err != nil {
			t.Fatalf("failed to create audit record for stage %s: %v", stage, err)
		}
	}

	latest, err := repo.GetLatestByRunID(ctx, "run-2")
	if err != nil {
		t.Fatalf("failed to get latest audit record: %v", err)
	}
	if latest.Stage != "translate" {
		t.Errorf("expected latest stage translate, got %s", latest.Stage)
	}
}
