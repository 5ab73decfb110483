//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/vface/internal/config"
	"github.com/kozaktomas/vface/internal/database"
	"github.com/kozaktomas/vface/internal/secrets"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	pool, err := Open(ctx, config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open pool: %v", err)
	}

	return pool, func() {
		pool.Close()
		container.Terminate(ctx)
	}
}

func TestStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	hash, err := secrets.Hash("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	tenant, err := pool.CreateClient(ctx, "shop", hash, "Shop")
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	t.Run("DuplicateClient", func(t *testing.T) {
		if _, err := pool.CreateClient(ctx, "shop", hash, "Again"); err == nil {
			t.Error("expected duplicate client id to fail")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		got, err := pool.Validate(ctx, "shop", "s3cret")
		if err != nil || got != tenant {
			t.Fatalf("Validate() = %d, %v; want %d", got, err, tenant)
		}
		if _, err := pool.Validate(ctx, "shop", "wrong"); !errors.Is(err, database.ErrNoMatch) {
			t.Errorf("expected ErrNoMatch, got %v", err)
		}
	})

	t.Run("UpsertAndFetch", func(t *testing.T) {
		vector := make([]float64, 128)
		for i := range vector {
			vector[i] = float64(i) / 128
		}

		status, err := pool.Upsert(ctx, tenant, "staff", "u1", vector, "Alice")
		if err != nil || status != database.Created {
			t.Fatalf("Upsert() = %s, %v; want Created", status, err)
		}
		status, err = pool.Upsert(ctx, tenant, "staff", "u1", vector, "Alice B.")
		if err != nil || status != database.Updated {
			t.Fatalf("Upsert() = %s, %v; want Updated", status, err)
		}

		records, err := pool.Fetch(ctx, tenant, "staff")
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 identity, got %d", len(records))
		}
		if records[0].Metadata != "Alice B." || len(records[0].Vector) != 128 {
			t.Errorf("unexpected identity %+v", records[0])
		}
		if records[0].Vector[64] != 0.5 {
			t.Errorf("expected vector to survive float32 storage, got %v", records[0].Vector[64])
		}
	})

	t.Run("Record", func(t *testing.T) {
		err := pool.Record(ctx, database.AuditEntry{Operation: "clear", Status: 404, At: time.Now()})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if err := pool.Record(ctx, database.AuditEntry{Operation: "clear", Status: 404}); err != nil {
			t.Fatalf("Record without timestamp: %v", err)
		}
	})

	t.Run("MigrateIsIdempotent", func(t *testing.T) {
		if err := pool.Migrate(ctx); err != nil {
			t.Fatalf("second Migrate: %v", err)
		}
		versions, err := pool.MigrationsApplied(ctx)
		if err != nil || len(versions) != 1 {
			t.Errorf("expected one applied migration, got %v, %v", versions, err)
		}
	})
}
