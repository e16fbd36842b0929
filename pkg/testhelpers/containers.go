// Package testhelpers starts the PostgreSQL container shared by integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/database"
)

// PostgresImage is the stock image used for both the scanned datasource and the results database.
const PostgresImage = "postgres:16-alpine"

const (
	testUser     = "ekaya"
	testPassword = "test_password"
	dataDB       = "test_data"
	resultsDB    = "ekaya_discover_test"
)

// TestDB holds a shared test database container and a pool on its data database.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run, and the
// data database is seeded with the fixture tables from SeedSQL.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

// ConnectionMap returns the datasource config map the postgres adapter reads.
func (db *TestDB) ConnectionMap() map[string]any {
	return map[string]any{
		"host":     db.Host,
		"port":     db.Port,
		"user":     db.User,
		"password": db.Password,
		"database": db.Database,
		"ssl_mode": "disable",
	}
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       dataDB,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		// The entrypoint restarts the server once after initdb, so the message appears twice.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		testUser, testPassword, host, port.Port(), dataDB)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("test database not reachable: %w", err)
	}

	if _, err := pool.Exec(ctx, SeedSQL); err != nil {
		return nil, fmt.Errorf("failed to seed test data: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE DATABASE "+resultsDB); err != nil {
		return nil, fmt.Errorf("failed to create results database: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port.Int(),
		User:      testUser,
		Password:  testPassword,
		Database:  dataDB,
	}, nil
}

// ResultsDB holds the results database connection with migrations applied.
type ResultsDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedResultsDB     *ResultsDB
	sharedResultsDBOnce sync.Once
	sharedResultsDBErr  error
)

// GetResultsDB returns a shared results database for integration tests.
// The database lives in the test container, has the embedded migrations applied
// and is reused across all tests.
func GetResultsDB(t *testing.T) *ResultsDB {
	t.Helper()

	// Ensure test container is running first
	testDB := GetTestDB(t)

	sharedResultsDBOnce.Do(func() {
		sharedResultsDB, sharedResultsDBErr = setupResultsDB(testDB)
	})

	if sharedResultsDBErr != nil {
		t.Fatalf("Failed to setup results database: %v", sharedResultsDBErr)
	}

	return sharedResultsDB
}

func setupResultsDB(testDB *TestDB) (*ResultsDB, error) {
	ctx := context.Background()

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		testDB.User, testDB.Password, testDB.Host, testDB.Port, resultsDB)

	db, err := database.Open(ctx, &database.Config{URL: connStr, MaxConnections: 5}, "", zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}

	return &ResultsDB{
		DB:      db,
		ConnStr: connStr,
	}, nil
}
