// Package testhelpers starts a disposable PostgreSQL warehouse for
// integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// WarehouseImage is the PostgreSQL image the test warehouse runs on.
const WarehouseImage = "postgres:16-alpine"

const (
	warehouseDB       = "warehouse"
	warehouseUser     = "dsa"
	warehousePassword = "test_password"
)

// WarehouseTables lists the seeded star-schema tables.
var WarehouseTables = []string{"dim_branch", "dim_date", "dim_member", "fact_loan"}

// TestDB holds a shared warehouse container and an admin connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
}

// DatasourceConfig returns the settings map consumed by the datasource
// adapter factories.
func (db *TestDB) DatasourceConfig() map[string]any {
	return map[string]any{
		"host":     db.Host,
		"port":     db.Port,
		"user":     warehouseUser,
		"password": warehousePassword,
		"database": warehouseDB,
		"ssl_mode": "disable",
	}
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL warehouse for integration tests.
// The container is created and seeded once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test warehouse: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        WarehouseImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       warehouseDB,
			"POSTGRES_USER":     warehouseUser,
			"POSTGRES_PASSWORD": warehousePassword,
		},
		// The entrypoint restarts postgres once after init; wait for the second start.
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

	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return nil, fmt.Errorf("invalid container port %q: %w", mapped.Port(), err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		warehouseUser, warehousePassword, host, port, warehouseDB)

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
		pool.Close()
		return nil, fmt.Errorf("warehouse never became reachable: %w", err)
	}

	if _, err := pool.Exec(ctx, seedSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to seed warehouse: %w", err)
	}
	// Row estimates come from pg_class.reltuples, which needs statistics.
	if _, err := pool.Exec(ctx, "ANALYZE"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to analyze warehouse: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port,
	}, nil
}

// seedSQL is a small credit-union star schema.
const seedSQL = `
CREATE TABLE dim_branch (
	branch_key  INT PRIMARY KEY,
	branch_name TEXT NOT NULL,
	region      TEXT
);

CREATE TABLE dim_date (
	date_key  INT PRIMARY KEY,
	full_date DATE NOT NULL,
	year      INT NOT NULL,
	quarter   INT NOT NULL,
	month     INT NOT NULL
);

CREATE TABLE dim_member (
	member_key  INT PRIMARY KEY,
	member_name TEXT NOT NULL,
	branch_key  INT REFERENCES dim_branch (branch_key),
	joined_date DATE
);

CREATE TABLE fact_loan (
	loan_key   INT PRIMARY KEY,
	member_key INT NOT NULL REFERENCES dim_member (member_key),
	branch_key INT NOT NULL REFERENCES dim_branch (branch_key),
	date_key   INT NOT NULL REFERENCES dim_date (date_key),
	amount     NUMERIC(12, 2) NOT NULL,
	status     TEXT NOT NULL
);

INSERT INTO dim_branch VALUES
	(1, 'Downtown', 'North'),
	(2, 'Riverside', 'South'),
	(3, 'Hillcrest', 'North');

INSERT INTO dim_date VALUES
	(20241001, '2024-10-01', 2024, 4, 10),
	(20241101, '2024-11-01', 2024, 4, 11),
	(20241201, '2024-12-01', 2024, 4, 12);

INSERT INTO dim_member VALUES
	(1, 'Ada Park', 1, '2019-03-14'),
	(2, 'Ben Ortiz', 2, '2020-07-01'),
	(3, 'Cho Lin', 1, '2021-01-20'),
	(4, 'Dee Moss', 3, '2022-05-09');

INSERT INTO fact_loan VALUES
	(1, 1, 1, 20241001, 12000.00, 'disbursed'),
	(2, 2, 2, 20241001, 8500.00, 'disbursed'),
	(3, 3, 1, 20241101, 23000.00, 'disbursed'),
	(4, 4, 3, 20241101, 4000.00, 'declined'),
	(5, 1, 1, 20241201, 15500.00, 'disbursed'),
	(6, 2, 2, 20241201, 9900.00, 'pending');
`
