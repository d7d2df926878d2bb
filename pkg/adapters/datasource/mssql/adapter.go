package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource"
	"github.com/ddsprasad/data-sense-ai/pkg/config"
)

// Adapter provides SQL Server connectivity with SQL or service principal auth.
type Adapter struct {
	config *Config
	db     *sql.DB
}

// NewAdapter opens and pings a connection pool for cfg.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	driver, connStr, err := connectionString(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Adapter{config: cfg, db: db}, nil
}

// connectionString returns the driver name and DSN for cfg.
func connectionString(cfg *Config) (string, string, error) {
	host := config.ResolveHostForDocker(cfg.Host)

	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("app name", "data-sense-ai")
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	switch cfg.AuthMethod {
	case "sql":
		return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
			url.QueryEscape(cfg.Username),
			url.QueryEscape(cfg.Password),
			host,
			cfg.Port,
			query.Encode(),
		), nil
	case "service_principal":
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID)
		query.Add("password", cfg.ClientSecret)
		query.Add("tenant id", cfg.TenantID)
		// Azure AD requires the azuresql driver
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", host, cfg.Port, query.Encode()), nil
	default:
		return "", "", fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var current string
	if err := a.db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&current); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	if current != a.config.Database {
		return fmt.Errorf("connected to wrong database: expected %q, got %q", a.config.Database, current)
	}
	return nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// DB returns the underlying *sql.DB for use by the catalog reader and query executor.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

var _ datasource.ConnectionTester = (*Adapter)(nil)
