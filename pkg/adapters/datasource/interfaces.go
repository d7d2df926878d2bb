package datasource

import "context"

// MaxQueryLimit caps rows read by QueryExecutor.Query when the caller passes
// a non-positive or larger limit.
const MaxQueryLimit = 1000

// ConnectionTester tests database connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	Close() error
}

// CatalogReader introspects the warehouse for the schema catalog.
type CatalogReader interface {
	// DiscoverTables returns all user tables, excluding system schemas.
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns the columns of one table in ordinal order.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error)

	// DiscoverForeignKeys returns declared foreign key constraints only.
	DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error)

	// SampleRows returns up to limit rows of the table in storage order.
	SampleRows(ctx context.Context, schemaName, tableName string, limit int) (*QueryExecutionResult, error)

	Close() error
}

// QueryExecutor runs generated statements against the warehouse.
type QueryExecutor interface {
	// Query executes sqlQuery as given and reads at most maxRows rows.
	// The statement is never rewritten; when more rows exist, the result is
	// marked Truncated. A database rejection is returned as *DatabaseError.
	Query(ctx context.Context, sqlQuery string, maxRows int) (*QueryExecutionResult, error)

	// QuoteIdentifier quotes a name for the adapter's dialect.
	QuoteIdentifier(name string) string

	Close() error
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryExecutionResult holds the rows read from one statement.
type QueryExecutionResult struct {
	Columns   []ColumnInfo     `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// EffectiveLimit clamps limit into (0, MaxQueryLimit].
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
