package mssql

import (
	"context"

	"github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource"
)

// QueryExecutor provides SQL Server query execution.
type QueryExecutor struct {
	adapter *Adapter
}

// NewQueryExecutor creates a SQL Server query executor.
func NewQueryExecutor(ctx context.Context, cfg *Config) (*QueryExecutor, error) {
	adapter, err := NewAdapter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &QueryExecutor{adapter: adapter}, nil
}

// Query runs a statement as written and reads at most maxRows rows.
// The statement is not wrapped in TOP: generated queries may be CTEs or
// DECLARE batches that cannot be nested in a derived table.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, maxRows int) (*datasource.QueryExecutionResult, error) {
	rows, err := e.adapter.DB().QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return scanRows(rows, datasource.EffectiveLimit(maxRows))
}

// QuoteIdentifier wraps a SQL Server identifier in brackets.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteName(name)
}

func (e *QueryExecutor) Close() error {
	return e.adapter.Close()
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
