package datasource

import (
	"context"
	"fmt"
)

// NewConnectionTester creates a connection tester for the given datasource type.
func NewConnectionTester(ctx context.Context, dsType string, config map[string]any) (ConnectionTester, error) {
	reg, ok := lookup(dsType)
	if !ok || reg.TesterFactory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s", dsType)
	}
	return reg.TesterFactory(ctx, config)
}

// NewCatalogReader creates a catalog reader for the given datasource type.
func NewCatalogReader(ctx context.Context, dsType string, config map[string]any) (CatalogReader, error) {
	reg, ok := lookup(dsType)
	if !ok || reg.CatalogReaderFactory == nil {
		return nil, fmt.Errorf("schema discovery not supported for type: %s", dsType)
	}
	return reg.CatalogReaderFactory(ctx, config)
}

// NewQueryExecutor creates a query executor for the given datasource type.
func NewQueryExecutor(ctx context.Context, dsType string, config map[string]any) (QueryExecutor, error) {
	reg, ok := lookup(dsType)
	if !ok || reg.QueryExecutorFactory == nil {
		return nil, fmt.Errorf("query execution not supported for type: %s", dsType)
	}
	return reg.QueryExecutorFactory(ctx, config)
}
