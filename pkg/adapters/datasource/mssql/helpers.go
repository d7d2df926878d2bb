package mssql

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource"
)

// quoteName quotes an identifier the way QUOTENAME() does: brackets, with ] doubled.
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// buildFullyQualifiedName builds a fully qualified table name: [schema].[table]
func buildFullyQualifiedName(schema, table string) string {
	return fmt.Sprintf("%s.%s", quoteName(schema), quoteName(table))
}

// mapSQLServerType maps SQL Server type names to the names rendered in the catalog.
// Declared T-SQL names are kept where the model needs them to write valid T-SQL.
func mapSQLServerType(sqlServerType string) string {
	switch t := strings.ToUpper(sqlServerType); t {
	case "INT":
		return "INT"
	case "NUMERIC":
		return "DECIMAL"
	case "NTEXT":
		return "NVARCHAR(MAX)"
	case "TEXT":
		return "VARCHAR(MAX)"
	case "IMAGE":
		return "VARBINARY(MAX)"
	default:
		return t
	}
}

// isStringType returns true if the type is a string type in SQL Server.
func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	}
	return false
}

// isDecimalType returns true for types the driver returns as []byte digits.
func isDecimalType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

// scanRows reads at most maxRows rows and reports whether more were available.
func scanRows(rows *sql.Rows, maxRows int) (*datasource.QueryExecutionResult, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]datasource.ColumnInfo, len(columnNames))
	for i, colName := range columnNames {
		columns[i] = datasource.ColumnInfo{
			Name: colName,
			Type: mapSQLServerType(columnTypes[i].DatabaseTypeName()),
		}
	}

	result := &datasource.QueryExecutionResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}
	for rows.Next() {
		if len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			rowMap[col] = convertValue(values[i], columnTypes[i].DatabaseTypeName())
		}
		result.Rows = append(result.Rows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

func convertValue(val any, dbType string) any {
	b, ok := val.([]byte)
	if !ok {
		return val
	}
	switch {
	case isStringType(dbType):
		return string(b)
	case isDecimalType(dbType):
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
		return string(b)
	}
	return val
}

// mapError converts a driver error into a *datasource.DatabaseError keyed on
// the SQL Server error number. Other errors are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var msErr mssqldb.Error
	if errors.As(err, &msErr) {
		return &datasource.DatabaseError{
			Message: msErr.Message,
			Code:    strconv.Itoa(int(msErr.Number)),
			Cause:   err,
		}
	}
	return err
}
