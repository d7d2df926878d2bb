package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestTrimString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"whitespace only", "   ", ""},
		{"both sides whitespace", "  test  ", "test"},
		{"mixed whitespace", " \t\ntest\n\t ", "test"},
		{"no whitespace", "test", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, trimString(tt.input))
		})
	}
}

func TestGetOptionalString(t *testing.T) {
	req := mcp.CallToolRequest{}
	assert.Equal(t, "", getOptionalString(req, "prior_sql"), "nil arguments")

	req.Params.Arguments = map[string]any{"prior_sql": "  SELECT 1  ", "n": 3}
	assert.Equal(t, "SELECT 1", getOptionalString(req, "prior_sql"))
	assert.Equal(t, "", getOptionalString(req, "n"), "wrong type")
	assert.Equal(t, "", getOptionalString(req, "missing"))
}

func TestGetStringSlice(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"native array", map[string]any{"tables": []any{"fact_loan", " dim_date "}}, []string{"fact_loan", "dim_date"}},
		{"comma separated", map[string]any{"tables": "fact_loan, dim_date,,"}, []string{"fact_loan", "dim_date"}},
		{"non-string items skipped", map[string]any{"tables": []any{"fact_loan", 7}}, []string{"fact_loan"}},
		{"missing", map[string]any{}, nil},
		{"nil args", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mcp.CallToolRequest{}
			if tt.args != nil {
				req.Params.Arguments = tt.args
			}
			assert.Equal(t, tt.want, getStringSlice(req, "tables"))
		})
	}
}
