package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct{}

func (stubExecutor) Query(context.Context, string, int) (*QueryExecutionResult, error) {
	return &QueryExecutionResult{}, nil
}
func (stubExecutor) QuoteIdentifier(name string) string { return name }
func (stubExecutor) Close() error                       { return nil }

func TestRegistry(t *testing.T) {
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{Type: "stub-test", DisplayName: "Stub"},
		QueryExecutorFactory: func(ctx context.Context, config map[string]any) (QueryExecutor, error) {
			return stubExecutor{}, nil
		},
	})

	assert.True(t, IsRegistered("stub-test"))
	assert.False(t, IsRegistered("oracle"))

	exec, err := NewQueryExecutor(context.Background(), "stub-test", nil)
	require.NoError(t, err)
	assert.NotNil(t, exec)

	_, err = NewCatalogReader(context.Background(), "stub-test", nil)
	assert.Error(t, err, "registered without a catalog reader")

	_, err = NewConnectionTester(context.Background(), "oracle", nil)
	assert.Error(t, err)

	var found bool
	for _, info := range RegisteredAdapters() {
		if info.Type == "stub-test" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDatabaseError(t *testing.T) {
	cause := errors.New("Invalid column name 'member_nme'.")
	err := NewDatabaseError("207", cause)

	assert.Equal(t, "database error 207: Invalid column name 'member_nme'.", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := errors.Join(errors.New("execute"), err)
	got, ok := AsDatabaseError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "207", got.Code)

	_, ok = AsDatabaseError(errors.New("plain"))
	assert.False(t, ok)

	assert.Equal(t, "database error: boom", (&DatabaseError{Message: "boom"}).Error())
}

func TestEffectiveLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, MaxQueryLimit},
		{-5, MaxQueryLimit},
		{10, 10},
		{MaxQueryLimit + 1, MaxQueryLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EffectiveLimit(tt.in))
	}
}
