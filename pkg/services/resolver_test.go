package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource"
	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
	"github.com/ddsprasad/data-sense-ai/pkg/catalog"
	"github.com/ddsprasad/data-sense-ai/pkg/llm"
	"github.com/ddsprasad/data-sense-ai/pkg/retry"
	"github.com/ddsprasad/data-sense-ai/pkg/rules"
	"github.com/ddsprasad/data-sense-ai/pkg/topics"
)

// ============================================================================
// Stubs
// ============================================================================

type stubCatalog struct {
	mu         sync.Mutex
	set        *catalog.Set
	err        error
	refreshErr error
	refreshes  int
	next       *catalog.Set
}

func (c *stubCatalog) Get() (*catalog.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.set, nil
}

func (c *stubCatalog) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	if c.refreshErr != nil {
		return c.refreshErr
	}
	if c.next != nil {
		c.set = c.next
	}
	c.err = nil
	return nil
}

type stubIndex struct {
	result   topics.Result
	defaults []string
	searches atomic.Int32
}

func (i *stubIndex) Search(ctx context.Context, question string) topics.Result {
	i.searches.Add(1)
	return i.result
}

func (i *stubIndex) DefaultTables() []string { return i.defaults }
func (i *stubIndex) Len() int                { return 4 }

type stubExecutor struct {
	QueryFunc func(ctx context.Context, sqlQuery string, maxRows int) (*datasource.QueryExecutionResult, error)

	mu      sync.Mutex
	queries []string
}

func (e *stubExecutor) Query(ctx context.Context, sqlQuery string, maxRows int) (*datasource.QueryExecutionResult, error) {
	e.mu.Lock()
	e.queries = append(e.queries, sqlQuery)
	e.mu.Unlock()
	if e.QueryFunc != nil {
		return e.QueryFunc(ctx, sqlQuery, maxRows)
	}
	return oneRow(), nil
}

func (e *stubExecutor) QuoteIdentifier(name string) string { return "[" + name + "]" }
func (e *stubExecutor) Close() error                       { return nil }

func (e *stubExecutor) Queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queries...)
}

func oneRow() *datasource.QueryExecutionResult {
	return &datasource.QueryExecutionResult{
		Columns:  []datasource.ColumnInfo{{Name: "branch_name", Type: "NVARCHAR"}, {Name: "loans", Type: "INT"}},
		Rows:     []map[string]any{{"branch_name": "Downtown", "loans": int64(42)}},
		RowCount: 1,
	}
}

func invalidColumn() error {
	return datasource.NewDatabaseError("207", errors.New("Invalid column name 'member_nme'."))
}

func testSet() *catalog.Set {
	return catalog.NewSet([]*catalog.Descriptor{
		{
			Schema: "dbo", Name: "dim_branch",
			Columns: []catalog.Column{{Name: "branch_key", Type: "INT", PrimaryKey: true}, {Name: "branch_name", Type: "NVARCHAR(100)", Nullable: true}},
		},
		{
			Schema: "dbo", Name: "fact_loan",
			Columns: []catalog.Column{{Name: "loan_key", Type: "INT", PrimaryKey: true}, {Name: "branch_key", Type: "INT"}, {Name: "amount", Type: "DECIMAL"}},
		},
		{
			Schema: "dbo", Name: "dim_date",
			Columns: []catalog.Column{{Name: "date_key", Type: "INT", PrimaryKey: true}, {Name: "year", Type: "INT"}},
		},
	}, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
}

const (
	goodSQL  = "SELECT b.branch_name, COUNT(*) AS loans FROM dbo.fact_loan f JOIN dbo.dim_branch b ON b.branch_key = f.branch_key GROUP BY b.branch_name"
	fixedSQL = "SELECT b.branch_name, COUNT(f.loan_key) AS loans FROM dbo.fact_loan f JOIN dbo.dim_branch b ON b.branch_key = f.branch_key GROUP BY b.branch_name"
)

func fenced(sqlQuery string) string {
	return "```sql\n" + sqlQuery + "\n```"
}

func noRetry() *retry.Config {
	return &retry.Config{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

type harness struct {
	provider *llm.MockProvider
	executor *stubExecutor
	catalog  *stubCatalog
	index    *stubIndex
	cache    ResponseCache
	svc      ResolverService
}

func newHarness(t *testing.T, provider *llm.MockProvider, withCache bool) *harness {
	t.Helper()
	h := &harness{
		provider: provider,
		executor: &stubExecutor{},
		catalog:  &stubCatalog{set: testSet()},
		index: &stubIndex{
			result:   topics.Result{Tables: []string{"fact_loan", "dim_branch"}},
			defaults: []string{"dim_date"},
		},
	}
	if withCache {
		h.cache = NewResponseCache(time.Hour, 0)
	}
	gen := llm.NewGenerator(provider, llm.GeneratorConfig{Timeout: time.Second, Retry: noRetry()}, zap.NewNop())
	h.svc = NewResolverService(h.catalog, h.index, gen, h.executor, h.cache,
		llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop()),
		ResolverConfig{
			Dialect:     "Microsoft SQL Server (T-SQL)",
			MaxAttempts: 3,
			Rules:       rules.NewStore("v1", nil),
		},
		zap.NewNop())
	return h
}

// ============================================================================
// Resolve
// ============================================================================

func TestResolve_SucceedsOnFirstAttempt(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL+";")), false)

	res := h.svc.Resolve(context.Background(), "  How many loans per branch?  ", nil)

	require.Equal(t, OutcomeSucceeded, res.Outcome, res.Diagnostic)
	assert.True(t, res.Succeeded())
	assert.NoError(t, res.Err)
	assert.Equal(t, "How many loans per branch?", res.Question)
	assert.Equal(t, goodSQL, res.SQL)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"fact_loan", "dim_branch"}, res.Tables)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, DefaultDisplayRows, res.DisplayRows)
	assert.Empty(t, res.Diagnostic)
	assert.NotEmpty(t, res.TaskID)
	assert.Equal(t, []string{goodSQL}, h.executor.Queries())

	prompt := h.provider.Prompts()[0]
	assert.Contains(t, prompt, "CREATE TABLE dbo.fact_loan")
	assert.Contains(t, prompt, "CREATE TABLE dbo.dim_branch")
	assert.NotContains(t, prompt, "CREATE TABLE dbo.dim_date")
	assert.Contains(t, prompt, "How many loans per branch?")
}

func TestResolve_CorrectsOnSecondAttempt(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL), fenced(fixedSQL)), false)
	var calls atomic.Int32
	h.executor.QueryFunc = func(ctx context.Context, sqlQuery string, maxRows int) (*datasource.QueryExecutionResult, error) {
		if calls.Add(1) == 1 {
			return nil, invalidColumn()
		}
		return oneRow(), nil
	}

	res := h.svc.Resolve(context.Background(), "How many loans per branch?", nil)

	require.Equal(t, OutcomeSucceeded, res.Outcome, res.Diagnostic)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, fixedSQL, res.SQL)
	assert.Equal(t, []string{goodSQL, fixedSQL}, h.executor.Queries())
	require.Len(t, res.History, 2)
	assert.Equal(t, FailureExecution, res.History[0].Failure)
	assert.Equal(t, FailureNone, res.History[1].Failure)

	prompts := h.provider.Prompts()
	require.Len(t, prompts, 2)
	assert.True(t, strings.HasPrefix(prompts[1], prompts[0]), "correction prompt must extend the base prompt")
	assert.Contains(t, prompts[1], "The previous query failed with error: database error 207: Invalid column name 'member_nme'.")
	assert.Contains(t, prompts[1], goodSQL)
}

func TestResolve_CorrectionIsBounded(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), false)
	h.executor.QueryFunc = func(ctx context.Context, sqlQuery string, maxRows int) (*datasource.QueryExecutionResult, error) {
		return nil, invalidColumn()
	}

	res := h.svc.Resolve(context.Background(), "How many loans per branch?", nil)

	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, h.provider.Calls())
	assert.Len(t, h.executor.Queries(), 3)
	assert.Equal(t, goodSQL, res.SQL)
	assert.Equal(t, "database error 207: Invalid column name 'member_nme'.", res.LastError)
	assert.Contains(t, res.Diagnostic, "3 attempts")
	assert.True(t, errors.Is(res.Err, apperrors.ErrExhausted))
	assert.True(t, errors.Is(res.Err, apperrors.ErrExecutionFailure))

	for _, p := range h.provider.Prompts()[1:] {
		assert.Equal(t, 1, strings.Count(p, "### CORRECTION"), "corrections must not accumulate")
	}
}

func TestResolve_ValidationFailures(t *testing.T) {
	tests := []struct {
		name      string
		responses []string
		outcome   Outcome
		attempts  int
		executed  int
		sentinel  error
	}{
		{
			name:      "always unsafe",
			responses: []string{fenced("SELECT * FROM dbo.dim_branch; DROP TABLE dbo.dim_branch")},
			outcome:   OutcomeRejected,
			attempts:  3,
			executed:  0,
			sentinel:  apperrors.ErrValidationFailure,
		},
		{
			name:      "unsafe then valid",
			responses: []string{fenced("DELETE FROM dbo.fact_loan WHERE 1 = 1"), fenced(goodSQL)},
			outcome:   OutcomeSucceeded,
			attempts:  2,
			executed:  1,
		},
		{
			name:      "never returns sql",
			responses: []string{"I am not able to answer with the tables provided."},
			outcome:   OutcomeRejected,
			attempts:  3,
			executed:  0,
			sentinel:  apperrors.ErrExtractionFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, llm.NewMockProvider(tt.responses...), false)

			res := h.svc.Resolve(context.Background(), "How many loans per branch?", nil)

			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.attempts, res.Attempts)
			assert.Len(t, h.executor.Queries(), tt.executed)
			if tt.sentinel != nil {
				assert.True(t, errors.Is(res.Err, tt.sentinel), "got %v", res.Err)
				assert.NotEmpty(t, res.Diagnostic)
			}
			if tt.attempts > 1 {
				assert.Contains(t, h.provider.Prompts()[1], "### REMINDER")
			}
		})
	}
}

func TestResolve_EmptyResponseConsumesAttempt(t *testing.T) {
	provider := &llm.MockProvider{Responses: []llm.MockResponse{{Text: "   "}, {Text: fenced(goodSQL)}}}
	h := newHarness(t, provider, false)

	res := h.svc.Resolve(context.Background(), "How many loans per branch?", nil)

	require.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, FailureEmpty, res.History[0].Failure)
}

func TestResolve_TransportFailure(t *testing.T) {
	provider := &llm.MockProvider{Responses: []llm.MockResponse{
		{Err: llm.NewError(llm.ErrorTypeServiceError, "invalid api key", false, nil)},
	}}
	h := newHarness(t, provider, false)

	res := h.svc.Resolve(context.Background(), "How many loans per branch?", nil)

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, DiagnosticServiceUnavailable, res.Diagnostic)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, provider.Calls())
	assert.Empty(t, h.executor.Queries())
	assert.True(t, errors.Is(res.Err, apperrors.ErrTransportFailure))
}

func TestResolve_CatalogUnavailable(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), false)
	h.catalog.err = fmt.Errorf("%w: catalog has not been built", apperrors.ErrCatalogUnavailable)

	res := h.svc.Resolve(context.Background(), "How many loans per branch?", nil)

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, DiagnosticCatalogUnavailable, res.Diagnostic)
	assert.True(t, errors.Is(res.Err, apperrors.ErrCatalogUnavailable))
	assert.Zero(t, h.provider.Calls())
}

func TestResolve_EmptyQuestion(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), false)

	res := h.svc.Resolve(context.Background(), "   ", nil)

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, DiagnosticEmptyQuestion, res.Diagnostic)
	assert.Zero(t, h.provider.Calls())
}

func TestResolve_Cancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), false)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := h.svc.Resolve(ctx, "How many loans per branch?", nil)

		assert.Equal(t, OutcomeRejected, res.Outcome)
		assert.Equal(t, DiagnosticCancelled, res.Diagnostic)
		assert.True(t, errors.Is(res.Err, apperrors.ErrCancelled))
		assert.Zero(t, h.provider.Calls())
	})

	t.Run("during execution", func(t *testing.T) {
		h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), false)
		ctx, cancel := context.WithCancel(context.Background())
		h.executor.QueryFunc = func(qctx context.Context, sqlQuery string, maxRows int) (*datasource.QueryExecutionResult, error) {
			cancel()
			return nil, qctx.Err()
		}

		res := h.svc.Resolve(ctx, "How many loans per branch?", nil)

		assert.Equal(t, OutcomeRejected, res.Outcome)
		assert.Equal(t, DiagnosticCancelled, res.Diagnostic)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, 1, h.provider.Calls(), "no correction after cancellation")
	})
}

func TestResolve_ShortlistFallback(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), false)
	h.index.result = topics.Result{Tables: []string{"dim_date"}, Fallback: true}

	res := h.svc.Resolve(context.Background(), "Something unrelated", nil)

	require.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, []string{"dim_date"}, res.Tables)
	assert.Contains(t, h.provider.Prompts()[0], "CREATE TABLE dbo.dim_date")
}

func TestResolve_FollowUpSeedsPriorContext(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(fixedSQL)), false)
	h.index.result = topics.Result{Tables: []string{"dim_date", "dim_branch"}}
	prior := &PriorContext{
		Question: "How many loans per branch?",
		SQL:      goodSQL,
		Tables:   []string{"fact_loan", "dim_branch"},
	}

	res := h.svc.Resolve(context.Background(), "Only for 2024", prior)

	require.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.True(t, res.FollowUp)
	assert.Equal(t, []string{"fact_loan", "dim_branch", "dim_date"}, res.Tables)

	prompt := h.provider.Prompts()[0]
	assert.Contains(t, prompt, "### PREVIOUS QUESTION")
	assert.Contains(t, prompt, "Previous question: How many loans per branch?")
	assert.Contains(t, prompt, "```sql\n"+goodSQL+"\n```")
	assert.Equal(t, []string{fixedSQL}, h.executor.Queries(), "prior SQL is never re-run")
}

func TestResolve_FollowUpIgnoresFallbackTables(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(fixedSQL)), false)
	h.index.result = topics.Result{Tables: []string{"dim_date"}, Fallback: true}
	prior := &PriorContext{Question: "q", SQL: goodSQL, Tables: []string{"fact_loan"}}

	res := h.svc.Resolve(context.Background(), "and by month?", prior)

	assert.Equal(t, []string{"fact_loan"}, res.Tables)
}

func TestResolve_Cache(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), true)

	first := h.svc.Resolve(context.Background(), "How many loans per branch?", nil)
	second := h.svc.Resolve(context.Background(), "how many   LOANS per branch?", nil)

	require.Equal(t, OutcomeSucceeded, first.Outcome)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, 1, h.provider.Calls())

	stats := h.cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestResolve_FailuresAreNotCached(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider("no sql here"), true)

	h.svc.Resolve(context.Background(), "How many loans per branch?", nil)
	h.svc.Resolve(context.Background(), "How many loans per branch?", nil)

	assert.Equal(t, 6, h.provider.Calls())
	assert.Zero(t, h.cache.Stats().Entries)
}

// ============================================================================
// ResolveBatch, RefreshSchema, Status
// ============================================================================

func TestResolveBatch_PreservesOrder(t *testing.T) {
	provider := &llm.MockProvider{
		CompleteFunc: func(ctx context.Context, prompt, system string) (*llm.Completion, error) {
			col := "branch_name"
			if strings.Contains(prompt, "second question") {
				col = "amount"
			}
			return &llm.Completion{Text: fenced("SELECT " + col + ", 1 AS n FROM dbo.fact_loan")}, nil
		},
	}
	h := newHarness(t, provider, false)

	out := h.svc.ResolveBatch(context.Background(), []BatchItem{
		{Question: "first question"},
		{Question: "second question"},
		{Question: ""},
	})

	require.Len(t, out, 3)
	assert.Equal(t, "first question", out[0].Question)
	assert.Contains(t, out[0].SQL, "branch_name")
	assert.Equal(t, "second question", out[1].Question)
	assert.Contains(t, out[1].SQL, "amount")
	assert.Equal(t, OutcomeRejected, out[2].Outcome)
}

func TestRefreshSchema(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), true)
	h.svc.Resolve(context.Background(), "How many loans per branch?", nil)
	require.Equal(t, 1, h.cache.Stats().Entries)

	h.catalog.refreshErr = errors.New("connection refused")
	err := h.svc.RefreshSchema(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, h.cache.Stats().Entries, "failed refresh keeps cache")
	assert.Equal(t, 3, h.svc.Status().CatalogTables)

	h.catalog.refreshErr = nil
	h.catalog.next = catalog.NewSet(testSet().Descriptors()[:1], time.Now())
	require.NoError(t, h.svc.RefreshSchema(context.Background()))
	assert.Zero(t, h.cache.Stats().Entries)
	assert.Equal(t, 1, h.svc.Status().CatalogTables)
	assert.Equal(t, 2, h.catalog.refreshes)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), true)

	st := h.svc.Status()

	assert.True(t, st.CatalogReady)
	assert.Equal(t, 3, st.CatalogTables)
	assert.Equal(t, 4, st.TopicEntries)
	assert.Equal(t, "v1", st.RulesVersion)
	assert.Equal(t, llm.CircuitClosed.String(), st.Breaker)
}

func TestStatus_CountsOutcomes(t *testing.T) {
	provider := &llm.MockProvider{Responses: []llm.MockResponse{
		{Text: fenced(goodSQL)},
		{Err: llm.NewError(llm.ErrorTypeServiceError, "invalid api key", false, nil)},
	}}
	h := newHarness(t, provider, true)
	ctx := context.Background()

	require.True(t, h.svc.Resolve(ctx, "How many loans per branch?", nil).Succeeded())
	require.True(t, h.svc.Resolve(ctx, "How many loans per branch?", nil).Cached)
	assert.Equal(t, OutcomeRejected, h.svc.Resolve(ctx, "Which branch is newest?", nil).Outcome)
	h.svc.Resolve(ctx, "   ", nil)

	q := h.svc.Status().Queries
	assert.EqualValues(t, 4, q.Total)
	assert.EqualValues(t, 2, q.Succeeded)
	assert.EqualValues(t, 1, q.Cached)
	assert.EqualValues(t, 2, q.Failed)
	assert.EqualValues(t, 1, q.LLMErrors)
	assert.EqualValues(t, 1, q.ValidationFailures)
	assert.Zero(t, q.ExtractionFailures)
	assert.Zero(t, q.ExecutionErrors)
	assert.Equal(t, q.TotalTime/4, q.AvgTime)
}

func TestStatus_CountsExhaustedAsExecutionError(t *testing.T) {
	h := newHarness(t, llm.NewMockProvider(fenced(goodSQL)), false)
	h.executor.QueryFunc = func(ctx context.Context, sqlQuery string, maxRows int) (*datasource.QueryExecutionResult, error) {
		return nil, invalidColumn()
	}

	res := h.svc.Resolve(context.Background(), "How many loans per branch?", nil)
	require.Equal(t, OutcomeExhausted, res.Outcome)

	q := h.svc.Status().Queries
	assert.EqualValues(t, 1, q.Failed)
	assert.EqualValues(t, 1, q.ExecutionErrors)
}
