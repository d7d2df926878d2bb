package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource"
	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
	"github.com/ddsprasad/data-sense-ai/pkg/catalog"
	"github.com/ddsprasad/data-sense-ai/pkg/llm"
	"github.com/ddsprasad/data-sense-ai/pkg/logging"
	"github.com/ddsprasad/data-sense-ai/pkg/prompts"
	"github.com/ddsprasad/data-sense-ai/pkg/rules"
	"github.com/ddsprasad/data-sense-ai/pkg/topics"
)

// Outcome is the terminal result of a resolution.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeRejected  Outcome = "rejected"
)

// DefaultDisplayRows is how many rows callers are told to show.
const DefaultDisplayRows = 30

// Diagnostics shown to callers. Raw errors go to LastError and the logs.
const (
	DiagnosticEmptyQuestion      = "The question is empty."
	DiagnosticCatalogUnavailable = "The warehouse schema is unavailable, so no query can be generated."
	DiagnosticServiceUnavailable = "service unavailable"
	DiagnosticCancelled          = "The request was cancelled before a query succeeded."
	DiagnosticNoSQL              = "The model did not return a SQL query."
	DiagnosticEmptyResponse      = "The model returned an empty response."
)

// Resolution is the answer to one question.
type Resolution struct {
	TaskID      string                  `json:"task_id,omitempty"`
	Question    string                  `json:"question"`
	SQL         string                  `json:"sql,omitempty"`
	Columns     []datasource.ColumnInfo `json:"columns,omitempty"`
	Rows        []map[string]any        `json:"rows,omitempty"`
	RowCount    int                     `json:"row_count"`
	Truncated   bool                    `json:"truncated"`
	DisplayRows int                     `json:"display_rows"`
	Outcome     Outcome                 `json:"outcome"`
	Attempts    int                     `json:"attempts"`
	Tables      []string                `json:"tables,omitempty"`
	FollowUp    bool                    `json:"follow_up"`
	Cached      bool                    `json:"cached"`
	Diagnostic  string                  `json:"diagnostic,omitempty"`
	LastError   string                  `json:"last_error,omitempty"`
	History     []AttemptRecord         `json:"history,omitempty"`

	// Err wraps an apperrors sentinel for every non-success outcome.
	Err error `json:"-"`
}

// Succeeded reports whether the query ran.
func (r *Resolution) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeSucceeded
}

func (r *Resolution) clone() *Resolution {
	c := *r
	c.Columns = append([]datasource.ColumnInfo(nil), r.Columns...)
	c.Rows = append([]map[string]any(nil), r.Rows...)
	c.Tables = append([]string(nil), r.Tables...)
	c.History = append([]AttemptRecord(nil), r.History...)
	return &c
}

// CatalogSource supplies the current schema set. *catalog.Store implements it.
type CatalogSource interface {
	Get() (*catalog.Set, error)
	Refresh(ctx context.Context) error
}

// TableIndex shortlists tables for a question. *topics.Index implements it.
type TableIndex interface {
	Search(ctx context.Context, question string) topics.Result
	DefaultTables() []string
	Len() int
}

// ResolverConfig holds the pipeline knobs.
type ResolverConfig struct {
	Dialect        string
	MaxAttempts    int
	MaxRows        int
	DisplayRows    int
	ExecuteTimeout time.Duration
	Rules          *rules.Store
	Temporal       rules.TemporalContext
}

// BatchItem is one question of a ResolveBatch call.
type BatchItem struct {
	Question string        `json:"question"`
	Prior    *PriorContext `json:"prior,omitempty"`
}

// Status summarises the pipeline for health checks.
type Status struct {
	CatalogReady   bool       `json:"catalog_ready"`
	CatalogTables  int        `json:"catalog_tables"`
	CatalogBuiltAt time.Time  `json:"catalog_built_at"`
	TopicEntries   int        `json:"topic_entries"`
	RulesVersion   string     `json:"rules_version,omitempty"`
	RuleCount      int        `json:"rule_count"`
	Breaker        string       `json:"llm_circuit,omitempty"`
	Cache          CacheStats   `json:"cache"`
	Queries        QueryMetrics `json:"queries"`
}

// ResolverService turns questions into executed SQL.
type ResolverService interface {
	// Resolve answers one question. prior is nil for a fresh question.
	// The returned Resolution is never nil.
	Resolve(ctx context.Context, question string, prior *PriorContext) *Resolution
	// ResolveBatch resolves items concurrently on the worker pool. Results
	// are in input order.
	ResolveBatch(ctx context.Context, items []BatchItem) []*Resolution
	// RefreshSchema rebuilds the catalog. On failure the previous catalog stays.
	RefreshSchema(ctx context.Context) error
	Status() Status
}

type resolverService struct {
	catalog CatalogSource
	index   TableIndex
	runner  *taskRunner
	cache   ResponseCache
	pool    *llm.WorkerPool
	cfg     ResolverConfig
	logger  *zap.Logger

	breaker interface{ BreakerState() llm.CircuitState }
	metrics queryMetrics
}

// NewResolverService wires the pipeline. cache and pool may be nil.
func NewResolverService(
	catalogSource CatalogSource,
	index TableIndex,
	generator Generator,
	executor datasource.QueryExecutor,
	cache ResponseCache,
	pool *llm.WorkerPool,
	cfg ResolverConfig,
	logger *zap.Logger,
) ResolverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = datasource.MaxQueryLimit
	}
	if cfg.DisplayRows <= 0 {
		cfg.DisplayRows = DefaultDisplayRows
	}
	if cfg.Temporal.LatestYear == 0 {
		cfg.Temporal = rules.DefaultTemporalContext()
	}
	if pool == nil {
		pool = llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), logger)
	}

	s := &resolverService{
		catalog: catalogSource,
		index:   index,
		cache:   cache,
		pool:    pool,
		cfg:     cfg,
		logger:  logger.Named("resolver"),
		runner: &taskRunner{
			generator:      generator,
			executor:       executor,
			maxRows:        cfg.MaxRows,
			executeTimeout: cfg.ExecuteTimeout,
			logger:         logger.Named("question-task"),
		},
	}
	if b, ok := generator.(interface{ BreakerState() llm.CircuitState }); ok {
		s.breaker = b
	}
	return s
}

func (s *resolverService) Resolve(ctx context.Context, question string, prior *PriorContext) *Resolution {
	start := time.Now()
	res := s.resolve(ctx, question, prior)
	s.metrics.record(res, time.Since(start))
	return res
}

func (s *resolverService) resolve(ctx context.Context, question string, prior *PriorContext) *Resolution {
	question = strings.TrimSpace(question)
	followUp := prior.usable()
	kind := QuestionKindOriginal
	if followUp {
		kind = QuestionKindFollowUp
	}

	res := &Resolution{Question: question, FollowUp: followUp, DisplayRows: s.cfg.DisplayRows}

	if question == "" {
		return s.reject(res, DiagnosticEmptyQuestion,
			fmt.Errorf("%w: question is empty", apperrors.ErrValidationFailure))
	}
	if err := ctx.Err(); err != nil {
		return s.reject(res, DiagnosticCancelled, fmt.Errorf("%w: %w", apperrors.ErrCancelled, err))
	}

	if s.cache != nil {
		if hit, ok := s.cache.Get(kind, question, prior); ok {
			s.logger.Debug("Serving cached resolution", zap.String("kind", string(kind)))
			hit.Cached = true
			hit.FollowUp = followUp
			return hit
		}
	}

	set, err := s.catalog.Get()
	if err != nil {
		s.logger.Error("Catalog unavailable", zap.String("error", logging.SanitizeError(err)))
		return s.reject(res, DiagnosticCatalogUnavailable, err)
	}

	res.Tables = s.shortlist(ctx, question, prior)

	base := prompts.Assemble(prompts.Request{
		Question:      question,
		Dialect:       s.cfg.Dialect,
		Tables:        res.Tables,
		DefaultTables: s.defaultTables(),
		Schema:        set,
		Rules:         s.cfg.Rules,
		Temporal:      s.cfg.Temporal,
		Prior:         priorPrompt(prior),
	})
	if missing := set.Missing(res.Tables); len(missing) > 0 {
		s.logger.Warn("Shortlisted tables not in catalog", zap.Strings("tables", missing))
	}

	task := NewQuestionTask(question, res.Tables, s.cfg.MaxAttempts)
	res.TaskID = task.ID.String()
	start := time.Now()
	s.runner.run(ctx, task, base)

	res.SQL = task.SQL
	res.Attempts = task.Attempt
	res.LastError = task.LastError
	res.History = task.History
	res.Err = task.Err()

	fields := []zap.Field{
		zap.String("task_id", res.TaskID),
		zap.Bool("follow_up", followUp),
		zap.Int("attempts", task.Attempt),
		zap.Strings("tables", res.Tables),
		zap.Duration("elapsed", time.Since(start)),
	}

	switch task.State {
	case TaskStateSucceeded:
		result := task.Result()
		res.Outcome = OutcomeSucceeded
		if result != nil {
			res.Columns = result.Columns
			res.Rows = result.Rows
			res.RowCount = result.RowCount
			res.Truncated = result.Truncated
		}
		s.logger.Info("Question resolved", append(fields, zap.Int("rows", res.RowCount), zap.Bool("truncated", res.Truncated))...)
		if s.cache != nil {
			s.cache.Set(kind, question, prior, res)
		}
	case TaskStateExhausted:
		res.Outcome = OutcomeExhausted
		res.Diagnostic = fmt.Sprintf("The query still failed after %d attempts.", task.Attempt)
		s.logger.Error("Correction attempts exhausted",
			append(fields, zap.String("error", logging.SanitizeText(task.LastError)))...)
	default:
		res.Outcome = OutcomeRejected
		res.Diagnostic = rejectionDiagnostic(task)
		s.logger.Error("Question rejected",
			append(fields,
				zap.String("failure", string(task.LastFailure())),
				zap.String("error", logging.SanitizeError(task.Err())))...)
	}
	return res
}

// shortlist picks the tables the prompt describes. Follow-ups reuse the
// prior tables.
func (s *resolverService) shortlist(ctx context.Context, question string, prior *PriorContext) []string {
	if prior.usable() && len(prior.Tables) > 0 {
		return followUpTables(ctx, s.index, prior, question)
	}
	if s.index == nil {
		return nil
	}
	found := s.index.Search(ctx, question)
	if found.Degraded {
		s.logger.Warn("Topic index degraded, using default tables")
	}
	return found.Tables
}

func (s *resolverService) defaultTables() []string {
	if s.index == nil {
		return nil
	}
	return s.index.DefaultTables()
}

func priorPrompt(prior *PriorContext) *prompts.Prior {
	if prior == nil {
		return nil
	}
	return prior.prompt()
}

func (s *resolverService) reject(res *Resolution, diagnostic string, err error) *Resolution {
	res.Outcome = OutcomeRejected
	res.Diagnostic = diagnostic
	res.Err = err
	if err != nil {
		res.LastError = logging.SanitizeError(err)
	}
	return res
}

func rejectionDiagnostic(task *QuestionTask) string {
	switch task.LastFailure() {
	case FailureTransport:
		return DiagnosticServiceUnavailable
	case FailureCancelled:
		return DiagnosticCancelled
	case FailureEmpty:
		return DiagnosticEmptyResponse
	case FailureExtraction:
		return DiagnosticNoSQL
	case FailureValidation:
		detail := ""
		if n := len(task.History); n > 0 {
			detail = task.History[n-1].Detail
		}
		return "The generated query was rejected: " + detail + "."
	}
	if errors.Is(task.Err(), apperrors.ErrCancelled) {
		return DiagnosticCancelled
	}
	return "The question could not be answered."
}

func (s *resolverService) ResolveBatch(ctx context.Context, items []BatchItem) []*Resolution {
	work := make([]llm.WorkItem[*Resolution], len(items))
	for i, item := range items {
		work[i] = llm.WorkItem[*Resolution]{
			ID: fmt.Sprintf("question-%d", i),
			Execute: func(ctx context.Context) (*Resolution, error) {
				return s.Resolve(ctx, item.Question, item.Prior), nil
			},
		}
	}

	results := llm.Process(ctx, s.pool, work, nil)
	out := make([]*Resolution, len(items))
	for i, r := range results {
		if r.Result != nil {
			out[i] = r.Result
			continue
		}
		out[i] = s.reject(
			&Resolution{Question: strings.TrimSpace(items[i].Question), DisplayRows: s.cfg.DisplayRows},
			DiagnosticCancelled,
			fmt.Errorf("%w: %w", apperrors.ErrCancelled, r.Err))
		s.metrics.record(out[i], 0)
	}

	s.logger.Info("Batch resolved", zap.Int("questions", len(items)), zap.Int("concurrency", s.pool.MaxConcurrent()))
	return out
}

func (s *resolverService) RefreshSchema(ctx context.Context) error {
	start := time.Now()
	if err := s.catalog.Refresh(ctx); err != nil {
		s.logger.Error("Schema refresh failed, keeping previous catalog",
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("refresh schema: %w", err)
	}
	if s.cache != nil {
		s.cache.Clear()
	}

	tables := 0
	if set, err := s.catalog.Get(); err == nil {
		tables = set.Len()
	}
	s.logger.Info("Schema refreshed", zap.Int("tables", tables), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *resolverService) Status() Status {
	var st Status
	if set, err := s.catalog.Get(); err == nil {
		st.CatalogReady = true
		st.CatalogTables = set.Len()
		st.CatalogBuiltAt = set.BuiltAt()
	}
	if s.index != nil {
		st.TopicEntries = s.index.Len()
	}
	st.RulesVersion = s.cfg.Rules.Version()
	st.RuleCount = s.cfg.Rules.Len()
	if s.breaker != nil {
		st.Breaker = s.breaker.BreakerState().String()
	}
	if s.cache != nil {
		st.Cache = s.cache.Stats()
	}
	st.Queries = s.metrics.snapshot()
	return st
}

var _ ResolverService = (*resolverService)(nil)
