package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource"
	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
	"github.com/ddsprasad/data-sense-ai/pkg/llm"
	"github.com/ddsprasad/data-sense-ai/pkg/logging"
	"github.com/ddsprasad/data-sense-ai/pkg/prompts"
	sqlcheck "github.com/ddsprasad/data-sense-ai/pkg/sql"
)

// DefaultMaxAttempts is the correction ceiling when none is configured.
const DefaultMaxAttempts = 3

// TaskState is where a QuestionTask is in the correction loop.
type TaskState string

const (
	TaskStateDrafting   TaskState = "drafting"
	TaskStateValidating TaskState = "validating"
	TaskStateExecuting  TaskState = "executing"
	TaskStateCorrecting TaskState = "correcting"
	TaskStateSucceeded  TaskState = "succeeded"
	TaskStateExhausted  TaskState = "exhausted"
	TaskStateRejected   TaskState = "rejected"
)

// Terminal reports whether no further attempts happen from s.
func (s TaskState) Terminal() bool {
	return s == TaskStateSucceeded || s == TaskStateExhausted || s == TaskStateRejected
}

// FailureKind classifies why an attempt did not succeed.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureEmpty      FailureKind = "empty_response"
	FailureExtraction FailureKind = "extraction"
	FailureValidation FailureKind = "validation"
	FailureExecution  FailureKind = "execution"
	FailureTransport  FailureKind = "transport"
	FailureCancelled  FailureKind = "cancelled"
)

// AttemptRecord is what happened on one attempt.
type AttemptRecord struct {
	Attempt int         `json:"attempt"`
	SQL     string      `json:"sql,omitempty"`
	Failure FailureKind `json:"failure,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

// QuestionTask is one resolution of one question. It is owned by a single
// request and never shared.
type QuestionTask struct {
	ID          uuid.UUID
	Question    string
	Tables      []string
	MaxAttempts int

	State     TaskState
	Attempt   int
	SQL       string
	LastError string
	History   []AttemptRecord

	result *datasource.QueryExecutionResult
	err    error
	last   FailureKind
}

// NewQuestionTask creates a task in the drafting state.
func NewQuestionTask(question string, tables []string, maxAttempts int) *QuestionTask {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &QuestionTask{
		ID:          uuid.New(),
		Question:    question,
		Tables:      append([]string(nil), tables...),
		MaxAttempts: maxAttempts,
		State:       TaskStateDrafting,
	}
}

// Remaining returns how many attempts are left.
func (t *QuestionTask) Remaining() int {
	return t.MaxAttempts - t.Attempt
}

// Err returns the terminal error, nil on success.
func (t *QuestionTask) Err() error { return t.err }

// Result returns the rows of a succeeded task.
func (t *QuestionTask) Result() *datasource.QueryExecutionResult { return t.result }

// LastFailure returns the kind of the most recent failed attempt.
func (t *QuestionTask) LastFailure() FailureKind { return t.last }

// record appends a failed attempt. LastError always describes the same
// attempt as SQL.
func (t *QuestionTask) record(kind FailureKind, detail string) {
	t.last = kind
	t.LastError = detail
	t.History = append(t.History, AttemptRecord{Attempt: t.Attempt, SQL: t.SQL, Failure: kind, Detail: detail})
}

// Generator produces model text for a prompt. *llm.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string) *llm.GenerationResult
}

// taskRunner drives QuestionTasks through generate, extract, validate and
// execute until one succeeds or the ceiling is hit.
type taskRunner struct {
	generator      Generator
	executor       datasource.QueryExecutor
	maxRows        int
	executeTimeout time.Duration
	logger         *zap.Logger
}

// run executes the loop. base is the assembled generation prompt; every
// retry is derived from it, never from an earlier retry prompt.
func (r *taskRunner) run(ctx context.Context, task *QuestionTask, base string) {
	prompt := base
	fields := []zap.Field{zap.String("task_id", task.ID.String())}

	for task.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			r.cancel(task, err)
			return
		}

		task.Attempt++
		task.SQL = ""
		task.State = TaskStateDrafting
		attemptFields := append(fields, zap.Int("attempt", task.Attempt))

		r.logger.Debug("Generating SQL", append(attemptFields, zap.Int("prompt_chars", len(prompt)))...)
		gen := r.generator.Generate(llm.WithTaskContext(ctx, task.ID.String(), task.Attempt), prompt)
		if !gen.OK() {
			if err := ctx.Err(); err != nil {
				r.cancel(task, err)
				return
			}
			if gen.Transport() {
				task.record(FailureTransport, string(gen.Failure))
				task.LastError = logging.SanitizeError(gen.Err)
				task.State = TaskStateRejected
				task.err = gen.Err
				return
			}
			task.record(FailureEmpty, "the model returned an empty response")
			task.err = fmt.Errorf("%w: empty model response", apperrors.ErrExtractionFailure)
			prompt = prompts.AssembleReminder(base, "the response was empty")
			continue
		}

		extracted, ok := sqlcheck.Extract(gen.Text)
		if !ok {
			task.record(FailureExtraction, "no SQL statement found in the response")
			task.err = fmt.Errorf("%w: no SQL statement in model response", apperrors.ErrExtractionFailure)
			r.logger.Warn("No SQL found in model response",
				append(attemptFields, zap.String("response", logging.TruncateString(logging.SanitizeText(gen.Text), 200)))...)
			prompt = prompts.AssembleReminder(base, "no SQL query was found; answer with one statement in a ```sql block")
			continue
		}
		task.SQL = extracted

		task.State = TaskStateValidating
		check := sqlcheck.Validate(extracted)
		if !check.Valid() {
			task.record(FailureValidation, check.Message)
			task.err = check.Err()
			r.logger.Warn("Generated SQL failed validation",
				append(attemptFields,
					zap.String("reason", string(check.Reason)),
					zap.String("sql", logging.SanitizeQuery(extracted)))...)
			prompt = prompts.AssembleReminder(base, check.Message)
			continue
		}
		task.SQL = check.SQL

		task.State = TaskStateExecuting
		r.logger.Debug("Executing SQL", append(attemptFields, zap.String("sql", logging.SanitizeQuery(task.SQL)))...)
		result, err := r.execute(ctx, task.SQL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				r.cancel(task, ctxErr)
				return
			}
			task.LastError = databaseErrorText(err)
			task.record(FailureExecution, task.LastError)
			task.err = fmt.Errorf("%w: %w", apperrors.ErrExecutionFailure, err)
			task.State = TaskStateCorrecting
			r.logger.Warn("Query failed, requesting correction",
				append(attemptFields,
					zap.Int("remaining", task.Remaining()),
					zap.String("error", logging.SanitizeText(task.LastError)))...)
			prompt = prompts.AssembleCorrection(base, task.SQL, task.LastError)
			continue
		}

		task.result = result
		task.err = nil
		task.last = FailureNone
		task.State = TaskStateSucceeded
		task.History = append(task.History, AttemptRecord{Attempt: task.Attempt, SQL: task.SQL})
		return
	}

	if task.last == FailureExecution {
		task.State = TaskStateExhausted
		task.err = fmt.Errorf("%w after %d attempts: %w", apperrors.ErrExhausted, task.Attempt, task.err)
		return
	}
	task.State = TaskStateRejected
}

func (r *taskRunner) execute(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	if r.executeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.executeTimeout)
		defer cancel()
	}
	result, err := r.executor.Query(ctx, sqlQuery, r.maxRows)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("query exceeded the %s execution timeout: %w", r.executeTimeout, err)
	}
	return result, err
}

func (r *taskRunner) cancel(task *QuestionTask, cause error) {
	task.record(FailureCancelled, cause.Error())
	task.State = TaskStateRejected
	task.err = fmt.Errorf("%w: %w", apperrors.ErrCancelled, cause)
	r.logger.Info("Question task cancelled",
		zap.String("task_id", task.ID.String()),
		zap.Int("attempt", task.Attempt))
}

// databaseErrorText is the error handed back to the model verbatim.
func databaseErrorText(err error) string {
	if dbErr, ok := datasource.AsDatabaseError(err); ok {
		return dbErr.Error()
	}
	return err.Error()
}
