package services

import (
	"errors"
	"sync"
	"time"

	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
)

// QueryMetrics counts resolutions since startup. Failures are split by the
// stage that ended them.
type QueryMetrics struct {
	Total              int64         `json:"total_queries"`
	Succeeded          int64         `json:"successful_queries"`
	Failed             int64         `json:"failed_queries"`
	Cached             int64         `json:"cached_queries"`
	TotalTime          time.Duration `json:"total_time_ns"`
	AvgTime            time.Duration `json:"avg_time_ns"`
	LLMErrors          int64         `json:"llm_errors"`
	ExtractionFailures int64         `json:"sql_extraction_failures"`
	ValidationFailures int64         `json:"validation_failures"`
	ExecutionErrors    int64         `json:"db_execution_errors"`
	CatalogErrors      int64         `json:"catalog_errors"`
	Cancelled          int64         `json:"cancelled"`
}

type queryMetrics struct {
	mu sync.Mutex
	m  QueryMetrics
}

func (q *queryMetrics) record(res *Resolution, elapsed time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.m.Total++
	q.m.TotalTime += elapsed
	q.m.AvgTime = q.m.TotalTime / time.Duration(q.m.Total)

	if res.Succeeded() {
		q.m.Succeeded++
		if res.Cached {
			q.m.Cached++
		}
		return
	}
	q.m.Failed++

	// Cancellation is checked first since a cancelled attempt may also wrap
	// the stage it interrupted.
	switch err := res.Err; {
	case errors.Is(err, apperrors.ErrCancelled):
		q.m.Cancelled++
	case errors.Is(err, apperrors.ErrCatalogUnavailable):
		q.m.CatalogErrors++
	case errors.Is(err, apperrors.ErrTransportFailure):
		q.m.LLMErrors++
	case errors.Is(err, apperrors.ErrExtractionFailure):
		q.m.ExtractionFailures++
	case errors.Is(err, apperrors.ErrValidationFailure):
		q.m.ValidationFailures++
	case errors.Is(err, apperrors.ErrExecutionFailure):
		q.m.ExecutionErrors++
	}
}

func (q *queryMetrics) snapshot() QueryMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.m
}
