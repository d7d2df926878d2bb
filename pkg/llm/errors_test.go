package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestError_Error_Format(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeServiceError,
		Message:    "server error",
		StatusCode: 503,
		Model:      "gpt-4o",
		Endpoint:   "https://api.openai.com/v1",
		Cause:      errors.New("upstream"),
	}

	result := err.Error()
	for _, want := range []string{"service_error", "HTTP 503", "model=gpt-4o", "endpoint=api.openai.com", "server error", "upstream"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q in %q", want, result)
		}
	}
	if strings.Contains(result, "/v1") {
		t.Errorf("endpoint should be rendered as host only: %s", result)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root")
	err := NewError(ErrorTypeTimeout, "request timeout", true, cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find cause")
	}
	if !err.IsRetryable() {
		t.Error("expected retryable")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
		status    int
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantType: ErrorTypeTimeout, retryable: true},
		{name: "cancelled", err: context.Canceled, wantType: ErrorTypeTimeout, retryable: false},
		{name: "timeout text", err: errors.New("net/http: request timeout"), wantType: ErrorTypeTimeout, retryable: true},
		{name: "rate limit api error", err: &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, wantType: ErrorTypeRateLimited, retryable: true, status: 429},
		{name: "rate limit text", err: errors.New("rate_limit_error: too fast"), wantType: ErrorTypeRateLimited, retryable: true},
		{name: "auth", err: &openai.APIError{HTTPStatusCode: 401, Message: "Incorrect API key"}, wantType: ErrorTypeServiceError, retryable: false, status: 401},
		{name: "model missing", err: errors.New("The model `gpt-9` does not exist"), wantType: ErrorTypeServiceError, retryable: false},
		{name: "endpoint missing", err: &openai.RequestError{HTTPStatusCode: 404, Err: errors.New("not here")}, wantType: ErrorTypeServiceError, retryable: false, status: 404},
		{name: "server error", err: &openai.APIError{HTTPStatusCode: 502, Message: "bad gateway"}, wantType: ErrorTypeServiceError, retryable: true, status: 502},
		{name: "overloaded", err: errors.New("overloaded_error: Overloaded"), wantType: ErrorTypeServiceError, retryable: true},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), wantType: ErrorTypeServiceError, retryable: true},
		{name: "unknown", err: errors.New("something odd"), wantType: ErrorTypeServiceError, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Type != tt.wantType {
				t.Errorf("type = %s, want %s", got.Type, tt.wantType)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if got.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", got.StatusCode, tt.status)
			}
		})
	}
}

func TestClassifyError_PassesThroughStructured(t *testing.T) {
	orig := NewError(ErrorTypeEmpty, "empty", false, nil)
	wrapped := fmt.Errorf("call: %w", orig)
	if got := ClassifyError(wrapped); got != orig {
		t.Errorf("expected same *Error back, got %v", got)
	}
	if ClassifyError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestIsRetryableAndGetErrorType(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewError(ErrorTypeRateLimited, "rate limited", true, nil))
	if !IsRetryable(err) {
		t.Error("expected wrapped rate limit to be retryable")
	}
	if GetErrorType(err) != ErrorTypeRateLimited {
		t.Errorf("unexpected type %s", GetErrorType(err))
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}
