package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceErrorFormattingAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewServiceError(ErrorCategoryDatabase, CodeQueryFailed, "query failed", "ScenarioStore", "FindActive", true, cause)

	assert.Equal(t, "[database:QUERY_FAILED] query failed", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
	assert.Equal(t, "details", err.WithDetails("details").Details)
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, ErrorCategoryDatabase, CodeQueryFailed, "svc", "op", false))

	plain := WrapError(errors.New("boom"), ErrorCategoryDatabase, CodeQueryFailed, "svc", "op", true)
	assert.Equal(t, ErrorCategoryDatabase, plain.Category)
	assert.Equal(t, CodeQueryFailed, plain.Code)
	assert.True(t, plain.Retryable)

	timeout := WrapError(fmt.Errorf("query: %w", context.DeadlineExceeded), ErrorCategoryDatabase, CodeQueryFailed, "svc", "op", false)
	assert.Equal(t, ErrorCategoryTimeout, timeout.Category)
	assert.Equal(t, CodeTimeout, timeout.Code)

	// An existing ServiceError keeps its category and code
	notFound := NewNotFoundError("scenario missing", "ScenarioStore", "UpdateByID")
	wrapped := WrapError(notFound, ErrorCategoryDatabase, CodeUpdateFailed, "DuplicateService", "MarkAsDuplicate", false)
	assert.Equal(t, CodeNotFound, wrapped.Code)
	assert.Equal(t, "DuplicateService", wrapped.ServiceName)
	assert.Equal(t, "MarkAsDuplicate", wrapped.Operation)
}

func TestErrorClassification(t *testing.T) {
	notFound := fmt.Errorf("outer: %w", NewNotFoundError("missing", "svc", "op"))
	assert.True(t, IsNotFound(notFound))
	assert.True(t, HasCode(notFound, CodeNotFound))
	assert.Equal(t, ErrorCategoryDatabase, CategoryOf(notFound))

	validation := NewValidationError("bad input", "svc", "op")
	assert.False(t, IsNotFound(validation))
	assert.Equal(t, ErrorCategoryValidation, CategoryOf(validation))

	assert.False(t, IsNotFound(errors.New("plain")))
	assert.Equal(t, ErrorCategoryProcessing, CategoryOf(errors.New("plain")))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"retryable service error", NewServiceError(ErrorCategoryDatabase, CodeQueryFailed, "x", "svc", "op", true, nil), true},
		{"validation error", NewValidationError("x", "svc", "op"), false},
		{"connection exception", &pq.Error{Code: "08006"}, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"undefined column", &pq.Error{Code: "42703"}, false},
		{"canceled", context.Canceled, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"deadlock", errors.New("Deadlock detected"), true},
		{"syntax", errors.New("syntax error at or near"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestProcessBatchWithIsolation(t *testing.T) {
	handler := NewErrorIsolationHandler("test", 0.5)

	result := handler.ProcessBatchWithIsolation(5, func(i int) error {
		if i == 2 {
			return errors.New("row failed")
		}
		return nil
	})

	assert.Equal(t, 4, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 5, result.TotalProcessed)
	assert.Contains(t, result.ErrorSummary, "row failed")
	assert.False(t, handler.IsCircuitBreakerOpen())
	assert.InDelta(t, 0.2, handler.GetFailureRate(), 1e-9)
}

func TestProcessBatchWithIsolationOpensCircuit(t *testing.T) {
	handler := NewErrorIsolationHandler("test", 0.5)

	calls := 0
	result := handler.ProcessBatchWithIsolation(25, func(i int) error {
		calls++
		return errors.New("store down")
	})

	// The circuit needs ten samples before it can open
	assert.Equal(t, 10, calls)
	assert.Equal(t, 10, result.Failed)
	assert.Equal(t, 15, result.Skipped)
	assert.True(t, handler.IsCircuitBreakerOpen())
	require.NotEmpty(t, result.ErrorSummary)
	assert.Contains(t, result.ErrorSummary, "15 skipped")
}

func TestProcessBatchWithIsolationEmpty(t *testing.T) {
	result := NewErrorIsolationHandler("test", 0.5).ProcessBatchWithIsolation(0, func(int) error {
		t.Fatal("process must not be called")
		return nil
	})

	assert.Equal(t, 0, result.Succeeded)
	assert.Empty(t, result.ErrorSummary)
}
