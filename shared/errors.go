package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ErrorCategory groups errors by the layer that produced them
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryDatabase      ErrorCategory = "database"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryProcessing    ErrorCategory = "processing"
	ErrorCategoryResource      ErrorCategory = "resource"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryAuthorization ErrorCategory = "authorization"
)

// Error codes shared by the store, the detector and the handlers
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeQueryFailed        = "QUERY_FAILED"
	CodeUpdateFailed       = "UPDATE_FAILED"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// NewValidationError is shorthand for a non-retryable INVALID_INPUT error
func NewValidationError(message, serviceName, operation string) *ServiceError {
	return NewServiceError(ErrorCategoryValidation, CodeInvalidInput, message, serviceName, operation, false, nil)
}

// NewNotFoundError is shorthand for a non-retryable NOT_FOUND error
func NewNotFoundError(message, serviceName, operation string) *ServiceError {
	return NewServiceError(ErrorCategoryDatabase, CodeNotFound, message, serviceName, operation, false, nil)
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// IsRetryable returns whether the error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"details":          e.Details,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// WrapError wraps an existing error with service error context.
// Context deadline errors are always categorized as timeouts.
func WrapError(err error, category ErrorCategory, code, serviceName, operation string, retryable bool) *ServiceError {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		serviceErr.ServiceName = serviceName
		serviceErr.Operation = operation
		return serviceErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewServiceError(ErrorCategoryTimeout, CodeTimeout, err.Error(), serviceName, operation, true, err)
	}

	return NewServiceError(category, code, err.Error(), serviceName, operation, retryable, err)
}

// IsNotFound reports whether err carries the NOT_FOUND code
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// HasCode reports whether err is a ServiceError with the given code
func HasCode(err error, code string) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code == code
	}
	return false
}

// CategoryOf returns the category of a ServiceError, or processing for other errors
func CategoryOf(err error) ErrorCategory {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Category
	}
	return ErrorCategoryProcessing
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.IsRetryable()
	}

	// Postgres class 08 (connection exception), 40 (transaction rollback)
	// and 57P (operator intervention) are transient.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := string(pqErr.Code.Class())
		return class == "08" || class == "40" || strings.HasPrefix(string(pqErr.Code), "57P")
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	errorMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout", "connection refused", "connection reset",
		"temporary failure", "deadlock", "connection lost",
		"server shutdown", "bad connection",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errorMsg, pattern) {
			return true
		}
	}

	return false
}

// ErrorIsolationHandler keeps a failing dependency from dragging a whole batch
// down with it: once the failure rate passes maxFailureRate the circuit opens and
// remaining items are rejected without touching the dependency.
type ErrorIsolationHandler struct {
	mutex              sync.Mutex
	serviceName        string
	maxFailureRate     float64
	minSampleSize      int64
	circuitBreakerOpen bool
	failureCount       int64
	successCount       int64
}

// NewErrorIsolationHandler creates a new error isolation handler
func NewErrorIsolationHandler(serviceName string, maxFailureRate float64) *ErrorIsolationHandler {
	return &ErrorIsolationHandler{
		serviceName:    serviceName,
		maxFailureRate: maxFailureRate,
		minSampleSize:  10,
	}
}

// RecordSuccess records a successful operation
func (h *ErrorIsolationHandler) RecordSuccess() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.successCount++
}

// RecordFailure records a failed operation and opens the circuit when needed
func (h *ErrorIsolationHandler) RecordFailure() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.failureCount++
	if h.maxFailureRate < 0 || h.circuitBreakerOpen {
		return
	}

	total := h.failureCount + h.successCount
	if total < h.minSampleSize {
		return
	}

	rate := float64(h.failureCount) / float64(total)
	if rate > h.maxFailureRate {
		h.circuitBreakerOpen = true
		logrus.WithFields(logrus.Fields{
			"service_name":     h.serviceName,
			"component":        "ErrorIsolationHandler",
			"failure_rate":     rate,
			"max_failure_rate": h.maxFailureRate,
			"failure_count":    h.failureCount,
			"success_count":    h.successCount,
		}).Warn("Circuit breaker opened due to high failure rate")
	}
}

// IsCircuitBreakerOpen returns whether the circuit breaker is open
func (h *ErrorIsolationHandler) IsCircuitBreakerOpen() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.circuitBreakerOpen
}

// GetFailureRate returns the current failure rate
func (h *ErrorIsolationHandler) GetFailureRate() float64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	total := h.failureCount + h.successCount
	if total == 0 {
		return 0.0
	}
	return float64(h.failureCount) / float64(total)
}

// BatchProcessingResult summarizes one isolated batch run
type BatchProcessingResult struct {
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Skipped        int           `json:"skipped"`
	TotalProcessed int           `json:"total_processed"`
	ProcessingTime time.Duration `json:"processing_time"`
	ErrorSummary   string        `json:"error_summary,omitempty"`
}

// ProcessBatchWithIsolation runs process for each of n items. Failures are
// recorded and do not stop the batch; an open circuit skips the remainder.
func (h *ErrorIsolationHandler) ProcessBatchWithIsolation(n int, process func(i int) error) BatchProcessingResult {
	startTime := time.Now()
	result := BatchProcessingResult{TotalProcessed: n}
	var sampleErrors []error

	for i := 0; i < n; i++ {
		if h.IsCircuitBreakerOpen() {
			result.Skipped = n - i
			break
		}

		if err := process(i); err != nil {
			h.RecordFailure()
			result.Failed++
			if len(sampleErrors) < 10 {
				sampleErrors = append(sampleErrors, err)
			}
			continue
		}

		h.RecordSuccess()
		result.Succeeded++
	}

	result.ProcessingTime = time.Since(startTime)
	if result.Failed > 0 || result.Skipped > 0 {
		result.ErrorSummary = BuildBatchProcessingErrorSummary(result.Succeeded, result.Failed, result.Skipped, sampleErrors)
	}

	return result
}

// BuildBatchProcessingErrorSummary creates an error summary for batch processing results
func BuildBatchProcessingErrorSummary(successCount, failureCount, skippedCount int, sampleErrors []error) string {
	var summaryBuilder strings.Builder
	summaryBuilder.WriteString(fmt.Sprintf("batch processing completed with %d successes and %d failures", successCount, failureCount))
	if skippedCount > 0 {
		summaryBuilder.WriteString(fmt.Sprintf(" (%d skipped after circuit breaker opened)", skippedCount))
	}

	sampleSize := len(sampleErrors)
	if sampleSize > 3 {
		sampleSize = 3
	}

	for i := 0; i < sampleSize; i++ {
		summaryBuilder.WriteString(fmt.Sprintf("; %s", sampleErrors[i].Error()))
	}

	if failureCount > sampleSize {
		summaryBuilder.WriteString(fmt.Sprintf("; and %d additional errors", failureCount-sampleSize))
	}

	return summaryBuilder.String()
}
