// Package service implements the domain services fronting the external
// providers: geocoding, validation, and enrichment. Each operation runs
// the same pipeline (cache check, resilience-wrapped HTTP call, response
// parsing) and always resolves to a CallResult; failures are data, not
// errors.
package service

import (
	"time"
)

// Status classifies the outcome of an external call.
type Status string

const (
	// StatusSuccess means the provider returned a usable result.
	StatusSuccess Status = "SUCCESS"
	// StatusInvalid means the provider judged the input invalid
	// (e.g. a failed email validation).
	StatusInvalid Status = "INVALID"
	// StatusNotFound means the provider had no data for the input.
	StatusNotFound Status = "NOT_FOUND"
	// StatusPartial means the provider returned an incomplete result.
	StatusPartial Status = "PARTIAL"
	// StatusError means the call failed (upstream, policy, or parse).
	StatusError Status = "ERROR"
)

// CallResult is the uniform outcome shape for every external call. Every
// operation produces exactly one result, even on total failure.
type CallResult struct {
	OriginalInput  string         `json:"original_input"`
	Status         Status         `json:"status"`
	Payload        map[string]any `json:"payload,omitempty"`
	Confidence     int            `json:"confidence,omitempty"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	CreatedAt      time.Time      `json:"created_at"`
	Source         string         `json:"source"`
	// Cached marks results served from the result cache. Timing fields
	// keep the values recorded when the upstream call actually ran.
	Cached       bool   `json:"cached,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// IsSuccess reports whether the call produced a usable result.
func (r *CallResult) IsSuccess() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartial
}

// cachedCopy returns a shallow copy flagged as served from cache, so the
// cached original is never mutated.
func cachedCopy(r *CallResult) *CallResult {
	copied := *r
	copied.Cached = true
	return &copied
}

// errorResultNow builds an ERROR-status result for failures that never
// reached the provider, such as caller input errors.
func errorResultNow(input, source, message string) *CallResult {
	return errorResult(input, source, message, time.Now())
}

// errorResult builds the ERROR-status result every failure path resolves
// to. The message is what callers see; full detail stays in the logs.
func errorResult(input, source, message string, start time.Time) *CallResult {
	return &CallResult{
		OriginalInput:  input,
		Status:         StatusError,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		CreatedAt:      time.Now(),
		Source:         source,
		ErrorMessage:   message,
	}
}
