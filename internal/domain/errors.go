package domain

import "errors"

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrGuardrailRejected = errors.New("guardrail rejected")
	ErrNoResults         = errors.New("no retrieval hits")
	ErrProviderTimeout   = errors.New("provider timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrExtraction        = errors.New("text extraction failed")
	ErrParsing           = errors.New("output parsing failed")
	ErrInternal          = errors.New("internal error")
)
