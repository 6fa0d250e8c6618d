package analysis

import (
	"context"
	"time"

	"mercator-hq/ganymede/pkg/detect"
)

// Item is a snapshot of a request (and response, when present) queued
// for deep analysis. It is immutable after creation: a queued item is
// either fully processed or dropped untouched.
type Item struct {
	// RequestID identifies the request.
	RequestID string

	// EntityID is the billing entity that issued the request.
	EntityID string

	// Model is the requested model name.
	Model string

	// Prompt is the inbound prompt text.
	Prompt string

	// Response is the model response, when already available.
	Response string

	// EstimatedTokens is the estimated total token count.
	EstimatedTokens int

	// StormThreshold is the model's token-storm threshold.
	StormThreshold int

	// EnqueuedAt is when the item entered the queue.
	EnqueuedAt time.Time
}

// Store persists completed assessments. Implementations live in the
// storage subpackage; the pool functions correctly without one.
type Store interface {
	// SaveAssessment persists one assessment.
	SaveAssessment(ctx context.Context, a *detect.Assessment) error

	// Close releases any resources held by the store.
	Close() error
}

// AlertFunc receives assessments whose risk level warrants an immediate
// alert (CRITICAL or HIGH).
type AlertFunc func(item Item, a *detect.Assessment)
