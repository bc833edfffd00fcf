package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInFlight        = errors.New("fetch already in flight")
	ErrDuplicateSource = errors.New("source url already registered")
	ErrUnknownCategory = errors.New("unknown category")
)

// FetchError is a per-source network, timeout or parse failure.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError means the article page could not be fetched or parsed.
// Ingestion continues with the feed body.
type ExtractionError struct {
	Link string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Link, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type RejectReason string

const (
	ReasonDuplicate   RejectReason = "duplicate"
	ReasonBlacklisted RejectReason = "blacklisted"
	ReasonOffTopic    RejectReason = "off-topic"
)

// Rejection is a deliberate classification decision, not a failure.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "rejected: " + string(r.Reason)
	}
	return fmt.Sprintf("rejected: %s (%s)", r.Reason, r.Detail)
}

// SummarizationError is returned once retries are exhausted.
type SummarizationError struct {
	ContentID int64
	Err       error
}

func (e *SummarizationError) Error() string {
	if e.ContentID == 0 {
		return fmt.Sprintf("summarize: %v", e.Err)
	}
	return fmt.Sprintf("summarize content %d: %v", e.ContentID, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// PersistenceError wraps storage failures surfaced to the orchestrator.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
