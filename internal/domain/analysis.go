package domain

import "time"

// ProcessingStatus tracks the AI analysis lifecycle of a ticket.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingCompleted || s == ProcessingFailed
}

// CanAdvanceTo reports whether moving from s to next respects
// pending -> processing -> {completed|failed}.
func (s ProcessingStatus) CanAdvanceTo(next ProcessingStatus) bool {
	switch s {
	case ProcessingPending:
		return next == ProcessingProcessing
	case ProcessingProcessing:
		return next == ProcessingCompleted || next == ProcessingFailed
	}
	return false
}

// AIMetadata is the analysis bookkeeping persisted on a ticket.
type AIMetadata struct {
	ProcessingStatus ProcessingStatus
	StartedAt        *time.Time
	CompletedAt      *time.Time
	Confidence       *float64
	ModelVersion     *string
	UsedFallback     bool
	Error            *string
}

// AnalysisSource records which path produced a result.
type AnalysisSource string

const (
	SourceModel    AnalysisSource = "model"
	SourceFallback AnalysisSource = "fallback"
)

// AnalysisResult is the transient output of classification.
type AnalysisResult struct {
	Category   string
	Priority   TicketPriority
	Tags       []string
	Confidence *float64
	Source     AnalysisSource
}
