package observability

import (
	"strconv"
	"sync"
	"time"
)

// Analysis outcomes recorded by the pipeline.
const (
	AnalysisModel     = "model"
	AnalysisFallback  = "fallback"
	AnalysisDuplicate = "duplicate"
	AnalysisAborted   = "aborted"
)

// Suggestion outcomes.
const (
	SuggestionModel    = "model"
	SuggestionFallback = "fallback"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	analysisCount   map[string]int64
	suggestionCount map[string]int64
	analysisLatency time.Duration
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests             map[string]int64 `json:"requests"`
	Errors               map[string]int64 `json:"errors"`
	Analyses             map[string]int64 `json:"analyses"`
	Suggestions          map[string]int64 `json:"suggestions"`
	AnalysisLatencyTotal float64          `json:"analysis_latency_seconds_total"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		analysisCount:   make(map[string]int64),
		suggestionCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordAnalysis counts a pipeline run by outcome.
func (m *Metrics) RecordAnalysis(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analysisCount[outcome]++
	m.analysisLatency += duration
}

// RecordSuggestion counts a reply-suggestion request by outcome.
func (m *Metrics) RecordSuggestion(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggestionCount[outcome]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:             copyCounts(m.requestCount),
		Errors:               copyCounts(m.errorCount),
		Analyses:             copyCounts(m.analysisCount),
		Suggestions:          copyCounts(m.suggestionCount),
		AnalysisLatencyTotal: m.analysisLatency.Seconds(),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
