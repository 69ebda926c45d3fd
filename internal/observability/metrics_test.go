package observability

import (
	"testing"
	"time"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "GET", 200, time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, time.Millisecond)
	m.RecordError("/tickets", "POST", "VALIDATION_FAILED")
	m.RecordAnalysis(AnalysisModel, time.Second)
	m.RecordAnalysis(AnalysisFallback, time.Second)
	m.RecordSuggestion(SuggestionFallback)

	snap := m.Snapshot()
	if snap.Requests["/tickets|GET|200"] != 2 {
		t.Errorf("unexpected request count: %v", snap.Requests)
	}
	if snap.Errors["/tickets|POST|VALIDATION_FAILED"] != 1 {
		t.Errorf("unexpected error count: %v", snap.Errors)
	}
	if snap.Analyses[AnalysisModel] != 1 || snap.Analyses[AnalysisFallback] != 1 {
		t.Errorf("unexpected analyses: %v", snap.Analyses)
	}
	if snap.Suggestions[SuggestionFallback] != 1 {
		t.Errorf("unexpected suggestions: %v", snap.Suggestions)
	}
	if snap.AnalysisLatencyTotal != 2 {
		t.Errorf("unexpected latency total: %v", snap.AnalysisLatencyTotal)
	}

	snap.Analyses[AnalysisModel] = 99
	if m.Snapshot().Analyses[AnalysisModel] != 1 {
		t.Error("snapshot must be a copy")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordAnalysis(AnalysisModel, 0)
	m.RecordSuggestion(SuggestionModel)
	if snap := m.Snapshot(); snap.Analyses != nil {
		t.Error("expected empty snapshot")
	}
}
