package ai

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Abdin71/supportflow-ai/internal/domain"
)

type stubCompleter struct {
	reply string
	err   error
	calls int

	temperature float64
	maxTokens   int
	userPrompt  string
}

func (s *stubCompleter) Complete(_ context.Context, _, userPrompt string, temperature float64, maxTokens int) (string, error) {
	s.calls++
	s.userPrompt = userPrompt
	s.temperature = temperature
	s.maxTokens = maxTokens
	return s.reply, s.err
}

func TestClassifier_Classify(t *testing.T) {
	stub := &stubCompleter{reply: `{"category":"Billing & Payments","priority":"high","tags":["refund"],"confidence":0.93}`}
	got, err := NewClassifier(stub).Classify(context.Background(), "Refund", "Charged twice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Category != domain.CategoryBilling || got.Priority != domain.TicketPriorityHigh {
		t.Errorf("unexpected classification: %+v", got)
	}
	if !reflect.DeepEqual(got.Tags, []string{"refund"}) {
		t.Errorf("unexpected tags: %v", got.Tags)
	}
	if got.Confidence == nil || *got.Confidence != 0.93 {
		t.Errorf("unexpected confidence: %v", got.Confidence)
	}
	if got.Source != domain.SourceModel {
		t.Errorf("expected model source, got %s", got.Source)
	}
	if stub.temperature != 0.3 || stub.maxTokens != 300 {
		t.Errorf("unexpected sampling params: %v %d", stub.temperature, stub.maxTokens)
	}
	if !strings.Contains(stub.userPrompt, "Charged twice") || !strings.Contains(stub.userPrompt, `"General Inquiry"`) {
		t.Errorf("prompt missing ticket text or categories: %q", stub.userPrompt)
	}
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantErr    bool
		category   string
		priority   domain.TicketPriority
		confidence float64
	}{
		{name: "defaults", reply: `{"category":"Bug Report"}`, category: domain.CategoryBugReport, priority: domain.TicketPriorityMedium, confidence: DefaultConfidence},
		{name: "fenced", reply: "```json\n{\"priority\":\"URGENT\"}\n```", category: domain.CategoryGeneralInquiry, priority: domain.TicketPriorityUrgent, confidence: DefaultConfidence},
		{name: "clamped", reply: `{"category":"Feature Request","priority":"low","confidence":7}`, category: domain.CategoryFeatureRequest, priority: domain.TicketPriorityLow, confidence: 1},
		{name: "empty", reply: "", wantErr: true},
		{name: "prose", reply: "I think this is a billing issue.", wantErr: true},
		{name: "invalid json", reply: `{"category": }`, wantErr: true},
		{name: "no fields", reply: `{"tags":["x"]}`, wantErr: true},
		{name: "unknown category", reply: `{"category":"Sales","priority":"low"}`, wantErr: true},
		{name: "unknown priority", reply: `{"category":"Bug Report","priority":"p1"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassification(tt.reply)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("expected ErrMalformedResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Category != tt.category || got.Priority != tt.priority {
				t.Errorf("unexpected classification: %+v", got)
			}
			if got.Confidence == nil || *got.Confidence != tt.confidence {
				t.Errorf("expected confidence %v, got %v", tt.confidence, got.Confidence)
			}
			if got.Tags == nil {
				t.Error("expected non-nil tags")
			}
		})
	}
}

func TestClassifier_PropagatesServiceError(t *testing.T) {
	stub := &stubCompleter{err: ErrServiceUnavailable}
	_, err := NewClassifier(stub).Classify(context.Background(), "s", "d")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}
