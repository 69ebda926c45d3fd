package ai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Abdin71/supportflow-ai/internal/domain"
)

func TestSuggestionGenerator_Generate(t *testing.T) {
	stub := &stubCompleter{reply: `{"suggestions":["one","two","three","four"],"confidence":0.7}`}
	ticket := &domain.Ticket{Subject: "Refund", Description: "Charged twice"}
	messages := []domain.Message{
		{Role: domain.MessageRoleUser, Text: "hello"},
		{Role: domain.MessageRoleAgent, Text: "hi there"},
	}

	drafts, confidence, err := NewSuggestionGenerator(stub).Generate(context.Background(), ticket, messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 3 || drafts[0] != "one" || drafts[2] != "three" {
		t.Errorf("unexpected drafts: %v", drafts)
	}
	if confidence != 0.7 {
		t.Errorf("unexpected confidence: %v", confidence)
	}
	if stub.temperature != 0.7 || stub.maxTokens != 800 {
		t.Errorf("unexpected sampling params: %v %d", stub.temperature, stub.maxTokens)
	}
	if !strings.Contains(stub.userPrompt, "user: hello\nagent: hi there") {
		t.Errorf("prompt missing thread: %q", stub.userPrompt)
	}
}

func TestSuggestionGenerator_NoThreadBlock(t *testing.T) {
	stub := &stubCompleter{reply: `{"suggestions":["only one"]}`}
	drafts, confidence, err := NewSuggestionGenerator(stub).Generate(context.Background(), &domain.Ticket{Subject: "s"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 1 || confidence != DefaultConfidence {
		t.Errorf("unexpected result: %v %v", drafts, confidence)
	}
	if strings.Contains(stub.userPrompt, "Conversation so far") {
		t.Error("expected no conversation block without messages")
	}
}

func TestSuggestionGenerator_Malformed(t *testing.T) {
	for _, reply := range []string{"not json", `{"suggestions":[]}`, `{"suggestions":["  "]}`} {
		stub := &stubCompleter{reply: reply}
		_, _, err := NewSuggestionGenerator(stub).Generate(context.Background(), &domain.Ticket{}, nil)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("reply %q: expected ErrMalformedResponse, got %v", reply, err)
		}
	}
}

func TestSuggestionTable_For(t *testing.T) {
	table := DefaultSuggestionTable()
	for _, bucket := range []string{domain.CategoryAccountLogin, domain.CategoryTechnical, domain.CategoryBilling, defaultBucket} {
		if len(table[bucket]) != 3 {
			t.Errorf("bucket %q: expected 3 drafts, got %d", bucket, len(table[bucket]))
		}
	}

	billing := domain.CategoryBilling
	if got := table.For(&billing); got[0] != table[domain.CategoryBilling][0] {
		t.Errorf("expected billing drafts, got %v", got)
	}
	unknown := "Sales"
	if got := table.For(&unknown); got[0] != table[defaultBucket][0] {
		t.Errorf("expected default drafts for unknown category, got %v", got)
	}
	if got := table.For(nil); got[0] != table[defaultBucket][0] {
		t.Errorf("expected default drafts for nil category, got %v", got)
	}
}

func TestLoadSuggestionTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suggestions.yaml")
	content := "\"Bug Report\":\n  - a\n  - b\n  - c\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	table, err := LoadSuggestionTable(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bug := domain.CategoryBugReport
	if got := table.For(&bug); len(got) != 3 || got[0] != "a" {
		t.Errorf("unexpected bug drafts: %v", got)
	}
	if len(table[defaultBucket]) != 3 {
		t.Error("expected built-in default bucket to survive the merge")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("default:\n  - only one\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadSuggestionTable(bad); err == nil {
		t.Error("expected error for bucket with wrong size")
	}
}
