package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/Abdin71/supportflow-ai/internal/domain"
)

const (
	classifyTemperature = 0.3
	classifyMaxTokens   = 300

	// DefaultConfidence is recorded when the model omits a confidence.
	DefaultConfidence = 0.8
)

const classifySystemPrompt = "You are a support ticket triage assistant. " +
	"Respond with only a JSON object and no other text."

// Classifier asks the model to categorize a ticket.
type Classifier struct {
	completer Completer
}

// NewClassifier returns a classifier backed by completer.
func NewClassifier(completer Completer) *Classifier {
	return &Classifier{completer: completer}
}

type classification struct {
	Category   *string  `json:"category"`
	Priority   *string  `json:"priority"`
	Tags       []string `json:"tags"`
	Confidence *float64 `json:"confidence"`
}

// Classify returns the model's classification of a ticket. Any error wraps
// ErrServiceUnavailable or ErrMalformedResponse.
func (c *Classifier) Classify(ctx context.Context, subject, description string) (domain.AnalysisResult, error) {
	text, err := c.completer.Complete(ctx, classifySystemPrompt, classifyPrompt(subject, description), classifyTemperature, classifyMaxTokens)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return parseClassification(text)
}

func classifyPrompt(subject, description string) string {
	var b strings.Builder
	b.WriteString("Classify this support ticket.\n\n")
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	fmt.Fprintf(&b, "Description: %s\n\n", description)
	b.WriteString("Return a JSON object with exactly these fields:\n")
	fmt.Fprintf(&b, "- \"category\": one of %s\n", quoteList(domain.Categories))
	b.WriteString("- \"priority\": one of \"low\", \"medium\", \"high\", \"urgent\"\n")
	b.WriteString("- \"tags\": an array of short lowercase keywords\n")
	b.WriteString("- \"confidence\": a number between 0 and 1\n")
	return b.String()
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}

func parseClassification(text string) (domain.AnalysisResult, error) {
	var parsed classification
	if err := decodeObject(text, &parsed); err != nil {
		return domain.AnalysisResult{}, err
	}
	if parsed.Category == nil && parsed.Priority == nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: neither category nor priority present", ErrMalformedResponse)
	}

	result := domain.AnalysisResult{
		Category: domain.DefaultTicketCategory,
		Priority: domain.DefaultAnalysisPriority,
		Tags:     []string{},
		Source:   domain.SourceModel,
	}
	if parsed.Category != nil {
		category := strings.TrimSpace(*parsed.Category)
		if !domain.IsKnownCategory(category) {
			return domain.AnalysisResult{}, fmt.Errorf("%w: unknown category %q", ErrMalformedResponse, category)
		}
		result.Category = category
	}
	if parsed.Priority != nil {
		priority := domain.TicketPriority(strings.ToLower(strings.TrimSpace(*parsed.Priority)))
		if !priority.Valid() {
			return domain.AnalysisResult{}, fmt.Errorf("%w: unknown priority %q", ErrMalformedResponse, *parsed.Priority)
		}
		result.Priority = priority
	}
	for _, tag := range parsed.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			result.Tags = append(result.Tags, tag)
		}
	}
	confidence := DefaultConfidence
	if parsed.Confidence != nil {
		confidence = clampConfidence(*parsed.Confidence)
	}
	result.Confidence = &confidence
	return result, nil
}
