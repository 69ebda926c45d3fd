package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Abdin71/supportflow-ai/internal/domain"
)

const (
	suggestTemperature = 0.7
	suggestMaxTokens   = 800

	// SuggestionCount is the number of drafts requested per ticket.
	SuggestionCount = 3
	// FallbackSuggestionConfidence is reported with canned drafts.
	FallbackSuggestionConfidence = 0.5
	// ContextMessageLimit bounds the thread excerpt sent to the model.
	ContextMessageLimit = 10

	defaultBucket = "default"
)

const suggestSystemPrompt = "You are a helpful customer support agent drafting replies. " +
	"Respond with only a JSON object and no other text."

// SuggestionTable maps a category to canned reply drafts.
type SuggestionTable map[string][]string

// DefaultSuggestionTable returns the built-in canned drafts.
func DefaultSuggestionTable() SuggestionTable {
	return SuggestionTable{
		domain.CategoryAccountLogin: {
			"I understand you're having trouble accessing your account. Please try resetting your password using the 'Forgot Password' link on the login page.",
			"For security purposes, could you confirm the email address associated with your account? I'll then look into the login issue for you.",
			"I've checked your account and it appears to be active. Please clear your browser cache and cookies, then try signing in again.",
		},
		domain.CategoryTechnical: {
			"Thank you for reporting this issue. Could you share the steps that led to the problem and any error message you saw?",
			"I'm sorry for the inconvenience. Please try restarting the application and let me know whether the issue persists.",
			"Our technical team is looking into this. I'll update you as soon as we have more information.",
		},
		domain.CategoryBilling: {
			"I've reviewed your billing history and will look into the charge you mentioned. Could you share the invoice number?",
			"Thank you for reaching out about your payment. Please allow 3-5 business days for refunds to appear on your statement.",
			"I can help with that billing question. Could you confirm the last four digits of the card used for the payment?",
		},
		defaultBucket: {
			"Thank you for contacting support. I'm looking into your request and will get back to you shortly.",
			"I appreciate your patience. Could you provide a few more details so I can assist you better?",
			"Thanks for reaching out. I've noted your request and our team will follow up with you soon.",
		},
	}
}

// LoadSuggestionTable reads a YAML table of category to drafts and merges it
// over the built-in table. Each bucket must hold exactly three drafts.
func LoadSuggestionTable(path string) (SuggestionTable, error) {
	table := DefaultSuggestionTable()
	if path == "" {
		return table, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suggestions file: %w", err)
	}
	var overrides map[string][]string
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse suggestions file: %w", err)
	}
	for category, drafts := range overrides {
		if len(drafts) != SuggestionCount {
			return nil, fmt.Errorf("suggestions for %q: want %d drafts, got %d", category, SuggestionCount, len(drafts))
		}
		table[category] = drafts
	}
	return table, nil
}

// For returns the drafts for category, or the default bucket when the
// category is absent or has no entry.
func (t SuggestionTable) For(category *string) []string {
	if category != nil {
		if drafts, ok := t[*category]; ok {
			return append([]string(nil), drafts...)
		}
	}
	return append([]string(nil), t[defaultBucket]...)
}

// SuggestionGenerator asks the model for reply drafts.
type SuggestionGenerator struct {
	completer Completer
}

// NewSuggestionGenerator returns a generator backed by completer.
func NewSuggestionGenerator(completer Completer) *SuggestionGenerator {
	return &SuggestionGenerator{completer: completer}
}

type suggestionReply struct {
	Suggestions []string `json:"suggestions"`
	Confidence  *float64 `json:"confidence"`
}

// Generate returns up to three drafts and the model's confidence. messages
// should be the earliest messages of the thread, oldest first.
func (g *SuggestionGenerator) Generate(ctx context.Context, ticket *domain.Ticket, messages []domain.Message) ([]string, float64, error) {
	text, err := g.completer.Complete(ctx, suggestSystemPrompt, suggestPrompt(ticket, messages), suggestTemperature, suggestMaxTokens)
	if err != nil {
		return nil, 0, err
	}
	return parseSuggestions(text)
}

// RenderThread formats messages as "role: text" lines.
func RenderThread(messages []domain.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Text))
	}
	return strings.Join(lines, "\n")
}

func suggestPrompt(ticket *domain.Ticket, messages []domain.Message) string {
	var b strings.Builder
	b.WriteString("Draft replies to this support ticket.\n\n")
	fmt.Fprintf(&b, "Subject: %s\n", ticket.Subject)
	fmt.Fprintf(&b, "Description: %s\n", ticket.Description)
	if ticket.Category != nil {
		fmt.Fprintf(&b, "Category: %s\n", *ticket.Category)
	}
	if len(messages) > 0 {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(RenderThread(messages))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nReturn a JSON object with \"suggestions\" (an array of exactly %d reply drafts) ", SuggestionCount)
	b.WriteString("and \"confidence\" (a number between 0 and 1).\n")
	return b.String()
}

func parseSuggestions(text string) ([]string, float64, error) {
	var parsed suggestionReply
	if err := decodeObject(text, &parsed); err != nil {
		return nil, 0, err
	}
	drafts := make([]string, 0, SuggestionCount)
	for _, s := range parsed.Suggestions {
		if s = strings.TrimSpace(s); s != "" {
			drafts = append(drafts, s)
		}
		if len(drafts) == SuggestionCount {
			break
		}
	}
	if len(drafts) == 0 {
		return nil, 0, fmt.Errorf("%w: no suggestions", ErrMalformedResponse)
	}
	confidence := DefaultConfidence
	if parsed.Confidence != nil {
		confidence = clampConfidence(*parsed.Confidence)
	}
	return drafts, confidence, nil
}
