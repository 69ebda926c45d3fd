package ai

import (
	"strings"

	"github.com/Abdin71/supportflow-ai/internal/domain"
)

type keywordRule struct {
	keywords []string
	category string
	tag      string
	priority domain.TicketPriority
}

// Evaluated in order; the first rule with a matching keyword wins.
var fallbackRules = []keywordRule{
	{keywords: []string{"login", "password", "account"}, category: domain.CategoryAccountLogin, tag: "authentication"},
	{keywords: []string{"payment", "billing", "invoice"}, category: domain.CategoryBilling, tag: "financial"},
	{keywords: []string{"error", "bug", "crash"}, category: domain.CategoryBugReport, tag: "bug", priority: domain.TicketPriorityHigh},
	{keywords: []string{"feature", "request", "suggest"}, category: domain.CategoryFeatureRequest, tag: "enhancement"},
}

var urgentKeywords = []string{"urgent", "asap", "critical"}

// FallbackClassify derives a classification from keywords in the ticket
// text. It is deterministic and leaves Confidence unset.
func FallbackClassify(subject, description string) domain.AnalysisResult {
	text := strings.ToLower(subject + " " + description)

	result := domain.AnalysisResult{
		Category: domain.DefaultTicketCategory,
		Priority: domain.DefaultAnalysisPriority,
		Tags:     []string{},
		Source:   domain.SourceFallback,
	}
	for _, rule := range fallbackRules {
		if !containsAny(text, rule.keywords) {
			continue
		}
		result.Category = rule.category
		result.Tags = []string{rule.tag}
		if rule.priority != "" {
			result.Priority = rule.priority
		}
		break
	}
	if containsAny(text, urgentKeywords) {
		result.Priority = domain.TicketPriorityUrgent
	}
	return result
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
