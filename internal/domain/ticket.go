package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

var priorityIndex = map[TicketPriority]int{
	TicketPriorityLow:    1,
	TicketPriorityMedium: 2,
	TicketPriorityHigh:   3,
	TicketPriorityUrgent: 4,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	_, ok := priorityIndex[p]
	return ok
}

// Index returns the sort rank of p, or 0 for an unknown priority.
func (p TicketPriority) Index() int {
	return priorityIndex[p]
}

// Categories exposed to the classifier.
const (
	CategoryAccountLogin    = "Account & Login"
	CategoryTechnical       = "Technical Support"
	CategoryBilling         = "Billing & Payments"
	CategoryFeatureRequest  = "Feature Request"
	CategoryBugReport       = "Bug Report"
	CategoryGeneralInquiry  = "General Inquiry"
	DefaultTicketCategory   = CategoryGeneralInquiry
	DefaultAnalysisPriority = TicketPriorityMedium
)

// Categories lists the fixed category enumeration in prompt order.
var Categories = []string{
	CategoryAccountLogin,
	CategoryTechnical,
	CategoryBilling,
	CategoryFeatureRequest,
	CategoryBugReport,
	CategoryGeneralInquiry,
}

// IsKnownCategory reports whether c belongs to the fixed enumeration.
func IsKnownCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                string
	Subject           string
	Description       string
	RequesterID       string
	RequesterEmail    string
	RequesterName     string
	Status            TicketStatus
	Priority          *TicketPriority
	Category          *string
	Tags              []string
	AssignedAgentID   *string
	AssignedAgentName *string
	MessageCount      int
	HasUnreadMessages bool
	LastMessageAt     *time.Time
	PriorityIndex     int
	CategoryIndex     *string
	AIMetadata        AIMetadata
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasTag reports whether the ticket carries tag, ignoring case.
func (t *Ticket) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if strings.EqualFold(candidate, tag) {
			return true
		}
	}
	return false
}

// Matches reports whether the lower-cased term appears in the subject,
// description, category or any tag.
func (t *Ticket) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(t.Subject), term) || strings.Contains(strings.ToLower(t.Description), term) {
		return true
	}
	if t.Category != nil && strings.Contains(strings.ToLower(*t.Category), term) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// TicketStats aggregates counts over a set of tickets.
type TicketStats struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	InProgress int            `json:"in_progress"`
	Resolved   int            `json:"resolved"`
	Closed     int            `json:"closed"`
	ByPriority map[string]int `json:"by_priority"`
	ByCategory map[string]int `json:"by_category"`
}

// ComputeStats counts tickets by status, priority and category.
func ComputeStats(tickets []Ticket) TicketStats {
	stats := TicketStats{
		Total:      len(tickets),
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
	}
	for i := range tickets {
		t := &tickets[i]
		switch t.Status {
		case TicketStatusOpen:
			stats.Open++
		case TicketStatusInProgress:
			stats.InProgress++
		case TicketStatusResolved:
			stats.Resolved++
		case TicketStatusClosed:
			stats.Closed++
		}
		if t.Priority != nil {
			stats.ByPriority[string(*t.Priority)]++
		}
		if t.Category != nil {
			stats.ByCategory[*t.Category]++
		}
	}
	return stats
}

// TicketCriteria narrows a set of tickets already scoped to a caller.
// Nil fields do not constrain.
type TicketCriteria struct {
	Status          *TicketStatus
	Priority        *TicketPriority
	Category        *string
	AssignedAgentID *string
	Search          string
}

// Apply returns the tickets matching every set criterion, preserving order.
func (c TicketCriteria) Apply(tickets []Ticket) []Ticket {
	out := make([]Ticket, 0, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		if c.Status != nil && t.Status != *c.Status {
			continue
		}
		if c.Priority != nil && (t.Priority == nil || *t.Priority != *c.Priority) {
			continue
		}
		if c.Category != nil && (t.Category == nil || *t.Category != *c.Category) {
			continue
		}
		if c.AssignedAgentID != nil && (t.AssignedAgentID == nil || *t.AssignedAgentID != *c.AssignedAgentID) {
			continue
		}
		if !t.Matches(c.Search) {
			continue
		}
		out = append(out, *t)
	}
	return out
}
