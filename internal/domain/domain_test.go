package domain

import (
	"testing"
	"time"
)

func TestTicketPriority_Index(t *testing.T) {
	tests := map[TicketPriority]int{
		TicketPriorityLow:    1,
		TicketPriorityMedium: 2,
		TicketPriorityHigh:   3,
		TicketPriorityUrgent: 4,
		"p0":                 0,
	}
	for p, want := range tests {
		if got := p.Index(); got != want {
			t.Errorf("%q: expected %d, got %d", p, want, got)
		}
	}
}

func TestProcessingStatus_CanAdvanceTo(t *testing.T) {
	all := []ProcessingStatus{ProcessingPending, ProcessingProcessing, ProcessingCompleted, ProcessingFailed}
	allowed := map[[2]ProcessingStatus]bool{
		{ProcessingPending, ProcessingProcessing}:   true,
		{ProcessingProcessing, ProcessingCompleted}: true,
		{ProcessingProcessing, ProcessingFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := from.CanAdvanceTo(to); got != allowed[[2]ProcessingStatus{from, to}] {
				t.Errorf("%s -> %s: expected %v", from, to, !got)
			}
		}
	}
	if !ProcessingCompleted.Terminal() || !ProcessingFailed.Terminal() || ProcessingProcessing.Terminal() {
		t.Error("unexpected terminal states")
	}
}

func TestMessage_Editable(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := Message{CreatedAt: created}

	tests := []struct {
		name       string
		elapsed    time.Duration
		privileged bool
		want       bool
	}{
		{"fresh", time.Second, false, true},
		{"just inside", 4*time.Minute + 59*time.Second, false, true},
		{"exactly five minutes", 5 * time.Minute, false, false},
		{"five minutes one second", 5*time.Minute + time.Second, false, false},
		{"privileged after window", time.Hour, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := msg.Editable(created.Add(tt.elapsed), tt.privileged); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTicketCriteria_Apply(t *testing.T) {
	high := TicketPriorityHigh
	low := TicketPriorityLow
	billing := CategoryBilling
	tickets := []Ticket{
		{ID: "1", Subject: "Refund please", Status: TicketStatusOpen, Priority: &high, Category: &billing, Tags: []string{"financial"}},
		{ID: "2", Subject: "Login broken", Status: TicketStatusResolved, Priority: &low},
		{ID: "3", Subject: "Question", Description: "How do invoices work?", Status: TicketStatusOpen},
	}

	open := TicketStatusOpen
	if got := (TicketCriteria{Status: &open}).Apply(tickets); len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("status filter: %+v", got)
	}
	if got := (TicketCriteria{Priority: &low}).Apply(tickets); len(got) != 1 || got[0].ID != "2" {
		t.Errorf("priority filter: %+v", got)
	}
	if got := (TicketCriteria{Category: &billing}).Apply(tickets); len(got) != 1 || got[0].ID != "1" {
		t.Errorf("category filter: %+v", got)
	}
	if got := (TicketCriteria{Search: "INVOICE"}).Apply(tickets); len(got) != 1 || got[0].ID != "3" {
		t.Errorf("search description: %+v", got)
	}
	if got := (TicketCriteria{Search: "financ"}).Apply(tickets); len(got) != 1 || got[0].ID != "1" {
		t.Errorf("search tags: %+v", got)
	}
	if got := (TicketCriteria{}).Apply(tickets); len(got) != 3 {
		t.Errorf("empty criteria: %+v", got)
	}
}

func TestComputeStats(t *testing.T) {
	high := TicketPriorityHigh
	cat := CategoryBugReport
	stats := ComputeStats([]Ticket{
		{Status: TicketStatusOpen, Priority: &high, Category: &cat},
		{Status: TicketStatusInProgress},
		{Status: TicketStatusClosed, Priority: &high},
	})
	if stats.Total != 3 || stats.Open != 1 || stats.InProgress != 1 || stats.Closed != 1 || stats.Resolved != 0 {
		t.Errorf("unexpected status counts: %+v", stats)
	}
	if stats.ByPriority["high"] != 2 || stats.ByCategory[CategoryBugReport] != 1 {
		t.Errorf("unexpected breakdowns: %+v", stats)
	}
}
