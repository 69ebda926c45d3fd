package repository

import (
	"time"

	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/domain"
)

// Collection names.
const (
	CollectionTickets  = "tickets"
	CollectionMessages = "messages"
	CollectionUsers    = "users"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = docstore.ErrNotFound

func fieldString(data docstore.Fields, path string) string {
	v, _ := data.Lookup(path)
	s, _ := v.(string)
	return s
}

func fieldStringPtr(data docstore.Fields, path string) *string {
	v, ok := data.Lookup(path)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func fieldBool(data docstore.Fields, path string) bool {
	v, _ := data.Lookup(path)
	b, _ := v.(bool)
	return b
}

func fieldFloatPtr(data docstore.Fields, path string) *float64 {
	v, ok := data.Lookup(path)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	}
	return nil
}

func fieldInt(data docstore.Fields, path string) int {
	if f := fieldFloatPtr(data, path); f != nil {
		return int(*f)
	}
	return 0
}

func fieldTimePtr(data docstore.Fields, path string) *time.Time {
	v, ok := data.Lookup(path)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil
		}
		return &parsed
	}
	return nil
}

func fieldTime(data docstore.Fields, path string) time.Time {
	if t := fieldTimePtr(data, path); t != nil {
		return *t
	}
	return time.Time{}
}

func fieldStrings(data docstore.Fields, path string) []string {
	v, _ := data.Lookup(path)
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// DecodeTicket converts a raw tickets document, such as one carried by a
// change feed, into a ticket.
func DecodeTicket(doc *docstore.Document) domain.Ticket {
	return ticketFromDocument(doc)
}

// DecodeMessage converts a raw messages document into a message.
func DecodeMessage(doc *docstore.Document) domain.Message {
	return messageFromDocument(doc)
}
