package docstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC layout used when timestamps are
// serialized, so that lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var fieldPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidFieldPath reports whether path is a dotted identifier path.
func ValidFieldPath(path string) bool {
	return fieldPathPattern.MatchString(path)
}

// Lookup returns the value at a dotted path.
func (f Fields) Lookup(path string) (any, bool) {
	var current any = map[string]any(f)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (f Fields) set(path string, value any) {
	parts := strings.Split(path, ".")
	current := map[string]any(f)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(current[part])
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Fields:
		return map[string]any(m), true
	}
	return nil, false
}

// Clone deep-copies the data so callers cannot alias store state.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(Fields(val).Clone())
	case Fields:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	}
	return v
}

// resolve normalizes a value for storage: sentinels become concrete
// values, numbers become float64 and string slices become []any.
func resolve(v any, current any, now time.Time) (any, error) {
	switch val := v.(type) {
	case serverTimestamp:
		return now, nil
	case increment:
		base, ok := toFloat(current)
		if !ok && current != nil {
			return nil, fmt.Errorf("increment non-numeric field")
		}
		return base + val.delta, nil
	case map[string]any:
		return resolveMap(val, now)
	case Fields:
		return resolveMap(val, now)
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i := range val {
			item, err := resolve(val[i], nil, now)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case time.Time:
		return val.UTC(), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return val.UTC(), nil
	case *string:
		if val == nil {
			return nil, nil
		}
		return *val, nil
	case *float64:
		if val == nil {
			return nil, nil
		}
		return *val, nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return v, nil
}

func resolveMap(m map[string]any, now time.Time) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		resolved, err := resolve(v, nil, now)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

// applyFields writes updates into data in place.
func applyFields(data Fields, updates Fields, now time.Time) error {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		if !ValidFieldPath(k) {
			return fmt.Errorf("invalid field path %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		current, _ := data.Lookup(k)
		value, err := resolve(updates[k], current, now)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		data.set(k, value)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

// compareValues orders two stored values. ok is false when the values
// are not comparable.
func compareValues(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	if _, ok := b.(time.Time); ok {
		c, ok := compareValues(b, a)
		return -c, ok
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := compareValues(a, b)
	return ok && c == 0
}

func listValues(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	}
	return nil
}

// Matches reports whether data satisfies every filter.
func Matches(data Fields, filters []Filter) bool {
	for _, f := range filters {
		if !matchFilter(data, f) {
			return false
		}
	}
	return true
}

func matchFilter(data Fields, f Filter) bool {
	value, present := data.Lookup(f.Field)
	want, _ := resolve(f.Value, nil, time.Time{})
	switch f.Op {
	case OpEqual:
		return valuesEqual(value, want)
	case OpNotEqual:
		return present && !valuesEqual(value, want)
	case OpIn:
		for _, candidate := range listValues(want) {
			if valuesEqual(value, candidate) {
				return true
			}
		}
		return false
	case OpArrayContains:
		for _, item := range listValues(value) {
			if valuesEqual(item, want) {
				return true
			}
		}
		return false
	}
	if !present || value == nil {
		return false
	}
	c, ok := compareValues(value, want)
	if !ok {
		return false
	}
	switch f.Op {
	case OpLess:
		return c < 0
	case OpLessEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	}
	return false
}

// sortDocuments orders docs by the query ordering. Documents missing the
// field sort last; ties break on id.
func sortDocuments(docs []Document, order *OrderBy) {
	sort.SliceStable(docs, func(i, j int) bool {
		if order != nil {
			a, aok := docs[i].Data.Lookup(order.Field)
			b, bok := docs[j].Data.Lookup(order.Field)
			switch {
			case aok && !bok:
				return true
			case !aok && bok:
				return false
			case aok && bok:
				if c, ok := compareValues(a, b); ok && c != 0 {
					if order.Direction == Desc {
						return c > 0
					}
					return c < 0
				}
			}
		}
		return docs[i].ID < docs[j].ID
	})
}

func validateQuery(q Query) error {
	if q.Collection == "" {
		return fmt.Errorf("query: collection required")
	}
	for _, f := range q.Filters {
		if !ValidFieldPath(f.Field) {
			return fmt.Errorf("query: invalid field path %q", f.Field)
		}
	}
	if q.OrderBy != nil && !ValidFieldPath(q.OrderBy.Field) {
		return fmt.Errorf("query: invalid order field %q", q.OrderBy.Field)
	}
	return nil
}
