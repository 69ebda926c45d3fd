package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// PostgresStore keeps documents as JSONB rows in a single table and
// learns about committed writes through a Notifier.
type PostgresStore struct {
	pool     *pgxpool.Pool
	notifier Notifier
	logger   *zap.Logger
	clock    Clock
	hub      *hub
	stop     func()
}

// NewPostgresStore builds a store. Start must be called before
// subscriptions receive updates.
func NewPostgresStore(pool *pgxpool.Pool, notifier Notifier, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		pool:     pool,
		notifier: notifier,
		logger:   logger,
		clock:    time.Now,
		hub:      newHub(),
	}
}

// Start begins consuming change notices.
func (s *PostgresStore) Start(ctx context.Context) error {
	stop, err := s.notifier.Subscribe(ctx, s.onNotice)
	if err != nil {
		return err
	}
	s.stop = stop
	return nil
}

// Close stops consuming notices and drops subscriptions.
func (s *PostgresStore) Close() {
	if s.stop != nil {
		s.stop()
	}
	s.hub.closeAll()
}

func (s *PostgresStore) onNotice(ctx context.Context, notice ChangeNotice) {
	change := Change{Type: notice.Type, Collection: notice.Collection, ID: notice.ID}
	if notice.Type == ChangeDeleted && notice.Data != nil {
		change.Document = &Document{ID: notice.ID, Collection: notice.Collection, Data: notice.Data}
	}
	if notice.Type != ChangeDeleted {
		doc, err := s.Get(ctx, notice.Collection, notice.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			change.Type = ChangeDeleted
		case err != nil:
			s.logger.Warn("load changed document", zap.String("collection", notice.Collection), zap.String("id", notice.ID), zap.Error(err))
		default:
			change.Document = doc
		}
	}
	s.hub.publish(ctx, change, s.Query, s.Get)
}

func (s *PostgresStore) announce(ctx context.Context, notice ChangeNotice) {
	if err := s.notifier.Publish(context.WithoutCancel(ctx), notice); err != nil {
		s.logger.Warn("publish change notice", zap.String("collection", notice.Collection), zap.String("id", notice.ID), zap.Error(err))
	}
}

// Create inserts a new document.
func (s *PostgresStore) Create(ctx context.Context, collection string, data Fields) (string, error) {
	resolved, err := resolveMap(data, s.clock().UTC())
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	payload, err := encodeDocument(resolved)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	const query = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`
	if _, err := s.pool.Exec(ctx, query, collection, id, payload); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", fmt.Errorf("create %s: %s: %w", collection, pgErr.ConstraintName, ErrConflict)
		}
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	s.announce(ctx, ChangeNotice{Type: ChangeCreated, Collection: collection, ID: id})
	return id, nil
}

// Get loads a document.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	const query = `SELECT data FROM documents WHERE collection=$1 AND id=$2`
	var raw []byte
	if err := s.pool.QueryRow(ctx, query, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	data, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Collection: collection, Data: data}, nil
}

// Query runs a filtered, ordered, limited select.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		data, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: id, Collection: q.Collection, Data: data})
	}
	return docs, rows.Err()
}

// Update applies a partial write.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	_, err := s.UpdateIf(ctx, collection, id, nil, fields)
	return err
}

// UpdateIf applies a partial write under a row lock when conds hold.
func (s *PostgresStore) UpdateIf(ctx context.Context, collection, id string, conds []Filter, fields Fields) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var raw []byte
	const selectQuery = `SELECT data FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`
	if err := tx.QueryRow(ctx, selectQuery, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	data, err := decodeDocument(raw)
	if err != nil {
		return false, err
	}
	if !Matches(data, conds) {
		return false, nil
	}
	if err := applyFields(data, fields, s.clock().UTC()); err != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	payload, err := encodeDocument(data)
	if err != nil {
		return false, err
	}
	const updateQuery = `UPDATE documents SET data=$3::jsonb, updated_at=NOW() WHERE collection=$1 AND id=$2`
	if _, err := tx.Exec(ctx, updateQuery, collection, id, payload); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	s.announce(ctx, ChangeNotice{Type: ChangeUpdated, Collection: collection, ID: id})
	return true, nil
}

// Delete removes a document.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM documents WHERE collection=$1 AND id=$2 RETURNING data`
	var raw []byte
	if err := s.pool.QueryRow(ctx, query, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	data, err := decodeDocument(raw)
	if err != nil {
		s.logger.Warn("decode deleted document", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		data = nil
	}
	s.announce(ctx, ChangeNotice{Type: ChangeDeleted, Collection: collection, ID: id, Data: data})
	return nil
}

// SubscribeDoc delivers the document now and after every notice for it.
func (s *PostgresStore) SubscribeDoc(collection, id string, fn DocHandler) (Unsubscribe, error) {
	return s.hub.addDoc(collection, id, fn, s.Get), nil
}

// SubscribeQuery delivers the result set now and after every notice in
// the collection.
func (s *PostgresStore) SubscribeQuery(q Query, fn QueryHandler) (Unsubscribe, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	return s.hub.addQuery(q, fn, s.Query), nil
}

// Watch registers a trigger for every notice in collection.
func (s *PostgresStore) Watch(collection string, fn ChangeHandler) Unsubscribe {
	return s.hub.addWatcher(collection, fn)
}

func jsonPath(field string) string {
	return "'{" + strings.ReplaceAll(field, ".", ",") + "}'"
}

// jsonExpr addresses field as jsonb. Top-level fields use the -> form so
// the expressions match the indexes in migrations/.
func jsonExpr(field string) string {
	if strings.Contains(field, ".") {
		return "data #> " + jsonPath(field)
	}
	return "data -> '" + field + "'"
}

// jsonTextExpr addresses field as text.
func jsonTextExpr(field string) string {
	if strings.Contains(field, ".") {
		return "data #>> " + jsonPath(field)
	}
	return "data ->> '" + field + "'"
}

// buildSelect renders q as SQL over the documents table.
func buildSelect(q Query) (string, []any, error) {
	args := []any{q.Collection}
	clauses := []string{"collection=$1"}

	for _, f := range q.Filters {
		expr := jsonExpr(f.Field)
		textExpr := jsonTextExpr(f.Field)
		value, err := resolve(f.Value, nil, time.Time{})
		if err != nil {
			return "", nil, err
		}
		switch f.Op {
		case OpEqual:
			if value == nil {
				clauses = append(clauses, fmt.Sprintf("(%s IS NULL OR %s = 'null'::jsonb)", expr, expr))
				continue
			}
			if text, ok := textOperand(value); ok {
				args = append(args, text)
				clauses = append(clauses, fmt.Sprintf("%s = $%d AND jsonb_typeof(%s) = 'string'", textExpr, len(args), expr))
				continue
			}
			encoded, err := encodeValue(value)
			if err != nil {
				return "", nil, err
			}
			args = append(args, encoded)
			clauses = append(clauses, fmt.Sprintf("%s = $%d::jsonb", expr, len(args)))
		case OpNotEqual:
			encoded, err := encodeValue(value)
			if err != nil {
				return "", nil, err
			}
			args = append(args, encoded)
			clauses = append(clauses, fmt.Sprintf("(%s IS NOT NULL AND %s <> $%d::jsonb)", expr, expr, len(args)))
		case OpArrayContains:
			encoded, err := encodeValue([]any{value})
			if err != nil {
				return "", nil, err
			}
			args = append(args, encoded)
			clauses = append(clauses, fmt.Sprintf("%s @> $%d::jsonb", expr, len(args)))
		case OpIn:
			items := listValues(value)
			if len(items) == 0 {
				clauses = append(clauses, "FALSE")
				continue
			}
			placeholders := make([]string, len(items))
			for i, item := range items {
				encoded, err := encodeValue(item)
				if err != nil {
					return "", nil, err
				}
				args = append(args, encoded)
				placeholders[i] = fmt.Sprintf("$%d::jsonb", len(args))
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", expr, strings.Join(placeholders, ",")))
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			if n, ok := toFloat(value); ok {
				args = append(args, n)
				clauses = append(clauses, fmt.Sprintf("(CASE WHEN jsonb_typeof(%s) = 'number' THEN (%s)::numeric END) %s $%d",
					expr, textExpr, f.Op, len(args)))
				continue
			}
			text, ok := textOperand(value)
			if !ok {
				return "", nil, fmt.Errorf("query: unsupported operand for %s", f.Op)
			}
			args = append(args, text)
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", textExpr, f.Op, len(args)))
		default:
			return "", nil, fmt.Errorf("query: unsupported operator %q", f.Op)
		}
	}

	sql := "SELECT id, data FROM documents WHERE " + strings.Join(clauses, " AND ")
	if q.OrderBy != nil {
		dir := "ASC NULLS LAST"
		if q.OrderBy.Direction == Desc {
			dir = "DESC NULLS LAST"
		}
		sql += fmt.Sprintf(" ORDER BY %s %s, id ASC", jsonExpr(q.OrderBy.Field), dir)
	} else {
		sql += " ORDER BY id ASC"
	}
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return sql, args, nil
}

func textOperand(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case time.Time:
		return val.UTC().Format(TimeLayout), true
	}
	return "", false
}

// encodeValue renders a resolved value as JSON with sortable timestamps.
func encodeValue(v any) (string, error) {
	payload, err := json.Marshal(toJSONValue(v))
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func encodeDocument(data map[string]any) (string, error) {
	return encodeValue(map[string]any(data))
}

func toJSONValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(TimeLayout)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONValue(item)
		}
		return out
	case Fields:
		return toJSONValue(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = toJSONValue(val[i])
		}
		return out
	}
	return v
}

func decodeDocument(raw []byte) (Fields, error) {
	data := Fields{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}
