package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/formpulse/automate/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type recordStore struct {
	db *pgxpool.Pool
}

func NewRecordStore(db *pgxpool.Pool) persistence.RecordStore {
	return &recordStore{db: db}
}

func (s *recordStore) InsertTicket(ctx context.Context, tenantId string, fields map[string]any) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(ctx, `INSERT INTO tickets (id, tenant_id, subject, description, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'open', now())`,
		id, tenantId, stringField(fields, "subject"), stringField(fields, "description"),
		stringFieldDefault(fields, "priority", "medium"))
	if err != nil {
		return "", persistence.StorageLayerError{Message: err.Error()}
	}
	return id, nil
}

func (s *recordStore) InsertNotification(ctx context.Context, tenantId string, userId string, title string, message string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(ctx, `INSERT INTO notifications (id, tenant_id, user_id, title, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, now())`, id, tenantId, userId, title, message)
	if err != nil {
		return "", persistence.StorageLayerError{Message: err.Error()}
	}
	return id, nil
}

func (s *recordStore) UpdateColumn(ctx context.Context, table string, column string, id any, value any) error {
	sql := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2`,
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{column}.Sanitize())
	_, err := s.db.Exec(ctx, sql, value, id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *recordStore) UpdateColumns(ctx context.Context, table string, id any, values map[string]any) error {
	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	assignments := ""
	params := make([]any, 0, len(values)+1)
	for i, column := range columns {
		if i > 0 {
			assignments += ", "
		}
		assignments += fmt.Sprintf("%s = $%d", pgx.Identifier{column}.Sanitize(), i+1)
		params = append(params, values[column])
	}
	params = append(params, id)

	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`,
		pgx.Identifier{table}.Sanitize(), assignments, len(params))
	_, err := s.db.Exec(ctx, sql, params...)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *recordStore) AppendTag(ctx context.Context, table string, column string, id any, tag string) error {
	col := pgx.Identifier{column}.Sanitize()
	sql := fmt.Sprintf(`UPDATE %s SET %s = array_append(coalesce(%s, '{}'), $1)
		WHERE id = $2 AND NOT ($1 = ANY(coalesce(%s, '{}')))`,
		pgx.Identifier{table}.Sanitize(), col, col, col)
	_, err := s.db.Exec(ctx, sql, tag, id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func stringFieldDefault(fields map[string]any, key string, def string) string {
	if v := stringField(fields, key); v != "" {
		return v
	}
	return def
}
