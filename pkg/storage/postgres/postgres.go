// Package postgres provides a PostgreSQL implementation of
// transport.ExecutionStore. It uses pgx/v5 for connection pooling and JSONB
// for the captured execution response.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/storage"
	"github.com/narrated/pyexec/pkg/transport"
)

// Store is a PostgreSQL-backed ExecutionStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ transport.ExecutionStore = (*Store)(nil)

const selectColumns = `id, status, code, timeout_seconds, response, created_at, completed_at`

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// SaveExecution inserts a new record.
func (s *Store) SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	respJSON, err := marshalResponse(rec.Response)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (
			id, tenant_id, status, code, timeout_seconds, response, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		rec.ID, storage.TenantFromContext(ctx), string(rec.Status), rec.Code, rec.Timeout,
		respJSON, rec.CreatedAt, rec.CompletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// UpdateExecution moves a record to a new status inside a transaction that
// locks the row, so concurrent updates cannot skip the transition check.
func (s *Store) UpdateExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	respJSON, err := marshalResponse(rec.Response)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query := "SELECT status FROM executions WHERE id = $1 AND deleted_at IS NULL"
		args := []any{rec.ID}
		if tenantID := storage.TenantFromContext(ctx); tenantID != "" {
			query += " AND tenant_id = $2"
			args = append(args, tenantID)
		}
		query += " FOR UPDATE"

		var current string
		if err := tx.QueryRow(ctx, query, args...).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("locking execution: %w", err)
		}
		if apiErr := api.ValidateExecutionTransition(api.ExecutionStatus(current), rec.Status); apiErr != nil {
			return apiErr
		}

		if _, err := tx.Exec(ctx,
			"UPDATE executions SET status = $1, response = $2, completed_at = $3 WHERE id = $4",
			string(rec.Status), respJSON, rec.CompletedAt, rec.ID,
		); err != nil {
			return fmt.Errorf("updating execution: %w", err)
		}
		return nil
	})
}

// GetExecution retrieves a record by ID, excluding soft-deleted records.
func (s *Store) GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error) {
	query := "SELECT " + selectColumns + " FROM executions WHERE id = $1 AND deleted_at IS NULL"
	args := []any{id}
	if tenantID := storage.TenantFromContext(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return rec, nil
}

// DeleteExecution soft-deletes a record by setting deleted_at.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	query := "UPDATE executions SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL"
	args := []any{time.Now(), id}
	if tenantID := storage.TenantFromContext(ctx); tenantID != "" {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListExecutions returns a page of records ordered by creation time. The
// after cursor selects records following it in the requested order, the
// before cursor those preceding it. An unknown cursor yields an empty page.
func (s *Store) ListExecutions(ctx context.Context, opts transport.ListOptions) (*api.ExecutionList, error) {
	q := newListQuery(storage.TenantFromContext(ctx))

	if opts.Status != "" {
		q.where("status = %s", string(opts.Status))
	}

	asc := opts.Order == "asc"
	cursor, following := opts.After, true
	if cursor == "" && opts.Before != "" {
		cursor, following = opts.Before, false
	}
	if cursor != "" {
		lookup := "SELECT created_at FROM executions WHERE id = $1 AND deleted_at IS NULL"
		lookupArgs := []any{cursor}
		if tenantID := storage.TenantFromContext(ctx); tenantID != "" {
			lookup += " AND tenant_id = $2"
			lookupArgs = append(lookupArgs, tenantID)
		}
		var createdAt time.Time
		err := s.pool.QueryRow(ctx, lookup, lookupArgs...).Scan(&createdAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return emptyList(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolving cursor: %w", err)
		}
		// Records after the cursor in ascending order are the larger ones.
		op := "<"
		if asc == following {
			op = ">"
		}
		q.where("(created_at, id) "+op+" (%s, %s)", createdAt, cursor)
	}

	// A before page is read backwards from the cursor, then flipped into
	// the requested order.
	dir := "DESC"
	if asc != (cursor != "" && !following) {
		dir = "ASC"
	}
	limit := opts.NormalizeLimit()
	sql, args := q.build(dir, limit+1)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	result := emptyList()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		result.Data = append(result.Data, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}

	if len(result.Data) > limit {
		result.Data = result.Data[:limit]
		result.HasMore = true
	}
	if cursor != "" && !following {
		slices.Reverse(result.Data)
	}
	if n := len(result.Data); n > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[n-1].ID
	}
	return result, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// listQuery accumulates WHERE clauses with positional arguments.
type listQuery struct {
	conds []string
	args  []any
}

func newListQuery(tenantID string) *listQuery {
	q := &listQuery{conds: []string{"deleted_at IS NULL"}}
	if tenantID != "" {
		q.where("tenant_id = %s", tenantID)
	}
	return q
}

// where adds a condition whose %s verbs are replaced by placeholders for args.
func (q *listQuery) where(format string, args ...any) {
	placeholders := make([]any, len(args))
	for i, a := range args {
		q.args = append(q.args, a)
		placeholders[i] = fmt.Sprintf("$%d", len(q.args))
	}
	q.conds = append(q.conds, fmt.Sprintf(format, placeholders...))
}

func (q *listQuery) build(dir string, limit int) (string, []any) {
	sql := "SELECT " + selectColumns + " FROM executions WHERE "
	for i, c := range q.conds {
		if i > 0 {
			sql += " AND "
		}
		sql += c
	}
	sql += fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT %d", dir, dir, limit)
	return sql, q.args
}

func scanRecord(row pgx.Row) (*api.ExecutionRecord, error) {
	var rec api.ExecutionRecord
	var status string
	var respJSON []byte

	if err := row.Scan(
		&rec.ID, &status, &rec.Code, &rec.Timeout, &respJSON, &rec.CreatedAt, &rec.CompletedAt,
	); err != nil {
		return nil, err
	}
	rec.Object = "execution"
	rec.Status = api.ExecutionStatus(status)

	if len(respJSON) > 0 {
		var resp api.ExecuteResponse
		if err := json.Unmarshal(respJSON, &resp); err != nil {
			return nil, fmt.Errorf("unmarshaling response: %w", err)
		}
		rec.Response = &resp
	}
	return &rec, nil
}

// marshalResponse encodes the response for the nullable JSONB column.
func marshalResponse(resp *api.ExecuteResponse) ([]byte, error) {
	if resp == nil {
		return nil, nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshaling response: %w", err)
	}
	return b, nil
}

func emptyList() *api.ExecutionList {
	return &api.ExecutionList{Object: "list", Data: []*api.ExecutionRecord{}}
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
