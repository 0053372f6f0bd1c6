// Package database provides a PostgreSQL implementation of store.Store
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/otel"
	"github.com/stacklok/toolhive-gateway/internal/store"
)

// options holds configuration options for the database store
type options struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// Option is a functional option for configuring the database store
type Option func(*options) error

// WithConnectionPool sets the pgx pool. The store takes ownership and closes it on Close.
func WithConnectionPool(pool *pgxpool.Pool) Option {
	return func(o *options) error {
		if pool == nil {
			return fmt.Errorf("pgx pool is required")
		}
		o.pool = pool
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer. Without it spans are not recorded.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// Store implements store.Store on PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ store.Store = (*Store)(nil)

// New creates a database store with the given options
func New(opts ...Option) (*Store, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &Store{pool: o.pool, tracer: o.tracer}, nil
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

const recordColumns = `id, path, method, name, description, category, parameters, examples,
	response_binary, source, status::text, is_active, tags, tombstoned, last_synced_at,
	created_at, updated_at`

const upsertDiscoveredSQL = `
WITH prev AS (
	SELECT tombstoned FROM endpoint WHERE path = $1 AND method = $2
)
INSERT INTO endpoint (path, method, name, description, category, parameters, examples,
	response_binary, source, last_synced_at, created_at, updated_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10, $10,
	CASE WHEN $5::text = '' THEN '{}'::text[] ELSE ARRAY[$5::text] END)
ON CONFLICT (path, method) DO UPDATE SET
	name = EXCLUDED.name,
	description = COALESCE(NULLIF(EXCLUDED.description, ''), endpoint.description),
	category = COALESCE(NULLIF(EXCLUDED.category, ''), endpoint.category),
	parameters = EXCLUDED.parameters,
	examples = COALESCE(EXCLUDED.examples, endpoint.examples),
	response_binary = EXCLUDED.response_binary,
	source = EXCLUDED.source,
	last_synced_at = EXCLUDED.last_synced_at,
	updated_at = EXCLUDED.updated_at,
	is_active = endpoint.is_active OR endpoint.tombstoned,
	tombstoned = FALSE
RETURNING (xmax = 0), COALESCE((SELECT tombstoned FROM prev), FALSE)`

// UpsertDiscovered implements store.CatalogStore
func (s *Store) UpsertDiscovered(
	ctx context.Context, d store.DiscoveredEndpoint, syncedAt time.Time,
) (store.UpsertOutcome, error) {
	ctx, span := s.startSpan(ctx, "store.UpsertDiscovered",
		trace.WithAttributes(AttrEndpointPath.String(d.Path), AttrEndpointMethod.String(d.Method)))
	defer span.End()

	if d.Path == "" || d.Method == "" {
		return store.UpsertOutcome{}, fmt.Errorf("%w: path and method are required", store.ErrInvalidInput)
	}

	params, err := marshalParameters(d.Parameters)
	if err != nil {
		otel.RecordError(span, err)
		return store.UpsertOutcome{}, err
	}

	var out store.UpsertOutcome
	var wasTombstoned bool
	err = s.pool.QueryRow(ctx, upsertDiscoveredSQL,
		d.Path, d.Method, d.Name, d.Description, d.Category, params, nullableJSON(d.Examples),
		d.ResponseBinary, d.Source, syncedAt,
	).Scan(&out.Created, &wasTombstoned)
	if err != nil {
		otel.RecordError(span, err)
		return store.UpsertOutcome{}, fmt.Errorf("failed to upsert endpoint %s %s: %w", d.Method, d.Path, err)
	}
	out.Reactivated = !out.Created && wasTombstoned
	return out, nil
}

// ListSyncedActiveKeys implements store.CatalogStore
func (s *Store) ListSyncedActiveKeys(ctx context.Context) ([]endpoint.Key, error) {
	ctx, span := s.startSpan(ctx, "store.ListSyncedActiveKeys")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT path, method FROM endpoint WHERE is_active AND source <> '' ORDER BY path, method`)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list synced endpoints: %w", err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (endpoint.Key, error) {
		var k endpoint.Key
		err := row.Scan(&k.Path, &k.Method)
		return k, err
	})
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read synced endpoints: %w", err)
	}
	span.SetAttributes(AttrResultCount.Int(len(keys)))
	return keys, nil
}

// Tombstone implements store.CatalogStore
func (s *Store) Tombstone(ctx context.Context, keys []endpoint.Key, at time.Time) (int, error) {
	ctx, span := s.startSpan(ctx, "store.Tombstone")
	defer span.End()

	if len(keys) == 0 {
		return 0, nil
	}
	paths := make([]string, len(keys))
	methods := make([]string, len(keys))
	for i, k := range keys {
		paths[i] = k.Path
		methods[i] = k.Method
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE endpoint SET is_active = FALSE, tombstoned = TRUE, updated_at = $3
WHERE is_active AND (path, method) IN (SELECT * FROM unnest($1::text[], $2::text[]))`,
		paths, methods, at)
	if err != nil {
		otel.RecordError(span, err)
		return 0, fmt.Errorf("failed to tombstone endpoints: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListProtected implements store.CatalogStore. The WHERE clause mirrors
// store.Record.Protection.
func (s *Store) ListProtected(ctx context.Context) ([]store.ProtectedEndpoint, error) {
	ctx, span := s.startSpan(ctx, "store.ListProtected")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
SELECT path, method, name, description, category, status::text, is_active
FROM endpoint
WHERE status <> 'free' OR (NOT is_active AND NOT tombstoned)
ORDER BY path, method`)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list protected endpoints: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.ProtectedEndpoint, error) {
		var p store.ProtectedEndpoint
		var status string
		err := row.Scan(&p.Path, &p.Method, &p.Name, &p.Description, &p.Category, &status, &p.IsActive)
		p.Status = store.Status(status)
		return p, err
	})
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read protected endpoints: %w", err)
	}
	span.SetAttributes(AttrResultCount.Int(len(out)))
	return out, nil
}

// List implements store.CatalogStore
func (s *Store) List(ctx context.Context, filter store.ListFilter) (*store.ListResult, error) {
	filter.Normalize()
	ctx, span := s.startSpan(ctx, "store.List",
		trace.WithAttributes(AttrPage.Int(filter.Page), AttrPageSize.Int(filter.Limit)))
	defer span.End()

	where, args := buildListWhere(filter)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM endpoint"+where, args...).Scan(&total); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to count endpoints: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM endpoint%s ORDER BY path, method LIMIT $%d OFFSET $%d",
		recordColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read endpoints: %w", err)
	}
	span.SetAttributes(AttrResultCount.Int(len(records)))
	return store.NewListResult(filter, total, records), nil
}

// buildListWhere renders the filter as a WHERE clause with positional arguments
func buildListWhere(filter store.ListFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d::endpoint_status", string(filter.Status))
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.Active != nil {
		add("is_active = $%d", *filter.Active)
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(path ILIKE $%d OR name ILIKE $%d OR description ILIKE $%d)", n, n, n))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Get implements store.CatalogStore
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*store.Record, error) {
	ctx, span := s.startSpan(ctx, "store.Get")
	defer span.End()

	rows, err := s.pool.Query(ctx, "SELECT "+recordColumns+" FROM endpoint WHERE id = $1", id)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to get endpoint %s: %w", id, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to get endpoint %s: %w", id, err)
	}
	return &rec, nil
}

const upsertOperatorSQL = `
INSERT INTO endpoint (path, method, name, description, category, status, is_active, tags)
VALUES ($1, $2, COALESCE($3::text, $1), COALESCE($4::text, ''), COALESCE($5::text, ''),
	COALESCE($6::endpoint_status, 'free'), COALESCE($7::boolean, TRUE), COALESCE($8::text[], '{}'))
ON CONFLICT (path, method) DO UPDATE SET
	name = COALESCE($3::text, endpoint.name),
	description = COALESCE($4::text, endpoint.description),
	category = COALESCE($5::text, endpoint.category),
	status = COALESCE($6::endpoint_status, endpoint.status),
	is_active = COALESCE($7::boolean, endpoint.is_active),
	tombstoned = CASE WHEN $7::boolean IS NULL THEN endpoint.tombstoned ELSE FALSE END,
	tags = COALESCE($8::text[], endpoint.tags),
	updated_at = NOW()
RETURNING ` + recordColumns + `, (xmax = 0)`

// Upsert implements store.CatalogStore
func (s *Store) Upsert(ctx context.Context, u store.RecordUpdate) (*store.Record, bool, error) {
	ctx, span := s.startSpan(ctx, "store.Upsert",
		trace.WithAttributes(AttrEndpointPath.String(u.Path), AttrEndpointMethod.String(u.Method)))
	defer span.End()

	if u.Path == "" || u.Method == "" {
		return nil, false, fmt.Errorf("%w: path and method are required", store.ErrInvalidInput)
	}
	var status *string
	if u.Status != nil {
		if !u.Status.Valid() {
			return nil, false, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, *u.Status)
		}
		v := string(*u.Status)
		status = &v
	}

	var rec store.Record
	var created bool
	row := s.pool.QueryRow(ctx, upsertOperatorSQL,
		u.Path, u.Method, u.Name, u.Description, u.Category, status, u.IsActive, u.Tags)
	if err := scanRecordInto(row, &rec, &created); err != nil {
		otel.RecordError(span, err)
		return nil, false, fmt.Errorf("failed to upsert endpoint %s %s: %w", u.Method, u.Path, err)
	}
	return &rec, created, nil
}

// SetStatus implements store.CatalogStore
func (s *Store) SetStatus(ctx context.Context, ids []uuid.UUID, status store.Status) (int, error) {
	ctx, span := s.startSpan(ctx, "store.SetStatus")
	defer span.End()

	if !status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, status)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE endpoint SET status = $2::endpoint_status, updated_at = NOW() WHERE id = ANY($1::uuid[])`,
		ids, string(status))
	if err != nil {
		otel.RecordError(span, err)
		return 0, fmt.Errorf("failed to update endpoint status: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats implements store.CatalogStore
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	ctx, span := s.startSpan(ctx, "store.Stats")
	defer span.End()

	stats := &store.Stats{
		ByStatus:   make(map[store.Status]int),
		ByCategory: make(map[string]int),
	}
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*),
	COUNT(*) FILTER (WHERE is_active),
	COUNT(*) FILTER (WHERE NOT is_active),
	COUNT(*) FILTER (WHERE tombstoned)
FROM endpoint`).Scan(&stats.Total, &stats.Active, &stats.Inactive, &stats.Tombstoned)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to count endpoints: %w", err)
	}

	if err := s.groupCount(ctx, `SELECT status::text, COUNT(*) FROM endpoint GROUP BY status`,
		func(k string, n int) { stats.ByStatus[store.Status(k)] = n }); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	if err := s.groupCount(ctx,
		`SELECT COALESCE(NULLIF(category, ''), '`+endpoint.CategoryOther+`'), COUNT(*) FROM endpoint GROUP BY 1`,
		func(k string, n int) { stats.ByCategory[k] += n }); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	return stats, nil
}

func (s *Store) groupCount(ctx context.Context, query string, set func(string, int)) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to group endpoints: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return fmt.Errorf("failed to read endpoint groups: %w", err)
		}
		set(k, n)
	}
	return rows.Err()
}

const userColumns = `id, email, role::text, vip_expires_at, created_at`

// GetUser implements store.UserStore
func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	ctx, span := s.startSpan(ctx, "store.GetUser", trace.WithAttributes(AttrUserID.String(id)))
	defer span.End()

	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM gateway_user WHERE id = $1", id)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &u, nil
}

// ListUsers implements store.UserStore
func (s *Store) ListUsers(ctx context.Context) ([]store.User, error) {
	ctx, span := s.startSpan(ctx, "store.ListUsers")
	defer span.End()

	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM gateway_user ORDER BY created_at, id")
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return users, nil
}

// SetRole implements store.UserStore
func (s *Store) SetRole(ctx context.Context, id string, role store.Role, vipExpiresAt *time.Time) (*store.User, error) {
	ctx, span := s.startSpan(ctx, "store.SetRole", trace.WithAttributes(AttrUserID.String(id)))
	defer span.End()

	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, role)
	}

	rows, err := s.pool.Query(ctx,
		"UPDATE gateway_user SET role = $2::user_role, vip_expires_at = $3 WHERE id = $1 RETURNING "+userColumns,
		id, string(role), vipExpiresAt)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to update user %s: %w", id, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return &u, nil
}

func scanRecord(row pgx.CollectableRow) (store.Record, error) {
	var rec store.Record
	err := scanRecordInto(row, &rec)
	return rec, err
}

// scanRecordInto scans recordColumns into rec followed by any extra destinations
func scanRecordInto(row pgx.Row, rec *store.Record, extra ...any) error {
	var (
		params   []byte
		examples []byte
		status   string
	)
	dest := []any{
		&rec.ID, &rec.Path, &rec.Method, &rec.Name, &rec.Description, &rec.Category,
		&params, &examples, &rec.ResponseBinary, &rec.Source, &status, &rec.IsActive,
		&rec.Tags, &rec.Tombstoned, &rec.LastSyncedAt, &rec.CreatedAt, &rec.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	rec.Status = store.Status(status)
	if len(examples) > 0 {
		rec.Examples = json.RawMessage(examples)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &rec.Parameters); err != nil {
			return fmt.Errorf("failed to decode parameters of %s %s: %w", rec.Method, rec.Path, err)
		}
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (store.User, error) {
	var u store.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &role, &u.VIPExpiresAt, &u.CreatedAt)
	u.Role = store.Role(role)
	return u, err
}

func marshalParameters(params []endpoint.Parameter) ([]byte, error) {
	if params == nil {
		params = []endpoint.Parameter{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	return data, nil
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
