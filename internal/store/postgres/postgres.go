// Package postgres stores collections as JSONB rows in a single documents table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/resume-updater/internal/store"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	seq           BIGSERIAL,
	collection    TEXT        NOT NULL,
	partition_key TEXT        NOT NULL,
	id            TEXT        NOT NULL,
	body          JSONB       NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, partition_key, id)
);
`

type PgxPoolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type DB struct {
	pool PgxPoolIface
}

// Connect opens a pool and makes sure the documents table exists.
func Connect(ctx context.Context, dsn string) (*DB, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pool.Ping: %w", err)
	}

	db := New(pool)
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return db, pool, nil
}

func New(pool PgxPoolIface) *DB {
	return &DB{pool: pool}
}

func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (d *DB) Collection(name string) store.Collection {
	return &Collection{pool: d.pool, name: name}
}

type Collection struct {
	pool PgxPoolIface
	name string
}

func (c *Collection) Create(ctx context.Context, item store.Item) error {
	body, err := json.Marshal(item.Body)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", c.name, item.ID, err)
	}

	query := `
INSERT INTO documents
	(collection, partition_key, id, body)
VALUES
	($1, $2, $3, $4::jsonb)
ON CONFLICT (collection, partition_key, id) DO NOTHING;
`
	tag, err := c.pool.Exec(ctx, query, c.name, item.PartitionKey, item.ID, string(body))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s/%s: %w", c.name, item.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("pool.Exec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", c.name, item.ID, store.ErrDuplicate)
	}
	return nil
}

func (c *Collection) Replace(ctx context.Context, item store.Item, opts ...store.ReplaceOption) error {
	body, err := json.Marshal(item.Body)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", c.name, item.ID, err)
	}
	o := store.ApplyReplaceOptions(opts...)

	query := `
UPDATE documents
SET body = $4::jsonb, updated_at = NOW()
WHERE collection = $1 AND partition_key = $2 AND id = $3`
	args := []any{c.name, item.PartitionKey, item.ID, string(body)}
	if o.IfVersion != nil {
		query += ` AND (body->>'version')::bigint = $5`
		args = append(args, *o.IfVersion)
	}

	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pool.Exec: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if o.IfVersion == nil {
		return fmt.Errorf("%s/%s: %w", c.name, item.ID, store.ErrNotFound)
	}

	exists, err := c.exists(ctx, item.PartitionKey, item.ID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s/%s: %w", c.name, item.ID, store.ErrNotFound)
	}
	return fmt.Errorf("%s/%s: expected version %d: %w", c.name, item.ID, *o.IfVersion, store.ErrVersionConflict)
}

func (c *Collection) Get(ctx context.Context, partition, id string, out any) error {
	query := `
SELECT body
FROM documents
WHERE collection = $1 AND partition_key = $2 AND id = $3;
`
	var body []byte
	err := c.pool.QueryRow(ctx, query, c.name, partition, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s/%s: %w", c.name, id, store.ErrNotFound)
		}
		return fmt.Errorf("row.Scan: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", c.name, id, err)
	}
	return nil
}

func (c *Collection) Query(ctx context.Context, partition string, conds ...store.Condition) ([]json.RawMessage, error) {
	query, args, err := buildQuery(c.name, partition, conds)
	if err != nil {
		return nil, err
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pool.Query: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		out = append(out, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return out, nil
}

func (c *Collection) Delete(ctx context.Context, partition, id string) error {
	query := `
DELETE FROM documents
WHERE collection = $1 AND partition_key = $2 AND id = $3;
`
	tag, err := c.pool.Exec(ctx, query, c.name, partition, id)
	if err != nil {
		return fmt.Errorf("pool.Exec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", c.name, id, store.ErrNotFound)
	}
	return nil
}

func (c *Collection) exists(ctx context.Context, partition, id string) (bool, error) {
	query := `
SELECT 1
FROM documents
WHERE collection = $1 AND partition_key = $2 AND id = $3
LIMIT 1;
`
	var x int
	err := c.pool.QueryRow(ctx, query, c.name, partition, id).Scan(&x)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("row.Scan: %w", err)
	}
	return true, nil
}

// buildQuery renders a SELECT over one collection. Field names travel as bind parameters
// to the ->> operator, so they never reach the SQL text.
func buildQuery(collection, partition string, conds []store.Condition) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT body FROM documents WHERE collection = $1")
	args := []any{collection}

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if partition != "" {
		b.WriteString(" AND partition_key = " + next(partition))
	}

	for _, cond := range conds {
		if cond.Field == "" {
			return "", nil, errors.New("condition field is empty")
		}

		switch cond.Op {
		case store.OpEq:
			if len(cond.Values) != 1 {
				return "", nil, fmt.Errorf("eq on %q needs exactly one value", cond.Field)
			}
			field := next(cond.Field)
			b.WriteString(fmt.Sprintf(" AND body->>%s = %s", field, next(store.Text(cond.Values[0]))))
		case store.OpGte:
			if len(cond.Values) != 1 {
				return "", nil, fmt.Errorf("gte on %q needs exactly one value", cond.Field)
			}
			field := next(cond.Field)
			b.WriteString(fmt.Sprintf(" AND (body->>%s)::double precision >= %s", field, next(cond.Values[0])))
		case store.OpIn:
			values := make([]string, 0, len(cond.Values))
			for _, v := range cond.Values {
				values = append(values, store.Text(v))
			}
			field := next(cond.Field)
			b.WriteString(fmt.Sprintf(" AND body->>%s = ANY(%s::text[])", field, next(values)))
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", cond.Op)
		}
	}

	b.WriteString(" ORDER BY seq ASC")
	return b.String(), args, nil
}
