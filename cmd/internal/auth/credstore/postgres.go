package credstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps credentials in <schema>.credentials keyed by (namespace, key).
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool      *pgxpool.Pool
	schema    string
	namespace string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "frontdesk").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("credstore: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("credstore: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithNamespace scopes all rows to namespace (default: "default").
func WithNamespace(ns string) PostgresOption {
	return func(s *PostgresStore) error {
		ns = strings.TrimSpace(ns)
		if ns == "" {
			return errors.New("credstore: empty namespace")
		}
		s.namespace = ns
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:      pool,
		schema:    "frontdesk",
		namespace: "default",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("credstore: nil pool")
	}
	return st, nil
}

// EnsureSchema creates the schema and table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	table := pgIdent(s.schema, "credentials")
	if _, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize()); err != nil {
		return fmt.Errorf("credstore: create schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
		namespace  text        NOT NULL,
		key        text        NOT NULL,
		value      text        NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (namespace, key)
	)`); err != nil {
		return fmt.Errorf("credstore: create table: %w", err)
	}
	return nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key Key) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM `+pgIdent(s.schema, "credentials")+` WHERE namespace = $1 AND key = $2`,
		s.namespace, string(key),
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credstore: select: %w", err)
	}
	return v, true, nil
}

// Put implements Store. All values are upserted inside one transaction.
func (s *PostgresStore) Put(ctx context.Context, values map[Key]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := pgIdent(s.schema, "credentials")
	for k, v := range values {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+table+` (namespace, key, value, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			s.namespace, string(k), v,
		); err != nil {
			return fmt.Errorf("credstore: upsert %s: %w", k, err)
		}
	}
	return tx.Commit(ctx)
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, string(k))
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM `+pgIdent(s.schema, "credentials")+` WHERE namespace = $1 AND key = ANY($2)`,
		s.namespace, names,
	); err != nil {
		return fmt.Errorf("credstore: delete: %w", err)
	}
	return nil
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

func isValidPGIdent(s string) bool { return pgIdentRe.MatchString(s) }

func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
