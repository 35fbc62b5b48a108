// Package pg es el driver PostgreSQL (pgx) del store de usuarios locales.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/uaagate/internal/tenant"
	"github.com/dropDatabas3/uaagate/internal/users"
)

const uniqueViolation = "23505"

// Store implementa users.Store sobre un pool pgx.
type Store struct {
	pool *pgxpool.Pool
}

// Open crea el pool y verifica conectividad.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) FindByLogin(ctx context.Context, login string) (*users.LocalUser, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	const q = `
		SELECT u.user_key, u.first_name, u.last_name, u.role_key, u.password_hash,
		       u.activated, u.created_at, u.updated_at
		FROM uaa_user_login l
		JOIN uaa_user u ON u.tenant = l.tenant AND u.user_key = l.user_key
		WHERE l.tenant = $1 AND l.login = $2
	`
	u := &users.LocalUser{Tenant: t}
	err = s.pool.QueryRow(ctx, q, t, users.NormalizeLogin(login)).Scan(
		&u.Key, &u.FirstName, &u.LastName, &u.RoleKey, &u.PasswordHash,
		&u.Activated, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Logins, err = s.logins(ctx, t, u.Key); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) logins(ctx context.Context, t, key string) ([]users.Login, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT login_type, login FROM uaa_user_login WHERE tenant = $1 AND user_key = $2 ORDER BY login`, t, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []users.Login
	for rows.Next() {
		var l users.Login
		if err := rows.Scan(&l.Type, &l.Value); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, u *users.LocalUser) (*users.LocalUser, error) {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	cp := *u
	cp.Tenant = t
	if cp.Key == "" {
		cp.Key = uuid.NewString()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const ins = `
		INSERT INTO uaa_user (user_key, tenant, first_name, last_name, role_key, password_hash, activated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRow(ctx, ins, cp.Key, t, cp.FirstName, cp.LastName, cp.RoleKey, cp.PasswordHash, cp.Activated).
		Scan(&cp.CreatedAt, &cp.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	if err := insertLogins(ctx, tx, t, cp.Key, cp.Logins); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}
	return &cp, nil
}

func (s *Store) Save(ctx context.Context, u *users.LocalUser) error {
	t, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const upd = `
		UPDATE uaa_user
		SET first_name = $3, last_name = $4, role_key = $5, password_hash = $6, activated = $7, updated_at = NOW()
		WHERE tenant = $1 AND user_key = $2
	`
	tag, err := tx.Exec(ctx, upd, t, u.Key, u.FirstName, u.LastName, u.RoleKey, u.PasswordHash, u.Activated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM uaa_user_login WHERE tenant = $1 AND user_key = $2`, t, u.Key); err != nil {
		return err
	}
	if err := insertLogins(ctx, tx, t, u.Key, u.Logins); err != nil {
		return err
	}
	return mapErr(tx.Commit(ctx))
}

func insertLogins(ctx context.Context, tx pgx.Tx, t, key string, logins []users.Login) error {
	for _, l := range logins {
		_, err := tx.Exec(ctx,
			`INSERT INTO uaa_user_login (tenant, login, login_type, user_key) VALUES ($1, $2, $3, $4)`,
			t, users.NormalizeLogin(l.Value), string(l.Type), key)
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", users.ErrLoginExists, pgErr.Detail)
	}
	return err
}
