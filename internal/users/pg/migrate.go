package pg

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/uaagate/internal/observability/logger"
	migrations "github.com/dropDatabas3/uaagate/migrations/postgres"
)

// lockID genera el ID de pg_advisory_lock para las migraciones del store.
func lockID(scope string) int64 {
	h := sha256.Sum256([]byte("uaa_migration:" + scope))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// Migrate aplica los *_up.sql embebidos (orden lexicográfico) bajo advisory lock, así
// varias réplicas arrancando a la vez no corren la misma migración en paralelo.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	return migrateFS(ctx, pool, migrations.FS, migrations.Dir)
}

func migrateFS(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string) (int, error) {
	log := logger.From(ctx).With(logger.Layer("users"), logger.Component("migrate"))
	id := lockID(dir)

	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var acquired bool
	if err := pool.QueryRow(lockCtx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		return 0, fmt.Errorf("migrate: acquire lock: %w", err)
	}
	if !acquired {
		log.Info("migration lock held by another process, waiting")
		if _, err := pool.Exec(lockCtx, "SELECT pg_advisory_lock($1)", id); err != nil {
			return 0, fmt.Errorf("migrate: wait lock: %w", err)
		}
	}
	defer func() {
		if _, err := pool.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", id); err != nil {
			log.Warn("release migration lock failed", logger.Err(err))
		}
	}()

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), "_up.sql") {
			files = append(files, dir+"/"+e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return applied, err
		}
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("migrate: exec %s: %w", f, err)
		}
		applied++
	}
	log.Info("migrations applied", logger.Count(applied))
	return applied, nil
}
