// Package repository содержит журнал синхронизации в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/ordersync/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultListLimit задаёт число записей журнала, возвращаемых по умолчанию.
const DefaultListLimit = 50

// MaxListLimit ограничивает размер выборки журнала.
const MaxListLimit = 500

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresRepository хранит журнал обработки файлов и заказов.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository подключается к БД и применяет миграции.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, delays: retryDelays}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil || !isTransient(err) || i == len(r.delays) {
			return err
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

// isTransient сообщает, имеет ли смысл повторить операцию.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// RecordFile сохраняет итог обработки файла.
func (r *PostgresRepository) RecordFile(ctx context.Context, report model.FileReport) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO sync_files (file, status, error, rows, skipped_rows, created, skipped, failed, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			report.File, string(report.Status), report.Error, report.Rows, report.SkippedRows,
			report.Created, report.Skipped, report.Failed, report.StartedAt, report.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
		return nil
	})
}

// RecordOrder сохраняет итог обработки заказа.
func (r *PostgresRepository) RecordOrder(ctx context.Context, rec model.OrderRecord) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO sync_orders (external_id, file, outcome, remote_id, error, processed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ExternalID, rec.File, string(rec.Outcome), rec.RemoteID, rec.Error, rec.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
}

// ListOrders возвращает последние записи журнала заказов, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, limit int) ([]model.OrderRecord, error) {
	limit = ClampLimit(limit)

	rows, err := r.pool.Query(ctx,
		`SELECT external_id, file, outcome, remote_id, error, processed_at
		 FROM sync_orders
		 ORDER BY processed_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var records []model.OrderRecord
	for rows.Next() {
		var (
			rec     model.OrderRecord
			outcome string
		)
		if err := rows.Scan(&rec.ExternalID, &rec.File, &outcome, &rec.RemoteID, &rec.Error, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		rec.Outcome = model.OrderOutcome(outcome)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

// ClampLimit приводит размер выборки к допустимому диапазону.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
