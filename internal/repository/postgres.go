package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"wisefido-ews/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// PostgreSQL SQLSTATE codes mapped to sentinel errors.
const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

type txKey struct{}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// PostgresRepository implements MonitoringRepository on database/sql + lib/pq.
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ MonitoringRepository = (*PostgresRepository)(nil)

// NewPostgresRepository creates the repository.
func NewPostgresRepository(db *sql.DB, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger}
}

// EnsureSchema creates the tables, indexes and the append-only trigger if missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return mapErr("apply schema", err)
	}
	return nil
}

// SchemaTables lists the tables EnsureSchema creates.
var SchemaTables = []string{"monitoring_patients", "ews_observations", "ews_alerts"}

// MissingTables returns the SchemaTables not visible on the connection's search path.
func (r *PostgresRepository) MissingTables(ctx context.Context) ([]string, error) {
	var missing []string
	for _, table := range SchemaTables {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return nil, mapErr("check table "+table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

// WithinTx implements MonitoringRepository.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr("begin transaction", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Warn("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapErr("commit transaction", err)
	}
	return nil
}

func (r *PostgresRepository) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

// mapErr translates driver errors into the model sentinels.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", op, models.ErrAlreadyExists)
		case invalidTextRepresentation:
			// a malformed id cannot match any row
			return fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, models.ErrRepositoryUnavailable, err)
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
