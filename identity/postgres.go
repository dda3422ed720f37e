package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the users table read by PostgresResolver.
const DefaultTable = "users"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Querier is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx used by PostgresResolver.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// PostgresResolver reads identities from a table with columns
// (id text, role text, password_changed_at timestamptz null).
type PostgresResolver struct {
	db    Querier
	query string
}

// NewPostgresResolver returns a resolver over table. An empty table selects DefaultTable.
func NewPostgresResolver(db Querier, table string) (*PostgresResolver, error) {
	if db == nil {
		return nil, errors.New("postgres resolver requires a querier")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresResolver{
		db:    db,
		query: "SELECT id, role, password_changed_at FROM " + table + " WHERE id = $1",
	}, nil
}

// NewPool opens a pgx pool for dsn and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return pool, nil
}

func (r *PostgresResolver) FindByID(ctx context.Context, subjectID string) (Identity, error) {
	var (
		id        Identity
		changedAt *time.Time
	)
	err := r.db.QueryRow(ctx, r.query, subjectID).Scan(&id.SubjectID, &id.Role, &changedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	id.PasswordChangedAt = changedAt
	return id, nil
}
