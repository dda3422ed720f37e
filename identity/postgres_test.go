package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case **time.Time:
			if r.values[i] == nil {
				*p = nil
				continue
			}
			v := r.values[i].(time.Time)
			*p = &v
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

type fakeQuerier struct {
	row   fakeRow
	sql   string
	args  []any
	calls int
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.calls++
	q.sql = sql
	q.args = args
	return q.row
}

func TestPostgresResolverFindByID(t *testing.T) {
	changed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	q := &fakeQuerier{row: fakeRow{values: []any{"u1", "admin", changed}}}
	r, err := NewPostgresResolver(q, "")
	require.NoError(t, err)

	id, err := r.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.SubjectID)
	assert.Equal(t, "admin", id.Role)
	require.NotNil(t, id.PasswordChangedAt)
	assert.Equal(t, changed, *id.PasswordChangedAt)
	assert.Equal(t, "SELECT id, role, password_changed_at FROM users WHERE id = $1", q.sql)
	assert.Equal(t, []any{"u1"}, q.args)
}

func TestPostgresResolverNullPasswordChange(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{values: []any{"u1", "guest", nil}}}
	r, err := NewPostgresResolver(q, "auth.users")
	require.NoError(t, err)

	id, err := r.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, id.PasswordChangedAt)
}

func TestPostgresResolverErrors(t *testing.T) {
	r, err := NewPostgresResolver(&fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}, "")
	require.NoError(t, err)
	_, err = r.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	r, err = NewPostgresResolver(&fakeQuerier{row: fakeRow{err: context.DeadlineExceeded}}, "")
	require.NoError(t, err)
	_, err = r.FindByID(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNewPostgresResolverValidatesTable(t *testing.T) {
	_, err := NewPostgresResolver(&fakeQuerier{}, "users; DROP TABLE users")
	assert.Error(t, err)
	_, err = NewPostgresResolver(nil, "users")
	assert.Error(t, err)
}
