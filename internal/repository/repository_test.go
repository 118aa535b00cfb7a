package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestWithTx_Commit(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM users`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", 1)
		return err
	})
	require.NoError(t, err)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := WithTx(context.Background(), db, nil, func(context.Context, DBTX) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	require.PanicsWithValue(t, "kaboom", func() {
		_ = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error {
			panic("kaboom")
		})
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	called := false
	err := WithTx(context.Background(), db, nil, func(context.Context, DBTX) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
}

func TestStore_WithinTxBindsRepositoriesToTransaction(t *testing.T) {
	db, mock := newMock(t)
	store := &postgresStore{db: db, repos: NewRepositories(db)}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM email_verifications WHERE user_id = \$1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, repos *Repositories) error {
		if err := repos.Verifications.DeleteByAccount(ctx, 3); err != nil {
			return err
		}
		return repos.Accounts.Delete(ctx, 3)
	})
	require.ErrorIs(t, err, ErrNotFound)
}
