package services

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/clubpos/backend/internal/models"
)

func TestMemberService_Create(t *testing.T) {
	t.Run("member and credit account in one transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		assert.NoError(t, err)
		defer db.Close()

		service := NewMemberService(db)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO members").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
		// The account column list must match what the ledger reads back.
		mock.ExpectQuery(`INSERT INTO book_accounts \(name, account_type, creditor\)`).
			WithArgs("Credit: Alex", models.AccountTypeLiabilities, int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
		mock.ExpectCommit()

		member, err := service.Create("Alex", "alex@example.org")
		assert.NoError(t, err)
		assert.Equal(t, int64(5), member.ID)
		assert.Equal(t, int64(12), member.AccountID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when account insert fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		assert.NoError(t, err)
		defer db.Close()

		service := NewMemberService(db)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO members").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
		mock.ExpectQuery("INSERT INTO book_accounts").
			WillReturnError(errors.New("unique violation"))
		mock.ExpectRollback()

		_, err = service.Create("Alex", "alex@example.org")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMemberService_Get(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	service := NewMemberService(db)

	t.Run("joins the credit account on creditor", func(t *testing.T) {
		mock.ExpectQuery(`JOIN book_accounts a ON a\.creditor = m\.id`).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at", "account_id"}).
				AddRow(int64(5), "Alex", "alex@example.org", time.Now(), int64(12)))

		member, err := service.Get(5)
		assert.NoError(t, err)
		assert.Equal(t, int64(12), member.AccountID)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT m.id, m.name").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at", "account_id"}))

		_, err := service.Get(42)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
