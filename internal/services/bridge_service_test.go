package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/clubpos/backend/internal/models"
)

func newBridgeServiceMock(t *testing.T) (*BridgeService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	return NewBridgeService(db, nil), mock, func() { db.Close() }
}

func bridgeParams(t *testing.T, now time.Time) CreateTransactionParams {
	amount, err := models.NewNonNegCurrency(500)
	assert.NoError(t, err)
	return CreateTransactionParams{
		Description:     strPtr("card sale"),
		Time:            now,
		DebitedAccount:  1,
		CreditedAccount: 3,
		Amount:          amount,
		Bundles: []CreateBundleParams{
			{Change: 2, ItemIDs: map[int64]int32{7: 2}},
		},
	}
}

func TestBridgeService_Begin(t *testing.T) {
	now := time.Now()

	t.Run("stages when slot is free", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock").
			WithArgs(bridgeLockKey).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bridge_transactions`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("INSERT INTO bridge_transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))
		mock.ExpectQuery("INSERT INTO bridge_transaction_bundles").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))
		mock.ExpectExec("INSERT INTO bridge_transaction_items").
			WithArgs(int64(41), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO bridge_transaction_items").
			WithArgs(int64(41), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		id, err := service.Begin(bridgeParams(t, now))
		assert.NoError(t, err)
		assert.Equal(t, int64(31), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects second pending payment", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock").
			WithArgs(bridgeLockKey).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bridge_transactions`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		_, err := service.Begin(bridgeParams(t, now))
		assert.ErrorIs(t, err, ErrPendingPayment)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBridgeService_Poll(t *testing.T) {
	t.Run("returns oldest staged payment", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectQuery("SELECT id, amount").
			WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}).AddRow(int64(31), int64(500)))

		pending, err := service.Poll()
		assert.NoError(t, err)
		assert.Equal(t, int64(31), pending.ID)
		assert.Equal(t, models.Currency(500), pending.Amount)
	})

	t.Run("nil when nothing is staged", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectQuery("SELECT id, amount").
			WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}))

		pending, err := service.Poll()
		assert.NoError(t, err)
		assert.Nil(t, pending)
	})

	t.Run("concurrent polls on an empty slot all see nothing", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		const pollers = 8
		mock.MatchExpectationsInOrder(false)
		for i := 0; i < pollers; i++ {
			mock.ExpectQuery("SELECT id, amount").
				WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}))
		}

		var wg sync.WaitGroup
		results := make(chan error, pollers)
		for i := 0; i < pollers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pending, err := service.Poll()
				if pending != nil {
					results <- errors.New("expected no pending payment")
					return
				}
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		for err := range results {
			assert.NoError(t, err)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func stagedRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "description", "time", "debited_account", "credited_account", "amount"}).
		AddRow(int64(31), "card sale", now, int64(1), int64(3), int64(500))
}

func stagedBundleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"b.id", "b.description", "b.price", "b.change", "i.item_id"})
}

func expectDrainStaging(mock sqlmock.Sqlmock) {
	mock.ExpectExec("DELETE FROM bridge_transaction_items").
		WithArgs(int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM bridge_transaction_bundles").
		WithArgs(int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM bridge_transactions").
		WithArgs(int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestBridgeService_Resolve(t *testing.T) {
	now := time.Now()

	t.Run("paid migrates into the ledger", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, description, time").
			WithArgs(int64(31)).
			WillReturnRows(stagedRows(now))
		mock.ExpectQuery("SELECT b.id, b.description").
			WithArgs(int64(31)).
			WillReturnRows(stagedBundleRows().
				AddRow(int64(41), nil, nil, int32(2), int64(7)).
				AddRow(int64(41), nil, nil, int32(2), int64(7)))
		expectDrainStaging(mock)
		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
		mock.ExpectQuery("INSERT INTO transaction_bundles").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
		mock.ExpectExec("INSERT INTO transaction_items").
			WithArgs(int64(21), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transaction_items").
			WithArgs(int64(21), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO bridge_post_transactions").
			WithArgs(int64(31), int64(11), models.BridgeStatusPaid, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		post, err := service.Resolve(31, models.PaymentOutcome{Status: models.BridgeStatusPaid})
		assert.NoError(t, err)
		assert.Equal(t, models.BridgeStatusPaid, post.Status)
		assert.Equal(t, int64(11), *post.TransactionID)
		assert.Nil(t, post.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed records the reason without a ledger row", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, description, time").
			WithArgs(int64(31)).
			WillReturnRows(stagedRows(now))
		mock.ExpectQuery("SELECT b.id, b.description").
			WithArgs(int64(31)).
			WillReturnRows(stagedBundleRows())
		expectDrainStaging(mock)
		mock.ExpectExec("INSERT INTO bridge_post_transactions").
			WithArgs(int64(31), nil, models.BridgeStatusFailed, "card declined").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		post, err := service.Resolve(31, models.PaymentOutcome{
			Status: models.BridgeStatusFailed,
			Reason: "card declined",
		})
		assert.NoError(t, err)
		assert.Equal(t, models.BridgeStatusFailed, post.Status)
		assert.Nil(t, post.TransactionID)
		assert.Equal(t, "card declined", *post.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cancelled leaves no reason", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, description, time").
			WithArgs(int64(31)).
			WillReturnRows(stagedRows(now))
		mock.ExpectQuery("SELECT b.id, b.description").
			WithArgs(int64(31)).
			WillReturnRows(stagedBundleRows())
		expectDrainStaging(mock)
		mock.ExpectExec("INSERT INTO bridge_post_transactions").
			WithArgs(int64(31), nil, models.BridgeStatusCancelled, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		post, err := service.Resolve(31, models.PaymentOutcome{Status: models.BridgeStatusCancelled})
		assert.NoError(t, err)
		assert.Nil(t, post.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("consumed reference is gone", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, description, time").
			WithArgs(int64(31)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "description", "time", "debited_account", "credited_account", "amount"}))
		mock.ExpectRollback()

		_, err := service.Resolve(31, models.PaymentOutcome{Status: models.BridgeStatusPaid})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBridgeService_GetStatus(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectQuery("SELECT bridge_transaction_id").
			WithArgs(int64(31)).
			WillReturnRows(sqlmock.NewRows([]string{"bridge_transaction_id", "transaction_id", "status", "error"}).
				AddRow(int64(31), int64(11), "paid", nil))

		post, err := service.GetStatus(31)
		assert.NoError(t, err)
		assert.Equal(t, models.BridgeStatusPaid, post.Status)
		assert.Equal(t, int64(11), *post.TransactionID)
	})

	t.Run("unknown reference", func(t *testing.T) {
		service, mock, cleanup := newBridgeServiceMock(t)
		defer cleanup()

		mock.ExpectQuery("SELECT bridge_transaction_id").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"bridge_transaction_id", "transaction_id", "status", "error"}))

		_, err := service.GetStatus(99)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBridgeService_QueueForSettlement(t *testing.T) {
	staged := &models.BridgeTransaction{
		ID:              31,
		DebitedAccount:  1,
		CreditedAccount: 3,
		Amount:          models.Currency(500),
	}

	t.Run("paid payment lands on the settlement queue", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()

		service := NewBridgeService(db, redisClient)

		txID := int64(11)
		post := &models.BridgePostTransaction{
			BridgeTransactionID: 31,
			TransactionID:       &txID,
			Status:              models.BridgeStatusPaid,
		}
		redisMock.Regexp().ExpectRPush("settlement_queue", `.*"bridgeTransactionId":31.*`).SetVal(1)

		service.queueForSettlement(staged, post)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("failed payment reports without queuing", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()

		service := NewBridgeService(db, redisClient)

		reason := "card declined"
		post := &models.BridgePostTransaction{
			BridgeTransactionID: 31,
			Status:              models.BridgeStatusFailed,
			Error:               &reason,
		}

		service.queueForSettlement(staged, post)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
