package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/clubpos/backend/internal/models"
)

// The staging tables are a single-slot mailbox: at most one card payment
// may be pending. Every begin serializes on this advisory lock so two
// tills cannot both observe an empty slot.
const bridgeLockKey int64 = 851201

// BridgeService reconciles the external card terminal with the ledger.
// A proposed transaction is staged, the terminal polls it, and the
// resolution atomically drains the staging tables: into the permanent
// ledger on success, into a bare status row otherwise.
type BridgeService struct {
	db    *sql.DB
	redis *redis.Client
	iso   *ISO20022Service
}

func NewBridgeService(db *sql.DB, redisClient *redis.Client) *BridgeService {
	return &BridgeService{
		db:    db,
		redis: redisClient,
		iso:   NewISO20022Service(),
	}
}

// Begin stages a proposed card payment and returns its reference id.
// Fails with ErrPendingPayment while another payment is staged.
func (s *BridgeService) Begin(params CreateTransactionParams) (int64, error) {
	dbTx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning staging transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.Exec("SELECT pg_advisory_xact_lock($1)", bridgeLockKey); err != nil {
		return 0, fmt.Errorf("acquiring bridge lock: %w", err)
	}

	var pending int
	if err := dbTx.QueryRow("SELECT COUNT(*) FROM bridge_transactions").Scan(&pending); err != nil {
		return 0, fmt.Errorf("checking pending payments: %w", err)
	}
	if pending > 0 {
		return 0, ErrPendingPayment
	}

	id, err := stageTransactionTx(dbTx, params)
	if err != nil {
		return 0, err
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("committing staging transaction: %w", err)
	}

	log.Printf("[BRIDGE] Staged card payment %d over %s", id, params.Amount)
	return id, nil
}

// stageTransactionTx mirrors the ledger write path onto the staging tables.
func stageTransactionTx(dbTx *sql.Tx, params CreateTransactionParams) (int64, error) {
	var stagedID int64
	err := dbTx.QueryRow(`
		INSERT INTO bridge_transactions (description, time, debited_account, credited_account, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, params.Description, params.Time, params.DebitedAccount, params.CreditedAccount,
		params.Amount.Currency()).Scan(&stagedID)
	if err != nil {
		return 0, fmt.Errorf("staging transaction: %w", err)
	}

	for _, bundle := range params.Bundles {
		var bundleID int64
		err := dbTx.QueryRow(`
			INSERT INTO bridge_transaction_bundles (transaction_id, description, price, change)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, stagedID, bundle.Description, bundle.Price, bundle.Change).Scan(&bundleID)
		if err != nil {
			return 0, fmt.Errorf("staging bundle: %w", err)
		}

		for itemID, count := range bundle.ItemIDs {
			for n := int32(0); n < count; n++ {
				_, err := dbTx.Exec(`
					INSERT INTO bridge_transaction_items (bundle_id, item_id)
					VALUES ($1, $2)
				`, bundleID, itemID)
				if err != nil {
					return 0, fmt.Errorf("staging item row: %w", err)
				}
			}
		}
	}

	return stagedID, nil
}

// Poll returns the oldest staged payment, or nil when none is pending.
// Designed for repeated short-polling by the terminal integration.
func (s *BridgeService) Poll() (*models.BridgePending, error) {
	var pending models.BridgePending
	err := s.db.QueryRow(`
		SELECT id, amount
		FROM bridge_transactions
		ORDER BY time ASC, id ASC
		LIMIT 1
	`).Scan(&pending.ID, &pending.Amount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("polling staged payments: %w", err)
	}
	return &pending, nil
}

// Resolve consumes a staged payment with the terminal's outcome. The
// staging rows are deleted and the status row written in one database
// transaction; a paid outcome additionally migrates the staged rows into
// the permanent ledger inside the same transaction, so a payment can
// never be both staged and committed, nor committed without a status row.
func (s *BridgeService) Resolve(bridgeID int64, outcome models.PaymentOutcome) (*models.BridgePostTransaction, error) {
	dbTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning resolve transaction: %w", err)
	}
	defer dbTx.Rollback()

	staged, err := lockStagedTransaction(dbTx, bridgeID)
	if err != nil {
		return nil, err
	}

	bundles, err := fetchStagedBundles(dbTx, bridgeID)
	if err != nil {
		return nil, err
	}

	if err := deleteStagedRows(dbTx, bridgeID); err != nil {
		return nil, err
	}

	post := models.BridgePostTransaction{
		BridgeTransactionID: bridgeID,
		Status:              outcome.Status,
	}

	if outcome.Status == models.BridgeStatusPaid {
		params, err := stagedToParams(staged, bundles)
		if err != nil {
			return nil, err
		}
		txID, err := createTransactionTx(dbTx, params)
		if err != nil {
			return nil, err
		}
		post.TransactionID = &txID
	} else if outcome.Status == models.BridgeStatusFailed && outcome.Reason != "" {
		reason := outcome.Reason
		post.Error = &reason
	}

	_, err = dbTx.Exec(`
		INSERT INTO bridge_post_transactions (bridge_transaction_id, transaction_id, status, error)
		VALUES ($1, $2, $3, $4)
	`, post.BridgeTransactionID, post.TransactionID, post.Status, post.Error)
	if err != nil {
		return nil, fmt.Errorf("writing bridge status: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("committing resolve transaction: %w", err)
	}

	log.Printf("[BRIDGE] Resolved payment %d as %s", bridgeID, outcome.Status)

	// Settlement is best effort and strictly after commit.
	s.queueForSettlement(staged, &post)

	return &post, nil
}

// GetStatus returns the recorded outcome of a resolved payment.
func (s *BridgeService) GetStatus(bridgeID int64) (*models.BridgePostTransaction, error) {
	var post models.BridgePostTransaction
	err := s.db.QueryRow(`
		SELECT bridge_transaction_id, transaction_id, status, error
		FROM bridge_post_transactions
		WHERE bridge_transaction_id = $1
	`, bridgeID).Scan(&post.BridgeTransactionID, &post.TransactionID, &post.Status, &post.Error)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching bridge status: %w", err)
	}
	return &post, nil
}

func lockStagedTransaction(dbTx *sql.Tx, bridgeID int64) (*models.BridgeTransaction, error) {
	var staged models.BridgeTransaction
	var description sql.NullString
	err := dbTx.QueryRow(`
		SELECT id, description, time, debited_account, credited_account, amount
		FROM bridge_transactions
		WHERE id = $1
		FOR UPDATE
	`, bridgeID).Scan(&staged.ID, &description, &staged.Time,
		&staged.DebitedAccount, &staged.CreditedAccount, &staged.Amount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking staged transaction: %w", err)
	}
	if description.Valid {
		staged.Description = &description.String
	}
	return &staged, nil
}

func fetchStagedBundles(dbTx *sql.Tx, bridgeID int64) ([]models.TransactionBundle, error) {
	rows, err := dbTx.Query(`
		SELECT b.id, b.description, b.price, b.change, i.item_id
		FROM bridge_transaction_bundles b
		LEFT JOIN bridge_transaction_items i ON i.bundle_id = b.id
		WHERE b.transaction_id = $1
		ORDER BY b.id, i.id
	`, bridgeID)
	if err != nil {
		return nil, fmt.Errorf("fetching staged bundles: %w", err)
	}
	defer rows.Close()

	// Reuse the ledger reconstruction over a synthetic single-transaction
	// row buffer; the staged rows have the same join shape.
	flat := []models.TransactionRow{}
	for rows.Next() {
		var bundleID int64
		var description sql.NullString
		var price, itemID sql.NullInt64
		var change int32
		if err := rows.Scan(&bundleID, &description, &price, &change, &itemID); err != nil {
			return nil, fmt.Errorf("scanning staged bundle: %w", err)
		}

		bundle := models.TransactionBundleRow{ID: bundleID, Change: change}
		if description.Valid {
			bundle.Description = &description.String
		}
		if price.Valid {
			p := models.Currency(price.Int64)
			bundle.Price = &p
		}
		if itemID.Valid {
			id := itemID.Int64
			bundle.ItemID = &id
		}

		flat = append(flat, models.TransactionRow{
			Transaction: models.Transaction{ID: bridgeID},
			Bundle:      &bundle,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(flat) == 0 {
		return []models.TransactionBundle{}, nil
	}
	return ReconstructTransactions(flat)[0].Bundles, nil
}

func deleteStagedRows(dbTx *sql.Tx, bridgeID int64) error {
	_, err := dbTx.Exec(`
		DELETE FROM bridge_transaction_items
		WHERE bundle_id IN (
			SELECT id FROM bridge_transaction_bundles WHERE transaction_id = $1
		)
	`, bridgeID)
	if err != nil {
		return fmt.Errorf("deleting staged items: %w", err)
	}

	_, err = dbTx.Exec(`DELETE FROM bridge_transaction_bundles WHERE transaction_id = $1`, bridgeID)
	if err != nil {
		return fmt.Errorf("deleting staged bundles: %w", err)
	}

	_, err = dbTx.Exec(`DELETE FROM bridge_transactions WHERE id = $1`, bridgeID)
	if err != nil {
		return fmt.Errorf("deleting staged transaction: %w", err)
	}

	return nil
}

func stagedToParams(staged *models.BridgeTransaction, bundles []models.TransactionBundle) (CreateTransactionParams, error) {
	amount, err := models.NewNonNegCurrency(staged.Amount)
	if err != nil {
		return CreateTransactionParams{}, fmt.Errorf("staged amount is negative: %w", err)
	}

	params := CreateTransactionParams{
		Description:     staged.Description,
		Time:            staged.Time,
		DebitedAccount:  staged.DebitedAccount,
		CreditedAccount: staged.CreditedAccount,
		Amount:          amount,
	}
	for _, bundle := range bundles {
		params.Bundles = append(params.Bundles, CreateBundleParams{
			Description: bundle.Description,
			Price:       bundle.Price,
			Change:      bundle.Change,
			ItemIDs:     bundle.ItemIDs,
		})
	}
	return params, nil
}

// queueForSettlement hands a resolved card payment to the acquirer
// side. Every outcome produces a pacs.002 status report (ACSC or RJCT);
// a paid one additionally gets a pacs.008 credit transfer and a JSON
// copy on the redis settlement queue. Failures are logged, never
// surfaced; the ledger already holds the truth.
func (s *BridgeService) queueForSettlement(staged *models.BridgeTransaction, post *models.BridgePostTransaction) {
	report, err := s.iso.CreatePacs002(post)
	if err != nil {
		log.Printf("[BRIDGE] Failed to build status report for %d: %v", staged.ID, err)
	} else if err := s.iso.SendToSettlement(report); err != nil {
		log.Printf("[BRIDGE] Failed to send status report for %d: %v", staged.ID, err)
	}

	if post.Status != models.BridgeStatusPaid {
		return
	}

	doc, err := s.iso.CreatePacs008(staged, post)
	if err != nil {
		log.Printf("[BRIDGE] Failed to build settlement message for %d: %v", staged.ID, err)
	} else if err := s.iso.SendToSettlement(doc); err != nil {
		log.Printf("[BRIDGE] Failed to send settlement message for %d: %v", staged.ID, err)
	}

	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(post)
	if err != nil {
		log.Printf("[BRIDGE] Failed to marshal settlement payload for %d: %v", staged.ID, err)
		return
	}
	if err := s.redis.RPush(context.Background(), "settlement_queue", string(payload)).Err(); err != nil {
		log.Printf("[BRIDGE] Failed to queue settlement for %d: %v", staged.ID, err)
	}
}
