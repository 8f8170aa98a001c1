package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clubpos/backend/internal/models"
)

// TransactionService is the ledger's write path and read path: atomic
// creation of a transaction with its bundles and items, soft deletion,
// and reconstruction of the nested view for listings and receipts.
type TransactionService struct {
	db        *sql.DB
	items     *ItemService
	validator *ValidationHelper
}

func NewTransactionService(db *sql.DB, items *ItemService) *TransactionService {
	return &TransactionService{
		db:        db,
		items:     items,
		validator: NewValidationHelper(),
	}
}

// CreateBundleParams describes one line of a new sale.
type CreateBundleParams struct {
	Description *string
	Price       *models.Currency
	Change      int32
	ItemIDs     map[int64]int32
}

// CreateTransactionParams is the engine-side input of the write path.
type CreateTransactionParams struct {
	Description     *string
	Time            time.Time
	DebitedAccount  int64
	CreditedAccount int64
	Amount          models.NonNegCurrency
	Bundles         []CreateBundleParams
}

// Create persists a transaction with its bundles and expanded item rows
// in one database transaction. Any failed insert rolls back everything.
func (ts *TransactionService) Create(params CreateTransactionParams) (int64, error) {
	dbTx, err := ts.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	id, err := createTransactionTx(dbTx, params)
	if err != nil {
		return 0, err
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	return id, nil
}

// createTransactionTx runs the write path inside an existing database
// transaction. The bridge reuses it when migrating a paid staging row.
func createTransactionTx(dbTx *sql.Tx, params CreateTransactionParams) (int64, error) {
	var txID int64
	err := dbTx.QueryRow(`
		INSERT INTO transactions (description, time, debited_account, credited_account, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, params.Description, params.Time, params.DebitedAccount, params.CreditedAccount,
		params.Amount.Currency()).Scan(&txID)
	if err != nil {
		return 0, fmt.Errorf("inserting transaction: %w", err)
	}

	for _, bundle := range params.Bundles {
		var bundleID int64
		err := dbTx.QueryRow(`
			INSERT INTO transaction_bundles (transaction_id, description, price, change)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, txID, bundle.Description, bundle.Price, bundle.Change).Scan(&bundleID)
		if err != nil {
			return 0, fmt.Errorf("inserting bundle: %w", err)
		}

		// One item row per physical unit, in stable item-id order.
		itemIDs := make([]int64, 0, len(bundle.ItemIDs))
		for itemID := range bundle.ItemIDs {
			itemIDs = append(itemIDs, itemID)
		}
		sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })

		for _, itemID := range itemIDs {
			for n := int32(0); n < bundle.ItemIDs[itemID]; n++ {
				_, err := dbTx.Exec(`
					INSERT INTO transaction_items (bundle_id, item_id)
					VALUES ($1, $2)
				`, bundleID, itemID)
				if err != nil {
					return 0, fmt.Errorf("inserting item row: %w", err)
				}
			}
		}
	}

	return txID, nil
}

// Delete soft-deletes a transaction. Bundles and items stay associated;
// the transaction filter hides them from default reads.
func (ts *TransactionService) Delete(id int64) (int64, error) {
	result, err := ts.db.Exec(`
		UPDATE transactions
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return 0, fmt.Errorf("deleting transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrNotFound
	}

	return id, nil
}

// List fetches the flat join rows for the filter and reconstructs the
// nested transactions, newest first.
func (ts *TransactionService) List(filter models.TransactionFilter) ([]models.Transaction, error) {
	rows, err := ts.fetchTransactionRows(filter)
	if err != nil {
		return nil, err
	}
	return ReconstructTransactions(rows), nil
}

// Get returns one transaction with its bundles, or ErrNotFound.
// Lookup by id deliberately ignores soft deletion: a voided sale must
// stay inspectable (and its receipt printable) as long as the row
// exists, only listings hide it.
func (ts *TransactionService) Get(id int64) (*models.Transaction, error) {
	transactions, err := ts.List(models.TransactionFilter{IncludeDeleted: true, ID: &id})
	if err != nil {
		return nil, err
	}
	if len(transactions) == 0 {
		return nil, ErrNotFound
	}
	return &transactions[0], nil
}

// fetchTransactionRows performs the three-way left join ordered so that
// rows arrive grouped by transaction then bundle, which is exactly what
// ReconstructTransactions requires.
func (ts *TransactionService) fetchTransactionRows(filter models.TransactionFilter) ([]models.TransactionRow, error) {
	var conditions []string
	var args []any
	argIndex := 1

	baseQuery := `
		SELECT t.id, t.description, t.time, t.debited_account, t.credited_account, t.amount, t.deleted_at,
		       b.id, b.description, b.price, b.change, i.item_id
		FROM transactions t
		LEFT JOIN transaction_bundles b ON b.transaction_id = t.id
		LEFT JOIN transaction_items i ON i.bundle_id = b.id
	`

	if !filter.IncludeDeleted {
		conditions = append(conditions, "t.deleted_at IS NULL")
	}

	if filter.ID != nil {
		conditions = append(conditions, fmt.Sprintf("t.id = $%d", argIndex))
		args = append(args, *filter.ID)
		argIndex++
	}

	query := baseQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY t.time DESC, t.id DESC, b.id, i.id"

	rows, err := ts.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	flat := []models.TransactionRow{}
	for rows.Next() {
		row, err := scanTransactionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		flat = append(flat, *row)
	}

	return flat, rows.Err()
}

func scanTransactionRow(rows *sql.Rows) (*models.TransactionRow, error) {
	var row models.TransactionRow
	var txDescription sql.NullString
	var deletedAt sql.NullTime
	var bundleID, bundlePrice, itemID sql.NullInt64
	var bundleDescription sql.NullString
	var bundleChange sql.NullInt32

	err := rows.Scan(
		&row.Transaction.ID, &txDescription, &row.Transaction.Time,
		&row.Transaction.DebitedAccount, &row.Transaction.CreditedAccount,
		&row.Transaction.Amount, &deletedAt,
		&bundleID, &bundleDescription, &bundlePrice, &bundleChange, &itemID,
	)
	if err != nil {
		return nil, err
	}

	if txDescription.Valid {
		row.Transaction.Description = &txDescription.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		row.Transaction.DeletedAt = &t
	}

	if bundleID.Valid {
		bundle := models.TransactionBundleRow{
			ID:     bundleID.Int64,
			Change: bundleChange.Int32,
		}
		if bundleDescription.Valid {
			bundle.Description = &bundleDescription.String
		}
		if bundlePrice.Valid {
			price := models.Currency(bundlePrice.Int64)
			bundle.Price = &price
		}
		if itemID.Valid {
			id := itemID.Int64
			bundle.ItemID = &id
		}
		row.Bundle = &bundle
	}

	return &row, nil
}

// HTTP surface

// CreateTransactionRequest is the JSON body of POST /transactions.
type CreateTransactionRequest struct {
	Description     *string               `json:"description" validate:"omitempty,max=200"`
	Bundles         []CreateBundleRequest `json:"bundles" validate:"dive"`
	DebitedAccount  int64                 `json:"debitedAccount" validate:"required"`
	CreditedAccount int64                 `json:"creditedAccount" validate:"required"`
	Amount          int64                 `json:"amount" validate:"gte=0"`
}

type CreateBundleRequest struct {
	Description *string         `json:"description" validate:"omitempty,max=200"`
	Price       *int64          `json:"price"`
	Change      int32           `json:"change"`
	ItemIDs     map[int64]int32 `json:"itemIds" validate:"dive,gte=1"`
}

// ToParams converts the request into engine parameters, stamping the
// transaction with the given time.
func (req *CreateTransactionRequest) ToParams(now time.Time) (CreateTransactionParams, error) {
	amount, err := models.NewNonNegCurrency(models.Currency(req.Amount))
	if err != nil {
		return CreateTransactionParams{}, err
	}

	params := CreateTransactionParams{
		Description:     req.Description,
		Time:            now,
		DebitedAccount:  req.DebitedAccount,
		CreditedAccount: req.CreditedAccount,
		Amount:          amount,
	}

	for _, b := range req.Bundles {
		bundle := CreateBundleParams{
			Description: b.Description,
			Change:      b.Change,
			ItemIDs:     b.ItemIDs,
		}
		if b.Price != nil {
			price := models.Currency(*b.Price)
			bundle.Price = &price
		}
		params.Bundles = append(params.Bundles, bundle)
	}

	return params, nil
}

// CreateTransaction handles transaction creation
// @Summary Create a transaction
// @Description Atomically create a ledger transaction with its bundles and item rows
// @Tags transactions
// @Accept json
// @Produce json
// @Param transaction body CreateTransactionRequest true "Transaction data"
// @Success 201 {object} object{id=int64}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions [post]
func (ts *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateTransactionRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	params, err := req.ToParams(time.Now())
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	id, err := ts.Create(params)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to create transaction: %v", err)
		SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TRANSACTION] Created transaction %d (%d bundle(s))", id, len(req.Bundles))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"id": id})
}

// ListTransactions lists transactions newest first
// @Summary List transactions
// @Description List transactions with their bundles, newest first
// @Tags transactions
// @Produce json
// @Param includeDeleted query bool false "Include soft-deleted transactions"
// @Success 200 {object} object{transactions=[]models.Transaction,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter := models.TransactionFilter{
		IncludeDeleted: r.URL.Query().Get("includeDeleted") == "true",
	}

	if idStr := r.URL.Query().Get("id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
			return
		}
		filter.ID = &id
	}

	transactions, err := ts.List(filter)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to list transactions: %v", err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// GetTransaction retrieves one transaction
// @Summary Get transaction by ID
// @Tags transactions
// @Produce json
// @Param txID path int true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/{txID} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "txID"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	tx, err := ts.Get(id)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// DeleteTransaction soft-deletes a transaction
// @Summary Delete transaction
// @Description Soft-delete a transaction; bundles and items stay associated
// @Tags transactions
// @Produce json
// @Param txID path int true "Transaction ID"
// @Success 200 {object} object{id=int64}
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/{txID} [delete]
func (ts *TransactionService) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "txID"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	deletedID, err := ts.Delete(id)
	if err != nil {
		if err != ErrNotFound {
			log.Printf("[TRANSACTION] Failed to delete transaction %d: %v", id, err)
		}
		SendEngineError(w, err)
		return
	}

	log.Printf("[TRANSACTION] Soft-deleted transaction %d", deletedID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"id": deletedID})
}

// GetReceipt renders a transaction's bundles for printing
// @Summary Get transaction receipt
// @Description Bundles rendered with catalog names and prices
// @Tags transactions
// @Produce json
// @Param txID path int true "Transaction ID"
// @Success 200 {object} object{transactionId=int64,amount=int64,lines=[]RenderedBundle}
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/{txID}/receipt [get]
func (ts *TransactionService) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "txID"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	tx, err := ts.Get(id)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	itemIDs := map[int64]struct{}{}
	for _, bundle := range tx.Bundles {
		for itemID := range bundle.ItemIDs {
			itemIDs[itemID] = struct{}{}
		}
	}

	catalog, err := ts.items.LookupItems(itemIDs)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to load catalog for receipt %d: %v", id, err)
		SendErrorResponse(w, "Failed to render receipt", http.StatusInternalServerError, nil)
		return
	}

	lines := make([]RenderedBundle, 0, len(tx.Bundles))
	for _, bundle := range tx.Bundles {
		lines = append(lines, RenderBundle(bundle, func(itemID int64) (models.Item, bool) {
			item, ok := catalog[itemID]
			return item, ok
		}))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactionId": tx.ID,
		"time":          tx.Time,
		"amount":        tx.Amount,
		"lines":         lines,
	})
}
