package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/clubpos/backend/internal/models"
)

// LedgerService owns the book accounts and the balance fold.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// The four master accounts every installation has. They are created
// lazily on first access, keyed by name.
var masterAccounts = []struct {
	Name string
	Type models.AccountType
}{
	{"bank", models.AccountTypeAssets},
	{"cash", models.AccountTypeAssets},
	{"sales", models.AccountTypeRevenue},
	{"purchases", models.AccountTypeExpenses},
}

// MasterAccounts returns the bank/cash/sales/purchases accounts,
// inserting any that do not exist yet. Safe to call concurrently; the
// insert is idempotent on the account name.
func (s *LedgerService) MasterAccounts() (map[string]models.BookAccount, error) {
	accounts := make(map[string]models.BookAccount, len(masterAccounts))

	for _, master := range masterAccounts {
		_, err := s.db.Exec(`
			INSERT INTO book_accounts (name, account_type)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
		`, master.Name, master.Type)
		if err != nil {
			return nil, err
		}

		account, err := s.getAccountByName(master.Name)
		if err != nil {
			return nil, err
		}
		accounts[master.Name] = *account
	}

	return accounts, nil
}

func (s *LedgerService) getAccountByName(name string) (*models.BookAccount, error) {
	var account models.BookAccount
	err := s.db.QueryRow(`
		SELECT id, name, account_type, creditor
		FROM book_accounts
		WHERE name = $1
	`, name).Scan(&account.ID, &account.Name, &account.AccountType, &account.CreditorID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount looks an account up by id. The balance field is zero; only
// ComputeAccountBalances produces real balances.
func (s *LedgerService) GetAccount(id int64) (*models.BookAccount, error) {
	var account models.BookAccount
	err := s.db.QueryRow(`
		SELECT id, name, account_type, creditor
		FROM book_accounts
		WHERE id = $1
	`, id).Scan(&account.ID, &account.Name, &account.AccountType, &account.CreditorID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerService) fetchAccounts() ([]models.BookAccount, error) {
	rows, err := s.db.Query(`
		SELECT id, name, account_type, creditor
		FROM book_accounts
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.BookAccount{}
	for rows.Next() {
		var account models.BookAccount
		if err := rows.Scan(&account.ID, &account.Name, &account.AccountType, &account.CreditorID); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// fetchLedgerTransactions loads the non-deleted transactions without
// their bundles; the balance fold only needs the two account ids and the
// amount.
func (s *LedgerService) fetchLedgerTransactions() ([]models.Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, description, time, debited_account, credited_account, amount, deleted_at
		FROM transactions
		WHERE deleted_at IS NULL
		ORDER BY time DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		var description sql.NullString
		if err := rows.Scan(&tx.ID, &description, &tx.Time, &tx.DebitedAccount,
			&tx.CreditedAccount, &tx.Amount, &tx.DeletedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			tx.Description = &description.String
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// ComputeAccountBalances folds every non-deleted transaction over the
// given accounts and returns id → balance. Transactions touching accounts
// outside the set are skipped for that side; that is normal, not an error.
func ComputeAccountBalances(accounts []models.BookAccount, transactions []models.Transaction) map[int64]models.Currency {
	byID := make(map[int64]*models.BookAccount, len(accounts))
	balances := make(map[int64]models.Currency, len(accounts))

	for i := range accounts {
		account := accounts[i]
		account.Balance = 0
		byID[account.ID] = &account
		balances[account.ID] = 0
	}

	for _, tx := range transactions {
		if tx.DeletedAt != nil {
			continue
		}
		if account, ok := byID[tx.DebitedAccount]; ok {
			account.Debit(tx.Amount)
			balances[account.ID] = account.Balance
		}
		if account, ok := byID[tx.CreditedAccount]; ok {
			account.Credit(tx.Amount)
			balances[account.ID] = account.Balance
		}
	}

	return balances
}

// ListAccounts returns every book account with its computed balance
// @Summary List book accounts
// @Description List all book accounts with balances derived from the transaction ledger
// @Tags accounts
// @Produce json
// @Success 200 {object} object{accounts=[]models.BookAccount,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /accounts [get]
func (s *LedgerService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.fetchAccounts()
	if err != nil {
		log.Printf("[LEDGER] Failed to fetch accounts: %v", err)
		SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
		return
	}

	transactions, err := s.fetchLedgerTransactions()
	if err != nil {
		log.Printf("[LEDGER] Failed to fetch transactions: %v", err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	balances := ComputeAccountBalances(accounts, transactions)
	for i := range accounts {
		accounts[i].Balance = balances[accounts[i].ID]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}
