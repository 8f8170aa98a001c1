package models

import (
	"time"
)

// Transaction moves Amount from the credited account to the debited account.
// Bundles are informational receipt lines; Amount alone is what the ledger
// books. Deletion is soft via DeletedAt.
type Transaction struct {
	ID              int64               `json:"id" db:"id"`
	Description     *string             `json:"description" db:"description"`
	Time            time.Time           `json:"time" db:"time"`
	DebitedAccount  int64               `json:"debitedAccount" db:"debited_account"`
	CreditedAccount int64               `json:"creditedAccount" db:"credited_account"`
	Amount          Currency            `json:"amount" db:"amount"`
	DeletedAt       *time.Time          `json:"deletedAt,omitempty" db:"deleted_at"`
	Bundles         []TransactionBundle `json:"bundles"`
}

// TransactionBundle is one distinguishable line of a sale. Change is
// negative when items leave inventory and positive on restock. Price, when
// set, overrides the sum of per-item catalog prices.
type TransactionBundle struct {
	ID            int64           `json:"id" db:"id"`
	TransactionID int64           `json:"transactionId" db:"transaction_id"`
	Description   *string         `json:"description" db:"description"`
	Price         *Currency       `json:"price" db:"price"`
	Change        int32           `json:"change" db:"change"`
	ItemIDs       map[int64]int32 `json:"itemIds"`
}

// TransactionItem is the relational encoding of a bundle's item multiset:
// one row per physical unit.
type TransactionItem struct {
	ID       int64 `json:"id" db:"id"`
	BundleID int64 `json:"bundleId" db:"bundle_id"`
	ItemID   int64 `json:"itemId" db:"item_id"`
}

// TransactionRow is one row of the transactions → bundles → items left
// join. Bundle is nil for transactions without bundles; Bundle.ItemID is
// nil for bundles without items.
type TransactionRow struct {
	Transaction Transaction
	Bundle      *TransactionBundleRow
}

type TransactionBundleRow struct {
	ID          int64
	Description *string
	Price       *Currency
	Change      int32
	ItemID      *int64
}

// TransactionFilter is consumed by every transaction read path so the
// soft-delete rule lives in exactly one place.
type TransactionFilter struct {
	IncludeDeleted bool
	ID             *int64
}

// Item is one entry of the inventory catalog.
type Item struct {
	ID    int64    `json:"id" db:"id"`
	Name  string   `json:"name" db:"name"`
	Price Currency `json:"price" db:"price"`
}

// Member is somebody with a credit account at the organization.
type Member struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	AccountID int64     `json:"accountId" db:"account_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
