package models

// AccountType classifies a book account and decides its debit/credit
// sign convention.
type AccountType string

const (
	AccountTypeExpenses    AccountType = "expenses"
	AccountTypeAssets      AccountType = "assets"
	AccountTypeLiabilities AccountType = "liabilities"
	AccountTypeRevenue     AccountType = "revenue"
)

// DebitDiff is the signed balance change a debit of amount causes on an
// account of this type. Debiting expenses/assets increases the balance,
// debiting liabilities/revenue decreases it.
func (t AccountType) DebitDiff(amount Currency) Currency {
	switch t {
	case AccountTypeExpenses, AccountTypeAssets:
		return amount
	case AccountTypeLiabilities, AccountTypeRevenue:
		return amount.Neg()
	}
	return amount
}

// CreditDiff is the signed balance change a credit of amount causes.
func (t AccountType) CreditDiff(amount Currency) Currency {
	return t.DebitDiff(amount).Neg()
}

// BookAccount is one account of the internal ledger. Balance is a derived
// view: rows are loaded with Balance zero and only ComputeAccountBalances
// produces real figures.
type BookAccount struct {
	ID          int64       `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	AccountType AccountType `json:"accountType" db:"account_type"`
	CreditorID  *int64      `json:"creditorId,omitempty" db:"creditor"`
	Balance     Currency    `json:"balance"`
}

func (a *BookAccount) Debit(amount Currency) {
	a.Balance = a.Balance.Add(a.AccountType.DebitDiff(amount))
}

func (a *BookAccount) Credit(amount Currency) {
	a.Balance = a.Balance.Add(a.AccountType.CreditDiff(amount))
}

// Equal treats accounts as identical by id alone; the balance field may be
// stale on either side.
func (a *BookAccount) Equal(other *BookAccount) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.ID == other.ID
}
