package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountType_SignConvention(t *testing.T) {
	amount := Currency(100)

	cases := []struct {
		accountType AccountType
		debitDiff   Currency
		creditDiff  Currency
	}{
		{AccountTypeExpenses, 100, -100},
		{AccountTypeAssets, 100, -100},
		{AccountTypeLiabilities, -100, 100},
		{AccountTypeRevenue, -100, 100},
	}

	for _, tc := range cases {
		t.Run(string(tc.accountType), func(t *testing.T) {
			assert.Equal(t, tc.debitDiff, tc.accountType.DebitDiff(amount))
			assert.Equal(t, tc.creditDiff, tc.accountType.CreditDiff(amount))
		})
	}
}

func TestBookAccount_DebitCredit(t *testing.T) {
	t.Run("assets grow on debit", func(t *testing.T) {
		cash := BookAccount{ID: 1, Name: "Cash", AccountType: AccountTypeAssets}
		cash.Debit(500)
		assert.Equal(t, Currency(500), cash.Balance)
		cash.Credit(200)
		assert.Equal(t, Currency(300), cash.Balance)
	})

	t.Run("revenue grows on credit", func(t *testing.T) {
		sales := BookAccount{ID: 2, Name: "Sales", AccountType: AccountTypeRevenue}
		sales.Credit(500)
		assert.Equal(t, Currency(500), sales.Balance)
		sales.Debit(100)
		assert.Equal(t, Currency(400), sales.Balance)
	})

	t.Run("debit and credit cancel", func(t *testing.T) {
		acc := BookAccount{ID: 3, AccountType: AccountTypeLiabilities}
		acc.Debit(250)
		acc.Credit(250)
		assert.Equal(t, Currency(0), acc.Balance)
	})
}

func TestBookAccount_Equal(t *testing.T) {
	a := &BookAccount{ID: 1, Name: "Cash", Balance: 100}
	b := &BookAccount{ID: 1, Name: "Cash (stale)", Balance: 999}
	c := &BookAccount{ID: 2, Name: "Bank"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	var nilAcc *BookAccount
	assert.True(t, nilAcc.Equal(nil))
}
