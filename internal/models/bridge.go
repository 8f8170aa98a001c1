package models

import (
	"time"
)

// BridgeStatus is the terminal outcome of a staged card payment.
type BridgeStatus string

const (
	BridgeStatusPaid      BridgeStatus = "paid"
	BridgeStatusFailed    BridgeStatus = "failed"
	BridgeStatusCancelled BridgeStatus = "cancelled"
)

// PaymentOutcome is the tagged union the terminal integration posts back.
// Reason is only meaningful for BridgeStatusFailed.
type PaymentOutcome struct {
	Status BridgeStatus `json:"status" validate:"required,oneof=paid failed cancelled"`
	Reason string       `json:"reason,omitempty" validate:"max=200"`
}

// BridgePending is the partial view the terminal polls: just enough to
// charge the card.
type BridgePending struct {
	ID     int64    `json:"id" db:"id"`
	Amount Currency `json:"amount" db:"amount"`
}

// BridgeTransaction mirrors Transaction while a card payment is staged.
// The row (and its bundle/item mirrors) exists exactly as long as the
// payment is pending; resolution deletes it and writes a post row.
type BridgeTransaction struct {
	ID              int64     `json:"id" db:"id"`
	Description     *string   `json:"description" db:"description"`
	Time            time.Time `json:"time" db:"time"`
	DebitedAccount  int64     `json:"debitedAccount" db:"debited_account"`
	CreditedAccount int64     `json:"creditedAccount" db:"credited_account"`
	Amount          Currency  `json:"amount" db:"amount"`
}

// BridgePostTransaction records how a staged payment ended.
// TransactionID links the permanent ledger row and is only set for paid
// outcomes; Error carries the terminal's reason for failed ones.
type BridgePostTransaction struct {
	BridgeTransactionID int64        `json:"bridgeTransactionId" db:"bridge_transaction_id"`
	TransactionID       *int64       `json:"transactionId" db:"transaction_id"`
	Status              BridgeStatus `json:"status" db:"status"`
	Error               *string      `json:"error" db:"error"`
}
