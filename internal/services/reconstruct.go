package services

import (
	"github.com/clubpos/backend/internal/models"
)

// ReconstructTransactions turns the flat transactions → bundles → items
// left-join rows back into nested Transaction objects.
//
// Precondition: rows for one transaction id are contiguous, and within
// them rows for one bundle id are contiguous (the queries in this package
// order by time desc, id desc, bundle id). The scan below relies on that
// grouping and never re-sorts; feeding it interleaved rows is a caller
// bug, not a recoverable condition.
//
// Transactions come out one per distinct id, in first-seen order. A
// transaction without bundles yields an empty bundle slice; a bundle
// without items yields an empty item map.
func ReconstructTransactions(rows []models.TransactionRow) []models.Transaction {
	transactions := []models.Transaction{}

	for i := 0; i < len(rows); {
		j := i
		for j < len(rows) && rows[j].Transaction.ID == rows[i].Transaction.ID {
			j++
		}

		tx := rows[i].Transaction
		tx.Bundles = reconstructBundles(tx.ID, rows[i:j])
		transactions = append(transactions, tx)

		i = j
	}

	return transactions
}

// reconstructBundles partitions one transaction's rows into consecutive
// bundle-id runs and folds each run's item rows into an id → count map.
func reconstructBundles(transactionID int64, run []models.TransactionRow) []models.TransactionBundle {
	bundles := []models.TransactionBundle{}

	for i := 0; i < len(run); {
		if run[i].Bundle == nil {
			// Transaction without any bundles: the join still emits one row.
			i++
			continue
		}

		first := run[i].Bundle
		bundle := models.TransactionBundle{
			ID:            first.ID,
			TransactionID: transactionID,
			Description:   first.Description,
			Price:         first.Price,
			Change:        first.Change,
			ItemIDs:       map[int64]int32{},
		}

		j := i
		for j < len(run) && run[j].Bundle != nil && run[j].Bundle.ID == first.ID {
			if run[j].Bundle.ItemID != nil {
				bundle.ItemIDs[*run[j].Bundle.ItemID]++
			}
			j++
		}

		bundles = append(bundles, bundle)
		i = j
	}

	return bundles
}

// missingBundleName shows up on receipts when a bundle has neither a
// description nor any catalog-known item.
const missingBundleName = "(missing name)"

// RenderedBundle is one printable receipt line.
type RenderedBundle struct {
	Name   string          `json:"name"`
	Price  *models.Currency `json:"price"`
	Change int32           `json:"change"`
	Items  map[int64]int32 `json:"items"`
}

// RenderBundle prepares a bundle for display. The bundle's own description
// and price win; otherwise the name of any of its items and the first
// item's catalog price stand in.
func RenderBundle(bundle models.TransactionBundle, lookup func(itemID int64) (models.Item, bool)) RenderedBundle {
	rendered := RenderedBundle{
		Name:   missingBundleName,
		Price:  bundle.Price,
		Change: bundle.Change,
		Items:  bundle.ItemIDs,
	}

	if bundle.Description != nil {
		rendered.Name = *bundle.Description
	}

	for itemID := range bundle.ItemIDs {
		item, ok := lookup(itemID)
		if !ok {
			continue
		}
		if bundle.Description == nil {
			rendered.Name = item.Name
		}
		if rendered.Price == nil {
			price := item.Price
			rendered.Price = &price
		}
		break
	}

	return rendered
}
