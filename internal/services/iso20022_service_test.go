package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clubpos/backend/internal/models"
)

func TestISO20022Service_CreatePacs008(t *testing.T) {
	iso := NewISO20022Service()

	staged := &models.BridgeTransaction{
		ID:              31,
		Time:            time.Now(),
		DebitedAccount:  1,
		CreditedAccount: 3,
		Amount:          1250,
	}

	t.Run("paid payment renders", func(t *testing.T) {
		txID := int64(11)
		post := &models.BridgePostTransaction{
			BridgeTransactionID: 31,
			TransactionID:       &txID,
			Status:              models.BridgeStatusPaid,
		}

		doc, err := iso.CreatePacs008(staged, post)
		assert.NoError(t, err)
		assert.Equal(t, "1", string(doc.GrpHdr.NbOfTxs))
		assert.Equal(t, 12.5, doc.GrpHdr.TtlIntrBkSttlmAmt.Value)
		assert.Len(t, doc.CdtTrfTxInf, 1)
		assert.Equal(t, "31", string(doc.CdtTrfTxInf[0].PmtId.EndToEndId))
		assert.Equal(t, "11", string(*doc.CdtTrfTxInf[0].PmtId.TxId))

		xmlData, err := iso.ConvertToXML(doc)
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(xmlData, "<?xml"))
	})

	t.Run("missing ledger link is rejected", func(t *testing.T) {
		post := &models.BridgePostTransaction{
			BridgeTransactionID: 31,
			Status:              models.BridgeStatusPaid,
		}

		_, err := iso.CreatePacs008(staged, post)
		assert.Error(t, err)
	})
}

func TestISO20022Service_CreatePacs002(t *testing.T) {
	iso := NewISO20022Service()

	t.Run("paid maps to ACSC", func(t *testing.T) {
		txID := int64(11)
		post := &models.BridgePostTransaction{
			BridgeTransactionID: 31,
			TransactionID:       &txID,
			Status:              models.BridgeStatusPaid,
		}

		doc, err := iso.CreatePacs002(post)
		assert.NoError(t, err)
		assert.Len(t, doc.TxInfAndSts, 1)
		assert.Equal(t, "ACSC", string(*doc.TxInfAndSts[0].TxSts))
		assert.Equal(t, "31", string(*doc.TxInfAndSts[0].OrgnlEndToEndId))
	})

	t.Run("failed maps to RJCT", func(t *testing.T) {
		post := &models.BridgePostTransaction{
			BridgeTransactionID: 31,
			Status:              models.BridgeStatusFailed,
		}

		doc, err := iso.CreatePacs002(post)
		assert.NoError(t, err)
		assert.Equal(t, "RJCT", string(*doc.TxInfAndSts[0].TxSts))
	})
}
