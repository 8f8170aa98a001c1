package services

import (
	"encoding/xml"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/clubpos/backend/internal/models"
)

// Settlement messages are built in the club's home currency. The amounts
// on the wire are decimal, not minor units.
const settlementCurrency = "EUR"

// ISO20022Service renders resolved card payments as pacs messages for
// the acquirer's settlement system.
type ISO20022Service struct{}

func NewISO20022Service() *ISO20022Service {
	return &ISO20022Service{}
}

func (iso *ISO20022Service) SendToSettlement(doc interface{}) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}

	// TODO: replace with the acquirer's SFTP drop once credentials exist
	log.Printf("[ISO20022] Sending to settlement: %s", string(xmlData))
	return nil
}

// CreatePacs008 creates a pacs.008 FIToFICustomerCreditTransfer message
// for a paid card payment.
func (iso *ISO20022Service) CreatePacs008(staged *models.BridgeTransaction, post *models.BridgePostTransaction) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if post.TransactionID == nil {
		return nil, fmt.Errorf("payment %d has no ledger transaction", staged.ID)
	}

	msgId := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()

	bridgeRef := strconv.FormatInt(staged.ID, 10)
	ledgerRef := strconv.FormatInt(*post.TransactionID, 10)

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(settlementCurrency),
				Value: staged.Amount.AsDecimal(),
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG", // Clearing
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(bridgeRef)}[0],
					EndToEndId: common.Max35Text(bridgeRef),
					TxId:       &[]common.Max35Text{common.Max35Text(ledgerRef)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(settlementCurrency),
					Value: staged.Amount.AsDecimal(),
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("CLUBPOS")}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(accountRef(staged.DebitedAccount))}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(accountRef(staged.CreditedAccount)),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(accountRef(staged.CreditedAccount))}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 creates a pacs.002 payment status report for a resolved
// payment. Paid maps to ACSC, everything else to RJCT.
func (iso *ISO20022Service) CreatePacs002(post *models.BridgePostTransaction) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	msgId := uuid.New().String()
	creDtTm := time.Now()

	status := "RJCT"
	if post.Status == models.BridgeStatusPaid {
		status = "ACSC"
	}

	bridgeRef := strconv.FormatInt(post.BridgeTransactionID, 10)

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(bridgeRef)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(bridgeRef)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts an ISO20022 document to an XML string.
func (iso *ISO20022Service) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func accountRef(accountID int64) string {
	return "ACCT-" + strconv.FormatInt(accountID, 10)
}
