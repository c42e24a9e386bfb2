// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchClassification indicates how the remote matcher classified a
// transaction.
type MatchClassification string

// Match classification constants.
const (
	ClassificationPaymentMatch MatchClassification = "payment_match"
	ClassificationBankFee      MatchClassification = "bank_fee"
	ClassificationTransfer     MatchClassification = "transfer"
	ClassificationNoMatch      MatchClassification = "no_match"
	ClassificationNeedsReview  MatchClassification = "needs_review"
)

// DocumentType identifies the kind of accounting document a transaction can
// match against.
type DocumentType string

// Document type constants.
const (
	DocumentTypeInvoice DocumentType = "invoice"
	DocumentTypeBill    DocumentType = "bill"
)

// FXConversion describes a currency conversion the matcher applied while
// comparing a transaction against a document in another currency.
type FXConversion struct {
	FromCurrency    string          `json:"fromCurrency"`
	ToCurrency      string          `json:"toCurrency"`
	Rate            decimal.Decimal `json:"rate"`
	ConvertedAmount decimal.Decimal `json:"convertedAmount"`
}

// TransactionMatch is a proposed or confirmed association between one bank
// transaction and at most one accounting document.
type TransactionMatch struct {
	TransactionID  string              `json:"transactionId"`
	Classification MatchClassification `json:"classification"`
	DocumentID     string              `json:"documentId,omitempty"`
	DocumentType   DocumentType        `json:"documentType,omitempty"`
	Counterparty   string              `json:"counterparty,omitempty"`
	Confidence     int                 `json:"confidence"` // 0-100
	Reasoning      []string            `json:"reasoning"`
	MatchMethod    string              `json:"matchMethod,omitempty"`
	FX             *FXConversion       `json:"fxConversion,omitempty"`
	AutoConfirmed  bool                `json:"autoConfirmed"`
	RuleScore      *int                `json:"ruleScore,omitempty"`
}

// Validate checks the match is well-formed enough to present to a human.
// An unconfirmed payment match must explain itself: reasoning may not be
// empty.
func (m *TransactionMatch) Validate() error {
	if m.TransactionID == "" {
		return fmt.Errorf("match has no transaction id")
	}
	if m.Confidence < 0 || m.Confidence > 100 {
		return fmt.Errorf("match confidence %d out of range", m.Confidence)
	}
	if m.Classification == ClassificationPaymentMatch && !m.AutoConfirmed && len(m.Reasoning) == 0 {
		return fmt.Errorf("unconfirmed payment match for transaction %s has no reasoning", m.TransactionID)
	}
	return nil
}

// Suggestible reports whether the match should surface to the human as a
// suggestion awaiting action. No-match results carry nothing actionable, and
// auto-confirmed matches are already final.
func (m *TransactionMatch) Suggestible() bool {
	if m.AutoConfirmed {
		return false
	}
	switch m.Classification {
	case ClassificationPaymentMatch, ClassificationBankFee, ClassificationTransfer, ClassificationNeedsReview:
		return true
	default:
		return false
	}
}
