package model

import "time"

// Document is an accounting document (invoice or bill) a bank transaction
// can be reconciled against.
type Document struct {
	IssuedAt     time.Time
	DueAt        time.Time
	ID           string
	UserID       string
	Type         DocumentType
	Number       string
	Counterparty string
	Currency     string
	Status       string // open, paid
	Amount       float64
}
