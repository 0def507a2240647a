package models

import "time"

const (
	TransactionPendingState   = "pending"
	TransactionCompletedState = "completed"
	// TransactionFailedState is written by administrative tooling only,
	// never by the reconciler.
	TransactionFailedState = "failed"
)

// fallbackRefLen is the prefix of the transaction id the payment network
// accepts as an external reference.
const fallbackRefLen = 25

// Transaction is a locally recorded top-up awaiting settlement on the
// payment network. CreditAmount is in minor units.
type Transaction struct {
	TransactionID string
	AccountID     int64
	PrimaryKey    string
	CreditAmount  int64
	State         string
	CreatedAt     time.Time
	CompletedAt   time.Time
	Delivered     bool
}

// FallbackRef derives the external reference used for the fallback lookup:
// the first 25 characters of the transaction id.
func (t *Transaction) FallbackRef() string {
	if len(t.TransactionID) <= fallbackRefLen {
		return t.TransactionID
	}

	return t.TransactionID[:fallbackRefLen]
}
