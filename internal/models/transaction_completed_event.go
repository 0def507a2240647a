package models

import "time"

// TransactionCompletedEvent is published after a confirmed transaction has
// been credited, for downstream query/notification services.
type TransactionCompletedEvent struct {
	UUID string                         `json:"uuid"`
	Name string                         `json:"name"`
	Meta *TransactionCompletedEventMeta `json:"meta"`
}

type TransactionCompletedEventMeta struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     int64     `json:"account_id"`
	Amount        int64     `json:"amount"`
	CompletedAt   time.Time `json:"completed_at"`
}
