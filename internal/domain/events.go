package domain

import "time"

// EventName identifies a change notification.
type EventName string

const (
	EventMerchantsChanged   EventName = "merchantsChanged"
	EventTransactionAdded   EventName = "transactionAdded"
	EventTransactionUpdated EventName = "transactionUpdated"
	EventTransactionDeleted EventName = "transactionDeleted"
	EventCategoriesChanged  EventName = "categoriesChanged"
)

// Event is emitted after a successful write.
// SubjectID is the id of the written document, when there is one.
type Event struct {
	Name       EventName `json:"name"`
	UserID     string    `json:"userId"`
	SubjectID  string    `json:"subjectId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
