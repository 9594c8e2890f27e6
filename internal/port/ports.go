// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
)

// Collection names used by the typed stores.
const (
	CollectionTransactions = "transactions"
	CollectionCategories   = "categories"
	CollectionMerchants    = "merchants"
)

// Document is a stored JSON document and its store-assigned id.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Filter is an equality match on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// DocumentStore is the remote document database.
// Get returns *domain.ErrNotFound for a missing id. Set overwrites the whole
// document, creating it when absent. No operation spans more than one document.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Set(ctx context.Context, collection, id string, data json.RawMessage) error
	Add(ctx context.Context, collection string, data json.RawMessage) (string, error)
	Delete(ctx context.Context, collection, id string) error
}

// TransactionStore persists transactions.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)
	AddTransaction(ctx context.Context, t *domain.Transaction) (string, error)
	SetTransaction(ctx context.Context, t *domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
}

// CategoryStore persists categories.
type CategoryStore interface {
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
	ListDefaultCategories(ctx context.Context, userID string) ([]domain.Category, error)
	AddCategory(ctx context.Context, c *domain.Category) (string, error)
	DeleteCategory(ctx context.Context, id string) error
}

// MerchantStore persists merchants as whole documents.
type MerchantStore interface {
	GetMerchant(ctx context.Context, id string) (*domain.Merchant, error)
	ListMerchants(ctx context.Context, userID string) ([]domain.Merchant, error)
	AddMerchant(ctx context.Context, m *domain.Merchant) (string, error)
	SetMerchant(ctx context.Context, m *domain.Merchant) error
	DeleteMerchant(ctx context.Context, id string) error
}

// EventPublisher forwards change events out of process.
type EventPublisher interface {
	Publish(ctx context.Context, e domain.Event) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in the given location.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return ClockFunc(func() time.Time { return time.Now().In(loc) })
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
