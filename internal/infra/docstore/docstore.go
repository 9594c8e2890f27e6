// Package docstore implements the typed stores on top of any DocumentStore.
// The JSON tags of the domain records are the serialization contract; the
// document id lives outside the document body.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/infra/observability"
	"github.com/boddenberg/finance-core/internal/port"
)

// Repository implements port.TransactionStore, port.CategoryStore and port.MerchantStore.
type Repository struct {
	store   port.DocumentStore
	backend string
	metrics *observability.Metrics
}

// New creates a repository. backend names the store in errors and metrics.
func New(store port.DocumentStore, backend string, metrics *observability.Metrics) *Repository {
	return &Repository{store: store, backend: backend, metrics: metrics}
}

// wrap classifies store errors: not-found passes through, everything else
// becomes a persistence failure carrying the store's message.
func (r *Repository) wrap(collection string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return err
	}
	r.metrics.IncrStoreError(r.backend, collection)
	return &domain.ErrExternalService{Service: r.backend + "/" + collection, Err: err}
}

func (r *Repository) get(ctx context.Context, collection, id string, dst any) error {
	doc, err := r.store.Get(ctx, collection, id)
	if err != nil {
		return r.wrap(collection, err)
	}
	if err := json.Unmarshal(doc.Data, dst); err != nil {
		return r.wrap(collection, fmt.Errorf("decode %s/%s: %w", collection, id, err))
	}
	return nil
}

func (r *Repository) set(ctx context.Context, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return r.wrap(collection, r.store.Set(ctx, collection, id, data))
}

func (r *Repository) add(ctx context.Context, collection string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", collection, err)
	}
	id, err := r.store.Add(ctx, collection, data)
	if err != nil {
		return "", r.wrap(collection, err)
	}
	return id, nil
}

func (r *Repository) delete(ctx context.Context, collection, id string) error {
	return r.wrap(collection, r.store.Delete(ctx, collection, id))
}

// query decodes every matching document into T and stamps its id.
func query[T any](ctx context.Context, r *Repository, collection string, setID func(*T, string), filters ...port.Filter) ([]T, error) {
	docs, err := r.store.Query(ctx, collection, filters...)
	if err != nil {
		return nil, r.wrap(collection, err)
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return nil, r.wrap(collection, fmt.Errorf("decode %s/%s: %w", collection, doc.ID, err))
		}
		setID(&v, doc.ID)
		out = append(out, v)
	}
	return out, nil
}

// ============================================================
// Transactions
// ============================================================

func setTransactionID(t *domain.Transaction, id string) { t.ID = id }

func (r *Repository) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := r.get(ctx, port.CollectionTransactions, id, &t); err != nil {
		return nil, err
	}
	t.ID = id
	return &t, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return query(ctx, r, port.CollectionTransactions, setTransactionID, port.Eq("userId", userID))
}

func (r *Repository) AddTransaction(ctx context.Context, t *domain.Transaction) (string, error) {
	body := *t
	body.ID = ""
	return r.add(ctx, port.CollectionTransactions, body)
}

func (r *Repository) SetTransaction(ctx context.Context, t *domain.Transaction) error {
	body := *t
	body.ID = ""
	return r.set(ctx, port.CollectionTransactions, t.ID, body)
}

func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	return r.delete(ctx, port.CollectionTransactions, id)
}

// ============================================================
// Categories
// ============================================================

func setCategoryID(c *domain.Category, id string) { c.ID = id }

func (r *Repository) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	if err := r.get(ctx, port.CollectionCategories, id, &c); err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	return query(ctx, r, port.CollectionCategories, setCategoryID, port.Eq("userId", userID))
}

func (r *Repository) ListDefaultCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	return query(ctx, r, port.CollectionCategories, setCategoryID,
		port.Eq("userId", userID), port.Eq("isDefault", true))
}

func (r *Repository) AddCategory(ctx context.Context, c *domain.Category) (string, error) {
	body := *c
	body.ID = ""
	return r.add(ctx, port.CollectionCategories, body)
}

func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	return r.delete(ctx, port.CollectionCategories, id)
}

// ============================================================
// Merchants
// ============================================================

func setMerchantID(m *domain.Merchant, id string) { m.ID = id }

func (r *Repository) GetMerchant(ctx context.Context, id string) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := r.get(ctx, port.CollectionMerchants, id, &m); err != nil {
		return nil, err
	}
	m.ID = id
	return &m, nil
}

func (r *Repository) ListMerchants(ctx context.Context, userID string) ([]domain.Merchant, error) {
	return query(ctx, r, port.CollectionMerchants, setMerchantID, port.Eq("userId", userID))
}

func (r *Repository) AddMerchant(ctx context.Context, m *domain.Merchant) (string, error) {
	body := *m
	body.ID = ""
	return r.add(ctx, port.CollectionMerchants, body)
}

func (r *Repository) SetMerchant(ctx context.Context, m *domain.Merchant) error {
	body := *m
	body.ID = ""
	return r.set(ctx, port.CollectionMerchants, m.ID, body)
}

func (r *Repository) DeleteMerchant(ctx context.Context, id string) error {
	return r.delete(ctx, port.CollectionMerchants, id)
}
