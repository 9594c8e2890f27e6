package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/infra/docstore"
	"github.com/boddenberg/finance-core/internal/infra/memory"
	"github.com/boddenberg/finance-core/internal/infra/observability"
	"github.com/boddenberg/finance-core/internal/port"
)

// --- Test doubles ---

var testNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) port.Clock {
	return port.ClockFunc(func() time.Time { return t })
}

// flakyStore is the in-memory store with per-operation failure switches.
type flakyStore struct {
	*memory.Store

	mu        sync.Mutex
	failSet   map[string]bool
	failQuery map[string]bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		Store:     memory.NewStore(),
		failSet:   map[string]bool{},
		failQuery: map[string]bool{},
	}
}

func (f *flakyStore) failSetOn(collection string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet[collection] = true
}

func (f *flakyStore) failQueryOn(collection string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failQuery[collection] = true
}

func (f *flakyStore) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	f.mu.Lock()
	fail := f.failSet[collection]
	f.mu.Unlock()
	if fail {
		return errors.New("write rejected: quota exceeded")
	}
	return f.Store.Set(ctx, collection, id, data)
}

func (f *flakyStore) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	f.mu.Lock()
	fail := f.failSet[collection]
	f.mu.Unlock()
	if fail {
		return "", errors.New("write rejected: quota exceeded")
	}
	return f.Store.Add(ctx, collection, data)
}

func (f *flakyStore) Query(ctx context.Context, collection string, filters ...port.Filter) ([]port.Document, error) {
	f.mu.Lock()
	fail := f.failQuery[collection]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return f.Store.Query(ctx, collection, filters...)
}

type fixture struct {
	store   *flakyStore
	repo    *docstore.Repository
	metrics *observability.Metrics
}

func newFixture() *fixture {
	store := newFlakyStore()
	metrics := observability.NewMetrics()
	return &fixture{
		store:   store,
		repo:    docstore.New(store, "memory", metrics),
		metrics: metrics,
	}
}

func (f *fixture) seedMerchant(userID, name string) *domain.Merchant {
	m := domain.NewMerchant(userID, name, testNow.Add(-24*time.Hour))
	id, err := f.repo.AddMerchant(context.Background(), m)
	if err != nil {
		panic(err)
	}
	m.ID = id
	return m
}

func recent(id string, amount float64, date time.Time) domain.RecentTransaction {
	return domain.RecentTransaction{
		ID:           id,
		Amount:       amount,
		Date:         date,
		CategoryID:   "cat-dining",
		CategoryName: "Dining",
		Type:         domain.TransactionExpense,
	}
}

// eventRecorder collects events from an emitter.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) handle(_ context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) count(name domain.EventName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}
