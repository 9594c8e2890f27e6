package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/event"
	"github.com/boddenberg/finance-core/internal/infra/observability"
	"github.com/boddenberg/finance-core/internal/infra/resilience"
	"github.com/boddenberg/finance-core/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var merchantTracer = otel.Tracer("service/merchants")

// MerchantAggregator keeps each merchant's recency log and running totals in
// step with the transactions recorded against it, and resolves typed merchant
// names to merchant records.
//
// All writes to one merchant go through a per-id lock, so concurrent
// RecordTransaction calls cannot lose each other's changes. Events are emitted
// after the lock is released, so subscribers may call back into the aggregator.
type MerchantAggregator struct {
	store   port.MerchantStore
	locks   *resilience.KeyedMutex
	events  *event.Emitter
	clock   port.Clock
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewMerchantAggregator creates the aggregator and its event emitter.
func NewMerchantAggregator(store port.MerchantStore, clock port.Clock, metrics *observability.Metrics, logger *zap.Logger) *MerchantAggregator {
	return &MerchantAggregator{
		store:   store,
		locks:   resilience.NewKeyedMutex(),
		events:  event.NewEmitter(metrics, logger),
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Events returns the emitter carrying merchantsChanged.
func (a *MerchantAggregator) Events() *event.Emitter {
	return a.events
}

// RecordTransaction applies rt to the merchant's recency log and stats and
// persists the whole merchant. Re-recording an edited transaction replaces its
// recency entry but adds to the stats again.
func (a *MerchantAggregator) RecordTransaction(ctx context.Context, userID, merchantID string, rt domain.RecentTransaction) (*domain.Merchant, error) {
	ctx, span := merchantTracer.Start(ctx, "MerchantAggregator.RecordTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("merchant.id", merchantID),
		attribute.String("transaction.id", rt.ID),
	)

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "recordTransaction"}
	}
	if strings.TrimSpace(merchantID) == "" {
		return nil, &domain.ErrValidation{Field: "merchantId", Message: "required"}
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		a.metrics.RecordDuration("merchant.record", time.Since(start))
	}()

	unlock, err := a.locks.Lock(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("lock merchant %s: %w", merchantID, err)
	}
	defer unlock()

	m, err := a.loadOwned(ctx, userID, merchantID)
	if err != nil {
		a.metrics.IncrMerchantUpdate("error")
		return nil, err
	}

	m.ApplyRecentTransaction(rt, a.clock.Now())

	if err := a.store.SetMerchant(ctx, m); err != nil {
		a.metrics.IncrMerchantUpdate("error")
		a.logger.Error("failed to persist merchant",
			zap.String("merchant_id", merchantID),
			zap.String("transaction_id", rt.ID),
			zap.Error(err),
		)
		return nil, err
	}

	a.metrics.IncrMerchantUpdate("success")
	unlock()
	a.emit(ctx, userID, merchantID)

	a.logger.Debug("merchant updated",
		zap.String("merchant_id", merchantID),
		zap.String("transaction_id", rt.ID),
		zap.Int("visit_count", m.Stats.VisitCount),
	)
	return m, nil
}

// ResolveMerchant maps the save flow's merchant selection to a merchant record.
// An explicit id wins; otherwise the user's merchants are matched on normalized
// display name, and a new merchant is created when nothing matches.
func (a *MerchantAggregator) ResolveMerchant(ctx context.Context, userID string, sel domain.MerchantSelection) (*domain.Merchant, bool, error) {
	ctx, span := merchantTracer.Start(ctx, "MerchantAggregator.ResolveMerchant")
	defer span.End()

	if userID == "" {
		return nil, false, &domain.ErrNotAuthenticated{Operation: "resolveMerchant"}
	}

	if sel.MerchantID != "" {
		span.SetAttributes(attribute.String("merchant.id", sel.MerchantID))
		m, err := a.loadOwned(ctx, userID, sel.MerchantID)
		return m, false, err
	}

	name := strings.TrimSpace(sel.Name)
	if name == "" {
		return nil, false, &domain.ErrValidation{Field: "merchantName", Message: "required"}
	}
	normalized := domain.NormalizeDisplayName(name)

	unlock, err := a.locks.Lock(ctx, "resolve:"+userID+":"+normalized)
	if err != nil {
		return nil, false, fmt.Errorf("lock merchant name: %w", err)
	}
	defer unlock()

	merchants, err := a.store.ListMerchants(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	for i := range merchants {
		if domain.NormalizeDisplayName(merchants[i].DisplayName) == normalized {
			return &merchants[i], false, nil
		}
	}

	m, err := a.create(ctx, userID, name)
	if err != nil {
		return nil, false, err
	}
	unlock()
	a.emit(ctx, userID, m.ID)
	return m, true, nil
}

// FindOrCreateByKey looks a merchant up by MerchantKey rather than display
// name. The save flow does not use it, so "Coffee Bar" and "CoffeeBar" still
// resolve to different merchants there.
func (a *MerchantAggregator) FindOrCreateByKey(ctx context.Context, userID, name string) (*domain.Merchant, bool, error) {
	ctx, span := merchantTracer.Start(ctx, "MerchantAggregator.FindOrCreateByKey")
	defer span.End()

	if userID == "" {
		return nil, false, &domain.ErrNotAuthenticated{Operation: "findOrCreateMerchant"}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, &domain.ErrValidation{Field: "merchantName", Message: "required"}
	}
	key := domain.MerchantKey(name)

	unlock, err := a.locks.Lock(ctx, "key:"+userID+":"+key)
	if err != nil {
		return nil, false, fmt.Errorf("lock merchant key: %w", err)
	}
	defer unlock()

	merchants, err := a.store.ListMerchants(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	for i := range merchants {
		if merchants[i].MerchantKey == key {
			return &merchants[i], false, nil
		}
	}

	m, err := a.create(ctx, userID, name)
	if err != nil {
		return nil, false, err
	}
	unlock()
	a.emit(ctx, userID, m.ID)
	return m, true, nil
}

// List returns the user's merchants, most visited first, optionally filtered.
func (a *MerchantAggregator) List(ctx context.Context, userID, search string) ([]domain.Merchant, error) {
	ctx, span := merchantTracer.Start(ctx, "MerchantAggregator.List")
	defer span.End()

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "listMerchants"}
	}

	merchants, err := a.store.ListMerchants(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Merchant, 0, len(merchants))
	for _, m := range merchants {
		if m.MatchesSearch(search) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Stats.VisitCount > out[j].Stats.VisitCount
	})
	return out, nil
}

// Get returns one of the user's merchants.
func (a *MerchantAggregator) Get(ctx context.Context, userID, merchantID string) (*domain.Merchant, error) {
	ctx, span := merchantTracer.Start(ctx, "MerchantAggregator.Get")
	defer span.End()

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "getMerchant"}
	}
	return a.loadOwned(ctx, userID, merchantID)
}

// UpdateNote replaces the merchant's note. A note without a category keeps the
// current one.
func (a *MerchantAggregator) UpdateNote(ctx context.Context, userID, merchantID string, note domain.MerchantNote) (*domain.Merchant, error) {
	ctx, span := merchantTracer.Start(ctx, "MerchantAggregator.UpdateNote")
	defer span.End()
	span.SetAttributes(attribute.String("merchant.id", merchantID))

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "updateMerchantNote"}
	}
	if err := note.Validate(); err != nil {
		return nil, err
	}

	unlock, err := a.locks.Lock(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("lock merchant %s: %w", merchantID, err)
	}
	defer unlock()

	m, err := a.loadOwned(ctx, userID, merchantID)
	if err != nil {
		return nil, err
	}

	if note.Category == nil {
		note.Category = m.Note.Category
	}
	if note.Tips == nil {
		note.Tips = []string{}
	}
	if note.Pros == nil {
		note.Pros = []string{}
	}
	if note.Cons == nil {
		note.Cons = []string{}
	}
	m.Note = note
	m.UpdatedAt = a.clock.Now()

	if err := a.store.SetMerchant(ctx, m); err != nil {
		return nil, err
	}
	unlock()
	a.emit(ctx, userID, merchantID)
	return m, nil
}

// Delete removes one of the user's merchants. Transactions keep their
// merchant id and name.
func (a *MerchantAggregator) Delete(ctx context.Context, userID, merchantID string) error {
	ctx, span := merchantTracer.Start(ctx, "MerchantAggregator.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("merchant.id", merchantID))

	if userID == "" {
		return &domain.ErrNotAuthenticated{Operation: "deleteMerchant"}
	}

	unlock, err := a.locks.Lock(ctx, merchantID)
	if err != nil {
		return fmt.Errorf("lock merchant %s: %w", merchantID, err)
	}
	defer unlock()

	if _, err := a.loadOwned(ctx, userID, merchantID); err != nil {
		return err
	}
	if err := a.store.DeleteMerchant(ctx, merchantID); err != nil {
		return err
	}

	a.logger.Info("merchant deleted", zap.String("merchant_id", merchantID))
	unlock()
	a.emit(ctx, userID, merchantID)
	return nil
}

// create persists a new merchant. Callers emit once their lock is released.
func (a *MerchantAggregator) create(ctx context.Context, userID, name string) (*domain.Merchant, error) {
	m := domain.NewMerchant(userID, name, a.clock.Now())
	id, err := a.store.AddMerchant(ctx, m)
	if err != nil {
		return nil, err
	}
	m.ID = id

	a.logger.Info("merchant created",
		zap.String("merchant_id", id),
		zap.String("merchant_key", m.MerchantKey),
	)
	return m, nil
}

// loadOwned treats another user's merchant as missing.
func (a *MerchantAggregator) loadOwned(ctx context.Context, userID, merchantID string) (*domain.Merchant, error) {
	if strings.TrimSpace(merchantID) == "" {
		return nil, &domain.ErrValidation{Field: "merchantId", Message: "required"}
	}
	m, err := a.store.GetMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "merchant", ID: merchantID}
	}
	return m, nil
}

func (a *MerchantAggregator) emit(ctx context.Context, userID, merchantID string) {
	a.events.Emit(ctx, domain.Event{
		Name:       domain.EventMerchantsChanged,
		UserID:     userID,
		SubjectID:  merchantID,
		OccurredAt: a.clock.Now(),
	})
}
