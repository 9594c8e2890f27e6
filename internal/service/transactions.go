package service

import (
	"context"
	"sort"
	"strings"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/event"
	"github.com/boddenberg/finance-core/internal/infra/observability"
	"github.com/boddenberg/finance-core/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var txnTracer = otel.Tracer("service/transactions")

// DefaultTransactionListLimit caps List when no limit is given.
const DefaultTransactionListLimit = 50

// TransactionService is the transaction save flow: it resolves the merchant,
// persists the transaction and then records it against the merchant.
type TransactionService struct {
	store     port.TransactionStore
	merchants *MerchantAggregator
	events    *event.Emitter
	clock     port.Clock
	listLimit int
	logger    *zap.Logger
}

// NewTransactionService creates the service and its event emitter.
func NewTransactionService(
	store port.TransactionStore,
	merchants *MerchantAggregator,
	clock port.Clock,
	listLimit int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *TransactionService {
	if listLimit <= 0 {
		listLimit = DefaultTransactionListLimit
	}
	return &TransactionService{
		store:     store,
		merchants: merchants,
		events:    event.NewEmitter(metrics, logger),
		clock:     clock,
		listLimit: listLimit,
		logger:    logger,
	}
}

// Events returns the emitter carrying transactionAdded/Updated/Deleted.
func (s *TransactionService) Events() *event.Emitter {
	return s.events
}

// Create saves a new transaction. A merchant that cannot be updated after the
// transaction was stored is reported in MerchantError; the transaction stays.
func (s *TransactionService) Create(ctx context.Context, userID string, in domain.TransactionInput) (*domain.TransactionResult, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Create")
	defer span.End()

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "createTransaction"}
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	merchant, err := s.resolve(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	t := newTransaction(userID, in, merchant)
	t.CreatedAt = now
	t.UpdatedAt = now

	id, err := s.store.AddTransaction(ctx, t)
	if err != nil {
		s.logger.Error("failed to save transaction", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	t.ID = id
	span.SetAttributes(attribute.String("transaction.id", id))

	s.emit(ctx, domain.EventTransactionAdded, userID, id)

	return s.recordMerchant(ctx, userID, t, merchant), nil
}

// Update overwrites an existing transaction and records it against its
// merchant again.
func (s *TransactionService) Update(ctx context.Context, userID, id string, in domain.TransactionInput) (*domain.TransactionResult, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "updateTransaction"}
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	merchant, err := s.resolve(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	t := newTransaction(userID, in, merchant)
	t.ID = existing.ID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = s.clock.Now()

	if err := s.store.SetTransaction(ctx, t); err != nil {
		s.logger.Error("failed to update transaction", zap.String("transaction_id", id), zap.Error(err))
		return nil, err
	}

	s.emit(ctx, domain.EventTransactionUpdated, userID, id)

	return s.recordMerchant(ctx, userID, t, merchant), nil
}

// Delete removes a transaction. Merchant stats are left as they are.
func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if userID == "" {
		return &domain.ErrNotAuthenticated{Operation: "deleteTransaction"}
	}
	if _, err := s.loadOwned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}

	s.emit(ctx, domain.EventTransactionDeleted, userID, id)
	return nil
}

// Get returns one of the user's transactions.
func (s *TransactionService) Get(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Get")
	defer span.End()

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "getTransaction"}
	}
	return s.loadOwned(ctx, userID, id)
}

// List returns the user's most recent transactions, newest first.
// A non-positive limit uses the configured default.
func (s *TransactionService) List(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.List")
	defer span.End()

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "listTransactions"}
	}
	if limit <= 0 {
		limit = s.listLimit
	}

	txns, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.After(txns[j].Date)
	})
	if len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func (s *TransactionService) resolve(ctx context.Context, userID string, in domain.TransactionInput) (*domain.Merchant, error) {
	if !in.HasMerchant() {
		return nil, nil
	}
	m, created, err := s.merchants.ResolveMerchant(ctx, userID, domain.MerchantSelection{
		MerchantID: in.MerchantID,
		Name:       in.MerchantName,
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Debug("merchant created during save",
			zap.String("merchant_id", m.ID),
			zap.String("merchant_name", m.DisplayName),
		)
	}
	return m, nil
}

func (s *TransactionService) recordMerchant(ctx context.Context, userID string, t *domain.Transaction, merchant *domain.Merchant) *domain.TransactionResult {
	result := &domain.TransactionResult{Transaction: t}
	if merchant == nil {
		return result
	}

	updated, err := s.merchants.RecordTransaction(ctx, userID, merchant.ID, domain.RecentTransaction{
		ID:           t.ID,
		Amount:       t.Amount,
		Date:         t.Date,
		CategoryID:   t.CategoryID,
		CategoryName: t.CategoryName,
		Type:         t.Type,
	})
	if err != nil {
		s.logger.Warn("transaction saved but merchant not updated",
			zap.String("transaction_id", t.ID),
			zap.String("merchant_id", merchant.ID),
			zap.Error(err),
		)
		result.Merchant = merchant
		result.MerchantError = err.Error()
		return result
	}
	result.Merchant = updated
	return result
}

func (s *TransactionService) loadOwned(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &domain.ErrValidation{Field: "transactionId", Message: "required"}
	}
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return t, nil
}

func (s *TransactionService) emit(ctx context.Context, name domain.EventName, userID, id string) {
	s.events.Emit(ctx, domain.Event{
		Name:       name,
		UserID:     userID,
		SubjectID:  id,
		OccurredAt: s.clock.Now(),
	})
}

func newTransaction(userID string, in domain.TransactionInput, merchant *domain.Merchant) *domain.Transaction {
	t := &domain.Transaction{
		UserID:       userID,
		Amount:       in.Amount,
		Type:         in.Type,
		CategoryID:   in.CategoryID,
		CategoryName: in.CategoryName,
		Description:  strings.TrimSpace(in.Description),
		Date:         in.Date,
	}
	if merchant != nil {
		t.MerchantID = merchant.ID
		t.MerchantName = merchant.DisplayName
	}
	return t
}
