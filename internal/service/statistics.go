package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/infra/observability"
	"github.com/boddenberg/finance-core/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var statsTracer = otel.Tracer("service/statistics")

// StatisticsAggregator computes period statistics from a bulk fetch of the
// user's transactions. Results are not cached.
type StatisticsAggregator struct {
	transactions port.TransactionStore
	categories   port.CategoryStore
	clock        port.Clock
	weekStart    time.Weekday
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewStatisticsAggregator creates the aggregator.
func NewStatisticsAggregator(
	transactions port.TransactionStore,
	categories port.CategoryStore,
	clock port.Clock,
	weekStart time.Weekday,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *StatisticsAggregator {
	return &StatisticsAggregator{
		transactions: transactions,
		categories:   categories,
		clock:        clock,
		weekStart:    weekStart,
		metrics:      metrics,
		logger:       logger,
	}
}

// Calculate returns the statistics for the period containing now.
// A failed transaction fetch is an error; a failed category fetch only leaves
// breakdown rows with the default icon and color.
func (s *StatisticsAggregator) Calculate(ctx context.Context, userID string, period domain.Period) (*domain.TransactionStatistics, error) {
	ctx, span := statsTracer.Start(ctx, "StatisticsAggregator.Calculate")
	defer span.End()
	span.SetAttributes(attribute.String("period", string(period)))

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "calculateStatistics"}
	}
	if !period.Valid() {
		return nil, &domain.ErrValidation{Field: "period", Message: "must be day, week, month or year"}
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("statistics", time.Since(start))
	}()

	var (
		txns       []domain.Transaction
		categories []domain.Category
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t, err := s.transactions.ListTransactions(gCtx, userID)
		if err != nil {
			s.logger.Error("failed to fetch transactions for statistics",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return fmt.Errorf("transactions fetch: %w", err)
		}
		txns = t
		return nil
	})

	g.Go(func() error {
		c, err := s.categories.ListCategories(gCtx, userID)
		if err != nil {
			s.logger.Warn("category enrichment unavailable",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return nil
		}
		categories = c
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := domain.ComputeStatistics(txns, period, s.clock.Now(), s.weekStart)
	enrichBreakdown(stats.CategoryBreakdown, categories)

	s.metrics.IncrStatistics(string(period))
	return &stats, nil
}

func enrichBreakdown(rows []domain.CategoryStatistic, categories []domain.Category) {
	if len(categories) == 0 {
		return
	}
	byID := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	for i := range rows {
		c, ok := byID[rows[i].CategoryID]
		if !ok {
			continue
		}
		if c.Icon != "" {
			rows[i].CategoryIcon = c.Icon
		}
		if c.Color != "" {
			rows[i].CategoryColor = c.Color
		}
	}
}
