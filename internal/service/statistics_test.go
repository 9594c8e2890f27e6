package service_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/port"
	"github.com/boddenberg/finance-core/internal/service"

	"go.uber.org/zap"
)

func newStatistics(f *fixture) *service.StatisticsAggregator {
	return service.NewStatisticsAggregator(f.repo, f.repo, fixedClock(testNow), time.Monday, f.metrics, zap.NewNop())
}

func (f *fixture) addTransaction(t *testing.T, txn domain.Transaction) {
	t.Helper()
	if _, err := f.repo.AddTransaction(context.Background(), &txn); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func (f *fixture) addCategory(t *testing.T, c domain.Category) string {
	t.Helper()
	id, err := f.repo.AddCategory(context.Background(), &c)
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return id
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculate_Month(t *testing.T) {
	f := newFixture()
	agg := newStatistics(f)

	dining := f.addCategory(t, domain.Category{Name: "Dining", Icon: "🍽️", Color: "#FF9800", UserID: "user-1"})

	march := func(day, hour int) time.Time { return time.Date(2024, time.March, day, hour, 0, 0, 0, time.UTC) }
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 100, Type: domain.TransactionExpense, CategoryID: dining, CategoryName: "Dining", Date: march(1, 0)})
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 50, Type: domain.TransactionExpense, CategoryID: dining, CategoryName: "Dining", Date: march(10, 12)})
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 200, Type: domain.TransactionIncome, CategoryID: "cat-salary", CategoryName: "Salary", Date: march(5, 9)})
	// outside the period
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 999, Type: domain.TransactionExpense, CategoryID: dining, CategoryName: "Dining", Date: time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)})
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 999, Type: domain.TransactionIncome, CategoryID: "cat-salary", CategoryName: "Salary", Date: time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)})
	// another user
	f.addTransaction(t, domain.Transaction{UserID: "user-2", Amount: 777, Type: domain.TransactionExpense, CategoryID: dining, CategoryName: "Dining", Date: march(2, 0)})

	stats, err := agg.Calculate(context.Background(), "user-1", domain.PeriodMonth)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if stats.TotalIncome != 200 || stats.TotalExpense != 150 || stats.NetAmount != 50 {
		t.Errorf("unexpected totals income=%v expense=%v net=%v", stats.TotalIncome, stats.TotalExpense, stats.NetAmount)
	}
	if stats.TransactionCount != 3 {
		t.Errorf("expected 3 transactions, got %d", stats.TransactionCount)
	}

	if len(stats.CategoryBreakdown) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(stats.CategoryBreakdown))
	}
	salary, food := stats.CategoryBreakdown[0], stats.CategoryBreakdown[1]
	if salary.CategoryID != "cat-salary" || salary.Amount != 200 {
		t.Errorf("expected salary first with 200, got %+v", salary)
	}
	if !approx(salary.Percentage, 200.0/350.0) || !approx(food.Percentage, 150.0/350.0) {
		t.Errorf("unexpected percentages %v / %v", salary.Percentage, food.Percentage)
	}
	if food.TransactionCount != 2 {
		t.Errorf("expected 2 dining transactions, got %d", food.TransactionCount)
	}
	if food.CategoryIcon != "🍽️" || food.CategoryColor != "#FF9800" {
		t.Errorf("expected enrichment from category, got icon=%s color=%s", food.CategoryIcon, food.CategoryColor)
	}
	if salary.CategoryIcon != "📊" || salary.CategoryColor != "#4CAF50" {
		t.Errorf("expected default icon and income color, got icon=%s color=%s", salary.CategoryIcon, salary.CategoryColor)
	}

	if len(stats.MonthlyTrend) != 1 || stats.MonthlyTrend[0].Month != "2024-03" {
		t.Fatalf("expected single 2024-03 trend row, got %+v", stats.MonthlyTrend)
	}
	if stats.MonthlyTrend[0].Net != 50 {
		t.Errorf("expected net 50, got %v", stats.MonthlyTrend[0].Net)
	}

	if snap := f.metrics.Snapshot(); snap.StatisticsComputed["month"] != 1 {
		t.Errorf("expected statistics metric for month, got %v", snap.StatisticsComputed)
	}
}

func TestCalculate_EmptyIsSuccess(t *testing.T) {
	f := newFixture()
	agg := newStatistics(f)

	for _, p := range []domain.Period{domain.PeriodDay, domain.PeriodWeek, domain.PeriodMonth, domain.PeriodYear} {
		stats, err := agg.Calculate(context.Background(), "user-1", p)
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", p, err)
		}
		if stats.TotalIncome != 0 || stats.TotalExpense != 0 || stats.NetAmount != 0 {
			t.Errorf("%s: expected zero totals, got %+v", p, stats)
		}
		if stats.CategoryBreakdown == nil || len(stats.CategoryBreakdown) != 0 {
			t.Errorf("%s: expected empty breakdown, got %v", p, stats.CategoryBreakdown)
		}
		if stats.MonthlyTrend == nil || len(stats.MonthlyTrend) != 0 {
			t.Errorf("%s: expected empty trend, got %v", p, stats.MonthlyTrend)
		}
	}
}

func TestCalculate_FetchFailureIsError(t *testing.T) {
	f := newFixture()
	agg := newStatistics(f)
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 10, Type: domain.TransactionExpense, CategoryID: "c", Date: testNow})

	f.store.failQueryOn(port.CollectionTransactions)
	stats, err := agg.Calculate(context.Background(), "user-1", domain.PeriodMonth)
	if err == nil {
		t.Fatalf("expected error, got stats %+v", stats)
	}
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Errorf("expected ErrExternalService, got %v", err)
	}
}

func TestCalculate_CategoryFailureOnlyDegradesEnrichment(t *testing.T) {
	f := newFixture()
	agg := newStatistics(f)
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 10, Type: domain.TransactionExpense, CategoryID: "c", CategoryName: "Misc", Date: testNow})

	f.store.failQueryOn(port.CollectionCategories)
	stats, err := agg.Calculate(context.Background(), "user-1", domain.PeriodMonth)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(stats.CategoryBreakdown) != 1 || stats.CategoryBreakdown[0].CategoryColor != "#F44336" {
		t.Errorf("expected default expense color, got %+v", stats.CategoryBreakdown)
	}
}

func TestCalculate_WeekUsesInjectedClock(t *testing.T) {
	f := newFixture()
	agg := newStatistics(f)

	// testNow is Friday 2024-03-15; the Monday-based week is [03-11, 03-18)
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 10, Type: domain.TransactionExpense, CategoryID: "c", Date: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)})
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 20, Type: domain.TransactionExpense, CategoryID: "c", Date: time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)})
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 40, Type: domain.TransactionExpense, CategoryID: "c", Date: time.Date(2024, 3, 17, 23, 0, 0, 0, time.UTC)})

	stats, err := agg.Calculate(context.Background(), "user-1", domain.PeriodWeek)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stats.TotalExpense != 50 {
		t.Errorf("expected expense 50, got %v", stats.TotalExpense)
	}
	if !stats.From.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected week start %v", stats.From)
	}
}

func TestCalculate_NotAuthenticated(t *testing.T) {
	f := newFixture()
	agg := newStatistics(f)

	_, err := agg.Calculate(context.Background(), "", domain.PeriodMonth)
	var notAuth *domain.ErrNotAuthenticated
	if !errors.As(err, &notAuth) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestCalculate_RejectsUnknownPeriod(t *testing.T) {
	f := newFixture()
	agg := newStatistics(f)
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 10, Type: domain.TransactionExpense, CategoryID: "c", CategoryName: "c", Date: testNow})

	stats, err := agg.Calculate(context.Background(), "user-1", domain.Period("decade"))
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v (stats %+v)", err, stats)
	}
	if validation.Field != "period" {
		t.Errorf("expected field period, got %s", validation.Field)
	}
	if stats != nil {
		t.Errorf("expected no statistics, got %+v", stats)
	}
}

func TestCalculate_SameDataSameResult(t *testing.T) {
	f := newFixture()
	agg := newStatistics(f)

	names := []string{"Groceries", "Transport", "Dining", "Health", "Leisure"}
	for i, name := range names {
		id := f.addCategory(t, domain.Category{Name: name, Icon: "•", Color: "#9E9E9E", UserID: "user-1"})
		f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: float64(10 * (i%2 + 1)), Type: domain.TransactionExpense, CategoryID: id, CategoryName: name, Date: time.Date(2024, time.January+time.Month(i), 3, 0, 0, 0, 0, time.UTC)})
	}
	f.addTransaction(t, domain.Transaction{UserID: "user-1", Amount: 1000, Type: domain.TransactionIncome, CategoryID: "cat-salary", CategoryName: "Salary", Date: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)})

	first, err := agg.Calculate(context.Background(), "user-1", domain.PeriodYear)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := agg.Calculate(context.Background(), "user-1", domain.PeriodYear)
		if err != nil {
			t.Fatalf("run %d: expected no error, got %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}
