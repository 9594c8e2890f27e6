package domain

import (
	"sort"
	"strings"
	"time"
)

// ============================================================
// Statistics
// ============================================================

// Period is a statistics window relative to the current moment.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

// ParsePeriod validates a period selector. An empty string means month.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PeriodMonth, nil
	}
	if !p.Valid() {
		return "", &ErrValidation{Field: "period", Message: "must be day, week, month or year"}
	}
	return p, nil
}

// DisplayName is the filter label shown to users.
func (p Period) DisplayName() string {
	switch p {
	case PeriodDay:
		return "Today"
	case PeriodWeek:
		return "This Week"
	case PeriodMonth:
		return "This Month"
	case PeriodYear:
		return "This Year"
	}
	return string(p)
}

// defaultCategoryIcon is used when a breakdown row has no matching category.
const defaultCategoryIcon = "📊"

// monthLabelLayout formats monthly trend labels as YYYY-MM.
const monthLabelLayout = "2006-01"

// TransactionStatistics bundles totals and rollups for one period.
type TransactionStatistics struct {
	Period            Period              `json:"period"`
	PeriodLabel       string              `json:"periodLabel"`
	From              time.Time           `json:"from"`
	To                time.Time           `json:"to"`
	TotalIncome       float64             `json:"totalIncome"`
	TotalExpense      float64             `json:"totalExpense"`
	NetAmount         float64             `json:"netAmount"`
	TransactionCount  int                 `json:"transactionCount"`
	CategoryBreakdown []CategoryStatistic `json:"categoryBreakdown"`
	MonthlyTrend      []MonthlyStatistic  `json:"monthlyTrend"`
}

// Balance is the income minus expense for the period.
func (s *TransactionStatistics) Balance() float64 {
	return s.TotalIncome - s.TotalExpense
}

// CategoryStatistic is one row of the category breakdown.
// Percentage is a ratio in [0,1] of the combined income and expense total.
type CategoryStatistic struct {
	CategoryID       string          `json:"categoryId"`
	CategoryName     string          `json:"categoryName"`
	CategoryIcon     string          `json:"categoryIcon"`
	CategoryColor    string          `json:"categoryColor"`
	Amount           float64         `json:"amount"`
	Percentage       float64         `json:"percentage"`
	TransactionCount int             `json:"transactionCount"`
	Type             TransactionType `json:"type"`
}

// MonthlyStatistic is one month of the income/expense trend.
type MonthlyStatistic struct {
	Month   string    `json:"month"`
	Income  float64   `json:"income"`
	Expense float64   `json:"expense"`
	Net     float64   `json:"net"`
	Date    time.Time `json:"date"`
}

// PeriodRange returns the half-open [start, end) interval of the period
// containing now, using calendar boundaries in now's location.
func PeriodRange(p Period, now time.Time, weekStart time.Weekday) (time.Time, time.Time) {
	loc := now.Location()
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch p {
	case PeriodDay:
		return startOfDay, startOfDay.AddDate(0, 0, 1)
	case PeriodWeek:
		offset := (int(now.Weekday()) - int(weekStart) + 7) % 7
		start := startOfDay.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case PeriodYear:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	default:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	}
}

// ComputeStatistics is a pure function of the transaction set, the period and now.
// Transactions outside the period are ignored. An empty set yields zero totals
// and empty, non-nil lists.
func ComputeStatistics(txns []Transaction, p Period, now time.Time, weekStart time.Weekday) TransactionStatistics {
	start, end := PeriodRange(p, now, weekStart)

	filtered := make([]Transaction, 0, len(txns))
	for _, t := range txns {
		if !t.Date.Before(start) && t.Date.Before(end) {
			filtered = append(filtered, t)
		}
	}

	stats := TransactionStatistics{
		Period:           p,
		PeriodLabel:      p.DisplayName(),
		From:             start,
		To:               end,
		TransactionCount: len(filtered),
	}
	for _, t := range filtered {
		switch t.Type {
		case TransactionIncome:
			stats.TotalIncome += t.Amount
		case TransactionExpense:
			stats.TotalExpense += t.Amount
		}
	}
	stats.NetAmount = stats.TotalIncome - stats.TotalExpense
	stats.CategoryBreakdown = categoryBreakdown(filtered)
	stats.MonthlyTrend = monthlyTrend(filtered, now.Location())
	return stats
}

func categoryBreakdown(txns []Transaction) []CategoryStatistic {
	var total float64
	index := make(map[string]int)
	rows := make([]CategoryStatistic, 0)

	for _, t := range txns {
		total += t.Amount
		i, ok := index[t.CategoryID]
		if !ok {
			i = len(rows)
			index[t.CategoryID] = i
			rows = append(rows, CategoryStatistic{
				CategoryID:    t.CategoryID,
				CategoryName:  t.CategoryName,
				CategoryIcon:  defaultCategoryIcon,
				CategoryColor: t.Type.Color(),
				Type:          t.Type,
			})
		}
		rows[i].Amount += t.Amount
		rows[i].TransactionCount++
	}

	for i := range rows {
		if total > 0 {
			rows[i].Percentage = rows[i].Amount / total
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Amount > rows[j].Amount
	})
	return rows
}

func monthlyTrend(txns []Transaction, loc *time.Location) []MonthlyStatistic {
	index := make(map[time.Time]int)
	months := make([]MonthlyStatistic, 0)

	for _, t := range txns {
		d := t.Date.In(loc)
		monthStart := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, loc)
		i, ok := index[monthStart]
		if !ok {
			i = len(months)
			index[monthStart] = i
			months = append(months, MonthlyStatistic{
				Month: monthStart.Format(monthLabelLayout),
				Date:  monthStart,
			})
		}
		switch t.Type {
		case TransactionIncome:
			months[i].Income += t.Amount
		case TransactionExpense:
			months[i].Expense += t.Amount
		}
	}

	for i := range months {
		months[i].Net = months[i].Income - months[i].Expense
	}

	sort.Slice(months, func(i, j int) bool {
		return months[i].Date.Before(months[j].Date)
	})
	return months
}
