package domain

import (
	"strings"
	"time"
)

// ============================================================
// Merchants
// ============================================================

// MaxRecentTransactions bounds Merchant.RecentTransactions.
const MaxRecentTransactions = 5

// frequentVisitThreshold is the visit count from which a merchant counts as frequent.
const frequentVisitThreshold = 5

// Merchant aggregates the transactions a user made at one place.
type Merchant struct {
	ID                 string              `json:"id,omitempty"`
	UserID             string              `json:"userId"`
	MerchantKey        string              `json:"merchantKey"`
	DisplayName        string              `json:"merchantDisplayName"`
	Note               MerchantNote        `json:"note"`
	Stats              MerchantStats       `json:"stats"`
	RecentTransactions []RecentTransaction `json:"recentTransactions"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// MerchantStats holds running totals. They are only ever added to.
type MerchantStats struct {
	TotalSpending float64    `json:"totalSpending"`
	VisitCount    int        `json:"visitCount"`
	LastVisitDate *time.Time `json:"lastVisitDate,omitempty"`
}

// RecentTransaction is the embedded copy of a transaction kept in the recency log.
type RecentTransaction struct {
	ID           string          `json:"id"`
	Amount       float64         `json:"amount"`
	Date         time.Time       `json:"date"`
	CategoryID   string          `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
	Type         TransactionType `json:"type"`
}

// Validate checks the fields required to record a transaction against a merchant.
func (rt *RecentTransaction) Validate() error {
	if strings.TrimSpace(rt.ID) == "" {
		return &ErrValidation{Field: "transactionId", Message: "required"}
	}
	if rt.Amount <= 0 {
		return &ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if !rt.Type.Valid() {
		return &ErrValidation{Field: "type", Message: "must be income or expense"}
	}
	if rt.Date.IsZero() {
		return &ErrValidation{Field: "date", Message: "required"}
	}
	return nil
}

// Verdict is the user's recommendation status for a merchant.
type Verdict string

const (
	VerdictRecommended Verdict = "recommended"
	VerdictNeutral     Verdict = "neutral"
	VerdictAvoid       Verdict = "avoid"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictRecommended, VerdictNeutral, VerdictAvoid:
		return true
	}
	return false
}

// Color is the badge color for the verdict.
func (v Verdict) Color() string {
	switch v {
	case VerdictRecommended:
		return "#4CAF50"
	case VerdictAvoid:
		return "#F44336"
	case VerdictNeutral:
		return "#FF9800"
	}
	return ""
}

// Location is an optional place attached to a merchant note.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// MerchantNote is the user's free-form knowledge about a merchant.
type MerchantNote struct {
	Rating   *int      `json:"rating,omitempty"`
	Verdict  *Verdict  `json:"verdict,omitempty"`
	Tips     []string  `json:"tips"`
	Pros     []string  `json:"pros"`
	Cons     []string  `json:"cons"`
	Raw      string    `json:"raw,omitempty"`
	Category *string   `json:"category,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Validate checks rating bounds and the verdict enum.
func (n *MerchantNote) Validate() error {
	if n.Rating != nil && (*n.Rating < 1 || *n.Rating > 5) {
		return &ErrValidation{Field: "rating", Message: "must be between 1 and 5"}
	}
	if n.Verdict != nil && !n.Verdict.Valid() {
		return &ErrValidation{Field: "verdict", Message: "must be recommended, neutral or avoid"}
	}
	return nil
}

// MerchantSelection describes how the save flow names a merchant: an explicit
// pick from a list, or free text typed by the user.
type MerchantSelection struct {
	MerchantID string `json:"merchantId,omitempty"`
	Name       string `json:"name,omitempty"`
}

// NewMerchant builds a fresh merchant for a user-entered name.
func NewMerchant(userID, name string, now time.Time) *Merchant {
	name = strings.TrimSpace(name)
	category := DefaultCategoryName
	return &Merchant{
		UserID:             userID,
		MerchantKey:        MerchantKey(name),
		DisplayName:        name,
		Note:               MerchantNote{Tips: []string{}, Pros: []string{}, Cons: []string{}, Category: &category},
		RecentTransactions: []RecentTransaction{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// MerchantKey normalizes a name for dedup: lowercased with spaces removed.
func MerchantKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "")
}

// NormalizeDisplayName is the match key used when resolving typed names.
func NormalizeDisplayName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

// Category returns the note category, or "Other".
func (m *Merchant) Category() string {
	if m.Note.Category == nil || *m.Note.Category == "" {
		return DefaultCategoryName
	}
	return *m.Note.Category
}

// IsFrequent reports whether the merchant has been visited often.
func (m *Merchant) IsFrequent() bool {
	return m.Stats.VisitCount >= frequentVisitThreshold
}

// ApplyRecentTransaction records rt in the recency log and running stats.
//
// An entry with the same id is replaced, the new entry goes first and the log
// is cut to MaxRecentTransactions. Stats are added to unconditionally, so
// re-recording an edited transaction counts it again, and LastVisitDate follows
// call order rather than the latest date.
func (m *Merchant) ApplyRecentTransaction(rt RecentTransaction, now time.Time) {
	recent := make([]RecentTransaction, 0, len(m.RecentTransactions)+1)
	recent = append(recent, rt)
	for _, existing := range m.RecentTransactions {
		if existing.ID == rt.ID {
			continue
		}
		recent = append(recent, existing)
	}
	if len(recent) > MaxRecentTransactions {
		recent = recent[:MaxRecentTransactions]
	}
	m.RecentTransactions = recent

	m.Stats.TotalSpending += rt.Amount
	m.Stats.VisitCount++
	date := rt.Date
	m.Stats.LastVisitDate = &date
	m.UpdatedAt = now
}

// MatchesSearch does a case-insensitive contains match on display name, key and note category.
func (m *Merchant) MatchesSearch(search string) bool {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(m.DisplayName), q) || strings.Contains(strings.ToLower(m.MerchantKey), q) {
		return true
	}
	return m.Note.Category != nil && strings.Contains(strings.ToLower(*m.Note.Category), q)
}
