package domain

import "time"

// Category groups transactions. Defaults are seeded once per user and cannot be deleted.
type Category struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	IsDefault bool      `json:"isDefault"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultCategoryName is the fallback category label for new merchants.
const DefaultCategoryName = "Other"

// DefaultCategories returns the categories seeded for every new user.
// The slice is freshly allocated on each call.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Dining", Icon: "🍽️", Color: "#FF9800", IsDefault: true},
		{Name: "Transport", Icon: "🚗", Color: "#2196F3", IsDefault: true},
		{Name: "Shopping", Icon: "🛍️", Color: "#E91E63", IsDefault: true},
		{Name: "Entertainment", Icon: "🎮", Color: "#9C27B0", IsDefault: true},
		{Name: "Healthcare", Icon: "🏥", Color: "#F44336", IsDefault: true},
		{Name: "Education", Icon: "📚", Color: "#3F51B5", IsDefault: true},
		{Name: "Housing", Icon: "🏠", Color: "#795548", IsDefault: true},
		{Name: "Salary", Icon: "💰", Color: "#4CAF50", IsDefault: true},
		{Name: "Bonus", Icon: "🎁", Color: "#8BC34A", IsDefault: true},
		{Name: "Investment", Icon: "📈", Color: "#CDDC39", IsDefault: true},
		{Name: "Side Job", Icon: "💼", Color: "#FFC107", IsDefault: true},
		{Name: "Transfer", Icon: "💸", Color: "#00BCD4", IsDefault: true},
		{Name: "Gifts", Icon: "🎀", Color: "#FF5722", IsDefault: true},
		{Name: DefaultCategoryName, Icon: "📦", Color: "#607D8B", IsDefault: true},
	}
}
