package domain

import (
	"strings"
	"time"
)

// ============================================================
// Transactions
// ============================================================

// TransactionType is either income or expense.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// DisplayName is the label shown to users.
func (t TransactionType) DisplayName() string {
	switch t {
	case TransactionIncome:
		return "Income"
	case TransactionExpense:
		return "Expense"
	}
	return string(t)
}

// Color is the hex color used for charts and tags.
func (t TransactionType) Color() string {
	switch t {
	case TransactionIncome:
		return "#4CAF50"
	case TransactionExpense:
		return "#F44336"
	}
	return "#9E9E9E"
}

// Transaction is a single income or expense owned by a user.
type Transaction struct {
	ID           string          `json:"id,omitempty"`
	UserID       string          `json:"userId"`
	Amount       float64         `json:"amount"`
	Type         TransactionType `json:"type"`
	CategoryID   string          `json:"categoryId"`
	CategoryName string          `json:"categoryName,omitempty"`
	MerchantID   string          `json:"merchantId,omitempty"`
	MerchantName string          `json:"merchantName,omitempty"`
	Description  string          `json:"description,omitempty"`
	Date         time.Time       `json:"date"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// TransactionInput carries the user-editable fields of a transaction.
// MerchantID is set when the user picked an existing merchant; otherwise
// MerchantName is resolved against the user's merchants.
type TransactionInput struct {
	Amount       float64         `json:"amount"`
	Type         TransactionType `json:"type"`
	CategoryID   string          `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
	MerchantID   string          `json:"merchantId,omitempty"`
	MerchantName string          `json:"merchantName,omitempty"`
	Description  string          `json:"description,omitempty"`
	Date         time.Time       `json:"date"`
}

// Validate checks the input preconditions.
func (in *TransactionInput) Validate() error {
	if in.Amount <= 0 {
		return &ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if !in.Type.Valid() {
		return &ErrValidation{Field: "type", Message: "must be income or expense"}
	}
	if strings.TrimSpace(in.CategoryID) == "" {
		return &ErrValidation{Field: "categoryId", Message: "required"}
	}
	if in.Date.IsZero() {
		return &ErrValidation{Field: "date", Message: "required"}
	}
	return nil
}

// HasMerchant reports whether the input references a merchant at all.
func (in *TransactionInput) HasMerchant() bool {
	return in.MerchantID != "" || strings.TrimSpace(in.MerchantName) != ""
}

// TransactionResult is returned by the save flow. MerchantError is set when the
// transaction was persisted but the merchant aggregate could not be updated.
type TransactionResult struct {
	Transaction   *Transaction `json:"transaction"`
	Merchant      *Merchant    `json:"merchant,omitempty"`
	MerchantError string       `json:"merchantError,omitempty"`
}
