package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book represents one catalog record. Multiple copies and editions may
// share an ISBN, so ISBN is not unique.
type Book struct {
	ID              int64           `db:"book_id" json:"bookID"`
	ISBN            string          `db:"isbn" json:"isbn"`
	Title           string          `db:"title" json:"title"`
	Author          string          `db:"author" json:"author"`
	Edition         string          `db:"edition" json:"edition,omitempty"`
	Condition       string          `db:"condition" json:"condition"`
	AcquisitionCost decimal.Decimal `db:"acquisition_cost" json:"acquisitionCost"`
	SellingPrice    decimal.Decimal `db:"selling_price" json:"sellingPrice"`
	StockQuantity   int             `db:"stock_quantity" json:"stockQuantity"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// Book statuses
const (
	BookStatusAvailable   = "Available"
	BookStatusUnavailable = "Unavailable"
)

// Book conditions
const (
	ConditionNew  = "New"
	ConditionGood = "Good"
	ConditionFair = "Fair"
	ConditionPoor = "Poor"
)

// CartItem is one pending selection in a session cart.
type CartItem struct {
	BookID   int64 `json:"bookID"`
	Quantity int   `json:"quantity"`
}

// PurchaseOrder is a persisted multi-line order. It is created together
// with its line items in one transaction and is never visible with zero
// line items.
type PurchaseOrder struct {
	ID        int64           `db:"poid" json:"poid"`
	UserID    int64           `db:"user_id" json:"userID"`
	Status    string          `db:"status" json:"status"`
	SubTotal  decimal.Decimal `db:"sub_total" json:"subTotal"`
	Tax       decimal.Decimal `db:"tax" json:"tax"`
	Total     decimal.Decimal `db:"total" json:"total"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
	LineItems []OrderLineItem `db:"-" json:"lineItems,omitempty"`
}

// OrderLineItem is immutable after creation. UnitPrice snapshots the
// selling price at purchase time.
type OrderLineItem struct {
	ID         int64           `db:"line_item_id" json:"lineItemID"`
	OrderID    int64           `db:"poid" json:"-"`
	LineNumber int             `db:"line_number" json:"lineNumber"`
	BookID     int64           `db:"book_id" json:"bookID"`
	Quantity   int             `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unitPrice"`
	LineTotal  decimal.Decimal `db:"line_total" json:"lineTotal"`

	// Joined book fields for display, populated on read.
	BookTitle     string `db:"book_title" json:"bookTitle"`
	Author        string `db:"author" json:"author,omitempty"`
	ISBN          string `db:"isbn" json:"isbn,omitempty"`
	Edition       string `db:"edition" json:"edition,omitempty"`
	BookCondition string `db:"book_condition" json:"condition,omitempty"`
}

// Order statuses
const (
	OrderStatusNew        = "New"
	OrderStatusProcessing = "Processing"
	OrderStatusShipped    = "Shipped"
	OrderStatusCompleted  = "Completed"
	OrderStatusCancelled  = "Cancelled"
)

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusNew, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// SellSubmission is a customer's offer to resell one copy of a book.
// Once reviewed, only Status and ReviewedAt ever changed.
type SellSubmission struct {
	ID          int64           `db:"submission_id" json:"submissionID"`
	UserID      int64           `db:"user_id" json:"userID"`
	Title       string          `db:"title" json:"title"`
	Author      string          `db:"author" json:"author"`
	ISBN        string          `db:"isbn" json:"isbn"`
	Edition     string          `db:"edition" json:"edition,omitempty"`
	Condition   string          `db:"condition" json:"condition"`
	AskingPrice decimal.Decimal `db:"asking_price" json:"askingPrice"`
	Status      string          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	ReviewedAt  *time.Time      `db:"reviewed_at" json:"reviewedAt,omitempty"`
}

// Submission statuses
const (
	SubmissionStatusPending  = "Pending"
	SubmissionStatusApproved = "Approved"
	SubmissionStatusRejected = "Rejected"
)

// PurchasedBook aggregates a user's non-cancelled order lines for one
// book, minus copies already sold back through approved submissions.
type PurchasedBook struct {
	BookID       int64     `json:"bookID"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	ISBN         string    `json:"isbn"`
	Edition      string    `json:"edition,omitempty"`
	Condition    string    `json:"condition"`
	Quantity     int       `json:"quantity"`
	PurchaseDate time.Time `json:"purchaseDate"`
	OrderID      int64     `json:"orderID"`
}

// ProcessedEvent records consumed event ids for idempotent workers.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
