package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeSubmissionReceived = "SUBMISSION_RECEIVED"
	EventTypeSubmissionApproved = "SUBMISSION_APPROVED"
	EventTypeSubmissionRejected = "SUBMISSION_REJECTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData represents line data carried in order events
type OrderLineData struct {
	BookID    int64           `json:"book_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPlacedEvent published after a checkout commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	UserID  int64           `json:"user_id"`
	Total   decimal.Decimal `json:"total"`
	Lines   []OrderLineData `json:"lines"`
}

// OrderCancelledEvent published after a cancellation commits, with the
// stock quantities that were restored
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	UserID  int64           `json:"user_id"`
	Lines   []OrderLineData `json:"lines"`
}

// OrderStatusChangedEvent published on admin status edits
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// SubmissionReviewedEvent published when a sell submission is approved
// or rejected
type SubmissionReviewedEvent struct {
	BaseEvent
	SubmissionID int64  `json:"submission_id"`
	UserID       int64  `json:"user_id"`
	ISBN         string `json:"isbn"`
	Outcome      string `json:"outcome"`
	// BookID is set on approval: the book whose stock was incremented,
	// or the newly created record.
	BookID int64 `json:"book_id,omitempty"`
}
