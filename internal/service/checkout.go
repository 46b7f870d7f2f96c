package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
	"bookstore-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Publisher publishes domain events after a state change commits.
// Satisfied by broker.EventPublisher.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishSubmissionReviewed(ctx context.Context, event *models.SubmissionReviewedEvent) error
}

// CheckoutStore is the storage contract of the checkout engine.
// Implemented by store.Store.
type CheckoutStore interface {
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
	CreateOrder(ctx context.Context, order *models.PurchaseOrder, lines []models.OrderLineItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.PurchaseOrder, error)
}

// CheckoutService converts a session cart into a persisted order while
// decrementing stock, all-or-nothing.
type CheckoutService struct {
	store     CheckoutStore
	carts     cart.Store
	publisher Publisher
	taxRate   decimal.Decimal
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. taxRate is the
// decimal fraction applied once to the subtotal, e.g. "0.08".
func NewCheckoutService(store CheckoutStore, carts cart.Store, publisher Publisher, taxRate string) (*CheckoutService, error) {
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return nil, fmt.Errorf("invalid tax rate %q: %w", taxRate, err)
	}

	return &CheckoutService{
		store:     store,
		carts:     carts,
		publisher: publisher,
		taxRate:   rate,
		logger:    util.GetLogger(),
	}, nil
}

// Checkout validates the session cart against current stock, writes the
// order, line items and stock decrements in one transaction, clears the
// cart and returns the order with book details joined in. Any failure
// before the commit leaves no order, no stock change and an untouched
// cart, so the caller may retry the identical request.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64, sessionID string) (*models.PurchaseOrder, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	items, err := s.carts.Items(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(items) == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, models.ErrEmptyCart
	}

	// Read-only validation pass over current stock, not the quantities
	// the cart UI last saw. The same check is repeated inside the
	// transaction under row locks.
	lines := make([]models.OrderLineItem, 0, len(items))
	subTotal := decimal.Zero
	for _, item := range items {
		book, err := s.store.GetBookByID(ctx, item.BookID)
		if errors.Is(err, models.ErrNotFound) {
			util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, &models.InsufficientStockError{BookID: item.BookID}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load book %d: %w", item.BookID, err)
		}
		if book.StockQuantity < item.Quantity {
			util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, &models.InsufficientStockError{BookID: item.BookID}
		}

		lineTotal := book.SellingPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		lines = append(lines, models.OrderLineItem{
			BookID:    item.BookID,
			Quantity:  item.Quantity,
			UnitPrice: book.SellingPrice,
			LineTotal: lineTotal,
		})
		subTotal = subTotal.Add(lineTotal)
	}

	// Tax is rounded once on the subtotal, never per line.
	tax := subTotal.Mul(s.taxRate).Round(2)
	order := &models.PurchaseOrder{
		UserID:   userID,
		Status:   models.OrderStatusNew,
		SubTotal: subTotal,
		Tax:      tax,
		Total:    subTotal.Add(tax),
	}

	start := time.Now()
	err = s.store.CreateOrder(ctx, order, lines)
	util.CheckoutLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		var stockErr *models.InsufficientStockError
		if errors.As(err, &stockErr) {
			util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, err
		}
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("checkout transaction failed: %w", err)
	}

	util.CheckoutsTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int("lines", len(order.LineItems)),
		zap.String("total", order.Total.String()))

	if err := s.carts.Clear(ctx, sessionID); err != nil {
		// The order is committed; a stale cart is recoverable.
		s.logger.Warn("Failed to clear cart after checkout",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  userID,
		Total:   order.Total,
		Lines:   lineData(order.LineItems),
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}

	full, err := s.store.GetOrderByID(ctx, order.ID)
	if err != nil {
		// Committed but not reloadable; return what we have rather than
		// reporting a failure for an order that exists.
		s.logger.Error("Failed to reload order after checkout",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return order, nil
	}
	return full, nil
}

func lineData(lines []models.OrderLineItem) []models.OrderLineData {
	data := make([]models.OrderLineData, 0, len(lines))
	for _, line := range lines {
		data = append(data, models.OrderLineData{
			BookID:    line.BookID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return data
}
