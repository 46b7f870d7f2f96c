package service

import (
	"context"
	"fmt"
	"time"

	"bookstore-service/internal/models"
	"bookstore-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the storage contract of the order lifecycle manager.
// Implemented by store.Store.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.PurchaseOrder, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.PurchaseOrder, error)
	GetAllOrders(ctx context.Context) ([]models.PurchaseOrder, error)
	GetOrderStatus(ctx context.Context, orderID int64) (string, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	CancelOrder(ctx context.Context, orderID int64) (*models.PurchaseOrder, error)
	GetPurchasedAggregates(ctx context.Context, userID int64) ([]models.PurchasedBook, error)
	CountApprovedByUserAndISBN(ctx context.Context, userID int64, isbn string) (int, error)
}

// OrderService drives order status transitions and order reads.
type OrderService struct {
	store     OrderStore
	publisher Publisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, publisher Publisher) *OrderService {
	return &OrderService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// GetOrder retrieves one order with its line items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.PurchaseOrder, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// ListByUser retrieves a user's orders
func (s *OrderService) ListByUser(ctx context.Context, userID int64) ([]models.PurchaseOrder, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

// ListAll retrieves every order
func (s *OrderService) ListAll(ctx context.Context) ([]models.PurchaseOrder, error) {
	return s.store.GetAllOrders(ctx)
}

// UpdateStatus writes a new order status. Admin callers are trusted to
// move orders freely, with one exception: a Completed order can never
// become Cancelled. Stock restoration only happens through Cancel.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !models.ValidOrderStatus(status) {
		return fmt.Errorf("unknown order status %q: %w", status, models.ErrValidation)
	}

	current, err := s.store.GetOrderStatus(ctx, orderID)
	if err != nil {
		return err
	}

	if status == models.OrderStatusCancelled && current == models.OrderStatusCompleted {
		return fmt.Errorf("order %d is completed: %w", orderID, models.ErrInvalidTransition)
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return err
	}

	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("old_status", current),
		zap.String("new_status", status))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:   orderID,
		OldStatus: current,
		NewStatus: status,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	return nil
}

// Cancel cancels an order and restores its stock in one atomic unit.
// Fails without mutation when the order is already Cancelled or
// Completed.
func (s *OrderService) Cancel(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	order, err := s.store.CancelOrder(ctx, orderID)
	if err != nil {
		return err
	}

	util.OrdersCancelledTotal.Inc()
	restored := 0
	for _, line := range order.LineItems {
		restored += line.Quantity
	}
	util.StockRestoredTotal.Add(float64(restored))

	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.Int("copies_restored", restored))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		Lines:   lineData(order.LineItems),
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return nil
}

// PurchasedBooks lists the books a user bought and can still sell back:
// non-cancelled order quantities per book, minus the user's approved
// submissions for that ISBN, floored at zero.
func (s *OrderService) PurchasedBooks(ctx context.Context, userID int64) ([]models.PurchasedBook, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PurchasedBooks")
	defer span.End()

	books, err := s.store.GetPurchasedAggregates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate purchases: %w", err)
	}

	for i := range books {
		if books[i].ISBN == "" {
			continue
		}
		sold, err := s.store.CountApprovedByUserAndISBN(ctx, userID, books[i].ISBN)
		if err != nil {
			return nil, fmt.Errorf("failed to count approved submissions for isbn %s: %w", books[i].ISBN, err)
		}
		books[i].Quantity -= sold
		if books[i].Quantity < 0 {
			books[i].Quantity = 0
		}
	}

	return books, nil
}
