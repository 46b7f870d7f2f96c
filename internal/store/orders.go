package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bookstore-service/internal/models"
)

// lineItemSelect joins line items with their book's display fields.
const lineItemSelect = `
	SELECT li.line_item_id, li.poid, li.line_number, li.book_id,
	       li.quantity, li.unit_price, li.line_total,
	       b.title AS book_title, b.author, b.isbn, b.edition,
	       b.condition AS book_condition
	FROM order_line_items li
	JOIN books b ON b.book_id = li.book_id`

// CreateOrder persists an order, its line items and the matching stock
// decrements as one transaction. The conditional UPDATE re-checks stock
// under the row lock, so a concurrent checkout that drained a book
// aborts this one with InsufficientStockError even though the earlier
// read-only validation pass saw enough copies. On any error nothing is
// visible: no header, no lines, no stock change.
func (s *Store) CreateOrder(ctx context.Context, order *models.PurchaseOrder, lines []models.OrderLineItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkout transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, order, `
		INSERT INTO purchase_orders (user_id, status, sub_total, tax, total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING poid, updated_at`,
		order.UserID, order.Status, order.SubTotal, order.Tax, order.Total)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range lines {
		line := &lines[i]
		line.OrderID = order.ID
		line.LineNumber = i + 1

		err = tx.GetContext(ctx, &line.ID, `
			INSERT INTO order_line_items (poid, line_number, book_id, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING line_item_id`,
			line.OrderID, line.LineNumber, line.BookID, line.Quantity, line.UnitPrice, line.LineTotal)
		if err != nil {
			return fmt.Errorf("failed to insert line item for book %d: %w", line.BookID, err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE books SET stock_quantity = stock_quantity - $1
			WHERE book_id = $2 AND stock_quantity >= $1`,
			line.Quantity, line.BookID)
		if err != nil {
			return fmt.Errorf("failed to decrement stock for book %d: %w", line.BookID, err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return &models.InsufficientStockError{BookID: line.BookID}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkout: %w", err)
	}

	order.LineItems = lines
	return nil
}

// GetOrderByID retrieves an order together with its line items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM purchase_orders WHERE poid = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &order.LineItems,
		lineItemSelect+" WHERE li.poid = $1 ORDER BY li.line_number", id); err != nil {
		return nil, fmt.Errorf("failed to load line items for order %d: %w", id, err)
	}

	return &order, nil
}

// GetOrdersByUserID retrieves a user's orders, newest first. A line-item
// load failure fails the whole listing rather than returning a
// zero-line-item placeholder.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.PurchaseOrder, error) {
	var orders []models.PurchaseOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM purchase_orders WHERE user_id = $1 ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, err
	}
	return s.attachLineItems(ctx, orders)
}

// GetAllOrders retrieves every order, newest first
func (s *Store) GetAllOrders(ctx context.Context) ([]models.PurchaseOrder, error) {
	var orders []models.PurchaseOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM purchase_orders ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	return s.attachLineItems(ctx, orders)
}

func (s *Store) attachLineItems(ctx context.Context, orders []models.PurchaseOrder) ([]models.PurchaseOrder, error) {
	for i := range orders {
		if err := s.db.SelectContext(ctx, &orders[i].LineItems,
			lineItemSelect+" WHERE li.poid = $1 ORDER BY li.line_number", orders[i].ID); err != nil {
			return nil, fmt.Errorf("failed to load line items for order %d: %w", orders[i].ID, err)
		}
	}
	return orders, nil
}

// UpdateOrderStatus writes a new status and refreshes updated_at
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE purchase_orders SET status = $1, updated_at = NOW() WHERE poid = $2",
		status, orderID)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	return nil
}

// GetOrderStatus reads the current status of an order
func (s *Store) GetOrderStatus(ctx context.Context, orderID int64) (string, error) {
	var status string
	err := s.db.GetContext(ctx, &status,
		"SELECT status FROM purchase_orders WHERE poid = $1", orderID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	return status, err
}

// CancelOrder cancels an order and restores stock for every line item in
// one transaction. The order row is locked first, so the status guard
// and the restore cannot interleave with a concurrent cancel or status
// edit. Returns the order's line items for event publication.
func (s *Store) CancelOrder(ctx context.Context, orderID int64) (*models.PurchaseOrder, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin cancel transaction: %w", err)
	}
	defer tx.Rollback()

	var order models.PurchaseOrder
	err = tx.GetContext(ctx, &order,
		"SELECT * FROM purchase_orders WHERE poid = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusCompleted {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, models.ErrCannotCancel)
	}

	if err := tx.SelectContext(ctx, &order.LineItems,
		"SELECT * FROM order_line_items WHERE poid = $1 ORDER BY line_number", orderID); err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}

	for _, line := range order.LineItems {
		if _, err := tx.ExecContext(ctx,
			"UPDATE books SET stock_quantity = stock_quantity + $1 WHERE book_id = $2",
			line.Quantity, line.BookID); err != nil {
			return nil, fmt.Errorf("failed to restore stock for book %d: %w", line.BookID, err)
		}
	}

	err = tx.GetContext(ctx, &order.UpdatedAt, `
		UPDATE purchase_orders SET status = $1, updated_at = NOW()
		WHERE poid = $2
		RETURNING updated_at`,
		models.OrderStatusCancelled, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancel: %w", err)
	}

	order.Status = models.OrderStatusCancelled
	return &order, nil
}

// GetPurchasedAggregates sums a user's non-cancelled order lines per
// book for the sellback eligibility read.
func (s *Store) GetPurchasedAggregates(ctx context.Context, userID int64) ([]models.PurchasedBook, error) {
	var rows []purchasedRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT li.book_id, b.title, b.author, b.isbn, b.edition, b.condition,
		       SUM(li.quantity) AS quantity,
		       MIN(o.updated_at) AS purchase_date,
		       MIN(o.poid) AS order_id
		FROM order_line_items li
		JOIN purchase_orders o ON o.poid = li.poid
		JOIN books b ON b.book_id = li.book_id
		WHERE o.user_id = $1 AND o.status <> $2
		GROUP BY li.book_id, b.title, b.author, b.isbn, b.edition, b.condition
		ORDER BY li.book_id`,
		userID, models.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}

	books := make([]models.PurchasedBook, 0, len(rows))
	for _, r := range rows {
		books = append(books, models.PurchasedBook(r))
	}
	return books, nil
}

type purchasedRow struct {
	BookID       int64     `db:"book_id"`
	Title        string    `db:"title"`
	Author       string    `db:"author"`
	ISBN         string    `db:"isbn"`
	Edition      string    `db:"edition"`
	Condition    string    `db:"condition"`
	Quantity     int       `db:"quantity"`
	PurchaseDate time.Time `db:"purchase_date"`
	OrderID      int64     `db:"order_id"`
}
