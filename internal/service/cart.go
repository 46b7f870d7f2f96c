package service

import (
	"context"
	"errors"
	"fmt"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
	"bookstore-service/internal/util"

	"github.com/shopspring/decimal"
)

// CartCatalog is the catalog read used when validating and pricing cart
// lines. Implemented by store.Store.
type CartCatalog interface {
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
}

// CartLine is one priced cart row returned to the frontend.
type CartLine struct {
	BookID         int64           `json:"bookID"`
	Title          string          `json:"title"`
	Author         string          `json:"author,omitempty"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Quantity       int             `json:"quantity"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
	AvailableStock int             `json:"availableStock"`
}

// CartResponse is the priced view of a session cart.
type CartResponse struct {
	Items    []CartLine      `json:"items"`
	SubTotal decimal.Decimal `json:"subTotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// CartService manages session carts: lines are validated against the
// catalog on every mutation, and the priced view re-reads current
// prices and stock so the display never trusts a stale snapshot.
type CartService struct {
	carts   cart.Store
	catalog CartCatalog
	taxRate decimal.Decimal
}

// NewCartService creates a new cart service
func NewCartService(carts cart.Store, catalog CartCatalog, taxRate string) (*CartService, error) {
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return nil, fmt.Errorf("invalid tax rate %q: %w", taxRate, err)
	}

	return &CartService{
		carts:   carts,
		catalog: catalog,
		taxRate: rate,
	}, nil
}

// Get returns the priced cart. Lines whose book disappeared or whose
// quantity exceeds current stock are omitted from the view; checkout
// re-validates regardless.
func (s *CartService) Get(ctx context.Context, sessionID string) (*CartResponse, error) {
	items, err := s.carts.Items(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	resp := &CartResponse{
		Items:    make([]CartLine, 0, len(items)),
		SubTotal: decimal.Zero,
	}

	for _, item := range items {
		book, err := s.catalog.GetBookByID(ctx, item.BookID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load book %d: %w", item.BookID, err)
		}
		if book.StockQuantity < item.Quantity {
			continue
		}

		lineTotal := book.SellingPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		resp.Items = append(resp.Items, CartLine{
			BookID:         book.ID,
			Title:          book.Title,
			Author:         book.Author,
			UnitPrice:      book.SellingPrice,
			Quantity:       item.Quantity,
			LineTotal:      lineTotal,
			AvailableStock: book.StockQuantity,
		})
		resp.SubTotal = resp.SubTotal.Add(lineTotal)
	}

	resp.Tax = resp.SubTotal.Mul(s.taxRate).Round(2)
	resp.Total = resp.SubTotal.Add(resp.Tax)
	return resp, nil
}

// AddItem adds quantity copies of a book, merging with any existing
// line. The combined quantity may not exceed current stock and the book
// must be available.
func (s *CartService) AddItem(ctx context.Context, sessionID string, bookID int64, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1: %w", models.ErrValidation)
	}

	book, err := s.catalog.GetBookByID(ctx, bookID)
	if err != nil {
		return err
	}
	if book.Status != models.BookStatusAvailable {
		return fmt.Errorf("book %d is not available: %w", bookID, models.ErrValidation)
	}

	items, err := s.carts.Items(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load cart: %w", err)
	}
	existing := 0
	for _, item := range items {
		if item.BookID == bookID {
			existing = item.Quantity
			break
		}
	}

	if existing+quantity > book.StockQuantity {
		return &models.InsufficientStockError{BookID: bookID}
	}

	if err := s.carts.Add(ctx, sessionID, bookID, quantity); err != nil {
		return fmt.Errorf("failed to add to cart: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("add").Inc()
	return nil
}

// UpdateItem replaces a line's quantity; zero or negative removes it.
func (s *CartService) UpdateItem(ctx context.Context, sessionID string, bookID int64, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, sessionID, bookID)
	}

	book, err := s.catalog.GetBookByID(ctx, bookID)
	if err != nil {
		return err
	}
	if quantity > book.StockQuantity {
		return &models.InsufficientStockError{BookID: bookID}
	}

	if err := s.carts.Set(ctx, sessionID, bookID, quantity); err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("update").Inc()
	return nil
}

// RemoveItem deletes one line from the cart
func (s *CartService) RemoveItem(ctx context.Context, sessionID string, bookID int64) error {
	if err := s.carts.Remove(ctx, sessionID, bookID); err != nil {
		return fmt.Errorf("failed to remove from cart: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("remove").Inc()
	return nil
}

// Clear empties the session cart
func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	if err := s.carts.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	return nil
}
