// Package cart holds session-scoped shopping carts. Carts are ephemeral
// key-value state keyed by session id; they carry no persistence
// guarantee across process restarts.
package cart

import (
	"context"
	"sort"
	"sync"

	"bookstore-service/internal/models"
)

// Store is the session cart contract consumed by the checkout engine
// and the cart API.
type Store interface {
	// Items returns the cart's lines in stable book-id order.
	Items(ctx context.Context, sessionID string) ([]models.CartItem, error)
	// Add increments the quantity for a book, creating the line if absent.
	Add(ctx context.Context, sessionID string, bookID int64, quantity int) error
	// Set replaces the quantity for a book; quantity <= 0 removes the line.
	Set(ctx context.Context, sessionID string, bookID int64, quantity int) error
	// Remove deletes one line.
	Remove(ctx context.Context, sessionID string, bookID int64) error
	// Clear empties the cart.
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore is a mutex-guarded in-process cart store. Used in tests
// and as a fallback when Redis is not configured.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]map[int64]int
}

// NewMemoryStore creates an empty in-memory cart store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]map[int64]int)}
}

func (m *MemoryStore) Items(_ context.Context, sessionID string) ([]models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart := m.carts[sessionID]
	items := make([]models.CartItem, 0, len(cart))
	for bookID, qty := range cart {
		items = append(items, models.CartItem{BookID: bookID, Quantity: qty})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].BookID < items[j].BookID })
	return items, nil
}

func (m *MemoryStore) Add(_ context.Context, sessionID string, bookID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart := m.carts[sessionID]
	if cart == nil {
		cart = make(map[int64]int)
		m.carts[sessionID] = cart
	}
	cart[bookID] += quantity
	return nil
}

func (m *MemoryStore) Set(_ context.Context, sessionID string, bookID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart := m.carts[sessionID]
	if quantity <= 0 {
		delete(cart, bookID)
		return nil
	}
	if cart == nil {
		cart = make(map[int64]int)
		m.carts[sessionID] = cart
	}
	cart[bookID] = quantity
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, sessionID string, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.carts[sessionID], bookID)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.carts, sessionID)
	return nil
}
