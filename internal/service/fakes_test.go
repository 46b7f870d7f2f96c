package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookstore-service/internal/models"

	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory stand-in for store.Store with the same
// atomicity guarantees, guarded by one mutex so concurrent checkout
// tests exercise the check-and-decrement race.
type fakeStore struct {
	mu sync.Mutex

	books  map[int64]*models.Book
	orders map[int64]*models.PurchaseOrder
	subs   map[int64]*models.SellSubmission

	nextBookID  int64
	nextOrderID int64
	nextLineID  int64
	nextSubID   int64

	failCreateOrder error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books:  make(map[int64]*models.Book),
		orders: make(map[int64]*models.PurchaseOrder),
		subs:   make(map[int64]*models.SellSubmission),
	}
}

func (f *fakeStore) addBook(b models.Book) *models.Book {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextBookID++
	b.ID = f.nextBookID
	b.CreatedAt = time.Now()
	f.books[b.ID] = &b
	return &b
}

func (f *fakeStore) stockOf(bookID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.books[bookID].StockQuantity
}

func (f *fakeStore) GetBookByID(_ context.Context, id int64) (*models.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	book, ok := f.books[id]
	if !ok {
		return nil, fmt.Errorf("book %d: %w", id, models.ErrNotFound)
	}
	copied := *book
	return &copied, nil
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.PurchaseOrder, lines []models.OrderLineItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreateOrder != nil {
		return f.failCreateOrder
	}

	for _, line := range lines {
		book, ok := f.books[line.BookID]
		if !ok || book.StockQuantity < line.Quantity {
			return &models.InsufficientStockError{BookID: line.BookID}
		}
	}

	f.nextOrderID++
	order.ID = f.nextOrderID
	order.UpdatedAt = time.Now()

	for i := range lines {
		f.nextLineID++
		lines[i].ID = f.nextLineID
		lines[i].OrderID = order.ID
		lines[i].LineNumber = i + 1
		f.books[lines[i].BookID].StockQuantity -= lines[i].Quantity
	}

	order.LineItems = lines
	stored := *order
	stored.LineItems = append([]models.OrderLineItem(nil), lines...)
	f.orders[order.ID] = &stored
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id int64) (*models.PurchaseOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderLocked(id)
}

func (f *fakeStore) orderLocked(id int64) (*models.PurchaseOrder, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}

	copied := *order
	copied.LineItems = append([]models.OrderLineItem(nil), order.LineItems...)
	for i := range copied.LineItems {
		if book, ok := f.books[copied.LineItems[i].BookID]; ok {
			copied.LineItems[i].BookTitle = book.Title
			copied.LineItems[i].Author = book.Author
			copied.LineItems[i].ISBN = book.ISBN
			copied.LineItems[i].Edition = book.Edition
			copied.LineItems[i].BookCondition = book.Condition
		}
	}
	return &copied, nil
}

func (f *fakeStore) GetOrdersByUserID(_ context.Context, userID int64) ([]models.PurchaseOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var orders []models.PurchaseOrder
	for id, order := range f.orders {
		if order.UserID == userID {
			copied, _ := f.orderLocked(id)
			orders = append(orders, *copied)
		}
	}
	return orders, nil
}

func (f *fakeStore) GetAllOrders(_ context.Context) ([]models.PurchaseOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var orders []models.PurchaseOrder
	for id := range f.orders {
		copied, _ := f.orderLocked(id)
		orders = append(orders, *copied)
	}
	return orders, nil
}

func (f *fakeStore) GetOrderStatus(_ context.Context, orderID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return "", fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	return order.Status, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) CancelOrder(_ context.Context, orderID int64) (*models.PurchaseOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusCompleted {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, models.ErrCannotCancel)
	}

	for _, line := range order.LineItems {
		f.books[line.BookID].StockQuantity += line.Quantity
	}
	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = time.Now()

	copied, _ := f.orderLocked(orderID)
	return copied, nil
}

func (f *fakeStore) GetPurchasedAggregates(_ context.Context, userID int64) ([]models.PurchasedBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	byBook := make(map[int64]*models.PurchasedBook)
	for _, order := range f.orders {
		if order.UserID != userID || order.Status == models.OrderStatusCancelled {
			continue
		}
		for _, line := range order.LineItems {
			agg, ok := byBook[line.BookID]
			if !ok {
				book := f.books[line.BookID]
				agg = &models.PurchasedBook{
					BookID:       line.BookID,
					Title:        book.Title,
					Author:       book.Author,
					ISBN:         book.ISBN,
					Edition:      book.Edition,
					Condition:    book.Condition,
					PurchaseDate: order.UpdatedAt,
					OrderID:      order.ID,
				}
				byBook[line.BookID] = agg
			}
			agg.Quantity += line.Quantity
		}
	}

	out := make([]models.PurchasedBook, 0, len(byBook))
	for _, agg := range byBook {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}

func (f *fakeStore) CountApprovedByUserAndISBN(_ context.Context, userID int64, isbn string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, sub := range f.subs {
		if sub.UserID == userID && sub.ISBN == isbn && sub.Status == models.SubmissionStatusApproved {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateSubmission(_ context.Context, sub *models.SellSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextSubID++
	sub.ID = f.nextSubID
	sub.CreatedAt = time.Now()
	stored := *sub
	f.subs[sub.ID] = &stored
	return nil
}

func (f *fakeStore) GetSubmissionsByUserID(_ context.Context, userID int64) ([]models.SellSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var subs []models.SellSubmission
	for _, sub := range f.subs {
		if sub.UserID == userID {
			subs = append(subs, *sub)
		}
	}
	return subs, nil
}

func (f *fakeStore) GetAllSubmissions(_ context.Context) ([]models.SellSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var subs []models.SellSubmission
	for _, sub := range f.subs {
		subs = append(subs, *sub)
	}
	return subs, nil
}

func (f *fakeStore) ApproveSubmission(_ context.Context, id int64, costRate decimal.Decimal) (*models.SellSubmission, *models.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subs[id]
	if !ok {
		return nil, nil, fmt.Errorf("submission %d: %w", id, models.ErrNotFound)
	}
	if sub.Status != models.SubmissionStatusPending {
		return nil, nil, fmt.Errorf("submission %d is %s: %w", id, sub.Status, models.ErrAlreadyProcessed)
	}

	var book *models.Book
	for _, b := range f.books {
		if b.ISBN == sub.ISBN && (book == nil || b.ID < book.ID) {
			book = b
		}
	}
	if book != nil {
		book.StockQuantity++
	} else {
		f.nextBookID++
		book = &models.Book{
			ID:              f.nextBookID,
			ISBN:            sub.ISBN,
			Title:           sub.Title,
			Author:          sub.Author,
			Edition:         sub.Edition,
			Condition:       sub.Condition,
			AcquisitionCost: sub.AskingPrice.Mul(costRate).Round(2),
			SellingPrice:    sub.AskingPrice,
			StockQuantity:   1,
			Status:          models.BookStatusAvailable,
			CreatedAt:       time.Now(),
		}
		f.books[book.ID] = book
	}

	now := time.Now()
	sub.Status = models.SubmissionStatusApproved
	sub.ReviewedAt = &now

	subCopy := *sub
	bookCopy := *book
	return &subCopy, &bookCopy, nil
}

func (f *fakeStore) RejectSubmission(_ context.Context, id int64) (*models.SellSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("submission %d: %w", id, models.ErrNotFound)
	}
	if sub.Status != models.SubmissionStatusPending {
		return nil, fmt.Errorf("submission %d is %s: %w", id, sub.Status, models.ErrAlreadyProcessed)
	}

	now := time.Now()
	sub.Status = models.SubmissionStatusRejected
	sub.ReviewedAt = &now

	subCopy := *sub
	return &subCopy, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	placed []*models.OrderPlacedEvent
	cancel []*models.OrderCancelledEvent
	status []*models.OrderStatusChangedEvent
	review []*models.SubmissionReviewedEvent
}

func (p *fakePublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, e)
	return nil
}

func (p *fakePublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel = append(p.cancel, e)
	return nil
}

func (p *fakePublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = append(p.status, e)
	return nil
}

func (p *fakePublisher) PublishSubmissionReviewed(_ context.Context, e *models.SubmissionReviewedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.review = append(p.review, e)
	return nil
}
