package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookstore-service/internal/cart"
	"bookstore-service/internal/models"
	"bookstore-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubStore satisfies the service store interfaces with per-test
// function fields. Unset fields report the entity as missing.
type stubStore struct {
	getBookByID   func(id int64) (*models.Book, error)
	createOrder   func(order *models.PurchaseOrder, lines []models.OrderLineItem) error
	getOrderByID  func(id int64) (*models.PurchaseOrder, error)
	cancelOrder   func(id int64) (*models.PurchaseOrder, error)
	getStatus     func(id int64) (string, error)
	updateStatus  func(id int64, status string) error
	createSub     func(sub *models.SellSubmission) error
	approveSub    func(id int64) (*models.SellSubmission, *models.Book, error)
	rejectSub     func(id int64) (*models.SellSubmission, error)
	purchased     func(userID int64) ([]models.PurchasedBook, error)
	countApproved func(userID int64, isbn string) (int, error)
}

func (s *stubStore) GetBookByID(_ context.Context, id int64) (*models.Book, error) {
	if s.getBookByID == nil {
		return nil, fmt.Errorf("book %d: %w", id, models.ErrNotFound)
	}
	return s.getBookByID(id)
}

func (s *stubStore) CreateOrder(_ context.Context, order *models.PurchaseOrder, lines []models.OrderLineItem) error {
	if s.createOrder == nil {
		return fmt.Errorf("unexpected CreateOrder call")
	}
	return s.createOrder(order, lines)
}

func (s *stubStore) GetOrderByID(_ context.Context, id int64) (*models.PurchaseOrder, error) {
	if s.getOrderByID == nil {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	return s.getOrderByID(id)
}

func (s *stubStore) GetOrdersByUserID(_ context.Context, _ int64) ([]models.PurchaseOrder, error) {
	return nil, nil
}

func (s *stubStore) GetAllOrders(_ context.Context) ([]models.PurchaseOrder, error) {
	return nil, nil
}

func (s *stubStore) GetOrderStatus(_ context.Context, id int64) (string, error) {
	if s.getStatus == nil {
		return "", fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	return s.getStatus(id)
}

func (s *stubStore) UpdateOrderStatus(_ context.Context, id int64, status string) error {
	if s.updateStatus == nil {
		return fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	return s.updateStatus(id, status)
}

func (s *stubStore) CancelOrder(_ context.Context, id int64) (*models.PurchaseOrder, error) {
	if s.cancelOrder == nil {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	return s.cancelOrder(id)
}

func (s *stubStore) GetPurchasedAggregates(_ context.Context, userID int64) ([]models.PurchasedBook, error) {
	if s.purchased == nil {
		return nil, nil
	}
	return s.purchased(userID)
}

func (s *stubStore) CountApprovedByUserAndISBN(_ context.Context, userID int64, isbn string) (int, error) {
	if s.countApproved == nil {
		return 0, nil
	}
	return s.countApproved(userID, isbn)
}

func (s *stubStore) CreateSubmission(_ context.Context, sub *models.SellSubmission) error {
	if s.createSub == nil {
		return fmt.Errorf("unexpected CreateSubmission call")
	}
	return s.createSub(sub)
}

func (s *stubStore) GetSubmissionsByUserID(_ context.Context, _ int64) ([]models.SellSubmission, error) {
	return nil, nil
}

func (s *stubStore) GetAllSubmissions(_ context.Context) ([]models.SellSubmission, error) {
	return nil, nil
}

func (s *stubStore) ApproveSubmission(_ context.Context, id int64, _ decimal.Decimal) (*models.SellSubmission, *models.Book, error) {
	if s.approveSub == nil {
		return nil, nil, fmt.Errorf("submission %d: %w", id, models.ErrNotFound)
	}
	return s.approveSub(id)
}

func (s *stubStore) RejectSubmission(_ context.Context, id int64) (*models.SellSubmission, error) {
	if s.rejectSub == nil {
		return nil, fmt.Errorf("submission %d: %w", id, models.ErrNotFound)
	}
	return s.rejectSub(id)
}

// nopPublisher drops every event.
type nopPublisher struct{}

func (nopPublisher) PublishOrderPlaced(context.Context, *models.OrderPlacedEvent) error { return nil }
func (nopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}
func (nopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}
func (nopPublisher) PublishSubmissionReviewed(context.Context, *models.SubmissionReviewedEvent) error {
	return nil
}

func newTestRouter(t *testing.T, store *stubStore, carts cart.Store) *gin.Engine {
	t.Helper()

	pub := nopPublisher{}
	checkout, err := service.NewCheckoutService(store, carts, pub, "0.08")
	require.NoError(t, err)
	orders := service.NewOrderService(store, pub)
	submissions, err := service.NewSubmissionService(store, pub, "0.70")
	require.NoError(t, err)
	cartSvc, err := service.NewCartService(carts, store, "0.08")
	require.NoError(t, err)

	router := gin.New()
	NewHandler(checkout, orders, submissions, cartSvc).SetupRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubStore{}, cart.NewMemoryStore())

	w := doJSON(router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckoutEndpointEmptyCart(t *testing.T) {
	router := newTestRouter(t, &stubStore{}, cart.NewMemoryStore())

	w := doJSON(router, http.MethodPost, "/api/v1/orders/checkout",
		gin.H{"userID": 1}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	// A session id is minted and echoed even on failure.
	assert.NotEmpty(t, w.Header().Get(sessionHeader))
}

func TestCheckoutEndpointSuccess(t *testing.T) {
	carts := cart.NewMemoryStore()
	require.NoError(t, carts.Add(context.Background(), "s1", 1, 2))

	book := &models.Book{
		ID:            1,
		ISBN:          "978-0-00-000030-5",
		Title:         "Linear Algebra",
		Condition:     models.ConditionGood,
		SellingPrice:  decimal.RequireFromString("25.00"),
		StockQuantity: 5,
		Status:        models.BookStatusAvailable,
	}
	store := &stubStore{
		getBookByID: func(id int64) (*models.Book, error) {
			if id != book.ID {
				return nil, fmt.Errorf("book %d: %w", id, models.ErrNotFound)
			}
			return book, nil
		},
		createOrder: func(order *models.PurchaseOrder, lines []models.OrderLineItem) error {
			order.ID = 7
			order.UpdatedAt = time.Now()
			order.LineItems = lines
			return nil
		},
	}
	store.getOrderByID = func(id int64) (*models.PurchaseOrder, error) {
		return &models.PurchaseOrder{
			ID:        id,
			UserID:    42,
			Status:    models.OrderStatusNew,
			SubTotal:  decimal.RequireFromString("50.00"),
			Tax:       decimal.RequireFromString("4.00"),
			Total:     decimal.RequireFromString("54.00"),
			UpdatedAt: time.Now(),
			LineItems: []models.OrderLineItem{{
				LineNumber: 1,
				BookID:     1,
				Quantity:   2,
				UnitPrice:  decimal.RequireFromString("25.00"),
				LineTotal:  decimal.RequireFromString("50.00"),
				BookTitle:  "Linear Algebra",
			}},
		}, nil
	}
	router := newTestRouter(t, store, carts)

	w := doJSON(router, http.MethodPost, "/api/v1/orders/checkout",
		gin.H{"userID": 42}, map[string]string{sessionHeader: "s1"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "s1", w.Header().Get(sessionHeader))

	var resp struct {
		POID      int64           `json:"poid"`
		Status    string          `json:"status"`
		Total     decimal.Decimal `json:"total"`
		LineItems []struct {
			BookTitle string `json:"bookTitle"`
		} `json:"lineItems"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.POID)
	assert.Equal(t, models.OrderStatusNew, resp.Status)
	assert.True(t, resp.Total.Equal(decimal.RequireFromString("54.00")))
	require.Len(t, resp.LineItems, 1)
	assert.Equal(t, "Linear Algebra", resp.LineItems[0].BookTitle)
}

func TestCheckoutEndpointMissingUser(t *testing.T) {
	router := newTestRouter(t, &stubStore{}, cart.NewMemoryStore())

	w := doJSON(router, http.MethodPost, "/api/v1/orders/checkout", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	router := newTestRouter(t, &stubStore{}, cart.NewMemoryStore())

	w := doJSON(router, http.MethodGet, "/api/v1/orders/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderBadID(t *testing.T) {
	router := newTestRouter(t, &stubStore{}, cart.NewMemoryStore())

	w := doJSON(router, http.MethodGet, "/api/v1/orders/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelOrderGuardMapsTo400(t *testing.T) {
	store := &stubStore{
		cancelOrder: func(id int64) (*models.PurchaseOrder, error) {
			return nil, fmt.Errorf("order %d is Completed: %w", id, models.ErrCannotCancel)
		},
	}
	router := newTestRouter(t, store, cart.NewMemoryStore())

	w := doJSON(router, http.MethodPut, "/api/v1/orders/3/cancel", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproveSubmissionTwiceMapsTo400(t *testing.T) {
	store := &stubStore{
		approveSub: func(id int64) (*models.SellSubmission, *models.Book, error) {
			return nil, nil, fmt.Errorf("submission %d is Approved: %w", id, models.ErrAlreadyProcessed)
		},
	}
	router := newTestRouter(t, store, cart.NewMemoryStore())

	w := doJSON(router, http.MethodPut, "/api/v1/sell-submissions/5/approve", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddCartItemInsufficientStock(t *testing.T) {
	store := &stubStore{
		getBookByID: func(id int64) (*models.Book, error) {
			return &models.Book{
				ID:            id,
				Title:         "Probability",
				SellingPrice:  decimal.RequireFromString("12.00"),
				StockQuantity: 1,
				Status:        models.BookStatusAvailable,
			}, nil
		},
	}
	router := newTestRouter(t, store, cart.NewMemoryStore())

	w := doJSON(router, http.MethodPost, "/api/v1/cart/items",
		gin.H{"bookID": 1, "quantity": 2}, map[string]string{sessionHeader: "s1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartRoundTrip(t *testing.T) {
	store := &stubStore{
		getBookByID: func(id int64) (*models.Book, error) {
			return &models.Book{
				ID:            id,
				Title:         "Probability",
				SellingPrice:  decimal.RequireFromString("12.49"),
				StockQuantity: 5,
				Status:        models.BookStatusAvailable,
			}, nil
		},
	}
	router := newTestRouter(t, store, cart.NewMemoryStore())
	headers := map[string]string{sessionHeader: "s1"}

	w := doJSON(router, http.MethodPost, "/api/v1/cart/items",
		gin.H{"bookID": 1, "quantity": 3}, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/cart", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items    []struct{ Quantity int } `json:"items"`
		SubTotal decimal.Decimal          `json:"subTotal"`
		Tax      decimal.Decimal          `json:"tax"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 3, resp.Items[0].Quantity)
	assert.True(t, resp.SubTotal.Equal(decimal.RequireFromString("37.47")))
	assert.True(t, resp.Tax.Equal(decimal.RequireFromString("3.00")))

	w = doJSON(router, http.MethodDelete, "/api/v1/cart", nil, headers)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
