package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bookstore-service/internal/models"
	"bookstore-service/internal/service"
	"bookstore-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// sessionHeader carries the shopping session id. The session itself is
// owned by the auth/session collaborator; a missing header starts a
// fresh session whose id is echoed back.
const sessionHeader = "X-Session-ID"

// Handler contains HTTP handlers
type Handler struct {
	checkout    *service.CheckoutService
	orders      *service.OrderService
	submissions *service.SubmissionService
	carts       *service.CartService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	orders *service.OrderService,
	submissions *service.SubmissionService,
	carts *service.CartService,
) *Handler {
	return &Handler{
		checkout:    checkout,
		orders:      orders,
		submissions: submissions,
		carts:       carts,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders/checkout", h.checkoutOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/customer/:userID", h.listCustomerOrders)
		v1.GET("/orders/customer/:userID/purchased-books", h.purchasedBooks)
		v1.PUT("/orders/:id/status", h.updateOrderStatus)
		v1.PUT("/orders/:id/cancel", h.cancelOrder)

		v1.POST("/sell-submissions", h.createSubmission)
		v1.GET("/sell-submissions", h.listSubmissions)
		v1.GET("/sell-submissions/customer/:userID", h.listCustomerSubmissions)
		v1.PUT("/sell-submissions/:id/approve", h.approveSubmission)
		v1.PUT("/sell-submissions/:id/reject", h.rejectSubmission)

		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PUT("/cart/items/:bookID", h.updateCartItem)
		v1.DELETE("/cart/items/:bookID", h.removeCartItem)
		v1.DELETE("/cart", h.clearCart)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type checkoutRequest struct {
	UserID int64 `json:"userID" binding:"required"`
}

// checkoutOrder converts the session cart into an order
func (h *Handler) checkoutOrder(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.checkout.Checkout(c.Request.Context(), req.UserID, h.sessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, orderResponse(order))
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderResponse(order))
}

// listOrders returns every order (admin view)
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderResponses(orders))
}

// listCustomerOrders returns one user's orders
func (h *Handler) listCustomerOrders(c *gin.Context) {
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	orders, err := h.orders.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orderResponses(orders))
}

// purchasedBooks returns the books a user can still sell back
func (h *Handler) purchasedBooks(c *gin.Context) {
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	books, err := h.orders.PurchasedBooks(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, books)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updateOrderStatus handles admin status edits
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.orders.UpdateStatus(c.Request.Context(), orderID, req.Status); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order status updated"})
}

// cancelOrder cancels an order and restores its stock
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.orders.Cancel(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled and stock restored"})
}

// createSubmission handles new sell submissions
func (h *Handler) createSubmission(c *gin.Context) {
	var req service.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	sub, err := h.submissions.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// listSubmissions returns every submission (admin view)
func (h *Handler) listSubmissions(c *gin.Context) {
	subs, err := h.submissions.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, subs)
}

// listCustomerSubmissions returns one user's submissions
func (h *Handler) listCustomerSubmissions(c *gin.Context) {
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	subs, err := h.submissions.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, subs)
}

// approveSubmission approves a pending submission
func (h *Handler) approveSubmission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sub, err := h.submissions.Approve(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Submission approved", "submission": sub})
}

// rejectSubmission rejects a pending submission
func (h *Handler) rejectSubmission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sub, err := h.submissions.Reject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Submission rejected", "submission": sub})
}

// getCart returns the priced session cart
func (h *Handler) getCart(c *gin.Context) {
	resp, err := h.carts.Get(c.Request.Context(), h.sessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type cartItemRequest struct {
	BookID   int64 `json:"bookID" binding:"required"`
	Quantity int   `json:"quantity" binding:"required"`
}

// addCartItem adds copies of a book to the session cart
func (h *Handler) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.carts.AddItem(c.Request.Context(), h.sessionID(c), req.BookID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Added to cart"})
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// updateCartItem replaces a cart line's quantity
func (h *Handler) updateCartItem(c *gin.Context) {
	bookID, ok := pathID(c, "bookID")
	if !ok {
		return
	}

	var req cartQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.carts.UpdateItem(c.Request.Context(), h.sessionID(c), bookID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart updated"})
}

// removeCartItem deletes one cart line
func (h *Handler) removeCartItem(c *gin.Context) {
	bookID, ok := pathID(c, "bookID")
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(c.Request.Context(), h.sessionID(c), bookID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// clearCart empties the session cart
func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), h.sessionID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// sessionID returns the caller's session id, minting one when absent.
// The id is always echoed in the response so the client can persist it.
func (h *Handler) sessionID(c *gin.Context) string {
	sid := c.GetHeader(sessionHeader)
	if sid == "" {
		sid = uuid.New().String()
	}
	c.Header(sessionHeader, sid)
	return sid
}

func pathID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return 0, false
	}
	return id, true
}

// respondError maps service errors onto HTTP statuses: 404 for missing
// entities, 400 for validation and business-rule failures, 500 for
// anything transient.
func respondError(c *gin.Context, err error) {
	var stockErr *models.InsufficientStockError

	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &stockErr),
		errors.Is(err, models.ErrEmptyCart),
		errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrCannotCancel),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyProcessed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"details": err.Error(),
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
