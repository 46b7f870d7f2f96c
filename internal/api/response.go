package api

import (
	"time"

	"bookstore-service/internal/models"

	"github.com/shopspring/decimal"
)

// orderDTO is the wire shape for orders; orderDate mirrors the last
// status-change timestamp and cancelledAt is set only for cancelled
// orders.
type orderDTO struct {
	POID        int64                  `json:"poid"`
	UserID      int64                  `json:"userID"`
	OrderDate   time.Time              `json:"orderDate"`
	Status      string                 `json:"status"`
	SubTotal    decimal.Decimal        `json:"subTotal"`
	Tax         decimal.Decimal        `json:"tax"`
	Total       decimal.Decimal        `json:"total"`
	CancelledAt *time.Time             `json:"cancelledAt,omitempty"`
	LineItems   []models.OrderLineItem `json:"lineItems"`
}

func orderResponse(order *models.PurchaseOrder) orderDTO {
	dto := orderDTO{
		POID:      order.ID,
		UserID:    order.UserID,
		OrderDate: order.UpdatedAt,
		Status:    order.Status,
		SubTotal:  order.SubTotal,
		Tax:       order.Tax,
		Total:     order.Total,
		LineItems: order.LineItems,
	}
	if order.Status == models.OrderStatusCancelled {
		cancelledAt := order.UpdatedAt
		dto.CancelledAt = &cancelledAt
	}
	return dto
}

func orderResponses(orders []models.PurchaseOrder) []orderDTO {
	dtos := make([]orderDTO, 0, len(orders))
	for i := range orders {
		dtos = append(dtos, orderResponse(&orders[i]))
	}
	return dtos
}
