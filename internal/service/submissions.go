package service

import (
	"context"
	"fmt"
	"time"

	"bookstore-service/internal/models"
	"bookstore-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubmissionStore is the storage contract of the sell-submission
// workflow. Implemented by store.Store.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub *models.SellSubmission) error
	GetSubmissionsByUserID(ctx context.Context, userID int64) ([]models.SellSubmission, error)
	GetAllSubmissions(ctx context.Context) ([]models.SellSubmission, error)
	ApproveSubmission(ctx context.Context, id int64, costRate decimal.Decimal) (*models.SellSubmission, *models.Book, error)
	RejectSubmission(ctx context.Context, id int64) (*models.SellSubmission, error)
}

// SubmissionRequest carries the fields of a new sell submission.
type SubmissionRequest struct {
	UserID      int64           `json:"userID" binding:"required"`
	Title       string          `json:"title" binding:"required"`
	Author      string          `json:"author"`
	ISBN        string          `json:"isbn" binding:"required"`
	Edition     string          `json:"edition"`
	Condition   string          `json:"condition" binding:"required"`
	AskingPrice decimal.Decimal `json:"askingPrice" binding:"required"`
}

// SubmissionService runs the sellback workflow: customers submit books,
// admins approve (feeding stock back into the catalog) or reject.
type SubmissionService struct {
	store     SubmissionStore
	publisher Publisher
	costRate  decimal.Decimal
	logger    *zap.Logger
}

// NewSubmissionService creates a new submission service. costRate is
// the fraction of the asking price recorded as acquisition cost when an
// approval creates a new book, e.g. "0.70".
func NewSubmissionService(store SubmissionStore, publisher Publisher, costRate string) (*SubmissionService, error) {
	rate, err := decimal.NewFromString(costRate)
	if err != nil {
		return nil, fmt.Errorf("invalid acquisition cost rate %q: %w", costRate, err)
	}

	return &SubmissionService{
		store:     store,
		publisher: publisher,
		costRate:  rate,
		logger:    util.GetLogger(),
	}, nil
}

// Create persists a new submission in Pending state. No stock or book
// side effects happen until review.
func (s *SubmissionService) Create(ctx context.Context, req *SubmissionRequest) (*models.SellSubmission, error) {
	ctx, span := util.StartSpan(ctx, "SubmissionService.Create")
	defer span.End()

	if req.UserID <= 0 {
		return nil, fmt.Errorf("missing user id: %w", models.ErrValidation)
	}
	if req.Title == "" || req.ISBN == "" || req.Condition == "" {
		return nil, fmt.Errorf("title, isbn and condition are required: %w", models.ErrValidation)
	}
	if !req.AskingPrice.IsPositive() {
		return nil, fmt.Errorf("asking price must be positive: %w", models.ErrValidation)
	}

	sub := &models.SellSubmission{
		UserID:      req.UserID,
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Edition:     req.Edition,
		Condition:   req.Condition,
		AskingPrice: req.AskingPrice,
		Status:      models.SubmissionStatusPending,
	}

	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	util.SubmissionsCreatedTotal.Inc()
	s.logger.Info("Sell submission created",
		zap.Int64("submission_id", sub.ID),
		zap.Int64("user_id", sub.UserID),
		zap.String("isbn", sub.ISBN))

	return sub, nil
}

// ListByUser retrieves a user's submissions
func (s *SubmissionService) ListByUser(ctx context.Context, userID int64) ([]models.SellSubmission, error) {
	return s.store.GetSubmissionsByUserID(ctx, userID)
}

// ListAll retrieves every submission
func (s *SubmissionService) ListAll(ctx context.Context) ([]models.SellSubmission, error) {
	return s.store.GetAllSubmissions(ctx)
}

// Approve approves a pending submission: the submitted copy either
// increments an existing book's stock (matched by ISBN) or creates a
// new book record, and the submission flips to Approved, all in one
// atomic unit. A submission can be approved at most once.
func (s *SubmissionService) Approve(ctx context.Context, submissionID int64) (*models.SellSubmission, error) {
	ctx, span := util.StartSpan(ctx, "SubmissionService.Approve")
	defer span.End()

	sub, book, err := s.store.ApproveSubmission(ctx, submissionID, s.costRate)
	if err != nil {
		return nil, err
	}

	util.SubmissionsReviewedTotal.WithLabelValues("approved").Inc()
	s.logger.Info("Sell submission approved",
		zap.Int64("submission_id", sub.ID),
		zap.Int64("book_id", book.ID),
		zap.Int("stock_quantity", book.StockQuantity))

	s.publishReviewed(ctx, sub, models.EventTypeSubmissionApproved, book.ID)
	return sub, nil
}

// Reject rejects a pending submission. Pure status change with the same
// at-most-once guard as Approve.
func (s *SubmissionService) Reject(ctx context.Context, submissionID int64) (*models.SellSubmission, error) {
	ctx, span := util.StartSpan(ctx, "SubmissionService.Reject")
	defer span.End()

	sub, err := s.store.RejectSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	util.SubmissionsReviewedTotal.WithLabelValues("rejected").Inc()
	s.logger.Info("Sell submission rejected", zap.Int64("submission_id", sub.ID))

	s.publishReviewed(ctx, sub, models.EventTypeSubmissionRejected, 0)
	return sub, nil
}

func (s *SubmissionService) publishReviewed(ctx context.Context, sub *models.SellSubmission, eventType string, bookID int64) {
	event := &models.SubmissionReviewedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		ISBN:         sub.ISBN,
		Outcome:      sub.Status,
		BookID:       bookID,
	}
	if err := s.publisher.PublishSubmissionReviewed(ctx, event); err != nil {
		s.logger.Error("Failed to publish SubmissionReviewed event", zap.Error(err))
	}
}
