package store

import (
	"context"
	"database/sql"
	"fmt"

	"bookstore-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CreateSubmission persists a new sell submission in Pending state
func (s *Store) CreateSubmission(ctx context.Context, sub *models.SellSubmission) error {
	query := `
		INSERT INTO sell_submissions (user_id, title, author, isbn, edition, condition, asking_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING submission_id, created_at`

	return s.db.GetContext(ctx, sub, query,
		sub.UserID, sub.Title, sub.Author, sub.ISBN, sub.Edition,
		sub.Condition, sub.AskingPrice, sub.Status)
}

// GetSubmissionByID retrieves a submission by ID
func (s *Store) GetSubmissionByID(ctx context.Context, id int64) (*models.SellSubmission, error) {
	var sub models.SellSubmission
	err := s.db.GetContext(ctx, &sub, "SELECT * FROM sell_submissions WHERE submission_id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubmissionsByUserID retrieves a user's submissions, newest first
func (s *Store) GetSubmissionsByUserID(ctx context.Context, userID int64) ([]models.SellSubmission, error) {
	var subs []models.SellSubmission
	err := s.db.SelectContext(ctx, &subs,
		"SELECT * FROM sell_submissions WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return subs, err
}

// GetAllSubmissions retrieves every submission, newest first
func (s *Store) GetAllSubmissions(ctx context.Context) ([]models.SellSubmission, error) {
	var subs []models.SellSubmission
	err := s.db.SelectContext(ctx, &subs,
		"SELECT * FROM sell_submissions ORDER BY created_at DESC")
	return subs, err
}

// ApproveSubmission approves a pending submission and applies its single
// copy to the catalog in one transaction: a book matching the ISBN gains
// one unit of stock, otherwise a new record is created priced at the
// asking price with acquisition cost at costRate of it. The submission
// row is locked first so a second approval observes the committed
// Approved status and fails with ErrAlreadyProcessed. Returns the
// updated submission and the book that absorbed the copy.
func (s *Store) ApproveSubmission(ctx context.Context, id int64, costRate decimal.Decimal) (*models.SellSubmission, *models.Book, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin approval transaction: %w", err)
	}
	defer tx.Rollback()

	sub, err := lockSubmission(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	var book models.Book
	err = tx.GetContext(ctx, &book,
		"SELECT * FROM books WHERE isbn = $1 ORDER BY book_id LIMIT 1 FOR UPDATE", sub.ISBN)
	switch {
	case err == sql.ErrNoRows:
		book = models.Book{
			ISBN:            sub.ISBN,
			Title:           sub.Title,
			Author:          sub.Author,
			Edition:         sub.Edition,
			Condition:       sub.Condition,
			AcquisitionCost: sub.AskingPrice.Mul(costRate).Round(2),
			SellingPrice:    sub.AskingPrice,
			StockQuantity:   1,
			Status:          models.BookStatusAvailable,
		}
		err = tx.GetContext(ctx, &book, `
			INSERT INTO books (isbn, title, author, edition, condition,
				acquisition_cost, selling_price, stock_quantity, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING book_id, created_at`,
			book.ISBN, book.Title, book.Author, book.Edition, book.Condition,
			book.AcquisitionCost, book.SellingPrice, book.StockQuantity, book.Status)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create book from submission: %w", err)
		}
	case err != nil:
		return nil, nil, fmt.Errorf("failed to look up book by isbn: %w", err)
	default:
		err = tx.GetContext(ctx, &book.StockQuantity, `
			UPDATE books SET stock_quantity = stock_quantity + 1
			WHERE book_id = $1
			RETURNING stock_quantity`, book.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to increment stock for book %d: %w", book.ID, err)
		}
	}

	if err := reviewSubmission(ctx, tx, sub, models.SubmissionStatusApproved); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	return sub, &book, nil
}

// RejectSubmission rejects a pending submission. Pure status change, no
// catalog effect. Same idempotency guard as approval.
func (s *Store) RejectSubmission(ctx context.Context, id int64) (*models.SellSubmission, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin rejection transaction: %w", err)
	}
	defer tx.Rollback()

	sub, err := lockSubmission(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := reviewSubmission(ctx, tx, sub, models.SubmissionStatusRejected); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rejection: %w", err)
	}

	return sub, nil
}

func lockSubmission(ctx context.Context, tx *sqlx.Tx, id int64) (*models.SellSubmission, error) {
	var sub models.SellSubmission
	err := tx.GetContext(ctx, &sub,
		"SELECT * FROM sell_submissions WHERE submission_id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock submission: %w", err)
	}

	if sub.Status != models.SubmissionStatusPending {
		return nil, fmt.Errorf("submission %d is %s: %w", id, sub.Status, models.ErrAlreadyProcessed)
	}
	return &sub, nil
}

func reviewSubmission(ctx context.Context, tx *sqlx.Tx, sub *models.SellSubmission, status string) error {
	err := tx.GetContext(ctx, &sub.ReviewedAt, `
		UPDATE sell_submissions SET status = $1, reviewed_at = NOW()
		WHERE submission_id = $2
		RETURNING reviewed_at`,
		status, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}
	sub.Status = status
	return nil
}

// CountApprovedByUserAndISBN counts a user's approved submissions for an
// ISBN, used to cap how many purchased copies remain listable for
// sellback.
func (s *Store) CountApprovedByUserAndISBN(ctx context.Context, userID int64, isbn string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM sell_submissions
		WHERE user_id = $1 AND isbn = $2 AND status = $3`,
		userID, isbn, models.SubmissionStatusApproved)
	return count, err
}
