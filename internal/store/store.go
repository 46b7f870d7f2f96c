package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bookstore-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetBookByID retrieves a book by ID
func (s *Store) GetBookByID(ctx context.Context, id int64) (*models.Book, error) {
	var book models.Book
	err := s.db.GetContext(ctx, &book, "SELECT * FROM books WHERE book_id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("book %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetBookByISBN retrieves one book matching an ISBN. ISBN is not unique
// across the catalog; the lowest book id wins, matching the sellback
// approval path.
func (s *Store) GetBookByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	var book models.Book
	err := s.db.GetContext(ctx, &book,
		"SELECT * FROM books WHERE isbn = $1 ORDER BY book_id LIMIT 1", isbn)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("book isbn %s: %w", isbn, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetBooksByIDs retrieves multiple books by IDs
func (s *Store) GetBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error) {
	if len(ids) == 0 {
		return []models.Book{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM books WHERE book_id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var books []models.Book
	err = s.db.SelectContext(ctx, &books, query, args...)
	return books, err
}

// UpdateStock adjusts a book's stock by delta. The WHERE clause keeps
// the counter non-negative inside the store; a zero row count means the
// adjustment would have oversold.
func (s *Store) UpdateStock(ctx context.Context, bookID int64, delta int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET stock_quantity = stock_quantity + $1
		 WHERE book_id = $2 AND stock_quantity + $1 >= 0`,
		delta, bookID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.InsufficientStockError{BookID: bookID}
	}
	return nil
}

// CreateBook inserts a new catalog record
func (s *Store) CreateBook(ctx context.Context, book *models.Book) error {
	query := `
		INSERT INTO books (isbn, title, author, edition, condition,
			acquisition_cost, selling_price, stock_quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING book_id, created_at`

	return s.db.GetContext(ctx, book, query,
		book.ISBN, book.Title, book.Author, book.Edition, book.Condition,
		book.AcquisitionCost, book.SellingPrice, book.StockQuantity, book.Status)
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
