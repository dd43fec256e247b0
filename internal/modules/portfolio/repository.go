package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/stocktracker/internal/domain"
)

// ErrEntryNotFound is returned by SaveEntry when the entry was deleted meanwhile.
var ErrEntryNotFound = errors.New("portfolio entry not found")

// Repository handles user and portfolio database operations (portfolio.db)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
		now: time.Now,
	}
}

const stockColumns = `id, name, pe_ratio, peg_ratio, pb_ratio, ev_ebitda_ratio, created_at, updated_at`

// CreateUser inserts a user with an empty portfolio. Existing users are left untouched.
func (r *Repository) CreateUser(ctx context.Context, username string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (username, created_at) VALUES (?, ?)",
		username, r.now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// FindUser returns the user with its portfolio in insertion order.
func (r *Repository) FindUser(ctx context.Context, username string) (*domain.User, error) {
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		"SELECT created_at FROM users WHERE username = ?", username,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", username, err)
	}

	stocks, err := r.stocksFor(ctx, username)
	if err != nil {
		return nil, err
	}

	return &domain.User{
		Username:  username,
		Portfolio: stocks,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
	}, nil
}

// FindUserWithStock returns the user only if its portfolio holds an entry named stockname.
func (r *Repository) FindUserWithStock(ctx context.Context, username, stockname string) (*domain.User, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM portfolio_stocks WHERE username = ? AND name = ? LIMIT 1",
		username, stockname,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio of %s for %s: %w", username, stockname, err)
	}

	return r.FindUser(ctx, username)
}

// AddStock appends an entry to the user's portfolio. It does not check for
// duplicates; callers pre-check with FindUserWithStock.
func (r *Repository) AddStock(ctx context.Context, username string, f domain.Fundamentals) (domain.Stock, error) {
	now := r.now()
	stock := domain.Stock{
		ID:           uuid.NewString(),
		Fundamentals: f,
		CreatedAt:    now.UTC().Truncate(time.Second),
		UpdatedAt:    now.UTC().Truncate(time.Second),
	}

	// Position is computed in the same statement so concurrent appends stay ordered
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO portfolio_stocks (id, username, position, name, pe_ratio, peg_ratio, pb_ratio, ev_ebitda_ratio, created_at, updated_at)
		SELECT ?, u.username,
			COALESCE((SELECT MAX(position) FROM portfolio_stocks WHERE username = u.username), -1) + 1,
			?, ?, ?, ?, ?, ?, ?
		FROM users u WHERE u.username = ?`,
		stock.ID, f.Name, f.PERatio, f.PEGRatio, f.PBRatio, f.EVEBITDARatio,
		now.Unix(), now.Unix(), username,
	)
	if err != nil {
		return domain.Stock{}, fmt.Errorf("failed to add %s to portfolio of %s: %w", f.Name, username, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return domain.Stock{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.Stock{}, domain.ErrUserNotFound
	}

	return stock, nil
}

// RemoveStock removes every entry named stockname from the user's portfolio.
// Removing a symbol that is not tracked (or for an unknown user) is not an error.
func (r *Repository) RemoveStock(ctx context.Context, username, stockname string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM portfolio_stocks WHERE username = ? AND name = ?",
		username, stockname,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to remove %s from portfolio of %s: %w", stockname, username, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListAll returns every user with its portfolio.
func (r *Repository) ListAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT username, created_at FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		var createdAt int64
		if err := rows.Scan(&u.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt = time.Unix(createdAt, 0).UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	entries, err := r.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]domain.Stock, len(users))
	for _, e := range entries {
		byUser[e.Username] = append(byUser[e.Username], e.Stock)
	}
	for i := range users {
		users[i].Portfolio = byUser[users[i].Username]
		if users[i].Portfolio == nil {
			users[i].Portfolio = []domain.Stock{}
		}
	}

	return users, nil
}

// ListEntries returns every portfolio entry across all users.
func (r *Repository) ListEntries(ctx context.Context) ([]domain.PortfolioEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT username, "+stockColumns+" FROM portfolio_stocks ORDER BY username, position",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.PortfolioEntry
	for rows.Next() {
		var e domain.PortfolioEntry
		stock, err := scanStock(rows, &e.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio entry: %w", err)
		}
		e.Stock = stock
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio entries: %w", err)
	}

	return entries, nil
}

// SaveEntry re-persists a single entry, refreshing updated_at.
func (r *Repository) SaveEntry(ctx context.Context, entry domain.PortfolioEntry) error {
	f := entry.Stock.Fundamentals
	result, err := r.db.ExecContext(ctx, `
		UPDATE portfolio_stocks
		SET name = ?, pe_ratio = ?, peg_ratio = ?, pb_ratio = ?, ev_ebitda_ratio = ?, updated_at = ?
		WHERE id = ? AND username = ?`,
		f.Name, f.PERatio, f.PEGRatio, f.PBRatio, f.EVEBITDARatio, r.now().Unix(),
		entry.Stock.ID, entry.Username,
	)
	if err != nil {
		return fmt.Errorf("failed to save portfolio entry %s: %w", entry.Stock.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *Repository) stocksFor(ctx context.Context, username string) ([]domain.Stock, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+stockColumns+" FROM portfolio_stocks WHERE username = ? ORDER BY position",
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio of %s: %w", username, err)
	}
	defer rows.Close()

	stocks := []domain.Stock{}
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, stock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio of %s: %w", username, err)
	}

	return stocks, nil
}

// scanStock scans the stockColumns, preceded by any extra destinations.
func scanStock(rows *sql.Rows, leading ...interface{}) (domain.Stock, error) {
	var s domain.Stock
	var createdAt, updatedAt int64
	dest := append(leading,
		&s.ID, &s.Name, &s.PERatio, &s.PEGRatio, &s.PBRatio, &s.EVEBITDARatio,
		&createdAt, &updatedAt,
	)
	if err := rows.Scan(dest...); err != nil {
		return domain.Stock{}, err
	}
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return s, nil
}
