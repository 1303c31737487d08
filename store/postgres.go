package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"marketplace-svc/models"
)

const uniqueViolation = "23505"

const intentColumns = "id, client_secret, amount_minor_units, currency, status, processor_ref, created_at, updated_at"

const listingColumns = "id, seller_id, title, description, price, category, commission_rate, status, is_premium, premium_expiry, created_at, updated_at"

const userColumns = "id, first_name, last_name, email, password_hash, phone, address, city, country, website, bio, user_type, is_verified, created_at"

// Postgres is the SQL adapter. The schema is created by database.Migrate.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := row.Scan(&intent.ID, &intent.ClientSecret, &intent.AmountMinorUnits, &intent.Currency,
		&intent.Status, &intent.ProcessorRef, &intent.CreatedAt, &intent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (s *Postgres) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO payment_intents ("+intentColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		intent.ID, intent.ClientSecret, intent.AmountMinorUnits, intent.Currency,
		intent.Status, intent.ProcessorRef, intent.CreatedAt, intent.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment intent: %w", err)
	}
	return nil
}

func (s *Postgres) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	return scanIntent(s.db.QueryRowContext(ctx,
		"SELECT "+intentColumns+" FROM payment_intents WHERE id = $1", id))
}

// TransitionIntent relies on the row lock taken by UPDATE: of two concurrent
// transitions only one matches the WHERE status clause.
func (s *Postgres) TransitionIntent(ctx context.Context, id string, from, to models.IntentStatus, ref string) (*models.PaymentIntent, error) {
	intent, err := scanIntent(s.db.QueryRowContext(ctx,
		"UPDATE payment_intents SET status = $1, processor_ref = $2, updated_at = NOW() WHERE id = $3 AND status = $4 RETURNING "+intentColumns,
		to, ref, id, from,
	))
	if err == nil {
		return intent, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to update payment intent: %w", err)
	}

	current, err := s.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, ErrStatusConflict
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Phone, &u.Address,
		&u.City, &u.Country, &u.Website, &u.Bio, &u.UserType, &u.IsVerified, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)",
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Phone, u.Address,
		u.City, u.Country, u.Website, u.Bio, u.UserType, u.IsVerified, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Postgres) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER($1)", email))
}

func (s *Postgres) UpdateUser(ctx context.Context, u *models.User) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET first_name = $1, last_name = $2, phone = $3, address = $4, city = $5, country = $6, website = $7, bio = $8 WHERE id = $9",
		u.FirstName, u.LastName, u.Phone, u.Address, u.City, u.Country, u.Website, u.Bio, u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(result)
}

func (s *Postgres) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", hash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRow(result)
}

// DeleteUser drops the seller's listings first; the foreign key has no cascade.
func (s *Postgres) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM listings WHERE seller_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete user listings: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var expiry sql.NullTime
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price, &l.Category,
		&l.CommissionRate, &l.Status, &l.IsPremium, &expiry, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		t := expiry.Time
		l.PremiumExpiry = &t
	}
	return &l, nil
}

func (s *Postgres) CreateListing(ctx context.Context, l *models.Listing) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO listings ("+listingColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
		l.ID, l.SellerID, l.Title, l.Description, l.Price, l.Category, l.CommissionRate,
		l.Status, l.IsPremium, l.PremiumExpiry, l.CreatedAt, l.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

func (s *Postgres) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	return scanListing(s.db.QueryRowContext(ctx, "SELECT "+listingColumns+" FROM listings WHERE id = $1", id))
}

func (s *Postgres) ListListingsBySeller(ctx context.Context, sellerID int64) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE seller_id = $1 ORDER BY id", sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	listings := []models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *Postgres) UpdateListing(ctx context.Context, l *models.Listing) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE listings SET title = $1, description = $2, price = $3, category = $4, commission_rate = $5, status = $6, is_premium = $7, premium_expiry = $8, updated_at = $9 WHERE id = $10 AND seller_id = $11",
		l.Title, l.Description, l.Price, l.Category, l.CommissionRate, l.Status,
		l.IsPremium, l.PremiumExpiry, l.UpdatedAt, l.ID, l.SellerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	return requireRow(result)
}

func (s *Postgres) DeleteListing(ctx context.Context, id, sellerID int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM listings WHERE id = $1 AND seller_id = $2", id, sellerID)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
