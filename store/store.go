// Package store holds the persistence adapters the service can run on. Every
// adapter implements Store; the backend is picked by configuration.
package store

import (
	"context"
	"errors"

	"marketplace-svc/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique key (user email, intent id) is taken.
	ErrConflict = errors.New("record already exists")
	// ErrStatusConflict is returned by TransitionIntent when the stored status
	// is not the expected one. The current record is returned alongside it.
	ErrStatusConflict = errors.New("intent status changed concurrently")
)

type IntentStore interface {
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
	// TransitionIntent atomically moves an intent from one status to another
	// and records the processor reference.
	TransitionIntent(ctx context.Context, id string, from, to models.IntentStatus, ref string) (*models.PaymentIntent, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateUser rewrites the profile fields. Email and password hash are
	// left untouched.
	UpdateUser(ctx context.Context, user *models.User) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	// DeleteUser removes the account together with the listings it owns.
	DeleteUser(ctx context.Context, id int64) error
}

type ListingStore interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	ListListingsBySeller(ctx context.Context, sellerID int64) ([]models.Listing, error)
	UpdateListing(ctx context.Context, listing *models.Listing) error
	DeleteListing(ctx context.Context, id, sellerID int64) error
}

type Store interface {
	IntentStore
	UserStore
	ListingStore
	Ping(ctx context.Context) error
	Close() error
}

// withProfile copies the editable profile fields of src onto dst.
func withProfile(dst models.User, src *models.User) models.User {
	dst.FirstName = src.FirstName
	dst.LastName = src.LastName
	dst.Phone = src.Phone
	dst.Address = src.Address
	dst.City = src.City
	dst.Country = src.Country
	dst.Website = src.Website
	dst.Bio = src.Bio
	return dst
}
