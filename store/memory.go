package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"marketplace-svc/models"
)

// Memory keeps every record in process. Records are copied in and out so
// callers never share memory with the store.
type Memory struct {
	mu       sync.RWMutex
	intents  map[string]models.PaymentIntent
	users    map[int64]models.User
	emails   map[string]int64
	listings map[int64]models.Listing
}

func NewMemory() *Memory {
	return &Memory{
		intents:  make(map[string]models.PaymentIntent),
		users:    make(map[int64]models.User),
		emails:   make(map[string]int64),
		listings: make(map[int64]models.Listing),
	}
}

func (m *Memory) CreateIntent(_ context.Context, intent *models.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.intents[intent.ID]; ok {
		return ErrConflict
	}
	m.intents[intent.ID] = *intent
	return nil
}

func (m *Memory) GetIntent(_ context.Context, id string) (*models.PaymentIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	intent, ok := m.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &intent, nil
}

func (m *Memory) TransitionIntent(_ context.Context, id string, from, to models.IntentStatus, ref string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	intent, ok := m.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	if intent.Status != from {
		return &intent, ErrStatusConflict
	}
	intent.Status = to
	intent.ProcessorRef = ref
	intent.UpdatedAt = time.Now().UTC()
	m.intents[id] = intent
	return &intent, nil
}

func (m *Memory) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := m.emails[email]; ok {
		return ErrConflict
	}
	m.users[user.ID] = *user
	m.emails[email] = user.ID
	return nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	user := m.users[id]
	return &user, nil
}

func (m *Memory) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	m.users[user.ID] = withProfile(existing, user)
	return nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = hash
	m.users[id] = user
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	for lid, l := range m.listings {
		if l.SellerID == id {
			delete(m.listings, lid)
		}
	}
	delete(m.emails, strings.ToLower(user.Email))
	delete(m.users, id)
	return nil
}

func (m *Memory) CreateListing(_ context.Context, listing *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.listings[listing.ID]; ok {
		return ErrConflict
	}
	m.listings[listing.ID] = *listing
	return nil
}

func (m *Memory) GetListing(_ context.Context, id int64) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	listing, ok := m.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &listing, nil
}

func (m *Memory) ListListingsBySeller(_ context.Context, sellerID int64) ([]models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	listings := []models.Listing{}
	for _, l := range m.listings {
		if l.SellerID == sellerID {
			listings = append(listings, l)
		}
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].ID < listings[j].ID })
	return listings, nil
}

func (m *Memory) UpdateListing(_ context.Context, listing *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.listings[listing.ID]
	if !ok || existing.SellerID != listing.SellerID {
		return ErrNotFound
	}
	m.listings[listing.ID] = *listing
	return nil
}

func (m *Memory) DeleteListing(_ context.Context, id, sellerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.listings[id]
	if !ok || existing.SellerID != sellerID {
		return ErrNotFound
	}
	delete(m.listings, id)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
