package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"strings"
	"time"

	bolt "github.com/boltdb/bolt"

	"marketplace-svc/models"
)

var (
	intentsBucket  = []byte("payment_intents")
	usersBucket    = []byte("users")
	emailsBucket   = []byte("user_emails")
	listingsBucket = []byte("listings")
)

// Bolt stores records as JSON documents in a single BoltDB file. Bolt allows
// one read-write transaction at a time, which is what makes TransitionIntent
// a compare-and-swap.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (or creates) the database file and ensures every bucket exists.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{intentsBucket, usersBucket, emailsBucket, listingsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

func (s *Bolt) Close() error {
	return s.db.Close()
}

func (s *Bolt) Ping(context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(intentsBucket) == nil {
			return ErrNotFound
		}
		return nil
	})
}

func int64Key(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	data := b.Get(key)
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (s *Bolt) CreateIntent(_ context.Context, intent *models.PaymentIntent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(intentsBucket)
		if b.Get([]byte(intent.ID)) != nil {
			return ErrConflict
		}
		return putJSON(b, []byte(intent.ID), intent)
	})
}

func (s *Bolt) GetIntent(_ context.Context, id string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(intentsBucket), []byte(id), &intent)
	})
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (s *Bolt) TransitionIntent(_ context.Context, id string, from, to models.IntentStatus, ref string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	conflict := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(intentsBucket)
		if err := getJSON(b, []byte(id), &intent); err != nil {
			return err
		}
		if intent.Status != from {
			conflict = true
			return nil
		}
		intent.Status = to
		intent.ProcessorRef = ref
		intent.UpdatedAt = time.Now().UTC()
		return putJSON(b, []byte(id), intent)
	})
	if err != nil {
		return nil, err
	}
	if conflict {
		return &intent, ErrStatusConflict
	}
	return &intent, nil
}

// boltUser keeps the password hash, which models.User never serializes.
type boltUser struct {
	models.User
	Hash string `json:"password_hash"`
}

func (s *Bolt) CreateUser(_ context.Context, user *models.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(emailsBucket)
		email := []byte(strings.ToLower(user.Email))
		if emails.Get(email) != nil {
			return ErrConflict
		}
		key := int64Key(user.ID)
		if err := emails.Put(email, key); err != nil {
			return err
		}
		return putJSON(tx.Bucket(usersBucket), key, boltUser{User: *user, Hash: user.PasswordHash})
	})
}

func (s *Bolt) GetUser(_ context.Context, id int64) (*models.User, error) {
	var stored boltUser
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(usersBucket), int64Key(id), &stored)
	})
	if err != nil {
		return nil, err
	}
	user := stored.User
	user.PasswordHash = stored.Hash
	return &user, nil
}

func (s *Bolt) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	var stored boltUser
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(emailsBucket).Get([]byte(strings.ToLower(email)))
		if key == nil {
			return ErrNotFound
		}
		return getJSON(tx.Bucket(usersBucket), key, &stored)
	})
	if err != nil {
		return nil, err
	}
	user := stored.User
	user.PasswordHash = stored.Hash
	return &user, nil
}

func (s *Bolt) UpdateUser(_ context.Context, user *models.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		key := int64Key(user.ID)
		var stored boltUser
		if err := getJSON(b, key, &stored); err != nil {
			return err
		}
		stored.User = withProfile(stored.User, user)
		return putJSON(b, key, stored)
	})
}

func (s *Bolt) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		key := int64Key(id)
		var stored boltUser
		if err := getJSON(b, key, &stored); err != nil {
			return err
		}
		stored.Hash = hash
		return putJSON(b, key, stored)
	})
}

func (s *Bolt) DeleteUser(_ context.Context, id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(usersBucket)
		key := int64Key(id)
		var stored boltUser
		if err := getJSON(users, key, &stored); err != nil {
			return err
		}

		// keys are collected first, a bucket must not change under ForEach
		listings := tx.Bucket(listingsBucket)
		var owned [][]byte
		err := listings.ForEach(func(k, v []byte) error {
			var l models.Listing
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			if l.SellerID == id {
				owned = append(owned, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range owned {
			if err := listings.Delete(k); err != nil {
				return err
			}
		}

		if err := tx.Bucket(emailsBucket).Delete([]byte(strings.ToLower(stored.Email))); err != nil {
			return err
		}
		return users.Delete(key)
	})
}

func (s *Bolt) CreateListing(_ context.Context, listing *models.Listing) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(listingsBucket)
		key := int64Key(listing.ID)
		if b.Get(key) != nil {
			return ErrConflict
		}
		return putJSON(b, key, listing)
	})
}

func (s *Bolt) GetListing(_ context.Context, id int64) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(listingsBucket), int64Key(id), &listing)
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (s *Bolt) ListListingsBySeller(_ context.Context, sellerID int64) ([]models.Listing, error) {
	listings := []models.Listing{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(listingsBucket).ForEach(func(_, v []byte) error {
			var l models.Listing
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			if l.SellerID == sellerID {
				listings = append(listings, l)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return listings, nil
}

func (s *Bolt) UpdateListing(_ context.Context, listing *models.Listing) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(listingsBucket)
		key := int64Key(listing.ID)
		var existing models.Listing
		if err := getJSON(b, key, &existing); err != nil {
			return err
		}
		if existing.SellerID != listing.SellerID {
			return ErrNotFound
		}
		return putJSON(b, key, listing)
	})
}

func (s *Bolt) DeleteListing(_ context.Context, id, sellerID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(listingsBucket)
		key := int64Key(id)
		var existing models.Listing
		if err := getJSON(b, key, &existing); err != nil {
			return err
		}
		if existing.SellerID != sellerID {
			return ErrNotFound
		}
		return b.Delete(key)
	})
}
