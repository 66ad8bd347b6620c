package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/harborchat/harbor/internal/domain"
)

type userRecord struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

func userKey(username string) []byte {
	return []byte("user:" + username)
}

// CreateUser persists a new account keyed by username. It fails with
// ErrUserExists when the username is already taken.
func (s *Store) CreateUser(username, passwordHash string) (domain.User, error) {
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	value, err := json.Marshal(fromUser(user))
	if err != nil {
		return domain.User{}, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := userKey(username)
		if _, err := txn.Get(key); err == nil {
			return ErrUserExists
		}
		return txn.Set(key, value)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetUserByUsername fetches one account, or ErrNotFound.
func (s *Store) GetUserByUsername(username string) (domain.User, error) {
	var rec userRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(rec), nil
}

// ListUsers returns every registered account for the contact list.
func (s *Store) ListUsers() ([]domain.User, error) {
	prefix := []byte("user:")
	var users []domain.User

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec userRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				users = append(users, toUser(rec))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func fromUser(user domain.User) userRecord {
	return userRecord{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UnixNano(),
	}
}

func toUser(rec userRecord) domain.User {
	return domain.User{
		ID:           rec.ID,
		Username:     rec.Username,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    time.Unix(0, rec.CreatedAt).UTC(),
	}
}
