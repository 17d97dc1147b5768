package repositories

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/tradeguard/internal/models"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketSessions      = []byte("sessions")
	bucketUserData      = []byte("user_data")
	bucketLoginAttempts = []byte("login_attempts")
	bucketUsers         = []byte("users")
	bucketUsersByEmail  = []byte("users_by_email")
)

// BoltStore is the single-node embedded backend. It exposes the same
// repositories as the Postgres backend through typed views.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the database file and its buckets
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketSessions, bucketUserData, bucketLoginAttempts, bucketUsers, bucketUsersByEmail} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// HealthCheck runs an empty read transaction
func (s *BoltStore) HealthCheck(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error { return ctx.Err() })
}

func (s *BoltStore) Sessions() *BoltSessionStore { return &BoltSessionStore{db: s.db} }
func (s *BoltStore) UserData() *BoltUserDataStore { return &BoltUserDataStore{db: s.db} }
func (s *BoltStore) LoginAttempts() *BoltLoginAttemptStore { return &BoltLoginAttemptStore{db: s.db} }
func (s *BoltStore) Users() *BoltUserStore { return &BoltUserStore{db: s.db} }

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// deleteMatching removes every key in b for which match returns true
func deleteMatching(b *bbolt.Bucket, match func(k, v []byte) (bool, error)) (int64, error) {
	var doomed [][]byte
	err := b.ForEach(func(k, v []byte) error {
		ok, err := match(k, v)
		if err != nil {
			return err
		}
		if ok {
			doomed = append(doomed, bytes.Clone(k))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, k := range doomed {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	return int64(len(doomed)), nil
}

// BoltSessionStore stores sessions by token hash
type BoltSessionStore struct {
	db *bbolt.DB
}

func (s *BoltSessionStore) Create(_ context.Context, session *models.Session) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(session.TokenHash)) != nil {
			return models.ErrConflict
		}
		return putJSON(b, []byte(session.TokenHash), session)
	})
}

func (s *BoltSessionStore) GetByTokenHash(_ context.Context, tokenHash string) (*models.Session, error) {
	var session models.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(tokenHash))
		if data == nil {
			return models.ErrNotFound
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	session.TokenHash = tokenHash
	return &session, nil
}

func (s *BoltSessionStore) Delete(_ context.Context, tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(tokenHash))
	})
}

func (s *BoltSessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		n, err = deleteMatching(tx.Bucket(bucketSessions), func(_, v []byte) (bool, error) {
			var session models.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return false, err
			}
			return session.IsExpired(now), nil
		})
		return err
	})
	return n, err
}

// BoltUserDataStore keys records by user id and kind
type BoltUserDataStore struct {
	db *bbolt.DB
}

func userDataPrefix(userID string) []byte {
	return []byte(userID + "\x00")
}

func userDataKey(userID, kind string) []byte {
	return append(userDataPrefix(userID), kind...)
}

func (s *BoltUserDataStore) Upsert(_ context.Context, data *models.EncryptedUserData) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketUserData), userDataKey(data.UserID, data.Kind), data)
	})
}

func (s *BoltUserDataStore) Get(_ context.Context, userID, kind string) (*models.EncryptedUserData, error) {
	var data models.EncryptedUserData
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketUserData).Get(userDataKey(userID, kind))
		if raw == nil {
			return models.ErrNotFound
		}
		return json.Unmarshal(raw, &data)
	})
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *BoltUserDataStore) Delete(_ context.Context, userID, kind string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUserData).Delete(userDataKey(userID, kind))
	})
}

func (s *BoltUserDataStore) DeleteAll(_ context.Context, userID string) error {
	prefix := userDataPrefix(userID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUserData)
		c := b.Cursor()
		var doomed [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			doomed = append(doomed, bytes.Clone(k))
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// BoltLoginAttemptStore is the embedded audit trail. Keys start with the
// big-endian expiry so the retention purge walks keys in order.
type BoltLoginAttemptStore struct {
	db *bbolt.DB
}

func attemptKey(a *models.LoginAttempt) []byte {
	key := make([]byte, 8, 8+len(a.ID))
	binary.BigEndian.PutUint64(key, uint64(a.ExpiresAt.UnixNano()))
	return append(key, a.ID...)
}

func (s *BoltLoginAttemptStore) RecordAttempt(_ context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketLoginAttempts), attemptKey(attempt), attempt)
	})
}

func (s *BoltLoginAttemptStore) DeleteExpiredAttempts(_ context.Context, now time.Time) (int64, error) {
	limit := make([]byte, 8)
	binary.BigEndian.PutUint64(limit, uint64(now.UnixNano()))

	var n int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLoginAttempts)
		c := b.Cursor()
		var doomed [][]byte
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], limit) <= 0; k, _ = c.Next() {
			doomed = append(doomed, bytes.Clone(k))
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = int64(len(doomed))
		return nil
	})
	return n, err
}

// BoltUserStore keeps users plus a lower-cased email index
type BoltUserStore struct {
	db *bbolt.DB
}

func emailKey(email string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(email)))
}

func (s *BoltUserStore) Create(_ context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = strings.TrimSpace(user.Email)
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketUsersByEmail)
		if idx.Get(emailKey(user.Email)) != nil {
			return models.ErrConflict
		}
		if err := idx.Put(emailKey(user.Email), []byte(user.ID)); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketUsers), []byte(user.ID), user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BoltUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return models.ErrNotFound
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var id string
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketUsersByEmail).Get(emailKey(email))
		if raw == nil {
			return models.ErrNotFound
		}
		id = string(raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}
