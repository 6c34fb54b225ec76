package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var messagesBucket = []byte("dedup_messages")

// BoltStore persists dedup records in a bbolt file so they survive restarts.
type BoltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

func NewBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(messagesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating dedup bucket: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &BoltStore{db: db, ttl: ttl, now: time.Now}, nil
}

// CheckAndMark runs inside one read-write transaction; bbolt allows a single
// writer at a time, so concurrent callers cannot both see the id as new.
func (s *BoltStore) CheckAndMark(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var dup bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(messagesBucket)
		now := s.now()

		if v := b.Get([]byte(messageID)); v != nil {
			var rec Record
			if err := json.Unmarshal(v, &rec); err == nil && rec.live(now) {
				dup = true
				return nil
			}
		}

		data, err := json.Marshal(Record{
			MessageID: messageID,
			MarkedAt:  now,
			ExpiresAt: now.Add(s.ttl),
		})
		if err != nil {
			return err
		}
		return b.Put([]byte(messageID), data)
	})
	if err != nil {
		return false, fmt.Errorf("dedup check-and-mark %s: %w", messageID, err)
	}
	return dup, nil
}

// Purge deletes expired records.
func (s *BoltStore) Purge(ctx context.Context) (int, error) {
	var deleted int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(messagesBucket)
		now := s.now()

		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil || !rec.live(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(expired)
		return nil
	})
	return deleted, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
