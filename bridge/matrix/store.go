package matrix

import (
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"maunium.net/go/mautrix/id"
)

const (
	keyNextBatch = "next_batch"
	keyFilterID  = "filter_id"
)

// syncStore remembers the sync position and filter id per user, so a restart
// resumes where the previous run stopped instead of replaying history.
// Without a state file it only keeps them in memory.
type syncStore struct {
	db  *bolt.DB
	mem map[string]string
	sync.Mutex
}

func openSyncStore(path string) (*syncStore, error) {
	s := &syncStore{
		mem: make(map[string]string),
	}

	if path == "" {
		return s, nil
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening state file %s: %w", path, err)
	}

	s.db = db

	return s, nil
}

func (s *syncStore) get(userID id.UserID, key string) string {
	s.Lock()
	defer s.Unlock()

	memKey := userID.String() + "/" + key
	if v, ok := s.mem[memKey]; ok {
		return v
	}

	if s.db == nil {
		return ""
	}

	var value string

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	if err != nil {
		logger.Errorf("something wrong with reading %s for %s: %s", key, userID, err)
		return ""
	}

	s.mem[memKey] = value

	return value
}

func (s *syncStore) put(userID id.UserID, key, value string) error {
	s.Lock()
	defer s.Unlock()

	s.mem[userID.String()+"/"+key] = value

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

func (s *syncStore) LoadNextBatch(userID id.UserID) string {
	return s.get(userID, keyNextBatch)
}

func (s *syncStore) SaveNextBatch(userID id.UserID, token string) error {
	return s.put(userID, keyNextBatch, token)
}

func (s *syncStore) LoadFilterID(userID id.UserID) string {
	return s.get(userID, keyFilterID)
}

func (s *syncStore) SaveFilterID(userID id.UserID, filterID string) error {
	return s.put(userID, keyFilterID, filterID)
}

func (s *syncStore) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}
