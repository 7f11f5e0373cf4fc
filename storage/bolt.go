package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	hashBucket   = []byte("hashes")
	expiryBucket = []byte("expiries")
)

// BoltStore implements HashStore on a local bbolt file. bbolt allows one
// writer at a time, so IncrementField inside db.Update is atomic.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

type boltEntry struct {
	Fields   map[string]string `json:"fields"`
	Deadline int64             `json:"deadline,omitempty"` // unix ms, 0 = none
}

// NewBoltStore opens (or creates) the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(hashBucket); err != nil {
			return fmt.Errorf("create hash bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(expiryBucket); err != nil {
			return fmt.Errorf("create expiry bucket: %w", err)
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// load reads the live entry for key. Expired entries read as missing; the
// janitor removes them.
func (b *BoltStore) load(tx *bolt.Tx, key string) (*boltEntry, error) {
	raw := tx.Bucket(hashBucket).Get([]byte(key))
	if raw == nil {
		return nil, ErrNotFound
	}
	var e boltEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	if e.Deadline != 0 && b.now().UnixMilli() >= e.Deadline {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (b *BoltStore) save(tx *bolt.Tx, key string, e *boltEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return tx.Bucket(hashBucket).Put([]byte(key), data)
}

// SetFields overwrites the given fields
func (b *BoltStore) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		e, err := b.load(tx, key)
		if errors.Is(err, ErrNotFound) {
			if err := b.dropIndex(tx, key); err != nil {
				return err
			}
			e = &boltEntry{Fields: make(map[string]string, len(fields))}
		} else if err != nil {
			return err
		}
		for k, v := range fields {
			e.Fields[k] = v
		}
		return b.save(tx, key, e)
	})
}

// GetFields returns the fields of key
func (b *BoltStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out map[string]string
	err := b.db.View(func(tx *bolt.Tx) error {
		e, err := b.load(tx, key)
		if err != nil {
			return err
		}
		out = e.Fields
		return nil
	})
	return out, err
}

// IncrementField adds delta to field in a write transaction
func (b *BoltStore) IncrementField(ctx context.Context, key, field string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var result int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		e, err := b.load(tx, key)
		if err != nil {
			return err
		}
		var cur int64
		if raw, ok := e.Fields[field]; ok {
			if cur, err = parseCounter(key, field, raw); err != nil {
				return err
			}
		}
		result = cur + delta
		e.Fields[field] = strconv.FormatInt(result, 10)
		return b.save(tx, key, e)
	})
	return result, err
}

// SetExpiry records a deadline and indexes it for Sweep
func (b *BoltStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		e, err := b.load(tx, key)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if e.Deadline != 0 {
			if err := tx.Bucket(expiryBucket).Delete(expiryKey(e.Deadline, key)); err != nil {
				return fmt.Errorf("remove previous expiry index: %w", err)
			}
		}
		e.Deadline = b.now().Add(ttl).UnixMilli()
		if err := tx.Bucket(expiryBucket).Put(expiryKey(e.Deadline, key), []byte(key)); err != nil {
			return fmt.Errorf("index expiry: %w", err)
		}
		return b.save(tx, key, e)
	})
}

// Delete removes key and its expiry index entry
func (b *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := b.dropIndex(tx, key); err != nil {
			return err
		}
		return tx.Bucket(hashBucket).Delete([]byte(key))
	})
}

// dropIndex removes the expiry index entry of a stored key, expired or not.
func (b *BoltStore) dropIndex(tx *bolt.Tx, key string) error {
	raw := tx.Bucket(hashBucket).Get([]byte(key))
	if raw == nil {
		return nil
	}
	var e boltEntry
	if err := json.Unmarshal(raw, &e); err != nil || e.Deadline == 0 {
		return nil
	}
	if err := tx.Bucket(expiryBucket).Delete(expiryKey(e.Deadline, key)); err != nil {
		return fmt.Errorf("delete expiry index: %w", err)
	}
	return nil
}

// Exists reports whether key is present and not expired
func (b *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.GetFields(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Ping checks that the database is still open
func (b *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(hashBucket) == nil {
			return errors.New("hash bucket missing")
		}
		return nil
	})
}

// Sweep deletes every key whose deadline is at or before now
func (b *BoltStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var removed int
	err := b.db.Update(func(tx *bolt.Tx) error {
		hashes := tx.Bucket(hashBucket)
		index := tx.Bucket(expiryBucket)
		cutoff := uint64(now.UnixMilli())

		// Collect first: deleting under a live cursor can skip entries.
		var expired [][2][]byte
		cursor := index.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if binary.BigEndian.Uint64(k[:8]) > cutoff {
				break
			}
			expired = append(expired, [2][]byte{append([]byte(nil), k...), append([]byte(nil), v...)})
		}

		for _, kv := range expired {
			if err := hashes.Delete(kv[1]); err != nil {
				return fmt.Errorf("delete expired %s: %w", kv[1], err)
			}
			if err := index.Delete(kv[0]); err != nil {
				return fmt.Errorf("delete expiry index: %w", err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the database
func (b *BoltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func expiryKey(deadline int64, key string) []byte {
	buf := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(buf[:8], uint64(deadline))
	copy(buf[8:], key)
	return buf
}
