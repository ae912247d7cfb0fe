package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const maxConflictRetries = 50

// Counter keeps fixed-window counters in BadgerDB. Each key expires at the end of
// the window that created it, so stale counters disappear without a sweeper.
type Counter struct {
	db *badger.DB
}

// NewCounter opens a counter store at dir, or in memory when dir is empty.
func NewCounter(dir string) (*Counter, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLoggingLevel(badger.WARNING) // Reduce log noise
	opts = opts.WithCompression(options.None)    // Values are 8 bytes

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %q: %w", dir, err)
	}

	return &Counter{db: db}, nil
}

// Incr adds one to key and returns the new count within the current window.
func (c *Counter) Incr(key string, window time.Duration) (uint64, error) {
	var count uint64

	for range maxConflictRetries {
		err := c.db.Update(func(txn *badger.Txn) error {
			count = 1
			expiresAt := uint64(time.Now().Add(window).Unix())

			item, err := txn.Get([]byte(key))
			if err == nil {
				err = item.Value(func(val []byte) error {
					if len(val) == 8 {
						count = binary.BigEndian.Uint64(val) + 1
					}
					return nil
				})
				if err != nil {
					return err
				}
				if exp := item.ExpiresAt(); exp != 0 {
					expiresAt = exp
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, count)

			entry := badger.NewEntry([]byte(key), buf)
			entry.ExpiresAt = expiresAt
			return txn.SetEntry(entry)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return count, nil
	}

	return 0, fmt.Errorf("counter %q: %w", key, badger.ErrConflict)
}

// Get returns the current count for key, 0 when it has expired or never existed.
func (c *Counter) Get(key string) (uint64, error) {
	var count uint64
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				count = binary.BigEndian.Uint64(val)
			}
			return nil
		})
	})
	return count, err
}

func (c *Counter) Close() error {
	return c.db.Close()
}
