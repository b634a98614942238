package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/tinylib/msgp/msgp"

	"github.com/benjaminschubert/cacheproxy/internal/logging"
)

var (
	ErrKeyNotFound = badger.ErrKeyNotFound
	ErrConflict    = errors.New("trying to update an entry that got updated already")
)

type encodable interface {
	msgp.Marshaler
}

type Ptr[T encodable] interface {
	*T
	msgp.Unmarshaler
}

type Entry[T any] struct {
	Value   T
	version uint64
}

type Database[T encodable, TPtr Ptr[T]] struct {
	db *badger.DB
}

func NewDatabase[T encodable, TPtr Ptr[T]](
	path string,
	logger *zerolog.Logger,
) (*Database[T, TPtr], error) {
	badgerDB, err := badger.Open(
		badger.DefaultOptions(path).WithLogger(logging.NewLoggerAdapter(logger, "database")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open the database, it might be corrupted: %w", err)
	}

	return &Database[T, TPtr]{badgerDB}, nil
}

func (d *Database[T, TPtr]) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("unable to close the database, it might be corrupted: %w", err)
	}
	return nil
}

func decode[T encodable, TPtr Ptr[T]](item *badger.Item) (*Entry[T], error) {
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("unexpected error extracting value: %w", err)
	}

	var value TPtr = new(T)
	if _, err = value.UnmarshalMsg(val); err != nil {
		return nil, fmt.Errorf(
			"entry in the database is not of the correct format, this should not happen: %w",
			err,
		)
	}

	return &Entry[T]{*value, item.Version()}, nil
}

func (d *Database[T, TPtr]) Get(key string) (*Entry[T], error) {
	var entry *Entry[T]

	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return fmt.Errorf("unexpected error loading key: %w", err)
		}

		entry, err = decode[T, TPtr](item)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("unable to load key: %w", err)
	}

	return entry, nil
}

func (d *Database[T, TPtr]) Save(key string, entry *Entry[T]) error {
	data, err := entry.Value.MarshalMsg(nil)
	if err != nil {
		return fmt.Errorf(
			"entry in the database is not of the correct format, this should not happen: %w",
			err,
		)
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("unable to check for previous entry with same key: %w", err)
			}
		} else if item.Version() != entry.version {
			return ErrConflict
		}

		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("unable to save entry in database: %w", err)
	}
	return nil
}

func (d *Database[T, TPtr]) New(key string, value T) error {
	return d.Save(key, &Entry[T]{Value: value})
}

func (d *Database[T, TPtr]) Delete(key string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("unable to delete entry from database: %w", err)
	}
	return nil
}

func (d *Database[T, TPtr]) Iterate(
	ctx context.Context,
	fn func(key string, value *Entry[T]) error,
) error {
	return d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			entry, err := decode[T, TPtr](item)
			if err != nil {
				return err
			}

			if err := fn(string(item.KeyCopy(nil)), entry); err != nil {
				return err
			}
		}
		return nil
	})
}
