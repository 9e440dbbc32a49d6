package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// OpenBadger открывает базу BadgerDB в каталоге dir
func OpenBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	return db, nil
}

// BadgerStateStore хранит состояние реестра в BadgerDB под ключом "plots:<мир>",
// значение сжато zstd.
type BadgerStateStore struct {
	db      *badger.DB
	ownsDB  bool
	mu      sync.RWMutex
	isReady bool
}

// NewBadgerStateStore использует уже открытую базу (например, общую с WorldStorage).
// Close такого хранилища базу не закрывает.
func NewBadgerStateStore(db *badger.DB) *BadgerStateStore {
	return &BadgerStateStore{db: db, isReady: true}
}

// OpenBadgerStateStore открывает собственную базу в каталоге dir
func OpenBadgerStateStore(dir string) (*BadgerStateStore, error) {
	db, err := OpenBadger(dir)
	if err != nil {
		return nil, err
	}
	return &BadgerStateStore{db: db, ownsDB: true, isReady: true}, nil
}

func stateKey(worldID string) []byte {
	return []byte("plots:" + worldID)
}

// Load читает и распаковывает состояние мира
func (s *BadgerStateStore) Load(ctx context.Context, worldID string) ([]byte, bool, error) {
	if err := validateWorldID(worldID); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return nil, false, ErrClosed
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(worldID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	data, err := decompress(raw)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Save сжимает и записывает состояние мира одной транзакцией
func (s *BadgerStateStore) Save(ctx context.Context, worldID string, data []byte) error {
	if err := validateWorldID(worldID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	packed, err := compress(data)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return ErrClosed
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(worldID), packed)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// Close закрывает хранилище (и базу, если она открыта этим хранилищем)
func (s *BadgerStateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isReady {
		return nil
	}
	s.isReady = false
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
