package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/skyplots/internal/vec"
	"github.com/annel0/skyplots/internal/world"
	"github.com/dgraph-io/badger/v3"
)

// WorldStorage хранит чанки воксельного мира в BadgerDB.
// Ключ "chunk:<мир>:<x>:<z>", значение — JSON дельты чанка, сжатый zstd.
type WorldStorage struct {
	db      *badger.DB
	mutex   sync.RWMutex
	isReady bool
}

// NewWorldStorage создаёт хранилище мира поверх открытой базы
func NewWorldStorage(db *badger.DB) *WorldStorage {
	return &WorldStorage{db: db, isReady: true}
}

func chunkKey(worldID string, coords vec.Vec2) []byte {
	return []byte(fmt.Sprintf("chunk:%s:%d:%d", worldID, coords.X, coords.Z))
}

// Close помечает хранилище закрытым; базой владеет вызывающий
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()
	ws.isReady = false
	return nil
}

// SaveChunk сохраняет содержимое чанка
func (ws *WorldStorage) SaveChunk(ctx context.Context, worldID string, delta *world.ChunkDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	if !ws.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	data, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("ошибка сериализации дельты: %w", err)
	}
	packed, err := compress(data)
	if err != nil {
		return err
	}

	err = ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(worldID, delta.Coords), packed)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// LoadChunk загружает содержимое чанка; false — чанк ещё не сохранялся
func (ws *WorldStorage) LoadChunk(ctx context.Context, worldID string, coords vec.Vec2) (*world.ChunkDelta, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	if !ws.isReady {
		return nil, false, fmt.Errorf("хранилище не готово")
	}

	var raw []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(worldID, coords))
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
	var delta world.ChunkDelta
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&delta); err != nil {
		return nil, false, fmt.Errorf("ошибка десериализации дельты: %w", err)
	}
	return &delta, true, nil
}

// ChunkCount возвращает количество сохранённых чанков мира
func (ws *WorldStorage) ChunkCount(worldID string) (int, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	prefix := []byte("chunk:" + worldID + ":")
	count := 0
	err := ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
