package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// StateStore хранит сериализованное состояние реестра участков по идентификатору мира.
// Реализации: память, BadgerDB, Redis, MySQL/SQLite, MongoDB.
type StateStore interface {
	// Load возвращает сохранённое состояние; false — состояния ещё нет
	Load(ctx context.Context, worldID string) ([]byte, bool, error)

	// Save атомарно заменяет состояние мира
	Save(ctx context.Context, worldID string, data []byte) error

	// Close освобождает соединения хранилища
	Close() error
}

// ErrClosed — хранилище уже закрыто
var ErrClosed = errors.New("storage is closed")

func validateWorldID(worldID string) error {
	if worldID == "" {
		return fmt.Errorf("недействительный идентификатор мира: пустая строка")
	}
	if len(worldID) > 64 {
		return fmt.Errorf("недействительный идентификатор мира %q: длиннее 64 символов", worldID)
	}
	return nil
}

// zstdMagic — первые байты кадра zstd
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() error {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return codecErr
}

// compress сжимает блоб состояния для Badger и Redis
func compress(data []byte) ([]byte, error) {
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("ошибка инициализации zstd: %w", err)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// decompress распаковывает блоб; несжатые данные (JSON) возвращаются как есть
func decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("ошибка инициализации zstd: %w", err)
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки состояния: %w", err)
	}
	return out, nil
}
