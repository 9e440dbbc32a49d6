package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/skyplots/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string // Адрес Redis сервера
	Password  string // Пароль (пустой если не требуется)
	DB        int    // Номер базы данных
	KeyPrefix string // Префикс для ключей
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "skyplots:state:",
	}
}

// RedisStateStore хранит состояние реестра в Redis (значение сжато zstd, без TTL)
type RedisStateStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateStore подключается к Redis и проверяет соединение
func NewRedisStateStore(ctx context.Context, config *RedisConfig) (*RedisStateStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🔴 Connected to Redis at %s", config.Addr)
	return &RedisStateStore{client: client, keyPrefix: config.KeyPrefix}, nil
}

// Load читает состояние мира
func (s *RedisStateStore) Load(ctx context.Context, worldID string) ([]byte, bool, error) {
	if err := validateWorldID(worldID); err != nil {
		return nil, false, err
	}

	raw, err := s.client.Get(ctx, s.keyPrefix+worldID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get state: %w", err)
	}

	data, err := decompress(raw)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Save записывает состояние мира без срока жизни
func (s *RedisStateStore) Save(ctx context.Context, worldID string, data []byte) error {
	if err := validateWorldID(worldID); err != nil {
		return err
	}

	packed, err := compress(data)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.keyPrefix+worldID, packed, 0).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
