package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/annel0/skyplots/internal/logging"
	"github.com/dgraph-io/badger/v3"
)

// Поддерживаемые бэкенды состояния
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Config описывает выбор и параметры хранилища состояния
type Config struct {
	Backend string
	DataDir string // каталог BadgerDB и файла SQLite
	DSN     string // строка подключения MySQL; для SQLite — путь к файлу (по умолчанию DataDir/plots.db)
	Redis   RedisConfig
	Mongo   MongoConfig
}

// Open создаёт хранилище состояния по конфигурации.
// Для бэкенда badger db — уже открытая база (общая с хранилищем мира); nil — открыть свою.
func Open(ctx context.Context, cfg Config, db *badger.DB) (StateStore, error) {
	log := logging.GetStorageLogger()
	switch cfg.Backend {
	case "", BackendBadger:
		if db != nil {
			log.Info("💾 Состояние участков: BadgerDB (общая база мира)")
			return NewBadgerStateStore(db), nil
		}
		dir := filepath.Join(cfg.DataDir, "plots")
		log.Info("💾 Состояние участков: BadgerDB в %s", dir)
		return OpenBadgerStateStore(dir)
	case BackendMemory:
		log.Warn("⚠️ Состояние участков хранится в памяти и будет потеряно при перезапуске")
		return NewMemoryStateStore(), nil
	case BackendRedis:
		return NewRedisStateStore(ctx, &cfg.Redis)
	case BackendMySQL:
		log.Info("💾 Состояние участков: MariaDB/MySQL")
		return NewSQLStateStore(ctx, DialectMySQL, cfg.DSN)
	case BackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = filepath.Join(cfg.DataDir, "plots.db")
		}
		log.Info("💾 Состояние участков: SQLite %s", dsn)
		return NewSQLStateStore(ctx, DialectSQLite, dsn)
	case BackendMongo:
		log.Info("💾 Состояние участков: MongoDB %s", cfg.Mongo.URI)
		return NewMongoStateStore(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища %q", cfg.Backend)
	}
}
