package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Диалекты SQL-хранилища
const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite"
)

// SQLStateStore хранит состояние реестра в таблице plot_state (MariaDB/MySQL или SQLite).
// Одна строка на мир, блоб хранится как JSON без сжатия.
type SQLStateStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStateStore открывает базу и создаёт таблицу, если она не существует.
//
// Параметры:
//
//	dialect - DialectMySQL или DialectSQLite
//	dsn - строка подключения (user:pass@tcp(host:port)/dbname или путь к файлу SQLite)
func NewSQLStateStore(ctx context.Context, dialect, dsn string) (*SQLStateStore, error) {
	if dialect != DialectMySQL && dialect != DialectSQLite {
		return nil, fmt.Errorf("неизвестный SQL-диалект %q", dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// SQLite не допускает параллельной записи из нескольких соединений
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с %s: %w", dialect, err)
	}

	store := &SQLStateStore{db: db, dialect: dialect}
	if err := store.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return store, nil
}

func (s *SQLStateStore) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS plot_state (
			world_id   VARCHAR(64) PRIMARY KEY,
			data       BLOB        NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
		)`
	if s.dialect == DialectMySQL {
		query = `
		CREATE TABLE IF NOT EXISTS plot_state (
			world_id   VARCHAR(64) PRIMARY KEY,
			data       LONGBLOB    NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP
		) ENGINE=InnoDB`
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы plot_state: %w", err)
	}
	return nil
}

// Load читает состояние мира
func (s *SQLStateStore) Load(ctx context.Context, worldID string) ([]byte, bool, error) {
	if err := validateWorldID(worldID); err != nil {
		return nil, false, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM plot_state WHERE world_id = ?`, worldID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки состояния мира %s: %w", worldID, err)
	}
	return data, true, nil
}

// Save записывает состояние мира (INSERT или UPDATE одной командой)
func (s *SQLStateStore) Save(ctx context.Context, worldID string, data []byte) error {
	if err := validateWorldID(worldID); err != nil {
		return err
	}

	query := `
		INSERT INTO plot_state (world_id, data) VALUES (?, ?)
		ON CONFLICT(world_id) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`
	if s.dialect == DialectMySQL {
		query = `
		INSERT INTO plot_state (world_id, data) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE
			data = VALUES(data),
			updated_at = CURRENT_TIMESTAMP`
	}

	if _, err := s.db.ExecContext(ctx, query, worldID, data); err != nil {
		return fmt.Errorf("ошибка сохранения состояния мира %s: %w", worldID, err)
	}
	return nil
}

// Close закрывает соединение с базой данных
func (s *SQLStateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
