package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Operator — учётная запись оператора REST API
type Operator struct {
	Username     string    // Уникальное имя (без учёта регистра)
	PasswordHash string    // bcrypt-хеш пароля
	IsAdmin      bool      // Права на изменяющие операции
	LastLogin    time.Time // Последний успешный вход
}

// OperatorRepository определяет доступ к операторам.
type OperatorRepository interface {
	// GetOperator возвращает оператора по имени (без учёта регистра) или ErrOperatorNotFound.
	GetOperator(username string) (*Operator, error)

	// ValidateCredentials проверяет пароль и возвращает оператора или ErrInvalidCredentials.
	ValidateCredentials(username, password string) (*Operator, error)
}

// Domain-level errors returned by the repository.
var (
	ErrOperatorNotFound   = errors.New("operator not found")
	ErrOperatorExists     = errors.New("operator already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// HashPassword returns a bcrypt hash of the password using DefaultCost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// MemoryOperatorRepo — потокобезопасное хранилище операторов в памяти.
// Операторы задаются в конфигурации при старте.
type MemoryOperatorRepo struct {
	mu        sync.RWMutex
	operators map[string]*Operator // key = lowercase(username)
}

// NewMemoryOperatorRepo создаёт пустой репозиторий
func NewMemoryOperatorRepo() *MemoryOperatorRepo {
	return &MemoryOperatorRepo{operators: make(map[string]*Operator)}
}

// AddOperator добавляет оператора с готовым bcrypt-хешем.
func (r *MemoryOperatorRepo) AddOperator(username, passwordHash string, isAdmin bool) (*Operator, error) {
	key := normalize(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.operators[key]; exists {
		return nil, ErrOperatorExists
	}
	op := &Operator{Username: username, PasswordHash: passwordHash, IsAdmin: isAdmin}
	r.operators[key] = op
	return op, nil
}

// GetOperator implements OperatorRepository.
func (r *MemoryOperatorRepo) GetOperator(username string) (*Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.operators[normalize(username)]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	c := *op
	return &c, nil
}

// ValidateCredentials implements OperatorRepository.
// Неизвестное имя и неверный пароль дают одну и ту же ошибку.
func (r *MemoryOperatorRepo) ValidateCredentials(username, password string) (*Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operators[normalize(username)]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	op.LastLogin = time.Now()
	c := *op
	return &c, nil
}

// Count возвращает количество операторов
func (r *MemoryOperatorRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.operators)
}

// Helper to normalise usernames.
func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
