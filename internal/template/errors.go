package template

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNilLayer          = errors.New("null data in layers - misplaced syntax?")
	ErrNoBlocks          = errors.New("no blocks defined in layers")
	ErrReservedKey       = errors.New("reserved key cannot be mapped")
	ErrInvalidKey        = errors.New("mapping key must be a single character")
	ErrNoBlockID         = errors.New("no block defined")
	ErrUnmappedKeys      = errors.New("blocks have no mapping")
	ErrInvalidDefinition = errors.New("invalid block definition")
	ErrDisabled          = errors.New("template is disabled")
	ErrNotFound          = errors.New("template not found")
	ErrMalformed         = errors.New("malformed template file")
	ErrCatalogMismatch   = errors.New("template was validated against another block catalog")
)

// ConfigError — ошибка шаблона или определения блока, найденная при валидации.
// Шаблон с такой ошибкой непригоден, но на реестр участков она не влияет.
type ConfigError struct {
	Template string // имя шаблона (файл или отображаемое имя)
	Key      rune   // символ сопоставления, 0 если не относится к ключу
	Block    string // идентификатор блока, если известен
	Err      error
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "template %q", e.Template)
	if e.Key != 0 {
		fmt.Fprintf(&sb, ": key %q", e.Key)
	}
	if e.Block != "" {
		fmt.Fprintf(&sb, " (block %s)", e.Block)
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
