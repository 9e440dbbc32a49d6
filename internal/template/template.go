package template

import (
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/annel0/skyplots/internal/block"
)

const (
	// SpawnMarker отмечает точку появления на участке
	SpawnMarker = '!'
	// AirMarker — пустая ячейка
	AirMarker = ' '
)

// Template — слоистый шаблон участка: слои снизу вверх, в каждом слое ряды,
// в каждом ряду символы, которые сопоставлением переводятся в блоки.
type Template struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Name    string                 `yaml:"name" json:"name"`
	Layers  [][]string             `yaml:"layers" json:"layers"`
	Mapping map[string]*Definition `yaml:"mapping" json:"mapping"`

	mu        sync.Mutex
	source    string
	keys      map[rune]*Definition
	catalog   *block.Catalog
	validated bool
}

// Source возвращает имя файла, из которого загружен шаблон
func (t *Template) Source() string {
	return t.source
}

// DisplayName возвращает отображаемое имя, либо имя файла
func (t *Template) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.source
}

// Validated сообщает, прошёл ли шаблон валидацию
func (t *Template) Validated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.validated
}

// Catalog возвращает каталог, по которому шаблон был провалидирован
func (t *Template) Catalog() *block.Catalog {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.catalog
}

// Definition возвращает определение для символа; пробел, маркер точки
// появления и несопоставленные символы дают воздух.
func (t *Template) Definition(c rune) *Definition {
	if def, ok := t.keys[c]; ok {
		return def
	}
	return Air
}

func (t *Template) configError(key rune, blockID string, err error) *ConfigError {
	return &ConfigError{Template: t.DisplayName(), Key: key, Block: blockID, Err: err}
}

// Validate полностью проверяет шаблон и все определения блоков.
// Отключённый шаблон не проверяется и остаётся непригодным к использованию.
// Определения разрешаются один раз, поэтому проверенный шаблон привязан к своему
// каталогу: повторная проверка по другому каталогу возвращает ErrCatalogMismatch.
func (t *Template) Validate(catalog *block.Catalog) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.Enabled {
		return nil
	}
	if t.validated {
		if catalog != t.catalog {
			return t.configError(0, "", ErrCatalogMismatch)
		}
		return nil
	}

	used := make(map[rune]struct{})
	for _, layer := range t.Layers {
		if layer == nil {
			return t.configError(0, "", ErrNilLayer)
		}
		for _, row := range layer {
			for _, c := range row {
				used[c] = struct{}{}
			}
		}
	}
	delete(used, AirMarker)
	delete(used, SpawnMarker)
	if len(used) == 0 {
		return t.configError(0, "", ErrNoBlocks)
	}

	names := make([]string, 0, len(t.Mapping))
	for name := range t.Mapping {
		names = append(names, name)
	}
	sort.Strings(names)

	keys := make(map[rune]*Definition, len(names))
	for _, name := range names {
		def := t.Mapping[name]
		if utf8.RuneCountInString(name) != 1 {
			return &ConfigError{Template: t.DisplayName(), Err: fmt.Errorf("%w: %q", ErrInvalidKey, name)}
		}
		key, _ := utf8.DecodeRuneInString(name)
		switch key {
		case AirMarker:
			return t.configError(key, "", fmt.Errorf("%w: the space character is reserved for the air block", ErrReservedKey))
		case SpawnMarker:
			return t.configError(key, "", fmt.Errorf("%w: the ! character is reserved for the spawn point", ErrReservedKey))
		}
		if def == nil || def.Block == "" {
			return t.configError(key, "", ErrNoBlockID)
		}
		if _, _, err := def.Resolve(catalog); err != nil {
			return t.configError(key, def.Block, fmt.Errorf("%w: %w", ErrInvalidDefinition, err))
		}
		keys[key] = def
	}

	var unmapped []string
	for c := range used {
		if _, ok := keys[c]; !ok {
			unmapped = append(unmapped, string(c))
		}
	}
	if len(unmapped) > 0 {
		sort.Strings(unmapped)
		return t.configError(0, "", fmt.Errorf("%w: %v", ErrUnmappedKeys, unmapped))
	}

	t.keys = keys
	t.catalog = catalog
	t.validated = true
	return nil
}
