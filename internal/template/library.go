package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/logging"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Options задаёт источник и выбор шаблонов библиотеки
type Options struct {
	// Dir — каталог с файлами шаблонов; пустая строка означает только встроенные шаблоны
	Dir string
	// Default — имя файла шаблона участка по умолчанию
	Default string
	// Lobby — имя файла шаблона лобби; пусто — используется Default
	Lobby string
	// Catalog — каталог блоков для валидации; nil — block.DefaultCatalog()
	Catalog *block.Catalog
	// SeedBuiltin копирует встроенные шаблоны в Dir, если их там ещё нет
	SeedBuiltin bool
}

// Info — краткое описание загруженного шаблона
type Info struct {
	File string `json:"file"`
	Name string `json:"name"`
}

// Library хранит набор провалидированных шаблонов и выбор шаблонов участка и лобби.
// Перезагрузка атомарна: при ошибке продолжает работать прежний набор.
type Library struct {
	dir     string
	catalog *block.Catalog

	mu          sync.RWMutex
	templates   map[string]*Template
	defaultName string
	lobbyName   string
}

// NewLibrary создаёт библиотеку и выполняет первую загрузку
func NewLibrary(opts Options) (*Library, error) {
	if opts.Catalog == nil {
		opts.Catalog = block.DefaultCatalog()
	}
	if opts.Default == "" {
		opts.Default = "default.yaml"
	}

	l := &Library{
		dir:     opts.Dir,
		catalog: opts.Catalog,
	}

	if opts.Dir != "" && opts.SeedBuiltin {
		if err := l.seedBuiltin(); err != nil {
			return nil, err
		}
	}

	if err := l.ReloadWith(opts.Default, opts.Lobby); err != nil {
		return nil, err
	}
	return l, nil
}

// seedBuiltin копирует встроенные шаблоны в каталог, не перезаписывая существующие
func (l *Library) seedBuiltin() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("ошибка создания каталога шаблонов: %w", err)
	}

	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return fmt.Errorf("ошибка чтения встроенных шаблонов: %w", err)
	}
	for _, e := range entries {
		dst := filepath.Join(l.dir, e.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		data, err := builtinFS.ReadFile(path.Join("builtin", e.Name()))
		if err != nil {
			return err
		}
		tpl, err := Parse(e.Name(), data)
		if err == nil {
			err = tpl.Validate(l.catalog)
		}
		if err != nil {
			logging.Warn("Не копируем встроенный шаблон %s: %v", e.Name(), err)
			continue
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return fmt.Errorf("ошибка записи шаблона %s: %w", dst, err)
		}
		logging.Info("📄 Скопирован встроенный шаблон %s", dst)
	}
	return nil
}

func (l *Library) source() (fs.FS, error) {
	if l.dir == "" {
		return fs.Sub(builtinFS, "builtin")
	}
	return os.DirFS(l.dir), nil
}

func isTemplateFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Reload перечитывает шаблоны с текущим выбором шаблонов участка и лобби
func (l *Library) Reload() error {
	l.mu.RLock()
	def, lobby := l.defaultName, l.lobbyName
	l.mu.RUnlock()
	return l.ReloadWith(def, lobby)
}

// ReloadWith перечитывает все шаблоны и меняет выбор шаблонов.
// Некорректные файлы пропускаются с предупреждением; если шаблон участка
// или лобби не загрузился, возвращается ошибка и библиотека не меняется.
func (l *Library) ReloadWith(defaultName, lobbyName string) error {
	src, err := l.source()
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		return fmt.Errorf("ошибка чтения каталога шаблонов: %w", err)
	}

	loaded := make(map[string]*Template)
	failures := make(map[string]error)
	for _, e := range entries {
		if e.IsDir() || !isTemplateFile(e.Name()) {
			continue
		}
		tpl, err := l.load(src, e.Name())
		if err != nil {
			logging.Warn("Не загружаем шаблон %s: %v", e.Name(), err)
			failures[e.Name()] = err
			continue
		}
		if tpl == nil {
			continue // отключён
		}
		loaded[e.Name()] = tpl
	}

	required := []string{defaultName}
	if lobbyName != "" {
		required = append(required, lobbyName)
	}
	for _, name := range required {
		if _, ok := loaded[name]; ok {
			continue
		}
		if cause, failed := failures[name]; failed {
			return cause
		}
		return &ConfigError{Template: name, Err: ErrNotFound}
	}

	l.mu.Lock()
	l.templates = loaded
	l.defaultName = defaultName
	l.lobbyName = lobbyName
	l.mu.Unlock()

	logging.Info("📚 Загружено шаблонов: %d (участок=%s, лобби=%s)", len(loaded), defaultName, lobbyOrDefault(lobbyName, defaultName))
	return nil
}

func lobbyOrDefault(lobby, def string) string {
	if lobby == "" {
		return def
	}
	return lobby
}

// load читает и валидирует один файл; для отключённого шаблона возвращает nil, nil
func (l *Library) load(src fs.FS, name string) (*Template, error) {
	data, err := fs.ReadFile(src, name)
	if err != nil {
		return nil, err
	}
	tpl, err := Parse(name, data)
	if err != nil {
		return nil, err
	}
	if !tpl.Enabled {
		return nil, nil
	}
	if err := tpl.Validate(l.catalog); err != nil {
		return nil, err
	}
	return tpl, nil
}

// Get возвращает шаблон по имени файла
func (l *Library) Get(name string) (*Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tpl, ok := l.templates[name]
	if !ok {
		return nil, &ConfigError{Template: name, Err: ErrNotFound}
	}
	return tpl, nil
}

// Default возвращает шаблон участка по умолчанию
func (l *Library) Default() (*Template, error) {
	l.mu.RLock()
	name := l.defaultName
	l.mu.RUnlock()
	return l.Get(name)
}

// Lobby возвращает шаблон лобби, либо шаблон по умолчанию
func (l *Library) Lobby() (*Template, error) {
	l.mu.RLock()
	name := lobbyOrDefault(l.lobbyName, l.defaultName)
	l.mu.RUnlock()
	return l.Get(name)
}

// Catalog возвращает каталог блоков библиотеки
func (l *Library) Catalog() *block.Catalog {
	return l.catalog
}

// List возвращает описания загруженных шаблонов, отсортированные по имени файла
func (l *Library) List() []Info {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Info, 0, len(l.templates))
	for file, tpl := range l.templates {
		result = append(result, Info{File: file, Name: tpl.DisplayName()})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].File < result[j].File })
	return result
}

// IsNotFound сообщает, что ошибка означает отсутствующий шаблон
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
