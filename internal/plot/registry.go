package plot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/logging"
	"github.com/annel0/skyplots/internal/metrics"
	"github.com/annel0/skyplots/internal/template"
	"github.com/annel0/skyplots/internal/vec"
	"github.com/google/uuid"
)

const (
	DefaultWorldID = "overworld"
	DefaultSpacing = 1000
	DefaultBaseY   = 80
)

// Store — хранилище сериализованного состояния реестра по идентификатору мира
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Options — параметры реестра
type Options struct {
	WorldID string
	Spacing int
	BaseY   int
	Store   Store // nil — состояние только в памяти
	Catalog *block.Catalog
}

// Registry — реестр участков одного мира: владелец → участок и курсор спирали.
// Создание участков сериализовано; чтение идёт параллельно с созданием.
type Registry struct {
	worldID string
	store   Store
	catalog *block.Catalog

	// createMu держится на всё время проверки, выделения, размещения и сохранения
	createMu sync.Mutex

	mu     sync.RWMutex
	cursor Cursor
	plots  map[uuid.UUID]*Plot
}

// NewRegistry создаёт пустой реестр
func NewRegistry(opts Options) *Registry {
	if opts.WorldID == "" {
		opts.WorldID = DefaultWorldID
	}
	if opts.Spacing <= 0 {
		opts.Spacing = DefaultSpacing
	}
	if opts.BaseY == 0 {
		opts.BaseY = DefaultBaseY
	}
	if opts.Catalog == nil {
		opts.Catalog = block.DefaultCatalog()
	}
	return &Registry{
		worldID: opts.WorldID,
		store:   opts.Store,
		catalog: opts.Catalog,
		cursor:  NewCursor(opts.Spacing, opts.BaseY),
		plots:   make(map[uuid.UUID]*Plot),
	}
}

// Open создаёт реестр и загружает сохранённое состояние, если оно есть.
// Шаг решётки из сохранённого курсора имеет приоритет над настройкой.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	r := NewRegistry(opts)
	if r.store == nil {
		return r, nil
	}
	data, ok, err := r.store.Load(ctx, r.worldID)
	if err != nil {
		return nil, fmt.Errorf("error loading plots for %s: %w", r.worldID, err)
	}
	if !ok {
		logging.Info("🏝️ Реестр участков %s пуст, начинаем с начала спирали", r.worldID)
		return r, nil
	}
	if err := r.Unmarshal(data); err != nil {
		return nil, err
	}
	if r.cursor.Spacing != opts.Spacing && opts.Spacing > 0 {
		logging.Warn("Шаг решётки %s взят из сохранения (%d), настройка %d игнорируется", r.worldID, r.cursor.Spacing, opts.Spacing)
	}
	logging.Info("🏝️ Загружено участков: %d (мир %s, кольцо %d)", r.Len(), r.worldID, r.cursor.Layer)
	return r, nil
}

// WorldID возвращает идентификатор мира реестра
func (r *Registry) WorldID() string {
	return r.worldID
}

// Catalog возвращает каталог блоков, по которому проверяются шаблоны
func (r *Registry) Catalog() *block.Catalog {
	return r.catalog
}

// Get возвращает участок владельца
func (r *Registry) Get(owner uuid.UUID) (*Plot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plots[owner]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// Lobby возвращает участок лобби, если он создан
func (r *Registry) Lobby() (*Plot, bool) {
	return r.Get(LobbyOwner)
}

// List возвращает все участки, упорядоченные по владельцу
func (r *Registry) List() []*Plot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Plot, 0, len(r.plots))
	for _, p := range r.plots {
		list = append(list, p.clone())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Owner.String() < list[j].Owner.String()
	})
	return list
}

// Len возвращает количество участков
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plots)
}

// Cursor возвращает копию курсора спирали
func (r *Registry) Cursor() Cursor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursor
}

// GetOrCreate возвращает участок владельца, создавая его при отсутствии.
// Второй результат сообщает, был ли участок создан этим вызовом.
// При конкурентных вызовах для одного владельца шаблон размещается ровно один раз.
func (r *Registry) GetOrCreate(ctx context.Context, surface WorldSurface, owner uuid.UUID, name string, tpl *template.Template) (*Plot, bool, error) {
	if p, ok := r.Get(owner); ok {
		return p, false, nil
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	if p, ok := r.Get(owner); ok {
		return p, false, nil
	}
	p, err := r.create(ctx, surface, owner, name, tpl)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Regenerate всегда размещает новый участок в следующей клетке спирали и заменяет
// запись владельца. Старый участок остаётся в мире, его клетка больше не выдаётся.
func (r *Registry) Regenerate(ctx context.Context, surface WorldSurface, owner uuid.UUID, name string, tpl *template.Template) (*Plot, error) {
	r.createMu.Lock()
	defer r.createMu.Unlock()
	return r.create(ctx, surface, owner, name, tpl)
}

func (r *Registry) create(ctx context.Context, surface WorldSurface, owner uuid.UUID, name string, tpl *template.Template) (*Plot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if surface == nil {
		return nil, ErrUnbound
	}
	if tpl == nil {
		return nil, fmt.Errorf("no template for plot %s", owner)
	}
	if err := tpl.Validate(r.catalog); err != nil {
		return nil, err
	}
	if !tpl.Enabled {
		return nil, &template.ConfigError{Template: tpl.DisplayName(), Err: template.ErrDisabled}
	}
	if name == "" {
		name = owner.String()
	}

	lattice, anchor, err := r.allocate()
	if err != nil {
		return nil, err
	}

	spawn, err := Stamp(surface, tpl, anchor)
	if err != nil {
		metrics.PlacementErrors.Inc()
		var pe *PlacementError
		if errors.As(err, &pe) {
			pe.Owner = owner
		}
		logging.Error("❌ Размещение участка %s в %s прервано: %v", owner, anchor, err)
		// Клетка уже выдана и не должна выдаваться повторно
		if perr := r.persist(ctx); perr != nil {
			return nil, errors.Join(err, perr)
		}
		return nil, err
	}

	p := &Plot{Owner: owner, Name: name, Spawn: spawn}

	r.mu.Lock()
	prev, had := r.plots[owner]
	r.plots[owner] = p
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		r.mu.Lock()
		if had {
			r.plots[owner] = prev
		} else {
			delete(r.plots, owner)
		}
		r.mu.Unlock()
		return nil, err
	}

	metrics.PlotsTotal.Set(float64(r.Len()))
	logging.Debug("Участок %s (%s) размещён: клетка %s, якорь %s, появление %s", owner, name, lattice, anchor, spawn)
	return p.clone(), nil
}

// allocate выдаёт следующую клетку спирали и её якорь.
// Клетка считается выданной даже если якорь вычислить не удалось.
func (r *Registry) allocate() (vec.Vec2, vec.Vec3, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lattice, err := r.cursor.Next()
	if err != nil {
		return vec.Vec2{}, vec.Vec3{}, err
	}
	metrics.CursorLayer.Set(float64(r.cursor.Layer))
	anchor, err := r.cursor.Anchor(lattice)
	if err != nil {
		return vec.Vec2{}, vec.Vec3{}, err
	}
	return lattice, anchor, nil
}

// Flush сохраняет текущее состояние реестра
func (r *Registry) Flush(ctx context.Context) error {
	r.createMu.Lock()
	defer r.createMu.Unlock()
	return r.persist(ctx)
}

func (r *Registry) persist(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if err := r.store.Save(ctx, r.worldID, data); err != nil {
		metrics.PersistErrors.Inc()
		return fmt.Errorf("error saving plots for %s: %w", r.worldID, err)
	}
	return nil
}

// Marshal сериализует курсор и все участки
func (r *Registry) Marshal() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return encodeState(r.cursor, r.plots)
}

// Unmarshal заменяет состояние реестра сохранённым
func (r *Registry) Unmarshal(data []byte) error {
	cursor, plots, err := decodeState(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cursor = cursor
	r.plots = plots
	r.mu.Unlock()

	metrics.PlotsTotal.Set(float64(len(plots)))
	metrics.CursorLayer.Set(float64(cursor.Layer))
	return nil
}
