package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/logging"
	"github.com/annel0/skyplots/internal/plot"
	"github.com/annel0/skyplots/internal/vec"
)

// Границы высоты мира
const (
	MinY = -64
	MaxY = 319
)

// ErrOutOfBounds — позиция вне допустимой высоты мира
var ErrOutOfBounds = errors.New("position outside world height")

// ChunkStore — постоянное хранилище чанков
type ChunkStore interface {
	SaveChunk(ctx context.Context, worldID string, delta *ChunkDelta) error
	LoadChunk(ctx context.Context, worldID string, coords vec.Vec2) (*ChunkDelta, bool, error)
}

// World — воксельный мир из разреженных чанков. Реализует поверхность размещения участков.
type World struct {
	id      string
	catalog *block.Catalog
	store   ChunkStore // nil — мир только в памяти

	mu     sync.RWMutex
	chunks map[vec.Vec2]*Chunk

	spawnMu  sync.RWMutex
	spawn    vec.Vec3
	hasSpawn bool

	saveMu       sync.Mutex
	lastSaveTime time.Time
}

// New создаёт мир
func New(id string, catalog *block.Catalog, store ChunkStore) *World {
	if catalog == nil {
		catalog = block.DefaultCatalog()
	}
	return &World{
		id:           id,
		catalog:      catalog,
		store:        store,
		chunks:       make(map[vec.Vec2]*Chunk),
		lastSaveTime: time.Now(),
	}
}

// ID возвращает идентификатор мира
func (w *World) ID() string {
	return w.id
}

func split(pos vec.Vec3) (vec.Vec2, LocalPos) {
	col := pos.Column()
	local := col.LocalInChunk()
	return col.ToChunkCoords(), LocalPos{X: local.X, Y: pos.Y, Z: local.Z}
}

// chunk возвращает чанк, подгружая его из хранилища; create — создать пустой при отсутствии
func (w *World) chunk(coords vec.Vec2, create bool) (*Chunk, error) {
	w.mu.RLock()
	c, ok := w.chunks[coords]
	w.mu.RUnlock()
	if ok {
		return c, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.chunks[coords]; ok {
		return c, nil
	}

	if w.store != nil {
		delta, found, err := w.store.LoadChunk(context.Background(), w.id, coords)
		if err != nil {
			return nil, fmt.Errorf("ошибка загрузки чанка %s: %w", coords, err)
		}
		if found {
			c := NewChunk(coords)
			if err := c.ApplyDelta(delta, w.catalog); err != nil {
				return nil, err
			}
			w.chunks[coords] = c
			return c, nil
		}
	}
	if !create {
		return nil, nil
	}
	c = NewChunk(coords)
	w.chunks[coords] = c
	return c, nil
}

// SetBlock ставит блок в мир
func (w *World) SetBlock(pos vec.Vec3, state block.State) error {
	if pos.Y < MinY || pos.Y > MaxY {
		return fmt.Errorf("%w: %s", ErrOutOfBounds, pos)
	}
	if _, ok := w.catalog.Lookup(state.ID()); !ok {
		return fmt.Errorf("%w: %s", block.ErrUnknownBlock, state.ID())
	}

	coords, local := split(pos)
	c, err := w.chunk(coords, !state.IsAir())
	if err != nil {
		return err
	}
	if c == nil {
		return nil // воздух в пустом чанке
	}
	c.SetBlock(local, state)
	return nil
}

// Block возвращает блок в позиции
func (w *World) Block(pos vec.Vec3) block.State {
	coords, local := split(pos)
	c, err := w.chunk(coords, false)
	if err != nil {
		logging.Warn("Чтение блока %s: %v", pos, err)
		return block.Air
	}
	if c == nil {
		return block.Air
	}
	return c.GetBlock(local)
}

// ContainerAt возвращает контейнер, если в позиции стоит блок-контейнер
func (w *World) ContainerAt(pos vec.Vec3) (plot.Container, bool) {
	if !w.catalog.IsContainer(w.Block(pos).ID()) {
		return nil, false
	}
	return &container{world: w}, true
}

// Payload возвращает данные контейнера в позиции
func (w *World) Payload(pos vec.Vec3) (block.Tag, bool) {
	coords, local := split(pos)
	c, err := w.chunk(coords, false)
	if err != nil || c == nil {
		return nil, false
	}
	return c.Payload(local)
}

type container struct {
	world *World
}

// WritePayload записывает данные в контейнер
func (ct *container) WritePayload(tag block.Tag, pos vec.Vec3) error {
	if !ct.world.catalog.IsContainer(ct.world.Block(pos).ID()) {
		return fmt.Errorf("%w: %s", plot.ErrNoContainer, pos)
	}
	coords, local := split(pos)
	c, err := ct.world.chunk(coords, true)
	if err != nil {
		return err
	}
	c.SetPayload(local, tag)
	return nil
}

// SetSpawn задаёт точку появления мира
func (w *World) SetSpawn(pos vec.Vec3) {
	w.spawnMu.Lock()
	defer w.spawnMu.Unlock()
	w.spawn = pos
	w.hasSpawn = true
	logging.Info("🌍 Точка появления мира %s: %s", w.id, pos)
}

// Spawn возвращает точку появления мира
func (w *World) Spawn() (vec.Vec3, bool) {
	w.spawnMu.RLock()
	defer w.spawnMu.RUnlock()
	return w.spawn, w.hasSpawn
}

// Stats — сводка по загруженной части мира
type Stats struct {
	Chunks int `json:"chunks"`
	Blocks int `json:"blocks"`
	Dirty  int `json:"dirty"`
}

// Stats возвращает сводку по загруженным чанкам
func (w *World) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Stats{Chunks: len(w.chunks)}
	for _, c := range w.chunks {
		s.Blocks += c.BlockCount()
		if c.IsDirty() {
			s.Dirty++
		}
	}
	return s
}

// Save сохраняет изменённые чанки. Без хранилища ничего не делает.
func (w *World) Save(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	w.mu.RLock()
	dirty := make([]*Chunk, 0)
	for _, c := range w.chunks {
		if c.IsDirty() {
			dirty = append(dirty, c)
		}
	}
	w.mu.RUnlock()

	for _, c := range dirty {
		delta, seen := c.Delta()
		if err := w.store.SaveChunk(ctx, w.id, delta); err != nil {
			return fmt.Errorf("ошибка сохранения чанка %s: %w", c.Coords, err)
		}
		c.ClearChanges(seen)
	}
	w.lastSaveTime = time.Now()
	if len(dirty) > 0 {
		logging.Debug("Мир %s: сохранено чанков %d", w.id, len(dirty))
	}
	return nil
}

// Run запускает периодическое сохранение мира до отмены контекста.
// При остановке выполняется финальное сохранение.
func (w *World) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := w.Save(saveCtx); err != nil {
				logging.Error("❌ Финальное сохранение мира %s: %v", w.id, err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := w.Save(ctx); err != nil {
				logging.Error("❌ Автосохранение мира %s: %v", w.id, err)
			}
		}
	}
}
