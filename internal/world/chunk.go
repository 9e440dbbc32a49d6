package world

import (
	"fmt"
	"sync"

	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/vec"
)

// ChunkSize — размер чанка по X и Z
const ChunkSize = 16

// LocalPos — позиция блока внутри чанка (X, Z в 0..15)
type LocalPos struct {
	X, Y, Z int
}

func (p LocalPos) key() string {
	return fmt.Sprintf("%d:%d:%d", p.X, p.Y, p.Z)
}

func parseLocalKey(key string) (LocalPos, error) {
	var p LocalPos
	if _, err := fmt.Sscanf(key, "%d:%d:%d", &p.X, &p.Y, &p.Z); err != nil {
		return LocalPos{}, fmt.Errorf("неверный ключ блока %q: %w", key, err)
	}
	if p.X < 0 || p.X >= ChunkSize || p.Z < 0 || p.Z >= ChunkSize {
		return LocalPos{}, fmt.Errorf("ключ блока %q вне чанка", key)
	}
	return p, nil
}

// Chunk — столб мира 16×16 блоков. Хранит только не-воздушные блоки.
type Chunk struct {
	Coords vec.Vec2 // Координаты чанка в мире

	Blocks   map[LocalPos]block.State
	Payloads map[LocalPos]block.Tag // данные контейнеров

	ChangeCounter int          // Счетчик изменений с последнего сохранения
	Mu            sync.RWMutex // Мьютекс для безопасного доступа
}

// NewChunk создаёт пустой чанк с указанными координатами
func NewChunk(coords vec.Vec2) *Chunk {
	return &Chunk{
		Coords:   coords,
		Blocks:   make(map[LocalPos]block.State),
		Payloads: make(map[LocalPos]block.Tag),
	}
}

// SetBlock ставит блок; воздух удаляет запись. Данные контейнера сбрасываются при замене блока.
func (c *Chunk) SetBlock(local LocalPos, state block.State) {
	c.Mu.Lock()
	defer c.Mu.Unlock()

	if prev, ok := c.Blocks[local]; ok && prev != state {
		delete(c.Payloads, local)
	}
	if state.IsAir() {
		delete(c.Blocks, local)
		delete(c.Payloads, local)
	} else {
		c.Blocks[local] = state
	}
	c.ChangeCounter++
}

// GetBlock возвращает блок в позиции (воздух, если пусто)
func (c *Chunk) GetBlock(local LocalPos) block.State {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	if s, ok := c.Blocks[local]; ok {
		return s
	}
	return block.Air
}

// SetPayload сохраняет копию данных контейнера
func (c *Chunk) SetPayload(local LocalPos, tag block.Tag) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Payloads[local] = tag.Clone()
	c.ChangeCounter++
}

// Payload возвращает копию данных контейнера
func (c *Chunk) Payload(local LocalPos) (block.Tag, bool) {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	tag, ok := c.Payloads[local]
	if !ok {
		return nil, false
	}
	return tag.Clone(), true
}

// BlockCount возвращает количество не-воздушных блоков
func (c *Chunk) BlockCount() int {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return len(c.Blocks)
}

// IsDirty сообщает, есть ли несохранённые изменения
func (c *Chunk) IsDirty() bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.ChangeCounter > 0
}

// ClearChanges вычитает сохранённые изменения из счётчика.
// Изменения, сделанные после снятия копии, остаются несохранёнными.
func (c *Chunk) ClearChanges(saved int) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.ChangeCounter -= saved
	if c.ChangeCounter < 0 {
		c.ChangeCounter = 0
	}
}
