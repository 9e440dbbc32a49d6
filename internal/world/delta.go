package world

import (
	"fmt"

	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/vec"
)

// ChunkDelta — сохраняемое содержимое чанка
type ChunkDelta struct {
	Coords vec.Vec2              `json:"coords"`
	Blocks map[string]BlockDelta `json:"blocks"` // Ключ - локальные координаты "x:y:z"
}

// BlockDelta — сохраняемый блок
type BlockDelta struct {
	State   string    `json:"state"` // "minecraft:chest[facing=west,...]"
	Payload block.Tag `json:"payload,omitempty"`
}

// Delta снимает копию содержимого чанка вместе со счётчиком изменений,
// который эта копия покрывает
func (c *Chunk) Delta() (*ChunkDelta, int) {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	delta := &ChunkDelta{
		Coords: c.Coords,
		Blocks: make(map[string]BlockDelta, len(c.Blocks)),
	}
	for pos, state := range c.Blocks {
		bd := BlockDelta{State: state.String()}
		if tag, ok := c.Payloads[pos]; ok {
			bd.Payload = tag.Clone()
		}
		delta.Blocks[pos.key()] = bd
	}
	return delta, c.ChangeCounter
}

// ApplyDelta восстанавливает содержимое чанка из сохранения.
// Состояния блоков разбираются по каталогу, неизвестные блоки — ошибка.
func (c *Chunk) ApplyDelta(delta *ChunkDelta, catalog *block.Catalog) error {
	if delta == nil {
		return nil
	}

	blocks := make(map[LocalPos]block.State, len(delta.Blocks))
	payloads := make(map[LocalPos]block.Tag)
	for key, bd := range delta.Blocks {
		pos, err := parseLocalKey(key)
		if err != nil {
			return err
		}
		state, err := catalog.ParseState(bd.State)
		if err != nil {
			return fmt.Errorf("чанк %s, блок %s: %w", delta.Coords, key, err)
		}
		if state.IsAir() {
			continue
		}
		blocks[pos] = state
		if bd.Payload != nil {
			payloads[pos] = bd.Payload
		}
	}

	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Blocks = blocks
	c.Payloads = payloads
	c.ChangeCounter = 0
	return nil
}
