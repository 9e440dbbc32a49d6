package world

import (
	"context"
	"sync"
	"testing"

	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/plot"
	"github.com/annel0/skyplots/internal/template"
	"github.com/annel0/skyplots/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memChunkStore struct {
	mu     sync.Mutex
	chunks map[string]*ChunkDelta
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{chunks: make(map[string]*ChunkDelta)}
}

func (s *memChunkStore) SaveChunk(ctx context.Context, worldID string, delta *ChunkDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[worldID+delta.Coords.String()] = delta
	return nil
}

func (s *memChunkStore) LoadChunk(ctx context.Context, worldID string, coords vec.Vec2) (*ChunkDelta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.chunks[worldID+coords.String()]
	return d, ok, nil
}

func mustState(t *testing.T, s string) block.State {
	t.Helper()
	state, err := block.DefaultCatalog().ParseState(s)
	require.NoError(t, err)
	return state
}

func TestWorld_SetAndGetBlock(t *testing.T) {
	w := New("test", nil, nil)
	stone := mustState(t, "minecraft:stone")

	positions := []vec.Vec3{
		{X: 0, Y: 80, Z: 0},
		{X: -1, Y: 80, Z: -1},
		{X: -17, Y: 0, Z: 33},
		{X: 1000, Y: 319, Z: -1000},
	}
	for _, pos := range positions {
		require.NoError(t, w.SetBlock(pos, stone))
		assert.Equal(t, stone, w.Block(pos), "блок в %s", pos)
	}
	assert.True(t, w.Block(vec.Vec3{X: 5, Y: 5, Z: 5}).IsAir(), "пустая позиция — воздух")
	assert.Equal(t, len(positions), w.Stats().Blocks)

	// Воздух удаляет блок
	require.NoError(t, w.SetBlock(positions[0], block.Air))
	assert.True(t, w.Block(positions[0]).IsAir())
}

func TestWorld_Bounds(t *testing.T) {
	w := New("test", nil, nil)
	err := w.SetBlock(vec.Vec3{Y: MaxY + 1}, mustState(t, "stone"))
	assert.ErrorIs(t, err, ErrOutOfBounds)
	err = w.SetBlock(vec.Vec3{Y: MinY - 1}, mustState(t, "stone"))
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestWorld_Containers(t *testing.T) {
	w := New("test", nil, nil)
	pos := vec.Vec3{X: 3, Y: 70, Z: -4}

	require.NoError(t, w.SetBlock(pos, mustState(t, "stone")))
	_, ok := w.ContainerAt(pos)
	assert.False(t, ok, "камень не контейнер")

	require.NoError(t, w.SetBlock(pos, mustState(t, "minecraft:chest[facing=west]")))
	c, ok := w.ContainerAt(pos)
	require.True(t, ok)
	require.NoError(t, c.WritePayload(block.Tag{"Items": []interface{}{}}, pos))

	tag, ok := w.Payload(pos)
	require.True(t, ok)
	assert.Contains(t, tag, "Items")

	// Замена блока сбрасывает данные контейнера
	require.NoError(t, w.SetBlock(pos, mustState(t, "stone")))
	_, ok = w.Payload(pos)
	assert.False(t, ok)
}

func TestWorld_SpawnPoint(t *testing.T) {
	w := New("test", nil, nil)
	_, ok := w.Spawn()
	assert.False(t, ok)

	w.SetSpawn(vec.Vec3{X: 8, Y: 81, Z: 8})
	spawn, ok := w.Spawn()
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 8, Y: 81, Z: 8}, spawn)
}

func TestWorld_SaveAndReload(t *testing.T) {
	ctx := context.Background()
	store := newMemChunkStore()
	w := New("overworld", nil, store)

	chest := vec.Vec3{X: -20, Y: 64, Z: 17}
	require.NoError(t, w.SetBlock(vec.Vec3{X: 1, Y: 64, Z: 1}, mustState(t, "minecraft:oak_log[axis=x]")))
	require.NoError(t, w.SetBlock(chest, mustState(t, "chest")))
	c, ok := w.ContainerAt(chest)
	require.True(t, ok)
	require.NoError(t, c.WritePayload(block.Tag{"x": -20, "y": 64, "z": 17}, chest))

	require.NoError(t, w.Save(ctx))
	assert.Equal(t, 0, w.Stats().Dirty)
	assert.Len(t, store.chunks, 2)

	reloaded := New("overworld", nil, store)
	assert.Equal(t, mustState(t, "minecraft:oak_log[axis=x]"), reloaded.Block(vec.Vec3{X: 1, Y: 64, Z: 1}))
	assert.Equal(t, "minecraft:chest", reloaded.Block(chest).ID())
	tag, ok := reloaded.Payload(chest)
	require.True(t, ok)
	assert.Equal(t, -20, tag["x"])
}

// hookChunkStore вызывает onSave во время сохранения чанка
type hookChunkStore struct {
	*memChunkStore
	onSave func()
}

func (s *hookChunkStore) SaveChunk(ctx context.Context, worldID string, delta *ChunkDelta) error {
	if s.onSave != nil {
		s.onSave()
	}
	return s.memChunkStore.SaveChunk(ctx, worldID, delta)
}

func TestWorld_SaveKeepsConcurrentChanges(t *testing.T) {
	ctx := context.Background()
	stone := mustState(t, "minecraft:stone")
	store := &hookChunkStore{memChunkStore: newMemChunkStore()}
	w := New("overworld", nil, store)

	require.NoError(t, w.SetBlock(vec.Vec3{X: 0, Y: 80, Z: 0}, stone))
	late := vec.Vec3{X: 1, Y: 80, Z: 1}
	store.onSave = func() {
		store.onSave = nil
		require.NoError(t, w.SetBlock(late, stone))
	}

	require.NoError(t, w.Save(ctx))
	assert.Equal(t, 1, w.Stats().Dirty, "блок, поставленный во время сохранения, остаётся несохранённым")

	require.NoError(t, w.Save(ctx))
	assert.Equal(t, 0, w.Stats().Dirty)

	reloaded := New("overworld", nil, store)
	assert.Equal(t, stone, reloaded.Block(late), "второе сохранение должно записать поздний блок")
}

func TestWorld_StampTemplate(t *testing.T) {
	lib, err := template.NewLibrary(template.Options{})
	require.NoError(t, err)
	tpl, err := lib.Default()
	require.NoError(t, err)

	w := New("overworld", nil, nil)
	anchor := vec.Vec3{X: 8, Y: 80, Z: 8}
	spawn, err := plot.Stamp(w, tpl, anchor)
	require.NoError(t, err)

	// Маркер во втором ряду первого символа четвёртого слоя
	assert.Equal(t, vec.Vec3{X: 8, Y: 83, Z: 7}, spawn)
	assert.Equal(t, "minecraft:dirt", w.Block(anchor).ID())
	assert.Equal(t, "minecraft:grass_block", w.Block(anchor.Up(2)).ID())

	// Сундук: первый ряд (X+1), третий символ (Z+1)
	chest := vec.Vec3{X: 9, Y: 83, Z: 9}
	assert.Equal(t, "minecraft:chest", w.Block(chest).ID())
	payload, ok := w.Payload(chest)
	require.True(t, ok)
	assert.Equal(t, 9, payload["x"])
	assert.Contains(t, payload, "Items")
}
