package plot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/template"
	"github.com/annel0/skyplots/internal/vec"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(store Store) *Registry {
	return NewRegistry(Options{Spacing: 1000, BaseY: 80, Store: store})
}

func TestRegistry_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	reg := newTestRegistry(store)
	surface := newFakeSurface()
	tpl := mustTemplate(t, pillarTemplate)

	first := uuid.New()
	p1, created, err := reg.GetOrCreate(ctx, surface, first, "alice", tpl)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, vec.Vec3{X: 8, Y: 80, Z: 8}, p1.Spawn)
	assert.Equal(t, "alice", p1.Name)

	second := uuid.New()
	p2, created, err := reg.GetOrCreate(ctx, surface, second, "bob", tpl)
	require.NoError(t, err)
	assert.True(t, created)
	// Вторая клетка спирали — (-1,-1)
	assert.Equal(t, vec.Vec3{X: -1000, Y: 80, Z: -1000}, p2.Spawn)
	assert.Equal(t, 1008, p1.Spawn.X-p2.Spawn.X)
	assert.Equal(t, 1008, p1.Spawn.Z-p2.Spawn.Z)

	assert.Equal(t, 2, store.saves, "каждое создание сохраняется")
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_GetOrCreateStampsOnce(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(nil)
	surface := newFakeSurface()
	tpl := mustTemplate(t, pillarTemplate)
	owner := uuid.New()

	p1, created, err := reg.GetOrCreate(ctx, surface, owner, "alice", tpl)
	require.NoError(t, err)
	require.True(t, created)
	calls := surface.Calls()

	p2, created, err := reg.GetOrCreate(ctx, surface, owner, "other", tpl)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p1, p2)
	assert.Equal(t, calls, surface.Calls(), "повторный вызов не размещает шаблон")
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(newMemStore())
	surface := newFakeSurface()
	tpl := mustTemplate(t, pillarTemplate)
	owner := uuid.New()

	const workers = 16
	results := make([]*Plot, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _, err := reg.GetOrCreate(ctx, surface, owner, "alice", tpl)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, surface.Calls(), "шаблон размещён ровно один раз")
	for _, p := range results {
		assert.Equal(t, results[0], p)
	}
	assert.Equal(t, 1, reg.Cursor().Layer, "выдана одна клетка")
}

func TestRegistry_ConcurrentOwnersDistinct(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(nil)
	surface := newFakeSurface()
	tpl := mustTemplate(t, pillarTemplate)

	const owners = 30
	var wg sync.WaitGroup
	for i := 0; i < owners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := reg.GetOrCreate(ctx, surface, uuid.New(), "", tpl)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	spawns := make(map[vec.Vec3]struct{})
	for _, p := range reg.List() {
		spawns[p.Spawn] = struct{}{}
		assert.Equal(t, p.Owner.String(), p.Name, "имя по умолчанию — UUID владельца")
	}
	assert.Len(t, spawns, owners)
}

func TestRegistry_Regenerate(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(nil)
	surface := newFakeSurface()
	tpl := mustTemplate(t, pillarTemplate)
	owner := uuid.New()

	p1, _, err := reg.GetOrCreate(ctx, surface, owner, "alice", tpl)
	require.NoError(t, err)

	p2, err := reg.Regenerate(ctx, surface, owner, "alice", tpl)
	require.NoError(t, err)
	assert.NotEqual(t, p1.Spawn, p2.Spawn, "регенерация занимает новую клетку")
	assert.Equal(t, 6, surface.Calls())

	got, ok := reg.Get(owner)
	require.True(t, ok)
	assert.Equal(t, p2, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_PlacementFailureConsumesSlot(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	reg := newTestRegistry(store)
	surface := newFakeSurface()
	surface.failAfter = 1
	tpl := mustTemplate(t, pillarTemplate)
	owner := uuid.New()

	_, _, err := reg.GetOrCreate(ctx, surface, owner, "alice", tpl)
	var pe *PlacementError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, owner, pe.Owner)

	_, ok := reg.Get(owner)
	assert.False(t, ok, "участок не регистрируется")
	cursor := reg.Cursor()
	assert.Equal(t, vec.Vec2{X: -1, Z: -1}, cursor.Current())
	assert.Equal(t, 1, store.saves, "выданная клетка сохранена")

	surface.failAfter = 0
	p, _, err := reg.GetOrCreate(ctx, surface, owner, "alice", tpl)
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3{X: -1000, Y: 80, Z: -1000}, p.Spawn)
}

func TestRegistry_PersistFailureReverts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.fail = errors.New("disk full")
	reg := newTestRegistry(store)
	tpl := mustTemplate(t, pillarTemplate)
	owner := uuid.New()

	_, _, err := reg.GetOrCreate(ctx, newFakeSurface(), owner, "alice", tpl)
	assert.ErrorIs(t, err, store.fail)
	_, ok := reg.Get(owner)
	assert.False(t, ok)
}

func TestRegistry_Unbound(t *testing.T) {
	reg := newTestRegistry(nil)
	tpl := mustTemplate(t, pillarTemplate)
	_, _, err := reg.GetOrCreate(context.Background(), nil, uuid.New(), "alice", tpl)
	assert.ErrorIs(t, err, ErrUnbound)
	assert.Equal(t, 0, reg.Cursor().Layer, "клетка не выдаётся без мира")
}

func TestRegistry_InvalidTemplate(t *testing.T) {
	tpl, err := template.Parse("bad.yaml", []byte(`layers: [["x"]]
mapping:
  "#": {block: stone}
`))
	require.NoError(t, err)

	reg := newTestRegistry(nil)
	surface := newFakeSurface()
	_, _, err = reg.GetOrCreate(context.Background(), surface, uuid.New(), "alice", tpl)

	var ce *template.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, template.ErrUnmappedKeys)
	assert.Equal(t, 0, surface.Calls())
}

func TestRegistry_DisabledTemplate(t *testing.T) {
	tpl, err := template.Parse("off.yaml", []byte(`enabled: false
layers: [["#"]]
mapping:
  "#": {block: stone}
`))
	require.NoError(t, err)

	reg := newTestRegistry(nil)
	_, _, err = reg.GetOrCreate(context.Background(), newFakeSurface(), uuid.New(), "alice", tpl)
	assert.ErrorIs(t, err, template.ErrDisabled)
}

func TestRegistry_TemplateFromOtherCatalog(t *testing.T) {
	tpl := mustTemplate(t, pillarTemplate)
	other, err := block.DefaultCatalog().With(block.Type{ID: "mymod:crate", Container: true})
	require.NoError(t, err)

	reg := NewRegistry(Options{Spacing: 1000, BaseY: 80, Catalog: other})
	surface := newFakeSurface()
	_, _, err = reg.GetOrCreate(context.Background(), surface, uuid.New(), "alice", tpl)

	assert.ErrorIs(t, err, template.ErrCatalogMismatch)
	assert.Equal(t, 0, surface.Calls(), "шаблон чужого каталога не ставится")
	assert.Equal(t, 0, reg.Cursor().Layer, "клетка не выдаётся")
}

func TestRegistry_RoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(nil)
	surface := newFakeSurface()
	tpl := mustTemplate(t, pillarTemplate)
	for i := 0; i < 12; i++ {
		_, _, err := reg.GetOrCreate(ctx, surface, uuid.New(), "", tpl)
		require.NoError(t, err)
	}
	_, _, err := reg.GetOrCreate(ctx, surface, LobbyOwner, LobbyName, tpl)
	require.NoError(t, err)

	data, err := reg.Marshal()
	require.NoError(t, err)

	restored := newTestRegistry(nil)
	require.NoError(t, restored.Unmarshal(data))
	assert.Equal(t, reg.Cursor(), restored.Cursor())
	assert.Equal(t, reg.List(), restored.List())

	lobby, ok := restored.Lobby()
	require.True(t, ok)
	assert.True(t, lobby.IsLobby())
	assert.Equal(t, LobbyName, lobby.Name)
}

func TestRegistry_PersistedLayout(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(nil)
	owner := uuid.MustParse("5f0c7ad8-3f1e-4b9a-9a3c-7d2b1c0e4f11")
	_, _, err := reg.GetOrCreate(ctx, newFakeSurface(), owner, "alice", mustTemplate(t, pillarTemplate))
	require.NoError(t, err)

	data, err := reg.Marshal()
	require.NoError(t, err)

	var raw map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]interface{}{
		"spacing": float64(1000), "layer": float64(1), "x": float64(-1), "y": float64(80), "z": float64(-1),
	}, raw["skyblockPos"])
	assert.Equal(t, map[string]interface{}{
		"name": "alice", "spawnX": float64(8), "spawnY": float64(80), "spawnZ": float64(8),
	}, raw["skyblocks"][owner.String()])
}

func TestRegistry_UnmarshalRejectsCorrupt(t *testing.T) {
	reg := newTestRegistry(nil)
	cases := []string{
		`not json`,
		`{"skyblockPos":{"spacing":0,"layer":0,"x":0,"y":80,"z":0},"skyblocks":{}}`,
		`{"skyblockPos":{"spacing":1000,"layer":1,"x":5,"y":80,"z":0},"skyblocks":{}}`,
		`{"skyblockPos":{"spacing":1000,"layer":0,"x":0,"y":80,"z":0},"skyblocks":{"nope":{"name":"x"}}}`,
	}
	for _, data := range cases {
		assert.ErrorIs(t, reg.Unmarshal([]byte(data)), ErrCorruptState, data)
	}
}

func TestOpen_LoadsState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	reg := newTestRegistry(store)
	tpl := mustTemplate(t, pillarTemplate)
	owner := uuid.New()
	_, _, err := reg.GetOrCreate(ctx, newFakeSurface(), owner, "alice", tpl)
	require.NoError(t, err)

	// Сохранённый шаг решётки важнее настройки
	reopened, err := Open(ctx, Options{Spacing: 500, BaseY: 80, Store: store})
	require.NoError(t, err)
	assert.Equal(t, 1000, reopened.Cursor().Spacing)
	p, ok := reopened.Get(owner)
	require.True(t, ok)
	assert.Equal(t, "alice", p.Name)

	// Следующий участок не пересекается с загруженным
	next, _, err := reopened.GetOrCreate(ctx, newFakeSurface(), uuid.New(), "bob", tpl)
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3{X: -1000, Y: 80, Z: -1000}, next.Spawn)
}

func TestTeamID(t *testing.T) {
	id := TeamID("red")
	assert.Equal(t, id, TeamID("red"))
	assert.NotEqual(t, id, TeamID("blue"))
	assert.Equal(t, uuid.Version(3), id.Version())
	assert.Equal(t, uuid.RFC4122, id.Variant())
	// Совпадает с UUID.nameUUIDFromBytes("team:red")
	assert.Equal(t, "06678394-f632-3ff0-a48e-222dd4f26a3a", id.String())
}
