package block

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "minecraft:stone", NormalizeID("stone"))
	assert.Equal(t, "minecraft:stone", NormalizeID(" Minecraft:Stone "))
	assert.Equal(t, "mymod:thing", NormalizeID("mymod:thing"))
	assert.Equal(t, "", NormalizeID("  "))
}

func TestCatalog_ResolveDefaults(t *testing.T) {
	c := DefaultCatalog()

	chest, err := c.Resolve("chest", nil)
	require.NoError(t, err)
	assert.Equal(t, "minecraft:chest", chest.ID())
	assert.Equal(t, "minecraft:chest[facing=north,type=single,waterlogged=false]", chest.String())

	facing, ok := chest.Property("facing")
	assert.True(t, ok)
	assert.Equal(t, "north", facing)

	stone, err := c.Resolve("minecraft:stone", nil)
	require.NoError(t, err)
	assert.Equal(t, "minecraft:stone", stone.String())
	assert.False(t, stone.IsAir())
}

func TestCatalog_ResolveOverrides(t *testing.T) {
	c := DefaultCatalog()

	log, err := c.Resolve("oak_log", map[string]string{"axis": "x"})
	require.NoError(t, err)
	axis, _ := log.Property("axis")
	assert.Equal(t, "x", axis)

	// Одинаковые свойства дают равные состояния
	again, err := c.Resolve("minecraft:oak_log", map[string]string{"axis": "x"})
	require.NoError(t, err)
	assert.Equal(t, log, again)
}

func TestCatalog_ResolveErrors(t *testing.T) {
	c := DefaultCatalog()

	_, err := c.Resolve("no_such_block", nil)
	assert.ErrorIs(t, err, ErrUnknownBlock)

	_, err = c.Resolve("chest", map[string]string{"colour": "red"})
	assert.ErrorIs(t, err, ErrUnknownProperty)

	_, err = c.Resolve("chest", map[string]string{"facing": "up"})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestCatalog_ParseState(t *testing.T) {
	c := DefaultCatalog()

	s, err := c.ParseState("minecraft:chest[facing=east,type=single,waterlogged=false]")
	require.NoError(t, err)
	assert.Equal(t, "minecraft:chest[facing=east,type=single,waterlogged=false]", s.String())

	parsed, err := c.ParseState(s.String())
	require.NoError(t, err)
	assert.Equal(t, s, parsed)

	_, err = c.ParseState("minecraft:chest[facing=east")
	assert.Error(t, err)
}

func TestCatalog_Containers(t *testing.T) {
	c := DefaultCatalog()
	assert.True(t, c.IsContainer("chest"))
	assert.True(t, c.IsContainer("minecraft:barrel"))
	assert.False(t, c.IsContainer("stone"))
	assert.False(t, c.IsContainer("unknown"))
}

func TestCatalog_WithAndInvalidTypes(t *testing.T) {
	base := DefaultCatalog()

	extended, err := base.With(Type{ID: "mymod:crate", Container: true})
	require.NoError(t, err)
	assert.True(t, extended.IsContainer("mymod:crate"))
	_, found := base.Lookup("mymod:crate")
	assert.False(t, found, "исходный каталог не должен меняться")

	_, err = NewCatalog(Type{ID: ""})
	assert.Error(t, err)

	_, err = NewCatalog(Type{ID: "x", Properties: []Property{{Name: "p"}}})
	assert.Error(t, err)
}

func TestParseTag(t *testing.T) {
	tag, err := ParseTag(`{"Items":[{"id":"minecraft:ice","Count":2,"Slot":0}]}`)
	require.NoError(t, err)
	assert.Contains(t, tag, "Items")

	clone := tag.Clone()
	clone["x"] = 1
	assert.NotContains(t, tag, "x")

	_, err = ParseTag(`[1,2,3]`)
	assert.Error(t, err)

	_, err = ParseTag(`{"Items":`)
	assert.Error(t, err)

	_, err = ParseTag(`{} {}`)
	assert.Error(t, err)
}

func TestLoadJSONTypes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`{"id":"mymod:crate","container":true}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"),
		[]byte(`[{"id":"mymod:lamp","properties":[{"name":"lit","values":["false","true"]}]}]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644))

	types, err := LoadJSONTypes(dir)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "mymod:crate", types[0].ID)
	assert.Equal(t, "mymod:lamp", types[1].ID)

	_, err = LoadJSONTypes(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(err))
}
