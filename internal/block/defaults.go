package block

import (
	"strconv"
	"sync"
)

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

func rangeValues(from, to int) []string {
	values := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		values = append(values, strconv.Itoa(i))
	}
	return values
}

var (
	horizontalFacing = Property{Name: "facing", Values: []string{"north", "south", "west", "east"}}
	boolFalse        = []string{"false", "true"}
	logAxis          = Property{Name: "axis", Values: []string{"y", "x", "z"}}
)

// vanillaTypes — базовый набор блоков, достаточный для шаблонов участков
func vanillaTypes() []Type {
	return []Type{
		{ID: "stone"},
		{ID: "cobblestone"},
		{ID: "dirt"},
		{ID: "coarse_dirt"},
		{ID: "grass_block", Properties: []Property{{Name: "snowy", Values: boolFalse}}},
		{ID: "sand"},
		{ID: "red_sand"},
		{ID: "gravel"},
		{ID: "clay"},
		{ID: "bedrock"},
		{ID: "obsidian"},
		{ID: "ice"},
		{ID: "glass"},
		{ID: "water", Properties: []Property{{Name: "level", Values: rangeValues(0, 15)}}},
		{ID: "lava", Properties: []Property{{Name: "level", Values: rangeValues(0, 15)}}},
		{ID: "oak_log", Properties: []Property{logAxis}},
		{ID: "birch_log", Properties: []Property{logAxis}},
		{ID: "oak_planks"},
		{ID: "oak_leaves", Properties: []Property{
			{Name: "distance", Values: append([]string{"7"}, rangeValues(1, 6)...)},
			{Name: "persistent", Values: boolFalse},
		}},
		{ID: "oak_sapling", Properties: []Property{{Name: "stage", Values: rangeValues(0, 1)}}},
		{ID: "sugar_cane", Properties: []Property{{Name: "age", Values: rangeValues(0, 15)}}},
		{ID: "cactus", Properties: []Property{{Name: "age", Values: rangeValues(0, 15)}}},
		{ID: "pumpkin"},
		{ID: "melon"},
		{ID: "red_mushroom"},
		{ID: "brown_mushroom"},
		{ID: "torch"},
		{ID: "crafting_table"},
		{ID: "chest", Container: true, Properties: []Property{
			horizontalFacing,
			{Name: "type", Values: []string{"single", "left", "right"}},
			{Name: "waterlogged", Values: boolFalse},
		}},
		{ID: "barrel", Container: true, Properties: []Property{
			{Name: "facing", Values: []string{"north", "east", "south", "west", "up", "down"}},
			{Name: "open", Values: boolFalse},
		}},
		{ID: "furnace", Container: true, Properties: []Property{
			horizontalFacing,
			{Name: "lit", Values: boolFalse},
		}},
	}
}

// DefaultCatalog возвращает общий для процесса каталог стандартных блоков.
// Каталог создаётся один раз и далее не изменяется.
func DefaultCatalog() *Catalog {
	defaultOnce.Do(func() {
		c, err := NewCatalog(vanillaTypes()...)
		if err != nil {
			panic("block: invalid built-in catalog: " + err.Error())
		}
		defaultCatalog = c
	})
	return defaultCatalog
}
