package plot

import (
	"fmt"
	"time"

	"github.com/annel0/skyplots/internal/block"
	"github.com/annel0/skyplots/internal/logging"
	"github.com/annel0/skyplots/internal/metrics"
	"github.com/annel0/skyplots/internal/template"
	"github.com/annel0/skyplots/internal/vec"
)

// Container — блок мира, принимающий структурированные данные (сундук, бочка, печь)
type Container interface {
	WritePayload(tag block.Tag, pos vec.Vec3) error
}

// WorldSurface — мир, в который размещаются шаблоны
type WorldSurface interface {
	SetBlock(pos vec.Vec3, state block.State) error
	ContainerAt(pos vec.Vec3) (Container, bool)
}

// Stamp размещает провалидированный шаблон вокруг якоря и возвращает точку появления.
//
// Слой i ставится на высоте anchor.Y+i. Ряды начинаются с X = anchor.X + R/2 и идут
// на запад, символы ряда начинаются с Z = anchor.Z - C/2 и идут на юг.
// Первая ошибка мира прерывает размещение; уже поставленные блоки не откатываются.
func Stamp(surface WorldSurface, tpl *template.Template, anchor vec.Vec3) (vec.Vec3, error) {
	if surface == nil {
		return vec.Vec3{}, ErrUnbound
	}
	if tpl == nil || !tpl.Validated() {
		return vec.Vec3{}, fmt.Errorf("template is not validated")
	}

	start := time.Now()
	defer func() {
		metrics.StampDuration.Observe(time.Since(start).Seconds())
	}()

	catalog := tpl.Catalog()
	var spawn *vec.Vec3
	placed := 0

	layerPos := anchor
	for _, layer := range tpl.Layers {
		rowPos := layerPos.East(len(layer) / 2)
		for _, row := range layer {
			chars := []rune(row)
			pos := rowPos.North(len(chars) / 2)
			for _, c := range chars {
				if err := place(surface, catalog, tpl, tpl.Definition(c), pos); err != nil {
					metrics.BlocksPlaced.Add(float64(placed))
					return vec.Vec3{}, err
				}
				placed++

				if c == template.SpawnMarker {
					if spawn == nil {
						p := pos
						spawn = &p
					} else {
						metrics.DuplicateSpawns.Inc()
						logging.Warn("⚠️ %v: шаблон %q, лишний маркер в %s проигнорирован", ErrDuplicateSpawn, tpl.DisplayName(), pos)
					}
				}
				pos.Z++
			}
			rowPos.X--
		}
		layerPos.Y++
	}
	metrics.BlocksPlaced.Add(float64(placed))

	if spawn == nil {
		return anchor.Up(len(tpl.Layers)), nil
	}
	return *spawn, nil
}

func place(surface WorldSurface, catalog *block.Catalog, tpl *template.Template, def *template.Definition, pos vec.Vec3) error {
	fail := func(err error) error {
		return &PlacementError{Template: tpl.DisplayName(), Block: def.Block, Pos: pos, Err: err}
	}

	state, tag, err := def.Resolve(catalog)
	if err != nil {
		return fail(err)
	}
	if err := surface.SetBlock(pos, state); err != nil {
		return fail(err)
	}
	if !def.HasPayload() {
		return nil
	}

	container, ok := surface.ContainerAt(pos)
	if !ok {
		return fail(ErrNoContainer)
	}
	payload := tag.Clone()
	payload["x"] = pos.X
	payload["y"] = pos.Y
	payload["z"] = pos.Z
	if err := container.WritePayload(payload, pos); err != nil {
		return fail(err)
	}
	return nil
}
