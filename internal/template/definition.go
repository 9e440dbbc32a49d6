package template

import (
	"fmt"
	"sync"

	"github.com/annel0/skyplots/internal/block"
)

// Definition описывает, что ставить на место символа шаблона:
// блок, переопределения свойств и необязательные структурированные данные.
type Definition struct {
	Block      string            `yaml:"block" json:"block"`
	Properties map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"`
	NBT        string            `yaml:"nbt,omitempty" json:"nbt,omitempty"`

	once  sync.Once
	state block.State
	tag   block.Tag
	err   error
}

// Air — определение для пробела и неизвестных символов
var Air = &Definition{Block: block.AirID}

// Resolve разрешает определение в состояние блока и данные.
// Результат вычисляется один раз; ошибка разрешения остаётся навсегда для этого экземпляра.
func (d *Definition) Resolve(catalog *block.Catalog) (block.State, block.Tag, error) {
	d.once.Do(func() {
		state, err := catalog.Resolve(d.Block, d.Properties)
		if err != nil {
			d.err = err
			return
		}
		if d.NBT != "" {
			tag, err := block.ParseTag(d.NBT)
			if err != nil {
				d.err = fmt.Errorf("error parsing nbt for %s: %w", d.Block, err)
				return
			}
			d.tag = tag
		}
		d.state = state
	})
	return d.state, d.tag, d.err
}

// HasPayload сообщает, несёт ли определение структурированные данные
func (d *Definition) HasPayload() bool {
	return d.NBT != ""
}
