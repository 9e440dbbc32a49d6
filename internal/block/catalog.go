package block

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownBlock    = errors.New("unknown block")
	ErrUnknownProperty = errors.New("unknown property")
	ErrInvalidValue    = errors.New("invalid property value")
)

// Property описывает свойство типа блока. Первое значение — значение по умолчанию.
type Property struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

func (p Property) allows(value string) bool {
	for _, v := range p.Values {
		if v == value {
			return true
		}
	}
	return false
}

// Type описывает тип блока, известный каталогу
type Type struct {
	ID         string     `json:"id"`
	Properties []Property `json:"properties,omitempty"`
	// Container — у блока есть адресуемый контейнер (block entity) для структурированных данных
	Container bool `json:"container,omitempty"`
}

func (t *Type) property(name string) (Property, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// DefaultState возвращает состояние со значениями свойств по умолчанию
func (t *Type) DefaultState() State {
	props := make(map[string]string, len(t.Properties))
	for _, p := range t.Properties {
		props[p.Name] = p.Values[0]
	}
	return newState(t.ID, props)
}

// Catalog — каталог известных типов блоков. После создания только для чтения,
// поэтому один экземпляр безопасно разделять между горутинами.
type Catalog struct {
	types map[string]*Type
}

// NewCatalog создаёт каталог из списка типов. Воздух добавляется всегда.
func NewCatalog(types ...Type) (*Catalog, error) {
	c := &Catalog{types: map[string]*Type{AirID: {ID: AirID}}}
	if err := c.add(types); err != nil {
		return nil, err
	}
	return c, nil
}

// With возвращает новый каталог, расширенный дополнительными типами.
// Тип с уже существующим ID заменяет прежний.
func (c *Catalog) With(types ...Type) (*Catalog, error) {
	next := &Catalog{types: make(map[string]*Type, len(c.types)+len(types))}
	for id, t := range c.types {
		next.types[id] = t
	}
	if err := next.add(types); err != nil {
		return nil, err
	}
	return next, nil
}

func (c *Catalog) add(types []Type) error {
	for i := range types {
		t := types[i]
		t.ID = NormalizeID(t.ID)
		if t.ID == "" {
			return fmt.Errorf("block type #%d: empty id", i)
		}
		seen := make(map[string]struct{}, len(t.Properties))
		for _, p := range t.Properties {
			if p.Name == "" || len(p.Values) == 0 {
				return fmt.Errorf("block type %s: property %q has no values", t.ID, p.Name)
			}
			if _, dup := seen[p.Name]; dup {
				return fmt.Errorf("block type %s: duplicate property %q", t.ID, p.Name)
			}
			seen[p.Name] = struct{}{}
		}
		c.types[t.ID] = &t
	}
	return nil
}

// Lookup возвращает тип блока по идентификатору
func (c *Catalog) Lookup(id string) (*Type, bool) {
	t, ok := c.types[NormalizeID(id)]
	return t, ok
}

// IsContainer сообщает, имеет ли блок контейнер для данных
func (c *Catalog) IsContainer(id string) bool {
	t, ok := c.Lookup(id)
	return ok && t.Container
}

// IDs возвращает отсортированный список идентификаторов
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.types))
	for id := range c.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve строит состояние блока из идентификатора и переопределений свойств
func (c *Catalog) Resolve(id string, props map[string]string) (State, error) {
	t, ok := c.Lookup(id)
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownBlock, NormalizeID(id))
	}

	values := make(map[string]string, len(t.Properties))
	for _, p := range t.Properties {
		values[p.Name] = p.Values[0]
	}
	for name, value := range props {
		p, ok := t.property(name)
		if !ok {
			return State{}, fmt.Errorf("%s %w: %s", t.ID, ErrUnknownProperty, name)
		}
		if !p.allows(value) {
			return State{}, fmt.Errorf("%w: %s for property %s of %s", ErrInvalidValue, value, name, t.ID)
		}
		values[name] = value
	}
	return newState(t.ID, values), nil
}

// ParseState разбирает строку вида minecraft:chest[facing=north] в состояние
func (c *Catalog) ParseState(s string) (State, error) {
	id, rest, hasProps := strings.Cut(strings.TrimSpace(s), "[")
	var props map[string]string
	if hasProps {
		if !strings.HasSuffix(rest, "]") {
			return State{}, fmt.Errorf("malformed block state %q", s)
		}
		rest = strings.TrimSuffix(rest, "]")
		props = make(map[string]string)
		if rest != "" {
			for _, pair := range strings.Split(rest, ",") {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return State{}, fmt.Errorf("malformed block state %q", s)
				}
				props[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
		}
	}
	return c.Resolve(id, props)
}
