package block

import (
	"sort"
	"strings"
)

// Namespace используется для идентификаторов без явного пространства имён
const Namespace = "minecraft"

// AirID — идентификатор блока воздуха
const AirID = "minecraft:air"

// Air — состояние блока воздуха, доступное без каталога
var Air = State{id: AirID}

// NormalizeID приводит идентификатор к виду namespace:path.
// "stone" -> "minecraft:stone".
func NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	if !strings.Contains(id, ":") {
		return Namespace + ":" + id
	}
	return id
}

// State — неизменяемое состояние блока: тип плюс полный набор значений свойств.
// Значение сравнимо через ==, поэтому годится как ключ карты.
type State struct {
	id    string
	props string // канонический вид "k=v,k=v", ключи отсортированы
}

func newState(id string, props map[string]string) State {
	if len(props) == 0 {
		return State{id: id}
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(props[name])
	}
	return State{id: id, props: sb.String()}
}

// ID возвращает идентификатор типа блока
func (s State) ID() string {
	if s.id == "" {
		return AirID
	}
	return s.id
}

// IsAir сообщает, является ли состояние воздухом
func (s State) IsAir() bool {
	return s.ID() == AirID
}

// Property возвращает значение свойства
func (s State) Property(name string) (string, bool) {
	if s.props == "" {
		return "", false
	}
	for _, pair := range strings.Split(s.props, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if ok && k == name {
			return v, true
		}
	}
	return "", false
}

// Properties возвращает копию всех свойств состояния
func (s State) Properties() map[string]string {
	result := make(map[string]string)
	if s.props == "" {
		return result
	}
	for _, pair := range strings.Split(s.props, ",") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			result[k] = v
		}
	}
	return result
}

// String возвращает состояние в формате minecraft:chest[facing=north,type=single]
func (s State) String() string {
	if s.props == "" {
		return s.ID()
	}
	return s.ID() + "[" + s.props + "]"
}
