package block

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tag — структурированные данные блока (содержимое контейнера и т.п.)
type Tag map[string]interface{}

// ParseTag разбирает сериализованные данные. Корень обязан быть объектом.
func ParseTag(raw string) (Tag, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("malformed tag: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("malformed tag: trailing data")
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("malformed tag: root must be a compound, got %T", v)
	}
	return Tag(m), nil
}

// Clone возвращает глубокую копию
func (t Tag) Clone() Tag {
	if t == nil {
		return nil
	}
	return cloneValue(map[string]interface{}(t)).(map[string]interface{})
}

func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case Tag:
		return Tag(cloneValue(map[string]interface{}(x)).(map[string]interface{}))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
