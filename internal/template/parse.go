package template

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// templateSchema описывает структуру файла шаблона. Смысловые проверки
// (сопоставление символов, существование блоков) делает Validate.
const templateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "enabled": {"type": "boolean"},
    "name": {"type": "string"},
    "layers": {
      "type": "array",
      "items": {
        "type": ["array", "null"],
        "items": {"type": "string"}
      }
    },
    "mapping": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "block": {"type": "string"},
          "properties": {
            "type": "object",
            "additionalProperties": {"type": ["string", "boolean", "integer"]}
          },
          "nbt": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "required": ["layers", "mapping"]
}`

var compiledSchema = jsonschema.MustCompileString("template.schema.json", templateSchema)

// Parse разбирает файл шаблона (YAML или JSON) и проверяет его структуру.
// Семантическая валидация выполняется отдельно через Validate.
func Parse(source string, data []byte) (*Template, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Template: source, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	doc, err := toJSONValue(raw)
	if err != nil {
		return nil, &ConfigError{Template: source, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, &ConfigError{Template: source, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	tpl := &Template{Enabled: true}
	if err := yaml.Unmarshal(data, tpl); err != nil {
		return nil, &ConfigError{Template: source, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	tpl.source = source
	return tpl, nil
}

// toJSONValue приводит документ YAML к значениям, которые понимает валидатор схем
func toJSONValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeYAML(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
