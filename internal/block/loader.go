package block

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadJSONTypes читает описания дополнительных блоков из *.json файлов каталога.
// Файл содержит либо один объект Type, либо массив.
// Если каталог отсутствует, возвращается ошибка, для которой os.IsNotExist == true.
func LoadJSONTypes(dir string) ([]Type, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var result []Type
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения %s: %w", name, err)
		}

		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			var types []Type
			if err := json.Unmarshal(data, &types); err != nil {
				return nil, fmt.Errorf("ошибка разбора %s: %w", name, err)
			}
			result = append(result, types...)
			continue
		}

		var t Type
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("ошибка разбора %s: %w", name, err)
		}
		result = append(result, t)
	}
	return result, nil
}
