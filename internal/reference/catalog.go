package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadEnumCatalog читает все enum-справочники из папки (reference/enums/).
// Отсутствующая папка — пустой каталог.
func LoadEnumCatalog(dir string) (map[string]EnumDirectory, error) {
	result := make(map[string]EnumDirectory)
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() || !(strings.HasSuffix(file.Name(), ".yaml") || strings.HasSuffix(file.Name(), ".yml")) {
			continue
		}
		path := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var enumDir EnumDirectory
		if err := yaml.Unmarshal(data, &enumDir); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// Имя справочника — из enumDir.Name или из имени файла
		if enumDir.Name == "" {
			enumDir.Name = strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		}
		if err := validate(enumDir); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := result[enumDir.Name]; dup {
			return nil, fmt.Errorf("%s: enum %s defined twice", path, enumDir.Name)
		}
		result[enumDir.Name] = enumDir
	}
	return result, nil
}

func validate(d EnumDirectory) error {
	seen := make(map[string]bool, len(d.Items))
	for i, it := range d.Items {
		if it.Code == "" {
			return fmt.Errorf("enum %s: item %d has no code", d.Name, i)
		}
		if seen[it.Code] {
			return fmt.Errorf("enum %s: duplicate code %q", d.Name, it.Code)
		}
		seen[it.Code] = true
		for _, v := range []string{it.ValidFrom, it.ValidTo} {
			if v == "" {
				continue
			}
			if _, err := time.Parse(DateLayout, v); err != nil {
				return fmt.Errorf("enum %s: code %s: bad date %q", d.Name, it.Code, v)
			}
		}
	}
	return nil
}
