package plugins

import "mongokit/internal/schema"

const HiddenField = "hidden"

// HidePlugin добавляет флаг hidden. Запросы не фильтруются.
func HidePlugin(s *schema.Schema, _ any) error {
	if err := s.Add(HiddenField, schema.Boolean().Default(false)); err != nil {
		return err
	}
	s.Index(schema.Keys(HiddenField, -1), schema.IndexOptions{Sparse: true})
	return nil
}
