// api/schema_lint.go
package api

import (
	"fmt"

	"mongokit/internal/odm"
	"mongokit/internal/schema"
)

type SchemaIssue struct {
	Database string `json:"database"`
	Model    string `json:"model"`
	Field    string `json:"field,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// SchemaLint проверяет базовые противоречия в зарегистрированных моделях.
func (s *Server) SchemaLint() []SchemaIssue {
	var issues []SchemaIssue
	for _, db := range s.mgr.Connections() {
		for _, m := range s.mgr.Models(db) {
			issues = append(issues, s.lintModel(db, m)...)
		}
	}
	return issues
}

func (s *Server) lintModel(db string, m *odm.Model) []SchemaIssue {
	var issues []SchemaIssue
	add := func(field, code, format string, args ...any) {
		issues = append(issues, SchemaIssue{
			Database: db, Model: m.Name(), Field: field, Code: code,
			Message: fmt.Sprintf(format, args...),
		})
	}
	sch := m.Schema()
	for _, p := range sch.Paths() {
		ref := p.Options.Ref
		if p.Caster != nil {
			ref = p.Caster.Options.Ref
		}
		// цель ссылки должна быть моделью той же базы
		if ref != "" {
			if _, ok := s.resolveModel(db, ref); !ok {
				add(p.Name, "ref_target_unknown", "ref target %s is not a model of %s", ref, db)
			}
		}
		// значение по умолчанию вне enum
		if len(p.EnumValues) > 0 && p.Options.HasDefault() {
			if _, computed := p.Options.Default.(schema.DefaultFunc); !computed && !inEnum(p.EnumValues, p.Options.Default) {
				add(p.Name, "enum_default_invalid", "default %v is not one of %v", p.Options.Default, p.EnumValues)
			}
		}
		if p.Options.Required && p.Options.HasDefault() {
			add(p.Name, "required_with_default", "required field has a default, required never fails")
		}
	}
	if m.Parent() != nil {
		return issues
	}
	// ключи индексов должны быть путями схемы
	for _, ix := range sch.Indexes() {
		for _, k := range ix.Keys {
			if _, ok := sch.Path(k.Field); !ok {
				add(k.Field, "index_key_unknown", "index key %s is not a schema path", k.Field)
			}
		}
	}
	return issues
}
