package api

import (
	"fmt"
	"reflect"
	"strconv"

	"mongokit/internal/odm"
	"mongokit/internal/schema"
	"mongokit/internal/store"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Коды ошибок
const (
	ErrRequired        = "required"
	ErrTypeMismatch    = "type_mismatch"
	ErrEnumInvalid     = "enum_invalid"
	ErrPatternMismatch = "pattern_mismatch"
)

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

// ValidateDocument проверяет документ по схеме модели и НОРМАЛИЗУЕТ значения:
// даты из строк RFC 3339 становятся time.Time, ссылки — id хранилища.
func ValidateDocument(m *odm.Model, doc *odm.Document) []FieldError {
	v := validator{model: m}
	for _, p := range m.Schema().Paths() {
		if p.Name == schema.IDPath {
			continue
		}
		val, present := doc.Get(p.Name), doc.Has(p.Name)
		if norm, ok := v.path(p, p.Name, val, present); ok {
			doc.Set(p.Name, norm)
		}
	}
	return v.errs
}

type validator struct {
	model *odm.Model
	errs  []FieldError
}

func (v *validator) add(code, field, format string, args ...any) {
	v.errs = append(v.errs, ferr(code, field, fmt.Sprintf(format, args...)))
}

// path проверяет значение пути; ok == true, если значение нормализовано и его надо записать.
func (v *validator) path(p *schema.Path, field string, val any, present bool) (any, bool) {
	if p.Options.Required && (!present || val == nil || val == "") {
		v.add(ErrRequired, field, "Field '%s' is required", field)
		return nil, false
	}
	if !present || val == nil {
		return nil, false
	}
	if p.Instance != schema.TypeArray {
		return v.scalar(p, field, val)
	}

	items, ok := val.([]any)
	if !ok {
		v.add(ErrTypeMismatch, field, "Field '%s' expected array", field)
		return nil, false
	}
	changed := false
	for i, item := range items {
		at := field + "." + strconv.Itoa(i)
		switch {
		case p.Schema != nil:
			sub, ok := item.(map[string]any)
			if !ok {
				v.add(ErrTypeMismatch, at, "Field '%s' expected object", at)
				continue
			}
			for _, sp := range p.Schema.Paths() {
				sv, has := store.Lookup(sub, sp.Name)
				v.path(sp, at+"."+sp.Name, sv, has)
			}
		case p.Caster != nil:
			if norm, ok := v.scalar(p.Caster, at, item); ok {
				items[i] = norm
				changed = true
			}
		}
	}
	return items, changed
}

func (v *validator) scalar(p *schema.Path, field string, val any) (any, bool) {
	switch p.Instance {
	case schema.TypeString:
		s, ok := val.(string)
		if !ok {
			v.add(ErrTypeMismatch, field, "Field '%s' expected string", field)
			return nil, false
		}
		if p.Options.Match != nil && !p.Options.Match.MatchString(s) {
			v.add(ErrPatternMismatch, field, "Field '%s' does not match %s", field, p.Options.Match)
		}
	case schema.TypeNumber, schema.TypeDecimal128:
		if !isNumber(val) {
			v.add(ErrTypeMismatch, field, "Field '%s' expected number", field)
			return nil, false
		}
	case schema.TypeBoolean:
		if _, ok := val.(bool); !ok {
			v.add(ErrTypeMismatch, field, "Field '%s' expected bool", field)
			return nil, false
		}
	case schema.TypeDate:
		if s, ok := val.(string); ok {
			t, err := parseDate(s)
			if err != nil {
				v.add(ErrTypeMismatch, field, "Field '%s' expected date (RFC3339)", field)
				return nil, false
			}
			return t, true
		}
	case schema.TypeObjectID:
		if s, ok := val.(string); ok {
			id, err := v.model.Collection().ParseID(s)
			if err != nil {
				v.add(ErrTypeMismatch, field, "Field '%s' expected id", field)
				return nil, false
			}
			return id, true
		}
	}
	if len(p.EnumValues) > 0 && !inEnum(p.EnumValues, val) {
		v.add(ErrEnumInvalid, field, "Field '%s' must be one of %v", field, p.EnumValues)
	}
	return nil, false
}

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func inEnum(values []any, v any) bool {
	for _, e := range values {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}
