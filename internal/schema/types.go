// Package schema описывает модель документа: упорядоченные пути полей, индексы,
// хуки запросов и сохранения, методы экземпляра и "behavior"-метаданные.
// Плагины меняют Schema до создания модели; после регистрации модели схема только читается.
package schema

import (
	"context"
	"regexp"
)

// TypeTag — тег типа пути, он же попадает в дескриптор как "type".
type TypeTag string

const (
	TypeString     TypeTag = "String"
	TypeNumber     TypeTag = "Number"
	TypeDate       TypeTag = "Date"
	TypeBoolean    TypeTag = "Boolean"
	TypeObjectID   TypeTag = "ObjectID"
	TypeArray      TypeTag = "Array"
	TypeMixed      TypeTag = "Mixed"
	TypeBuffer     TypeTag = "Buffer"
	TypeDecimal128 TypeTag = "Decimal128"
	TypeMap        TypeTag = "Map"
)

// ParseTypeTag принимает теги без учёта регистра и короткие алиасы DSL.
func ParseTypeTag(s string) (TypeTag, bool) {
	switch normalizeTag(s) {
	case "string", "text":
		return TypeString, true
	case "number", "int", "float", "double":
		return TypeNumber, true
	case "date", "datetime":
		return TypeDate, true
	case "boolean", "bool":
		return TypeBoolean, true
	case "objectid", "id":
		return TypeObjectID, true
	case "array":
		return TypeArray, true
	case "mixed", "any":
		return TypeMixed, true
	case "buffer":
		return TypeBuffer, true
	case "decimal128", "decimal":
		return TypeDecimal128, true
	case "map":
		return TypeMap, true
	}
	return "", false
}

func normalizeTag(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' || c == '_' {
			continue
		}
		b = append(b, c)
	}
	return string(b)
}

// DefaultFunc вычисляет значение по умолчанию в момент создания документа.
// nil означает "значения нет".
type DefaultFunc func() any

// FieldOptions — ограничения поля.
type FieldOptions struct {
	Ref      string
	Required bool
	Default  any // литерал или DefaultFunc
	Match    *regexp.Regexp
}

// HasDefault сообщает, задано ли значение по умолчанию.
func (o FieldOptions) HasDefault() bool { return o.Default != nil }

// DefaultValue возвращает значение по умолчанию, вычисляя DefaultFunc.
func (o FieldOptions) DefaultValue() any {
	if fn, ok := o.Default.(DefaultFunc); ok {
		return fn()
	}
	return o.Default
}

// Path — метаданные одного пути схемы ("address.city").
type Path struct {
	Name       string
	Instance   TypeTag
	EnumValues []any
	Options    FieldOptions

	// Schema задан для массива поддокументов.
	Schema *Schema
	// Caster — элемент массива примитивов.
	Caster *Path
}

// IsArray — путь является массивом (примитивов или поддокументов).
func (p *Path) IsArray() bool { return p != nil && p.Instance == TypeArray }

func (p *Path) clone() *Path {
	if p == nil {
		return nil
	}
	cp := *p
	cp.EnumValues = append([]any(nil), p.EnumValues...)
	if p.Schema != nil {
		cp.Schema = p.Schema.Clone()
	}
	cp.Caster = p.Caster.clone()
	return &cp
}

// IndexKey — одно поле индекса; Order: 1, -1.
type IndexKey struct {
	Field string
	Order int
}

// IndexOptions — опции индекса, транслируются в опции драйвера.
type IndexOptions struct {
	Name   string
	Sparse bool
	Unique bool
	// ExpireAfterSeconds != nil делает индекс TTL-индексом.
	ExpireAfterSeconds *int32
}

// Index — спецификация индекса.
type Index struct {
	Keys    []IndexKey
	Options IndexOptions
}

// HasKey проверяет наличие поля в ключах индекса.
func (ix Index) HasKey(field string) bool {
	for _, k := range ix.Keys {
		if k.Field == field {
			return true
		}
	}
	return false
}

// Keys собирает индексные ключи из пар field, order.
func Keys(pairs ...any) []IndexKey {
	out := make([]IndexKey, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		f, _ := pairs[i].(string)
		o, _ := pairs[i+1].(int)
		if f == "" {
			continue
		}
		if o == 0 {
			o = 1
		}
		out = append(out, IndexKey{Field: f, Order: o})
	}
	return out
}

// IndexFunc регистрирует индекс в схеме.
type IndexFunc func(keys []IndexKey, opts IndexOptions)

// IndexMiddleware оборачивает регистрацию будущих индексов.
type IndexMiddleware func(next IndexFunc) IndexFunc

// Doc — то, что видят методы экземпляра и pre-save хуки.
type Doc interface {
	Get(path string) any
	Set(path string, value any)
	Unset(path string)
	Save(ctx context.Context) error
}

// Method — метод экземпляра, добавляемый плагином.
type Method func(ctx context.Context, doc Doc, args ...any) error

// SaveHook выполняется перед сохранением документа.
type SaveHook func(ctx context.Context, doc Doc) error

// BehaviorFunc возвращает дополнительные метаданные модели для дескриптора.
type BehaviorFunc func() map[string]any
