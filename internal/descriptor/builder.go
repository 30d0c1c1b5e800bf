package descriptor

import (
	"strings"

	"mongokit/internal/schema"
)

// Source — то, что можно описать: модель с именем и схемой.
type Source interface {
	ModelName() string
	Schema() *schema.Schema
}

// KeyFilter ограничивает описание набором ключей верхнего уровня.
// Нулевое значение (и All) пропускает все пути.
type KeyFilter struct {
	keys map[string]struct{}
}

// All — фильтр '*'.
var All = KeyFilter{}

// Keys — фильтр по первым сегментам путей.
func Keys(keys ...string) KeyFilter {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = struct{}{}
		}
	}
	return KeyFilter{keys: set}
}

// ParseKeyFilter разбирает "*" или список через запятую; пустая строка — все ключи.
func ParseKeyFilter(s string) KeyFilter {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return All
	}
	return Keys(strings.Split(s, ",")...)
}

// IsAll — фильтр пропускает всё.
func (f KeyFilter) IsAll() bool { return f.keys == nil }

func (f KeyFilter) allows(first string) bool {
	if f.keys == nil {
		return true
	}
	_, ok := f.keys[first]
	return ok
}

// Build строит описание модели. Функция чистая: схема только читается.
func Build(src Source, filter KeyFilter) *Node {
	s := src.Schema()
	root := buildSchema(s, filter)
	root.ModelName = src.ModelName()

	if s.HasBehavior() {
		behavior := make(map[string]any)
		for k, v := range s.Behavior() {
			behavior[k] = v
		}
		root.Behavior = behavior
	}
	return root
}

// buildSchema — рекурсивная часть без имени модели и behavior.
func buildSchema(s *schema.Schema, filter KeyFilter) *Node {
	result := NewNode()
	if s == nil {
		return result
	}

	for _, p := range s.Paths() {
		segs := strings.Split(p.Name, ".")
		if !filter.allows(segs[0]) {
			continue
		}

		// родитель последнего сегмента; промежуточные узлы создаются по требованию
		parent := result
		for _, seg := range segs[:len(segs)-1] {
			parent = parent.child(seg)
		}
		last := segs[len(segs)-1]

		if p.IsArray() {
			arr := &Array{Constraints: constraintsOf(p)}
			switch {
			case p.Schema != nil:
				arr.Elem = buildSchema(p.Schema, All)
			case p.Caster != nil:
				arr.Elem = fieldOf(p.Caster)
			}
			parent.Set(last, arr)
			continue
		}
		parent.Set(last, fieldOf(p))
	}
	return result
}

func fieldOf(p *schema.Path) *Field {
	f := &Field{Type: string(p.Instance), Constraints: constraintsOf(p)}
	if len(p.EnumValues) > 0 {
		f.Enum = append([]any(nil), p.EnumValues...)
	}
	return f
}

func constraintsOf(p *schema.Path) Constraints {
	c := Constraints{
		Ref:      p.Options.Ref,
		Required: p.Options.Required,
	}
	// вычисляемые значения по умолчанию не описываются
	if _, computed := p.Options.Default.(schema.DefaultFunc); !computed {
		c.Default = p.Options.Default
	}
	if p.Options.Match != nil {
		c.Match = p.Options.Match.String()
	}
	return c
}

// Limit оставляет в data только ключи, описанные узлом, рекурсивно для вложенных объектов.
func Limit(n *Node, data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	if n == nil {
		return out
	}
	for k, v := range data {
		d, ok := n.children[k]
		if !ok {
			continue
		}
		if sub, isNode := d.(*Node); isNode {
			if obj, isObj := v.(map[string]any); isObj {
				out[k] = Limit(sub, obj)
				continue
			}
		}
		out[k] = v
	}
	return out
}
