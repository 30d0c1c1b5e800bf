// Package children находит дочерние модели (одна коллекция, разные типы)
// и строит по ним справочник для поиска по ключу, имени типа или имени ресурса.
package children

import (
	"strings"

	"mongokit/internal/naming"
)

// Model — то, что нужно реестру от модели.
type Model interface {
	comparable
	Name() string
	CollectionName() string
}

// Discover возвращает модели из all, лежащие в коллекции parent, кроме самой parent.
// Порядок all сохраняется; нулевые значения и модели без коллекции пропускаются.
func Discover[M Model](all []M, parent M) []M {
	var zero M
	if parent == zero || parent.CollectionName() == "" {
		return nil
	}
	out := make([]M, 0)
	for _, m := range all {
		if m == zero {
			continue
		}
		coll := m.CollectionName()
		if coll == "" || coll != parent.CollectionName() || m.Name() == parent.Name() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// KeyFunc выводит ключ справочника из модели.
type KeyFunc[M Model] func(M) string

// UpperName — ключ по умолчанию: имя типа в верхнем регистре.
func UpperName[M Model](m M) string { return strings.ToUpper(m.Name()) }

// Directory — справочник дочерних моделей. После создания только читается.
type Directory[M Model] struct {
	models    map[string]M      // key -> model
	types     map[string]string // key -> type name
	byType    map[string]M      // type name -> model
	resources map[string]string // resource -> type name
	keys      []string
}

// NewDirectory строит справочник; keyFn == nil означает UpperName.
func NewDirectory[M Model](children []M, keyFn KeyFunc[M]) *Directory[M] {
	if keyFn == nil {
		keyFn = UpperName[M]
	}
	d := &Directory[M]{
		models:    make(map[string]M, len(children)),
		types:     make(map[string]string, len(children)),
		byType:    make(map[string]M, len(children)),
		resources: make(map[string]string, len(children)),
	}
	for _, m := range children {
		key := keyFn(m)
		if _, seen := d.models[key]; !seen {
			d.keys = append(d.keys, key)
		}
		d.models[key] = m
		d.types[key] = m.Name()
		d.byType[m.Name()] = m
		d.resources[naming.Resource(m.Name())] = m.Name()
	}
	return d
}

// Model ищет модель: точный ключ, ключ в верхнем регистре, затем имя ресурса.
func (d *Directory[M]) Model(name string) (M, bool) {
	if m, ok := d.models[name]; ok {
		return m, true
	}
	if m, ok := d.models[strings.ToUpper(name)]; ok {
		return m, true
	}
	if typ, ok := d.resources[name]; ok {
		m, ok := d.byType[typ]
		return m, ok
	}
	var zero M
	return zero, false
}

// ModelType — имя типа в том же порядке разрешения, что и Model.
func (d *Directory[M]) ModelType(name string) (string, bool) {
	if t, ok := d.types[name]; ok {
		return t, true
	}
	if t, ok := d.types[strings.ToUpper(name)]; ok {
		return t, true
	}
	t, ok := d.resources[name]
	return t, ok
}

// ResourceToType — прямой поиск типа по имени ресурса (creditcards -> CreditCard).
func (d *Directory[M]) ResourceToType(resource string) (string, bool) {
	t, ok := d.resources[resource]
	return t, ok
}

// Keys — ключи в порядке добавления.
func (d *Directory[M]) Keys() []string { return append([]string(nil), d.keys...) }

// Models — копия key -> model.
func (d *Directory[M]) Models() map[string]M {
	out := make(map[string]M, len(d.models))
	for k, v := range d.models {
		out[k] = v
	}
	return out
}

// ModelTypes — копия key -> type name.
func (d *Directory[M]) ModelTypes() map[string]string {
	out := make(map[string]string, len(d.types))
	for k, v := range d.types {
		out[k] = v
	}
	return out
}

// Resources — копия resource -> type name.
func (d *Directory[M]) Resources() map[string]string {
	out := make(map[string]string, len(d.resources))
	for k, v := range d.resources {
		out[k] = v
	}
	return out
}

// Len — число ключей.
func (d *Directory[M]) Len() int { return len(d.models) }
