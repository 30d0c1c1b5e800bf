package odm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mongokit/internal/schema"
	"mongokit/internal/store"
)

// Document — экземпляр модели.
type Document struct {
	model *Model
	data  map[string]any
	isNew bool
}

var _ schema.Doc = (*Document)(nil)

func (d *Document) Model() *Model { return d.model }

// Get читает значение по точечному пути.
func (d *Document) Get(path string) any {
	v, _ := store.Lookup(d.data, path)
	return v
}

// Has — задан ли путь.
func (d *Document) Has(path string) bool {
	_, ok := store.Lookup(d.data, path)
	return ok
}

// Set пишет значение, создавая промежуточные объекты.
func (d *Document) Set(path string, value any) {
	segs := strings.Split(path, ".")
	node := d.data
	for _, seg := range segs[:len(segs)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[seg] = next
		}
		node = next
	}
	node[segs[len(segs)-1]] = value
}

// Unset удаляет путь; пустые промежуточные объекты остаются.
func (d *Document) Unset(path string) {
	segs := strings.Split(path, ".")
	node := d.data
	for _, seg := range segs[:len(segs)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
	delete(node, segs[len(segs)-1])
}

// ID — значение _id; nil у несохранённого документа без явного id.
func (d *Document) ID() any { return d.data[schema.IDPath] }

// IsNew — документ ещё не сохранялся.
func (d *Document) IsNew() bool { return d.isNew }

// Data — копия данных документа.
func (d *Document) Data() map[string]any { return store.DeepCopy(d.data) }

// Save прогоняет pre-save хуки и вставляет либо заменяет документ.
func (d *Document) Save(ctx context.Context) error {
	if err := d.model.schema.RunSaveHooks(ctx, d); err != nil {
		return fmt.Errorf("odm: save %s: %w", d.model.name, err)
	}
	coll := d.model.coll
	if d.isNew {
		id, err := coll.Insert(ctx, d.data)
		if err != nil {
			return err
		}
		d.data[schema.IDPath] = id
		d.isNew = false
		return nil
	}
	return coll.Replace(ctx, d.ID(), d.data)
}

// Invoke вызывает метод экземпляра, объявленный в схеме (в т.ч. плагинами).
func (d *Document) Invoke(ctx context.Context, method string, args ...any) error {
	fn, ok := d.model.schema.LookupMethod(method)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownMethod, d.model.name, method)
	}
	return fn(ctx, d, args...)
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.data)
}
