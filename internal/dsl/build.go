package dsl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"mongokit/internal/duration"
	"mongokit/internal/odm"
	"mongokit/internal/plugins"
	"mongokit/internal/reference"
	"mongokit/internal/schema"
)

// ModelDef — собранная модель, готовая к регистрации в odm.Manager.
type ModelDef struct {
	Database string
	Name     string
	// Parent — базовая модель той же базы; Options.Inherit заполняет Register.
	Parent  string
	Schema  *schema.Schema
	Options odm.ModelOptions
	Pos     Pos
}

type builder struct {
	models   map[string]*Model // db/name
	catalogs map[string]reference.EnumDirectory
	// embedded-схемы в процессе сборки, ловит циклы array[A] -> array[B] -> array[A]
	building map[string]bool
}

func key(db, name string) string { return db + "/" + name }

// Build собирает схемы и опции моделей. Базовая модель всегда идёт раньше дочерних,
// остальные сохраняют порядок defs. Embedded-схемы в результат не попадают.
func Build(defs []*Model, catalogs map[string]reference.EnumDirectory) ([]ModelDef, error) {
	b := &builder{
		models:   make(map[string]*Model, len(defs)),
		catalogs: catalogs,
		building: make(map[string]bool),
	}
	for _, m := range defs {
		k := key(m.Database, m.Name)
		if first, dup := b.models[k]; dup {
			return nil, errorf(m.Pos, "%s already defined at %s", m.Name, first.Pos)
		}
		b.models[k] = m
	}

	ordered, err := b.order(defs)
	if err != nil {
		return nil, err
	}
	out := make([]ModelDef, 0, len(ordered))
	for _, m := range ordered {
		def, err := b.model(m)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (b *builder) order(defs []*Model) ([]*Model, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[*Model]int)
	var out []*Model
	var visit func(m *Model) error
	visit = func(m *Model) error {
		switch state[m] {
		case done:
			return nil
		case visiting:
			return errorf(m.Pos, "inheritance cycle at %s", m.Name)
		}
		state[m] = visiting
		if m.Extends != "" {
			parent, ok := b.models[key(m.Database, m.Extends)]
			if !ok || parent.Embedded {
				return errorf(m.Pos, "%s extends unknown model %s", m.Name, m.Extends)
			}
			if parent.Extends != "" {
				return errorf(m.Pos, "%s extends %s, which is itself a child model", m.Name, m.Extends)
			}
			if err := visit(parent); err != nil {
				return err
			}
		}
		state[m] = done
		out = append(out, m)
		return nil
	}
	for _, m := range defs {
		if m.Embedded {
			continue
		}
		if err := visit(m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *builder) model(m *Model) (ModelDef, error) {
	var opts []schema.Option
	if m.Collection != "" {
		if m.Extends != "" {
			return ModelDef{}, errorf(m.Pos, "%s: child models share the parent's collection", m.Name)
		}
		opts = append(opts, schema.WithCollection(m.Collection))
	}
	s, err := b.schema(m, opts...)
	if err != nil {
		return ModelDef{}, err
	}
	if len(m.Behavior) > 0 {
		behavior := m.Behavior
		s.SetBehavior(func() map[string]any {
			out := make(map[string]any, len(behavior))
			for _, o := range behavior {
				out[o.Key] = scalar(o.Value)
			}
			return out
		})
	}
	mo, err := modelOptions(m)
	if err != nil {
		return ModelDef{}, err
	}
	return ModelDef{
		Database: m.Database,
		Name:     m.Name,
		Parent:   m.Extends,
		Schema:   s,
		Options:  mo,
		Pos:      m.Pos,
	}, nil
}

func (b *builder) schema(m *Model, opts ...schema.Option) (*schema.Schema, error) {
	s := schema.New(opts...)
	for _, f := range m.Fields {
		def, err := b.field(m, f)
		if err != nil {
			return nil, err
		}
		if err := s.Add(f.Name, def); err != nil {
			return nil, errorf(f.Pos, "%v", err)
		}
	}
	for _, ix := range m.Indexes {
		keys := make([]schema.IndexKey, len(ix.Keys))
		for i, k := range ix.Keys {
			order := 1
			if k.Desc {
				order = -1
			}
			keys[i] = schema.IndexKey{Field: k.Field, Order: order}
		}
		ixOpts, err := indexOptionsOf(ix)
		if err != nil {
			return nil, err
		}
		s.Index(keys, ixOpts)
	}
	return s, nil
}

func indexOptionsOf(ix IndexDef) (schema.IndexOptions, error) {
	var out schema.IndexOptions
	for k, v := range ix.Options {
		switch k {
		case "name":
			out.Name = v
		case "unique":
			out.Unique = v == "" || v == "true"
		case "sparse":
			out.Sparse = v == "" || v == "true"
		case "ttl":
			d, err := duration.Parse(v)
			if err != nil {
				return out, errorf(ix.Pos, "index ttl: %v", err)
			}
			secs := int32(d / time.Second)
			out.ExpireAfterSeconds = &secs
		}
	}
	return out, nil
}

func (b *builder) field(m *Model, f Field) (schema.Def, error) {
	def, err := b.typeDef(m, &f)
	if err != nil {
		return def, err
	}
	for k, v := range f.Options {
		switch k {
		case "required":
			def = def.Required()
		case "index":
			def = def.Index()
		case "sparse":
			def = def.Sparse()
		case "unique":
			def = def.Unique()
		case "match":
			def = def.Match(v)
		}
	}
	if v, ok := f.Options["default"]; ok {
		def, err = withDefault(f, def, v)
		if err != nil {
			return def, err
		}
	}
	return def, nil
}

// typeDef переводит тип поля (или элемента массива) в schema.Def.
func (b *builder) typeDef(m *Model, f *Field) (schema.Def, error) {
	switch f.Type {
	case kindEnum:
		values := f.Enum
		if f.EnumCatalog != "" {
			cat, ok := b.catalogs[f.EnumCatalog]
			if !ok {
				return schema.Def{}, errorf(f.Pos, "unknown enum catalog @%s", f.EnumCatalog)
			}
			values = cat.Codes()
		}
		vals := make([]any, len(values))
		for i, v := range values {
			vals[i] = v
		}
		return schema.String().Enum(vals...), nil
	case kindRef:
		return schema.ObjectID().Ref(f.Ref), nil
	case kindArray:
		elem := *f.Elem
		elem.Pos = f.Pos
		if elem.Type == kindEmbedded {
			sub, err := b.embedded(m, elem)
			if err != nil {
				return schema.Def{}, err
			}
			return schema.DocumentArray(sub), nil
		}
		ed, err := b.typeDef(m, &elem)
		if err != nil {
			return schema.Def{}, err
		}
		return schema.ArrayOf(ed), nil
	case kindEmbedded:
		return schema.Def{}, errorf(f.Pos, "embedded schema %s outside of array", f.Embedded)
	}
	return schema.Of(schema.TypeTag(f.Type)), nil
}

func (b *builder) embedded(m *Model, f Field) (*schema.Schema, error) {
	k := key(m.Database, f.Embedded)
	e, ok := b.models[k]
	if !ok || !e.Embedded {
		return nil, errorf(f.Pos, "unknown embedded schema %s", f.Embedded)
	}
	if b.building[k] {
		return nil, errorf(f.Pos, "embedded schema %s refers to itself", f.Embedded)
	}
	b.building[k] = true
	defer delete(b.building, k)
	return b.schema(e, schema.WithoutID())
}

// withDefault приводит default= к типу поля; для enum значение должно входить в список.
func withDefault(f Field, def schema.Def, raw string) (schema.Def, error) {
	switch f.Type {
	case string(schema.TypeNumber):
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return def, errorf(f.Pos, "field %s: default %q is not a number", f.Name, raw)
		}
		return def.Default(n), nil
	case string(schema.TypeBoolean):
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return def, errorf(f.Pos, "field %s: default %q is not a boolean", f.Name, raw)
		}
		return def.Default(v), nil
	case string(schema.TypeDate):
		if raw == "now" {
			return def.DefaultFunc(func() any { return time.Now() }), nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return def, errorf(f.Pos, "field %s: default %q is not an RFC 3339 date", f.Name, raw)
		}
		return def.Default(t), nil
	case kindEnum:
		if len(f.Enum) > 0 && !contains(f.Enum, raw) {
			return def, errorf(f.Pos, "field %s: default %q is not one of %s", f.Name, raw, strings.Join(f.Enum, ", "))
		}
	case kindArray, kindRef:
		return def, errorf(f.Pos, "field %s: default is not supported for %s", f.Name, f.Type)
	}
	return def.Default(raw), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// scalar приводит значение behavior к bool, числу или строке.
func scalar(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}

// modelOptions переводит секцию plugins: в odm.ModelOptions.
//
//	ttl | ttl=5m | ttl=never
//	timestamp | timestamp=createdAt,updatedAt
//	hide
//	deactivate | deactivate=idx_a,idx_b   (исключённые индексы)
//	<custom>[=value]                      (плагины Manager.Use)
func modelOptions(m *Model) (odm.ModelOptions, error) {
	var out odm.ModelOptions
	for _, o := range m.Plugins {
		flag := o.Value == ""
		switch o.Key {
		case plugins.KeyTTL:
			switch {
			case flag:
				out.TTL = true
			case o.Value == "never":
				out.TTL = plugins.TTLOptions{NeverExpiresByDefault: true}
			default:
				if _, err := duration.Parse(o.Value); err != nil {
					return out, errorf(m.Pos, "%s: ttl: %v", m.Name, err)
				}
				out.TTL = o.Value
			}
		case plugins.KeyTimestamp:
			if flag {
				out.Timestamp = true
				continue
			}
			names := splitList(o.Value)
			ts := plugins.TimestampOptions{}
			if len(names) > 0 {
				ts.Created = names[0]
			}
			if len(names) > 1 {
				ts.LastUpdated = names[1]
			}
			out.Timestamp = ts
		case plugins.KeyHide:
			if flag {
				out.Hide = true
				continue
			}
			v, err := strconv.ParseBool(o.Value)
			if err != nil {
				return out, errorf(m.Pos, "%s: hide=%q", m.Name, o.Value)
			}
			out.Hide = v
		case plugins.KeyDeactivate:
			if flag {
				out.Deactivate = true
				continue
			}
			out.Deactivate = plugins.DeactivateOptions{ExcludedIndexes: splitList(o.Value)}
		default:
			if out.Plugins == nil {
				out.Plugins = make(map[string]any)
			}
			if flag {
				out.Plugins[o.Key] = true
			} else {
				out.Plugins[o.Key] = scalar(o.Value)
			}
		}
	}
	return out, nil
}

// Register создаёт модели defs в менеджере. Базы (Database) должны быть уже подключены;
// пустая база — main.
func Register(mgr *odm.Manager, defs []ModelDef) ([]*odm.Model, error) {
	out := make([]*odm.Model, 0, len(defs))
	for _, d := range defs {
		opts := d.Options
		if d.Parent != "" {
			parent, err := mgr.Model(d.Database, d.Parent)
			if err != nil {
				return out, fmt.Errorf("%s: %w", d.Pos, err)
			}
			opts.Inherit = &odm.Inherit{From: parent}
		}
		model, err := mgr.CreateModelOn(d.Name, d.Schema, opts, d.Database)
		if err != nil {
			return out, fmt.Errorf("%s: %w", d.Pos, err)
		}
		out = append(out, model)
	}
	return out, nil
}
