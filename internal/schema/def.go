package schema

import "regexp"

// Def — объявление поля для Schema.Add. Значение, цепочки возвращают копию.
type Def struct {
	instance TypeTag
	enum     []any
	opts     FieldOptions
	elem     *Def
	sub      *Schema

	index  bool
	sparse bool
	unique bool
	err    error
}

func String() Def   { return Def{instance: TypeString} }
func Number() Def   { return Def{instance: TypeNumber} }
func Date() Def     { return Def{instance: TypeDate} }
func Boolean() Def  { return Def{instance: TypeBoolean} }
func ObjectID() Def { return Def{instance: TypeObjectID} }
func Mixed() Def    { return Def{instance: TypeMixed} }
func Buffer() Def   { return Def{instance: TypeBuffer} }

// Of — поле произвольного тега.
func Of(tag TypeTag) Def { return Def{instance: tag} }

// ArrayOf — массив примитивов.
func ArrayOf(elem Def) Def {
	e := elem
	return Def{instance: TypeArray, elem: &e}
}

// DocumentArray — массив поддокументов со своей схемой.
func DocumentArray(sub *Schema) Def {
	return Def{instance: TypeArray, sub: sub}
}

func (d Def) Required() Def { d.opts.Required = true; return d }

func (d Def) Default(v any) Def { d.opts.Default = v; return d }

func (d Def) DefaultFunc(fn func() any) Def {
	if fn != nil {
		d.opts.Default = DefaultFunc(fn)
	}
	return d
}

func (d Def) Enum(values ...any) Def {
	d.enum = append(append([]any(nil), d.enum...), values...)
	return d
}

// Match — шаблон валидации; ошибка компиляции всплывает в Schema.Add.
func (d Def) Match(expr string) Def {
	re, err := regexp.Compile(expr)
	if err != nil {
		d.err = err
		return d
	}
	d.opts.Match = re
	return d
}

func (d Def) Ref(model string) Def { d.opts.Ref = model; return d }

func (d Def) Index() Def  { d.index = true; return d }
func (d Def) Sparse() Def { d.index, d.sparse = true, true; return d }
func (d Def) Unique() Def { d.index, d.unique = true, true; return d }

func (d Def) path(name string) *Path {
	p := &Path{
		Name:       name,
		Instance:   d.instance,
		EnumValues: append([]any(nil), d.enum...),
		Options:    d.opts,
	}
	if d.instance == TypeArray {
		switch {
		case d.sub != nil:
			p.Schema = d.sub
		case d.elem != nil:
			p.Caster = d.elem.path(name)
		}
	}
	return p
}
