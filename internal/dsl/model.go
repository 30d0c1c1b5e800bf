package dsl

import "fmt"

// Pos — место в исходном файле.
type Pos struct {
	File string
	Line int
}

func (p Pos) String() string { return fmt.Sprintf("%s:%d", p.File, p.Line) }

// Error — ошибка разбора или сборки с позицией.
type Error struct {
	Pos Pos
	Msg string
}

func (e *Error) Error() string { return e.Pos.String() + ": " + e.Msg }

func errorf(pos Pos, format string, args ...any) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Option — пара key=value из заголовка модели; у флага без значения Value == "".
type Option struct {
	Key   string
	Value string
}

// Model описывает модель (или встраиваемую схему) из DSL.
type Model struct {
	Database   string
	Name       string
	Collection string
	Extends    string
	// Embedded — схема поддокумента для array[Name]; своей коллекции нет.
	Embedded bool
	Plugins  []Option
	Behavior []Option
	Fields   []Field
	Indexes  []IndexDef
	Pos      Pos
}

// Field описывает поле модели.
type Field struct {
	Name string
	Type string // тег схемы (String, Number, ...), enum, ref, array или embedded
	// Elem — элемент массива; у поля-элемента Name пустой.
	Elem        *Field
	Enum        []string
	EnumCatalog string // enum[@catalog]
	Ref         string
	Embedded    string // имя embedded-схемы для array[Name]
	Options     map[string]string // required, default, match, index, sparse, unique
	Pos         Pos
}

// IndexKey — поле составного индекса; "-field" означает обратный порядок.
type IndexKey struct {
	Field string
	Desc  bool
}

// IndexDef — строка index(...) блока constraints.
type IndexDef struct {
	Keys    []IndexKey
	Options map[string]string // name, unique, sparse, ttl
	Pos     Pos
}
