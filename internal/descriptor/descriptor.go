// Package descriptor строит нормализованное описание схемы модели для внешних
// потребителей (валидаторы API, документация).
//
// Описание — дерево из трёх видов узлов:
//
//	Field — лист с типом и ограничениями;
//	Node  — вложенный объект (упорядоченные ключи);
//	Array — массив, JSON {"type": [<элемент>]}.
package descriptor

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	// ModelNameKey — зарезервированный ключ с именем модели на корне.
	ModelNameKey = "_modelName"
	// BehaviorKey — зарезервированный ключ с behavior-метаданными модели.
	BehaviorKey = "behavior"
)

// Descriptor — Field, *Node или *Array.
type Descriptor interface {
	json.Marshaler
	isDescriptor()
}

// Constraints — атрибуты, общие для листьев и массивов.
type Constraints struct {
	Ref      string `json:"ref,omitempty"`
	Required bool   `json:"required,omitempty"`
	Default  any    `json:"default,omitempty"`
	Match    string `json:"match,omitempty"`
}

// Field — лист описания.
type Field struct {
	Type string `json:"type"`
	Enum []any  `json:"enum,omitempty"`
	Constraints
}

func (*Field) isDescriptor() {}

// MarshalJSON нужен, чтобы *Field удовлетворял Descriptor.
func (f *Field) MarshalJSON() ([]byte, error) {
	type plain Field
	return json.Marshal((*plain)(f))
}

// Array — описание массива. Elem == nil у вырожденного массива ("type": []).
type Array struct {
	Elem Descriptor
	Constraints
}

func (*Array) isDescriptor() {}

func (a *Array) MarshalJSON() ([]byte, error) {
	elems := []Descriptor{}
	if a.Elem != nil {
		elems = append(elems, a.Elem)
	}
	return json.Marshal(struct {
		Type []Descriptor `json:"type"`
		Constraints
	}{Type: elems, Constraints: a.Constraints})
}

// Node — вложенный объект описания, ключи хранятся в порядке добавления.
type Node struct {
	keys     []string
	children map[string]Descriptor

	// ModelName и Behavior заполняются только на корне.
	ModelName string
	Behavior  map[string]any
}

func (*Node) isDescriptor() {}

// NewNode создаёт пустой узел.
func NewNode() *Node {
	return &Node{children: make(map[string]Descriptor)}
}

// Keys — ключи в порядке добавления (без зарезервированных).
func (n *Node) Keys() []string { return append([]string(nil), n.keys...) }

// Len — число ключей.
func (n *Node) Len() int { return len(n.keys) }

// Get возвращает прямого потомка.
func (n *Node) Get(key string) (Descriptor, bool) {
	d, ok := n.children[key]
	return d, ok
}

// Has — есть ли ключ в узле.
func (n *Node) Has(key string) bool {
	_, ok := n.children[key]
	return ok
}

// Lookup идёт по точечному пути ("address.city").
func (n *Node) Lookup(path string) (Descriptor, bool) {
	var cur Descriptor = n
	for _, seg := range strings.Split(path, ".") {
		node, ok := cur.(*Node)
		if !ok {
			return nil, false
		}
		if cur, ok = node.children[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set кладёт потомка по ключу, сохраняя позицию существующего ключа.
func (n *Node) Set(key string, d Descriptor) {
	if _, exists := n.children[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.children[key] = d
}

// child возвращает вложенный узел, создавая его при необходимости.
func (n *Node) child(key string) *Node {
	if c, ok := n.children[key].(*Node); ok {
		return c
	}
	c := NewNode()
	n.Set(key, c)
	return c
}

// MarshalJSON пишет ключи в порядке объявления, затем зарезервированные ключи.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
		return nil
	}
	for _, k := range n.keys {
		if err := write(k, n.children[k]); err != nil {
			return nil, err
		}
	}
	if n.ModelName != "" {
		if err := write(ModelNameKey, n.ModelName); err != nil {
			return nil, err
		}
	}
	if n.Behavior != nil {
		if err := write(BehaviorKey, n.Behavior); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
