// Package plugins содержит реестр плагинов схемы и встроенные плагины:
// ttl, timestamp, hide, deactivate.
package plugins

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"mongokit/internal/schema"
)

// Plugin меняет схему до создания модели. cfg — значение опции модели под ключом плагина.
type Plugin func(s *schema.Schema, cfg any) error

const (
	KeyTTL        = "ttl"
	KeyTimestamp  = "timestamp"
	KeyHide       = "hide"
	KeyDeactivate = "deactivate"
)

// Registry — упорядоченный набор именованных плагинов.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Builtin возвращает реестр со встроенными плагинами в порядке применения.
func Builtin() *Registry {
	r := NewRegistry()
	r.Use(KeyTTL, TTLPlugin)
	r.Use(KeyTimestamp, TimestampPlugin)
	r.Use(KeyHide, HidePlugin)
	r.Use(KeyDeactivate, DeactivatePlugin)
	return r
}

// Use добавляет плагин или подменяет существующий, сохраняя его позицию.
func (r *Registry) Use(key string, p Plugin) {
	if key == "" || p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[key]; !ok {
		r.order = append(r.order, key)
	}
	r.plugins[key] = p
}

func (r *Registry) Get(key string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[key]
	return p, ok
}

// Keys — ключи в порядке применения.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Apply применяет к схеме каждый плагин, для которого опция истинна.
// Опции без зарегистрированного плагина игнорируются.
func (r *Registry) Apply(s *schema.Schema, opts map[string]any) error {
	for _, key := range r.Keys() {
		cfg, ok := opts[key]
		if !ok || !Truthy(cfg) {
			continue
		}
		p, _ := r.Get(key)
		if err := p(s, cfg); err != nil {
			return fmt.Errorf("plugin %s: %w", key, err)
		}
	}
	return nil
}

// Truthy — включена ли опция: false, 0, "", nil и nil-указатели выключают плагин.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	}
	return true
}

// Invoker — документ, у которого можно вызвать метод экземпляра по имени.
type Invoker interface {
	Invoke(ctx context.Context, method string, args ...any) error
}
