package schema

import (
	"context"
	"fmt"
	"strings"
)

// IDPath — путь первичного ключа.
const IDPath = "_id"

// Option настраивает Schema при создании.
type Option func(*Schema)

// WithoutID не объявляет путь _id (например, для поддокументов без собственного id).
func WithoutID() Option { return func(s *Schema) { s.noID = true } }

// WithCollection фиксирует имя коллекции вместо производного от имени модели.
func WithCollection(name string) Option { return func(s *Schema) { s.collection = name } }

// Schema — упорядоченный набор путей плюс поведение модели.
type Schema struct {
	order []string
	paths map[string]*Path

	indexes     []Index
	indexChain  []IndexMiddleware
	queryHooks  map[QueryOp][]QueryHook
	saveHooks   []SaveHook
	methods     map[string]Method
	methodOrder []string
	behavior    BehaviorFunc

	collection string
	noID       bool
}

// New создаёт схему; путь _id объявляется первым, если не передан WithoutID.
func New(opts ...Option) *Schema {
	s := &Schema{
		paths:      make(map[string]*Path),
		queryHooks: make(map[QueryOp][]QueryHook),
		methods:    make(map[string]Method),
	}
	for _, o := range opts {
		o(s)
	}
	if !s.noID {
		s.put(ObjectID().path(IDPath))
	}
	return s
}

// Add объявляет путь. Повторное объявление заменяет метаданные, сохраняя позицию.
func (s *Schema) Add(name string, def Def) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("schema: empty path name")
	}
	if def.err != nil {
		return fmt.Errorf("schema: path %q: %w", name, def.err)
	}
	if def.instance == "" {
		return fmt.Errorf("schema: path %q: missing type", name)
	}
	s.put(def.path(name))

	if def.index {
		order := 1
		if def.sparse {
			order = -1
		}
		s.Index([]IndexKey{{Field: name, Order: order}}, IndexOptions{Sparse: def.sparse, Unique: def.unique})
	}
	return nil
}

// MustAdd — Add для статических схем; паникует на ошибке.
func (s *Schema) MustAdd(name string, def Def) *Schema {
	if err := s.Add(name, def); err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) put(p *Path) {
	if _, exists := s.paths[p.Name]; !exists {
		s.order = append(s.order, p.Name)
	}
	s.paths[p.Name] = p
}

// Path возвращает метаданные пути.
func (s *Schema) Path(name string) (*Path, bool) {
	p, ok := s.paths[name]
	return p, ok
}

// Paths — пути в порядке объявления.
func (s *Schema) Paths() []*Path {
	out := make([]*Path, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.paths[name])
	}
	return out
}

// Collection — явно заданное имя коллекции или "".
func (s *Schema) Collection() string { return s.collection }

// Index регистрирует индекс через цепочку перехватчиков.
func (s *Schema) Index(keys []IndexKey, opts IndexOptions) {
	var fn IndexFunc = s.addIndex
	for i := len(s.indexChain) - 1; i >= 0; i-- {
		fn = s.indexChain[i](fn)
	}
	fn(keys, opts)
}

func (s *Schema) addIndex(keys []IndexKey, opts IndexOptions) {
	if len(keys) == 0 {
		return
	}
	s.indexes = append(s.indexes, Index{Keys: append([]IndexKey(nil), keys...), Options: opts})
}

// InterceptIndex оборачивает будущие вызовы Index. Уже объявленные индексы не затрагиваются.
func (s *Schema) InterceptIndex(mw IndexMiddleware) {
	if mw != nil {
		s.indexChain = append(s.indexChain, mw)
	}
}

// RewriteIndexes переписывает уже объявленные индексы на месте.
func (s *Schema) RewriteIndexes(fn func(Index) Index) {
	for i, ix := range s.indexes {
		s.indexes[i] = fn(ix)
	}
}

// Indexes — копия объявленных индексов.
func (s *Schema) Indexes() []Index {
	out := make([]Index, len(s.indexes))
	for i, ix := range s.indexes {
		out[i] = Index{Keys: append([]IndexKey(nil), ix.Keys...), Options: ix.Options}
	}
	return out
}

// Pre вешает хук на операцию чтения.
func (s *Schema) Pre(op QueryOp, hook QueryHook) {
	if hook != nil {
		s.queryHooks[op] = append(s.queryHooks[op], hook)
	}
}

// PreSave вешает хук перед сохранением документа.
func (s *Schema) PreSave(hook SaveHook) {
	if hook != nil {
		s.saveHooks = append(s.saveHooks, hook)
	}
}

// RunQueryHooks прогоняет pre-хуки операции по порядку регистрации.
func (s *Schema) RunQueryHooks(ctx context.Context, q *Query) error {
	for _, h := range s.queryHooks[q.Op] {
		if err := h(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// RunSaveHooks прогоняет pre-save хуки.
func (s *Schema) RunSaveHooks(ctx context.Context, doc Doc) error {
	for _, h := range s.saveHooks {
		if err := h(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// Method регистрирует метод экземпляра; повторная регистрация заменяет.
func (s *Schema) Method(name string, fn Method) {
	if name == "" || fn == nil {
		return
	}
	if _, ok := s.methods[name]; !ok {
		s.methodOrder = append(s.methodOrder, name)
	}
	s.methods[name] = fn
}

// LookupMethod ищет метод экземпляра.
func (s *Schema) LookupMethod(name string) (Method, bool) {
	fn, ok := s.methods[name]
	return fn, ok
}

// Methods — имена методов в порядке регистрации.
func (s *Schema) Methods() []string {
	return append([]string(nil), s.methodOrder...)
}

// SetBehavior задаёт расширение "behavior" для дескриптора.
func (s *Schema) SetBehavior(fn BehaviorFunc) { s.behavior = fn }

// Behavior вызывает расширение; nil, если оно не задано.
func (s *Schema) Behavior() map[string]any {
	if s.behavior == nil {
		return nil
	}
	return s.behavior()
}

// HasBehavior сообщает, задано ли расширение.
func (s *Schema) HasBehavior() bool { return s.behavior != nil }

// Clone — глубокая копия путей и индексов; хуки и методы разделяются по значению функций.
func (s *Schema) Clone() *Schema {
	cp := &Schema{
		order:       append([]string(nil), s.order...),
		paths:       make(map[string]*Path, len(s.paths)),
		indexes:     s.Indexes(),
		indexChain:  append([]IndexMiddleware(nil), s.indexChain...),
		queryHooks:  make(map[QueryOp][]QueryHook, len(s.queryHooks)),
		saveHooks:   append([]SaveHook(nil), s.saveHooks...),
		methods:     make(map[string]Method, len(s.methods)),
		methodOrder: append([]string(nil), s.methodOrder...),
		behavior:    s.behavior,
		collection:  s.collection,
		noID:        s.noID,
	}
	for k, p := range s.paths {
		cp.paths[k] = p.clone()
	}
	for op, hooks := range s.queryHooks {
		cp.queryHooks[op] = append([]QueryHook(nil), hooks...)
	}
	for k, m := range s.methods {
		cp.methods[k] = m
	}
	return cp
}

// Merge добавляет в s пути, индексы, хуки и методы base, которых в s ещё нет.
// Пути base идут первыми, как у дискриминатора поверх базовой схемы.
func (s *Schema) Merge(base *Schema) {
	if base == nil {
		return
	}
	order := make([]string, 0, len(base.order)+len(s.order))
	for _, name := range base.order {
		if _, own := s.paths[name]; !own {
			s.paths[name] = base.paths[name].clone()
		}
		order = append(order, name)
	}
	for _, name := range s.order {
		if _, inBase := base.paths[name]; !inBase {
			order = append(order, name)
		}
	}
	s.order = order

	s.indexes = append(base.Indexes(), s.indexes...)
	for op, hooks := range base.queryHooks {
		s.queryHooks[op] = append(append([]QueryHook(nil), hooks...), s.queryHooks[op]...)
	}
	s.saveHooks = append(append([]SaveHook(nil), base.saveHooks...), s.saveHooks...)
	for _, name := range base.methodOrder {
		if _, own := s.methods[name]; !own {
			s.methods[name] = base.methods[name]
			s.methodOrder = append(s.methodOrder, name)
		}
	}
	if s.behavior == nil {
		s.behavior = base.behavior
	}
}

// Tree — "сырое" дерево путей (формат 'tree'): вложенные карты по сегментам, листья — *Path.
func (s *Schema) Tree() map[string]any {
	tree := make(map[string]any)
	for _, name := range s.order {
		segs := strings.Split(name, ".")
		node := tree
		for _, seg := range segs[:len(segs)-1] {
			next, ok := node[seg].(map[string]any)
			if !ok {
				next = make(map[string]any)
				node[seg] = next
			}
			node = next
		}
		node[segs[len(segs)-1]] = s.paths[name]
	}
	return tree
}
