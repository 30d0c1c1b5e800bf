package store

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"mongokit/internal/schema"
)

// Memory — хранилище в памяти. Порядок документов — порядок вставки; id — ULID.
type Memory struct {
	mu      sync.RWMutex
	colls   map[string]*memCollection
	entropy io.Reader
	closed  bool

	log   *zap.Logger
	debug atomic.Bool
	now   func() time.Time
}

type memCollection struct {
	mem     *Memory
	name    string
	ids     []string
	docs    map[string]map[string]any
	indexes []schema.Index
}

// NewMemory создаёт пустое хранилище.
func NewMemory(log *zap.Logger) *Memory {
	if log == nil {
		log = zap.NewNop()
	}
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Memory{
		colls:   make(map[string]*memCollection),
		entropy: ulid.Monotonic(src, 0),
		log:     log.Named("memory"),
		now:     time.Now,
	}
}

func (m *Memory) Kind() string { return "memory" }

func (m *Memory) newID() string {
	return ulid.MustNew(ulid.Timestamp(m.now()), m.entropy).String()
}

func (m *Memory) SetDebug(on bool) { m.debug.Store(on) }

func (m *Memory) trace(coll, op string, fields ...zap.Field) {
	if m.debug.Load() {
		m.log.Debug(op, append([]zap.Field{zap.String("collection", coll)}, fields...)...)
	}
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Collection создаёт коллекцию при первом обращении.
func (m *Memory) Collection(name string) Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[name]
	if !ok {
		c = &memCollection{mem: m, name: name, docs: make(map[string]map[string]any)}
		m.colls[name] = c
	}
	return c
}

func (c *memCollection) Name() string { return c.name }

func (c *memCollection) ParseID(s string) (any, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	return s, nil
}

// purgeExpired удаляет документы с истёкшим TTL-полем. Вызывать под записью.
func (c *memCollection) purgeExpired() {
	now := c.mem.now()
	for _, ix := range c.indexes {
		if ix.Options.ExpireAfterSeconds == nil || len(ix.Keys) != 1 {
			continue
		}
		field := ix.Keys[0].Field
		grace := time.Duration(*ix.Options.ExpireAfterSeconds) * time.Second
		kept := c.ids[:0]
		for _, id := range c.ids {
			v, _ := Lookup(c.docs[id], field)
			if at, ok := v.(time.Time); ok && !at.Add(grace).After(now) {
				delete(c.docs, id)
				continue
			}
			kept = append(kept, id)
		}
		c.ids = kept
	}
}

func (c *memCollection) matching(filter map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(c.ids))
	for _, id := range c.ids {
		doc := c.docs[id]
		ok, err := Matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (c *memCollection) guard() error {
	if c.mem.closed {
		return ErrClosed
	}
	c.purgeExpired()
	return nil
}

func (c *memCollection) Find(_ context.Context, filter map[string]any, opts FindOptions) ([]map[string]any, error) {
	c.mem.mu.Lock()
	defer c.mem.mu.Unlock()
	if err := c.guard(); err != nil {
		return nil, err
	}
	c.mem.trace(c.name, "find", zap.Any("filter", filter))
	docs, err := c.matching(filter)
	if err != nil {
		return nil, err
	}
	SortDocs(docs, opts.Sort)
	docs = Page(docs, opts.Skip, opts.Limit)
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = DeepCopy(d)
	}
	return out, nil
}

func (c *memCollection) FindOne(ctx context.Context, filter map[string]any) (map[string]any, error) {
	docs, err := c.Find(ctx, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (c *memCollection) Count(_ context.Context, filter map[string]any) (int64, error) {
	c.mem.mu.Lock()
	defer c.mem.mu.Unlock()
	if err := c.guard(); err != nil {
		return 0, err
	}
	c.mem.trace(c.name, "count", zap.Any("filter", filter))
	docs, err := c.matching(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (c *memCollection) Insert(_ context.Context, doc map[string]any) (any, error) {
	c.mem.mu.Lock()
	defer c.mem.mu.Unlock()
	if c.mem.closed {
		return nil, ErrClosed
	}
	cp := DeepCopy(doc)
	if cp == nil {
		cp = make(map[string]any)
	}
	id, _ := cp[IDField].(string)
	if id == "" {
		id = c.mem.newID()
		cp[IDField] = id
	}
	if _, dup := c.docs[id]; dup {
		return nil, fmt.Errorf("%w: %s %q in %s", ErrDuplicateKey, IDField, id, c.name)
	}
	if err := c.checkUnique(cp, ""); err != nil {
		return nil, err
	}
	c.ids = append(c.ids, id)
	c.docs[id] = cp
	c.mem.trace(c.name, "insert", zap.String("id", id))
	return id, nil
}

func (c *memCollection) Replace(_ context.Context, id any, doc map[string]any) error {
	c.mem.mu.Lock()
	defer c.mem.mu.Unlock()
	if c.mem.closed {
		return ErrClosed
	}
	key := fmt.Sprint(id)
	if _, ok := c.docs[key]; !ok {
		return ErrNotFound
	}
	cp := DeepCopy(doc)
	if cp == nil {
		cp = make(map[string]any)
	}
	cp[IDField] = key
	if err := c.checkUnique(cp, key); err != nil {
		return err
	}
	c.docs[key] = cp
	c.mem.trace(c.name, "replace", zap.String("id", key))
	return nil
}

// checkUnique проверяет уникальные индексы; self — id заменяемого документа.
func (c *memCollection) checkUnique(doc map[string]any, self string) error {
	for _, ix := range c.indexes {
		if !ix.Options.Unique {
			continue
		}
		want := make(map[string]any, len(ix.Keys))
		sparseMiss := false
		for _, k := range ix.Keys {
			v, ok := Lookup(doc, k.Field)
			if !ok && ix.Options.Sparse {
				sparseMiss = true
			}
			want[k.Field] = v
		}
		if sparseMiss {
			continue
		}
		for _, id := range c.ids {
			if id == self {
				continue
			}
			if ok, _ := Matches(c.docs[id], want); ok {
				return fmt.Errorf("%w for index %s in %s", ErrDuplicateKey, IndexName(ix), c.name)
			}
		}
	}
	return nil
}

func (c *memCollection) EnsureIndex(_ context.Context, ix schema.Index) (string, error) {
	if len(ix.Keys) == 0 {
		return "", fmt.Errorf("store: index without keys")
	}
	c.mem.mu.Lock()
	defer c.mem.mu.Unlock()
	name := IndexName(ix)
	ix.Options.Name = name
	for i, have := range c.indexes {
		if have.Options.Name == name {
			c.indexes[i] = ix
			return name, nil
		}
	}
	c.indexes = append(c.indexes, ix)
	return name, nil
}

// Indexes — индекс по _id и объявленные индексы в порядке создания.
func (c *memCollection) Indexes(context.Context) ([]schema.Index, error) {
	c.mem.mu.RLock()
	defer c.mem.mu.RUnlock()
	out := []schema.Index{{Keys: schema.Keys(IDField, 1), Options: schema.IndexOptions{Name: "_id_"}}}
	for _, ix := range c.indexes {
		cp := ix
		cp.Keys = append([]schema.IndexKey(nil), ix.Keys...)
		out = append(out, cp)
	}
	return out, nil
}
