package odm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mongokit/internal/schema"
	"mongokit/internal/store"
)

// DiscriminatorKey — поле с именем типа у дочерних моделей в общей коллекции.
const DiscriminatorKey = "__t"

// Model — именованная модель со схемой, привязанная к коллекции соединения.
type Model struct {
	name          string
	schema        *schema.Schema
	conn          *Connection
	coll          store.Collection
	parent        *Model
	discriminator string
	log           *zap.Logger
}

func (m *Model) Name() string { return m.name }

// ModelName — то же, что Name; нужен построителю дескриптора.
func (m *Model) ModelName() string { return m.name }

func (m *Model) CollectionName() string {
	if m == nil || m.coll == nil {
		return ""
	}
	return m.coll.Name()
}

func (m *Model) Schema() *schema.Schema { return m.schema }

func (m *Model) Connection() *Connection { return m.conn }

func (m *Model) Collection() store.Collection { return m.coll }

// Parent — базовая модель для дочерней, иначе nil.
func (m *Model) Parent() *Model { return m.parent }

// Discriminator — значение __t дочерней модели; "" у базовой.
func (m *Model) Discriminator() string { return m.discriminator }

// New создаёт несохранённый документ и заполняет значения по умолчанию.
func (m *Model) New(data map[string]any) *Document {
	d := &Document{model: m, data: store.DeepCopy(data), isNew: true}
	if d.data == nil {
		d.data = make(map[string]any)
	}
	for _, p := range m.schema.Paths() {
		if !p.Options.HasDefault() || d.Has(p.Name) {
			continue
		}
		if v := p.Options.DefaultValue(); v != nil {
			d.Set(p.Name, v)
		}
	}
	if m.discriminator != "" {
		d.Set(DiscriminatorKey, m.discriminator)
	}
	return d
}

func (m *Model) load(data map[string]any) *Document {
	return &Document{model: m, data: data}
}

// prepare прогоняет pre-хуки операции и ограничивает выборку типом дочерней модели.
func (m *Model) prepare(ctx context.Context, op schema.QueryOp, conds map[string]any, opts []schema.QueryOption) (*schema.Query, error) {
	q := schema.NewQuery(op, conds, opts...)
	if m.discriminator != "" {
		q.Conditions[DiscriminatorKey] = m.discriminator
	}
	if err := m.schema.RunQueryHooks(ctx, q); err != nil {
		return nil, fmt.Errorf("odm: %s %s: %w", op, m.name, err)
	}
	m.log.Debug(string(op), zap.Any("conditions", q.Conditions))
	return q, nil
}

func (m *Model) Find(ctx context.Context, conds map[string]any, opts ...schema.QueryOption) ([]*Document, error) {
	q, err := m.prepare(ctx, schema.OpFind, conds, opts)
	if err != nil {
		return nil, err
	}
	rows, err := m.coll.Find(ctx, q.Conditions, store.FindOptions{
		Limit: q.Options.Limit,
		Skip:  q.Options.Skip,
		Sort:  q.Options.Sort,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Document, len(rows))
	for i, r := range rows {
		out[i] = m.load(r)
	}
	return out, nil
}

// FindOne возвращает ErrNotFound, если совпадений нет.
func (m *Model) FindOne(ctx context.Context, conds map[string]any, opts ...schema.QueryOption) (*Document, error) {
	q, err := m.prepare(ctx, schema.OpFindOne, conds, opts)
	if err != nil {
		return nil, err
	}
	row, err := m.coll.FindOne(ctx, q.Conditions)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, m.name)
	}
	if err != nil {
		return nil, err
	}
	return m.load(row), nil
}

// FindByID ищет по внешнему представлению id; проходит через те же pre-хуки, что FindOne.
func (m *Model) FindByID(ctx context.Context, id string, opts ...schema.QueryOption) (*Document, error) {
	key, err := m.coll.ParseID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, m.name, id)
	}
	return m.FindOne(ctx, map[string]any{schema.IDPath: key}, opts...)
}

func (m *Model) Count(ctx context.Context, conds map[string]any, opts ...schema.QueryOption) (int64, error) {
	q, err := m.prepare(ctx, schema.OpCount, conds, opts)
	if err != nil {
		return 0, err
	}
	return m.coll.Count(ctx, q.Conditions)
}

// EnsureIndexes создаёт индексы схемы. Дочерние модели индексы не создают:
// коллекцией владеет базовая модель.
func (m *Model) EnsureIndexes(ctx context.Context) ([]string, error) {
	if m.parent != nil {
		return nil, nil
	}
	var names []string
	for _, ix := range m.schema.Indexes() {
		name, err := m.coll.EnsureIndex(ctx, ix)
		if err != nil {
			return names, fmt.Errorf("odm: index %s on %s: %w", store.IndexName(ix), m.name, err)
		}
		names = append(names, name)
	}
	return names, nil
}
