// Package store — хранилища документов: MongoDB и in-memory.
// Документ — map[string]any с вложенными картами; _id выставляет хранилище при вставке.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mongokit/internal/schema"
)

// IDField — поле первичного ключа документа.
const IDField = schema.IDPath

var (
	ErrNotFound     = errors.New("store: document not found")
	ErrClosed       = errors.New("store: backend is closed")
	ErrDuplicateKey = errors.New("store: duplicate key")
)

// FindOptions — пагинация и сортировка выборки.
type FindOptions struct {
	Limit int64
	Skip  int64
	Sort  []schema.SortKey
}

// Collection — коллекция документов.
type Collection interface {
	Name() string
	Find(ctx context.Context, filter map[string]any, opts FindOptions) ([]map[string]any, error)
	FindOne(ctx context.Context, filter map[string]any) (map[string]any, error)
	Count(ctx context.Context, filter map[string]any) (int64, error)
	// Insert сохраняет документ и возвращает его _id (создаётся, если не задан).
	Insert(ctx context.Context, doc map[string]any) (any, error)
	// Replace заменяет документ целиком; ErrNotFound, если id не найден.
	Replace(ctx context.Context, id any, doc map[string]any) error
	EnsureIndex(ctx context.Context, ix schema.Index) (string, error)
	Indexes(ctx context.Context) ([]schema.Index, error)
	// ParseID переводит внешнее (строковое) представление id в значение хранилища.
	ParseID(s string) (any, error)
}

// Backend — подключение к базе.
type Backend interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	// SetDebug включает журналирование каждой команды на уровне debug.
	SetDebug(on bool)
	Kind() string
}

// Options — параметры открытия хранилища.
type Options struct {
	PoolSize       uint64
	ConnectTimeout time.Duration
	Debug          bool
	Logger         *zap.Logger
}

const (
	DefaultPoolSize       = 20
	DefaultConnectTimeout = 60 * time.Second
)

func (o Options) withDefaults() Options {
	if o.PoolSize == 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// IsMemoryURI: пустой URI или схема memory:// — хранилище в памяти.
func IsMemoryURI(uri string) bool {
	uri = strings.TrimSpace(uri)
	return uri == "" || strings.HasPrefix(uri, "memory://")
}

// Open выбирает реализацию по URI.
func Open(ctx context.Context, uri string, opts Options) (Backend, error) {
	opts = opts.withDefaults()
	if IsMemoryURI(uri) {
		m := NewMemory(opts.Logger)
		m.SetDebug(opts.Debug)
		return m, nil
	}
	m, err := OpenMongo(ctx, uri, opts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// IndexName — имя индекса по умолчанию, как у MongoDB: "a_1_b_-1".
func IndexName(ix schema.Index) string {
	if ix.Options.Name != "" {
		return ix.Options.Name
	}
	parts := make([]string, 0, len(ix.Keys)*2)
	for _, k := range ix.Keys {
		parts = append(parts, k.Field, fmt.Sprint(k.Order))
	}
	return strings.Join(parts, "_")
}
