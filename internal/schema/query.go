package schema

import "context"

// QueryOp — операция чтения, на которую вешаются pre-хуки.
type QueryOp string

const (
	OpCount   QueryOp = "count"
	OpFind    QueryOp = "find"
	OpFindOne QueryOp = "findOne"
)

// SortKey — поле сортировки.
type SortKey struct {
	Field string
	Desc  bool
}

// QueryOptions — опции чтения.
type QueryOptions struct {
	// GetInactive отключает фильтр неактивных записей плагина deactivate.
	GetInactive bool
	Limit       int64
	Skip        int64
	Sort        []SortKey
}

// QueryOption настраивает QueryOptions.
type QueryOption func(*QueryOptions)

// WithInactive включает неактивные (деактивированные) записи в выборку.
func WithInactive() QueryOption {
	return func(o *QueryOptions) { o.GetInactive = true }
}

// WithLimit задаёт предел выборки.
func WithLimit(n int64) QueryOption {
	return func(o *QueryOptions) {
		if n > 0 {
			o.Limit = n
		}
	}
}

// WithSkip задаёт смещение.
func WithSkip(n int64) QueryOption {
	return func(o *QueryOptions) {
		if n > 0 {
			o.Skip = n
		}
	}
}

// WithSort добавляет поле сортировки.
func WithSort(field string, desc bool) QueryOption {
	return func(o *QueryOptions) {
		if field != "" {
			o.Sort = append(o.Sort, SortKey{Field: field, Desc: desc})
		}
	}
}

// CollectQueryOptions применяет опции по порядку.
func CollectQueryOptions(opts ...QueryOption) QueryOptions {
	var out QueryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// Query — запрос, который видят pre-хуки. Хуки могут менять Conditions.
type Query struct {
	Op         QueryOp
	Conditions map[string]any
	Options    QueryOptions
}

// NewQuery копирует условия, чтобы хуки не трогали карту вызывающего.
func NewQuery(op QueryOp, conditions map[string]any, opts ...QueryOption) *Query {
	conds := make(map[string]any, len(conditions)+1)
	for k, v := range conditions {
		conds[k] = v
	}
	return &Query{Op: op, Conditions: conds, Options: CollectQueryOptions(opts...)}
}

// QueryHook — pre-хук запроса.
type QueryHook func(ctx context.Context, q *Query) error
