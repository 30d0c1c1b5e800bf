package plugins

import (
	"context"
	"fmt"
	"reflect"

	"mongokit/internal/schema"
)

const (
	ActiveField      = "active"
	MethodDeactivate = "deactivate"
	MethodReactivate = "reactivate"
)

// DeactivateOptions — опции мягкого удаления.
type DeactivateOptions struct {
	// ExcludedIndexes — имена индексов, в которые не добавляется поле active.
	ExcludedIndexes []string
	// DeactivateMethod сохраняет деактивированный документ вместо Save.
	DeactivateMethod func(ctx context.Context, doc schema.Doc) error
}

// DeactivatePlugin помечает записи неактивными вместо удаления и скрывает их из чтения.
func DeactivatePlugin(s *schema.Schema, cfg any) error {
	opts, err := deactivateOptions(cfg)
	if err != nil {
		return err
	}
	if err := s.Add(ActiveField, schema.Boolean().Default(true)); err != nil {
		return err
	}
	s.Index(schema.Keys(ActiveField, -1), schema.IndexOptions{Sparse: true})

	excluded := make(map[string]bool, len(opts.ExcludedIndexes))
	for _, name := range opts.ExcludedIndexes {
		excluded[name] = true
	}
	// MongoDB не допускает составных TTL-индексов: active к ним не добавляется
	skip := func(o schema.IndexOptions) bool {
		return o.ExpireAfterSeconds != nil || (o.Name != "" && excluded[o.Name])
	}

	s.RewriteIndexes(func(ix schema.Index) schema.Index {
		if skip(ix.Options) {
			return ix
		}
		ix.Keys = prependActive(ix.Keys)
		return ix
	})
	s.InterceptIndex(func(next schema.IndexFunc) schema.IndexFunc {
		return func(keys []schema.IndexKey, o schema.IndexOptions) {
			if !skip(o) {
				keys = prependActive(keys)
			}
			next(keys, o)
		}
	})

	filter := func(_ context.Context, q *schema.Query) error {
		if q.Options.GetInactive || isActiveLiteral(q.Conditions[ActiveField]) {
			return nil
		}
		q.Conditions[ActiveField] = map[string]any{"$ne": false}
		return nil
	}
	s.Pre(schema.OpCount, filter)
	s.Pre(schema.OpFind, filter)
	s.Pre(schema.OpFindOne, filter)

	s.Method(MethodDeactivate, func(ctx context.Context, doc schema.Doc, _ ...any) error {
		doc.Set(ActiveField, false)
		if opts.DeactivateMethod != nil {
			return opts.DeactivateMethod(ctx, doc)
		}
		return doc.Save(ctx)
	})
	s.Method(MethodReactivate, func(ctx context.Context, doc schema.Doc, _ ...any) error {
		doc.Set(ActiveField, true)
		return doc.Save(ctx)
	})
	return nil
}

// prependActive ставит active:-1 первым ключом; уже заданный порядок active сохраняется.
func prependActive(keys []schema.IndexKey) []schema.IndexKey {
	head := schema.IndexKey{Field: ActiveField, Order: -1}
	out := make([]schema.IndexKey, 0, len(keys)+1)
	for _, k := range keys {
		if k.Field == ActiveField {
			head = k
			continue
		}
		out = append(out, k)
	}
	return append([]schema.IndexKey{head}, out...)
}

// isActiveLiteral: true, false, 0 или 1 любого числового типа.
func isActiveLiteral(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return true
	case string:
		return false
	default:
		rv := reflect.ValueOf(t)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n := rv.Int()
			return n == 0 || n == 1
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n := rv.Uint()
			return n == 0 || n == 1
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			return f == 0 || f == 1
		}
	}
	return false
}

func deactivateOptions(cfg any) (DeactivateOptions, error) {
	switch t := cfg.(type) {
	case nil, bool:
		return DeactivateOptions{}, nil
	case DeactivateOptions:
		return t, nil
	case *DeactivateOptions:
		if t == nil {
			return DeactivateOptions{}, nil
		}
		return *t, nil
	case map[string]any:
		var o DeactivateOptions
		switch names := t["excludedIndexes"].(type) {
		case nil:
		case []string:
			o.ExcludedIndexes = append(o.ExcludedIndexes, names...)
		case []any:
			for _, n := range names {
				if s, ok := n.(string); ok {
					o.ExcludedIndexes = append(o.ExcludedIndexes, s)
				}
			}
		default:
			return o, fmt.Errorf("excludedIndexes: unsupported type %T", names)
		}
		return o, nil
	}
	return DeactivateOptions{}, fmt.Errorf("unsupported config %T", cfg)
}

// Deactivate вызывает метод deactivate документа.
func Deactivate(ctx context.Context, doc Invoker) error {
	return doc.Invoke(ctx, MethodDeactivate)
}

// Reactivate вызывает метод reactivate документа.
func Reactivate(ctx context.Context, doc Invoker) error {
	return doc.Invoke(ctx, MethodReactivate)
}
