package plugins

import (
	"context"
	"fmt"
	"time"

	"mongokit/internal/duration"
	"mongokit/internal/schema"
)

const (
	ExpiresAtField     = "expiresAt"
	MethodExpireIn     = "expireIn"
	MethodNeverExpires = "neverExpires"

	DefaultTTL = 24 * time.Hour
)

// now подменяется в тестах.
var now = time.Now

// TTLOptions — опции плагина ttl.
type TTLOptions struct {
	// DefaultTTL: time.Duration, миллисекунды числом или строка вида "5m", "5 minutes".
	DefaultTTL            any
	NeverExpiresByDefault bool
}

// TTLPlugin добавляет expiresAt и TTL-индекс без задержки.
// cfg: true, TTLOptions, строка, число миллисекунд или time.Duration.
func TTLPlugin(s *schema.Schema, cfg any) error {
	opts, err := ttlOptions(cfg)
	if err != nil {
		return err
	}
	ttl := DefaultTTL
	if Truthy(opts.DefaultTTL) {
		if ttl, err = duration.FromValue(opts.DefaultTTL); err != nil {
			return err
		}
	}

	def := schema.Date()
	if !opts.NeverExpiresByDefault {
		def = def.DefaultFunc(func() any { return now().Add(ttl) })
	}
	if err := s.Add(ExpiresAtField, def); err != nil {
		return err
	}
	zero := int32(0)
	s.Index(schema.Keys(ExpiresAtField, 1), schema.IndexOptions{ExpireAfterSeconds: &zero})

	s.Method(MethodExpireIn, func(_ context.Context, doc schema.Doc, args ...any) error {
		if len(args) != 1 {
			return fmt.Errorf("%s: expected 1 argument, got %d", MethodExpireIn, len(args))
		}
		d, err := duration.FromValue(args[0])
		if err != nil {
			return err
		}
		doc.Set(ExpiresAtField, now().Add(d))
		return nil
	})
	s.Method(MethodNeverExpires, func(_ context.Context, doc schema.Doc, _ ...any) error {
		doc.Unset(ExpiresAtField)
		return nil
	})
	return nil
}

func ttlOptions(cfg any) (TTLOptions, error) {
	switch t := cfg.(type) {
	case nil, bool:
		return TTLOptions{}, nil
	case TTLOptions:
		return t, nil
	case *TTLOptions:
		if t == nil {
			return TTLOptions{}, nil
		}
		return *t, nil
	case map[string]any:
		o := TTLOptions{DefaultTTL: t["defaultTtl"]}
		if v, ok := t["neverExpiresByDefault"].(bool); ok {
			o.NeverExpiresByDefault = v
		}
		return o, nil
	case string, time.Duration, int, int32, int64, uint, uint32, uint64, float32, float64:
		return TTLOptions{DefaultTTL: t}, nil
	}
	return TTLOptions{}, fmt.Errorf("unsupported config %T", cfg)
}

// ExpireIn назначает документу срок жизни от текущего момента. Документ не сохраняется.
func ExpireIn(ctx context.Context, doc Invoker, d any) error {
	return doc.Invoke(ctx, MethodExpireIn, d)
}

// NeverExpires снимает срок жизни. Документ не сохраняется.
func NeverExpires(ctx context.Context, doc Invoker) error {
	return doc.Invoke(ctx, MethodNeverExpires)
}
