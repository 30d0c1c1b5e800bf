package plugins

import (
	"context"
	"fmt"

	"mongokit/internal/schema"
)

// TimestampOptions — имена полей времени создания и последнего изменения.
type TimestampOptions struct {
	Created     string
	LastUpdated string
}

func (o TimestampOptions) withDefaults() TimestampOptions {
	if o.Created == "" {
		o.Created = "created"
	}
	if o.LastUpdated == "" {
		o.LastUpdated = "lastUpdated"
	}
	return o
}

// TimestampPlugin добавляет created и lastUpdated; lastUpdated обновляется при каждом сохранении.
func TimestampPlugin(s *schema.Schema, cfg any) error {
	var opts TimestampOptions
	switch t := cfg.(type) {
	case nil, bool:
	case TimestampOptions:
		opts = t
	case *TimestampOptions:
		if t != nil {
			opts = *t
		}
	case map[string]any:
		opts.Created, _ = t["created"].(string)
		opts.LastUpdated, _ = t["lastUpdated"].(string)
	default:
		return fmt.Errorf("unsupported config %T", cfg)
	}
	opts = opts.withDefaults()

	stamp := func() any { return now() }
	if err := s.Add(opts.Created, schema.Date().DefaultFunc(stamp)); err != nil {
		return err
	}
	if err := s.Add(opts.LastUpdated, schema.Date().DefaultFunc(stamp)); err != nil {
		return err
	}
	s.PreSave(func(_ context.Context, doc schema.Doc) error {
		doc.Set(opts.LastUpdated, now())
		return nil
	})
	return nil
}
