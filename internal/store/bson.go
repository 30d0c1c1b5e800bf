package store

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fromBSON приводит декодированный документ к обычным map[string]any / []any / time.Time.
func fromBSON(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return fromBSON(t)
	case map[string]any:
		return fromBSON(bson.M(t))
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plainValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = plainValue(el)
		}
		return out
	case []any:
		return plainValue(bson.A(t))
	case primitive.DateTime:
		return t.Time().UTC()
	}
	return v
}
