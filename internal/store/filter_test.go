package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongokit/internal/schema"
)

func match(t *testing.T, doc, filter map[string]any) bool {
	t.Helper()
	ok, err := Matches(doc, filter)
	require.NoError(t, err)
	return ok
}

func TestMatchesEquality(t *testing.T) {
	doc := map[string]any{
		"name":    "box",
		"qty":     int64(3),
		"tags":    []any{"a", "b"},
		"address": map[string]any{"city": "Haifa"},
	}
	assert.True(t, match(t, doc, map[string]any{"name": "box"}))
	assert.True(t, match(t, doc, map[string]any{"qty": 3}))
	assert.True(t, match(t, doc, map[string]any{"qty": 3.0}))
	assert.True(t, match(t, doc, map[string]any{"tags": "a"}))
	assert.True(t, match(t, doc, map[string]any{"address.city": "Haifa"}))
	assert.True(t, match(t, doc, map[string]any{"missing": nil}))
	assert.False(t, match(t, doc, map[string]any{"name": "bag"}))
	assert.False(t, match(t, doc, map[string]any{"address.zip": "1"}))
	assert.True(t, match(t, doc, nil))
}

func TestMatchesNeTreatsMissingAsUnequal(t *testing.T) {
	notInactive := map[string]any{"active": map[string]any{"$ne": false}}
	assert.True(t, match(t, map[string]any{}, notInactive))
	assert.True(t, match(t, map[string]any{"active": true}, notInactive))
	assert.False(t, match(t, map[string]any{"active": false}, notInactive))
}

func TestMatchesOperators(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	doc := map[string]any{"n": 5, "s": "m", "at": at, "kind": "x"}

	assert.True(t, match(t, doc, map[string]any{"n": map[string]any{"$gt": 4, "$lte": 5}}))
	assert.False(t, match(t, doc, map[string]any{"n": map[string]any{"$lt": 5}}))
	assert.True(t, match(t, doc, map[string]any{"s": map[string]any{"$gte": "a"}}))
	assert.True(t, match(t, doc, map[string]any{"at": map[string]any{"$lt": at.Add(time.Hour)}}))
	assert.False(t, match(t, doc, map[string]any{"n": map[string]any{"$gt": "4"}}))
	assert.False(t, match(t, doc, map[string]any{"none": map[string]any{"$gt": 0}}))

	assert.True(t, match(t, doc, map[string]any{"kind": map[string]any{"$in": []string{"x", "y"}}}))
	assert.False(t, match(t, doc, map[string]any{"kind": map[string]any{"$nin": []any{"x"}}}))
	assert.True(t, match(t, doc, map[string]any{"none": map[string]any{"$nin": []any{"x"}}}))

	assert.True(t, match(t, doc, map[string]any{"n": map[string]any{"$exists": true}}))
	assert.True(t, match(t, doc, map[string]any{"none": map[string]any{"$exists": false}}))

	assert.True(t, match(t, doc, map[string]any{"$or": []any{
		map[string]any{"n": 1},
		map[string]any{"kind": "x"},
	}}))
	assert.False(t, match(t, doc, map[string]any{"$and": []map[string]any{
		{"n": 5},
		{"kind": "y"},
	}}))
}

func TestMatchesRejectsUnknownOperators(t *testing.T) {
	_, err := Matches(map[string]any{"a": 1}, map[string]any{"a": map[string]any{"$regex": "x"}})
	assert.Error(t, err)
	_, err = Matches(map[string]any{"a": 1}, map[string]any{"a": map[string]any{"$in": 1}})
	assert.Error(t, err)
	_, err = Matches(map[string]any{"a": 1}, map[string]any{"$where": "1"})
	assert.Error(t, err)
}

func TestSortDocsAndPage(t *testing.T) {
	docs := []map[string]any{
		{"id": 1, "n": 2, "s": "b"},
		{"id": 2, "s": "a"},
		{"id": 3, "n": 1, "s": "b"},
		{"id": 4, "n": 2, "s": "a"},
	}
	SortDocs(docs, []schema.SortKey{{Field: "s"}, {Field: "n", Desc: true}})
	ids := func() []any {
		out := make([]any, len(docs))
		for i, d := range docs {
			out[i] = d["id"]
		}
		return out
	}
	assert.Equal(t, []any{4, 2, 1, 3}, ids())

	SortDocs(docs, []schema.SortKey{{Field: "n"}})
	assert.Equal(t, 2, docs[0]["id"], "missing values sort first")

	assert.Len(t, Page(docs, 1, 2), 2)
	assert.Empty(t, Page(docs, 10, 0))
	assert.Len(t, Page(docs, 0, 0), 4)
}

func TestDeepCopy(t *testing.T) {
	src := map[string]any{"a": map[string]any{"b": []any{map[string]any{"c": 1}}}}
	cp := DeepCopy(src)
	cp["a"].(map[string]any)["b"].([]any)[0].(map[string]any)["c"] = 2
	assert.Equal(t, 1, src["a"].(map[string]any)["b"].([]any)[0].(map[string]any)["c"])
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "active_-1_email_1", IndexName(schema.Index{Keys: schema.Keys("active", -1, "email", 1)}))
	assert.Equal(t, "custom", IndexName(schema.Index{Keys: schema.Keys("a", 1), Options: schema.IndexOptions{Name: "custom"}}))
}
