package descriptor

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongokit/internal/schema"
)

type fakeModel struct {
	name string
	s    *schema.Schema
}

func (m fakeModel) ModelName() string      { return m.name }
func (m fakeModel) Schema() *schema.Schema { return m.s }

func orderSchema() *schema.Schema {
	line := schema.New(schema.WithoutID())
	line.MustAdd("sku", schema.String().Required()).
		MustAdd("qty", schema.Number().Default(1))

	s := schema.New()
	s.MustAdd("number", schema.String().Required().Match(`^[A-Z0-9-]+$`)).
		MustAdd("status", schema.String().Enum("open", "closed").Default("open")).
		MustAdd("customer", schema.ObjectID().Ref("Customer")).
		MustAdd("address.city", schema.String()).
		MustAdd("address.geo.lat", schema.Number()).
		MustAdd("tags", schema.ArrayOf(schema.String().Enum("a", "b"))).
		MustAdd("lines", schema.DocumentArray(line)).
		MustAdd("expiresAt", schema.Date().DefaultFunc(func() any { return time.Now() }))
	return s
}

func decode(t *testing.T, d Descriptor) map[string]any {
	t.Helper()
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestBuildFullDescriptor(t *testing.T) {
	root := Build(fakeModel{name: "Order", s: orderSchema()}, All)

	if diff := cmp.Diff([]string{"_id", "number", "status", "customer", "address", "tags", "lines", "expiresAt"}, root.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	want := map[string]any{
		"_id":      map[string]any{"type": "ObjectID"},
		"number":   map[string]any{"type": "String", "required": true, "match": `^[A-Z0-9-]+$`},
		"status":   map[string]any{"type": "String", "enum": []any{"open", "closed"}, "default": "open"},
		"customer": map[string]any{"type": "ObjectID", "ref": "Customer"},
		"address": map[string]any{
			"city": map[string]any{"type": "String"},
			"geo":  map[string]any{"lat": map[string]any{"type": "Number"}},
		},
		"tags": map[string]any{"type": []any{
			map[string]any{"type": "String", "enum": []any{"a", "b"}},
		}},
		"lines": map[string]any{"type": []any{
			map[string]any{
				"sku": map[string]any{"type": "String", "required": true},
				"qty": map[string]any{"type": "Number", "default": float64(1)},
			},
		}},
		"expiresAt":  map[string]any{"type": "Date"},
		"_modelName": "Order",
	}
	if diff := cmp.Diff(want, decode(t, root)); diff != "" {
		t.Fatalf("descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestArrayOfSubdocumentsIsNestedDescriptor(t *testing.T) {
	root := Build(fakeModel{name: "Order", s: orderSchema()}, All)

	d, ok := root.Get("lines")
	require.True(t, ok)
	arr, ok := d.(*Array)
	require.True(t, ok)
	nested, ok := arr.Elem.(*Node)
	require.True(t, ok)
	assert.Equal(t, []string{"sku", "qty"}, nested.Keys())
	assert.Empty(t, nested.ModelName)
	assert.Nil(t, nested.Behavior)

	_, ok = root.Lookup("address.geo.lat")
	assert.True(t, ok)
	_, ok = root.Lookup("address.nope")
	assert.False(t, ok)
}

func TestKeyFilterRestrictsTopLevelKeys(t *testing.T) {
	root := Build(fakeModel{name: "Order", s: orderSchema()}, Keys("status", "lines"))

	assert.Equal(t, []string{"status", "lines"}, root.Keys())
	got := decode(t, root)
	assert.NotContains(t, got, "address")
	assert.Contains(t, got, ModelNameKey)

	// фильтр не распространяется на вложенные схемы
	lines, _ := root.Get("lines")
	assert.Equal(t, 2, lines.(*Array).Elem.(*Node).Len())
}

func TestKeyFilterSkipsNestedPathsEntirely(t *testing.T) {
	root := Build(fakeModel{name: "Order", s: orderSchema()}, Keys("number"))
	assert.False(t, root.Has("address"))
	assert.Equal(t, 1, root.Len())
}

func TestBehaviorMergedOnRootOnly(t *testing.T) {
	line := schema.New(schema.WithoutID())
	line.MustAdd("sku", schema.String())
	line.SetBehavior(func() map[string]any { return map[string]any{"nested": true} })

	s := schema.New(schema.WithoutID())
	s.MustAdd("lines", schema.DocumentArray(line))
	src := map[string]any{"editable": true, "icon": "box"}
	s.SetBehavior(func() map[string]any { return src })

	root := Build(fakeModel{name: "Box", s: s}, All)
	assert.Equal(t, map[string]any{"editable": true, "icon": "box"}, root.Behavior)

	root.Behavior["editable"] = false
	assert.Equal(t, true, src["editable"])

	lines, _ := root.Get("lines")
	assert.Nil(t, lines.(*Array).Elem.(*Node).Behavior)

	raw, err := json.Marshal(root)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"lines": {"type": [{"sku": {"type": "String"}}]},
		"_modelName": "Box",
		"behavior": {"editable": false, "icon": "box"}
	}`, string(raw))
}

func TestDegenerateArrayHasEmptyType(t *testing.T) {
	s := schema.New(schema.WithoutID())
	s.MustAdd("anything", schema.Of(schema.TypeArray).Required())

	raw, err := json.Marshal(Build(fakeModel{name: "X", s: s}, All))
	require.NoError(t, err)
	assert.JSONEq(t, `{"anything": {"type": [], "required": true}, "_modelName": "X"}`, string(raw))
}

func TestJSONKeepsDeclarationOrder(t *testing.T) {
	s := schema.New(schema.WithoutID())
	s.MustAdd("zeta", schema.String()).MustAdd("alpha", schema.String())

	raw, err := json.Marshal(Build(fakeModel{name: "Z", s: s}, All))
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":{"type":"String"},"alpha":{"type":"String"},"_modelName":"Z"}`, string(raw))
}

func TestBuildIsReentrant(t *testing.T) {
	m := fakeModel{name: "Order", s: orderSchema()}
	want, err := json.Marshal(Build(m, All))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := json.Marshal(Build(m, All))
			assert.NoError(t, err)
			assert.Equal(t, string(want), string(got))
		}()
	}
	wg.Wait()
}

func TestParseKeyFilter(t *testing.T) {
	assert.True(t, ParseKeyFilter("").IsAll())
	assert.True(t, ParseKeyFilter("*").IsAll())
	f := ParseKeyFilter("a, b")
	assert.False(t, f.IsAll())
	assert.True(t, f.allows("a"))
	assert.True(t, f.allows("b"))
	assert.False(t, f.allows("c"))
}

func TestLimit(t *testing.T) {
	root := Build(fakeModel{name: "Order", s: orderSchema()}, All)
	got := Limit(root, map[string]any{
		"number":  "A-1",
		"unknown": 1,
		"address": map[string]any{"city": "Haifa", "zip": "123"},
		"tags":    []any{"a"},
	})
	assert.Equal(t, map[string]any{
		"number":  "A-1",
		"address": map[string]any{"city": "Haifa"},
		"tags":    []any{"a"},
	}, got)
}
