package schema

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pathNames(s *Schema) []string {
	var out []string
	for _, p := range s.Paths() {
		out = append(out, p.Name)
	}
	return out
}

func TestSchemaKeepsDeclarationOrder(t *testing.T) {
	s := New()
	s.MustAdd("zeta", String()).
		MustAdd("alpha", Number()).
		MustAdd("address.city", String()).
		MustAdd("zeta", String().Required())

	assert.Equal(t, []string{"_id", "zeta", "alpha", "address.city"}, pathNames(s))
	p, ok := s.Path("zeta")
	require.True(t, ok)
	assert.True(t, p.Options.Required)
}

func TestSchemaWithoutID(t *testing.T) {
	s := New(WithoutID())
	s.MustAdd("name", String())
	assert.Equal(t, []string{"name"}, pathNames(s))
}

func TestAddRejectsBadDefs(t *testing.T) {
	s := New()
	assert.Error(t, s.Add("", String()))
	assert.Error(t, s.Add("code", String().Match("([")))
	assert.Error(t, s.Add("x", Def{}))
}

func TestArrayPaths(t *testing.T) {
	sub := New(WithoutID())
	sub.MustAdd("sku", String())

	s := New()
	s.MustAdd("tags", ArrayOf(String().Enum("a", "b")))
	s.MustAdd("lines", DocumentArray(sub))

	tags, _ := s.Path("tags")
	require.True(t, tags.IsArray())
	require.NotNil(t, tags.Caster)
	assert.Equal(t, TypeString, tags.Caster.Instance)
	assert.Equal(t, []any{"a", "b"}, tags.Caster.EnumValues)

	lines, _ := s.Path("lines")
	require.NotNil(t, lines.Schema)
	assert.Nil(t, lines.Caster)
}

func TestIndexInterceptorWrapsOnlyFutureIndexes(t *testing.T) {
	s := New()
	s.Index(Keys("name", 1), IndexOptions{Name: "by_name"})

	s.InterceptIndex(func(next IndexFunc) IndexFunc {
		return func(keys []IndexKey, opts IndexOptions) {
			next(append([]IndexKey{{Field: "tenant", Order: 1}}, keys...), opts)
		}
	})
	s.Index(Keys("code", -1), IndexOptions{Name: "by_code"})

	ix := s.Indexes()
	require.Len(t, ix, 2)
	assert.Equal(t, []IndexKey{{"name", 1}}, ix[0].Keys)
	assert.Equal(t, []IndexKey{{"tenant", 1}, {"code", -1}}, ix[1].Keys)
}

func TestFieldLevelIndexFlags(t *testing.T) {
	s := New()
	s.MustAdd("email", String().Unique())
	s.MustAdd("flag", Boolean().Sparse())

	ix := s.Indexes()
	require.Len(t, ix, 2)
	assert.True(t, ix[0].Options.Unique)
	assert.Equal(t, 1, ix[0].Keys[0].Order)
	assert.True(t, ix[1].Options.Sparse)
	assert.Equal(t, -1, ix[1].Keys[0].Order)
}

func TestQueryHooksRunInOrder(t *testing.T) {
	s := New()
	var calls []string
	s.Pre(OpFind, func(ctx context.Context, q *Query) error {
		calls = append(calls, "first")
		q.Conditions["a"] = 1
		return nil
	})
	s.Pre(OpFind, func(ctx context.Context, q *Query) error {
		calls = append(calls, "second")
		return nil
	})

	src := map[string]any{"b": 2}
	q := NewQuery(OpFind, src, WithLimit(5), WithInactive())
	require.NoError(t, s.RunQueryHooks(context.Background(), q))
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, map[string]any{"b": 2}, src)
	assert.Equal(t, int64(5), q.Options.Limit)
	assert.True(t, q.Options.GetInactive)

	require.NoError(t, s.RunQueryHooks(context.Background(), NewQuery(OpCount, nil)))
	assert.Len(t, calls, 2)
}

func TestMergePutsBasePathsFirst(t *testing.T) {
	base := New()
	base.MustAdd("name", String())
	base.Method("hello", func(ctx context.Context, doc Doc, args ...any) error { return nil })

	child := New()
	child.MustAdd("bark", Boolean())
	child.MustAdd("name", String().Required())
	child.Merge(base)

	assert.Equal(t, []string{"_id", "name", "bark"}, pathNames(child))
	name, _ := child.Path("name")
	assert.True(t, name.Options.Required)
	_, ok := child.LookupMethod("hello")
	assert.True(t, ok)
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	s.MustAdd("name", String().Enum("x"))
	cp := s.Clone()
	cp.MustAdd("extra", Number())
	p, _ := cp.Path("name")
	p.EnumValues[0] = "changed"

	assert.Len(t, s.Paths(), 2)
	orig, _ := s.Path("name")
	assert.Equal(t, "x", orig.EnumValues[0])
}

func TestTreeMarshalsWithoutComputedDefaults(t *testing.T) {
	s := New(WithoutID())
	s.MustAdd("address.city", String().Default("Tel Aviv"))
	s.MustAdd("expiresAt", Date().DefaultFunc(func() any { return 1 }))

	raw, err := json.Marshal(s.Tree())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"address": {"city": {"type": "String", "default": "Tel Aviv"}},
		"expiresAt": {"type": "Date"}
	}`, string(raw))
}

func TestParseTypeTag(t *testing.T) {
	for in, want := range map[string]TypeTag{
		"string": TypeString, "INT": TypeNumber, "bool": TypeBoolean,
		"datetime": TypeDate, "ObjectId": TypeObjectID, "mixed": TypeMixed,
	} {
		got, ok := ParseTypeTag(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseTypeTag("nope")
	assert.False(t, ok)
}
