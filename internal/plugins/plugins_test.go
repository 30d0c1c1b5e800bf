package plugins

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongokit/internal/schema"
)

// memDoc — минимальный документ поверх карты.
type memDoc struct {
	s     *schema.Schema
	data  map[string]any
	saves int
}

func newDoc(s *schema.Schema) *memDoc {
	d := &memDoc{s: s, data: map[string]any{}}
	for _, p := range s.Paths() {
		if p.Options.HasDefault() {
			if v := p.Options.DefaultValue(); v != nil {
				d.data[p.Name] = v
			}
		}
	}
	return d
}

func (d *memDoc) Get(path string) any    { return d.data[path] }
func (d *memDoc) Set(path string, v any) { d.data[path] = v }
func (d *memDoc) Unset(path string)      { delete(d.data, path) }
func (d *memDoc) Save(ctx context.Context) error {
	if err := d.s.RunSaveHooks(ctx, d); err != nil {
		return err
	}
	d.saves++
	return nil
}
func (d *memDoc) Invoke(ctx context.Context, name string, args ...any) error {
	fn, ok := d.s.LookupMethod(name)
	if !ok {
		return errors.New("no method " + name)
	}
	return fn(ctx, d, args...)
}

func userSchema() *schema.Schema {
	s := schema.New()
	s.MustAdd("email", schema.String())
	s.Index(schema.Keys("email", 1), schema.IndexOptions{Name: "email_1", Unique: true})
	s.Index(schema.Keys("created", -1), schema.IndexOptions{Name: "by_created"})
	return s
}

func TestRegistryOrderAndOverride(t *testing.T) {
	r := Builtin()
	assert.Equal(t, []string{KeyTTL, KeyTimestamp, KeyHide, KeyDeactivate}, r.Keys())

	called := false
	r.Use(KeyHide, func(*schema.Schema, any) error { called = true; return nil })
	r.Use("audit", func(*schema.Schema, any) error { return nil })
	assert.Equal(t, []string{KeyTTL, KeyTimestamp, KeyHide, KeyDeactivate, "audit"}, r.Keys())

	require.NoError(t, r.Apply(schema.New(), map[string]any{KeyHide: true}))
	assert.True(t, called)
}

func TestApplySkipsFalsyOptions(t *testing.T) {
	s := schema.New()
	err := Builtin().Apply(s, map[string]any{
		KeyTTL:        false,
		KeyHide:       0,
		KeyDeactivate: (*DeactivateOptions)(nil),
		"unknown":     true,
	})
	require.NoError(t, err)
	assert.Len(t, s.Paths(), 1)
}

func TestApplyWrapsPluginError(t *testing.T) {
	err := Builtin().Apply(schema.New(), map[string]any{KeyTTL: "forever"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin ttl")
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, 1, 2.5, "x", TTLOptions{}, &TTLOptions{}, map[string]any{}} {
		assert.True(t, Truthy(v), "%#v", v)
	}
	for _, v := range []any{nil, false, 0, 0.0, "", (*TTLOptions)(nil), map[string]any(nil)} {
		assert.False(t, Truthy(v), "%#v", v)
	}
}

func TestDeactivateAddsFieldAndIndexes(t *testing.T) {
	s := userSchema()
	require.NoError(t, DeactivatePlugin(s, DeactivateOptions{ExcludedIndexes: []string{"by_created"}}))

	p, ok := s.Path(ActiveField)
	require.True(t, ok)
	assert.Equal(t, schema.TypeBoolean, p.Instance)
	assert.Equal(t, true, p.Options.Default)

	ix := s.Indexes()
	require.Len(t, ix, 3)
	assert.Equal(t, schema.Keys(ActiveField, -1, "email", 1), ix[0].Keys)
	assert.Equal(t, schema.Keys("created", -1), ix[1].Keys)
	assert.Equal(t, schema.Keys(ActiveField, -1), ix[2].Keys)
	assert.True(t, ix[2].Options.Sparse)

	// будущие индексы тоже получают active
	s.Index(schema.Keys("name", 1), schema.IndexOptions{})
	s.Index(schema.Keys("code", 1), schema.IndexOptions{Name: "by_created"})
	s.Index(schema.Keys("tag", 1, ActiveField, 1), schema.IndexOptions{})
	ix = s.Indexes()
	assert.Equal(t, schema.Keys(ActiveField, -1, "name", 1), ix[3].Keys)
	assert.Equal(t, schema.Keys("code", 1), ix[4].Keys)
	assert.Equal(t, schema.Keys(ActiveField, 1, "tag", 1), ix[5].Keys)
}

func TestDeactivateKeepsTTLIndexSingleKey(t *testing.T) {
	s := schema.New()
	require.NoError(t, TTLPlugin(s, "1h"))
	require.NoError(t, DeactivatePlugin(s, true))

	ix := s.Indexes()
	require.Len(t, ix, 2)
	assert.Equal(t, schema.Keys(ExpiresAtField, 1), ix[0].Keys)
	require.NotNil(t, ix[0].Options.ExpireAfterSeconds)
}

func TestDeactivateQueryFilter(t *testing.T) {
	s := schema.New()
	require.NoError(t, DeactivatePlugin(s, true))
	ctx := context.Background()

	for _, op := range []schema.QueryOp{schema.OpCount, schema.OpFind, schema.OpFindOne} {
		q := schema.NewQuery(op, map[string]any{"name": "x"})
		require.NoError(t, s.RunQueryHooks(ctx, q))
		assert.Equal(t, map[string]any{"$ne": false}, q.Conditions[ActiveField], op)
	}

	for _, literal := range []any{true, false, 0, 1, int64(1), float64(0)} {
		q := schema.NewQuery(schema.OpFind, map[string]any{ActiveField: literal})
		require.NoError(t, s.RunQueryHooks(ctx, q))
		assert.Equal(t, literal, q.Conditions[ActiveField])
	}

	q := schema.NewQuery(schema.OpFind, nil, schema.WithInactive())
	require.NoError(t, s.RunQueryHooks(ctx, q))
	assert.NotContains(t, q.Conditions, ActiveField)

	// не литерал — фильтр всё равно навязывается
	q = schema.NewQuery(schema.OpFind, map[string]any{ActiveField: "yes"})
	require.NoError(t, s.RunQueryHooks(ctx, q))
	assert.Equal(t, map[string]any{"$ne": false}, q.Conditions[ActiveField])
}

func TestDeactivateMethods(t *testing.T) {
	ctx := context.Background()

	s := schema.New()
	require.NoError(t, DeactivatePlugin(s, nil))
	doc := newDoc(s)
	assert.Equal(t, true, doc.Get(ActiveField))

	require.NoError(t, Deactivate(ctx, doc))
	assert.Equal(t, false, doc.Get(ActiveField))
	assert.Equal(t, 1, doc.saves)

	require.NoError(t, Reactivate(ctx, doc))
	assert.Equal(t, true, doc.Get(ActiveField))
	assert.Equal(t, 2, doc.saves)

	var seen schema.Doc
	custom := schema.New()
	require.NoError(t, DeactivatePlugin(custom, &DeactivateOptions{
		DeactivateMethod: func(_ context.Context, d schema.Doc) error { seen = d; return nil },
	}))
	cdoc := newDoc(custom)
	require.NoError(t, Deactivate(ctx, cdoc))
	assert.Same(t, cdoc, seen)
	assert.Equal(t, 0, cdoc.saves)
}

func TestDeactivateOptionsFromMap(t *testing.T) {
	s := userSchema()
	require.NoError(t, DeactivatePlugin(s, map[string]any{"excludedIndexes": []any{"email_1"}}))
	assert.Equal(t, schema.Keys("email", 1), s.Indexes()[0].Keys)

	assert.Error(t, DeactivatePlugin(schema.New(), 42))
}

func TestHidePlugin(t *testing.T) {
	s := schema.New()
	require.NoError(t, HidePlugin(s, true))
	p, ok := s.Path(HiddenField)
	require.True(t, ok)
	assert.Equal(t, false, p.Options.Default)
	ix := s.Indexes()
	require.Len(t, ix, 1)
	assert.Equal(t, schema.Keys(HiddenField, -1), ix[0].Keys)
	assert.True(t, ix[0].Options.Sparse)

	q := schema.NewQuery(schema.OpFind, nil)
	require.NoError(t, s.RunQueryHooks(context.Background(), q))
	assert.Empty(t, q.Conditions)
}

func expiryOf(t *testing.T, cfg any) time.Time {
	t.Helper()
	s := schema.New()
	require.NoError(t, TTLPlugin(s, cfg))
	v, ok := newDoc(s).Get(ExpiresAtField).(time.Time)
	require.True(t, ok, "expiresAt must be set")
	return v
}

func TestTTLDefaultExpiration(t *testing.T) {
	for name, cfg := range map[string]any{
		"string":  "5m",
		"millis":  300000,
		"options": TTLOptions{DefaultTTL: "5 minutes"},
		"map":     map[string]any{"defaultTtl": "5 minutes"},
		"dur":     5 * time.Minute,
	} {
		got := expiryOf(t, cfg)
		start := time.Now()
		assert.True(t, got.After(start.Add(4*time.Minute+54*time.Second)), name)
		assert.True(t, got.Before(start.Add(5*time.Minute+6*time.Second)), name)
	}

	got := expiryOf(t, true)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), got, time.Minute)
}

func TestTTLIndexAndNeverExpires(t *testing.T) {
	s := schema.New()
	require.NoError(t, TTLPlugin(s, TTLOptions{NeverExpiresByDefault: true}))

	ix := s.Indexes()
	require.Len(t, ix, 1)
	assert.Equal(t, schema.Keys(ExpiresAtField, 1), ix[0].Keys)
	require.NotNil(t, ix[0].Options.ExpireAfterSeconds)
	assert.Equal(t, int32(0), *ix[0].Options.ExpireAfterSeconds)

	doc := newDoc(s)
	assert.Nil(t, doc.Get(ExpiresAtField))
}

func TestTTLMethods(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	ctx := context.Background()
	s := schema.New()
	require.NoError(t, TTLPlugin(s, "1h"))
	doc := newDoc(s)
	assert.Equal(t, fixed.Add(time.Hour), doc.Get(ExpiresAtField))

	require.NoError(t, ExpireIn(ctx, doc, 60000))
	assert.Equal(t, fixed.Add(time.Minute), doc.Get(ExpiresAtField))

	require.NoError(t, ExpireIn(ctx, doc, "2 days"))
	assert.Equal(t, fixed.Add(48*time.Hour), doc.Get(ExpiresAtField))

	assert.Error(t, ExpireIn(ctx, doc, "someday"))

	require.NoError(t, NeverExpires(ctx, doc))
	assert.Nil(t, doc.Get(ExpiresAtField))
	assert.Equal(t, 0, doc.saves)
}

func TestTTLRejectsBadDuration(t *testing.T) {
	assert.Error(t, TTLPlugin(schema.New(), "soon"))
	assert.Error(t, TTLPlugin(schema.New(), []int{1}))
}

func TestTimestampPlugin(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	s := schema.New()
	require.NoError(t, TimestampPlugin(s, TimestampOptions{LastUpdated: "modified"}))
	_, ok := s.Path("created")
	assert.True(t, ok)
	_, ok = s.Path("modified")
	assert.True(t, ok)

	doc := newDoc(s)
	assert.Equal(t, fixed, doc.Get("created"))

	later := fixed.Add(time.Hour)
	now = func() time.Time { return later }
	require.NoError(t, doc.Save(context.Background()))
	assert.Equal(t, fixed, doc.Get("created"))
	assert.Equal(t, later, doc.Get("modified"))
}
