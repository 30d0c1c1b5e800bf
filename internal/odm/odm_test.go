package odm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mongokit/internal/children"
	"mongokit/internal/descriptor"
	"mongokit/internal/plugins"
	"mongokit/internal/schema"
)

func newManager(t *testing.T) (*Manager, *Connection) {
	t.Helper()
	m := NewManager(ManagerConfig{AutoIndex: true}, zaptest.NewLogger(t))
	conn, err := m.SetupConnection(context.Background(), "memory://", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, conn
}

func paymentSchema() *schema.Schema {
	s := schema.New()
	s.MustAdd("amount", schema.Number().Required()).
		MustAdd("currency", schema.String().Default("ILS"))
	return s
}

func TestSetupConnection(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ManagerConfig{}, nil)
	defer m.Close(ctx)

	reports, err := m.SetupConnection(ctx, "", "reports")
	require.NoError(t, err)
	main, ok := m.Connection("")
	require.True(t, ok)
	assert.Same(t, reports, main, "first connection also becomes main")

	other, err := m.SetupConnection(ctx, "memory://", "main")
	require.NoError(t, err)
	main, _ = m.Connection(DefaultConnection)
	assert.Same(t, other, main)

	_, err = m.SetupConnection(ctx, "", "reports")
	assert.Error(t, err)
	assert.Equal(t, []string{"reports", "main"}, m.Connections())

	_, err = m.CreateModelOn("X", schema.New(), ModelOptions{}, "nope")
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestCreateModelAndDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	m, conn := newManager(t)

	pay, err := m.CreateModel(conn, "Payment", paymentSchema(), ModelOptions{Timestamp: true})
	require.NoError(t, err)
	assert.Equal(t, "payments", pay.CollectionName())

	_, err = m.CreateModel(conn, "Payment", paymentSchema(), ModelOptions{})
	assert.ErrorIs(t, err, ErrDuplicateModel)

	doc := pay.New(map[string]any{"amount": 10})
	assert.True(t, doc.IsNew())
	assert.Equal(t, "ILS", doc.Get("currency"))
	assert.IsType(t, time.Time{}, doc.Get("created"))
	require.NoError(t, doc.Save(ctx))
	assert.False(t, doc.IsNew())
	require.NotNil(t, doc.ID())

	doc.Set("meta.source", "pos")
	require.NoError(t, doc.Save(ctx))

	got, err := pay.FindByID(ctx, doc.ID().(string))
	require.NoError(t, err)
	assert.Equal(t, "pos", got.Get("meta.source"))
	assert.Equal(t, map[string]any{"source": "pos"}, got.Data()["meta"])

	got.Unset("meta.source")
	assert.False(t, got.Has("meta.source"))

	_, err = pay.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = got.Invoke(ctx, "deactivate")
	assert.ErrorIs(t, err, ErrUnknownMethod)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"amount":10`)
}

func TestDeactivatedDocumentsAreHidden(t *testing.T) {
	ctx := context.Background()
	m, conn := newManager(t)
	users, err := m.CreateModel(conn, "User", schema.New().MustAdd("email", schema.String()), ModelOptions{Deactivate: true})
	require.NoError(t, err)

	a := users.New(map[string]any{"email": "a@x"})
	require.NoError(t, a.Save(ctx))
	b := users.New(map[string]any{"email": "b@x"})
	require.NoError(t, b.Save(ctx))

	require.NoError(t, plugins.Deactivate(ctx, b))

	n, err := users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = users.Count(ctx, nil, schema.WithInactive())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	inactive, err := users.Find(ctx, map[string]any{"active": false})
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, "b@x", inactive[0].Get("email"))

	_, err = users.FindByID(ctx, b.ID().(string))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, plugins.Reactivate(ctx, b))
	n, err = users.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTTLModelExpiry(t *testing.T) {
	ctx := context.Background()
	m, conn := newManager(t)
	sessions, err := m.CreateModel(conn, "Session", schema.New(), ModelOptions{TTL: "5m"})
	require.NoError(t, err)

	doc := sessions.New(nil)
	at, ok := doc.Get(plugins.ExpiresAtField).(time.Time)
	require.True(t, ok)
	now := time.Now()
	assert.True(t, at.After(now.Add(4*time.Minute+54*time.Second)))
	assert.True(t, at.Before(now.Add(5*time.Minute+6*time.Second)))

	require.NoError(t, plugins.NeverExpires(ctx, doc))
	require.NoError(t, doc.Save(ctx))

	ix, err := sessions.Collection().Indexes(ctx)
	require.NoError(t, err)
	var ttl *schema.Index
	for i := range ix {
		if ix[i].HasKey(plugins.ExpiresAtField) {
			ttl = &ix[i]
		}
	}
	require.NotNil(t, ttl, "auto index creates the TTL index")
	assert.Equal(t, int32(0), *ttl.Options.ExpireAfterSeconds)

	_, err = m.CreateModel(conn, "Broken", schema.New(), ModelOptions{TTL: "someday"})
	assert.Error(t, err)
}

func TestInheritedDuplicateCheckedOnParentConnection(t *testing.T) {
	ctx := context.Background()
	m, conn := newManager(t)
	billing, err := m.SetupConnection(ctx, "memory://", "billing")
	require.NoError(t, err)

	payment, err := m.CreateModel(conn, "Payment", paymentSchema(), ModelOptions{})
	require.NoError(t, err)
	_, err = m.CreateModel(conn, "Card", schema.New(), ModelOptions{Inherit: &Inherit{From: payment}})
	require.NoError(t, err)

	// соединение billing, но модель регистрируется рядом с родителем
	s := schema.New().MustAdd("last4", schema.String())
	_, err = m.CreateModel(billing, "Card", s, ModelOptions{Hide: true, Inherit: &Inherit{From: payment}})
	assert.ErrorIs(t, err, ErrDuplicateModel)
	_, hidden := s.Path(plugins.HiddenField)
	assert.False(t, hidden, "plugins are not applied to a rejected model")
	assert.Empty(t, m.Models("billing"))
}

func TestInheritanceAndChildren(t *testing.T) {
	ctx := context.Background()
	m, conn := newManager(t)

	payment, err := m.CreateModel(conn, "Payment", paymentSchema(), ModelOptions{Deactivate: true})
	require.NoError(t, err)
	card, err := m.CreateModel(conn, "CreditCard", schema.New().MustAdd("last4", schema.String()), ModelOptions{
		Inherit: &Inherit{From: payment},
	})
	require.NoError(t, err)
	cash, err := m.CreateModel(conn, "Cash", schema.New(), ModelOptions{Inherit: &Inherit{From: payment, Discriminator: "cash"}})
	require.NoError(t, err)
	_, err = m.CreateModel(conn, "Order", schema.New(), ModelOptions{})
	require.NoError(t, err)

	assert.Equal(t, "payments", card.CollectionName())
	assert.Same(t, payment, card.Parent())
	_, ok := card.Schema().Path("amount")
	assert.True(t, ok, "parent paths are merged")

	cdoc := card.New(map[string]any{"amount": 5, "last4": "4242"})
	assert.Equal(t, "CreditCard", cdoc.Get(DiscriminatorKey))
	assert.Equal(t, true, cdoc.Get("active"))
	require.NoError(t, cdoc.Save(ctx))
	require.NoError(t, cash.New(map[string]any{"amount": 7}).Save(ctx))
	require.NoError(t, payment.New(map[string]any{"amount": 1}).Save(ctx))

	n, err := payment.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = card.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	cashDocs, err := cash.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, cashDocs, 1)
	assert.Equal(t, "cash", cashDocs[0].Get(DiscriminatorKey))

	kids := m.GetChildModels(payment, "")
	assert.Equal(t, []*Model{card, cash}, kids)

	dir := m.CreateChildModelDirectory(payment, nil, "")
	for _, name := range []string{"CREDITCARD", "creditCard", "creditcards"} {
		got, ok := dir.Model(name)
		require.True(t, ok, name)
		assert.Same(t, card, got, name)
	}

	custom := m.CreateChildModelDirectory(payment, children.KeyFunc[*Model](func(m *Model) string { return m.Discriminator() }), "")
	got, ok := custom.Model("cash")
	require.True(t, ok)
	assert.Same(t, cash, got)
}

func TestSchemaDescription(t *testing.T) {
	m, conn := newManager(t)
	s := paymentSchema()
	s.SetBehavior(func() map[string]any { return map[string]any{"editable": true} })
	pay, err := m.CreateModel(conn, "Payment", s, ModelOptions{Hide: true})
	require.NoError(t, err)

	desc := m.GetSchemaDescription(pay, FormatDescriptor, descriptor.Keys("amount", "hidden"))
	raw, err := json.Marshal(desc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"amount": {"type": "Number", "required": true},
		"hidden": {"type": "Boolean", "default": false},
		"_modelName": "Payment",
		"behavior": {"editable": true}
	}`, string(raw))

	tree, ok := m.GetSchemaDescription(pay, FormatTree, descriptor.All).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Payment", tree[descriptor.ModelNameKey])
	assert.Contains(t, tree, "currency")

	limited := m.LimitDataToSchema(pay, map[string]any{"amount": 3, "hack": true}, descriptor.All)
	assert.Equal(t, map[string]any{"amount": 3}, limited)
}

func TestUseCustomPlugin(t *testing.T) {
	m, conn := newManager(t)
	var seen any
	m.Use("audit", func(s *schema.Schema, cfg any) error {
		seen = cfg
		return s.Add("auditedBy", schema.String())
	})
	m.Use("broken", func(*schema.Schema, any) error { return errors.New("boom") })

	model, err := m.CreateModel(conn, "Invoice", schema.New(), ModelOptions{Plugins: map[string]any{"audit": "ops"}})
	require.NoError(t, err)
	assert.Equal(t, "ops", seen)
	_, ok := model.Schema().Path("auditedBy")
	assert.True(t, ok)

	_, err = m.CreateModel(conn, "Bad", schema.New(), ModelOptions{Plugins: map[string]any{"broken": true}})
	assert.ErrorContains(t, err, "boom")

	assert.Equal(t, []*Model{model}, m.Models(""))
	got, err := m.Model("main", "Invoice")
	require.NoError(t, err)
	assert.Same(t, model, got)
	_, err = m.Model("main", "Nope")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestEnsureIndexesAndDebug(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ManagerConfig{}, nil)
	conn, err := m.SetupConnection(ctx, "", "")
	require.NoError(t, err)
	defer m.Close(ctx)

	s := schema.New().MustAdd("email", schema.String().Unique())
	users, err := m.CreateModel(conn, "User", s, ModelOptions{Deactivate: true})
	require.NoError(t, err)
	_, err = m.CreateModel(conn, "Admin", schema.New(), ModelOptions{Inherit: &Inherit{From: users}})
	require.NoError(t, err)

	require.NoError(t, m.EnsureIndexes(ctx, ""))
	ix, err := users.Collection().Indexes(ctx)
	require.NoError(t, err)
	require.Len(t, ix, 3)
	assert.Equal(t, schema.Keys("active", -1, "email", 1), ix[1].Keys)
	assert.True(t, ix[1].Options.Unique)

	m.SetDebug(true)
	_, err = users.Count(ctx, nil)
	require.NoError(t, err)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "mongodb://app:xxxxx@db:27017/shop", redact("mongodb://app:secret@db:27017/shop"))
	assert.Equal(t, "memory://", redact("memory://"))
}
