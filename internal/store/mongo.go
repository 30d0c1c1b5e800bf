package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.uber.org/zap"

	"mongokit/internal/schema"
)

// DefaultDatabase — база, если в URI она не указана.
const DefaultDatabase = "test"

// Mongo — хранилище поверх официального драйвера.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger

	debug     atomic.Bool
	connected atomic.Bool
	everUp    atomic.Bool
}

// OpenMongo подключается к MongoDB. Ошибки соединения после старта не возвращаются,
// а пишутся в журнал монитором сервера; переподключается сам драйвер.
func OpenMongo(ctx context.Context, uri string, opts Options) (*Mongo, error) {
	opts = opts.withDefaults()
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("store: parse mongo uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = DefaultDatabase
	}

	m := &Mongo{log: opts.Logger.Named("mongo").With(zap.String("database", dbName))}
	m.debug.Store(opts.Debug)

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(opts.PoolSize).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerMonitor(m.serverMonitor()).
		SetMonitor(m.commandMonitor())

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	m.client = client
	m.db = client.Database(dbName)
	return m, nil
}

func (m *Mongo) Kind() string { return "mongo" }

func (m *Mongo) SetDebug(on bool) { m.debug.Store(on) }

// Database — имя базы подключения.
func (m *Mongo) Database() string { return m.db.Name() }

func (m *Mongo) serverMonitor() *event.ServerMonitor {
	return &event.ServerMonitor{
		ServerOpening: func(e *event.ServerOpeningEvent) {
			m.log.Info("connecting", zap.String("address", e.Address.String()))
		},
		ServerHeartbeatSucceeded: func(e *event.ServerHeartbeatSucceededEvent) {
			if m.connected.Swap(true) {
				return
			}
			if m.everUp.Swap(true) {
				m.log.Info("reconnected", zap.String("connection", e.ConnectionID))
				return
			}
			m.log.Info("connected", zap.String("connection", e.ConnectionID))
		},
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			m.log.Error("failed to connect", zap.String("connection", e.ConnectionID), zap.Error(e.Failure))
			if m.connected.Swap(false) {
				m.log.Warn("disconnected", zap.String("connection", e.ConnectionID))
			}
		},
		ServerClosed: func(e *event.ServerClosedEvent) {
			m.connected.Store(false)
			m.log.Warn("connection closed", zap.String("address", e.Address.String()))
		},
	}
}

func (m *Mongo) commandMonitor() *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(_ context.Context, e *event.CommandStartedEvent) {
			if !m.debug.Load() {
				return
			}
			m.log.Debug(e.CommandName,
				zap.String("db", e.DatabaseName),
				zap.Int64("request", e.RequestID),
				zap.Stringer("command", e.Command))
		},
	}
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Collection(name string) Collection {
	return &mongoCollection{c: m.db.Collection(name)}
}

type mongoCollection struct {
	c *mongo.Collection
}

func (c *mongoCollection) Name() string { return c.c.Name() }

// ParseID: 24-символьный hex — ObjectID, иначе строка как есть.
func (c *mongoCollection) ParseID(s string) (any, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	if oid, err := primitive.ObjectIDFromHex(s); err == nil {
		return oid, nil
	}
	return s, nil
}

func filterDoc(filter map[string]any) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}

func sortDoc(keys []schema.SortKey) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if k.Desc {
			dir = -1
		}
		d = append(d, bson.E{Key: k.Field, Value: dir})
	}
	return d
}

func (c *mongoCollection) Find(ctx context.Context, filter map[string]any, opts FindOptions) ([]map[string]any, error) {
	fo := options.Find()
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if len(opts.Sort) > 0 {
		fo.SetSort(sortDoc(opts.Sort))
	}
	cur, err := c.c.Find(ctx, filterDoc(filter), fo)
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", c.Name(), err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("store: find %s: %w", c.Name(), err)
	}
	out := make([]map[string]any, len(raw))
	for i, d := range raw {
		out[i] = fromBSON(d)
	}
	return out, nil
}

func (c *mongoCollection) FindOne(ctx context.Context, filter map[string]any) (map[string]any, error) {
	var raw bson.M
	err := c.c.FindOne(ctx, filterDoc(filter)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: findOne %s: %w", c.Name(), err)
	}
	return fromBSON(raw), nil
}

func (c *mongoCollection) Count(ctx context.Context, filter map[string]any) (int64, error) {
	n, err := c.c.CountDocuments(ctx, filterDoc(filter))
	if err != nil {
		return 0, fmt.Errorf("store: count %s: %w", c.Name(), err)
	}
	return n, nil
}

func (c *mongoCollection) Insert(ctx context.Context, doc map[string]any) (any, error) {
	cp := DeepCopy(doc)
	if cp == nil {
		cp = make(map[string]any)
	}
	if _, ok := cp[IDField]; !ok {
		cp[IDField] = primitive.NewObjectID()
	}
	res, err := c.c.InsertOne(ctx, cp)
	if mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("%w: insert %s: %v", ErrDuplicateKey, c.Name(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("store: insert %s: %w", c.Name(), err)
	}
	return res.InsertedID, nil
}

func (c *mongoCollection) Replace(ctx context.Context, id any, doc map[string]any) error {
	cp := DeepCopy(doc)
	if cp == nil {
		cp = make(map[string]any)
	}
	cp[IDField] = id
	res, err := c.c.ReplaceOne(ctx, bson.M{IDField: id}, cp)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: replace %s: %v", ErrDuplicateKey, c.Name(), err)
	}
	if err != nil {
		return fmt.Errorf("store: replace %s: %w", c.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) EnsureIndex(ctx context.Context, ix schema.Index) (string, error) {
	keys := make(bson.D, 0, len(ix.Keys))
	for _, k := range ix.Keys {
		keys = append(keys, bson.E{Key: k.Field, Value: k.Order})
	}
	idx := options.Index().SetName(IndexName(ix))
	if ix.Options.Sparse {
		idx.SetSparse(true)
	}
	if ix.Options.Unique {
		idx.SetUnique(true)
	}
	if ix.Options.ExpireAfterSeconds != nil {
		idx.SetExpireAfterSeconds(*ix.Options.ExpireAfterSeconds)
	}
	name, err := c.c.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: idx})
	if err != nil {
		return "", fmt.Errorf("store: create index on %s: %w", c.Name(), err)
	}
	return name, nil
}

type indexSpec struct {
	Name               string `bson:"name"`
	Key                bson.D `bson:"key"`
	Sparse             bool   `bson:"sparse"`
	Unique             bool   `bson:"unique"`
	ExpireAfterSeconds *int32 `bson:"expireAfterSeconds"`
}

func (c *mongoCollection) Indexes(ctx context.Context) ([]schema.Index, error) {
	cur, err := c.c.Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list indexes of %s: %w", c.Name(), err)
	}
	var specs []indexSpec
	if err := cur.All(ctx, &specs); err != nil {
		return nil, fmt.Errorf("store: list indexes of %s: %w", c.Name(), err)
	}
	out := make([]schema.Index, 0, len(specs))
	for _, s := range specs {
		ix := schema.Index{Options: schema.IndexOptions{
			Name:               s.Name,
			Sparse:             s.Sparse,
			Unique:             s.Unique,
			ExpireAfterSeconds: s.ExpireAfterSeconds,
		}}
		for _, e := range s.Key {
			order := 1
			if f, ok := toFloat(e.Value); ok && f < 0 {
				order = -1
			}
			ix.Keys = append(ix.Keys, schema.IndexKey{Field: e.Key, Order: order})
		}
		out = append(out, ix)
	}
	return out, nil
}
