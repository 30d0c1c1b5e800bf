// Package odm управляет именованными соединениями с базой, создаёт на них модели
// с плагинами и наследованием, отдаёт описания схем и справочники дочерних моделей.
package odm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"mongokit/internal/children"
	"mongokit/internal/descriptor"
	"mongokit/internal/naming"
	"mongokit/internal/plugins"
	"mongokit/internal/schema"
	"mongokit/internal/store"
)

// DefaultConnection — логическое имя соединения по умолчанию.
const DefaultConnection = "main"

var (
	ErrNotFound          = store.ErrNotFound
	ErrUnknownMethod     = errors.New("odm: unknown method")
	ErrDuplicateModel    = errors.New("odm: model already exists")
	ErrUnknownConnection = errors.New("odm: unknown connection")
	ErrUnknownModel      = errors.New("odm: unknown model")
)

// ManagerConfig — настройки соединений.
type ManagerConfig struct {
	PoolSize       uint64
	ConnectTimeout time.Duration
	// Debug включает журналирование команд драйвера.
	Debug bool
	// AutoIndex создаёт индексы модели сразу при её создании.
	AutoIndex bool
}

// Manager владеет соединениями и реестром плагинов.
type Manager struct {
	mu      sync.RWMutex
	cfg     ManagerConfig
	log     *zap.Logger
	plugins *plugins.Registry
	conns   map[string]*Connection
	order   []string
}

func NewManager(cfg ManagerConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = store.DefaultPoolSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = store.DefaultConnectTimeout
	}
	return &Manager{
		cfg:     cfg,
		log:     log.Named("odm"),
		plugins: plugins.Builtin(),
		conns:   make(map[string]*Connection),
	}
}

// Connection — именованное соединение со своим реестром моделей.
type Connection struct {
	name    string
	uri     string
	backend store.Backend
	models  *Registry
}

func (c *Connection) Name() string { return c.name }

func (c *Connection) Backend() store.Backend { return c.backend }

func (c *Connection) Registry() *Registry { return c.models }

// Model ищет модель соединения по имени.
func (c *Connection) Model(name string) (*Model, bool) { return c.models.Get(name) }

// SetupConnection открывает соединение под логическим именем (по умолчанию main).
// Первое открытое соединение становится и main. Ошибки связи после открытия не
// возвращаются, а пишутся в журнал.
func (m *Manager) SetupConnection(ctx context.Context, uri, name string) (*Connection, error) {
	if name == "" {
		name = DefaultConnection
	}
	log := m.log.With(zap.String("connection", name), zap.String("uri", redact(uri)))

	m.mu.Lock()
	defer m.mu.Unlock()
	// алиас main можно перекрыть явным соединением main
	if c, exists := m.conns[name]; exists && c.name == name {
		return nil, fmt.Errorf("odm: connection %q already set up", name)
	}

	backend, err := store.Open(ctx, uri, store.Options{
		PoolSize:       m.cfg.PoolSize,
		ConnectTimeout: m.cfg.ConnectTimeout,
		Debug:          m.cfg.Debug,
		Logger:         log,
	})
	if err != nil {
		log.Error("failed to connect", zap.Error(err))
		return nil, err
	}
	conn := &Connection{name: name, uri: uri, backend: backend, models: NewRegistry()}
	m.conns[name] = conn
	m.order = append(m.order, name)
	if _, ok := m.conns[DefaultConnection]; !ok {
		m.conns[DefaultConnection] = conn
	}
	log.Info("connection set up", zap.String("backend", backend.Kind()), zap.Uint64("pool", m.cfg.PoolSize))
	return conn, nil
}

// Connection ищет соединение по логическому имени ("" — main).
func (m *Manager) Connection(name string) (*Connection, bool) {
	if name == "" {
		name = DefaultConnection
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[name]
	return c, ok
}

// Connections — имена соединений в порядке открытия (без алиаса main).
func (m *Manager) Connections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *Manager) connection(name string) (*Connection, error) {
	c, ok := m.Connection(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, name)
	}
	return c, nil
}

// SetDebug включает/выключает журналирование команд на всех соединениях.
func (m *Manager) SetDebug(on bool) *Manager {
	m.mu.Lock()
	m.cfg.Debug = on
	conns := m.unique()
	m.mu.Unlock()
	for _, c := range conns {
		c.backend.SetDebug(on)
	}
	return m
}

func (m *Manager) unique() []*Connection {
	out := make([]*Connection, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.conns[name])
	}
	return out
}

// Close закрывает все соединения.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	conns := m.unique()
	m.conns = make(map[string]*Connection)
	m.order = nil
	m.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.backend.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			continue
		}
		m.log.Warn("disconnected", zap.String("connection", c.name), zap.String("uri", redact(c.uri)))
	}
	return errors.Join(errs...)
}

// Use добавляет или подменяет плагин.
func (m *Manager) Use(key string, p plugins.Plugin) { m.plugins.Use(key, p) }

// Plugins — реестр плагинов менеджера.
func (m *Manager) Plugins() *plugins.Registry { return m.plugins }

// CreateModel применяет включённые плагины к схеме и регистрирует модель на соединении.
// Схема меняется на месте и после этого должна только читаться.
func (m *Manager) CreateModel(conn *Connection, name string, s *schema.Schema, opts ModelOptions) (*Model, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: nil connection", ErrUnknownConnection)
	}
	if name == "" || s == nil {
		return nil, fmt.Errorf("odm: model name and schema are required")
	}
	// дочерняя модель регистрируется на соединении родителя
	var parent *Model
	if in := opts.Inherit; in != nil && in.From != nil {
		parent = in.From
		conn = parent.conn
	}
	if _, exists := conn.models.Get(name); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, name)
	}
	log := m.log.With(zap.String("connection", conn.name), zap.String("model", name))
	log.Debug("creating model")

	if err := m.plugins.Apply(s, opts.pluginOptions()); err != nil {
		return nil, fmt.Errorf("odm: model %s: %w", name, err)
	}

	model := &Model{name: name, schema: s, conn: conn, log: log}
	if parent != nil {
		value := opts.Inherit.Discriminator
		if value == "" {
			value = name
		}
		s.Merge(parent.schema)
		if err := s.Add(DiscriminatorKey, schema.String().Default(value)); err != nil {
			return nil, err
		}
		model.parent = parent
		model.discriminator = value
		model.coll = parent.coll
	} else {
		model.coll = conn.backend.Collection(naming.Collection(name, s.Collection()))
	}

	if err := conn.models.Add(model); err != nil {
		return nil, err
	}

	if m.cfg.AutoIndex && model.parent == nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
		defer cancel()
		if _, err := model.EnsureIndexes(ctx); err != nil {
			log.Error("index creation failed", zap.Error(err))
		}
	}
	return model, nil
}

// CreateModelOn — CreateModel на соединении с логическим именем db.
func (m *Manager) CreateModelOn(name string, s *schema.Schema, opts ModelOptions, db string) (*Model, error) {
	conn, err := m.connection(db)
	if err != nil {
		return nil, err
	}
	return m.CreateModel(conn, name, s, opts)
}

// Model ищет модель в базе db.
func (m *Manager) Model(db, name string) (*Model, error) {
	conn, err := m.connection(db)
	if err != nil {
		return nil, err
	}
	model, ok := conn.Model(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return model, nil
}

// Models — модели базы db в порядке создания.
func (m *Manager) Models(db string) []*Model {
	conn, ok := m.Connection(db)
	if !ok {
		return nil
	}
	return conn.models.List()
}

// GetChildModels — модели базы db в коллекции parent, кроме неё самой.
func (m *Manager) GetChildModels(parent *Model, db string) []*Model {
	return children.Discover(m.Models(db), parent)
}

// CreateChildModelDirectory строит справочник дочерних моделей; keyFn == nil — имя в верхнем регистре.
func (m *Manager) CreateChildModelDirectory(parent *Model, keyFn children.KeyFunc[*Model], db string) *children.Directory[*Model] {
	return children.NewDirectory(m.GetChildModels(parent, db), keyFn)
}

// Format — формат описания схемы.
type Format string

const (
	FormatDescriptor Format = "descriptor"
	// FormatTree — сырое дерево путей схемы без обработки.
	FormatTree Format = "tree"
)

// GetSchemaDescription описывает схему модели. Оба формата содержат _modelName.
// Фильтр ключей применяется только к дескриптору.
func (m *Manager) GetSchemaDescription(model *Model, format Format, filter descriptor.KeyFilter) any {
	if format == FormatTree {
		tree := model.schema.Tree()
		tree[descriptor.ModelNameKey] = model.name
		return tree
	}
	return descriptor.Build(model, filter)
}

// LimitDataToSchema оставляет в data только описанные схемой ключи.
func (m *Manager) LimitDataToSchema(model *Model, data map[string]any, filter descriptor.KeyFilter) map[string]any {
	return descriptor.Limit(descriptor.Build(model, filter), data)
}

// EnsureIndexes создаёт индексы всех базовых моделей базы db.
func (m *Manager) EnsureIndexes(ctx context.Context, db string) error {
	conn, err := m.connection(db)
	if err != nil {
		return err
	}
	for _, model := range conn.models.List() {
		names, err := model.EnsureIndexes(ctx)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			model.log.Info("indexes ensured", zap.Strings("indexes", names))
		}
	}
	return nil
}

// redact скрывает пароль в URI перед записью в журнал.
func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
