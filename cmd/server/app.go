package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mongokit/internal/config"
	"mongokit/internal/dsl"
	"mongokit/internal/logging"
	"mongokit/internal/odm"
	"mongokit/internal/reference"
)

// app — всё, что поднимается из конфигурации до запуска команды.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	mgr    *odm.Manager
	enums  map[string]reference.EnumDirectory
	models []*odm.Model
}

// loadApp читает конфигурацию из флагов команды и поднимает соединения и модели.
func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	a, err := bootstrap(cmd.Context(), cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

// bootstrap: соединения -> справочники -> DSL -> модели.
func bootstrap(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	mgr := odm.NewManager(odm.ManagerConfig{
		PoolSize:       cfg.PoolSize,
		ConnectTimeout: cfg.ConnectTimeout,
		Debug:          cfg.Debug,
		AutoIndex:      cfg.AutoIndex,
	}, log)
	a := &app{cfg: cfg, log: log, mgr: mgr}

	if err := a.connect(ctx); err != nil {
		_ = mgr.Close(ctx)
		return nil, err
	}

	enums, err := reference.LoadEnumCatalog(cfg.EnumsDir)
	if err != nil {
		_ = mgr.Close(ctx)
		return nil, fmt.Errorf("load enums: %w", err)
	}
	a.enums = enums
	log.Info("enum catalogs loaded", zap.Int("count", len(enums)), zap.String("dir", cfg.EnumsDir))

	parsed, err := dsl.LoadAll(cfg.DSLDir)
	if err != nil {
		_ = mgr.Close(ctx)
		return nil, fmt.Errorf("load DSL: %w", err)
	}
	defs, err := dsl.Build(parsed, enums)
	if err != nil {
		_ = mgr.Close(ctx)
		return nil, err
	}
	a.models, err = dsl.Register(mgr, defs)
	if err != nil {
		_ = mgr.Close(ctx)
		return nil, err
	}
	log.Info("models registered", zap.Int("count", len(a.models)), zap.String("dir", cfg.DSLDir))
	return a, nil
}

// connect открывает main и именованные базы в порядке имён.
func (a *app) connect(ctx context.Context) error {
	if _, err := a.mgr.SetupConnection(ctx, a.cfg.MongoURI, odm.DefaultConnection); err != nil {
		return err
	}
	names := make([]string, 0, len(a.cfg.Databases))
	for name := range a.cfg.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := a.mgr.SetupConnection(ctx, a.cfg.Databases[name], name); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.mgr.Close(ctx); err != nil {
		a.log.Warn("close connections", zap.Error(err))
	}
	_ = a.log.Sync()
}
