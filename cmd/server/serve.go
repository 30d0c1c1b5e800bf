package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mongokit/internal/api"
	"mongokit/internal/reference"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Register DSL models and serve the REST API",
		Example: `  mongokit serve --dsl dsl --enums reference/enums
  MONGO_URI=mongodb://localhost:27017/app mongokit serve --port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if !a.cfg.LogDevelopment {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := api.NewServer(a.mgr, a.enums, a.log)
			for _, issue := range srv.SchemaLint() {
				a.log.Warn("schema issue",
					zap.String("database", issue.Database),
					zap.String("model", issue.Model),
					zap.String("field", issue.Field),
					zap.String("code", issue.Code),
				)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go reloadEnumsOnHUP(ctx, a, srv)
			return api.Run(ctx, ":"+a.cfg.Port, srv.Router(), a.log)
		},
	}
}

// reloadEnumsOnHUP перечитывает справочники по SIGHUP. Модели не перестраиваются:
// enum-поля схем остаются с прежними значениями до рестарта.
func reloadEnumsOnHUP(ctx context.Context, a *app, srv *api.Server) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			enums, err := reference.LoadEnumCatalog(a.cfg.EnumsDir)
			if err != nil {
				a.log.Error("reload enums", zap.Error(err))
				continue
			}
			srv.SetEnums(enums)
			a.log.Info("enum catalogs reloaded", zap.Int("count", len(enums)))
		}
	}
}
