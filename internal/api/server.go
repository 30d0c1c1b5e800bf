package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"mongokit/internal/odm"
	"mongokit/internal/reference"
)

// Server — HTTP-обёртка над менеджером моделей.
type Server struct {
	mu    sync.RWMutex
	mgr   *odm.Manager
	enums map[string]reference.EnumDirectory
	log   *zap.Logger
}

func NewServer(mgr *odm.Manager, enums map[string]reference.EnumDirectory, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if enums == nil {
		enums = make(map[string]reference.EnumDirectory)
	}
	return &Server{mgr: mgr, enums: enums, log: log.Named("api")}
}

// SetEnums подменяет каталог справочников (перечитывание без рестарта).
func (s *Server) SetEnums(enums map[string]reference.EnumDirectory) {
	s.mu.Lock()
	s.enums = enums
	s.mu.Unlock()
}

func (s *Server) enum(name string) (reference.EnumDirectory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.enums[name]
	return d, ok
}

// Run обслуживает addr до отмены ctx, затем мягко останавливается.
func Run(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
