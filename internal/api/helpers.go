package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mongokit/internal/odm"
	"mongokit/internal/store"
)

// statusFor переводит ошибку модели в HTTP-статус.
func statusFor(err error) int {
	switch {
	case errors.Is(err, odm.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, odm.ErrUnknownModel), errors.Is(err, odm.ErrUnknownConnection):
		return http.StatusNotFound
	case errors.Is(err, odm.ErrUnknownMethod):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicateKey):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// model достаёт модель из :db/:model или отвечает 404.
func (s *Server) model(c *gin.Context) (*odm.Model, bool) {
	m, ok := s.resolveModel(c.Param("db"), c.Param("model"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
		return nil, false
	}
	return m, true
}
