package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mongokit/internal/descriptor"
	"mongokit/internal/duration"
	"mongokit/internal/plugins"
	"mongokit/internal/schema"
)

// GET /api/:db/:model
func ListHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := srv.model(c)
		if !ok {
			return
		}
		lp, err := parseListParams(m, c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()

		total, err := m.Count(ctx, lp.Conditions, lp.Options(false)...)
		if err != nil {
			writeError(c, err)
			return
		}
		docs, err := m.Find(ctx, lp.Conditions, lp.Options(true)...)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("X-Total-Count", strconv.FormatInt(total, 10))
		c.JSON(http.StatusOK, docs)
	}
}

// GET /api/:db/:model/count
func CountHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := srv.model(c)
		if !ok {
			return
		}
		lp, err := parseListParams(m, c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		total, err := m.Count(c.Request.Context(), lp.Conditions, lp.Options(false)...)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": total})
	}
}

// GET /api/:db/:model/:id[?inactive=true]
func GetOneHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := srv.model(c)
		if !ok {
			return
		}
		var opts []schema.QueryOption
		if inactive, _ := strconv.ParseBool(c.Query("inactive")); inactive {
			opts = append(opts, schema.WithInactive())
		}
		doc, err := m.FindByID(c.Request.Context(), c.Param("id"), opts...)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

// POST /api/:db/:model — лишние ключи отбрасываются, значения по умолчанию подставляются.
func CreateHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := srv.model(c)
		if !ok {
			return
		}
		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		doc := m.New(srv.mgr.LimitDataToSchema(m, obj, descriptor.All))
		if errs := ValidateDocument(m, doc); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
			return
		}
		if err := doc.Save(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, doc)
	}
}

// invoke находит документ (включая неактивные) и вызывает метод плагина.
// save — сохранить документ после вызова (методы ttl сами не сохраняют).
func invoke(srv *Server, c *gin.Context, method string, save bool, args ...any) {
	m, ok := srv.model(c)
	if !ok {
		return
	}
	if _, has := m.Schema().LookupMethod(method); !has {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Model " + m.Name() + " does not support " + method})
		return
	}
	ctx := c.Request.Context()
	doc, err := m.FindByID(ctx, c.Param("id"), schema.WithInactive())
	if err != nil {
		writeError(c, err)
		return
	}
	if err := doc.Invoke(ctx, method, args...); err != nil {
		writeError(c, err)
		return
	}
	if save {
		if err := doc.Save(ctx); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, doc)
}

// POST /api/:db/:model/:id/deactivate
func DeactivateHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) { invoke(srv, c, plugins.MethodDeactivate, false) }
}

// POST /api/:db/:model/:id/reactivate
func ReactivateHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) { invoke(srv, c, plugins.MethodReactivate, false) }
}

type expireReq struct {
	// In — "5m", "2 days" или миллисекунды.
	In any `json:"in"`
}

// POST /api/:db/:model/:id/expire {"in": "1h"}
func ExpireHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req expireReq
		if err := c.ShouldBindJSON(&req); err != nil || req.In == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": `Body must be {"in": <duration>}`})
			return
		}
		d, err := duration.FromValue(req.In)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		invoke(srv, c, plugins.MethodExpireIn, true, d)
	}
}

// DELETE /api/:db/:model/:id/expire
func NeverExpireHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) { invoke(srv, c, plugins.MethodNeverExpires, true) }
}
