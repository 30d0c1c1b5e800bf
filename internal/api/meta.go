package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mongokit/internal/descriptor"
	"mongokit/internal/odm"
	"mongokit/internal/reference"
)

// ===== META HANDLERS =====

type metaModelListItem struct {
	Database   string `json:"database"`
	Model      string `json:"model"`
	Collection string `json:"collection"`
	Parent     string `json:"parent,omitempty"`
}

func MetaListHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make([]metaModelListItem, 0)
		for _, db := range srv.mgr.Connections() {
			for _, m := range srv.mgr.Models(db) {
				item := metaModelListItem{Database: db, Model: m.Name(), Collection: m.CollectionName()}
				if p := m.Parent(); p != nil {
					item.Parent = p.Name()
				}
				out = append(out, item)
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/meta/:db/:model?format=tree&keys=a,b
func MetaModelHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := srv.model(c)
		if !ok {
			return
		}
		format := odm.Format(c.DefaultQuery("format", string(odm.FormatDescriptor)))
		if format != odm.FormatDescriptor && format != odm.FormatTree {
			c.JSON(http.StatusBadRequest, gin.H{"error": "format must be descriptor or tree"})
			return
		}
		filter := descriptor.ParseKeyFilter(c.Query("keys"))
		c.JSON(http.StatusOK, srv.mgr.GetSchemaDescription(m, format, filter))
	}
}

// GET /api/meta/:db/:model/children
func ChildrenHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := srv.model(c)
		if !ok {
			return
		}
		dir := srv.mgr.CreateChildModelDirectory(m, nil, c.Param("db"))
		c.JSON(http.StatusOK, gin.H{
			"types":     dir.ModelTypes(),
			"resources": dir.Resources(),
		})
	}
}

// GET /api/meta/:db/:model/children/:name — name: ключ, ключ в любом регистре или ресурс.
func ChildHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := srv.model(c)
		if !ok {
			return
		}
		dir := srv.mgr.CreateChildModelDirectory(m, nil, c.Param("db"))
		child, ok := dir.Model(c.Param("name"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Child model not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"type":          child.Name(),
			"discriminator": child.Discriminator(),
			"collection":    child.CollectionName(),
		})
	}
}

// GET /api/meta/enums/:name?at=2024-05-01 — at оставляет только действующие значения.
func MetaCatalogHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		dir, ok := srv.enum(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Catalog not found"})
			return
		}
		items := dir.Sorted()
		if at := c.Query("at"); at != "" {
			t, err := time.Parse(reference.DateLayout, at)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "at must be YYYY-MM-DD"})
				return
			}
			items = dir.Active(t)
		}
		if items == nil {
			items = []reference.EnumItem{}
		}
		c.JSON(http.StatusOK, gin.H{
			"name":  name,
			"items": items,
		})
	}
}

// GET /api/meta/lint
func LintHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		issues := srv.SchemaLint()
		if issues == nil {
			issues = []SchemaIssue{}
		}
		c.JSON(http.StatusOK, gin.H{"issues": issues})
	}
}
