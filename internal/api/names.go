// api/names.go
package api

import (
	"strings"

	"mongokit/internal/naming"
	"mongokit/internal/odm"
)

// resolveModel ищет модель базы db по имени из URL: точное имя, без учёта регистра,
// затем имя ресурса (creditcards для CreditCard).
func (s *Server) resolveModel(db, name string) (*odm.Model, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	if m, err := s.mgr.Model(db, name); err == nil {
		return m, true
	}
	models := s.mgr.Models(db)
	for _, m := range models {
		if strings.EqualFold(m.Name(), name) {
			return m, true
		}
	}
	nl := strings.ToLower(name)
	for _, m := range models {
		if naming.Resource(m.Name()) == nl {
			return m, true
		}
	}
	return nil, false
}
