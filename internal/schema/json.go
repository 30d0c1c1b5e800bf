package schema

import "encoding/json"

type pathJSON struct {
	Type     TypeTag        `json:"type"`
	Enum     []any          `json:"enum,omitempty"`
	Ref      string         `json:"ref,omitempty"`
	Required bool           `json:"required,omitempty"`
	Default  any            `json:"default,omitempty"`
	Match    string         `json:"match,omitempty"`
	Of       *Path          `json:"of,omitempty"`
	Schema   map[string]any `json:"schema,omitempty"`
}

// MarshalJSON отдаёт путь в виде, пригодном для формата 'tree'.
// Вычисляемые значения по умолчанию не сериализуются.
func (p *Path) MarshalJSON() ([]byte, error) {
	out := pathJSON{
		Type:     p.Instance,
		Enum:     p.EnumValues,
		Ref:      p.Options.Ref,
		Required: p.Options.Required,
		Of:       p.Caster,
	}
	if _, computed := p.Options.Default.(DefaultFunc); !computed {
		out.Default = p.Options.Default
	}
	if p.Options.Match != nil {
		out.Match = p.Options.Match.String()
	}
	if p.Schema != nil {
		out.Schema = p.Schema.Tree()
	}
	return json.Marshal(out)
}
