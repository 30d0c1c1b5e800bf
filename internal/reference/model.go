package reference

import (
	"sort"
	"time"
)

// DateLayout — формат valid_from/valid_to.
const DateLayout = "2006-01-02"

// EnumDirectory описывает один справочник типа enum
type EnumDirectory struct {
	Name  string     `yaml:"name" json:"name"`
	Items []EnumItem `yaml:"items" json:"items"`
}

type EnumItem struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	// Order задаёт порядок вывода; при равенстве сохраняется порядок файла.
	Order     int    `yaml:"order,omitempty" json:"order,omitempty"`
	ValidFrom string `yaml:"valid_from,omitempty" json:"validFrom,omitempty"`
	ValidTo   string `yaml:"valid_to,omitempty" json:"validTo,omitempty"`
}

// ActiveAt — действует ли значение на дату at. Пустые границы открыты.
func (it EnumItem) ActiveAt(at time.Time) bool {
	day := at.UTC().Format(DateLayout)
	if it.ValidFrom != "" && day < it.ValidFrom {
		return false
	}
	if it.ValidTo != "" && day > it.ValidTo {
		return false
	}
	return true
}

// Sorted — элементы по Order.
func (d EnumDirectory) Sorted() []EnumItem {
	out := append([]EnumItem(nil), d.Items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Codes — коды всех значений справочника, включая недействующие.
// Старые документы могут ссылаться на снятые с учёта коды.
func (d EnumDirectory) Codes() []string {
	items := d.Sorted()
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Code
	}
	return out
}

// Active — действующие на дату at значения.
func (d EnumDirectory) Active(at time.Time) []EnumItem {
	var out []EnumItem
	for _, it := range d.Sorted() {
		if it.ActiveAt(at) {
			out = append(out, it)
		}
	}
	return out
}

// Lookup ищет значение по коду.
func (d EnumDirectory) Lookup(code string) (EnumItem, bool) {
	for _, it := range d.Items {
		if it.Code == code {
			return it, true
		}
	}
	return EnumItem{}, false
}
