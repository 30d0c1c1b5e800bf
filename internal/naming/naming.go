// Package naming выводит имена коллекций и ресурсов из имени типа модели.
package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Resource — множественное число в нижнем регистре: CreditCard -> creditcards, Person -> people.
// Совпадает с именем коллекции по умолчанию.
func Resource(typeName string) string {
	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		return ""
	}
	return strings.ToLower(inflection.Plural(typeName))
}

// Collection — имя коллекции модели; явное имя из схемы имеет приоритет.
func Collection(typeName, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return Resource(typeName)
}
