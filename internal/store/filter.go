package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"mongokit/internal/schema"
)

// Lookup достаёт значение по точечному пути из вложенных карт.
func Lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	}
	return nil, false
}

// Matches проверяет документ на соответствие фильтру в нотации MongoDB.
// Поддерживаются равенство, $eq $ne $in $nin $exists $gt $gte $lt $lte, $and, $or.
func Matches(doc map[string]any, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		switch key {
		case "$and", "$or":
			subs, err := subFilters(key, cond)
			if err != nil {
				return false, err
			}
			ok, err := combine(doc, subs, key == "$and")
			if err != nil || !ok {
				return false, err
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return false, fmt.Errorf("store: unsupported top-level operator %s", key)
		}
		got, found := Lookup(doc, key)
		ok, err := matchField(got, found, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func subFilters(op string, v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case []map[string]any:
		return t, nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, it := range t {
			m, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("store: %s expects objects, got %T", op, it)
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("store: %s expects an array, got %T", op, v)
}

func combine(doc map[string]any, subs []map[string]any, all bool) (bool, error) {
	for _, sub := range subs {
		ok, err := Matches(doc, sub)
		if err != nil {
			return false, err
		}
		if all && !ok {
			return false, nil
		}
		if !all && ok {
			return true, nil
		}
	}
	return all, nil
}

func isOperatorMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchField(got any, found bool, cond any) (bool, error) {
	ops, ok := isOperatorMap(cond)
	if !ok {
		return equalsField(got, found, cond), nil
	}
	for op, want := range ops {
		var res bool
		switch op {
		case "$eq":
			res = equalsField(got, found, want)
		case "$ne":
			res = !equalsField(got, found, want)
		case "$in", "$nin":
			list, err := asList(op, want)
			if err != nil {
				return false, err
			}
			res = false
			for _, w := range list {
				if equalsField(got, found, w) {
					res = true
					break
				}
			}
			if op == "$nin" {
				res = !res
			}
		case "$exists":
			res = found == truthyFlag(want)
		case "$gt", "$gte", "$lt", "$lte":
			if !found {
				return false, nil
			}
			c, ok := compareValues(got, want)
			if !ok {
				return false, nil
			}
			switch op {
			case "$gt":
				res = c > 0
			case "$gte":
				res = c >= 0
			case "$lt":
				res = c < 0
			case "$lte":
				res = c <= 0
			}
		default:
			return false, fmt.Errorf("store: unsupported operator %s", op)
		}
		if !res {
			return false, nil
		}
	}
	return true, nil
}

func asList(op string, v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("store: %s expects an array, got %T", op, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func truthyFlag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// equalsField — равенство в смысле MongoDB: null совпадает с отсутствующим полем,
// массив совпадает, если содержит искомое значение.
func equalsField(got any, found bool, want any) bool {
	if want == nil {
		return !found || got == nil
	}
	if !found {
		return false
	}
	if equalValues(got, want) {
		return true
	}
	if arr, ok := got.([]any); ok {
		for _, el := range arr {
			if equalValues(el, want) {
				return true
			}
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// compareValues сравнивает числа, строки, даты и булевы значения одного рода.
func compareValues(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch ta := a.(type) {
	case string:
		tb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(ta, tb), true
	case time.Time:
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	case bool:
		tb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ta == tb:
			return 0, true
		case !ta:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// сравнение двух документов по одному ключу; отсутствующие значения идут первыми при asc
func cmpByKey(a, b map[string]any, key string, desc bool) int {
	va, oka := Lookup(a, key)
	vb, okb := Lookup(b, key)
	na := !oka || va == nil
	nb := !okb || vb == nil

	rel := 0
	switch {
	case na && nb:
		return 0
	case na:
		rel = -1
	case nb:
		rel = 1
	default:
		c, ok := compareValues(va, vb)
		if !ok {
			// разнородные значения — сравним строково
			c = strings.Compare(fmt.Sprint(va), fmt.Sprint(vb))
		}
		rel = c
	}
	if desc {
		rel = -rel
	}
	return rel
}

// SortDocs — устойчивая мультисортировка.
func SortDocs(docs []map[string]any, keys []schema.SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			if k.Field == "" {
				continue
			}
			if c := cmpByKey(docs[i], docs[j], k.Field, k.Desc); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// Page применяет skip и limit.
func Page(docs []map[string]any, skip, limit int64) []map[string]any {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return docs[:0]
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

// DeepCopy копирует вложенные карты и срезы документа.
func DeepCopy(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return DeepCopy(t)
	case []any:
		cp := make([]any, len(t))
		for i, el := range t {
			cp[i] = copyValue(el)
		}
		return cp
	}
	return v
}
