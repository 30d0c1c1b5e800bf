package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mongokit/internal/odm"
	"mongokit/internal/schema"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// ==== Параметры листинга ====

type ListParams struct {
	Conditions map[string]any
	Inactive   bool
	Limit      int64
	Skip       int64
	Sort       []schema.SortKey
}

// Options — опции запроса модели; лимит и сдвиг для count не нужны.
func (lp ListParams) Options(paged bool) []schema.QueryOption {
	var opts []schema.QueryOption
	if lp.Inactive {
		opts = append(opts, schema.WithInactive())
	}
	if !paged {
		return opts
	}
	opts = append(opts, schema.WithLimit(lp.Limit), schema.WithSkip(lp.Skip))
	for _, k := range lp.Sort {
		opts = append(opts, schema.WithSort(k.Field, k.Desc))
	}
	return opts
}

// служебные ключи, не попадающие в условия
var reservedParams = map[string]bool{
	"limit": true, "_limit": true,
	"skip": true, "offset": true, "_offset": true,
	"sort": true, "_sort": true,
	"inactive": true,
}

// операторы суффикса field__op
var filterOps = map[string]string{
	"eq": "$eq", "ne": "$ne",
	"in": "$in", "nin": "$nin",
	"gt": "$gt", "gte": "$gte", "lt": "$lt", "lte": "$lte",
	"exists": "$exists",
}

func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// parseListParams разбирает query-строку. Значения условий приводятся к типу пути схемы:
//
//	status=open
//	amount__gte=1000
//	status__in=open,closed
//	created__lt=2025-01-31
//	inactive=true&limit=20&skip=40&sort=-created,number
func parseListParams(m *odm.Model, q url.Values) (ListParams, error) {
	lp := ListParams{Conditions: make(map[string]any), Limit: defaultLimit}

	if lv := first(q, "limit", "_limit"); lv != "" {
		n, err := strconv.ParseInt(lv, 10, 64)
		if err != nil || n < 0 {
			return lp, fmt.Errorf("bad limit %q", lv)
		}
		if n > maxLimit {
			n = maxLimit
		}
		lp.Limit = n
	}
	if sv := first(q, "skip", "offset", "_offset"); sv != "" {
		n, err := strconv.ParseInt(sv, 10, 64)
		if err != nil || n < 0 {
			return lp, fmt.Errorf("bad skip %q", sv)
		}
		lp.Skip = n
	}
	if iv := first(q, "inactive"); iv != "" {
		b, err := strconv.ParseBool(iv)
		if err != nil {
			return lp, fmt.Errorf("bad inactive %q", iv)
		}
		lp.Inactive = b
	}
	for _, p := range strings.Split(first(q, "sort", "_sort"), ",") {
		p = strings.TrimSpace(p)
		desc := strings.HasPrefix(p, "-")
		p = strings.TrimLeft(p, "+-")
		if p != "" {
			lp.Sort = append(lp.Sort, schema.SortKey{Field: p, Desc: desc})
		}
	}

	for key, vals := range q {
		if reservedParams[key] || len(vals) == 0 {
			continue
		}
		field, op := key, "eq"
		if i := strings.LastIndex(key, "__"); i > 0 {
			field, op = key[:i], key[i+2:]
		}
		mop, ok := filterOps[op]
		if !ok {
			return lp, fmt.Errorf("unknown operator %q in %s", op, key)
		}
		v, err := conditionValue(m, field, op, vals[0])
		if err != nil {
			return lp, fmt.Errorf("%s: %w", key, err)
		}
		if op == "eq" {
			lp.Conditions[field] = v
			continue
		}
		cond, _ := lp.Conditions[field].(map[string]any)
		if cond == nil {
			cond = make(map[string]any)
			lp.Conditions[field] = cond
		}
		cond[mop] = v
	}
	return lp, nil
}

func conditionValue(m *odm.Model, field, op, raw string) (any, error) {
	switch op {
	case "exists":
		return strconv.ParseBool(raw)
	case "in", "nin":
		var out []any
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			v, err := coerce(m, field, part)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return coerce(m, field, raw)
}

// coerce приводит строку из URL к типу пути; для массивов — к типу элемента.
// Неизвестные пути остаются строками.
func coerce(m *odm.Model, field, raw string) (any, error) {
	p, ok := m.Schema().Path(field)
	if !ok {
		return raw, nil
	}
	tag := p.Instance
	if p.Caster != nil {
		tag = p.Caster.Instance
	}
	switch tag {
	case schema.TypeNumber, schema.TypeDecimal128:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return n, nil
	case schema.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return b, nil
	case schema.TypeDate:
		return parseDate(raw)
	case schema.TypeObjectID:
		return m.Collection().ParseID(raw)
	}
	return raw, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date", raw)
}
