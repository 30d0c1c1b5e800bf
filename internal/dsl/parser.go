package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"mongokit/internal/schema"
)

const (
	kindEnum     = "enum"
	kindRef      = "ref"
	kindArray    = "array"
	kindEmbedded = "embedded"
)

var (
	databaseRe         = regexp.MustCompile(`^database\s+([A-Za-z0-9_.-]+)$`)
	headerRe           = regexp.MustCompile(`^(model|embedded)\s+(\w+)\s*:?\s*(.*)$`)
	fieldRe            = regexp.MustCompile(`^([\w.]+):\s*(\S.*)$`)
	enumRe             = regexp.MustCompile(`^enum\[(.*)\]$`)
	refRe              = regexp.MustCompile(`^ref\[([A-Za-z0-9_.]+)\]$`)
	arrayRe            = regexp.MustCompile(`^array\[(.+)\]$`)
	nameRe             = regexp.MustCompile(`^[A-Z]\w*$`)
	reConstraintsStart = regexp.MustCompile(`^constraints\s*:$`)
	reIndexLine        = regexp.MustCompile(`^(index|unique)\s*\(\s*([^)]+)\s*\)\s*(.*)$`)
)

var fieldOptions = map[string]bool{
	"required": true, "default": true, "match": true,
	"index": true, "unique": true, "sparse": true,
}

var indexOptions = map[string]bool{
	"name": true, "unique": true, "sparse": true, "ttl": true,
}

// // parse: options tokenizer — делит "k=v k2='v 2' pattern=^[A-Z0-9 _-]+$" на токены, не рвёт по пробелам внутри кавычек/скобок
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0 // внутри [ ... ] у регэкспа и enum[...]

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// splitOption делит "k=v" и снимает кавычки со значения; у флага value == "".
func splitOption(tok string) (string, string) {
	k, v, ok := strings.Cut(tok, "=")
	if !ok {
		return tok, ""
	}
	return k, unquote(v)
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = unquote(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseType разбирает тип поля: тег схемы, enum[...], ref[X], array[...] или имя embedded-схемы.
func parseType(s string) (*Field, error) {
	if m := enumRe.FindStringSubmatch(s); m != nil {
		inner := strings.TrimSpace(m[1])
		if strings.HasPrefix(inner, "@") {
			return &Field{Type: kindEnum, EnumCatalog: strings.TrimPrefix(inner, "@")}, nil
		}
		values := splitList(inner)
		if len(values) == 0 {
			return nil, fmt.Errorf("empty enum")
		}
		return &Field{Type: kindEnum, Enum: values}, nil
	}
	if m := refRe.FindStringSubmatch(s); m != nil {
		return &Field{Type: kindRef, Ref: m[1]}, nil
	}
	if m := arrayRe.FindStringSubmatch(s); m != nil {
		elem, err := parseType(strings.TrimSpace(m[1]))
		if err != nil {
			return nil, err
		}
		if elem.Type == kindArray {
			return nil, fmt.Errorf("nested arrays are not supported")
		}
		return &Field{Type: kindArray, Elem: elem}, nil
	}
	if tag, ok := schema.ParseTypeTag(s); ok && tag != schema.TypeArray {
		return &Field{Type: string(tag)}, nil
	}
	if nameRe.MatchString(s) {
		return &Field{Type: kindEmbedded, Embedded: s}, nil
	}
	return nil, fmt.Errorf("unknown type %q", s)
}

func parseField(pos Pos, name, rest string) (Field, error) {
	toks := splitOptionTokens(rest)
	ft, err := parseType(toks[0])
	if err != nil {
		return Field{}, errorf(pos, "field %s: %v", name, err)
	}
	if ft.Type == kindEmbedded {
		return Field{}, errorf(pos, "field %s: embedded schema %s is only allowed as array[%s]", name, ft.Embedded, ft.Embedded)
	}
	f := *ft
	f.Name = name
	f.Pos = pos
	f.Options = make(map[string]string)
	for _, tok := range toks[1:] {
		k, v := splitOption(tok)
		if !fieldOptions[k] {
			return Field{}, errorf(pos, "field %s: unknown option %q", name, k)
		}
		if v == "" && (k == "default" || k == "match") {
			return Field{}, errorf(pos, "field %s: option %s needs a value", name, k)
		}
		f.Options[k] = v
	}
	return f, nil
}

func parseIndex(pos Pos, kind, keys, rest string) (IndexDef, error) {
	ix := IndexDef{Pos: pos, Options: make(map[string]string)}
	for _, k := range splitList(keys) {
		desc := strings.HasPrefix(k, "-")
		k = strings.TrimLeft(k, "+-")
		if k == "" {
			return ix, errorf(pos, "empty index key")
		}
		ix.Keys = append(ix.Keys, IndexKey{Field: k, Desc: desc})
	}
	if len(ix.Keys) == 0 {
		return ix, errorf(pos, "index without keys")
	}
	if kind == "unique" {
		ix.Options["unique"] = ""
	}
	for _, tok := range splitOptionTokens(rest) {
		k, v := splitOption(tok)
		if !indexOptions[k] {
			return ix, errorf(pos, "index: unknown option %q", k)
		}
		ix.Options[k] = v
	}
	return ix, nil
}

// parseHeader разбирает хвост заголовка: extends, collection=, секции plugins: и behavior:.
func parseHeader(pos Pos, m *Model, rest string) error {
	const (
		secHeader = iota
		secPlugins
		secBehavior
	)
	section := secHeader
	toks := splitOptionTokens(rest)
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		switch tok {
		case "plugins:":
			section = secPlugins
			continue
		case "behavior:":
			section = secBehavior
			continue
		}
		k, v := splitOption(tok)
		switch section {
		case secPlugins:
			m.Plugins = append(m.Plugins, Option{Key: k, Value: v})
		case secBehavior:
			if v == "" && !strings.Contains(tok, "=") {
				v = "true"
			}
			m.Behavior = append(m.Behavior, Option{Key: k, Value: v})
		default:
			switch {
			case k == "extends":
				if i+1 >= len(toks) {
					return errorf(pos, "model %s: extends needs a parent name", m.Name)
				}
				i++
				m.Extends = toks[i]
			case k == "collection" && v != "":
				m.Collection = v
			default:
				return errorf(pos, "model %s: unexpected %q", m.Name, tok)
			}
		}
	}
	if m.Embedded && (m.Extends != "" || m.Collection != "" || len(m.Plugins) > 0) {
		return errorf(pos, "embedded %s: only fields are allowed", m.Name)
	}
	return nil
}

// Parse читает описания моделей из r; file попадает в позиции ошибок.
func Parse(r io.Reader, file string) ([]*Model, error) {
	var models []*Model
	var current *Model
	database := ""
	inConstraints := false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pos := Pos{File: file, Line: lineNo}

		if m := databaseRe.FindStringSubmatch(line); m != nil {
			database = m[1]
			current = nil
			continue
		}

		if m := headerRe.FindStringSubmatch(line); m != nil {
			current = &Model{Database: database, Name: m[2], Embedded: m[1] == "embedded", Pos: pos}
			if err := parseHeader(pos, current, m[3]); err != nil {
				return nil, err
			}
			models = append(models, current)
			inConstraints = false
			continue
		}
		if current == nil {
			return nil, errorf(pos, "unexpected %q outside of a model", line)
		}

		// ----- БЛОК CONSTRAINTS -----
		if reConstraintsStart.MatchString(line) {
			if current.Embedded {
				return nil, errorf(pos, "embedded %s: constraints are not allowed", current.Name)
			}
			inConstraints = true
			continue
		}
		if inConstraints {
			if m := reIndexLine.FindStringSubmatch(line); m != nil {
				ix, err := parseIndex(pos, m[1], m[2], m[3])
				if err != nil {
					return nil, err
				}
				current.Indexes = append(current.Indexes, ix)
				continue
			}
			// строка без index(...) закрывает блок
			inConstraints = false
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, errorf(pos, "cannot parse %q", line)
		}
		f, err := parseField(pos, m[1], m[2])
		if err != nil {
			return nil, err
		}
		for _, prev := range current.Fields {
			if prev.Name == f.Name {
				return nil, errorf(pos, "%s: duplicate field %s (first at line %d)", current.Name, f.Name, prev.Pos.Line)
			}
		}
		current.Fields = append(current.Fields, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return models, nil
}

// LoadFile читает один .dsl файл.
func LoadFile(path string) ([]*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file, path)
}

// LoadAll рекурсивно читает все *.dsl из dir в лексикографическом порядке путей.
// Одна и та же модель в одной базе дважды — ошибка.
func LoadAll(dir string) ([]*Model, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".dsl") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var all []*Model
	seen := make(map[string]Pos)
	for _, p := range paths {
		models, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		for _, m := range models {
			key := m.Database + "/" + m.Name
			if first, dup := seen[key]; dup {
				return nil, errorf(m.Pos, "%s already defined at %s", m.Name, first)
			}
			seen[key] = m.Pos
		}
		all = append(all, models...)
	}
	return all, nil
}
