package normalizer

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// Record is one raw supplier record after decoding.
type Record map[string]any

// lookup returns the first present, non-nil value among keys. XML
// attributes are matched as "@key" and, after exact matches fail, keys are
// compared case-insensitively.
func (r Record) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
		if v, ok := r["@"+k]; ok && v != nil {
			return v, true
		}
	}
	for _, k := range keys {
		for rk, v := range r {
			if v != nil && strings.EqualFold(strings.TrimPrefix(rk, "@"), k) {
				return v, true
			}
		}
	}
	return nil, false
}

// text returns the first non-empty scalar among keys.
func (r Record) text(keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		if s, ok := scalar(v); ok {
			return s, true
		}
	}
	return "", false
}

// scalar renders a leaf value as trimmed text. XML elements carrying
// attributes expose their text under "#text".
func scalar(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	case map[string]any:
		if inner, ok := t["#text"]; ok {
			return scalar(inner)
		}
		return "", false
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// flattenText joins every scalar found in v, depth-first with sorted keys.
func flattenText(v any) string {
	var parts []string
	var walk func(any)
	walk = func(node any) {
		switch t := node.(type) {
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		default:
			if s, ok := scalar(t); ok {
				parts = append(parts, s)
			}
		}
	}
	walk(v)
	return strings.Join(parts, " ")
}

// unwrapList turns XML-style wrappers ({"image": [...]}) and single objects
// into a plain list.
func unwrapList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		if len(t) == 1 {
			for _, inner := range t {
				switch in := inner.(type) {
				case []any:
					return in
				case map[string]any:
					return []any{in}
				}
			}
		}
		return []any{t}
	}
	return nil
}

// parseDecimal reads supplier numbers such as "12 990", "1.299,50",
// "1,299.50" or "4990 Ft".
func parseDecimal(s string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" || clean == "-" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") == 1 && len(clean)-lastComma-1 <= 2 {
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case strings.Count(clean, ".") > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "ul": true, "ol": true,
	"tr": true, "td": true, "th": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "table": true,
}

// stripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Entities are decoded; script and style contents are dropped.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skip++
			}
			if blockTags[tag] {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if blockTags[tag] {
				b.WriteByte(' ')
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// clampRunes cuts s to at most max runes. max <= 0 disables clamping.
func clampRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		return t.String() != "0"
	case float64:
		return t != 0
	}
	s, ok := scalar(v)
	if !ok {
		return false
	}
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "igen":
		return true
	}
	return false
}
