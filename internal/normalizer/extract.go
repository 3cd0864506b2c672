package normalizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"catalogsync/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Each canonical field is resolved by an ordered list of rules; the first
// rule reporting ok wins. Rules are pure functions of the raw record.
type (
	textRule     func(Record) (string, bool)
	decimalRule  func(Record) (decimal.Decimal, bool)
	categoryRule func(Record) (leaf, path string, ok bool)
	listRule     func(Record) ([]string, bool)
	intRule      func(Record) (int, bool)
)

func field(keys ...string) textRule {
	return func(r Record) (string, bool) {
		return r.text(keys...)
	}
}

var idRules = []textRule{
	field("id", "product_id", "productId", "ProductID"),
	field("ref", "reference", "external_id"),
	field("sku", "code", "item_code", "article_number"),
}

var nameRules = []textRule{
	field("name", "title", "product_name", "productName"),
}

var linkRules = []textRule{
	field("link", "url", "product_url", "productUrl", "permalink"),
}

var shortDescriptionRules = []textRule{
	field("short_description", "shortDescription", "short_desc", "summary"),
}

var longDescriptionRules = []textRule{
	field("description", "long_description", "longDescription", "body_html", "desc"),
}

func numeric(positiveOnly bool, keys ...string) decimalRule {
	return func(r Record) (decimal.Decimal, bool) {
		for _, k := range keys {
			s, ok := r.text(k)
			if !ok {
				continue
			}
			d, ok := parseDecimal(s)
			if !ok {
				continue
			}
			if positiveOnly && !d.IsPositive() {
				continue
			}
			return d, true
		}
		return decimal.Zero, false
	}
}

// nestedPrice reads {"price": {"gross": ...}} style objects.
func nestedPrice(r Record) (decimal.Decimal, bool) {
	v, ok := r.lookup("price", "prices")
	if !ok {
		return decimal.Zero, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return decimal.Zero, false
	}
	return numeric(false, "gross", "value", "amount", "net")(Record(m))
}

var priceRules = []decimalRule{
	numeric(true, "sale_price", "salePrice", "special_price", "discount_price", "action_price"),
	numeric(false, "price", "regular_price", "gross_price", "price_gross"),
	nestedPrice,
	numeric(false, "net_price", "unit_price", "amount", "cost"),
}

var categorySeparator = regexp.MustCompile(`\s*(\||>|»)\s*`)

// normalizePath canonicalizes any supported separator to "|", trimming and
// dropping empty segments.
func normalizePath(raw string) string {
	parts := categorySeparator.Split(raw, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, models.CategoryPathSeparator)
}

func fromPath(raw string) (string, string, bool) {
	path := normalizePath(raw)
	if path == "" {
		return "", "", false
	}
	if !strings.Contains(path, models.CategoryPathSeparator) {
		return path, "", true
	}
	return models.LeafOf(path), path, true
}

// structuredCategory reads category objects, preferring the one carrying a
// "base" marker when a list is given.
func structuredCategory(r Record) (string, string, bool) {
	v, ok := r.lookup("categories", "category")
	if !ok {
		return "", "", false
	}
	var nodes []Record
	for _, item := range unwrapList(v) {
		switch t := item.(type) {
		case map[string]any:
			nodes = append(nodes, Record(t))
		default:
			if s, ok := scalar(t); ok {
				nodes = append(nodes, Record{"name": s})
			}
		}
	}
	if len(nodes) == 0 {
		return "", "", false
	}

	chosen := nodes[0]
	for _, n := range nodes {
		if b, ok := n.lookup("base", "is_base", "primary", "main"); ok && truthy(b) {
			chosen = n
			break
		}
	}

	if path, ok := chosen.text("path", "category_path", "full_path", "fullPath"); ok {
		if leaf, p, ok := fromPath(path); ok {
			return leaf, p, true
		}
	}
	if name, ok := chosen.text("name", "title", "#text"); ok {
		return fromPath(name)
	}
	return "", "", false
}

func flatCategory(r Record) (string, string, bool) {
	s, ok := r.text("category_path", "categoryPath", "category", "category_name", "categoryName", "product_type")
	if !ok {
		return "", "", false
	}
	return fromPath(s)
}

var categoryRules = []categoryRule{
	structuredCategory,
	flatCategory,
}

func structuredImages(r Record) ([]string, bool) {
	v, ok := r.lookup("images", "pictures", "gallery", "media")
	if !ok {
		return nil, false
	}
	if _, isText := scalar(v); isText {
		return nil, false
	}
	var urls []string
	for _, item := range unwrapList(v) {
		switch t := item.(type) {
		case map[string]any:
			if u, ok := Record(t).text("url", "src", "href", "link", "#text"); ok {
				urls = append(urls, u)
			}
		default:
			if u, ok := scalar(t); ok {
				urls = append(urls, u)
			}
		}
	}
	return urls, len(urls) > 0
}

var imageSplitter = regexp.MustCompile(`[\s,;|]+`)

func delimitedImages(r Record) ([]string, bool) {
	s, ok := r.text("images", "image_urls", "imageUrls", "image", "image_url", "picture", "img")
	if !ok {
		return nil, false
	}
	var urls []string
	for _, part := range imageSplitter.Split(s, -1) {
		if strings.HasPrefix(part, "http://") || strings.HasPrefix(part, "https://") || strings.HasPrefix(part, "//") {
			urls = append(urls, part)
		}
	}
	return urls, len(urls) > 0
}

var imageRules = []listRule{
	structuredImages,
	delimitedImages,
}

func warehouseStock(r Record) (int, bool) {
	v, ok := r.lookup("stocks", "warehouses", "stock", "inventory")
	if !ok {
		return 0, false
	}
	if _, isText := scalar(v); isText {
		return 0, false
	}
	total, found := 0, false
	for _, item := range unwrapList(v) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s, ok := Record(m).text("qty", "quantity", "stock", "amount", "available", "#text")
		if !ok {
			continue
		}
		if d, ok := parseDecimal(s); ok {
			total += int(d.IntPart())
			found = true
		}
	}
	return total, found
}

func numericStock(r Record) (int, bool) {
	d, ok := numeric(false, "stock_qty", "stockQty", "stock", "quantity", "qty", "inventory_quantity", "available_quantity")(r)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}

var stockRules = []intRule{
	warehouseStock,
	numericStock,
}

// params flattens attribute structures into "name: value" pairs.
func params(r Record) string {
	v, ok := r.lookup("params", "parameters", "attributes", "properties", "specs")
	if !ok {
		return ""
	}
	if s, ok := scalar(v); ok {
		return stripHTML(s)
	}

	var pairs []string
	switch t := v.(type) {
	case map[string]any:
		if list := unwrapList(t); len(t) == 1 && len(list) > 0 {
			if _, isMap := list[0].(map[string]any); isMap {
				pairs = namedPairs(list)
				break
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := flattenText(t[k]); s != "" {
				pairs = append(pairs, fmt.Sprintf("%s: %s", k, s))
			}
		}
	case []any:
		pairs = namedPairs(t)
	}
	return strings.Join(pairs, "; ")
}

func namedPairs(list []any) []string {
	var pairs []string
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			if s, ok := scalar(item); ok {
				pairs = append(pairs, s)
			}
			continue
		}
		rec := Record(m)
		name, _ := rec.text("name", "key", "label", "title")
		value, _ := rec.text("value", "val", "#text")
		switch {
		case name != "" && value != "":
			pairs = append(pairs, name+": "+value)
		case value != "":
			pairs = append(pairs, value)
		case name != "":
			pairs = append(pairs, name)
		}
	}
	return pairs
}

// generatedID derives a stable id for records that carry none, so that
// re-syncing the same record converges on one row.
func generatedID(r Record, name, link string) string {
	seed := link
	if seed == "" {
		seed = name
	}
	if seed == "" {
		raw, _ := json.Marshal(r)
		seed = string(raw)
	}
	return "gen-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}

func firstText(r Record, rules []textRule) (string, bool) {
	for _, rule := range rules {
		if v, ok := rule(r); ok {
			return v, true
		}
	}
	return "", false
}
