// Package normalizer turns raw supplier payloads (JSON, XML or delimited
// text) into canonical product records.
package normalizer

import (
	"strings"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/models"

	"github.com/shopspring/decimal"
)

type Options struct {
	// PriceScale multiplies parsed prices before rounding to an integer.
	PriceScale        int64
	MaxImages         int
	DescriptionMaxLen int
	PlaceholderImage  string
}

type Normalizer struct {
	opts   Options
	logger *logger.Logger
}

func New(opts Options, logger *logger.Logger) *Normalizer {
	if opts.PriceScale <= 0 {
		opts.PriceScale = 1
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = 10
	}
	return &Normalizer{opts: opts, logger: logger}
}

// Result is one decoded page.
type Result struct {
	Format   Format
	Products []models.Product
	// Degraded counts records that fell back to defaults for required fields.
	Degraded int
	// Fallback is set when the product list was found by the generic
	// array search instead of a known container shape.
	Fallback bool
	// EmbeddedError carries the text of a payload-level error field.
	EmbeddedError string
}

// Normalize detects the payload format, locates the product collection and
// maps every record. It fails only with *FormatError.
func (n *Normalizer) Normalize(body []byte, contentType string) (*Result, error) {
	format, delimiter := Detect(body, contentType)
	if format == FormatUnknown {
		return nil, &FormatError{ContentType: contentType, Reason: "payload matches no supported format"}
	}

	tree, err := decode(body, format, delimiter)
	if err != nil {
		// The content-type may lie; give sniffing one chance.
		sniffed, d := Sniff(body)
		if sniffed == FormatUnknown || sniffed == format {
			return nil, &FormatError{ContentType: contentType, Reason: "decode failed", Err: err}
		}
		tree, err = decode(body, sniffed, d)
		if err != nil {
			return nil, &FormatError{ContentType: contentType, Reason: "decode failed", Err: err}
		}
		format, delimiter = sniffed, d
	}

	if format == FormatCSV {
		if declared, _ := FromContentType(contentType); declared != FormatCSV && !productHeader(body, delimiter) {
			return nil, &FormatError{ContentType: contentType, Reason: "delimited text has no product columns"}
		}
	}

	result := &Result{Format: format}
	if msg, ok := embeddedError(tree); ok {
		result.EmbeddedError = msg
	}

	items, fallback, ok := locate(tree)
	if !ok {
		if result.EmbeddedError != "" {
			return result, nil
		}
		return nil, &FormatError{ContentType: contentType, Reason: "no product collection found"}
	}
	if fallback {
		result.Fallback = true
		metrics.NormalizerFallbacks.Inc()
		n.logger.Warn("normalizer fallback: product list located by depth-first array search (format %s)", format)
	}

	result.Products = make([]models.Product, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			result.Degraded++
			continue
		}
		p, degraded := n.MapRecord(Record(m))
		if degraded {
			result.Degraded++
			n.logger.Debug("record %s degraded to defaults", p.ID)
		}
		result.Products = append(result.Products, p)
	}
	return result, nil
}

// MapRecord maps one raw record. Missing required fields fall back to
// defaults and set degraded; mapping never fails.
func (n *Normalizer) MapRecord(r Record) (models.Product, bool) {
	degraded := false

	name, ok := firstText(r, nameRules)
	if !ok {
		degraded = true
	}
	name = stripHTML(name)
	link, _ := firstText(r, linkRules)

	id, ok := firstText(r, idRules)
	if !ok {
		id = generatedID(r, name, link)
		degraded = true
	}
	if name == "" {
		name = id
	}

	price, ok := n.price(r)
	if !ok {
		degraded = true
	}

	leaf, path := models.DefaultCategory, ""
	if l, p, ok := n.category(r); ok {
		leaf, path = l, p
	} else {
		degraded = true
	}

	stockQty := n.stock(r)
	inStock := true
	if stockQty != nil {
		inStock = *stockQty > 0
	}

	return models.Product{
		ID:           id,
		Name:         name,
		Price:        price,
		Category:     leaf,
		CategoryPath: path,
		Images:       n.images(r),
		Description:  n.description(r),
		ParamString:  params(r),
		Link:         link,
		InStock:      inStock,
		StockQty:     stockQty,
		ShowInAI:     true,
	}, degraded
}

func (n *Normalizer) price(r Record) (int64, bool) {
	for _, rule := range priceRules {
		d, ok := rule(r)
		if !ok {
			continue
		}
		v := d.Mul(decimal.NewFromInt(n.opts.PriceScale)).Round(0).IntPart()
		if v < 0 {
			v = 0
		}
		return v, true
	}
	return 0, false
}

func (n *Normalizer) category(r Record) (string, string, bool) {
	for _, rule := range categoryRules {
		if leaf, path, ok := rule(r); ok && leaf != "" {
			return leaf, path, true
		}
	}
	return "", "", false
}

func (n *Normalizer) images(r Record) []string {
	var urls []string
	for _, rule := range imageRules {
		if list, ok := rule(r); ok {
			urls = list
			break
		}
	}

	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, n.opts.MaxImages)
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) == n.opts.MaxImages {
			break
		}
	}
	if len(out) == 0 && n.opts.PlaceholderImage != "" {
		out = append(out, n.opts.PlaceholderImage)
	}
	return out
}

func (n *Normalizer) description(r Record) string {
	for _, rules := range [][]textRule{shortDescriptionRules, longDescriptionRules} {
		if s, ok := firstText(r, rules); ok {
			if text := stripHTML(s); text != "" {
				return clampRunes(text, n.opts.DescriptionMaxLen)
			}
		}
	}
	return ""
}

func (n *Normalizer) stock(r Record) *int {
	for _, rule := range stockRules {
		if qty, ok := rule(r); ok {
			return &qty
		}
	}
	return nil
}
