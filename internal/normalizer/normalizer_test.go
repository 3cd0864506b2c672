package normalizer

import (
	"errors"
	"strings"
	"testing"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const placeholder = "https://img.example/placeholder.png"

func newTestNormalizer() *Normalizer {
	return New(Options{
		PriceScale:        1,
		MaxImages:         3,
		DescriptionMaxLen: 40,
		PlaceholderImage:  placeholder,
	}, logger.NewNop())
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		format      Format
		delimiter   rune
	}{
		{"json by content type", `{"a":1}`, "application/json; charset=utf-8", FormatJSON, 0},
		{"xml by content type", `<a/>`, "text/xml", FormatXML, 0},
		{"csv by content type", "id;name\n1;x", "text/csv", FormatCSV, ';'},
		{"json sniffed", "\xEF\xBB\xBF  [1]", "text/plain", FormatJSON, 0},
		{"xml sniffed", "<?xml version=\"1.0\"?><r/>", "", FormatXML, 0},
		{"tab sniffed", "id\tname\tprice\n1\tx\t2", "application/octet-stream", FormatCSV, '\t'},
		{"unknown", "Rate limit exceeded", "", FormatUnknown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, d := Detect([]byte(tt.body), tt.contentType)
			assert.Equal(t, tt.format, f)
			assert.Equal(t, tt.delimiter, d)
		})
	}
}

func TestNormalizeJSON(t *testing.T) {
	body := `{"products":[
		{"id": 101, "name": "Kanapé <b>Luxe</b>", "price": "129 990", "sale_price": "99 990",
		 "categories": [{"name":"Bútor","path":"Bútor"},{"name":"Kanapé","path":"Bútor > Kanapé","base":true}],
		 "images": [{"url":"https://img/1.jpg"},{"url":"https://img/2.jpg"},{"url":"https://img/1.jpg"}],
		 "short_description": "<p>Soft &amp; comfy</p>",
		 "stocks": [{"warehouse":"A","qty":2},{"warehouse":"B","qty":"3"}],
		 "params": {"color": "grey", "seats": 3},
		 "link": "https://shop/p/101"},
		{"sku": "X-2", "title": "Lamp", "price": "0", "net_price": "10", "category": "Lighting|Lamps", "stock": 0}
	]}`

	res, err := newTestNormalizer().Normalize([]byte(body), "application/json")
	require.NoError(t, err)
	require.Len(t, res.Products, 2)
	assert.Equal(t, FormatJSON, res.Format)
	assert.False(t, res.Fallback)

	p := res.Products[0]
	assert.Equal(t, "101", p.ID)
	assert.Equal(t, "Kanapé Luxe", p.Name)
	assert.Equal(t, int64(99990), p.Price)
	assert.Equal(t, "Kanapé", p.Category)
	assert.Equal(t, "Bútor|Kanapé", p.CategoryPath)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, p.Images)
	assert.Equal(t, "Soft & comfy", p.Description)
	require.NotNil(t, p.StockQty)
	assert.Equal(t, 5, *p.StockQty)
	assert.True(t, p.InStock)
	assert.Equal(t, "color: grey; seats: 3", p.ParamString)
	assert.True(t, p.ShowInAI)

	lamp := res.Products[1]
	assert.Equal(t, "X-2", lamp.ID)
	assert.Equal(t, int64(0), lamp.Price, "explicit zero normal price wins over fallback fields")
	assert.Equal(t, "Lamps", lamp.Category)
	assert.Equal(t, "Lighting|Lamps", lamp.CategoryPath)
	require.NotNil(t, lamp.StockQty)
	assert.False(t, lamp.InStock)
	assert.Equal(t, []string{placeholder}, lamp.Images)
}

func TestNormalizeXML(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<response>
  <products>
    <product id="7">
      <name>Asztal</name>
      <price>45.000,50</price>
      <category>Bútor|Asztal</category>
      <images><image>https://img/a.jpg</image><image>https://img/b.jpg</image></images>
      <description><![CDATA[<div>Solid oak</div>]]></description>
    </product>
  </products>
</response>`

	res, err := newTestNormalizer().Normalize([]byte(body), "application/xml")
	require.NoError(t, err)
	require.Len(t, res.Products, 1)

	p := res.Products[0]
	assert.Equal(t, "7", p.ID)
	assert.Equal(t, "Asztal", p.Name)
	assert.Equal(t, int64(45001), p.Price)
	assert.Equal(t, "Asztal", p.Category)
	assert.Equal(t, []string{"https://img/a.jpg", "https://img/b.jpg"}, p.Images)
	assert.Equal(t, "Solid oak", p.Description)
	assert.Nil(t, p.StockQty)
	assert.True(t, p.InStock, "unknown stock defaults to in stock")
}

func TestNormalizeCSV(t *testing.T) {
	body := "id;name;price;category;images;stock\n" +
		"c1;Chair;1 500;Bútor > Szék;https://img/c1.jpg|https://img/c2.jpg;4\n" +
		"\n" +
		"c2;Stool;;Bútor > Szék;;\n"

	res, err := newTestNormalizer().Normalize([]byte(body), "")
	require.NoError(t, err)
	require.Len(t, res.Products, 2)
	assert.Equal(t, FormatCSV, res.Format)

	assert.Equal(t, int64(1500), res.Products[0].Price)
	assert.Equal(t, "Szék", res.Products[0].Category)
	assert.Equal(t, "Bútor|Szék", res.Products[0].CategoryPath)
	assert.Equal(t, []string{"https://img/c1.jpg", "https://img/c2.jpg"}, res.Products[0].Images)

	assert.Equal(t, int64(0), res.Products[1].Price)
	assert.Equal(t, 1, res.Degraded, "missing price degrades but keeps the record")
}

func TestNormalizeFallbackAndErrors(t *testing.T) {
	t.Run("depth first fallback", func(t *testing.T) {
		body := `{"meta":{"page":1},"payload":{"rows":[{"id":"a","name":"A","price":1}]}}`
		res, err := newTestNormalizer().Normalize([]byte(body), "application/json")
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		require.Len(t, res.Products, 1)
		assert.Equal(t, "a", res.Products[0].ID)
	})

	t.Run("embedded error without products", func(t *testing.T) {
		res, err := newTestNormalizer().Normalize([]byte(`{"error":"Too many requests"}`), "application/json")
		require.NoError(t, err)
		assert.Equal(t, "Too many requests", res.EmbeddedError)
		assert.Empty(t, res.Products)
	})

	t.Run("unrecognized payload", func(t *testing.T) {
		_, err := newTestNormalizer().Normalize([]byte("Service temporarily unavailable"), "text/html")
		var fe *FormatError
		assert.True(t, errors.As(err, &fe))
	})

	t.Run("prose with a comma is not a catalog", func(t *testing.T) {
		_, err := newTestNormalizer().Normalize([]byte("Internal error, please try again later"), "text/plain")
		var fe *FormatError
		require.True(t, errors.As(err, &fe))
		assert.Contains(t, fe.Reason, "no product columns")
	})

	t.Run("declared csv keeps an empty page", func(t *testing.T) {
		res, err := newTestNormalizer().Normalize([]byte("id,name,price\n"), "text/csv")
		require.NoError(t, err)
		assert.Empty(t, res.Products)
	})

	t.Run("sniffed csv with product columns", func(t *testing.T) {
		res, err := newTestNormalizer().Normalize([]byte("Title|Price\nLamp|10\n"), "text/plain")
		require.NoError(t, err)
		require.Len(t, res.Products, 1)
		assert.Equal(t, "Lamp", res.Products[0].Name)
	})

	t.Run("lying content type falls back to sniffing", func(t *testing.T) {
		res, err := newTestNormalizer().Normalize([]byte(`{"products":[{"id":"1","name":"x","price":1}]}`), "text/xml")
		require.NoError(t, err)
		assert.Equal(t, FormatJSON, res.Format)
		assert.Len(t, res.Products, 1)
	})
}

func TestMapRecordDefaults(t *testing.T) {
	n := newTestNormalizer()

	p, degraded := n.MapRecord(Record{"description": strings.Repeat("word ", 20)})
	assert.True(t, degraded)
	assert.True(t, strings.HasPrefix(p.ID, "gen-"))
	assert.Equal(t, models.DefaultCategory, p.Category)
	assert.Equal(t, int64(0), p.Price)
	assert.LessOrEqual(t, len([]rune(p.Description)), 40)

	again, _ := n.MapRecord(Record{"description": strings.Repeat("word ", 20)})
	assert.Equal(t, p.ID, again.ID, "generated ids are stable")
}

func TestCategoryPathLeaf(t *testing.T) {
	for _, raw := range []string{"A|B|C", "A > B > C", " A | B |C "} {
		leaf, path, ok := fromPath(raw)
		require.True(t, ok)
		assert.Equal(t, "A|B|C", path)
		assert.Equal(t, models.LeafOf(path), leaf)
		assert.Equal(t, "C", leaf)
	}
}

func TestParseDecimal(t *testing.T) {
	tests := map[string]string{
		"12 990":    "12990",
		"1.299,50":  "1299.5",
		"1,299.50":  "1299.5",
		"4990 Ft":   "4990",
		"19,9":      "19.9",
		"1.000.000": "1000000",
	}
	for in, want := range tests {
		d, ok := parseDecimal(in)
		require.True(t, ok, in)
		assert.Equal(t, want, d.String(), in)
	}

	_, ok := parseDecimal("n/a")
	assert.False(t, ok)
}
