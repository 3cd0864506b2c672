package normalizer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// decode turns a payload into a generic tree of map[string]any, []any and
// scalar values.
func decode(body []byte, format Format, delimiter rune) (any, error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	switch format {
	case FormatJSON:
		return decodeJSON(body)
	case FormatXML:
		return decodeXML(body)
	case FormatCSV:
		return decodeCSV(body, delimiter)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	if _, ok := tree.(map[string]any); !ok {
		if _, ok := tree.([]any); !ok {
			return nil, fmt.Errorf("json root is neither an object nor an array")
		}
	}
	return tree, nil
}

type xmlNode struct {
	name     string
	attrs    []xml.Attr
	children []*xmlNode
	text     strings.Builder
}

// decodeXML builds a tree where elements without attributes or children
// become their trimmed text, attributes are keyed "@name", mixed text is
// keyed "#text", and repeated child elements become lists.
func decodeXML(body []byte) (any, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false

	var (
		root  *xmlNode
		stack []*xmlNode
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: t.Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("xml document has no root element")
	}
	return map[string]any{root.name: root.value()}, nil
}

func (n *xmlNode) value() any {
	text := strings.TrimSpace(n.text.String())
	if len(n.attrs) == 0 && len(n.children) == 0 {
		return text
	}

	m := make(map[string]any, len(n.attrs)+len(n.children)+1)
	for _, a := range n.attrs {
		m["@"+a.Name.Local] = a.Value
	}

	counts := make(map[string]int, len(n.children))
	for _, c := range n.children {
		counts[c.name]++
	}
	for _, c := range n.children {
		v := c.value()
		if counts[c.name] > 1 {
			list, _ := m[c.name].([]any)
			m[c.name] = append(list, v)
			continue
		}
		m[c.name] = v
	}

	if text != "" {
		m["#text"] = text
	}
	return m
}

func decodeCSV(body []byte, delimiter rune) (any, error) {
	if delimiter == 0 {
		delimiter = ','
	}
	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	rows := make([]any, 0)
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}

		rec := make(map[string]any, len(header))
		for i, name := range header {
			if name == "" || i >= len(fields) {
				continue
			}
			rec[name] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
