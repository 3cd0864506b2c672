package normalizer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"mime"
	"strings"
)

type Format string

const (
	FormatUnknown Format = ""
	FormatJSON    Format = "json"
	FormatXML     Format = "xml"
	FormatCSV     Format = "csv"
)

// FormatError means a payload could not be classified or decoded as any
// supported format. It aborts the fetch attempt that produced the payload.
type FormatError struct {
	ContentType string
	Reason      string
	Err         error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("unrecognized supplier payload (content-type %q): %s", e.ContentType, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// delimiters are the candidates for delimited text, in tie-break order.
var delimiters = []rune{',', ';', '\t', '|'}

// FromContentType maps a content-type header to a format. Types that do not
// describe the payload (text/plain, octet-stream) yield FormatUnknown.
func FromContentType(contentType string) (Format, rune) {
	if contentType == "" {
		return FormatUnknown, 0
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	switch {
	case strings.Contains(mediaType, "json"):
		return FormatJSON, 0
	case strings.Contains(mediaType, "xml"):
		return FormatXML, 0
	case strings.Contains(mediaType, "tab-separated"):
		return FormatCSV, '\t'
	case strings.Contains(mediaType, "csv"):
		return FormatCSV, 0
	}
	return FormatUnknown, 0
}

// Sniff classifies a payload by its leading characters, or by delimiter
// frequency on its first line for delimited text.
func Sniff(body []byte) (Format, rune) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	if len(trimmed) == 0 {
		return FormatUnknown, 0
	}

	switch trimmed[0] {
	case '{', '[':
		return FormatJSON, 0
	case '<':
		return FormatXML, 0
	}

	if d := sniffDelimiter(trimmed); d != 0 {
		return FormatCSV, d
	}
	return FormatUnknown, 0
}

// Detect prefers the content-type and falls back to sniffing.
func Detect(body []byte, contentType string) (Format, rune) {
	if f, d := FromContentType(contentType); f != FormatUnknown {
		if f == FormatCSV && d == 0 {
			d = sniffDelimiter(bytes.TrimPrefix(body, utf8BOM))
			if d == 0 {
				d = ','
			}
		}
		return f, d
	}
	return Sniff(body)
}

func sniffDelimiter(body []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(body)).ReadString('\n')
	best, bestCount := rune(0), 0
	for _, d := range delimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// productHeader reports whether the first line of delimited text names at
// least one column an id, name or price rule would read. Sniffed text
// without such a column is prose, not a catalog.
func productHeader(body []byte, delimiter rune) bool {
	if delimiter == 0 {
		delimiter = ','
	}
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(body, utf8BOM)))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return false
	}

	rec := make(Record, len(header))
	for _, name := range header {
		if name = strings.TrimSpace(name); name != "" {
			rec[name] = "1"
		}
	}
	for _, rule := range idRules {
		if _, ok := rule(rec); ok {
			return true
		}
	}
	for _, rule := range nameRules {
		if _, ok := rule(rec); ok {
			return true
		}
	}
	for _, rule := range priceRules {
		if _, ok := rule(rec); ok {
			return true
		}
	}
	return false
}
