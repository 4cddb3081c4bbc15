package dom

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Parse decodes r to UTF-8 using the content type and any <meta charset>
// hint, then parses it. Scripts and styles are dropped; they never carry feed
// items and only inflate text scans.
func Parse(r io.Reader, contentType string) (*html.Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dom: read: %w", err)
	}

	enc, _, _ := charset.DetermineEncoding(data, contentType)
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("dom: decode: %w", err)
		}
		utf8data = data
	}

	doc, err := html.Parse(bytes.NewReader(utf8data))
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	goquery.NewDocumentFromNode(doc).Find("script,noscript,style").Remove()
	return doc, nil
}

// ParseString is Parse for in-memory markup that is already UTF-8.
func ParseString(s string) (*html.Node, error) {
	return Parse(bytes.NewReader([]byte(s)), "text/html; charset=utf-8")
}
