package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

const (
	nsNCX       = "http://www.daisy.org/z3986/2005/ncx/"
	nsXHTML     = "http://www.w3.org/1999/xhtml"
	nsOPS       = "http://www.idpf.org/2007/ops"
	nsOPF       = "http://www.idpf.org/2007/opf"
	nsDC        = "http://purl.org/dc/elements/1.1/"
	nsContainer = "urn:oasis:names:tc:opendocument:xmlns:container"
)

// newDocument prepares etree document with settings we use for all book
// documents. Books in the wild often do not follow XML standard to the letter,
// so reading is permissive and knows HTML named character references.
func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.WriteSettings = etree.WriteSettings{
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Entity:        xml.HTMLEntity,
		ValidateInput: false,
		Permissive:    true,
	}
	return doc
}

func readDocument(r io.Reader) (*etree.Document, error) {
	doc := newDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("document has no root element")
	}
	return doc, nil
}

func documentBytes(doc *etree.Document) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// textContent returns all character data under element, whitespace collapsed.
func textContent(el *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, t := range e.Child {
			switch v := t.(type) {
			case *etree.CharData:
				b.WriteString(v.Data)
			case *etree.Element:
				walk(v)
			}
		}
	}
	walk(el)
	return strings.Join(strings.Fields(b.String()), " ")
}

// attrValue returns value of attribute key (which may be prefixed) and
// whether it is present.
func attrValue(el *etree.Element, key string) (string, bool) {
	if a := el.SelectAttr(key); a != nil {
		return a.Value, true
	}
	return "", false
}

// epubType returns epub:type attribute regardless of prefix used for OPS
// namespace.
func epubType(el *etree.Element) (string, bool) {
	for i := range el.Attr {
		a := &el.Attr[i]
		if a.Key != "type" {
			continue
		}
		if a.Space == "epub" || (a.Space != "" && a.NamespaceURI() == nsOPS) {
			return a.Value, true
		}
	}
	return "", false
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(list) {
		if t == token {
			return true
		}
	}
	return false
}
