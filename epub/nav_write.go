package epub

import (
	"bytes"
	"io"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// CreateNav synthesizes navigation document with toc navigation made of
// items.
func CreateNav(info BookInfo, file string, items []ListItem, title string, log *zap.Logger) (*NavigationDocument, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(items) == 0 {
		return nil, ErrEmptyToc
	}

	doc := newDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective("DOCTYPE html")

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", nsXHTML)
	html.CreateAttr("xmlns:epub", nsOPS)
	if lang := normalizeLanguage(info.Language(), log); lang != "" {
		html.CreateAttr("xml:lang", lang)
		html.CreateAttr("lang", lang)
	}

	head := html.CreateElement("head")
	head.CreateElement("title").SetText(title)
	html.CreateElement("body")

	return &NavigationDocument{
		File: file,
		Toc: &Navigation{
			Type:   NavTypeToc,
			Attrs:  []etree.Attr{{Key: "id", Value: "toc"}},
			Header: &NavHeader{Tag: "h1", Text: title},
			List:   OrderedList{Items: items},
		},
		doc: doc,
		own: true,
	}, nil
}

// Document returns underlying XHTML document with all nav elements of the
// body replaced by current navigations. Calling it repeatedly produces the
// same result.
func (n *NavigationDocument) Document() *etree.Document {
	root := n.doc.Root()
	if root.SelectAttr("xmlns:epub") == nil {
		root.CreateAttr("xmlns:epub", nsOPS)
	}
	body := root.SelectElement("body")
	if body == nil {
		body = root.CreateElement("body")
	}
	for _, old := range body.FindElements(".//nav") {
		if parent := old.Parent(); parent != nil {
			parent.RemoveChild(old)
		}
	}
	for _, nav := range n.Navs() {
		body.AddChild(navElement(nav))
	}
	if n.own {
		n.doc.Indent(2)
	}
	return n.doc
}

// Bytes serializes document.
func (n *NavigationDocument) Bytes() ([]byte, error) {
	return documentBytes(n.Document())
}

// WriteTo serializes document to w.
func (n *NavigationDocument) WriteTo(w io.Writer) (int64, error) {
	data, err := n.Bytes()
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(w, bytes.NewReader(data))
	return written, err
}

func navElement(nav *Navigation) *etree.Element {
	el := etree.NewElement("nav")
	el.CreateAttr("epub:type", nav.Type)
	for _, a := range nav.Attrs {
		if a.Space != "" {
			el.CreateAttr(a.Space+":"+a.Key, a.Value)
		} else {
			el.CreateAttr(a.Key, a.Value)
		}
	}
	if nav.Hidden {
		el.CreateAttr("hidden", "hidden")
	}
	if nav.Header != nil {
		el.CreateElement(nav.Header.Tag).SetText(nav.Header.Text)
	}
	writeOrderedList(el, nav.List)
	return el
}

func writeOrderedList(parent *etree.Element, list OrderedList) {
	ol := parent.CreateElement("ol")
	for _, item := range list.Items {
		li := ol.CreateElement("li")
		if !item.ID.IsZero() {
			li.CreateAttr("id", item.ID.String())
		}
		switch c := item.Content.(type) {
		case *NavLink:
			a := li.CreateElement("a")
			if c.Type != "" {
				a.CreateAttr("epub:type", c.Type)
			}
			a.CreateAttr("href", c.Href.String())
			a.SetText(c.Label)
		case *NavSpan:
			li.CreateElement("span").SetText(c.Label)
		}
		if item.Children != nil && len(item.Children.Items) > 0 {
			writeOrderedList(li, *item.Children)
		}
	}
}
