package epub

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// Known navigation types.
const (
	NavTypeToc       = "toc"
	NavTypePageList  = "page-list"
	NavTypeLandmarks = "landmarks"
)

type (
	// NavContent is either *NavLink or *NavSpan.
	NavContent interface {
		Text() string
		navContent()
	}

	NavLink struct {
		Href  Locator
		Label string
		// Type is epub:type of the link, used by landmarks.
		Type string
	}

	NavSpan struct {
		Label string
	}

	ListItem struct {
		ID       Identifier
		Content  NavContent
		Children *OrderedList
	}

	OrderedList struct {
		Items []ListItem
	}

	NavHeader struct {
		Tag  string
		Text string
	}

	Navigation struct {
		Type   string
		Hidden bool
		// Attrs holds any other attributes of nav element verbatim.
		Attrs  []etree.Attr
		Header *NavHeader
		List   OrderedList
	}

	// NavigationDocument is EPUB 3 navigation document. The page itself is
	// kept, only nav elements are regenerated on write.
	NavigationDocument struct {
		File      string
		Toc       *Navigation
		PageList  *Navigation
		Landmarks *Navigation
		Custom    []*Navigation

		doc   *etree.Document
		diags Diagnostics
		// own is set for synthesized documents, those are safe to indent
		own bool
	}
)

func (l *NavLink) Text() string { return l.Label }
func (*NavLink) navContent()    {}

func (s *NavSpan) Text() string { return s.Label }
func (*NavSpan) navContent()    {}

// Resource resolves link href into page resource. File is navigation document
// path, hrefs are relative to it.
func (l *NavLink) Resource(reg *Registry, file string) (*PageResource, error) {
	return reg.resolvePage(file, l.Href)
}

// Diagnostics returns anomalies skipped while parsing.
func (n *NavigationDocument) Diagnostics() Diagnostics {
	return n.diags
}

// Navs returns all navigations in the order they are written.
func (n *NavigationDocument) Navs() []*Navigation {
	var navs []*Navigation
	for _, nav := range []*Navigation{n.Toc, n.PageList, n.Landmarks} {
		if nav != nil {
			navs = append(navs, nav)
		}
	}
	return append(navs, n.Custom...)
}

// ReadNav reads and parses navigation document located at container path
// file.
func ReadNav(r io.Reader, file string, opts Options, log *zap.Logger) (*NavigationDocument, error) {
	doc, err := readDocument(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}
	return ParseNav(doc, file, opts, log)
}

// ParseNav extracts navigations from XHTML document. Navigation with toc type
// is required. Items which cannot be understood are skipped and reported as
// diagnostics, in strict mode they fail the whole document.
func ParseNav(doc *etree.Document, file string, opts Options, log *zap.Logger) (*NavigationDocument, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &navParser{file: file, log: log}

	root := doc.Root()
	if root == nil || root.Tag != "html" {
		return nil, malformed(file, "html", "missing root element")
	}
	body := root.SelectElement("body")
	if body == nil {
		return nil, malformed(file, "html", "missing body")
	}

	nd := &NavigationDocument{File: file, doc: doc}
	for _, el := range body.FindElements(".//nav") {
		typ, ok := epubType(el)
		if !ok {
			p.anomaly("nav", "missing epub:type attribute")
			continue
		}
		nav, err := p.navigation(el, typ)
		if err != nil {
			return nil, err
		}
		switch {
		case hasToken(typ, NavTypeToc):
			if nd.Toc != nil {
				p.anomaly("nav", "duplicate toc navigation")
				continue
			}
			nd.Toc = nav
		case hasToken(typ, NavTypePageList):
			if nd.PageList != nil {
				p.anomaly("nav", "duplicate page-list navigation")
				continue
			}
			nd.PageList = nav
		case hasToken(typ, NavTypeLandmarks):
			if nd.Landmarks != nil {
				p.anomaly("nav", "duplicate landmarks navigation")
				continue
			}
			nd.Landmarks = nav
		default:
			nd.Custom = append(nd.Custom, nav)
		}
	}

	if nd.Toc == nil {
		return nil, malformed(file, "nav", "missing navigation with epub:type toc")
	}
	nd.diags = p.diags
	if opts.Strict {
		if err := p.diags.Err(); err != nil {
			return nil, err
		}
	}
	return nd, nil
}

type navParser struct {
	file  string
	log   *zap.Logger
	diags Diagnostics
}

func (p *navParser) anomaly(element, format string, args ...any) {
	p.diags.report(p.log, Diagnostic{File: p.file, Element: element, Message: fmt.Sprintf(format, args...)})
}

func (p *navParser) navigation(el *etree.Element, typ string) (*Navigation, error) {
	ol := el.SelectElement("ol")
	if ol == nil {
		return nil, malformed(p.file, "nav", "navigation %q has no ol", typ)
	}

	nav := &Navigation{Type: typ}
	for _, a := range el.Attr {
		switch {
		case a.Key == "type" && (a.Space == "epub" || (a.Space != "" && a.NamespaceURI() == nsOPS)):
		case a.Space == "" && a.Key == "hidden":
			nav.Hidden = true
		default:
			nav.Attrs = append(nav.Attrs, etree.Attr{Space: a.Space, Key: a.Key, Value: a.Value})
		}
	}
	for _, child := range el.ChildElements() {
		if isHeading(child.Tag) {
			nav.Header = &NavHeader{Tag: child.Tag, Text: textContent(child)}
			break
		}
	}
	nav.List = p.list(ol)
	return nav, nil
}

func isHeading(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}

func (p *navParser) list(ol *etree.Element) OrderedList {
	var list OrderedList
	for _, li := range ol.SelectElements("li") {
		if item, ok := p.item(li); ok {
			list.Items = append(list.Items, item)
		}
	}
	if len(list.Items) == 0 {
		p.anomaly("ol", "list has no usable items")
	}
	return list
}

func (p *navParser) item(li *etree.Element) (ListItem, bool) {
	var item ListItem

	if raw := li.SelectAttrValue("id", ""); raw != "" {
		id, err := NewIdentifier(raw)
		if err != nil {
			p.anomaly("li", "ignoring bad id: %v", err)
		} else {
			item.ID = id
		}
	}

	children := li.ChildElements()
	if len(children) == 0 {
		p.anomaly("li", "list item has no content")
		return item, false
	}

	first := children[0]
	switch first.Tag {
	case "a":
		href, ok := attrValue(first, "href")
		if !ok {
			p.anomaly("a", "link %q has no href", textContent(first))
			return item, false
		}
		loc, err := ParseLocator(href)
		if err != nil {
			p.anomaly("a", "%v", err)
			return item, false
		}
		link := &NavLink{Href: loc, Label: textContent(first)}
		link.Type, _ = epubType(first)
		item.Content = link
	case "span":
		item.Content = &NavSpan{Label: textContent(first)}
	default:
		p.anomaly("li", "unexpected first child <%s>", first.Tag)
		return item, false
	}

	if ol := li.SelectElement("ol"); ol != nil {
		if list := p.list(ol); len(list.Items) > 0 {
			item.Children = &list
		}
	}
	return item, true
}

// Title of the navigation: header text when present.
func (nav *Navigation) Title() string {
	if nav.Header == nil {
		return ""
	}
	return strings.TrimSpace(nav.Header.Text)
}
