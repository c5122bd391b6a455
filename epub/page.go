package epub

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PageResource is a content document: XHTML or HTML page. Page tree is parsed
// on first use with HTML parser, which tolerates anything found in the wild.
type PageResource struct {
	resourceBase

	tree *html.Node
}

// NewPageResource creates XHTML page with data in memory.
func NewPageResource(id Identifier, href, file string, data []byte) *PageResource {
	return &PageResource{resourceBase: resourceBase{
		id:        id,
		href:      href,
		file:      file,
		mediaType: mediaTypeXHTML,
		data:      data,
		loaded:    true,
	}}
}

// IsXHTML reports whether page must stay well-formed XML.
func (p *PageResource) IsXHTML() bool {
	return p.mediaType != mediaTypeHTML
}

func (p *PageResource) SetData(data []byte) {
	p.resourceBase.SetData(data)
	p.tree = nil
}

func (p *PageResource) parse() (*html.Node, error) {
	if p.tree != nil {
		return p.tree, nil
	}
	data, err := p.Data()
	if err != nil {
		return nil, err
	}
	tree, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to parse page %s: %w", p.file, err)
	}
	p.tree = tree
	return tree, nil
}

// Title returns content of head title element.
func (p *PageResource) Title() (string, error) {
	tree, err := p.parse()
	if err != nil {
		return "", err
	}
	if n := findNode(tree, func(n *html.Node) bool { return n.DataAtom == atom.Title }); n != nil {
		return strings.Join(strings.Fields(nodeText(n)), " "), nil
	}
	return "", nil
}

// HasAnchor reports whether page has element with given id (or legacy named
// anchor).
func (p *PageResource) HasAnchor(fragment string) (bool, error) {
	if fragment == "" {
		return true, nil
	}
	tree, err := p.parse()
	if err != nil {
		return false, err
	}
	n := findNode(tree, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		if v, ok := nodeAttr(n, "id"); ok && v == fragment {
			return true
		}
		v, ok := nodeAttr(n, "name")
		return ok && n.DataAtom == atom.A && v == fragment
	})
	return n != nil, nil
}

// Stylesheets lists hrefs of linked stylesheets in document order.
func (p *PageResource) Stylesheets() ([]string, error) {
	tree, err := p.parse()
	if err != nil {
		return nil, err
	}
	var hrefs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Link {
			rel, _ := nodeAttr(n, "rel")
			if href, ok := nodeAttr(n, "href"); ok && hasToken(strings.ToLower(rel), "stylesheet") {
				hrefs = append(hrefs, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(tree)
	return hrefs, nil
}

// AddStylesheet links stylesheet href (relative to the page) at the end of
// page head. Returns false when page already links it.
func (p *PageResource) AddStylesheet(href string) (bool, error) {
	existing, err := p.Stylesheets()
	if err != nil {
		return false, err
	}
	for _, h := range existing {
		if h == href {
			return false, nil
		}
	}

	var data []byte
	if p.IsXHTML() {
		data, err = p.addStylesheetXML(href)
	} else {
		data, err = p.addStylesheetHTML(href)
	}
	if err != nil {
		return false, fmt.Errorf("unable to add stylesheet to %s: %w", p.file, err)
	}
	p.SetData(data)
	return true, nil
}

func (p *PageResource) addStylesheetXML(href string) ([]byte, error) {
	data, err := p.Data()
	if err != nil {
		return nil, err
	}
	doc := newDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}
	head := root.SelectElement("head")
	if head == nil {
		head = etree.NewElement("head")
		root.InsertChildAt(0, head)
	}
	link := head.CreateElement("link")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("type", mediaTypeCSS)
	link.CreateAttr("href", href)
	return documentBytes(doc)
}

func (p *PageResource) addStylesheetHTML(href string) ([]byte, error) {
	tree, err := p.parse()
	if err != nil {
		return nil, err
	}
	head := findNode(tree, func(n *html.Node) bool { return n.DataAtom == atom.Head })
	if head == nil {
		return nil, fmt.Errorf("page has no head")
	}
	head.AppendChild(&html.Node{
		Type:     html.ElementNode,
		Data:     "link",
		DataAtom: atom.Link,
		Attr: []html.Attribute{
			{Key: "rel", Val: "stylesheet"},
			{Key: "type", Val: mediaTypeCSS},
			{Key: "href", Val: href},
		},
	})
	var buf bytes.Buffer
	if err := html.Render(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func nodeAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}
