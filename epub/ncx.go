package epub

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

const ncxVersion = "2005-1"

type (
	// NcxMeta is head/meta entry.
	NcxMeta struct {
		Name    string
		Content string
		Scheme  string
	}

	NcxImage struct {
		Source Locator
	}

	// DocText is docTitle or docAuthor: text with optional image.
	DocText struct {
		ID    string
		Text  string
		Image *NcxImage
	}

	NavLabel struct {
		Text  string
		Image *NcxImage
		Lang  string
		Dir   string
	}

	NcxContent struct {
		ID     Identifier
		Source Locator
	}

	NavPoint struct {
		ID        Identifier
		Class     string
		PlayOrder int
		Labels    []NavLabel
		Content   NcxContent
		Children  []NavPoint
	}

	NavMap struct {
		ID     string
		Labels []NavLabel
		Points []NavPoint
	}

	PageTarget struct {
		ID        Identifier
		Type      string
		Value     string
		Class     string
		PlayOrder int
		Labels    []NavLabel
		Content   NcxContent
	}

	PageList struct {
		ID      string
		Class   string
		Labels  []NavLabel
		Targets []PageTarget
	}

	NavTarget struct {
		ID        Identifier
		Class     string
		Value     string
		PlayOrder int
		Labels    []NavLabel
		Content   NcxContent
	}

	NavList struct {
		ID      string
		Class   string
		Labels  []NavLabel
		Targets []NavTarget
	}

	// NcxDocument is Navigation Control file for XML (EPUB 2 table of
	// contents).
	NcxDocument struct {
		// File is container-root path of the document.
		File      string
		Version   string
		Language  string
		Direction string
		Head      []NcxMeta
		Title     DocText
		Authors   []DocText
		NavMap    NavMap
		PageList  *PageList
		NavLists  []NavList
	}
)

// Resource resolves content source into page resource. File is the NCX
// document path, sources are relative to it.
func (c NcxContent) Resource(reg *Registry, file string) (*PageResource, error) {
	return reg.resolvePage(file, c.Source)
}

// Resource resolves image source.
func (i NcxImage) Resource(reg *Registry, file string) (Resource, error) {
	return reg.resolve(file, i.Source)
}

// Meta returns content of head meta with given name.
func (n *NcxDocument) Meta(name string) (string, bool) {
	for _, m := range n.Head {
		if m.Name == name {
			return m.Content, true
		}
	}
	return "", false
}

// SetMeta replaces content of existing meta or appends new one.
func (n *NcxDocument) SetMeta(name, content string) {
	for i := range n.Head {
		if n.Head[i].Name == name {
			n.Head[i].Content = content
			return
		}
	}
	n.Head = append(n.Head, NcxMeta{Name: name, Content: content})
}

// ReadNcx reads and parses NCX document located at container path file.
func ReadNcx(r io.Reader, file string, log *zap.Logger) (*NcxDocument, error) {
	doc, err := readDocument(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}
	return ParseNcx(doc, file, log)
}

// ParseNcx walks etree DOM of NCX document. All structural requirements of
// the format are enforced, any violation is reported as MalformedError.
// References are not resolved here.
func ParseNcx(doc *etree.Document, file string, log *zap.Logger) (*NcxDocument, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := ncxParser{file: file, log: log}

	root := doc.Root()
	if root == nil || root.Tag != "ncx" {
		return nil, malformed(file, "ncx", "missing root element")
	}

	ncx := &NcxDocument{File: file}
	var ok bool
	if ncx.Version, ok = attrValue(root, "version"); !ok {
		return nil, malformed(file, "ncx", "missing version attribute")
	}
	ncx.Language = root.SelectAttrValue("xml:lang", "")
	ncx.Direction = root.SelectAttrValue("dir", "")

	var haveHead, haveTitle, haveNavMap bool
	for _, child := range root.ChildElements() {
		var err error
		switch child.Tag {
		case "head":
			haveHead = true
			ncx.Head, err = p.head(child)
		case "docTitle":
			haveTitle = true
			ncx.Title, err = p.docText(child)
		case "docAuthor":
			var author DocText
			if author, err = p.docText(child); err == nil {
				ncx.Authors = append(ncx.Authors, author)
			}
		case "navMap":
			haveNavMap = true
			ncx.NavMap, err = p.navMap(child)
		case "pageList":
			var pl PageList
			if pl, err = p.pageList(child); err == nil {
				ncx.PageList = &pl
			}
		case "navList":
			var nl NavList
			if nl, err = p.navList(child); err == nil {
				ncx.NavLists = append(ncx.NavLists, nl)
			}
		default:
			log.Warn("Unexpected tag in ncx, ignoring", zap.String("file", file), zap.String("tag", child.Tag))
		}
		if err != nil {
			return nil, err
		}
	}

	switch {
	case !haveHead:
		return nil, malformed(file, "ncx", "missing head")
	case !haveTitle:
		return nil, malformed(file, "ncx", "missing docTitle")
	case !haveNavMap:
		return nil, malformed(file, "ncx", "missing navMap")
	}
	return ncx, nil
}

type ncxParser struct {
	file string
	log  *zap.Logger
}

func (p *ncxParser) head(el *etree.Element) ([]NcxMeta, error) {
	var metas []NcxMeta
	for _, m := range el.SelectElements("meta") {
		name, ok := attrValue(m, "name")
		if !ok {
			return nil, malformed(p.file, "meta", "missing name attribute")
		}
		content, ok := attrValue(m, "content")
		if !ok {
			return nil, malformed(p.file, "meta", "missing content attribute")
		}
		metas = append(metas, NcxMeta{Name: name, Content: content, Scheme: m.SelectAttrValue("scheme", "")})
	}
	if len(metas) == 0 {
		return nil, malformed(p.file, "head", "must have at least one meta")
	}
	return metas, nil
}

func (p *ncxParser) text(el *etree.Element) (string, error) {
	texts := el.SelectElements("text")
	if len(texts) != 1 {
		return "", malformed(p.file, el.Tag, "must have exactly one text, found %d", len(texts))
	}
	return strings.TrimSpace(textContent(texts[0])), nil
}

func (p *ncxParser) image(el *etree.Element) (*NcxImage, error) {
	img := el.SelectElement("img")
	if img == nil {
		return nil, nil
	}
	src, ok := attrValue(img, "src")
	if !ok {
		return nil, malformed(p.file, "img", "missing src attribute")
	}
	loc, err := ParseLocator(src)
	if err != nil {
		return nil, &MalformedError{File: p.file, Element: "img", Reason: err.Error()}
	}
	return &NcxImage{Source: loc}, nil
}

func (p *ncxParser) docText(el *etree.Element) (DocText, error) {
	t, err := p.text(el)
	if err != nil {
		return DocText{}, err
	}
	img, err := p.image(el)
	if err != nil {
		return DocText{}, err
	}
	return DocText{ID: el.SelectAttrValue("id", ""), Text: t, Image: img}, nil
}

func (p *ncxParser) labels(el *etree.Element, required bool) ([]NavLabel, error) {
	var labels []NavLabel
	for _, l := range el.SelectElements("navLabel") {
		t, err := p.text(l)
		if err != nil {
			return nil, err
		}
		img, err := p.image(l)
		if err != nil {
			return nil, err
		}
		labels = append(labels, NavLabel{
			Text:  t,
			Image: img,
			Lang:  l.SelectAttrValue("xml:lang", ""),
			Dir:   l.SelectAttrValue("dir", ""),
		})
	}
	if required && len(labels) == 0 {
		return nil, malformed(p.file, el.Tag, "must have at least one navLabel (id=%q)", el.SelectAttrValue("id", ""))
	}
	return labels, nil
}

func (p *ncxParser) content(el *etree.Element) (NcxContent, error) {
	contents := el.SelectElements("content")
	if len(contents) != 1 {
		return NcxContent{}, malformed(p.file, el.Tag, "must have exactly one content, found %d (id=%q)", len(contents), el.SelectAttrValue("id", ""))
	}
	src, ok := attrValue(contents[0], "src")
	if !ok {
		return NcxContent{}, malformed(p.file, "content", "missing src attribute")
	}
	loc, err := ParseLocator(src)
	if err != nil {
		return NcxContent{}, &MalformedError{File: p.file, Element: "content", Reason: err.Error()}
	}
	return NcxContent{ID: Identifier(contents[0].SelectAttrValue("id", "")), Source: loc}, nil
}

func (p *ncxParser) identifier(el *etree.Element) (Identifier, error) {
	raw, ok := attrValue(el, "id")
	if !ok {
		return "", malformed(p.file, el.Tag, "missing id attribute")
	}
	id, err := NewIdentifier(raw)
	if err != nil {
		return "", &MalformedError{File: p.file, Element: el.Tag, Reason: err.Error()}
	}
	return id, nil
}

func playOrder(el *etree.Element) int {
	n, _ := strconv.Atoi(el.SelectAttrValue("playOrder", "0"))
	return n
}

func (p *ncxParser) navMap(el *etree.Element) (NavMap, error) {
	nm := NavMap{ID: el.SelectAttrValue("id", "")}
	var err error
	if nm.Labels, err = p.labels(el, false); err != nil {
		return nm, err
	}
	if nm.Points, err = p.navPoints(el); err != nil {
		return nm, err
	}
	if len(nm.Points) == 0 {
		return nm, &MalformedError{File: p.file, Element: "navMap", Reason: ErrEmptyNavMap.Error()}
	}
	return nm, nil
}

func (p *ncxParser) navPoints(el *etree.Element) ([]NavPoint, error) {
	var points []NavPoint
	for _, child := range el.SelectElements("navPoint") {
		np, err := p.navPoint(child)
		if err != nil {
			return nil, err
		}
		points = append(points, np)
	}
	return points, nil
}

func (p *ncxParser) navPoint(el *etree.Element) (NavPoint, error) {
	var (
		np  = NavPoint{Class: el.SelectAttrValue("class", ""), PlayOrder: playOrder(el)}
		err error
	)
	if np.ID, err = p.identifier(el); err != nil {
		return np, err
	}
	if np.Labels, err = p.labels(el, true); err != nil {
		return np, err
	}
	if np.Content, err = p.content(el); err != nil {
		return np, err
	}
	if np.Children, err = p.navPoints(el); err != nil {
		return np, err
	}
	return np, nil
}

func (p *ncxParser) pageList(el *etree.Element) (PageList, error) {
	pl := PageList{ID: el.SelectAttrValue("id", ""), Class: el.SelectAttrValue("class", "")}
	var err error
	if pl.Labels, err = p.labels(el, false); err != nil {
		return pl, err
	}
	for _, child := range el.SelectElements("pageTarget") {
		pt := PageTarget{
			Type:      child.SelectAttrValue("type", "normal"),
			Value:     child.SelectAttrValue("value", ""),
			Class:     child.SelectAttrValue("class", ""),
			PlayOrder: playOrder(child),
		}
		if pt.ID, err = p.identifier(child); err != nil {
			return pl, err
		}
		if pt.Labels, err = p.labels(child, true); err != nil {
			return pl, err
		}
		if pt.Content, err = p.content(child); err != nil {
			return pl, err
		}
		pl.Targets = append(pl.Targets, pt)
	}
	if len(pl.Targets) == 0 {
		return pl, malformed(p.file, "pageList", "must have at least one pageTarget")
	}
	return pl, nil
}

func (p *ncxParser) navList(el *etree.Element) (NavList, error) {
	nl := NavList{ID: el.SelectAttrValue("id", ""), Class: el.SelectAttrValue("class", "")}
	var err error
	if nl.Labels, err = p.labels(el, true); err != nil {
		return nl, err
	}
	for _, child := range el.SelectElements("navTarget") {
		nt := NavTarget{
			Value:     child.SelectAttrValue("value", ""),
			Class:     child.SelectAttrValue("class", ""),
			PlayOrder: playOrder(child),
		}
		if nt.ID, err = p.identifier(child); err != nil {
			return nl, err
		}
		if nt.Labels, err = p.labels(child, true); err != nil {
			return nl, err
		}
		if nt.Content, err = p.content(child); err != nil {
			return nl, err
		}
		nl.Targets = append(nl.Targets, nt)
	}
	if len(nl.Targets) == 0 {
		return nl, malformed(p.file, "navList", "must have at least one navTarget")
	}
	return nl, nil
}

// Bytes serializes document.
func (n *NcxDocument) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := n.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo serializes document to w.
func (n *NcxDocument) WriteTo(w io.Writer) (int64, error) {
	return n.Document().WriteTo(w)
}
