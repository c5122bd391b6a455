package epub

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// BookInfo is what NCX and navigation documents need to know about the book.
// Package implements it.
type BookInfo interface {
	Identifier() string
	Title() string
	Authors() []string
	Language() string
}

// CreateNcx synthesizes NCX document for the book with given nav points.
func CreateNcx(info BookInfo, file string, points []NavPoint, log *zap.Logger) (*NcxDocument, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(points) == 0 {
		return nil, ErrEmptyNavMap
	}

	uid := info.Identifier()
	if uid == "" {
		uid = "urn:uuid:" + uuid.NewString()
		log.Warn("Book has no unique identifier, generating one for NCX", zap.String("dtb:uid", uid))
	}

	ncx := &NcxDocument{
		File:     file,
		Version:  ncxVersion,
		Language: normalizeLanguage(info.Language(), log),
		Head: []NcxMeta{
			{Name: "dtb:uid", Content: uid},
			{Name: "dtb:depth", Content: strconv.Itoa(navPointsDepth(points))},
			{Name: "dtb:totalPageCount", Content: "0"},
			{Name: "dtb:maxPageNumber", Content: "0"},
		},
		NavMap: NavMap{Points: points},
	}
	ncx.setBookInfo(info)
	return ncx, nil
}

func (n *NcxDocument) setBookInfo(info BookInfo) {
	n.Title = DocText{ID: n.Title.ID, Text: info.Title(), Image: n.Title.Image}
	authors := info.Authors()
	n.Authors = make([]DocText, 0, len(authors))
	for _, a := range authors {
		n.Authors = append(n.Authors, DocText{Text: a})
	}
}

func normalizeLanguage(in string, log *zap.Logger) string {
	if in == "" {
		return ""
	}
	tag, err := language.Parse(in)
	if err != nil {
		log.Warn("Bad book language, ignoring", zap.String("language", in), zap.Error(err))
		return ""
	}
	return tag.String()
}

func navPointsDepth(points []NavPoint) int {
	depth := 0
	for _, p := range points {
		if d := 1 + navPointsDepth(p.Children); d > depth {
			depth = d
		}
	}
	return depth
}

// playOrders hands out play order numbers. Targets pointing to the same
// content share number as format requires.
type playOrders struct {
	next  int
	bySrc map[string]int
}

func (po *playOrders) get(src Locator) int {
	if n, ok := po.bySrc[src.String()]; ok {
		return n
	}
	po.next++
	po.bySrc[src.String()] = po.next
	return po.next
}

// Document serializes NCX. Play order is assigned in document order,
// dtb:depth reflects current navMap.
func (n *NcxDocument) Document() *etree.Document {
	doc := newDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	order := &playOrders{bySrc: make(map[string]int)}

	root := doc.CreateElement("ncx")
	root.CreateAttr("xmlns", nsNCX)
	version := n.Version
	if version == "" {
		version = ncxVersion
	}
	root.CreateAttr("version", version)
	if n.Language != "" {
		root.CreateAttr("xml:lang", n.Language)
	}
	if n.Direction != "" {
		root.CreateAttr("dir", n.Direction)
	}

	head := root.CreateElement("head")
	for _, m := range n.Head {
		content := m.Content
		if m.Name == "dtb:depth" {
			content = strconv.Itoa(navPointsDepth(n.NavMap.Points))
		}
		meta := head.CreateElement("meta")
		meta.CreateAttr("name", m.Name)
		meta.CreateAttr("content", content)
		if m.Scheme != "" {
			meta.CreateAttr("scheme", m.Scheme)
		}
	}

	writeDocText(root.CreateElement("docTitle"), n.Title)
	for _, a := range n.Authors {
		writeDocText(root.CreateElement("docAuthor"), a)
	}

	navMap := root.CreateElement("navMap")
	if n.NavMap.ID != "" {
		navMap.CreateAttr("id", n.NavMap.ID)
	}
	writeNavLabels(navMap, n.NavMap.Labels)
	writeNavPoints(navMap, n.NavMap.Points, order)

	if pl := n.PageList; pl != nil {
		el := root.CreateElement("pageList")
		writeOptionalAttr(el, "id", pl.ID)
		writeOptionalAttr(el, "class", pl.Class)
		writeNavLabels(el, pl.Labels)
		for _, t := range pl.Targets {
			pt := el.CreateElement("pageTarget")
			pt.CreateAttr("id", t.ID.String())
			writeOptionalAttr(pt, "value", t.Value)
			pt.CreateAttr("type", t.Type)
			writeOptionalAttr(pt, "class", t.Class)
			pt.CreateAttr("playOrder", strconv.Itoa(order.get(t.Content.Source)))
			writeNavLabels(pt, t.Labels)
			writeNcxContent(pt, t.Content)
		}
	}

	for _, nl := range n.NavLists {
		el := root.CreateElement("navList")
		writeOptionalAttr(el, "id", nl.ID)
		writeOptionalAttr(el, "class", nl.Class)
		writeNavLabels(el, nl.Labels)
		for _, t := range nl.Targets {
			nt := el.CreateElement("navTarget")
			nt.CreateAttr("id", t.ID.String())
			writeOptionalAttr(nt, "value", t.Value)
			writeOptionalAttr(nt, "class", t.Class)
			nt.CreateAttr("playOrder", strconv.Itoa(order.get(t.Content.Source)))
			writeNavLabels(nt, t.Labels)
			writeNcxContent(nt, t.Content)
		}
	}

	doc.Indent(2)
	return doc
}

func writeNavPoints(parent *etree.Element, points []NavPoint, order *playOrders) {
	for _, p := range points {
		el := parent.CreateElement("navPoint")
		el.CreateAttr("id", p.ID.String())
		writeOptionalAttr(el, "class", p.Class)
		el.CreateAttr("playOrder", strconv.Itoa(order.get(p.Content.Source)))
		writeNavLabels(el, p.Labels)
		writeNcxContent(el, p.Content)
		writeNavPoints(el, p.Children, order)
	}
}

func writeDocText(el *etree.Element, t DocText) {
	writeOptionalAttr(el, "id", t.ID)
	el.CreateElement("text").SetText(t.Text)
	if t.Image != nil {
		el.CreateElement("img").CreateAttr("src", t.Image.Source.String())
	}
}

func writeNavLabels(parent *etree.Element, labels []NavLabel) {
	for _, l := range labels {
		el := parent.CreateElement("navLabel")
		writeOptionalAttr(el, "xml:lang", l.Lang)
		writeOptionalAttr(el, "dir", l.Dir)
		el.CreateElement("text").SetText(l.Text)
		if l.Image != nil {
			el.CreateElement("img").CreateAttr("src", l.Image.Source.String())
		}
	}
}

func writeNcxContent(parent *etree.Element, c NcxContent) {
	el := parent.CreateElement("content")
	if !c.ID.IsZero() {
		el.CreateAttr("id", c.ID.String())
	}
	el.CreateAttr("src", c.Source.String())
}

func writeOptionalAttr(el *etree.Element, key, value string) {
	if value != "" {
		el.CreateAttr(key, value)
	}
}
