package epub

import (
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

type (
	Creator struct {
		ID     string
		Name   string
		Role   string
		FileAs string
	}

	DCIdentifier struct {
		ID     string
		Scheme string
		Value  string
	}

	Metadata struct {
		Titles      []string
		Creators    []Creator
		Identifiers []DCIdentifier
		Languages   []string

		// everything else is kept verbatim
		extra []*etree.Element
	}

	ManifestItem struct {
		ID         Identifier
		Href       string
		MediaType  string
		Properties []string
		Fallback   string
	}

	ItemRef struct {
		IDRef      Identifier
		Linear     bool
		Properties []string
	}

	Spine struct {
		Toc                      Identifier
		PageProgressionDirection string
		ItemRefs                 []ItemRef
	}

	GuideReference struct {
		Type  string
		Title string
		Href  string
	}

	// Package is OPF package document.
	Package struct {
		File             string
		Version          string
		UniqueIdentifier string
		Prefix           string
		Lang             string
		Direction        string

		Metadata Metadata
		Manifest []ManifestItem
		Spine    Spine
		Guide    []GuideReference

		namespaces []etree.Attr
	}
)

// ReadPackage parses package document located at container path file.
func ReadPackage(r io.Reader, file string, log *zap.Logger) (*Package, error) {
	if log == nil {
		log = zap.NewNop()
	}
	doc, err := readDocument(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}
	root := doc.Root()
	if root.Tag != "package" {
		return nil, malformed(file, root.Tag, "unexpected root element")
	}

	pkg := &Package{
		File:             file,
		Version:          root.SelectAttrValue("version", ""),
		UniqueIdentifier: root.SelectAttrValue("unique-identifier", ""),
		Prefix:           root.SelectAttrValue("prefix", ""),
		Lang:             root.SelectAttrValue("xml:lang", ""),
		Direction:        root.SelectAttrValue("dir", ""),
	}
	if pkg.Version == "" {
		return nil, malformed(file, "package", "missing version attribute")
	}
	pkg.collectNamespaces(root)

	var haveManifest, haveSpine bool
	for _, child := range root.ChildElements() {
		switch child.Tag {
		case "metadata":
			pkg.collectNamespaces(child)
			pkg.Metadata = parseMetadata(child, log)
		case "manifest":
			haveManifest = true
			if err := pkg.parseManifest(child); err != nil {
				return nil, err
			}
		case "spine":
			haveSpine = true
			if err := pkg.parseSpine(child); err != nil {
				return nil, err
			}
		case "guide":
			for _, ref := range child.SelectElements("reference") {
				pkg.Guide = append(pkg.Guide, GuideReference{
					Type:  ref.SelectAttrValue("type", ""),
					Title: ref.SelectAttrValue("title", ""),
					Href:  ref.SelectAttrValue("href", ""),
				})
			}
		default:
			log.Debug("Unexpected tag in package, ignoring", zap.String("file", file), zap.String("tag", child.Tag))
		}
	}
	if !haveManifest {
		return nil, malformed(file, "package", "missing manifest")
	}
	if !haveSpine {
		return nil, malformed(file, "package", "missing spine")
	}
	return pkg, nil
}

func (p *Package) collectNamespaces(el *etree.Element) {
	for _, a := range el.Attr {
		if a.Space != "xmlns" || a.Key == "dc" || a.Key == "opf" {
			continue
		}
		if !slices.ContainsFunc(p.namespaces, func(x etree.Attr) bool { return x.Key == a.Key }) {
			p.namespaces = append(p.namespaces, etree.Attr{Space: a.Space, Key: a.Key, Value: a.Value})
		}
	}
}

func parseMetadata(el *etree.Element, log *zap.Logger) Metadata {
	var md Metadata
	for _, child := range el.ChildElements() {
		if child.NamespaceURI() != nsDC && child.Space != "dc" {
			md.extra = append(md.extra, child.Copy())
			continue
		}
		value := strings.TrimSpace(child.Text())
		switch child.Tag {
		case "title":
			md.Titles = append(md.Titles, value)
		case "creator":
			md.Creators = append(md.Creators, Creator{
				ID:     child.SelectAttrValue("id", ""),
				Name:   value,
				Role:   firstAttr(child, "opf:role", "role"),
				FileAs: firstAttr(child, "opf:file-as", "file-as"),
			})
		case "identifier":
			md.Identifiers = append(md.Identifiers, DCIdentifier{
				ID:     child.SelectAttrValue("id", ""),
				Scheme: firstAttr(child, "opf:scheme", "scheme"),
				Value:  value,
			})
		case "language":
			md.Languages = append(md.Languages, value)
		default:
			log.Debug("Preserving metadata element", zap.String("tag", child.FullTag()))
			md.extra = append(md.extra, child.Copy())
		}
	}
	return md
}

func firstAttr(el *etree.Element, keys ...string) string {
	for _, k := range keys {
		if v, ok := attrValue(el, k); ok {
			return v
		}
	}
	return ""
}

func (p *Package) parseManifest(el *etree.Element) error {
	for _, item := range el.SelectElements("item") {
		id, err := NewIdentifier(item.SelectAttrValue("id", ""))
		if err != nil {
			return &MalformedError{File: p.File, Element: "item", Reason: err.Error()}
		}
		href := item.SelectAttrValue("href", "")
		if href == "" {
			return malformed(p.File, "item", "missing href attribute for %q", id)
		}
		p.Manifest = append(p.Manifest, ManifestItem{
			ID:         id,
			Href:       href,
			MediaType:  item.SelectAttrValue("media-type", ""),
			Properties: strings.Fields(item.SelectAttrValue("properties", "")),
			Fallback:   item.SelectAttrValue("fallback", ""),
		})
	}
	return nil
}

func (p *Package) parseSpine(el *etree.Element) error {
	p.Spine.Toc = Identifier(el.SelectAttrValue("toc", ""))
	p.Spine.PageProgressionDirection = el.SelectAttrValue("page-progression-direction", "")
	for _, ref := range el.SelectElements("itemref") {
		idref := ref.SelectAttrValue("idref", "")
		if idref == "" {
			return malformed(p.File, "itemref", "missing idref attribute")
		}
		p.Spine.ItemRefs = append(p.Spine.ItemRefs, ItemRef{
			IDRef:      Identifier(idref),
			Linear:     ref.SelectAttrValue("linear", "yes") != "no",
			Properties: strings.Fields(ref.SelectAttrValue("properties", "")),
		})
	}
	return nil
}

// IsEPUB3 reports package version 3.x.
func (p *Package) IsEPUB3() bool {
	return strings.HasPrefix(p.Version, "3")
}

// Dir is container directory of the package document, empty for the
// container root.
func (p *Package) Dir() string {
	if d := path.Dir(p.File); d != "." {
		return d
	}
	return ""
}

// Identifier returns book unique identifier.
func (p *Package) Identifier() string {
	for _, id := range p.Metadata.Identifiers {
		if id.ID != "" && id.ID == p.UniqueIdentifier {
			return id.Value
		}
	}
	if len(p.Metadata.Identifiers) > 0 {
		return p.Metadata.Identifiers[0].Value
	}
	return ""
}

// Title returns main title.
func (p *Package) Title() string {
	if len(p.Metadata.Titles) > 0 {
		return p.Metadata.Titles[0]
	}
	return ""
}

// Authors returns names of creators with author role (or without role).
func (p *Package) Authors() []string {
	var names []string
	for _, c := range p.Metadata.Creators {
		if (c.Role == "" || c.Role == "aut") && c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}

// Language returns primary language.
func (p *Package) Language() string {
	if len(p.Metadata.Languages) > 0 {
		return p.Metadata.Languages[0]
	}
	return p.Lang
}

// Item returns manifest item by id.
func (p *Package) Item(id Identifier) (*ManifestItem, bool) {
	for i := range p.Manifest {
		if p.Manifest[i].ID == id {
			return &p.Manifest[i], true
		}
	}
	return nil, false
}

// ItemByFile returns manifest item for container path.
func (p *Package) ItemByFile(file string) (*ManifestItem, bool) {
	for i := range p.Manifest {
		if p.ItemFile(&p.Manifest[i]) == file {
			return &p.Manifest[i], true
		}
	}
	return nil, false
}

// NavItem returns manifest item with "nav" property.
func (p *Package) NavItem() (*ManifestItem, bool) {
	for i := range p.Manifest {
		if slices.Contains(p.Manifest[i].Properties, "nav") {
			return &p.Manifest[i], true
		}
	}
	return nil, false
}

// NcxItem returns manifest item referenced by spine toc attribute or, failing
// that, first item with NCX media type.
func (p *Package) NcxItem() (*ManifestItem, bool) {
	if !p.Spine.Toc.IsZero() {
		if item, ok := p.Item(p.Spine.Toc); ok {
			return item, true
		}
	}
	for i := range p.Manifest {
		if p.Manifest[i].MediaType == mediaTypeNCX {
			return &p.Manifest[i], true
		}
	}
	return nil, false
}

// AddItem appends manifest item, id and href must not be in use.
func (p *Package) AddItem(item ManifestItem) error {
	for _, it := range p.Manifest {
		if it.ID == item.ID {
			return fmt.Errorf("manifest item %q already exists", item.ID)
		}
		if it.Href == item.Href {
			return fmt.Errorf("manifest already has item for %q", item.Href)
		}
	}
	p.Manifest = append(p.Manifest, item)
	return nil
}

// ItemFile returns container-root path of manifest item.
func (p *Package) ItemFile(item *ManifestItem) string {
	loc, err := ParseLocator(item.Href)
	if err != nil {
		return resolvePath(p.File, item.Href)
	}
	return resolvePath(p.File, loc.Path())
}

// Document serializes package document.
func (p *Package) Document() *etree.Document {
	doc := newDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", nsOPF)
	for _, ns := range p.namespaces {
		pkg.CreateAttr(ns.Space+":"+ns.Key, ns.Value)
	}
	pkg.CreateAttr("version", p.Version)
	if p.UniqueIdentifier != "" {
		pkg.CreateAttr("unique-identifier", p.UniqueIdentifier)
	}
	if p.Prefix != "" {
		pkg.CreateAttr("prefix", p.Prefix)
	}
	if p.Lang != "" {
		pkg.CreateAttr("xml:lang", p.Lang)
	}
	if p.Direction != "" {
		pkg.CreateAttr("dir", p.Direction)
	}

	metadata := pkg.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", nsDC)
	metadata.CreateAttr("xmlns:opf", nsOPF)
	for _, t := range p.Metadata.Titles {
		metadata.CreateElement("dc:title").SetText(t)
	}
	for _, c := range p.Metadata.Creators {
		el := metadata.CreateElement("dc:creator")
		if c.ID != "" {
			el.CreateAttr("id", c.ID)
		}
		if c.Role != "" && !p.IsEPUB3() {
			el.CreateAttr("opf:role", c.Role)
		}
		if c.FileAs != "" && !p.IsEPUB3() {
			el.CreateAttr("opf:file-as", c.FileAs)
		}
		el.SetText(c.Name)
	}
	for _, id := range p.Metadata.Identifiers {
		el := metadata.CreateElement("dc:identifier")
		if id.ID != "" {
			el.CreateAttr("id", id.ID)
		}
		if id.Scheme != "" && !p.IsEPUB3() {
			el.CreateAttr("opf:scheme", id.Scheme)
		}
		el.SetText(id.Value)
	}
	for _, l := range p.Metadata.Languages {
		metadata.CreateElement("dc:language").SetText(l)
	}
	for _, el := range p.Metadata.extra {
		metadata.AddChild(el.Copy())
	}

	manifest := pkg.CreateElement("manifest")
	for _, it := range p.Manifest {
		item := manifest.CreateElement("item")
		item.CreateAttr("id", it.ID.String())
		item.CreateAttr("href", it.Href)
		item.CreateAttr("media-type", it.MediaType)
		if len(it.Properties) > 0 {
			item.CreateAttr("properties", strings.Join(it.Properties, " "))
		}
		if it.Fallback != "" {
			item.CreateAttr("fallback", it.Fallback)
		}
	}

	spine := pkg.CreateElement("spine")
	if !p.Spine.Toc.IsZero() {
		spine.CreateAttr("toc", p.Spine.Toc.String())
	}
	if p.Spine.PageProgressionDirection != "" {
		spine.CreateAttr("page-progression-direction", p.Spine.PageProgressionDirection)
	}
	for _, ref := range p.Spine.ItemRefs {
		itemref := spine.CreateElement("itemref")
		itemref.CreateAttr("idref", ref.IDRef.String())
		if !ref.Linear {
			itemref.CreateAttr("linear", "no")
		}
		if len(ref.Properties) > 0 {
			itemref.CreateAttr("properties", strings.Join(ref.Properties, " "))
		}
	}

	if len(p.Guide) > 0 {
		guide := pkg.CreateElement("guide")
		for _, g := range p.Guide {
			ref := guide.CreateElement("reference")
			ref.CreateAttr("type", g.Type)
			if g.Title != "" {
				ref.CreateAttr("title", g.Title)
			}
			ref.CreateAttr("href", g.Href)
		}
	}

	doc.Indent(2)
	return doc
}
