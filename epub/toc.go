package epub

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"epubkit/utils/debug"
)

// EntryID addresses entry inside its table of contents.
type EntryID int

// NoEntry is parent of top level entries.
const NoEntry EntryID = -1

// Entry is a single table of contents item. Resource is nil for label-only
// entries, those can only be expressed in navigation document.
type Entry struct {
	Identifier Identifier
	Title      string
	Resource   *PageResource
	Fragment   string
}

type entryNode struct {
	Entry
	parent   EntryID
	children []EntryID
	detached bool
}

// TableOfContents is the book hierarchical table of contents. Entries are
// kept in an arena and addressed by EntryID, both NCX and navigation
// document are regenerated from it.
type TableOfContents struct {
	info BookInfo
	reg  *Registry
	opts Options
	log  *zap.Logger

	nodes []entryNode
	roots []EntryID
	ids   *IdentifierSet

	ncx     *NcxDocument
	nav     *NavigationDocument
	diags   Diagnostics
	checked Diagnostics
}

func newTableOfContents(info BookInfo, reg *Registry, opts Options, log *zap.Logger) *TableOfContents {
	if log == nil {
		log = zap.NewNop()
	}
	return &TableOfContents{
		info: info,
		reg:  reg,
		opts: opts.withDefaults(),
		log:  log.Named("toc"),
		ids:  NewIdentifierSet(),
	}
}

// NewTableOfContents returns empty table of contents. Documents are
// synthesized on first write.
func NewTableOfContents(info BookInfo, reg *Registry, opts Options, log *zap.Logger) *TableOfContents {
	return newTableOfContents(info, reg, opts, log)
}

// FromNcx builds entry tree out of NCX navMap and synthesizes navigation
// document for it. Navigation document is placed next to the package
// document under Options.NavFile name.
func FromNcx(info BookInfo, reg *Registry, ncx *NcxDocument, opts Options, log *zap.Logger) (*TableOfContents, error) {
	t := newTableOfContents(info, reg, opts, log)
	t.ncx = ncx

	codec := ncxCodec{file: ncx.File, reg: reg}
	reserveForest[NavPoint](t, ncx.NavMap.Points, codec)
	if err := decodeForest[NavPoint](t, NoEntry, ncx.NavMap.Points, codec); err != nil {
		return nil, fmt.Errorf("unable to build table of contents from %s: %w", ncx.File, err)
	}
	if len(t.roots) == 0 {
		return nil, ErrEmptyToc
	}

	if err := t.diags.Err(); err != nil && t.opts.Strict {
		return nil, err
	}

	navFile := t.documentFile(t.opts.NavFile)
	nav, err := CreateNav(info, navFile, encodeForest[ListItem](t, t.roots, navCodec{file: navFile}), t.opts.NavTitle, t.log)
	if err != nil {
		return nil, err
	}
	t.nav = nav
	return t, nil
}

// FromNav builds entry tree out of toc navigation and synthesizes NCX for
// it. When no entry refers to a page NCX cannot be made and book is left
// without one.
func FromNav(info BookInfo, reg *Registry, nav *NavigationDocument, opts Options, log *zap.Logger) (*TableOfContents, error) {
	t := newTableOfContents(info, reg, opts, log)
	t.nav = nav
	t.diags = append(t.diags, nav.Diagnostics()...)

	if nav.Toc == nil {
		return nil, fmt.Errorf("%s: %w", nav.File, ErrEmptyToc)
	}
	codec := navCodec{file: nav.File, reg: reg}
	reserveForest[ListItem](t, nav.Toc.List.Items, codec)
	if err := decodeForest[ListItem](t, NoEntry, nav.Toc.List.Items, codec); err != nil {
		return nil, fmt.Errorf("unable to build table of contents from %s: %w", nav.File, err)
	}
	if len(t.roots) == 0 {
		return nil, ErrEmptyToc
	}
	if err := t.diags.Err(); err != nil && t.opts.Strict {
		return nil, err
	}

	ncxFile := t.documentFile(t.opts.NcxFile)
	ncx, err := CreateNcx(info, ncxFile, encodeForest[NavPoint](t, t.roots, ncxCodec{file: ncxFile}), t.log)
	switch {
	case errors.Is(err, ErrEmptyNavMap):
		t.log.Warn("No table of contents entry refers to a page, NCX will not be written", zap.String("nav", nav.File))
	case err != nil:
		return nil, err
	default:
		t.ncx = ncx
	}
	return t, nil
}

// Ncx returns NCX document, nil when book has none.
func (t *TableOfContents) Ncx() *NcxDocument {
	return t.ncx
}

// Nav returns navigation document.
func (t *TableOfContents) Nav() *NavigationDocument {
	return t.nav
}

// AttachNcx replaces synthesized NCX with one read from the book, so
// attributes not represented by entries survive the next write.
func (t *TableOfContents) AttachNcx(ncx *NcxDocument) {
	t.ncx = ncx
}

// AttachNav replaces synthesized navigation document with one read from the
// book.
func (t *TableOfContents) AttachNav(nav *NavigationDocument) {
	t.nav = nav
	t.diags = append(t.diags, nav.Diagnostics()...)
}

// Diagnostics returns anomalies collected while building and checking the
// table of contents. Only results of the last Check are included.
func (t *TableOfContents) Diagnostics() Diagnostics {
	return append(slices.Clip(t.diags), t.checked...)
}

// documentFile returns container path for synthesized document named name
// relative to package directory. Resource of the book which is not a table of
// contents document is never overwritten, numeric suffix is added instead.
func (t *TableOfContents) documentFile(name string) string {
	file := path.Join(t.reg.Dir(), name)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	for n := 2; ; n++ {
		res, err := t.reg.ByFile(file)
		if err != nil || isTocResource(res) {
			return file
		}
		file = base + "_" + strconv.Itoa(n) + ext
	}
}

func isTocResource(res Resource) bool {
	return res.MediaType() == mediaTypeNCX || res.HasProperty("nav")
}

// relocateNcx and relocateNav make synthesized documents replace ones the
// book already has but which could not be read.
func (t *TableOfContents) relocateNcx(file string) {
	if t.ncx != nil {
		t.ncx.File = file
	}
}

func (t *TableOfContents) relocateNav(file string) {
	if t.nav != nil {
		t.nav.File = file
	}
}

// claim assigns unique identifier to a new entry. Identifiers found in
// documents are kept unless they clash, missing ones are derived from title
// depending on policy.
func (t *TableOfContents) claim(id Identifier, title, file, element string) (Identifier, error) {
	if id.IsZero() {
		if !t.opts.Identifiers.Derived() {
			return "", fmt.Errorf("%w: %q", ErrMissingIdentifier, title)
		}
		return t.ids.Claim(DeriveIdentifier(title)), nil
	}
	if t.ids.ClaimExact(id) {
		return id, nil
	}
	if t.opts.Strict {
		return "", fmt.Errorf("%s: <%s> %w %q", file, element, ErrDuplicateIdentifier, id)
	}
	renamed := t.ids.Claim(id)
	t.diags.report(t.log, Diagnostic{File: file, Element: element, Message: fmt.Sprintf("duplicate identifier %q renamed to %q", id, renamed)})
	return renamed, nil
}

func (t *TableOfContents) attach(parent EntryID, index int, e Entry) EntryID {
	id := EntryID(len(t.nodes))
	t.nodes = append(t.nodes, entryNode{Entry: e, parent: parent})
	list := &t.roots
	if parent != NoEntry {
		list = &t.nodes[parent].children
	}
	if index < 0 || index >= len(*list) {
		*list = append(*list, id)
	} else {
		*list = slices.Insert(*list, index, id)
	}
	return id
}

func (t *TableOfContents) valid(id EntryID) bool {
	return id >= 0 && int(id) < len(t.nodes) && !t.nodes[id].detached
}

func (t *TableOfContents) childList(parent EntryID) (*[]EntryID, error) {
	if parent == NoEntry {
		return &t.roots, nil
	}
	if !t.valid(parent) {
		return nil, fmt.Errorf("entry %d: %w", parent, ErrDetachedEntry)
	}
	return &t.nodes[parent].children, nil
}

// Len returns number of entries in the tree.
func (t *TableOfContents) Len() int {
	n := 0
	for i := range t.nodes {
		if !t.nodes[i].detached {
			n++
		}
	}
	return n
}

// Roots returns top level entries in order.
func (t *TableOfContents) Roots() []EntryID {
	return append([]EntryID(nil), t.roots...)
}

// Entry returns entry for modification, nil when id is not in the tree.
// Pointer stays valid until next insertion. Identifier must not be changed
// through it, use Rename.
func (t *TableOfContents) Entry(id EntryID) *Entry {
	if !t.valid(id) {
		return nil
	}
	return &t.nodes[id].Entry
}

// Parent returns parent of the entry, NoEntry for top level ones.
func (t *TableOfContents) Parent(id EntryID) EntryID {
	if !t.valid(id) {
		return NoEntry
	}
	return t.nodes[id].parent
}

// Children returns children of the entry in order. For NoEntry top level
// entries are returned.
func (t *TableOfContents) Children(id EntryID) []EntryID {
	list, err := t.childList(id)
	if err != nil {
		return nil
	}
	return append([]EntryID(nil), (*list)...)
}

// Find returns entry with given identifier.
func (t *TableOfContents) Find(ident Identifier) (EntryID, bool) {
	for i := range t.nodes {
		if !t.nodes[i].detached && t.nodes[i].Identifier == ident {
			return EntryID(i), true
		}
	}
	return NoEntry, false
}

// Rename changes entry identifier. When identifier is used by another entry
// numeric suffix is added, unless identifiers are required to come from
// documents, in which case ErrDuplicateIdentifier is returned.
func (t *TableOfContents) Rename(id EntryID, ident Identifier) (Identifier, error) {
	if !t.valid(id) {
		return "", fmt.Errorf("entry %d: %w", id, ErrDetachedEntry)
	}
	if _, err := NewIdentifier(string(ident)); err != nil {
		return "", err
	}
	n := &t.nodes[id]
	if n.Identifier == ident {
		return ident, nil
	}
	if t.ids.Has(ident) && !t.opts.Identifiers.Derived() {
		return "", fmt.Errorf("%w: %q", ErrDuplicateIdentifier, ident)
	}
	t.ids.Release(n.Identifier)
	n.Identifier = t.ids.Claim(ident)
	return n.Identifier, nil
}

// AddRoot appends top level entry.
func (t *TableOfContents) AddRoot(e Entry) (EntryID, error) {
	return t.InsertChild(NoEntry, -1, e)
}

// AddChild appends entry to children of parent.
func (t *TableOfContents) AddChild(parent EntryID, e Entry) (EntryID, error) {
	return t.InsertChild(parent, -1, e)
}

// InsertChild inserts entry at index among children of parent, negative or
// out of range index appends. Missing identifier is derived from title,
// identifier already used in the tree gets numeric suffix.
func (t *TableOfContents) InsertChild(parent EntryID, index int, e Entry) (EntryID, error) {
	if _, err := t.childList(parent); err != nil {
		return NoEntry, err
	}
	if !e.Identifier.IsZero() {
		if _, err := NewIdentifier(string(e.Identifier)); err != nil {
			return NoEntry, err
		}
	}
	ident := e.Identifier
	if ident.IsZero() {
		ident = DeriveIdentifier(e.Title)
	}
	e.Identifier = t.ids.Claim(ident)
	return t.attach(parent, index, e), nil
}

// RemoveChild detaches child (with its subtree) from parent.
func (t *TableOfContents) RemoveChild(parent, child EntryID) error {
	list, err := t.childList(parent)
	if err != nil {
		return err
	}
	for i, id := range *list {
		if id == child {
			return t.RemoveChildAt(parent, i)
		}
	}
	return fmt.Errorf("entry %d is not a child of %d: %w", child, parent, ErrDetachedEntry)
}

// RemoveChildAt detaches child at index from parent.
func (t *TableOfContents) RemoveChildAt(parent EntryID, index int) error {
	list, err := t.childList(parent)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(*list) {
		return fmt.Errorf("child index %d out of range [0, %d)", index, len(*list))
	}
	t.detach((*list)[index])
	*list = append((*list)[:index], (*list)[index+1:]...)
	return nil
}

// RemoveChildren detaches all children of parent.
func (t *TableOfContents) RemoveChildren(parent EntryID) error {
	list, err := t.childList(parent)
	if err != nil {
		return err
	}
	for _, id := range *list {
		t.detach(id)
	}
	*list = nil
	return nil
}

// RemoveRoot detaches top level entry.
func (t *TableOfContents) RemoveRoot(id EntryID) error {
	return t.RemoveChild(NoEntry, id)
}

func (t *TableOfContents) detach(id EntryID) {
	n := &t.nodes[id]
	n.detached = true
	t.ids.Release(n.Identifier)
	for _, c := range n.children {
		t.detach(c)
	}
}

// Walk visits entries depth first in document order. Returning false from fn
// skips children of the entry.
func (t *TableOfContents) Walk(fn func(id EntryID, depth int) bool) {
	t.walk(t.roots, 0, fn)
}

func (t *TableOfContents) walk(ids []EntryID, depth int, fn func(EntryID, int) bool) {
	for _, id := range ids {
		if fn(id, depth) {
			t.walk(t.nodes[id].children, depth+1, fn)
		}
	}
}

// UpdateNcx regenerates NCX nav points and book information from entries.
// Head, page list and nav lists of existing document are kept.
func (t *TableOfContents) UpdateNcx() error {
	if len(t.roots) == 0 {
		return ErrEmptyToc
	}
	file := ""
	if t.ncx != nil {
		file = t.ncx.File
	} else {
		file = t.documentFile(t.opts.NcxFile)
	}
	points := encodeForest[NavPoint](t, t.roots, ncxCodec{file: file})
	if t.ncx == nil {
		ncx, err := CreateNcx(t.info, file, points, t.log)
		if err != nil {
			return err
		}
		t.ncx = ncx
		return nil
	}
	if len(points) == 0 {
		return ErrEmptyNavMap
	}
	t.ncx.NavMap.Points = points
	t.ncx.setBookInfo(t.info)
	if uid := t.info.Identifier(); uid != "" {
		t.ncx.SetMeta("dtb:uid", uid)
	}
	return nil
}

// UpdateNav regenerates toc navigation from entries. Other navigations and
// the rest of the page are kept.
func (t *TableOfContents) UpdateNav() error {
	if len(t.roots) == 0 {
		return ErrEmptyToc
	}
	if t.nav == nil {
		file := t.documentFile(t.opts.NavFile)
		nav, err := CreateNav(t.info, file, encodeForest[ListItem](t, t.roots, navCodec{file: file}), t.opts.NavTitle, t.log)
		if err != nil {
			return err
		}
		t.nav = nav
		return nil
	}
	items := encodeForest[ListItem](t, t.roots, navCodec{file: t.nav.File})
	if t.nav.Toc == nil {
		t.nav.Toc = &Navigation{Type: NavTypeToc, Header: &NavHeader{Tag: "h1", Text: t.opts.NavTitle}}
	}
	t.nav.Toc.List = OrderedList{Items: items}
	return nil
}

// Write regenerates both documents and passes their serialized content to
// put, keyed by container path. NCX is skipped when no entry refers to a
// page.
func (t *TableOfContents) Write(put func(file string, data []byte) error) error {
	err := t.UpdateNcx()
	switch {
	case errors.Is(err, ErrEmptyNavMap):
		t.log.Warn("No table of contents entry refers to a page, NCX will not be written")
		t.ncx = nil
	case err != nil:
		return fmt.Errorf("unable to update NCX: %w", err)
	}
	if err := t.UpdateNav(); err != nil {
		return fmt.Errorf("unable to update navigation document: %w", err)
	}

	if t.ncx != nil {
		data, err := t.ncx.Bytes()
		if err != nil {
			return err
		}
		if err := put(t.ncx.File, data); err != nil {
			return err
		}
	}
	data, err := t.nav.Bytes()
	if err != nil {
		return err
	}
	return put(t.nav.File, data)
}

// Check verifies that entry fragments exist in their pages. Problems are
// reported as diagnostics replacing ones from previous check, in strict mode
// they are returned as error.
func (t *TableOfContents) Check() error {
	var diags Diagnostics
	t.Walk(func(id EntryID, _ int) bool {
		e := &t.nodes[id].Entry
		if e.Resource == nil || e.Fragment == "" {
			return true
		}
		ok, err := e.Resource.HasAnchor(e.Fragment)
		switch {
		case err != nil:
			diags.report(t.log, Diagnostic{File: e.Resource.File(), Message: fmt.Sprintf("unable to check anchor for %q: %v", e.Title, err)})
		case !ok:
			diags.report(t.log, Diagnostic{File: e.Resource.File(), Message: fmt.Sprintf("entry %q points to missing anchor #%s", e.Title, e.Fragment)})
		}
		return true
	})
	t.checked = diags
	if t.opts.Strict {
		return diags.Err()
	}
	return nil
}

// Dump returns human readable tree of entries.
func (t *TableOfContents) Dump() string {
	tw := debug.NewTreeWriter()
	t.Walk(func(id EntryID, depth int) bool {
		e := &t.nodes[id].Entry
		target := "-"
		if e.Resource != nil {
			target = escapeHref(e.Resource.File(), e.Fragment)
		}
		tw.Line(depth, "[%s] %s -> %s", e.Identifier, e.Title, target)
		return true
	})
	return tw.String()
}
