package epub

import "fmt"

// Both on-disk formats are produced from and read into the entry tree by the
// same two walks, parametrized by per-format codecs. This keeps NCX and
// navigation document structurally in sync.

type entryDecoder[T any] interface {
	decode(item T) (Entry, error)
	children(item T) []T
	// identifier is the id written in the document, if any.
	identifier(item T) Identifier
	// origin names document and element entries are read from.
	origin() (file, element string)
}

type entryEncoder[T any] interface {
	// encode returns false when entry cannot be expressed in the format, its
	// children then take its place.
	encode(e *Entry, children []T) (T, bool)
}

// reserveForest keeps identifiers written in the document away from derived
// ones, so entry declared later does not lose its id to an earlier entry
// without one.
func reserveForest[T any](t *TableOfContents, items []T, d entryDecoder[T]) {
	for _, item := range items {
		if id := d.identifier(item); !id.IsZero() {
			t.ids.Reserve(id)
		}
		reserveForest(t, d.children(item), d)
	}
}

func decodeForest[T any](t *TableOfContents, parent EntryID, items []T, d entryDecoder[T]) error {
	file, element := d.origin()
	for _, item := range items {
		e, err := d.decode(item)
		if err != nil {
			return err
		}
		if e.Identifier, err = t.claim(e.Identifier, e.Title, file, element); err != nil {
			return err
		}
		id := t.attach(parent, -1, e)
		if err := decodeForest(t, id, d.children(item), d); err != nil {
			return err
		}
	}
	return nil
}

func encodeForest[T any](t *TableOfContents, ids []EntryID, c entryEncoder[T]) []T {
	var out []T
	for _, id := range ids {
		n := &t.nodes[id]
		kids := encodeForest(t, n.children, c)
		if item, ok := c.encode(&n.Entry, kids); ok {
			out = append(out, item)
		} else {
			out = append(out, kids...)
		}
	}
	return out
}

// entryHref is location of entry target relative to document file.
func entryHref(file string, e *Entry) Locator {
	return NewLocator(relativePath(file, e.Resource.File()), e.Fragment)
}

type ncxCodec struct {
	file string
	reg  *Registry
}

func (c ncxCodec) decode(np NavPoint) (Entry, error) {
	page, err := np.Content.Resource(c.reg, c.file)
	if err != nil {
		return Entry{}, fmt.Errorf("navPoint %q: %w", np.ID, err)
	}
	return Entry{
		Identifier: np.ID,
		Title:      np.Labels[0].Text,
		Resource:   page,
		Fragment:   np.Content.Source.Fragment(),
	}, nil
}

func (ncxCodec) children(np NavPoint) []NavPoint {
	return np.Children
}

func (ncxCodec) identifier(np NavPoint) Identifier {
	return np.ID
}

func (c ncxCodec) origin() (string, string) {
	return c.file, "navPoint"
}

// NCX requires content for every navPoint, label-only entries are dropped.
func (c ncxCodec) encode(e *Entry, children []NavPoint) (NavPoint, bool) {
	if e.Resource == nil {
		return NavPoint{}, false
	}
	return NavPoint{
		ID:       e.Identifier,
		Labels:   []NavLabel{{Text: e.Title}},
		Content:  NcxContent{Source: entryHref(c.file, e)},
		Children: children,
	}, true
}

type navCodec struct {
	file string
	reg  *Registry
}

func (c navCodec) decode(li ListItem) (Entry, error) {
	e := Entry{Identifier: li.ID, Title: li.Content.Text()}
	if link, ok := li.Content.(*NavLink); ok {
		page, err := link.Resource(c.reg, c.file)
		if err != nil {
			return Entry{}, fmt.Errorf("navigation item %q: %w", e.Title, err)
		}
		e.Resource = page
		e.Fragment = link.Href.Fragment()
	}
	return e, nil
}

func (navCodec) children(li ListItem) []ListItem {
	if li.Children == nil {
		return nil
	}
	return li.Children.Items
}

func (navCodec) identifier(li ListItem) Identifier {
	return li.ID
}

func (c navCodec) origin() (string, string) {
	return c.file, "li"
}

func (c navCodec) encode(e *Entry, children []ListItem) (ListItem, bool) {
	item := ListItem{ID: e.Identifier}
	if e.Resource == nil {
		item.Content = &NavSpan{Label: e.Title}
	} else {
		item.Content = &NavLink{Href: entryHref(c.file, e), Label: e.Title}
	}
	if len(children) > 0 {
		item.Children = &OrderedList{Items: children}
	}
	return item, true
}
