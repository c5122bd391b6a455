package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	fixzip "github.com/hidez8891/zip"
	"go.uber.org/zap"

	"epubkit/archive"
)

const (
	mimetypeFile    = "mimetype"
	mimetypeContent = "application/epub+zip"
)

// Book is an EPUB container opened for editing. Resources are read from the
// archive lazily, so book must stay open until it is saved.
type Book struct {
	Container *Container
	Package   *Package
	Resources *Registry
	Toc       *TableOfContents

	path   string
	opts   Options
	log    *zap.Logger
	zr     *zip.ReadCloser
	files  map[string]*zip.File
	closed bool
}

// Open loads book from EPUB file. Table of contents is taken from navigation
// document for EPUB 3 books and from NCX otherwise, with the other format
// used as fallback.
func Open(file string, opts Options, log *zap.Logger) (*Book, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()

	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("unable to open book: %w", err)
	}
	b := &Book{
		path:  file,
		opts:  opts,
		log:   log.Named("book"),
		zr:    zr,
		files: make(map[string]*zip.File),
	}
	if err := b.load(); err != nil {
		zr.Close()
		return nil, err
	}
	return b, nil
}

func (b *Book) load() error {
	var names []string
	if err := archive.WalkReader(b.path, &b.zr.Reader, "", func(_ string, f *zip.File) error {
		names = append(names, f.Name)
		b.files[f.Name] = f
		return nil
	}); err != nil {
		return err
	}
	b.log.Debug("Opened archive", zap.String("file", b.path), zap.Int("entries", len(names)))

	if data, err := b.readEntry(mimetypeFile); err != nil || string(bytes.TrimSpace(data)) != mimetypeContent {
		b.log.Warn("Archive does not have proper mimetype entry", zap.String("file", b.path))
	}

	data, err := b.readEntry(containerFile)
	if err != nil {
		return err
	}
	if b.Container, err = ReadContainer(bytes.NewReader(data)); err != nil {
		return err
	}
	opfFile, err := b.Container.PackagePath()
	if err != nil {
		return err
	}
	if data, err = b.readEntry(opfFile); err != nil {
		return err
	}
	if b.Package, err = ReadPackage(bytes.NewReader(data), opfFile, b.log); err != nil {
		return err
	}

	b.Resources = NewRegistry(opfFile)
	for i := range b.Package.Manifest {
		item := &b.Package.Manifest[i]
		file := b.Package.ItemFile(item)
		if file == "" {
			return malformed(opfFile, "item", "href %q of %q points outside of container", item.Href, item.ID)
		}
		if _, ok := b.files[file]; !ok {
			b.log.Warn("Manifest item has no file in archive", zap.Stringer("id", item.ID), zap.String("file", file))
		}
		res := newResource(resourceBase{
			id:        item.ID,
			href:      item.Href,
			file:      file,
			mediaType: item.MediaType,
			props:     item.Properties,
			load:      b.loader(file),
		})
		if err := b.Resources.Add(res); err != nil {
			return fmt.Errorf("%s: %w", opfFile, err)
		}
	}

	if err := b.loadToc(); err != nil {
		return err
	}
	if b.opts.CheckAnchors {
		return b.Toc.Check()
	}
	return nil
}

func (b *Book) loader(file string) loaderFunc {
	return func() ([]byte, error) {
		if b.closed {
			return nil, ErrClosed
		}
		return b.readEntry(file)
	}
}

func (b *Book) readEntry(name string) ([]byte, error) {
	f, ok := b.files[name]
	if !ok {
		return nil, &CrossRefError{File: b.path, Ref: name, Err: ErrResourceNotFound}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (b *Book) readNcx(item *ManifestItem) (*NcxDocument, error) {
	file := b.Package.ItemFile(item)
	data, err := b.readEntry(file)
	if err != nil {
		return nil, err
	}
	return ReadNcx(bytes.NewReader(data), file, b.log)
}

func (b *Book) readNav(item *ManifestItem) (*NavigationDocument, error) {
	file := b.Package.ItemFile(item)
	data, err := b.readEntry(file)
	if err != nil {
		return nil, err
	}
	return ReadNav(bytes.NewReader(data), file, b.opts, b.log)
}

func (b *Book) loadToc() error {
	var (
		nav            *NavigationDocument
		ncx            *NcxDocument
		navErr, ncxErr error
		err            error
	)
	navItem, hasNav := b.Package.NavItem()
	ncxItem, hasNcx := b.Package.NcxItem()

	if hasNav && b.Package.IsEPUB3() {
		if nav, navErr = b.readNav(navItem); navErr != nil {
			if !hasNcx {
				return navErr
			}
			b.log.Warn("Unable to use navigation document, falling back to NCX", zap.Error(navErr))
		}
	}
	if hasNcx {
		if ncx, ncxErr = b.readNcx(ncxItem); ncxErr != nil {
			if nav == nil {
				return ncxErr
			}
			b.log.Warn("Unable to read NCX, it will be regenerated", zap.Error(ncxErr))
		}
	}

	switch {
	case nav != nil:
		if b.Toc, err = FromNav(b.Package, b.Resources, nav, b.opts, b.log); err != nil {
			return err
		}
		switch {
		case ncx != nil:
			b.Toc.AttachNcx(ncx)
		case hasNcx:
			b.Toc.relocateNcx(b.Package.ItemFile(ncxItem))
		}
	case ncx != nil:
		if b.Toc, err = FromNcx(b.Package, b.Resources, ncx, b.opts, b.log); err != nil {
			return err
		}
		b.keepNav(navItem, hasNav, navErr)
	default:
		b.log.Warn("Book has no table of contents", zap.String("file", b.path))
		b.Toc = NewTableOfContents(b.Package, b.Resources, b.opts, b.log)
	}
	return nil
}

// keepNav attaches navigation document the book already has to table of
// contents built from NCX. Unreadable document is replaced by synthesized one.
func (b *Book) keepNav(item *ManifestItem, found bool, readErr error) {
	if !found {
		if b.Package.IsEPUB3() {
			return
		}
		// navigation document of EPUB 2 book is not marked with "nav" property
		if nav := b.guessNav(); nav != nil {
			b.Toc.AttachNav(nav)
		}
		return
	}
	var nav *NavigationDocument
	if readErr == nil {
		nav, readErr = b.readNav(item)
	}
	if readErr != nil {
		file := b.Package.ItemFile(item)
		b.log.Warn("Navigation document will be regenerated", zap.String("file", file), zap.Error(readErr))
		b.Toc.relocateNav(file)
		return
	}
	b.Toc.AttachNav(nav)
}

// guessNav looks for navigation document among XHTML items outside of spine.
func (b *Book) guessNav() *NavigationDocument {
	inSpine := make(map[Identifier]bool, len(b.Package.Spine.ItemRefs))
	for _, ref := range b.Package.Spine.ItemRefs {
		inSpine[ref.IDRef] = true
	}
	for i := range b.Package.Manifest {
		item := &b.Package.Manifest[i]
		if item.MediaType != mediaTypeXHTML || inSpine[item.ID] {
			continue
		}
		nav, err := b.readNav(item)
		if err != nil {
			b.log.Debug("Not a navigation document", zap.String("file", b.Package.ItemFile(item)), zap.Error(err))
			continue
		}
		return nav
	}
	return nil
}

// Close releases the archive. Book cannot be used afterwards.
func (b *Book) Close() error {
	if b.closed {
		return ErrClosed
	}
	b.closed = true
	return b.zr.Close()
}

// Save regenerates both table of contents documents and writes the book to
// file, which must differ from the file book was opened from. Entries not
// changed are copied from the original archive without recompression.
func (b *Book) Save(file string) error {
	if b.closed {
		return ErrClosed
	}
	if same, err := sameFile(b.path, file); err != nil {
		return err
	} else if same {
		return fmt.Errorf("unable to save book over its source %s", file)
	}

	replaced := make(map[string][]byte)
	if b.Toc.Len() == 0 {
		b.log.Warn("Table of contents is empty, navigation documents are left as is")
	} else if err := b.Toc.Write(func(name string, data []byte) error {
		replaced[name] = data
		return nil
	}); err != nil {
		return err
	}
	if err := b.ensureManifest(); err != nil {
		return err
	}
	for _, res := range b.Resources.All() {
		if _, ok := replaced[res.File()]; ok || !res.Modified() {
			continue
		}
		data, err := res.Data()
		if err != nil {
			return err
		}
		replaced[res.File()] = data
	}
	opf, err := documentBytes(b.Package.Document())
	if err != nil {
		return fmt.Errorf("unable to serialize %s: %w", b.Package.File, err)
	}
	replaced[b.Package.File] = opf

	b.log.Info("Saving book", zap.String("output", file), zap.Int("replaced", len(replaced)))

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	if !b.opts.FixZip {
		return b.writeArchive(file, replaced)
	}

	tmp, err := os.CreateTemp(filepath.Dir(file), ".epubkit-*.epub")
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := b.writeArchive(tmpName, replaced); err != nil {
		return err
	}
	return copyZipWithoutDataDescriptors(tmpName, file)
}

// ensureManifest declares table of contents documents in the package. Only
// EPUB 3 navigation document gets "nav" property.
func (b *Book) ensureManifest() error {
	if ncx := b.Toc.Ncx(); ncx != nil {
		item, err := b.ensureItem(ncx.File, mediaTypeNCX, "ncx")
		if err != nil {
			return err
		}
		if b.Package.Spine.Toc.IsZero() {
			b.Package.Spine.Toc = item.ID
		}
	}
	if nav := b.Toc.Nav(); nav != nil {
		item, err := b.ensureItem(nav.File, mediaTypeXHTML, "nav")
		if err != nil {
			return err
		}
		if !b.Package.IsEPUB3() {
			return nil
		}
		if !slices.Contains(item.Properties, "nav") {
			item.Properties = append(item.Properties, "nav")
		}
		// package must have exactly one navigation document
		for i := range b.Package.Manifest {
			other := &b.Package.Manifest[i]
			if other.ID != item.ID && slices.Contains(other.Properties, "nav") {
				b.log.Warn("Navigation document superseded", zap.Stringer("id", other.ID))
				other.Properties = slices.DeleteFunc(slices.Clone(other.Properties), func(p string) bool { return p == "nav" })
			}
		}
	}
	return nil
}

func (b *Book) ensureItem(file, mediaType string, id Identifier) (*ManifestItem, error) {
	if item, ok := b.Package.ItemByFile(file); ok {
		return item, nil
	}
	ids := NewIdentifierSet()
	for _, it := range b.Package.Manifest {
		ids.Claim(it.ID)
	}
	item := ManifestItem{
		ID:        ids.Claim(id),
		Href:      escapeHref(relativePath(b.Package.File, file), ""),
		MediaType: mediaType,
	}
	if err := b.Package.AddItem(item); err != nil {
		return nil, err
	}
	b.log.Debug("Added manifest item", zap.Stringer("id", item.ID), zap.String("href", item.Href))
	if err := b.Resources.Add(NewResource(item.ID, item.Href, file, mediaType, nil, nil)); err != nil {
		return nil, err
	}
	return &b.Package.Manifest[len(b.Package.Manifest)-1], nil
}

func (b *Book) writeArchive(file string, replaced map[string][]byte) error {
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	if err := writeMimetype(zw); err != nil {
		return fmt.Errorf("unable to write mimetype: %w", err)
	}

	written := map[string]bool{mimetypeFile: true}
	for _, zf := range b.zr.File {
		name := zf.Name
		if written[name] || zf.FileInfo().IsDir() {
			continue
		}
		written[name] = true
		if data, ok := replaced[name]; ok {
			if err := writeDataToZip(zw, name, data); err != nil {
				return fmt.Errorf("unable to write %s: %w", name, err)
			}
			continue
		}
		if err := zw.Copy(zf); err != nil {
			return fmt.Errorf("unable to copy %s: %w", name, err)
		}
	}
	// new files go last, in stable order
	var added []string
	for name := range replaced {
		if !written[name] {
			added = append(added, name)
		}
	}
	slices.Sort(added)
	for _, name := range added {
		if err := writeDataToZip(zw, name, replaced[name]); err != nil {
			return fmt.Errorf("unable to write %s: %w", name, err)
		}
	}

	// make sure buffers are flushed before continuing
	if err := zw.Close(); err != nil {
		return fmt.Errorf("unable to close output archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to finalize output file: %w", err)
	}
	return nil
}

// LinkStylesheet adds link to stylesheet resource with given container path
// to every page which does not have it yet. Returns number of changed pages.
func (b *Book) LinkStylesheet(file string) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	res, err := b.Resources.ByFile(file)
	if err != nil {
		return 0, err
	}
	if _, ok := res.(*StyleSheetResource); !ok {
		return 0, &CrossRefError{Ref: file, Reason: fmt.Sprintf("media type %s", res.MediaType()), Err: errors.New("resource is not a stylesheet")}
	}
	var changed int
	for _, page := range b.Resources.Pages() {
		if nav := b.Toc.Nav(); nav != nil && nav.File == page.File() {
			continue
		}
		ok, err := page.AddStylesheet(escapeHref(relativePath(page.File(), res.File()), ""))
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func sameFile(a, b string) (bool, error) {
	sa, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	sb, err := os.Stat(b)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return os.SameFile(sa, sb), nil
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   mimetypeFile,
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func copyZipWithoutDataDescriptors(from, to string) error {
	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer out.Close()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	defer w.Close()

	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", to, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("unable to finalize target file (%s): %w", to, err)
	}
	return out.Close()
}
