package epub

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/h2non/filetype"
)

// Resource is a single file of the book declared in the package manifest.
type Resource interface {
	ID() Identifier
	// Href is the location as written in manifest (relative to package document).
	Href() string
	// File is the container-root path.
	File() string
	MediaType() string
	Properties() []string
	HasProperty(name string) bool
	Data() ([]byte, error)
	SetData(data []byte)
	Modified() bool
}

const (
	mediaTypeXHTML = "application/xhtml+xml"
	mediaTypeHTML  = "text/html"
	mediaTypeCSS   = "text/css"
	mediaTypeNCX   = "application/x-dtbncx+xml"
	mediaTypeOPF   = "application/oebps-package+xml"
)

type loaderFunc func() ([]byte, error)

type resourceBase struct {
	id        Identifier
	href      string
	file      string
	mediaType string
	props     []string

	load     loaderFunc
	data     []byte
	loaded   bool
	modified bool
}

func (r *resourceBase) ID() Identifier       { return r.id }
func (r *resourceBase) Href() string         { return r.href }
func (r *resourceBase) File() string         { return r.file }
func (r *resourceBase) MediaType() string    { return r.mediaType }
func (r *resourceBase) Properties() []string { return r.props }
func (r *resourceBase) Modified() bool       { return r.modified }

func (r *resourceBase) HasProperty(name string) bool {
	return slices.Contains(r.props, name)
}

func (r *resourceBase) Data() ([]byte, error) {
	if r.loaded {
		return r.data, nil
	}
	if r.load == nil {
		return nil, fmt.Errorf("no data for resource %s", r.file)
	}
	data, err := r.load()
	if err != nil {
		return nil, fmt.Errorf("unable to read resource %s: %w", r.file, err)
	}
	r.data, r.loaded = data, true
	return data, nil
}

func (r *resourceBase) SetData(data []byte) {
	r.data, r.loaded, r.modified = data, true, true
}

// ImageResource is any image/* manifest item.
type ImageResource struct {
	resourceBase
}

// OtherResource covers fonts, audio, ToC documents and everything else.
type OtherResource struct {
	resourceBase
}

// NewResource creates resource with data in memory. Kind is selected by media
// type, see newResource.
func NewResource(id Identifier, href, file, mediaType string, props []string, data []byte) Resource {
	res := newResource(resourceBase{
		id:        id,
		href:      href,
		file:      file,
		mediaType: mediaType,
		props:     props,
		data:      data,
		loaded:    true,
	})
	return res
}

func newResource(base resourceBase) Resource {
	mt := strings.ToLower(strings.TrimSpace(base.mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "" {
		mt = sniffMediaType(&base)
		base.mediaType = mt
	}
	switch {
	case mt == mediaTypeXHTML || mt == mediaTypeHTML:
		return &PageResource{resourceBase: base}
	case mt == mediaTypeCSS:
		return &StyleSheetResource{resourceBase: base}
	case strings.HasPrefix(mt, "image/"):
		return &ImageResource{resourceBase: base}
	default:
		return &OtherResource{resourceBase: base}
	}
}

// sniffMediaType guesses media type for manifest items which do not declare
// one. Binary formats are detected by content, text ones by extension.
func sniffMediaType(base *resourceBase) string {
	switch strings.ToLower(path.Ext(base.file)) {
	case ".xhtml", ".xht":
		return mediaTypeXHTML
	case ".html", ".htm":
		return mediaTypeHTML
	case ".css":
		return mediaTypeCSS
	case ".ncx":
		return mediaTypeNCX
	}
	data, err := base.Data()
	if err != nil || len(data) == 0 {
		return "application/octet-stream"
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

// Registry indexes book resources by identifier, manifest href and
// container-root path.
type Registry struct {
	opfFile string
	items   []Resource
	byID    map[Identifier]Resource
	byFile  map[string]Resource
}

// NewRegistry creates empty registry for package document opfFile. Hrefs are
// resolved relative to it.
func NewRegistry(opfFile string) *Registry {
	return &Registry{
		opfFile: opfFile,
		byID:    make(map[Identifier]Resource),
		byFile:  make(map[string]Resource),
	}
}

// Dir returns directory of the package document, manifest hrefs are relative
// to it.
func (r *Registry) Dir() string {
	if d := path.Dir(r.opfFile); d != "." {
		return d
	}
	return ""
}

// Add registers resource, identifiers and files must be unique.
func (r *Registry) Add(res Resource) error {
	if _, exists := r.byID[res.ID()]; exists {
		return fmt.Errorf("duplicate resource id %q", res.ID())
	}
	if _, exists := r.byFile[res.File()]; exists {
		return fmt.Errorf("duplicate resource file %q", res.File())
	}
	r.items = append(r.items, res)
	r.byID[res.ID()] = res
	r.byFile[res.File()] = res
	return nil
}

// All returns resources in manifest order. Returned slice is a copy.
func (r *Registry) All() []Resource {
	return slices.Clone(r.items)
}

// Pages returns page resources in manifest order.
func (r *Registry) Pages() []*PageResource {
	var pages []*PageResource
	for _, res := range r.items {
		if p, ok := res.(*PageResource); ok {
			pages = append(pages, p)
		}
	}
	return pages
}

func (r *Registry) ByID(id Identifier) (Resource, error) {
	if res, ok := r.byID[id]; ok {
		return res, nil
	}
	return nil, &CrossRefError{File: r.opfFile, Ref: string(id), Err: ErrResourceNotFound}
}

// ByFile looks resource up by container-root path.
func (r *Registry) ByFile(p string) (Resource, error) {
	if res, ok := r.byFile[path.Clean(p)]; ok {
		return res, nil
	}
	return nil, &CrossRefError{Ref: p, Err: ErrResourceNotFound}
}

// ByHref looks resource up by href relative to package document. Fragment, if
// any, is ignored.
func (r *Registry) ByHref(href string) (Resource, error) {
	loc, err := ParseLocator(href)
	if err != nil {
		return nil, &CrossRefError{File: r.opfFile, Ref: href, Err: err}
	}
	return r.resolve(r.opfFile, loc)
}

// resolve finds resource referenced by loc from document docFile.
func (r *Registry) resolve(docFile string, loc Locator) (Resource, error) {
	if loc.IsZero() {
		return nil, &CrossRefError{File: docFile, Reason: "empty reference", Err: ErrResourceNotFound}
	}
	if loc.IsExternal() {
		return nil, &CrossRefError{File: docFile, Ref: loc.String(), Reason: "reference points outside of the book", Err: ErrResourceNotFound}
	}
	p := resolvePath(docFile, loc.Path())
	if p == "" {
		return nil, &CrossRefError{File: docFile, Ref: loc.String(), Reason: "reference escapes container", Err: ErrResourceNotFound}
	}
	if res, ok := r.byFile[p]; ok {
		return res, nil
	}
	return nil, &CrossRefError{File: docFile, Ref: loc.String(), Err: ErrResourceNotFound}
}

// resolvePage is resolve with resource kind check.
func (r *Registry) resolvePage(docFile string, loc Locator) (*PageResource, error) {
	res, err := r.resolve(docFile, loc)
	if err != nil {
		return nil, err
	}
	page, ok := res.(*PageResource)
	if !ok {
		return nil, &CrossRefError{File: docFile, Ref: loc.String(), Reason: fmt.Sprintf("media type %s", res.MediaType()), Err: ErrNotPage}
	}
	return page, nil
}

// escapeHref percent-encodes path for use in href attributes.
func escapeHref(p, fragment string) string {
	u := url.URL{Path: p, Fragment: fragment}
	return u.String()
}
