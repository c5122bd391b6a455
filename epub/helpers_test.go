package epub

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testOPF = "OEBPS/content.opf"

func setupTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))
}

func testPackage(version string) *Package {
	return &Package{
		File:             testOPF,
		Version:          version,
		UniqueIdentifier: "uid",
		Metadata: Metadata{
			Titles:      []string{"Test Book"},
			Creators:    []Creator{{Name: "Jane Doe", Role: "aut"}},
			Identifiers: []DCIdentifier{{ID: "uid", Value: "urn:uuid:0b7c1f6e-4e3f-4d7a-9d0e-2f5c3b1a9e11"}},
			Languages:   []string{"en"},
		},
	}
}

// testPage returns XHTML page with given title and element ids.
func testPage(title string, ids ...string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head><title>`)
	b.WriteString(title)
	b.WriteString(`</title></head><body>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<h2 id="%s">%s</h2><p>text</p>`, id, id)
	}
	b.WriteString(`</body></html>`)
	return []byte(b.String())
}

// testRegistry registers pages OEBPS/<name>.xhtml for every name and a
// stylesheet at OEBPS/style.css.
func testRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()

	reg := NewRegistry(testOPF)
	for _, name := range names {
		page := NewPageResource(MustIdentifier(name), name+".xhtml", "OEBPS/"+name+".xhtml", testPage(name, "s1", "s2"))
		if err := reg.Add(page); err != nil {
			t.Fatalf("Add(%s) error = %v", name, err)
		}
	}
	css := NewResource("css", "style.css", "OEBPS/style.css", "text/css", nil, []byte("body { margin: 0 }"))
	if err := reg.Add(css); err != nil {
		t.Fatalf("Add(css) error = %v", err)
	}
	return reg
}

func mustPage(t *testing.T, reg *Registry, file string) *PageResource {
	t.Helper()

	res, err := reg.ByFile(file)
	if err != nil {
		t.Fatalf("ByFile(%s) error = %v", file, err)
	}
	page, ok := res.(*PageResource)
	if !ok {
		t.Fatalf("%s is %T, want *PageResource", file, res)
	}
	return page
}

func mustReadNcx(t *testing.T, src, file string) *NcxDocument {
	t.Helper()

	ncx, err := ReadNcx(strings.NewReader(src), file, setupTestLogger(t))
	if err != nil {
		t.Fatalf("ReadNcx() error = %v", err)
	}
	return ncx
}

func mustReadNav(t *testing.T, src, file string, opts Options) *NavigationDocument {
	t.Helper()

	nav, err := ReadNav(strings.NewReader(src), file, opts, setupTestLogger(t))
	if err != nil {
		t.Fatalf("ReadNav() error = %v", err)
	}
	return nav
}

// ncxSource wraps nav points into minimal valid NCX document.
func ncxSource(points string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1" xml:lang="en">
  <head>
    <meta name="dtb:uid" content="urn:uuid:0b7c1f6e-4e3f-4d7a-9d0e-2f5c3b1a9e11"/>
    <meta name="dtb:depth" content="1"/>
  </head>
  <docTitle><text>Test Book</text></docTitle>
  <navMap>` + points + `</navMap>
</ncx>`
}

// navSource wraps toc list items (and any extra navs) into minimal valid
// navigation document.
func navSource(items string, extra ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
<nav epub:type="toc" id="toc"><h1>Contents</h1><ol>` + items + `</ol></nav>
` + strings.Join(extra, "\n") + `
</body>
</html>`
}
