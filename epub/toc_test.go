package epub

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"epubkit/common"
)

func TestFromNcx_SingleNavPoint(t *testing.T) {
	reg := testRegistry(t, "chap1")
	ncx := mustReadNcx(t, ncxSource(`
    <navPoint id="navpoint-1" playOrder="1">
      <navLabel><text>Chapter 1</text></navLabel>
      <content src="chap1.xhtml"/>
    </navPoint>`), "OEBPS/toc.ncx")

	toc, err := FromNcx(testPackage("2.0"), reg, ncx, DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNcx() error = %v", err)
	}

	roots := toc.Roots()
	if len(roots) != 1 {
		t.Fatalf("got %d roots, want 1", len(roots))
	}
	e := toc.Entry(roots[0])
	if e.Title != "Chapter 1" {
		t.Errorf("Title = %q, want %q", e.Title, "Chapter 1")
	}
	if e.Identifier != "navpoint-1" {
		t.Errorf("Identifier = %q, want navpoint-1", e.Identifier)
	}
	if e.Resource != mustPage(t, reg, "OEBPS/chap1.xhtml") {
		t.Errorf("Resource = %v, want chap1 page", e.Resource)
	}
	if e.Fragment != "" {
		t.Errorf("Fragment = %q, want empty", e.Fragment)
	}
	if kids := toc.Children(roots[0]); len(kids) != 0 {
		t.Errorf("got %d children, want 0", len(kids))
	}

	nav := toc.Nav()
	if nav == nil || nav.Toc == nil {
		t.Fatal("navigation document was not synthesized")
	}
	if nav.File != "OEBPS/nav.xhtml" {
		t.Errorf("nav.File = %q, want OEBPS/nav.xhtml", nav.File)
	}
	items := nav.Toc.List.Items
	if len(items) != 1 {
		t.Fatalf("got %d nav items, want 1", len(items))
	}
	link, ok := items[0].Content.(*NavLink)
	if !ok {
		t.Fatalf("nav item content is %T, want *NavLink", items[0].Content)
	}
	if link.Href.String() != "chap1.xhtml" || link.Label != "Chapter 1" {
		t.Errorf("nav link = %q %q", link.Href, link.Label)
	}
}

func TestFromNav_SpanWithChild(t *testing.T) {
	reg := testRegistry(t, "c1")
	nav := mustReadNav(t, navSource(`<li><span>Part One</span><ol><li><a href="c1.xhtml">Chapter 1</a></li></ol></li>`), "OEBPS/nav.xhtml", DefaultOptions())

	toc, err := FromNav(testPackage("3.0"), reg, nav, DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNav() error = %v", err)
	}

	roots := toc.Roots()
	if len(roots) != 1 {
		t.Fatalf("got %d roots, want 1", len(roots))
	}
	part := toc.Entry(roots[0])
	if part.Title != "Part One" || part.Resource != nil {
		t.Errorf("root = %q resource %v, want label-only Part One", part.Title, part.Resource)
	}
	if part.Identifier != "part_one" {
		t.Errorf("derived identifier = %q, want part_one", part.Identifier)
	}

	kids := toc.Children(roots[0])
	if len(kids) != 1 {
		t.Fatalf("got %d children, want 1", len(kids))
	}
	ch := toc.Entry(kids[0])
	if ch.Title != "Chapter 1" || ch.Resource != mustPage(t, reg, "OEBPS/c1.xhtml") {
		t.Errorf("child = %q resource %v", ch.Title, ch.Resource)
	}
	if toc.Parent(kids[0]) != roots[0] {
		t.Errorf("Parent() = %d, want %d", toc.Parent(kids[0]), roots[0])
	}

	// label-only root has no NCX form, its child is promoted
	ncx := toc.Ncx()
	if ncx == nil {
		t.Fatal("NCX was not synthesized")
	}
	if ncx.File != "OEBPS/toc.ncx" {
		t.Errorf("ncx.File = %q", ncx.File)
	}
	if len(ncx.NavMap.Points) != 1 || ncx.NavMap.Points[0].Labels[0].Text != "Chapter 1" {
		t.Errorf("navMap = %+v, want single Chapter 1 point", ncx.NavMap.Points)
	}
}

func TestUpdateNcx_PromotesChildrenOfLabelOnlyEntries(t *testing.T) {
	reg := testRegistry(t, "chap1", "chap2")
	toc := NewTableOfContents(testPackage("3.0"), reg, DefaultOptions(), setupTestLogger(t))

	part, err := toc.AddRoot(Entry{Title: "Part"})
	if err != nil {
		t.Fatalf("AddRoot() error = %v", err)
	}
	if _, err := toc.AddChild(part, Entry{Title: "Chapter", Resource: mustPage(t, reg, "OEBPS/chap1.xhtml"), Fragment: "s1"}); err != nil {
		t.Fatalf("AddChild() error = %v", err)
	}
	if _, err := toc.AddRoot(Entry{Title: "Epilogue", Resource: mustPage(t, reg, "OEBPS/chap2.xhtml")}); err != nil {
		t.Fatalf("AddRoot() error = %v", err)
	}

	if err := toc.UpdateNcx(); err != nil {
		t.Fatalf("UpdateNcx() error = %v", err)
	}
	points := toc.Ncx().NavMap.Points
	if len(points) != 2 {
		t.Fatalf("got %d nav points, want 2", len(points))
	}
	if points[0].Labels[0].Text != "Chapter" || points[0].Content.Source.String() != "chap1.xhtml#s1" {
		t.Errorf("first point = %q %q", points[0].Labels[0].Text, points[0].Content.Source)
	}
	if points[1].Labels[0].Text != "Epilogue" {
		t.Errorf("second point = %q", points[1].Labels[0].Text)
	}

	if err := toc.UpdateNav(); err != nil {
		t.Fatalf("UpdateNav() error = %v", err)
	}
	items := toc.Nav().Toc.List.Items
	if len(items) != 2 {
		t.Fatalf("got %d nav items, want 2", len(items))
	}
	if _, ok := items[0].Content.(*NavSpan); !ok {
		t.Errorf("first item is %T, want *NavSpan", items[0].Content)
	}
	if items[0].Children == nil || len(items[0].Children.Items) != 1 {
		t.Errorf("span item lost its child")
	}
}

func collectWrite(t *testing.T, toc *TableOfContents) map[string][]byte {
	t.Helper()

	out := make(map[string][]byte)
	if err := toc.Write(func(file string, data []byte) error {
		out[file] = append([]byte(nil), data...)
		return nil
	}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return out
}

func TestWrite_Idempotent(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, reg *Registry) *TableOfContents
	}{
		{
			name: "from ncx",
			build: func(t *testing.T, reg *Registry) *TableOfContents {
				ncx := mustReadNcx(t, ncxSource(`
    <navPoint id="p1"><navLabel><text>One</text></navLabel><content src="chap1.xhtml"/>
      <navPoint id="p2"><navLabel><text>Two</text></navLabel><content src="chap2.xhtml#s1"/></navPoint>
    </navPoint>`), "OEBPS/toc.ncx")
				toc, err := FromNcx(testPackage("2.0"), reg, ncx, DefaultOptions(), setupTestLogger(t))
				if err != nil {
					t.Fatalf("FromNcx() error = %v", err)
				}
				return toc
			},
		},
		{
			name: "from nav",
			build: func(t *testing.T, reg *Registry) *TableOfContents {
				nav := mustReadNav(t, navSource(`<li><span>Part</span><ol><li><a href="chap1.xhtml">One</a></li></ol></li><li><a href="chap2.xhtml#s2">Two</a></li>`,
					`<nav epub:type="landmarks" hidden=""><ol><li><a epub:type="bodymatter" href="chap1.xhtml">Start</a></li></ol></nav>`), "OEBPS/nav.xhtml", DefaultOptions())
				toc, err := FromNav(testPackage("3.0"), reg, nav, DefaultOptions(), setupTestLogger(t))
				if err != nil {
					t.Fatalf("FromNav() error = %v", err)
				}
				return toc
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toc := tt.build(t, testRegistry(t, "chap1", "chap2"))

			first := collectWrite(t, toc)
			second := collectWrite(t, toc)
			if len(first) != 2 {
				t.Errorf("first write produced %d files, want 2", len(first))
			}
			for file, data := range first {
				if !bytes.Equal(data, second[file]) {
					t.Errorf("%s differs between writes:\n%s\n---\n%s", file, data, second[file])
				}
			}
		})
	}
}

func TestRoundTrip_NcxThroughEntries(t *testing.T) {
	reg := testRegistry(t, "chap1", "chap2")
	ncx := mustReadNcx(t, ncxSource(`
    <navPoint id="p1"><navLabel><text>One</text></navLabel><content src="chap1.xhtml"/>
      <navPoint id="p2"><navLabel><text>Two</text></navLabel><content src="chap2.xhtml#s1"/></navPoint>
    </navPoint>
    <navPoint id="p3"><navLabel><text>Three</text></navLabel><content src="chap2.xhtml#s2"/></navPoint>`), "OEBPS/toc.ncx")
	toc, err := FromNcx(testPackage("2.0"), reg, ncx, DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNcx() error = %v", err)
	}
	files := collectWrite(t, toc)

	again := mustReadNcx(t, string(files["OEBPS/toc.ncx"]), "OEBPS/toc.ncx")
	toc2, err := FromNcx(testPackage("2.0"), reg, again, DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNcx() second pass error = %v", err)
	}
	if toc.Dump() != toc2.Dump() {
		t.Errorf("trees differ after round trip:\n%s\n---\n%s", toc.Dump(), toc2.Dump())
	}

	nav := mustReadNav(t, string(files["OEBPS/nav.xhtml"]), "OEBPS/nav.xhtml", DefaultOptions())
	toc3, err := FromNav(testPackage("3.0"), reg, nav, DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNav() error = %v", err)
	}
	if toc.Dump() != toc3.Dump() {
		t.Errorf("nav tree differs:\n%s\n---\n%s", toc.Dump(), toc3.Dump())
	}
}

func TestRoundTrip_NavThroughEntries(t *testing.T) {
	reg := testRegistry(t, "chap1", "chap2")
	toc := NewTableOfContents(testPackage("3.0"), reg, DefaultOptions(), setupTestLogger(t))

	part, _ := toc.AddRoot(Entry{Title: "Part One"})
	toc.AddChild(part, Entry{Title: "Chapter 1", Resource: mustPage(t, reg, "OEBPS/chap1.xhtml")})
	group, _ := toc.AddChild(part, Entry{Identifier: "grp", Title: "Group"})
	toc.AddChild(group, Entry{Title: "Section", Resource: mustPage(t, reg, "OEBPS/chap1.xhtml"), Fragment: "s2"})
	toc.AddRoot(Entry{Title: "Appendix", Resource: mustPage(t, reg, "OEBPS/chap2.xhtml"), Fragment: "s1"})
	toc.AddRoot(Entry{Title: "Colophon"})

	files := collectWrite(t, toc)
	nav := mustReadNav(t, string(files["OEBPS/nav.xhtml"]), "OEBPS/nav.xhtml", DefaultOptions())
	again, err := FromNav(testPackage("3.0"), reg, nav, DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNav() error = %v", err)
	}
	if toc.Dump() != again.Dump() {
		t.Errorf("trees differ after round trip:\n%s\n---\n%s", toc.Dump(), again.Dump())
	}
	if again.Len() != 6 {
		t.Errorf("Len() = %d, want 6", again.Len())
	}
}

func TestWrite_SynthesizedDocumentsKeepExistingPages(t *testing.T) {
	reg := testRegistry(t, "chap1", "nav")
	ncx := mustReadNcx(t, ncxSource(`
    <navPoint id="p1"><navLabel><text>One</text></navLabel><content src="chap1.xhtml"/></navPoint>`), "OEBPS/toc.ncx")
	toc, err := FromNcx(testPackage("2.0"), reg, ncx, DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNcx() error = %v", err)
	}
	if got := toc.Nav().File; got != "OEBPS/nav_2.xhtml" {
		t.Errorf("synthesized nav = %q, want OEBPS/nav_2.xhtml", got)
	}
	files := collectWrite(t, toc)
	if _, ok := files["OEBPS/nav.xhtml"]; ok {
		t.Error("Write() replaced existing page OEBPS/nav.xhtml")
	}
	if _, ok := files["OEBPS/nav_2.xhtml"]; !ok {
		t.Errorf("Write() did not produce OEBPS/nav_2.xhtml, got %d files", len(files))
	}

	// existing table of contents document is reused
	reg = testRegistry(t, "chap1")
	if err := reg.Add(NewResource("ncx", "toc.ncx", "OEBPS/toc.ncx", mediaTypeNCX, nil, nil)); err != nil {
		t.Fatalf("Add(ncx) error = %v", err)
	}
	nav := mustReadNav(t, navSource(`<li><a href="chap1.xhtml">One</a></li>`), "OEBPS/nav.xhtml", DefaultOptions())
	toc, err = FromNav(testPackage("3.0"), reg, nav, DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNav() error = %v", err)
	}
	if got := toc.Ncx().File; got != "OEBPS/toc.ncx" {
		t.Errorf("synthesized ncx = %q, want OEBPS/toc.ncx", got)
	}
}

func TestFromNav_IdentifierPolicy(t *testing.T) {
	items := `<li><a href="chap1.xhtml">Intro</a></li><li><a href="chap1.xhtml#s1">Intro</a></li><li id="own"><a href="chap1.xhtml#s2">Own</a></li>`

	t.Run("derive", func(t *testing.T) {
		reg := testRegistry(t, "chap1")
		nav := mustReadNav(t, navSource(items), "OEBPS/nav.xhtml", DefaultOptions())
		toc, err := FromNav(testPackage("3.0"), reg, nav, DefaultOptions(), setupTestLogger(t))
		if err != nil {
			t.Fatalf("FromNav() error = %v", err)
		}
		var got []Identifier
		for _, id := range toc.Roots() {
			got = append(got, toc.Entry(id).Identifier)
		}
		want := []Identifier{"intro", "intro_2", "own"}
		if len(got) != len(want) {
			t.Fatalf("identifiers = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("identifier[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("require", func(t *testing.T) {
		reg := testRegistry(t, "chap1")
		opts := DefaultOptions()
		opts.Identifiers = common.IdentifierPolicyRequire
		nav := mustReadNav(t, navSource(items), "OEBPS/nav.xhtml", opts)
		_, err := FromNav(testPackage("3.0"), reg, nav, opts, setupTestLogger(t))
		if !errors.Is(err, ErrMissingIdentifier) {
			t.Errorf("FromNav() error = %v, want ErrMissingIdentifier", err)
		}
	})
}

func TestFromNcx_DuplicateIdentifiers(t *testing.T) {
	src := ncxSource(`
    <navPoint id="np"><navLabel><text>One</text></navLabel><content src="chap1.xhtml"/></navPoint>
    <navPoint id="np"><navLabel><text>Two</text></navLabel><content src="chap1.xhtml#s1"/></navPoint>`)

	t.Run("lenient", func(t *testing.T) {
		reg := testRegistry(t, "chap1")
		toc, err := FromNcx(testPackage("2.0"), reg, mustReadNcx(t, src, "OEBPS/toc.ncx"), DefaultOptions(), setupTestLogger(t))
		if err != nil {
			t.Fatalf("FromNcx() error = %v", err)
		}
		roots := toc.Roots()
		if toc.Entry(roots[1]).Identifier != "np_2" {
			t.Errorf("second identifier = %q, want np_2", toc.Entry(roots[1]).Identifier)
		}
		diags := toc.Diagnostics()
		if len(diags) != 1 {
			t.Fatalf("got %d diagnostics, want 1", len(diags))
		}
		if diags[0].File != "OEBPS/toc.ncx" || diags[0].Element != "navPoint" {
			t.Errorf("diagnostic location = %q <%s>, want OEBPS/toc.ncx <navPoint>", diags[0].File, diags[0].Element)
		}
	})

	t.Run("strict", func(t *testing.T) {
		reg := testRegistry(t, "chap1")
		opts := DefaultOptions()
		opts.Strict = true
		_, err := FromNcx(testPackage("2.0"), reg, mustReadNcx(t, src, "OEBPS/toc.ncx"), opts, setupTestLogger(t))
		if !errors.Is(err, ErrDuplicateIdentifier) {
			t.Errorf("FromNcx() error = %v, want ErrDuplicateIdentifier", err)
		}
	})
}

func TestFromNav_ExplicitIdentifierDeclaredLater(t *testing.T) {
	items := `<li><a href="chap1.xhtml">Intro</a><ol><li><a href="chap1.xhtml#s1">Intro</a></li></ol></li><li id="intro"><a href="chap1.xhtml#s2">Other</a></li>`

	for _, strict := range []bool{false, true} {
		reg := testRegistry(t, "chap1")
		opts := DefaultOptions()
		opts.Strict = strict
		nav := mustReadNav(t, navSource(items), "OEBPS/nav.xhtml", opts)
		toc, err := FromNav(testPackage("3.0"), reg, nav, opts, setupTestLogger(t))
		if err != nil {
			t.Fatalf("strict=%v: FromNav() error = %v", strict, err)
		}
		want := "[intro_2] Intro -> OEBPS/chap1.xhtml\n" +
			"  [intro_3] Intro -> OEBPS/chap1.xhtml#s1\n" +
			"[intro] Other -> OEBPS/chap1.xhtml#s2\n"
		if got := toc.Dump(); got != want {
			t.Errorf("strict=%v: Dump() = %q, want %q", strict, got, want)
		}
		if len(toc.Diagnostics()) != 0 {
			t.Errorf("strict=%v: unexpected diagnostics %v", strict, toc.Diagnostics())
		}
	}
}

func TestFromNcx_ExplicitIdentifierDeclaredLater(t *testing.T) {
	reg := testRegistry(t, "chap1")
	ncx := mustReadNcx(t, ncxSource(`
    <navPoint id="one"><navLabel><text>One</text></navLabel><content src="chap1.xhtml"/>
      <navPoint id="one"><navLabel><text>Nested</text></navLabel><content src="chap1.xhtml#s1"/></navPoint>
    </navPoint>
    <navPoint id="one_2"><navLabel><text>Two</text></navLabel><content src="chap1.xhtml#s2"/></navPoint>`), "OEBPS/toc.ncx")
	toc, err := FromNcx(testPackage("2.0"), reg, ncx, DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNcx() error = %v", err)
	}
	want := "[one] One -> OEBPS/chap1.xhtml\n" +
		"  [one_3] Nested -> OEBPS/chap1.xhtml#s1\n" +
		"[one_2] Two -> OEBPS/chap1.xhtml#s2\n"
	if got := toc.Dump(); got != want {
		t.Errorf("Dump() = %q, want %q", got, want)
	}
}

func TestFromNcx_ReferenceErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"not a page", "style.css", ErrNotPage},
		{"missing resource", "missing.xhtml", ErrResourceNotFound},
		{"outside of container", "../../etc/passwd", ErrResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := testRegistry(t, "chap1")
			ncx := mustReadNcx(t, ncxSource(`<navPoint id="np"><navLabel><text>X</text></navLabel><content src="`+tt.src+`"/></navPoint>`), "OEBPS/toc.ncx")
			_, err := FromNcx(testPackage("2.0"), reg, ncx, DefaultOptions(), setupTestLogger(t))
			if !errors.Is(err, tt.want) {
				t.Errorf("FromNcx() error = %v, want %v", err, tt.want)
			}
			var xref *CrossRefError
			if !errors.As(err, &xref) {
				t.Errorf("FromNcx() error %T is not *CrossRefError", err)
			}
		})
	}
}

func TestFromNav_EmptyToc(t *testing.T) {
	reg := testRegistry(t, "chap1")
	nav := mustReadNav(t, navSource(`<li></li>`), "OEBPS/nav.xhtml", DefaultOptions())
	if _, err := FromNav(testPackage("3.0"), reg, nav, DefaultOptions(), setupTestLogger(t)); !errors.Is(err, ErrEmptyToc) {
		t.Errorf("FromNav() error = %v, want ErrEmptyToc", err)
	}

	toc := NewTableOfContents(testPackage("3.0"), reg, DefaultOptions(), setupTestLogger(t))
	if err := toc.UpdateNcx(); !errors.Is(err, ErrEmptyToc) {
		t.Errorf("UpdateNcx() error = %v, want ErrEmptyToc", err)
	}
	if err := toc.UpdateNav(); !errors.Is(err, ErrEmptyToc) {
		t.Errorf("UpdateNav() error = %v, want ErrEmptyToc", err)
	}
}

func TestWrite_LabelOnlyTreeSkipsNcx(t *testing.T) {
	reg := testRegistry(t, "chap1")
	toc := NewTableOfContents(testPackage("3.0"), reg, DefaultOptions(), setupTestLogger(t))
	if _, err := toc.AddRoot(Entry{Title: "Nothing to see"}); err != nil {
		t.Fatalf("AddRoot() error = %v", err)
	}
	files := collectWrite(t, toc)
	if _, ok := files["OEBPS/toc.ncx"]; ok {
		t.Error("NCX written for tree without pages")
	}
	if _, ok := files["OEBPS/nav.xhtml"]; !ok {
		t.Error("navigation document not written")
	}
}

func TestTableOfContents_TreeOperations(t *testing.T) {
	reg := testRegistry(t, "chap1")
	page := mustPage(t, reg, "OEBPS/chap1.xhtml")
	toc := NewTableOfContents(testPackage("3.0"), reg, DefaultOptions(), setupTestLogger(t))

	a, _ := toc.AddRoot(Entry{Title: "A", Resource: page})
	c, _ := toc.AddRoot(Entry{Title: "C", Resource: page})
	b, err := toc.InsertChild(NoEntry, 1, Entry{Title: "B", Resource: page})
	if err != nil {
		t.Fatalf("InsertChild() error = %v", err)
	}
	if got := toc.Roots(); len(got) != 3 || got[0] != a || got[1] != b || got[2] != c {
		t.Fatalf("Roots() = %v, want [%d %d %d]", got, a, b, c)
	}

	a1, _ := toc.AddChild(a, Entry{Title: "A1", Resource: page, Fragment: "s1"})
	a2, _ := toc.AddChild(a, Entry{Title: "A2", Resource: page, Fragment: "s2"})
	if toc.Len() != 5 {
		t.Errorf("Len() = %d, want 5", toc.Len())
	}

	var visited []string
	toc.Walk(func(id EntryID, depth int) bool {
		visited = append(visited, strings.Repeat(">", depth)+toc.Entry(id).Title)
		return true
	})
	if got := strings.Join(visited, " "); got != "A >A1 >A2 B C" {
		t.Errorf("Walk() visited %q", got)
	}

	if err := toc.RemoveChildAt(a, 0); err != nil {
		t.Fatalf("RemoveChildAt() error = %v", err)
	}
	if toc.Entry(a1) != nil {
		t.Error("removed entry is still accessible")
	}
	if _, err := toc.AddChild(a1, Entry{Title: "orphan"}); !errors.Is(err, ErrDetachedEntry) {
		t.Errorf("AddChild(detached) error = %v, want ErrDetachedEntry", err)
	}
	if err := toc.RemoveChild(a, a1); !errors.Is(err, ErrDetachedEntry) {
		t.Errorf("RemoveChild(not a child) error = %v, want ErrDetachedEntry", err)
	}
	if err := toc.RemoveChildAt(a, 5); err == nil {
		t.Error("RemoveChildAt(out of range) expected error")
	}

	// identifier of removed entry is free again
	again, _ := toc.AddChild(a, Entry{Title: "A1"})
	if toc.Entry(again).Identifier != "a1" {
		t.Errorf("re-added identifier = %q, want a1", toc.Entry(again).Identifier)
	}
	dup, _ := toc.AddRoot(Entry{Identifier: "a2", Title: "Another"})
	if toc.Entry(dup).Identifier != "a2_2" {
		t.Errorf("duplicate identifier = %q, want a2_2", toc.Entry(dup).Identifier)
	}
	if _, err := toc.AddRoot(Entry{Identifier: "1bad", Title: "Bad"}); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("AddRoot(bad id) error = %v, want ErrInvalidIdentifier", err)
	}

	if err := toc.RemoveChildren(a); err != nil {
		t.Fatalf("RemoveChildren() error = %v", err)
	}
	if toc.Entry(a2) != nil || len(toc.Children(a)) != 0 {
		t.Error("children were not removed")
	}
	if err := toc.RemoveRoot(b); err != nil {
		t.Fatalf("RemoveRoot() error = %v", err)
	}
	if id, ok := toc.Find("c"); !ok || id != c {
		t.Errorf("Find(c) = %d %v, want %d", id, ok, c)
	}
	if _, ok := toc.Find("b"); ok {
		t.Error("Find() found removed entry")
	}

	renamed, err := toc.Rename(c, "a")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if renamed != "a_2" {
		t.Errorf("Rename() = %q, want a_2", renamed)
	}
}

func TestRename_RequiredIdentifiers(t *testing.T) {
	reg := testRegistry(t, "chap1")
	opts := DefaultOptions()
	opts.Identifiers = common.IdentifierPolicyRequire
	toc := NewTableOfContents(testPackage("3.0"), reg, opts, setupTestLogger(t))
	a, _ := toc.AddRoot(Entry{Identifier: "a", Title: "A"})
	b, _ := toc.AddRoot(Entry{Identifier: "b", Title: "B"})

	if _, err := toc.Rename(b, "a"); !errors.Is(err, ErrDuplicateIdentifier) {
		t.Errorf("Rename() error = %v, want ErrDuplicateIdentifier", err)
	}
	if got := toc.Entry(b).Identifier; got != "b" {
		t.Errorf("identifier after failed rename = %q, want b", got)
	}
	if got, err := toc.Rename(a, "first"); err != nil || got != "first" {
		t.Errorf("Rename() = %q, %v, want first", got, err)
	}
	// old identifier is free now
	if got, err := toc.Rename(b, "a"); err != nil || got != "a" {
		t.Errorf("Rename() = %q, %v, want a", got, err)
	}
}

func TestUpdateNcx_KeepsOutOfTreeContent(t *testing.T) {
	reg := testRegistry(t, "chap1")
	src := `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1" xml:lang="de" dir="ltr">
  <head>
    <meta name="dtb:uid" content="old-uid"/>
    <meta name="dtb:generator" content="someone"/>
  </head>
  <docTitle><text>Old title</text></docTitle>
  <navMap>
    <navPoint id="p1"><navLabel><text>One</text></navLabel><content src="chap1.xhtml"/></navPoint>
  </navMap>
  <pageList>
    <pageTarget id="page1" type="normal" value="1"><navLabel><text>1</text></navLabel><content src="chap1.xhtml#s1"/></pageTarget>
  </pageList>
  <navList>
    <navLabel><text>Illustrations</text></navLabel>
    <navTarget id="fig1"><navLabel><text>Figure 1</text></navLabel><content src="chap1.xhtml#s2"/></navTarget>
  </navList>
</ncx>`
	toc, err := FromNcx(testPackage("2.0"), reg, mustReadNcx(t, src, "OEBPS/toc.ncx"), DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNcx() error = %v", err)
	}
	toc.Entry(toc.Roots()[0]).Title = "Renamed"

	files := collectWrite(t, toc)
	ncx := mustReadNcx(t, string(files["OEBPS/toc.ncx"]), "OEBPS/toc.ncx")

	if ncx.Language != "de" || ncx.Direction != "ltr" {
		t.Errorf("language/direction = %q/%q", ncx.Language, ncx.Direction)
	}
	if ncx.Title.Text != "Test Book" {
		t.Errorf("title = %q, want Test Book", ncx.Title.Text)
	}
	if len(ncx.Authors) != 1 || ncx.Authors[0].Text != "Jane Doe" {
		t.Errorf("authors = %+v", ncx.Authors)
	}
	if uid, _ := ncx.Meta("dtb:uid"); uid != "urn:uuid:0b7c1f6e-4e3f-4d7a-9d0e-2f5c3b1a9e11" {
		t.Errorf("dtb:uid = %q", uid)
	}
	if gen, ok := ncx.Meta("dtb:generator"); !ok || gen != "someone" {
		t.Errorf("dtb:generator = %q %v", gen, ok)
	}
	if ncx.PageList == nil || len(ncx.PageList.Targets) != 1 {
		t.Errorf("page list lost: %+v", ncx.PageList)
	}
	if len(ncx.NavLists) != 1 || ncx.NavLists[0].Targets[0].ID != "fig1" {
		t.Errorf("nav lists lost: %+v", ncx.NavLists)
	}
	if ncx.NavMap.Points[0].Labels[0].Text != "Renamed" {
		t.Errorf("nav point label = %q", ncx.NavMap.Points[0].Labels[0].Text)
	}
}

func TestUpdateNav_KeepsOtherNavigations(t *testing.T) {
	reg := testRegistry(t, "chap1", "chap2")
	src := navSource(`<li><a href="chap1.xhtml">One</a></li>`,
		`<nav epub:type="landmarks" hidden=""><ol><li><a epub:type="bodymatter" href="chap1.xhtml">Start</a></li></ol></nav>`,
		`<nav epub:type="lot"><ol><li><a href="chap2.xhtml#s1">Table 1</a></li></ol></nav>`)
	toc, err := FromNav(testPackage("3.0"), reg, mustReadNav(t, src, "OEBPS/nav.xhtml", DefaultOptions()), DefaultOptions(), setupTestLogger(t))
	if err != nil {
		t.Fatalf("FromNav() error = %v", err)
	}
	if _, err := toc.AddRoot(Entry{Title: "Two", Resource: mustPage(t, reg, "OEBPS/chap2.xhtml")}); err != nil {
		t.Fatalf("AddRoot() error = %v", err)
	}

	files := collectWrite(t, toc)
	nav := mustReadNav(t, string(files["OEBPS/nav.xhtml"]), "OEBPS/nav.xhtml", DefaultOptions())
	if len(nav.Toc.List.Items) != 2 {
		t.Errorf("toc has %d items, want 2", len(nav.Toc.List.Items))
	}
	if nav.Toc.Title() != "Contents" {
		t.Errorf("toc title = %q", nav.Toc.Title())
	}
	if nav.Landmarks == nil || !nav.Landmarks.Hidden {
		t.Fatal("landmarks lost")
	}
	if link := nav.Landmarks.List.Items[0].Content.(*NavLink); link.Type != "bodymatter" {
		t.Errorf("landmark type = %q", link.Type)
	}
	if len(nav.Custom) != 1 || nav.Custom[0].Type != "lot" {
		t.Errorf("custom navs = %+v", nav.Custom)
	}
}

func TestEntryHref_Relativized(t *testing.T) {
	reg := NewRegistry(testOPF)
	page := NewPageResource("ch1", "text/ch 1.xhtml", "OEBPS/text/ch 1.xhtml", testPage("ch1", "s1"))
	if err := reg.Add(page); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	opts := DefaultOptions()
	opts.NavFile = "nav/toc.xhtml"
	toc := NewTableOfContents(testPackage("3.0"), reg, opts, setupTestLogger(t))
	if _, err := toc.AddRoot(Entry{Title: "One", Resource: page, Fragment: "s1"}); err != nil {
		t.Fatalf("AddRoot() error = %v", err)
	}
	if err := toc.UpdateNav(); err != nil {
		t.Fatalf("UpdateNav() error = %v", err)
	}
	if err := toc.UpdateNcx(); err != nil {
		t.Fatalf("UpdateNcx() error = %v", err)
	}

	link := toc.Nav().Toc.List.Items[0].Content.(*NavLink)
	if got := link.Href.String(); got != "../text/ch%201.xhtml#s1" {
		t.Errorf("nav href = %q", got)
	}
	if got := toc.Ncx().NavMap.Points[0].Content.Source.String(); got != "text/ch%201.xhtml#s1" {
		t.Errorf("ncx src = %q", got)
	}
	// written hrefs resolve back to the same page
	if res, err := link.Resource(reg, toc.Nav().File); err != nil || res != page {
		t.Errorf("nav href resolves to %v, %v", res, err)
	}
}

func TestCheck_MissingAnchors(t *testing.T) {
	reg := testRegistry(t, "chap1")
	page := mustPage(t, reg, "OEBPS/chap1.xhtml")

	for _, strict := range []bool{false, true} {
		opts := DefaultOptions()
		opts.Strict = strict
		toc := NewTableOfContents(testPackage("3.0"), reg, opts, setupTestLogger(t))
		toc.AddRoot(Entry{Title: "Good", Resource: page, Fragment: "s1"})
		toc.AddRoot(Entry{Title: "Bad", Resource: page, Fragment: "nowhere"})

		toc.Check()
		err := toc.Check()
		if strict && err == nil {
			t.Error("Check() expected error in strict mode")
		}
		if !strict && err != nil {
			t.Errorf("Check() error = %v in lenient mode", err)
		}
		if len(toc.Diagnostics()) != 1 {
			t.Errorf("strict=%v: got %d diagnostics, want 1", strict, len(toc.Diagnostics()))
		}
	}
}

func TestDump(t *testing.T) {
	reg := testRegistry(t, "chap1")
	toc := NewTableOfContents(testPackage("3.0"), reg, DefaultOptions(), setupTestLogger(t))
	part, _ := toc.AddRoot(Entry{Title: "Part"})
	toc.AddChild(part, Entry{Title: "Chapter 1", Resource: mustPage(t, reg, "OEBPS/chap1.xhtml"), Fragment: "s1"})

	want := "[part] Part -> -\n  [chapter_1] Chapter 1 -> OEBPS/chap1.xhtml#s1\n"
	if got := toc.Dump(); got != want {
		t.Errorf("Dump() = %q, want %q", got, want)
	}
}
