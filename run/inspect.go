package run

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"epubkit/config"
	"epubkit/epub"
	"epubkit/state"
	"epubkit/utils/debug"
)

func inspect(ctx context.Context, src string, opts epub.Options, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)
	order := listOrder(env)

	books, err := collect(ctx, src, order, log)
	if err != nil {
		return err
	}

	var failed int
	for i, book := range books {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(env.Out)
		}
		if err := inspectBook(env.Out, book, opts, order, env.Cfg == nil || env.Cfg.Inspect.Resources, log); err != nil {
			failed++
			log.Error("Unable to inspect book", zap.String("file", book.path), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("unable to inspect %d of %d book(s)", failed, len(books))
	}
	return nil
}

func inspectBook(w io.Writer, src source, opts epub.Options, order config.ListOrder, resources bool, log *zap.Logger) error {
	b, err := epub.Open(src.path, opts, log)
	if err != nil {
		return err
	}
	defer b.Close()

	tw := debug.NewTreeWriter()
	pkg := b.Package
	tw.Line(0, "Book: %s", src.rel)
	tw.TextBlock(1, "Title", pkg.Title())
	if authors := pkg.Authors(); len(authors) > 0 {
		tw.TextBlock(1, "Authors", strings.Join(authors, ", "))
	}
	tw.TextBlock(1, "Identifier", pkg.Identifier())
	tw.Line(1, "Language: %s", pkg.Language())
	tw.Line(1, "Version: %s", pkg.Version)

	docs := []string{fmt.Sprintf("%d entries", b.Toc.Len())}
	if ncx := b.Toc.Ncx(); ncx != nil {
		docs = append(docs, "ncx "+ncx.File)
	}
	if nav := b.Toc.Nav(); nav != nil {
		docs = append(docs, "nav "+nav.File)
	}
	tw.Line(0, "Table of contents (%s):", strings.Join(docs, ", "))
	tw.Block(1, b.Toc.Dump())

	if resources {
		all := b.Resources.All()
		sort.SliceStable(all, func(i, j int) bool {
			return order.Less(all[i].File(), all[j].File())
		})
		tw.Line(0, "Resources (%d):", len(all))
		for _, res := range all {
			tw.Line(1, "%-12s %-24s %s", res.ID(), res.MediaType(), res.File())
		}
	}

	if diags := b.Toc.Diagnostics(); len(diags) > 0 {
		tw.Line(0, "Diagnostics (%d):", len(diags))
		for _, d := range diags {
			tw.Line(1, "%s", d)
		}
	}

	_, err = io.WriteString(w, tw.String())
	return err
}
