// Package run implements program commands independently of command line
// framework as much as possible.
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"epubkit/config"
	"epubkit/epub"
	"epubkit/state"
)

// bookExts lists recognized book file extensions, longest first.
var bookExts = []string{".kepub.epub", ".epub"}

func isBookName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range bookExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Inspect prints table of contents, resources and diagnostics of book(s).
func Inspect(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("inspect")

	src, err := sourceArg(cmd)
	if err != nil {
		return err
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many sources", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	opts := env.BookOptions()
	if cmd.Bool("anchors") {
		opts.CheckAnchors = true
	}
	return inspect(ctx, src, opts, log)
}

// Rebuild loads book(s) and saves them with both table of contents documents
// regenerated.
func Rebuild(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("rebuild")

	src, dst, err := pathArgs(cmd, log)
	if err != nil {
		return err
	}
	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return transform(ctx, src, dst, nil, log)
}

// Stylesheet links stylesheet, which must be already present in book
// manifest, to every content page of book(s).
func Stylesheet(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("stylesheet")

	href := cmd.String("href")
	if len(href) == 0 {
		return errors.New("stylesheet href has not been specified")
	}
	src, dst, err := pathArgs(cmd, log)
	if err != nil {
		return err
	}
	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst), zap.String("href", href))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return transform(ctx, src, dst, linkStylesheet(href), log)
}

func sourceArg(cmd *cli.Command) (string, error) {
	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return "", errors.New("no input source has been specified")
	}
	return filepath.Abs(src)
}

func pathArgs(cmd *cli.Command, log *zap.Logger) (src, dst string, err error) {
	if src, err = sourceArg(cmd); err != nil {
		return "", "", err
	}
	dst = cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return "", "", fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return "", "", err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	return src, dst, nil
}

// source is a single book to process.
type source struct {
	// path is absolute location of the book
	path string
	// rel is path relative to requested source, just base name for
	// individual files
	rel string
}

// collect finds books under src, which could be a single file or a directory
// walked recursively. Symbolic links are not followed.
func collect(ctx context.Context, src string, order config.ListOrder, log *zap.Logger) ([]source, error) {
	fi, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("input source was not found (%s): %w", src, err)
	}
	if fi.Mode().IsRegular() {
		if !isBookName(src) {
			log.Warn("Source does not look like EPUB book, trying anyway", zap.String("file", src))
		}
		return []source{{path: src, rel: filepath.Base(src)}}, nil
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("unexpected path mode for (%s)", src)
	}

	var books []source
	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if !isBookName(path) {
			log.Debug("Skipping file, not recognized as book", zap.String("file", path))
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		books = append(books, source{path: path, rel: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(books, func(i, j int) bool {
		return order.Less(books[i].rel, books[j].rel)
	})
	if len(books) == 0 {
		log.Debug("Nothing to process", zap.String("dir", src))
	}
	return books, nil
}

func listOrder(env *state.LocalEnv) config.ListOrder {
	if env.Cfg == nil {
		return config.ListOrderNatural
	}
	return env.Cfg.Inspect.Order
}

// editFunc changes loaded book before it is saved.
type editFunc func(b *epub.Book, log *zap.Logger) error

func linkStylesheet(href string) editFunc {
	return func(b *epub.Book, log *zap.Logger) error {
		res, err := b.Resources.ByHref(href)
		if err != nil {
			return fmt.Errorf("unable to find stylesheet: %w", err)
		}
		n, err := b.LinkStylesheet(res.File())
		if err != nil {
			return err
		}
		log.Debug("Stylesheet linked", zap.String("stylesheet", res.File()), zap.Int("pages", n))
		return nil
	}
}

// transform processes every book found under src writing results to dst.
// Failure of a single book is logged and does not stop processing.
func transform(ctx context.Context, src, dst string, edit editFunc, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)

	books, err := collect(ctx, src, listOrder(env), log)
	if err != nil {
		return err
	}
	single := len(books) == 1 && books[0].path == src

	var failed int
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := outputPath(book, dst, single, env.FlattenOutput())
		if err := processBook(ctx, book, out, edit, log); err != nil {
			failed++
			log.Error("Unable to process book", zap.String("file", book.path), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("unable to process %d of %d book(s)", failed, len(books))
	}
	return nil
}

// outputPath builds destination file name. Single book may be saved under
// explicit file name, otherwise dst is a directory.
func outputPath(book source, dst string, single, flatten bool) string {
	if single && isBookName(dst) {
		if fi, err := os.Stat(dst); err != nil || !fi.IsDir() {
			return dst
		}
	}
	rel := book.rel
	if flatten {
		rel = filepath.Base(rel)
	}
	dir, name := filepath.Split(rel)
	return filepath.Join(dst, dir, config.CleanFileName(name))
}

func processBook(ctx context.Context, src source, out string, edit editFunc, log *zap.Logger) (rerr error) {
	env := state.EnvFromContext(ctx)

	log.Info("Processing book", zap.String("from", src.path), zap.String("to", out))
	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Processing ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("to", out), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("processing panic: %v", r)
		} else if rerr == nil {
			log.Info("Book processed", zap.Duration("elapsed", time.Since(start)), zap.String("to", out))
		}
	}(time.Now())

	if _, err := os.Stat(out); err == nil {
		if !env.OverwriteAllowed() {
			return fmt.Errorf("output file already exists: %s", out)
		}
		log.Warn("Overwriting existing file", zap.String("file", out))
	} else if !os.IsNotExist(err) {
		return err
	}

	rpt := env.Rpt.Book(src.rel)
	if err := rpt.Source(src.path); err != nil {
		log.Warn("Unable to keep copy of the source for report", zap.Error(err))
	}

	b, err := epub.Open(src.path, env.BookOptions(), log)
	if err != nil {
		return err
	}
	defer b.Close()
	defer func() {
		// table of contents as it was saved, or as far as processing went
		rpt.Toc(b.Toc.Dump(), diagnosticLines(b.Toc.Diagnostics()))
	}()

	if edit != nil {
		if err := edit(b, log); err != nil {
			return err
		}
	}
	if err := b.Save(out); err != nil {
		return fmt.Errorf("unable to save book: %w", err)
	}

	rpt.Result(out)
	return nil
}

func diagnosticLines(diags epub.Diagnostics) []string {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		lines = append(lines, d.String())
	}
	return lines
}
