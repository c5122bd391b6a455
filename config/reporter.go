package config

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"epubkit/misc"
)

type ReporterConfig struct {
	Destination string `yaml:"destination" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
}

// Prepare creates initialized empty reporter.
func (conf *ReporterConfig) Prepare() (*Report, error) {
	f, err := os.Create(conf.Destination)
	if err != nil {
		if f, err = os.CreateTemp("", misc.GetAppName()+"-report.*.zip"); err != nil {
			return nil, fmt.Errorf("unable to create report: %w", err)
		}
	}
	return &Report{items: make(map[string]item), file: f}, nil
}

// item is a single file of the report. It either refers to file on disk or
// carries its content.
type item struct {
	origin string
	file   string
	data   []byte
	stamp  time.Time
}

// Report collects debug information: logs, configuration and, for every
// processed book, its source, result and table of contents as it was
// understood. Everything is written into single zip archive on Close.
// Not safe for concurrent use.
//
// All methods could be called on nil report, which means no report was
// requested.
type Report struct {
	items map[string]item
	// copies made by StoreCopy, removed on Close
	copies string
	file   *os.File
}

// Close writes the archive and removes temporary copies.
func (r *Report) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	defer r.file.Close()
	if r.copies != "" {
		defer os.RemoveAll(r.copies)
	}
	return r.write()
}

// Name returns name of the report archive.
func (r *Report) Name() string {
	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

func (r *Report) add(name string, it item) {
	if old, exists := r.items[name]; exists && (it.origin == "" || old.origin != it.origin) {
		panic(fmt.Sprintf("report entry %s is already taken by %q", name, old.origin))
	}
	r.items[name] = it
}

// Store puts file into the report as it is at the time of Close. Files which
// do not exist by then are skipped.
func (r *Report) Store(name, file string) {
	if r == nil {
		return
	}
	it := item{origin: file, file: file}
	if p, err := filepath.Abs(file); err == nil {
		it.file = p
	}
	r.add(name, it)
}

// StoreData puts data into the report under name.
func (r *Report) StoreData(name string, data []byte) {
	if r == nil {
		return
	}
	r.add(name, item{data: data, stamp: time.Now()})
}

// StoreCopy puts file into the report as it is now. Name is versioned with
// timestamp when already taken.
func (r *Report) StoreCopy(name, file string) error {
	if r == nil {
		return nil
	}
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("unable to copy %s into report: not a regular file", file)
	}

	if r.copies == "" {
		if r.copies, err = os.MkdirTemp("", misc.GetAppName()+"-r-"); err != nil {
			return err
		}
	}
	dst := filepath.Join(r.copies, strconv.Itoa(len(r.items))+"-"+filepath.Base(file))
	if err := copyFile(dst, file, info.ModTime()); err != nil {
		return err
	}

	it := item{origin: file, file: dst, stamp: info.ModTime()}
	if _, exists := r.items[name]; exists {
		name = fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
	}
	r.items[name] = it
	return nil
}

// Book returns section of the report for book located at rel (relative to
// processed source).
func (r *Report) Book(rel string) *BookReport {
	if r == nil {
		return nil
	}
	return &BookReport{r: r, dir: path.Join("books", filepath.ToSlash(rel))}
}

// BookReport groups report entries of a single book.
type BookReport struct {
	r   *Report
	dir string
}

// Source keeps copy of the book as it was before processing.
func (b *BookReport) Source(file string) error {
	if b == nil {
		return nil
	}
	return b.r.StoreCopy(path.Join(b.dir, "source"+filepath.Ext(file)), file)
}

// Result refers to the book produced.
func (b *BookReport) Result(file string) {
	if b == nil {
		return
	}
	b.r.Store(path.Join(b.dir, "result"+filepath.Ext(file)), file)
}

// Toc stores dump of table of contents with diagnostics, if any.
func (b *BookReport) Toc(dump string, diagnostics []string) {
	if b == nil {
		return
	}
	b.r.StoreData(path.Join(b.dir, "toc.txt"), []byte(dump))
	if len(diagnostics) > 0 {
		b.r.StoreData(path.Join(b.dir, "diagnostics.txt"), []byte(strings.Join(diagnostics, "\n")+"\n"))
	}
}

func copyFile(dst, src string, modTime time.Time) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, modTime, modTime)
}

// write creates the archive, MANIFEST first and then items in the same order
// they are listed there.
func (r *Report) write() error {
	arc := zip.NewWriter(r.file)
	defer arc.Close()

	now := time.Now()
	names := slices.Sorted(maps.Keys(r.items))

	var manifest bytes.Buffer
	for _, name := range names {
		it := r.items[name]
		stamp := it.stamp
		if stamp.IsZero() {
			stamp = now
		}
		fmt.Fprintf(&manifest, "%s\t%s\t%s : %s\n", stamp.UTC().Format(time.UnixDate), name, it.origin, it.file)
	}
	if err := addToArchive(arc, "MANIFEST", now, &manifest); err != nil {
		return err
	}

	for _, name := range names {
		it := r.items[name]
		if it.data != nil {
			if err := addToArchive(arc, name, it.stamp, bytes.NewReader(it.data)); err != nil {
				return err
			}
			continue
		}
		if err := addFileToArchive(arc, name, it.file); err != nil {
			return err
		}
	}
	return nil
}

func addFileToArchive(arc *zip.Writer, name, file string) error {
	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() {
		// file is gone or never was there
		return nil
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return addToArchive(arc, name, info.ModTime(), f)
}

func addToArchive(arc *zip.Writer, name string, t time.Time, src io.Reader) error {
	w, err := arc.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
