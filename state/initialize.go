package state

import (
	"os"
	"time"

	"epubkit/epub"
)

// newLocalEnv creates a new LocalEnv instance with default values
func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start: time.Now(),
		Out:   os.Stdout,
	}
}

// BookOptions translates configuration into options for loading and saving
// books. Without configuration library defaults are used.
func (e *LocalEnv) BookOptions() epub.Options {
	opts := epub.DefaultOptions()
	if e.Cfg == nil {
		return opts
	}
	toc := e.Cfg.Toc
	opts.Strict = toc.Strict
	opts.Identifiers = toc.Identifiers
	opts.NavTitle = toc.NavTitle
	opts.NcxFile = toc.NcxFile
	opts.NavFile = toc.NavFile
	opts.CheckAnchors = toc.CheckAnchors
	opts.FixZip = e.Cfg.Output.FixZip
	return opts
}

// OverwriteAllowed reports whether existing destination files may be replaced.
func (e *LocalEnv) OverwriteAllowed() bool {
	return e.Overwrite || (e.Cfg != nil && e.Cfg.Output.Overwrite)
}

// FlattenOutput reports whether source directory structure is dropped in
// destination.
func (e *LocalEnv) FlattenOutput() bool {
	return e.NoDirs || (e.Cfg != nil && e.Cfg.Output.NoDirs)
}
