package epub

import "epubkit/common"

// Options control how documents are parsed and synthesized.
type Options struct {
	// Strict turns recoverable anomalies into errors.
	Strict bool
	// Identifiers selects what to do with navigation items without id.
	Identifiers common.IdentifierPolicy
	// NavTitle is used as header and document title of synthesized
	// navigation documents.
	NavTitle string
	// NcxFile and NavFile name synthesized documents, relative to the
	// package document directory.
	NcxFile string
	NavFile string
	// CheckAnchors verifies entry fragments against page content on load.
	CheckAnchors bool
	// FixZip rewrites saved archive without data descriptors, some readers
	// cannot handle them.
	FixZip bool
}

// DefaultOptions returns lenient options.
func DefaultOptions() Options {
	return Options{
		Identifiers: common.IdentifierPolicyDerive,
		NavTitle:    "Table of Contents",
		NcxFile:     "toc.ncx",
		NavFile:     "nav.xhtml",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.NavTitle == "" {
		o.NavTitle = def.NavTitle
	}
	if o.NcxFile == "" {
		o.NcxFile = def.NcxFile
	}
	if o.NavFile == "" {
		o.NavFile = def.NavFile
	}
	return o
}
