package epub

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrClosed              = errors.New("book is closed")
	ErrEmptyToc            = errors.New("table of contents has no entries")
	ErrEmptyNavMap         = errors.New("navMap must have at least one navPoint")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrNotPage             = errors.New("resource is not a page")
	ErrNoRootfile          = errors.New("container has no rootfile")
	ErrMissingIdentifier   = errors.New("navigation item has no identifier")
	ErrDetachedEntry       = errors.New("entry is not part of the tree")
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
)

// MalformedError reports structural violation found while parsing one of the
// book documents. It is always fatal for the document being loaded.
type MalformedError struct {
	File    string
	Element string
	Reason  string
}

func (e *MalformedError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("malformed %s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("malformed %s: <%s> %s", e.File, e.Element, e.Reason)
}

func malformed(file, element, format string, args ...any) error {
	return &MalformedError{File: file, Element: element, Reason: fmt.Sprintf(format, args...)}
}

// CrossRefError reports reference which cannot be resolved to a resource of
// the expected kind. It is raised when reference is dereferenced, not when
// document is parsed.
type CrossRefError struct {
	File   string
	Ref    string
	Reason string
	Err    error
}

func (e *CrossRefError) Error() string {
	var b strings.Builder
	b.WriteString("unresolved reference")
	if e.Ref != "" {
		fmt.Fprintf(&b, " %q", e.Ref)
	}
	if e.File != "" {
		fmt.Fprintf(&b, " in %s", e.File)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CrossRefError) Unwrap() error {
	return e.Err
}

// Diagnostic is a recoverable anomaly noticed during parsing.
type Diagnostic struct {
	File    string
	Element string
	Message string
}

func (d Diagnostic) String() string {
	if d.Element == "" {
		return fmt.Sprintf("%s: %s", d.File, d.Message)
	}
	return fmt.Sprintf("%s: <%s> %s", d.File, d.Element, d.Message)
}

// Diagnostics collects anomalies in the order they were found.
type Diagnostics []Diagnostic

// Err combines all diagnostics into single error, nil when there are none.
func (ds Diagnostics) Err() error {
	var err error
	for _, d := range ds {
		err = multierr.Append(err, &MalformedError{File: d.File, Element: d.Element, Reason: d.Message})
	}
	return err
}

// report records anomaly. In strict mode caller is expected to turn
// collected diagnostics into error with Err().
func (ds *Diagnostics) report(log *zap.Logger, d Diagnostic) {
	*ds = append(*ds, d)
	log.Warn("Navigation anomaly, skipping", zap.String("file", d.File), zap.String("element", d.Element), zap.String("problem", d.Message))
}
