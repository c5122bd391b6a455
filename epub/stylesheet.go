package epub

import (
	"bytes"
	"errors"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// StyleSheetResource is a CSS file. Only external references are of interest
// here, rules are never touched.
type StyleSheetResource struct {
	resourceBase
}

// References lists targets of @import rules and url() values in order of
// appearance.
func (s *StyleSheetResource) References() ([]string, error) {
	data, err := s.Data()
	if err != nil {
		return nil, err
	}

	lexer := css.NewLexer(parse.NewInput(bytes.NewReader(data)))

	var (
		refs     []string
		inImport bool
	)
	for {
		tt, text := lexer.Next()
		switch tt {
		case css.ErrorToken:
			if err := lexer.Err(); err != nil && !errors.Is(err, io.EOF) {
				return refs, err
			}
			return refs, nil
		case css.AtKeywordToken:
			inImport = strings.EqualFold(string(text), "@import")
		case css.URLToken:
			if ref := unquoteCSS(trimURL(string(text))); ref != "" {
				refs = append(refs, ref)
			}
			inImport = false
		case css.StringToken:
			if inImport {
				if ref := unquoteCSS(string(text)); ref != "" {
					refs = append(refs, ref)
				}
				inImport = false
			}
		case css.SemicolonToken, css.LeftBraceToken:
			inImport = false
		}
	}
}

func trimURL(s string) string {
	if len(s) >= 5 && strings.EqualFold(s[:4], "url(") && strings.HasSuffix(s, ")") {
		return strings.TrimSpace(s[4 : len(s)-1])
	}
	return s
}

func unquoteCSS(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
