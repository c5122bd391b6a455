package epub

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/gosimple/slug"
)

// Identifier is a value of XML id attribute. Zero value means "no identifier".
type Identifier string

// NewIdentifier validates s as XML NCName.
func NewIdentifier(s string) (Identifier, error) {
	if !isNCName(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return Identifier(s), nil
}

// MustIdentifier is like NewIdentifier but panics on invalid input. Intended
// for constants and tests.
func MustIdentifier(s string) Identifier {
	id, err := NewIdentifier(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identifier) String() string {
	return string(id)
}

func (id Identifier) IsZero() bool {
	return id == ""
}

func isNCName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)):
		default:
			return false
		}
	}
	return true
}

// DeriveIdentifier makes identifier out of entry title: lower cased,
// transliterated, words joined with underscores.
func DeriveIdentifier(title string) Identifier {
	s := strings.ReplaceAll(slug.Make(title), "-", "_")
	if s == "" {
		return "entry"
	}
	if !isNCName(s) {
		s = "entry_" + s
	}
	return Identifier(s)
}

// IdentifierSet tracks identifiers already handed out within one document.
// Reserved identifiers are skipped when numeric variants are made, but can
// still be taken as is with ClaimExact.
type IdentifierSet struct {
	used     map[Identifier]struct{}
	reserved map[Identifier]struct{}
}

func NewIdentifierSet() *IdentifierSet {
	return &IdentifierSet{
		used:     make(map[Identifier]struct{}),
		reserved: make(map[Identifier]struct{}),
	}
}

// Has reports whether id was claimed.
func (s *IdentifierSet) Has(id Identifier) bool {
	_, ok := s.used[id]
	return ok
}

// Reserve keeps id for later ClaimExact.
func (s *IdentifierSet) Reserve(id Identifier) {
	if !s.Has(id) {
		s.reserved[id] = struct{}{}
	}
}

func (s *IdentifierSet) taken(id Identifier) bool {
	_, ok := s.reserved[id]
	return ok || s.Has(id)
}

// Release makes id available again.
func (s *IdentifierSet) Release(id Identifier) {
	delete(s.used, id)
}

// ClaimExact registers id unless it was already claimed. Reservation of id
// is consumed.
func (s *IdentifierSet) ClaimExact(id Identifier) bool {
	if s.Has(id) {
		return false
	}
	delete(s.reserved, id)
	s.used[id] = struct{}{}
	return true
}

// Claim registers id and returns it. When id is already taken or reserved
// first free variant with numeric suffix (id_2, id_3, ...) is registered and
// returned.
func (s *IdentifierSet) Claim(id Identifier) Identifier {
	if !s.taken(id) {
		s.used[id] = struct{}{}
		return id
	}
	for n := 2; ; n++ {
		cand := Identifier(string(id) + "_" + strconv.Itoa(n))
		if !s.taken(cand) {
			s.used[cand] = struct{}{}
			return cand
		}
	}
}

// Locator is URI reference found in book documents (href, src). It is kept
// exactly as written and resolved against resources only when requested.
type Locator struct {
	raw string
	u   *url.URL
}

// ParseLocator parses URI reference.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil {
		return Locator{}, fmt.Errorf("bad locator %q: %w", s, err)
	}
	return Locator{raw: s, u: u}, nil
}

// NewLocator builds locator from path and optional fragment.
func NewLocator(p, fragment string) Locator {
	u := &url.URL{Path: p, Fragment: fragment}
	return Locator{raw: u.String(), u: u}
}

func (l Locator) String() string {
	return l.raw
}

func (l Locator) IsZero() bool {
	return l.u == nil
}

// Path returns unescaped path part.
func (l Locator) Path() string {
	if l.u == nil {
		return ""
	}
	return l.u.Path
}

// Fragment returns fragment identifier without leading '#'.
func (l Locator) Fragment() string {
	if l.u == nil {
		return ""
	}
	return l.u.Fragment
}

// IsExternal reports locators pointing outside of the container.
func (l Locator) IsExternal() bool {
	return l.u != nil && (l.u.Scheme != "" || l.u.Host != "")
}
