// Enums shared by configuration and the book model. Kept in a separate package
// so epub does not depend on program configuration.
package common

//go:generate go tool go-enum --marshal --names --nocase

// Policy for navigation items which do not carry an id attribute.
// ENUM(derive, require)
type IdentifierPolicy int

// Derived reports whether missing identifiers are made up from titles.
func (p IdentifierPolicy) Derived() bool {
	return p == IdentifierPolicyDerive
}
