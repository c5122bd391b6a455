package config

import "github.com/maruel/natural"

//go:generate go tool go-enum --marshal --names --nocase

// Order of listed books and resources.
// ENUM(manifest, natural)
type ListOrder int

// Less compares names according to the order. Manifest order keeps original
// sequence, so nothing is less than anything.
func (x ListOrder) Less(a, b string) bool {
	if x == ListOrderNatural {
		return natural.Less(a, b)
	}
	return false
}
