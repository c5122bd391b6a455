package epub

import (
	"path"
	"strings"
)

// resolvePath resolves href (already unescaped) found in document docFile
// into container-root path. Returns empty string for paths escaping
// container.
func resolvePath(docFile, href string) string {
	if href == "" {
		return docFile
	}
	var p string
	if strings.HasPrefix(href, "/") {
		p = path.Clean(strings.TrimPrefix(href, "/"))
	} else {
		p = path.Clean(path.Join(path.Dir(docFile), href))
	}
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return ""
	}
	return p
}

// relativePath computes path of target relative to directory of docFile, both
// being container-root paths.
func relativePath(docFile, target string) string {
	from := splitDir(path.Dir(docFile))
	to := strings.Split(path.Clean(target), "/")

	common := 0
	for common < len(from) && common < len(to)-1 && from[common] == to[common] {
		common++
	}

	parts := make([]string, 0, len(from)-common+len(to)-common)
	for range len(from) - common {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)
	return strings.Join(parts, "/")
}

func splitDir(dir string) []string {
	dir = path.Clean(dir)
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(dir, "/"), "/")
}
