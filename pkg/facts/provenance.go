package facts

import "strings"

// Provenance maps attribute paths to the identifiers of the plugins that
// wrote them, in first-write order.
type Provenance struct {
	paths   []string
	writers map[string][]string
}

// NewProvenance creates an empty index.
func NewProvenance() *Provenance {
	return &Provenance{
		paths:   make([]string, 0),
		writers: make(map[string][]string),
	}
}

// Record notes that identifier wrote path.
func (p *Provenance) Record(path, identifier string) {
	path = CleanPath(path)
	ids, exists := p.writers[path]
	if !exists {
		p.paths = append(p.paths, path)
	}
	for _, id := range ids {
		if id == identifier {
			return
		}
	}
	p.writers[path] = append(ids, identifier)
}

// Contributors returns the identifiers that wrote at path, beneath it, or
// at one of its ancestors (an ancestor write covers the whole subtree).
func (p *Provenance) Contributors(path string) []string {
	path = CleanPath(path)
	seen := make(map[string]bool)
	out := make([]string, 0)

	for _, recorded := range p.paths {
		if !overlaps(recorded, path) {
			continue
		}
		for _, id := range p.writers[recorded] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// PathsFor returns every path identifier has written, in first-write order.
func (p *Provenance) PathsFor(identifier string) []string {
	out := make([]string, 0)
	for _, path := range p.paths {
		for _, id := range p.writers[path] {
			if id == identifier {
				out = append(out, path)
				break
			}
		}
	}
	return out
}

// overlaps reports whether a is equal to, inside, or encloses b.
func overlaps(a, b string) bool {
	return isWithin(a, b) || isWithin(b, a)
}

// isWithin reports whether path equals prefix or lies beneath it.
func isWithin(path, prefix string) bool {
	if prefix == "" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+Separator)
}
