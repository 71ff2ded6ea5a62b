package engine

import (
	"strings"

	"github.com/tidwall/pretty"

	"github.com/openfroyo/hostfacts/pkg/facts"
)

var prettyOptions = &pretty.Options{
	Width:    80,
	Prefix:   "",
	Indent:   "  ",
	SortKeys: false,
}

// SerializeAll renders the whole tree as JSON. Object keys keep the order in
// which plugins first wrote them.
func (s *System) SerializeAll(indent bool) ([]byte, error) {
	return encode(s.tree.Root(), indent)
}

// SerializeSubtree renders the node at path. A string node renders as an
// array of its lines, each keeping its line terminator. Booleans and nulls
// cannot be rendered on their own.
func (s *System) SerializeSubtree(path string, indent bool) ([]byte, error) {
	value, ok := s.tree.Lookup(path)
	if !ok || value == nil {
		return nil, NewInvalidArgumentError(facts.CleanPath(path))
	}

	switch v := value.(type) {
	case *facts.Mash, []any, int64, float64:
		return encode(v, indent)
	case string:
		return encode(lines(v), indent)
	default:
		return nil, NewUnsupportedTypeError(facts.CleanPath(path), v)
	}
}

func encode(v any, indent bool) ([]byte, error) {
	data, err := facts.Marshal(v)
	if err != nil {
		return nil, err
	}
	if indent {
		return pretty.PrettyOptions(data, prettyOptions), nil
	}
	return data, nil
}

// lines splits s after every newline. The empty remainder after a trailing
// newline is dropped, so "a\nb\n" gives ["a\n", "b\n"].
func lines(s string) []string {
	parts := strings.SplitAfter(s, "\n")
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}
