package archive

import "path"

// Filter selects entries by normalized archive name. A nil Filter accepts
// every entry.
type Filter func(name string) bool

// Accept reports whether f admits name.
func (f Filter) Accept(name string) bool {
	return f == nil || f(name)
}

// MatchNames accepts exactly the given names after normalization.
// Names that fail normalization never match.
func MatchNames(names ...string) Filter {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if nn, err := NormalizeName(n); err == nil {
			set[nn] = struct{}{}
		}
	}
	return func(name string) bool {
		_, ok := set[name]
		return ok
	}
}

// MatchPattern accepts names matching a path.Match glob, tried against the
// full name and against its base name.
func MatchPattern(pattern string) Filter {
	return func(name string) bool {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
		ok, _ := path.Match(pattern, path.Base(name))
		return ok
	}
}
