package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// presets expand a family name into the file patterns commonly used for it.
var presets = map[string][]string{
	"chip8": {"*.ch8", "*.c8", "*.sc8", "*.xo8"},
}

// Filter decides which directory entries become catalog entries. The zero
// value accepts everything.
type Filter struct {
	patterns []*regexp.Regexp
}

// NewFilter compiles shell-style patterns ("*" and "?" wildcards) into a
// case-insensitive Filter. A preset name such as "chip8" may be used in
// place of a pattern.
func NewFilter(patterns ...string) (Filter, error) {
	var f Filter
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		expanded, ok := presets[strings.ToLower(p)]
		if !ok {
			expanded = []string{p}
		}
		for _, glob := range expanded {
			re, err := globToRegexp(glob)
			if err != nil {
				return Filter{}, fmt.Errorf("invalid include pattern %q: %w", glob, err)
			}
			f.patterns = append(f.patterns, re)
		}
	}
	return f, nil
}

// Match reports whether name passes the filter.
func (f Filter) Match(name string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, re := range f.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?i)^`)
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}
