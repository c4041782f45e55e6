package archive

import (
	"path"
	"regexp"
	"strings"
)

// MarkdownExt is the suffix of files picked up by the default pattern
const MarkdownExt = ".md"

// Pattern selects archive entries by their root-stripped path
type Pattern struct {
	prefix string
	re     *regexp.Regexp
}

// NewPattern matches "<prefix>/**/*.md". An empty prefix matches every
// markdown file in the archive.
func NewPattern(prefix string) *Pattern {
	prefix = strings.Trim(prefix, "/")
	expr := `^(.+)` + regexp.QuoteMeta(MarkdownExt) + `$`
	if prefix != "" {
		expr = `^` + regexp.QuoteMeta(prefix) + `/(.+)` + regexp.QuoteMeta(MarkdownExt) + `$`
	}
	return &Pattern{
		prefix: prefix,
		re:     regexp.MustCompile(expr),
	}
}

// Prefix returns the docs directory the pattern is anchored to
func (p *Pattern) Prefix() string {
	return p.prefix
}

// Match reports whether rel matches and returns it relative to the prefix
func (p *Pattern) Match(rel string) (string, bool) {
	m := p.re.FindStringSubmatch(rel)
	if m == nil {
		return "", false
	}
	return m[1] + MarkdownExt, true
}

// StripRoot removes the synthetic "<repo>-<ref>" directory from an entry name.
// Names without a second component (the root itself, pax headers) return "".
func StripRoot(name string) string {
	name = strings.TrimPrefix(name, "./")
	parts := strings.SplitN(name, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	rel := path.Clean(parts[1])
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return ""
	}
	return rel
}
