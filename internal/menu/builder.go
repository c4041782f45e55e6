// Package menu turns the documents of a source tree into a navigation tree.
package menu

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"github.com/quantmind-br/docgate/internal/domain"
)

// Entry is one document read from the archive
type Entry struct {
	Filename   string
	Attributes domain.DocAttributes
	HasContent bool
}

// Builder assembles menu trees for a fixed documentation prefix
type Builder struct {
	prefix *regexp.Regexp
}

// NewBuilder creates a Builder that strips everything up to and including
// the prefix directory from filenames. An empty prefix strips nothing.
func NewBuilder(prefix string) *Builder {
	prefix = strings.Trim(prefix, "/")
	b := &Builder{}
	if prefix != "" {
		b.prefix = regexp.MustCompile(`^(.+/)?` + regexp.QuoteMeta(prefix) + `/`)
	}
	return b
}

// Slug derives the URL slug of a filename: prefix, ".md" suffix, a trailing
// "index" segment and trailing slashes are removed.
func (b *Builder) Slug(filename string) string {
	slug := filename
	if b.prefix != nil {
		slug = b.prefix.ReplaceAllString(slug, "")
	}
	slug = strings.TrimSuffix(slug, ".md")
	if slug == "index" {
		slug = ""
	}
	slug = strings.TrimSuffix(slug, "/index")
	return strings.TrimRight(slug, "/")
}

// Build returns the top-level menu nodes. Entries with an empty slug or
// marked hidden are dropped; an entry whose parent was dropped is promoted to
// the top level.
func (b *Builder) Build(entries []Entry) []*domain.MenuNode {
	nodes := make([]*domain.MenuNode, 0, len(entries))
	for _, e := range entries {
		slug := b.Slug(e.Filename)
		if slug == "" || e.Attributes.Hidden {
			continue
		}
		nodes = append(nodes, &domain.MenuNode{
			Slug:       slug,
			Filename:   e.Filename,
			Attributes: e.Attributes,
			HasContent: e.HasContent,
			Children:   []*domain.MenuNode{},
		})
	}

	// parents sort before their descendants
	slices.SortStableFunc(nodes, func(x, y *domain.MenuNode) int {
		return strings.Compare(x.Slug, y.Slug)
	})

	tree := make([]*domain.MenuNode, 0, len(nodes))
	index := make(map[string]*domain.MenuNode, len(nodes))
	for _, node := range nodes {
		parent, ok := index[parentSlug(node.Slug)]
		if ok {
			parent.Children = append(parent.Children, node)
		} else {
			tree = append(tree, node)
		}
		index[node.Slug] = node
	}

	sortByOrder(tree)
	return tree
}

func parentSlug(slug string) string {
	i := strings.LastIndex(slug, "/")
	if i < 0 {
		return ""
	}
	return slug[:i]
}

// sortByOrder orders siblings by ascending order with missing orders last,
// keeping the slug order for ties.
func sortByOrder(nodes []*domain.MenuNode) {
	slices.SortStableFunc(nodes, compareOrder)
	for _, n := range nodes {
		sortByOrder(n.Children)
	}
}

func compareOrder(x, y *domain.MenuNode) int {
	xa, ya := x.Attributes, y.Attributes
	switch {
	case !xa.HasOrder() && !ya.HasOrder():
		return 0
	case !xa.HasOrder():
		return 1
	case !ya.HasOrder():
		return -1
	}
	return cmp.Compare(*xa.Order, *ya.Order)
}

// Flatten returns every node of the tree in depth-first order
func Flatten(tree []*domain.MenuNode) []*domain.MenuNode {
	var out []*domain.MenuNode
	var walk func([]*domain.MenuNode)
	walk = func(nodes []*domain.MenuNode) {
		for _, n := range nodes {
			out = append(out, n)
			walk(n.Children)
		}
	}
	walk(tree)
	return out
}
