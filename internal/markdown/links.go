package markdown

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// linkTransformer rewrites relative link destinations before rendering
type linkTransformer struct {
	resolve func(string) string
}

func (t *linkTransformer) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}
		dest := string(link.Destination)
		if dest != "" && IsRelativeURL(dest) {
			link.Destination = []byte(t.resolve(dest))
		}
		return ast.WalkContinue, nil
	})
}

// StripMarkdownExt resolves "guide/setup.md#install" to "guide/setup#install".
// Destinations without a ".md" path are returned unchanged.
func StripMarkdownExt(href string) string {
	path, rest := href, ""
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		path, rest = href[:i], href[i:]
	}
	if trimmed, ok := strings.CutSuffix(path, ".md"); ok && trimmed != "" {
		return trimmed + rest
	}
	return href
}
