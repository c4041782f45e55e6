// Package markdown renders documentation pages to HTML and extracts their
// table of contents.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultStyle is the chroma style used for fenced code blocks
const DefaultStyle = "github"

// CopyButtonClass is the class of the button injected into code blocks
const CopyButtonClass = "copy-button"

var absoluteURL = regexp.MustCompile(`(?i)^(?:[a-z][a-z0-9+.-]*:|//)`)

// IsRelativeURL reports whether href has neither a scheme nor a leading "//"
func IsRelativeURL(href string) bool {
	return !absoluteURL.MatchString(href)
}

// Options configures a Renderer
type Options struct {
	// ResolveHref rewrites relative link destinations. Nil leaves links as written.
	ResolveHref func(href string) string
	// Style is the chroma style name. Defaults to DefaultStyle.
	Style string
}

// Result is a rendered page
type Result struct {
	HTML     string
	Headings []domain.Heading
}

// Renderer converts GitHub flavored markdown to HTML
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a new renderer
func NewRenderer(opts Options) *Renderer {
	style := opts.Style
	if style == "" {
		style = DefaultStyle
	}

	parserOpts := []parser.Option{parser.WithAutoHeadingID()}
	if opts.ResolveHref != nil {
		parserOpts = append(parserOpts, parser.WithASTTransformers(
			util.Prioritized(&linkTransformer{resolve: opts.ResolveHref}, 100),
		))
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)

	return &Renderer{md: md}
}

// Render converts source to HTML. Identical input always yields identical output.
func (r *Renderer) Render(ctx context.Context, source string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailed, err)
	}

	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailed, err)
	}

	body := doc.Find("body")
	linkHeadings(body)
	addCopyButtons(body)
	headings := tableOfContents(body)

	out, err := body.Html()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRenderFailed, err)
	}

	return &Result{HTML: out, Headings: headings}, nil
}

// linkHeadings prepends a self link to every heading that has an id
func linkHeadings(root *goquery.Selection) {
	root.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("id")
		if !ok || id == "" {
			return
		}
		s.PrependNodes(anchorNode(id))
	})
}

func anchorNode(id string) *html.Node {
	a := &html.Node{
		Type:     html.ElementNode,
		Data:     "a",
		DataAtom: atom.A,
		Attr: []html.Attribute{
			{Key: "aria-hidden", Val: "true"},
			{Key: "tabindex", Val: "-1"},
			{Key: "href", Val: "#" + id},
		},
	}
	a.AppendChild(&html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr:     []html.Attribute{{Key: "class", Val: "icon icon-link"}},
	})
	return a
}

// addCopyButtons appends a button carrying the code text to every pre block
func addCopyButtons(root *goquery.Selection) {
	root.Find("pre").Each(func(_ int, s *goquery.Selection) {
		code := s.Text()
		s.AppendNodes(&html.Node{
			Type:     html.ElementNode,
			Data:     "button",
			DataAtom: atom.Button,
			Attr: []html.Attribute{
				{Key: "type", Val: "button"},
				{Key: "class", Val: CopyButtonClass},
				{Key: "title", Val: "Copy code"},
				{Key: "data-code", Val: code},
			},
		})
	})
}

// tableOfContents collects h2 and h3 headings in document order
func tableOfContents(root *goquery.Selection) []domain.Heading {
	headings := []domain.Heading{}
	root.Find("h2, h3").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		level := 2
		if goquery.NodeName(s) == "h3" {
			level = 3
		}

		inner := s.Clone()
		inner.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			return href == "#"+id
		}).Remove()
		content, _ := inner.Html()

		headings = append(headings, domain.Heading{
			Level:    level,
			HTML:     strings.TrimSpace(content),
			AnchorID: id,
		})
	})
	return headings
}
