// Package gateway serves documentation menus, rendered pages and images of
// repositories through three independently tuned caches.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/quantmind-br/docgate/internal/archive"
	"github.com/quantmind-br/docgate/internal/cache"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/frontmatter"
	"github.com/quantmind-br/docgate/internal/markdown"
	"github.com/quantmind-br/docgate/internal/menu"
	"github.com/quantmind-br/docgate/internal/utils"
)

// DefaultDocsPath is the repository directory holding documentation
const DefaultDocsPath = "docs"

// CacheSettings sizes one cache
type CacheSettings struct {
	Capacity int
	TTL      time.Duration
}

// Options configures a Gateway
type Options struct {
	Archives domain.ArchiveFetcher
	Files    domain.FileFetcher
	DocsPath string

	Menu  CacheSettings
	Doc   CacheSettings
	Image CacheSettings
	// NoCache makes every request refresh its entry
	NoCache bool

	MaxFileSize int64
	Renderer    *markdown.Renderer
	Logger      *utils.Logger
	Now         func() time.Time
}

// DefaultOptions returns the default cache sizing
func DefaultOptions() Options {
	return Options{
		DocsPath:    DefaultDocsPath,
		Menu:        CacheSettings{Capacity: cache.DefaultMenuCapacity, TTL: cache.DefaultMenuTTL},
		Doc:         CacheSettings{Capacity: cache.DefaultDocCapacity, TTL: cache.DefaultDocTTL},
		Image:       CacheSettings{Capacity: cache.DefaultImageCapacity, TTL: cache.DefaultImageTTL},
		MaxFileSize: archive.DefaultMaxFileSize,
	}
}

// Gateway resolves menus, documents and images of a repository at a ref
type Gateway struct {
	archives domain.ArchiveFetcher
	files    domain.FileFetcher
	pattern  *archive.Pattern
	builder  *menu.Builder
	renderer *markdown.Renderer
	maxSize  int64
	logger   *utils.Logger

	menus  *cache.Memo[[]*domain.MenuNode]
	docs   *cache.Memo[*domain.RenderedDoc]
	images *cache.Memo[[]byte]
}

// New creates a gateway and its caches
func New(opts Options) (*Gateway, error) {
	if opts.Archives == nil || opts.Files == nil {
		return nil, errors.New("gateway: archive and file fetchers are required")
	}

	defaults := DefaultOptions()
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaults.MaxFileSize
	}
	menuSettings := withDefaults(opts.Menu, defaults.Menu)
	docSettings := withDefaults(opts.Doc, defaults.Doc)
	imageSettings := withDefaults(opts.Image, defaults.Image)

	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	renderer := opts.Renderer
	if renderer == nil {
		renderer = markdown.NewRenderer(markdown.Options{ResolveHref: markdown.StripMarkdownExt})
	}

	prefix := strings.Trim(opts.DocsPath, "/")
	g := &Gateway{
		archives: opts.Archives,
		files:    opts.Files,
		pattern:  archive.NewPattern(prefix),
		builder:  menu.NewBuilder(prefix),
		renderer: renderer,
		maxSize:  opts.MaxFileSize,
		logger:   logger.WithComponent("gateway"),
	}

	memo := func(name string, s CacheSettings) cache.MemoOptions {
		return cache.MemoOptions{
			Name:       name,
			Capacity:   s.Capacity,
			TTL:        s.TTL,
			AllowStale: true,
			NoCache:    opts.NoCache,
			Logger:     logger,
			Now:        opts.Now,
		}
	}

	var err error
	if g.menus, err = cache.NewMemo(g.buildMenu, memo("menu", menuSettings)); err != nil {
		return nil, err
	}
	if g.docs, err = cache.NewMemo(g.renderDoc, memo("doc", docSettings)); err != nil {
		return nil, err
	}
	if g.images, err = cache.NewMemo(g.fetchImage, memo("image", imageSettings)); err != nil {
		return nil, err
	}

	return g, nil
}

func withDefaults(s, d CacheSettings) CacheSettings {
	if s.Capacity <= 0 {
		s.Capacity = d.Capacity
	}
	if s.TTL <= 0 {
		s.TTL = d.TTL
	}
	return s
}

// DocsPath returns the repository directory documents are read from
func (g *Gateway) DocsPath() string {
	return g.pattern.Prefix()
}

// GetMenu returns the navigation tree of repo at ref
func (g *Gateway) GetMenu(ctx context.Context, repo, ref string) ([]*domain.MenuNode, error) {
	if err := validateTarget(repo, ref); err != nil {
		return nil, err
	}
	return g.menus.Fetch(ctx, cache.MenuKey(repo, ref))
}

// GetDoc returns the rendered document at slug. The empty slug is the docs index.
func (g *Gateway) GetDoc(ctx context.Context, repo, ref, slug string) (*domain.RenderedDoc, error) {
	if err := validateTarget(repo, ref); err != nil {
		return nil, err
	}
	slug, err := cleanSlug(slug)
	if err != nil {
		return nil, err
	}
	return g.docs.Fetch(ctx, cache.DocKey(repo, ref, slug))
}

// GetImage returns the raw bytes of the file at slug under the docs path
func (g *Gateway) GetImage(ctx context.Context, repo, ref, slug string) ([]byte, error) {
	if err := validateTarget(repo, ref); err != nil {
		return nil, err
	}
	slug, err := cleanSlug(slug)
	if err != nil {
		return nil, err
	}
	if slug == "" {
		return nil, domain.NewValidationError("slug", "an image path is required")
	}
	return g.images.Fetch(ctx, cache.ImageKey(repo, ref, slug))
}

// CacheStats returns counters for every cache by name
func (g *Gateway) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"menu":  g.menus.Stats(),
		"doc":   g.docs.Stats(),
		"image": g.images.Stats(),
	}
}

// Purge drops every cached entry
func (g *Gateway) Purge() {
	g.menus.Purge()
	g.docs.Purge()
	g.images.Purge()
}

// Wait blocks until background refreshes finish
func (g *Gateway) Wait() {
	g.menus.Wait()
	g.docs.Wait()
	g.images.Wait()
}

// buildMenu streams the whole archive and assembles the menu tree
func (g *Gateway) buildMenu(ctx context.Context, key string) ([]*domain.MenuNode, error) {
	repo, ref, _ := cache.SplitKey(key)
	logger := g.logger.WithRepo(repo, ref)
	start := time.Now()

	body, err := g.archives.FetchArchive(ctx, repo, ref)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var entries []menu.Entry
	err = archive.Walk(body, g.pattern, func(e *domain.TarEntry) error {
		filename := path.Join(g.pattern.Prefix(), e.RelativePath)
		attrs, content, err := frontmatter.Parse(e.Content, filename)
		if err != nil {
			return err
		}
		entries = append(entries, menu.Entry{
			Filename:   filename,
			Attributes: attrs,
			HasContent: strings.TrimSpace(content) != "",
		})
		return nil
	}, archive.WithMaxFileSize(g.maxSize), archive.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	tree := g.builder.Build(entries)
	logger.Info().
		Int("files", len(entries)).
		Int("top_level", len(tree)).
		Dur("took", time.Since(start)).
		Msg("Built menu")
	return tree, nil
}

// renderDoc fetches exactly one markdown file and renders it
func (g *Gateway) renderDoc(ctx context.Context, key string) (*domain.RenderedDoc, error) {
	repo, ref, slug := cache.SplitKey(key)

	filename, data, err := g.fetchDocFile(ctx, repo, ref, slug)
	if err != nil {
		return nil, err
	}

	attrs, body, err := frontmatter.Parse(string(data), filename)
	if err != nil {
		return nil, err
	}

	res, err := g.renderer.Render(ctx, body)
	if err != nil {
		return nil, domain.NewParseError(filename, err)
	}

	g.logger.Debug().Str("repo", repo).Str("ref", ref).Str("file", filename).Msg("Rendered document")
	return &domain.RenderedDoc{
		Slug:       slug,
		Filename:   filename,
		Attributes: attrs,
		HTML:       res.HTML,
		Headings:   res.Headings,
	}, nil
}

// fetchDocFile tries "<slug>.md" then "<slug>/index.md"
func (g *Gateway) fetchDocFile(ctx context.Context, repo, ref, slug string) (string, []byte, error) {
	candidates := []string{path.Join(g.pattern.Prefix(), "index.md")}
	if slug != "" {
		candidates = []string{
			path.Join(g.pattern.Prefix(), slug+".md"),
			path.Join(g.pattern.Prefix(), slug, "index.md"),
		}
	}

	for _, filename := range candidates {
		data, err := g.files.FetchFile(ctx, repo, ref, filename)
		if err == nil {
			return filename, data, nil
		}
		if !domain.IsNotFound(err) {
			return "", nil, err
		}
	}
	return "", nil, domain.NewNotFoundError(repo, ref, candidates[0])
}

func (g *Gateway) fetchImage(ctx context.Context, key string) ([]byte, error) {
	repo, ref, slug := cache.SplitKey(key)
	filename := path.Join(g.pattern.Prefix(), slug)

	data, err := g.files.FetchFile(ctx, repo, ref, filename)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError(repo, ref, filename)
		}
		return nil, err
	}
	return data, nil
}

func validateTarget(repo, ref string) error {
	if repo == "" {
		return domain.NewValidationError("repo", "repository is required")
	}
	if ref == "" {
		return domain.NewValidationError("ref", "ref is required")
	}
	if strings.Contains(repo, ":") || strings.Contains(ref, ":") {
		return domain.NewValidationError("ref", fmt.Sprintf("invalid target %s@%s", repo, ref))
	}
	return nil
}

// cleanSlug normalizes slashes and rejects paths leaving the docs directory
func cleanSlug(slug string) (string, error) {
	slug = strings.Trim(slug, "/")
	if slug == "" {
		return "", nil
	}
	clean := path.Clean(slug)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", domain.NewValidationError("slug", fmt.Sprintf("invalid path %q", slug))
	}
	if clean == "." {
		return "", nil
	}
	return clean, nil
}
