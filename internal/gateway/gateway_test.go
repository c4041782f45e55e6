package gateway

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testRepo = "acme/docs"
	testRef  = "1.0.0"
)

type file struct {
	name string
	body string
}

// tarball builds a gzipped archive rooted at "docs-1.0.0/"
func tarball(t *testing.T, files ...file) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "docs-1.0.0/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for _, f := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "docs-1.0.0/" + f.name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(f.body)),
		}))
		_, err := tw.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func archiveOf(data []byte) func(context.Context, string, string) (io.ReadCloser, error) {
	return func(context.Context, string, string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newGateway(t *testing.T, src *mocks.MockSource, mutate ...func(*Options)) *Gateway {
	t.Helper()
	opts := DefaultOptions()
	opts.Archives = src
	opts.Files = src
	for _, m := range mutate {
		m(&opts)
	}
	g, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(g.Wait)
	return g
}

var menuFixture = []file{
	{"README.md", "# not documentation"},
	{"docs/index.md", "---\ntitle: Home\n---\nWelcome"},
	{"docs/guide/index.md", "---\ntitle: Guide\norder: 2\n---\n"},
	{"docs/guide/intro.md", "---\ntitle: Intro\norder: 1\n---\n# Intro"},
	{"docs/guide/setup.md", "---\ntitle: Setup\norder: 0\n---\n# Setup"},
	{"docs/api.md", "---\ntitle: API\norder: 1\n---\n# API"},
	{"docs/secret.md", "---\ntitle: Secret\nhidden: true\n---\nhush"},
	{"docs/logo.png", "\x89PNG"},
}

func TestNew(t *testing.T) {
	t.Run("requires fetchers", func(t *testing.T) {
		_, err := New(DefaultOptions())
		require.Error(t, err)
	})

	t.Run("fills defaults", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		g, err := New(Options{Archives: src, Files: src, DocsPath: "/docs/"})
		require.NoError(t, err)
		assert.Equal(t, "docs", g.DocsPath())
		assert.Len(t, g.CacheStats(), 3)
	})
}

func TestGateway_GetMenu(t *testing.T) {
	ctx := context.Background()

	t.Run("builds the tree from the archive", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		src.EXPECT().FetchArchive(gomock.Any(), testRepo, testRef).
			DoAndReturn(archiveOf(tarball(t, menuFixture...))).Times(1)

		g := newGateway(t, src)
		tree, err := g.GetMenu(ctx, testRepo, testRef)
		require.NoError(t, err)

		require.Len(t, tree, 2)
		assert.Equal(t, "api", tree[0].Slug)
		assert.Equal(t, "docs/api.md", tree[0].Filename)
		assert.True(t, tree[0].HasContent)

		guide := tree[1]
		assert.Equal(t, "guide", guide.Slug)
		assert.Equal(t, "Guide", guide.Attributes.Title)
		assert.False(t, guide.HasContent)
		require.Len(t, guide.Children, 2)
		assert.Equal(t, "guide/setup", guide.Children[0].Slug)
		assert.Equal(t, "guide/intro", guide.Children[1].Slug)

		// second call is served from the cache
		again, err := g.GetMenu(ctx, testRepo, testRef)
		require.NoError(t, err)
		assert.Equal(t, tree, again)
		assert.Equal(t, uint64(1), g.CacheStats()["menu"].Hits)
	})

	t.Run("malformed front matter aborts the build", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		src.EXPECT().FetchArchive(gomock.Any(), testRepo, testRef).
			DoAndReturn(archiveOf(tarball(t,
				file{"docs/a.md", "---\ntitle: A\n---\n"},
				file{"docs/b.md", "---\ntitle: [unclosed\n---\n"},
			)))

		g := newGateway(t, src)
		_, err := g.GetMenu(ctx, testRepo, testRef)
		var parseErr *domain.ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "docs/b.md", parseErr.File)
	})

	t.Run("corrupt archive is a transport error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		data := tarball(t, menuFixture...)
		src.EXPECT().FetchArchive(gomock.Any(), testRepo, testRef).
			DoAndReturn(archiveOf(data[:len(data)/2]))

		g := newGateway(t, src)
		_, err := g.GetMenu(ctx, testRepo, testRef)
		var transportErr *domain.TransportError
		assert.ErrorAs(t, err, &transportErr)
	})

	t.Run("fetch failure propagates", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		src.EXPECT().FetchArchive(gomock.Any(), testRepo, "nope").
			Return(nil, domain.NewNotFoundError(testRepo, "nope", ""))

		g := newGateway(t, src)
		_, err := g.GetMenu(ctx, testRepo, "nope")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("validates the target", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		g := newGateway(t, mocks.NewMockSource(ctrl))

		for _, tc := range []struct{ repo, ref string }{
			{"", testRef},
			{testRepo, ""},
			{testRepo, "a:b"},
		} {
			_, err := g.GetMenu(ctx, tc.repo, tc.ref)
			var validationErr *domain.ValidationError
			assert.ErrorAs(t, err, &validationErr, "%s@%s", tc.repo, tc.ref)
		}
	})

	t.Run("stale menu is served while one refresh runs", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		first := tarball(t, file{"docs/a.md", "---\ntitle: Old\n---\nx"})
		second := tarball(t, file{"docs/a.md", "---\ntitle: New\n---\nx"})
		gomock.InOrder(
			src.EXPECT().FetchArchive(gomock.Any(), testRepo, testRef).DoAndReturn(archiveOf(first)),
			src.EXPECT().FetchArchive(gomock.Any(), testRepo, testRef).DoAndReturn(archiveOf(second)),
		)

		clk := &clock{now: time.Unix(1_700_000_000, 0)}
		g := newGateway(t, src, func(o *Options) { o.Now = clk.Now })

		tree, err := g.GetMenu(ctx, testRepo, testRef)
		require.NoError(t, err)
		assert.Equal(t, "Old", tree[0].Attributes.Title)

		clk.Advance(time.Hour)
		tree, err = g.GetMenu(ctx, testRepo, testRef)
		require.NoError(t, err)
		assert.Equal(t, "Old", tree[0].Attributes.Title)

		g.Wait()
		tree, err = g.GetMenu(ctx, testRepo, testRef)
		require.NoError(t, err)
		assert.Equal(t, "New", tree[0].Attributes.Title)
	})
}

func TestGateway_GetDoc(t *testing.T) {
	ctx := context.Background()

	t.Run("renders the markdown file of a slug", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/guide/intro.md").
			Return([]byte("---\ntitle: Intro\nnew: true\n---\n## Start\n\nSee [setup](./setup.md#run)."), nil).
			Times(1)

		g := newGateway(t, src)
		doc, err := g.GetDoc(ctx, testRepo, testRef, "/guide/intro/")
		require.NoError(t, err)

		assert.Equal(t, "guide/intro", doc.Slug)
		assert.Equal(t, "docs/guide/intro.md", doc.Filename)
		assert.Equal(t, "Intro", doc.Attributes.Title)
		require.NotNil(t, doc.Attributes.IsNew)
		assert.True(t, *doc.Attributes.IsNew)
		assert.Contains(t, doc.HTML, `href="./setup#run"`)
		require.Len(t, doc.Headings, 1)
		assert.Equal(t, "start", doc.Headings[0].AnchorID)

		_, err = g.GetDoc(ctx, testRepo, testRef, "guide/intro")
		require.NoError(t, err)
	})

	t.Run("falls back to the directory index", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		gomock.InOrder(
			src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/guide.md").
				Return(nil, domain.NewNotFoundError(testRepo, testRef, "docs/guide.md")),
			src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/guide/index.md").
				Return([]byte("# Guide"), nil),
		)

		g := newGateway(t, src)
		doc, err := g.GetDoc(ctx, testRepo, testRef, "guide")
		require.NoError(t, err)
		assert.Equal(t, "docs/guide/index.md", doc.Filename)
		assert.Equal(t, "docs/guide/index.md", doc.Attributes.Title)
	})

	t.Run("empty slug is the docs index", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/index.md").
			Return([]byte("Welcome"), nil)

		g := newGateway(t, src)
		doc, err := g.GetDoc(ctx, testRepo, testRef, "")
		require.NoError(t, err)
		assert.Equal(t, "", doc.Slug)
		assert.Contains(t, doc.HTML, "Welcome")
	})

	t.Run("missing document", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, gomock.Any()).
			Return(nil, domain.ErrNotFound).Times(2)

		g := newGateway(t, src)
		_, err := g.GetDoc(ctx, testRepo, testRef, "missing")
		var notFound *domain.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "docs/missing.md", notFound.Path)
		assert.Equal(t, testRef, notFound.Ref)
	})

	t.Run("transport errors do not try the index fallback", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		boom := domain.NewTransportError("fetch", errors.New("connection reset"))
		src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/guide.md").Return(nil, boom)

		g := newGateway(t, src)
		_, err := g.GetDoc(ctx, testRepo, testRef, "guide")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("malformed front matter", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/bad.md").
			Return([]byte("---\ntitle: [unclosed\n---\n"), nil)

		g := newGateway(t, src)
		_, err := g.GetDoc(ctx, testRepo, testRef, "bad")
		var parseErr *domain.ParseError
		assert.ErrorAs(t, err, &parseErr)
	})

	t.Run("rejects paths leaving the docs directory", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		g := newGateway(t, mocks.NewMockSource(ctrl))

		_, err := g.GetDoc(ctx, testRepo, testRef, "../secrets")
		var validationErr *domain.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("failed refresh keeps the previous document", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		gomock.InOrder(
			src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/a.md").Return([]byte("# A"), nil),
			src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/a.md").
				Return(nil, domain.NewTransportError("fetch", errors.New("upstream down"))),
		)

		g := newGateway(t, src, func(o *Options) { o.NoCache = true })

		first, err := g.GetDoc(ctx, testRepo, testRef, "a")
		require.NoError(t, err)
		second, err := g.GetDoc(ctx, testRepo, testRef, "a")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, uint64(1), g.CacheStats()["doc"].RefreshFailures)
	})
}

func TestGateway_GetImage(t *testing.T) {
	ctx := context.Background()

	t.Run("returns raw bytes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/img/logo.png").
			Return([]byte("\x89PNG"), nil).Times(1)

		g := newGateway(t, src)
		for i := 0; i < 2; i++ {
			data, err := g.GetImage(ctx, testRepo, testRef, "img/logo.png")
			require.NoError(t, err)
			assert.Equal(t, []byte("\x89PNG"), data)
		}
	})

	t.Run("missing image", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		src := mocks.NewMockSource(ctrl)
		src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/none.png").Return(nil, domain.ErrNotFound)

		g := newGateway(t, src)
		_, err := g.GetImage(ctx, testRepo, testRef, "none.png")
		var notFound *domain.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "docs/none.png", notFound.Path)
	})

	t.Run("requires a path", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		g := newGateway(t, mocks.NewMockSource(ctrl))
		_, err := g.GetImage(ctx, testRepo, testRef, "/")
		var validationErr *domain.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestGateway_Warm(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	src.EXPECT().FetchArchive(gomock.Any(), testRepo, testRef).
		DoAndReturn(archiveOf(tarball(t, menuFixture...)))
	src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/api.md").Return([]byte("# API"), nil)
	src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/guide/intro.md").Return([]byte("# Intro"), nil)
	src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/guide/setup.md").
		Return(nil, domain.NewTransportError("fetch", errors.New("reset")))

	g := newGateway(t, src)

	var mu sync.Mutex
	seen := map[string]bool{}
	res, err := g.Warm(ctx, testRepo, testRef, WarmOptions{
		Workers: 2,
		OnDocument: func(slug string, err error) {
			mu.Lock()
			seen[slug] = err == nil
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Documents)
	assert.Equal(t, 1, res.Failed)
	assert.Error(t, res.Err)
	assert.Equal(t, map[string]bool{"api": true, "guide/intro": true, "guide/setup": false}, seen)
	assert.Equal(t, 2, g.CacheStats()["doc"].Entries)

	// warmed documents are cache hits
	_, err = g.GetDoc(ctx, testRepo, testRef, "api")
	require.NoError(t, err)
}

func TestGateway_Purge(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	src.EXPECT().FetchFile(gomock.Any(), testRepo, testRef, "docs/a.md").Return([]byte("# A"), nil).Times(2)

	g := newGateway(t, src)
	_, err := g.GetDoc(context.Background(), testRepo, testRef, "a")
	require.NoError(t, err)
	g.Purge()
	_, err = g.GetDoc(context.Background(), testRepo, testRef, "a")
	require.NoError(t, err)
}
