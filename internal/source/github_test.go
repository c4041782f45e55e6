package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHub(t *testing.T, mux *http.ServeMux) (*GitHub, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	g, err := NewGitHub(GitHubOptions{
		BaseURL: server.URL,
		Owner:   "acme",
		Retrier: fastRetrier(2),
	})
	require.NoError(t, err)
	return g, server
}

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestSplitRepo(t *testing.T) {
	owner, name, err := SplitRepo("acme/docs", "other")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "docs", name)

	owner, name, err = SplitRepo("docs", "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "docs", name)

	for _, bad := range []string{"docs", "/docs", "acme/", "a/b/c"} {
		_, _, err := SplitRepo(bad, "")
		var validationErr *domain.ValidationError
		assert.ErrorAs(t, err, &validationErr, bad)
	}
}

func TestNewGitHub(t *testing.T) {
	g, err := NewGitHub(GitHubOptions{Token: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "github", g.Name())
	assert.Equal(t, "https://api.github.com/", g.client.BaseURL.String())

	g, err = NewGitHub(GitHubOptions{BaseURL: "https://ghe.example.com/api/v3"})
	require.NoError(t, err)
	assert.Equal(t, "https://ghe.example.com/api/v3/", g.client.BaseURL.String())
}

func TestGitHub_FetchArchive(t *testing.T) {
	payload := gzipped(t, "tarball bytes")

	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/repos/acme/docs/tarball/v1.0.0", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", serverURL+"/codeload/acme/docs/v1.0.0.tar.gz")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/codeload/acme/docs/v1.0.0.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})
	mux.HandleFunc("/repos/acme/missing/tarball/main", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	g, server := newTestGitHub(t, mux)
	serverURL = server.URL
	ctx := context.Background()

	t.Run("downloads through the archive link", func(t *testing.T) {
		body, err := g.FetchArchive(ctx, "docs", "v1.0.0")
		require.NoError(t, err)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("missing repository", func(t *testing.T) {
		_, err := g.FetchArchive(ctx, "acme/missing", "main")
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestGitHub_FetchFile(t *testing.T) {
	content := "---\ntitle: Intro\n---\n# Intro\n"

	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/repos/acme/docs/contents/docs/intro.md", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","name":"intro.md","path":"docs/intro.md","content":%q}`,
			base64.StdEncoding.EncodeToString([]byte(content)))
	})
	mux.HandleFunc("/repos/acme/docs/contents/docs/big.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"type":"file","encoding":"none","name":"big.png","path":"docs/big.png","content":"","download_url":%q}`,
			serverURL+"/raw/acme/docs/main/docs/big.png")
	})
	mux.HandleFunc("/raw/acme/docs/main/docs/big.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/repos/acme/docs/contents/docs/guide", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"type":"file","name":"a.md","path":"docs/guide/a.md"}]`))
	})
	mux.HandleFunc("/repos/acme/docs/contents/docs/missing.md", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	g, server := newTestGitHub(t, mux)
	serverURL = server.URL
	ctx := context.Background()

	t.Run("decodes inline content", func(t *testing.T) {
		data, err := g.FetchFile(ctx, "acme/docs", "main", "docs/intro.md")
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	})

	t.Run("downloads large files", func(t *testing.T) {
		data, err := g.FetchFile(ctx, "acme/docs", "main", "docs/big.png")
		require.NoError(t, err)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
	})

	t.Run("directory is not found", func(t *testing.T) {
		_, err := g.FetchFile(ctx, "acme/docs", "main", "docs/guide")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := g.FetchFile(ctx, "acme/docs", "main", "docs/missing.md")
		require.Error(t, err)

		var notFound *domain.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "docs/missing.md", notFound.Path)
		assert.Equal(t, "main", notFound.Ref)
	})
}

func TestGitHub_ListRefs(t *testing.T) {
	var tagCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/docs/tags", func(w http.ResponseWriter, r *http.Request) {
		// first call fails with a retryable status
		if tagCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"try again"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"v1.0.0"},{"name":"v2.0.0"}]`))
	})
	mux.HandleFunc("/repos/acme/docs/branches", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"main"},{"name":"dev"}]`))
	})
	mux.HandleFunc("/repos/acme/broken/tags", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	g, _ := newTestGitHub(t, mux)
	ctx := context.Background()

	set, err := g.ListRefs(ctx, "acme/docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0.0", "v2.0.0"}, set.Tags)
	assert.Equal(t, []string{"main", "dev"}, set.Branches)
	assert.Equal(t, int32(2), tagCalls.Load())

	_, err = g.ListRefs(ctx, "acme/broken")
	var transportErr *domain.TransportError
	assert.ErrorAs(t, err, &transportErr)
}
