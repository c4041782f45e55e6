package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarFile struct {
	name string
	body string
	dir  bool
}

func buildTar(t *testing.T, files []tarFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{Name: f.name, Mode: 0644, Size: int64(len(f.body)), Typeflag: tar.TypeReg}
		if f.dir {
			hdr = &tar.Header{Name: f.name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !f.dir {
			_, err := tw.Write([]byte(f.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func sampleArchive(t *testing.T) []byte {
	return buildTar(t, []tarFile{
		{name: "docs-v1/", dir: true},
		{name: "docs-v1/README.md", body: "# readme"},
		{name: "docs-v1/docs/", dir: true},
		{name: "docs-v1/docs/guide/", dir: true},
		{name: "docs-v1/docs/guide/intro.md", body: "---\ntitle: Intro\n---\nhello"},
		{name: "docs-v1/docs/logo.png", body: "\x89PNG"},
		{name: "docs-v1/docs/index.md", body: "# home"},
		{name: "docs-v1/src/main.go", body: "package main"},
	})
}

func collect(t *testing.T, r *Reader) []*domain.TarEntry {
	t.Helper()

	var entries []*domain.TarEntry
	for {
		entry, err := r.Next()
		if err == io.EOF {
			return entries
		}
		require.NoError(t, err)
		entries = append(entries, entry)
	}
}

func TestReader_Gzip(t *testing.T) {
	data := gzipBytes(t, sampleArchive(t))

	r, err := NewReader(bytes.NewReader(data), NewPattern("docs"))
	require.NoError(t, err)
	defer r.Close()

	entries := collect(t, r)
	require.Len(t, entries, 2)
	assert.Equal(t, "guide/intro.md", entries[0].RelativePath)
	assert.Equal(t, "---\ntitle: Intro\n---\nhello", entries[0].Content)
	assert.Equal(t, "index.md", entries[1].RelativePath)
	assert.Equal(t, "# home", entries[1].Content)
}

func TestReader_PlainTar(t *testing.T) {
	r, err := NewReader(bytes.NewReader(sampleArchive(t)), NewPattern("docs"))
	require.NoError(t, err)

	entries := collect(t, r)
	require.Len(t, entries, 2)
	assert.Equal(t, "guide/intro.md", entries[0].RelativePath)
}

func TestReader_EmptyPrefixMatchesAllMarkdown(t *testing.T) {
	r, err := NewReader(bytes.NewReader(sampleArchive(t)), NewPattern(""))
	require.NoError(t, err)

	var names []string
	for _, e := range collect(t, r) {
		names = append(names, e.RelativePath)
	}
	assert.Equal(t, []string{"README.md", "docs/guide/intro.md", "docs/index.md"}, names)
}

func TestReader_NextAfterEOF(t *testing.T) {
	r, err := NewReader(bytes.NewReader(buildTar(t, nil)), NewPattern("docs"))
	require.NoError(t, err)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_EmptyStream(t *testing.T) {
	r, err := NewReader(bytes.NewReader(nil), NewPattern("docs"))
	require.NoError(t, err)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_CorruptGzip(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0x1f, 0x8b, 0x00, 0x01}), NewPattern("docs"))
	require.Error(t, err)

	var transportErr *domain.TransportError
	assert.True(t, errors.As(err, &transportErr))
	assert.ErrorIs(t, err, domain.ErrInvalidArchive)
}

func TestReader_TruncatedBody(t *testing.T) {
	data := buildTar(t, []tarFile{
		{name: "docs-v1/docs/big.md", body: strings.Repeat("x", 2048)},
	})
	// cut inside the file body
	truncated := data[:512+100]

	r, err := NewReader(bytes.NewReader(truncated), NewPattern("docs"))
	require.NoError(t, err)

	_, err = r.Next()
	require.Error(t, err)
	var transportErr *domain.TransportError
	assert.True(t, errors.As(err, &transportErr))

	_, again := r.Next()
	assert.Equal(t, err, again)
}

func TestReader_MaxFileSize(t *testing.T) {
	data := buildTar(t, []tarFile{
		{name: "docs-v1/docs/big.md", body: strings.Repeat("x", 64)},
	})

	r, err := NewReader(bytes.NewReader(data), NewPattern("docs"), WithMaxFileSize(16))
	require.NoError(t, err)

	_, err = r.Next()
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
}

func TestWalk(t *testing.T) {
	t.Run("visits matching files in archive order", func(t *testing.T) {
		var seen []string
		err := Walk(bytes.NewReader(gzipBytes(t, sampleArchive(t))), NewPattern("docs"), func(e *domain.TarEntry) error {
			seen = append(seen, e.RelativePath)
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"guide/intro.md", "index.md"}, seen)
	})

	t.Run("skips files outside the prefix", func(t *testing.T) {
		data := buildTar(t, []tarFile{{name: "docs-v1/README.md", body: "x"}})
		called := false
		err := Walk(bytes.NewReader(data), NewPattern("docs"), func(e *domain.TarEntry) error {
			called = true
			return nil
		})

		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("callback error aborts the walk", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := Walk(bytes.NewReader(sampleArchive(t)), NewPattern("docs"), func(e *domain.TarEntry) error {
			calls++
			return boom
		})

		assert.Equal(t, boom, err)
		assert.Equal(t, 1, calls)
	})
}
