package archive

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/utils"
)

// DefaultMaxFileSize caps the size of a single buffered markdown file
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

var gzipMagic = []byte{0x1f, 0x8b}

// Reader yields matching entries of a source archive one at a time.
// It is not safe for concurrent use and cannot be restarted.
type Reader struct {
	tr      *tar.Reader
	gz      *gzip.Reader
	pattern *Pattern
	maxSize int64
	logger  *utils.Logger
	err     error
}

// Option configures a Reader
type Option func(*Reader)

// WithMaxFileSize overrides DefaultMaxFileSize. Values <= 0 are ignored.
func WithMaxFileSize(n int64) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxSize = n
		}
	}
}

// WithLogger sets the logger used for per-entry debug output
func WithLogger(logger *utils.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// NewReader wraps src, transparently decompressing it when it starts with
// the gzip magic number.
func NewReader(src io.Reader, pattern *Pattern, opts ...Option) (*Reader, error) {
	r := &Reader{
		pattern: pattern,
		maxSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pattern == nil {
		r.pattern = NewPattern("")
	}

	br := bufio.NewReader(src)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.NewTransportError("read archive", err)
	}

	var body io.Reader = br
	if len(magic) == len(gzipMagic) && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, domain.NewTransportError("gzip", fmt.Errorf("%w: %v", domain.ErrInvalidArchive, err))
		}
		r.gz = gz
		body = gz
	}

	r.tr = tar.NewReader(body)
	return r, nil
}

// Next returns the next matching entry, or io.EOF once the stream ends.
// After any other error every later call returns the same error.
func (r *Reader) Next() (*domain.TarEntry, error) {
	if r.err != nil {
		return nil, r.err
	}

	for {
		hdr, err := r.tr.Next()
		if err == io.EOF {
			r.err = io.EOF
			return nil, io.EOF
		}
		if err != nil {
			r.err = domain.NewTransportError("tar", fmt.Errorf("%w: %v", domain.ErrInvalidArchive, err))
			return nil, r.err
		}

		// tar.Reader discards the unread body of skipped entries on the next call
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name, ok := r.pattern.Match(StripRoot(hdr.Name))
		if !ok {
			continue
		}
		if hdr.Size > r.maxSize {
			r.err = domain.NewTransportError("read "+name, domain.ErrFileTooLarge)
			return nil, r.err
		}

		if r.logger != nil {
			r.logger.Debug().Str("entry", hdr.Name).Str("file", name).Msg("Processing file")
		}

		data, err := io.ReadAll(io.LimitReader(r.tr, r.maxSize+1))
		if err != nil {
			r.err = domain.NewTransportError("read "+name, err)
			return nil, r.err
		}
		if int64(len(data)) > r.maxSize {
			r.err = domain.NewTransportError("read "+name, domain.ErrFileTooLarge)
			return nil, r.err
		}

		return &domain.TarEntry{
			RelativePath: name,
			Content:      string(data),
		}, nil
	}
}

// Close releases the decompressor. It does not close the underlying stream.
func (r *Reader) Close() error {
	if r.gz != nil {
		return r.gz.Close()
	}
	return nil
}

// Walk hands every matching entry of src to fn in archive order. The first
// error from the stream or from fn aborts the walk and is returned as is.
func Walk(src io.Reader, pattern *Pattern, fn func(*domain.TarEntry) error, opts ...Option) error {
	r, err := NewReader(src, pattern, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		entry, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
}
