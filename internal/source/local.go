package source

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/klauspost/compress/gzip"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/utils"
)

// RepoOpener opens a git repository on disk
type RepoOpener interface {
	PlainOpen(path string) (*git.Repository, error)
}

// plainOpener implements RepoOpener using go-git
type plainOpener struct{}

func (plainOpener) PlainOpen(path string) (*git.Repository, error) {
	return git.PlainOpen(path)
}

// LocalGitOptions configures a LocalGit source
type LocalGitOptions struct {
	// Root holds one checkout per repository, as root/owner/name or root/name
	Root   string
	Opener RepoOpener
	Logger *utils.Logger
}

// LocalGit serves repositories from git checkouts on disk. Refs are read from
// the object database, so uncommitted changes are never visible.
type LocalGit struct {
	root   string
	opener RepoOpener
	logger *utils.Logger
}

// Ensure LocalGit implements domain.Source
var _ domain.Source = (*LocalGit)(nil)

// NewLocalGit creates a new local git source
func NewLocalGit(opts LocalGitOptions) (*LocalGit, error) {
	if opts.Root == "" {
		return nil, domain.NewValidationError("source.local_root", "a root directory is required")
	}
	opener := opts.Opener
	if opener == nil {
		opener = plainOpener{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &LocalGit{
		root:   opts.Root,
		opener: opener,
		logger: logger.WithComponent("local"),
	}, nil
}

// Name returns the provider name
func (l *LocalGit) Name() string {
	return "local"
}

// FetchArchive streams a gzipped tarball of the tree at ref, rooted at
// "<name>-<ref>/".
func (l *LocalGit) FetchArchive(ctx context.Context, repo, ref string) (io.ReadCloser, error) {
	tree, err := l.tree(repo, ref)
	if err != nil {
		return nil, err
	}

	root := path.Base(repo) + "-" + strings.ReplaceAll(ref, "/", "-")
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTarball(ctx, pw, root, tree))
	}()
	return pr, nil
}

func writeTarball(ctx context.Context, w io.Writer, root string, tree *object.Tree) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Mode != filemode.Regular && f.Mode != filemode.Executable {
			return nil
		}

		mode := int64(0644)
		if f.Mode == filemode.Executable {
			mode = 0755
		}
		hdr := &tar.Header{
			Name:     root + "/" + f.Name,
			Mode:     mode,
			Size:     f.Size,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		r, err := f.Reader()
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(tw, r)
		return err
	})
	if err != nil {
		return domain.NewTransportError("write archive", err)
	}

	if err := tw.Close(); err != nil {
		return domain.NewTransportError("write archive", err)
	}
	if err := gz.Close(); err != nil {
		return domain.NewTransportError("write archive", err)
	}
	return nil
}

// FetchFile returns the contents of path at ref
func (l *LocalGit) FetchFile(ctx context.Context, repo, ref, filePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree, err := l.tree(repo, ref)
	if err != nil {
		return nil, err
	}

	f, err := tree.File(strings.TrimPrefix(path.Clean(filePath), "/"))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return nil, domain.NewNotFoundError(repo, ref, filePath)
		}
		return nil, domain.NewTransportError("read file", err)
	}

	r, err := f.Reader()
	if err != nil {
		return nil, domain.NewTransportError("read file", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.NewTransportError("read file", err)
	}
	return data, nil
}

// ListRefs lists the local tags and branches of repo
func (l *LocalGit) ListRefs(ctx context.Context, repo string) (domain.RefSet, error) {
	if err := ctx.Err(); err != nil {
		return domain.RefSet{}, err
	}

	r, err := l.open(repo)
	if err != nil {
		return domain.RefSet{}, err
	}

	set := domain.RefSet{Tags: []string{}, Branches: []string{}}

	tags, err := r.Tags()
	if err != nil {
		return domain.RefSet{}, domain.NewTransportError("list tags", err)
	}
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		set.Tags = append(set.Tags, ref.Name().Short())
		return nil
	})
	if err != nil {
		return domain.RefSet{}, domain.NewTransportError("list tags", err)
	}

	branches, err := r.Branches()
	if err != nil {
		return domain.RefSet{}, domain.NewTransportError("list branches", err)
	}
	err = branches.ForEach(func(ref *plumbing.Reference) error {
		set.Branches = append(set.Branches, ref.Name().Short())
		return nil
	})
	if err != nil {
		return domain.RefSet{}, domain.NewTransportError("list branches", err)
	}

	slices.Sort(set.Tags)
	slices.Sort(set.Branches)
	return set, nil
}

// tree returns the root tree of the commit ref resolves to
func (l *LocalGit) tree(repo, ref string) (*object.Tree, error) {
	r, err := l.open(repo)
	if err != nil {
		return nil, err
	}

	hash, err := r.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, domain.NewNotFoundError(repo, ref, "")
		}
		return nil, domain.NewTransportError("resolve ref", err)
	}

	commit, err := r.CommitObject(*hash)
	if err != nil {
		return nil, domain.NewTransportError("read commit", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, domain.NewTransportError("read tree", err)
	}
	return tree, nil
}

// open finds the checkout of repo under the root directory
func (l *LocalGit) open(repo string) (*git.Repository, error) {
	clean := path.Clean(repo)
	if repo == "" || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) {
		return nil, domain.NewValidationError("repo", fmt.Sprintf("invalid repository %q", repo))
	}

	candidates := []string{filepath.Join(l.root, filepath.FromSlash(clean))}
	if base := path.Base(clean); base != clean {
		candidates = append(candidates, filepath.Join(l.root, base))
	}

	for _, dir := range candidates {
		r, err := l.opener.PlainOpen(dir)
		if err == nil {
			l.logger.Debug().Str("repo", repo).Str("path", dir).Msg("Opened repository")
			return r, nil
		}
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, domain.NewTransportError("open repository", err)
		}
	}
	return nil, domain.NewNotFoundError(repo, "", "")
}
