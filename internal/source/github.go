// Package source provides the upstream providers that supply repository
// archives, single files and ref listings.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v67/github"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/utils"
	"github.com/quantmind-br/docgate/pkg/version"
)

const (
	// DefaultTimeout bounds every upstream request
	DefaultTimeout = 30 * time.Second

	listPageSize = 100
)

// GitHubOptions configures a GitHub source
type GitHubOptions struct {
	Token string
	// BaseURL points at a GitHub Enterprise API, e.g. https://ghe.example.com/api/v3/
	BaseURL string
	// Owner is used for repository names given without an owner
	Owner      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Retrier    *Retrier
	Logger     *utils.Logger
}

// GitHub reads repositories through the GitHub REST API
type GitHub struct {
	client   *github.Client
	download *http.Client
	owner    string
	retrier  *Retrier
	logger   *utils.Logger
}

// Ensure GitHub implements domain.Source
var _ domain.Source = (*GitHub)(nil)

// NewGitHub creates a new GitHub source
func NewGitHub(opts GitHubOptions) (*GitHub, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	client := github.NewClient(httpClient)
	client.UserAgent = version.UserAgent()
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, domain.NewValidationError("source.base_url", err.Error())
		}
		client.BaseURL = base
	}

	retrier := opts.Retrier
	if retrier == nil {
		retrier = NewRetrier(DefaultRetrierOptions())
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	return &GitHub{
		client:   client,
		download: httpClient,
		owner:    opts.Owner,
		retrier:  retrier,
		logger:   logger.WithComponent("github"),
	}, nil
}

// Name returns the provider name
func (g *GitHub) Name() string {
	return "github"
}

// FetchArchive streams the gzipped tarball of repo at ref
func (g *GitHub) FetchArchive(ctx context.Context, repo, ref string) (io.ReadCloser, error) {
	owner, name, err := g.splitRepo(repo)
	if err != nil {
		return nil, err
	}

	link, err := RetryWithValue(ctx, g.retrier, func() (*url.URL, error) {
		u, resp, err := g.client.Repositories.GetArchiveLink(ctx, owner, name, github.Tarball,
			&github.RepositoryContentGetOptions{Ref: ref}, 3)
		return u, g.wrapError(err, resp)
	})
	if err != nil {
		return nil, g.classify("archive link", repo, ref, "", err)
	}

	g.logger.Debug().Str("repo", repo).Str("ref", ref).Str("url", link.String()).Msg("Downloading archive")

	body, err := RetryWithValue(ctx, g.retrier, func() (io.ReadCloser, error) {
		return g.get(ctx, link.String())
	})
	if err != nil {
		return nil, g.classify("download archive", repo, ref, "", err)
	}
	return body, nil
}

// FetchFile returns the raw bytes of one file of repo at ref
func (g *GitHub) FetchFile(ctx context.Context, repo, ref, path string) ([]byte, error) {
	owner, name, err := g.splitRepo(repo)
	if err != nil {
		return nil, err
	}

	content, err := RetryWithValue(ctx, g.retrier, func() (*github.RepositoryContent, error) {
		file, _, resp, err := g.client.Repositories.GetContents(ctx, owner, name, path,
			&github.RepositoryContentGetOptions{Ref: ref})
		return file, g.wrapError(err, resp)
	})
	if err != nil {
		return nil, g.classify("get contents", repo, ref, path, err)
	}
	if content == nil || content.GetType() != "file" {
		// a directory listing
		return nil, domain.NewNotFoundError(repo, ref, path)
	}

	text, err := content.GetContent()
	if err == nil {
		return []byte(text), nil
	}

	// large files come without inline content
	downloadURL := content.GetDownloadURL()
	if downloadURL == "" {
		return nil, domain.NewTransportError("decode contents", err)
	}

	data, err := RetryWithValue(ctx, g.retrier, func() ([]byte, error) {
		body, err := g.get(ctx, downloadURL)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return io.ReadAll(body)
	})
	if err != nil {
		return nil, g.classify("download file", repo, ref, path, err)
	}
	return data, nil
}

// ListRefs lists every tag and branch of repo
func (g *GitHub) ListRefs(ctx context.Context, repo string) (domain.RefSet, error) {
	owner, name, err := g.splitRepo(repo)
	if err != nil {
		return domain.RefSet{}, err
	}

	set := domain.RefSet{Tags: []string{}, Branches: []string{}}

	opts := &github.ListOptions{PerPage: listPageSize}
	for {
		page, err := RetryWithValue(ctx, g.retrier, func() (*pageOf[*github.RepositoryTag], error) {
			tags, resp, err := g.client.Repositories.ListTags(ctx, owner, name, opts)
			if err != nil {
				return nil, g.wrapError(err, resp)
			}
			return &pageOf[*github.RepositoryTag]{items: tags, next: resp.NextPage}, nil
		})
		if err != nil {
			return domain.RefSet{}, g.classify("list tags", repo, "", "", err)
		}
		for _, t := range page.items {
			set.Tags = append(set.Tags, t.GetName())
		}
		if page.next == 0 {
			break
		}
		opts.Page = page.next
	}

	branchOpts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: listPageSize}}
	for {
		page, err := RetryWithValue(ctx, g.retrier, func() (*pageOf[*github.Branch], error) {
			branches, resp, err := g.client.Repositories.ListBranches(ctx, owner, name, branchOpts)
			if err != nil {
				return nil, g.wrapError(err, resp)
			}
			return &pageOf[*github.Branch]{items: branches, next: resp.NextPage}, nil
		})
		if err != nil {
			return domain.RefSet{}, g.classify("list branches", repo, "", "", err)
		}
		for _, b := range page.items {
			set.Branches = append(set.Branches, b.GetName())
		}
		if page.next == 0 {
			break
		}
		branchOpts.Page = page.next
	}

	return set, nil
}

type pageOf[T any] struct {
	items []T
	next  int
}

// get performs a plain GET against an absolute download URL
func (g *GitHub) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := g.download.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, domain.NewFetchError(rawURL, resp.StatusCode, errors.New(resp.Status))
	}
	return resp.Body, nil
}

// wrapError attaches the HTTP status of a failed API call
func (g *GitHub) wrapError(err error, resp *github.Response) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}

	statusCode := 0
	reqURL := ""
	if resp != nil && resp.Response != nil {
		statusCode = resp.StatusCode
		if resp.Request != nil {
			reqURL = resp.Request.URL.String()
		}
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		statusCode = ghErr.Response.StatusCode
	}

	if statusCode != 0 {
		return domain.NewFetchError(reqURL, statusCode, err)
	}
	return err
}

// classify maps a final upstream failure to the domain taxonomy
func (g *GitHub) classify(op, repo, ref, path string, err error) error {
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound {
		return domain.NewNotFoundError(repo, ref, path)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	g.logger.Warn().Err(err).Str("repo", repo).Str("ref", ref).Str("op", op).Msg("Upstream request failed")
	return domain.NewTransportError(op, err)
}

// splitRepo accepts "owner/name" or a bare name under the configured owner
func (g *GitHub) splitRepo(repo string) (owner, name string, err error) {
	return SplitRepo(repo, g.owner)
}

// SplitRepo splits "owner/name". A bare name uses defaultOwner.
func SplitRepo(repo, defaultOwner string) (owner, name string, err error) {
	owner, name, found := strings.Cut(repo, "/")
	if !found {
		owner, name = defaultOwner, repo
	}
	if owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", domain.NewValidationError("repo", fmt.Sprintf("expected owner/name, got %q", repo))
	}
	return owner, name, nil
}
