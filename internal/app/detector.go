package app

import (
	"strings"

	"github.com/quantmind-br/docgate/internal/config"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/source"
	"github.com/quantmind-br/docgate/internal/utils"
)

// SourceType represents the kind of repository provider
type SourceType string

const (
	SourceGitHub  SourceType = config.SourceGitHub
	SourceLocal   SourceType = config.SourceLocal
	SourceUnknown SourceType = "unknown"
)

// DetectSource determines the provider from the source settings. An explicit
// type wins; "auto" picks local when a local root is configured.
func DetectSource(cfg config.SourceConfig) SourceType {
	switch strings.ToLower(cfg.Type) {
	case config.SourceGitHub:
		return SourceGitHub
	case config.SourceLocal:
		return SourceLocal
	case config.SourceAuto, "":
		if cfg.LocalRoot != "" {
			return SourceLocal
		}
		return SourceGitHub
	default:
		return SourceUnknown
	}
}

// NormalizeRepo reduces GitHub URLs and clone addresses to "owner/name"
func NormalizeRepo(repo string) string {
	r := strings.TrimSpace(repo)
	lower := strings.ToLower(r)

	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/", "git@github.com:"} {
		if strings.HasPrefix(lower, prefix) {
			r = r[len(prefix):]
			break
		}
	}

	// drop /tree/<ref> and similar trailing views
	if parts := strings.Split(strings.Trim(r, "/"), "/"); len(parts) > 2 {
		r = parts[0] + "/" + parts[1]
	}

	r = strings.TrimSuffix(strings.Trim(r, "/"), ".git")
	return r
}

// CreateSource creates the provider for sourceType
func CreateSource(sourceType SourceType, cfg *config.Config, logger *utils.Logger) (domain.Source, error) {
	retries := cfg.Source.MaxRetries
	if retries == 0 {
		// the retrier treats zero as "use the default"
		retries = -1
	}

	switch sourceType {
	case SourceGitHub:
		return source.NewGitHub(source.GitHubOptions{
			Token:   cfg.Source.Token,
			BaseURL: cfg.Source.BaseURL,
			Owner:   cfg.Source.Owner,
			Timeout: cfg.Source.Timeout,
			Retrier: source.NewRetrier(source.RetrierOptions{MaxRetries: retries}),
			Logger:  logger,
		})
	case SourceLocal:
		return source.NewLocalGit(source.LocalGitOptions{
			Root:   utils.ExpandPath(cfg.Source.LocalRoot),
			Logger: logger,
		})
	default:
		return nil, domain.NewValidationError("source.type", "unknown source type "+string(sourceType))
	}
}
