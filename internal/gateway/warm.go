package gateway

import (
	"context"
	"errors"

	"github.com/quantmind-br/docgate/internal/menu"
	"github.com/quantmind-br/docgate/internal/utils"
)

// DefaultWarmWorkers is the number of documents rendered concurrently by Warm
const DefaultWarmWorkers = 4

// WarmOptions configures Warm
type WarmOptions struct {
	Workers int
	// OnDocument is called after each document, possibly concurrently
	OnDocument func(slug string, err error)
}

// WarmResult summarizes a Warm run
type WarmResult struct {
	Documents int
	Failed    int
	Err       error
}

// Warm builds the menu of repo at ref and renders every page it lists with
// content through the document cache.
func (g *Gateway) Warm(ctx context.Context, repo, ref string, opts WarmOptions) (*WarmResult, error) {
	tree, err := g.GetMenu(ctx, repo, ref)
	if err != nil {
		return nil, err
	}

	var slugs []string
	for _, n := range menu.Flatten(tree) {
		if n.HasContent {
			slugs = append(slugs, n.Slug)
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWarmWorkers
	}

	errs := utils.ParallelForEach(ctx, slugs, workers, func(ctx context.Context, slug string) error {
		_, err := g.GetDoc(ctx, repo, ref, slug)
		if opts.OnDocument != nil {
			opts.OnDocument(slug, err)
		}
		return err
	})

	failed := utils.CollectErrors(errs)
	g.logger.Info().
		Str("repo", repo).
		Str("ref", ref).
		Int("documents", len(slugs)).
		Int("failed", len(failed)).
		Msg("Warmed document cache")

	return &WarmResult{
		Documents: len(slugs),
		Failed:    len(failed),
		Err:       errors.Join(failed...),
	}, ctx.Err()
}
