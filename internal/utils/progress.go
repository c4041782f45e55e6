package utils

import "github.com/schollz/progressbar/v3"

// DescRendering labels the bar of a warm run
const DescRendering = "Rendering"

// NewProgressBar creates a consistently styled progress bar.
// A negative total switches the bar to spinner mode.
//
// Example:
//
//	bar := utils.NewProgressBar(len(slugs), utils.DescRendering)
//	defer bar.Finish()
func NewProgressBar(total int, description string) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
	}

	if total < 0 {
		opts = append(opts,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
		)
	} else {
		opts = append(opts,
			progressbar.OptionShowIts(),
		)
	}

	return progressbar.NewOptions(total, opts...)
}

// NewSilentProgressBar creates a bar that renders nothing, for non-interactive runs
func NewSilentProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total, progressbar.OptionSetVisibility(false))
}
