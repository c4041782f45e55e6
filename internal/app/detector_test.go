package app

import (
	"testing"

	"github.com/quantmind-br/docgate/internal/config"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDetectSource tests provider detection from source settings
func TestDetectSource(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.SourceConfig
		expected SourceType
	}{
		{"explicit github", config.SourceConfig{Type: "github", LocalRoot: "/srv"}, SourceGitHub},
		{"explicit local", config.SourceConfig{Type: "local"}, SourceLocal},
		{"uppercase type", config.SourceConfig{Type: "LOCAL"}, SourceLocal},
		{"auto with local root", config.SourceConfig{Type: "auto", LocalRoot: "/srv"}, SourceLocal},
		{"auto without local root", config.SourceConfig{Type: "auto"}, SourceGitHub},
		{"empty type", config.SourceConfig{}, SourceGitHub},
		{"unknown", config.SourceConfig{Type: "svn"}, SourceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectSource(tt.cfg))
		})
	}
}

func TestNormalizeRepo(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"acme/docs", "acme/docs"},
		{"docs", "docs"},
		{"https://github.com/acme/docs", "acme/docs"},
		{"https://github.com/acme/docs/", "acme/docs"},
		{"https://GitHub.com/acme/docs.git", "acme/docs"},
		{"github.com/acme/docs/tree/main/docs", "acme/docs"},
		{"git@github.com:acme/docs.git", "acme/docs"},
		{"  acme/docs  ", "acme/docs"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRepo(tt.in))
		})
	}
}

func TestCreateSource(t *testing.T) {
	cfg := config.Default()
	logger := utils.NewNopLogger()

	t.Run("github", func(t *testing.T) {
		src, err := CreateSource(SourceGitHub, cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, "github", src.Name())
	})

	t.Run("local", func(t *testing.T) {
		c := *cfg
		c.Source.LocalRoot = t.TempDir()
		src, err := CreateSource(SourceLocal, &c, logger)
		require.NoError(t, err)
		assert.Equal(t, "local", src.Name())
	})

	t.Run("local without root", func(t *testing.T) {
		_, err := CreateSource(SourceLocal, cfg, logger)
		var validationErr *domain.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := CreateSource(SourceUnknown, cfg, logger)
		assert.Error(t, err)
	})
}
