package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quantmind-br/docgate/internal/app"
	"github.com/quantmind-br/docgate/internal/config"
	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/gateway"
	"github.com/quantmind-br/docgate/internal/menu"
	"github.com/quantmind-br/docgate/internal/server"
	"github.com/quantmind-br/docgate/internal/utils"
	"github.com/quantmind-br/docgate/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool

	// Dependencies for testing
	loadConfig = config.Load
	newLogger  = func(cfg *config.Config) *utils.Logger {
		return utils.NewLogger(utils.LoggerOptions{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: verbose,
		})
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docgate",
	Short: "Serve versioned documentation straight from git repositories",
	Long: `DocGate renders the markdown documentation of a repository at any tag or
branch. It builds navigation menus from the docs directory, renders pages to
HTML with syntax highlighting, and resolves language and version ranges in
request paths to canonical refs.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.docgate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("repo", "r", "", "Repository as owner/name or GitHub URL")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Refresh every entry on each request")
	rootCmd.PersistentFlags().String("source", "", "Source provider: github, local or auto")
	rootCmd.PersistentFlags().String("docs-path", "", "Documentation directory inside the repository")
	rootCmd.PersistentFlags().String("lang", "", "Default language for redirects")

	// Bind flags to viper
	_ = viper.BindPFlag("docs.repo", rootCmd.PersistentFlags().Lookup("repo"))
	_ = viper.BindPFlag("cache.no_cache", rootCmd.PersistentFlags().Lookup("no-cache"))
	_ = viper.BindPFlag("source.type", rootCmd.PersistentFlags().Lookup("source"))
	_ = viper.BindPFlag("docs.path", rootCmd.PersistentFlags().Lookup("docs-path"))
	_ = viper.BindPFlag("docs.default_lang", rootCmd.PersistentFlags().Lookup("lang"))

	serveCmd.Flags().String("addr", "", "Listen address (default from server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	menuCmd.Flags().Bool("slugs", false, "Print one slug per line instead of JSON")
	docCmd.Flags().Bool("html", false, "Print only the rendered HTML")
	imageCmd.Flags().StringP("output", "o", "", "Write the file here instead of stdout")
	warmCmd.Flags().IntP("workers", "j", gateway.DefaultWarmWorkers, "Number of concurrent renders")
	warmCmd.Flags().Bool("quiet", false, "Hide the progress bar")
	refsCmd.Flags().Bool("refresh", false, "Drop the stored listing and ask the source again")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(refsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// newApp loads the configuration and wires the application
func newApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return app.New(app.Options{
		Config:  cfg,
		Verbose: verbose,
		Logger:  newLogger(cfg),
	})
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		cfg := a.Config()
		srv := server.New(a.Gateway(), a.Catalog(), server.Options{
			Addr:            cfg.Server.Addr,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			DefaultLang:     cfg.Docs.DefaultLang,
			Repo:            a.Repo,
			Logger:          a.Logger(),
		})
		return srv.ListenAndServe(ctx)
	},
}

var menuCmd = &cobra.Command{
	Use:   "menu <ref>",
	Short: "Print the navigation menu of a ref",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := a.Repo("")
		if err != nil {
			return err
		}
		tree, err := a.Gateway().GetMenu(cmd.Context(), repo, args[0])
		if err != nil {
			return err
		}

		slugs, _ := cmd.Flags().GetBool("slugs")
		if !slugs {
			return printJSON(cmd.OutOrStdout(), tree)
		}
		for _, n := range menu.Flatten(tree) {
			depth := strings.Count(n.Slug, "/")
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", strings.Repeat("  ", depth), n.Slug)
		}
		return nil
	},
}

var docCmd = &cobra.Command{
	Use:   "doc <ref> [slug]",
	Short: "Render one document",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := a.Repo("")
		if err != nil {
			return err
		}
		slug := ""
		if len(args) == 2 {
			slug = args[1]
		}
		doc, err := a.Gateway().GetDoc(cmd.Context(), repo, args[0], slug)
		if err != nil {
			return err
		}

		if html, _ := cmd.Flags().GetBool("html"); html {
			_, err := io.WriteString(cmd.OutOrStdout(), doc.HTML)
			return err
		}
		return printJSON(cmd.OutOrStdout(), doc)
	},
}

var imageCmd = &cobra.Command{
	Use:   "image <ref> <path>",
	Short: "Fetch a file from the docs directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := a.Repo("")
		if err != nil {
			return err
		}
		data, err := a.Gateway().GetImage(cmd.Context(), repo, args[0], args[1])
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		a.Logger().Info().Str("file", output).Int("bytes", len(data)).Msg("Saved file")
		return nil
	},
}

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "List the tags and branches of the repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := a.Repo("")
		if err != nil {
			return err
		}
		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			if err := a.Catalog().Invalidate(cmd.Context(), repo); err != nil {
				return err
			}
		}
		set, err := a.Catalog().Refs(cmd.Context(), repo)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), set)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Resolve a request path such as en/^2.0/guide to its canonical form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := a.Repo("")
		if err != nil {
			return err
		}
		target, redirect, err := a.Resolve(cmd.Context(), repo, args[0])
		if err != nil {
			return err
		}
		if !redirect {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (canonical)\n", strings.Trim(args[0], "/"))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", target)
		return nil
	},
}

var warmCmd = &cobra.Command{
	Use:   "warm <ref>",
	Short: "Build the menu of a ref and render every page once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		repo, err := a.Repo("")
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		tree, err := a.Gateway().GetMenu(ctx, repo, args[0])
		if err != nil {
			return err
		}
		total := 0
		for _, n := range menu.Flatten(tree) {
			if n.HasContent {
				total++
			}
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		bar := utils.NewProgressBar(total, utils.DescRendering)
		if quiet {
			bar = utils.NewSilentProgressBar(total)
		}
		workers, _ := cmd.Flags().GetInt("workers")

		res, err := a.Gateway().Warm(ctx, repo, args[0], gateway.WarmOptions{
			Workers: workers,
			OnDocument: func(slug string, err error) {
				_ = bar.Add(1)
				if err != nil {
					a.Logger().Warn().Err(err).Str("slug", slug).Msg("Failed to render")
				}
			},
		})
		_ = bar.Finish()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d/%d documents of %s@%s\n",
			res.Documents-res.Failed, res.Documents, repo, args[0])
		if res.Err != nil {
			return fmt.Errorf("%d documents failed: %w", res.Failed, res.Err)
		}
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the persistent cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print entry and size counters of the persistent cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return printJSON(cmd.OutOrStdout(), a.StoreStats())
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every stored ref listing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearStore(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and source access",
	Long:  "Verifies that the configuration loads, the cache directory is usable and the source answers.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Checking setup...")
		allPassed := true

		// Check 1: Config file
		fmt.Fprint(out, "  Config: ")
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(out, "FAILED (%v)\n", err)
			return nil
		}
		fmt.Fprintf(out, "OK (%s, source %s, docs path %q)\n", configFileUsed(), cfg.Source.Type, cfg.Docs.Path)

		// Check 2: Cache directory
		fmt.Fprint(out, "  Cache directory: ")
		cacheDir := utils.ExpandPath(cfg.Cache.Directory)
		switch {
		case cfg.Cache.InMemory:
			fmt.Fprintln(out, "OK (in memory)")
		case checkCacheDir(cacheDir):
			fmt.Fprintf(out, "OK (%s)\n", cacheDir)
		default:
			fmt.Fprintln(out, "WARN (will be created on first use)")
		}

		// Check 3: Source access
		fmt.Fprint(out, "  Source: ")
		if cfg.Docs.Repo == "" {
			fmt.Fprintln(out, "SKIPPED (docs.repo is not set)")
		} else if err := checkSource(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(out, "FAILED (%v)\n", err)
			allPassed = false
		} else {
			fmt.Fprintln(out, "OK")
		}

		fmt.Fprintln(out)
		if allPassed {
			fmt.Fprintln(out, "All critical checks passed!")
		} else {
			fmt.Fprintln(out, "Some checks failed. Please resolve the issues above.")
		}
		return nil
	},
}

// configFileUsed describes where the configuration was read from
func configFileUsed() string {
	if cfgFile != "" {
		return cfgFile
	}
	if file := viper.ConfigFileUsed(); file != "" {
		return file
	}
	return fmt.Sprintf("defaults, no %s", config.ConfigFilePath())
}

// checkCacheDir checks if the cache directory exists
func checkCacheDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// checkSource lists the refs of the default repository
func checkSource(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := utils.NewNopLogger()
	src, err := app.CreateSource(app.DetectSource(cfg.Source), cfg, logger)
	if err != nil {
		return err
	}
	set, err := src.ListRefs(ctx, app.NormalizeRepo(cfg.Docs.Repo))
	if err != nil {
		return err
	}
	if len(set.Tags)+len(set.Branches) == 0 {
		return domain.NewValidationError("repo", "repository has no tags or branches")
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Full())
	},
}
