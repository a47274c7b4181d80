// Package cmd provides the command-line interface for Seeker.
// It handles command parsing, configuration loading, and crawl execution.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/seeker/internal/config"
	"github.com/masahif/seeker/internal/crawler"
	"github.com/masahif/seeker/internal/logging"
	"github.com/masahif/seeker/internal/report"
	"github.com/masahif/seeker/internal/storage"
)

var (
	version   string
	buildTime string

	// fetcherOptions are appended to the options built from configuration
	fetcherOptions []crawler.FetcherOption
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "seeker [URLs...]",
		Short: "Discover the host names of an institutional domain",
		Long: `Seeker crawls outward from seed pages and records every host name
under one domain suffix (mit.edu by default) that it can reach.

Each cycle fetches one page, keeps the links that stay inside the scope
and look like HTML pages, and schedules the unseen ones. The result is the
sorted list of discovered hosts.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeeker(cmd, v, args)
		},
	}

	// Configuration file flag
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./seeker.yml)")

	// Configuration management flags
	cmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Crawl flags
	cmd.Flags().String("scope", config.DefaultScope, "Domain suffix every crawled host must carry")
	cmd.Flags().IntP("cycles", "n", config.DefaultCycles, "Number of discovery cycles to run")
	cmd.Flags().IntP("concurrency", "c", 1, "Number of concurrent workers")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "HTTP request timeout")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent, "HTTP User-Agent header")
	cmd.Flags().Int("max-per-domain", config.DefaultMaxPerDomain, "Links admitted per host over the whole run")

	// URL filtering flags
	cmd.Flags().StringSlice("extensions", config.DefaultConfig().Extensions, "Accepted path extensions")
	cmd.Flags().StringSlice("exclude-patterns", []string{}, "Regex patterns for URLs to exclude")

	// Output flags, shared with show
	cmd.PersistentFlags().StringP("database", "d", "", "SQLite database receiving the finished run (empty disables)")
	cmd.PersistentFlags().StringP("output", "o", "", "Report file (default stdout)")
	cmd.PersistentFlags().StringP("format", "f", "text", "Report format: text or yaml")

	// Logging flags
	cmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().String("log-file", "", "Log file path (rotated by size)")
	cmd.PersistentFlags().String("log-format", "json", "Log format: json or text")

	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"scope", "scope"},
		{"cycles", "cycles"},
		{"concurrency", "concurrency"},
		{"request_timeout", "timeout"},
		{"user_agent", "user-agent"},
		{"max_per_domain", "max-per-domain"},
		{"extensions", "extensions"},
		{"exclude_patterns", "exclude-patterns"},
		{"database_path", "database"},
		{"output_path", "output"},
		{"output_format", "format"},
		{"log.level", "log-level"},
		{"log.file", "log-file"},
		{"log.format", "log-format"},
	}

	for _, bind := range bindFlags {
		flag := cmd.Flags().Lookup(bind.flagName)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(bind.flagName)
		}
		if err := v.BindPFlag(bind.viperKey, flag); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}

	cmd.AddCommand(newShowCmd(v))
	return cmd
}

// initConfig reads in config file and ENV variables if set.
func initConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("seeker")
	}

	setDefaults(v)

	v.SetEnvPrefix("SK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", v.ConfigFileUsed())
	return nil
}

// setDefaults registers every configuration key so that AutomaticEnv can
// resolve keys that have no flag and no config file entry.
func setDefaults(v *viper.Viper) {
	d := config.DefaultConfig()
	v.SetDefault("seed_urls", []string{})
	v.SetDefault("scope", d.Scope)
	v.SetDefault("cycles", d.Cycles)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("max_per_domain", d.MaxPerDomain)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("exclude_patterns", []string{})
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("output_path", d.OutputPath)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
}

// loadConfig merges defaults, file, environment and flags
func loadConfig(v *viper.Viper) (*config.CrawlConfig, error) {
	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("Seeker/%s", version)
	}
	return config.DefaultUserAgent
}

func showCurrentConfig(w io.Writer, cfg *config.CrawlConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	// Validate configuration before showing it
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current Seeker Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./seeker.yml\n")
	fmt.Fprintf(w, "# Environment variables prefix: SK_\n\n")

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (SK_ prefix)\n")
	fmt.Fprintf(w, "# 3. Configuration file (seeker.yml)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

func setupLogging(cfg config.LogConfig) (io.Closer, error) {
	return logging.SetDefault(logging.Config{
		Level:      logging.ParseLevel(cfg.Level),
		Format:     cfg.Format,
		FilePath:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Console:    true,
	})
}

func runSeeker(cmd *cobra.Command, v *viper.Viper, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.SeedURLs = args
	}

	// Update User-Agent with dynamic version if not explicitly set
	if !cmd.Flags().Changed("user-agent") && cfg.UserAgent == config.DefaultUserAgent {
		cfg.UserAgent = generateUserAgent()
	}

	if showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCloser, err := setupLogging(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	seeds, err := parseSeeds(cfg.Seeds())
	if err != nil {
		return err
	}

	filter, err := buildFilter(cfg)
	if err != nil {
		return fmt.Errorf("invalid filter configuration: %w", err)
	}
	for _, seed := range seeds {
		if ok, reason := filter.Verdict(seed); !ok {
			slog.Warn("Seed would not pass the link filter", "seed", seed.String(), "reason", reason)
		}
	}

	opts := []crawler.FetcherOption{
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithTimeout(cfg.RequestTimeout),
	}
	fetcher := crawler.NewHTTPFetcher(append(opts, fetcherOptions...)...)
	defer fetcher.Close()

	seeker, err := crawler.NewSeeker(seeds,
		crawler.WithFetcher(fetcher),
		crawler.WithFilter(filter),
		crawler.WithMaxPerDomain(cfg.MaxPerDomain),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize seeker: %w", err)
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Starting seeker with configuration:\n")
	fmt.Fprintf(out, "  Seed URLs: %v\n", cfg.Seeds())
	fmt.Fprintf(out, "  Scope: %s\n", cfg.Scope)
	fmt.Fprintf(out, "  Cycles: %d\n", cfg.Cycles)
	fmt.Fprintf(out, "  Concurrency: %d\n", cfg.Concurrency)
	fmt.Fprintf(out, "  Max per domain: %d\n", cfg.MaxPerDomain)
	if cfg.DatabasePath != "" {
		fmt.Fprintf(out, "  Database: %s\n", cfg.DatabasePath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	summary, err := crawler.NewRunner(seeker).Run(ctx, crawler.RunOptions{
		Cycles:  cfg.Cycles,
		Workers: cfg.Concurrency,
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// Partial results are still worth reporting
		slog.Warn("Crawl interrupted, writing partial results", "cycles", summary.Cycles, "error", err)
	}

	snap := seeker.Snapshot()
	if err := writeReport(cmd.OutOrStdout(), cfg.OutputPath, snap, cfg.OutputFormat); err != nil {
		return err
	}

	if cfg.DatabasePath == "" {
		return nil
	}
	seedStrings := make([]string, len(seeds))
	for i, s := range seeds {
		seedStrings[i] = s.String()
	}
	id, err := saveRun(cfg.DatabasePath, &storage.RunRecord{
		Seeds:         seedStrings,
		CycleBudget:   cfg.Cycles,
		PolicyVersion: filter.Policy().Version,
		StartedAt:     started,
		FinishedAt:    snap.TakenAt,
		Snapshot:      snap,
	})
	if err != nil {
		return err
	}
	slog.Info("Saved run", "id", id, "database", cfg.DatabasePath)
	return nil
}

func parseSeeds(raw []string) ([]crawler.Address, error) {
	seeds := make([]crawler.Address, 0, len(raw))
	for _, s := range raw {
		a, err := crawler.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("invalid seed URL %q: %w", s, err)
		}
		seeds = append(seeds, a)
	}
	return seeds, nil
}

func buildFilter(cfg *config.CrawlConfig) (*crawler.Filter, error) {
	policy := crawler.DefaultFilterPolicy(cfg.Scope).WithExcludePatterns(cfg.ExcludePatterns...)
	if len(cfg.Extensions) > 0 {
		policy.Extensions = cfg.Extensions
	}
	return crawler.NewFilter(policy)
}

// writeReport writes to path, or to stdout when path is empty or "-"
func writeReport(stdout io.Writer, path string, snap *crawler.Snapshot, format string) error {
	if path == "" || path == "-" {
		return report.Write(stdout, snap, format)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path) // #nosec G304 -- user supplied output path
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := report.Write(f, snap, format); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

func saveRun(dbPath string, run *storage.RunRecord) (int64, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return 0, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	id, err := store.SaveRun(run)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	return id, nil
}
