// cmd/cimisync/main.go - synchronises upstream installers into the internal
// asset store and Chocolatey feed.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/windowsadmins/cimisync/pkg/assetstore"
	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/download"
	"github.com/windowsadmins/cimisync/pkg/extract"
	"github.com/windowsadmins/cimisync/pkg/filter"
	"github.com/windowsadmins/cimisync/pkg/logging"
	"github.com/windowsadmins/cimisync/pkg/packagestore"
	"github.com/windowsadmins/cimisync/pkg/pipeline"
	"github.com/windowsadmins/cimisync/pkg/pkgfiles"
	"github.com/windowsadmins/cimisync/pkg/prompt"
	"github.com/windowsadmins/cimisync/pkg/reporting"
	"github.com/windowsadmins/cimisync/pkg/resolver"
	"github.com/windowsadmins/cimisync/pkg/scripts"
	"github.com/windowsadmins/cimisync/pkg/version"
)

func defaultConfigPath() string {
	exe, err := os.Executable()
	if err != nil {
		return config.DefaultConfigName
	}
	return filepath.Join(filepath.Dir(exe), config.DefaultConfigName)
}

func main() {
	fs := pflag.NewFlagSet("cimisync", pflag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to the configuration file.")
	entriesPath := fs.String("entries", "", "Path to the software entries file (overrides EntriesFile).")
	dryRun := fs.Bool("dry-run", false, "Resolve, download and rewrite locally, but do not publish, pack or push.")
	force := fs.Bool("force", false, "Update even when the published version is current.")
	nonInteractive := fs.Bool("non-interactive", false, "Fail local entries instead of prompting for a version.")
	parallel := fs.Int("parallel", 0, "Number of entries processed concurrently (default from config).")
	presetVersions := fs.StringToString("set-version", nil, "Preset versions for entries that need manual version input, e.g. --set-version App=1.2.3.")
	versionFlag := fs.Bool("version", false, "Print the version and exit.")
	var verbosity int
	fs.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG)")
	items := filter.NewItemFilter()
	items.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	if *versionFlag {
		version.Print()
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlags(fs, cfg, *entriesPath, *dryRun, *force, *nonInteractive, *parallel, verbosity)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot prepare working directories: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()

	logging.Info("cimisync starting", "version", version.Build().Version, "session", logging.SessionID(),
		"dryRun", cfg.DryRun, "force", cfg.Force)
	if err := cfg.CheckFreeSpace(); err != nil {
		logging.Warn("Free space check failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hooks := scripts.Hooks{PowerShell: cfg.PowerShellPath, PreRun: cfg.PreRunScript, PostRun: cfg.PostRunScript}
	if err := hooks.RunPreRun(ctx, logging.SessionID()); err != nil {
		logging.Error("Pre-run script failed, aborting", "error", err)
		logging.Close()
		os.Exit(1)
	}

	entries, err := config.LoadEntries(cfg.EntriesFile)
	if err != nil {
		if len(entries) == 0 {
			logging.Error("Failed to load software entries", "file", cfg.EntriesFile, "error", err)
			logging.Close()
			os.Exit(1)
		}
		logging.Warn("Some software entries are invalid and were skipped", "error", err)
	}
	entries = items.Apply(entries)
	if len(entries) == 0 {
		logging.Info("Nothing to do")
		return
	}

	runner, err := buildRunner(cfg, *presetVersions)
	if err != nil {
		logging.Error("Failed to set up pipeline", "error", err)
		logging.Close()
		os.Exit(1)
	}

	start := time.Now()
	summary := pipeline.RunBatch(ctx, runner, entries, cfg.Parallel)
	printSummary(summary)

	report := ""
	if dir := cfg.ReportsPath(); dir != "" {
		exp := reporting.NewDataExporter(dir)
		info := reporting.RunInfo{SessionID: logging.SessionID(), Start: start, End: time.Now(), DryRun: cfg.DryRun}
		if err := exp.Export(info, summary, cfg.ReportRetainDays); err != nil {
			logging.Warn("Writing run report failed", "dir", dir, "error", err)
		} else {
			report = exp.ItemsPath()
		}
	}
	stats := scripts.RunStats{
		SessionID: logging.SessionID(),
		Checked:   summary.Checked,
		Warnings:  summary.Warnings,
		Errors:    summary.Errors,
		DryRun:    cfg.DryRun,
		Report:    report,
	}
	if err := hooks.RunPostRun(context.WithoutCancel(ctx), stats); err != nil {
		logging.Warn("Post-run script failed", "error", err)
	}

	if summary.Errors > 0 {
		logging.Close()
		os.Exit(1)
	}
}

// applyFlags layers explicitly set command-line flags over the configuration.
func applyFlags(fs *pflag.FlagSet, cfg *config.Configuration, entries string, dryRun, force, nonInteractive bool, parallel, verbosity int) {
	if entries != "" {
		cfg.EntriesFile = entries
	}
	if fs.Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if fs.Changed("force") {
		cfg.Force = force
	}
	if fs.Changed("non-interactive") {
		cfg.NonInteractive = nonInteractive
	}
	if parallel > 0 {
		cfg.Parallel = parallel
	}
	switch {
	case verbosity == 1:
		cfg.LogLevel = "INFO"
	case verbosity >= 2:
		cfg.LogLevel = "DEBUG"
	}
}

func buildRunner(cfg *config.Configuration, presets map[string]string) (*pipeline.Runner, error) {
	client := download.NewHTTPClient(cfg.MaxRedirects, time.Duration(cfg.HTTPTimeoutSeconds)*time.Second)
	prober := &download.Prober{Client: client}
	github := &resolver.GitHubAPI{
		BaseURL: cfg.GitHubAPIURL,
		RawURL:  cfg.GitHubRawURL,
		Token:   cfg.GitHubToken,
		HTTP:    client,
	}

	var versions resolver.VersionSupplier = prompt.Stdio()
	if cfg.NonInteractive {
		versions = prompt.NonInteractive{}
	}
	if len(presets) > 0 {
		versions = prompt.Fixed{Versions: presets, Next: versions}
	}

	set, err := resolver.NewSet(
		&resolver.WingetResolver{API: github},
		&resolver.ReleaseResolver{API: github},
		&resolver.WebDirectoryResolver{Prober: prober},
		&resolver.DirectURLResolver{Prober: prober},
		&resolver.LocalResolver{DropPath: cfg.DropPath, Versions: versions, Metadata: extract.InstallerMetadata},
	)
	if err != nil {
		return nil, err
	}

	return &pipeline.Runner{
		Resolvers: set,
		Prober:    prober,
		Paths: pipeline.PathBuilder{
			PackagesRoot: cfg.PackagesRoot,
			WingetRepo:   cfg.WingetRepo,
			GitHub:       github,
		},
		Assets:     assetstore.New(cfg.AssetBaseURL, cfg.AssetDirectory, cfg.AssetAPIKey, client),
		Packages:   packagestore.New(cfg.ChocoPath, cfg.FeedURL, cfg.FeedAPIKey),
		Downloader: download.NewTransfer(client),
		Scripts:    pkgfiles.PowerShellRewriter{},
		Versions:   versions,
		Options: pipeline.Options{
			DryRun:          cfg.DryRun,
			Force:           cfg.Force,
			SelfPackageName: cfg.SelfPackageName,
			WorkPath:        cfg.WorkPath,
		},
	}, nil
}

func printSummary(s pipeline.Summary) {
	for _, r := range s.Results {
		if r.Errors > 0 {
			logging.Error("Failed", "entry", r.Entry.DisplayName(), "state", r.State, "error", r.Err)
		}
	}
	msg := fmt.Sprintf("checked %d, warnings %d, errors %d", s.Checked, s.Warnings, s.Errors)
	if s.Errors > 0 {
		logging.Error(msg, "duration", s.Duration.Round(time.Second))
	} else {
		logging.Success(msg, "duration", s.Duration.Round(time.Second))
	}
	if path := logging.LogFilePath(); path != "" {
		logging.Info("Log file", "path", path)
	}
}
