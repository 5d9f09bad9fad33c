// pkg/config/config.go - configuration settings for cimisync.

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is looked up beside the executable when --config is not given.
const DefaultConfigName = "cimisync.yaml"

// RegistryPath holds machine policy values that override the YAML file on
// Windows. Environment variables still win over both.
const RegistryPath = `SOFTWARE\cimisync\Config`

// registryValueNames are the values read from RegistryPath.
var registryValueNames = []string{"AssetBaseURL", "AssetAPIKey", "FeedURL", "FeedAPIKey", "GitHubToken"}

// Environment variables that override the credentials stored in the YAML file.
const (
	EnvAssetAPIKey = "CIMISYNC_ASSET_API_KEY"
	EnvFeedAPIKey  = "CIMISYNC_FEED_API_KEY"
	EnvGitHubToken = "CIMISYNC_GITHUB_TOKEN"
)

// Configuration holds the configurable options for cimisync in YAML format
type Configuration struct {
	AssetBaseURL       string `yaml:"AssetBaseURL"`
	AssetDirectory     string `yaml:"AssetDirectory"`
	AssetAPIKey        string `yaml:"AssetAPIKey"`
	FeedURL            string `yaml:"FeedURL"`
	FeedAPIKey         string `yaml:"FeedAPIKey"`
	PackagesRoot       string `yaml:"PackagesRoot"`
	DropPath           string `yaml:"DropPath"`
	WorkPath           string `yaml:"WorkPath"`
	LogPath            string `yaml:"LogPath"`
	LogLevel           string `yaml:"LogLevel"`
	EntriesFile        string `yaml:"EntriesFile"`
	WingetRepo         string `yaml:"WingetRepo"`
	GitHubAPIURL       string `yaml:"GitHubAPIURL"`
	GitHubRawURL       string `yaml:"GitHubRawURL"`
	GitHubToken        string `yaml:"GitHubToken"`
	ChocoPath          string `yaml:"ChocoPath"`
	SelfPackageName    string `yaml:"SelfPackageName"`
	PowerShellPath     string `yaml:"PowerShellPath"`
	PreRunScript       string `yaml:"PreRunScript"`
	PostRunScript      string `yaml:"PostRunScript"`
	ReportRetainDays   int    `yaml:"ReportRetainDays"`
	MaxRedirects       int    `yaml:"MaxRedirects"`
	HTTPTimeoutSeconds int    `yaml:"HTTPTimeoutSeconds"`
	MinFreeSpaceMB     uint64 `yaml:"MinFreeSpaceMB"`
	Parallel           int    `yaml:"Parallel"`
	DryRun             bool   `yaml:"DryRun"`
	Force              bool   `yaml:"Force"`
	NonInteractive     bool   `yaml:"NonInteractive"`
}

// GetDefaultConfig provides default configuration values.
func GetDefaultConfig() *Configuration {
	base := `C:\ProgramData\cimisync`
	return &Configuration{
		AssetBaseURL:       "https://proget.example.com",
		AssetDirectory:     "installers",
		FeedURL:            "https://proget.example.com/nuget/choco",
		PackagesRoot:       filepath.Join(base, "packages"),
		DropPath:           filepath.Join(base, "drop"),
		WorkPath:           filepath.Join(base, "work"),
		LogPath:            filepath.Join(base, "logs"),
		LogLevel:           "INFO",
		EntriesFile:        filepath.Join(base, "software.yaml"),
		WingetRepo:         "microsoft/winget-pkgs",
		GitHubAPIURL:       "https://api.github.com",
		GitHubRawURL:       "https://raw.githubusercontent.com",
		ChocoPath:          "choco",
		SelfPackageName:    "chocolatey",
		PowerShellPath:     "pwsh.exe",
		ReportRetainDays:   30,
		MaxRedirects:       10,
		HTTPTimeoutSeconds: 300,
		MinFreeSpaceMB:     1024,
		Parallel:           1,
	}
}

// LoadConfig loads the configuration from a YAML file layered over the
// defaults. A missing file is not an error: the defaults plus environment
// overrides are returned.
func LoadConfig(path string) (*Configuration, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Printf("Configuration file does not exist, using defaults: %s", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
		}
	}

	applyOverrides(cfg, registryValues())
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyOverrides copies non-empty policy values onto cfg.
func applyOverrides(cfg *Configuration, values map[string]string) {
	targets := map[string]*string{
		"AssetBaseURL": &cfg.AssetBaseURL,
		"AssetAPIKey":  &cfg.AssetAPIKey,
		"FeedURL":      &cfg.FeedURL,
		"FeedAPIKey":   &cfg.FeedAPIKey,
		"GitHubToken":  &cfg.GitHubToken,
	}
	for name, target := range targets {
		if v := strings.TrimSpace(values[name]); v != "" {
			*target = v
			log.Printf("Registry: Loaded %s", name)
		}
	}
}

func applyEnv(cfg *Configuration) {
	if v := os.Getenv(EnvAssetAPIKey); v != "" {
		cfg.AssetAPIKey = v
	}
	if v := os.Getenv(EnvFeedAPIKey); v != "" {
		cfg.FeedAPIKey = v
	}
	if v := os.Getenv(EnvGitHubToken); v != "" {
		cfg.GitHubToken = v
	}
}

// applyDefaults fills zero values a YAML file may have cleared.
func applyDefaults(cfg *Configuration) {
	def := GetDefaultConfig()
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	if cfg.HTTPTimeoutSeconds <= 0 {
		cfg.HTTPTimeoutSeconds = def.HTTPTimeoutSeconds
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	if cfg.WingetRepo == "" {
		cfg.WingetRepo = def.WingetRepo
	}
	if cfg.GitHubAPIURL == "" {
		cfg.GitHubAPIURL = def.GitHubAPIURL
	}
	if cfg.GitHubRawURL == "" {
		cfg.GitHubRawURL = def.GitHubRawURL
	}
	if cfg.ChocoPath == "" {
		cfg.ChocoPath = def.ChocoPath
	}
	if cfg.PowerShellPath == "" {
		cfg.PowerShellPath = def.PowerShellPath
	}
	if cfg.SelfPackageName == "" {
		cfg.SelfPackageName = def.SelfPackageName
	}
	cfg.AssetBaseURL = strings.TrimRight(cfg.AssetBaseURL, "/")
}

// Validate reports configuration that makes a run impossible.
func (c *Configuration) Validate() error {
	var missing []string
	if c.AssetBaseURL == "" {
		missing = append(missing, "AssetBaseURL")
	}
	if c.AssetDirectory == "" {
		missing = append(missing, "AssetDirectory")
	}
	if c.PackagesRoot == "" {
		missing = append(missing, "PackagesRoot")
	}
	if c.WorkPath == "" {
		missing = append(missing, "WorkPath")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ReportsPath is where run reports are written, below LogPath.
func (c *Configuration) ReportsPath() string {
	if c.LogPath == "" {
		return ""
	}
	return filepath.Join(c.LogPath, "reports")
}

// EnsureDirectories creates the working and log directories. Failure here
// aborts the whole run.
func (c *Configuration) EnsureDirectories() error {
	for _, path := range []string{c.WorkPath, c.LogPath} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", path, err)
		}
	}
	return nil
}

// CheckFreeSpace returns an error when WorkPath has less free space than
// MinFreeSpaceMB. A zero threshold disables the check.
func (c *Configuration) CheckFreeSpace() error {
	if c.MinFreeSpaceMB == 0 {
		return nil
	}
	usage, err := disk.Usage(c.WorkPath)
	if err != nil {
		return fmt.Errorf("querying free space on %s: %w", c.WorkPath, err)
	}
	freeMB := usage.Free / (1024 * 1024)
	if freeMB < c.MinFreeSpaceMB {
		return fmt.Errorf("only %d MB free on %s, want at least %d MB", freeMB, c.WorkPath, c.MinFreeSpaceMB)
	}
	return nil
}
