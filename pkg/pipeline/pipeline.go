// pkg/pipeline/pipeline.go - per-entry update pipeline.
//
// Each entry runs resolve -> reconcile -> acquire -> (nested extract) ->
// package tools update -> publish -> checksum -> package file rewrite ->
// pack & push -> cleanup. A failure in acquisition or a missing package file
// ends the entry; other failures are counted and the next stage runs.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/cimisync/pkg/assetstore"
	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/extract"
	"github.com/windowsadmins/cimisync/pkg/logging"
	"github.com/windowsadmins/cimisync/pkg/naming"
	"github.com/windowsadmins/cimisync/pkg/pkgfiles"
	"github.com/windowsadmins/cimisync/pkg/resolver"
	"github.com/windowsadmins/cimisync/pkg/utils"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// AssetStore is the part of the asset store client the pipeline uses.
type AssetStore interface {
	Latest(ctx context.Context, folder, base, arch, ext string) (*assetstore.ExistingArtifact, error)
	Upload(ctx context.Context, folder, file, localPath string) error
	SHA256(ctx context.Context, folder, file string) (string, error)
	ContentURL(folder, file string) string
}

// PackageStore packs and pushes a package source directory.
type PackageStore interface {
	Pack(ctx context.Context, dir string) (string, error)
	Push(ctx context.Context, nupkg string) error
}

// Downloader fetches url into dest.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// Options are the run-wide switches.
type Options struct {
	DryRun          bool
	Force           bool
	SelfPackageName string
	WorkPath        string
}

// Runner executes the pipeline for single entries.
type Runner struct {
	Resolvers  *resolver.Set
	Prober     resolver.Probe
	Paths      PathBuilder
	Assets     AssetStore
	Packages   PackageStore
	Downloader Downloader
	Scripts    pkgfiles.ScriptRewriter
	// Versions answers for entries with ManualVersionRequired outside the
	// Local source, which asks its own supplier.
	Versions resolver.VersionSupplier
	Options  Options
}

// entryRun carries the state of one entry through the stages.
type entryRun struct {
	*Runner
	res      *EntryResult
	entry    config.SoftwareEntry
	label    string
	paths    resolver.PathContext
	intent   *resolver.ResolvedIntent
	workDir  string
	artifact string // local file being processed
	name     string // deterministic stored file name
	ext      string // stored extension
	sha256   string
}

func (e *entryRun) warn(msg string, kv ...interface{}) {
	e.res.Warnings++
	logging.Warn(msg, append([]interface{}{"entry", e.label}, kv...)...)
}

func (e *entryRun) fail(msg string, err error, kv ...interface{}) {
	e.res.Errors++
	if e.res.Err == nil {
		e.res.Err = err
	}
	logging.Error(msg, append([]interface{}{"entry", e.label, "error", err}, kv...)...)
}

func (e *entryRun) stage(s Stage, status StageStatus, err error) {
	e.res.Stages[s] = status
	switch status {
	case StatusFailed:
		logging.LogStageFailed(e.label, string(s), e.res.ResolvedVersion, err)
	case StatusSkipped:
		reason := "skipped"
		if err != nil {
			reason = err.Error()
		}
		logging.LogStageSkipped(e.label, string(s), reason)
	}
}

func (e *entryRun) timed(s Stage, fn func() error) error {
	logging.LogStageStart(e.label, string(s), e.res.ResolvedVersion)
	start := time.Now()
	err := fn()
	if err == nil {
		e.stage(s, StatusOK, nil)
		logging.LogStageComplete(e.label, string(s), e.res.ResolvedVersion, time.Since(start))
	}
	return err
}

// Run processes entry and never panics on collaborator failures; all
// outcomes land in the returned EntryResult.
func (r *Runner) Run(ctx context.Context, entry config.SoftwareEntry) EntryResult {
	start := time.Now()
	e := &entryRun{Runner: r, res: newEntryResult(entry), entry: entry, label: entry.DisplayName()}
	defer func() { e.res.Duration = time.Since(start) }()

	logging.Info("Processing software entry", "entry", e.label, "source", entry.SourceType)
	e.run(ctx)
	e.summarise()
	return *e.res
}

func (e *entryRun) run(ctx context.Context) {
	e.paths = e.Paths.Build(e.entry)
	e.res.State = StatePathsBuilt

	if !e.resolve(ctx) {
		return
	}
	if !e.reconcile(ctx) {
		return
	}

	workDir, err := os.MkdirTemp(e.Options.WorkPath, "entry-*")
	if err != nil {
		e.res.State = StateFailed
		e.fail("Cannot create working directory", err)
		return
	}
	e.workDir = workDir
	defer e.cleanup()

	if !e.acquire(ctx) {
		return
	}
	if e.intent.NestedArchive != nil && !e.extractNested() {
		return
	}
	if !e.updateTools() {
		return
	}
	e.publish(ctx)
	e.fetchChecksum(ctx)
	if !e.rewritePackageFiles() {
		return
	}
	e.packAndPush(ctx)
}

func (e *entryRun) resolve(ctx context.Context) bool {
	res, err := e.Resolvers.For(e.entry)
	if err != nil {
		e.res.State = StateFailed
		e.fail("No resolver for entry", err)
		return false
	}
	intent, err := res.Resolve(ctx, e.entry, e.paths)
	if err != nil {
		if errors.Is(err, resolver.ErrNotFound) {
			e.res.State = StateNotFound
			e.res.Err = err
			e.warn("No matching installer found, skipping", "reason", err)
			return false
		}
		e.res.State = StateFailed
		e.fail("Resolving latest installer failed", err)
		return false
	}

	normalized := resolver.Normalize(*intent, e.entry)
	if e.Prober != nil {
		resolver.EnsureFileName(ctx, e.Prober, &normalized)
	}
	if e.entry.ManualVersionRequired && e.entry.SourceType != config.SourceLocal {
		if err := e.supplyVersion(ctx, &normalized); err != nil {
			e.res.State = StateFailed
			e.fail("Manual version entry failed", err)
			return false
		}
	}
	if err := resolver.Finalize(&normalized); err != nil {
		e.res.State = StateFailed
		e.fail("Resolved intent is not usable", err)
		return false
	}
	e.intent = &normalized
	e.res.ResolvedVersion = normalized.Version
	e.res.State = StateIntentResolved

	e.ext = StoredExt(e.intent, e.entry)
	e.name = naming.FileName(e.entry, e.intent.Version, e.ext)
	e.res.ArtifactName = e.name
	logging.Info("Resolved latest installer", "entry", e.label, "version", e.intent.Version,
		"file", e.intent.FileName, "target", e.name)
	if e.intent.Comparable.IsUnknown() {
		e.warn("Source reports no version; treating as always newer", "file", e.intent.FileName)
	}
	return true
}

// supplyVersion replaces the discovered version with one from the version
// supplier.
func (e *entryRun) supplyVersion(ctx context.Context, in *resolver.ResolvedIntent) error {
	if e.Versions == nil {
		return errors.New("entry requires a manual version but no version supplier is configured")
	}
	file := in.FileName
	if file == "" {
		file = in.InstallerURL
	}
	v, err := e.Versions.SupplyVersion(ctx, e.entry, file)
	if err != nil {
		return err
	}
	v = version.Normalize(v)
	if !version.IsValid(v) {
		return fmt.Errorf("%w %q", resolver.ErrInvalidVersion, v)
	}
	logging.Info("Using manually supplied version", "entry", e.label, "version", v, "discovered", in.Version)
	in.Version = v
	return nil
}

func (e *entryRun) reconcile(ctx context.Context) bool {
	existing, err := e.Assets.Latest(ctx, e.paths.AssetFolder, naming.BaseName(e.entry), e.entry.Arch, e.ext)
	if err != nil {
		e.warn("Could not query existing artifact", "folder", e.paths.AssetFolder, "error", err)
		existing = nil
	}
	if existing != nil {
		e.res.ExistingVersion = existing.RawVersion
	}

	if Reconcile(existing, e.intent.Comparable, e.Options.Force) == UpToDate {
		e.res.State = StateUpToDate
		for _, s := range ReportedStages {
			e.res.Stages[s] = StatusSkipped
		}
		logging.Success("Already up to date", "entry", e.label, "version", e.intent.Version, "existing", existing.Name)
		return false
	}
	e.res.State = StateUpdateNeeded
	if existing == nil {
		logging.Info("No published artifact yet", "entry", e.label, "folder", e.paths.AssetFolder)
	} else {
		logging.Info("Update needed", "entry", e.label, "existing", existing.RawVersion, "latest", e.intent.Version, "force", e.Options.Force)
	}
	return true
}

func (e *entryRun) acquire(ctx context.Context) bool {
	dest := filepath.Join(e.workDir, naming.FileName(e.entry, e.intent.Version, DownloadExt(e.intent, e.entry)))
	err := e.timed(StageDownload, func() error {
		if e.intent.LocalPickedFile != "" {
			_, err := utils.CopyFile(e.intent.LocalPickedFile, dest)
			return err
		}
		if err := e.Downloader.Download(ctx, e.intent.InstallerURL, dest); err != nil {
			return err
		}
		if !utils.FileExists(dest) {
			return fmt.Errorf("%w: %s", pkgfiles.ErrMissingFile, dest)
		}
		if e.intent.Sha256 != "" && !utils.Verify(dest, e.intent.Sha256) {
			return fmt.Errorf("downloaded file does not match SHA-256 %s", e.intent.Sha256)
		}
		return nil
	})
	if err != nil {
		e.res.State = StateFailed
		e.stage(StageDownload, StatusFailed, err)
		e.fail("Acquiring installer failed", err, "url", e.intent.InstallerURL)
		return false
	}
	e.artifact = dest
	e.res.State = StateAcquired
	return true
}

func (e *entryRun) extractNested() bool {
	rel := e.intent.NestedArchive.RelativePath
	extracted, err := extract.ExtractEntry(e.artifact, rel, filepath.Join(e.workDir, "nested"))
	if err != nil {
		e.res.State = StateFailed
		kv := []interface{}{"path", rel}
		if names, listErr := extract.ListEntries(e.artifact); listErr == nil {
			kv = append(kv, "available", strings.Join(names, ", "))
		}
		e.fail("Extracting nested installer failed", err, kv...)
		return false
	}
	final := filepath.Join(e.workDir, e.name)
	if err := os.Rename(extracted, final); err != nil {
		e.res.State = StateFailed
		e.fail("Renaming nested installer failed", err)
		return false
	}
	logging.Info("Extracted nested installer", "entry", e.label, "inner", rel, "file", e.name)
	e.artifact = final
	e.res.State = StateNestedExtracted
	return true
}

func (e *entryRun) toolsDir() string {
	return filepath.Join(e.paths.PackageDir, "tools")
}

func (e *entryRun) isSelfPackage() bool {
	return e.Options.SelfPackageName != "" && strings.EqualFold(e.entry.SoftwareName, e.Options.SelfPackageName)
}

// updateTools puts the new artifact into the package source tools folder.
func (e *entryRun) updateTools() bool {
	var err error
	if e.isSelfPackage() {
		err = e.replaceToolsFromPackage()
	} else {
		err = e.replaceInstaller()
	}
	if err != nil {
		e.res.State = StateFailed
		e.fail("Updating package tools folder failed", err, "dir", e.toolsDir())
		return false
	}
	return true
}

// replaceToolsFromPackage swaps the tools folder for the one inside the
// downloaded package archive, staged through the working directory.
func (e *entryRun) replaceToolsFromPackage() error {
	if err := e.checkPackageIdentity(); err != nil {
		return err
	}
	staging := filepath.Join(e.workDir, "tools-staging")
	n, err := extract.ExtractTools(e.artifact, staging)
	if err != nil {
		return err
	}
	tools := e.toolsDir()
	if err := os.MkdirAll(tools, 0755); err != nil {
		return err
	}
	if err := utils.ClearDir(tools); err != nil {
		return err
	}
	if err := utils.CopyDir(staging, tools); err != nil {
		return err
	}
	logging.Info("Replaced tools folder from package archive", "entry", e.label, "files", n)
	return nil
}

// checkPackageIdentity makes sure the downloaded archive is the expected
// package at the resolved version before the local tools folder is cleared.
func (e *entryRun) checkPackageIdentity() error {
	meta, err := extract.NupkgMetadata(e.artifact)
	if err != nil {
		return err
	}
	if !strings.EqualFold(meta.Metadata.ID, e.Options.SelfPackageName) {
		return fmt.Errorf("package archive id %q does not match %q", meta.Metadata.ID, e.Options.SelfPackageName)
	}
	if e.intent.Comparable == nil || e.intent.Comparable.IsUnknown() {
		return nil
	}
	archived, err := version.Parse(meta.Metadata.Version)
	if err != nil {
		return fmt.Errorf("package archive version %q: %w", meta.Metadata.Version, err)
	}
	if !archived.Equal(e.intent.Comparable) {
		return fmt.Errorf("package archive version %s does not match resolved version %s", meta.Metadata.Version, e.intent.Version)
	}
	return nil
}

// replaceInstaller removes older installers of this entry from tools and
// copies the new artifact in.
func (e *entryRun) replaceInstaller() error {
	tools := e.toolsDir()
	files, err := os.ReadDir(tools)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", pkgfiles.ErrMissingFile, tools)
		}
		return err
	}
	base := naming.BaseName(e.entry)
	removed := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if _, ok := naming.ParseFileName(base, e.entry.Arch, e.ext, f.Name()); !ok {
			continue
		}
		if err := os.Remove(filepath.Join(tools, f.Name())); err != nil {
			e.warn("Could not remove old installer", "file", f.Name(), "error", err)
			continue
		}
		logging.Debug("Removed old installer", "file", f.Name())
		removed++
	}
	if removed == 0 {
		e.warn("No previous installer found in tools folder", "dir", tools)
	}
	_, err = utils.CopyFile(e.artifact, filepath.Join(tools, e.name))
	return err
}

func (e *entryRun) publish(ctx context.Context) {
	if e.Options.DryRun {
		e.stage(StagePublish, StatusSkipped, errors.New("dry run"))
		logging.Info("Dry run: not publishing", "entry", e.label, "file", e.name)
		return
	}
	err := e.timed(StagePublish, func() error {
		return e.Assets.Upload(ctx, e.paths.AssetFolder, e.name, e.artifact)
	})
	if err != nil {
		e.stage(StagePublish, StatusFailed, err)
		e.fail("Publishing to asset store failed", err, "folder", e.paths.AssetFolder)
		return
	}
	e.res.State = StateStored
	logging.Success("Published artifact", "entry", e.label, "path", e.paths.AssetFolder+"/"+e.name)
}

// fetchChecksum reads the SHA-256 of the published file. On failure the
// pipeline continues with an empty checksum. In dry-run mode nothing was
// published, so the local artifact is hashed instead.
func (e *entryRun) fetchChecksum(ctx context.Context) {
	var (
		sum string
		err error
	)
	if e.Options.DryRun {
		sum, err = utils.FileSHA256(e.artifact)
	} else {
		sum, err = e.Assets.SHA256(ctx, e.paths.AssetFolder, e.name)
	}
	if err != nil {
		e.fail("Fetching checksum failed; continuing with an empty checksum", err, "file", e.name)
		return
	}
	e.sha256 = strings.ToLower(sum)
	if e.res.State == StateStored {
		e.res.State = StateChecksumFetched
	}
}

func (e *entryRun) rewritePackageFiles() bool {
	nuspec, err := pkgfiles.FindNuspec(e.paths.PackageDir)
	if err != nil {
		e.res.State = StateFailed
		e.stage(StageManifest, StatusFailed, err)
		e.fail("Package manifest not found", err, "dir", e.paths.PackageDir)
		return false
	}

	var sums pkgfiles.Checksums
	err = e.timed(StageManifest, func() error {
		if err := pkgfiles.SetNuspecVersion(nuspec, e.intent.Version); err != nil {
			return err
		}
		var upsertErr error
		sums, upsertErr = pkgfiles.UpsertChecksum(filepath.Join(e.toolsDir(), pkgfiles.ChecksumsFileName), e.entry.Arch, e.sha256)
		return upsertErr
	})
	if err != nil {
		e.stage(StageManifest, StatusFailed, err)
		e.fail("Updating package manifest failed", err)
	}

	if e.isSelfPackage() {
		e.stage(StageScript, StatusSkipped, errors.New("tools folder replaced from package archive"))
	} else {
		update := pkgfiles.ScriptUpdate{
			Arch:     e.entry.Arch,
			URL:      e.Assets.ContentURL(e.paths.AssetFolder, e.name),
			Checksum: e.sha256,
			FileType: e.ext,
			X64Only:  sums.X64Only(),
		}
		script := filepath.Join(e.toolsDir(), pkgfiles.InstallScriptName)
		err := e.timed(StageScript, func() error {
			return pkgfiles.UpdateInstallScript(script, e.Scripts, update)
		})
		if err != nil {
			e.res.State = StateFailed
			e.stage(StageScript, StatusFailed, err)
			e.fail("Updating install script failed", err, "script", script)
			return false
		}
	}
	e.res.State = StateFilesRewritten
	return true
}

func (e *entryRun) packAndPush(ctx context.Context) {
	if e.Options.DryRun {
		e.stage(StagePack, StatusSkipped, errors.New("dry run"))
		logging.Info("Dry run: not packing or pushing", "entry", e.label)
		return
	}
	err := e.timed(StagePack, func() error {
		nupkg, err := e.Packages.Pack(ctx, e.paths.PackageDir)
		if err != nil {
			return err
		}
		return e.Packages.Push(ctx, nupkg)
	})
	if err != nil {
		e.stage(StagePack, StatusFailed, err)
		e.fail("Pack and push failed", err, "dir", e.paths.PackageDir)
		return
	}
	e.res.State = StatePushed
}

func (e *entryRun) cleanup() {
	if err := os.RemoveAll(e.workDir); err != nil {
		e.warn("Cleanup of working files failed", "dir", e.workDir, "error", err)
		return
	}
	if e.res.State == StatePushed || (e.Options.DryRun && e.res.State == StateFilesRewritten) {
		e.res.State = StateCleanedUp
	}
}

func (e *entryRun) summarise() {
	kv := []interface{}{"entry", e.label, "state", e.res.State}
	for _, s := range ReportedStages {
		kv = append(kv, string(s), e.res.Stages[s])
	}
	kv = append(kv, "warnings", e.res.Warnings, "errors", e.res.Errors)
	if e.res.Errors > 0 {
		logging.Error("Entry finished with errors", kv...)
		return
	}
	logging.Info("Entry finished", kv...)
}
