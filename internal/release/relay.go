package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/ppiankov/releasectl/internal/s3"
	"github.com/ppiankov/releasectl/internal/virustotal"
	"golang.org/x/sync/errgroup"
)

// Scanner submits files for analysis and reports on them.
type Scanner interface {
	virustotal.AnalysisGetter
	UploadFile(ctx context.Context, path string) (string, error)
}

// Relay downloads release installers from the staging bucket and submits them
// to VirusTotal.
type Relay struct {
	Store       ObjectStore
	Scanner     Scanner
	Poll        virustotal.PollPolicy
	Concurrency int

	// TempDir is the parent of the per-download scratch directories;
	// empty means the system default.
	TempDir string
}

// ScanResult is the outcome of one scanned file.
type ScanResult struct {
	File       string            `json:"file"`
	Key        string            `json:"key"`
	AnalysisID string            `json:"analysis_id,omitempty"`
	Status     string            `json:"status"`
	SHA256     string            `json:"sha256,omitempty"`
	Stats      []virustotal.Stat `json:"stats,omitempty"`
	Flagged    bool              `json:"flagged"`
	TimedOut   bool              `json:"timed_out,omitempty"`
	URL        string            `json:"url,omitempty"`
}

// ScanReport holds results in manifest order.
type ScanReport struct {
	Version string       `json:"version"`
	Bucket  string       `json:"bucket"`
	Results []ScanResult `json:"results"`
}

// Flagged returns the results with failure, malicious or suspicious detections.
func (r ScanReport) Flagged() []ScanResult {
	var out []ScanResult
	for _, res := range r.Results {
		if res.Flagged {
			out = append(out, res)
		}
	}
	return out
}

// TimedOut returns the results whose analysis never completed.
func (r ScanReport) TimedOut() []ScanResult {
	var out []ScanResult
	for _, res := range r.Results {
		if res.TimedOut {
			out = append(out, res)
		}
	}
	return out
}

// DownloadError is a failed fetch from the staging bucket.
type DownloadError struct {
	Key string
	Err error
}

func (e *DownloadError) Error() string {
	switch {
	case errors.Is(e.Err, s3.ErrObjectNotFound):
		return fmt.Sprintf("could not find %s in bucket", e.Key)
	case errors.Is(e.Err, s3.ErrBadRequest):
		return fmt.Sprintf("could not download %s from bucket: %v", e.Key, e.Err)
	default:
		return fmt.Sprintf("error downloading %s: %v", e.Key, e.Err)
	}
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Run scans the installers listed in the manifest of version and returns one
// result per file in manifest order. The version is normalized first. A
// download or submission failure stops the run; flagged files do not.
func (r *Relay) Run(ctx context.Context, version string) (ScanReport, error) {
	version = NormalizeVersion(version)
	report := ScanReport{Version: version, Bucket: r.Store.Bucket()}

	targets, err := r.Targets(ctx, version)
	if err != nil {
		return report, err
	}
	report.Results = make([]ScanResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())
	for i, key := range targets {
		i, key := i, key
		g.Go(func() error {
			res, err := r.scan(gctx, version, key)
			if err != nil {
				return err
			}
			report.Results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ie := interrupted(ctx); ie != nil {
			return report, ie
		}
		return report, err
	}

	return report, nil
}

// Targets downloads the manifest of version and returns the files to scan.
func (r *Relay) Targets(ctx context.Context, version string) ([]string, error) {
	version = NormalizeVersion(version)
	key := ManifestKey(version)

	slog.Info("Grabbing remote file listing of files in staging", "bucket", r.Store.Bucket())

	dir, err := os.MkdirTemp(r.TempDir, version+"_release_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	local, err := r.fetch(ctx, key, dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, err
	}
	entries, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	targets := SelectScanTargets(entries, version)
	slog.Info("Found files to upload", "count", len(targets))
	for _, target := range targets {
		slog.Info("Scan target", "file", path.Base(target))
	}
	return targets, nil
}

func (r *Relay) scan(ctx context.Context, version, key string) (ScanResult, error) {
	if err := interrupted(ctx); err != nil {
		return ScanResult{}, err
	}

	dir, err := os.MkdirTemp(r.TempDir, version+"_release_")
	if err != nil {
		return ScanResult{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	local, err := r.fetch(ctx, key, dir)
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{File: filepath.Base(local), Key: key}

	slog.Info("Uploading to VirusTotal", "file", result.File)
	id, err := r.Scanner.UploadFile(ctx, local)
	if err != nil {
		if ie := interrupted(ctx); ie != nil {
			return ScanResult{}, ie
		}
		return ScanResult{}, fmt.Errorf("failed to submit %s: %w", result.File, err)
	}
	result.AnalysisID = id

	slog.Info("Waiting for results from VirusTotal (takes a few minutes)", "file", result.File, "analysis_id", id)
	analysis, err := virustotal.WaitForAnalysis(ctx, r.Scanner, id, r.Poll)
	result.Status = analysis.Status
	if err != nil {
		if ie := interrupted(ctx); ie != nil {
			return ScanResult{}, ie
		}
		if errors.Is(err, virustotal.ErrAnalysisTimeout) {
			slog.Error("Analysis did not complete", "file", result.File, "analysis_id", id, "error", err)
			result.TimedOut = true
			return result, nil
		}
		return ScanResult{}, fmt.Errorf("failed to get results for %s: %w", result.File, err)
	}

	result.SHA256 = analysis.SHA256
	result.Stats = analysis.SortedStats()
	result.Flagged = analysis.Flagged()
	result.URL = virustotal.FileURL(analysis.SHA256)

	for _, stat := range result.Stats {
		slog.Info("Result", "file", result.File, "category", stat.Category, "count", stat.Count)
	}
	if result.Flagged {
		slog.Error("VirusTotal scan encountered failures", "file", result.File, "url", result.URL)
	} else {
		slog.Info("VirusTotal scan clean", "file", result.File, "url", result.URL)
	}

	return result, nil
}

// fetch downloads key into dir, keeping its base name.
func (r *Relay) fetch(ctx context.Context, key, dir string) (string, error) {
	if err := interrupted(ctx); err != nil {
		return "", err
	}

	local := filepath.Join(dir, path.Base(key))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", local, err)
	}

	slog.Info("Downloading file", "key", key)
	_, err = r.Store.Download(ctx, key, f)
	closeErr := f.Close()
	if err != nil {
		if ie := interrupted(ctx); ie != nil {
			return "", ie
		}
		dlErr := &DownloadError{Key: key, Err: err}
		if !errors.Is(err, s3.ErrObjectNotFound) && !errors.Is(err, s3.ErrBadRequest) {
			slog.Error("Error downloading", "key", key, "error", err)
		}
		return "", dlErr
	}
	if closeErr != nil {
		return "", fmt.Errorf("failed to write %s: %w", local, closeErr)
	}
	return local, nil
}

func (r *Relay) concurrency() int {
	if r.Concurrency < 1 {
		return 1
	}
	return r.Concurrency
}
