package release

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/releasectl/internal/progress"
	"github.com/ppiankov/releasectl/internal/s3"
)

// DefaultExclusions are the file extensions never uploaded as artifacts.
var DefaultExclusions = []string{".json"}

// Uploader replaces the remote artifacts of a version with a local directory.
type Uploader struct {
	Store      ObjectStore
	Exclusions []string
	Progress   progress.Factory
}

// UploadedFile is an artifact written to the bucket.
type UploadedFile struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// UploadSummary describes what a Run changed.
type UploadSummary struct {
	Bucket         string             `json:"bucket"`
	Prefix         string             `json:"prefix"`
	Deleted        int                `json:"deleted"`
	DeleteFailures []s3.DeleteFailure `json:"delete_failures,omitempty"`
	Uploaded       []UploadedFile     `json:"uploaded"`
	Skipped        []string           `json:"skipped,omitempty"`
}

// Run deletes everything under release-artifacts/<version> and uploads the
// files directly inside dir, minus excluded extensions. The version is used
// as given. Delete and upload are separate steps; an interrupted run can
// leave the prefix empty or partially filled.
func (u *Uploader) Run(ctx context.Context, version, dir string) (UploadSummary, error) {
	prefix := RemotePrefix(version)
	summary := UploadSummary{Bucket: u.Store.Bucket(), Prefix: prefix}
	bucketURI := fmt.Sprintf("s3://%s/%s", u.Store.Bucket(), prefix)

	slog.Info("Preparing upload", "uri", bucketURI)
	if err := interrupted(ctx); err != nil {
		return summary, err
	}

	// An unreadable dir must fail before the remote prefix is touched.
	files, skipped, err := localArtifacts(dir, u.exclusions())
	if err != nil {
		return summary, err
	}
	summary.Skipped = skipped

	existing, err := u.Store.List(ctx, prefix+"/")
	if err != nil {
		if ie := interrupted(ctx); ie != nil {
			return summary, ie
		}
		return summary, err
	}

	if len(existing) > 0 {
		if err := u.deleteExisting(ctx, bucketURI, existing, &summary); err != nil {
			return summary, err
		}
	}

	slog.Info("Uploading release artifacts", "count", len(files), "uri", bucketURI)
	for _, path := range files {
		if err := interrupted(ctx); err != nil {
			return summary, err
		}

		uploaded, err := u.uploadFile(ctx, prefix, path)
		if err != nil {
			if ie := interrupted(ctx); ie != nil {
				return summary, ie
			}
			return summary, err
		}
		summary.Uploaded = append(summary.Uploaded, uploaded)
	}

	return summary, nil
}

func (u *Uploader) deleteExisting(ctx context.Context, bucketURI string, existing []s3.Object, summary *UploadSummary) error {
	if err := interrupted(ctx); err != nil {
		return err
	}

	keys := make([]string, 0, len(existing))
	for _, obj := range existing {
		keys = append(keys, obj.Key)
	}

	bar := u.Progress.Steps(1, fmt.Sprintf("Deleting '%s'", bucketURI))
	failures, err := u.Store.DeleteKeys(ctx, keys)
	_ = bar.Add(1)
	_ = bar.Finish()

	if err != nil {
		if ie := interrupted(ctx); ie != nil {
			return ie
		}
		slog.Error("Failed to delete existing artifacts",
			"uri", bucketURI,
			"count", len(keys),
			"error", s3.FormatError("delete objects", bucketURI, err),
		)
	}
	for _, f := range failures {
		slog.Warn("Failed to delete object", "key", f.Key, "code", f.Code, "message", f.Message)
	}

	summary.DeleteFailures = failures
	summary.Deleted = len(keys) - len(failures)
	if err != nil {
		summary.Deleted = 0
	}
	return nil
}

func (u *Uploader) uploadFile(ctx context.Context, prefix, path string) (UploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return UploadedFile{}, fmt.Errorf("failed to inspect artifact: %w", err)
	}

	key := prefix + "/" + info.Name()
	slog.Info("Uploading", "key", key, "size", info.Size())

	reader := progress.NewReadSeeker(f, u.Progress.Bytes(info.Size(), "Uploading..."))
	err = u.Store.Upload(ctx, key, reader, info.Size())
	_ = reader.Finish()
	if err != nil {
		return UploadedFile{}, err
	}

	return UploadedFile{Key: key, Size: info.Size()}, nil
}

func (u *Uploader) exclusions() []string {
	if u.Exclusions == nil {
		return DefaultExclusions
	}
	return u.Exclusions
}

// localArtifacts lists the regular files directly inside dir, in name order,
// separating those whose extension is excluded.
func localArtifacts(dir string, exclusions []string) ([]string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifacts directory: %w", err)
	}

	excluded := make(map[string]bool, len(exclusions))
	for _, ext := range exclusions {
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		excluded[ext] = true
	}

	var files, skipped []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		} else if !entry.Type().IsRegular() {
			continue
		}
		if excluded[filepath.Ext(entry.Name())] {
			skipped = append(skipped, entry.Name())
			continue
		}
		files = append(files, path)
	}
	return files, skipped, nil
}
