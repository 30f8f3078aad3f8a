package release

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/releasectl/internal/progress"
	"github.com/ppiankov/releasectl/internal/s3"
)

func writeArtifacts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestUploader_ReplacesRemoteArtifacts(t *testing.T) {
	store := newMemStore()
	store.objects["release-artifacts/3006.0/old.exe"] = []byte("old")
	store.objects["release-artifacts/3006.0/.release-files.json"] = []byte("[]")
	store.objects["release-artifacts/3006.0x/keep.exe"] = []byte("sibling")

	dir := writeArtifacts(t, map[string]string{
		"salt-3006.0.tar.xz":    "archive",
		"salt-3006.0-setup.exe": "installer",
		".release-files.json":   "[]",
		"release-manifest.json": "{}",
	})
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}

	u := &Uploader{Store: store, Progress: progress.Silent()}
	summary, err := u.Run(context.Background(), "3006.0", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", summary.Deleted)
	}
	wantUploaded := []UploadedFile{
		{Key: "release-artifacts/3006.0/salt-3006.0-setup.exe", Size: int64(len("installer"))},
		{Key: "release-artifacts/3006.0/salt-3006.0.tar.xz", Size: int64(len("archive"))},
	}
	if !reflect.DeepEqual(summary.Uploaded, wantUploaded) {
		t.Errorf("uploaded = %+v, want %+v", summary.Uploaded, wantUploaded)
	}
	wantSkipped := []string{".release-files.json", "release-manifest.json"}
	if !reflect.DeepEqual(summary.Skipped, wantSkipped) {
		t.Errorf("skipped = %v, want %v", summary.Skipped, wantSkipped)
	}

	if _, ok := store.objects["release-artifacts/3006.0/old.exe"]; ok {
		t.Error("old artifact was not deleted")
	}
	if _, ok := store.objects["release-artifacts/3006.0x/keep.exe"]; !ok {
		t.Error("sibling version prefix was deleted")
	}
	if string(store.objects["release-artifacts/3006.0/salt-3006.0.tar.xz"]) != "archive" {
		t.Error("archive content mismatch")
	}
}

func TestUploader_DeletesBeforeUploading(t *testing.T) {
	store := newMemStore()
	store.objects["release-artifacts/3006.0/old.exe"] = []byte("old")
	dir := writeArtifacts(t, map[string]string{"a.exe": "a"})

	u := &Uploader{Store: store, Progress: progress.Silent()}
	if _, err := u.Run(context.Background(), "3006.0", dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"list release-artifacts/3006.0/",
		"delete 1",
		"upload release-artifacts/3006.0/a.exe",
	}
	if got := store.callLog(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestUploader_EmptyPrefixSkipsDelete(t *testing.T) {
	store := newMemStore()
	dir := writeArtifacts(t, map[string]string{"a.msi": "a"})

	u := &Uploader{Store: store, Progress: progress.Silent()}
	summary, err := u.Run(context.Background(), "3006.0", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Deleted != 0 {
		t.Errorf("expected nothing deleted, got %d", summary.Deleted)
	}
	for _, call := range store.callLog() {
		if strings.HasPrefix(call, "delete") {
			t.Fatalf("unexpected delete call: %v", store.callLog())
		}
	}
}

func TestUploader_DeleteFailuresAreNotFatal(t *testing.T) {
	store := newMemStore()
	store.objects["release-artifacts/3006.0/a.exe"] = []byte("a")
	store.objects["release-artifacts/3006.0/b.exe"] = []byte("b")
	store.failDelete = map[string]bool{"release-artifacts/3006.0/b.exe": true}
	dir := writeArtifacts(t, map[string]string{"c.exe": "c"})

	u := &Uploader{Store: store, Progress: progress.Silent()}
	summary, err := u.Run(context.Background(), "3006.0", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Deleted != 1 || len(summary.DeleteFailures) != 1 {
		t.Fatalf("expected 1 deleted and 1 failure, got %d and %v", summary.Deleted, summary.DeleteFailures)
	}
	if len(summary.Uploaded) != 1 {
		t.Fatalf("expected upload to proceed, got %v", summary.Uploaded)
	}

	store = newMemStore()
	store.objects["release-artifacts/3006.0/a.exe"] = []byte("a")
	store.deleteErr = errors.New("access denied")
	u.Store = store
	summary, err = u.Run(context.Background(), "3006.0", dir)
	if err != nil {
		t.Fatalf("delete call failure should be logged, got %v", err)
	}
	if summary.Deleted != 0 || len(summary.Uploaded) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestUploader_CustomExclusions(t *testing.T) {
	store := newMemStore()
	dir := writeArtifacts(t, map[string]string{
		"a.exe":    "a",
		"a.sha256": "sum",
		"b.json":   "{}",
	})

	u := &Uploader{Store: store, Exclusions: []string{"sha256"}, Progress: progress.Silent()}
	summary, err := u.Run(context.Background(), "3006.0", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.Uploaded) != 2 {
		t.Fatalf("expected a.exe and b.json uploaded, got %+v", summary.Uploaded)
	}
	if !reflect.DeepEqual(summary.Skipped, []string{"a.sha256"}) {
		t.Fatalf("unexpected skipped: %v", summary.Skipped)
	}
}

func TestUploader_UploadsSymlinkedFiles(t *testing.T) {
	target := writeArtifacts(t, map[string]string{"real.exe": "real"})
	dir := t.TempDir()
	if err := os.Symlink(filepath.Join(target, "real.exe"), filepath.Join(dir, "link.exe")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(dir, "linkdir")); err != nil {
		t.Fatal(err)
	}

	store := newMemStore()
	u := &Uploader{Store: store, Progress: progress.Silent()}
	summary, err := u.Run(context.Background(), "3006.0", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []UploadedFile{{Key: "release-artifacts/3006.0/link.exe", Size: 4}}
	if !reflect.DeepEqual(summary.Uploaded, want) {
		t.Fatalf("uploaded = %+v, want %+v", summary.Uploaded, want)
	}
}

func TestUploader_ListErrorStopsBeforeUpload(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("access denied")
	dir := writeArtifacts(t, map[string]string{"a.exe": "a"})

	u := &Uploader{Store: store, Progress: progress.Silent()}
	if _, err := u.Run(context.Background(), "3006.0", dir); err == nil {
		t.Fatal("expected list error")
	}
	if calls := store.callLog(); len(calls) != 1 {
		t.Fatalf("expected only the list call, got %v", calls)
	}
}

func TestUploader_UploadErrorIsReturned(t *testing.T) {
	store := newMemStore()
	store.uploadErr = s3.ErrBadRequest
	dir := writeArtifacts(t, map[string]string{"a.exe": "a", "b.exe": "b"})

	u := &Uploader{Store: store, Progress: progress.Silent()}
	summary, err := u.Run(context.Background(), "3006.0", dir)
	if !errors.Is(err, s3.ErrBadRequest) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if len(summary.Uploaded) != 0 {
		t.Fatalf("expected no uploads, got %v", summary.Uploaded)
	}
}

func TestUploader_MissingDirectory(t *testing.T) {
	store := newMemStore()
	store.objects["release-artifacts/3006.0/old.exe"] = []byte("old")

	u := &Uploader{Store: store, Progress: progress.Silent()}
	_, err := u.Run(context.Background(), "3006.0", filepath.Join(t.TempDir(), "missing"))
	if err == nil || !strings.Contains(err.Error(), "artifacts directory") {
		t.Fatalf("expected directory error, got %v", err)
	}
	if calls := store.callLog(); len(calls) != 0 {
		t.Fatalf("expected remote prefix untouched, got %v", calls)
	}
}

func TestUploader_Cancelled(t *testing.T) {
	store := newMemStore()
	dir := writeArtifacts(t, map[string]string{"a.exe": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := &Uploader{Store: store, Progress: progress.Silent()}
	_, err := u.Run(ctx, "3006.0", dir)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if calls := store.callLog(); len(calls) != 0 {
		t.Fatalf("expected no store calls, got %v", calls)
	}
}
