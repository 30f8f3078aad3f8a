package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/releasectl/internal/s3"
	"github.com/ppiankov/releasectl/internal/virustotal"
)

// fakeScanner completes every analysis on the first poll with the stats
// configured for the uploaded file name.
type fakeScanner struct {
	mu        sync.Mutex
	stats     map[string]map[string]int
	pending   map[string]bool
	uploadErr error
	getErr    error
	blockFile string
	ids       map[string]string
	uploaded  []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{
		stats:   map[string]map[string]int{},
		pending: map[string]bool{},
		ids:     map[string]string{},
	}
}

func (f *fakeScanner) UploadFile(ctx context.Context, path string) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	name := filepath.Base(path)
	if name == f.blockFile {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	// Give concurrent workers a chance to overlap.
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	id := "analysis-" + name
	f.ids[id] = name
	f.uploaded = append(f.uploaded, name)
	return id, nil
}

func (f *fakeScanner) GetAnalysis(ctx context.Context, id string) (virustotal.Analysis, error) {
	if f.getErr != nil {
		return virustotal.Analysis{}, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.ids[id]
	if f.pending[name] {
		return virustotal.Analysis{ID: id, Status: "queued"}, nil
	}
	return virustotal.Analysis{
		ID:     id,
		Status: virustotal.StatusCompleted,
		Stats:  f.stats[name],
		SHA256: "sha-" + name,
	}, nil
}

var fastPoll = virustotal.PollPolicy{Interval: time.Millisecond, Timeout: time.Second}

func manifestStore(t *testing.T, version string, entries []string) *memStore {
	t.Helper()
	store := newMemStore()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	store.objects[ManifestKey(version)] = data
	for _, entry := range entries {
		store.objects[entry] = []byte("content of " + entry)
	}
	return store
}

func newTestRelay(store ObjectStore, scanner Scanner, t *testing.T) *Relay {
	return &Relay{
		Store:   store,
		Scanner: scanner,
		Poll:    fastPoll,
		TempDir: t.TempDir(),
	}
}

var cleanStats = map[string]int{"harmless": 70, "malicious": 0, "suspicious": 0, "failure": 0, "undetected": 3}

func TestRelay_CleanScan(t *testing.T) {
	store := manifestStore(t, "3006.0", []string{
		"onedir/minor/3006.0/salt-3006.0.tar.xz",
		"minor/3006.0/salt-3006.0-setup.exe",
		"minor/3006.0/readme.txt",
	})
	scanner := newFakeScanner()
	scanner.stats["salt-3006.0.tar.xz"] = cleanStats
	scanner.stats["salt-3006.0-setup.exe"] = cleanStats

	relay := newTestRelay(store, scanner, t)
	report, err := relay.Run(context.Background(), "v3006.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Version != "3006.0" || report.Bucket != "staging" {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(report.Results))
	}
	if report.Results[0].File != "salt-3006.0-setup.exe" || report.Results[1].File != "salt-3006.0.tar.xz" {
		t.Fatalf("unexpected order: %s, %s", report.Results[0].File, report.Results[1].File)
	}
	if len(report.Flagged()) != 0 {
		t.Fatalf("expected no flagged files, got %+v", report.Flagged())
	}
	res := report.Results[0]
	if res.Status != virustotal.StatusCompleted || res.SHA256 != "sha-salt-3006.0-setup.exe" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.URL != "https://www.virustotal.com/gui/file/sha-salt-3006.0-setup.exe" {
		t.Fatalf("unexpected url: %s", res.URL)
	}
	if res.Stats[0].Category != "failure" {
		t.Fatalf("expected sorted stats, got %+v", res.Stats)
	}

	for _, call := range store.callLog() {
		if strings.Contains(call, "readme.txt") {
			t.Fatalf("readme.txt should not be downloaded: %v", store.callLog())
		}
	}
}

func TestRelay_FlaggedFile(t *testing.T) {
	store := manifestStore(t, "3006.0", []string{
		"minor/3006.0/salt-3006.0-setup.exe",
		"minor/3006.0/salt-3006.0.msi",
	})
	scanner := newFakeScanner()
	scanner.stats["salt-3006.0-setup.exe"] = cleanStats
	scanner.stats["salt-3006.0.msi"] = map[string]int{"malicious": 2}

	report, err := newTestRelay(store, scanner, t).Run(context.Background(), "3006.0")
	if err != nil {
		t.Fatalf("flagged files should not be an error, got %v", err)
	}
	flagged := report.Flagged()
	if len(flagged) != 1 || flagged[0].File != "salt-3006.0.msi" {
		t.Fatalf("unexpected flagged: %+v", flagged)
	}
	if flagged[0].URL != "https://www.virustotal.com/gui/file/sha-salt-3006.0.msi" {
		t.Fatalf("unexpected url: %s", flagged[0].URL)
	}
}

func TestRelay_ConcurrentKeepsManifestOrder(t *testing.T) {
	var entries []string
	for i := 0; i < 8; i++ {
		entries = append(entries, fmt.Sprintf("minor/3006.0/salt-%d.exe", i))
	}
	store := manifestStore(t, "3006.0", entries)
	scanner := newFakeScanner()

	relay := newTestRelay(store, scanner, t)
	relay.Concurrency = 3
	report, err := relay.Run(context.Background(), "3006.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, res := range report.Results {
		want := fmt.Sprintf("salt-%d.exe", i)
		if res.File != want {
			t.Fatalf("result %d = %s, want %s", i, res.File, want)
		}
	}
	if got := scanner.maxInFlight.Load(); got > 3 {
		t.Fatalf("expected at most 3 concurrent uploads, got %d", got)
	}
}

func TestRelay_SequentialByDefault(t *testing.T) {
	store := manifestStore(t, "3006.0", []string{
		"minor/3006.0/a.exe",
		"minor/3006.0/b.exe",
		"minor/3006.0/c.exe",
	})
	scanner := newFakeScanner()

	if _, err := newTestRelay(store, scanner, t).Run(context.Background(), "3006.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := scanner.maxInFlight.Load(); got != 1 {
		t.Fatalf("expected sequential uploads, got %d in flight", got)
	}
	if strings.Join(scanner.uploaded, ",") != "a.exe,b.exe,c.exe" {
		t.Fatalf("unexpected upload order: %v", scanner.uploaded)
	}
}

func TestRelay_ManifestNotFound(t *testing.T) {
	store := newMemStore()

	_, err := newTestRelay(store, newFakeScanner(), t).Run(context.Background(), "3006.0")
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if !errors.Is(err, s3.ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	want := "could not find release-artifacts/3006.0/.release-files.json in bucket"
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func TestRelay_InvalidManifest(t *testing.T) {
	store := newMemStore()
	store.objects[ManifestKey("3006.0")] = []byte("not json")

	_, err := newTestRelay(store, newFakeScanner(), t).Run(context.Background(), "3006.0")
	if err == nil || !strings.Contains(err.Error(), "invalid release manifest") {
		t.Fatalf("expected manifest error, got %v", err)
	}
}

func TestRelay_DownloadErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"bad request", fmt.Errorf("%w: bad", s3.ErrBadRequest), "could not download minor/3006.0/a.exe from bucket"},
		{"other", errors.New("connection reset"), "error downloading minor/3006.0/a.exe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := manifestStore(t, "3006.0", []string{"minor/3006.0/a.exe"})
			store.downloadErr = map[string]error{"minor/3006.0/a.exe": tt.err}

			_, err := newTestRelay(store, newFakeScanner(), t).Run(context.Background(), "3006.0")
			var dlErr *DownloadError
			if !errors.As(err, &dlErr) {
				t.Fatalf("expected DownloadError, got %v", err)
			}
			if !strings.HasPrefix(err.Error(), tt.message) {
				t.Fatalf("error = %q, want prefix %q", err.Error(), tt.message)
			}
		})
	}
}

func TestRelay_UploadErrorStopsRun(t *testing.T) {
	store := manifestStore(t, "3006.0", []string{"minor/3006.0/a.exe"})
	scanner := newFakeScanner()
	scanner.uploadErr = virustotal.ErrQuotaExceeded

	_, err := newTestRelay(store, scanner, t).Run(context.Background(), "3006.0")
	if !errors.Is(err, virustotal.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestRelay_AnalysisErrorStopsRun(t *testing.T) {
	store := manifestStore(t, "3006.0", []string{"minor/3006.0/a.exe"})
	scanner := newFakeScanner()
	scanner.getErr = virustotal.ErrWrongCredentials

	_, err := newTestRelay(store, scanner, t).Run(context.Background(), "3006.0")
	if !errors.Is(err, virustotal.ErrWrongCredentials) {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestRelay_AnalysisTimeout(t *testing.T) {
	store := manifestStore(t, "3006.0", []string{
		"minor/3006.0/a.exe",
		"minor/3006.0/b.exe",
	})
	scanner := newFakeScanner()
	scanner.pending["a.exe"] = true

	relay := newTestRelay(store, scanner, t)
	relay.Poll = virustotal.PollPolicy{Interval: time.Millisecond, MaxAttempts: 3}
	report, err := relay.Run(context.Background(), "3006.0")
	if err != nil {
		t.Fatalf("timeout should be reported per file, got %v", err)
	}

	timedOut := report.TimedOut()
	if len(timedOut) != 1 || timedOut[0].File != "a.exe" {
		t.Fatalf("unexpected timed out results: %+v", timedOut)
	}
	if timedOut[0].Status != "queued" || timedOut[0].Flagged {
		t.Fatalf("unexpected timed out result: %+v", timedOut[0])
	}
	if report.Results[1].Status != virustotal.StatusCompleted {
		t.Fatalf("expected b.exe to complete, got %+v", report.Results[1])
	}
}

func TestRelay_Cancelled(t *testing.T) {
	store := manifestStore(t, "3006.0", []string{"minor/3006.0/a.exe"})
	scanner := newFakeScanner()
	scanner.blockFile = "a.exe"

	relay := newTestRelay(store, scanner, t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := relay.Run(ctx, "3006.0")
		done <- err
	}()

	for scanner.inFlight.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestRelay_RemovesScratchDirectories(t *testing.T) {
	store := manifestStore(t, "3006.0", []string{"minor/3006.0/a.exe"})
	relay := newTestRelay(store, newFakeScanner(), t)

	if _, err := relay.Run(context.Background(), "3006.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := os.ReadDir(relay.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch directories removed, found %d", len(entries))
	}
}
