// Package release implements the staging-bucket workflows run when cutting a
// release: replacing the uploaded artifacts for a version, and relaying the
// installers listed in a version's manifest to VirusTotal.
package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/releasectl/internal/s3"
)

const (
	artifactsRoot    = "release-artifacts"
	manifestFileName = ".release-files.json"
)

// ErrCancelled is returned when the run is interrupted.
var ErrCancelled = errors.New("cancelled")

// ObjectStore is the staging bucket as seen by the release workflows.
type ObjectStore interface {
	Bucket() string
	List(ctx context.Context, prefix string) ([]s3.Object, error)
	DeleteKeys(ctx context.Context, keys []string) ([]s3.DeleteFailure, error)
	Upload(ctx context.Context, key string, body io.ReadSeeker, size int64) error
	Download(ctx context.Context, key string, w io.Writer) (int64, error)
}

// NormalizeVersion strips a single leading "v".
func NormalizeVersion(version string) string {
	return strings.TrimPrefix(version, "v")
}

// RemotePrefix returns the key prefix holding the artifacts of version.
func RemotePrefix(version string) string {
	return artifactsRoot + "/" + version
}

// ManifestKey returns the key of the release manifest for version.
func ManifestKey(version string) string {
	return RemotePrefix(version) + "/" + manifestFileName
}

// interrupted returns nil while ctx is live, ErrCancelled after an interrupt
// and a deadline error once the run timeout has passed.
func interrupted(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("run timed out: %w", err)
	default:
		return ErrCancelled
	}
}
