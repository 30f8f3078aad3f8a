package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ppiankov/releasectl/internal/config"
	"github.com/ppiankov/releasectl/internal/release"
	"github.com/ppiankov/releasectl/internal/report"
	"github.com/ppiankov/releasectl/internal/s3"
	"github.com/ppiankov/releasectl/internal/virustotal"
)

// Process exit statuses.
const (
	ExitFailure   = 1
	ExitCancelled = 130
)

// ExitError carries a specific exit status to main.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, release.ErrCancelled) {
		return ExitCancelled
	}
	return ExitFailure
}

func printStatus(format string, args ...interface{}) {
	slog.Info(fmt.Sprintf(format, args...))
}

// enhanceError enhances an error with additional context and helpful suggestions
func enhanceError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, release.ErrCancelled) {
		return err
	}

	errMsg := err.Error()

	if errors.Is(err, config.ErrMissingAPIKey) {
		return fmt.Errorf("%s failed: No VirusTotal API key configured.\n"+
			"Solutions:\n"+
			"  - Set the VIRUSTOTAL_API_KEY environment variable\n"+
			"  - Add VIRUSTOTAL_API_KEY to a .env file in the working directory\n"+
			"  - Use --dry-run to list the files without scanning them\n"+
			"Original error: %w", operation, err)
	}

	if errors.Is(err, virustotal.ErrWrongCredentials) {
		return fmt.Errorf("%s failed: VirusTotal rejected the API key.\n"+
			"Solutions:\n"+
			"  - Check VIRUSTOTAL_API_KEY is the key shown in your VirusTotal profile\n"+
			"  - Check VIRUSTOTAL_URL points at the VirusTotal API\n"+
			"Original error: %w", operation, err)
	}

	if errors.Is(err, virustotal.ErrQuotaExceeded) {
		return fmt.Errorf("%s failed: VirusTotal quota exceeded.\n"+
			"Solutions:\n"+
			"  - Reduce parallel scans with --concurrency\n"+
			"  - Wait for the quota window to reset and try again\n"+
			"Original error: %w", operation, err)
	}

	if strings.Contains(errMsg, "NoCredentialProviders") || strings.Contains(errMsg, "no valid credentials") ||
		strings.Contains(errMsg, "failed to retrieve credentials") {
		return fmt.Errorf("%s failed: No AWS credentials found.\n"+
			"Solutions:\n"+
			"  - Set AWS_PROFILE environment variable\n"+
			"  - Use --aws-profile flag\n"+
			"  - Configure AWS credentials with 'aws configure'\n"+
			"Original error: %w", operation, err)
	}

	if strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Access Denied") {
		return fmt.Errorf("%s failed: Access Denied.\n"+
			"Solutions:\n"+
			"  - Check IAM permissions for S3 operations\n"+
			"  - Ensure you have s3:ListBucket, s3:GetObject, s3:PutObject, s3:DeleteObject permissions\n"+
			"  - Verify the correct AWS profile is being used\n"+
			"Original error: %w", operation, err)
	}

	if strings.Contains(errMsg, "NoSuchBucket") {
		return fmt.Errorf("%s failed: Bucket not found.\n"+
			"Solutions:\n"+
			"  - Check the --bucket name (current: %s)\n"+
			"  - Check --aws-region and --endpoint-url\n"+
			"Original error: %w", operation, rootFlags.bucket, err)
	}

	if strings.Contains(errMsg, "RequestLimitExceeded") || strings.Contains(errMsg, "SlowDown") {
		return fmt.Errorf("%s failed: AWS rate limit exceeded.\n"+
			"Solutions:\n"+
			"  - Wait a few seconds and try again\n"+
			"Original error: %w", operation, err)
	}

	if strings.Contains(errMsg, "no such file or directory") {
		return fmt.Errorf("%s failed: Path not found.\n"+
			"Solutions:\n"+
			"  - Check the artifacts path is correct\n"+
			"  - Ensure the directory exists and is readable\n"+
			"Original error: %w", operation, err)
	}

	// Default error with context
	return fmt.Errorf("%s failed: %w", operation, err)
}

func selectReporter(format string, writer io.Writer) (report.Reporter, error) {
	switch format {
	case "json":
		return report.NewJSONReporter(writer), nil
	case "sarif":
		return report.NewSARIFReporter(writer), nil
	case "spectrehub":
		return report.NewSpectreHubReporter(writer), nil
	case "text":
		return report.NewTextReporter(writer), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: text, json, sarif, spectrehub)", format)
	}
}

// writeReport renders through the reporter for format, to stdout or to path.
func writeReport(stdout io.Writer, format, path string, generate func(report.Reporter) error) error {
	writer := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return enhanceError("output file creation", err)
		}
		defer func() { _ = f.Close() }()
		writer = f
	}

	reporter, err := selectReporter(format, writer)
	if err != nil {
		return err
	}
	if err := generate(reporter); err != nil {
		return enhanceError("report generation", err)
	}
	return nil
}

func newStore(ctx context.Context) (*s3.Store, error) {
	client, err := s3.NewClient(ctx, s3.Options{
		Profile:   rootFlags.awsProfile,
		Region:    rootFlags.awsRegion,
		Endpoint:  rootFlags.endpoint,
		AccessKey: creds.S3AccessKey,
		SecretKey: creds.S3SecretKey,
	})
	if err != nil {
		return nil, enhanceError("S3 client initialization", err)
	}
	slog.Debug("Using staging bucket", "bucket", rootFlags.bucket, "region", client.GetRegion())
	return s3.NewStore(client, rootFlags.bucket), nil
}

func reportConfig(version string, concurrency int) report.Config {
	return report.Config{
		ReleaseVersion: version,
		Bucket:         rootFlags.bucket,
		AWSProfile:     rootFlags.awsProfile,
		AWSRegion:      rootFlags.awsRegion,
		Concurrency:    concurrency,
	}
}

func envSet(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}
