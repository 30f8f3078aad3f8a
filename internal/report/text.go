package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/ppiankov/releasectl/internal/release"
)

// TextReporter generates human-readable text reports
type TextReporter struct {
	writer io.Writer
}

// NewTextReporter creates a new text reporter
func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{writer: w}
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	sizes := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.2f %s", float64(bytes)/float64(div), sizes[exp])
}

// Generate generates a text report
func (r *TextReporter) Generate(data Data) error {
	fmt.Fprintf(r.writer, "VirusTotal Scan Report\n")
	fmt.Fprintf(r.writer, "======================\n\n")
	r.printHeader(data.Timestamp.Format("2006-01-02 15:04:05"), data.Config)

	r.printSummary(data.Summary)
	r.printResults(data.Results)
	r.printFlagged(data.Results)

	return nil
}

func (r *TextReporter) printHeader(timestamp string, cfg Config) {
	fmt.Fprintf(r.writer, "Run Time: %s\n", timestamp)
	fmt.Fprintf(r.writer, "Release: %s\n", cfg.ReleaseVersion)
	fmt.Fprintf(r.writer, "Bucket: %s\n", cfg.Bucket)
	if cfg.AWSProfile != "" {
		fmt.Fprintf(r.writer, "AWS Profile: %s\n", cfg.AWSProfile)
	}
	if cfg.AWSRegion != "" {
		fmt.Fprintf(r.writer, "AWS Region: %s\n", cfg.AWSRegion)
	}
	fmt.Fprintf(r.writer, "\n")
}

func (r *TextReporter) printSummary(summary Summary) {
	fmt.Fprintf(r.writer, "Summary\n")
	fmt.Fprintf(r.writer, "-------\n")
	fmt.Fprintf(r.writer, "Files Scanned: %d\n", summary.TotalFiles)
	fmt.Fprintf(r.writer, "Clean: %d\n", summary.Clean)

	if summary.Flagged > 0 {
		fmt.Fprintf(r.writer, "%s: %d\n", color.RedString("Flagged"), summary.Flagged)
	}
	if summary.TimedOut > 0 {
		fmt.Fprintf(r.writer, "%s: %d\n", color.YellowString("Timed Out"), summary.TimedOut)
	}

	fmt.Fprintf(r.writer, "\n")
}

func (r *TextReporter) printResults(results []release.ScanResult) {
	if len(results) == 0 {
		fmt.Fprintf(r.writer, "No installers found in the release manifest.\n")
		return
	}

	fmt.Fprintf(r.writer, "Results\n")
	fmt.Fprintf(r.writer, "%s\n", strings.Repeat("-", 50))
	for _, res := range results {
		switch {
		case res.TimedOut:
			fmt.Fprintf(r.writer, "  %s: %s\n", color.YellowString("[TIMED_OUT]"), res.File)
			fmt.Fprintf(r.writer, "    Analysis %s still %q\n", res.AnalysisID, res.Status)
			continue
		case res.Flagged:
			fmt.Fprintf(r.writer, "  %s: %s\n", color.RedString("[FLAGGED]"), res.File)
		default:
			fmt.Fprintf(r.writer, "  %s: %s\n", color.GreenString("[CLEAN]"), res.File)
		}
		for _, stat := range res.Stats {
			fmt.Fprintf(r.writer, "    - %s: %d\n", stat.Category, stat.Count)
		}
		if res.URL != "" {
			fmt.Fprintf(r.writer, "    URL: %s\n", res.URL)
		}
	}
	fmt.Fprintf(r.writer, "\n")
}

func (r *TextReporter) printFlagged(results []release.ScanResult) {
	var flagged []release.ScanResult
	for _, res := range results {
		if res.Flagged {
			flagged = append(flagged, res)
		}
	}
	if len(flagged) == 0 {
		return
	}

	fmt.Fprintf(r.writer, "%s\n", strings.Repeat("-", 80))
	fmt.Fprintf(r.writer, "%s\n", color.RedString("VirusTotal flagged the following files:"))
	for _, res := range flagged {
		fmt.Fprintf(r.writer, "- %s\n", res.File)
		fmt.Fprintf(r.writer, "  %s\n", res.URL)
	}
}

// GenerateUpload generates a text upload report
func (r *TextReporter) GenerateUpload(data UploadData) error {
	summary := data.Summary

	fmt.Fprintf(r.writer, "Artifact Upload Report\n")
	fmt.Fprintf(r.writer, "======================\n\n")
	r.printHeader(data.Timestamp.Format("2006-01-02 15:04:05"), data.Config)

	var total int64
	for _, f := range summary.Uploaded {
		total += f.Size
	}

	fmt.Fprintf(r.writer, "Summary\n")
	fmt.Fprintf(r.writer, "-------\n")
	fmt.Fprintf(r.writer, "Destination: s3://%s/%s\n", summary.Bucket, summary.Prefix)
	fmt.Fprintf(r.writer, "Deleted: %d\n", summary.Deleted)
	if len(summary.DeleteFailures) > 0 {
		fmt.Fprintf(r.writer, "%s: %d\n", color.YellowString("Delete Failures"), len(summary.DeleteFailures))
	}
	fmt.Fprintf(r.writer, "Uploaded: %d (%s)\n", len(summary.Uploaded), formatBytes(total))
	if len(summary.Skipped) > 0 {
		fmt.Fprintf(r.writer, "Skipped: %d\n", len(summary.Skipped))
	}
	fmt.Fprintf(r.writer, "\n")

	if len(summary.Uploaded) > 0 {
		fmt.Fprintf(r.writer, "%s\n", color.GreenString("Uploaded Artifacts"))
		fmt.Fprintf(r.writer, "%s\n", strings.Repeat("-", 50))
		for _, f := range summary.Uploaded {
			fmt.Fprintf(r.writer, "  %s (%s)\n", f.Key, formatBytes(f.Size))
		}
		fmt.Fprintf(r.writer, "\n")
	}

	if len(summary.DeleteFailures) > 0 {
		fmt.Fprintf(r.writer, "%s\n", color.YellowString("Delete Failures"))
		fmt.Fprintf(r.writer, "%s\n", strings.Repeat("-", 50))
		for _, f := range summary.DeleteFailures {
			fmt.Fprintf(r.writer, "  %s: %s\n", color.YellowString("[%s]", f.Code), f.Key)
			if f.Message != "" {
				fmt.Fprintf(r.writer, "    %s\n", f.Message)
			}
		}
		fmt.Fprintf(r.writer, "\n")
	}

	if len(summary.Skipped) > 0 {
		fmt.Fprintf(r.writer, "Skipped (excluded extension)\n")
		fmt.Fprintf(r.writer, "%s\n", strings.Repeat("-", 50))
		for _, name := range summary.Skipped {
			fmt.Fprintf(r.writer, "  %s\n", name)
		}
		fmt.Fprintf(r.writer, "\n")
	}

	return nil
}
