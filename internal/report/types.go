package report

import (
	"time"

	"github.com/ppiankov/releasectl/internal/release"
)

// Reporter interface for different report formats
type Reporter interface {
	Generate(data Data) error
	GenerateUpload(data UploadData) error
}

// Data contains the VirusTotal scan report
type Data struct {
	Tool      string               `json:"tool"`
	Version   string               `json:"version"`
	Timestamp time.Time            `json:"timestamp"`
	Config    Config               `json:"config"`
	Summary   Summary              `json:"summary"`
	Results   []release.ScanResult `json:"results"`
}

// UploadData contains the outcome of an artifact upload
type UploadData struct {
	Tool      string                `json:"tool"`
	Version   string                `json:"version"`
	Timestamp time.Time             `json:"timestamp"`
	Config    Config                `json:"config"`
	Summary   release.UploadSummary `json:"summary"`
}

// Config contains run configuration
type Config struct {
	ReleaseVersion string `json:"release_version"`
	Bucket         string `json:"bucket"`
	AWSProfile     string `json:"aws_profile,omitempty"`
	AWSRegion      string `json:"aws_region,omitempty"`
	Concurrency    int    `json:"concurrency,omitempty"`
}

// Summary counts scan outcomes
type Summary struct {
	TotalFiles int `json:"total_files"`
	Clean      int `json:"clean"`
	Flagged    int `json:"flagged"`
	TimedOut   int `json:"timed_out"`
}

// NewData builds report data from a scan report.
func NewData(tool, version string, timestamp time.Time, cfg Config, scan release.ScanReport) Data {
	if cfg.ReleaseVersion == "" {
		cfg.ReleaseVersion = scan.Version
	}
	if cfg.Bucket == "" {
		cfg.Bucket = scan.Bucket
	}
	return Data{
		Tool:      tool,
		Version:   version,
		Timestamp: timestamp,
		Config:    cfg,
		Summary:   Summarize(scan.Results),
		Results:   scan.Results,
	}
}

// Summarize counts clean, flagged and timed out results.
func Summarize(results []release.ScanResult) Summary {
	summary := Summary{TotalFiles: len(results)}
	for _, res := range results {
		switch {
		case res.TimedOut:
			summary.TimedOut++
		case res.Flagged:
			summary.Flagged++
		default:
			summary.Clean++
		}
	}
	return summary
}
