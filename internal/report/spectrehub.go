package report

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ppiankov/releasectl/internal/release"
)

// spectre/v1 envelope types

type spectreEnvelope struct {
	Schema    string           `json:"schema"`
	Tool      string           `json:"tool"`
	Version   string           `json:"version"`
	Timestamp string           `json:"timestamp"`
	Target    spectreTarget    `json:"target"`
	Findings  []spectreFinding `json:"findings"`
	Summary   spectreSummary   `json:"summary"`
}

type spectreTarget struct {
	Type    string `json:"type"`
	URIHash string `json:"uri_hash"`
}

type spectreFinding struct {
	ID       string         `json:"id"`
	Severity string         `json:"severity"`
	Location string         `json:"location"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type spectreSummary struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	Info   int `json:"info"`
}

// HashTarget produces a sha256 hash of a bucket and release version for target identification.
func HashTarget(bucket, version string) string {
	input := bucket + ":" + version
	h := sha256.Sum256([]byte(input))
	return fmt.Sprintf("sha256:%x", h)
}

// SpectreHubReporter generates spectre/v1 JSON envelope output.
type SpectreHubReporter struct {
	writer io.Writer
}

// NewSpectreHubReporter creates a new SpectreHub reporter.
func NewSpectreHubReporter(w io.Writer) *SpectreHubReporter {
	return &SpectreHubReporter{writer: w}
}

// Generate writes scan results as a spectre/v1 envelope.
func (r *SpectreHubReporter) Generate(data Data) error {
	envelope := newEnvelope(data.Tool, data.Version, data.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), data.Config)

	for _, res := range data.Results {
		severity, id := scanSeverity(res)
		if id == "" {
			continue
		}
		envelope.Findings = append(envelope.Findings, spectreFinding{
			ID:       id,
			Severity: severity,
			Location: s3URI(data.Config.Bucket, res.Key),
			Message:  scanMessage(res),
			Metadata: map[string]any{
				"analysis_id": res.AnalysisID,
				"sha256":      res.SHA256,
				"url":         res.URL,
			},
		})
		countSeverity(&envelope.Summary, severity)
	}

	return r.write(envelope)
}

// GenerateUpload writes delete failures as a spectre/v1 envelope.
func (r *SpectreHubReporter) GenerateUpload(data UploadData) error {
	envelope := newEnvelope(data.Tool, data.Version, data.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), data.Config)

	for _, f := range data.Summary.DeleteFailures {
		envelope.Findings = append(envelope.Findings, spectreFinding{
			ID:       "DELETE_FAILURE",
			Severity: "low",
			Location: s3URI(data.Summary.Bucket, f.Key),
			Message:  f.Message,
			Metadata: map[string]any{"code": f.Code},
		})
		countSeverity(&envelope.Summary, "low")
	}

	return r.write(envelope)
}

func newEnvelope(tool, version, timestamp string, cfg Config) spectreEnvelope {
	return spectreEnvelope{
		Schema:    "spectre/v1",
		Tool:      tool,
		Version:   version,
		Timestamp: timestamp,
		Target: spectreTarget{
			Type:    "s3",
			URIHash: HashTarget(cfg.Bucket, cfg.ReleaseVersion),
		},
	}
}

func (r *SpectreHubReporter) write(envelope spectreEnvelope) error {
	envelope.Summary.Total = len(envelope.Findings)
	if envelope.Findings == nil {
		envelope.Findings = []spectreFinding{}
	}

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope)
}

func scanSeverity(res release.ScanResult) (severity, id string) {
	switch {
	case res.Flagged:
		return "high", "FLAGGED_ARTIFACT"
	case res.TimedOut:
		return "medium", "ANALYSIS_TIMEOUT"
	default:
		return "info", ""
	}
}

func scanMessage(res release.ScanResult) string {
	if res.TimedOut {
		return fmt.Sprintf("analysis still %q", res.Status)
	}
	return flaggedMessage(res)
}

func countSeverity(s *spectreSummary, severity string) {
	switch severity {
	case "high":
		s.High++
	case "medium":
		s.Medium++
	case "low":
		s.Low++
	case "info":
		s.Info++
	}
}
