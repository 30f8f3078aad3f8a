package baseline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/releasectl/internal/report"
)

// Finding types.
const (
	TypeFlagged  = "FLAGGED_ARTIFACT"
	TypeTimedOut = "ANALYSIS_TIMEOUT"
)

// Finding is a flattened, identity-comparable issue from a scan.
type Finding struct {
	Type   string `json:"type"`
	Key    string `json:"key"`
	SHA256 string `json:"sha256,omitempty"`
}

func (f Finding) key() string {
	return fmt.Sprintf("%s|%s", f.Type, f.Key)
}

// DiffResult holds the outcome of comparing current findings against a baseline.
type DiffResult struct {
	New       []Finding
	Resolved  []Finding
	Unchanged []Finding
}

// FlattenScanFindings converts a scan report into a flat finding list.
func FlattenScanFindings(data report.Data) []Finding {
	var findings []Finding
	for _, res := range data.Results {
		switch {
		case res.TimedOut:
			findings = append(findings, Finding{Type: TypeTimedOut, Key: res.Key})
		case res.Flagged:
			findings = append(findings, Finding{Type: TypeFlagged, Key: res.Key, SHA256: res.SHA256})
		}
	}
	return findings
}

// LoadScanBaseline reads a previous JSON scan report and extracts findings.
func LoadScanBaseline(path string) ([]Finding, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	var data report.Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse baseline: %w", err)
	}
	return FlattenScanFindings(data), nil
}

// Diff compares current findings against a baseline.
func Diff(current, baseline []Finding) DiffResult {
	baseMap := make(map[string]struct{}, len(baseline))
	for _, f := range baseline {
		baseMap[f.key()] = struct{}{}
	}
	curMap := make(map[string]struct{}, len(current))
	for _, f := range current {
		curMap[f.key()] = struct{}{}
	}

	var result DiffResult
	for _, f := range current {
		if _, exists := baseMap[f.key()]; exists {
			result.Unchanged = append(result.Unchanged, f)
		} else {
			result.New = append(result.New, f)
		}
	}
	for _, f := range baseline {
		if _, exists := curMap[f.key()]; !exists {
			result.Resolved = append(result.Resolved, f)
		}
	}
	return result
}
