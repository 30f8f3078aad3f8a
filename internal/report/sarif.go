package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ppiankov/releasectl/internal/release"
	"github.com/ppiankov/releasectl/internal/virustotal"
)

const (
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
	sarifVersion = "2.1.0"

	sarifRuleFlaggedArtifact = "releasectl/FLAGGED_ARTIFACT"
	sarifRuleAnalysisTimeout = "releasectl/ANALYSIS_TIMEOUT"
	sarifRuleDeleteFailure   = "releasectl/DELETE_FAILURE"
)

type SARIFReporter struct {
	writer io.Writer
}

func NewSARIFReporter(w io.Writer) *SARIFReporter {
	return &SARIFReporter{writer: w}
}

type sarifLog struct {
	Schema  string     `json:"$schema,omitempty"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name,omitempty"`
	ShortDescription sarifMessage `json:"shortDescription,omitempty"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level,omitempty"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation *sarifPhysicalLocation `json:"physicalLocation,omitempty"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRuleMeta struct {
	Name        string
	Description string
	Level       string
}

var sarifRules = map[string]sarifRuleMeta{
	sarifRuleFlaggedArtifact: {
		Name:        "FlaggedArtifact",
		Description: "VirusTotal engines reported the artifact as failed, malicious or suspicious",
		Level:       "error",
	},
	sarifRuleAnalysisTimeout: {
		Name:        "AnalysisTimeout",
		Description: "VirusTotal analysis did not complete before the poll limit",
		Level:       "warning",
	},
	sarifRuleDeleteFailure: {
		Name:        "DeleteFailure",
		Description: "Existing artifact could not be deleted from the staging bucket",
		Level:       "warning",
	},
}

func (r *SARIFReporter) Generate(data Data) error {
	var results []sarifResult
	usedRules := make(map[string]sarifRule)

	for _, res := range data.Results {
		location := locationFor(s3URI(data.Config.Bucket, res.Key))
		switch {
		case res.TimedOut:
			message := fmt.Sprintf("Analysis %s of %s still %q", res.AnalysisID, res.File, res.Status)
			results = appendResult(results, usedRules, sarifRuleAnalysisTimeout, message, location)
		case res.Flagged:
			message := flaggedMessage(res)
			results = appendResult(results, usedRules, sarifRuleFlaggedArtifact, message, location)
		}
	}

	return r.writeSARIF(data.Tool, data.Version, results, usedRules)
}

func (r *SARIFReporter) GenerateUpload(data UploadData) error {
	var results []sarifResult
	usedRules := make(map[string]sarifRule)

	failures := make([]string, 0, len(data.Summary.DeleteFailures))
	messages := make(map[string]string, len(data.Summary.DeleteFailures))
	for _, f := range data.Summary.DeleteFailures {
		failures = append(failures, f.Key)
		messages[f.Key] = strings.TrimSpace(fmt.Sprintf("%s %s", f.Code, f.Message))
	}
	sort.Strings(failures)

	for _, key := range failures {
		location := locationFor(s3URI(data.Summary.Bucket, key))
		results = appendResult(results, usedRules, sarifRuleDeleteFailure, messages[key], location)
	}

	return r.writeSARIF(data.Tool, data.Version, results, usedRules)
}

func (r *SARIFReporter) writeSARIF(toolName, toolVersion string, results []sarifResult, usedRules map[string]sarifRule) error {
	ruleIDs := make([]string, 0, len(usedRules))
	for id := range usedRules {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)

	rules := make([]sarifRule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		rules = append(rules, usedRules[id])
	}

	log := sarifLog{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:    toolName,
					Version: toolVersion,
					Rules:   rules,
				},
			},
			Results: results,
		}},
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(log)
}

func appendResult(results []sarifResult, usedRules map[string]sarifRule, ruleID, message string, locations []sarifLocation) []sarifResult {
	rule := sarifRule{ID: ruleID}
	level := "warning"
	if meta, ok := sarifRules[ruleID]; ok {
		rule.Name = meta.Name
		rule.ShortDescription = sarifMessage{Text: meta.Description}
		level = meta.Level
	}
	if message == "" {
		message = rule.ShortDescription.Text
	}
	if _, exists := usedRules[ruleID]; !exists {
		usedRules[ruleID] = rule
	}

	results = append(results, sarifResult{
		RuleID:    ruleID,
		Level:     level,
		Message:   sarifMessage{Text: message},
		Locations: locations,
	})

	return results
}

func flaggedMessage(res release.ScanResult) string {
	var counts []string
	for _, stat := range res.Stats {
		if stat.Count > 0 && virustotal.IsFlaggedCategory(stat.Category) {
			counts = append(counts, fmt.Sprintf("%s: %d", stat.Category, stat.Count))
		}
	}
	message := fmt.Sprintf("%s flagged by VirusTotal (%s)", res.File, strings.Join(counts, ", "))
	if res.URL != "" {
		message += ". See " + res.URL
	}
	return message
}

func locationFor(uri string) []sarifLocation {
	if uri == "" {
		return nil
	}
	return []sarifLocation{{
		PhysicalLocation: &sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: uri},
		},
	}}
}

func s3URI(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		cleaned = append(cleaned, strings.TrimPrefix(part, "/"))
	}
	if len(cleaned) == 0 {
		return ""
	}
	return "s3://" + strings.Join(cleaned, "/")
}
