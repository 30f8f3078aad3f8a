package report

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/releasectl/internal/release"
)

// JSONReporter generates JSON reports
type JSONReporter struct {
	writer io.Writer
}

// NewJSONReporter creates a new JSON reporter
func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{writer: w}
}

// Generate generates a JSON report
func (r *JSONReporter) Generate(data Data) error {
	data.Timestamp = data.Timestamp.UTC()
	if data.Results == nil {
		data.Results = []release.ScanResult{}
	}
	return r.encode(data)
}

// GenerateUpload generates a JSON upload report
func (r *JSONReporter) GenerateUpload(data UploadData) error {
	data.Timestamp = data.Timestamp.UTC()
	return r.encode(data)
}

func (r *JSONReporter) encode(v interface{}) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
