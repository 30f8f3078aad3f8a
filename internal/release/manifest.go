package release

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// scanExtensions are the installer types submitted for scanning.
var scanExtensions = map[string]bool{
	".msi": true,
	".exe": true,
	".pkg": true,
}

// ParseManifest decodes a release manifest, a JSON array of bucket keys.
func ParseManifest(data []byte) ([]string, error) {
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("invalid release manifest: %w", err)
	}
	return entries, nil
}

// SelectScanTargets returns, in sorted order, the manifest entries to scan for
// version: installers under minor/<version> and onedir archives under
// onedir/minor/<version>. The input slice is not modified.
func SelectScanTargets(entries []string, version string) []string {
	sorted := make([]string, len(entries))
	copy(sorted, entries)
	sort.Strings(sorted)

	minor := "minor/" + version
	onedir := "onedir/minor/" + version

	var targets []string
	for _, entry := range sorted {
		if strings.Contains(entry, minor) && scanExtensions[filepath.Ext(entry)] {
			targets = append(targets, entry)
		}
		if strings.Contains(entry, onedir) && strings.HasSuffix(entry, "tar.xz") {
			targets = append(targets, entry)
		}
	}
	return targets
}
