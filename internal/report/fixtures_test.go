package report

import (
	"time"

	"github.com/ppiankov/releasectl/internal/release"
	"github.com/ppiankov/releasectl/internal/s3"
	"github.com/ppiankov/releasectl/internal/virustotal"
)

func scanFixture() Data {
	scan := release.ScanReport{
		Version: "3006.0",
		Bucket:  "staging",
		Results: []release.ScanResult{
			{
				File:       "salt-3006.0-setup.exe",
				Key:        "minor/3006.0/salt-3006.0-setup.exe",
				AnalysisID: "a1",
				Status:     "completed",
				SHA256:     "cleansha",
				Stats: []virustotal.Stat{
					{Category: "harmless", Count: 70},
					{Category: "malicious", Count: 0},
				},
				URL: "https://www.virustotal.com/gui/file/cleansha",
			},
			{
				File:       "salt-3006.0.msi",
				Key:        "minor/3006.0/salt-3006.0.msi",
				AnalysisID: "a2",
				Status:     "completed",
				SHA256:     "badsha",
				Stats: []virustotal.Stat{
					{Category: "harmless", Count: 68},
					{Category: "malicious", Count: 2},
				},
				Flagged: true,
				URL:     "https://www.virustotal.com/gui/file/badsha",
			},
			{
				File:       "salt-3006.0.tar.xz",
				Key:        "onedir/minor/3006.0/salt-3006.0.tar.xz",
				AnalysisID: "a3",
				Status:     "queued",
				TimedOut:   true,
			},
		},
	}
	return NewData("releasectl", "0.1.0", time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC), Config{AWSRegion: "us-west-2"}, scan)
}

func uploadFixture() UploadData {
	return UploadData{
		Tool:      "releasectl",
		Version:   "0.1.0",
		Timestamp: time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC),
		Config:    Config{ReleaseVersion: "3006.0", Bucket: "staging"},
		Summary: release.UploadSummary{
			Bucket:  "staging",
			Prefix:  "release-artifacts/3006.0",
			Deleted: 3,
			DeleteFailures: []s3.DeleteFailure{
				{Key: "release-artifacts/3006.0/old.exe", Code: "AccessDenied", Message: "Access Denied"},
			},
			Uploaded: []release.UploadedFile{
				{Key: "release-artifacts/3006.0/salt-3006.0.tar.xz", Size: 2048},
				{Key: "release-artifacts/3006.0/salt-3006.0-setup.exe", Size: 512},
			},
			Skipped: []string{".release-files.json"},
		},
	}
}
