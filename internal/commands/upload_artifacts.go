package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ppiankov/releasectl/internal/progress"
	"github.com/ppiankov/releasectl/internal/release"
	"github.com/ppiankov/releasectl/internal/report"
	"github.com/spf13/cobra"
)

var uploadArtifactsFlags struct {
	excludeExt   []string
	outputFormat string
	outputFile   string
}

var uploadArtifactsCmd = &cobra.Command{
	Use:   "upload-artifacts <salt_version> <artifacts_path>",
	Short: "Replace the staged artifacts of a release",
	Long: `Deletes everything under release-artifacts/<salt_version> in the staging
bucket, then uploads the files directly inside <artifacts_path>. Files with an
excluded extension (.json by default) are skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: runUploadArtifacts,
}

func init() {
	uploadArtifactsCmd.Flags().StringSliceVar(&uploadArtifactsFlags.excludeExt, "exclude-ext", release.DefaultExclusions, "File extensions never uploaded (repeatable)")
	uploadArtifactsCmd.Flags().StringVarP(&uploadArtifactsFlags.outputFormat, "format", "f", "text", "Summary format: text, json, sarif, or spectrehub")
	uploadArtifactsCmd.Flags().StringVarP(&uploadArtifactsFlags.outputFile, "output", "o", "", "Summary file (default: stdout)")
}

func runUploadArtifacts(cmd *cobra.Command, args []string) error {
	applyConfigToUploadArtifactsFlags(cmd)

	saltVersion, artifactsPath := args[0], args[1]

	if _, err := selectReporter(uploadArtifactsFlags.outputFormat, io.Discard); err != nil {
		return err
	}

	info, err := os.Stat(artifactsPath)
	if err != nil {
		return enhanceError("artifact upload", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact upload failed: %s is not a directory", artifactsPath)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	start := time.Now()

	printStatus("Initializing AWS S3 client...")
	store, err := newStore(ctx)
	if err != nil {
		return err
	}

	uploader := &release.Uploader{
		Store:      store,
		Exclusions: uploadArtifactsFlags.excludeExt,
		Progress:   progress.NewFactory(rootFlags.noProgress),
	}
	summary, err := uploader.Run(ctx, saltVersion, artifactsPath)
	if err != nil {
		return enhanceError("artifact upload", err)
	}

	slog.Info("Upload complete",
		slog.String("bucket", summary.Bucket),
		slog.String("prefix", summary.Prefix),
		slog.Int("deleted", summary.Deleted),
		slog.Int("uploaded", len(summary.Uploaded)),
		slog.Int("skipped", len(summary.Skipped)),
		slog.Duration("duration", time.Since(start)),
	)

	data := report.UploadData{
		Tool:      "releasectl",
		Version:   GetVersion(),
		Timestamp: time.Now(),
		Config:    reportConfig(saltVersion, 0),
		Summary:   summary,
	}
	return writeReport(cmd.OutOrStdout(), uploadArtifactsFlags.outputFormat, uploadArtifactsFlags.outputFile,
		func(r report.Reporter) error { return r.GenerateUpload(data) })
}

func applyConfigToUploadArtifactsFlags(cmd *cobra.Command) {
	if !flagChanged(cmd, "exclude-ext") && len(cfg.ExcludeExtensions) > 0 {
		uploadArtifactsFlags.excludeExt = cfg.ExcludeExtensions
	}
}
