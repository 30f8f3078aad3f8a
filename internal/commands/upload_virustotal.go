package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/ppiankov/releasectl/internal/baseline"
	"github.com/ppiankov/releasectl/internal/release"
	"github.com/ppiankov/releasectl/internal/report"
	"github.com/ppiankov/releasectl/internal/virustotal"
	"github.com/spf13/cobra"
)

// Per-request bound for VirusTotal calls; large installers take minutes to upload.
const virusTotalRequestTimeout = 15 * time.Minute

var uploadVirusTotalFlags struct {
	concurrency    int
	pollInterval   time.Duration
	pollTimeout    time.Duration
	maxPolls       int
	outputFormat   string
	outputFile     string
	dryRun         bool
	baselinePath   string
	updateBaseline bool
}

var uploadVirusTotalCmd = &cobra.Command{
	Use:   "upload-virustotal <salt_version>",
	Short: "Scan the release installers with VirusTotal",
	Long: `Downloads the release manifest of <salt_version> from the staging bucket,
submits every installer and onedir archive it lists to VirusTotal and waits for
the analyses. Exits with status 1 when any file is flagged as failed, malicious
or suspicious, or when an analysis does not complete in time.

Requires VIRUSTOTAL_API_KEY in the environment or in a .env file.`,
	Args: cobra.ExactArgs(1),
	RunE: runUploadVirusTotal,
}

func init() {
	defaults := virustotal.DefaultPollPolicy()
	uploadVirusTotalCmd.Flags().IntVar(&uploadVirusTotalFlags.concurrency, "concurrency", 1, "Files scanned in parallel")
	uploadVirusTotalCmd.Flags().DurationVar(&uploadVirusTotalFlags.pollInterval, "poll-interval", defaults.Interval, "Delay between analysis status checks")
	uploadVirusTotalCmd.Flags().DurationVar(&uploadVirusTotalFlags.pollTimeout, "poll-timeout", defaults.Timeout, "Maximum wait for one analysis. 0 means bounded by --max-polls only")
	uploadVirusTotalCmd.Flags().IntVar(&uploadVirusTotalFlags.maxPolls, "max-polls", 0, "Maximum status checks per analysis. 0 means bounded by --poll-timeout only")
	uploadVirusTotalCmd.Flags().StringVarP(&uploadVirusTotalFlags.outputFormat, "format", "f", "text", "Output format: text, json, sarif, or spectrehub")
	uploadVirusTotalCmd.Flags().StringVarP(&uploadVirusTotalFlags.outputFile, "output", "o", "", "Output file (default: stdout)")
	uploadVirusTotalCmd.Flags().BoolVar(&uploadVirusTotalFlags.dryRun, "dry-run", false, "List the files that would be scanned and exit")
	uploadVirusTotalCmd.Flags().StringVar(&uploadVirusTotalFlags.baselinePath, "baseline", "", "Path to a previous JSON scan report for diff comparison")
	uploadVirusTotalCmd.Flags().BoolVar(&uploadVirusTotalFlags.updateBaseline, "update-baseline", false, "Write current results to the --baseline path")
}

func runUploadVirusTotal(cmd *cobra.Command, args []string) error {
	applyConfigToUploadVirusTotalFlags(cmd)

	saltVersion := args[0]
	flags := uploadVirusTotalFlags

	if flags.concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1, got %d", flags.concurrency)
	}
	if _, err := selectReporter(flags.outputFormat, io.Discard); err != nil {
		return err
	}
	if flags.updateBaseline && flags.baselinePath == "" {
		return fmt.Errorf("--update-baseline requires --baseline")
	}
	if !flags.dryRun {
		if err := creds.Validate(); err != nil {
			return enhanceError("VirusTotal configuration", err)
		}
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	start := time.Now()

	printStatus("Initializing AWS S3 client...")
	store, err := newStore(ctx)
	if err != nil {
		return err
	}

	relay := &release.Relay{
		Store: store,
		Poll: virustotal.PollPolicy{
			Interval:    flags.pollInterval,
			Timeout:     flags.pollTimeout,
			MaxAttempts: flags.maxPolls,
		},
		Concurrency: flags.concurrency,
	}

	if flags.dryRun {
		targets, err := relay.Targets(ctx, saltVersion)
		if err != nil {
			return enhanceError("manifest download", err)
		}
		for _, target := range targets {
			fmt.Fprintln(cmd.OutOrStdout(), target)
		}
		return nil
	}

	relay.Scanner = virustotal.NewClient(creds.URL, creds.APIKey, virusTotalRequestTimeout)
	scan, err := relay.Run(ctx, saltVersion)
	if err != nil {
		return enhanceError("VirusTotal scan", err)
	}

	data := report.NewData("releasectl", GetVersion(), time.Now(), reportConfig(scan.Version, flags.concurrency), scan)
	if err := writeReport(cmd.OutOrStdout(), flags.outputFormat, flags.outputFile,
		func(r report.Reporter) error { return r.Generate(data) }); err != nil {
		return err
	}

	if flags.baselinePath != "" {
		if err := compareBaseline(data, flags.baselinePath, flags.updateBaseline); err != nil {
			return err
		}
	}

	slog.Info("Scan complete",
		slog.Int("file_count", data.Summary.TotalFiles),
		slog.Int("flagged_count", data.Summary.Flagged),
		slog.Int("timed_out_count", data.Summary.TimedOut),
		slog.Duration("duration", time.Since(start)),
	)

	if n := data.Summary.Flagged; n > 0 {
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("VirusTotal flagged %d file(s)", n)}
	}
	if n := data.Summary.TimedOut; n > 0 {
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%w for %d file(s)", virustotal.ErrAnalysisTimeout, n)}
	}
	return nil
}

func applyConfigToUploadVirusTotalFlags(cmd *cobra.Command) {
	vt := cfg.VirusTotal
	if !flagChanged(cmd, "concurrency") && vt.Concurrency > 0 {
		uploadVirusTotalFlags.concurrency = vt.Concurrency
	}
	if !flagChanged(cmd, "poll-interval") {
		if d := vt.PollIntervalDuration(); d > 0 {
			uploadVirusTotalFlags.pollInterval = d
		}
	}
	if !flagChanged(cmd, "poll-timeout") {
		if d := vt.PollTimeoutDuration(); d > 0 {
			uploadVirusTotalFlags.pollTimeout = d
		}
	}
	if !flagChanged(cmd, "max-polls") && vt.MaxPolls > 0 {
		uploadVirusTotalFlags.maxPolls = vt.MaxPolls
	}
	if vt.URL != "" && !envSet("VIRUSTOTAL_URL") {
		creds.URL = vt.URL
	}
}

// compareBaseline logs how data differs from the report at path, then
// replaces that report with data when update is set.
func compareBaseline(data report.Data, path string, update bool) error {
	current := baseline.FlattenScanFindings(data)
	previous, err := baseline.LoadScanBaseline(path)
	switch {
	case err == nil:
		diff := baseline.Diff(current, previous)
		slog.Info("Baseline comparison",
			slog.Int("new", len(diff.New)),
			slog.Int("resolved", len(diff.Resolved)),
			slog.Int("unchanged", len(diff.Unchanged)),
		)
		for _, f := range diff.New {
			slog.Warn("New finding since baseline", "type", f.Type, "key", f.Key)
		}
	case update && errors.Is(err, fs.ErrNotExist):
		slog.Info("No baseline yet", slog.String("path", path))
	default:
		return enhanceError("baseline load", err)
	}

	if !update {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return enhanceError("baseline write", err)
	}
	defer func() { _ = f.Close() }()
	if err := report.NewJSONReporter(f).Generate(data); err != nil {
		return enhanceError("baseline write", err)
	}
	slog.Info("Updated baseline", slog.String("path", path))
	return nil
}
