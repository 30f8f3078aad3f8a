package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/releasectl/internal/config"
	"github.com/ppiankov/releasectl/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
	cfg     config.Config
	creds   config.Credentials
)

var rootFlags struct {
	verbose    bool
	quiet      bool
	logFormat  string
	configPath string
	bucket     string
	awsProfile string
	awsRegion  string
	endpoint   string
	noProgress bool
	timeout    time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "releasectl",
	Short: "releasectl - release artifact staging and malware scan relay",
	Long: `releasectl publishes release artifacts to the staging bucket and relays the
release installers to VirusTotal, failing the pipeline when any file is flagged.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func setup(cmd *cobra.Command, args []string) error {
	if err := logging.Init(logging.Options{
		Verbose: rootFlags.verbose,
		Quiet:   rootFlags.quiet,
		Format:  rootFlags.logFormat,
	}); err != nil {
		return err
	}

	if rootFlags.configPath != "" {
		loaded, err := config.LoadFile(rootFlags.configPath)
		if err != nil {
			return enhanceError("config load", err)
		}
		cfg = loaded
	} else {
		loaded, err := config.Load(".")
		if err != nil {
			slog.Warn("Failed to load config file", "error", err)
		} else {
			cfg = loaded
		}
	}
	applyConfigToRootFlags(cmd)

	loadedCreds, err := config.LoadCredentials(cmd.Context())
	if err != nil {
		return err
	}
	creds = loadedCreds
	return nil
}

// Execute runs the root command with injected build info. ctx is cancelled on
// interrupt.
func Execute(ctx context.Context, v, c, d string) error {
	version = v
	commit = c
	date = d
	return rootCmd.ExecuteContext(ctx)
}

// GetVersion returns the current version.
func GetVersion() string {
	return version
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&rootFlags.verbose, "verbose", false, "Enable verbose logging")
	flags.BoolVar(&rootFlags.quiet, "quiet", false, "Only log warnings and errors")
	flags.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format: text or json")
	flags.StringVar(&rootFlags.configPath, "config", "", "Config file (default: .releasectl.yaml in the working or home directory)")
	flags.StringVar(&rootFlags.bucket, "bucket", config.DefaultBucket, "Staging bucket")
	flags.StringVar(&rootFlags.awsProfile, "aws-profile", "", "AWS profile to use")
	flags.StringVar(&rootFlags.awsRegion, "aws-region", "", "AWS region (defaults to profile default)")
	flags.StringVar(&rootFlags.endpoint, "endpoint-url", "", "S3-compatible endpoint URL (uses path-style addressing)")
	flags.BoolVar(&rootFlags.noProgress, "no-progress", false, "Disable progress bars")
	flags.DurationVar(&rootFlags.timeout, "timeout", 0, "Total operation timeout (e.g. 45m). 0 means no timeout")

	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(versionCmd)
}

func applyConfigToRootFlags(cmd *cobra.Command) {
	if !flagChanged(cmd, "bucket") && cfg.Bucket != "" {
		rootFlags.bucket = cfg.Bucket
	}
	if !flagChanged(cmd, "aws-profile") && cfg.Profile != "" {
		rootFlags.awsProfile = cfg.Profile
	}
	if !flagChanged(cmd, "aws-region") && cfg.Region != "" {
		rootFlags.awsRegion = cfg.Region
	}
	if !flagChanged(cmd, "endpoint-url") && cfg.Endpoint != "" {
		rootFlags.endpoint = cfg.Endpoint
	}
	if !flagChanged(cmd, "timeout") {
		if d := cfg.TimeoutDuration(); d > 0 {
			rootFlags.timeout = d
		}
	}
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// commandContext applies --timeout to the command context.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if rootFlags.timeout > 0 {
		return context.WithTimeout(ctx, rootFlags.timeout)
	}
	return context.WithCancel(ctx)
}
