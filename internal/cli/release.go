package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mysuperaisaas/releasectl/internal/build"
	"github.com/mysuperaisaas/releasectl/internal/config"
	"github.com/mysuperaisaas/releasectl/internal/gcp"
	"github.com/mysuperaisaas/releasectl/internal/health"
	"github.com/mysuperaisaas/releasectl/internal/logging"
	"github.com/mysuperaisaas/releasectl/internal/printer"
	"github.com/mysuperaisaas/releasectl/internal/publish"
	"github.com/mysuperaisaas/releasectl/internal/release"
)

var (
	releaseSourceDir     string
	releaseFunctionsFile string
	releaseAllowPublic   bool
	releaseSkipVerify    bool
	releaseFailFast      bool
	releaseTimeout       time.Duration
)

var ReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Build, publish, and deploy a release",
	Long: `Run the full release pipeline against the configured deployment target:
authenticate, build the image, publish it, deploy the service revision,
deploy auxiliary functions, and verify the health endpoint.

Configuration comes from RELEASECTL_* environment variables (a .env file is
loaded when present); flags override individual settings.`,
	RunE:          runRelease,
	SilenceUsage:  true,
	SilenceErrors: true, // failures are reported once, via printer
}

func init() {
	ReleaseCmd.Flags().StringVarP(&releaseSourceDir, "source-dir", "d", "", "Build directory (default: RELEASECTL_SOURCE_DIR or current directory)")
	ReleaseCmd.Flags().StringVar(&releaseFunctionsFile, "functions-file", "", "YAML file listing auxiliary function specs")
	ReleaseCmd.Flags().BoolVar(&releaseAllowPublic, "allow-unauthenticated", false, "Open the deployed service to unauthenticated traffic")
	ReleaseCmd.Flags().BoolVar(&releaseSkipVerify, "skip-verify", false, "Skip the post-deploy health probe")
	ReleaseCmd.Flags().BoolVar(&releaseFailFast, "fail-fast", false, "Abort on the first function deploy failure instead of reporting partial results")
	ReleaseCmd.Flags().DurationVar(&releaseTimeout, "timeout", 30*time.Minute, "Overall pipeline deadline")
}

func runRelease(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyReleaseFlags(cmd, cfg)

	var specs []config.FunctionSpec
	if cfg.FunctionsFile != "" {
		specs, err = config.LoadFunctions(cfg.FunctionsFile)
		if err != nil {
			return err
		}
	}

	log := logging.NewLogger("releasectl")
	if verbose {
		log = logging.NewDevelopmentLogger("releasectl")
	}
	defer func() { _ = log.Sync() }()

	releaseID := time.Now().UTC().Format("20060102-150405")
	runCtx := logging.SetReleaseID(cmd.Context(), releaseID)
	log = logging.WithReleaseID(runCtx, log)

	key, err := gcp.LoadKey(cfg.CredentialsFile, cfg.CredentialsPassword)
	if err != nil {
		return &release.AuthError{Err: err}
	}
	tokens := gcp.NewTokenSource(key)

	builder := build.NewDockerBuilder(log, verbose)

	orch := release.New(
		cfg,
		log,
		tokens,
		builder,
		publish.NewPusher(tokens, log),
		gcp.NewRunClient(tokens, log, cfg.ProjectID, cfg.Region, cfg.ServiceName),
		gcp.NewFunctionClient(tokens, log, cfg.ProjectID, cfg.Region),
		health.NewProber(),
	)

	ctx, stop := signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, releaseTimeout)
	defer cancel()

	if err := builder.CheckAvailable(ctx); err != nil {
		buildErr := &release.BuildError{Err: err}
		printer.PrintError(fmt.Sprintf("release failed at stage %q: %v", buildErr.Stage(), buildErr))
		return buildErr
	}

	summary, err := orch.Run(ctx, specs)
	printSummary(summary)
	if err != nil {
		var stager release.Stager
		if errors.As(err, &stager) {
			printer.PrintError(fmt.Sprintf("release failed at stage %q: %v", stager.Stage(), err))
		} else {
			printer.PrintError(fmt.Sprintf("release failed: %v", err))
		}
		return err
	}

	printer.PrintSuccess("release complete")
	return nil
}

// applyReleaseFlags lets explicitly set flags override the environment
// configuration. Unset flags leave the env-derived values alone.
func applyReleaseFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("source-dir") {
		cfg.SourceDir = releaseSourceDir
	}
	if cmd.Flags().Changed("functions-file") {
		cfg.FunctionsFile = releaseFunctionsFile
	}
	if cmd.Flags().Changed("allow-unauthenticated") {
		cfg.AllowUnauthenticated = releaseAllowPublic
	}
	if cmd.Flags().Changed("skip-verify") {
		cfg.SkipVerify = releaseSkipVerify
	}
	if cmd.Flags().Changed("fail-fast") {
		cfg.FunctionFailFast = releaseFailFast
	}
}

func printSummary(summary *release.Summary) {
	if summary == nil {
		return
	}

	printer.PrintInfo("")
	printer.PrintInfo(fmt.Sprintf("Service URL: %s", summary.ServiceURL))
	printer.PrintInfo(fmt.Sprintf("Deployed tag: %s", summary.Tag))
	if summary.Verified {
		printer.PrintInfo("Health check: passed")
	} else {
		printer.PrintInfo("Health check: not verified")
	}
	for _, fn := range summary.Functions {
		if fn.Deployed {
			printer.PrintInfo(fmt.Sprintf("Function %s: deployed", fn.Name))
		} else {
			printer.PrintInfo(fmt.Sprintf("Function %s: FAILED (%v)", fn.Name, fn.Err))
		}
	}
}
