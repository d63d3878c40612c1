package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/adapters/juju"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/adapters/kubectl"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/archive"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/collector"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/command"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/config"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/logging"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/staging"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/upload"
)

const (
	defaultRetryDelay = time.Second

	// archiveTimeLayout names default archives, e.g. 2024-05-01-13.45.10.tar.gz.
	archiveTimeLayout = "2006-01-02-15.04.05"
)

// newRunner builds the runner every juju and kubectl call goes through.
// Tests replace it with a scripted runner.
var newRunner = func(cfg *config.Config, logger *logging.Logger, metrics *diagnostics.Metrics) command.Runner {
	return command.NewExecRunner(
		command.WithRetryPolicy(command.RetryPolicy{
			Attempts: cfg.Retry.Count,
			Delay:    cfg.Retry.Delay,
		}),
		command.WithLogger(logger),
		command.WithConcurrencyLimit(cfg.Collect.MaxProcesses),
		command.WithSpawnRate(rate.Limit(cfg.Collect.SpawnRate), cfg.Collect.MaxProcesses),
		command.WithObserver(metrics),
	)
}

// now is replaced in tests.
var now = time.Now

func loadConfig(v *viper.Viper, cfgFile string) (*config.Config, error) {
	loader := config.NewLoaderWithViper(v)
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "loading configuration").WithCause(err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCollect(cmd *cobra.Command, v *viper.Viper, flags *rootFlags, kubeconfigPath, controller string) error {
	if strings.TrimSpace(controller) == "" {
		return core.ErrValidation(core.CodeEmptyController, "controller name is required")
	}

	cfg, err := loadConfig(v, flags.cfgFile)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})

	kube, err := kubectl.ValidateKubeconfig(kubeconfigPath)
	if err != nil {
		return err
	}

	dest, err := outputPath(cfg.Output.Path, now())
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger = logger.WithRun(runID)
	logger.Info("starting collection",
		"controller", controller,
		"context", kube.Context,
		"server", kube.Server,
		"output", dest,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Collect.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Collect.Timeout)
		defer cancel()
	}

	metrics := diagnostics.NewMetrics()
	runner := newRunner(cfg, logger, metrics)

	tree, err := staging.NewTemp("", "juju-k8s-crashdump-")
	if err != nil {
		return err
	}
	defer func() {
		if err := tree.Remove(); err != nil {
			logger.Warn("removing staging directory", "dir", tree.Dir(), "error", err)
		}
	}()

	c := collector.New(
		juju.NewCmdClient(runner, juju.WithBinary(cfg.Tools.Juju)),
		kubectl.NewCmdClient(runner, kubeconfigPath, kubectl.WithBinary(cfg.Tools.Kubectl)),
		tree,
		collector.Options{
			Controller:       controller,
			ControllerMarker: cfg.Collect.ControllerMarker,
			MaxParallel:      cfg.Collect.MaxParallel,
			FailFast:         cfg.Collect.FailFast,
			HostFacts:        cfg.Collect.HostFacts,
		},
		collector.WithLogger(logger),
		collector.WithMetrics(metrics),
	)

	report, runErr := c.Run(ctx)
	interrupted := runErr != nil && collector.IsInterrupted(runErr)
	if report == nil || (runErr != nil && !interrupted) {
		return runErr
	}

	result, err := archive.Seal(tree.Dir(), dest, sealOptions(runID, kube, report, cfg.Output.Level))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if interrupted {
		fmt.Fprintf(out, "Partial log tarfile written to %s\n", result.Path)
		return runErr
	}
	fmt.Fprintf(out, "Log tarfile written to %s\n", result.Path)

	if !cfg.Upload.Enabled() {
		return nil
	}
	uploader, err := upload.New(cfg.Upload, upload.WithLogger(logger))
	if err != nil {
		return err
	}
	loc, err := uploader.Upload(ctx, result.Path, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Log tarfile uploaded to %s\n", loc)
	return nil
}

// outputPath resolves the archive destination. An empty path selects a
// timestamped name in the working directory.
func outputPath(configured string, at time.Time) (string, error) {
	p := configured
	if p == "" {
		p = at.Format(archiveTimeLayout) + ".tar.gz"
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", core.ErrValidation(core.CodeInvalidPath, "resolving output path").WithCause(err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return "", core.ErrValidation(core.CodeInvalidPath, fmt.Sprintf("output path %s is a directory", abs))
	}
	return abs, nil
}

func sealOptions(runID string, kube *kubectl.KubeconfigInfo, report *collector.Report, level int) archive.SealOptions {
	partitions := make([]string, 0, len(report.Partitions))
	for _, p := range report.Partitions {
		partitions = append(partitions, p.Namespace)
	}
	placeholders := make(map[string]string, len(report.Placeholders))
	for _, p := range report.Placeholders {
		placeholders[p.Path] = p.Error
	}
	return archive.SealOptions{
		RunID:       runID,
		ToolVersion: appVersion,
		Controller:  report.Controller,
		Cluster: archive.ClusterInfo{
			Context: kube.Context,
			Cluster: kube.Cluster,
			Server:  kube.Server,
		},
		Partitions:   partitions,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
		Complete:     report.Complete,
		Placeholders: placeholders,
		Level:        level,
	}
}
