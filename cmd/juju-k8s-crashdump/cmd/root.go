package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version info - set via SetVersion()
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// rootFlags holds flags that are not bound to configuration keys.
type rootFlags struct {
	cfgFile string
}

// NewRootCmd builds the command tree. Each call returns an independent tree
// with its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "juju-k8s-crashdump <kubeconfig> <controller>",
		Short: "Collect diagnostics from a juju controller on Kubernetes",
		Long: `juju-k8s-crashdump collects resource descriptions, pod logs, juju status,
debug logs, bundles and database dumps from a juju controller running on
Kubernetes and from every model it manages, and writes them to a single
.tar.gz archive for offline triage.

Failed collections are recorded as files holding the error instead of
aborting the run, unless --fail-fast is given.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, v, flags, args[0], args[1])
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.cfgFile, "config", "",
		"config file (default: ./.crashdump.yaml or ~/.config/juju-k8s-crashdump/config.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "auto", "log format (auto, text, json)")

	f := root.Flags()
	f.String("output_path", "", "archive path (default: ./<YYYY-MM-DD-HH.MM.SS>.tar.gz)")
	f.Int("retry-count", 2, "retries after a failed juju or kubectl call")
	f.Duration("retry-delay", defaultRetryDelay, "delay between retries")
	f.Int("max-parallel", 4, "partitions and resource kinds collected concurrently")
	f.Int("max-processes", 4, "juju and kubectl processes running at once")
	f.Duration("timeout", 0, "deadline for the whole run, 0 for none")
	f.Bool("fail-fast", false, "abort on the first failed collection")

	bindings := map[string]string{
		"log.level":             "log-level",
		"log.format":            "log-format",
		"output.path":           "output_path",
		"retry.count":           "retry-count",
		"retry.delay":           "retry-delay",
		"collect.max_parallel":  "max-parallel",
		"collect.max_processes": "max-processes",
		"collect.timeout":       "timeout",
		"collect.fail_fast":     "fail-fast",
	}
	for key, name := range bindings {
		flag := f.Lookup(name)
		if flag == nil {
			flag = pf.Lookup(name)
		}
		// Bind errors are nil when the flag exists
		_ = v.BindPFlag(key, flag)
	}

	root.AddCommand(newVersionCmd(), newInitCmd())
	return root
}

// Execute runs the command tree with os.Args and reports errors on stderr.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext is Execute with a parent context.
func ExecuteContext(ctx context.Context) error {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// SetVersion injects build information.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}
