// Package juju wraps the juju CLI operations needed to collect model-level
// diagnostics.
package juju

import (
	"context"
	"fmt"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/command"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/decode"
)

// Format selects the output format of a juju command.
type Format string

const (
	FormatTabular Format = "tabular"
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
)

// Extension returns the artifact file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatJSON:
		return "json"
	default:
		return "txt"
	}
}

// EntityKind is the kind of entity a status log belongs to.
type EntityKind string

const (
	EntityApplication EntityKind = "application"
	EntityUnit        EntityKind = "unit"
)

// DeveloperModeFlag is the feature flag dump-db requires.
const DeveloperModeFlag = "developer-mode"

// StatusLogger fetches the status history of a single entity.
type StatusLogger interface {
	StatusLog(ctx context.Context, controller, model string, kind EntityKind, name string, format Format) (string, error)
}

// Client is the set of juju operations used during collection.
type Client interface {
	StatusLogger
	Models(ctx context.Context, controller string) ([]string, error)
	Status(ctx context.Context, controller, model string, format Format) (string, error)
	DebugLog(ctx context.Context, controller, model string) (string, error)
	ExportBundle(ctx context.Context, controller, model string) (string, error)
	DumpDB(ctx context.Context, controller, model string, format Format) (string, error)
}

// CmdClient implements Client on top of the juju binary.
type CmdClient struct {
	runner command.Runner
	binary string
}

// Option configures a CmdClient.
type Option func(*CmdClient)

// WithBinary overrides the juju executable name or path.
func WithBinary(binary string) Option {
	return func(c *CmdClient) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// NewCmdClient creates a client that runs juju through runner.
func NewCmdClient(runner command.Runner, opts ...Option) *CmdClient {
	c := &CmdClient{runner: runner, binary: "juju"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CmdClient) invocation(subcommand string, args ...command.Arg) command.Invocation {
	return command.New(command.Positional(c.binary), command.Positional(subcommand)).With(args...)
}

func modelRef(controller, model string) command.Arg {
	return command.Flag("model", controller+":"+model)
}

// Models returns the short names of all models on the controller.
func (c *CmdClient) Models(ctx context.Context, controller string) ([]string, error) {
	if controller == "" {
		return nil, core.ErrValidation(core.CodeEmptyController, "controller name is required")
	}
	out, err := c.runner.Run(ctx, c.invocation("models",
		command.Flag("controller", controller),
		command.Flag("format", string(FormatYAML)),
	))
	if err != nil {
		return nil, fmt.Errorf("listing models of %s: %w", controller, err)
	}

	tree, err := decode.YAML(out)
	if err != nil {
		return nil, fmt.Errorf("parsing models of %s: %w", controller, err)
	}
	models, err := tree.List("models")
	if err != nil {
		return nil, fmt.Errorf("parsing models of %s: %w", controller, err)
	}

	names := make([]string, 0, len(models))
	for _, m := range models {
		name, err := m.String("short-name")
		if err != nil {
			return nil, fmt.Errorf("parsing models of %s: %w", controller, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Status returns the model status. The tabular form includes relations.
func (c *CmdClient) Status(ctx context.Context, controller, model string, format Format) (string, error) {
	args := []command.Arg{modelRef(controller, model), command.Flag("format", string(format))}
	if format == FormatTabular {
		args = append(args, command.Switch("relations"))
	}
	return c.runner.Run(ctx, c.invocation("status", args...))
}

// DebugLog returns the full replayed debug log of the model.
func (c *CmdClient) DebugLog(ctx context.Context, controller, model string) (string, error) {
	return c.runner.Run(ctx, c.invocation("debug-log",
		modelRef(controller, model),
		command.Switch("replay"),
		command.Switch("no-tail"),
		command.Switch("date"),
	))
}

// ExportBundle returns the model as a bundle. It fails for models juju
// cannot express as a bundle.
func (c *CmdClient) ExportBundle(ctx context.Context, controller, model string) (string, error) {
	return c.runner.Run(ctx, c.invocation("export-bundle", modelRef(controller, model)))
}

// DumpDB returns the model database dump.
func (c *CmdClient) DumpDB(ctx context.Context, controller, model string, format Format) (string, error) {
	inv := c.invocation("dump-db",
		modelRef(controller, model),
		command.Flag("format", string(format)),
	).WithEnv("JUJU_DEV_FEATURE_FLAGS", DeveloperModeFlag)
	return c.runner.Run(ctx, inv)
}

// StatusLog returns the status history of one application or unit.
func (c *CmdClient) StatusLog(ctx context.Context, controller, model string, kind EntityKind, name string, format Format) (string, error) {
	return c.runner.Run(ctx, c.invocation("show-status-log",
		modelRef(controller, model),
		command.Flag("format", string(format)),
		command.Flag("type", string(kind)),
		command.Positional(name),
	))
}
