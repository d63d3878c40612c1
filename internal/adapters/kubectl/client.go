// Package kubectl wraps the kubectl operations used to collect cluster
// resources, descriptions and logs.
package kubectl

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/command"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
)

// ResourceKind is a kubectl resource type.
type ResourceKind string

const (
	KindPod         ResourceKind = "pod"
	KindReplicaSet  ResourceKind = "replicaset"
	KindDeployment  ResourceKind = "deployment"
	KindStatefulSet ResourceKind = "statefulset"
	KindPVC         ResourceKind = "pvc"
	KindService     ResourceKind = "service"
)

// Kinds returns the resource kinds collected for every partition, in
// collection order.
func Kinds() []ResourceKind {
	return []ResourceKind{KindPod, KindReplicaSet, KindDeployment, KindStatefulSet, KindPVC, KindService}
}

// HasLogs reports whether instances of the kind produce a log artifact.
func (k ResourceKind) HasLogs() bool {
	return k == KindPod
}

// VersionFormat selects the output of kubectl version.
type VersionFormat string

const (
	VersionText VersionFormat = ""
	VersionYAML VersionFormat = "yaml"
)

// Client is the set of kubectl operations used during collection.
type Client interface {
	ResourceNames(ctx context.Context, namespace string, kind ResourceKind) ([]string, error)
	Describe(ctx context.Context, namespace string, kind ResourceKind, name string) (string, error)
	PodLogs(ctx context.Context, namespace, pod string) (string, error)
	CopyFromPod(ctx context.Context, namespace, pod, remotePath, localPath string) (string, error)
	Version(ctx context.Context, format VersionFormat) (string, error)
}

// CmdClient implements Client on top of the kubectl binary. Every
// invocation targets the cluster named by the kubeconfig.
type CmdClient struct {
	runner     command.Runner
	binary     string
	kubeconfig string
}

// Option configures a CmdClient.
type Option func(*CmdClient)

// WithBinary overrides the kubectl executable name or path.
func WithBinary(binary string) Option {
	return func(c *CmdClient) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// NewCmdClient creates a client for the cluster in kubeconfig.
func NewCmdClient(runner command.Runner, kubeconfig string, opts ...Option) *CmdClient {
	c := &CmdClient{runner: runner, binary: "kubectl", kubeconfig: kubeconfig}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CmdClient) invocation(args ...command.Arg) command.Invocation {
	return command.New(
		command.Positional(c.binary),
		command.Flag("kubeconfig", c.kubeconfig),
	).With(args...)
}

// ResourceNames lists the names of all resources of kind in namespace.
func (c *CmdClient) ResourceNames(ctx context.Context, namespace string, kind ResourceKind) ([]string, error) {
	out, err := c.runner.Run(ctx, c.invocation(
		command.Positional("get"),
		command.Positional(string(kind)),
		command.Flag("namespace", namespace),
		command.Flag("output", "yaml"),
	))
	if err != nil {
		return nil, fmt.Errorf("listing %s in %s: %w", kind, namespace, err)
	}

	names, err := parseNames(out)
	if err != nil {
		return nil, fmt.Errorf("listing %s in %s: %w", kind, namespace, err)
	}
	return names, nil
}

func parseNames(out string) ([]string, error) {
	var list metav1.PartialObjectMetadataList
	if err := yaml.Unmarshal([]byte(out), &list); err != nil {
		return nil, core.ErrParse(core.CodeMalformedOutput, "decoding resource list").WithCause(err)
	}

	names := make([]string, 0, len(list.Items))
	for i, item := range list.Items {
		if item.Name == "" {
			return nil, core.ErrParse(core.CodeMissingField,
				fmt.Sprintf("items[%d].metadata.name is missing", i))
		}
		names = append(names, item.Name)
	}
	return names, nil
}

// Describe returns the kubectl description of one resource.
func (c *CmdClient) Describe(ctx context.Context, namespace string, kind ResourceKind, name string) (string, error) {
	return c.runner.Run(ctx, c.invocation(
		command.Positional("describe"),
		command.Positional(string(kind)),
		command.Positional(name),
		command.Flag("namespace", namespace),
	))
}

// PodLogs returns the logs of every container in the pod, each line
// prefixed with its container.
func (c *CmdClient) PodLogs(ctx context.Context, namespace, pod string) (string, error) {
	return c.runner.Run(ctx, c.invocation(
		command.Positional("logs"),
		command.Positional(pod),
		command.Flag("namespace", namespace),
		command.Switch("all-containers"),
		command.Switch("prefix"),
		command.Switch("ignore-errors"),
	))
}

// CopyFromPod copies remotePath out of the pod to localPath.
func (c *CmdClient) CopyFromPod(ctx context.Context, namespace, pod, remotePath, localPath string) (string, error) {
	return c.runner.Run(ctx, c.invocation(
		command.Positional("cp"),
		command.Positional(pod+":"+remotePath),
		command.Positional(localPath),
		command.Flag("namespace", namespace),
	))
}

// Version returns the client and server version banner.
func (c *CmdClient) Version(ctx context.Context, format VersionFormat) (string, error) {
	args := []command.Arg{command.Positional("version")}
	if format != VersionText {
		args = append(args, command.Flag("output", string(format)))
	}
	return c.runner.Run(ctx, c.invocation(args...))
}
