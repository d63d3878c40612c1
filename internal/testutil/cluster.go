package testutil

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/adapters/kubectl"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/command"
)

// Cluster describes a fake juju controller on Kubernetes and answers the
// juju and kubectl invocations the collector issues.
type Cluster struct {
	Kubeconfig string
	Controller string
	Models     []string
	// Resources maps namespace to kind to resource names.
	Resources map[string]map[string][]string
	// Applications maps model to application to unit names.
	Applications map[string]map[string][]string
}

// NewCluster returns a cluster with no models and no resources.
func NewCluster(kubeconfig, controller string) *Cluster {
	return &Cluster{
		Kubeconfig:   kubeconfig,
		Controller:   controller,
		Resources:    make(map[string]map[string][]string),
		Applications: make(map[string]map[string][]string),
	}
}

// WithModel adds a model to the controller.
func (c *Cluster) WithModel(name string) *Cluster {
	c.Models = append(c.Models, name)
	return c
}

// WithResources adds resources of kind to namespace.
func (c *Cluster) WithResources(namespace, kind string, names ...string) *Cluster {
	if c.Resources[namespace] == nil {
		c.Resources[namespace] = make(map[string][]string)
	}
	c.Resources[namespace][kind] = append(c.Resources[namespace][kind], names...)
	return c
}

// WithApplication adds an application and its units to model.
func (c *Cluster) WithApplication(model, app string, units ...string) *Cluster {
	if c.Applications[model] == nil {
		c.Applications[model] = make(map[string][]string)
	}
	c.Applications[model][app] = append(c.Applications[model][app], units...)
	return c
}

// ControllerNamespace is the namespace holding the controller.
func (c *Cluster) ControllerNamespace() string {
	return "controller-" + c.Controller
}

// Kubectl returns the full kubectl command line for args.
func (c *Cluster) Kubectl(args string) string {
	return fmt.Sprintf("kubectl --kubeconfig %s %s", c.Kubeconfig, args)
}

func (c *Cluster) model(m string) string {
	return c.Controller + ":" + m
}

// Runner returns a MockRunner answering every invocation for the cluster.
// Responses can be overridden afterwards with OnCommand.
func (c *Cluster) Runner() *command.MockRunner {
	r := command.NewMockRunner()

	models := append([]string{"controller"}, c.Models...)
	var sb strings.Builder
	sb.WriteString("models:\n")
	for _, m := range models {
		fmt.Fprintf(&sb, "- name: admin/%s\n  short-name: %s\n  type: caas\n", m, m)
	}
	r.OnCommand(fmt.Sprintf("juju models --controller %s --format yaml", c.Controller)).Return(sb.String())

	r.OnCommand(c.Kubectl("version")).Return(VersionText)
	r.OnCommand(c.Kubectl("version --output yaml")).Return(VersionYAML)

	namespaces := append([]string{c.ControllerNamespace()}, c.Models...)
	for _, ns := range namespaces {
		for _, k := range kubectl.Kinds() {
			kind := string(k)
			names := c.Resources[ns][kind]
			r.OnCommand(c.Kubectl(fmt.Sprintf("get %s --namespace %s --output yaml", kind, ns))).
				Return(ResourceList(kind, ns, names...))
			for _, name := range names {
				r.OnCommand(c.Kubectl(fmt.Sprintf("describe %s %s --namespace %s", kind, name, ns))).
					Return(Describe(kind, ns, name))
				if kind == "pod" {
					r.OnCommand(c.Kubectl(fmt.Sprintf("logs %s --namespace %s --all-containers --prefix --ignore-errors", name, ns))).
						Return(PodLog(ns, name))
				}
			}
		}
	}

	for _, m := range c.Models {
		ref := c.model(m)
		r.OnCommand(fmt.Sprintf("juju status --model %s --format tabular --relations", ref)).
			Return(StatusText(m))
		r.OnCommand(fmt.Sprintf("juju status --model %s --format yaml", ref)).
			Return(c.statusYAML(m))
		r.OnCommand(fmt.Sprintf("juju debug-log --model %s --replay --no-tail --date", ref)).
			Return(DebugLog(m))
		r.OnCommand(fmt.Sprintf("juju export-bundle --model %s", ref)).
			Return(Bundle(m))
		r.OnCommand(fmt.Sprintf("juju dump-db --model %s --format yaml", ref)).
			Return(DBDump(m))
		for app, units := range c.Applications[m] {
			for _, format := range []string{"tabular", "yaml"} {
				r.OnCommand(fmt.Sprintf("juju show-status-log --model %s --format %s --type application %s", ref, format, app)).
					Return(StatusLog("application", app, format))
				for _, u := range units {
					r.OnCommand(fmt.Sprintf("juju show-status-log --model %s --format %s --type unit %s", ref, format, u)).
						Return(StatusLog("unit", u, format))
				}
			}
		}
	}
	return r
}

func (c *Cluster) statusYAML(model string) string {
	apps := c.Applications[model]
	if len(apps) == 0 {
		return fmt.Sprintf("model:\n  name: %s\n  type: caas\napplications: {}\n", model)
	}

	names := make([]string, 0, len(apps))
	for app := range apps {
		names = append(names, app)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "model:\n  name: %s\n  type: caas\napplications:\n", model)
	for _, app := range names {
		fmt.Fprintf(&sb, "  %s:\n    charm: %s\n", app, app)
		if len(apps[app]) == 0 {
			continue
		}
		sb.WriteString("    units:\n")
		for _, u := range apps[app] {
			fmt.Fprintf(&sb, "      %s:\n        workload-status:\n          current: active\n", u)
		}
	}
	return sb.String()
}

// Canned tool outputs. Each embeds its inputs so tests can tell artifacts
// apart.
const (
	VersionText = "Client Version: v1.31.0\nServer Version: v1.31.2\n"
	VersionYAML = "clientVersion:\n  gitVersion: v1.31.0\nserverVersion:\n  gitVersion: v1.31.2\n"
)

// ResourceList renders a kubectl get -o yaml list.
func ResourceList(kind, namespace string, names ...string) string {
	if len(names) == 0 {
		return "apiVersion: v1\nitems: []\nkind: List\nmetadata:\n  resourceVersion: \"\"\n"
	}
	var sb strings.Builder
	sb.WriteString("apiVersion: v1\nkind: List\nitems:\n")
	for _, n := range names {
		fmt.Fprintf(&sb, "- apiVersion: v1\n  kind: %s\n  metadata:\n    name: %s\n    namespace: %s\n", kind, n, namespace)
	}
	return sb.String()
}

// Describe renders kubectl describe output.
func Describe(kind, namespace, name string) string {
	return fmt.Sprintf("Name: %s\nNamespace: %s\nKind: %s\n", name, namespace, kind)
}

// PodLog renders kubectl logs output.
func PodLog(namespace, pod string) string {
	return fmt.Sprintf("[pod/%s/charm] %s started\n", pod, namespace)
}

// StatusText renders tabular juju status.
func StatusText(model string) string {
	return "Model  Controller  Cloud/Region\n" + model + "  ctrl  microk8s/localhost\n"
}

// DebugLog renders juju debug-log output.
func DebugLog(model string) string {
	return "machine-0: 2025-01-01 10:00:00 INFO " + model + " started\n"
}

// Bundle renders juju export-bundle output.
func Bundle(model string) string {
	return "bundle: kubernetes\nname: " + model + "\napplications: {}\n"
}

// DBDump renders juju dump-db output.
func DBDump(model string) string {
	return "model: " + model + "\ncollections: {}\n"
}

// StatusLog renders juju show-status-log output.
func StatusLog(kind, name, format string) string {
	return fmt.Sprintf("%s %s %s history\n", kind, name, format)
}
