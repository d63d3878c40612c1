package collector

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/adapters/juju"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/adapters/kubectl"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/command"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/staging"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/testutil"
)

const kubeconfig = "/tmp/kubeconfig"

type harness struct {
	runner *command.MockRunner
	tree   *staging.Tree
	opts   Options
	extra  []Option
}

func newHarness(t *testing.T, cluster *testutil.Cluster) *harness {
	t.Helper()
	tree, err := staging.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })

	return &harness{
		runner: cluster.Runner(),
		tree:   tree,
		opts: Options{
			Controller:       cluster.Controller,
			ControllerMarker: DefaultControllerMarker,
			MaxParallel:      4,
		},
	}
}

func (h *harness) run(ctx context.Context) (*Report, error) {
	c := New(juju.NewCmdClient(h.runner), kubectl.NewCmdClient(h.runner, kubeconfig), h.tree, h.opts, h.extra...)
	return c.Run(ctx)
}

func (h *harness) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.tree.Dir(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// entries lists every file and directory under dir, relative to the tree.
func (h *harness) entries(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	root := filepath.Join(h.tree.Dir(), filepath.FromSlash(dir))
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, _ := filepath.Rel(h.tree.Dir(), p)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			rel += "/"
		}
		out = append(out, rel)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func TestPartitions(t *testing.T) {
	tests := []struct {
		name   string
		models []string
		marker string
		want   []string
	}{
		{"no models", nil, "controller", []string{"controller-micro"}},
		{"controller model excluded", []string{"controller", "default"}, "controller", []string{"controller-micro", "default"}},
		{"marker is a substring match", []string{"my-controller-tests", "cos", "default"}, "controller", []string{"controller-micro", "cos", "default"}},
		{"duplicates dropped", []string{"default", "default", "controller-micro"}, "", []string{"controller-micro", "default"}},
		{"empty marker keeps everything", []string{"controller"}, "", []string{"controller-micro", "controller"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := Partitions("micro", tt.models, tt.marker)
			got := make([]string, 0, len(parts))
			for _, p := range parts {
				got = append(got, p.Namespace)
				assert.Equal(t, "micro", p.Controller)
			}
			assert.Equal(t, tt.want, got)
			assert.True(t, parts[0].IsController())
			for _, p := range parts[1:] {
				assert.False(t, p.IsController())
				assert.Equal(t, p.Namespace, p.Model)
			}
		})
	}
}

func TestRun_ModelWithPods(t *testing.T) {
	cluster := testutil.NewCluster(kubeconfig, "micro").
		WithModel("default").
		WithResources("default", "pod", "a", "b")
	h := newHarness(t, cluster)

	report, err := h.run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.Empty(t, report.Placeholders)

	assert.Equal(t, []string{
		"default/pod/a.log",
		"default/pod/b.log",
		"default/pod/describe-a.txt",
		"default/pod/describe-b.txt",
	}, h.entries(t, "default/pod"))

	assert.Equal(t, testutil.Describe("pod", "default", "a"), h.read(t, "default/pod/describe-a.txt"))
	assert.Equal(t, testutil.PodLog("default", "b"), h.read(t, "default/pod/b.log"))

	assert.Equal(t, testutil.StatusText("default"), h.read(t, "default/juju-status.txt"))
	assert.Contains(t, h.read(t, "default/juju-status.yaml"), "applications: {}")
	assert.Equal(t, testutil.DebugLog("default"), h.read(t, "default/debug-log.txt"))
	assert.Equal(t, testutil.Bundle("default"), h.read(t, "default/bundle.yaml"))
	assert.Equal(t, testutil.DBDump("default"), h.read(t, "default/db-dump.yaml"))

	assert.Equal(t, testutil.VersionText, h.read(t, "kubernetes-version.txt"))
	assert.Equal(t, testutil.VersionYAML, h.read(t, "kubernetes-version.yaml"))

	for _, kind := range kubectl.Kinds() {
		assert.DirExists(t, filepath.Join(h.tree.Dir(), "default", string(kind)))
		assert.DirExists(t, filepath.Join(h.tree.Dir(), "controller-micro", string(kind)))
	}
	assert.NoDirExists(t, filepath.Join(h.tree.Dir(), "default", "status-log"))

	// 2 banners, 4 pod files, 5 juju artifacts.
	assert.Equal(t, 11, report.Artifacts)
	assert.Equal(t, []Partition{
		{Namespace: "controller-micro", Controller: "micro"},
		{Namespace: "default", Model: "default", Controller: "micro"},
	}, report.Partitions)

	dump := h.runner.Invocations()
	var dumpCalls int
	for _, inv := range dump {
		if inv.Subcommand() == "dump-db" {
			dumpCalls++
			assert.Equal(t, "developer-mode", inv.Env["JUJU_DEV_FEATURE_FLAGS"])
		} else {
			assert.Empty(t, inv.Env, inv.String())
		}
	}
	assert.Equal(t, 1, dumpCalls)
}

func TestRun_ControllerOnly(t *testing.T) {
	cluster := testutil.NewCluster(kubeconfig, "micro").
		WithResources("controller-micro", "statefulset", "controller")
	h := newHarness(t, cluster)

	report, err := h.run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Partitions, 1)

	entries := h.entries(t, "controller-micro")
	assert.Equal(t, []string{
		"controller-micro/deployment/",
		"controller-micro/pod/",
		"controller-micro/pvc/",
		"controller-micro/replicaset/",
		"controller-micro/service/",
		"controller-micro/statefulset/",
		"controller-micro/statefulset/describe-controller.txt",
	}, entries)

	for _, sub := range []string{"status", "debug-log", "export-bundle", "dump-db", "show-status-log"} {
		assert.Zero(t, h.runner.CallCount("juju "+sub), sub)
	}
	assert.Equal(t, []string{
		"controller-micro/statefulset/describe-controller.txt",
		"kubernetes-version.txt",
		"kubernetes-version.yaml",
	}, h.tree.Files())
}

func TestRun_BundleFailureIsTolerated(t *testing.T) {
	for _, failFast := range []bool{false, true} {
		t.Run(map[bool]string{false: "isolating", true: "fail-fast"}[failFast], func(t *testing.T) {
			cluster := testutil.NewCluster(kubeconfig, "micro").WithModel("default")
			h := newHarness(t, cluster)
			h.opts.FailFast = failFast
			h.runner.OnCommand("juju export-bundle --model micro:default").
				ReturnError(errors.New("ERROR cannot export bundle: application offers are not supported"))

			report, err := h.run(context.Background())
			require.NoError(t, err)
			assert.True(t, report.Complete)

			assert.Equal(t, "ERROR cannot export bundle: application offers are not supported",
				h.read(t, "default/bundle.yaml"))
			assert.Equal(t, testutil.DBDump("default"), h.read(t, "default/db-dump.yaml"))
			require.Len(t, report.Placeholders, 1)
			assert.Equal(t, "default/bundle.yaml", report.Placeholders[0].Path)
		})
	}
}

func TestRun_IsolatesFailures(t *testing.T) {
	cluster := testutil.NewCluster(kubeconfig, "micro").
		WithModel("default").
		WithModel("cos").
		WithResources("default", "pod", "a", "b").
		WithResources("cos", "service", "grafana")
	h := newHarness(t, cluster)
	h.runner.OnCommand(cluster.Kubectl("describe pod a --namespace default")).ReturnError(errors.New("pods \"a\" not found"))
	h.runner.OnCommand(cluster.Kubectl("get pvc --namespace cos --output yaml")).ReturnError(errors.New("forbidden"))
	h.runner.OnCommand("juju debug-log --model micro:cos --replay --no-tail --date").ReturnError(errors.New("debug-log unavailable"))

	report, err := h.run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Complete)

	assert.Equal(t, `pods "a" not found`, h.read(t, "default/pod/describe-a.txt"))
	assert.Equal(t, testutil.PodLog("default", "a"), h.read(t, "default/pod/a.log"))
	assert.Equal(t, testutil.Describe("pod", "default", "b"), h.read(t, "default/pod/describe-b.txt"))
	assert.Contains(t, h.read(t, "cos/pvc/list-error.txt"), "forbidden")
	assert.Equal(t, testutil.Describe("service", "cos", "grafana"), h.read(t, "cos/service/describe-grafana.txt"))
	assert.Equal(t, "debug-log unavailable", h.read(t, "cos/debug-log.txt"))
	assert.Equal(t, testutil.DBDump("cos"), h.read(t, "cos/db-dump.yaml"))

	paths := make([]string, 0, len(report.Placeholders))
	for _, p := range report.Placeholders {
		paths = append(paths, p.Path)
	}
	assert.Equal(t, []string{"cos/debug-log.txt", "cos/pvc/list-error.txt", "default/pod/describe-a.txt"}, paths)
}

func TestRun_FailFastAborts(t *testing.T) {
	cluster := testutil.NewCluster(kubeconfig, "micro").
		WithModel("default").
		WithResources("default", "pod", "a")
	h := newHarness(t, cluster)
	h.opts.FailFast = true
	h.opts.MaxParallel = 1
	h.runner.OnCommand(cluster.Kubectl("describe pod a --namespace default")).ReturnError(errors.New("boom"))

	report, err := h.run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "default/pod/describe-a.txt")
	assert.ErrorContains(t, err, "boom")
	assert.False(t, IsInterrupted(err))
	require.NotNil(t, report)
	assert.False(t, report.Complete)
	assert.NoFileExists(t, filepath.Join(h.tree.Dir(), "default", "pod", "describe-a.txt"))
}

func TestRun_DiscoveryFailureAborts(t *testing.T) {
	h := newHarness(t, testutil.NewCluster(kubeconfig, "micro"))
	h.runner.OnCommand("juju models --controller micro --format yaml").ReturnError(errors.New("no controller"))

	report, err := h.run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Empty(t, h.tree.Files())
	assert.Zero(t, h.runner.CallCount("kubectl"))
}

func TestRun_MalformedListIsolated(t *testing.T) {
	cluster := testutil.NewCluster(kubeconfig, "micro")
	h := newHarness(t, cluster)
	h.runner.OnCommand(cluster.Kubectl("get pod --namespace controller-micro --output yaml")).Return("items: {broken")

	report, err := h.run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Placeholders, 1)
	assert.Equal(t, "controller-micro/pod/list-error.txt", report.Placeholders[0].Path)
}

func TestRun_StatusLogs(t *testing.T) {
	cluster := testutil.NewCluster(kubeconfig, "micro").
		WithModel("default").
		WithApplication("default", "mysql", "mysql/0", "mysql/1").
		WithApplication("default", "app", "app/0")
	h := newHarness(t, cluster)
	h.runner.OnCommand("juju show-status-log --model micro:default --format yaml --type unit mysql/1").
		ReturnError(errors.New("unit history unavailable"))

	report, err := h.run(context.Background())
	require.NoError(t, err)

	var want []string
	for _, name := range []string{"application-app", "application-mysql", "unit-app-0", "unit-mysql-0", "unit-mysql-1"} {
		want = append(want, "default/status-log/"+name+".txt", "default/status-log/"+name+".yaml")
	}
	sort.Strings(want)
	assert.Equal(t, want, h.entries(t, "default/status-log"))

	assert.Equal(t, testutil.StatusLog("unit", "mysql/0", "yaml"), h.read(t, "default/status-log/unit-mysql-0.yaml"))
	assert.Equal(t, testutil.StatusLog("application", "app", "tabular"), h.read(t, "default/status-log/application-app.txt"))
	assert.Equal(t, "unit history unavailable", h.read(t, "default/status-log/unit-mysql-1.yaml"))
	require.Len(t, report.Placeholders, 1)

	// One call per entity per format.
	assert.Equal(t, 10, h.runner.CallCount("juju show-status-log"))
}

func TestRun_StatusParseFailure(t *testing.T) {
	h := newHarness(t, testutil.NewCluster(kubeconfig, "micro").WithModel("default"))
	h.runner.OnCommand("juju status --model micro:default --format yaml").Return("applications: [oops]")

	report, err := h.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "applications: [oops]", h.read(t, "default/juju-status.yaml"))
	require.Len(t, report.Placeholders, 1)
	assert.Equal(t, "default/status-log/parse-error.txt", report.Placeholders[0].Path)
}

func TestRun_Sequential(t *testing.T) {
	cluster := testutil.NewCluster(kubeconfig, "micro").
		WithModel("default").
		WithResources("controller-micro", "pod", "controller-0").
		WithResources("default", "pod", "a")
	h := newHarness(t, cluster)
	h.opts.MaxParallel = 1

	_, err := h.run(context.Background())
	require.NoError(t, err)

	var order []string
	for _, inv := range h.runner.Invocations() {
		order = append(order, inv.Subcommand())
	}
	joined := strings.Join(order, ",")
	assert.True(t, strings.HasPrefix(joined, "models,version,version,get,describe,logs,get,get,get,get,get,get,describe,logs"), joined)
	assert.True(t, strings.HasSuffix(joined, "status,status,debug-log,export-bundle,dump-db"), joined)
}

func TestRun_InterruptedStillWritesMetadata(t *testing.T) {
	cluster := testutil.NewCluster(kubeconfig, "micro").WithModel("default")
	h := newHarness(t, cluster)
	h.opts.HostFacts = true
	h.extra = []Option{WithMetrics(diagnostics.NewMetrics())}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.run(ctx)
	require.Error(t, err)
	assert.True(t, IsInterrupted(err))
	require.NotNil(t, report)
	assert.False(t, report.Complete)

	assert.FileExists(t, filepath.Join(h.tree.Dir(), MetaDir, "host.json"))
	assert.FileExists(t, filepath.Join(h.tree.Dir(), MetaDir, "metrics.prom"))
	assert.NoDirExists(t, filepath.Join(h.tree.Dir(), "default"))
}

func TestRun_Metadata(t *testing.T) {
	cluster := testutil.NewCluster(kubeconfig, "micro").
		WithModel("default").
		WithResources("default", "pod", "a")
	h := newHarness(t, cluster)
	h.opts.HostFacts = true
	metrics := diagnostics.NewMetrics()
	h.extra = []Option{WithMetrics(metrics)}
	h.runner.OnCommand("juju export-bundle --model micro:default").ReturnError(errors.New("no bundle"))

	report, err := h.run(context.Background())
	require.NoError(t, err)

	var facts diagnostics.HostFacts
	require.NoError(t, json.Unmarshal([]byte(h.read(t, "_crashdump/host.json")), &facts))
	assert.NotEmpty(t, facts.OS)

	prom := h.read(t, "_crashdump/metrics.prom")
	assert.Contains(t, prom, `crashdump_artifacts_total{type="placeholder"} 1`)
	assert.Contains(t, prom, "crashdump_artifacts_total{type=\"output\"}")

	// 2 banners, 2 pod files, 5 juju artifacts, host facts, metrics.
	assert.Equal(t, 11, report.Artifacts)
}
