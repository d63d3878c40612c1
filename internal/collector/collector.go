// Package collector walks the partitions of a juju controller on
// Kubernetes and stages every diagnostic artifact into a staging tree.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/adapters/juju"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/adapters/kubectl"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/logging"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/staging"
)

// MetaDir holds files describing the run itself. Its name cannot be a juju
// model or Kubernetes namespace.
const MetaDir = "_crashdump"

var statusFormats = []juju.Format{juju.FormatTabular, juju.FormatYAML}

// Options tunes a collection run.
type Options struct {
	// Controller is the juju controller to collect.
	Controller string
	// ControllerMarker excludes models whose name contains it.
	ControllerMarker string
	// MaxParallel bounds concurrently collected partitions, and resource
	// kinds within a partition. 1 collects strictly in order.
	MaxParallel int
	// FailFast aborts on the first failed fetch. The bundle export is
	// always tolerated.
	FailFast bool
	// HostFacts writes the collector host description.
	HostFacts bool
}

// Collector runs the collection pipeline.
type Collector struct {
	juju    juju.Client
	kube    kubectl.Client
	tree    *staging.Tree
	opts    Options
	logger  *logging.Logger
	metrics *diagnostics.Metrics

	report reportBuilder
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records artifact counts and writes the metrics exposition
// into the run metadata.
func WithMetrics(m *diagnostics.Metrics) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// New creates a collector writing into tree.
func New(jc juju.Client, kc kubectl.Client, tree *staging.Tree, opts Options, options ...Option) *Collector {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	c := &Collector{
		juju:   jc,
		kube:   kc,
		tree:   tree,
		opts:   opts,
		logger: logging.NewNop(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Discover lists the partitions to collect.
func (c *Collector) Discover(ctx context.Context) ([]Partition, error) {
	models, err := c.juju.Models(ctx, c.opts.Controller)
	if err != nil {
		return nil, fmt.Errorf("discovering partitions: %w", err)
	}
	parts := Partitions(c.opts.Controller, models, c.opts.ControllerMarker)
	c.logger.Info("partitions discovered",
		"controller", c.opts.Controller,
		"models", len(models),
		"partitions", len(parts),
	)
	return parts, nil
}

// Run collects every partition into the staging tree. The returned report
// is non-nil whenever discovery succeeded. When ctx ends early the report
// is marked incomplete and the run metadata is still written, so the caller
// can seal what was collected.
func (c *Collector) Run(ctx context.Context) (*Report, error) {
	started := time.Now().UTC()

	parts, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Controller: c.opts.Controller,
		Partitions: parts,
		StartedAt:  started,
	}

	runErr := c.collect(ctx, parts)
	if runErr != nil && ctx.Err() == nil {
		c.finish(report, false)
		return report, runErr
	}

	if err := c.writeMeta(); err != nil {
		c.finish(report, false)
		return report, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		c.finish(report, false)
		c.logger.Warn("collection interrupted", "error", ctxErr, "artifacts", report.Artifacts)
		return report, fmt.Errorf("collection interrupted: %w", ctxErr)
	}

	c.finish(report, true)
	c.logger.Info("collection finished",
		"artifacts", report.Artifacts,
		"placeholders", len(report.Placeholders),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (c *Collector) finish(r *Report, complete bool) {
	c.report.fill(r)
	r.FinishedAt = time.Now().UTC()
	r.Complete = complete
}

func (c *Collector) collect(ctx context.Context, parts []Partition) error {
	if err := c.versionBanner(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxParallel)
	for _, p := range parts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer diagnostics.RecoverInto(&err, "partition "+p.Namespace)
			return c.collectPartition(gctx, p)
		})
	}
	return g.Wait()
}

func (c *Collector) versionBanner(ctx context.Context) error {
	banners := []struct {
		rel    string
		format kubectl.VersionFormat
	}{
		{"kubernetes-version.txt", kubectl.VersionText},
		{"kubernetes-version.yaml", kubectl.VersionYAML},
	}
	for _, b := range banners {
		err := c.capture(ctx, c.logger, b.rel, false, func(ctx context.Context) (string, error) {
			return c.kube.Version(ctx, b.format)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) collectPartition(ctx context.Context, p Partition) error {
	logger := c.logger.WithPartition(p.Namespace)
	logger.Info("collecting partition", "model", p.Model)

	if err := c.tree.Mkdir(p.Namespace); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxParallel)
	for _, kind := range kubectl.Kinds() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer diagnostics.RecoverInto(&err, p.Namespace+"/"+string(kind))
			return c.collectKind(gctx, logger.WithKind(string(kind)), p, kind)
		})
	}
	if !p.IsController() && gctx.Err() == nil {
		g.Go(func() (err error) {
			defer diagnostics.RecoverInto(&err, "model "+p.Model)
			return c.collectModel(gctx, logger, p)
		})
	}
	return g.Wait()
}

func (c *Collector) collectKind(ctx context.Context, logger *logging.Logger, p Partition, kind kubectl.ResourceKind) error {
	dir := path.Join(p.Namespace, string(kind))
	if err := c.tree.Mkdir(dir); err != nil {
		return err
	}

	names, err := c.kube.ResourceNames(ctx, p.Namespace, kind)
	if err != nil {
		return c.fail(ctx, logger, path.Join(dir, "list-error.txt"), false, err)
	}
	logger.Debug("resources listed", "count", len(names))

	for _, name := range names {
		err := c.capture(ctx, logger, path.Join(dir, "describe-"+name+".txt"), false, func(ctx context.Context) (string, error) {
			return c.kube.Describe(ctx, p.Namespace, kind, name)
		})
		if err != nil {
			return err
		}
		if !kind.HasLogs() {
			continue
		}
		err = c.capture(ctx, logger, path.Join(dir, name+".log"), false, func(ctx context.Context) (string, error) {
			return c.kube.PodLogs(ctx, p.Namespace, name)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) collectModel(ctx context.Context, logger *logging.Logger, p Partition) error {
	var statusYAML string
	for _, f := range statusFormats {
		rel := path.Join(p.Namespace, "juju-status."+f.Extension())
		out, err := c.juju.Status(ctx, p.Controller, p.Model, f)
		if err != nil {
			if err := c.fail(ctx, logger, rel, false, err); err != nil {
				return err
			}
			continue
		}
		if err := c.write(rel, out, nil); err != nil {
			return err
		}
		if f == juju.FormatYAML {
			statusYAML = out
		}
	}

	steps := []struct {
		rel       string
		tolerated bool
		fetch     func(context.Context) (string, error)
	}{
		{"debug-log.txt", false, func(ctx context.Context) (string, error) {
			return c.juju.DebugLog(ctx, p.Controller, p.Model)
		}},
		{"bundle.yaml", true, func(ctx context.Context) (string, error) {
			return c.juju.ExportBundle(ctx, p.Controller, p.Model)
		}},
		{"db-dump.yaml", false, func(ctx context.Context) (string, error) {
			return c.juju.DumpDB(ctx, p.Controller, p.Model, juju.FormatYAML)
		}},
	}
	for _, s := range steps {
		if err := c.capture(ctx, logger, path.Join(p.Namespace, s.rel), s.tolerated, s.fetch); err != nil {
			return err
		}
	}

	if statusYAML == "" {
		return nil
	}
	return c.collectStatusLogs(ctx, logger, p, statusYAML)
}

func (c *Collector) collectStatusLogs(ctx context.Context, logger *logging.Logger, p Partition, statusYAML string) error {
	dir := path.Join(p.Namespace, "status-log")
	ents, err := juju.ParseStatus(statusYAML)
	if err != nil {
		return c.fail(ctx, logger, path.Join(dir, "parse-error.txt"), false, err)
	}

	for _, f := range statusFormats {
		results, err := juju.FanOutStatusLogs(ctx, c.juju, p.Controller, p.Model,
			ents.Applications, ents.Units, f, c.opts.MaxParallel)
		if err != nil {
			return err
		}
		for _, res := range results {
			rel := path.Join(dir, juju.ArtifactName(res.Kind, res.Name)+"."+f.Extension())
			if res.Err != nil {
				if err := c.fail(ctx, logger, rel, false, res.Err); err != nil {
					return err
				}
				continue
			}
			if err := c.write(rel, res.Output, nil); err != nil {
				return err
			}
		}
	}
	logger.Debug("status logs collected",
		"applications", len(ents.Applications),
		"units", len(ents.Units),
	)
	return nil
}

// capture fetches one artifact and stages it, or stages a placeholder when
// the fetch fails and the failure may be isolated.
func (c *Collector) capture(
	ctx context.Context,
	logger *logging.Logger,
	rel string,
	tolerated bool,
	fetch func(context.Context) (string, error),
) error {
	out, err := fetch(ctx)
	if err != nil {
		return c.fail(ctx, logger, rel, tolerated, err)
	}
	return c.write(rel, out, nil)
}

// fail handles a failed fetch for rel. Cancellation and fail-fast abort;
// otherwise the error text is staged in place of the artifact.
func (c *Collector) fail(ctx context.Context, logger *logging.Logger, rel string, tolerated bool, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("collecting %s: %w", rel, ctxErr)
	}
	if c.opts.FailFast && !tolerated {
		return fmt.Errorf("collecting %s: %w", rel, err)
	}

	if tolerated {
		logger.Info("artifact unavailable, recording error", "artifact", rel, "error", err)
	} else {
		logger.Warn("artifact collection failed, recording error", "artifact", rel, "error", err)
	}
	return c.write(rel, err.Error(), &Placeholder{Path: rel, Error: err.Error()})
}

func (c *Collector) write(rel, content string, placeholder *Placeholder) error {
	if err := c.tree.WriteString(rel, content); err != nil {
		return fmt.Errorf("staging %s: %w", rel, err)
	}
	c.report.artifact(placeholder)
	if c.metrics != nil {
		c.metrics.ArtifactWritten(placeholder != nil)
	}
	return nil
}

func (c *Collector) writeMeta() error {
	if c.opts.HostFacts {
		facts := diagnostics.CollectHostFacts(c.tree.Dir())
		data, err := json.MarshalIndent(facts, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding host facts: %w", err)
		}
		if err := c.write(path.Join(MetaDir, "host.json"), string(data), nil); err != nil {
			return err
		}
	}

	if c.metrics != nil {
		// The exposition counts itself.
		c.metrics.ArtifactWritten(false)
		data, err := c.metrics.Exposition()
		if err != nil {
			return err
		}
		if err := c.tree.WriteFile(path.Join(MetaDir, "metrics.prom"), data); err != nil {
			return fmt.Errorf("staging metrics: %w", err)
		}
		c.report.artifact(nil)
	}
	return nil
}

// IsInterrupted reports whether err ended a run early because its context
// was cancelled or timed out.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
