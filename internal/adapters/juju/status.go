package juju

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/decode"
)

// Entities are the application and unit names found in a model status.
type Entities struct {
	Applications []string
	Units        []string
}

// ParseStatus extracts application and unit names, including subordinate
// units, from a YAML or JSON status document. Names are sorted.
func ParseStatus(text string) (Entities, error) {
	tree, err := decode.YAML(text)
	if err != nil {
		return Entities{}, fmt.Errorf("parsing status: %w", err)
	}
	apps, err := tree.Map("applications")
	if err != nil {
		return Entities{}, fmt.Errorf("parsing status: %w", err)
	}

	var ents Entities
	seen := make(map[string]bool)
	for _, app := range apps.Keys() {
		ents.Applications = append(ents.Applications, app)

		appTree, err := apps.Map(app)
		if err != nil {
			return Entities{}, fmt.Errorf("parsing status of %s: %w", app, err)
		}
		units, err := appTree.Map("units")
		if err != nil {
			return Entities{}, fmt.Errorf("parsing units of %s: %w", app, err)
		}
		for _, unit := range units.Keys() {
			seen[unit] = true
			unitTree, err := units.Map(unit)
			if err != nil {
				return Entities{}, fmt.Errorf("parsing unit %s: %w", unit, err)
			}
			subs, err := unitTree.Map("subordinates")
			if err != nil {
				return Entities{}, fmt.Errorf("parsing subordinates of %s: %w", unit, err)
			}
			for _, sub := range subs.Keys() {
				seen[sub] = true
			}
		}
	}

	for unit := range seen {
		ents.Units = append(ents.Units, unit)
	}
	sort.Strings(ents.Units)
	return ents, nil
}

// ArtifactName returns the file name, without extension, of an entity's
// status log. Unit names contain a slash, which is replaced by a dash.
func ArtifactName(kind EntityKind, name string) string {
	return string(kind) + "-" + strings.ReplaceAll(name, "/", "-")
}

// StatusLogResult is the outcome of fetching one entity's status log.
type StatusLogResult struct {
	Kind   EntityKind
	Name   string
	Output string
	Err    error
}

// FanOutStatusLogs fetches the status log of every application and then
// every unit, one call per entity, running at most limit calls at once.
// Results are returned in request order regardless of completion order;
// per-entity failures are carried in the result. The returned error is
// non-nil only when ctx ends before all calls were issued.
func FanOutStatusLogs(
	ctx context.Context,
	c StatusLogger,
	controller, model string,
	apps, units []string,
	format Format,
	limit int,
) ([]StatusLogResult, error) {
	results := make([]StatusLogResult, 0, len(apps)+len(units))
	for _, app := range apps {
		results = append(results, StatusLogResult{Kind: EntityApplication, Name: app})
	}
	for _, unit := range units {
		results = append(results, StatusLogResult{Kind: EntityUnit, Name: unit})
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range results {
		if ctx.Err() != nil {
			break
		}
		res := &results[i]
		g.Go(func() error {
			res.Output, res.Err = c.StatusLog(ctx, controller, model, res.Kind, res.Name, format)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("fetching status logs: %w", err)
	}
	return results, nil
}
