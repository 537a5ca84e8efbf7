// Package composer decides which objects a load run touches and assembles
// the statements the orchestrators hand to connectors.
package composer

import (
	"os"

	"github.com/facette/natsort"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// Options tune reconciliation.
type Options struct {
	// PreferAuthoritative makes prefer mode behave like ignore mode: every
	// staged object is loaded, with or without a spec.
	PreferAuthoritative bool
}

// EffectiveObjects returns the objects a load run processes. In ignore mode
// (and prefer mode with PreferAuthoritative) the staged objects are taken
// as they are. Otherwise only staged objects that the pipeline declares are
// kept, in staging order.
func EffectiveObjects(p *pipeline.Pipeline, discovered []string, opts Options) []string {
	if p.Mode == pipeline.ModeIgnore || (p.Mode == pipeline.ModePrefer && opts.PreferAuthoritative) {
		if !p.Restricted() {
			return append([]string(nil), discovered...)
		}
	}

	declared := make(map[string]struct{})
	for _, name := range p.DeclaredObjects() {
		declared[name] = struct{}{}
	}

	out := make([]string, 0, len(discovered))
	for _, name := range discovered {
		if _, ok := declared[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// StagedObjects lists the object directories under the pipeline's output
// root in natural order. A missing root yields no objects.
func StagedObjects(layout pipeline.Layout) ([]string, error) {
	entries, err := os.ReadDir(layout.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to list staged objects").
			WithDetail("path", layout.OutputDir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	natsort.Sort(names)
	return names, nil
}
