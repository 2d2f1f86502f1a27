// Package workaround implements the fixed catalog of repairs applied to a
// ReqIF bundle when the schema converter rejects it.
//
// Each pass mutates the bundle in place and reports an Outcome listing
// what it changed. Passes plan every change before touching the bundle,
// and a pass that faults is reported as Unchanged: a repair must never
// leave the bundle worse than not running it.
package workaround

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/reqifnorm/core/reqif"
	"github.com/FocuswithJustin/reqifnorm/internal/logging"
)

// Outcome lists the items a pass changed. An empty Outcome means Unchanged.
type Outcome struct {
	Changes []string
}

// Unchanged is the outcome of a pass that did nothing.
var Unchanged = Outcome{}

// Changed reports whether the pass modified the bundle.
func (o Outcome) Changed() bool { return len(o.Changes) > 0 }

// Pass names, usable in configuration to disable individual repairs.
const (
	PassCoerceTypes      = "coerce-types"
	PassFillTypeNames    = "fill-type-names"
	PassRenameDuplicates = "rename-duplicates"
	PassPruneEmpty       = "prune-empty"
	PassPruneReferences  = "prune-references"
)

// Pass is one named repair with the one-line summary it contributes to a
// conversion report.
type Pass struct {
	Name    string
	Apply   func(*reqif.Bundle) Outcome
	Summary func(changes []string) string
}

func joinSummary(prefix string) func([]string) string {
	return func(changes []string) string {
		return prefix + strings.Join(changes, ", ")
	}
}

func countSummary(format string) func([]string) string {
	return func(changes []string) string {
		return fmt.Sprintf(format, len(changes))
	}
}

// catalog is the fixed repair order.
var catalog = []Pass{
	{PassCoerceTypes, CoerceUnsupportedTypes, joinSummary("Converted unsupported types to STRING: ")},
	{PassFillTypeNames, FillMissingTypeNames, countSummary("Added default names to %d spec types")},
	{PassRenameDuplicates, RenameDuplicateFields, joinSummary("Renamed duplicate fields: ")},
	{PassPruneEmpty, PruneEmptyValues, countSummary("Removed empty attributes from %d objects")},
	{PassPruneReferences, PruneDanglingReferences, joinSummary("Removed invalid references: ")},
}

// PassNames returns the names of all passes in application order.
func PassNames() []string {
	names := make([]string, len(catalog))
	for i, p := range catalog {
		names[i] = p.Name
	}
	return names
}

// Run applies one pass under a guard that turns any fault into Unchanged.
func Run(p Pass, b *reqif.Bundle) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.WorkaroundFault(p.Name, r)
			out = Unchanged
		}
	}()
	if b == nil {
		return Unchanged
	}
	return p.Apply(b)
}

// Engine applies an ordered set of passes.
type Engine struct {
	passes []Pass
}

// NewEngine returns an engine running every pass except the disabled ones.
func NewEngine(disabled ...string) (*Engine, error) {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		if !isPass(name) {
			return nil, fmt.Errorf("unknown workaround %q (known: %s)", name, strings.Join(PassNames(), ", "))
		}
		skip[name] = true
	}

	e := &Engine{}
	for _, p := range catalog {
		if !skip[p.Name] {
			e.passes = append(e.passes, p)
		}
	}
	return e, nil
}

// Default returns an engine running all five passes.
func Default() *Engine {
	return &Engine{passes: append([]Pass(nil), catalog...)}
}

func isPass(name string) bool {
	for _, p := range catalog {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Passes returns the names of the passes this engine runs.
func (e *Engine) Passes() []string {
	names := make([]string, len(e.passes))
	for i, p := range e.passes {
		names[i] = p.Name
	}
	return names
}

// Apply runs the passes in order and returns one summary line per pass
// that changed something.
func (e *Engine) Apply(b *reqif.Bundle) []string {
	var summaries []string
	for _, p := range e.passes {
		out := Run(p, b)
		if !out.Changed() {
			continue
		}
		logging.WorkaroundApplied(p.Name, len(out.Changes))
		summaries = append(summaries, p.Summary(out.Changes))
	}
	return summaries
}
