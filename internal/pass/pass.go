// Package pass implements the analysis/optimisation pipeline: an
// Analysis computes metadata the CFG remembers as valid until a Pass
// invalidates it, so repeated Require calls for the same analysis
// are free until something changes.
package pass

import (
	"fmt"
	"regexp"

	"amigo/internal/ir"
)

// IDPattern is the syntax every Analysis and Pass ID must match.
var IDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// BadIDError reports an analysis or pass ID that doesn't match
// IDPattern.
type BadIDError struct{ ID string }

func (e *BadIDError) Error() string { return fmt.Sprintf("invalid pass/analysis ID %q", e.ID) }

// Analysis computes and caches metadata about a CFG. Compute is only
// invoked by a Manager when the analysis's metadata key is absent from
// the CFG, i.e. when it's considered invalid.
type Analysis interface {
	ID() string
	Compute(cfg *ir.CFG, m *Manager) error
}

// Pass mutates a CFG. Apply returns the IDs of analyses whose results
// remain valid after the mutation; every other currently-valid
// analysis is invalidated automatically.
type Pass interface {
	ID() string
	Apply(cfg *ir.CFG, m *Manager) (preserved []string, err error)
}

// Manager runs passes and analyses against a single CFG, tracking
// analysis validity via the CFG's own metadata store.
type Manager struct {
	cfg       *ir.CFG
	analyses  map[string]Analysis
	traceFunc func(string)
}

func NewManager(cfg *ir.CFG) *Manager {
	return &Manager{cfg: cfg, analyses: make(map[string]Analysis)}
}

// Trace installs a hook invoked with a one-line message before each
// pass or analysis runs, standing in for structured debug logging.
func (m *Manager) Trace(f func(string)) { m.traceFunc = f }

func (m *Manager) trace(msg string) {
	if m.traceFunc != nil {
		m.traceFunc(msg)
	}
}

// Register adds an analysis to the manager, keyed by its own ID.
func (m *Manager) Register(a Analysis) error {
	if !IDPattern.MatchString(a.ID()) {
		return &BadIDError{ID: a.ID()}
	}
	m.analyses[a.ID()] = a
	return nil
}

// Require returns the named analysis, recomputing it first if its
// metadata key is not currently present on the CFG.
func (m *Manager) Require(id string) (Analysis, error) {
	a, ok := m.analyses[id]
	if !ok {
		return nil, fmt.Errorf("pass: no analysis registered with ID %q", id)
	}
	if m.cfg.Metadata.Has(id) {
		return a, nil
	}
	m.trace(fmt.Sprintf("%s: running analysis", id))
	if err := a.Compute(m.cfg, m); err != nil {
		return nil, err
	}
	if !m.cfg.Metadata.Has(id) {
		m.cfg.Metadata.Set(id)
	}
	return a, nil
}

// Invalidate clears the named analysis's validity flag, forcing a
// recompute on its next Require.
func (m *Manager) Invalidate(id string) {
	m.cfg.Metadata.Clear(id)
}

// Valid reports whether the named analysis's cached results are
// current, without forcing a recompute.
func (m *Manager) Valid(id string) bool { return m.cfg.Metadata.Has(id) }

// Run applies p to the CFG, then invalidates every registered
// analysis not named in p's preserved list.
func (m *Manager) Run(p Pass) error {
	if !IDPattern.MatchString(p.ID()) {
		return &BadIDError{ID: p.ID()}
	}
	m.trace(fmt.Sprintf("%s: running optimisation", p.ID()))
	preserved, err := p.Apply(m.cfg, m)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(preserved))
	for _, id := range preserved {
		keep[id] = true
	}
	for id := range m.analyses {
		if keep[id] {
			continue
		}
		if m.cfg.Metadata.Has(id) {
			m.trace(fmt.Sprintf("%s: invalidating %s", p.ID(), id))
			m.Invalidate(id)
		}
	}
	return nil
}

// RunAll applies each pass in sequence, stopping at the first error.
func (m *Manager) RunAll(passes ...Pass) error {
	for _, p := range passes {
		if err := m.Run(p); err != nil {
			return fmt.Errorf("%s: %w", p.ID(), err)
		}
	}
	return nil
}
