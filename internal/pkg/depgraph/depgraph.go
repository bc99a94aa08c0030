// Package depgraph implements the generic "resolve nodes in dependency
// order, fail on a cycle" helper described in spec.md §9 for the
// files<->bindings and binding<->binding reference graphs: mark
// in-progress nodes during depth-first resolution, and treat a revisited
// in-progress node as a fatal ConfigError.
package depgraph

import "github.com/a-scie/jump/internal/pkg/jumperr"

type state int

const (
	unvisited state = iota
	inProgress
	done
)

// Graph tracks DFS visitation state across a set of string-keyed nodes
// that may reference each other (bindings referencing bindings, files
// referenced by binding sourcing). It does not know how to resolve a node
// itself; callers drive the recursion and call Enter/Leave around their own
// work, which keeps depgraph reusable across the binding runner and the
// placeholder evaluator's binding resolution without either owning the
// other's resolution logic.
type Graph struct {
	states map[string]state
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{states: map[string]state{}}
}

// Enter marks key as in-progress, returning (alreadyDone, error). If key is
// already Done, the caller should skip re-resolving it. If key is already
// in-progress, that's a cycle and Enter returns a ConfigError.
func (g *Graph) Enter(key string) (alreadyDone bool, err error) {
	switch g.states[key] {
	case done:
		return true, nil
	case inProgress:
		return false, jumperr.New(jumperr.Config, "", "cyclic dependency detected at %q", key)
	}
	g.states[key] = inProgress
	return false, nil
}

// Leave marks key as fully resolved.
func (g *Graph) Leave(key string) {
	g.states[key] = done
}
