package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jspindler/takt/internal/domain"
)

// criticalSlackEpsilonMin is the slack threshold below which a node counts
// as critical. CPM arithmetic on float minutes never needs finer resolution.
const criticalSlackEpsilonMin = 0.1

// DependencyNode is the derived scheduling view of one instance. It is
// never persisted.
type DependencyNode struct {
	ProcessInstanceID string
	Dependencies      []string
	Dependents        []string
	DurationMin       int
	Level             int
	EarliestStartMin  float64
	LatestStartMin    float64
	SlackMin          float64
	OnCriticalPath    bool
}

type DependencyGraph struct {
	Nodes            map[string]*DependencyNode
	Levels           [][]string
	CriticalPath     []string
	TotalDurationMin float64
	HasCycle         bool
	CyclePath        []string
}

// CycleError renders the detected cycle as a literal path, e.g. "A → B → A".
func (g *DependencyGraph) CycleError() string {
	return strings.Join(g.CyclePath, " → ")
}

// Node returns the node for id, or nil when the id is not in the graph.
func (g *DependencyGraph) Node(id string) *DependencyNode {
	return g.Nodes[id]
}

// BuildGraph builds the bidirectional dependency graph for a batch and runs
// the full analysis: reference validation, cycle detection, Kahn level
// assignment, and the critical path method forward/backward passes.
//
// Reference problems (self-dependency, unknown or duplicate ids) are
// returned as accumulated errors and leave the graph nil. A cycle is not an
// error here: the graph comes back with HasCycle set and CyclePath holding
// the literal path, and the caller must not schedule anything from the
// batch.
func BuildGraph(instances []*domain.ProcessInstance) (*DependencyGraph, []error) {
	if errs := validateReferences(instances); len(errs) > 0 {
		return nil, errs
	}

	g := &DependencyGraph{Nodes: make(map[string]*DependencyNode, len(instances))}
	order := make([]string, 0, len(instances))
	for _, inst := range instances {
		g.Nodes[inst.ID] = &DependencyNode{
			ProcessInstanceID: inst.ID,
			Dependencies:      append([]string(nil), inst.Dependencies...),
			DurationMin:       inst.TotalDurationMin(),
		}
		order = append(order, inst.ID)
	}
	for _, id := range order {
		for _, dep := range g.Nodes[id].Dependencies {
			g.Nodes[dep].Dependents = append(g.Nodes[dep].Dependents, id)
		}
	}

	if cycle := findCycle(order, g.Nodes); cycle != nil {
		g.HasCycle = true
		g.CyclePath = cycle
		return g, nil
	}

	g.assignLevels(order)
	g.computeCriticalPath(order)
	return g, nil
}

func validateReferences(instances []*domain.ProcessInstance) []error {
	var errs []error
	ids := make(map[string]bool, len(instances))
	for _, inst := range instances {
		if ids[inst.ID] {
			errs = append(errs, fmt.Errorf("instance %s: duplicate id in batch", inst.ID))
		}
		ids[inst.ID] = true
	}
	for _, inst := range instances {
		for _, dep := range inst.Dependencies {
			switch {
			case dep == inst.ID:
				errs = append(errs, fmt.Errorf("instance %s: depends on itself", inst.ID))
			case !ids[dep]:
				errs = append(errs, fmt.Errorf("instance %s: depends on unknown instance %q", inst.ID, dep))
			}
		}
	}
	return errs
}

// findCycle runs a DFS over dependency edges with white/gray/black
// coloring and a recursion stack, so the returned path reads in dependency
// direction: [A B A] for "A depends on B depends on A".
func findCycle(order []string, nodes map[string]*DependencyNode) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // in current path
		black = 2 // fully processed
	)

	color := make(map[string]int, len(nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range nodes[id].Dependencies {
			if color[dep] == gray {
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, stack[start:]...), dep)
				return true
			}
			if color[dep] == white && visit(dep) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range order {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// assignLevels peels the graph Kahn-style: level 0 holds nodes with no
// unresolved dependencies, and members of one level never depend on each
// other. Iteration follows batch order so the output is deterministic.
func (g *DependencyGraph) assignLevels(order []string) {
	remaining := make(map[string]int, len(g.Nodes))
	for id, n := range g.Nodes {
		remaining[id] = len(n.Dependencies)
	}

	assigned := 0
	level := 0
	for assigned < len(g.Nodes) {
		var current []string
		for _, id := range order {
			if cnt, ok := remaining[id]; ok && cnt == 0 {
				current = append(current, id)
			}
		}
		for _, id := range current {
			g.Nodes[id].Level = level
			delete(remaining, id)
			for _, dependent := range g.Nodes[id].Dependents {
				remaining[dependent]--
			}
		}
		g.Levels = append(g.Levels, current)
		assigned += len(current)
		level++
	}
}

// computeCriticalPath runs the CPM forward and backward passes and flags
// every node whose slack falls under the epsilon.
func (g *DependencyGraph) computeCriticalPath(order []string) {
	// Forward pass in level order: a node starts when its slowest
	// dependency finishes.
	for _, level := range g.Levels {
		for _, id := range level {
			n := g.Nodes[id]
			for _, dep := range n.Dependencies {
				d := g.Nodes[dep]
				if finish := d.EarliestStartMin + float64(d.DurationMin); finish > n.EarliestStartMin {
					n.EarliestStartMin = finish
				}
			}
		}
	}

	// The project ends when the last node finishes.
	for _, n := range g.Nodes {
		if finish := n.EarliestStartMin + float64(n.DurationMin); finish > g.TotalDurationMin {
			g.TotalDurationMin = finish
		}
	}

	// Backward pass in reverse level order. Terminal nodes anchor at the
	// project end; everyone else must finish before its earliest dependent
	// has to start.
	for li := len(g.Levels) - 1; li >= 0; li-- {
		for _, id := range g.Levels[li] {
			n := g.Nodes[id]
			if len(n.Dependents) == 0 {
				n.LatestStartMin = g.TotalDurationMin - float64(n.DurationMin)
			} else {
				latestFinish := g.TotalDurationMin
				for _, dependent := range n.Dependents {
					if ls := g.Nodes[dependent].LatestStartMin; ls < latestFinish {
						latestFinish = ls
					}
				}
				n.LatestStartMin = latestFinish - float64(n.DurationMin)
			}
			n.SlackMin = n.LatestStartMin - n.EarliestStartMin
			n.OnCriticalPath = n.SlackMin < criticalSlackEpsilonMin
		}
	}

	var critical []string
	for _, id := range order {
		if g.Nodes[id].OnCriticalPath {
			critical = append(critical, id)
		}
	}
	sort.SliceStable(critical, func(i, j int) bool {
		return g.Nodes[critical[i]].EarliestStartMin < g.Nodes[critical[j]].EarliestStartMin
	})
	g.CriticalPath = critical
}
