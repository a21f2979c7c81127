package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/patchwire/internal/ir"
)

// CycleWarning describes a cycle among the modules of a patch.
//
// Compile never produces one. Patches decoded from JSON or built by hand
// can, and the evaluator would loop forever on them, so Validate reports
// every cycle as an error.
type CycleWarning struct {
	Path    []int  `json:"path"`    // module IDs, first == last
	Message string `json:"message"`
	Level   string `json:"level"`
}

// AnalyzeCycles finds every strongly connected component of the patch
// graph that forms a cycle, in order of the lowest module ID involved.
func AnalyzeCycles(p *ir.Patch) []CycleWarning {
	if p == nil || len(p.Modules) == 0 {
		return []CycleWarning{}
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(p) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(p, scc[0])) {
			warnings = append(warnings, cycleSCCToWarning(p, scc))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return slices.Min(a.Path) - slices.Min(b.Path)
	})
	return warnings
}

func hasSelfLoop(p *ir.Patch, id int) bool {
	return slices.Contains(p.Modules[id].Next, id)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in ID order so the result is deterministic.
func tarjanSCC(p *ir.Patch) [][]int {
	n := len(p.Modules)
	var (
		index   = 0
		stack   []int
		indices = make([]int, n)
		lowlink = make([]int, n)
		visited = make([]bool, n)
		onStack = make([]bool, n)
		sccs    [][]int
	)

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		visited[v] = true
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range p.Modules[v].Next {
			if w < 0 || w >= n {
				continue
			}
			if !visited[w] {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for id := range n {
		if !visited[id] {
			strongConnect(id)
		}
	}

	return sccs
}

func cycleSCCToWarning(p *ir.Patch, scc []int) CycleWarning {
	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []int{id, id},
			Message: fmt.Sprintf("module %d feeds itself", id),
			Level:   "error",
		}
	}

	path := reconstructCyclePath(p, scc)
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = fmt.Sprint(id)
	}
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("cycle through modules %s", strings.Join(parts, " -> ")),
		Level:   "error",
	}
}

// reconstructCyclePath walks edges inside the SCC from its lowest ID until
// it returns to the start.
func reconstructCyclePath(p *ir.Patch, scc []int) []int {
	if len(scc) == 0 {
		return []int{}
	}

	members := make(map[int]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	start := slices.Min(scc)
	current := start
	path := []int{current}
	seen := make(map[int]bool)

	for {
		seen[current] = true

		next := -1
		for _, w := range p.Modules[current].Next {
			if members[w] && (!seen[w] || w == start) {
				next = w
				break
			}
		}
		if next < 0 {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
