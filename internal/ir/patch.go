package ir

// ModuleKind distinguishes the synthetic bookends from unit modules.
type ModuleKind string

const (
	ModuleInput  ModuleKind = "input"
	ModuleOutput ModuleKind = "output"
	ModuleUnit   ModuleKind = "unit"
)

// Fixed module IDs of every compiled patch.
const (
	InputID  = 0
	OutputID = 1
)

// Module is a compiled graph node. Next holds the IDs of its successors
// in attach order; edges are indices into Patch.Modules, never pointers.
type Module struct {
	ID   int        `json:"id"`
	Kind ModuleKind `json:"kind"`
	Unit *Unit      `json:"unit,omitempty"`
	Next []int      `json:"next"`
}

// Patch is a compiled combinator tree: one Input, one Output, and every
// unit module wired between them.
//
// A Patch is never mutated after the compiler returns it and may be shared
// read-only between goroutines.
type Patch struct {
	Modules []Module `json:"modules"`
	Input   int      `json:"input"`
	Output  int      `json:"output"`
}

// Edge is a directed connection between two modules.
type Edge struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Module returns the module with the given ID.
func (p *Patch) Module(id int) *Module {
	return &p.Modules[id]
}

// Successors returns the successor IDs of a module.
func (p *Patch) Successors(id int) []int {
	return p.Modules[id].Next
}

// Edges returns every edge in module order, then attach order.
func (p *Patch) Edges() []Edge {
	var edges []Edge
	for _, m := range p.Modules {
		for _, next := range m.Next {
			edges = append(edges, Edge{From: m.ID, To: next})
		}
	}
	return edges
}

// EdgeCount returns the number of edges.
func (p *Patch) EdgeCount() int {
	n := 0
	for _, m := range p.Modules {
		n += len(m.Next)
	}
	return n
}

// UnitCount returns the number of unit modules, excluding Input and Output.
func (p *Patch) UnitCount() int {
	return len(p.Modules) - 2
}

// Units returns the units of all unit modules in module order.
func (p *Patch) Units() []Unit {
	units := make([]Unit, 0, p.UnitCount())
	for _, m := range p.Modules {
		if m.Kind == ModuleUnit && m.Unit != nil {
			units = append(units, *m.Unit)
		}
	}
	return units
}

// Predecessors returns, for every module ID, the IDs attached to it.
func (p *Patch) Predecessors() [][]int {
	preds := make([][]int, len(p.Modules))
	for _, m := range p.Modules {
		for _, next := range m.Next {
			preds[next] = append(preds[next], m.ID)
		}
	}
	return preds
}
