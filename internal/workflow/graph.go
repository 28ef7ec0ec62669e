package workflow

// Graph is an indexed view over a workflow's nodes and edges for O(1)
// cursor movement during execution. It holds references into the
// workflow; build a fresh Graph after mutating the slices.
type Graph struct {
	workflow *Workflow
	nodes    map[string]*Node
	outgoing map[string][]*Edge
	byHandle map[edgeKey]*Edge
}

type edgeKey struct {
	source string
	handle string
}

// NewGraph indexes the workflow's nodes and edges. Duplicate node ids or
// duplicate (source, handle) pairs keep the first occurrence; Validate
// rejects such graphs before they are saved.
func NewGraph(w *Workflow) *Graph {
	g := &Graph{
		workflow: w,
		nodes:    make(map[string]*Node, len(w.Nodes)),
		outgoing: make(map[string][]*Edge, len(w.Edges)),
		byHandle: make(map[edgeKey]*Edge, len(w.Edges)),
	}
	for i := range w.Nodes {
		n := &w.Nodes[i]
		if _, exists := g.nodes[n.ID]; !exists {
			g.nodes[n.ID] = n
		}
	}
	for i := range w.Edges {
		e := &w.Edges[i]
		g.outgoing[e.SourceID] = append(g.outgoing[e.SourceID], e)
		key := edgeKey{source: e.SourceID, handle: e.SourceHandle}
		if _, exists := g.byHandle[key]; !exists {
			g.byHandle[key] = e
		}
	}
	return g
}

// Workflow returns the underlying workflow.
func (g *Graph) Workflow() *Workflow { return g.workflow }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// TriggerStart returns the graph's trigger_start node.
func (g *Graph) TriggerStart() (*Node, bool) {
	for _, n := range g.nodes {
		if n.Type == NodeTriggerStart {
			return n, true
		}
	}
	return nil, false
}

// Successor follows the edge leaving nodeID through the given handle.
// The second result is false when no such edge exists, which for the
// default handle means the branch terminates.
func (g *Graph) Successor(nodeID, handle string) (*Node, bool) {
	e, ok := g.byHandle[edgeKey{source: nodeID, handle: handle}]
	if !ok {
		return nil, false
	}
	n, ok := g.nodes[e.TargetID]
	return n, ok
}

// Outgoing returns all edges leaving nodeID.
func (g *Graph) Outgoing(nodeID string) []*Edge {
	return g.outgoing[nodeID]
}
