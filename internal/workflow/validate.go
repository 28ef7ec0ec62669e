package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid wraps every validation failure so callers can distinguish
// bad graphs from storage errors with errors.Is.
var ErrInvalid = errors.New("invalid workflow")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the structural rules every saved workflow must hold:
// a name, exactly one trigger_start, unique node ids, edges that
// reference existing nodes, conditional handles limited to yes/no with
// at most one of each, at most one default edge per other node, and
// well-formed payloads. Cycles are allowed; the executor bounds them at
// runtime.
func (w *Workflow) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return invalidf("workflow name is required")
	}

	seen := make(map[string]bool, len(w.Nodes))
	triggers := 0
	for i := range w.Nodes {
		n := &w.Nodes[i]
		if strings.TrimSpace(n.ID) == "" {
			return invalidf("node %d: id is required", i)
		}
		if seen[n.ID] {
			return invalidf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
		if !n.Type.IsValid() {
			return invalidf("node %s: unknown node type %q", n.ID, n.Type)
		}
		if n.Type == NodeTriggerStart {
			triggers++
		}
		if n.Data == nil {
			var err error
			n.Data, err = DecodePayload(n.Type, nil)
			if err != nil {
				return invalidf("node %s: %v", n.ID, err)
			}
		}
		if n.Data.nodeType() != n.Type {
			return invalidf("node %s: payload does not match type %s", n.ID, n.Type)
		}
		if err := n.Data.validate(n.ID); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalid, err)
		}
	}
	if triggers != 1 {
		return invalidf("workflow must have exactly one trigger_start node, found %d", triggers)
	}

	handles := make(map[edgeKey]bool, len(w.Edges))
	for i := range w.Edges {
		e := &w.Edges[i]
		if !seen[e.SourceID] {
			return invalidf("edge %d: source node %q does not exist", i, e.SourceID)
		}
		if !seen[e.TargetID] {
			return invalidf("edge %d: target node %q does not exist", i, e.TargetID)
		}
		source := w.Node(e.SourceID)
		if source.Type == NodeConditionalSplit {
			if e.SourceHandle != HandleYes && e.SourceHandle != HandleNo {
				return invalidf("edge %d: conditional_split edges must use the yes or no handle, got %q", i, e.SourceHandle)
			}
		} else if e.SourceHandle != HandleDefault {
			return invalidf("edge %d: node type %s does not support handle %q", i, source.Type, e.SourceHandle)
		}
		key := edgeKey{source: e.SourceID, handle: e.SourceHandle}
		if handles[key] {
			return invalidf("node %s has more than one outgoing edge on handle %q", e.SourceID, e.SourceHandle)
		}
		handles[key] = true
	}
	return nil
}
