// Package workflow defines the graph data model for the engine: workflows,
// typed nodes, edges, trigger configuration, and condition expressions.
// A workflow owns its nodes and edges; saves replace the whole graph
// atomically. Validation happens at save time so the executor can assume
// well-formed payloads at runtime.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Workflow is a named directed graph of nodes and edges. Disabled
// workflows accept no new enrollments and their active executions fail
// at the next tick.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Nodes []Node
	Edges []Edge
}

// New creates an enabled workflow with a fresh id and stamped timestamps.
// The graph starts empty; callers attach nodes and edges before saving.
func New(name string) *Workflow {
	now := time.Now()
	return &Workflow{
		ID:        uuid.New().String(),
		Name:      name,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Node returns the node with the given id, or nil.
func (w *Workflow) Node(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// TriggerStart returns the workflow's trigger_start node, or nil if the
// graph has none.
func (w *Workflow) TriggerStart() *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Type == NodeTriggerStart {
			return &w.Nodes[i]
		}
	}
	return nil
}

// TriggerConfig returns the trigger configuration of the trigger_start
// node, or the zero value if the graph has none.
func (w *Workflow) TriggerConfig() TriggerConfig {
	start := w.TriggerStart()
	if start == nil {
		return TriggerConfig{}
	}
	payload, ok := start.Data.(*TriggerPayload)
	if !ok {
		return TriggerConfig{}
	}
	return payload.Trigger
}

// NodeType identifies the behavior of a node. The set is closed: saving a
// workflow with an unrecognized type fails validation.
type NodeType string

const (
	NodeTriggerStart     NodeType = "trigger_start"
	NodeTimeDelay        NodeType = "time_delay"
	NodeConditionalSplit NodeType = "conditional_split"
	NodeSendSMS          NodeType = "send_sms"
	NodeSendEmail        NodeType = "send_email"
	NodeUpdateStatus     NodeType = "update_status"
	NodeStopOnReply      NodeType = "stop_on_reply"
	NodeCallSubWorkflow  NodeType = "call_sub_workflow"
	NodeReturnToParent   NodeType = "return_to_parent"
)

// NodeTypes lists every recognized node type.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeTriggerStart,
		NodeTimeDelay,
		NodeConditionalSplit,
		NodeSendSMS,
		NodeSendEmail,
		NodeUpdateStatus,
		NodeStopOnReply,
		NodeCallSubWorkflow,
		NodeReturnToParent,
	}
}

// IsValid returns true if this is a recognized NodeType value.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTriggerStart, NodeTimeDelay, NodeConditionalSplit,
		NodeSendSMS, NodeSendEmail, NodeUpdateStatus,
		NodeStopOnReply, NodeCallSubWorkflow, NodeReturnToParent:
		return true
	}
	return false
}

func (t NodeType) String() string {
	return string(t)
}

// Position is editor metadata; it carries no runtime meaning.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node belongs to exactly one workflow. Its id is stable across editor
// saves so running executions keep their cursor through graph edits.
// Data holds the payload struct matching Type.
type Node struct {
	ID         string
	WorkflowID string
	Type       NodeType
	Position   Position
	Data       Payload
}

// nodeEnvelope is the wire form of a node. The payload rides in a
// freeform "data" object whose shape depends on "type".
type nodeEnvelope struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the node in its wire envelope.
func (n Node) MarshalJSON() ([]byte, error) {
	env := nodeEnvelope{ID: n.ID, Type: n.Type, Position: n.Position}
	if n.Data != nil {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding node %s data: %w", n.ID, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the wire envelope and the type-specific payload.
// Unknown keys inside data are ignored; missing required keys surface at
// validation time, not here.
func (n *Node) UnmarshalJSON(b []byte) error {
	var env nodeEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	payload, err := DecodePayload(env.Type, env.Data)
	if err != nil {
		return err
	}
	n.ID = env.ID
	n.Type = env.Type
	n.Position = env.Position
	n.Data = payload
	return nil
}

// DataMap returns the node payload as a generic map, used for log input
// snapshots. Returns an empty map when the node has no payload.
func (n Node) DataMap() map[string]any {
	if n.Data == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(n.Data)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Edge handles used by conditional_split. Every other node type connects
// through the default (empty) handle.
const (
	HandleDefault = ""
	HandleYes     = "yes"
	HandleNo      = "no"
)

// Edge is a directed connection between two nodes of the same workflow.
type Edge struct {
	ID           string `json:"id,omitempty"`
	WorkflowID   string `json:"-"`
	SourceID     string `json:"source"`
	TargetID     string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	Label        string `json:"label,omitempty"`
}
