package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// defWire is the YAML definition format used by import and export. Node
// data stays a freeform map here and is decoded into typed payloads
// through the JSON envelope.
type defWire struct {
	ID          string     `yaml:"id,omitempty"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Enabled     *bool      `yaml:"enabled,omitempty"`
	Nodes       []nodeWire `yaml:"nodes"`
	Edges       []edgeWire `yaml:"edges,omitempty"`
}

type nodeWire struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Position Position       `yaml:"position"`
	Data     map[string]any `yaml:"data,omitempty"`
}

type edgeWire struct {
	ID           string `yaml:"id,omitempty"`
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
	SourceHandle string `yaml:"source_handle,omitempty"`
	Label        string `yaml:"label,omitempty"`
}

// DecodeDefinition parses a YAML workflow definition. Missing workflow
// and edge ids are generated; enabled defaults to true. The result is
// not validated, call Validate before saving.
func DecodeDefinition(data []byte) (*Workflow, error) {
	var wire defWire
	if err := yaml.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}

	now := time.Now()
	w := &Workflow{
		ID:          wire.ID,
		Name:        wire.Name,
		Description: wire.Description,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if wire.Enabled != nil {
		w.Enabled = *wire.Enabled
	}

	for _, nw := range wire.Nodes {
		var raw json.RawMessage
		if nw.Data != nil {
			b, err := json.Marshal(nw.Data)
			if err != nil {
				return nil, fmt.Errorf("node %s: encoding data: %w", nw.ID, err)
			}
			raw = b
		}
		payload, err := DecodePayload(NodeType(nw.Type), raw)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nw.ID, err)
		}
		w.Nodes = append(w.Nodes, Node{
			ID:         nw.ID,
			WorkflowID: w.ID,
			Type:       NodeType(nw.Type),
			Position:   nw.Position,
			Data:       payload,
		})
	}

	for _, ew := range wire.Edges {
		id := ew.ID
		if id == "" {
			id = uuid.New().String()
		}
		w.Edges = append(w.Edges, Edge{
			ID:           id,
			WorkflowID:   w.ID,
			SourceID:     ew.Source,
			TargetID:     ew.Target,
			SourceHandle: ew.SourceHandle,
			Label:        ew.Label,
		})
	}
	return w, nil
}

// EncodeDefinition renders the workflow as a YAML definition suitable
// for re-import.
func EncodeDefinition(w *Workflow) ([]byte, error) {
	enabled := w.Enabled
	wire := defWire{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Enabled:     &enabled,
	}
	for _, n := range w.Nodes {
		nw := nodeWire{ID: n.ID, Type: string(n.Type), Position: n.Position}
		if n.Data != nil {
			b, err := json.Marshal(n.Data)
			if err != nil {
				return nil, fmt.Errorf("node %s: encoding data: %w", n.ID, err)
			}
			var m map[string]any
			if err := json.Unmarshal(b, &m); err != nil {
				return nil, fmt.Errorf("node %s: encoding data: %w", n.ID, err)
			}
			nw.Data = m
		}
		wire.Nodes = append(wire.Nodes, nw)
	}
	for _, e := range w.Edges {
		wire.Edges = append(wire.Edges, edgeWire{
			ID:           e.ID,
			Source:       e.SourceID,
			Target:       e.TargetID,
			SourceHandle: e.SourceHandle,
			Label:        e.Label,
		})
	}
	return yaml.Marshal(wire)
}
