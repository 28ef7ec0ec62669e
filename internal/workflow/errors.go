package workflow

import "fmt"

// NotFoundError indicates the requested workflow does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("workflow not found: %s", e.ID)
}

// NodeNotFoundError indicates a workflow no longer contains the node an
// execution points at, usually after a graph edit removed it.
type NodeNotFoundError struct {
	WorkflowID string
	NodeID     string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %s not found in workflow %s", e.NodeID, e.WorkflowID)
}
