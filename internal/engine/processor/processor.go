// Package processor implements one processor per node type. Processors
// are pure with respect to engine state: they read the loaded context,
// perform their side effects (provider calls, message rows, contact
// status), and describe the transition in a StepResult. Persisting
// enrollment and execution state is the executor's job alone.
package processor

import (
	"context"
	"time"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/engine/metrics"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/provider"
	"github.com/zjrosen/followup/internal/workflow"
)

// Execution-data keys processors accumulate under.
const (
	KeySentMessageIDs      = "sent_message_ids"
	KeyLastConditionResult = "last_condition_result"
	KeySubWorkflowCalls    = "sub_workflow_calls"
)

// Context is everything a processor may read: the workflow with its
// indexed graph, the enrollment being advanced, its execution, and the
// enrolled contact.
type Context struct {
	Workflow   *workflow.Workflow
	Graph      *workflow.Graph
	Enrollment *enrollment.Enrollment
	Execution  *enrollment.Execution
	Contact    *contact.Contact
}

// StepResult describes the transition a processor decided on. A nil
// NextNodeID completes the enrollment. A set NextRunAt makes the
// executor persist and yield instead of advancing within the batch.
// Err is observational: the step is logged as failed but the walk
// continues wherever NextNodeID points.
type StepResult struct {
	NextNodeID     *string
	NextRunAt      *time.Time
	ExecutionData  map[string]any
	OutputData     map[string]any
	Err            string
	StopEnrollment bool
	StopReason     string
}

// Processor executes one node type. A returned error is retryable
// unless it carries a fatal engine error; use the StepResult's Err
// field for failures the walk should advance past.
type Processor interface {
	Type() workflow.NodeType
	Execute(ctx context.Context, node *workflow.Node, pctx *Context) (StepResult, error)
}

// SubWorkflowStarter creates the child enrollment for call_sub_workflow
// nodes. Implemented by the scheduler's enroller so that processors
// never write enrollment state themselves.
type SubWorkflowStarter interface {
	// StartSubWorkflow enrolls the contact in the target workflow,
	// seeding the child execution with the resolved inputs, and returns
	// the new enrollment id.
	StartSubWorkflow(ctx context.Context, target *workflow.Workflow, contactID string, inputs map[string]string) (string, error)
}

// Deps carries the collaborators processors share. Zero-value fields
// are legal for processors that never touch them.
type Deps struct {
	Contacts    contact.Repository
	Workflows   workflow.Repository
	Enrollments enrollment.Repository
	Messages    message.Repository
	Templates   *CachedTemplates
	Settings    *CachedSettings
	SMS         provider.SMSProvider
	Email       provider.EmailProvider
	Starter     SubWorkflowStarter
	Metrics     *metrics.Metrics
}

// Registry maps node types to their processors. The set is fixed at
// construction; lookups at execution time never mutate it.
type Registry struct {
	procs map[workflow.NodeType]Processor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[workflow.NodeType]Processor)}
}

// Register adds a processor, replacing any previous one for the type.
func (r *Registry) Register(p Processor) {
	r.procs[p.Type()] = p
}

// Get returns the processor for a node type.
func (r *Registry) Get(t workflow.NodeType) (Processor, bool) {
	p, ok := r.procs[t]
	return p, ok
}

// Types returns the registered node types.
func (r *Registry) Types() []workflow.NodeType {
	out := make([]workflow.NodeType, 0, len(r.procs))
	for t := range r.procs {
		out = append(out, t)
	}
	return out
}

// DefaultRegistry wires the full closed set of node processors.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(&TriggerStart{})
	r.Register(&TimeDelay{})
	r.Register(&ConditionalSplit{})
	r.Register(&SendSMS{Deps: deps})
	r.Register(&SendEmail{Deps: deps})
	r.Register(&UpdateStatus{Contacts: deps.Contacts})
	r.Register(&StopOnReply{Messages: deps.Messages})
	r.Register(&CallSubWorkflow{Deps: deps})
	r.Register(&ReturnToParent{})
	return r
}

// successor resolves the node's outgoing edge on the given handle to a
// next-node pointer, nil when the branch terminates.
func successor(pctx *Context, nodeID, handle string) *string {
	next, ok := pctx.Graph.Successor(nodeID, handle)
	if !ok {
		return nil
	}
	id := next.ID
	return &id
}
