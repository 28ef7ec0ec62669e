package tracing

// Span attribute keys used across the engine. Executor and scheduler
// spans share these so one trace query can follow an enrollment from
// claim to terminal state.
const (
	AttrWorkflowID   = "workflow.id"
	AttrWorkflowName = "workflow.name"
	AttrEnrollmentID = "enrollment.id"
	AttrExecutionID  = "execution.id"
	AttrContactID    = "contact.id"

	AttrNodeID   = "node.id"
	AttrNodeType = "node.type"

	AttrBatchNodes   = "batch.nodes_processed"
	AttrBatchResult  = "batch.result"
	AttrBatchAttempt = "batch.attempt"

	AttrTickClaimed = "tick.claimed"
	AttrTickDue     = "tick.due"

	AttrErrorCode = "error.code"
)

// Span names.
const (
	SpanExecuteBatch = "engine.execute_batch"
	SpanProcessNode  = "engine.process_node"
	SpanTick         = "scheduler.tick"
	SpanEnroll       = "scheduler.enroll"
)
