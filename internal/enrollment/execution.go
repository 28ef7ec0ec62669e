package enrollment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts bounds execution-level retries unless configured
// otherwise.
const DefaultMaxAttempts = 3

// ExecStatus is the lifecycle state of an execution.
type ExecStatus string

const (
	// ExecWaiting executions are due when next_run_at passes.
	ExecWaiting ExecStatus = "waiting"
	// ExecProcessing is a transient lease held by exactly one runner;
	// lease expiry makes the row claimable again.
	ExecProcessing ExecStatus = "processing"
	// ExecCompleted and ExecFailed are terminal.
	ExecCompleted ExecStatus = "completed"
	ExecFailed    ExecStatus = "failed"
)

// validExecTransitions defines the allowed execution state changes.
// waiting → failed covers structural failures detected before a claim,
// such as a disabled workflow.
var validExecTransitions = map[ExecStatus][]ExecStatus{
	ExecWaiting:    {ExecProcessing, ExecFailed},
	ExecProcessing: {ExecWaiting, ExecCompleted, ExecFailed},
	ExecCompleted:  {},
	ExecFailed:     {},
}

// CanTransitionTo returns true if the transition is allowed.
func (s ExecStatus) CanTransitionTo(target ExecStatus) bool {
	for _, allowed := range validExecTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are allowed.
func (s ExecStatus) IsTerminal() bool {
	return len(validExecTransitions[s]) == 0
}

func (s ExecStatus) String() string {
	return string(s)
}

// Execution is the durable cursor for an enrollment. ExecutionData
// accumulates processor outputs across the run: sent message ids, the
// last condition result, sub-workflow call records.
type Execution struct {
	ID             string
	EnrollmentID   string
	CurrentNodeID  string
	Status         ExecStatus
	NextRunAt      *time.Time
	LastRunAt      *time.Time
	Attempts       int
	MaxAttempts    int
	ErrorMessage   string
	ExecutionData  map[string]any
	LeaseHolder    string
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewExecution creates a waiting execution pointed at the given node,
// due at runAt.
func NewExecution(enrollmentID, nodeID string, runAt time.Time, maxAttempts int) *Execution {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now()
	return &Execution{
		ID:            uuid.New().String(),
		EnrollmentID:  enrollmentID,
		CurrentNodeID: nodeID,
		Status:        ExecWaiting,
		NextRunAt:     &runAt,
		MaxAttempts:   maxAttempts,
		ExecutionData: map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TransitionTo moves the execution to the target status and clears the
// lease when leaving processing. Returns an error for illegal
// transitions.
func (x *Execution) TransitionTo(target ExecStatus) error {
	if !x.Status.CanTransitionTo(target) {
		return fmt.Errorf("invalid execution transition from %s to %s", x.Status, target)
	}
	if x.Status == ExecProcessing && target != ExecProcessing {
		x.LeaseHolder = ""
		x.LeaseExpiresAt = nil
	}
	x.Status = target
	x.UpdatedAt = time.Now()
	return nil
}

// MergeData shallow-merges patch into ExecutionData, keeping existing
// keys that the patch does not mention.
func (x *Execution) MergeData(patch map[string]any) {
	if len(patch) == 0 {
		return
	}
	if x.ExecutionData == nil {
		x.ExecutionData = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		x.ExecutionData[k] = v
	}
}

// ExecutionLog is the append-only record of one processor invocation.
// Rows are never mutated after write.
type ExecutionLog struct {
	ID           string
	ExecutionID  string
	EnrollmentID string
	NodeID       string
	NodeType     string
	Action       LogAction
	Status       LogStatus
	Input        map[string]any
	Output       map[string]any
	Error        string
	DurationMS   int64
	CreatedAt    time.Time
}

// LogAction distinguishes regular steps from enrollment stops.
type LogAction string

const (
	ActionExecute LogAction = "execute"
	ActionStop    LogAction = "stop"
)

// LogStatus records whether the invocation succeeded.
type LogStatus string

const (
	LogCompleted LogStatus = "completed"
	LogFailed    LogStatus = "failed"
)

// NewLog builds a log row with a fresh id and creation stamp.
func NewLog(executionID, enrollmentID, nodeID, nodeType string) *ExecutionLog {
	return &ExecutionLog{
		ID:           uuid.New().String(),
		ExecutionID:  executionID,
		EnrollmentID: enrollmentID,
		NodeID:       nodeID,
		NodeType:     nodeType,
		Action:       ActionExecute,
		Status:       LogCompleted,
		CreatedAt:    time.Now(),
	}
}
