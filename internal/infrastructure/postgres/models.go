package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/notification"
	"github.com/zjrosen/followup/internal/workflow"
)

// Models map domain entities to rows: timestamptz for time values,
// jsonb (carried as JSON text) for freeform maps and payloads,
// pointers for nullable columns. Tables that need a stable append
// order have a bigserial seq column the models never touch; it only
// appears in ORDER BY clauses.

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// encodeMap renders a map as its JSON column value, "{}" when empty.
func encodeMap[M ~map[string]V, V any](m M) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(raw), nil
}

func decodeMap[M ~map[string]V, V any](raw string) (M, error) {
	m := make(M)
	if raw == "" || raw == "{}" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode json column: %w", err)
	}
	return m, nil
}

// workflowModel is the workflows row.
type workflowModel struct {
	bun.BaseModel `bun:"table:workflows"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name"`
	Description string    `bun:"description"`
	Enabled     bool      `bun:"enabled"`
	CreatedAt   time.Time `bun:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at"`
}

func toWorkflowModel(w *workflow.Workflow) *workflowModel {
	return &workflowModel{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Enabled:     w.Enabled,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func (m *workflowModel) toDomain() *workflow.Workflow {
	return &workflow.Workflow{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Enabled:     m.Enabled,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// nodeModel is the workflow_nodes row. Data holds the type-dependent
// payload as JSON.
type nodeModel struct {
	bun.BaseModel `bun:"table:workflow_nodes"`

	WorkflowID string  `bun:"workflow_id,pk"`
	ID         string  `bun:"id,pk"`
	Type       string  `bun:"type"`
	PositionX  float64 `bun:"position_x"`
	PositionY  float64 `bun:"position_y"`
	Data       string  `bun:"data"`
}

func toNodeModel(workflowID string, n *workflow.Node) (*nodeModel, error) {
	data := "{}"
	if n.Data != nil {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode node %s payload: %w", n.ID, err)
		}
		data = string(raw)
	}
	return &nodeModel{
		WorkflowID: workflowID,
		ID:         n.ID,
		Type:       string(n.Type),
		PositionX:  n.Position.X,
		PositionY:  n.Position.Y,
		Data:       data,
	}, nil
}

func (m *nodeModel) toDomain() (workflow.Node, error) {
	t := workflow.NodeType(m.Type)
	payload, err := workflow.DecodePayload(t, json.RawMessage(m.Data))
	if err != nil {
		return workflow.Node{}, fmt.Errorf("failed to decode node %s payload: %w", m.ID, err)
	}
	return workflow.Node{
		ID:         m.ID,
		WorkflowID: m.WorkflowID,
		Type:       t,
		Position:   workflow.Position{X: m.PositionX, Y: m.PositionY},
		Data:       payload,
	}, nil
}

// edgeModel is the workflow_edges row.
type edgeModel struct {
	bun.BaseModel `bun:"table:workflow_edges"`

	WorkflowID   string `bun:"workflow_id,pk"`
	ID           string `bun:"id,pk"`
	SourceID     string `bun:"source_id"`
	TargetID     string `bun:"target_id"`
	SourceHandle string `bun:"source_handle"`
	Label        string `bun:"label"`
}

func toEdgeModel(workflowID string, e *workflow.Edge) *edgeModel {
	return &edgeModel{
		WorkflowID:   workflowID,
		ID:           e.ID,
		SourceID:     e.SourceID,
		TargetID:     e.TargetID,
		SourceHandle: e.SourceHandle,
		Label:        e.Label,
	}
}

func (m *edgeModel) toDomain() workflow.Edge {
	return workflow.Edge{
		ID:           m.ID,
		WorkflowID:   m.WorkflowID,
		SourceID:     m.SourceID,
		TargetID:     m.TargetID,
		SourceHandle: m.SourceHandle,
		Label:        m.Label,
	}
}

// contactModel is the contacts row. Tags and custom fields live in
// their join tables and are loaded separately.
type contactModel struct {
	bun.BaseModel `bun:"table:contacts"`

	ID              string     `bun:"id,pk"`
	FirstName       string     `bun:"first_name"`
	LastName        string     `bun:"last_name"`
	Email           string     `bun:"email"`
	Phone           string     `bun:"phone"`
	Status          string     `bun:"status"`
	DoNotContact    bool       `bun:"do_not_contact"`
	Replied         bool       `bun:"replied"`
	LastContactedAt *time.Time `bun:"last_contacted_at"`
	CreatedAt       time.Time  `bun:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at"`
}

func toContactModel(c *contact.Contact) *contactModel {
	return &contactModel{
		ID:              c.ID,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Email:           c.Email,
		Phone:           c.Phone,
		Status:          string(c.Status),
		DoNotContact:    c.DoNotContact,
		Replied:         c.Replied,
		LastContactedAt: c.LastContactedAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func (m *contactModel) toDomain() *contact.Contact {
	return &contact.Contact{
		ID:              m.ID,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		Email:           m.Email,
		Phone:           m.Phone,
		Status:          contact.Status(m.Status),
		DoNotContact:    m.DoNotContact,
		Replied:         m.Replied,
		LastContactedAt: m.LastContactedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// tagModel is the shared tags row; names are unique ignoring case.
type tagModel struct {
	bun.BaseModel `bun:"table:tags"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

// contactTagModel links a contact to a tag.
type contactTagModel struct {
	bun.BaseModel `bun:"table:contact_tags"`

	ContactID string `bun:"contact_id,pk"`
	TagID     int64  `bun:"tag_id,pk"`
}

// customFieldModel is the contact_custom_fields row.
type customFieldModel struct {
	bun.BaseModel `bun:"table:contact_custom_fields"`

	ContactID string `bun:"contact_id"`
	Name      string `bun:"name"`
	Value     string `bun:"value"`
}

// eventModel is the contact_events row.
type eventModel struct {
	bun.BaseModel `bun:"table:contact_events"`

	ID          string     `bun:"id,pk"`
	ContactID   string     `bun:"contact_id"`
	Type        string     `bun:"type"`
	Payload     string     `bun:"payload"`
	CreatedAt   time.Time  `bun:"created_at"`
	ProcessedAt *time.Time `bun:"processed_at"`
}

func toEventModel(e *contact.Event) (*eventModel, error) {
	payload, err := encodeMap(e.Payload)
	if err != nil {
		return nil, err
	}
	return &eventModel{
		ID:          e.ID,
		ContactID:   e.ContactID,
		Type:        string(e.Type),
		Payload:     payload,
		CreatedAt:   e.CreatedAt,
		ProcessedAt: e.ProcessedAt,
	}, nil
}

func (m *eventModel) toDomain() (*contact.Event, error) {
	payload, err := decodeMap[map[string]string](m.Payload)
	if err != nil {
		return nil, err
	}
	return &contact.Event{
		ID:          m.ID,
		ContactID:   m.ContactID,
		Type:        contact.EventType(m.Type),
		Payload:     payload,
		CreatedAt:   m.CreatedAt,
		ProcessedAt: m.ProcessedAt,
	}, nil
}

// templateModel is the templates row.
type templateModel struct {
	bun.BaseModel `bun:"table:templates"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name"`
	Channel   string    `bun:"channel"`
	Subject   string    `bun:"subject"`
	Body      string    `bun:"body"`
	CreatedAt time.Time `bun:"created_at"`
	UpdatedAt time.Time `bun:"updated_at"`
}

func toTemplateModel(t *message.Template) *templateModel {
	return &templateModel{
		ID:        t.ID,
		Name:      t.Name,
		Channel:   string(t.Channel),
		Subject:   t.Subject,
		Body:      t.Body,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (m *templateModel) toDomain() *message.Template {
	return &message.Template{
		ID:        m.ID,
		Name:      m.Name,
		Channel:   message.Channel(m.Channel),
		Subject:   m.Subject,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// messageModel is the messages row. ProviderID is nullable so the
// partial unique index only sees real provider ids; the empty domain
// value maps to NULL.
type messageModel struct {
	bun.BaseModel `bun:"table:messages"`

	ID            string    `bun:"id,pk"`
	ContactID     string    `bun:"contact_id"`
	Channel       string    `bun:"channel"`
	Direction     string    `bun:"direction"`
	Subject       string    `bun:"subject"`
	Body          string    `bun:"body"`
	Status        string    `bun:"status"`
	ProviderID    *string   `bun:"provider_id"`
	ProviderError string    `bun:"provider_error"`
	Source        string    `bun:"source"`
	TemplateID    *string   `bun:"template_id"`
	ExecutionID   *string   `bun:"execution_id"`
	CreatedAt     time.Time `bun:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at"`
}

func toMessageModel(msg *message.Message) *messageModel {
	return &messageModel{
		ID:            msg.ID,
		ContactID:     msg.ContactID,
		Channel:       string(msg.Channel),
		Direction:     string(msg.Direction),
		Subject:       msg.Subject,
		Body:          msg.Body,
		Status:        string(msg.Status),
		ProviderID:    nullStr(msg.ProviderID),
		ProviderError: msg.ProviderError,
		Source:        string(msg.Source),
		TemplateID:    nullStr(msg.TemplateID),
		ExecutionID:   nullStr(msg.ExecutionID),
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     msg.UpdatedAt,
	}
}

func (m *messageModel) toDomain() *message.Message {
	return &message.Message{
		ID:            m.ID,
		ContactID:     m.ContactID,
		Channel:       message.Channel(m.Channel),
		Direction:     message.Direction(m.Direction),
		Subject:       m.Subject,
		Body:          m.Body,
		Status:        message.Status(m.Status),
		ProviderID:    strVal(m.ProviderID),
		ProviderError: m.ProviderError,
		Source:        message.Source(m.Source),
		TemplateID:    strVal(m.TemplateID),
		ExecutionID:   strVal(m.ExecutionID),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// settingModel is the settings row.
type settingModel struct {
	bun.BaseModel `bun:"table:settings"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// enrollmentModel is the workflow_enrollments row.
type enrollmentModel struct {
	bun.BaseModel `bun:"table:workflow_enrollments"`

	ID          string     `bun:"id,pk"`
	WorkflowID  string     `bun:"workflow_id"`
	ContactID   string     `bun:"contact_id"`
	Status      string     `bun:"status"`
	EnrolledAt  time.Time  `bun:"enrolled_at"`
	CompletedAt *time.Time `bun:"completed_at"`
	StoppedAt   *time.Time `bun:"stopped_at"`
	StopReason  string     `bun:"stop_reason"`
	UpdatedAt   time.Time  `bun:"updated_at"`
}

func toEnrollmentModel(e *enrollment.Enrollment) *enrollmentModel {
	return &enrollmentModel{
		ID:          e.ID,
		WorkflowID:  e.WorkflowID,
		ContactID:   e.ContactID,
		Status:      string(e.Status),
		EnrolledAt:  e.EnrolledAt,
		CompletedAt: e.CompletedAt,
		StoppedAt:   e.StoppedAt,
		StopReason:  e.StopReason,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (m *enrollmentModel) toDomain() *enrollment.Enrollment {
	return &enrollment.Enrollment{
		ID:          m.ID,
		WorkflowID:  m.WorkflowID,
		ContactID:   m.ContactID,
		Status:      enrollment.Status(m.Status),
		EnrolledAt:  m.EnrolledAt,
		CompletedAt: m.CompletedAt,
		StoppedAt:   m.StoppedAt,
		StopReason:  m.StopReason,
		UpdatedAt:   m.UpdatedAt,
	}
}

// executionModel is the workflow_executions row.
type executionModel struct {
	bun.BaseModel `bun:"table:workflow_executions"`

	ID             string     `bun:"id,pk"`
	EnrollmentID   string     `bun:"enrollment_id"`
	CurrentNodeID  string     `bun:"current_node_id"`
	Status         string     `bun:"status"`
	NextRunAt      *time.Time `bun:"next_run_at"`
	LastRunAt      *time.Time `bun:"last_run_at"`
	Attempts       int        `bun:"attempts"`
	MaxAttempts    int        `bun:"max_attempts"`
	ErrorMessage   string     `bun:"error_message"`
	ExecutionData  string     `bun:"execution_data"`
	LeaseHolder    string     `bun:"lease_holder"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at"`
	CreatedAt      time.Time  `bun:"created_at"`
	UpdatedAt      time.Time  `bun:"updated_at"`
}

func toExecutionModel(x *enrollment.Execution) (*executionModel, error) {
	data, err := encodeMap(x.ExecutionData)
	if err != nil {
		return nil, err
	}
	return &executionModel{
		ID:             x.ID,
		EnrollmentID:   x.EnrollmentID,
		CurrentNodeID:  x.CurrentNodeID,
		Status:         string(x.Status),
		NextRunAt:      x.NextRunAt,
		LastRunAt:      x.LastRunAt,
		Attempts:       x.Attempts,
		MaxAttempts:    x.MaxAttempts,
		ErrorMessage:   x.ErrorMessage,
		ExecutionData:  data,
		LeaseHolder:    x.LeaseHolder,
		LeaseExpiresAt: x.LeaseExpiresAt,
		CreatedAt:      x.CreatedAt,
		UpdatedAt:      x.UpdatedAt,
	}, nil
}

func (m *executionModel) toDomain() (*enrollment.Execution, error) {
	data, err := decodeMap[map[string]any](m.ExecutionData)
	if err != nil {
		return nil, err
	}
	return &enrollment.Execution{
		ID:             m.ID,
		EnrollmentID:   m.EnrollmentID,
		CurrentNodeID:  m.CurrentNodeID,
		Status:         enrollment.ExecStatus(m.Status),
		NextRunAt:      m.NextRunAt,
		LastRunAt:      m.LastRunAt,
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		ErrorMessage:   m.ErrorMessage,
		ExecutionData:  data,
		LeaseHolder:    m.LeaseHolder,
		LeaseExpiresAt: m.LeaseExpiresAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

// logModel is the workflow_execution_logs row.
type logModel struct {
	bun.BaseModel `bun:"table:workflow_execution_logs"`

	ID           string    `bun:"id,pk"`
	ExecutionID  string    `bun:"execution_id"`
	EnrollmentID string    `bun:"enrollment_id"`
	NodeID       string    `bun:"node_id"`
	NodeType     string    `bun:"node_type"`
	Action       string    `bun:"action"`
	Status       string    `bun:"status"`
	Input        string    `bun:"input"`
	Output       string    `bun:"output"`
	Error        string    `bun:"error"`
	DurationMS   int64     `bun:"duration_ms"`
	CreatedAt    time.Time `bun:"created_at"`
}

func toLogModel(l *enrollment.ExecutionLog) (*logModel, error) {
	input, err := encodeMap(l.Input)
	if err != nil {
		return nil, err
	}
	output, err := encodeMap(l.Output)
	if err != nil {
		return nil, err
	}
	return &logModel{
		ID:           l.ID,
		ExecutionID:  l.ExecutionID,
		EnrollmentID: l.EnrollmentID,
		NodeID:       l.NodeID,
		NodeType:     l.NodeType,
		Action:       string(l.Action),
		Status:       string(l.Status),
		Input:        input,
		Output:       output,
		Error:        l.Error,
		DurationMS:   l.DurationMS,
		CreatedAt:    l.CreatedAt,
	}, nil
}

func (m *logModel) toDomain() (*enrollment.ExecutionLog, error) {
	input, err := decodeMap[map[string]any](m.Input)
	if err != nil {
		return nil, err
	}
	output, err := decodeMap[map[string]any](m.Output)
	if err != nil {
		return nil, err
	}
	return &enrollment.ExecutionLog{
		ID:           m.ID,
		ExecutionID:  m.ExecutionID,
		EnrollmentID: m.EnrollmentID,
		NodeID:       m.NodeID,
		NodeType:     m.NodeType,
		Action:       enrollment.LogAction(m.Action),
		Status:       enrollment.LogStatus(m.Status),
		Input:        input,
		Output:       output,
		Error:        m.Error,
		DurationMS:   m.DurationMS,
		CreatedAt:    m.CreatedAt,
	}, nil
}

// notificationModel is the notifications row.
type notificationModel struct {
	bun.BaseModel `bun:"table:notifications"`

	ID           string     `bun:"id,pk"`
	Kind         string     `bun:"kind"`
	Title        string     `bun:"title"`
	Body         string     `bun:"body"`
	WorkflowID   string     `bun:"workflow_id"`
	EnrollmentID string     `bun:"enrollment_id"`
	ContactID    string     `bun:"contact_id"`
	ReadAt       *time.Time `bun:"read_at"`
	CreatedAt    time.Time  `bun:"created_at"`
}

func toNotificationModel(n *notification.Notification) *notificationModel {
	return &notificationModel{
		ID:           n.ID,
		Kind:         string(n.Kind),
		Title:        n.Title,
		Body:         n.Body,
		WorkflowID:   n.WorkflowID,
		EnrollmentID: n.EnrollmentID,
		ContactID:    n.ContactID,
		ReadAt:       n.ReadAt,
		CreatedAt:    n.CreatedAt,
	}
}

func (m *notificationModel) toDomain() *notification.Notification {
	return &notification.Notification{
		ID:           m.ID,
		Kind:         notification.Kind(m.Kind),
		Title:        m.Title,
		Body:         m.Body,
		WorkflowID:   m.WorkflowID,
		EnrollmentID: m.EnrollmentID,
		ContactID:    m.ContactID,
		ReadAt:       m.ReadAt,
		CreatedAt:    m.CreatedAt,
	}
}
