package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/notification"
	"github.com/zjrosen/followup/internal/workflow"
)

// Models map domain entities to rows: Unix timestamps for time values,
// JSON-encoded TEXT for freeform maps and payloads, pointers for
// nullable columns.

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}

func timePtr(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.Unix(*v, 0)
	return &t
}

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
	ID          string
	Name        string
	Description string
	Enabled     bool
	CreatedAt   int64
	UpdatedAt   int64
}

func toWorkflowModel(w *workflow.Workflow) *workflowModel {
	return &workflowModel{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Enabled:     w.Enabled,
		CreatedAt:   w.CreatedAt.Unix(),
		UpdatedAt:   w.UpdatedAt.Unix(),
	}
}

func (m *workflowModel) toDomain() *workflow.Workflow {
	return &workflow.Workflow{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Enabled:     m.Enabled,
		CreatedAt:   time.Unix(m.CreatedAt, 0),
		UpdatedAt:   time.Unix(m.UpdatedAt, 0),
	}
}

// nodeModel is the workflow_nodes row. Data holds the type-dependent
// payload as JSON.
type nodeModel struct {
	WorkflowID string
	ID         string
	Type       string
	PositionX  float64
	PositionY  float64
	Data       string
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

// contactModel is the contacts row. Tags and custom fields live in
// their join tables and are loaded separately.
type contactModel struct {
	ID              string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Status          string
	DoNotContact    bool
	Replied         bool
	LastContactedAt *int64
	CreatedAt       int64
	UpdatedAt       int64
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
		LastContactedAt: unixPtr(c.LastContactedAt),
		CreatedAt:       c.CreatedAt.Unix(),
		UpdatedAt:       c.UpdatedAt.Unix(),
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
		LastContactedAt: timePtr(m.LastContactedAt),
		CreatedAt:       time.Unix(m.CreatedAt, 0),
		UpdatedAt:       time.Unix(m.UpdatedAt, 0),
	}
}

// eventModel is the contact_events row.
type eventModel struct {
	ID          string
	ContactID   string
	Type        string
	Payload     string
	CreatedAt   int64
	ProcessedAt *int64
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
		CreatedAt:   e.CreatedAt.Unix(),
		ProcessedAt: unixPtr(e.ProcessedAt),
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
		CreatedAt:   time.Unix(m.CreatedAt, 0),
		ProcessedAt: timePtr(m.ProcessedAt),
	}, nil
}

// templateModel is the templates row.
type templateModel struct {
	ID        string
	Name      string
	Channel   string
	Subject   string
	Body      string
	CreatedAt int64
	UpdatedAt int64
}

func toTemplateModel(t *message.Template) *templateModel {
	return &templateModel{
		ID:        t.ID,
		Name:      t.Name,
		Channel:   string(t.Channel),
		Subject:   t.Subject,
		Body:      t.Body,
		CreatedAt: t.CreatedAt.Unix(),
		UpdatedAt: t.UpdatedAt.Unix(),
	}
}

func (m *templateModel) toDomain() *message.Template {
	return &message.Template{
		ID:        m.ID,
		Name:      m.Name,
		Channel:   message.Channel(m.Channel),
		Subject:   m.Subject,
		Body:      m.Body,
		CreatedAt: time.Unix(m.CreatedAt, 0),
		UpdatedAt: time.Unix(m.UpdatedAt, 0),
	}
}

// messageModel is the messages row. ProviderID is nullable so the
// partial unique index only sees real provider ids; the empty domain
// value maps to NULL.
type messageModel struct {
	ID            string
	ContactID     string
	Channel       string
	Direction     string
	Subject       string
	Body          string
	Status        string
	ProviderID    *string
	ProviderError string
	Source        string
	TemplateID    *string
	ExecutionID   *string
	CreatedAt     int64
	UpdatedAt     int64
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
		CreatedAt:     msg.CreatedAt.Unix(),
		UpdatedAt:     msg.UpdatedAt.Unix(),
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
		CreatedAt:     time.Unix(m.CreatedAt, 0),
		UpdatedAt:     time.Unix(m.UpdatedAt, 0),
	}
}

// enrollmentModel is the workflow_enrollments row.
type enrollmentModel struct {
	ID          string
	WorkflowID  string
	ContactID   string
	Status      string
	EnrolledAt  int64
	CompletedAt *int64
	StoppedAt   *int64
	StopReason  string
	UpdatedAt   int64
}

func toEnrollmentModel(e *enrollment.Enrollment) *enrollmentModel {
	return &enrollmentModel{
		ID:          e.ID,
		WorkflowID:  e.WorkflowID,
		ContactID:   e.ContactID,
		Status:      string(e.Status),
		EnrolledAt:  e.EnrolledAt.Unix(),
		CompletedAt: unixPtr(e.CompletedAt),
		StoppedAt:   unixPtr(e.StoppedAt),
		StopReason:  e.StopReason,
		UpdatedAt:   e.UpdatedAt.Unix(),
	}
}

func (m *enrollmentModel) toDomain() *enrollment.Enrollment {
	return &enrollment.Enrollment{
		ID:          m.ID,
		WorkflowID:  m.WorkflowID,
		ContactID:   m.ContactID,
		Status:      enrollment.Status(m.Status),
		EnrolledAt:  time.Unix(m.EnrolledAt, 0),
		CompletedAt: timePtr(m.CompletedAt),
		StoppedAt:   timePtr(m.StoppedAt),
		StopReason:  m.StopReason,
		UpdatedAt:   time.Unix(m.UpdatedAt, 0),
	}
}

// executionModel is the workflow_executions row.
type executionModel struct {
	ID             string
	EnrollmentID   string
	CurrentNodeID  string
	Status         string
	NextRunAt      *int64
	LastRunAt      *int64
	Attempts       int
	MaxAttempts    int
	ErrorMessage   string
	ExecutionData  string
	LeaseHolder    string
	LeaseExpiresAt *int64
	CreatedAt      int64
	UpdatedAt      int64
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
		NextRunAt:      unixPtr(x.NextRunAt),
		LastRunAt:      unixPtr(x.LastRunAt),
		Attempts:       x.Attempts,
		MaxAttempts:    x.MaxAttempts,
		ErrorMessage:   x.ErrorMessage,
		ExecutionData:  data,
		LeaseHolder:    x.LeaseHolder,
		LeaseExpiresAt: unixPtr(x.LeaseExpiresAt),
		CreatedAt:      x.CreatedAt.Unix(),
		UpdatedAt:      x.UpdatedAt.Unix(),
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
		NextRunAt:      timePtr(m.NextRunAt),
		LastRunAt:      timePtr(m.LastRunAt),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		ErrorMessage:   m.ErrorMessage,
		ExecutionData:  data,
		LeaseHolder:    m.LeaseHolder,
		LeaseExpiresAt: timePtr(m.LeaseExpiresAt),
		CreatedAt:      time.Unix(m.CreatedAt, 0),
		UpdatedAt:      time.Unix(m.UpdatedAt, 0),
	}, nil
}

// logModel is the workflow_execution_logs row.
type logModel struct {
	ID           string
	ExecutionID  string
	EnrollmentID string
	NodeID       string
	NodeType     string
	Action       string
	Status       string
	Input        string
	Output       string
	Error        string
	DurationMS   int64
	CreatedAt    int64
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
		CreatedAt:    l.CreatedAt.Unix(),
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
		CreatedAt:    time.Unix(m.CreatedAt, 0),
	}, nil
}

// notificationModel is the notifications row.
type notificationModel struct {
	ID           string
	Kind         string
	Title        string
	Body         string
	WorkflowID   string
	EnrollmentID string
	ContactID    string
	ReadAt       *int64
	CreatedAt    int64
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
		ReadAt:       unixPtr(n.ReadAt),
		CreatedAt:    n.CreatedAt.Unix(),
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
		ReadAt:       timePtr(m.ReadAt),
		CreatedAt:    time.Unix(m.CreatedAt, 0),
	}
}
