// Package infrastructure defines the surface the engine expects from a
// persistence backend. Two implementations live beneath it: sqlite
// (embedded, the default) and postgres (multi-process deployments).
package infrastructure

import (
	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/enrollment"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/notification"
	"github.com/zjrosen/followup/internal/settings"
	"github.com/zjrosen/followup/internal/workflow"
)

// Store hands out every repository the engine needs and owns the
// underlying connection.
type Store interface {
	Workflows() workflow.Repository
	Contacts() contact.Repository
	ContactEvents() contact.EventRepository
	Templates() message.TemplateRepository
	Messages() message.Repository
	Settings() settings.Repository
	Enrollments() enrollment.Repository
	Executions() enrollment.ExecutionRepository
	ExecutionLogs() enrollment.LogRepository
	Notifications() notification.Repository

	Close() error
}
