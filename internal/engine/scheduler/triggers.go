package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/log"
	"github.com/zjrosen/followup/internal/settings"
	"github.com/zjrosen/followup/internal/workflow"
)

// eventSweepLimit bounds how many contact events one tick handles.
const eventSweepLimit = 500

// sweepEvents fans unprocessed contact events out into enrollments. A
// row is marked processed only after every matching workflow enrolled
// cleanly; partial failures leave it for the next tick, and the
// duplicate skip makes the replay idempotent.
func (s *Scheduler) sweepEvents(ctx context.Context) {
	events, err := s.deps.Events.ListUnprocessed(ctx, eventSweepLimit)
	if err != nil {
		log.ErrorErr(log.CatTrigger, "failed to list contact events", err)
		return
	}
	if len(events) == 0 {
		return
	}

	workflows, err := s.enabledWorkflows(ctx)
	if err != nil {
		log.ErrorErr(log.CatTrigger, "failed to list workflows", err)
		return
	}

	done := make([]string, 0, len(events))
	for _, ev := range events {
		if err := s.fanOut(ctx, ev, workflows); err != nil {
			log.ErrorErr(log.CatTrigger, "event fan-out failed", err,
				"event_id", ev.ID,
				"event_type", string(ev.Type))
			continue
		}
		done = append(done, ev.ID)
	}
	if len(done) > 0 {
		if err := s.deps.Events.MarkProcessed(ctx, done, s.now()); err != nil {
			log.ErrorErr(log.CatTrigger, "failed to mark events processed", err)
		}
	}
}

func (s *Scheduler) enabledWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	enabled := true
	return s.deps.Workflows.List(ctx, workflow.ListFilter{Enabled: &enabled})
}

// fanOut enrolls the event's contact into every workflow whose trigger
// matches. One workflow failing does not stop the others.
func (s *Scheduler) fanOut(ctx context.Context, ev *contact.Event, workflows []*workflow.Workflow) error {
	var firstErr error
	for _, w := range workflows {
		if !triggerMatches(w.TriggerConfig(), ev) {
			continue
		}
		if _, _, err := s.deps.Enroller.Enroll(ctx, w.ID, ev.ContactID, EnrollOptions{}); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("workflow %s: %w", w.ID, err)
			}
		}
	}
	return firstErr
}

// triggerMatches reports whether one workflow trigger fires for the
// event. message_received events match no trigger; the reply gate reads
// the message table directly.
func triggerMatches(cfg workflow.TriggerConfig, ev *contact.Event) bool {
	switch ev.Type {
	case contact.EventContactAdded:
		return cfg.EffectiveType() == workflow.TriggerContactAdded
	case contact.EventTagAdded:
		return cfg.EffectiveType() == workflow.TriggerTagAdded &&
			strings.EqualFold(cfg.Tag, ev.Payload[contact.PayloadTag])
	case contact.EventStatusChanged:
		return cfg.EffectiveType() == workflow.TriggerStatusChanged &&
			cfg.Status == ev.Payload[contact.PayloadStatus]
	}
	return false
}

// sweepScheduled fires due scheduled triggers. The last-fired instant
// persists in settings, so a restart never double-fires a one-shot and
// repeats resume on schedule.
func (s *Scheduler) sweepScheduled(ctx context.Context) {
	workflows, err := s.enabledWorkflows(ctx)
	if err != nil {
		log.ErrorErr(log.CatTrigger, "failed to list workflows", err)
		return
	}
	now := s.now()
	for _, w := range workflows {
		cfg := w.TriggerConfig()
		if cfg.EffectiveType() != workflow.TriggerScheduled || cfg.At == nil {
			continue
		}
		due, err := s.scheduledDue(ctx, w.ID, cfg, now)
		if err != nil {
			log.ErrorErr(log.CatTrigger, "failed to read scheduled marker", err,
				"workflow_id", w.ID)
			continue
		}
		if due {
			s.fireScheduled(ctx, w, now)
		}
	}
}

// scheduledDue decides whether the trigger fires at now: the start time
// has passed, and either it never fired or the repeat interval elapsed.
func (s *Scheduler) scheduledDue(ctx context.Context, workflowID string, cfg workflow.TriggerConfig, now time.Time) (bool, error) {
	if now.Before(*cfg.At) {
		return false, nil
	}
	raw, err := s.deps.Settings.Get(ctx, settings.ScheduledLastFiredKey(workflowID))
	if err != nil {
		var nf *settings.NotFoundError
		if errors.As(err, &nf) {
			return true, nil
		}
		return false, err
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Unreadable marker: refire rather than stall. Duplicates are
		// skipped anyway.
		return true, nil
	}
	if cfg.RepeatEveryH <= 0 {
		return false, nil
	}
	return !now.Before(last.Add(time.Duration(cfg.RepeatEveryH) * time.Hour)), nil
}

// fireScheduled enrolls every contactable contact and records the
// firing.
func (s *Scheduler) fireScheduled(ctx context.Context, w *workflow.Workflow, now time.Time) {
	contacts, err := s.deps.Contacts.List(ctx, contact.ListFilter{})
	if err != nil {
		log.ErrorErr(log.CatTrigger, "failed to list contacts", err,
			"workflow_id", w.ID)
		return
	}
	enrolled := 0
	for _, c := range contacts {
		if c.DoNotContact {
			continue
		}
		_, created, err := s.deps.Enroller.Enroll(ctx, w.ID, c.ID, EnrollOptions{})
		if err != nil {
			log.ErrorErr(log.CatTrigger, "scheduled enrollment failed", err,
				"workflow_id", w.ID,
				"contact_id", c.ID)
			continue
		}
		if created {
			enrolled++
		}
	}
	if err := s.deps.Settings.Set(ctx, settings.ScheduledLastFiredKey(w.ID), now.Format(time.RFC3339)); err != nil {
		log.ErrorErr(log.CatTrigger, "failed to record scheduled firing", err,
			"workflow_id", w.ID)
		return
	}
	log.Info(log.CatTrigger, "scheduled trigger fired",
		"workflow_id", w.ID,
		"enrolled", enrolled)
}
