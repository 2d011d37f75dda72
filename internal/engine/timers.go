package engine

import (
	"context"
	"errors"
	"time"

	"ledgerline/internal/domain"
	"ledgerline/internal/events"
	"ledgerline/internal/repo"
)

type TimerStartOptions struct {
	TaskID      string
	UserID      string
	Description string
	Billable    bool
}

// StartTimer opens a running time entry. A user gets at most one running
// timer per task.
func (e Engine) StartTimer(ctx context.Context, orgID string, opts TimerStartOptions) (domain.TimeEntry, error) {
	if _, err := e.Repo.GetTask(ctx, orgID, opts.TaskID); err != nil {
		return domain.TimeEntry{}, err
	}
	if _, err := e.Repo.GetMembership(ctx, orgID, opts.UserID); err != nil {
		return domain.TimeEntry{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.RunningTimeEntry(ctx, tx, opts.TaskID, opts.UserID); err == nil {
		return domain.TimeEntry{}, conflictf("timer already running for this task")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.TimeEntry{}, err
	}

	now := e.timestamp()
	entry := domain.TimeEntry{
		ID:          newID(),
		OrgID:       orgID,
		TaskID:      opts.TaskID,
		UserID:      opts.UserID,
		Description: opts.Description,
		StartedAt:   now,
		Billable:    opts.Billable,
		CreatedAt:   now,
	}
	if err := e.Repo.InsertTimeEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "timer.started", orgID, "time_entry", entry.ID, opts.UserID, events.EventPayload{"task_id": opts.TaskID}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// StopTimer closes the user's running entry on a task and derives minutes
// from the elapsed wall clock.
func (e Engine) StopTimer(ctx context.Context, orgID, taskID, userID string) (domain.TimeEntry, error) {
	if _, err := e.Repo.GetTask(ctx, orgID, taskID); err != nil {
		return domain.TimeEntry{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	entry, err := e.Repo.RunningTimeEntry(ctx, tx, taskID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.TimeEntry{}, conflictf("no running timer for this task")
		}
		return domain.TimeEntry{}, err
	}
	started, err := time.Parse(time.RFC3339, entry.StartedAt)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	ended := e.now().UTC()
	minutes := int(ended.Sub(started).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	endedAt := ended.Format(time.RFC3339)
	if err := e.Repo.StopTimeEntry(ctx, tx, entry.ID, endedAt, minutes); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "timer.stopped", orgID, "time_entry", entry.ID, userID, events.EventPayload{"minutes": minutes}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	entry.EndedAt = &endedAt
	entry.Minutes = minutes
	return entry, nil
}

type TimeLogOptions struct {
	TaskID      string
	UserID      string
	Description string
	StartedAt   string
	EndedAt     string
	Billable    bool
	ActorID     string
}

// LogTime records a completed entry with both endpoints supplied.
func (e Engine) LogTime(ctx context.Context, orgID string, opts TimeLogOptions) (domain.TimeEntry, error) {
	if _, err := e.Repo.GetTask(ctx, orgID, opts.TaskID); err != nil {
		return domain.TimeEntry{}, err
	}
	if _, err := e.Repo.GetMembership(ctx, orgID, opts.UserID); err != nil {
		return domain.TimeEntry{}, err
	}
	started, err := time.Parse(time.RFC3339, opts.StartedAt)
	if err != nil {
		return domain.TimeEntry{}, validationf("started_at must be RFC3339")
	}
	ended, err := time.Parse(time.RFC3339, opts.EndedAt)
	if err != nil {
		return domain.TimeEntry{}, validationf("ended_at must be RFC3339")
	}
	if !ended.After(started) {
		return domain.TimeEntry{}, validationf("ended_at must be after started_at")
	}
	minutes := int(ended.Sub(started).Minutes())
	endedAt := ended.UTC().Format(time.RFC3339)
	entry := domain.TimeEntry{
		ID:          newID(),
		OrgID:       orgID,
		TaskID:      opts.TaskID,
		UserID:      opts.UserID,
		Description: opts.Description,
		StartedAt:   started.UTC().Format(time.RFC3339),
		EndedAt:     &endedAt,
		Minutes:     minutes,
		Billable:    opts.Billable,
		CreatedAt:   e.timestamp(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTimeEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "time.logged", orgID, "time_entry", entry.ID, opts.ActorID, events.EventPayload{"minutes": minutes}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

func (e Engine) DeleteTimeEntry(ctx context.Context, orgID, entryID, actorID string) error {
	entry, err := e.Repo.GetTimeEntry(ctx, orgID, entryID)
	if err != nil {
		return err
	}
	if entry.InvoiceID != nil {
		return conflictf("entry is attached to an invoice")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTimeEntry(ctx, tx, orgID, entryID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "time.deleted", orgID, "time_entry", entryID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
